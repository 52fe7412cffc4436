package contact

import (
	"lumen/ray"
	"lumen/vmath/vec3"
)

// Contact records where a ray struck a surface.
type Contact struct {
	T float64

	// R is the ray that produced the contact.
	R ray.Ray
	P vec3.T

	// N always points against R.Slope.  FrontFace records whether that meant
	// flipping the geometry's outward normal.
	N         vec3.T
	FrontFace bool

	// MaterialIndex indexes the owning scene's material table.
	MaterialIndex int
}

// SetFaceNormal orients N to oppose the incoming ray, given the surface's
// outward normal.
func (c *Contact) SetFaceNormal(r ray.Ray, outwardNormal vec3.T) {
	c.FrontFace = vec3.IProd(r.Slope, outwardNormal) < 0
	if c.FrontFace {
		c.N = outwardNormal
	} else {
		c.N = vec3.Neg(outwardNormal)
	}
}
