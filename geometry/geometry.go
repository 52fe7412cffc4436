// Package geometry implements the intersectable primitives of a scene.
package geometry

import (
	"math"

	"lumen/contact"
	"lumen/ray"
	"lumen/vmath/vec3"
)

// Geometry is anything a ray can hit.
type Geometry interface {
	// RayInto returns the nearest contact whose parameter lies in
	// query.TheSegment.
	RayInto(query ray.RaySegment) (contact.Contact, bool)
}

// Sphere is a Geometry centered on Center.
//
// A negative Radius flips the outward normal, which turns the sphere into an
// inward-facing shell.  Nesting one inside a dielectric sphere models a hollow
// glass bubble.
type Sphere struct {
	Center        vec3.T
	Radius        float64
	MaterialIndex int
}

func (s *Sphere) RayInto(query ray.RaySegment) (contact.Contact, bool) {
	oc := vec3.SubVV(query.TheRay.Point, s.Center)
	a := query.TheRay.Slope.NormSquared()
	halfB := vec3.IProd(oc, query.TheRay.Slope)
	c := oc.NormSquared() - s.Radius*s.Radius

	discriminant := halfB*halfB - a*c
	if discriminant < 0 {
		return contact.Contact{}, false
	}
	sqrtd := math.Sqrt(discriminant)

	root := (-halfB - sqrtd) / a
	if !query.TheSegment.Contains(root) {
		root = (-halfB + sqrtd) / a
		if !query.TheSegment.Contains(root) {
			return contact.Contact{}, false
		}
	}

	result := contact.Contact{
		T:             root,
		R:             query.TheRay,
		P:             query.TheRay.Eval(root),
		MaterialIndex: s.MaterialIndex,
	}
	outwardNormal := vec3.DivVS(vec3.SubVV(result.P, s.Center), s.Radius)
	result.SetFaceNormal(query.TheRay, outwardNormal)

	return result, true
}

// List is an ordered collection of geometries, itself a Geometry.
//
// There is no acceleration structure; each query visits every member.
type List []Geometry

func (l List) RayInto(query ray.RaySegment) (contact.Contact, bool) {
	closest := contact.Contact{}
	found := false

	for _, g := range l {
		c, ok := g.RayInto(query)
		if !ok {
			continue
		}
		// Later members only count if they beat the best hit so far.
		query.TheSegment.Hi = c.T
		closest = c
		found = true
	}

	return closest, found
}
