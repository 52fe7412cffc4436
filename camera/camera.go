package camera

import (
	"fmt"
	"math"
	"math/rand"

	"lumen/ray"
	"lumen/vmath/vec3"
)

// Options describes a camera pose and lens.
type Options struct {
	LookFrom vec3.T
	LookAt   vec3.T
	Up       vec3.T

	// VFOVDegrees is the vertical field of view.
	VFOVDegrees float64
	AspectRatio float64

	// Aperture is the lens diameter.  Zero gives a pinhole camera with
	// everything in focus.
	Aperture float64

	// FocusDistance is the distance from LookFrom to the plane of perfect
	// focus.  Non-positive values mean 1.
	FocusDistance float64
}

// Camera maps normalized image-plane coordinates to world-space rays.  It is
// immutable once built and safe for concurrent use.
type Camera struct {
	Origin          vec3.T
	LowerLeftCorner vec3.T
	Horizontal      vec3.T
	Vertical        vec3.T

	// U, V, W is an orthonormal basis: U points right, V up, and W backwards
	// (away from the scene).
	U, V, W vec3.T

	LensRadius float64
}

// Default is a 16:9 pinhole camera at the origin looking down -z, with a
// viewport 2 units tall at focal length 1.
func Default() *Camera {
	const aspectRatio = 16.0 / 9.0
	const viewportHeight = 2.0
	const focalLength = 1.0

	c := &Camera{
		Origin:     vec3.T{0, 0, 0},
		Horizontal: vec3.T{aspectRatio * viewportHeight, 0, 0},
		Vertical:   vec3.T{0, viewportHeight, 0},
		U:          vec3.T{1, 0, 0},
		V:          vec3.T{0, 1, 0},
		W:          vec3.T{0, 0, 1},
	}
	c.LowerLeftCorner = vec3.SubVV(
		vec3.SubVV(vec3.SubVV(c.Origin, vec3.DivVS(c.Horizontal, 2)), vec3.DivVS(c.Vertical, 2)),
		vec3.T{0, 0, focalLength},
	)
	return c
}

func New(opts Options) (*Camera, error) {
	if !(opts.VFOVDegrees > 0 && opts.VFOVDegrees < 180) {
		return nil, fmt.Errorf("vertical field of view %v is outside (0, 180)", opts.VFOVDegrees)
	}
	if !(opts.AspectRatio > 0) {
		return nil, fmt.Errorf("aspect ratio %v is not positive", opts.AspectRatio)
	}
	if opts.Aperture < 0 {
		return nil, fmt.Errorf("aperture %v is negative", opts.Aperture)
	}

	back := vec3.SubVV(opts.LookFrom, opts.LookAt)
	if back.NearZero() {
		return nil, fmt.Errorf("look-from and look-at are the same point %v", opts.LookFrom)
	}
	w := vec3.Normalize(back)

	right := vec3.CProd(opts.Up, w)
	if right.NearZero() {
		return nil, fmt.Errorf("up vector %v is parallel to the view direction", opts.Up)
	}
	u := vec3.Normalize(right)
	v := vec3.CProd(w, u)

	focus := opts.FocusDistance
	if focus <= 0 {
		focus = 1
	}

	theta := opts.VFOVDegrees * math.Pi / 180
	viewportHeight := 2 * math.Tan(theta/2)
	viewportWidth := viewportHeight * opts.AspectRatio

	c := &Camera{
		Origin:     opts.LookFrom,
		Horizontal: vec3.MulVS(u, focus*viewportWidth),
		Vertical:   vec3.MulVS(v, focus*viewportHeight),
		U:          u,
		V:          v,
		W:          w,
		LensRadius: opts.Aperture / 2,
	}
	c.LowerLeftCorner = vec3.SubVV(
		vec3.SubVV(vec3.SubVV(c.Origin, vec3.DivVS(c.Horizontal, 2)), vec3.DivVS(c.Vertical, 2)),
		vec3.MulVS(w, focus),
	)

	return c, nil
}

// ShootRay returns the ray through image-plane point (s, t), where (0, 0) is
// the lower-left corner and (1, 1) the upper-right.
//
// With a lens, the origin is jittered across the aperture while the ray still
// passes through the same point on the focal plane.  A pinhole camera never
// touches rng.
func (c *Camera) ShootRay(s, t float64, rng *rand.Rand) ray.Ray {
	origin := c.Origin
	if c.LensRadius > 0 {
		rd := vec3.MulVS(vec3.UnitDiskDistribution(rng), c.LensRadius)
		offset := vec3.AddVV(vec3.MulVS(c.U, rd[0]), vec3.MulVS(c.V, rd[1]))
		origin = vec3.AddVV(origin, offset)
	}

	target := vec3.AddVV(c.LowerLeftCorner, vec3.AddVV(vec3.MulVS(c.Horizontal, s), vec3.MulVS(c.Vertical, t)))

	return ray.Ray{
		Point: origin,
		Slope: vec3.SubVV(target, origin),
	}
}
