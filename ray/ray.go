package ray

import (
	"math"

	"lumen/vmath/vec3"
)

// Span is a closed interval of ray parameters.
type Span struct {
	Lo, Hi float64
}

// ForwardSpan accepts every hit further along the ray than lo.
func ForwardSpan(lo float64) Span {
	return Span{Lo: lo, Hi: math.Inf(1)}
}

func (s Span) Contains(t float64) bool {
	return s.Lo <= t && t <= s.Hi
}

type Ray struct {
	Point vec3.T
	Slope vec3.T
}

func (r *Ray) Eval(t float64) vec3.T {
	return vec3.T{
		r.Point[0] + t*r.Slope[0],
		r.Point[1] + t*r.Slope[1],
		r.Point[2] + t*r.Slope[2],
	}
}

// RaySegment is a scene query: the ray, and the span of parameters in which
// contacts are accepted.
type RaySegment struct {
	TheRay     Ray
	TheSegment Span
}
