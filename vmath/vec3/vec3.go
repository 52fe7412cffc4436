// Package vec3 holds the 3-vector type used for points, directions, and colors.
package vec3

import (
	"math"
	"math/rand"
)

type T [3]float64

// nearZeroEpsilon is the per-component threshold below which a vector is
// considered degenerate.
const nearZeroEpsilon = 1e-8

func (v T) Norm() float64 {
	return math.Sqrt(v.NormSquared())
}

func (v T) NormSquared() float64 {
	return v[0]*v[0] + v[1]*v[1] + v[2]*v[2]
}

// NearZero reports whether every component of v is smaller in magnitude than
// 1e-8.
func (v T) NearZero() bool {
	return math.Abs(v[0]) < nearZeroEpsilon && math.Abs(v[1]) < nearZeroEpsilon && math.Abs(v[2]) < nearZeroEpsilon
}

// Normalize scales v to unit length.  v must not be the zero vector.
func Normalize(v T) T {
	l := v.Norm()
	return T{
		v[0] / l,
		v[1] / l,
		v[2] / l,
	}
}

func AddVV(a, b T) T {
	return T{
		a[0] + b[0],
		a[1] + b[1],
		a[2] + b[2],
	}
}

func SubVV(a, b T) T {
	return T{
		a[0] - b[0],
		a[1] - b[1],
		a[2] - b[2],
	}
}

// MulVV is the component-wise product, used mostly for colors.
func MulVV(a, b T) T {
	return T{
		a[0] * b[0],
		a[1] * b[1],
		a[2] * b[2],
	}
}

func MulVS(a T, b float64) T {
	return T{
		a[0] * b,
		a[1] * b,
		a[2] * b,
	}
}

func DivVS(a T, b float64) T {
	return T{
		a[0] / b,
		a[1] / b,
		a[2] / b,
	}
}

func Neg(a T) T {
	return T{-a[0], -a[1], -a[2]}
}

func IProd(a, b T) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func CProd(a, b T) T {
	return T{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

// Lerp blends from a (t == 0) to b (t == 1).
func Lerp(t float64, a, b T) T {
	return AddVV(MulVS(a, 1.0-t), MulVS(b, t))
}

func Reflect(a, n T) T {
	return SubVV(a, MulVS(n, 2*IProd(a, n)))
}

// Refract bends the unit vector uv through a surface with unit normal n, where
// etaRatio is the ratio of the refractive index on the incident side to the
// index on the transmitted side.
//
// The caller is responsible for checking for total internal reflection first;
// Refract does not.
func Refract(uv, n T, etaRatio float64) T {
	cosTheta := math.Min(-IProd(uv, n), 1.0)
	perp := MulVS(AddVV(uv, MulVS(n, cosTheta)), etaRatio)
	parallel := MulVS(n, -math.Sqrt(math.Abs(1.0-perp.NormSquared())))
	return AddVV(perp, parallel)
}

// UnitBallDistribution returns a point uniformly distributed inside the unit
// ball.
func UnitBallDistribution(rng *rand.Rand) T {
	result := T{}
	for {
		result[0] = 2 * (rng.Float64() - 0.5)
		result[1] = 2 * (rng.Float64() - 0.5)
		result[2] = 2 * (rng.Float64() - 0.5)
		if result.NormSquared() < 1.0 {
			return result
		}
	}
}

// UniformUnitDistribution returns a direction uniformly distributed on the unit
// sphere.
func UniformUnitDistribution(rng *rand.Rand) T {
	for {
		candidate := UnitBallDistribution(rng)
		// Rejecting tiny candidates keeps Normalize away from a zero divisor.
		if candidate.NormSquared() > nearZeroEpsilon {
			return Normalize(candidate)
		}
	}
}

// UnitDiskDistribution returns a point uniformly distributed inside the unit
// disk in the z == 0 plane.
func UnitDiskDistribution(rng *rand.Rand) T {
	result := T{}
	for {
		result[0] = 2 * (rng.Float64() - 0.5)
		result[1] = 2 * (rng.Float64() - 0.5)
		if result[0]*result[0]+result[1]*result[1] < 1.0 {
			return result
		}
	}
}
