// Package material implements surface scattering.
//
// The set of materials is closed: Lambertian, Metal, and Dielectric.
package material

import (
	"math"
	"math/rand"

	"lumen/contact"
	"lumen/ray"
	"lumen/vmath/vec3"
)

// ShadeInfo describes how light continues from a contact.
type ShadeInfo struct {
	// Attenuation is multiplied into whatever light IncidentRay gathers.
	Attenuation vec3.T

	// IncidentRay is the next ray to follow along the path.
	IncidentRay ray.Ray
}

type Material interface {
	// Shade scatters the ray that produced contact c.  It returns false if the
	// light was absorbed.
	Shade(c contact.Contact, rng *rand.Rand) (ShadeInfo, bool)
}

// Lambertian is an ideal diffuse reflector.
type Lambertian struct {
	Albedo vec3.T
}

func (l *Lambertian) Shade(c contact.Contact, rng *rand.Rand) (ShadeInfo, bool) {
	dir := vec3.AddVV(c.N, vec3.UniformUnitDistribution(rng))

	// The random vector can nearly cancel the normal.
	if dir.NearZero() {
		dir = c.N
	}

	return ShadeInfo{
		Attenuation: l.Albedo,
		IncidentRay: ray.Ray{
			Point: c.P,
			Slope: dir,
		},
	}, true
}

// Metal is a specular reflector.  Fuzz, in [0, 1], roughens the reflection.
type Metal struct {
	Albedo vec3.T
	Fuzz   float64
}

func NewMetal(albedo vec3.T, fuzz float64) *Metal {
	if fuzz > 1 {
		fuzz = 1
	}
	if fuzz < 0 {
		fuzz = 0
	}
	return &Metal{Albedo: albedo, Fuzz: fuzz}
}

func (m *Metal) Shade(c contact.Contact, rng *rand.Rand) (ShadeInfo, bool) {
	dir := vec3.Reflect(vec3.Normalize(c.R.Slope), c.N)
	if m.Fuzz != 0 {
		dir = vec3.AddVV(dir, vec3.MulVS(vec3.UnitBallDistribution(rng), m.Fuzz))
	}

	info := ShadeInfo{
		Attenuation: m.Albedo,
		IncidentRay: ray.Ray{
			Point: c.P,
			Slope: dir,
		},
	}

	// Fuzz can push the reflection below the surface.
	return info, vec3.IProd(dir, c.N) > 0
}

// Dielectric is a clear refractive material such as glass or water.
type Dielectric struct {
	IndexOfRefraction float64
}

func (d *Dielectric) Shade(c contact.Contact, rng *rand.Rand) (ShadeInfo, bool) {
	ratio := d.IndexOfRefraction
	if c.FrontFace {
		ratio = 1.0 / d.IndexOfRefraction
	}

	unitDir := vec3.Normalize(c.R.Slope)
	cosTheta := math.Min(-vec3.IProd(unitDir, c.N), 1.0)
	sinTheta := math.Sqrt(1.0 - cosTheta*cosTheta)

	var dir vec3.T
	if ratio*sinTheta > 1.0 || schlick(cosTheta, ratio) > rng.Float64() {
		// Total internal reflection, or a Fresnel reflection.
		dir = vec3.Reflect(unitDir, c.N)
	} else {
		dir = vec3.Refract(unitDir, c.N, ratio)
	}

	return ShadeInfo{
		Attenuation: vec3.T{1, 1, 1},
		IncidentRay: ray.Ray{
			Point: c.P,
			Slope: dir,
		},
	}, true
}

// schlick approximates the Fresnel reflectance at the given incidence cosine.
func schlick(cosine, ratio float64) float64 {
	r0 := (1 - ratio) / (1 + ratio)
	r0 = r0 * r0
	return r0 + (1-r0)*math.Pow(1-cosine, 5)
}
