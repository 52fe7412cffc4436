// Package scene ties geometry and materials together and traces paths through
// them.
package scene

import (
	"fmt"
	"math"
	"math/rand"

	"lumen/contact"
	"lumen/geometry"
	"lumen/material"
	"lumen/ray"
	"lumen/vmath/vec3"
)

// shadowAcneEpsilon is the smallest accepted contact parameter for scattered
// rays.  Anything closer is floating-point error at the previous contact.
const shadowAcneEpsilon = 0.001

// Background gives the radiance arriving along a ray that escapes the scene.
type Background func(r ray.Ray) vec3.T

// SkyGradient blends from white at the horizon to sky blue straight up.
func SkyGradient(r ray.Ray) vec3.T {
	unitDir := vec3.Normalize(r.Slope)
	t := 0.5 * (unitDir[1] + 1.0)
	return vec3.Lerp(t, vec3.T{1.0, 1.0, 1.0}, vec3.T{0.5, 0.7, 1.0})
}

// Scene is the read-only input to a render.  Nothing may mutate it once
// rendering starts; it is then safe for concurrent use.
type Scene struct {
	Materials []material.Material
	Elements  geometry.List

	// Sky lights escaping rays.  Nil means SkyGradient.
	Sky Background
}

// AddMaterial is a convenience function to register a material and get its
// index.
func (s *Scene) AddMaterial(m material.Material) int {
	s.Materials = append(s.Materials, m)
	return len(s.Materials) - 1
}

func (s *Scene) AddElement(g geometry.Geometry) int {
	s.Elements = append(s.Elements, g)
	return len(s.Elements) - 1
}

// AddSphere adds a sphere using the material at materialIndex.
func (s *Scene) AddSphere(center vec3.T, radius float64, materialIndex int) int {
	return s.AddElement(&geometry.Sphere{
		Center:        center,
		Radius:        radius,
		MaterialIndex: materialIndex,
	})
}

// Validate checks that every sphere refers to a registered material.
func (s *Scene) Validate() error {
	for i, e := range s.Elements {
		sphere, ok := e.(*geometry.Sphere)
		if !ok {
			continue
		}
		if sphere.MaterialIndex < 0 || sphere.MaterialIndex >= len(s.Materials) {
			return fmt.Errorf("element %d refers to material %d, but there are %d materials", i, sphere.MaterialIndex, len(s.Materials))
		}
		if sphere.Radius == 0 || math.IsNaN(sphere.Radius) {
			return fmt.Errorf("element %d has degenerate radius %v", i, sphere.Radius)
		}
	}
	return nil
}

func (s *Scene) SceneRayIntersect(query ray.RaySegment) (contact.Contact, bool) {
	return s.Elements.RayInto(query)
}

func (s *Scene) sky(r ray.Ray) vec3.T {
	if s.Sky == nil {
		return SkyGradient(r)
	}
	return s.Sky(r)
}

// SampleRay estimates the light arriving back along initialQuery, following
// at most depthLim bounces.  A path that hasn't escaped to the sky by then
// contributes nothing.
func (s *Scene) SampleRay(initialQuery ray.Ray, rng *rand.Rand, depthLim int) vec3.T {
	curK := vec3.T{1, 1, 1}
	curRay := initialQuery

	for i := 0; i < depthLim; i++ {
		query := ray.RaySegment{
			TheRay:     curRay,
			TheSegment: ray.ForwardSpan(shadowAcneEpsilon),
		}

		c, hit := s.SceneRayIntersect(query)
		if !hit {
			return vec3.MulVV(curK, s.sky(curRay))
		}

		shading, ok := s.Materials[c.MaterialIndex].Shade(c, rng)
		if !ok {
			return vec3.T{}
		}

		curK = vec3.MulVV(curK, shading.Attenuation)
		curRay = shading.IncidentRay
	}

	return vec3.T{}
}
