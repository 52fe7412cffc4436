package scenepack

import (
	"fmt"
	"math/rand"
	"sort"

	"lumen/camera"
	"lumen/material"
	"lumen/scene"
	"lumen/vmath/vec3"
)

var builtins = map[string]func(aspectRatio float64) (*Pack, error){
	"default": defaultScene,
	"random":  randomScene,
}

// BuiltinNames lists the scenes Builtin knows about.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builtin returns one of the built-in scenes.
func Builtin(name string, aspectRatio float64) (*Pack, error) {
	build, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("no built-in scene %q (have %v)", name, BuiltinNames())
	}
	return build(aspectRatio)
}

// defaultScene is three spheres on a large ground sphere: diffuse in the
// middle, a hollow glass ball on the left, fuzzy metal on the right.
func defaultScene(aspectRatio float64) (*Pack, error) {
	s := &scene.Scene{}

	ground := s.AddMaterial(&material.Lambertian{Albedo: vec3.T{0.8, 0.8, 0.0}})
	center := s.AddMaterial(&material.Lambertian{Albedo: vec3.T{0.1, 0.2, 0.5}})
	left := s.AddMaterial(&material.Dielectric{IndexOfRefraction: 1.5})
	right := s.AddMaterial(material.NewMetal(vec3.T{0.8, 0.6, 0.2}, 0.3))

	s.AddSphere(vec3.T{0.0, -100.5, -1.0}, 100.0, ground)
	s.AddSphere(vec3.T{0.0, 0.0, -1.0}, 0.5, center)
	s.AddSphere(vec3.T{-1.0, 0.0, -1.0}, 0.5, left)
	// Negative radius flips the normals, leaving a thin glass shell.
	s.AddSphere(vec3.T{-1.0, 0.0, -1.0}, -0.45, left)
	s.AddSphere(vec3.T{1.0, 0.0, -1.0}, 0.5, right)

	cam, err := camera.New(camera.Options{
		LookFrom:    vec3.T{0, 0, 0},
		LookAt:      vec3.T{0, 0, -1},
		Up:          vec3.T{0, 1, 0},
		VFOVDegrees: 90,
		AspectRatio: aspectRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("while building camera: %w", err)
	}

	return &Pack{Scene: s, Camera: cam}, nil
}

// randomSceneSeed keeps the random scene the same from run to run.
const randomSceneSeed = 1

func randomColor(rng *rand.Rand, lo, hi float64) vec3.T {
	return vec3.T{
		lo + (hi-lo)*rng.Float64(),
		lo + (hi-lo)*rng.Float64(),
		lo + (hi-lo)*rng.Float64(),
	}
}

// randomScene is a field of small random spheres around three large ones,
// viewed through a lens with a shallow depth of field.
func randomScene(aspectRatio float64) (*Pack, error) {
	rng := rand.New(rand.NewSource(randomSceneSeed))
	s := &scene.Scene{}

	ground := s.AddMaterial(&material.Lambertian{Albedo: vec3.T{0.5, 0.5, 0.5}})
	s.AddSphere(vec3.T{0, -1000, 0}, 1000, ground)

	glass := s.AddMaterial(&material.Dielectric{IndexOfRefraction: 1.5})

	for a := -11; a < 11; a++ {
		for b := -11; b < 11; b++ {
			chooseMat := rng.Float64()
			center := vec3.T{float64(a) + 0.9*rng.Float64(), 0.2, float64(b) + 0.9*rng.Float64()}

			if vec3.SubVV(center, vec3.T{4, 0.2, 0}).Norm() <= 0.9 {
				continue
			}

			var idx int
			switch {
			case chooseMat < 0.8:
				albedo := vec3.MulVV(randomColor(rng, 0, 1), randomColor(rng, 0, 1))
				idx = s.AddMaterial(&material.Lambertian{Albedo: albedo})
			case chooseMat < 0.95:
				albedo := randomColor(rng, 0.5, 1)
				fuzz := 0.5 * rng.Float64()
				idx = s.AddMaterial(material.NewMetal(albedo, fuzz))
			default:
				idx = glass
			}
			s.AddSphere(center, 0.2, idx)
		}
	}

	s.AddSphere(vec3.T{0, 1, 0}, 1.0, glass)
	s.AddSphere(vec3.T{-4, 1, 0}, 1.0, s.AddMaterial(&material.Lambertian{Albedo: vec3.T{0.4, 0.2, 0.1}}))
	s.AddSphere(vec3.T{4, 1, 0}, 1.0, s.AddMaterial(material.NewMetal(vec3.T{0.7, 0.6, 0.5}, 0.0)))

	cam, err := camera.New(camera.Options{
		LookFrom:      vec3.T{13, 2, 3},
		LookAt:        vec3.T{0, 0, 0},
		Up:            vec3.T{0, 1, 0},
		VFOVDegrees:   20,
		AspectRatio:   aspectRatio,
		Aperture:      0.1,
		FocusDistance: 10.0,
	})
	if err != nil {
		return nil, fmt.Errorf("while building camera: %w", err)
	}

	return &Pack{Scene: s, Camera: cam}, nil
}
