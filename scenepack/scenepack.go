// Package scenepack loads scenes and their cameras from YAML scene files, and
// provides a few built-in scenes.
//
// A scene file looks like:
//
//	camera:
//	  look_from: [13, 2, 3]
//	  look_at: [0, 0, 0]
//	  vfov: 20
//	  aperture: 0.1
//	  focus_distance: 10
//	materials:
//	  - name: ground
//	    lambertian: {albedo: [0.5, 0.5, 0.5]}
//	  - name: glass
//	    dielectric: {index_of_refraction: 1.5}
//	spheres:
//	  - {center: [0, -1000, 0], radius: 1000, material: ground}
//	  - {center: [0, 1, 0], radius: 1, material: glass}
package scenepack

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"lumen/camera"
	"lumen/material"
	"lumen/ray"
	"lumen/scene"
	"lumen/vmath/vec3"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

// Error reports a problem with one field of a scene file.
type Error struct {
	// Field is the path to the offending field, like "spheres[3].radius".
	// Empty for problems with the file as a whole.
	Field   string
	Message string

	inner error
	frame xerrors.Frame
}

func newError(field, message string, inner error) *Error {
	return &Error{
		Field:   field,
		Message: message,
		inner:   inner,
		frame:   xerrors.Caller(1),
	}
}

func (e *Error) prefix() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *Error) Error() string {
	if e.inner == nil {
		return e.prefix()
	}
	return fmt.Sprintf("%s: %v", e.prefix(), e.inner)
}

func (e *Error) Format(f fmt.State, c rune) { // implements fmt.Formatter
	xerrors.FormatError(e, f, c)
}

func (e *Error) FormatError(p xerrors.Printer) error { // implements xerrors.Formatter
	p.Print(e.prefix())
	if p.Detail() {
		e.frame.Format(p)
	}
	return e.inner
}

func (e *Error) Unwrap() error {
	return e.inner
}

// Pack is a scene together with the camera it is meant to be viewed through.
type Pack struct {
	Scene  *scene.Scene
	Camera *camera.Camera
}

type fileCamera struct {
	LookFrom      vec3.T  `yaml:"look_from"`
	LookAt        vec3.T  `yaml:"look_at"`
	Up            *vec3.T `yaml:"up"`
	VFOV          float64 `yaml:"vfov"`
	Aperture      float64 `yaml:"aperture"`
	FocusDistance float64 `yaml:"focus_distance"`
}

type fileSky struct {
	Horizon vec3.T `yaml:"horizon"`
	Zenith  vec3.T `yaml:"zenith"`
}

type fileLambertian struct {
	Albedo vec3.T `yaml:"albedo"`
}

type fileMetal struct {
	Albedo vec3.T  `yaml:"albedo"`
	Fuzz   float64 `yaml:"fuzz"`
}

type fileDielectric struct {
	IndexOfRefraction float64 `yaml:"index_of_refraction"`
}

type fileMaterial struct {
	Name       string          `yaml:"name"`
	Lambertian *fileLambertian `yaml:"lambertian"`
	Metal      *fileMetal      `yaml:"metal"`
	Dielectric *fileDielectric `yaml:"dielectric"`
}

type fileSphere struct {
	Center   vec3.T  `yaml:"center"`
	Radius   float64 `yaml:"radius"`
	Material string  `yaml:"material"`
}

type file struct {
	Camera    *fileCamera    `yaml:"camera"`
	Sky       *fileSky       `yaml:"sky"`
	Materials []fileMaterial `yaml:"materials"`
	Spheres   []fileSphere   `yaml:"spheres"`
}

// LoadScene reads a scene file from disk.  aspectRatio is the width/height
// ratio of the image the camera will fill.
func LoadScene(fileName string, aspectRatio float64) (*Pack, error) {
	fileBytes, err := os.ReadFile(fileName)
	if err != nil {
		return nil, fmt.Errorf("while reading scene file: %w", err)
	}

	pack, err := ParseScene(fileBytes, aspectRatio)
	if err != nil {
		return nil, fmt.Errorf("while parsing scene file %q: %w", fileName, err)
	}
	return pack, nil
}

// ParseScene builds a scene and camera from the contents of a scene file.
// Unknown fields are rejected.
func ParseScene(data []byte, aspectRatio float64) (*Pack, error) {
	in := &file{}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(in); err != nil && !errors.Is(err, io.EOF) {
		return nil, newError("", "malformed scene file", err)
	}

	s := &scene.Scene{}

	if in.Sky != nil {
		horizon, zenith := in.Sky.Horizon, in.Sky.Zenith
		s.Sky = func(r ray.Ray) vec3.T {
			t := 0.5 * (vec3.Normalize(r.Slope)[1] + 1.0)
			return vec3.Lerp(t, horizon, zenith)
		}
	}

	materialIndex := map[string]int{}
	for i, m := range in.Materials {
		field := fmt.Sprintf("materials[%d]", i)

		if m.Name == "" {
			return nil, newError(field+".name", "material must be named", nil)
		}
		if _, ok := materialIndex[m.Name]; ok {
			return nil, newError(field+".name", fmt.Sprintf("duplicate material name %q", m.Name), nil)
		}

		mat, err := convertMaterial(field, &m)
		if err != nil {
			return nil, err
		}
		materialIndex[m.Name] = s.AddMaterial(mat)
	}

	for i, sp := range in.Spheres {
		field := fmt.Sprintf("spheres[%d]", i)

		idx, ok := materialIndex[sp.Material]
		if !ok {
			return nil, newError(field+".material", fmt.Sprintf("no material named %q", sp.Material), nil)
		}
		if sp.Radius == 0 {
			return nil, newError(field+".radius", "radius must be nonzero", nil)
		}
		s.AddSphere(sp.Center, sp.Radius, idx)
	}

	cam, err := convertCamera(in.Camera, aspectRatio)
	if err != nil {
		return nil, err
	}

	return &Pack{Scene: s, Camera: cam}, nil
}

func convertMaterial(field string, m *fileMaterial) (material.Material, error) {
	set := 0
	for _, present := range []bool{m.Lambertian != nil, m.Metal != nil, m.Dielectric != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return nil, newError(field, "exactly one of lambertian, metal, or dielectric must be set", nil)
	}

	switch {
	case m.Lambertian != nil:
		return &material.Lambertian{Albedo: m.Lambertian.Albedo}, nil
	case m.Metal != nil:
		if m.Metal.Fuzz < 0 || m.Metal.Fuzz > 1 {
			return nil, newError(field+".metal.fuzz", fmt.Sprintf("fuzz %v is outside [0, 1]", m.Metal.Fuzz), nil)
		}
		return material.NewMetal(m.Metal.Albedo, m.Metal.Fuzz), nil
	default:
		if !(m.Dielectric.IndexOfRefraction > 0) {
			return nil, newError(field+".dielectric.index_of_refraction", fmt.Sprintf("index of refraction %v is not positive", m.Dielectric.IndexOfRefraction), nil)
		}
		return &material.Dielectric{IndexOfRefraction: m.Dielectric.IndexOfRefraction}, nil
	}
}

func convertCamera(in *fileCamera, aspectRatio float64) (*camera.Camera, error) {
	opts := camera.Options{
		LookFrom:    vec3.T{0, 0, 0},
		LookAt:      vec3.T{0, 0, -1},
		Up:          vec3.T{0, 1, 0},
		VFOVDegrees: 90,
		AspectRatio: aspectRatio,
	}

	if in != nil {
		opts.LookFrom = in.LookFrom
		opts.LookAt = in.LookAt
		if in.Up != nil {
			opts.Up = *in.Up
		}
		if in.VFOV != 0 {
			opts.VFOVDegrees = in.VFOV
		}
		opts.Aperture = in.Aperture
		opts.FocusDistance = in.FocusDistance
	}

	cam, err := camera.New(opts)
	if err != nil {
		return nil, newError("camera", "bad camera", err)
	}
	return cam, nil
}
