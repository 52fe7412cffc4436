package camera

import (
	"math"
	"math/rand"
	"testing"

	"lumen/vmath/vec3"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func straightDown() Options {
	return Options{
		LookFrom:    vec3.T{0, 0, 0},
		LookAt:      vec3.T{0, 0, -1},
		Up:          vec3.T{0, 1, 0},
		VFOVDegrees: 90,
		AspectRatio: 16.0 / 9.0,
	}
}

func TestCenterRay(t *testing.T) {
	c, err := New(straightDown())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	r := c.ShootRay(0.5, 0.5, nil)
	if diff := cmp.Diff(r.Point, vec3.T{0, 0, 0}, approx); diff != "" {
		t.Errorf("Bad origin; diff (-got +want)\n%s", diff)
	}
	if diff := cmp.Diff(vec3.Normalize(r.Slope), vec3.T{0, 0, -1}, approx); diff != "" {
		t.Errorf("Center ray doesn't look down -z; diff (-got +want)\n%s", diff)
	}
}

func TestMatchesDefault(t *testing.T) {
	// 90 degrees gives a viewport two units tall, same as Default.
	c, err := New(straightDown())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if diff := cmp.Diff(c, Default(), approx); diff != "" {
		t.Errorf("New doesn't match Default; diff (-got +want)\n%s", diff)
	}
}

func TestCorners(t *testing.T) {
	c := Default()
	aspect := 16.0 / 9.0

	testCases := []struct {
		s, t float64
		want vec3.T
	}{
		{0, 0, vec3.T{-aspect, -1, -1}},
		{1, 0, vec3.T{aspect, -1, -1}},
		{0, 1, vec3.T{-aspect, 1, -1}},
		{1, 1, vec3.T{aspect, 1, -1}},
	}
	for _, tc := range testCases {
		r := c.ShootRay(tc.s, tc.t, nil)
		if diff := cmp.Diff(r.Slope, tc.want, approx); diff != "" {
			t.Errorf("ShootRay(%v, %v) wrong; diff (-got +want)\n%s", tc.s, tc.t, diff)
		}
	}
}

func TestBasisIsOrthonormal(t *testing.T) {
	c, err := New(Options{
		LookFrom:    vec3.T{13, 2, 3},
		LookAt:      vec3.T{0, 0, 0},
		Up:          vec3.T{0, 1, 0},
		VFOVDegrees: 20,
		AspectRatio: 3.0 / 2.0,
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	for _, v := range []vec3.T{c.U, c.V, c.W} {
		if math.Abs(v.Norm()-1) > 1e-9 {
			t.Errorf("Basis vector %v is not unit length", v)
		}
	}
	for _, pair := range [][2]vec3.T{{c.U, c.V}, {c.V, c.W}, {c.U, c.W}} {
		if d := vec3.IProd(pair[0], pair[1]); math.Abs(d) > 1e-9 {
			t.Errorf("Basis vectors %v and %v are not orthogonal", pair[0], pair[1])
		}
	}
	if c.V[1] <= 0 {
		t.Errorf("V should point roughly up; got %v", c.V)
	}
}

func TestLensKeepsFocalPoint(t *testing.T) {
	opts := straightDown()
	opts.Aperture = 2
	opts.FocusDistance = 3
	c, err := New(opts)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	target := vec3.AddVV(c.LowerLeftCorner, vec3.AddVV(vec3.MulVS(c.Horizontal, 0.3), vec3.MulVS(c.Vertical, 0.7)))

	rng := rand.New(rand.NewSource(1))
	sawJitter := false
	for i := 0; i < 100; i++ {
		r := c.ShootRay(0.3, 0.7, rng)

		if off := vec3.SubVV(r.Point, c.Origin); off.Norm() > c.LensRadius+1e-9 {
			t.Fatalf("Origin %v is outside the lens", r.Point)
		} else if !off.NearZero() {
			sawJitter = true
		}

		if diff := cmp.Diff(r.Eval(1), target, approx); diff != "" {
			t.Fatalf("Jittered ray misses the focal-plane target; diff (-got +want)\n%s", diff)
		}
	}
	if !sawJitter {
		t.Errorf("Lens never moved the ray origin")
	}
}

func TestNewRejectsDegenerateOptions(t *testing.T) {
	testCases := []struct {
		desc   string
		mutate func(*Options)
	}{
		{"zero fov", func(o *Options) { o.VFOVDegrees = 0 }},
		{"straight fov", func(o *Options) { o.VFOVDegrees = 180 }},
		{"zero aspect", func(o *Options) { o.AspectRatio = 0 }},
		{"negative aperture", func(o *Options) { o.Aperture = -1 }},
		{"coincident points", func(o *Options) { o.LookAt = o.LookFrom }},
		{"up along view", func(o *Options) { o.Up = vec3.T{0, 0, 1} }},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			opts := straightDown()
			tc.mutate(&opts)
			if _, err := New(opts); err == nil {
				t.Errorf("New accepted bad options %+v", opts)
			}
		})
	}
}
