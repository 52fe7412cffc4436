package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lumen/framebuffer"
)

func TestImageRows(t *testing.T) {
	testCases := []struct {
		cols   int
		aspect float64
		want   int
	}{
		{400, 16.0 / 9.0, 225},
		{100, 1, 100},
		{3, 16.0 / 9.0, 1},
		{1, 100, 1},
	}
	for _, tc := range testCases {
		if got := imageRows(tc.cols, tc.aspect); got != tc.want {
			t.Errorf("imageRows(%d, %v) = %d, want %d", tc.cols, tc.aspect, got, tc.want)
		}
	}
}

// setFlags points the command-line flags at a tiny render in dir, restoring
// them when the test ends.
func setFlags(t *testing.T, dir string) {
	saved := []interface{}{*outputFile, *checkpointFile, *resume, *cols, *aspectRatio, *samplesPerPixel, *maxDepth, *tileSize, *parallelism, *seed, *sceneName, *sceneFile, *debugListen}
	t.Cleanup(func() {
		*outputFile = saved[0].(string)
		*checkpointFile = saved[1].(string)
		*resume = saved[2].(bool)
		*cols = saved[3].(int)
		*aspectRatio = saved[4].(float64)
		*samplesPerPixel = saved[5].(int)
		*maxDepth = saved[6].(int)
		*tileSize = saved[7].(int)
		*parallelism = saved[8].(int)
		*seed = saved[9].(int64)
		*sceneName = saved[10].(string)
		*sceneFile = saved[11].(string)
		*debugListen = saved[12].(string)
	})

	*outputFile = filepath.Join(dir, "out.ppm")
	*checkpointFile = filepath.Join(dir, "out.ckpt")
	*resume = false
	*cols = 8
	*aspectRatio = 2
	*samplesPerPixel = 2
	*maxDepth = 4
	*tileSize = 3
	*parallelism = 2
	*seed = 1
	*sceneName = "default"
	*sceneFile = ""
	*debugListen = ""
}

func readCheckpoint(t *testing.T, p string) *framebuffer.Framebuffer {
	t.Helper()
	f, err := os.Open(p)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer f.Close()
	fb, err := framebuffer.ReadFramebuffer(f)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return fb
}

func TestRenderAndResume(t *testing.T) {
	dir := t.TempDir()
	setFlags(t, dir)
	ctx := context.Background()

	if err := do(ctx); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	ppm, err := os.ReadFile(*outputFile)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.HasPrefix(string(ppm), "P3\n8 4\n255\n") {
		t.Errorf("Bad PPM header: %q", string(ppm[:20]))
	}
	if got := readCheckpoint(t, *checkpointFile).TotalSamples(); got != 64 {
		t.Errorf("Checkpoint holds %d samples, want 64", got)
	}

	// Without -resume, existing outputs are never clobbered.
	if err := do(ctx); err == nil {
		t.Errorf("Second render without -resume succeeded")
	}

	*resume = true
	if err := do(ctx); err != nil {
		t.Fatalf("Unexpected error resuming: %v", err)
	}
	if got := readCheckpoint(t, *checkpointFile).TotalSamples(); got != 128 {
		t.Errorf("Resumed checkpoint holds %d samples, want 128", got)
	}

	// The checkpoint must match the requested image size.
	*cols = 10
	if err := do(ctx); err == nil {
		t.Errorf("Resume with a different image size succeeded")
	}
}

func TestResumeNeedsCheckpoint(t *testing.T) {
	setFlags(t, t.TempDir())
	*resume = true
	*checkpointFile = ""
	if err := do(context.Background()); err == nil {
		t.Errorf("Resume without a checkpoint file succeeded")
	}
}

func TestSceneFile(t *testing.T) {
	dir := t.TempDir()
	setFlags(t, dir)

	*sceneFile = filepath.Join(dir, "scene.yaml")
	*outputFile = filepath.Join(dir, "out.png")
	*checkpointFile = ""
	scene := "materials:\n  - {name: m, lambertian: {albedo: [0.5, 0.5, 0.5]}}\nspheres:\n  - {center: [0, 0, -1], radius: 0.5, material: m}\n"
	if err := os.WriteFile(*sceneFile, []byte(scene), 0644); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if err := do(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := os.Stat(*outputFile); err != nil {
		t.Errorf("No output image: %v", err)
	}
}

func TestBadFlags(t *testing.T) {
	testCases := []struct {
		desc string
		set  func()
	}{
		{"zero cols", func() { *cols = 0 }},
		{"bad aspect", func() { *aspectRatio = -1 }},
		{"unknown format", func() { *outputFile = filepath.Join(os.TempDir(), "out.jpg") }},
		{"unknown scene", func() { *sceneName = "nope" }},
		{"zero samples", func() { *samplesPerPixel = 0 }},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			setFlags(t, t.TempDir())
			tc.set()
			if err := do(context.Background()); err == nil {
				t.Errorf("do() accepted bad flags")
			}
		})
	}
}

func TestCancelledRenderKeepsCheckpoint(t *testing.T) {
	dir := t.TempDir()
	setFlags(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := do(ctx); err == nil {
		t.Fatalf("Cancelled render succeeded")
	}
	if _, err := os.Stat(*checkpointFile); err != nil {
		t.Errorf("Cancelled render did not save a checkpoint: %v", err)
	}
	if _, err := os.Stat(*outputFile); err == nil {
		t.Errorf("Cancelled render wrote an output image")
	}
}

func TestFailedRunFlushesCPUProfile(t *testing.T) {
	dir := t.TempDir()
	setFlags(t, dir)

	savedProfile := *cpuProfile
	t.Cleanup(func() { *cpuProfile = savedProfile })
	*cpuProfile = filepath.Join(dir, "cpu.prof")
	*cols = 0

	if err := run(); err == nil {
		t.Fatalf("run() succeeded with zero cols")
	}

	info, err := os.Stat(*cpuProfile)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if info.Size() == 0 {
		t.Errorf("CPU profile is empty after a failed run")
	}
}
