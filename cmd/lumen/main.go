// lumen renders a scene of spheres with a stochastic path tracer.
//
// Renders can be checkpointed and resumed to add more samples:
//
//	lumen -output-file=out.png -checkpoint-file=out.ckpt -samples-per-pixel=50
//	lumen -output-file=out.png -checkpoint-file=out.ckpt -samples-per-pixel=50 -resume
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"
	"time"

	"lumen/blobstore"
	"lumen/framebuffer"
	"lumen/imageout"
	"lumen/render"
	"lumen/scenepack"
	"lumen/statusz"

	"cloud.google.com/go/profiler"
	"contrib.go.opencensus.io/exporter/stackdriver"
	cloudtrace "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"github.com/golang/glog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/term"
	"golang.org/x/time/rate"
)

var (
	outputFile     = flag.String("output-file", "output.png", "Output image.  The format follows the extension (.ppm, .png, .bmp, .tif).  gs://bucket/object writes to GCS.")
	checkpointFile = flag.String("checkpoint-file", "", "Where to save raw samples so the render can be resumed.  Empty disables checkpoints.")
	resume         = flag.Bool("resume", false, "Should we load the checkpoint file and add more samples to it?")

	cols        = flag.Int("cols", 400, "Output image columns")
	aspectRatio = flag.Float64("aspect-ratio", 16.0/9.0, "Output image width/height")

	samplesPerPixel = flag.Int("samples-per-pixel", 100, "Number of samples to add to each pixel")
	maxDepth        = flag.Int("max-depth", 50, "Maximum number of bounces to consider")
	tileSize        = flag.Int("tile-size", 32, "Side length of the square tiles handed to workers")
	parallelism     = flag.Int("parallelism", 0, "Number of tiles to render at once.  Zero means one per CPU.")
	seed            = flag.Int64("seed", 0, "Seed for the random streams")

	sceneName = flag.String("scene", "default", fmt.Sprintf("Built-in scene to render, one of %v", scenepack.BuiltinNames()))
	sceneFile = flag.String("scene-file", "", "YAML scene file to render instead of a built-in scene")

	debugListen = flag.String("debug-listen", "", "Server address:port for debug endpoint.  Empty disables it.")
	cpuProfile  = flag.String("cpu-profile", "", "write cpu profile to `file`")

	cloudProfiling = flag.Bool("cloud-profiling", false, "Enable Cloud Profiler?")

	monitoring           = flag.Bool("monitoring", false, "Enable monitoring?")
	monitoringProject    = flag.String("monitoring-project", "", "Override project used for monitoring integration.  If not specified, the project associated with Application Default Credentials is used.")
	monitoringTraceRatio = flag.Float64("monitoring-trace-ratio", 0.0001, "What ratio of traces should be exported?")
)

func main() {
	flag.Parse()

	glog.CopyStandardLogTo("INFO")

	glog.Infof("flags:")
	glog.Infof("output-file: %v", *outputFile)
	glog.Infof("checkpoint-file: %v", *checkpointFile)
	glog.Infof("resume: %v", *resume)

	glog.Infof("cols: %v", *cols)
	glog.Infof("aspect-ratio: %v", *aspectRatio)

	glog.Infof("samples-per-pixel: %v", *samplesPerPixel)
	glog.Infof("max-depth: %v", *maxDepth)
	glog.Infof("tile-size: %v", *tileSize)
	glog.Infof("parallelism: %v", *parallelism)
	glog.Infof("seed: %v", *seed)

	glog.Infof("scene: %v", *sceneName)
	glog.Infof("scene-file: %v", *sceneFile)

	glog.Infof("debug-listen: %v", *debugListen)
	glog.Infof("cpu-profile: %v", *cpuProfile)
	glog.Infof("cloud-profiling: %v", *cloudProfiling)

	glog.Infof("monitoring: %v", *monitoring)
	glog.Infof("monitoring-project: %v", *monitoringProject)
	glog.Infof("monitoring-trace-ratio: %v", *monitoringTraceRatio)

	if err := run(); err != nil {
		glog.Exitf("Error: %v", err)
	}
	glog.Flush()
}

// run sets up profiling and monitoring around do.  It returns rather than
// exiting so that its deferred shutdowns always run.
func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			return fmt.Errorf("could not create CPU profile: %w", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return fmt.Errorf("could not start CPU profile: %w", err)
		}
		defer pprof.StopCPUProfile()
	}

	// Cloud Profiler initialization, best done as early as possible.
	if *cloudProfiling {
		if err := profiler.Start(profiler.Config{
			Service:        "lumen",
			ServiceVersion: "0.0.1",
			ProjectID:      *monitoringProject,
		}); err != nil {
			return fmt.Errorf("while initializing profiler: %w", err)
		}
	}

	if *monitoring {
		traceOpts := []cloudtrace.Option{}
		if *monitoringProject != "" {
			traceOpts = append(traceOpts, cloudtrace.WithProjectID(*monitoringProject))
		}

		_, traceShutdown, err := cloudtrace.InstallNewPipeline(traceOpts, sdktrace.WithSampler(sdktrace.TraceIDRatioBased(*monitoringTraceRatio)))
		if err != nil {
			return fmt.Errorf("while installing Cloud Trace OpenTelemetry trace pipeline: %w", err)
		}
		defer traceShutdown()

		if err := render.RegisterMetrics(); err != nil {
			return fmt.Errorf("while registering metrics: %w", err)
		}

		exporter, err := stackdriver.NewExporter(stackdriver.Options{
			ProjectID:         *monitoringProject,
			MetricPrefix:      "lumen",
			ReportingInterval: 60 * time.Second,
		})
		if err != nil {
			return fmt.Errorf("while creating Stackdriver metrics exporter: %w", err)
		}
		if err := exporter.StartMetricsExporter(); err != nil {
			return fmt.Errorf("while starting Stackdriver metrics exporter: %w", err)
		}
		defer exporter.Flush()
		defer exporter.StopMetricsExporter()
	}

	// Interrupting a render still saves the checkpoint.
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalCh)
	go func() {
		select {
		case sig := <-signalCh:
			glog.Warningf("Got %v, stopping render", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return do(ctx)
}

// imageRows is the row count that gives cols columns the requested aspect
// ratio.
func imageRows(cols int, aspectRatio float64) int {
	rows := int(float64(cols) / aspectRatio)
	if rows < 1 {
		rows = 1
	}
	return rows
}

func loadScene(ctx context.Context, store *blobstore.Store, imageAspect float64) (*scenepack.Pack, error) {
	if *sceneFile == "" {
		return scenepack.Builtin(*sceneName, imageAspect)
	}

	r, err := store.Open(ctx, *sceneFile)
	if err != nil {
		return nil, fmt.Errorf("while opening scene file: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("while reading scene file: %w", err)
	}

	pack, err := scenepack.ParseScene(data, imageAspect)
	if err != nil {
		return nil, fmt.Errorf("while parsing scene file %q: %w", *sceneFile, err)
	}
	return pack, nil
}

func loadCheckpoint(ctx context.Context, store *blobstore.Store, rows int) (*framebuffer.Framebuffer, error) {
	r, err := store.Open(ctx, *checkpointFile)
	if err != nil {
		return nil, fmt.Errorf("while opening checkpoint: %w", err)
	}
	defer r.Close()

	sampleDB, err := framebuffer.ReadFramebuffer(r)
	if err != nil {
		return nil, fmt.Errorf("while reading checkpoint: %w", err)
	}

	if sampleDB.ColSize != *cols {
		return nil, fmt.Errorf("resumption requested, but the checkpoint doesn't have the right number of columns (got %d, want %d)", sampleDB.ColSize, *cols)
	}
	if sampleDB.RowSize != rows {
		return nil, fmt.Errorf("resumption requested, but the checkpoint doesn't have the right number of rows (got %d, want %d)", sampleDB.RowSize, rows)
	}
	return sampleDB, nil
}

func saveCheckpoint(ctx context.Context, store *blobstore.Store, sampleDB *framebuffer.Framebuffer) error {
	w, err := store.Create(ctx, *checkpointFile)
	if err != nil {
		return fmt.Errorf("while creating checkpoint: %w", err)
	}
	if err := framebuffer.WriteFramebuffer(sampleDB, w); err != nil {
		w.Abort()
		return fmt.Errorf("while writing checkpoint: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("while closing checkpoint: %w", err)
	}
	return nil
}

func saveImage(ctx context.Context, store *blobstore.Store, format imageout.Format, sampleDB *framebuffer.Framebuffer) error {
	w, err := store.Create(ctx, *outputFile)
	if err != nil {
		return fmt.Errorf("while creating output image: %w", err)
	}
	if err := imageout.Encode(w, sampleDB, format); err != nil {
		w.Abort()
		return fmt.Errorf("while writing output image: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("while closing output image: %w", err)
	}
	return nil
}

// newProgressFunction feeds the tracker and, when stderr is a terminal, keeps
// a progress line updated there a few times a second.
func newProgressFunction(tracker *statusz.Tracker) render.ProgressFunction {
	showProgress := term.IsTerminal(int(os.Stderr.Fd()))
	limiter := rate.NewLimiter(rate.Every(250*time.Millisecond), 1)

	return func(cur, tot int) {
		tracker.Progress(cur, tot)
		if !showProgress {
			return
		}
		if cur == tot || limiter.Allow() {
			fmt.Fprintf(os.Stderr, "\r%d/%d %d%%", cur, tot, 100*cur/tot)
		}
	}
}

func do(ctx context.Context) error {
	if *cols <= 0 {
		return fmt.Errorf("cols must be positive, got %d", *cols)
	}
	if !(*aspectRatio > 0) || math.IsInf(*aspectRatio, 0) {
		return fmt.Errorf("aspect ratio must be positive, got %v", *aspectRatio)
	}
	rows := imageRows(*cols, *aspectRatio)
	imageAspect := float64(*cols) / float64(rows)

	// Fail on a bad output name before spending any time rendering.
	format, err := imageout.FormatFromPath(*outputFile)
	if err != nil {
		return fmt.Errorf("while choosing output format: %w", err)
	}

	store := blobstore.New()
	defer store.Close()

	var sampleDB *framebuffer.Framebuffer
	if *resume {
		if *checkpointFile == "" {
			return fmt.Errorf("resumption requested, but no checkpoint file given")
		}
		sampleDB, err = loadCheckpoint(ctx, store, rows)
		if err != nil {
			return err
		}
		glog.Infof("Resuming from checkpoint with %d samples", sampleDB.TotalSamples())
	} else {
		// Check that the outputs don't exist, to avoid blowing away hours of
		// render time.
		for _, p := range []string{*outputFile, *checkpointFile} {
			if p == "" {
				continue
			}
			exists, err := store.Exists(ctx, p)
			if err != nil {
				return fmt.Errorf("while checking for existing output %q: %w", p, err)
			}
			if exists {
				return fmt.Errorf("resumption not requested, but %q exists", p)
			}
		}
		sampleDB = framebuffer.New(*cols, rows)
	}

	pack, err := loadScene(ctx, store, imageAspect)
	if err != nil {
		return err
	}

	tracker := statusz.NewTracker()
	if *debugListen != "" {
		debugServer := statusz.NewDebugServer(*debugListen, tracker)
		go func() {
			if err := debugServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				glog.Errorf("Debug server died: %v", err)
			}
		}()
		defer debugServer.Close()
	}

	options := &render.RenderOptions{
		SamplesPerPixel: *samplesPerPixel,
		MaxDepth:        *maxDepth,
		TileSize:        *tileSize,
		Parallelism:     *parallelism,
		Seed:            *seed,
	}

	totalSamples := *samplesPerPixel * *cols * rows
	tracker.Start(fmt.Sprintf("%dx%d, %d samples/pixel, max depth %d", *cols, rows, *samplesPerPixel, *maxDepth), totalSamples)

	start := time.Now()
	renderErr := render.RenderScene(ctx, pack.Scene, pack.Camera, options, sampleDB, newProgressFunction(tracker))
	fmt.Fprintf(os.Stderr, "\n")
	tracker.Finish()

	if renderErr != nil && !errors.Is(renderErr, context.Canceled) {
		return fmt.Errorf("while rendering: %w", renderErr)
	}
	glog.Infof("Render pass took %v", time.Since(start))

	// A cancelled render still has whole tiles worth keeping.
	saveCtx := context.WithoutCancel(ctx)
	if *checkpointFile != "" {
		if err := saveCheckpoint(saveCtx, store, sampleDB); err != nil {
			return err
		}
		glog.Infof("Wrote checkpoint %s", *checkpointFile)
	}

	if renderErr != nil {
		return fmt.Errorf("while rendering: %w", renderErr)
	}

	if err := saveImage(saveCtx, store, format, sampleDB); err != nil {
		return err
	}
	glog.Infof("Wrote %s", *outputFile)

	return nil
}
