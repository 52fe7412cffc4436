// Package render drives a scene render across a pool of workers.
package render

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"strconv"
	"sync"
	"time"

	"lumen/camera"
	"lumen/framebuffer"
	"lumen/scene"
	"lumen/vmath/vec3"

	"github.com/golang/glog"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const defaultTileSize = 32

type RenderOptions struct {
	// SamplesPerPixel is the number of samples added to each pixel by this
	// render.  A resumed render adds this many on top of what is there.
	SamplesPerPixel int

	// MaxDepth bounds the number of bounces along each path.
	MaxDepth int

	// TileSize is the side length of the square tiles handed to workers.
	// Defaults to 32.
	TileSize int

	// Parallelism is the number of tiles rendered at once.  Defaults to the
	// number of CPUs.  It has no effect on the rendered image.
	Parallelism int

	// Seed fixes the random streams.  Two renders with the same scene, camera,
	// options, and starting framebuffer produce identical results.
	Seed int64
}

func (o *RenderOptions) validate() error {
	if o.SamplesPerPixel <= 0 {
		return fmt.Errorf("samples per pixel must be positive, got %d", o.SamplesPerPixel)
	}
	if o.MaxDepth < 0 {
		return fmt.Errorf("max depth must not be negative, got %d", o.MaxDepth)
	}
	return nil
}

// ProgressFunction receives the number of samples traced so far and the total
// the render will trace.
type ProgressFunction func(int, int)

// tileWorker renders a single tile into the shared framebuffer.
type tileWorker struct {
	sampleDB *framebuffer.Framebuffer
	rng      *rand.Rand

	maxDepth        int
	samplesPerPixel int

	tile   Tile
	scene  *scene.Scene
	camera *camera.Camera
}

// imagePlaneStep is the divisor that maps pixel indices onto [0, 1].  A
// single-pixel dimension would otherwise divide by zero.
func imagePlaneStep(size int) float64 {
	if size <= 1 {
		return 1
	}
	return float64(size - 1)
}

func (w *tileWorker) Render() {
	colStep := imagePlaneStep(w.sampleDB.ColSize)
	rowStep := imagePlaneStep(w.sampleDB.RowSize)

	for cr := w.tile.RowSrc; cr < w.tile.RowLim; cr++ {
		for cc := w.tile.ColSrc; cc < w.tile.ColLim; cc++ {
			sum := vec3.T{}
			for cs := 0; cs < w.samplesPerPixel; cs++ {
				s := (float64(cc) + w.rng.Float64()) / colStep
				t := (float64(cr) + w.rng.Float64()) / rowStep
				curQuery := w.camera.ShootRay(s, t, w.rng)
				sum = vec3.AddVV(sum, w.scene.SampleRay(curQuery, w.rng, w.maxDepth))
			}
			w.sampleDB.RecordSamples(cc, cr, sum, w.samplesPerPixel)
		}
	}
}

// tileSeed derives an independent stream seed for one tile.  Mixing in the
// samples already present in the tile keeps a resumed render from replaying
// an earlier pass's random choices.
// tileMinSamples returns the smallest sample count among the tile's pixels.
// A cancelled render leaves each tile either untouched or complete, so tiles
// of one framebuffer can start from different counts.
func tileMinSamples(sampleDB *framebuffer.Framebuffer, tile Tile) int {
	min := sampleDB.ReadSample(tile.ColSrc, tile.RowSrc).Count
	for r := tile.RowSrc; r < tile.RowLim; r++ {
		for c := tile.ColSrc; c < tile.ColLim; c++ {
			if n := sampleDB.ReadSample(c, r).Count; n < min {
				min = n
			}
		}
	}
	return int(min)
}

func tileSeed(seed int64, tileIndex, existingSamples int) int64 {
	x := uint64(seed)
	x ^= uint64(tileIndex) * 0x9e3779b97f4a7c15
	x ^= uint64(existingSamples) * 0xc2b2ae3d27d4eb4f

	// splitmix64 finalizer.
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return int64(x)
}

// RenderScene adds options.SamplesPerPixel samples to every pixel of sampleDB.
//
// Tiles are rendered concurrently, each writing only its own pixels.  If ctx is
// cancelled, no further tiles are started and the context's error is returned;
// pixels of tiles that never ran are left as they were.
func RenderScene(ctx context.Context, sc *scene.Scene, cam *camera.Camera, options *RenderOptions, sampleDB *framebuffer.Framebuffer, progressFunction ProgressFunction) error {
	tracer := otel.Tracer("lumen/render")
	var span trace.Span
	ctx, span = tracer.Start(ctx, "RenderScene")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("cols", int64(sampleDB.ColSize)),
		attribute.Int64("rows", int64(sampleDB.RowSize)),
		attribute.Int64("samples_per_pixel", int64(options.SamplesPerPixel)),
	)

	if err := options.validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := sc.Validate(); err != nil {
		err := fmt.Errorf("while validating scene: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	tileSize := options.TileSize
	if tileSize <= 0 {
		tileSize = defaultTileSize
	}
	parallelism := options.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}

	ctx, err := tag.New(ctx, tag.Insert(depthKey, strconv.Itoa(options.MaxDepth)))
	if err != nil {
		err := fmt.Errorf("while tagging context: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	existingSamples := sampleDB.MinSamples()

	tiles := SplitTiles(sampleDB.ColSize, sampleDB.RowSize, tileSize)
	totalSamples := options.SamplesPerPixel * sampleDB.ColSize * sampleDB.RowSize

	glog.Infof("Rendering %dx%d at %d samples/pixel (max depth %d): %d tiles, parallelism %d, %d existing samples/pixel",
		sampleDB.ColSize, sampleDB.RowSize, options.SamplesPerPixel, options.MaxDepth, len(tiles), parallelism, existingSamples)

	curProgress := 0
	progressMutex := sync.Mutex{}
	reportProgress := func(samples int) {
		progressMutex.Lock()
		defer progressMutex.Unlock()
		curProgress += samples
		if progressFunction != nil {
			progressFunction(curProgress, totalSamples)
		}
	}

	// Use errgroup and semaphore to limit concurrency.
	eg, ctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(parallelism))

	for i, tile := range tiles {
		i, tile := i, tile

		if err := sem.Acquire(ctx, 1); err != nil {
			if waitErr := eg.Wait(); waitErr != nil {
				err = waitErr
			}
			err := fmt.Errorf("while acquiring concurrency limiter semaphore: %w", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}

		eg.Go(func() error {
			defer sem.Release(1)
			if err := ctx.Err(); err != nil {
				return err
			}

			worker := &tileWorker{
				sampleDB:        sampleDB,
				rng:             rand.New(rand.NewSource(tileSeed(options.Seed, i, tileMinSamples(sampleDB, tile)))),
				maxDepth:        options.MaxDepth,
				samplesPerPixel: options.SamplesPerPixel,
				tile:            tile,
				scene:           sc,
				camera:          cam,
			}
			renderTile(ctx, tracer, i, worker)

			reportProgress(tile.Pixels() * options.SamplesPerPixel)
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		err := fmt.Errorf("while waiting for completion of errgroup: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

func renderTile(ctx context.Context, tracer trace.Tracer, index int, w *tileWorker) {
	ctx, span := tracer.Start(ctx, "renderTile")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("tile", int64(index)),
		attribute.Int64("col_src", int64(w.tile.ColSrc)),
		attribute.Int64("col_lim", int64(w.tile.ColLim)),
		attribute.Int64("row_src", int64(w.tile.RowSrc)),
		attribute.Int64("row_lim", int64(w.tile.RowLim)),
	)

	start := time.Now()
	w.Render()
	elapsed := time.Since(start)

	if glog.V(1) {
		glog.Infof("Rendered tile %d %+v in %v", index, w.tile, elapsed)
	}

	stats.Record(ctx,
		samplesMeasure.M(int64(w.tile.Pixels()*w.samplesPerPixel)),
		tileLatencyMeasure.M(float64(elapsed)/float64(time.Millisecond)))
}
