package render

import (
	"fmt"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	depthKey = tag.MustNewKey("max_depth")

	samplesMeasure     = stats.Int64("lumen/samples", "Camera samples traced", stats.UnitDimensionless)
	tileLatencyMeasure = stats.Float64("lumen/tile_latency", "Wall time spent rendering one tile", stats.UnitMilliseconds)
)

var (
	SamplesView = &view.View{
		Name:        "lumen/samples",
		Description: "Total camera samples traced",

		TagKeys: []tag.Key{depthKey},

		Measure:     samplesMeasure,
		Aggregation: view.Sum(),
	}

	TileLatencyView = &view.View{
		Name:        "lumen/tile_latency",
		Description: "Distribution of per-tile render times",

		Measure:     tileLatencyMeasure,
		Aggregation: view.Distribution(1, 5, 25, 100, 500, 2500, 10000, 60000),
	}
)

// RegisterMetrics registers the renderer's views with OpenCensus.
func RegisterMetrics() error {
	if err := view.Register(SamplesView, TileLatencyView); err != nil {
		return fmt.Errorf("while registering views: %w", err)
	}
	return nil
}
