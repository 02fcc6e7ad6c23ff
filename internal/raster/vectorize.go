package raster

import (
	"context"

	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	"github.com/sells-group/railway-atlas/internal/gis"
	"github.com/sells-group/railway-atlas/internal/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options controls vectorization.
type Options struct {
	BlockRows int     // rows per independently traced block
	Workers   int     // blocks traced concurrently
	Tolerance float64 // simplification tolerance in raster CRS units
}

func (o Options) withDefaults() Options {
	if o.BlockRows <= 0 {
		o.BlockRows = 256
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	return o
}

// Vectorize classifies the clipped cells and streams one polygon per
// connected same-class region of each block. Features arrive in block order,
// then class, then position of the region's first cell, whatever the number
// of workers. Both channels are closed when processing completes.
func Vectorize(ctx context.Context, c *Clipped, cls Classifier, opts Options) (<-chan model.VectorizedCell, <-chan error) {
	outCh := make(chan model.VectorizedCell, 64)
	errCh := make(chan error, 1)
	opts = opts.withDefaults()

	go func() {
		defer close(outCh)
		defer close(errCh)

		log := zap.L().With(zap.String("component", "raster.vectorize"), zap.String("layer", c.Layer))
		classes := classify(c, cls)
		blocks := (c.Spec.Rows + opts.BlockRows - 1) / opts.BlockRows

		var emitted int
		for start := 0; start < blocks; start += opts.Workers {
			end := min(start+opts.Workers, blocks)
			results := make([][]model.VectorizedCell, end-start)

			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(opts.Workers)
			for b := start; b < end; b++ {
				g.Go(func() error {
					if err := gctx.Err(); err != nil {
						return err
					}
					results[b-start] = traceBlock(c, classes, b, opts)
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				errCh <- eris.Wrap(err, "raster: vectorize")
				return
			}

			for _, feats := range results {
				for _, f := range feats {
					select {
					case outCh <- f:
						emitted++
					case <-ctx.Done():
						errCh <- eris.Wrap(ctx.Err(), "raster: vectorize cancelled")
						return
					}
				}
			}
		}
		log.Info("raster vectorized", zap.Int("blocks", blocks), zap.Int("features", emitted))
	}()

	return outCh, errCh
}

// VectorizeAll collects the output of Vectorize.
func VectorizeAll(ctx context.Context, c *Clipped, cls Classifier, opts Options) ([]model.VectorizedCell, error) {
	outCh, errCh := Vectorize(ctx, c, cls, opts)
	var out []model.VectorizedCell
	for f := range outCh {
		out = append(out, f)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return out, nil
}

func classify(c *Clipped, cls Classifier) []int {
	classes := make([]int, len(c.Values))
	for i, v := range c.Values {
		classes[i] = cls.Classify(v)
	}
	return classes
}

// traceBlock vectorizes rows [b*BlockRows, (b+1)*BlockRows).
func traceBlock(c *Clipped, classes []int, b int, opts Options) []model.VectorizedCell {
	spec := c.Spec
	r0 := b * opts.BlockRows
	r1 := min(r0+opts.BlockRows, spec.Rows)

	comps := label(classes, spec.Cols, r0, r1)
	rings := traceRings(classes, comps, spec.Cols, r0, r1)

	out := make([]model.VectorizedCell, 0, len(comps.list))
	for _, comp := range comps.list {
		var sum float64
		for _, idx := range comp.cells {
			sum += c.Values[idx]
		}
		poly := make(geom.Polygon, 0, 1+len(rings[comp.id].holes))
		poly = append(poly, toWorld(rings[comp.id].outer, spec))
		for _, h := range rings[comp.id].holes {
			poly = append(poly, toWorld(h, spec))
		}
		out = append(out, model.VectorizedCell{
			Layer:      c.Layer,
			Class:      comp.class,
			Value:      sum / float64(len(comp.cells)),
			Cells:      len(comp.cells),
			Block:      b,
			Geometry:   simplify(poly, opts.Tolerance),
			Resolution: spec.CellSize,
			CRS:        spec.CRS,
		})
	}
	return out
}

// simplify applies Douglas-Peucker to every ring. A ring that would
// degenerate keeps its traced form.
func simplify(poly geom.Polygon, tol float64) geom.Polygon {
	if tol <= 0 {
		return poly
	}
	out := make(geom.Polygon, 0, len(poly))
	for _, ring := range poly {
		s, ok := geom.Polygon{ring}.Simplify(tol).(geom.Polygon)
		if !ok || len(s) == 0 {
			out = append(out, ring)
			continue
		}
		clean := gis.CleanPolygon(geom.MultiPolygon{s})
		if len(clean) == 0 {
			out = append(out, ring)
			continue
		}
		out = append(out, clean[0][0])
	}
	return out
}
