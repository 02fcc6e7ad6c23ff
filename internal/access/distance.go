// Package access computes distances from municipalities to the railway
// network and aggregates them per administrative unit.
package access

import (
	"context"
	"math"

	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	"github.com/sells-group/railway-atlas/internal/gis"
	"github.com/sells-group/railway-atlas/internal/model"
	"golang.org/x/sync/errgroup"
)

// Options configures the distance computation.
type Options struct {
	Workers int
}

// initialWindow is the first search half-size in metres; typical distances
// from an Italian municipality to the nearest line are a few kilometres.
const initialWindow = 2000

// NearestDistances returns, for each municipality in order, the distance to
// the closest point of any segment. Distances are planar in the metric CRS.
// With no segments every municipality is unreachable.
func NearestDistances(ctx context.Context, munis []model.Municipality, segments []model.RailSegment, year int, opts Options) ([]model.DistanceRecord, error) {
	dist, nearest, err := nearest(ctx, munis, segments, opts)
	if err != nil {
		return nil, err
	}
	return records(munis, year, dist, nearest), nil
}

// nearest computes distances and nearest segment ids by full search.
func nearest(ctx context.Context, munis []model.Municipality, segments []model.RailSegment, opts Options) ([]float64, []string, error) {
	dist := make([]float64, len(munis))
	ids := make([]string, len(munis))
	idx := lineIndex(segments)

	err := forEach(ctx, len(munis), opts.Workers, func(i int) {
		ref, d, ok := idx.Nearest(munis[i].Centroid, initialWindow)
		if !ok {
			dist[i] = math.Inf(1)
			return
		}
		dist[i], ids[i] = d, segments[ref].ID
	})
	if err != nil {
		return nil, nil, eris.Wrap(err, "access: nearest distances")
	}
	return dist, ids, nil
}

func lineIndex(segments []model.RailSegment) *gis.LineIndex {
	lines := make([]geom.MultiLineString, len(segments))
	for i, s := range segments {
		lines[i] = s.Geometry
	}
	return gis.NewLineIndex(lines)
}

// forEach runs fn over [0, n) split into contiguous ranges, one per worker.
// fn must only write to slots of its own index.
func forEach(ctx context.Context, n, workers int, fn func(i int)) error {
	if workers <= 0 {
		workers = 1
	}
	if n == 0 {
		return ctx.Err()
	}
	chunk := (n + workers - 1) / workers
	g, gctx := errgroup.WithContext(ctx)
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if i%256 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				fn(i)
			}
			return nil
		})
	}
	return g.Wait()
}

func records(munis []model.Municipality, year int, dist []float64, ids []string) []model.DistanceRecord {
	out := make([]model.DistanceRecord, len(munis))
	for i, m := range munis {
		out[i] = model.DistanceRecord{
			MunicipalityID:   m.ID,
			Year:             year,
			Meters:           dist[i],
			Reachable:        !math.IsInf(dist[i], 1),
			NearestSegmentID: ids[i],
		}
	}
	return out
}
