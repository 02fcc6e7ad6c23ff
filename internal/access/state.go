package access

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"github.com/sells-group/railway-atlas/internal/model"
	"github.com/sells-group/railway-atlas/internal/network"
	"go.uber.org/zap"
)

// State is the accessibility of every municipality as of Year. It is owned
// by the caller of the year loop and never modified in place: Advance
// returns a new value. The zero State means "nothing computed yet".
type State struct {
	Year         int
	Distances    []float64 // by municipality position, +Inf when unreachable
	Nearest      []string  // nearest segment id, empty when unreachable
	SegmentCount int       // segments active in Year
}

// Records returns the state as distance records.
func (s State) Records(munis []model.Municipality) []model.DistanceRecord {
	return records(munis, s.Year, s.Distances, s.Nearest)
}

// Advance moves st forward to year. Only segments opened in (st.Year, year]
// can bring a municipality closer to the network, and only if they pass
// within its current distance, so those are the only ones probed. A state
// that does not match the index or the municipality list is discarded and
// the year is recomputed from scratch.
func Advance(ctx context.Context, st State, idx *network.Index, munis []model.Municipality, year int, opts Options) (State, error) {
	log := zap.L().With(zap.String("component", "access.state"))

	if reason := inconsistency(st, idx, munis, year); reason != "" {
		if st.Distances != nil {
			log.Warn("incremental state discarded, recomputing",
				zap.Int("state_year", st.Year),
				zap.Int("year", year),
				zap.String("reason", reason),
			)
		}
		return Full(ctx, idx, munis, year, opts)
	}

	next := State{
		Year:         year,
		Distances:    append([]float64(nil), st.Distances...),
		Nearest:      append([]string(nil), st.Nearest...),
		SegmentCount: idx.Count(year),
	}
	added := idx.Added(st.Year, year)
	if len(added) == 0 {
		return next, nil
	}

	li := lineIndex(added)
	err := forEach(ctx, len(munis), opts.Workers, func(i int) {
		ref, d, ok := li.NearestWithin(munis[i].Centroid, next.Distances[i])
		if ok {
			next.Distances[i], next.Nearest[i] = d, added[ref].ID
		}
	})
	if err != nil {
		return State{}, eris.Wrapf(err, "access: advance to %d", year)
	}
	log.Debug("state advanced",
		zap.Int("from", st.Year),
		zap.Int("to", year),
		zap.Int("added_segments", len(added)),
	)
	return next, nil
}

// Full computes the state of year without prior state.
func Full(ctx context.Context, idx *network.Index, munis []model.Municipality, year int, opts Options) (State, error) {
	snap := idx.SnapshotAt(year)
	dist, ids, err := nearest(ctx, munis, snap.Segments, opts)
	if err != nil {
		return State{}, eris.Wrapf(err, "access: full recompute for %d", year)
	}
	return State{Year: year, Distances: dist, Nearest: ids, SegmentCount: snap.Len()}, nil
}

func inconsistency(st State, idx *network.Index, munis []model.Municipality, year int) string {
	switch {
	case st.Distances == nil:
		return "empty state"
	case year < st.Year:
		return "year regression"
	case len(st.Distances) != len(munis) || len(st.Nearest) != len(munis):
		return "municipality count mismatch"
	case st.SegmentCount != idx.Count(st.Year):
		return "segment count mismatch"
	}
	for _, d := range st.Distances {
		if math.IsNaN(d) || d < 0 {
			return "invalid distance"
		}
	}
	return ""
}

// Series advances through years in ascending order and returns the distance
// records of every year, grouped by year then municipality order.
func Series(ctx context.Context, idx *network.Index, munis []model.Municipality, years []int, opts Options) ([]model.DistanceRecord, map[int]State, error) {
	log := zap.L().With(zap.String("component", "access.series"))

	states := make(map[int]State, len(years))
	var out []model.DistanceRecord
	var st State
	for _, year := range years {
		next, err := Advance(ctx, st, idx, munis, year, opts)
		if err != nil {
			return nil, nil, err
		}
		st = next
		states[year] = st
		out = append(out, st.Records(munis)...)
		log.Info("accessibility computed",
			zap.Int("year", year),
			zap.Int("segments", st.SegmentCount),
			zap.Int("municipalities", len(munis)),
		)
	}
	return out, states, nil
}
