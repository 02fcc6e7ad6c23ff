// Package overlay attributes railway track length to administrative units.
package overlay

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	"github.com/sells-group/railway-atlas/internal/gis"
	"github.com/sells-group/railway-atlas/internal/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options configures attribution.
type Options struct {
	EpsilonM       float64 // conservation tolerance per segment and level
	HardThresholdM float64 // reconciliation gaps above this abort the run
	Workers        int
}

// Share is the length of one segment lying in one unit of one level.
type Share struct {
	SegmentID string
	Year      int
	LineType  model.LineType
	Gauge     model.Gauge
	Level     model.Level
	UnitID    string
	Meters    float64
}

// Result is the attribution of a set of segments.
type Result struct {
	Shares   []Share
	Outside  []string // segments lying entirely outside the national unit
	Warnings []*model.AttributionMismatchError
}

type levelIndex struct {
	units []*model.AdminUnit
	geoms []geom.MultiPolygon
	idx   *gis.AreaIndex
	edges *gis.EdgeIndex
}

// Attributor splits segments along unit boundaries.
type Attributor struct {
	tree   *model.AdminTree
	levels map[model.Level]*levelIndex
	opts   Options
}

// NewAttributor indexes the units of every level by bounding box and by
// boundary edge.
func NewAttributor(tree *model.AdminTree, opts Options) *Attributor {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	a := &Attributor{tree: tree, levels: make(map[model.Level]*levelIndex), opts: opts}
	for _, l := range model.Levels {
		li := &levelIndex{units: tree.AtLevel(l)}
		for _, u := range li.units {
			li.geoms = append(li.geoms, u.Geometry)
		}
		li.idx = gis.NewAreaIndex(li.geoms)
		li.edges = gis.NewEdgeIndex(li.geoms)
		a.levels[l] = li
	}
	return a
}

// Attribute splits every segment at each level. A piece lying in no unit of
// a level is credited to model.OutsideUnitID, unless it runs along a unit
// boundary: then the lowest-id unit it touches gets it. Per segment and level the
// credited lengths must add up to the segment length within EpsilonM;
// overlapping siblings credit a piece twice and show up as warnings.
func (a *Attributor) Attribute(ctx context.Context, segments []model.RailSegment) (*Result, error) {
	log := zap.L().With(zap.String("component", "overlay.attribute"))

	type segResult struct {
		shares   []Share
		outside  bool
		warnings []*model.AttributionMismatchError
	}
	results := make([]segResult, len(segments))

	g, gctx := errgroup.WithContext(ctx)
	chunk := (len(segments) + a.opts.Workers - 1) / a.opts.Workers
	for lo := 0; lo < len(segments); lo += chunk {
		hi := min(lo+chunk, len(segments))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				shares, warnings := a.attributeSegment(segments[i])
				results[i] = segResult{shares: shares, warnings: warnings, outside: outsideNational(shares)}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "overlay: attribute")
	}

	res := &Result{}
	for i, r := range results {
		res.Shares = append(res.Shares, r.shares...)
		res.Warnings = append(res.Warnings, r.warnings...)
		if r.outside {
			res.Outside = append(res.Outside, segments[i].ID)
		}
	}
	for _, w := range res.Warnings {
		log.Warn("segment length not conserved",
			zap.String("segment", w.SegmentID),
			zap.String("unit", w.UnitID),
			zap.String("level", string(w.Level)),
			zap.Float64("discrepancy_m", w.Discrepancy),
		)
	}
	log.Debug("segments attributed",
		zap.Int("segments", len(segments)),
		zap.Int("shares", len(res.Shares)),
		zap.Int("outside", len(res.Outside)),
	)
	return res, nil
}

func outsideNational(shares []Share) bool {
	for _, s := range shares {
		if s.Level == model.LevelNational && s.UnitID != model.OutsideUnitID && s.Meters > 0 {
			return false
		}
	}
	return true
}

// attributeSegment returns the shares of one segment at every level, in
// level order then unit id with the outside bucket last.
func (a *Attributor) attributeSegment(seg model.RailSegment) ([]Share, []*model.AttributionMismatchError) {
	var shares []Share
	var warnings []*model.AttributionMismatchError
	bounds := gis.LineBounds(seg.Geometry)

	for _, level := range model.Levels {
		li := a.levels[level]
		cands := li.idx.Candidates(bounds)

		inUnit := make(map[int]float64, len(cands))
		var outside float64
		var overlapping []string
		var hits []int
		for _, p := range li.edges.Split(seg.Geometry) {
			mid := p.Mid()
			l := p.Length()
			hits = hits[:0]
			for _, c := range cands {
				if gis.ContainsPoint(li.geoms[c], mid) {
					inUnit[c] += l
					hits = append(hits, c)
				}
			}
			switch {
			case len(hits) == 0:
				// The half-open rule leaves track on the outer edge of a
				// level unclaimed along its north and east sides.
				if touch := li.edges.Touching(mid); len(touch) > 0 {
					inUnit[touch[0]] += l
				} else {
					outside += l
				}
			case len(hits) > 1:
				for _, c := range hits {
					overlapping = appendUnique(overlapping, li.units[c].ID)
				}
			}
		}

		refs := make([]int, 0, len(inUnit))
		for ref := range inUnit {
			refs = append(refs, ref)
		}
		sort.Ints(refs)

		var credited float64
		for _, ref := range refs {
			m := inUnit[ref]
			if m <= 0 {
				continue
			}
			credited += m
			shares = append(shares, a.share(seg, level, li.units[ref].ID, m))
		}
		if outside > 0 {
			credited += outside
			shares = append(shares, a.share(seg, level, model.OutsideUnitID, outside))
		}

		if d := credited - seg.Length; math.Abs(d) > a.opts.EpsilonM {
			unit := strings.Join(overlapping, "+")
			if unit == "" {
				unit = model.OutsideUnitID
			}
			warnings = append(warnings, &model.AttributionMismatchError{
				SegmentID:   seg.ID,
				UnitID:      unit,
				Level:       level,
				Year:        seg.Year,
				Discrepancy: d,
			})
		}
	}
	return shares, warnings
}

func (a *Attributor) share(seg model.RailSegment, level model.Level, unit string, m float64) Share {
	return Share{
		SegmentID: seg.ID,
		Year:      seg.Year,
		LineType:  seg.LineType,
		Gauge:     seg.Gauge,
		Level:     level,
		UnitID:    unit,
		Meters:    m,
	}
}

func appendUnique(ids []string, id string) []string {
	for _, v := range ids {
		if v == id {
			return ids
		}
	}
	ids = append(ids, id)
	sort.Strings(ids)
	return ids
}
