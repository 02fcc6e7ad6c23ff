package overlay

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/sells-group/railway-atlas/internal/model"
	"go.uber.org/zap"
)

// Reconcile checks that the provincial records of each region add up to the
// regional record, and the regional records to the national one, for every
// year, line type and gauge. Units without children are skipped. Gaps larger
// than eps are returned as warnings; the first gap larger than hard aborts
// with an *model.AttributionMismatchError.
func Reconcile(records []model.LengthRecord, tree *model.AdminTree, eps, hard float64) ([]*model.AttributionMismatchError, error) {
	log := zap.L().With(zap.String("component", "overlay.reconcile"))

	byKey := make(map[model.LengthKey]float64, len(records))
	for _, r := range records {
		if r.UnitID == model.OutsideUnitID {
			continue
		}
		byKey[r.Key()] += r.Meters
	}

	type group struct {
		parent model.LengthKey
		level  model.Level
	}
	sums := make(map[group]float64)
	for _, r := range records {
		if r.UnitID == model.OutsideUnitID || r.Level == model.LevelNational {
			continue
		}
		u, ok := tree.Unit(r.UnitID)
		if !ok {
			continue
		}
		pk := model.LengthKey{UnitID: u.Parent, Year: r.Year, LineType: r.LineType, Gauge: r.Gauge}
		sums[group{parent: pk, level: r.Level}] += r.Meters
	}

	groups := make([]group, 0, len(sums))
	for g := range sums {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i].parent, groups[j].parent
		if a.UnitID != b.UnitID {
			return a.UnitID < b.UnitID
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.LineType != b.LineType {
			return a.LineType < b.LineType
		}
		return a.Gauge < b.Gauge
	})

	var warnings []*model.AttributionMismatchError
	for _, g := range groups {
		parent, ok := tree.Unit(g.parent.UnitID)
		if !ok {
			continue
		}
		d := sums[g] - byKey[g.parent]
		if math.Abs(d) <= eps {
			continue
		}
		w := &model.AttributionMismatchError{
			UnitID:      parent.ID,
			Level:       parent.Level,
			Year:        g.parent.Year,
			Discrepancy: d,
		}
		if hard > 0 && math.Abs(d) > hard {
			return warnings, eris.Wrapf(w, "overlay: %s children differ by %.1fm", parent.ID, d)
		}
		log.Warn("children do not add up to parent",
			zap.String("unit", parent.ID),
			zap.String("level", string(parent.Level)),
			zap.Int("year", g.parent.Year),
			zap.String("type", string(g.parent.LineType)),
			zap.String("gauge", string(g.parent.Gauge)),
			zap.Float64("discrepancy_m", d),
		)
		warnings = append(warnings, w)
	}
	return warnings, nil
}
