package access

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/sells-group/railway-atlas/internal/model"
	"go.uber.org/zap"
)

// Aggregator answers territorial and capital statistics over computed states.
type Aggregator struct {
	tree   *model.AdminTree
	munis  []model.Municipality
	states map[int]State
}

// NewAggregator wraps per-year states; munis must be in the order the
// states were computed with.
func NewAggregator(tree *model.AdminTree, munis []model.Municipality, states map[int]State) *Aggregator {
	return &Aggregator{tree: tree, munis: munis, states: states}
}

// TerritorialAverage is the mean distance over the municipalities lying in
// unitID in year. Unreachable municipalities are left out; ok is false when
// none is reachable or the year was not computed.
func (a *Aggregator) TerritorialAverage(unitID string, year int) (mean float64, ok bool) {
	st, found := a.states[year]
	if !found {
		return 0, false
	}
	var sum float64
	var n int
	for i, m := range a.munis {
		if !m.InUnit(unitID, a.tree.National) {
			continue
		}
		d := st.Distances[i]
		if math.IsInf(d, 1) {
			continue
		}
		sum += d
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// CapitalDistance is the distance of the capital of unitID in year.
func (a *Aggregator) CapitalDistance(unitID string, year int) (float64, error) {
	st, found := a.states[year]
	if !found {
		return 0, eris.Errorf("access: year %d not computed", year)
	}
	for i, m := range a.munis {
		if m.IsCapitalOf(unitID) {
			return st.Distances[i], nil
		}
	}
	return 0, &model.NoCapitalDefinedError{UnitID: unitID}
}

// Records computes every aggregation for the given years: the national,
// regional and provincial averages and the regional and provincial capital
// distances. A unit without a capital is an error when requireCapitals is
// set and is otherwise logged once and left out.
func (a *Aggregator) Records(years []int, requireCapitals bool) ([]model.AccessRecord, error) {
	log := zap.L().With(zap.String("component", "access.aggregate"))

	regions := a.tree.AtLevel(model.LevelRegional)
	provinces := a.tree.AtLevel(model.LevelProvincial)

	missing := make(map[string]bool)
	for _, u := range append(append([]*model.AdminUnit(nil), regions...), provinces...) {
		if a.hasCapital(u.ID) {
			continue
		}
		if requireCapitals {
			return nil, eris.Wrap(&model.NoCapitalDefinedError{UnitID: u.ID}, "access: aggregate")
		}
		missing[u.ID] = true
		log.Warn("unit has no capital; capital distance skipped", zap.String("unit", u.ID))
	}

	var out []model.AccessRecord
	for _, year := range years {
		national, _ := a.tree.Unit(a.tree.National)
		out = a.appendAverage(out, year, national, model.AccessNationalAverage)
		for _, u := range regions {
			out = a.appendAverage(out, year, u, model.AccessRegionAverage)
		}
		for _, u := range provinces {
			out = a.appendAverage(out, year, u, model.AccessProvinceAverage)
		}
		for _, group := range []struct {
			units []*model.AdminUnit
			kind  model.AccessKind
		}{
			{regions, model.AccessRegionCapital},
			{provinces, model.AccessProvinceCapital},
		} {
			for _, u := range group.units {
				if missing[u.ID] {
					continue
				}
				d, err := a.CapitalDistance(u.ID, year)
				if err != nil {
					return nil, err
				}
				if math.IsInf(d, 1) {
					continue
				}
				out = append(out, model.AccessRecord{Year: year, UnitID: u.ID, Name: u.Name, Kind: group.kind, Meters: d})
			}
		}
	}
	return out, nil
}

func (a *Aggregator) appendAverage(out []model.AccessRecord, year int, u *model.AdminUnit, kind model.AccessKind) []model.AccessRecord {
	mean, ok := a.TerritorialAverage(u.ID, year)
	if !ok {
		return out
	}
	return append(out, model.AccessRecord{Year: year, UnitID: u.ID, Name: u.Name, Kind: kind, Meters: mean})
}

func (a *Aggregator) hasCapital(unitID string) bool {
	for _, m := range a.munis {
		if m.IsCapitalOf(unitID) {
			return true
		}
	}
	return false
}
