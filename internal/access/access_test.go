package access

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strconv"
	"testing"

	"github.com/ctessum/geom"
	"github.com/sells-group/railway-atlas/internal/model"
	"github.com/sells-group/railway-atlas/internal/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seg(id string, year int, x0, y0, x1, y1 float64) model.RailSegment {
	line := geom.MultiLineString{{{X: x0, Y: y0}, {X: x1, Y: y1}}}
	return model.NewRailSegment(id, line, year, model.LineTypePrimary, model.GaugeStandard)
}

func muni(id string, x, y float64) model.Municipality {
	return model.Municipality{ID: id, Name: id, Centroid: geom.Point{X: x, Y: y}}
}

func TestSeries_DistancePersists(t *testing.T) {
	idx := network.NewIndex([]model.RailSegment{
		seg("near", 1860, -10000, 0, 10000, 0),
		seg("far", 1865, -10000, 20000, 10000, 20000),
		seg("closer", 1875, -1000, 3000, 1000, 3000),
	})
	munis := []model.Municipality{muni("m1", 0, 5000)}

	recs, _, err := Series(context.Background(), idx, munis, []int{1860, 1865, 1870, 1875}, Options{Workers: 1})
	require.NoError(t, err)
	require.Len(t, recs, 4)

	for _, r := range recs[:3] {
		assert.Equal(t, 5000.0, r.Meters, "year %d", r.Year)
		assert.Equal(t, "near", r.NearestSegmentID)
		assert.True(t, r.Reachable)
	}
	assert.InDelta(t, 2000, recs[3].Meters, 1e-9)
	assert.Equal(t, "closer", recs[3].NearestSegmentID)
}

func TestNearestDistances_EmptyNetwork(t *testing.T) {
	recs, err := NearestDistances(context.Background(), []model.Municipality{muni("m1", 0, 0)}, nil, 1839, Options{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.False(t, recs[0].Reachable)
	assert.True(t, math.IsInf(recs[0].Meters, 1))
	assert.Empty(t, recs[0].NearestSegmentID)
}

func TestNearestDistances_Polyline(t *testing.T) {
	bend := model.NewRailSegment("bend", geom.MultiLineString{
		{{X: 0, Y: 0}, {X: 10000, Y: 0}, {X: 10000, Y: 10000}},
	}, 1880, model.LineTypeSecondary, model.GaugeNarrow)
	munis := []model.Municipality{
		muni("inside-corner", 7000, 4000),
		muni("beyond-end", 13000, 14000),
		muni("on-line", 5000, 0),
	}
	recs, err := NearestDistances(context.Background(), munis, []model.RailSegment{bend}, 1880, Options{Workers: 3})
	require.NoError(t, err)
	assert.InDelta(t, 3000, recs[0].Meters, 1e-9)
	assert.InDelta(t, 5000, recs[1].Meters, 1e-9)
	assert.InDelta(t, 0, recs[2].Meters, 1e-9)
}

func randomNetwork(r *rand.Rand, n int) []model.RailSegment {
	out := make([]model.RailSegment, n)
	for i := range out {
		x, y := r.Float64()*500000, r.Float64()*800000
		dx, dy := r.Float64()*40000-20000, r.Float64()*40000-20000
		out[i] = seg("s"+strconv.Itoa(i), 1839+r.Intn(75), x, y, x+dx, y+dy)
	}
	return out
}

func randomMunis(r *rand.Rand, n int) []model.Municipality {
	out := make([]model.Municipality, n)
	for i := range out {
		out[i] = muni("m"+strconv.Itoa(i), r.Float64()*500000, r.Float64()*800000)
	}
	return out
}

func TestSeries_IncrementalMatchesFull(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	idx := network.NewIndex(randomNetwork(r, 300))
	munis := randomMunis(r, 400)
	years := network.ReportYears(1839, 1913, 5, idx.LastYear())

	_, states, err := Series(context.Background(), idx, munis, years, Options{Workers: 4})
	require.NoError(t, err)

	for _, year := range years {
		full, err := Full(context.Background(), idx, munis, year, Options{Workers: 1})
		require.NoError(t, err)
		inc := states[year]
		require.Len(t, inc.Distances, len(munis))
		assert.Equal(t, full.SegmentCount, inc.SegmentCount, "year %d", year)
		for i := range munis {
			if math.IsInf(full.Distances[i], 1) {
				assert.True(t, math.IsInf(inc.Distances[i], 1))
				continue
			}
			assert.InDelta(t, full.Distances[i], inc.Distances[i], 1e-6, "year %d muni %d", year, i)
			assert.Equal(t, full.Nearest[i], inc.Nearest[i], "year %d muni %d", year, i)
		}
	}
}

func TestSeries_Monotonic(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	idx := network.NewIndex(randomNetwork(r, 150))
	munis := randomMunis(r, 200)
	years := network.ReportYears(1839, 1913, 5, 0)

	_, states, err := Series(context.Background(), idx, munis, years, Options{Workers: 2})
	require.NoError(t, err)
	for k := 1; k < len(years); k++ {
		prev, cur := states[years[k-1]], states[years[k]]
		for i := range munis {
			assert.LessOrEqual(t, cur.Distances[i], prev.Distances[i])
		}
	}
}

func TestAdvance_InconsistentStateRecomputes(t *testing.T) {
	idx := network.NewIndex([]model.RailSegment{
		seg("a", 1860, 0, 0, 10000, 0),
		seg("b", 1870, 0, 1000, 10000, 1000),
	})
	munis := []model.Municipality{muni("m", 5000, 3000)}
	ctx := context.Background()

	want, err := Full(ctx, idx, munis, 1870, Options{})
	require.NoError(t, err)

	tests := []struct {
		name  string
		state State
	}{
		{name: "zero state", state: State{}},
		{name: "segment count mismatch", state: State{Year: 1860, Distances: []float64{9999}, Nearest: []string{"x"}, SegmentCount: 7}},
		{name: "wrong length", state: State{Year: 1860, Distances: []float64{1, 2}, Nearest: []string{"a", "a"}, SegmentCount: 1}},
		{name: "year regression", state: State{Year: 1900, Distances: []float64{1}, Nearest: []string{"a"}, SegmentCount: 2}},
		{name: "invalid distance", state: State{Year: 1860, Distances: []float64{math.NaN()}, Nearest: []string{"a"}, SegmentCount: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Advance(ctx, tt.state, idx, munis, 1870, Options{})
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestAdvance_DoesNotModifyInput(t *testing.T) {
	idx := network.NewIndex([]model.RailSegment{
		seg("a", 1860, 0, 0, 10000, 0),
		seg("b", 1870, 0, 1000, 10000, 1000),
	})
	munis := []model.Municipality{muni("m", 5000, 3000)}
	ctx := context.Background()

	st, err := Full(ctx, idx, munis, 1860, Options{})
	require.NoError(t, err)
	next, err := Advance(ctx, st, idx, munis, 1870, Options{})
	require.NoError(t, err)

	assert.Equal(t, 3000.0, st.Distances[0])
	assert.Equal(t, "a", st.Nearest[0])
	assert.Equal(t, 2000.0, next.Distances[0])
	assert.Equal(t, "b", next.Nearest[0])
	assert.Equal(t, 2, next.SegmentCount)
}

func TestAdvance_Cancelled(t *testing.T) {
	idx := network.NewIndex([]model.RailSegment{seg("a", 1860, 0, 0, 10000, 0)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Advance(ctx, State{}, idx, []model.Municipality{muni("m", 0, 0)}, 1860, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func rect(x0, y0, x1, y1 float64) geom.MultiPolygon {
	return geom.MultiPolygon{{{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}}}
}

func testTree(t *testing.T) *model.AdminTree {
	t.Helper()
	tree, err := model.NewAdminTree([]*model.AdminUnit{
		{ID: "IT", Name: "Italia", Level: model.LevelNational, Geometry: rect(0, 0, 20000, 10000)},
		{ID: "reg:R1", Name: "R1", Level: model.LevelRegional, Parent: "IT", Geometry: rect(0, 0, 10000, 10000)},
		{ID: "reg:R2", Name: "R2", Level: model.LevelRegional, Parent: "IT", Geometry: rect(10000, 0, 20000, 10000)},
		{ID: "prov:A", Name: "A", Level: model.LevelProvincial, Parent: "reg:R1", Geometry: rect(0, 0, 10000, 10000)},
		{ID: "prov:B", Name: "B", Level: model.LevelProvincial, Parent: "reg:R2", Geometry: rect(10000, 0, 20000, 10000)},
	})
	require.NoError(t, err)
	return tree
}

func aggregatorFixture(t *testing.T) (*Aggregator, []model.Municipality) {
	t.Helper()
	munis := []model.Municipality{
		{ID: "1", Name: "Uno", Centroid: geom.Point{X: 1000, Y: 1000}, Province: "prov:A", Region: "reg:R1", CapitalOf: []string{"prov:A", "reg:R1"}},
		{ID: "2", Name: "Due", Centroid: geom.Point{X: 3000, Y: 1000}, Province: "prov:A", Region: "reg:R1"},
		{ID: "3", Name: "Tre", Centroid: geom.Point{X: 15000, Y: 1000}, Province: "prov:B", Region: "reg:R2"},
	}
	states := map[int]State{
		1860: {Year: 1860, Distances: []float64{1000, 3000, math.Inf(1)}, Nearest: []string{"a", "a", ""}},
		1870: {Year: 1870, Distances: []float64{1000, 2000, 6000}, Nearest: []string{"a", "a", "b"}},
	}
	return NewAggregator(testTree(t), munis, states), munis
}

func TestAggregator_TerritorialAverage(t *testing.T) {
	agg, _ := aggregatorFixture(t)

	avg, ok := agg.TerritorialAverage("prov:A", 1860)
	require.True(t, ok)
	assert.InDelta(t, 2000, avg, 1e-9)

	avg, ok = agg.TerritorialAverage("IT", 1870)
	require.True(t, ok)
	assert.InDelta(t, 3000, avg, 1e-9)

	// Only unreachable municipalities.
	_, ok = agg.TerritorialAverage("reg:R2", 1860)
	assert.False(t, ok)

	_, ok = agg.TerritorialAverage("prov:A", 1900)
	assert.False(t, ok)
}

func TestAggregator_CapitalDistance(t *testing.T) {
	agg, _ := aggregatorFixture(t)

	d, err := agg.CapitalDistance("reg:R1", 1870)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, d)

	_, err = agg.CapitalDistance("prov:B", 1870)
	var nc *model.NoCapitalDefinedError
	require.True(t, errors.As(err, &nc))
	assert.Equal(t, "prov:B", nc.UnitID)
}

func TestAggregator_Records(t *testing.T) {
	agg, _ := aggregatorFixture(t)

	_, err := agg.Records([]int{1860, 1870}, true)
	var nc *model.NoCapitalDefinedError
	require.True(t, errors.As(err, &nc))

	recs, err := agg.Records([]int{1870}, false)
	require.NoError(t, err)

	kinds := make(map[model.AccessKind][]string)
	for _, r := range recs {
		assert.Equal(t, 1870, r.Year)
		kinds[r.Kind] = append(kinds[r.Kind], r.UnitID)
	}
	assert.Equal(t, []string{"IT"}, kinds[model.AccessNationalAverage])
	assert.Equal(t, []string{"reg:R1", "reg:R2"}, kinds[model.AccessRegionAverage])
	assert.Equal(t, []string{"prov:A", "prov:B"}, kinds[model.AccessProvinceAverage])
	assert.Equal(t, []string{"reg:R1"}, kinds[model.AccessRegionCapital])
	assert.Equal(t, []string{"prov:A"}, kinds[model.AccessProvinceCapital])
}
