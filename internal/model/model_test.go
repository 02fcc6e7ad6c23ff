package model

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLineType(t *testing.T) {
	tests := []struct {
		in   string
		want LineType
	}{
		{"Main line", LineTypePrimary},
		{"MAIN", LineTypePrimary},
		{"primary", LineTypePrimary},
		{"Light", LineTypeSecondary},
		{"", LineTypeSecondary},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLineType(tt.in))
		})
	}
}

func TestParseGauge(t *testing.T) {
	tests := []struct {
		in      string
		want    Gauge
		wantErr bool
	}{
		{"1435", GaugeStandard, false},
		{"950", GaugeNarrow, false},
		{"1000.0", GaugeNarrow, false},
		{"", GaugeStandard, false},
		{"Ridotto", GaugeNarrow, false},
		{"normale", GaugeStandard, false},
		{"broad?", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseGauge(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, 950, GaugeNarrow.Millimetres())
	assert.Equal(t, 1435, GaugeStandard.Millimetres())
}

func TestNewRailSegment_DerivesLength(t *testing.T) {
	seg := NewRailSegment("s1", geom.MultiLineString{{{X: 0, Y: 0}, {X: 3000, Y: 4000}}}, 1860, LineTypePrimary, GaugeStandard)
	assert.InDelta(t, 5000, seg.Length, 1e-9)
	assert.Equal(t, NetworkKey{LineType: LineTypePrimary, Gauge: GaugeStandard}, seg.Key())
}

func testTree(t *testing.T) *AdminTree {
	t.Helper()
	tree, err := NewAdminTree([]*AdminUnit{
		{ID: NationalID, Level: LevelNational},
		{ID: RegionID("Piemonte"), Level: LevelRegional, Parent: NationalID},
		{ID: RegionID("Lombardia"), Level: LevelRegional, Parent: NationalID},
		{ID: ProvinceID("Torino"), Level: LevelProvincial, Parent: RegionID("Piemonte")},
		{ID: ProvinceID("Cuneo"), Level: LevelProvincial, Parent: RegionID("Piemonte")},
	})
	require.NoError(t, err)
	return tree
}

func TestAdminTree(t *testing.T) {
	tree := testTree(t)

	assert.Equal(t, 5, tree.Len())
	assert.Equal(t, NationalID, tree.National)
	assert.Equal(t, []string{"reg:Lombardia", "reg:Piemonte"}, tree.Children(NationalID))
	assert.Equal(t, []string{"prov:Torino", "reg:Piemonte", NationalID}, tree.Ancestors("prov:Torino"))

	regions := tree.AtLevel(LevelRegional)
	require.Len(t, regions, 2)
	assert.Equal(t, "reg:Lombardia", regions[0].ID)

	_, ok := tree.Unit("prov:Milano")
	assert.False(t, ok)
}

func TestNewAdminTree_Topology(t *testing.T) {
	tests := []struct {
		name  string
		units []*AdminUnit
	}{
		{"no national", []*AdminUnit{{ID: "reg:A", Level: LevelRegional, Parent: NationalID}}},
		{"two nationals", []*AdminUnit{{ID: "IT", Level: LevelNational}, {ID: "FR", Level: LevelNational}}},
		{"duplicate", []*AdminUnit{{ID: "IT", Level: LevelNational}, {ID: "IT", Level: LevelNational}}},
		{"missing parent", []*AdminUnit{{ID: "IT", Level: LevelNational}, {ID: "prov:A", Level: LevelProvincial, Parent: "reg:A"}}},
		{"skipped level", []*AdminUnit{{ID: "IT", Level: LevelNational}, {ID: "prov:A", Level: LevelProvincial, Parent: "IT"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAdminTree(tt.units)
			var te *TopologyError
			assert.True(t, errors.As(err, &te))
		})
	}
}

func TestMunicipality_Membership(t *testing.T) {
	m := Municipality{ID: "001272", Province: "prov:Torino", Region: "reg:Piemonte", CapitalOf: []string{"prov:Torino"}}

	assert.True(t, m.InUnit(NationalID, NationalID))
	assert.True(t, m.InUnit("reg:Piemonte", NationalID))
	assert.False(t, m.InUnit("prov:Cuneo", NationalID))
	assert.True(t, m.IsCapitalOf("prov:Torino"))
	assert.False(t, m.IsCapitalOf("reg:Piemonte"))
}

func TestDistanceRecord_JSON(t *testing.T) {
	unreachable := DistanceRecord{MunicipalityID: "a", Year: 1839, Meters: math.Inf(1)}
	data, err := json.Marshal(unreachable)
	require.NoError(t, err)
	assert.JSONEq(t, `{"municipality":"a","year":1839,"meters":null,"reachable":false}`, string(data))

	var back DistanceRecord
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, math.IsInf(back.Meters, 1))
	assert.False(t, back.Reachable)

	reached := DistanceRecord{MunicipalityID: "b", Year: 1860, Meters: 5000, Reachable: true, NearestSegmentID: "s1"}
	data, err = json.Marshal(reached)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, reached, back)
}

func TestGridSpec(t *testing.T) {
	g := GridSpec{Cols: 4, Rows: 2, OriginX: 10, OriginY: 42, CellSize: 0.5}

	assert.Equal(t, geom.Point{X: 10.25, Y: 41.75}, g.CellCenter(0, 0))
	assert.Equal(t, geom.Point{X: 11.75, Y: 41.25}, g.CellCenter(1, 3))
	b := g.Bounds()
	assert.Equal(t, geom.Point{X: 10, Y: 41}, b.Min)
	assert.Equal(t, geom.Point{X: 12, Y: 42}, b.Max)
}

func TestIsFatal(t *testing.T) {
	mismatch := &AttributionMismatchError{UnitID: "reg:Piemonte", Level: LevelRegional, Year: 1860, Discrepancy: 2}

	assert.False(t, IsFatal(nil))
	assert.False(t, IsFatal(mismatch))
	assert.False(t, IsFatal(eris.Wrap(mismatch, "overlay: reconcile")))
	assert.True(t, IsFatal(&EmptyClipError{Layer: "wheat"}))
	assert.True(t, IsFatal(&NoCapitalDefinedError{UnitID: "reg:Molise"}))
	assert.True(t, IsFatal(NewSourceFormatError("railways", "12", "bad year", nil)))
}

func TestErrorMessages(t *testing.T) {
	inner := errors.New("unknown projection")
	crs := NewCRSResolutionError("wheat", "EPSG:9999", inner)
	assert.Equal(t, "crs resolution: wheat (EPSG:9999): unknown projection", crs.Error())
	assert.ErrorIs(t, crs, inner)

	sf := NewSourceFormatError("railways", "7", "invalid gauge", nil)
	assert.Equal(t, "source format: railways feature 7: invalid gauge", sf.Error())

	seg := &AttributionMismatchError{SegmentID: "s1", UnitID: "prov:A", Level: LevelProvincial, Discrepancy: 1.5}
	assert.Equal(t, "attribution mismatch: segment s1 unit prov:A (provincial): 1.500m", seg.Error())
}
