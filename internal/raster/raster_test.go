package raster

import (
	"context"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/ctessum/geom"
	"github.com/sells-group/railway-atlas/internal/config"
	"github.com/sells-group/railway-atlas/internal/gis"
	"github.com/sells-group/railway-atlas/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memGrid is an in-memory RowReader.
type memGrid struct {
	spec model.GridSpec
	rows [][]float64
	next int
}

func newMemGrid(originX, originY, cell float64, rows [][]float64) *memGrid {
	return &memGrid{
		spec: model.GridSpec{
			Cols: len(rows[0]), Rows: len(rows),
			OriginX: originX, OriginY: originY, CellSize: cell,
			NoData: -9999, CRS: gis.WGS84,
		},
		rows: rows,
	}
}

func (g *memGrid) Spec() model.GridSpec { return g.spec }

func (g *memGrid) ReadRow(buf []float64) error {
	if g.next >= len(g.rows) {
		return io.EOF
	}
	copy(buf, g.rows[g.next])
	g.next++
	return nil
}

func square(x0, y0, x1, y1 float64) geom.MultiPolygon {
	return geom.MultiPolygon{{{
		{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1},
	}}}
}

func filled(rows, cols int, v float64) [][]float64 {
	out := make([][]float64, rows)
	for i := range out {
		out[i] = make([]float64, cols)
		for j := range out[i] {
			out[i][j] = v
		}
	}
	return out
}

func TestClassifier(t *testing.T) {
	tests := []struct {
		cls  Classifier
		v    float64
		want int
	}{
		{Ruggedness, 400000, 4},
		{Ruggedness, 350000, 3},
		{Ruggedness, 150001, 3},
		{Ruggedness, 150000, 2},
		{Ruggedness, 80000, 2},
		{Ruggedness, 79999, 0},
		{Wheat, 7000, 3},
		{Wheat, 3500, 2},
		{Wheat, 1000, 1},
		{Wheat, 999, 0},
		{Wheat, math.NaN(), 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.cls.Classify(tt.v), "%s %v", tt.cls.Layer, tt.v)
	}
}

func TestClassifierFor(t *testing.T) {
	c, err := ClassifierFor(LayerWheat, nil)
	require.NoError(t, err)
	assert.Equal(t, Wheat, c)

	c, err = ClassifierFor(LayerWheat, map[string][]config.Band{
		"wheat": {{Min: 10, Class: 1}, {Min: 20, Class: 2, Exclusive: true}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, c.Classify(21))
	assert.Equal(t, 1, c.Classify(20))

	_, err = ClassifierFor("rainfall", nil)
	assert.Error(t, err)

	_, err = ClassifierFor("rainfall", map[string][]config.Band{"rainfall": {{Min: 1}}})
	assert.Error(t, err)
}

func TestClip_CentroidInside(t *testing.T) {
	g := newMemGrid(0, 4, 1, filled(4, 4, 5000))
	c, err := Clip(context.Background(), "wheat", g, square(0.9, 0.9, 3.1, 3.1))
	require.NoError(t, err)

	assert.Equal(t, 4, c.Spec.Cols)
	assert.Equal(t, 4, c.Spec.Rows)
	assert.Equal(t, 4, c.Kept)
	assert.True(t, math.IsNaN(c.At(0, 0)))
	assert.Equal(t, 5000.0, c.At(1, 1))
	assert.Equal(t, 5000.0, c.At(2, 2))
	assert.True(t, math.IsNaN(c.At(3, 2)))
}

func TestClip_CropsWindow(t *testing.T) {
	g := newMemGrid(0, 10, 1, filled(10, 10, 1))
	c, err := Clip(context.Background(), "wheat", g, square(2, 2, 4, 5))
	require.NoError(t, err)

	assert.Equal(t, 2, c.Spec.Cols)
	assert.Equal(t, 3, c.Spec.Rows)
	assert.InDelta(t, 2, c.Spec.OriginX, 1e-12)
	assert.InDelta(t, 5, c.Spec.OriginY, 1e-12)
	assert.Equal(t, 6, c.Kept)
	// Rows below the window are never read.
	assert.Equal(t, 8, g.next)
}

// A raster over open sea shares no cell with the land boundary.
func TestClip_NoOverlap(t *testing.T) {
	g := newMemGrid(100, 50, 1, filled(3, 3, 9000))
	_, err := Clip(context.Background(), "wheat", g, square(0, 0, 10, 10))

	var ece *model.EmptyClipError
	require.True(t, errors.As(err, &ece))
	assert.Equal(t, "wheat", ece.Layer)
}

func TestClip_AllNoData(t *testing.T) {
	g := newMemGrid(0, 3, 1, filled(3, 3, math.NaN()))
	_, err := Clip(context.Background(), "ruggedness", g, square(0, 0, 3, 3))

	var ece *model.EmptyClipError
	assert.True(t, errors.As(err, &ece))
}

func clippedFrom(rows [][]float64) *Clipped {
	g := newMemGrid(0, float64(len(rows)), 1, rows)
	c := &Clipped{Layer: "wheat", Spec: g.spec}
	for _, r := range rows {
		c.Values = append(c.Values, r...)
	}
	return c
}

func totalArea(feats []model.VectorizedCell) float64 {
	var a float64
	for _, f := range feats {
		a += gis.PolygonArea(geom.MultiPolygon{f.Geometry})
	}
	return a
}

func TestVectorize_Block(t *testing.T) {
	n := math.NaN()
	c := clippedFrom([][]float64{
		{n, n, n, n},
		{n, 7000, 8000, n},
		{n, 7000, 8000, n},
		{n, n, n, n},
	})

	feats, err := VectorizeAll(context.Background(), c, Wheat, Options{BlockRows: 10, Workers: 2})
	require.NoError(t, err)
	require.Len(t, feats, 1)

	f := feats[0]
	assert.Equal(t, 3, f.Class)
	assert.Equal(t, 4, f.Cells)
	assert.InDelta(t, 7500, f.Value, 1e-9)
	require.Len(t, f.Geometry, 1)
	assert.Len(t, f.Geometry[0], 4)
	assert.InDelta(t, 4, gis.PolygonArea(geom.MultiPolygon{f.Geometry}), 1e-12)
	assert.Greater(t, gis.RingArea(f.Geometry[0]), 0.0)
}

func TestVectorize_Hole(t *testing.T) {
	c := clippedFrom([][]float64{
		{5000, 5000, 5000},
		{5000, 0, 5000},
		{5000, 5000, 5000},
	})

	feats, err := VectorizeAll(context.Background(), c, Wheat, Options{BlockRows: 3})
	require.NoError(t, err)
	require.Len(t, feats, 1)
	require.Len(t, feats[0].Geometry, 2)
	assert.InDelta(t, 8, gis.PolygonArea(geom.MultiPolygon{feats[0].Geometry}), 1e-12)
	assert.False(t, gis.ContainsPoint(geom.MultiPolygon{feats[0].Geometry}, geom.Point{X: 1.5, Y: 1.5}))
	assert.True(t, gis.ContainsPoint(geom.MultiPolygon{feats[0].Geometry}, geom.Point{X: 0.5, Y: 1.5}))
}

func TestVectorize_DiagonalCellsStaySeparate(t *testing.T) {
	c := clippedFrom([][]float64{
		{5000, 0},
		{0, 5000},
	})

	feats, err := VectorizeAll(context.Background(), c, Wheat, Options{BlockRows: 2})
	require.NoError(t, err)
	require.Len(t, feats, 2)
	for _, f := range feats {
		assert.Equal(t, 1, f.Cells)
		assert.Len(t, f.Geometry[0], 4)
	}
}

func TestVectorize_OrderByClassThenPosition(t *testing.T) {
	c := clippedFrom([][]float64{
		{8000, 0, 1500},
		{0, 0, 0},
		{1500, 0, 8000},
	})

	feats, err := VectorizeAll(context.Background(), c, Wheat, Options{BlockRows: 3})
	require.NoError(t, err)
	require.Len(t, feats, 4)
	assert.Equal(t, []int{1, 1, 3, 3}, []int{feats[0].Class, feats[1].Class, feats[2].Class, feats[3].Class})
	first, ok := gis.Centroid(geom.MultiPolygon{feats[0].Geometry})
	require.True(t, ok)
	assert.InDelta(t, 2.5, first.X, 1e-9)
	assert.InDelta(t, 2.5, first.Y, 1e-9)
}

func TestVectorize_BlocksConserveArea(t *testing.T) {
	rows := make([][]float64, 17)
	for i := range rows {
		rows[i] = make([]float64, 13)
		for j := range rows[i] {
			rows[i][j] = float64(((i*7 + j*3) % 5) * 2000)
		}
	}
	c := clippedFrom(rows)

	var classified int
	for _, v := range c.Values {
		if Wheat.Classify(v) > 0 {
			classified++
		}
	}

	for _, blockRows := range []int{1, 4, 17} {
		feats, err := VectorizeAll(context.Background(), c, Wheat, Options{BlockRows: blockRows, Workers: 3})
		require.NoError(t, err)
		assert.InDelta(t, float64(classified), totalArea(feats), 1e-9, "block rows %d", blockRows)
		cells := 0
		for _, f := range feats {
			cells += f.Cells
		}
		assert.Equal(t, classified, cells)
	}
}

func TestVectorize_DeterministicAcrossWorkers(t *testing.T) {
	rows := make([][]float64, 20)
	for i := range rows {
		rows[i] = make([]float64, 9)
		for j := range rows[i] {
			rows[i][j] = float64(((i*i + j*5) % 4) * 2500)
		}
	}
	c := clippedFrom(rows)

	one, err := VectorizeAll(context.Background(), c, Wheat, Options{BlockRows: 3, Workers: 1})
	require.NoError(t, err)
	many, err := VectorizeAll(context.Background(), c, Wheat, Options{BlockRows: 3, Workers: 5})
	require.NoError(t, err)
	assert.Equal(t, one, many)

	for i := 1; i < len(one); i++ {
		assert.LessOrEqual(t, one[i-1].Block, one[i].Block)
	}
}

func TestVectorize_Simplify(t *testing.T) {
	c := clippedFrom(filled(6, 6, 9000))
	feats, err := VectorizeAll(context.Background(), c, Wheat, Options{BlockRows: 6, Tolerance: 0.1})
	require.NoError(t, err)
	require.Len(t, feats, 1)
	assert.InDelta(t, 36, gis.PolygonArea(geom.MultiPolygon{feats[0].Geometry}), 1e-9)
}

func TestVectorize_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := clippedFrom(filled(4, 4, 9000))

	_, err := VectorizeAll(ctx, c, Wheat, Options{BlockRows: 1, Workers: 2})
	assert.Error(t, err)
}
