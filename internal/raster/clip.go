// Package raster clips context rasters to the national boundary and turns
// classified cells into polygons.
package raster

import (
	"context"
	"io"
	"math"
	"strconv"

	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	"github.com/sells-group/railway-atlas/internal/gis"
	"github.com/sells-group/railway-atlas/internal/model"
	"go.uber.org/zap"
)

// RowReader streams a north-up grid one row at a time, top row first.
// NoData cells are NaN.
type RowReader interface {
	Spec() model.GridSpec
	ReadRow(buf []float64) error
}

// Clipped is the window of a raster covering a boundary, with every cell
// whose centre lies outside the boundary set to NaN.
type Clipped struct {
	Layer  string
	Spec   model.GridSpec
	Values []float64 // row-major, Spec.Rows*Spec.Cols
	Kept   int
}

// At returns the value of cell (row, col).
func (c *Clipped) At(row, col int) float64 {
	return c.Values[row*c.Spec.Cols+col]
}

// Clip crops r to the bounding box of boundary and masks it: a cell is kept
// whole when its centre is inside the boundary and dropped otherwise.
// boundary must be in the raster CRS. Rows below the window are not read.
func Clip(ctx context.Context, layer string, r RowReader, boundary geom.MultiPolygon) (*Clipped, error) {
	log := zap.L().With(zap.String("component", "raster.clip"), zap.String("layer", layer))
	spec := r.Spec()

	b := gis.AreaBounds(boundary)
	if len(boundary) == 0 || b.Min.X > b.Max.X {
		return nil, &model.EmptyClipError{Layer: layer}
	}
	cs := spec.CellSize
	c0 := clampInt(int(math.Floor((b.Min.X-spec.OriginX)/cs)), 0, spec.Cols)
	c1 := clampInt(int(math.Ceil((b.Max.X-spec.OriginX)/cs)), 0, spec.Cols)
	r0 := clampInt(int(math.Floor((spec.OriginY-b.Max.Y)/cs)), 0, spec.Rows)
	r1 := clampInt(int(math.Ceil((spec.OriginY-b.Min.Y)/cs)), 0, spec.Rows)
	if c0 >= c1 || r0 >= r1 {
		return nil, &model.EmptyClipError{Layer: layer}
	}

	win := spec
	win.Cols = c1 - c0
	win.Rows = r1 - r0
	win.OriginX = spec.OriginX + float64(c0)*cs
	win.OriginY = spec.OriginY - float64(r0)*cs

	out := &Clipped{Layer: layer, Spec: win, Values: make([]float64, win.Rows*win.Cols)}
	lines := gis.Scanlines(boundary, win.OriginY, cs, win.Rows)
	buf := make([]float64, spec.Cols)

	for row := 0; row < r1; row++ {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "raster: clip cancelled")
		}
		if err := r.ReadRow(buf); err != nil {
			if err == io.EOF {
				return nil, model.NewSourceFormatError(layer, "", "grid ended before row "+strconv.Itoa(row), nil)
			}
			return nil, err
		}
		if row < r0 {
			continue
		}
		wr := row - r0
		xs := lines[wr]
		dst := out.Values[wr*win.Cols : (wr+1)*win.Cols]
		for col := range dst {
			v := buf[c0+col]
			x := win.OriginX + (float64(col)+0.5)*cs
			if math.IsNaN(v) || !gis.InsideScanline(xs, x) {
				dst[col] = math.NaN()
				continue
			}
			dst[col] = v
			out.Kept++
		}
	}

	if out.Kept == 0 {
		return nil, &model.EmptyClipError{Layer: layer}
	}
	log.Info("raster clipped",
		zap.Int("cols", win.Cols),
		zap.Int("rows", win.Rows),
		zap.Int("kept", out.Kept),
	)
	return out, nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
