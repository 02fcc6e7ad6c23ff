package loader

import (
	"bufio"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/sells-group/railway-atlas/internal/model"
)

// GridReader streams an ESRI ASCII grid row by row, top row first.
type GridReader struct {
	src     Source
	spec    model.GridSpec
	f       *os.File
	sc      *bufio.Scanner
	row     int
	pending []string
}

// OpenGrid opens an ASCII grid and parses its header. The caller must Close it.
func OpenGrid(src Source) (*GridReader, error) {
	format, err := DetectFormat(src.Path)
	if err != nil {
		return nil, err
	}
	if format != FormatAAIGrid {
		return nil, model.NewSourceFormatError(src.label(), "", format.String()+" is not a raster format", nil)
	}

	declared, _, err := prjCRS(src.Path)
	if err != nil {
		return nil, err
	}
	crs, err := resolveCRS(src, declared, "")
	if err != nil {
		return nil, err
	}

	f, err := os.Open(src.Path)
	if err != nil {
		return nil, model.NewSourceFormatError(src.label(), "", "open grid", eris.Wrapf(err, "loader: open %s", src.Path))
	}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1<<20), 1<<26)

	g := &GridReader{src: src, f: f, sc: sc}
	if err := g.readHeader(); err != nil {
		_ = f.Close()
		return nil, err
	}
	g.spec.CRS = crs
	return g, nil
}

// readHeader consumes the ncols/nrows/xll/yll/cellsize/nodata lines. The
// first non-keyword line is kept as the start of the data.
func (g *GridReader) readHeader() error {
	vals := map[string]float64{}
	var xCenter, yCenter bool
	for g.sc.Scan() {
		fields := strings.Fields(g.sc.Text())
		if len(fields) == 0 {
			continue
		}
		key := strings.ToLower(fields[0])
		if _, err := strconv.ParseFloat(key, 64); err == nil || key == "nan" {
			g.pending = fields
			break
		}
		if len(fields) != 2 {
			return model.NewSourceFormatError(g.src.label(), "", "malformed header line "+strconv.Quote(g.sc.Text()), nil)
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return model.NewSourceFormatError(g.src.label(), "", "malformed header value for "+key, err)
		}
		switch key {
		case "xllcenter":
			xCenter = true
			key = "xllcorner"
		case "yllcenter":
			yCenter = true
			key = "yllcorner"
		}
		vals[key] = v
	}
	if err := g.sc.Err(); err != nil {
		return model.NewSourceFormatError(g.src.label(), "", "read header", err)
	}
	for _, k := range []string{"ncols", "nrows", "xllcorner", "yllcorner", "cellsize"} {
		if _, ok := vals[k]; !ok {
			return model.NewSourceFormatError(g.src.label(), "", "missing header "+k, nil)
		}
	}

	s := model.GridSpec{
		Cols:     int(vals["ncols"]),
		Rows:     int(vals["nrows"]),
		CellSize: vals["cellsize"],
		NoData:   -9999,
	}
	if nd, ok := vals["nodata_value"]; ok {
		s.NoData = nd
	}
	if s.Cols <= 0 || s.Rows <= 0 || s.CellSize <= 0 {
		return model.NewSourceFormatError(g.src.label(), "", "grid dimensions must be positive", nil)
	}
	s.OriginX = vals["xllcorner"]
	if xCenter {
		s.OriginX -= s.CellSize / 2
	}
	bottom := vals["yllcorner"]
	if yCenter {
		bottom -= s.CellSize / 2
	}
	s.OriginY = bottom + float64(s.Rows)*s.CellSize
	g.spec = s
	return nil
}

// Spec returns the grid geometry.
func (g *GridReader) Spec() model.GridSpec { return g.spec }

// ReadRow fills buf (len >= Cols) with the next row. NoData cells are NaN.
// It returns io.EOF after the last row.
func (g *GridReader) ReadRow(buf []float64) error {
	if g.row >= g.spec.Rows {
		return io.EOF
	}
	if len(buf) < g.spec.Cols {
		return eris.Errorf("loader: row buffer holds %d cells, grid has %d columns", len(buf), g.spec.Cols)
	}
	n := 0
	for n < g.spec.Cols {
		if len(g.pending) == 0 {
			if !g.sc.Scan() {
				if err := g.sc.Err(); err != nil {
					return model.NewSourceFormatError(g.src.label(), "", "read grid", err)
				}
				return model.NewSourceFormatError(g.src.label(), "row "+strconv.Itoa(g.row), "truncated grid data", nil)
			}
			g.pending = strings.Fields(g.sc.Text())
			continue
		}
		tok := g.pending[0]
		g.pending = g.pending[1:]
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return model.NewSourceFormatError(g.src.label(), "row "+strconv.Itoa(g.row), "invalid cell value "+strconv.Quote(tok), err)
		}
		if v == g.spec.NoData || math.IsNaN(v) {
			v = math.NaN()
		}
		buf[n] = v
		n++
	}
	g.row++
	return nil
}

// Close releases the file handle.
func (g *GridReader) Close() error {
	if g.f == nil {
		return nil
	}
	err := g.f.Close()
	g.f = nil
	return err
}
