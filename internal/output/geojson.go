package output

import (
	"encoding/json"

	cg "github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	"github.com/sells-group/railway-atlas/internal/gis"
	"github.com/sells-group/railway-atlas/internal/model"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// coordDecimals is the precision of display coordinates (about 10 m in
// degrees).
const coordDecimals = 4

// layerCollection turns vectorized cells into a feature collection in the
// display CRS. Cells carry their raster CRS; an empty one means the metric
// CRS. Cells that collapse after rounding are dropped.
func (w *Writer) layerCollection(cells []model.VectorizedCell) (*geojson.FeatureCollection, error) {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(cells))}
	for _, c := range cells {
		proj, err := w.projectorFor(c.CRS)
		if err != nil {
			return nil, err
		}
		poly, err := proj.Polygon(c.Geometry)
		if err != nil {
			return nil, eris.Wrapf(err, "output: reproject %s cell", c.Layer)
		}
		poly = roundPolygon(poly)
		if poly == nil {
			continue
		}
		g := gis.ToGeomT(poly, w.srid)
		if g == nil {
			continue
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry: g,
			Properties: map[string]any{
				"class": c.Class,
				"value": gis.Round(c.Value, 2),
				"cells": c.Cells,
			},
		})
	}
	return fc, nil
}

// networkCollection holds the segments active in one year, each tagged with
// its partition (type, gauge).
func (w *Writer) networkCollection(year int, segments []model.RailSegment) (*geojson.FeatureCollection, error) {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(segments))}
	for _, s := range segments {
		ml, err := w.display.MultiLineString(s.Geometry)
		if err != nil {
			return nil, eris.Wrapf(err, "output: reproject segment %s", s.ID)
		}
		ml = roundLine(ml)
		if len(ml) == 0 {
			continue
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       s.ID,
			Geometry: gis.ToGeomT(ml, w.srid),
			Properties: map[string]any{
				"type":     string(s.LineType),
				"gauge":    string(s.Gauge),
				"year":     s.Year,
				"active":   year,
				"length_m": gis.Round(s.Length, 1),
			},
		})
	}
	return fc, nil
}

func marshalCollection(fc *geojson.FeatureCollection) ([]byte, error) {
	data, err := json.Marshal(fc)
	if err != nil {
		return nil, eris.Wrap(err, "output: marshal geojson")
	}
	return append(data, '\n'), nil
}

func roundPath(pts []cg.Point) []cg.Point {
	out := make([]cg.Point, 0, len(pts))
	for _, p := range pts {
		q := cg.Point{X: gis.Round(p.X, coordDecimals), Y: gis.Round(p.Y, coordDecimals)}
		if n := len(out); n > 0 && out[n-1] == q {
			continue
		}
		out = append(out, q)
	}
	return out
}

func roundPolygon(poly cg.Polygon) cg.Polygon {
	var out cg.Polygon
	for i, ring := range poly {
		r := roundPath(ring)
		if len(r) > 1 && r[0] == r[len(r)-1] {
			r = r[:len(r)-1]
		}
		if len(r) < 3 {
			if i == 0 {
				return nil
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

func roundLine(ml cg.MultiLineString) cg.MultiLineString {
	var out cg.MultiLineString
	for _, ls := range ml {
		r := roundPath(ls)
		if len(r) < 2 {
			continue
		}
		out = append(out, cg.LineString(r))
	}
	return out
}

func (w *Writer) projectorFor(crs string) (*gis.Projector, error) {
	if crs == "" || gis.NormalizeCRS(crs) == w.display.From {
		return w.display, nil
	}
	if p, ok := w.rasterProj[crs]; ok {
		return p, nil
	}
	p, err := gis.NewProjector(crs, w.opts.DisplayCRS)
	if err != nil {
		return nil, eris.Wrapf(err, "output: project layer from %s", crs)
	}
	w.rasterProj[crs] = p
	return p, nil
}
