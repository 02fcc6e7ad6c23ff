package gis

import (
	"math"

	cg "github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// ToGeomT converts a planar geometry into its go-geom form so it can be
// written as GeoJSON or EWKB. Unsupported types return nil.
func ToGeomT(g cg.Geom, srid int) geom.T {
	switch v := g.(type) {
	case cg.Point:
		return geom.NewPointFlat(geom.XY, []float64{v.X, v.Y}).SetSRID(srid)
	case cg.MultiLineString:
		return multiLineToT(v).SetSRID(srid)
	case cg.Polygon:
		p := polygonToT(v)
		if p == nil {
			return nil
		}
		return p.SetSRID(srid)
	case cg.MultiPolygon:
		return multiPolygonToT(v).SetSRID(srid)
	}
	return nil
}

func multiLineToT(ml cg.MultiLineString) *geom.MultiLineString {
	out := geom.NewMultiLineString(geom.XY)
	for _, ls := range ml {
		if len(ls) < 2 {
			continue
		}
		_ = out.Push(geom.NewLineStringFlat(geom.XY, flatPath(ls, false)))
	}
	return out
}

func polygonToT(p cg.Polygon) *geom.Polygon {
	if len(p) == 0 || len(p[0]) < 3 {
		return nil
	}
	out := geom.NewPolygon(geom.XY)
	for _, ring := range p {
		if len(ring) < 3 {
			continue
		}
		_ = out.Push(geom.NewLinearRingFlat(geom.XY, flatPath(ring, true)))
	}
	return out
}

func multiPolygonToT(mp cg.MultiPolygon) *geom.MultiPolygon {
	out := geom.NewMultiPolygon(geom.XY)
	for _, p := range mp {
		if t := polygonToT(p); t != nil {
			_ = out.Push(t)
		}
	}
	return out
}

// flatPath flattens a path to x,y pairs; rings are closed on output.
func flatPath(path []cg.Point, closed bool) []float64 {
	flat := make([]float64, 0, 2*len(path)+2)
	for _, p := range path {
		flat = append(flat, p.X, p.Y)
	}
	if closed && len(path) > 0 && !samePoint(path[0], path[len(path)-1]) {
		flat = append(flat, path[0].X, path[0].Y)
	}
	return flat
}

// FromGeomT converts a go-geom geometry into the planar types used for
// computation. Rings keep their vertices as stored, closing point included;
// CleanPolygon opens them.
func FromGeomT(g geom.T) (cg.Geom, error) {
	switch v := g.(type) {
	case *geom.Point:
		c := v.Coords()
		return cg.Point{X: c.X(), Y: c.Y()}, nil
	case *geom.LineString:
		return cg.MultiLineString{coordsToPath(v.Coords())}, nil
	case *geom.MultiLineString:
		ml := make(cg.MultiLineString, 0, v.NumLineStrings())
		for i := 0; i < v.NumLineStrings(); i++ {
			ml = append(ml, coordsToPath(v.LineString(i).Coords()))
		}
		return ml, nil
	case *geom.Polygon:
		return cg.MultiPolygon{polygonFromT(v)}, nil
	case *geom.MultiPolygon:
		mp := make(cg.MultiPolygon, 0, v.NumPolygons())
		for i := 0; i < v.NumPolygons(); i++ {
			mp = append(mp, polygonFromT(v.Polygon(i)))
		}
		return mp, nil
	case nil:
		return nil, eris.New("gis: missing geometry")
	}
	return nil, eris.Errorf("gis: unsupported geometry type %T", g)
}

func polygonFromT(p *geom.Polygon) cg.Polygon {
	out := make(cg.Polygon, 0, p.NumLinearRings())
	for i := 0; i < p.NumLinearRings(); i++ {
		out = append(out, coordsToPath(p.LinearRing(i).Coords()))
	}
	return out
}

func coordsToPath(coords []geom.Coord) []cg.Point {
	path := make([]cg.Point, 0, len(coords))
	for _, c := range coords {
		path = append(path, cg.Point{X: c.X(), Y: c.Y()})
	}
	return path
}

// EncodeEWKB returns the little-endian EWKB form of g.
func EncodeEWKB(g cg.Geom, srid int) ([]byte, error) {
	t := ToGeomT(g, srid)
	if t == nil {
		return nil, nil
	}
	data, err := ewkb.Marshal(t, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "gis: encode EWKB")
	}
	return data, nil
}

// Round rounds v to the given number of decimals.
func Round(v float64, decimals int) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return v
	}
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

func samePoint(a, b cg.Point) bool { return a.X == b.X && a.Y == b.Y }
