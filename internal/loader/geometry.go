package loader

import (
	"math"

	"github.com/ctessum/geom"
	"github.com/sells-group/railway-atlas/internal/gis"
	"github.com/sells-group/railway-atlas/internal/model"
)

// ringProblem checks a ring as stored in the source. With repair, an
// unclosed ring is closed and repeated vertices are dropped before the
// checks. The returned ring is open (closing vertex removed).
func ringProblem(ring []geom.Point, repair bool) ([]geom.Point, string) {
	for _, p := range ring {
		if !finite(p) {
			return nil, "non-finite coordinate"
		}
	}
	if repair {
		ring = dedupe(ring)
		if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
			ring = append(append([]geom.Point(nil), ring...), ring[0])
		}
	}
	if len(ring) < 4 {
		return nil, "ring has fewer than 4 points"
	}
	if ring[0] != ring[len(ring)-1] {
		return nil, "ring is not closed"
	}
	return ring[:len(ring)-1], ""
}

func dedupe(pts []geom.Point) []geom.Point {
	out := make([]geom.Point, 0, len(pts))
	for _, p := range pts {
		if len(out) > 0 && out[len(out)-1] == p {
			continue
		}
		out = append(out, p)
	}
	return out
}

func finite(p geom.Point) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// polygonal validates and normalizes an areal feature in its source CRS.
// id names the feature in returned errors.
func polygonal(src Source, f feature, id string) (geom.MultiPolygon, error) {
	var mp geom.MultiPolygon
	switch g := f.geometry.(type) {
	case geom.MultiPolygon:
		mp = g
	case geom.Polygon:
		mp = geom.MultiPolygon{g}
	default:
		return nil, model.NewSourceFormatError(src.label(), id, "expected a polygon geometry", nil)
	}

	out := make(geom.MultiPolygon, 0, len(mp))
	for _, poly := range mp {
		var clean geom.Polygon
		for _, ring := range poly {
			r, problem := ringProblem(ring, src.Repair)
			if problem != "" {
				return nil, model.NewSourceFormatError(src.label(), id, problem, nil)
			}
			clean = append(clean, r)
		}
		out = append(out, clean)
	}
	out = gis.CleanPolygon(out)
	if len(out) == 0 {
		return nil, model.NewSourceFormatError(src.label(), id, "polygon has no area", nil)
	}
	if si := gis.FindSelfIntersection(out); si != nil {
		return nil, model.NewTopologyError(src.label(), id, si.String())
	}
	return out, nil
}

// lineal validates a linear feature in its source CRS.
func lineal(src Source, f feature, id string) (geom.MultiLineString, error) {
	ml, ok := f.geometry.(geom.MultiLineString)
	if !ok {
		return nil, model.NewSourceFormatError(src.label(), id, "expected a line geometry", nil)
	}
	for _, ls := range ml {
		for _, p := range ls {
			if !finite(p) {
				return nil, model.NewSourceFormatError(src.label(), id, "non-finite coordinate", nil)
			}
		}
	}
	out := gis.CleanLine(ml)
	if len(out) == 0 {
		return nil, model.NewSourceFormatError(src.label(), id, "line has fewer than 2 distinct points", nil)
	}
	return out, nil
}
