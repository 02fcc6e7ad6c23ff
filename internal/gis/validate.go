package gis

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
)

// edge is an indexed ring edge used by the self-intersection check.
type edge struct {
	geom.LineString
	ring, pos int
}

// CleanPolygon drops repeated vertices and closing points from every ring and
// removes rings with fewer than three distinct vertices. The first ring of
// each polygon is its exterior; a polygon whose exterior collapses is dropped.
func CleanPolygon(mp geom.MultiPolygon) geom.MultiPolygon {
	out := make(geom.MultiPolygon, 0, len(mp))
	for _, poly := range mp {
		var cp geom.Polygon
		for i, ring := range poly {
			r := cleanRing(ring)
			if len(r) < 3 || RingArea(r) == 0 {
				if i == 0 {
					break
				}
				continue
			}
			cp = append(cp, r)
		}
		if len(cp) > 0 {
			out = append(out, cp)
		}
	}
	return out
}

func cleanRing(ring []geom.Point) []geom.Point {
	out := make([]geom.Point, 0, len(ring))
	for _, p := range ring {
		if len(out) > 0 && samePoint(out[len(out)-1], p) {
			continue
		}
		out = append(out, p)
	}
	for len(out) > 1 && samePoint(out[0], out[len(out)-1]) {
		out = out[:len(out)-1]
	}
	return out
}

// CleanLine drops repeated vertices and parts with fewer than two points.
func CleanLine(ml geom.MultiLineString) geom.MultiLineString {
	out := make(geom.MultiLineString, 0, len(ml))
	for _, ls := range ml {
		c := make(geom.LineString, 0, len(ls))
		for _, p := range ls {
			if len(c) > 0 && samePoint(c[len(c)-1], p) {
				continue
			}
			c = append(c, p)
		}
		if len(c) >= 2 {
			out = append(out, c)
		}
	}
	return out
}

// RingArea returns the signed shoelace area of an open or closed ring;
// counter-clockwise rings are positive.
func RingArea(ring []geom.Point) float64 {
	n := len(ring)
	if n < 3 {
		return 0
	}
	var a float64
	j := n - 1
	for i := 0; i < n; i++ {
		a += (ring[j].X + ring[i].X) * (ring[j].Y - ring[i].Y)
		j = i
	}
	return -a / 2
}

// PolygonArea returns the area of mp with holes subtracted.
func PolygonArea(mp geom.MultiPolygon) float64 {
	var total float64
	for _, poly := range mp {
		for i, ring := range poly {
			a := math.Abs(RingArea(ring))
			if i == 0 {
				total += a
			} else {
				total -= a
			}
		}
	}
	return total
}

// Centroid returns the area-weighted centroid of the exterior rings of mp.
// ok is false for a zero-area geometry.
func Centroid(mp geom.MultiPolygon) (c geom.Point, ok bool) {
	var sx, sy, sa float64
	for _, poly := range mp {
		if len(poly) == 0 {
			continue
		}
		ring := poly[0]
		n := len(ring)
		j := n - 1
		for i := 0; i < n; i++ {
			f := ring[j].X*ring[i].Y - ring[i].X*ring[j].Y
			sx += (ring[j].X + ring[i].X) * f
			sy += (ring[j].Y + ring[i].Y) * f
			sa += f
			j = i
		}
	}
	if sa == 0 {
		return geom.Point{}, false
	}
	return geom.Point{X: sx / (3 * sa), Y: sy / (3 * sa)}, true
}

// SelfIntersection describes the first crossing found between two edges of
// a polygon's rings.
type SelfIntersection struct {
	Polygon int
	At      geom.Point
}

func (s *SelfIntersection) String() string {
	return fmt.Sprintf("polygon %d self-intersects near (%.6f, %.6f)", s.Polygon, s.At.X, s.At.Y)
}

// FindSelfIntersection returns the first proper crossing between
// non-adjacent edges within any polygon of mp, or nil when rings are simple.
// Touching vertices are tolerated.
func FindSelfIntersection(mp geom.MultiPolygon) *SelfIntersection {
	for pi, poly := range mp {
		tree := rtree.NewTree(25, 50)
		var edges []*edge
		for ri, ring := range poly {
			n := len(ring)
			for i := 0; i < n; i++ {
				e := &edge{LineString: geom.LineString{ring[i], ring[(i+1)%n]}, ring: ri, pos: i}
				tree.Insert(e)
				edges = append(edges, e)
			}
		}
		for _, e := range edges {
			for _, hit := range tree.SearchIntersect(e.Bounds()) {
				o := hit.(*edge)
				if o == e || adjacent(e, o, poly) {
					continue
				}
				if at, ok := properCrossing(e.LineString[0], e.LineString[1], o.LineString[0], o.LineString[1]); ok {
					return &SelfIntersection{Polygon: pi, At: at}
				}
			}
		}
	}
	return nil
}

func adjacent(a, b *edge, poly geom.Polygon) bool {
	if a.ring != b.ring {
		return false
	}
	n := len(poly[a.ring])
	return (a.pos+1)%n == b.pos || (b.pos+1)%n == a.pos
}

// properCrossing reports whether segments p1-p2 and q1-q2 cross at a single
// interior point of both.
func properCrossing(p1, p2, q1, q2 geom.Point) (geom.Point, bool) {
	r := geom.Point{X: p2.X - p1.X, Y: p2.Y - p1.Y}
	s := geom.Point{X: q2.X - q1.X, Y: q2.Y - q1.Y}
	denom := cross(r, s)
	if denom == 0 {
		return geom.Point{}, false
	}
	qp := geom.Point{X: q1.X - p1.X, Y: q1.Y - p1.Y}
	t := cross(qp, s) / denom
	u := cross(qp, r) / denom
	const tol = 1e-9
	if t <= tol || t >= 1-tol || u <= tol || u >= 1-tol {
		return geom.Point{}, false
	}
	return lerp(p1, p2, t), true
}
