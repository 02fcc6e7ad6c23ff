package gis

import (
	"math"
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
)

// Eps is the relative tolerance used when comparing line parameters.
const Eps = 1e-12

// boundaryTol is the relative distance within which a point counts as lying
// on a ring edge.
const boundaryTol = 1e3 * Eps

// ContainsPoint reports whether p is inside mp using the crossing-number rule
// with half-open edges. Rings of one polygon combine even-odd, so holes work
// regardless of winding. Polygons that share an edge assign a point on that
// edge to exactly one of them, which keeps overlay sums conservative.
func ContainsPoint(mp geom.MultiPolygon, p geom.Point) bool {
	for _, poly := range mp {
		if polygonContains(poly, p) {
			return true
		}
	}
	return false
}

// PolygonContains is ContainsPoint for a single polygon.
func PolygonContains(poly geom.Polygon, p geom.Point) bool {
	return polygonContains(poly, p)
}

func polygonContains(poly geom.Polygon, p geom.Point) bool {
	inside := false
	for _, ring := range poly {
		n := len(ring)
		if n < 3 {
			continue
		}
		j := n - 1
		for i := 0; i < n; i++ {
			a, b := ring[i], ring[j]
			if (a.Y > p.Y) != (b.Y > p.Y) {
				x := (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y) + a.X
				if p.X < x {
					inside = !inside
				}
			}
			j = i
		}
	}
	return inside
}

// Scanlines returns, for n horizontal lines y_i = top - (i+0.5)*step, the
// sorted x coordinates where each line crosses the rings of mp, with the same
// half-open rule as ContainsPoint. A point on line i is inside mp iff an odd
// number of its crossings lie to its right; for polygons that do not overlap
// this holds across all parts at once. Edges are bucketed by the lines they
// span, so the cost is proportional to the number of crossings.
func Scanlines(mp geom.MultiPolygon, top, step float64, n int) [][]float64 {
	rows := make([][]float64, n)
	if n == 0 || step <= 0 {
		return rows
	}
	yAt := func(i int) float64 { return top - (float64(i)+0.5)*step }
	for _, poly := range mp {
		for _, ring := range poly {
			m := len(ring)
			if m < 3 {
				continue
			}
			j := m - 1
			for k := 0; k < m; k++ {
				a, b := ring[k], ring[j]
				j = k
				if a.Y == b.Y {
					continue
				}
				lo, hi := math.Min(a.Y, b.Y), math.Max(a.Y, b.Y)
				// Lines with lo <= y < hi cross the edge.
				first := int(math.Ceil((top-hi)/step-0.5)) - 1
				last := int(math.Floor((top-lo)/step-0.5)) + 1
				if first < 0 {
					first = 0
				}
				if last > n-1 {
					last = n - 1
				}
				for i := first; i <= last; i++ {
					y := yAt(i)
					if (a.Y > y) != (b.Y > y) {
						rows[i] = append(rows[i], (b.X-a.X)*(y-a.Y)/(b.Y-a.Y)+a.X)
					}
				}
			}
		}
	}
	for _, xs := range rows {
		sort.Float64s(xs)
	}
	return rows
}

// InsideScanline reports whether x is inside given the sorted crossings of
// its scanline.
func InsideScanline(xs []float64, x float64) bool {
	right := len(xs) - sort.Search(len(xs), func(i int) bool { return xs[i] > x })
	return right%2 == 1
}

// Piece is a sub-segment of a polyline edge produced by an overlay split.
type Piece struct {
	A, B geom.Point
}

// Length returns the Euclidean length of the piece.
func (p Piece) Length() float64 { return dist(p.A, p.B) }

// Mid returns the midpoint of the piece.
func (p Piece) Mid() geom.Point {
	return geom.Point{X: (p.A.X + p.B.X) / 2, Y: (p.A.Y + p.B.Y) / 2}
}

// ringEdge is one indexed boundary edge of an area.
type ringEdge struct {
	geom.LineString
	ref int
}

// EdgeIndex holds the ring edges of a set of areas so that overlay splits
// only look at boundary edges near the line being cut.
type EdgeIndex struct {
	tree *rtree.Rtree
	n    int
}

// NewEdgeIndex indexes every ring edge of areas; refs are slice positions.
func NewEdgeIndex(areas []geom.MultiPolygon) *EdgeIndex {
	idx := &EdgeIndex{tree: rtree.NewTree(25, 50)}
	for ref, mp := range areas {
		for _, poly := range mp {
			for _, ring := range poly {
				n := len(ring)
				if n < 2 {
					continue
				}
				for i := 0; i < n; i++ {
					c, d := ring[i], ring[(i+1)%n]
					if c == d {
						continue
					}
					idx.tree.Insert(&ringEdge{LineString: geom.LineString{c, d}, ref: ref})
					idx.n++
				}
			}
		}
	}
	return idx
}

// Len returns the number of indexed edges.
func (idx *EdgeIndex) Len() int { return idx.n }

// Split cuts every edge of ml at its crossings with the indexed rings. Each
// returned piece lies entirely inside, entirely outside or along the
// boundary of every area, so classifying it by its midpoint is exact.
func (idx *EdgeIndex) Split(ml geom.MultiLineString) []Piece {
	var pieces []Piece
	var ts []float64
	for _, ls := range ml {
		for i := 0; i+1 < len(ls); i++ {
			a, b := ls[i], ls[i+1]
			if a == b {
				continue
			}
			ts = append(ts[:0], 0, 1)
			for _, hit := range idx.tree.SearchIntersect(edgeBounds(a, b)) {
				e := hit.(*ringEdge)
				ts = appendEdgeCrossings(ts, a, b, e.LineString[0], e.LineString[1])
			}
			sort.Float64s(ts)
			prev := 0.0
			for _, t := range ts[1:] {
				if t-prev <= Eps {
					continue
				}
				pieces = append(pieces, Piece{A: lerp(a, b, prev), B: lerp(a, b, t)})
				prev = t
			}
		}
	}
	return pieces
}

// Touching returns the refs, ascending, of areas with a ring edge passing
// through p. The tolerance scales with the magnitude of the coordinates.
func (idx *EdgeIndex) Touching(p geom.Point) []int {
	tol := boundaryTol * (1 + math.Max(math.Abs(p.X), math.Abs(p.Y)))
	win := &geom.Bounds{
		Min: geom.Point{X: p.X - tol, Y: p.Y - tol},
		Max: geom.Point{X: p.X + tol, Y: p.Y + tol},
	}
	var refs []int
	for _, hit := range idx.tree.SearchIntersect(win) {
		e := hit.(*ringEdge)
		if DistanceToSegment(p, e.LineString[0], e.LineString[1]) > tol {
			continue
		}
		dup := false
		for _, r := range refs {
			if r == e.ref {
				dup = true
				break
			}
		}
		if !dup {
			refs = append(refs, e.ref)
		}
	}
	sortInts(refs)
	return refs
}

// SplitLine is Split over a one-off index of polys.
func SplitLine(ml geom.MultiLineString, polys []geom.MultiPolygon) []Piece {
	return NewEdgeIndex(polys).Split(ml)
}

// ClipLength returns the length of ml that lies inside mp.
func ClipLength(ml geom.MultiLineString, mp geom.MultiPolygon) float64 {
	var total float64
	for _, p := range SplitLine(ml, []geom.MultiPolygon{mp}) {
		if ContainsPoint(mp, p.Mid()) {
			total += p.Length()
		}
	}
	return total
}

// OutsideLength returns the length of ml that lies in none of polys.
func OutsideLength(ml geom.MultiLineString, polys []geom.MultiPolygon) float64 {
	var total float64
	for _, p := range SplitLine(ml, polys) {
		in := false
		mid := p.Mid()
		for _, mp := range polys {
			if ContainsPoint(mp, mid) {
				in = true
				break
			}
		}
		if !in {
			total += p.Length()
		}
	}
	return total
}

// LineLength returns the total Euclidean length of ml.
func LineLength(ml geom.MultiLineString) float64 {
	var total float64
	for _, ls := range ml {
		for i := 0; i+1 < len(ls); i++ {
			total += dist(ls[i], ls[i+1])
		}
	}
	return total
}

// appendEdgeCrossings appends the parameters t in (0,1) at which edge a-b
// meets the ring edge c-d. A collinear overlap contributes its endpoints.
func appendEdgeCrossings(ts []float64, a, b, c, d geom.Point) []float64 {
	r := geom.Point{X: b.X - a.X, Y: b.Y - a.Y}
	rr := r.X*r.X + r.Y*r.Y
	s := geom.Point{X: d.X - c.X, Y: d.Y - c.Y}
	ca := geom.Point{X: c.X - a.X, Y: c.Y - a.Y}
	denom := cross(r, s)
	if math.Abs(denom) <= Eps*math.Sqrt(rr*(s.X*s.X+s.Y*s.Y)) {
		// Parallel: only collinear edges matter.
		if math.Abs(cross(ca, r)) > Eps*rr*1e3 {
			return ts
		}
		for _, q := range []geom.Point{c, d} {
			t := ((q.X-a.X)*r.X + (q.Y-a.Y)*r.Y) / rr
			if t > 0 && t < 1 {
				ts = append(ts, t)
			}
		}
		return ts
	}
	t := cross(ca, s) / denom
	u := cross(ca, r) / denom
	if t > 0 && t < 1 && u >= -Eps && u <= 1+Eps {
		ts = append(ts, t)
	}
	return ts
}

func edgeBounds(a, b geom.Point) *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: math.Min(a.X, b.X), Y: math.Min(a.Y, b.Y)},
		Max: geom.Point{X: math.Max(a.X, b.X), Y: math.Max(a.Y, b.Y)},
	}
}

func cross(a, b geom.Point) float64 { return a.X*b.Y - a.Y*b.X }

func dist(a, b geom.Point) float64 { return math.Hypot(b.X-a.X, b.Y-a.Y) }

func lerp(a, b geom.Point, t float64) geom.Point {
	if t == 1 {
		return b
	}
	return geom.Point{X: a.X + (b.X-a.X)*t, Y: a.Y + (b.Y-a.Y)*t}
}
