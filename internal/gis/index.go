package gis

import (
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
)

// maxChunkEdges bounds the number of edges per indexed line chunk so that
// chunk bounding boxes stay tight around long, winding lines.
const maxChunkEdges = 16

// lineChunk is a run of consecutive vertices of one indexed line.
type lineChunk struct {
	geom.LineString
	ref int
}

// LineIndex answers nearest-line queries over a fixed set of polylines.
type LineIndex struct {
	tree   *rtree.Rtree
	bounds *geom.Bounds
	n      int
}

// NewLineIndex indexes lines; the ref returned by queries is the position
// of the line in the slice.
func NewLineIndex(lines []geom.MultiLineString) *LineIndex {
	idx := &LineIndex{tree: rtree.NewTree(25, 50), bounds: geom.NewBounds()}
	for ref, ml := range lines {
		for _, ls := range ml {
			for start := 0; start+1 < len(ls); start += maxChunkEdges {
				end := start + maxChunkEdges + 1
				if end > len(ls) {
					end = len(ls)
				}
				c := &lineChunk{LineString: ls[start:end], ref: ref}
				idx.tree.Insert(c)
				idx.bounds.Extend(c.Bounds())
				idx.n++
			}
		}
	}
	return idx
}

// Len returns the number of indexed chunks.
func (idx *LineIndex) Len() int { return idx.n }

// Nearest returns the ref of the line closest to p and the distance to it.
// ok is false when the index is empty.
//
// The search window doubles until the best hit lies within the window's
// half-size: any closer line would then have a point inside the window and
// therefore a chunk intersecting it, so the result is exact.
func (idx *LineIndex) Nearest(p geom.Point, initial float64) (ref int, d float64, ok bool) {
	if idx.n == 0 {
		return 0, math.Inf(1), false
	}
	if initial <= 0 {
		initial = 1
	}
	limit := boundsDistance(idx.bounds, p) + boundsDiagonal(idx.bounds) + initial
	for r := initial; ; r *= 2 {
		ref, d, ok = idx.search(p, r)
		if ok && d <= r {
			return ref, d, true
		}
		if r > limit {
			// Window covers everything; the best hit is the answer.
			return ref, d, ok
		}
	}
}

// NearestWithin returns the closest line strictly nearer than maxDist.
func (idx *LineIndex) NearestWithin(p geom.Point, maxDist float64) (ref int, d float64, ok bool) {
	if idx.n == 0 {
		return 0, math.Inf(1), false
	}
	if math.IsInf(maxDist, 1) {
		return idx.Nearest(p, 0)
	}
	ref, d, ok = idx.search(p, maxDist)
	if ok && d < maxDist {
		return ref, d, true
	}
	return 0, math.Inf(1), false
}

// search scans the chunks whose bounds meet the square window of half-size r.
// Ties resolve to the lowest ref for determinism.
func (idx *LineIndex) search(p geom.Point, r float64) (int, float64, bool) {
	win := &geom.Bounds{
		Min: geom.Point{X: p.X - r, Y: p.Y - r},
		Max: geom.Point{X: p.X + r, Y: p.Y + r},
	}
	best, bestRef, found := math.Inf(1), 0, false
	for _, hit := range idx.tree.SearchIntersect(win) {
		c := hit.(*lineChunk)
		d := DistanceToLineString(p, c.LineString)
		if d < best || (d == best && c.ref < bestRef) {
			best, bestRef, found = d, c.ref, true
		}
	}
	return bestRef, best, found
}

// areaEntry is an indexed polygonal unit.
type areaEntry struct {
	geom.MultiPolygon
	ref int
}

// AreaIndex finds polygons whose bounding boxes meet a query box.
type AreaIndex struct {
	tree *rtree.Rtree
}

// NewAreaIndex indexes areas by bounding box; refs are slice positions.
func NewAreaIndex(areas []geom.MultiPolygon) *AreaIndex {
	idx := &AreaIndex{tree: rtree.NewTree(25, 50)}
	for ref, mp := range areas {
		if len(mp) == 0 {
			continue
		}
		idx.tree.Insert(&areaEntry{MultiPolygon: mp, ref: ref})
	}
	return idx
}

// Candidates returns the refs of areas whose bounds overlap b, ascending.
func (idx *AreaIndex) Candidates(b *geom.Bounds) []int {
	hits := idx.tree.SearchIntersect(b)
	refs := make([]int, 0, len(hits))
	for _, h := range hits {
		refs = append(refs, h.(*areaEntry).ref)
	}
	sortInts(refs)
	return refs
}

func boundsDistance(b *geom.Bounds, p geom.Point) float64 {
	dx := math.Max(0, math.Max(b.Min.X-p.X, p.X-b.Max.X))
	dy := math.Max(0, math.Max(b.Min.Y-p.Y, p.Y-b.Max.Y))
	return math.Hypot(dx, dy)
}

func boundsDiagonal(b *geom.Bounds) float64 {
	return math.Hypot(b.Max.X-b.Min.X, b.Max.Y-b.Min.Y)
}

// LineBounds returns the bounding box of ml.
func LineBounds(ml geom.MultiLineString) *geom.Bounds {
	b := geom.NewBounds()
	for _, ls := range ml {
		for _, p := range ls {
			b.Extend(p.Bounds())
		}
	}
	return b
}

// AreaBounds returns the bounding box of mp.
func AreaBounds(mp geom.MultiPolygon) *geom.Bounds {
	b := geom.NewBounds()
	for _, poly := range mp {
		for _, ring := range poly {
			for _, p := range ring {
				b.Extend(p.Bounds())
			}
		}
	}
	return b
}
