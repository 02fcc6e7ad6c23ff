package gis

import (
	"math"
	"sort"

	"github.com/ctessum/geom"
)

// DistanceToSegment returns the Euclidean distance from p to the segment a-b.
func DistanceToSegment(p, a, b geom.Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return dist(p, a)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / l2
	switch {
	case t <= 0:
		return dist(p, a)
	case t >= 1:
		return dist(p, b)
	}
	return math.Hypot(p.X-(a.X+t*dx), p.Y-(a.Y+t*dy))
}

// DistanceToLineString returns the distance from p to the nearest point of ls.
func DistanceToLineString(p geom.Point, ls []geom.Point) float64 {
	switch len(ls) {
	case 0:
		return math.Inf(1)
	case 1:
		return dist(p, ls[0])
	}
	best := math.Inf(1)
	for i := 0; i+1 < len(ls); i++ {
		if d := DistanceToSegment(p, ls[i], ls[i+1]); d < best {
			best = d
		}
	}
	return best
}

// DistanceToLine returns the distance from p to the nearest point of ml.
func DistanceToLine(p geom.Point, ml geom.MultiLineString) float64 {
	best := math.Inf(1)
	for _, ls := range ml {
		if d := DistanceToLineString(p, ls); d < best {
			best = d
		}
	}
	return best
}

func sortInts(v []int) { sort.Ints(v) }
