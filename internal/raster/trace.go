package raster

import (
	"sort"

	"github.com/ctessum/geom"
	"github.com/sells-group/railway-atlas/internal/model"
)

// component is a 4-connected region of same-class cells within a block.
type component struct {
	id    int
	class int
	cells []int // indices into the clipped grid, row-major
}

type components struct {
	ids  []int // per block cell, -1 when unclassified
	list []component
}

// label finds the connected regions of rows [r0, r1), sorted by class and
// then by first cell.
func label(classes []int, cols, r0, r1 int) components {
	n := (r1 - r0) * cols
	cs := components{ids: make([]int, n)}
	for i := range cs.ids {
		cs.ids[i] = -1
	}

	var stack []int
	for i := 0; i < n; i++ {
		k := classes[r0*cols+i]
		if k == 0 || cs.ids[i] >= 0 {
			continue
		}
		comp := component{id: len(cs.list), class: k}
		cs.ids[i] = comp.id
		stack = append(stack[:0], i)
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			comp.cells = append(comp.cells, r0*cols+cur)
			row, col := cur/cols, cur%cols
			for _, nb := range [4][2]int{{row - 1, col}, {row + 1, col}, {row, col - 1}, {row, col + 1}} {
				if nb[0] < 0 || nb[0] >= r1-r0 || nb[1] < 0 || nb[1] >= cols {
					continue
				}
				j := nb[0]*cols + nb[1]
				if cs.ids[j] < 0 && classes[r0*cols+j] == k {
					cs.ids[j] = comp.id
					stack = append(stack, j)
				}
			}
		}
		sort.Ints(comp.cells)
		cs.list = append(cs.list, comp)
	}
	sort.SliceStable(cs.list, func(i, j int) bool {
		if cs.list[i].class != cs.list[j].class {
			return cs.list[i].class < cs.list[j].class
		}
		return cs.list[i].cells[0] < cs.list[j].cells[0]
	})
	return cs
}

// vertex is a cell corner in grid coordinates (column, absolute row).
type vertex struct{ col, row int }

// Edge directions in counter-clockwise order, in world orientation.
const (
	east = iota
	north
	west
	south
)

type edge struct {
	from, to vertex
	dir      int
	comp     int
	used     bool
}

type ringSet struct {
	outer []vertex
	holes [][]vertex
}

// traceRings follows the boundary of every component with the interior on
// the left. Where two diagonal cells touch, the walk turns left so that the
// cells stay in separate rings (4-connectivity). Counter-clockwise rings are
// exteriors, clockwise rings are holes.
func traceRings(classes []int, cs components, cols, r0, r1 int) []ringSet {
	same := func(row, col, k int) bool {
		if row < r0 || row >= r1 || col < 0 || col >= cols {
			return false
		}
		return classes[row*cols+col] == k
	}

	var edges []*edge
	out := make(map[vertex][]*edge)
	add := func(from, to vertex, dir, comp int) {
		e := &edge{from: from, to: to, dir: dir, comp: comp}
		edges = append(edges, e)
		out[from] = append(out[from], e)
	}
	for row := r0; row < r1; row++ {
		for col := 0; col < cols; col++ {
			k := classes[row*cols+col]
			if k == 0 {
				continue
			}
			id := cs.ids[(row-r0)*cols+col]
			if !same(row+1, col, k) {
				add(vertex{col, row + 1}, vertex{col + 1, row + 1}, east, id)
			}
			if !same(row, col+1, k) {
				add(vertex{col + 1, row + 1}, vertex{col + 1, row}, north, id)
			}
			if !same(row-1, col, k) {
				add(vertex{col + 1, row}, vertex{col, row}, west, id)
			}
			if !same(row, col-1, k) {
				add(vertex{col, row}, vertex{col, row + 1}, south, id)
			}
		}
	}

	rings := make([]ringSet, len(cs.list))
	for _, start := range edges {
		if start.used {
			continue
		}
		var ring []vertex
		e := start
		for {
			e.used = true
			ring = append(ring, e.from)
			next := nextEdge(out[e.to], e.dir)
			if next == nil || next == start || next.used {
				break
			}
			e = next
		}
		ring = corners(ring)
		if ringSignedArea(ring) > 0 {
			rings[start.comp].outer = ring
		} else {
			rings[start.comp].holes = append(rings[start.comp].holes, ring)
		}
	}
	return rings
}

// nextEdge picks the outgoing edge after arriving in direction dir,
// preferring a left turn, then straight on, then a right turn.
func nextEdge(cands []*edge, dir int) *edge {
	if len(cands) == 1 {
		return cands[0]
	}
	for _, want := range [3]int{(dir + 1) % 4, dir, (dir + 3) % 4} {
		for _, e := range cands {
			if e.dir == want {
				return e
			}
		}
	}
	return nil
}

// corners drops vertices where the walk goes straight on.
func corners(ring []vertex) []vertex {
	n := len(ring)
	if n < 3 {
		return ring
	}
	out := make([]vertex, 0, n)
	for i := 0; i < n; i++ {
		prev, cur, next := ring[(i+n-1)%n], ring[i], ring[(i+1)%n]
		if (cur.col-prev.col)*(next.row-cur.row) == (cur.row-prev.row)*(next.col-cur.col) {
			continue
		}
		out = append(out, cur)
	}
	return out
}

// ringSignedArea is positive for counter-clockwise rings in world
// orientation (rows grow downward).
func ringSignedArea(ring []vertex) int {
	var a int
	n := len(ring)
	for i := 0; i < n; i++ {
		p, q := ring[i], ring[(i+1)%n]
		a += p.col*(-q.row) - q.col*(-p.row)
	}
	return a
}

func toWorld(ring []vertex, spec model.GridSpec) []geom.Point {
	out := make([]geom.Point, len(ring))
	for i, v := range ring {
		out[i] = geom.Point{
			X: spec.OriginX + float64(v.col)*spec.CellSize,
			Y: spec.OriginY - float64(v.row)*spec.CellSize,
		}
	}
	return out
}
