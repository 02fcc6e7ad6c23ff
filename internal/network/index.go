// Package network answers "which segments existed in year Y" over the
// historical railway network.
package network

import (
	"sort"

	"github.com/sells-group/railway-atlas/internal/model"
)

// Index holds segments sorted by (year, id). The network only grows, so
// every snapshot is a prefix of the sorted slice.
type Index struct {
	segments []model.RailSegment
	years    []int
}

// NewIndex sorts a copy of segments.
func NewIndex(segments []model.RailSegment) *Index {
	s := make([]model.RailSegment, len(segments))
	copy(s, segments)
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Year != s[j].Year {
			return s[i].Year < s[j].Year
		}
		return s[i].ID < s[j].ID
	})

	idx := &Index{segments: s}
	for i, seg := range s {
		if i == 0 || seg.Year != s[i-1].Year {
			idx.years = append(idx.years, seg.Year)
		}
	}
	return idx
}

// Snapshot is the set of segments in service in a year. It shares storage
// with the index and must not be modified.
type Snapshot struct {
	Year     int
	Segments []model.RailSegment
}

// Len returns the number of active segments.
func (s Snapshot) Len() int { return len(s.Segments) }

// Length returns the total track length of the snapshot in metres.
func (s Snapshot) Length() float64 {
	var total float64
	for _, seg := range s.Segments {
		total += seg.Length
	}
	return total
}

// Count returns the number of segments with Year <= year.
func (idx *Index) Count(year int) int {
	return sort.Search(len(idx.segments), func(i int) bool {
		return idx.segments[i].Year > year
	})
}

// SnapshotAt returns the segments with Year <= year.
func (idx *Index) SnapshotAt(year int) Snapshot {
	n := idx.Count(year)
	return Snapshot{Year: year, Segments: idx.segments[:n:n]}
}

// Years returns the distinct construction years in ascending order.
func (idx *Index) Years() []int {
	out := make([]int, len(idx.years))
	copy(out, idx.years)
	return out
}

// Added returns the segments with from < Year <= to.
func (idx *Index) Added(from, to int) []model.RailSegment {
	if to <= from {
		return nil
	}
	lo, hi := idx.Count(from), idx.Count(to)
	return idx.segments[lo:hi:hi]
}

// Segments returns all indexed segments in (year, id) order.
func (idx *Index) Segments() []model.RailSegment {
	return idx.segments[:len(idx.segments):len(idx.segments)]
}

// Len returns the number of indexed segments.
func (idx *Index) Len() int { return len(idx.segments) }

// LastYear returns the latest construction year, 0 for an empty index.
func (idx *Index) LastYear() int {
	if len(idx.years) == 0 {
		return 0
	}
	return idx.years[len(idx.years)-1]
}

// Partition splits the snapshot of year by line type and gauge.
func (idx *Index) Partition(year int) map[model.NetworkKey][]model.RailSegment {
	out := make(map[model.NetworkKey][]model.RailSegment)
	for _, seg := range idx.SnapshotAt(year).Segments {
		out[seg.Key()] = append(out[seg.Key()], seg)
	}
	return out
}

// Keys returns the partition keys in a fixed order: primary before
// secondary, standard before narrow.
func Keys() []model.NetworkKey {
	return []model.NetworkKey{
		{LineType: model.LineTypePrimary, Gauge: model.GaugeStandard},
		{LineType: model.LineTypePrimary, Gauge: model.GaugeNarrow},
		{LineType: model.LineTypeSecondary, Gauge: model.GaugeStandard},
		{LineType: model.LineTypeSecondary, Gauge: model.GaugeNarrow},
	}
}
