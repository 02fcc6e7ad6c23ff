package overlay

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/sells-group/railway-atlas/internal/model"
	"github.com/sells-group/railway-atlas/internal/network"
	"go.uber.org/zap"
)

type cellKey struct {
	level model.Level
	unit  string
	key   model.NetworkKey
}

// LengthsByYear attributes every segment opened up to the last report year
// once, then accumulates the shares into one record per unit, report year
// and (type, gauge). The network only grows, so the cumulative length of a
// year is a prefix sum over construction years. Units of the tree get a
// record for every combination, including zeros; the outside bucket only
// where it holds track.
func (a *Attributor) LengthsByYear(ctx context.Context, idx *network.Index, years []int) ([]model.LengthRecord, *Result, error) {
	log := zap.L().With(zap.String("component", "overlay.lengths"))
	if len(years) == 0 {
		return nil, &Result{}, nil
	}
	years = append([]int(nil), years...)
	sort.Ints(years)

	active := idx.SnapshotAt(years[len(years)-1]).Segments
	res, err := a.Attribute(ctx, active)
	if err != nil {
		return nil, nil, err
	}

	// Sorted by construction year, one pass with a report-year cursor.
	sort.SliceStable(res.Shares, func(i, j int) bool { return res.Shares[i].Year < res.Shares[j].Year })

	cum := make(map[cellKey]float64)
	var records []model.LengthRecord
	prev := make(map[cellKey]float64)
	pos := 0
	for _, year := range years {
		if err := ctx.Err(); err != nil {
			return nil, nil, eris.Wrap(err, "overlay: lengths by year")
		}
		for pos < len(res.Shares) && res.Shares[pos].Year <= year {
			s := res.Shares[pos]
			cum[cellKey{level: s.Level, unit: s.UnitID, key: model.NetworkKey{LineType: s.LineType, Gauge: s.Gauge}}] += s.Meters
			pos++
		}
		for _, c := range a.cells(cum) {
			m := cum[c]
			records = append(records, model.LengthRecord{
				UnitID:      c.unit,
				Level:       c.level,
				Year:        year,
				LineType:    c.key.LineType,
				Gauge:       c.key.Gauge,
				Meters:      m,
				AddedMeters: m - prev[c],
			})
		}
		for c, m := range cum {
			prev[c] = m
		}
		log.Info("lengths accumulated", zap.Int("year", year), zap.Int("segments", pos))
	}

	SortRecords(records)
	return records, res, nil
}

// cells returns every unit/key combination of the tree plus outside buckets
// that hold track.
func (a *Attributor) cells(cum map[cellKey]float64) []cellKey {
	var out []cellKey
	for _, level := range model.Levels {
		for _, u := range a.levels[level].units {
			for _, k := range network.Keys() {
				out = append(out, cellKey{level: level, unit: u.ID, key: k})
			}
		}
		for _, k := range network.Keys() {
			c := cellKey{level: level, unit: model.OutsideUnitID, key: k}
			if cum[c] > 0 {
				out = append(out, c)
			}
		}
	}
	return out
}

// SortRecords orders records by level (national first), unit, year, line
// type and gauge.
func SortRecords(records []model.LengthRecord) {
	rank := make(map[model.Level]int, len(model.Levels))
	for i, l := range model.Levels {
		rank[l] = i
	}
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if rank[a.Level] != rank[b.Level] {
			return rank[a.Level] < rank[b.Level]
		}
		if a.UnitID != b.UnitID {
			return a.UnitID < b.UnitID
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.LineType != b.LineType {
			return a.LineType < b.LineType
		}
		return a.Gauge < b.Gauge
	})
}
