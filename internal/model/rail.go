package model

import (
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	"github.com/sells-group/railway-atlas/internal/gis"
)

// LineType classifies a railway line by its role in the network.
type LineType string

const (
	LineTypePrimary   LineType = "primary"
	LineTypeSecondary LineType = "secondary"
)

// ParseLineType maps a source attribute (e.g. MAINLIGHT = "Main line") to a LineType.
// Anything that does not mention "main" is a secondary line.
func ParseLineType(s string) LineType {
	if strings.Contains(strings.ToLower(s), "main") || strings.EqualFold(strings.TrimSpace(s), "primary") {
		return LineTypePrimary
	}
	return LineTypeSecondary
}

// Gauge is the transverse spacing of the two rails.
type Gauge string

const (
	GaugeStandard Gauge = "standard" // 1435mm
	GaugeNarrow   Gauge = "narrow"   // 950mm
)

// narrowGaugeLimitMM separates narrow from standard gauge when the source
// stores the spacing in millimetres.
const narrowGaugeLimitMM = 1200

// Millimetres returns the nominal rail spacing.
func (g Gauge) Millimetres() int {
	if g == GaugeNarrow {
		return 950
	}
	return 1435
}

// ParseGauge accepts either a millimetre value ("950", "1435") or a label
// ("narrow", "standard", "ridotto", "normale"). Empty values default to standard.
func ParseGauge(s string) (Gauge, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return GaugeStandard, nil
	}
	if mm, err := strconv.ParseFloat(s, 64); err == nil {
		if mm < narrowGaugeLimitMM {
			return GaugeNarrow, nil
		}
		return GaugeStandard, nil
	}
	switch {
	case strings.Contains(s, "narrow"), strings.Contains(s, "ridott"):
		return GaugeNarrow, nil
	case strings.Contains(s, "standard"), strings.Contains(s, "normal"):
		return GaugeStandard, nil
	}
	return "", eris.Errorf("model: unknown gauge %q", s)
}

// RailSegment is one track feature of the historical network, in the metric CRS.
// Length is derived from Geometry when the segment is created and never edited.
type RailSegment struct {
	ID       string
	Geometry geom.MultiLineString
	Year     int
	LineType LineType
	Gauge    Gauge
	Length   float64 // meters
}

// NewRailSegment builds a segment and derives its length from the geometry.
func NewRailSegment(id string, g geom.MultiLineString, year int, lt LineType, gauge Gauge) RailSegment {
	return RailSegment{
		ID:       id,
		Geometry: g,
		Year:     year,
		LineType: lt,
		Gauge:    gauge,
		Length:   gis.LineLength(g),
	}
}

// NetworkKey partitions the network by line type and gauge.
type NetworkKey struct {
	LineType LineType `json:"type"`
	Gauge    Gauge    `json:"gauge"`
}

// Key returns the partition key of the segment.
func (s RailSegment) Key() NetworkKey {
	return NetworkKey{LineType: s.LineType, Gauge: s.Gauge}
}
