package model

import (
	"encoding/json"
	"math"

	"github.com/ctessum/geom"
)

// LengthRecord is the track length of a (unit, year, type, gauge) combination.
// Meters is cumulative (network as of Year); AddedMeters is the part opened
// since the previous report year.
type LengthRecord struct {
	UnitID      string   `json:"unit"`
	Level       Level    `json:"level"`
	Year        int      `json:"year"`
	LineType    LineType `json:"type"`
	Gauge       Gauge    `json:"gauge"`
	Meters      float64  `json:"meters"`
	AddedMeters float64  `json:"added_meters"`
}

// LengthKey identifies a LengthRecord.
type LengthKey struct {
	UnitID   string
	Year     int
	LineType LineType
	Gauge    Gauge
}

// Key returns the record's key.
func (r LengthRecord) Key() LengthKey {
	return LengthKey{UnitID: r.UnitID, Year: r.Year, LineType: r.LineType, Gauge: r.Gauge}
}

// DistanceRecord is the distance from a municipality to the nearest active
// segment in a year. Meters is +Inf when Reachable is false.
type DistanceRecord struct {
	MunicipalityID   string
	Year             int
	Meters           float64
	Reachable        bool
	NearestSegmentID string
}

type distanceRecordJSON struct {
	MunicipalityID   string   `json:"municipality"`
	Year             int      `json:"year"`
	Meters           *float64 `json:"meters"`
	Reachable        bool     `json:"reachable"`
	NearestSegmentID string   `json:"nearest_segment,omitempty"`
}

// MarshalJSON writes unreachable distances as null.
func (r DistanceRecord) MarshalJSON() ([]byte, error) {
	out := distanceRecordJSON{
		MunicipalityID:   r.MunicipalityID,
		Year:             r.Year,
		Reachable:        r.Reachable,
		NearestSegmentID: r.NearestSegmentID,
	}
	if r.Reachable && !math.IsInf(r.Meters, 0) {
		m := r.Meters
		out.Meters = &m
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores +Inf for null distances.
func (r *DistanceRecord) UnmarshalJSON(data []byte) error {
	var in distanceRecordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = DistanceRecord{
		MunicipalityID:   in.MunicipalityID,
		Year:             in.Year,
		Reachable:        in.Reachable,
		NearestSegmentID: in.NearestSegmentID,
		Meters:           math.Inf(1),
	}
	if in.Meters != nil {
		r.Meters = *in.Meters
	}
	return nil
}

// AccessKind distinguishes the accessibility aggregations.
type AccessKind string

const (
	AccessRegionAverage   AccessKind = "region"
	AccessProvinceAverage AccessKind = "province"
	AccessNationalAverage AccessKind = "national"
	AccessRegionCapital   AccessKind = "capital_region"
	AccessProvinceCapital AccessKind = "capital_province"
)

// AccessRecord is an aggregated accessibility statistic.
type AccessRecord struct {
	Year   int        `json:"year"`
	UnitID string     `json:"unit"`
	Name   string     `json:"name"`
	Kind   AccessKind `json:"kind"`
	Meters float64    `json:"meters"`
}

// GridSpec describes a north-up raster grid.
type GridSpec struct {
	Cols     int     `json:"cols"`
	Rows     int     `json:"rows"`
	OriginX  float64 `json:"origin_x"` // left edge
	OriginY  float64 `json:"origin_y"` // top edge
	CellSize float64 `json:"cell_size"`
	NoData   float64 `json:"nodata"`
	CRS      string  `json:"crs"`
}

// CellCenter returns the centre of cell (row, col).
func (g GridSpec) CellCenter(row, col int) geom.Point {
	return geom.Point{
		X: g.OriginX + (float64(col)+0.5)*g.CellSize,
		Y: g.OriginY - (float64(row)+0.5)*g.CellSize,
	}
}

// Bounds returns the extent of the grid.
func (g GridSpec) Bounds() *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: g.OriginX, Y: g.OriginY - float64(g.Rows)*g.CellSize},
		Max: geom.Point{X: g.OriginX + float64(g.Cols)*g.CellSize, Y: g.OriginY},
	}
}

// VectorizedCell is a polygon of merged same-class raster cells.
type VectorizedCell struct {
	Layer      string
	Class      int
	Value      float64 // mean raw value of the merged cells
	Cells      int
	Block      int
	Geometry   geom.Polygon
	Resolution float64
	CRS        string
}
