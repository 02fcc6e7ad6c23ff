package model

import (
	"errors"
	"fmt"
)

// SourceFormatError reports a malformed or unreadable input geometry or raster.
type SourceFormatError struct {
	Source  string
	Feature string
	Reason  string
	Err     error
}

func (e *SourceFormatError) Error() string {
	msg := fmt.Sprintf("source format: %s", e.Source)
	if e.Feature != "" {
		msg += fmt.Sprintf(" feature %s", e.Feature)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SourceFormatError) Unwrap() error { return e.Err }

// NewSourceFormatError builds a SourceFormatError.
func NewSourceFormatError(source, feature, reason string, err error) *SourceFormatError {
	return &SourceFormatError{Source: source, Feature: feature, Reason: reason, Err: err}
}

// CRSResolutionError reports a coordinate system that cannot be determined or reprojected.
type CRSResolutionError struct {
	Source string
	CRS    string
	Err    error
}

func (e *CRSResolutionError) Error() string {
	msg := fmt.Sprintf("crs resolution: %s", e.Source)
	if e.CRS != "" {
		msg += fmt.Sprintf(" (%s)", e.CRS)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CRSResolutionError) Unwrap() error { return e.Err }

// NewCRSResolutionError builds a CRSResolutionError.
func NewCRSResolutionError(source, crs string, err error) *CRSResolutionError {
	return &CRSResolutionError{Source: source, CRS: crs, Err: err}
}

// EmptyClipError reports a raster that does not overlap the clip boundary.
type EmptyClipError struct {
	Layer string
}

func (e *EmptyClipError) Error() string {
	return fmt.Sprintf("empty clip: raster %s does not overlap the boundary", e.Layer)
}

// TopologyError reports invalid polygons beyond the repair threshold.
type TopologyError struct {
	Source  string
	Feature string
	Reason  string
}

func (e *TopologyError) Error() string {
	return fmt.Sprintf("topology: %s feature %s: %s", e.Source, e.Feature, e.Reason)
}

// NewTopologyError builds a TopologyError.
func NewTopologyError(source, feature, reason string) *TopologyError {
	return &TopologyError{Source: source, Feature: feature, Reason: reason}
}

// NoCapitalDefinedError reports a unit without a designated capital municipality.
type NoCapitalDefinedError struct {
	UnitID string
}

func (e *NoCapitalDefinedError) Error() string {
	return fmt.Sprintf("no capital defined for unit %s", e.UnitID)
}

// AttributionMismatchError reports attributed lengths that do not reconcile.
// SegmentID is empty for level-to-level reconciliation mismatches.
type AttributionMismatchError struct {
	SegmentID   string  `json:"segment,omitempty"`
	UnitID      string  `json:"unit"`
	Level       Level   `json:"level"`
	Year        int     `json:"year,omitempty"`
	Discrepancy float64 `json:"discrepancy_m"`
}

func (e *AttributionMismatchError) Error() string {
	if e.SegmentID != "" {
		return fmt.Sprintf("attribution mismatch: segment %s unit %s (%s): %.3fm",
			e.SegmentID, e.UnitID, e.Level, e.Discrepancy)
	}
	return fmt.Sprintf("attribution mismatch: unit %s (%s) year %d: %.3fm",
		e.UnitID, e.Level, e.Year, e.Discrepancy)
}

// IsFatal reports whether err must abort a run. Attribution mismatches are
// warnings unless the caller escalated them.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var mm *AttributionMismatchError
	return !errors.As(err, &mm)
}
