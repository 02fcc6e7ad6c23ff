package pipeline

import (
	"fmt"
	"testing"
	"time"

	"github.com/sells-group/railway-atlas/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestFormatReport(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r := &Report{
		Run: model.Run{
			ID:         "run-1",
			Status:     model.RunStatusComplete,
			StartedAt:  start,
			FinishedAt: start.Add(1500 * time.Millisecond),
			Phases: []model.PhaseResult{
				{Name: "load", Status: model.PhaseStatusComplete, Duration: 120},
				{Name: "raster:wheat", Status: model.PhaseStatusFailed, Duration: 3, Error: "empty clip"},
			},
		},
		Segments:       2,
		Units:          6,
		Municipalities: 3,
		Years:          []int{1860, 1865, 1870},
		Layers:         map[string]int{"wheat": 4, "ruggedness": 7},
		Warnings: []*model.AttributionMismatchError{
			{UnitID: "reg:Piemonte", Level: model.LevelRegional, Year: 1860, Discrepancy: 1.25},
		},
		Outside: []string{"s9"},
	}

	out := FormatReport(r)
	assert.Contains(t, out, "# Run Report: run-1")
	assert.Contains(t, out, "Duration: 1.5s")
	assert.Contains(t, out, "- Report years: 3 (1860-1870)")
	assert.Contains(t, out, "- raster:wheat: failed (3ms)\n  Error: empty clip")
	assert.Contains(t, out, "- ruggedness: 7 features\n- wheat: 4 features")
	assert.Contains(t, out, "unit reg:Piemonte (regional) year 1860: 1.250m")
	assert.Contains(t, out, "1 segments lie outside")
}

func TestFormatReport_TruncatesWarnings(t *testing.T) {
	r := &Report{Run: model.Run{ID: "run-2", Status: model.RunStatusComplete}}
	for i := 0; i < maxListedWarnings+5; i++ {
		r.Warnings = append(r.Warnings, &model.AttributionMismatchError{
			SegmentID: fmt.Sprintf("s%d", i), UnitID: "prov:X", Level: model.LevelProvincial, Discrepancy: 1,
		})
	}

	out := FormatReport(r)
	assert.Contains(t, out, "... and 5 more")
	assert.NotContains(t, out, "Duration")
	assert.NotContains(t, out, "None.")
}
