package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sells-group/railway-atlas/internal/model"
)

// Report summarizes a pipeline run.
type Report struct {
	model.Run
	Segments       int                               `json:"segments"`
	Units          int                               `json:"units"`
	Municipalities int                               `json:"municipalities"`
	Years          []int                             `json:"years"`
	Layers         map[string]int                    `json:"layers"`
	Lengths        int                               `json:"lengths"`
	Distances      int                               `json:"distances"`
	Access         int                               `json:"access"`
	Outside        []string                          `json:"outside_segments,omitempty"`
	Warnings       []*model.AttributionMismatchError `json:"warnings"`
	Artifacts      []string                          `json:"artifacts"`
}

// maxListedWarnings bounds the warnings spelled out in a formatted report.
const maxListedWarnings = 20

// FormatReport renders a human-readable run report.
func FormatReport(r *Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Run Report: %s\n", r.ID)
	fmt.Fprintf(&b, "Status: %s\n", r.Status)
	if !r.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "Duration: %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	b.WriteString("\n")

	b.WriteString("## Summary\n")
	fmt.Fprintf(&b, "- Segments: %d\n", r.Segments)
	fmt.Fprintf(&b, "- Administrative units: %d\n", r.Units)
	fmt.Fprintf(&b, "- Municipalities: %d\n", r.Municipalities)
	if len(r.Years) > 0 {
		fmt.Fprintf(&b, "- Report years: %d (%d-%d)\n", len(r.Years), r.Years[0], r.Years[len(r.Years)-1])
	}
	fmt.Fprintf(&b, "- Length records: %d\n", r.Lengths)
	fmt.Fprintf(&b, "- Distance records: %d\n", r.Distances)
	fmt.Fprintf(&b, "- Access records: %d\n", r.Access)
	b.WriteString("\n")

	b.WriteString("## Phases\n")
	for _, p := range r.Phases {
		fmt.Fprintf(&b, "- %s: %s (%dms)\n", p.Name, p.Status, p.Duration)
		if p.Error != "" {
			fmt.Fprintf(&b, "  Error: %s\n", p.Error)
		}
	}
	b.WriteString("\n")

	if len(r.Layers) > 0 {
		b.WriteString("## Raster Layers\n")
		names := make([]string, 0, len(r.Layers))
		for name := range r.Layers {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "- %s: %d features\n", name, r.Layers[name])
		}
		b.WriteString("\n")
	}

	b.WriteString("## Warnings\n")
	if len(r.Warnings) == 0 {
		b.WriteString("None.\n")
	}
	for i, w := range r.Warnings {
		if i == maxListedWarnings {
			fmt.Fprintf(&b, "- ... and %d more\n", len(r.Warnings)-maxListedWarnings)
			break
		}
		fmt.Fprintf(&b, "- %s\n", w.Error())
	}
	if len(r.Outside) > 0 {
		fmt.Fprintf(&b, "- %d segments lie outside the national boundary\n", len(r.Outside))
	}

	return b.String()
}
