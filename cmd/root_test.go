package main

import (
	"bytes"
	"testing"

	"github.com/sells-group/railway-atlas/internal/model"
	"github.com/sells-group/railway-atlas/internal/pipeline"
	"github.com/sells-group/railway-atlas/internal/publish"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"run", "raster", "publish", "serve"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "railway-atlas", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestCommand_Flags(t *testing.T) {
	tests := []struct {
		name   string
		lookup func() string
		want   string
	}{
		{"serve port", func() string { return serveCmd.Flags().Lookup("port").DefValue }, "0"},
		{"raster layer", func() string { return rasterCmd.Flags().Lookup("layer").DefValue }, ""},
		{"publish dir", func() string { return publishCmd.Flags().Lookup("dir").DefValue }, ""},
		{"run report", func() string { return runCmd.Flags().Lookup("report").DefValue }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.lookup())
		})
	}

	ann := rasterCmd.Flags().Lookup("layer").Annotations
	require.NotNil(t, ann)
	assert.Contains(t, ann, "cobra_annotation_bash_completion_one_required_flag")
}

func TestRenderRunSummary(t *testing.T) {
	r := &pipeline.Report{
		Run: model.Run{
			ID:     "run-1",
			Status: model.RunStatusComplete,
			Phases: []model.PhaseResult{
				{Name: "load", Status: model.PhaseStatusComplete, Duration: 12, Metadata: map[string]any{"units": 6, "segments": 2}},
				{Name: "raster:wheat", Status: model.PhaseStatusSkipped},
			},
		},
		Segments:  2,
		Years:     []int{1860, 1865},
		Lengths:   48,
		Artifacts: []string{"lengths.json", "manifest.json"},
	}

	var buf bytes.Buffer
	renderRunSummary(&buf, r)
	out := buf.String()
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "segments=2 units=6")
	assert.Contains(t, out, "skipped")
	assert.Contains(t, out, "length records")
	assert.Contains(t, out, "48")
}

func TestRenderRunSummary_FailedRunHasNoTotals(t *testing.T) {
	r := &pipeline.Report{Run: model.Run{
		ID:     "run-2",
		Status: model.RunStatusFailed,
		Phases: []model.PhaseResult{{Name: "load", Status: model.PhaseStatusFailed, Error: "missing railways"}},
	}}

	var buf bytes.Buffer
	renderRunSummary(&buf, r)
	assert.Contains(t, buf.String(), "missing railways")
	assert.NotContains(t, buf.String(), "length records")
}

func TestRenderPublishSummary(t *testing.T) {
	var buf bytes.Buffer
	renderPublishSummary(&buf, &publish.Summary{RunID: "run-3", Rows: map[string]int64{"lengths": 72, "access": 9}})
	out := buf.String()
	assert.Contains(t, out, "run-3")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("access")), bytes.Index(buf.Bytes(), []byte("lengths")))
}
