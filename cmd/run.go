package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"github.com/sells-group/railway-atlas/internal/pipeline"
	"github.com/spf13/cobra"
)

var runReportPath string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline and write the artifacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		report, runErr := pipeline.New(cfg).Run(ctx)
		if report != nil {
			renderRunSummary(cmd.OutOrStdout(), report)
			if runReportPath != "" {
				if err := os.WriteFile(runReportPath, []byte(pipeline.FormatReport(report)), 0o644); err != nil {
					return eris.Wrap(err, "write report")
				}
			}
		}
		if runErr != nil {
			return eris.Wrap(runErr, "run pipeline")
		}
		return nil
	},
}

// renderRunSummary prints the phases of a run followed by its totals.
func renderRunSummary(w io.Writer, r *pipeline.Report) {
	phases := table.NewWriter()
	phases.SetOutputMirror(w)
	phases.SetStyle(table.StyleLight)
	phases.SetTitle("Run " + r.ID)
	phases.AppendHeader(table.Row{"Phase", "Status", "Duration", "Detail"})
	for _, p := range r.Phases {
		detail := p.Error
		if detail == "" {
			detail = formatMetadata(p.Metadata)
		}
		phases.AppendRow(table.Row{p.Name, p.Status, time.Duration(p.Duration) * time.Millisecond, detail})
	}
	phases.AppendFooter(table.Row{"", r.Status, "", ""})
	phases.Render()

	if len(r.Artifacts) == 0 {
		return
	}
	totals := table.NewWriter()
	totals.SetOutputMirror(w)
	totals.SetStyle(table.StyleLight)
	totals.AppendHeader(table.Row{"Output", "Count"})
	totals.AppendRows([]table.Row{
		{"segments", r.Segments},
		{"report years", len(r.Years)},
		{"length records", r.Lengths},
		{"distance records", r.Distances},
		{"access records", r.Access},
		{"warnings", len(r.Warnings)},
		{"outside segments", len(r.Outside)},
		{"artifacts", len(r.Artifacts)},
	})
	totals.Render()
}

func formatMetadata(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out string
	for i, k := range keys {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%s=%v", k, m[k])
	}
	return out
}

func init() {
	runCmd.Flags().StringVar(&runReportPath, "report", "", "also write a markdown run report to this path")
	rootCmd.AddCommand(runCmd)
}
