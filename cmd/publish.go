package main

import (
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sells-group/railway-atlas/internal/db"
	"github.com/sells-group/railway-atlas/internal/publish"
	"github.com/spf13/cobra"
)

var publishDir string

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Load the artifacts of a run into PostGIS",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("publish"); err != nil {
			return err
		}
		dir := publishDir
		if dir == "" {
			dir = cfg.Output.Dir
		}

		ctx := cmd.Context()
		pool, err := db.Connect(ctx, cfg.Publish.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		summary, err := publish.New(pool, cfg.Publish).Publish(ctx, dir)
		if err != nil {
			return err
		}
		renderPublishSummary(cmd.OutOrStdout(), summary)
		return nil
	},
}

func renderPublishSummary(w io.Writer, s *publish.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Published run " + s.RunID)
	t.AppendHeader(table.Row{"Table", "Rows"})

	names := make([]string, 0, len(s.Rows))
	for name := range s.Rows {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t.AppendRow(table.Row{name, s.Rows[name]})
	}
	t.Render()
}

func init() {
	publishCmd.Flags().StringVar(&publishDir, "dir", "", "run output directory (default from config)")
	rootCmd.AddCommand(publishCmd)
}
