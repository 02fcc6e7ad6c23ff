package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/sells-group/railway-atlas/internal/output"
	"github.com/sells-group/railway-atlas/internal/pipeline"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rasterLayer string

var rasterCmd = &cobra.Command{
	Use:   "raster",
	Short: "Clip and vectorize one raster layer",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("raster"); err != nil {
			return err
		}

		n, err := pipeline.New(cfg).RasterLayer(cmd.Context(), rasterLayer)
		if err != nil {
			return eris.Wrapf(err, "raster %s", rasterLayer)
		}

		zap.L().Info("raster layer written",
			zap.String("layer", rasterLayer),
			zap.Int("features", n),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d features -> %s\n", rasterLayer, n, output.LayerFile(rasterLayer))
		return nil
	},
}

func init() {
	rasterCmd.Flags().StringVar(&rasterLayer, "layer", "", "layer to process (ruggedness or wheat)")
	_ = rasterCmd.MarkFlagRequired("layer")
	rootCmd.AddCommand(rasterCmd)
}
