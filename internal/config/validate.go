package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/sells-group/railway-atlas/internal/gis"
)

// Validate checks the settings required by a command mode
// ("run", "raster", "publish", "serve").
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "run":
		errs = append(errs, c.validateSources(true)...)
		errs = append(errs, c.validateCompute()...)
	case "raster":
		errs = append(errs, c.validateSources(false)...)
		errs = append(errs, c.validateRaster()...)
	case "publish":
		if c.Publish.DatabaseURL == "" {
			errs = append(errs, "publish.database_url is required")
		}
		if c.Publish.Schema == "" {
			errs = append(errs, "publish.schema is required")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Output.Dir == "" && mode != "publish" {
		errs = append(errs, "output.dir is required")
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateSources(full bool) []string {
	var errs []string
	required := map[string]string{
		"sources.regions.path":   c.Sources.Regions.Path,
		"sources.provinces.path": c.Sources.Provinces.Path,
	}
	if full {
		required["sources.railways.path"] = c.Sources.Railways.Path
		required["sources.municipalities.path"] = c.Sources.Municipalities.Path
	}
	for _, key := range []string{
		"sources.railways.path", "sources.regions.path",
		"sources.provinces.path", "sources.municipalities.path",
	} {
		if v, ok := required[key]; ok && v == "" {
			errs = append(errs, key+" is required")
		}
	}
	if c.CRS.Metric == "" {
		errs = append(errs, "crs.metric is required")
	}
	if c.CRS.Display == "" {
		errs = append(errs, "crs.display is required")
	}
	if c.CRS.Metric != "" && c.CRS.Display != "" {
		if _, err := gis.NewProjector(c.CRS.Metric, c.CRS.Display); err != nil {
			errs = append(errs, fmt.Sprintf("crs.metric %s cannot be reprojected to crs.display %s", c.CRS.Metric, c.CRS.Display))
		}
	}
	return errs
}

func (c *Config) validateRaster() []string {
	var errs []string
	if c.Raster.BlockRows < 1 {
		errs = append(errs, "raster.block_rows must be >= 1")
	}
	if c.Raster.Workers < 1 || c.Raster.Workers > 64 {
		errs = append(errs, "raster.workers must be between 1 and 64")
	}
	if c.Raster.Tolerance < 0 {
		errs = append(errs, "raster.tolerance must be >= 0")
	}
	return errs
}

func (c *Config) validateCompute() []string {
	errs := c.validateRaster()
	if c.Overlay.EpsilonM <= 0 {
		errs = append(errs, "overlay.epsilon_m must be > 0")
	}
	if c.Overlay.HardThresholdM < c.Overlay.EpsilonM {
		errs = append(errs, "overlay.hard_threshold_m must be >= overlay.epsilon_m")
	}
	if c.Access.Step < 1 {
		errs = append(errs, "access.step must be >= 1")
	}
	if c.Access.EndYear < c.Access.StartYear {
		errs = append(errs, fmt.Sprintf("access.end_year (%d) must be >= access.start_year (%d)",
			c.Access.EndYear, c.Access.StartYear))
	}
	if c.Access.Workers < 1 || c.Access.Workers > 64 {
		errs = append(errs, "access.workers must be between 1 and 64")
	}
	return errs
}
