// Package pipeline runs the load, raster, overlay, accessibility and output
// phases in order.
package pipeline

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sells-group/railway-atlas/internal/access"
	"github.com/sells-group/railway-atlas/internal/config"
	"github.com/sells-group/railway-atlas/internal/gis"
	"github.com/sells-group/railway-atlas/internal/loader"
	"github.com/sells-group/railway-atlas/internal/model"
	"github.com/sells-group/railway-atlas/internal/network"
	"github.com/sells-group/railway-atlas/internal/output"
	"github.com/sells-group/railway-atlas/internal/overlay"
	"github.com/sells-group/railway-atlas/internal/raster"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Pipeline orchestrates one run over the configured sources.
type Pipeline struct {
	cfg *config.Config
}

// New creates a pipeline for cfg.
func New(cfg *config.Config) *Pipeline {
	return &Pipeline{cfg: cfg}
}

// inputs is everything the load phase produced.
type inputs struct {
	segments []model.RailSegment
	tree     *model.AdminTree
	munis    []model.Municipality
}

// Run executes every phase and writes the artifacts to the output
// directory. The report is returned even when a phase fails.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	log := zap.L().With(zap.String("component", "pipeline"))
	log.Info("pipeline: starting run", zap.String("output", p.cfg.Output.Dir))

	manifest := output.NewManifest(p.inputPaths(), p.settings())
	report := &Report{
		Run: model.Run{
			ID:        manifest.RunID,
			Status:    model.RunStatusRunning,
			StartedAt: time.Now().UTC(),
		},
		Layers: make(map[string]int),
	}

	fail := func(err error) (*Report, error) {
		report.Status = model.RunStatusFailed
		report.FinishedAt = time.Now().UTC()
		return report, err
	}

	trackPhase := func(name string, fn func() (*model.PhaseResult, error)) error {
		start := time.Now()
		phaseResult, fnErr := fn()
		duration := time.Since(start).Milliseconds()

		if phaseResult == nil {
			phaseResult = &model.PhaseResult{}
		}
		phaseResult.Name = name
		phaseResult.Duration = duration

		switch {
		case fnErr != nil:
			phaseResult.Status = model.PhaseStatusFailed
			phaseResult.Error = fnErr.Error()
			log.Error("pipeline: phase failed",
				zap.String("phase", name),
				zap.Int64("duration_ms", duration),
				zap.Error(fnErr),
			)
		case phaseResult.Status == model.PhaseStatusSkipped:
			log.Info("pipeline: phase skipped", zap.String("phase", name))
		default:
			phaseResult.Status = model.PhaseStatusComplete
			log.Info("pipeline: phase complete",
				zap.String("phase", name),
				zap.Int64("duration_ms", duration),
			)
		}
		report.Phases = append(report.Phases, *phaseResult)
		return fnErr
	}

	// ===== Phase 1: Load =====
	var in inputs
	if err := trackPhase("load", func() (*model.PhaseResult, error) {
		var err error
		in, err = p.load(ctx)
		if err != nil {
			return nil, err
		}
		return &model.PhaseResult{Metadata: map[string]any{
			"segments":       len(in.segments),
			"units":          in.tree.Len(),
			"municipalities": len(in.munis),
		}}, nil
	}); err != nil {
		return fail(err)
	}
	report.Segments = len(in.segments)
	report.Units = in.tree.Len()
	report.Municipalities = len(in.munis)

	// ===== Phase 2: Raster layers =====
	layers := make(map[string][]model.VectorizedCell)
	for _, layer := range []string{raster.LayerRuggedness, raster.LayerWheat} {
		src := p.rasterSource(layer)
		if err := trackPhase("raster:"+layer, func() (*model.PhaseResult, error) {
			if src.Path == "" {
				return &model.PhaseResult{Status: model.PhaseStatusSkipped}, nil
			}
			cells, err := p.rasterLayer(ctx, layer, src, in.tree)
			if err != nil {
				return nil, err
			}
			layers[layer] = cells
			return &model.PhaseResult{Metadata: map[string]any{"features": len(cells)}}, nil
		}); err != nil {
			return fail(err)
		}
		if cells, ok := layers[layer]; ok {
			report.Layers[layer] = len(cells)
		}
	}

	// ===== Phase 3: Network index =====
	var idx *network.Index
	var years []int
	_ = trackPhase("index", func() (*model.PhaseResult, error) {
		idx = network.NewIndex(in.segments)
		years = network.ReportYears(p.cfg.Access.StartYear, p.cfg.Access.EndYear, p.cfg.Access.Step, idx.LastYear())
		return &model.PhaseResult{Metadata: map[string]any{
			"construction_years": len(idx.Years()),
			"report_years":       len(years),
		}}, nil
	})
	report.Years = years
	manifest.Settings.Years = years

	// ===== Phase 4: Track length attribution =====
	var lengths []model.LengthRecord
	if err := trackPhase("lengths", func() (*model.PhaseResult, error) {
		attributor := overlay.NewAttributor(in.tree, overlay.Options{
			EpsilonM:       p.cfg.Overlay.EpsilonM,
			HardThresholdM: p.cfg.Overlay.HardThresholdM,
			Workers:        p.cfg.Overlay.Workers,
		})
		records, res, err := attributor.LengthsByYear(ctx, idx, years)
		if err != nil {
			return nil, err
		}
		report.Outside = res.Outside
		report.Warnings = append(report.Warnings, res.Warnings...)
		if err := p.checkSegmentWarnings(res.Warnings); err != nil {
			return nil, err
		}

		gaps, err := overlay.Reconcile(records, in.tree, p.cfg.Overlay.EpsilonM, p.cfg.Overlay.HardThresholdM)
		report.Warnings = append(report.Warnings, gaps...)
		if err != nil {
			return nil, err
		}
		lengths = records
		return &model.PhaseResult{Metadata: map[string]any{
			"records":  len(records),
			"outside":  len(res.Outside),
			"warnings": len(res.Warnings) + len(gaps),
		}}, nil
	}); err != nil {
		return fail(err)
	}

	// ===== Phase 5: Accessibility =====
	var distances []model.DistanceRecord
	var aggregates []model.AccessRecord
	if err := trackPhase("access", func() (*model.PhaseResult, error) {
		var states map[int]access.State
		var err error
		distances, states, err = access.Series(ctx, idx, in.munis, years, access.Options{Workers: p.cfg.Access.Workers})
		if err != nil {
			return nil, err
		}
		agg := access.NewAggregator(in.tree, in.munis, states)
		aggregates, err = agg.Records(years, p.cfg.Access.RequireCapitals)
		if err != nil {
			return nil, err
		}
		return &model.PhaseResult{Metadata: map[string]any{
			"distances":  len(distances),
			"aggregates": len(aggregates),
		}}, nil
	}); err != nil {
		return fail(err)
	}

	// ===== Phase 6: Output =====
	if err := trackPhase("output", func() (*model.PhaseResult, error) {
		w, err := p.writer()
		if err != nil {
			return nil, err
		}
		written, err := w.Write(ctx, &output.Bundle{
			Tree:      in.tree,
			Layers:    layers,
			Network:   idx,
			Years:     years,
			Lengths:   lengths,
			Distances: distances,
			Access:    aggregates,
		})
		if err != nil {
			return nil, err
		}

		manifest.Counts["segments"] = len(in.segments)
		manifest.Counts["units"] = in.tree.Len()
		manifest.Counts["municipalities"] = len(in.munis)
		manifest.Counts["lengths"] = len(lengths)
		manifest.Counts["distances"] = len(distances)
		manifest.Counts["access"] = len(aggregates)
		for name, cells := range layers {
			manifest.Counts["layer:"+name] = len(cells)
		}
		manifest.Outside = report.Outside
		manifest.Warnings = append(manifest.Warnings, report.Warnings...)
		manifest.Artifacts = written
		if err := output.WriteManifest(w.Dir(), manifest); err != nil {
			return nil, err
		}
		report.Artifacts = append(written, output.ManifestFile)
		return &model.PhaseResult{Metadata: map[string]any{"artifacts": len(report.Artifacts)}}, nil
	}); err != nil {
		return fail(err)
	}

	report.Lengths = len(lengths)
	report.Distances = len(distances)
	report.Access = len(aggregates)
	report.Status = model.RunStatusComplete
	report.FinishedAt = time.Now().UTC()
	log.Info("pipeline: run complete",
		zap.String("run_id", report.ID),
		zap.Int("warnings", len(report.Warnings)),
		zap.Int("artifacts", len(report.Artifacts)),
	)
	return report, nil
}

// RasterLayer clips and vectorizes one layer and writes it to the output
// directory. Only the boundaries are loaded.
func (p *Pipeline) RasterLayer(ctx context.Context, layer string) (int, error) {
	src := p.rasterSource(layer)
	if src.Name == "" {
		return 0, eris.Errorf("pipeline: unknown raster layer %q", layer)
	}
	if src.Path == "" {
		return 0, eris.Errorf("pipeline: no source configured for layer %q", layer)
	}
	tree, err := p.loadBoundaries(ctx)
	if err != nil {
		return 0, err
	}
	cells, err := p.rasterLayer(ctx, layer, src, tree)
	if err != nil {
		return 0, err
	}
	w, err := p.writer()
	if err != nil {
		return 0, err
	}
	if err := w.WriteLayer(layer, cells); err != nil {
		return 0, err
	}
	return len(cells), nil
}

// load reads railways and boundaries concurrently, then the municipalities,
// which need the tree to be located.
func (p *Pipeline) load(ctx context.Context) (inputs, error) {
	var in inputs
	metric := p.cfg.CRS.Metric

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		segs, err := loader.LoadRailways(gctx,
			loader.SourceFrom("railways", p.cfg.Sources.Railways),
			loader.RailFieldsFrom(p.cfg.Fields), metric)
		if err != nil {
			return err
		}
		in.segments = segs
		return nil
	})
	g.Go(func() error {
		tree, err := p.loadBoundaries(gctx)
		if err != nil {
			return err
		}
		in.tree = tree
		return nil
	})
	if err := g.Wait(); err != nil {
		return in, eris.Wrap(err, "pipeline: load sources")
	}

	capitals, err := loader.LoadCapitals(p.cfg.Capitals.File, p.cfg.Capitals.Region)
	if err != nil {
		return in, err
	}
	in.munis, err = loader.LoadMunicipalities(ctx,
		loader.SourceFrom("municipalities", p.cfg.Sources.Municipalities),
		loader.MunicipalFieldsFrom(p.cfg.Fields), capitals, in.tree, metric)
	if err != nil {
		return in, eris.Wrap(err, "pipeline: load municipalities")
	}
	return in, nil
}

func (p *Pipeline) loadBoundaries(ctx context.Context) (*model.AdminTree, error) {
	return loader.LoadBoundaries(ctx,
		loader.SourceFrom("regions", p.cfg.Sources.Regions),
		loader.SourceFrom("provinces", p.cfg.Sources.Provinces),
		loader.BoundaryFieldsFrom(p.cfg.Fields), p.cfg.CRS.Metric)
}

// rasterLayer clips the grid to the national boundary, closes it and
// vectorizes the clipped window.
func (p *Pipeline) rasterLayer(ctx context.Context, layer string, src loader.Source, tree *model.AdminTree) ([]model.VectorizedCell, error) {
	cls, err := raster.ClassifierFor(layer, p.cfg.Classes)
	if err != nil {
		return nil, err
	}
	national, ok := tree.Unit(tree.National)
	if !ok {
		return nil, eris.New("pipeline: boundary tree has no national unit")
	}

	g, err := loader.OpenGrid(src)
	if err != nil {
		return nil, err
	}
	defer g.Close() //nolint:errcheck

	proj, err := gis.NewProjector(p.cfg.CRS.Metric, g.Spec().CRS)
	if err != nil {
		return nil, model.NewCRSResolutionError(src.Name, g.Spec().CRS, err)
	}
	boundary, err := proj.MultiPolygon(national.Geometry)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: project boundary for %s", layer)
	}

	clipped, err := raster.Clip(ctx, layer, g, boundary)
	if err != nil {
		return nil, err
	}
	if err := g.Close(); err != nil {
		return nil, eris.Wrapf(err, "pipeline: close %s grid", layer)
	}

	return raster.VectorizeAll(ctx, clipped, cls, raster.Options{
		BlockRows: p.cfg.Raster.BlockRows,
		Workers:   p.cfg.Raster.Workers,
		Tolerance: p.cfg.Raster.Tolerance,
	})
}

// checkSegmentWarnings escalates the first per-segment mismatch above the
// hard threshold.
func (p *Pipeline) checkSegmentWarnings(warnings []*model.AttributionMismatchError) error {
	hard := p.cfg.Overlay.HardThresholdM
	if hard <= 0 {
		return nil
	}
	for _, w := range warnings {
		if math.Abs(w.Discrepancy) > hard {
			return eris.Wrapf(w, "pipeline: segment %s exceeds %.1fm", w.SegmentID, hard)
		}
	}
	return nil
}

func (p *Pipeline) rasterSource(layer string) loader.Source {
	switch layer {
	case raster.LayerRuggedness:
		return loader.SourceFrom(layer, p.cfg.Sources.Ruggedness)
	case raster.LayerWheat:
		return loader.SourceFrom(layer, p.cfg.Sources.Wheat)
	}
	return loader.Source{}
}

func (p *Pipeline) writer() (*output.Writer, error) {
	return output.NewWriter(output.Options{
		Dir:        p.cfg.Output.Dir,
		MetricCRS:  p.cfg.CRS.Metric,
		DisplayCRS: p.cfg.CRS.Display,
		XLSX:       p.cfg.Output.XLSX,
		SQLite:     p.cfg.Output.SQLite,
	})
}

func (p *Pipeline) inputPaths() map[string]string {
	s := p.cfg.Sources
	out := map[string]string{
		"railways":       s.Railways.Path,
		"regions":        s.Regions.Path,
		"provinces":      s.Provinces.Path,
		"municipalities": s.Municipalities.Path,
		"ruggedness":     s.Ruggedness.Path,
		"wheat":          s.Wheat.Path,
	}
	if p.cfg.Capitals.File != "" {
		out["capitals"] = p.cfg.Capitals.File
	}
	for k, v := range out {
		if v == "" {
			delete(out, k)
		}
	}
	return out
}

func (p *Pipeline) settings() output.Settings {
	return output.Settings{
		MetricCRS:       p.cfg.CRS.Metric,
		DisplayCRS:      p.cfg.CRS.Display,
		EpsilonM:        p.cfg.Overlay.EpsilonM,
		HardThresholdM:  p.cfg.Overlay.HardThresholdM,
		RasterTolerance: p.cfg.Raster.Tolerance,
	}
}
