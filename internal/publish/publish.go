// Package publish loads the artifacts of a run into a PostGIS schema.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/sells-group/railway-atlas/internal/config"
	"github.com/sells-group/railway-atlas/internal/db"
	"github.com/sells-group/railway-atlas/internal/gis"
	"github.com/sells-group/railway-atlas/internal/output"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

// Summary reports the rows written per table.
type Summary struct {
	RunID string
	Rows  map[string]int64
}

// Publisher writes run artifacts into schema.
type Publisher struct {
	pool      db.Pool
	schema    string
	batchSize int
}

// New returns a publisher for the configured schema.
func New(pool db.Pool, cfg config.PublishConfig) *Publisher {
	schema := cfg.Schema
	if schema == "" {
		schema = "atlas"
	}
	return &Publisher{pool: pool, schema: schema, batchSize: cfg.BatchSize}
}

// Publish migrates the schema and loads the run found in dir. Tables keyed
// by unit and year are upserted, so publishing the same run twice leaves
// the database unchanged; geometry tables are replaced.
func (p *Publisher) Publish(ctx context.Context, dir string) (*Summary, error) {
	log := zap.L().With(zap.String("component", "publish"), zap.String("dir", dir))

	m, err := output.ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	tables, err := output.ReadTables(dir)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx, p.pool, p.schema); err != nil {
		return nil, err
	}

	s := &Summary{RunID: m.RunID, Rows: make(map[string]int64)}
	if err := p.recordRun(ctx, m); err != nil {
		return nil, err
	}

	steps := []struct {
		table string
		cfg   db.UpsertConfig
		rows  [][]any
	}{
		{"lengths", p.upsert("lengths", []string{"unit", "level", "year", "line_type", "gauge", "meters", "added_meters"}, "unit", "year", "line_type", "gauge"), lengthRows(tables)},
		{"distances", p.upsert("distances", []string{"municipality", "year", "meters", "nearest_segment"}, "municipality", "year"), distanceRows(tables)},
		{"access", p.upsert("access", []string{"year", "unit", "kind", "name", "meters"}, "year", "unit", "kind"), accessRows(tables)},
	}
	for _, st := range steps {
		n, err := db.BulkUpsert(ctx, p.pool, st.cfg, st.rows)
		if err != nil {
			return nil, eris.Wrapf(err, "publish: %s", st.table)
		}
		s.Rows[st.table] = n
	}

	for _, name := range layerArtifacts(m.Artifacts) {
		n, err := p.publishLayer(ctx, dir, name)
		if err != nil {
			return nil, err
		}
		s.Rows["layers"] += n
	}

	if len(m.Settings.Years) > 0 {
		last := m.Settings.Years[len(m.Settings.Years)-1]
		n, err := p.publishNetwork(ctx, dir, output.NetworkFile(last))
		if err != nil {
			return nil, err
		}
		s.Rows["network"] = n
	}

	log.Info("run published", zap.String("run_id", m.RunID), zap.Any("rows", s.Rows))
	return s, nil
}

func (p *Publisher) upsert(table string, columns []string, keys ...string) db.UpsertConfig {
	return db.UpsertConfig{Table: p.schema + "." + table, Columns: columns, ConflictKeys: keys}
}

func (p *Publisher) recordRun(ctx context.Context, m *output.Manifest) error {
	settings, err := json.Marshal(m.Settings)
	if err != nil {
		return eris.Wrap(err, "publish: marshal settings")
	}
	counts, err := json.Marshal(m.Counts)
	if err != nil {
		return eris.Wrap(err, "publish: marshal counts")
	}
	sql := fmt.Sprintf(
		"INSERT INTO %s (run_id, settings, counts, warnings) VALUES ($1, $2, $3, $4) ON CONFLICT (run_id) DO NOTHING",
		pgx.Identifier{p.schema, "runs"}.Sanitize(),
	)
	if _, err := p.pool.Exec(ctx, sql, m.RunID, string(settings), string(counts), len(m.Warnings)); err != nil {
		return eris.Wrap(err, "publish: record run")
	}
	return nil
}

func (p *Publisher) publishLayer(ctx context.Context, dir, file string) (int64, error) {
	layer := strings.TrimSuffix(file, ".geojson")
	fc, err := output.ReadCollection(dir, file)
	if err != nil {
		return 0, err
	}
	rows := make([][]any, 0, len(fc.Features))
	for i, f := range fc.Features {
		g, err := ewkbOf(f)
		if err != nil {
			return 0, eris.Wrapf(err, "publish: %s feature %d", layer, i)
		}
		rows = append(rows, []any{layer, intProp(f, "class"), floatProp(f, "value"), intProp(f, "cells"), g})
	}

	sql := fmt.Sprintf("DELETE FROM %s WHERE layer = $1", pgx.Identifier{p.schema, "layers"}.Sanitize())
	if _, err := p.pool.Exec(ctx, sql, layer); err != nil {
		return 0, eris.Wrapf(err, "publish: clear layer %s", layer)
	}
	return db.CopyBatches(ctx, p.pool, p.schema, "layers", []string{"layer", "class", "value", "cells", "geom"}, rows, p.batchSize)
}

func (p *Publisher) publishNetwork(ctx context.Context, dir, file string) (int64, error) {
	fc, err := output.ReadCollection(dir, file)
	if err != nil {
		return 0, err
	}
	rows := make([][]any, 0, len(fc.Features))
	for _, f := range fc.Features {
		g, err := ewkbOf(f)
		if err != nil {
			return 0, eris.Wrapf(err, "publish: segment %s", f.ID)
		}
		rows = append(rows, []any{f.ID, intProp(f, "year"), stringProp(f, "type"), stringProp(f, "gauge"), floatProp(f, "length_m"), g})
	}
	if err := db.Truncate(ctx, p.pool, p.schema, "network"); err != nil {
		return 0, err
	}
	return db.CopyBatches(ctx, p.pool, p.schema, "network", []string{"segment_id", "year", "line_type", "gauge", "length_m", "geom"}, rows, p.batchSize)
}

func ewkbOf(f *geojson.Feature) ([]byte, error) {
	g, err := gis.FromGeomT(f.Geometry)
	if err != nil {
		return nil, err
	}
	return gis.EncodeEWKB(g, gis.SRID(gis.WGS84))
}

// layerArtifacts returns the top-level GeoJSON artifacts, which are the
// vectorized raster layers.
func layerArtifacts(artifacts []string) []string {
	var out []string
	for _, a := range artifacts {
		if strings.HasSuffix(a, ".geojson") && filepath.Dir(a) == "." {
			out = append(out, a)
		}
	}
	sort.Strings(out)
	return out
}

func lengthRows(t *output.Tables) [][]any {
	rows := make([][]any, len(t.Lengths))
	for i, r := range t.Lengths {
		rows[i] = []any{r.UnitID, string(r.Level), r.Year, string(r.LineType), string(r.Gauge), r.Meters, r.AddedMeters}
	}
	return rows
}

func distanceRows(t *output.Tables) [][]any {
	rows := make([][]any, len(t.Distances))
	for i, d := range t.Distances {
		var m any
		if d.Reachable && !math.IsInf(d.Meters, 1) {
			m = d.Meters
		}
		var nearest any
		if d.NearestSegmentID != "" {
			nearest = d.NearestSegmentID
		}
		rows[i] = []any{d.MunicipalityID, d.Year, m, nearest}
	}
	return rows
}

func accessRows(t *output.Tables) [][]any {
	rows := make([][]any, len(t.Aggregates))
	for i, a := range t.Aggregates {
		rows[i] = []any{a.Year, a.UnitID, string(a.Kind), a.Name, a.Meters}
	}
	return rows
}

func floatProp(f *geojson.Feature, key string) float64 {
	v, _ := f.Properties[key].(float64)
	return v
}

func intProp(f *geojson.Feature, key string) int {
	return int(floatProp(f, key))
}

func stringProp(f *geojson.Feature, key string) string {
	v, _ := f.Properties[key].(string)
	return v
}
