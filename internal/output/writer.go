// Package output writes the derived dataset as web-ready artifacts.
package output

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/sells-group/railway-atlas/internal/gis"
	"github.com/sells-group/railway-atlas/internal/model"
	"github.com/sells-group/railway-atlas/internal/network"
	"go.uber.org/zap"
)

// Artifact names relative to the output directory.
const (
	LengthsFile   = "lengths.json"
	AccessFile    = "access.json"
	DashboardFile = "dashboard.js"
	XLSXFile      = "atlas.xlsx"
	SQLiteFile    = "atlas.sqlite"
	ManifestFile  = "manifest.json"
	NetworkDir    = "network"
)

// LayerFile returns the artifact name of a vectorized raster layer.
func LayerFile(layer string) string { return layer + ".geojson" }

// NetworkFile returns the artifact name of a network snapshot.
func NetworkFile(year int) string {
	return filepath.Join(NetworkDir, strconv.Itoa(year)+".geojson")
}

// Options configures the writer.
type Options struct {
	Dir        string
	MetricCRS  string
	DisplayCRS string
	XLSX       bool
	SQLite     bool
}

// Bundle is everything a run produced.
type Bundle struct {
	Tree      *model.AdminTree
	Layers    map[string][]model.VectorizedCell
	Network   *network.Index
	Years     []int
	Lengths   []model.LengthRecord
	Distances []model.DistanceRecord
	Access    []model.AccessRecord
}

// Writer serializes bundles into a directory.
type Writer struct {
	opts       Options
	display    *gis.Projector
	rasterProj map[string]*gis.Projector
	srid       int
}

// NewWriter prepares a writer reprojecting from the metric to the display CRS.
func NewWriter(opts Options) (*Writer, error) {
	if opts.Dir == "" {
		return nil, eris.New("output: directory is required")
	}
	p, err := gis.NewProjector(opts.MetricCRS, opts.DisplayCRS)
	if err != nil {
		return nil, eris.Wrap(err, "output: display projection")
	}
	return &Writer{
		opts:       opts,
		display:    p,
		rasterProj: make(map[string]*gis.Projector),
		srid:       gis.SRID(opts.DisplayCRS),
	}, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string { return w.opts.Dir }

// Write writes every artifact of b and returns their names in write order.
// Layers are written in name order, network snapshots in year order.
func (w *Writer) Write(ctx context.Context, b *Bundle) ([]string, error) {
	log := zap.L().With(zap.String("component", "output.writer"))

	var written []string
	for _, name := range sortedLayerNames(b.Layers) {
		if err := w.WriteLayer(name, b.Layers[name]); err != nil {
			return written, err
		}
		written = append(written, LayerFile(name))
	}

	if b.Network != nil {
		for _, year := range b.Years {
			if err := ctx.Err(); err != nil {
				return written, eris.Wrap(err, "output: write cancelled")
			}
			fc, err := w.networkCollection(year, b.Network.SnapshotAt(year).Segments)
			if err != nil {
				return written, err
			}
			data, err := marshalCollection(fc)
			if err != nil {
				return written, err
			}
			if err := w.writeFile(NetworkFile(year), data); err != nil {
				return written, err
			}
			written = append(written, NetworkFile(year))
		}
	}

	tables := []struct {
		name string
		v    func() ([]byte, error)
	}{
		{LengthsFile, func() ([]byte, error) { return marshalTable(lengthRows(b.Lengths)) }},
		{AccessFile, func() ([]byte, error) { return marshalTable(accessRows(b.Distances, b.Access)) }},
		{DashboardFile, func() ([]byte, error) { return marshalDashboard(b) }},
	}
	for _, t := range tables {
		data, err := t.v()
		if err != nil {
			return written, err
		}
		if err := w.writeFile(t.name, data); err != nil {
			return written, err
		}
		written = append(written, t.name)
	}

	if w.opts.XLSX {
		if err := writeXLSX(filepath.Join(w.opts.Dir, XLSXFile), b); err != nil {
			return written, eris.Wrap(err, "output: xlsx export")
		}
		written = append(written, XLSXFile)
	}
	if w.opts.SQLite {
		if err := writeSQLite(ctx, filepath.Join(w.opts.Dir, SQLiteFile), b); err != nil {
			return written, eris.Wrap(err, "output: sqlite export")
		}
		written = append(written, SQLiteFile)
	}

	log.Info("artifacts written", zap.String("dir", w.opts.Dir), zap.Int("files", len(written)))
	return written, nil
}

// WriteLayer writes one vectorized raster layer.
func (w *Writer) WriteLayer(name string, cells []model.VectorizedCell) error {
	fc, err := w.layerCollection(cells)
	if err != nil {
		return err
	}
	data, err := marshalCollection(fc)
	if err != nil {
		return err
	}
	return w.writeFile(LayerFile(name), data)
}

// writeFile replaces name atomically so readers never see partial files.
func (w *Writer) writeFile(name string, data []byte) error {
	path := filepath.Join(w.opts.Dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "output: create directory for %s", name)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrapf(err, "output: write %s", name)
	}
	if err := os.Rename(tmp, path); err != nil {
		return eris.Wrapf(err, "output: rename %s", name)
	}
	return nil
}

func sortedLayerNames(layers map[string][]model.VectorizedCell) []string {
	names := make([]string, 0, len(layers))
	for n := range layers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
