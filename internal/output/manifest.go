package output

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/sells-group/railway-atlas/internal/model"
)

// Settings records the parameters a run was computed with.
type Settings struct {
	MetricCRS       string  `json:"metric_crs"`
	DisplayCRS      string  `json:"display_crs"`
	EpsilonM        float64 `json:"epsilon_m"`
	HardThresholdM  float64 `json:"hard_threshold_m"`
	RasterTolerance float64 `json:"raster_tolerance"`
	Years           []int   `json:"years"`
}

// Manifest describes a run and its artifacts.
type Manifest struct {
	RunID     string                            `json:"run_id"`
	Inputs    map[string]string                 `json:"inputs"`
	Settings  Settings                          `json:"settings"`
	Counts    map[string]int                    `json:"counts"`
	Outside   []string                          `json:"outside_segments,omitempty"`
	Warnings  []*model.AttributionMismatchError `json:"warnings"`
	Artifacts []string                          `json:"artifacts"`
}

// NewManifest starts a manifest with a fresh run id.
func NewManifest(inputs map[string]string, settings Settings) *Manifest {
	return &Manifest{
		RunID:    uuid.New().String(),
		Inputs:   inputs,
		Settings: settings,
		Counts:   make(map[string]int),
		Warnings: []*model.AttributionMismatchError{},
	}
}

// WriteManifest writes m into dir.
func WriteManifest(dir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return eris.Wrap(err, "output: marshal manifest")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrap(err, "output: create directory")
	}
	return eris.Wrap(os.WriteFile(filepath.Join(dir, ManifestFile), append(data, '\n'), 0o644), "output: write manifest")
}

// ReadManifest reads the manifest of a previous run.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, eris.Wrap(err, "output: read manifest")
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrap(err, "output: parse manifest")
	}
	return &m, nil
}
