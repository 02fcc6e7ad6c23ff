package output

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/sells-group/railway-atlas/internal/model"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Tables are the tabular artifacts of a run read back from disk.
type Tables struct {
	Lengths    []model.LengthRecord
	Distances  []model.DistanceRecord
	Aggregates []model.AccessRecord
}

// ReadTables reads lengths.json and access.json from dir.
func ReadTables(dir string) (*Tables, error) {
	var t Tables
	if err := readJSON(filepath.Join(dir, LengthsFile), &t.Lengths); err != nil {
		return nil, err
	}
	var at accessTable
	if err := readJSON(filepath.Join(dir, AccessFile), &at); err != nil {
		return nil, err
	}
	t.Distances = at.Distances
	for _, a := range at.Aggregates {
		t.Aggregates = append(t.Aggregates, model.AccessRecord{
			Year: a.Year, UnitID: a.Unit, Name: a.Name, Kind: a.Kind, Meters: a.Km * 1000,
		})
	}
	return &t, nil
}

// ReadCollection reads a GeoJSON artifact such as a layer or a network
// snapshot.
func ReadCollection(dir, name string) (*geojson.FeatureCollection, error) {
	var fc geojson.FeatureCollection
	if err := readJSON(filepath.Join(dir, name), &fc); err != nil {
		return nil, err
	}
	return &fc, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "output: read %s", filepath.Base(path))
	}
	if err := json.Unmarshal(data, v); err != nil {
		return eris.Wrapf(err, "output: parse %s", filepath.Base(path))
	}
	return nil
}
