// Package loader reads the pipeline inputs (railway lines, administrative
// boundaries, municipalities and rasters) and normalizes them into the
// metric CRS.
package loader

import (
	"path/filepath"
	"strings"

	"github.com/sells-group/railway-atlas/internal/config"
	"github.com/sells-group/railway-atlas/internal/model"
)

// Format is the on-disk encoding of a source.
type Format int

const (
	FormatUnknown Format = iota
	FormatShapefile
	FormatGeoJSON
	FormatCSV
	FormatAAIGrid
)

func (f Format) String() string {
	switch f {
	case FormatShapefile:
		return "shapefile"
	case FormatGeoJSON:
		return "geojson"
	case FormatCSV:
		return "csv"
	case FormatAAIGrid:
		return "aaigrid"
	}
	return "unknown"
}

// DetectFormat resolves the format of path from its extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return FormatShapefile, nil
	case ".geojson", ".json":
		return FormatGeoJSON, nil
	case ".csv":
		return FormatCSV, nil
	case ".asc", ".txt":
		return FormatAAIGrid, nil
	}
	return FormatUnknown, model.NewSourceFormatError(path, "", "unrecognized file extension", nil)
}

// Source describes one input dataset.
type Source struct {
	Name      string // logical name used in errors and logs
	Path      string
	AssumeCRS string // used when the file carries no CRS
	Charset   string // attribute encoding for DBF tables
	Repair    bool   // close rings and drop duplicate vertices instead of failing
}

// SourceFrom builds a Source from its configuration section.
func SourceFrom(name string, c config.SourceConfig) Source {
	return Source{
		Name:      name,
		Path:      c.Path,
		AssumeCRS: c.AssumeCRS,
		Charset:   c.Charset,
		Repair:    c.Repair,
	}
}

func (s Source) label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Path
}
