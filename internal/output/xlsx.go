package output

import (
	"github.com/rotisserie/eris"
	"github.com/sells-group/railway-atlas/internal/model"
	"github.com/tealeg/xlsx/v2"
)

type sheetWriter struct {
	sheet *xlsx.Sheet
}

func (s sheetWriter) row(values ...any) {
	row := s.sheet.AddRow()
	for _, v := range values {
		cell := row.AddCell()
		switch t := v.(type) {
		case string:
			cell.SetString(t)
		case int:
			cell.SetInt(t)
		case float64:
			cell.SetFloat(t)
		case bool:
			cell.SetBool(t)
		case nil:
		}
	}
}

func addSheet(f *xlsx.File, name string, header ...any) (sheetWriter, error) {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return sheetWriter{}, eris.Wrapf(err, "xlsx: add sheet %s", name)
	}
	sw := sheetWriter{sheet: sheet}
	sw.row(header...)
	return sw, nil
}

// writeXLSX exports the tables of b as one sheet each.
func writeXLSX(path string, b *Bundle) error {
	f := xlsx.NewFile()

	units, err := addSheet(f, "units", "id", "name", "level", "parent", "area_km2")
	if err != nil {
		return err
	}
	if b.Tree != nil {
		for _, l := range model.Levels {
			for _, u := range b.Tree.AtLevel(l) {
				units.row(u.ID, u.Name, string(u.Level), u.Parent, u.AreaKm2)
			}
		}
	}

	lengths, err := addSheet(f, "lengths", "unit", "level", "year", "type", "gauge", "meters", "added_meters")
	if err != nil {
		return err
	}
	for _, r := range lengthRows(b.Lengths) {
		lengths.row(r.UnitID, string(r.Level), r.Year, string(r.LineType), string(r.Gauge), r.Meters, r.AddedMeters)
	}

	t := accessRows(b.Distances, b.Access)
	distances, err := addSheet(f, "distances", "municipality", "year", "meters", "reachable", "nearest_segment")
	if err != nil {
		return err
	}
	for _, d := range t.Distances {
		var m any
		if d.Reachable {
			m = d.Meters
		}
		distances.row(d.MunicipalityID, d.Year, m, d.Reachable, d.NearestSegmentID)
	}

	access, err := addSheet(f, "access", "year", "unit", "name", "kind", "km")
	if err != nil {
		return err
	}
	for _, a := range t.Aggregates {
		access.row(a.Year, a.Unit, a.Name, string(a.Kind), a.Km)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "xlsx: save")
	}
	return nil
}
