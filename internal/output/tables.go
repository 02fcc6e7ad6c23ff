package output

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/sells-group/railway-atlas/internal/gis"
	"github.com/sells-group/railway-atlas/internal/model"
)

// lengthRows rounds record lengths to the millimetre.
func lengthRows(records []model.LengthRecord) []model.LengthRecord {
	out := make([]model.LengthRecord, len(records))
	for i, r := range records {
		r.Meters = gis.Round(r.Meters, 3)
		r.AddedMeters = gis.Round(r.AddedMeters, 3)
		out[i] = r
	}
	return out
}

type aggregateRow struct {
	Year int              `json:"year"`
	Unit string           `json:"unit"`
	Name string           `json:"name"`
	Kind model.AccessKind `json:"kind"`
	Km   float64          `json:"km"`
}

type accessTable struct {
	Distances  []model.DistanceRecord `json:"distances"`
	Aggregates []aggregateRow         `json:"aggregates"`
}

func accessRows(distances []model.DistanceRecord, access []model.AccessRecord) accessTable {
	t := accessTable{
		Distances:  make([]model.DistanceRecord, len(distances)),
		Aggregates: make([]aggregateRow, len(access)),
	}
	for i, d := range distances {
		d.Meters = gis.Round(d.Meters, 2)
		t.Distances[i] = d
	}
	for i, a := range access {
		t.Aggregates[i] = aggregateRow{Year: a.Year, Unit: a.UnitID, Name: a.Name, Kind: a.Kind, Km: gis.Round(a.Meters/1000, 2)}
	}
	return t
}

// dashboardBundle is the data file loaded by the web dashboard.
type dashboardBundle struct {
	Meta      dashboardMeta       `json:"meta"`
	Structure map[string][]string `json:"structure"` // region name -> province names
	Infra     []infraRow          `json:"infra"`
	Access    []aggregateRow      `json:"access"`
}

type dashboardMeta struct {
	Years []int              `json:"years"`
	Areas map[string]float64 `json:"areas"` // unit name -> km2
}

type infraRow struct {
	Unit    string  `json:"unit"`
	Level   string  `json:"level"`
	Year    int     `json:"year"`
	Type    string  `json:"type"`
	Gauge   string  `json:"gauge"`
	Km      float64 `json:"km"`
	AddedKm float64 `json:"added_km"`
}

func dashboard(b *Bundle) dashboardBundle {
	d := dashboardBundle{
		Meta:      dashboardMeta{Years: b.Years, Areas: make(map[string]float64)},
		Structure: make(map[string][]string),
		Infra:     make([]infraRow, 0, len(b.Lengths)),
		Access:    accessRows(nil, b.Access).Aggregates,
	}
	if b.Tree != nil {
		for _, l := range model.Levels {
			for _, u := range b.Tree.AtLevel(l) {
				d.Meta.Areas[u.Name] = gis.Round(u.AreaKm2, 1)
			}
		}
		for _, r := range b.Tree.AtLevel(model.LevelRegional) {
			names := []string{}
			for _, id := range b.Tree.Children(r.ID) {
				if p, ok := b.Tree.Unit(id); ok {
					names = append(names, p.Name)
				}
			}
			sort.Strings(names)
			d.Structure[r.Name] = names
		}
	}
	for _, r := range b.Lengths {
		name := r.UnitID
		if b.Tree != nil {
			if u, ok := b.Tree.Unit(r.UnitID); ok {
				name = u.Name
			}
		}
		d.Infra = append(d.Infra, infraRow{
			Unit:    name,
			Level:   string(r.Level),
			Year:    r.Year,
			Type:    string(r.LineType),
			Gauge:   string(r.Gauge),
			Km:      gis.Round(r.Meters/1000, 3),
			AddedKm: gis.Round(r.AddedMeters/1000, 3),
		})
	}
	return d
}

func marshalDashboard(b *Bundle) ([]byte, error) {
	data, err := json.Marshal(dashboard(b))
	if err != nil {
		return nil, eris.Wrap(err, "output: marshal dashboard")
	}
	var buf bytes.Buffer
	buf.WriteString("const DB = ")
	buf.Write(data)
	buf.WriteString(";\n")
	return buf.Bytes(), nil
}

func marshalTable(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "output: marshal table")
	}
	return append(data, '\n'), nil
}
