package loader

import (
	"context"
	"encoding/csv"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/sells-group/railway-atlas/internal/config"
	"github.com/sells-group/railway-atlas/internal/gis"
	"github.com/sells-group/railway-atlas/internal/model"
	"go.uber.org/zap"
)

// MunicipalFields names the municipality attributes.
type MunicipalFields struct {
	ID       string
	Name     string
	Province string
	Region   string
	Capital  string
}

// MunicipalFieldsFrom maps the configured field names.
func MunicipalFieldsFrom(c config.FieldsConfig) MunicipalFields {
	return MunicipalFields{
		ID:       c.MunicipalID,
		Name:     c.MunicipalName,
		Province: c.ProvinceName,
		Region:   c.RegionName,
		Capital:  c.Capital,
	}
}

// municipalRow is the CSV layout for point sources.
type municipalRow struct {
	ID       string  `csv:"id"`
	Name     string  `csv:"name"`
	Province string  `csv:"province,omitempty"`
	Region   string  `csv:"region,omitempty"`
	X        float64 `csv:"x"`
	Y        float64 `csv:"y"`
	Capital  string  `csv:"capital,omitempty"`
}

// rawMunicipality is a decoded record before unit assignment.
type rawMunicipality struct {
	id, name, province, region, capital string
	point                               geom.Point
}

// LoadMunicipalities reads the municipality reference points into the target
// CRS. Polygon sources are reduced to their area centroid. Units come from
// the province/region attributes when they name a unit of tree, otherwise
// from the province polygon containing the point. Capitals are designated by
// the capital attribute, the capitals table, and finally by a municipality
// sharing its province's name.
func LoadMunicipalities(ctx context.Context, src Source, fields MunicipalFields, capitals Capitals, tree *model.AdminTree, target string) ([]model.Municipality, error) {
	log := zap.L().With(zap.String("component", "loader.municipalities"))

	format, err := DetectFormat(src.Path)
	if err != nil {
		return nil, err
	}
	var raws []rawMunicipality
	switch format {
	case FormatCSV:
		raws, err = readMunicipalCSV(src, target)
	case FormatShapefile, FormatGeoJSON:
		raws, err = readMunicipalVector(ctx, src, fields, target)
	default:
		err = model.NewSourceFormatError(src.label(), "", format.String()+" cannot hold municipalities", nil)
	}
	if err != nil {
		return nil, err
	}

	loc := newLocator(tree)
	out := make([]model.Municipality, 0, len(raws))
	seen := make(map[string]bool, len(raws))
	var unplaced int
	for _, r := range raws {
		if seen[r.id] {
			return nil, model.NewSourceFormatError(src.label(), r.id, "duplicate municipality id", nil)
		}
		seen[r.id] = true

		m := model.Municipality{ID: r.id, Name: r.name, Centroid: r.point}
		m.Province, m.Region = loc.assign(r)
		if m.Province == "" && m.Region == "" {
			unplaced++
			log.Debug("municipality outside every unit", zap.String("id", r.id), zap.String("name", r.name))
		}
		m.CapitalOf = capitalUnits(r, m, capitals, tree)
		out = append(out, m)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	dedupeCapitals(out, log)

	log.Info("municipalities loaded",
		zap.String("source", src.label()),
		zap.Int("municipalities", len(out)),
		zap.Int("unplaced", unplaced),
	)
	return out, nil
}

func readMunicipalCSV(src Source, target string) ([]rawMunicipality, error) {
	crs, err := resolveCRS(src, "", gis.WGS84)
	if err != nil {
		return nil, err
	}
	proj, err := projector(src, crs, target)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(src.Path)
	if err != nil {
		return nil, model.NewSourceFormatError(src.label(), "", "open csv", eris.Wrapf(err, "loader: open %s", src.Path))
	}
	defer func() { _ = f.Close() }()

	dec, err := csvutil.NewDecoder(csv.NewReader(f))
	if err != nil {
		return nil, model.NewSourceFormatError(src.label(), "", "read csv header", err)
	}
	var rows []municipalRow
	if err := dec.Decode(&rows); err != nil {
		return nil, model.NewSourceFormatError(src.label(), "", "decode csv", err)
	}

	out := make([]rawMunicipality, 0, len(rows))
	for i, row := range rows {
		id := strings.TrimSpace(row.ID)
		if id == "" {
			id = strconv.Itoa(i + 1)
		}
		p := geom.Point{X: row.X, Y: row.Y}
		if !finite(p) {
			return nil, model.NewSourceFormatError(src.label(), id, "non-finite coordinate", nil)
		}
		p, err = proj.Point(p)
		if err != nil {
			return nil, model.NewCRSResolutionError(src.label(), crs, err)
		}
		out = append(out, rawMunicipality{
			id:       id,
			name:     strings.TrimSpace(row.Name),
			province: strings.TrimSpace(row.Province),
			region:   strings.TrimSpace(row.Region),
			capital:  strings.TrimSpace(row.Capital),
			point:    p,
		})
	}
	return out, nil
}

func readMunicipalVector(ctx context.Context, src Source, fields MunicipalFields, target string) ([]rawMunicipality, error) {
	c, err := readVector(ctx, src)
	if err != nil {
		return nil, err
	}
	proj, err := projector(src, c.crs, target)
	if err != nil {
		return nil, err
	}

	out := make([]rawMunicipality, 0, len(c.features))
	for _, f := range c.features {
		id := featureID(f, fields.ID)
		var p geom.Point
		switch g := f.geometry.(type) {
		case geom.Point:
			if !finite(g) {
				return nil, model.NewSourceFormatError(src.label(), id, "non-finite coordinate", nil)
			}
			if p, err = proj.Point(g); err != nil {
				return nil, model.NewCRSResolutionError(src.label(), c.crs, err)
			}
		default:
			mp, err := polygonal(src, f, id)
			if err != nil {
				return nil, err
			}
			// Centroids are taken in the target CRS so they are area-true.
			if mp, err = proj.MultiPolygon(mp); err != nil {
				return nil, model.NewCRSResolutionError(src.label(), c.crs, err)
			}
			var ok bool
			if p, ok = gis.Centroid(mp); !ok {
				return nil, model.NewTopologyError(src.label(), id, "polygon has no centroid")
			}
		}
		out = append(out, rawMunicipality{
			id:       id,
			name:     f.attr(fields.Name),
			province: f.attr(fields.Province),
			region:   f.attr(fields.Region),
			capital:  f.attr(fields.Capital),
			point:    p,
		})
	}
	return out, nil
}

// locator assigns municipalities to units.
type locator struct {
	tree      *model.AdminTree
	provinces []*model.AdminUnit
	regions   []*model.AdminUnit
	provIdx   *gis.AreaIndex
	regIdx    *gis.AreaIndex
}

func newLocator(tree *model.AdminTree) *locator {
	l := &locator{tree: tree}
	if tree == nil {
		return l
	}
	l.provinces = tree.AtLevel(model.LevelProvincial)
	l.regions = tree.AtLevel(model.LevelRegional)
	l.provIdx = gis.NewAreaIndex(unitGeoms(l.provinces))
	l.regIdx = gis.NewAreaIndex(unitGeoms(l.regions))
	return l
}

func unitGeoms(units []*model.AdminUnit) []geom.MultiPolygon {
	out := make([]geom.MultiPolygon, len(units))
	for i, u := range units {
		out[i] = u.Geometry
	}
	return out
}

// assign returns the province and region ids of r.
func (l *locator) assign(r rawMunicipality) (province, region string) {
	if l.tree == nil {
		if r.province != "" {
			province = model.ProvinceID(r.province)
		}
		if r.region != "" {
			region = model.RegionID(r.region)
		}
		return province, region
	}
	if r.province != "" {
		if u, ok := l.tree.Unit(model.ProvinceID(r.province)); ok {
			return u.ID, u.Parent
		}
	}
	if u := l.locate(l.provinces, l.provIdx, r.point); u != nil {
		return u.ID, u.Parent
	}
	if r.region != "" {
		if u, ok := l.tree.Unit(model.RegionID(r.region)); ok {
			return "", u.ID
		}
	}
	if u := l.locate(l.regions, l.regIdx, r.point); u != nil {
		return "", u.ID
	}
	return "", ""
}

func (l *locator) locate(units []*model.AdminUnit, idx *gis.AreaIndex, p geom.Point) *model.AdminUnit {
	for _, i := range idx.Candidates(p.Bounds()) {
		if gis.ContainsPoint(units[i].Geometry, p) {
			return units[i]
		}
	}
	return nil
}

// capitalUnits lists the units r is the designated capital of.
func capitalUnits(r rawMunicipality, m model.Municipality, capitals Capitals, tree *model.AdminTree) []string {
	var units []string
	add := func(id string) {
		if id == "" {
			return
		}
		if tree != nil {
			if _, ok := tree.Unit(id); !ok {
				return
			}
		}
		for _, u := range units {
			if u == id {
				return
			}
		}
		units = append(units, id)
	}

	if v := strings.ToLower(r.capital); v != "" {
		if strings.Contains(v, "reg") {
			add(m.Region)
		}
		if strings.Contains(v, "prov") || v == "1" || v == "true" || v == "yes" || v == "si" {
			add(m.Province)
		}
	}
	// Table entries only apply to a municipality inside the named unit.
	if region, ok := capitals.regionFor(r.name); ok && model.RegionID(region) == m.Region {
		add(m.Region)
	}
	if province, ok := capitals.provinceFor(r.name); ok && model.ProvinceID(province) == m.Province {
		add(m.Province)
	}
	if r.name != "" && m.Province != "" && tree != nil {
		if u, ok := tree.Unit(m.Province); ok && FoldName(u.Name) == FoldName(r.name) {
			add(u.ID)
		}
	}
	sort.Strings(units)
	return units
}

// dedupeCapitals keeps one capital per unit, the lowest municipality id.
func dedupeCapitals(ms []model.Municipality, log *zap.Logger) {
	owner := make(map[string]string)
	for i := range ms {
		kept := ms[i].CapitalOf[:0]
		for _, unit := range ms[i].CapitalOf {
			if prev, ok := owner[unit]; ok {
				log.Warn("unit has more than one capital; keeping the first",
					zap.String("unit", unit), zap.String("kept", prev), zap.String("dropped", ms[i].ID))
				continue
			}
			owner[unit] = ms[i].ID
			kept = append(kept, unit)
		}
		if len(kept) == 0 {
			kept = nil
		}
		ms[i].CapitalOf = kept
	}
}
