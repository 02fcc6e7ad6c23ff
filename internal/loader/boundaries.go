package loader

import (
	"context"
	"sort"

	"github.com/ctessum/geom"
	"github.com/sells-group/railway-atlas/internal/config"
	"github.com/sells-group/railway-atlas/internal/gis"
	"github.com/sells-group/railway-atlas/internal/model"
	"go.uber.org/zap"
)

// BoundaryFields names the boundary attributes.
type BoundaryFields struct {
	Region   string
	Province string
}

// BoundaryFieldsFrom maps the configured field names.
func BoundaryFieldsFrom(c config.FieldsConfig) BoundaryFields {
	return BoundaryFields{Region: c.RegionName, Province: c.ProvinceName}
}

// NationalName is the display name of the root unit.
const NationalName = "Italia"

// LoadBoundaries builds the administrative tree. The national unit is the
// union of all regions; regions do not overlap, so their polygons are kept
// as parts of one multipolygon. Provinces are parented by their region
// attribute.
func LoadBoundaries(ctx context.Context, regions, provinces Source, fields BoundaryFields, target string) (*model.AdminTree, error) {
	log := zap.L().With(zap.String("component", "loader.boundaries"))

	regionGeoms, _, err := loadAreas(ctx, regions, fields.Region, "", target)
	if err != nil {
		return nil, err
	}
	provinceGeoms, provinceParent, err := loadAreas(ctx, provinces, fields.Province, fields.Region, target)
	if err != nil {
		return nil, err
	}

	var units []*model.AdminUnit
	var national geom.MultiPolygon
	for _, name := range sortedKeys(regionGeoms) {
		mp := regionGeoms[name]
		national = append(national, mp...)
		units = append(units, newUnit(model.RegionID(name), name, model.LevelRegional, model.NationalID, mp))
	}
	for _, name := range sortedKeys(provinceGeoms) {
		parent := provinceParent[name]
		if parent == "" {
			return nil, model.NewTopologyError(provinces.label(), name, "province has no region attribute "+fields.Region)
		}
		units = append(units, newUnit(model.ProvinceID(name), name, model.LevelProvincial, model.RegionID(parent), provinceGeoms[name]))
	}
	units = append(units, newUnit(model.NationalID, NationalName, model.LevelNational, "", national))

	tree, err := model.NewAdminTree(units)
	if err != nil {
		return nil, err
	}
	log.Info("boundaries loaded",
		zap.Int("regions", len(regionGeoms)),
		zap.Int("provinces", len(provinceGeoms)),
	)
	return tree, nil
}

func newUnit(id, name string, level model.Level, parent string, mp geom.MultiPolygon) *model.AdminUnit {
	return &model.AdminUnit{
		ID:       id,
		Name:     name,
		Level:    level,
		Parent:   parent,
		Geometry: mp,
		AreaKm2:  gis.PolygonArea(mp) / 1e6,
	}
}

// loadAreas reads named polygons, merging features that share a name, and
// returns them in the target CRS together with each name's parent attribute.
func loadAreas(ctx context.Context, src Source, nameField, parentField, target string) (map[string]geom.MultiPolygon, map[string]string, error) {
	c, err := readVector(ctx, src)
	if err != nil {
		return nil, nil, err
	}
	proj, err := projector(src, c.crs, target)
	if err != nil {
		return nil, nil, err
	}

	geoms := make(map[string]geom.MultiPolygon)
	parents := make(map[string]string)
	for _, f := range c.features {
		name := f.attr(nameField)
		if name == "" {
			return nil, nil, model.NewSourceFormatError(src.label(), featureID(f, ""), "missing attribute "+nameField, nil)
		}
		mp, err := polygonal(src, f, name)
		if err != nil {
			return nil, nil, err
		}
		mp, err = proj.MultiPolygon(mp)
		if err != nil {
			return nil, nil, model.NewCRSResolutionError(src.label(), c.crs, err)
		}
		geoms[name] = append(geoms[name], mp...)
		if parentField != "" {
			p := f.attr(parentField)
			if prev, ok := parents[name]; ok && prev != p {
				return nil, nil, model.NewTopologyError(src.label(), name, "parts belong to regions "+prev+" and "+p)
			}
			parents[name] = p
		}
	}
	return geoms, parents, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
