package loader

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/sells-group/railway-atlas/internal/gis"
	"github.com/sells-group/railway-atlas/internal/model"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"
)

// feature is one decoded vector record with its geometry in the source CRS.
// Attribute keys are lower-cased.
type feature struct {
	index    int
	geometry geom.Geom
	attrs    map[string]string
}

func (f feature) attr(name string) string {
	return f.attrs[strings.ToLower(name)]
}

// collection is the decoded content of a vector source.
type collection struct {
	crs      string
	features []feature
}

// readVector decodes a shapefile or GeoJSON source. Both are opened, read and
// closed within the call.
func readVector(ctx context.Context, src Source) (*collection, error) {
	format, err := DetectFormat(src.Path)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatShapefile:
		return readShapefile(ctx, src)
	case FormatGeoJSON:
		return readGeoJSON(ctx, src)
	}
	return nil, model.NewSourceFormatError(src.label(), "", format.String()+" is not a vector format", nil)
}

func readShapefile(ctx context.Context, src Source) (*collection, error) {
	log := zap.L().With(zap.String("component", "loader.shapefile"), zap.String("source", src.label()))

	declared, _, err := prjCRS(src.Path)
	if err != nil {
		return nil, err
	}
	crs, err := resolveCRS(src, declared, "")
	if err != nil {
		return nil, err
	}

	decode := func(s string) string { return s }
	if cs := strings.TrimSpace(src.Charset); cs != "" && !strings.EqualFold(cs, "utf-8") {
		enc, err := htmlindex.Get(cs)
		if err != nil {
			return nil, model.NewSourceFormatError(src.label(), "", "unsupported charset "+cs, err)
		}
		dec := enc.NewDecoder()
		decode = func(s string) string {
			out, err := dec.String(s)
			if err != nil {
				return s
			}
			return out
		}
	}

	reader, err := shp.Open(src.Path)
	if err != nil {
		return nil, model.NewSourceFormatError(src.label(), "", "open shapefile", eris.Wrapf(err, "loader: open shapefile %s", src.Path))
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.ToLower(strings.TrimRight(f.String(), "\x00"))
	}

	c := &collection{crs: crs}
	var skipped int
	for reader.Next() {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "loader: shapefile cancelled")
		}
		n, shape := reader.Shape()
		g := shapeGeometry(shape)
		if g == nil {
			skipped++
			log.Debug("skipping record without supported geometry", zap.Int("record", n))
			continue
		}
		attrs := make(map[string]string, len(names))
		for i, name := range names {
			v := strings.TrimRight(reader.Attribute(i), "\x00")
			attrs[name] = strings.TrimSpace(decode(v))
		}
		c.features = append(c.features, feature{index: n, geometry: g, attrs: attrs})
	}
	if err := reader.Err(); err != nil {
		return nil, model.NewSourceFormatError(src.label(), "", "read shapefile", err)
	}
	if skipped > 0 {
		log.Debug("skipped shapefile records", zap.Int("skipped", skipped))
	}
	return c, nil
}

// shapeGeometry converts a go-shp shape into planar geometry. Polygon rings
// are returned as stored; assembling holes happens during validation.
func shapeGeometry(shape shp.Shape) geom.Geom {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.Point{X: s.X, Y: s.Y}
	case *shp.PolyLine:
		parts := shapeParts(s.Parts, s.Points)
		if len(parts) == 0 {
			return nil
		}
		ml := make(geom.MultiLineString, 0, len(parts))
		for _, p := range parts {
			ml = append(ml, p)
		}
		return ml
	case *shp.Polygon:
		parts := shapeParts(s.Parts, s.Points)
		if len(parts) == 0 {
			return nil
		}
		poly := make(geom.Polygon, 0, len(parts))
		for _, p := range parts {
			poly = append(poly, p)
		}
		return shapeRings(poly)
	}
	return nil
}

func shapeParts(parts []int32, points []shp.Point) [][]geom.Point {
	var out [][]geom.Point
	for i := range parts {
		start := int(parts[i])
		end := len(points)
		if i+1 < len(parts) {
			end = int(parts[i+1])
		}
		if start < 0 || start >= end || end > len(points) {
			continue
		}
		path := make([]geom.Point, 0, end-start)
		for _, p := range points[start:end] {
			path = append(path, geom.Point{X: p.X, Y: p.Y})
		}
		out = append(out, path)
	}
	return out
}

// shapeRings groups shapefile rings into polygons: clockwise rings are
// exteriors, counter-clockwise rings are holes of the exterior containing
// them.
func shapeRings(rings geom.Polygon) geom.MultiPolygon {
	var mp geom.MultiPolygon
	var holes [][]geom.Point
	for _, r := range rings {
		if gis.RingArea(r) <= 0 {
			mp = append(mp, geom.Polygon{r})
		} else {
			holes = append(holes, r)
		}
	}
	for _, h := range holes {
		placed := false
		for i := range mp {
			if len(h) > 0 && gis.PolygonContains(geom.Polygon{mp[i][0]}, h[0]) {
				mp[i] = append(mp[i], h)
				placed = true
				break
			}
		}
		if !placed {
			mp = append(mp, geom.Polygon{h})
		}
	}
	return mp
}

// geoJSONHeader captures the legacy "crs" member dropped by the feature decoder.
type geoJSONHeader struct {
	CRS *struct {
		Properties struct {
			Name string `json:"name"`
		} `json:"properties"`
	} `json:"crs"`
}

func readGeoJSON(ctx context.Context, src Source) (*collection, error) {
	data, err := os.ReadFile(src.Path)
	if err != nil {
		return nil, model.NewSourceFormatError(src.label(), "", "read geojson", eris.Wrapf(err, "loader: read %s", src.Path))
	}

	var head geoJSONHeader
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, model.NewSourceFormatError(src.label(), "", "invalid JSON", err)
	}
	declared := ""
	if head.CRS != nil {
		declared = crsFromName(head.CRS.Properties.Name)
	}
	crs, err := resolveCRS(src, declared, gis.WGS84)
	if err != nil {
		return nil, err
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, model.NewSourceFormatError(src.label(), "", "invalid GeoJSON feature collection", err)
	}

	c := &collection{crs: crs, features: make([]feature, 0, len(fc.Features))}
	for i, f := range fc.Features {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "loader: geojson cancelled")
		}
		g, err := gis.FromGeomT(f.Geometry)
		if err != nil {
			return nil, model.NewSourceFormatError(src.label(), strconv.Itoa(i), "unsupported geometry", err)
		}
		attrs := make(map[string]string, len(f.Properties))
		for k, v := range f.Properties {
			attrs[strings.ToLower(k)] = propertyString(v)
		}
		if f.ID != "" {
			if _, ok := attrs["id"]; !ok {
				attrs["id"] = f.ID
			}
		}
		c.features = append(c.features, feature{index: i, geometry: g, attrs: attrs})
	}
	return c, nil
}

func propertyString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
