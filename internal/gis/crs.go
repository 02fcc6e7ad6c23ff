// Package gis holds the planar geometry kernel shared by the pipeline stages:
// coordinate reference systems, point-in-polygon, line/polygon overlay,
// nearest-distance search and conversions between geometry encodings.
package gis

import (
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
	"github.com/rotisserie/eris"
)

// Well-known CRS codes used by the pipeline.
const (
	WGS84  = "EPSG:4326"
	UTM32N = "EPSG:32632"
)

// epsgDefs maps EPSG aliases to PROJ.4 definitions. Only projections the
// proj package can transform are listed; EPSG:3035 (laea) is not among them.
var epsgDefs = map[string]string{
	"EPSG:4326":  "+proj=longlat +datum=WGS84 +no_defs",
	"EPSG:3857":  "+proj=merc +a=6378137 +b=6378137 +lat_ts=0 +lon_0=0 +x_0=0 +y_0=0 +k=1 +units=m +no_defs",
	"EPSG:32632": "+proj=utm +zone=32 +datum=WGS84 +units=m +no_defs",
	"EPSG:32633": "+proj=utm +zone=33 +datum=WGS84 +units=m +no_defs",
	"EPSG:23032": "+proj=utm +zone=32 +ellps=intl +towgs84=-87,-98,-121,0,0,0,0 +units=m +no_defs",
	"EPSG:3003":  "+proj=tmerc +lat_0=0 +lon_0=9 +k=0.9996 +x_0=1500000 +y_0=0 +ellps=intl +towgs84=-104.1,-49.1,-9.9,0.971,-2.917,0.714,-11.68 +units=m +no_defs",
	"EPSG:3004":  "+proj=tmerc +lat_0=0 +lon_0=15 +k=0.9996 +x_0=2520000 +y_0=0 +ellps=intl +towgs84=-104.1,-49.1,-9.9,0.971,-2.917,0.714,-11.68 +units=m +no_defs",
}

// NormalizeCRS upper-cases EPSG aliases ("epsg:32632" -> "EPSG:32632") and trims
// whitespace. Other definitions are returned trimmed.
func NormalizeCRS(def string) string {
	def = strings.TrimSpace(def)
	if strings.HasPrefix(strings.ToUpper(def), "EPSG:") {
		return strings.ToUpper(def)
	}
	return def
}

// SRID returns the numeric code of an EPSG alias, 0 for other definitions.
func SRID(def string) int {
	def = NormalizeCRS(def)
	if !strings.HasPrefix(def, "EPSG:") {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimPrefix(def, "EPSG:"))
	if err != nil {
		return 0
	}
	return n
}

// ParseCRS resolves an EPSG alias, a PROJ.4 string or a WKT definition.
func ParseCRS(def string) (*proj.SR, error) {
	def = NormalizeCRS(def)
	if def == "" {
		return nil, eris.New("gis: empty CRS definition")
	}
	if p4, ok := epsgDefs[def]; ok {
		def = p4
	} else if strings.HasPrefix(def, "EPSG:") {
		return nil, eris.Errorf("gis: unsupported CRS %s", def)
	}
	sr, err := proj.Parse(def)
	if err != nil {
		return nil, eris.Wrapf(err, "gis: parse CRS %q", abbreviate(def))
	}
	return sr, nil
}

// Projector reprojects geometries between two coordinate systems.
type Projector struct {
	From, To string
	identity bool
	trans    proj.Transformer
}

// NewProjector builds a projector from one CRS definition to another.
// Equal definitions yield an identity projector.
func NewProjector(from, to string) (*Projector, error) {
	from, to = NormalizeCRS(from), NormalizeCRS(to)
	p := &Projector{From: from, To: to}
	if from == to {
		p.identity = true
		return p, nil
	}
	src, err := ParseCRS(from)
	if err != nil {
		return nil, err
	}
	dst, err := ParseCRS(to)
	if err != nil {
		return nil, err
	}
	t, err := src.NewTransform(dst)
	if err != nil {
		return nil, eris.Wrapf(err, "gis: transform %s -> %s", abbreviate(from), abbreviate(to))
	}
	p.trans = t
	return p, nil
}

// Identity reports whether the projector leaves coordinates untouched.
func (p *Projector) Identity() bool { return p.identity }

// Point reprojects a single coordinate.
func (p *Projector) Point(pt geom.Point) (geom.Point, error) {
	if p.identity {
		return pt, nil
	}
	x, y, err := p.trans(pt.X, pt.Y)
	if err != nil {
		return geom.Point{}, eris.Wrap(err, "gis: transform point")
	}
	return geom.Point{X: x, Y: y}, nil
}

// MultiPolygon reprojects a multipolygon.
func (p *Projector) MultiPolygon(mp geom.MultiPolygon) (geom.MultiPolygon, error) {
	if p.identity {
		return mp, nil
	}
	out := make(geom.MultiPolygon, 0, len(mp))
	for _, poly := range mp {
		pp, err := p.Polygon(poly)
		if err != nil {
			return nil, err
		}
		out = append(out, pp)
	}
	return out, nil
}

// Polygon reprojects a polygon ring by ring.
func (p *Projector) Polygon(poly geom.Polygon) (geom.Polygon, error) {
	if p.identity {
		return poly, nil
	}
	out := make(geom.Polygon, 0, len(poly))
	for _, ring := range poly {
		r, err := p.path(ring)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// MultiLineString reprojects a multilinestring.
func (p *Projector) MultiLineString(ml geom.MultiLineString) (geom.MultiLineString, error) {
	if p.identity {
		return ml, nil
	}
	out := make(geom.MultiLineString, 0, len(ml))
	for _, ls := range ml {
		r, err := p.path(ls)
		if err != nil {
			return nil, err
		}
		out = append(out, geom.LineString(r))
	}
	return out, nil
}

func (p *Projector) path(pts []geom.Point) ([]geom.Point, error) {
	out := make([]geom.Point, len(pts))
	for i, pt := range pts {
		q, err := p.Point(pt)
		if err != nil {
			return nil, err
		}
		out[i] = q
	}
	return out, nil
}

func abbreviate(s string) string {
	if len(s) > 60 {
		return s[:57] + "..."
	}
	return s
}
