package loader

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/sells-group/railway-atlas/internal/gis"
	"github.com/sells-group/railway-atlas/internal/model"
)

// wktAliases maps well-known .prj names to EPSG codes so common files do not
// depend on WKT parsing.
var wktAliases = []struct {
	match []string
	epsg  string
}{
	{[]string{"ETRS", "LAEA"}, "EPSG:3035"},
	{[]string{"ETRS", "LAMBERT_AZIMUTHAL"}, "EPSG:3035"},
	{[]string{"WGS_1984_UTM_ZONE_32N"}, "EPSG:32632"},
	{[]string{"WGS 84 / UTM ZONE 32N"}, "EPSG:32632"},
	{[]string{"WGS_1984_UTM_ZONE_33N"}, "EPSG:32633"},
	{[]string{"WGS 84 / UTM ZONE 33N"}, "EPSG:32633"},
	{[]string{"MONTE_MARIO", "ZONE_1"}, "EPSG:3003"},
	{[]string{"MONTE_MARIO", "ZONE_2"}, "EPSG:3004"},
	{[]string{"WEB_MERCATOR"}, "EPSG:3857"},
	{[]string{"PSEUDO-MERCATOR"}, "EPSG:3857"},
}

// aliasWKT returns the EPSG alias of a WKT definition when it is one of the
// systems the pipeline knows by name.
func aliasWKT(wkt string) string {
	up := strings.ToUpper(wkt)
	if !strings.Contains(up, "PROJCS") {
		if strings.Contains(up, "WGS_1984") || strings.Contains(up, "WGS 84") || strings.Contains(up, "WGS84") {
			return gis.WGS84
		}
		return ""
	}
	for _, a := range wktAliases {
		ok := true
		for _, m := range a.match {
			if !strings.Contains(up, m) {
				ok = false
				break
			}
		}
		if ok {
			return a.epsg
		}
	}
	return ""
}

// crsFromName normalizes GeoJSON "crs" member names such as
// "urn:ogc:def:crs:EPSG::3035" or "urn:ogc:def:crs:OGC:1.3:CRS84".
func crsFromName(name string) string {
	name = strings.TrimSpace(name)
	up := strings.ToUpper(name)
	switch {
	case up == "":
		return ""
	case strings.HasSuffix(up, "CRS84"):
		return gis.WGS84
	case strings.HasPrefix(up, "URN:OGC:DEF:CRS:EPSG:"):
		code := up[strings.LastIndex(up, ":")+1:]
		return "EPSG:" + code
	}
	return gis.NormalizeCRS(name)
}

// prjCRS reads the .prj sidecar of path. ok is false when there is none.
func prjCRS(path string) (crs string, ok bool, err error) {
	prj := strings.TrimSuffix(path, filepath.Ext(path)) + ".prj"
	data, err := os.ReadFile(prj)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrapf(err, "loader: read %s", prj)
	}
	wkt := strings.TrimSpace(string(data))
	if wkt == "" {
		return "", false, nil
	}
	if alias := aliasWKT(wkt); alias != "" {
		return alias, true, nil
	}
	return wkt, true, nil
}

// resolveCRS picks the declared CRS, else the source's assumed CRS, else the
// fallback, and verifies it can be parsed.
func resolveCRS(src Source, declared, fallback string) (string, error) {
	crs := declared
	if crs == "" {
		crs = gis.NormalizeCRS(src.AssumeCRS)
	}
	if crs == "" {
		crs = fallback
	}
	if crs == "" {
		return "", model.NewCRSResolutionError(src.label(), "", eris.New("no .prj file and no assume_crs configured"))
	}
	if _, err := gis.ParseCRS(crs); err != nil {
		return "", model.NewCRSResolutionError(src.label(), crs, err)
	}
	return crs, nil
}

// projector builds the reprojection from a source CRS into target.
func projector(src Source, from, target string) (*gis.Projector, error) {
	p, err := gis.NewProjector(from, target)
	if err != nil {
		return nil, model.NewCRSResolutionError(src.label(), from+" -> "+target, err)
	}
	return p, nil
}
