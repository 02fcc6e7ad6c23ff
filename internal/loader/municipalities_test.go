package loader

import (
	"context"
	"errors"
	"testing"

	"github.com/sells-group/railway-atlas/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var municipalFields = MunicipalFields{ID: "id", Name: "name", Province: "prov_name", Region: "reg_name", Capital: "capital"}

func TestFoldName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Forlì", "forli"},
		{"L’Aquila", "l'aquila"},
		{"  Reggio   nell'Emilia ", "reggio nell'emilia"},
		{"Trentino-Alto Adige/Südtirol", "trentino-alto adige/sudtirol"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FoldName(tt.in))
		})
	}
}

func TestLoadCapitals(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "capitals.yaml", `
region:
  Aosta: "Valle d'Aosta/Vallée d'Aoste"
province:
  Monza: Monza e della Brianza
`)
	c, err := LoadCapitals(path, map[string]string{"Aosta": "Valle d'Aosta", "Torino": "Piemonte"})
	require.NoError(t, err)

	r, ok := c.regionFor("AOSTA")
	require.True(t, ok)
	assert.Equal(t, "Valle d'Aosta/Vallée d'Aoste", r)
	r, ok = c.regionFor("torino")
	require.True(t, ok)
	assert.Equal(t, "Piemonte", r)
	p, ok := c.provinceFor("Monza")
	require.True(t, ok)
	assert.Equal(t, "Monza e della Brianza", p)

	_, err = LoadCapitals(dir+"/missing.yaml", nil)
	assert.Error(t, err)
}

func TestLoadMunicipalities_CSV(t *testing.T) {
	tree := loadTestTree(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "comuni.csv", `id,name,province,region,x,y,capital
001272,Torino,Torino,Piemonte,2500,5000,
004078,Cuneo,,,7500,5000,
015146,Milano,Milano,Lombardia,15000,5000,
099999,Nowhere,,,50000,50000,
001001,Agliè,Torino,Piemonte,1000,1000,
`)

	ms, err := LoadMunicipalities(context.Background(), Source{Path: path, AssumeCRS: metric},
		municipalFields, Capitals{Region: map[string]string{"Torino": "Piemonte"}}, tree, metric)
	require.NoError(t, err)
	require.Len(t, ms, 5)

	byName := map[string]model.Municipality{}
	for _, m := range ms {
		byName[m.Name] = m
	}

	to := byName["Torino"]
	assert.Equal(t, "prov:Torino", to.Province)
	assert.Equal(t, "reg:Piemonte", to.Region)
	assert.Equal(t, []string{"prov:Torino", "reg:Piemonte"}, to.CapitalOf)

	// Located by point-in-polygon; named after its province.
	cn := byName["Cuneo"]
	assert.Equal(t, "prov:Cuneo", cn.Province)
	assert.Equal(t, "reg:Piemonte", cn.Region)
	assert.Equal(t, []string{"prov:Cuneo"}, cn.CapitalOf)

	// Milano is not in the regional table passed here.
	assert.Equal(t, []string{"prov:Milano"}, byName["Milano"].CapitalOf)

	nw := byName["Nowhere"]
	assert.Empty(t, nw.Province)
	assert.Empty(t, nw.Region)
	assert.Empty(t, nw.CapitalOf)

	assert.Empty(t, byName["Agliè"].CapitalOf)
	assert.Equal(t, "001001", ms[0].ID)
}

func TestLoadMunicipalities_GeoJSONCentroids(t *testing.T) {
	tree := loadTestTree(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "comuni.geojson", `{"type":"FeatureCollection",
 "crs": {"type": "name", "properties": {"name": "urn:ogc:def:crs:EPSG::32632"}},
 "features":[
  {"type":"Feature","properties":{"id":"1","name":"Milano","prov_name":"Milano","reg_name":"Lombardia","capital":"regione"},
   "geometry":{"type":"Polygon","coordinates":[[[14000,4000],[16000,4000],[16000,6000],[14000,6000],[14000,4000]]]}},
  {"type":"Feature","properties":{"id":"2","name":"Monza"},
   "geometry":{"type":"Point","coordinates":[17000,8000]}}
 ]}`)

	ms, err := LoadMunicipalities(context.Background(), Source{Path: path}, municipalFields, Capitals{}, tree, metric)
	require.NoError(t, err)
	require.Len(t, ms, 2)

	assert.InDelta(t, 15000, ms[0].Centroid.X, 1e-9)
	assert.InDelta(t, 5000, ms[0].Centroid.Y, 1e-9)
	assert.Equal(t, []string{"prov:Milano", "reg:Lombardia"}, ms[0].CapitalOf)

	assert.Equal(t, "prov:Milano", ms[1].Province)
	assert.Empty(t, ms[1].CapitalOf)
}

func TestLoadMunicipalities_DuplicateID(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "comuni.csv", "id,name,x,y\n1,A,0,0\n1,B,1,1\n")

	_, err := LoadMunicipalities(context.Background(), Source{Path: path, AssumeCRS: metric},
		municipalFields, Capitals{}, nil, metric)
	var sfe *model.SourceFormatError
	require.True(t, errors.As(err, &sfe))
	assert.Equal(t, "duplicate municipality id", sfe.Reason)
}

func TestLoadMunicipalities_CapitalNamesakeInOtherRegion(t *testing.T) {
	tree := loadTestTree(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "comuni.csv", `id,name,province,region,x,y,capital
000001,Torino,Milano,Lombardia,15000,2000,
001272,Torino,Torino,Piemonte,2500,5000,
`)

	ms, err := LoadMunicipalities(context.Background(), Source{Path: path, AssumeCRS: metric},
		municipalFields, Capitals{Region: map[string]string{"Torino": "Piemonte"}}, tree, metric)
	require.NoError(t, err)
	require.Len(t, ms, 2)

	assert.Equal(t, "000001", ms[0].ID)
	assert.Equal(t, "reg:Lombardia", ms[0].Region)
	assert.Empty(t, ms[0].CapitalOf)
	assert.Equal(t, []string{"prov:Torino", "reg:Piemonte"}, ms[1].CapitalOf)
}

func TestDedupeCapitals(t *testing.T) {
	ms := []model.Municipality{
		{ID: "1", CapitalOf: []string{"prov:A"}},
		{ID: "2", CapitalOf: []string{"prov:A", "reg:R"}},
	}
	dedupeCapitals(ms, zap.NewNop())
	assert.Equal(t, []string{"prov:A"}, ms[0].CapitalOf)
	assert.Equal(t, []string{"reg:R"}, ms[1].CapitalOf)
}
