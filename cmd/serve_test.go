package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sells-group/railway-atlas/internal/output"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRouter_Health(t *testing.T) {
	h := buildRouter(t.TempDir())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestBuildRouter_Manifest(t *testing.T) {
	dir := t.TempDir()
	h := buildRouter(dir)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/manifest", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	m := output.NewManifest(map[string]string{"railways": "rail.shp"}, output.Settings{MetricCRS: "EPSG:32632"})
	require.NoError(t, output.WriteManifest(dir, m))

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/manifest", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var got output.Manifest
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, m.RunID, got.RunID)
	assert.Equal(t, "rail.shp", got.Inputs["railways"])
}

func TestBuildRouter_Files(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, output.NetworkDir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, output.NetworkFile(1860)), []byte(`{"type":"FeatureCollection","features":[]}`), 0o644))
	h := buildRouter(dir)

	req := httptest.NewRequest(http.MethodGet, "/files/network/1860.geojson", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/geo+json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.HasPrefix(rr.Body.String(), `{"type":"FeatureCollection"`))

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/files/missing.geojson", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestBuildRouter_ReadOnly(t *testing.T) {
	h := buildRouter(t.TempDir())

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(method, "/files/lengths.json", strings.NewReader("{}")))
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code, method)
	}
}
