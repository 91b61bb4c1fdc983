package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiResult struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Kind    string          `json:"kind"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) (*WebServer, http.Handler) {
	t.Helper()
	ws := NewWebServer(newTestDashboard(t, newCountingSimulator()), "127.0.0.1:0")
	ws.exportDir = t.TempDir()
	return ws, ws.Handler()
}

func call(t *testing.T, h http.Handler, method, path string, body interface{}) (int, apiResult) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var result apiResult
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	}
	return rec.Code, result
}

func TestWebServer_Index(t *testing.T) {
	_, h := newTestServer(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<!DOCTYPE html>")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebServer_Levers(t *testing.T) {
	_, h := newTestServer(t)
	code, result := call(t, h, http.MethodGet, "/api/levers", nil)
	require.Equal(t, http.StatusOK, code)
	var levers []LeverDefinition
	require.NoError(t, json.Unmarshal(result.Data, &levers))
	assert.Len(t, levers, 9)
	assert.Equal(t, "sobriety", levers[0].ID)
}

func TestWebServer_GroupsAndSelection(t *testing.T) {
	ws, h := newTestServer(t)

	code, result := call(t, h, http.MethodPost, "/api/groups", APIGroupsRequest{Count: 4})
	require.Equal(t, http.StatusOK, code)
	var groups []APISelectRequest
	require.NoError(t, json.Unmarshal(result.Data, &groups))
	assert.Len(t, groups, 4)

	code, result = call(t, h, http.MethodPost, "/api/groups", APIGroupsRequest{Count: 11})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation", result.Kind)

	code, _ = call(t, h, http.MethodPost, "/api/groups/select", APISelectRequest{Group: 2, Levers: []string{"technology", "sobriety"}})
	require.Equal(t, http.StatusOK, code)
	levers, err := ws.dashboard.Selection(2)
	require.NoError(t, err)
	assert.Equal(t, []string{"sobriety", "technology"}, levers)

	code, result = call(t, h, http.MethodPost, "/api/groups/select", APISelectRequest{Group: 2, Levers: []string{"zeppelin"}})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_lever", result.Kind)
	assert.False(t, result.Success)

	code, _ = call(t, h, http.MethodGet, "/api/groups/select", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, code)
}

func TestWebServer_Dashboard(t *testing.T) {
	_, h := newTestServer(t)
	code, result := call(t, h, http.MethodGet, "/api/dashboard", nil)
	require.Equal(t, http.StatusOK, code)
	var view DashboardView
	require.NoError(t, json.Unmarshal(result.Data, &view))
	assert.Len(t, view.Groups, 3)
	assert.NotEmpty(t, view.Reference.Prospective.AllAspects.Series.Values)
}

func TestWebServer_Compute(t *testing.T) {
	_, h := newTestServer(t)
	code, result := call(t, h, http.MethodPost, "/api/compute", APIComputeRequest{Levers: []string{"new_energies", "sobriety"}})
	require.Equal(t, http.StatusOK, code)
	var resp APIComputeResponse
	require.NoError(t, json.Unmarshal(result.Data, &resp))
	assert.Equal(t, []string{"new_energies", "sobriety"}, resp.Levers)
	assert.Greater(t, resp.Metrics.Remaining2050, 0.0)
	assert.Len(t, resp.Bars.Bars, 4)

	code, result = call(t, h, http.MethodPost, "/api/compute", APIComputeRequest{Levers: []string{"sobriety", "ufo"}})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, result.Error, "ufo")
}

func TestWebServer_Evaluate(t *testing.T) {
	_, h := newTestServer(t)

	code, result := call(t, h, http.MethodPost, "/api/evaluate", APIEvaluateRequest{
		Expression: "float_outputs('aviation_carbon_budget') / float_outputs('gross_carbon_budget_2050') * 100",
	})
	require.Equal(t, http.StatusOK, code)
	var scalar float64
	require.NoError(t, json.Unmarshal(result.Data, &scalar))
	assert.InDelta(t, 2.6, scalar, 1e-9)

	code, result = call(t, h, http.MethodPost, "/api/evaluate", APIEvaluateRequest{
		Levers:     []string{"sobriety"},
		Expression: "max(vector_outputs('co2_emissions_including_energy') - 2000, 0)",
		YearRange:  Named(ProspectiveYears),
	})
	require.Equal(t, http.StatusOK, code)
	var series Series
	require.NoError(t, json.Unmarshal(result.Data, &series))
	assert.Len(t, series.Values, 32)

	tests := []struct {
		name string
		req  interface{}
		kind string
	}{
		{"unknown variable", APIEvaluateRequest{Expression: "vector_outputs('nope')", YearRange: Named(FullYears)}, "unknown variable"},
		{"bad year range", map[string]interface{}{"expression": "vector_outputs('rpk')", "year_range": "decade"}, "invalid year range"},
		{"no year range", APIEvaluateRequest{Expression: "vector_outputs('rpk')"}, "invalid year range"},
		{"forbidden name", APIEvaluateRequest{Expression: "open('/etc/passwd')"}, "malformed expression"},
		{"arity", APIEvaluateRequest{Tokens: []FormulaToken{TokenRef("rpk", TableVectorOutputs, FullYears), TokenOp("+")}}, "operator arity mismatch"},
		{"division by zero", APIEvaluateRequest{Expression: "vector_outputs('rpk') / 0", YearRange: Named(FullYears)}, "division by zero"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, result := call(t, h, http.MethodPost, "/api/evaluate", tt.req)
			assert.Equal(t, http.StatusUnprocessableEntity, code)
			assert.Equal(t, tt.kind, result.Kind)
		})
	}
}

func TestWebServer_EvaluateSingleYear(t *testing.T) {
	_, h := newTestServer(t)

	code, result := call(t, h, http.MethodPost, "/api/evaluate", map[string]interface{}{
		"expression": "vector_outputs('co2_emissions_2019technology_baseline3')",
		"year_range": 2019,
	})
	require.Equal(t, http.StatusOK, code, result.Error)
	var scalar float64
	require.NoError(t, json.Unmarshal(result.Data, &scalar))
	assert.InDelta(t, 1030, scalar, 1e-6)

	code, result = call(t, h, http.MethodPost, "/api/evaluate", map[string]interface{}{
		"expression": "vector_outputs('rpk')",
		"year_range": 1990,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "invalid year range", result.Kind)
}

func TestWebServer_SimulationFailure(t *testing.T) {
	sim := newCountingSimulator()
	sim.fail = true
	ws := NewWebServer(newTestDashboard(t, sim), "127.0.0.1:0")
	code, result := call(t, ws.Handler(), http.MethodPost, "/api/compute", APIComputeRequest{})
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "simulation_failure", result.Kind)
}

func TestWebServer_CacheStats(t *testing.T) {
	_, h := newTestServer(t)
	call(t, h, http.MethodPost, "/api/compute", APIComputeRequest{Levers: []string{"sobriety"}})
	call(t, h, http.MethodPost, "/api/compute", APIComputeRequest{Levers: []string{"sobriety"}})

	code, result := call(t, h, http.MethodGet, "/api/cache", nil)
	require.Equal(t, http.StatusOK, code)
	var stats map[string]CacheStats
	require.NoError(t, json.Unmarshal(result.Data, &stats))
	assert.EqualValues(t, 1, stats["reference"].Hits)
	assert.EqualValues(t, 1, stats["reference"].Misses)
	assert.Contains(t, stats, "group-3")
}

func TestWebServer_Exports(t *testing.T) {
	_, h := newTestServer(t)

	code, result := call(t, h, http.MethodPost, "/api/export-csv", APIExportRequest{Levers: []string{"sobriety"}, Filename: "../escape.csv"})
	require.Equal(t, http.StatusOK, code)
	var export ExportResponse
	require.NoError(t, json.Unmarshal(result.Data, &export))
	assert.True(t, strings.HasSuffix(export.FilePath, "escape.csv"))
	data, err := os.ReadFile(export.FilePath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "year,vector_outputs."))

	code, result = call(t, h, http.MethodPost, "/api/export-pdf", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(result.Data, &export))
	_, err = os.Stat(export.FilePath)
	assert.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/download-pdf", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))
}

func TestWebServer_Metrics(t *testing.T) {
	_, h := newTestServer(t)
	call(t, h, http.MethodGet, "/api/levers", nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
