package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/flowsync/internal/document"
	"github.com/vk/flowsync/internal/orchestrator"
	"github.com/vk/flowsync/internal/testutil"
)

func serve(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestService_HealthAndMetrics(t *testing.T) {
	a, _ := newTestApp(t, nil)
	h := a.Handler()

	rec := serve(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK\n", rec.Body.String())

	// Metrics are registered once a run has been recorded.
	serve(t, h, http.MethodGet, "/v1/config", "")
	rec = serve(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "flowsync_orchestrator_runs_total")
}

func TestService_GetConfig(t *testing.T) {
	a, _ := newTestApp(t, nil)
	h := a.Handler()

	rec := serve(t, h, http.MethodGet, "/v1/config?only=blocks,blocks_Heater_data", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Flowsync-Report"))

	doc, err := document.Parse(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []string{"blocks", "blocks_Heater_data"}, doc.Keys())

	rec = serve(t, h, http.MethodGet, "/v1/config?only=nope", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown section 'nope'")
}

func TestService_PostConfig(t *testing.T) {
	a, _ := newTestApp(t, nil)
	h := a.Handler()

	testCases := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{
			name:       "all sections ok",
			body:       `{"blocks_Heater_data": {"H1": {"SPEC_DATA": {"TEMP_VALUE": 380, "TEMP_UNITS": "K"}}}}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "instance failure",
			body:       `{"blocks_Heater_data": {"H1": {"SPEC_DATA": {"TEMP_VALUE": 380, "TEMP_UNITS": "NOPE"}}}}`,
			wantStatus: http.StatusMultiStatus,
		},
		{
			name:       "not a document",
			body:       `[1, 2`,
			wantStatus: http.StatusBadRequest,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(t, h, http.MethodPost, "/v1/config", tc.body)
			require.Equal(t, tc.wantStatus, rec.Code, rec.Body.String())
			if tc.wantStatus == http.StatusBadRequest {
				return
			}

			var report orchestrator.Report
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
			assert.Equal(t, "write", report.Op)

			got := serve(t, h, http.MethodGet, "/v1/reports/"+report.ID, "")
			require.Equal(t, http.StatusOK, got.Code)
			assert.Contains(t, got.Body.String(), report.ID)
		})
	}

	rec := serve(t, h, http.MethodGet, "/v1/reports/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, h, http.MethodGet, "/v1/reports?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 2)

	rec = serve(t, h, http.MethodGet, "/v1/reports?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestService_ConnectionLostIs503(t *testing.T) {
	a, _ := newTestApp(t, nil)
	faulty := testutil.NewFaultyStore(a.store)
	faulty.LoseAfter = 1
	a.store = faulty

	rec := serve(t, a.Handler(), http.MethodGet, "/v1/config", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection")
}

func TestService_ReportsWithoutHistory(t *testing.T) {
	a, _ := newTestApp(t, func(cfg *Config) { cfg.HistoryPath = "" })
	rec := serve(t, a.Handler(), http.MethodGet, "/v1/reports/x", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestService_Schema(t *testing.T) {
	a, _ := newTestApp(t, nil)
	rec := serve(t, a.Handler(), http.MethodGet, "/v1/schema", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []struct {
		Name    string `json:"name"`
		Results bool   `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 38)
	assert.Equal(t, "metadata", entries[0].Name)
}
