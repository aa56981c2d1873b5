package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/flowsync/internal/document"
	"github.com/vk/flowsync/internal/hcl"
	"github.com/vk/flowsync/internal/orchestrator"
	"github.com/vk/flowsync/internal/testutil"
)

// newTestApp builds an open app over the built-in schemas and an in-memory
// store seeded with the Flowsheet fixture.
func newTestApp(t *testing.T, mutate func(cfg *Config)) (*App, *testutil.SafeBuffer) {
	t.Helper()
	return newTestAppWithFixture(t, testutil.Flowsheet, mutate)
}

// newTestAppWithFixture is newTestApp over any fixture. An empty fixture
// leaves the store empty.
func newTestAppWithFixture(t *testing.T, fixture string, mutate func(cfg *Config)) (*App, *testutil.SafeBuffer) {
	t.Helper()
	dir := t.TempDir()

	cfg, err := LoadConfig()
	require.NoError(t, err)
	cfg.LogLevel = "debug"
	if fixture != "" {
		cfg.FixturePath = filepath.Join(dir, "fixture.yaml")
		require.NoError(t, os.WriteFile(cfg.FixturePath, []byte(fixture), 0o600))
	}
	cfg.HistoryPath = filepath.Join(dir, "history.db")
	if mutate != nil {
		mutate(&cfg)
	}
	valid, err := NewConfig(cfg)
	require.NoError(t, err)

	logs := &testutil.SafeBuffer{}
	t.Cleanup(func() {
		if testutil.LogsEnabled() {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logs.String())
		}
	})

	a, err := NewApp(context.Background(), logs, valid, hcl.NewLoader())
	require.NoError(t, err)
	require.NoError(t, a.Open(context.Background()))
	t.Cleanup(func() { _ = a.Close() })
	return a, logs
}

func extractJSON(t *testing.T, a *App, opts ...orchestrator.RunOption) []byte {
	t.Helper()
	doc, report, err := a.Extract(context.Background(), opts...)
	require.NoError(t, err)
	require.True(t, report.OK(), "failed sections: %v", report.Failed())
	data, err := doc.MarshalJSON()
	require.NoError(t, err)
	return data
}

func TestNewApp_LoadsBuiltinSchemas(t *testing.T) {
	a, _ := newTestApp(t, nil)

	names := a.Registry().Names()
	assert.Len(t, names, 38)
	assert.Contains(t, names, "blocks_RadFrac_data")
	assert.Less(t, indexOf(names, "components"), indexOf(names, "stream_data"))
	assert.Less(t, indexOf(names, "blocks"), indexOf(names, "blocks_Heater_data"))
	assert.Positive(t, a.Table().Len())
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

func TestNewApp_SchemaErrors(t *testing.T) {
	testCases := []struct {
		name    string
		src     string
		wantErr string
	}{
		{
			name:    "syntax error",
			src:     `section "broken" {`,
			wantErr: "failed to parse",
		},
		{
			name: "unknown dependency",
			src: `
section "orphan" {
  depends_on = ["nowhere"]
  field "x" {}
}`,
			wantErr: "registry validation failed",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, "override.hcl"), []byte(tc.src), 0o600))
			cfg, err := NewConfig(Config{LogFormat: "text", LogLevel: "info", Store: StoreMemory, BridgeTimeout: 1, ListenAddr: ":0", SchemaPath: dir})
			require.NoError(t, err)

			_, err = NewApp(context.Background(), &testutil.SafeBuffer{}, cfg, hcl.NewLoader())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestApp_RequiresOpenStore(t *testing.T) {
	cfg, err := NewConfig(Config{LogFormat: "text", LogLevel: "info", Store: StoreMemory, BridgeTimeout: 1, ListenAddr: ":0"})
	require.NoError(t, err)
	a, err := NewApp(context.Background(), &testutil.SafeBuffer{}, cfg, hcl.NewLoader())
	require.NoError(t, err)

	_, _, err = a.Extract(context.Background())
	require.ErrorContains(t, err, "store is not open")
}

func TestApp_ExtractThenWriteRoundTrip(t *testing.T) {
	a, _ := newTestApp(t, nil)

	data := extractJSON(t, a)
	temp, ok := document.Query(data, "blocks_Heater_data.H1.SPEC_DATA.TEMP_VALUE")
	require.True(t, ok)
	assert.Equal(t, float64(350), temp)
	unit, _ := document.Query(data, "blocks_Heater_data.H1.SPEC_DATA.TEMP_UNITS")
	assert.Equal(t, "C", unit)
	cid, _ := document.Query(data, "components.1.cid")
	assert.Equal(t, "ETHANOL", cid)

	patched, err := document.Patch(data, "blocks_Heater_data.H1.SPEC_DATA.TEMP_VALUE", "400")
	require.NoError(t, err)
	doc, err := document.Parse(patched)
	require.NoError(t, err)

	report, err := a.Write(context.Background(), doc)
	require.NoError(t, err)
	assert.True(t, report.OK(), "failed sections: %v", report.Failed())

	again := extractJSON(t, a)
	temp, _ = document.Query(again, "blocks_Heater_data.H1.SPEC_DATA.TEMP_VALUE")
	assert.Equal(t, float64(400), temp)

	list, err := a.Reports(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "extract", list[0].Op)
	assert.Equal(t, "write", list[1].Op)
}

func TestApp_RetryRunsOnlyFailedSections(t *testing.T) {
	a, _ := newTestApp(t, nil)
	ctx := context.Background()

	bad, err := document.Parse([]byte(`{"blocks_Heater_data": {"H1": {"SPEC_DATA": {"TEMP_VALUE": 400, "TEMP_UNITS": "NOPE"}}}}`))
	require.NoError(t, err)
	first, err := a.Write(ctx, bad)
	require.NoError(t, err)
	require.Equal(t, []string{"blocks_Heater_data"}, first.Failed())

	good, err := document.Parse([]byte(`{"blocks_Heater_data": {"H1": {"SPEC_DATA": {"TEMP_VALUE": 400, "TEMP_UNITS": "K"}}}}`))
	require.NoError(t, err)
	second, err := a.Retry(ctx, first.ID, good)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.True(t, second.OK())
	assert.Equal(t, orchestrator.StatusOK, second.Section("blocks_Heater_data").Status)
	assert.Equal(t, orchestrator.StatusSkipped, second.Section("components").Status)

	third, err := a.Retry(ctx, second.ID, good)
	require.NoError(t, err)
	assert.Nil(t, third, "a clean run leaves nothing to retry")

	_, err = a.Retry(ctx, "missing", good)
	require.Error(t, err)
}

func TestApp_RetrySectionsAfterAbort(t *testing.T) {
	a, _ := newTestApp(t, nil)
	report := &orchestrator.Report{
		Op:       "write",
		RunError: "connection lost",
		Sections: []*orchestrator.SectionReport{
			{Name: "metadata", Status: orchestrator.StatusSkipped},
			{Name: "setup", Status: orchestrator.StatusOK},
			{Name: "components", Status: orchestrator.StatusFailed},
		},
	}
	sections := retrySections(report, a.Registry())
	assert.Equal(t, "components", sections[0])
	assert.Contains(t, sections, "blocks")
	assert.NotContains(t, sections, "setup")
	assert.NotContains(t, sections, "stream_connections", "read only sections are never written")
}

func TestApp_RetryWithoutHistory(t *testing.T) {
	a, _ := newTestApp(t, func(cfg *Config) { cfg.HistoryPath = "" })
	_, err := a.Retry(context.Background(), "any", document.New())
	require.ErrorIs(t, err, ErrNoHistory)
}

func TestApp_CaptureThenExtractFromSnapshot(t *testing.T) {
	live, _ := newTestApp(t, nil)
	snapDir := filepath.Join(t.TempDir(), "snap")

	count, err := live.Capture(context.Background(), snapDir, "")
	require.NoError(t, err)
	assert.Positive(t, count)
	want := extractJSON(t, live)

	offline, _ := newTestApp(t, func(cfg *Config) {
		cfg.Store = StoreSnapshot
		cfg.SnapshotPath = snapDir
		cfg.FixturePath = ""
	})
	got := extractJSON(t, offline)
	assert.JSONEq(t, string(want), string(got))
}
