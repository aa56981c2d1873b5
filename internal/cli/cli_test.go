package cli_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/flowsync/internal/app"
	"github.com/vk/flowsync/internal/cli"
	"github.com/vk/flowsync/internal/testutil/apptest"
)

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var exitErr *cli.ExitError
	require.True(t, errors.As(err, &exitErr), "expected an ExitError, got %v", err)
	return exitErr.Code
}

func TestParse(t *testing.T) {
	testCases := []struct {
		name       string
		args       []string
		expectExit bool
		expectCode int
		check      func(t *testing.T, inv *cli.Invocation, output string)
	}{
		{
			name:       "help flag triggers clean exit",
			args:       []string{"-h"},
			expectExit: true,
			check: func(t *testing.T, _ *cli.Invocation, output string) {
				assert.Contains(t, output, "Usage:")
			},
		},
		{
			name:       "no command prints usage",
			args:       []string{"--log-level", "warn"},
			expectExit: true,
			check: func(t *testing.T, _ *cli.Invocation, output string) {
				assert.Contains(t, output, "Commands:")
			},
		},
		{
			name: "extract with options",
			args: []string{"--store", "snapshot", "--snapshot", "/tmp/snap", "--log-format", "JSON", "extract", "-o", "out.yaml", "--format", "yaml", "--results", "--only", "blocks,streams"},
			check: func(t *testing.T, inv *cli.Invocation, _ string) {
				assert.Equal(t, "extract", inv.Command)
				assert.Equal(t, "out.yaml", inv.Output)
				assert.Equal(t, "yaml", inv.Format)
				assert.True(t, inv.Results)
				assert.Equal(t, []string{"blocks", "streams"}, inv.Only)
				assert.Equal(t, app.StoreSnapshot, inv.Config.Store)
				assert.Equal(t, "/tmp/snap", inv.Config.SnapshotPath)
				assert.Equal(t, "json", inv.Config.LogFormat)
			},
		},
		{
			name: "write takes flags before the document",
			args: []string{"write", "--run", "--only", "blocks_Heater_data", "doc.json"},
			check: func(t *testing.T, inv *cli.Invocation, _ string) {
				assert.True(t, inv.Run)
				assert.Equal(t, []string{"doc.json"}, inv.Args)
				assert.Equal(t, []string{"blocks_Heater_data"}, inv.Only)
			},
		},
		{
			name: "watch debounce",
			args: []string{"watch", "--debounce", "2s", "doc.json"},
			check: func(t *testing.T, inv *cli.Invocation, _ string) {
				assert.Equal(t, 2*time.Second, inv.Debounce)
			},
		},
		{
			name: "capture root defaults to Data",
			args: []string{"capture", "snap"},
			check: func(t *testing.T, inv *cli.Invocation, _ string) {
				assert.Equal(t, app.CaptureRoot, inv.Root)
			},
		},
		{name: "unknown command", args: []string{"frobnicate"}, expectCode: 2},
		{name: "missing document", args: []string{"write"}, expectCode: 2},
		{name: "too many arguments", args: []string{"extract", "extra"}, expectCode: 2},
		{name: "bad format", args: []string{"extract", "--format", "toml"}, expectCode: 2},
		{name: "bad doc subcommand", args: []string{"doc", "patch", "a.json"}, expectCode: 2},
		{name: "doc set needs a value", args: []string{"doc", "set", "a.json", "x"}, expectCode: 2},
		{name: "invalid store", args: []string{"--store", "postgres", "schema"}, expectCode: 2},
		{name: "bridge needs a url", args: []string{"--store", "bridge", "schema"}, expectCode: 2},
		{name: "unknown flag", args: []string{"--this-is-not-a-valid-flag"}, expectCode: 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			inv, exit, err := cli.Parse(tc.args, out)
			if tc.expectCode != 0 {
				require.Error(t, err)
				assert.Equal(t, tc.expectCode, exitCode(t, err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectExit, exit)
			if tc.check != nil {
				tc.check(t, inv, out.String())
			}
		})
	}
}

func TestParse_EnvironmentDefaults(t *testing.T) {
	t.Setenv("FLOWSYNC_STORE", "snapshot")
	t.Setenv("FLOWSYNC_SNAPSHOT_PATH", "/var/lib/flowsync")
	t.Setenv("FLOWSYNC_LISTEN_ADDR", ":9090")

	inv, _, err := cli.Parse([]string{"--listen", ":7070", "serve"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, app.StoreSnapshot, inv.Config.Store)
	assert.Equal(t, "/var/lib/flowsync", inv.Config.SnapshotPath)
	assert.Equal(t, ":7070", inv.Config.ListenAddr, "flags override the environment")
}

func TestExecute_SchemaAndUnits(t *testing.T) {
	env := apptest.NewEnv(t, nil)

	res := env.Run(t, "schema")
	require.NoError(t, res.Err)
	assert.Contains(t, res.Out, "SECTION")
	assert.Regexp(t, `blocks_RadFrac_data\s+blocks,streams,components\s+read-write`, res.Out)
	assert.Regexp(t, `stream_connections\s+streams\s+read-only`, res.Out)

	res = env.Run(t, "units")
	require.NoError(t, res.Err)
	assert.Regexp(t, `bar\s+PRESSURE\s+5`, res.Out)
}

func TestExecute_Extract(t *testing.T) {
	env := apptest.NewEnv(t, nil)

	res := env.Run(t, "extract", "--only", "blocks_Heater_data")
	require.NoError(t, res.Err, res.Logs)
	assert.JSONEq(t, `{"blocks_Heater_data": {"H1": {"SPEC_DATA": {
		"SPEC_OPT": "TP",
		"TEMP_VALUE": 350, "TEMP_UNITS": "C",
		"PRES_VALUE": 2, "PRES_UNITS": "bar"
	}}}}`, res.Out)

	out := env.Path("doc.yaml")
	res = env.Run(t, "extract", "-o", out)
	require.NoError(t, res.Err)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "blocks_Heater_data:\n")
}

func TestExecute_WriteThenRetry(t *testing.T) {
	env := apptest.NewEnv(t, map[string]string{
		"bad.json":  `{"blocks_Heater_data": {"H1": {"SPEC_DATA": {"TEMP_VALUE": 400, "TEMP_UNITS": "NOPE"}}}}`,
		"good.json": `{"blocks_Heater_data": {"H1": {"SPEC_DATA": {"TEMP_VALUE": 400, "TEMP_UNITS": "K"}}}}`,
	})

	res := env.Run(t, "write", env.Path("bad.json"))
	require.Error(t, res.Err)
	assert.Equal(t, 3, exitCode(t, res.Err))
	assert.Contains(t, res.Err.Error(), "blocks_Heater_data")

	var report struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.Out), &report))
	require.NotEmpty(t, report.ID)

	res = env.Run(t, "retry", report.ID, env.Path("good.json"))
	require.NoError(t, res.Err, res.Logs)
	assert.Contains(t, res.Out, `"status": "ok"`)
	assert.Contains(t, res.Logs, "Retrying sections.")
}

func TestExecute_CaptureDiffAndWriteSnapshot(t *testing.T) {
	env := apptest.NewEnv(t, nil)
	doc := env.Path("doc.json")
	snap := env.Path("snap")
	offline := []string{"--store", "snapshot", "--snapshot", snap}

	require.NoError(t, env.Run(t, "extract", "-o", doc).Err)
	res := env.Run(t, "capture", snap)
	require.NoError(t, res.Err)
	assert.Contains(t, res.Out, "captured")

	res = env.Run(t, append(offline, "diff", doc)...)
	require.NoError(t, res.Err, res.Out)
	assert.Contains(t, res.Out, "no differences")

	require.NoError(t, env.Run(t, "doc", "set", doc, "blocks_Heater_data.H1.SPEC_DATA.TEMP_VALUE", "999").Err)
	res = env.Run(t, append(offline, "diff", doc)...)
	require.Error(t, res.Err)
	assert.Equal(t, 1, exitCode(t, res.Err))
	assert.Contains(t, res.Out, "999")

	res = env.Run(t, append(offline, "write", doc)...)
	require.NoError(t, res.Err, res.Logs)

	res = env.Run(t, append(offline, "diff", doc)...)
	require.NoError(t, res.Err, res.Out)
}

func TestExecute_DocGetSet(t *testing.T) {
	env := apptest.NewEnv(t, map[string]string{
		"doc.yaml": "streams:\n  - S1\nblocks_Heater_data:\n  H1:\n    SPEC_DATA:\n      TEMP_VALUE: 350\n",
	})
	doc := env.Path("doc.yaml")

	res := env.Run(t, "doc", "get", doc, "blocks_Heater_data.H1.SPEC_DATA")
	require.NoError(t, res.Err)
	assert.JSONEq(t, `{"TEMP_VALUE": 350}`, res.Out)

	require.NoError(t, env.Run(t, "doc", "set", doc, "blocks_Heater_data.H1.SPEC_DATA.TEMP_UNITS", `"K"`).Err)
	updated, err := app.ReadDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"streams", "blocks_Heater_data"}, updated.Keys(), "key order survives an edit")
	raw, err := updated.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"streams": ["S1"], "blocks_Heater_data": {"H1": {"SPEC_DATA": {"TEMP_VALUE": 350, "TEMP_UNITS": "K"}}}}`, string(raw))

	res = env.Run(t, "doc", "get", doc, "nope")
	assert.Equal(t, 1, exitCode(t, res.Err))

	res = env.Run(t, "doc", "set", doc, "x", "{not json")
	require.Error(t, res.Err)
}
