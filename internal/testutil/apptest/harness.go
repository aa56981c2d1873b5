// Package apptest runs full command lines against the built-in schemas and a
// seeded in-memory store. It lives apart from testutil because it imports
// the cli and app packages.
package apptest

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/flowsync/internal/cli"
	"github.com/vk/flowsync/internal/hcl"
	"github.com/vk/flowsync/internal/testutil"
)

// Env is a temporary working directory holding a flowsheet fixture and a
// report history path.
type Env struct {
	Dir     string
	Fixture string
	History string
}

// NewEnv writes the flowsheet fixture plus any extra files, relative to a
// fresh temporary directory.
func NewEnv(t *testing.T, files map[string]string) *Env {
	t.Helper()
	dir := t.TempDir()
	env := &Env{
		Dir:     dir,
		Fixture: filepath.Join(dir, "fixture.yaml"),
		History: filepath.Join(dir, "history.db"),
	}
	require.NoError(t, os.WriteFile(env.Fixture, []byte(testutil.Flowsheet), 0o600))
	for name, content := range files {
		p := env.Path(name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}
	return env
}

// Path resolves name inside the environment directory.
func (e *Env) Path(name string) string {
	return filepath.Join(e.Dir, name)
}

// Result holds the outcome of one command line.
type Result struct {
	Out  string
	Logs string
	Exit bool
	Err  error
}

// Run parses and executes args with the memory store seeded from the
// fixture and history enabled. Global options in args come after those
// defaults, so they win.
func (e *Env) Run(t *testing.T, args ...string) *Result {
	t.Helper()
	full := append([]string{"--log-level", "debug", "--store", "memory", "--fixture", e.Fixture, "--history", e.History}, args...)

	out := &bytes.Buffer{}
	logs := &testutil.SafeBuffer{}
	defer func() {
		if testutil.LogsEnabled() {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logs.String())
		}
	}()

	inv, exit, err := cli.Parse(full, out)
	if err != nil || exit {
		return &Result{Out: out.String(), Exit: exit, Err: err}
	}
	err = cli.Execute(context.Background(), inv, hcl.NewLoader(), out, logs)
	return &Result{Out: out.String(), Logs: logs.String(), Err: err}
}
