package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vk/flowsync/internal/document"
)

func heaterTemp(t *testing.T, a *App) any {
	t.Helper()
	n, err := a.Store().FindNode(context.Background(), `\Data\Blocks\H1\Input\TEMP`)
	if err != nil || n == nil {
		return nil
	}
	return n.Value()
}

func TestWatch_RewritesOnChange(t *testing.T) {
	a, _ := newTestApp(t, nil)
	docPath := filepath.Join(t.TempDir(), "config.json")
	write := func(temp string) {
		body := `{"blocks_Heater_data": {"H1": {"SPEC_DATA": {"TEMP_VALUE": ` + temp + `}}}}`
		require.NoError(t, os.WriteFile(docPath, []byte(body), 0o600))
	}
	write("360")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Watch(ctx, docPath, 20*time.Millisecond) }()

	require.Eventually(t, func() bool { return heaterTemp(t, a) == float64(360) }, 5*time.Second, 20*time.Millisecond)

	write("370")
	require.Eventually(t, func() bool { return heaterTemp(t, a) == float64(370) }, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}

func TestDocumentFiles(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "doc.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("b: 1\na:\n  c: x\n"), 0o600))

	doc, err := ReadDocument(yamlPath)
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a"}, doc.Keys())

	out, err := EncodeDocument(doc, FormatJSON)
	require.NoError(t, err)
	require.Equal(t, "{\n  \"b\": 1,\n  \"a\": {\n    \"c\": \"x\"\n  }\n}\n", string(out))

	out, err = EncodeDocument(doc, FormatYAML)
	require.NoError(t, err)
	back, err := document.ParseYAML(out)
	require.NoError(t, err)
	require.True(t, document.Equal(doc, back))

	_, err = EncodeDocument(doc, "toml")
	require.Error(t, err)
}
