package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/flowsync/internal/config"
	"github.com/vk/flowsync/internal/hcl"
)

// Sections decodes a schema snippet.
func Sections(t *testing.T, src string) []*config.Section {
	t.Helper()
	sections, err := hcl.ParseSections([]byte(src), t.Name()+".hcl")
	require.NoError(t, err)
	return sections
}

// Section decodes a schema snippet that declares exactly one section.
func Section(t *testing.T, src string) *config.Section {
	t.Helper()
	sections := Sections(t, src)
	require.Len(t, sections, 1)
	return sections[0]
}
