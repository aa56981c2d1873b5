package testutil

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/flowsync/internal/attrstore"
	"github.com/vk/flowsync/internal/inmemorystore"
	"github.com/vk/flowsync/internal/units"
)

// Store returns an in-memory store seeded from a YAML fixture.
func Store(t *testing.T, fixture string) *inmemorystore.Store {
	t.Helper()
	s := inmemorystore.New(units.Default())
	require.NoError(t, s.LoadYAML(strings.NewReader(fixture)))
	return s
}

// Dump renders the subtree at root in the fixture format, for comparing two
// stores.
func Dump(t *testing.T, s *inmemorystore.Store, root string) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, s.DumpYAML(&buf, root))
	return buf.String()
}

// FaultyStore wraps a store and fails lookups of chosen paths.
type FaultyStore struct {
	attrstore.Store

	mu    sync.Mutex
	fail  map[string]error
	calls int
	// LoseAfter makes every lookup fail with ErrConnectionLost once that many
	// lookups succeeded. Zero disables it.
	LoseAfter int
}

// NewFaultyStore wraps s.
func NewFaultyStore(s attrstore.Store) *FaultyStore {
	return &FaultyStore{Store: s, fail: make(map[string]error)}
}

// FailOn makes lookups of any path containing fragment return err.
func (f *FaultyStore) FailOn(fragment string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[fragment] = err
}

// FindNode implements attrstore.Store.
func (f *FaultyStore) FindNode(ctx context.Context, path string) (attrstore.Node, error) {
	f.mu.Lock()
	f.calls++
	lost := f.LoseAfter > 0 && f.calls > f.LoseAfter
	var injected error
	for fragment, err := range f.fail {
		if strings.Contains(path, fragment) {
			injected = err
			break
		}
	}
	f.mu.Unlock()

	if lost {
		return nil, attrstore.ErrConnectionLost
	}
	if injected != nil {
		return nil, injected
	}
	return f.Store.FindNode(ctx, path)
}
