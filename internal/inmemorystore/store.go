// Package inmemorystore provides an in-memory implementation of the
// attrstore.Store interface.
//
// # Characteristics
//
//   - **Live handles:** FindNode returns the stored node itself, so getters
//     always reflect the latest write.
//   - **Ordered children:** children keep insertion order, which is the
//     enumeration order the engines rely on for parallel collections.
//   - **Engine semantics:** rows are created unlabeled by InsertRow and named
//     by LabelNode; unit codes are translated through the injected unit table,
//     so unknown codes are rejected the way the engine rejects them.
//
// A single RWMutex guards the whole tree. The engines are single-threaded per
// handle, the lock only keeps tests that share a store across goroutines safe.
package inmemorystore

import (
	"context"
	"fmt"
	"sync"

	"github.com/vk/flowsync/internal/attrpath"
	"github.com/vk/flowsync/internal/attrstore"
	"github.com/vk/flowsync/internal/units"
)

// Store is an in-memory attribute tree.
type Store struct {
	mu    sync.RWMutex
	table *units.Table
	root  *node
}

// node is both the tree vertex and the attrstore.Node handle.
type node struct {
	store      *Store
	parent     *node
	name       string
	value      any
	unit       units.Code
	basis      string
	recordType string
	children   []*node
}

var (
	_ attrstore.Store    = (*Store)(nil)
	_ attrstore.Node     = (*node)(nil)
	_ attrstore.Elements = (*elements)(nil)
)

// New creates an empty tree. The unit table translates between the codes
// written by the engine and the unit strings reported back.
func New(table *units.Table) *Store {
	s := &Store{table: table}
	s.root = &node{store: s}
	return s
}

// Table returns the unit table the store was created with.
func (s *Store) Table() *units.Table {
	return s.table
}

// FindNode returns the first node matching every segment of path.
func (s *Store) FindNode(ctx context.Context, path string) (attrstore.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := s.lookup(attrpath.Split(path))
	if n == nil {
		return nil, nil
	}
	return n, nil
}

func (s *Store) lookup(segments []string) *node {
	n := s.root
	for _, seg := range segments {
		n = n.child(seg)
		if n == nil {
			return nil
		}
	}
	return n
}

// MustSet creates every missing node along path and assigns a value and unit
// string. It is a seeding helper for fixtures and tests, not part of the
// engine protocol.
func (s *Store) MustSet(path string, value any, unit string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.root
	for _, seg := range attrpath.Split(path) {
		next := n.child(seg)
		if next == nil {
			next = &node{store: s, parent: n, name: seg}
			n.children = append(n.children, next)
		}
		n = next
	}
	n.value = value
	if unit != "" {
		code, err := s.table.ToCode(unit)
		if err != nil {
			panic(err)
		}
		n.unit = code
	}
}

func (n *node) child(label string) *node {
	for _, c := range n.children {
		if c.name == label {
			return c
		}
	}
	return nil
}

func (n *node) Path() string {
	n.store.mu.RLock()
	defer n.store.mu.RUnlock()
	return n.path()
}

func (n *node) path() string {
	if n.parent == nil {
		return ""
	}
	return attrpath.Join(n.parent.path(), n.name)
}

func (n *node) Name() string {
	n.store.mu.RLock()
	defer n.store.mu.RUnlock()
	return n.name
}

func (n *node) Value() any {
	n.store.mu.RLock()
	defer n.store.mu.RUnlock()
	return n.value
}

func (n *node) UnitString() string {
	n.store.mu.RLock()
	defer n.store.mu.RUnlock()
	if n.unit.IsZero() {
		return ""
	}
	unit, _ := n.store.table.ToUnit(n.unit)
	return unit
}

func (n *node) Basis() string {
	n.store.mu.RLock()
	defer n.store.mu.RUnlock()
	return n.basis
}

func (n *node) RecordType() string {
	n.store.mu.RLock()
	defer n.store.mu.RUnlock()
	return n.recordType
}

func (n *node) SetValue(ctx context.Context, v any) error {
	n.store.mu.Lock()
	defer n.store.mu.Unlock()
	n.value = v
	return nil
}

func (n *node) SetValueAndUnit(ctx context.Context, v any, unit units.Code) error {
	n.store.mu.Lock()
	defer n.store.mu.Unlock()
	if err := n.setUnit(unit); err != nil {
		return err
	}
	n.value = v
	return nil
}

func (n *node) SetValueUnitAndBasis(ctx context.Context, v any, unit units.Code, basis string) error {
	n.store.mu.Lock()
	defer n.store.mu.Unlock()
	if err := n.setUnit(unit); err != nil {
		return err
	}
	n.value = v
	n.basis = basis
	return nil
}

func (n *node) setUnit(unit units.Code) error {
	if unit.IsZero() {
		return nil
	}
	if _, ok := n.store.table.ToUnit(unit); !ok {
		return fmt.Errorf("unit code %s is not registered", unit)
	}
	n.unit = unit
	return nil
}

func (n *node) Elements() attrstore.Elements {
	return &elements{n: n}
}

type elements struct {
	n *node
}

func (e *elements) Count(ctx context.Context) (int, error) {
	e.n.store.mu.RLock()
	defer e.n.store.mu.RUnlock()
	return len(e.n.children), nil
}

func (e *elements) Labels(ctx context.Context) ([]string, error) {
	e.n.store.mu.RLock()
	defer e.n.store.mu.RUnlock()
	labels := make([]string, len(e.n.children))
	for i, c := range e.n.children {
		labels[i] = c.name
	}
	return labels, nil
}

func (e *elements) At(ctx context.Context, index int) (attrstore.Node, error) {
	e.n.store.mu.RLock()
	defer e.n.store.mu.RUnlock()
	if index < 0 || index >= len(e.n.children) {
		return nil, fmt.Errorf("index %d out of range [0,%d) at %q", index, len(e.n.children), e.n.path())
	}
	return e.n.children[index], nil
}

func (e *elements) Item(ctx context.Context, label string) (attrstore.Node, error) {
	e.n.store.mu.RLock()
	defer e.n.store.mu.RUnlock()
	if c := e.n.child(label); c != nil {
		return c, nil
	}
	return nil, nil
}

func (e *elements) InsertRow(ctx context.Context, dim, index int) error {
	if dim != 0 {
		return fmt.Errorf("dimension %d is not supported", dim)
	}
	e.n.store.mu.Lock()
	defer e.n.store.mu.Unlock()
	if index < 0 || index > len(e.n.children) {
		return fmt.Errorf("insert index %d out of range [0,%d] at %q", index, len(e.n.children), e.n.path())
	}
	row := &node{store: e.n.store, parent: e.n}
	e.n.children = append(e.n.children, nil)
	copy(e.n.children[index+1:], e.n.children[index:])
	e.n.children[index] = row
	return nil
}

func (e *elements) LabelNode(ctx context.Context, dim, index int, label string) error {
	if dim != 0 {
		return fmt.Errorf("dimension %d is not supported", dim)
	}
	e.n.store.mu.Lock()
	defer e.n.store.mu.Unlock()
	if index < 0 || index >= len(e.n.children) {
		return fmt.Errorf("label index %d out of range [0,%d) at %q", index, len(e.n.children), e.n.path())
	}
	e.n.children[index].name = label
	return nil
}

func (e *elements) AddRecord(ctx context.Context, label, recordType string) error {
	e.n.store.mu.Lock()
	defer e.n.store.mu.Unlock()
	if label == "" {
		return fmt.Errorf("record label cannot be empty")
	}
	if e.n.child(label) != nil {
		return fmt.Errorf("record %q already exists at %q", label, e.n.path())
	}
	e.n.children = append(e.n.children, &node{
		store:      e.n.store,
		parent:     e.n,
		name:       label,
		recordType: recordType,
	})
	return nil
}
