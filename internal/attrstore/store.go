// Package attrstore defines the interface to the engine's hierarchical,
// path-addressed attribute tree.
//
// # Why the store is an interface
//
// The extraction and write engines never talk to a concrete engine session.
// They walk a Store, which lets the same schemas run against:
//   - the live engine, through internal/bridgestore
//   - an offline badger snapshot of a tree, through internal/snapshotstore
//   - an in-memory tree used by tests and fixtures, through internal/inmemorystore
//
// # Absence is not an error
//
// FindNode returns (nil, nil) when nothing lives at a path. The engines treat
// that as the normal "field not set" outcome. A non-nil error is reserved for
// failures of the store itself. ErrConnectionLost in particular tells the
// orchestrator that the handle is gone and the run must stop.
//
// # Concurrency
//
// A store handle represents one engine session, which is neither
// thread-safe nor reentrant. Callers must not use a handle from more than one
// goroutine at a time; the orchestrator serializes every run on a handle.
package attrstore

import (
	"context"
	"errors"

	"github.com/vk/flowsync/internal/units"
)

// ErrConnectionLost reports that the store session is no longer usable.
// It is the only error that aborts a whole run.
var ErrConnectionLost = errors.New("attribute store connection lost")

// Store resolves paths to nodes.
type Store interface {
	// FindNode returns the node at path, or (nil, nil) when it does not exist.
	FindNode(ctx context.Context, path string) (Node, error)
}

// Runner is implemented by stores that can ask the engine to run the
// simulation after a write.
type Runner interface {
	Run(ctx context.Context) error
}

// Node is one attribute in the tree. The getters return the state observed
// when the node was looked up; setters write through to the store.
type Node interface {
	// Path is the concrete path the node was found at.
	Path() string
	// Name is the node's label within its parent.
	Name() string
	// Value is the scalar value, nil when unset.
	Value() any
	// UnitString is the human unit string, "" when the node carries none.
	UnitString() string
	// Basis is the basis tag (MOLE, MASS, ...), "" when none.
	Basis() string
	// RecordType is the engine record type, e.g. a block model name.
	RecordType() string

	SetValue(ctx context.Context, v any) error
	// SetValueAndUnit writes a value with a unit code. The zero code keeps the
	// current unit.
	SetValueAndUnit(ctx context.Context, v any, unit units.Code) error
	SetValueUnitAndBasis(ctx context.Context, v any, unit units.Code, basis string) error

	// Elements gives access to the node's children.
	Elements() Elements
}

// Elements is the child collection of a node. Only dimension 0 is addressed
// by this package's callers; stores may reject other dimensions.
type Elements interface {
	// Count returns the number of children.
	Count(ctx context.Context) (int, error)
	// Labels returns child labels in the store's enumeration order.
	Labels(ctx context.Context) ([]string, error)
	// At returns the child at a position.
	At(ctx context.Context, index int) (Node, error)
	// Item returns the first child with the label, or (nil, nil).
	Item(ctx context.Context, label string) (Node, error)
	// InsertRow allocates an empty, unlabeled row at index.
	InsertRow(ctx context.Context, dim, index int) error
	// LabelNode assigns a label to the row at index.
	LabelNode(ctx context.Context, dim, index int, label string) error
	// AddRecord creates a typed child record (a block, a stream, a reaction).
	AddRecord(ctx context.Context, label, recordType string) error
}
