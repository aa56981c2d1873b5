package bridgestore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/vk/flowsync/internal/attrpath"
	"github.com/vk/flowsync/internal/attrstore"
	"github.com/vk/flowsync/internal/units"
)

// Store adapts a Transport to attrstore.Store.
type Store struct {
	t     Transport
	newID func() string
}

var (
	_ attrstore.Store  = (*Store)(nil)
	_ attrstore.Runner = (*Store)(nil)
)

// New wraps a transport.
func New(t Transport) *Store {
	return &Store{t: t, newID: uuid.NewString}
}

// Close closes the underlying transport.
func (s *Store) Close() error {
	return s.t.Close()
}

// RemoteError is an error reported by the bridge for one request.
type RemoteError struct {
	Op      Op
	Path    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("bridge %s '%s': %s", e.Op, e.Path, e.Message)
}

func (s *Store) call(ctx context.Context, req Request) (Reply, error) {
	req.ID = s.newID()
	reply, err := s.t.Call(ctx, req)
	if err != nil {
		return reply, err
	}
	if reply.Error != "" {
		return reply, &RemoteError{Op: req.Op, Path: req.Path, Message: reply.Error}
	}
	return reply, nil
}

func (s *Store) node(st *NodeState) attrstore.Node {
	if st == nil {
		return nil
	}
	return &node{store: s, state: *st}
}

// FindNode implements attrstore.Store.
func (s *Store) FindNode(ctx context.Context, path string) (attrstore.Node, error) {
	reply, err := s.call(ctx, Request{Op: OpFind, Path: path})
	if err != nil {
		return nil, err
	}
	return s.node(reply.Node), nil
}

// Run asks the engine to run the simulation.
func (s *Store) Run(ctx context.Context) error {
	_, err := s.call(ctx, Request{Op: OpRun})
	return err
}

type node struct {
	store *Store
	state NodeState
}

func (n *node) Path() string       { return n.state.Path }
func (n *node) Name() string       { return n.state.Name }
func (n *node) Value() any         { return n.state.Value }
func (n *node) UnitString() string { return n.state.Unit }
func (n *node) Basis() string      { return n.state.Basis }
func (n *node) RecordType() string { return n.state.RecordType }

func (n *node) set(ctx context.Context, mode SetMode, v any, unit *units.Code, basis string) error {
	_, err := n.store.call(ctx, Request{Op: OpSet, Path: n.state.Path, Mode: mode, Value: v, Unit: unit, Basis: basis})
	return err
}

func (n *node) SetValue(ctx context.Context, v any) error {
	return n.set(ctx, SetValue, v, nil, "")
}

func (n *node) SetValueAndUnit(ctx context.Context, v any, unit units.Code) error {
	return n.set(ctx, SetValueAndUnit, v, &unit, "")
}

func (n *node) SetValueUnitAndBasis(ctx context.Context, v any, unit units.Code, basis string) error {
	return n.set(ctx, SetValueUnitAndBasis, v, &unit, basis)
}

func (n *node) Elements() attrstore.Elements {
	return &elements{store: n.store, path: n.state.Path}
}

type elements struct {
	store *Store
	path  string
}

func (e *elements) Labels(ctx context.Context) ([]string, error) {
	reply, err := e.store.call(ctx, Request{Op: OpLabels, Path: e.path})
	if err != nil {
		return nil, err
	}
	return reply.Labels, nil
}

func (e *elements) Count(ctx context.Context) (int, error) {
	labels, err := e.Labels(ctx)
	return len(labels), err
}

func (e *elements) At(ctx context.Context, index int) (attrstore.Node, error) {
	reply, err := e.store.call(ctx, Request{Op: OpAt, Path: e.path, Index: index})
	if err != nil {
		return nil, err
	}
	if reply.Node == nil {
		return nil, fmt.Errorf("bridge returned no node for index %d at '%s'", index, e.path)
	}
	return e.store.node(reply.Node), nil
}

func (e *elements) Item(ctx context.Context, label string) (attrstore.Node, error) {
	if label == "" {
		return nil, nil
	}
	return e.store.FindNode(ctx, attrpath.Join(e.path, label))
}

func (e *elements) InsertRow(ctx context.Context, dim, index int) error {
	_, err := e.store.call(ctx, Request{Op: OpInsertRow, Path: e.path, Dim: dim, Index: index})
	return err
}

func (e *elements) LabelNode(ctx context.Context, dim, index int, label string) error {
	_, err := e.store.call(ctx, Request{Op: OpLabelNode, Path: e.path, Dim: dim, Index: index, Label: label})
	return err
}

func (e *elements) AddRecord(ctx context.Context, label, recordType string) error {
	_, err := e.store.call(ctx, Request{Op: OpAddRecord, Path: e.path, Label: label, RecordType: recordType})
	return err
}
