package snapshotstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/vk/flowsync/internal/attrpath"
	"github.com/vk/flowsync/internal/attrstore"
	"github.com/vk/flowsync/internal/units"
)

const keyPrefix = "n:"

// record is the persisted form of one node.
type record struct {
	Value      any        `json:"value,omitempty"`
	Unit       units.Code `json:"unit"`
	Basis      string     `json:"basis,omitempty"`
	RecordType string     `json:"record_type,omitempty"`
	// Children holds child labels in order. "" marks an inserted row that has
	// not been labeled yet.
	Children []string `json:"children,omitempty"`
}

// Store is a BadgerDB backed attribute tree.
type Store struct {
	db    *badger.DB
	table *units.Table
}

var _ attrstore.Store = (*Store)(nil)

// Open opens or creates a snapshot.
func Open(cfg Config) (*Store, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	table := cfg.Table
	if table == nil {
		table = units.Default()
	}
	return &Store{db: db, table: table}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func key(path string) []byte {
	return []byte(keyPrefix + path)
}

func normalizePath(path string) string {
	return attrpath.Build(attrpath.Split(path)...)
}

func getRecord(txn *badger.Txn, path string) (*record, error) {
	item, err := txn.Get(key(path))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec := &record{}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, rec)
	})
	if err != nil {
		return nil, fmt.Errorf("decoding node '%s': %w", path, err)
	}
	return rec, nil
}

func putRecord(txn *badger.Txn, path string, rec *record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding node '%s': %w", path, err)
	}
	return txn.Set(key(path), data)
}

// root returns the root record, which exists implicitly.
func rootRecord(txn *badger.Txn) (*record, error) {
	rec, err := getRecord(txn, "")
	if rec == nil && err == nil {
		rec = &record{}
	}
	return rec, err
}

// FindNode implements attrstore.Store.
func (s *Store) FindNode(ctx context.Context, path string) (attrstore.Node, error) {
	path = normalizePath(path)
	var n attrstore.Node
	err := s.db.View(func(txn *badger.Txn) error {
		var rec *record
		var err error
		if path == "" {
			rec, err = rootRecord(txn)
		} else {
			rec, err = getRecord(txn, path)
		}
		if err != nil || rec == nil {
			return err
		}
		n = &node{store: s, path: path, rec: rec}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

// update applies fn to the record at path inside one transaction.
func (s *Store) update(path string, fn func(rec *record) error) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var rec *record
		var err error
		if path == "" {
			rec, err = rootRecord(txn)
		} else {
			rec, err = getRecord(txn, path)
		}
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("node '%s' no longer exists", path)
		}
		if err := fn(rec); err != nil {
			return err
		}
		return putRecord(txn, path, rec)
	})
}

func (s *Store) checkUnit(code units.Code) error {
	if code.IsZero() {
		return nil
	}
	if _, ok := s.table.ToUnit(code); !ok {
		return fmt.Errorf("unit code %s is not registered", code)
	}
	return nil
}

// node is a handle carrying the record observed at lookup time.
type node struct {
	store *Store
	path  string
	rec   *record
	// unlabeled marks a placeholder for an inserted row without a label.
	unlabeled bool
}

func (n *node) Path() string { return n.path }

func (n *node) Name() string {
	if n.unlabeled {
		return ""
	}
	segments := attrpath.Split(n.path)
	if len(segments) == 0 {
		return ""
	}
	return segments[len(segments)-1]
}

func (n *node) Value() any { return n.rec.Value }

func (n *node) UnitString() string {
	if n.rec.Unit.IsZero() {
		return ""
	}
	u, _ := n.store.table.ToUnit(n.rec.Unit)
	return u
}

func (n *node) Basis() string      { return n.rec.Basis }
func (n *node) RecordType() string { return n.rec.RecordType }

func (n *node) SetValue(ctx context.Context, v any) error {
	return n.store.update(n.path, func(rec *record) error {
		rec.Value = v
		return nil
	})
}

func (n *node) SetValueAndUnit(ctx context.Context, v any, unit units.Code) error {
	if err := n.store.checkUnit(unit); err != nil {
		return err
	}
	return n.store.update(n.path, func(rec *record) error {
		rec.Value = v
		if !unit.IsZero() {
			rec.Unit = unit
		}
		return nil
	})
}

func (n *node) SetValueUnitAndBasis(ctx context.Context, v any, unit units.Code, basis string) error {
	if err := n.store.checkUnit(unit); err != nil {
		return err
	}
	return n.store.update(n.path, func(rec *record) error {
		rec.Value = v
		if !unit.IsZero() {
			rec.Unit = unit
		}
		rec.Basis = basis
		return nil
	})
}

func (n *node) Elements() attrstore.Elements {
	if n.unlabeled {
		return &elements{store: n.store, path: n.path, none: true}
	}
	return &elements{store: n.store, path: n.path}
}

// elements reads the parent record fresh on every call.
type elements struct {
	store *Store
	path  string
	none  bool
}

func (e *elements) children() ([]string, error) {
	if e.none {
		return nil, nil
	}
	n, err := e.store.FindNode(context.Background(), e.path)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, fmt.Errorf("node '%s' no longer exists", e.path)
	}
	return n.(*node).rec.Children, nil
}

func (e *elements) Count(ctx context.Context) (int, error) {
	children, err := e.children()
	return len(children), err
}

func (e *elements) Labels(ctx context.Context) ([]string, error) {
	return e.children()
}

func (e *elements) At(ctx context.Context, index int) (attrstore.Node, error) {
	children, err := e.children()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(children) {
		return nil, fmt.Errorf("index %d out of range [0,%d) at '%s'", index, len(children), e.path)
	}
	if children[index] == "" {
		return &node{store: e.store, path: e.path, rec: &record{}, unlabeled: true}, nil
	}
	return e.store.FindNode(ctx, attrpath.Join(e.path, children[index]))
}

func (e *elements) Item(ctx context.Context, label string) (attrstore.Node, error) {
	children, err := e.children()
	if err != nil {
		return nil, err
	}
	if label == "" || !slices.Contains(children, label) {
		return nil, nil
	}
	return e.store.FindNode(ctx, attrpath.Join(e.path, label))
}

func (e *elements) InsertRow(ctx context.Context, dim, index int) error {
	if dim != 0 {
		return fmt.Errorf("dimension %d is not supported", dim)
	}
	return e.store.update(e.path, func(rec *record) error {
		if index < 0 || index > len(rec.Children) {
			return fmt.Errorf("insert index %d out of range [0,%d] at '%s'", index, len(rec.Children), e.path)
		}
		rec.Children = slices.Insert(rec.Children, index, "")
		return nil
	})
}

func (e *elements) LabelNode(ctx context.Context, dim, index int, label string) error {
	if dim != 0 {
		return fmt.Errorf("dimension %d is not supported", dim)
	}
	if label == "" {
		return fmt.Errorf("label cannot be empty")
	}
	return e.store.db.Update(func(txn *badger.Txn) error {
		rec, err := e.record(txn)
		if err != nil {
			return err
		}
		if index < 0 || index >= len(rec.Children) {
			return fmt.Errorf("label index %d out of range [0,%d) at '%s'", index, len(rec.Children), e.path)
		}
		if rec.Children[index] != "" {
			return fmt.Errorf("row %d at '%s' is already labeled '%s'", index, e.path, rec.Children[index])
		}
		if slices.Contains(rec.Children, label) {
			return fmt.Errorf("label '%s' already used at '%s'", label, e.path)
		}
		rec.Children[index] = label
		if err := putRecord(txn, e.path, rec); err != nil {
			return err
		}
		return putRecord(txn, attrpath.Join(e.path, label), &record{})
	})
}

func (e *elements) AddRecord(ctx context.Context, label, recordType string) error {
	if label == "" {
		return fmt.Errorf("record label cannot be empty")
	}
	return e.store.db.Update(func(txn *badger.Txn) error {
		rec, err := e.record(txn)
		if err != nil {
			return err
		}
		if slices.Contains(rec.Children, label) {
			return fmt.Errorf("record '%s' already exists at '%s'", label, e.path)
		}
		rec.Children = append(rec.Children, label)
		if err := putRecord(txn, e.path, rec); err != nil {
			return err
		}
		return putRecord(txn, attrpath.Join(e.path, label), &record{RecordType: recordType})
	})
}

func (e *elements) record(txn *badger.Txn) (*record, error) {
	if e.path == "" {
		return rootRecord(txn)
	}
	rec, err := getRecord(txn, e.path)
	if err == nil && rec == nil {
		err = fmt.Errorf("node '%s' no longer exists", e.path)
	}
	return rec, err
}

// Root returns the children of the root node.
func (s *Store) Root() attrstore.Elements {
	return &elements{store: s, path: ""}
}
