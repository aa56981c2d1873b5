package snapshotstore

import (
	"context"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/vk/flowsync/internal/attrpath"
	"github.com/vk/flowsync/internal/attrstore"
	"github.com/vk/flowsync/internal/ctxlog"
)

// Capture copies the subtree at root of src into the snapshot. Ancestors of
// root are created as plain containers. Nodes already present are
// overwritten; children that exist only in the snapshot are kept.
func (s *Store) Capture(ctx context.Context, src attrstore.Store, root string) (int, error) {
	logger := ctxlog.FromContext(ctx)
	root = normalizePath(root)

	if err := s.ensureAncestors(root); err != nil {
		return 0, err
	}

	count := 0
	err := attrstore.Walk(ctx, src, root, func(ctx context.Context, n attrstore.Node, depth int) error {
		code, err := s.table.ToCode(n.UnitString())
		if err != nil {
			return fmt.Errorf("capturing '%s': %w", n.Path(), err)
		}
		path := normalizePath(n.Path())
		err = s.db.Update(func(txn *badger.Txn) error {
			rec, err := getRecord(txn, path)
			if err != nil {
				return err
			}
			if rec == nil {
				rec = &record{}
			}
			rec.Value = n.Value()
			rec.Unit = code
			rec.Basis = n.Basis()
			rec.RecordType = n.RecordType()
			if err := putRecord(txn, path, rec); err != nil {
				return err
			}
			if path == "" {
				return nil
			}
			return linkChild(txn, path)
		})
		if err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("capture of '%s' failed: %w", root, err)
	}
	logger.Info("📸 Snapshot captured.", "root", root, "nodes", count)
	return count, nil
}

func (s *Store) ensureAncestors(path string) error {
	segments := attrpath.Split(path)
	return s.db.Update(func(txn *badger.Txn) error {
		for i := 1; i < len(segments); i++ {
			p := attrpath.Build(segments[:i]...)
			rec, err := getRecord(txn, p)
			if err != nil {
				return err
			}
			if rec == nil {
				if err := putRecord(txn, p, &record{}); err != nil {
					return err
				}
			}
			if err := linkChild(txn, p); err != nil {
				return err
			}
		}
		return nil
	})
}

// linkChild appends the last segment of path to its parent's children.
func linkChild(txn *badger.Txn, path string) error {
	segments := attrpath.Split(path)
	label := segments[len(segments)-1]
	parentPath := attrpath.Build(segments[:len(segments)-1]...)

	var parent *record
	var err error
	if parentPath == "" {
		parent, err = rootRecord(txn)
	} else {
		parent, err = getRecord(txn, parentPath)
	}
	if err != nil {
		return err
	}
	if parent == nil {
		return fmt.Errorf("parent of '%s' is missing", path)
	}
	if slices.Contains(parent.Children, label) {
		return nil
	}
	parent.Children = append(parent.Children, label)
	return putRecord(txn, parentPath, parent)
}
