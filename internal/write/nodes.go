package write

import (
	"context"
	"fmt"

	"github.com/vk/flowsync/internal/attrpath"
	"github.com/vk/flowsync/internal/attrstore"
	"github.com/vk/flowsync/internal/engine"
)

// ensurePath returns the node at path, creating every missing node along it
// as a plain row.
func ensurePath(ctx context.Context, store attrstore.Store, path string) (attrstore.Node, error) {
	n, err := store.FindNode(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("finding '%s': %w", path, err)
	}
	if n != nil {
		return n, nil
	}
	segments := attrpath.Split(path)
	if len(segments) == 0 {
		return nil, fmt.Errorf("store root is not addressable")
	}
	parent, err := ensurePath(ctx, store, attrpath.Build(segments[:len(segments)-1]...))
	if err != nil {
		return nil, err
	}
	return ensureChild(ctx, parent, segments[len(segments)-1])
}

// ensureChild returns the child labeled label, appending and labeling a new
// row when there is none.
func ensureChild(ctx context.Context, parent attrstore.Node, label string) (attrstore.Node, error) {
	el := parent.Elements()
	if n, err := el.Item(ctx, label); err != nil {
		return nil, fmt.Errorf("looking up '%s' under '%s': %w", label, parent.Path(), err)
	} else if n != nil {
		return n, nil
	}

	idx, err := el.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting children of '%s': %w", parent.Path(), err)
	}
	if err := el.InsertRow(ctx, 0, idx); err != nil {
		return nil, fmt.Errorf("inserting row %d under '%s': %w", idx, parent.Path(), err)
	}
	if err := el.LabelNode(ctx, 0, idx, label); err != nil {
		return nil, fmt.Errorf("labeling row %d under '%s': %w", idx, parent.Path(), err)
	}

	labels, err := el.Labels(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading labels of '%s': %w", parent.Path(), err)
	}
	got := ""
	if idx < len(labels) {
		got = labels[idx]
	}
	if got != label {
		return nil, &engine.OrderingViolationError{Path: parent.Path(), Index: idx, Want: label, Got: got}
	}

	n, err := el.Item(ctx, label)
	if err != nil {
		return nil, fmt.Errorf("looking up '%s' under '%s': %w", label, parent.Path(), err)
	}
	if n == nil {
		return nil, fmt.Errorf("row '%s' under '%s' vanished after labeling", label, parent.Path())
	}
	return n, nil
}

// ensureRecord returns the typed record labeled label, adding it when
// missing. An existing record of another type is an error.
func ensureRecord(ctx context.Context, parent attrstore.Node, label, recordType string) (attrstore.Node, error) {
	el := parent.Elements()
	n, err := el.Item(ctx, label)
	if err != nil {
		return nil, fmt.Errorf("looking up '%s' under '%s': %w", label, parent.Path(), err)
	}
	if n != nil {
		if recordType != "" && n.RecordType() != "" && n.RecordType() != recordType {
			return nil, fmt.Errorf("record '%s' already exists with type '%s', not '%s'", label, n.RecordType(), recordType)
		}
		return n, nil
	}
	if recordType == "" {
		return nil, fmt.Errorf("cannot create record '%s' under '%s': no record type", label, parent.Path())
	}
	if err := el.AddRecord(ctx, label, recordType); err != nil {
		return nil, fmt.Errorf("adding %s record '%s' under '%s': %w", recordType, label, parent.Path(), err)
	}
	if n, err = el.Item(ctx, label); err != nil {
		return nil, fmt.Errorf("looking up '%s' under '%s': %w", label, parent.Path(), err)
	}
	if n == nil {
		return nil, fmt.Errorf("record '%s' under '%s' missing after creation", label, parent.Path())
	}
	return n, nil
}
