package attrstore

import (
	"context"
	"fmt"
)

// WalkFunc is called for every node visited by Walk.
type WalkFunc func(ctx context.Context, n Node, depth int) error

// Walk visits the node at root and all its descendants depth first, in
// enumeration order. A missing root is reported as an error.
func Walk(ctx context.Context, s Store, root string, fn WalkFunc) error {
	n, err := s.FindNode(ctx, root)
	if err != nil {
		return err
	}
	if n == nil {
		return fmt.Errorf("walk root %q not found", root)
	}
	return walk(ctx, n, 0, fn)
}

func walk(ctx context.Context, n Node, depth int, fn WalkFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(ctx, n, depth); err != nil {
		return err
	}
	count, err := n.Elements().Count(ctx)
	if err != nil {
		return fmt.Errorf("counting children of %q: %w", n.Path(), err)
	}
	for i := 0; i < count; i++ {
		child, err := n.Elements().At(ctx, i)
		if err != nil {
			return fmt.Errorf("reading child %d of %q: %w", i, n.Path(), err)
		}
		if child == nil || child.Name() == "" {
			continue
		}
		if err := walk(ctx, child, depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}

// IsEmpty reports whether a node value counts as absent under the sparse
// field contract: nil or the empty string.
func IsEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}
