package engine

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/vk/flowsync/internal/attrstore"
	"github.com/vk/flowsync/internal/config"
)

// Entry is one discovered child of a collection node.
type Entry struct {
	// Key is the child label with any declared suffix stripped.
	Key string
	// Label is the raw child label.
	Label string
	Node  attrstore.Node
}

// Discover enumerates the children of parent the way collection c declares:
// store order, record type filter, suffix stripping with optional
// de-duplication by first occurrence, reference filtering and numeric sort.
func Discover(ctx context.Context, parent attrstore.Node, c *config.Collection, sets *KeySets) ([]Entry, error) {
	count, err := parent.Elements().Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting children of '%s': %w", parent.Path(), err)
	}

	var entries []Entry
	seen := make(map[string]bool)
	for i := 0; i < count; i++ {
		child, err := parent.Elements().At(ctx, i)
		if err != nil {
			return nil, fmt.Errorf("reading child %d of '%s': %w", i, parent.Path(), err)
		}
		if child == nil || child.Name() == "" {
			continue
		}
		if len(c.FilterRecordType) > 0 && !slices.Contains(c.FilterRecordType, child.RecordType()) {
			continue
		}
		label := child.Name()
		key := label
		if c.StripSuffix != "" {
			key = strings.TrimSuffix(label, c.StripSuffix)
		}
		if c.Dedup {
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		if !sets.Allows(c.Reference, key) {
			continue
		}
		entries = append(entries, Entry{Key: key, Label: label, Node: child})
	}

	if c.SortNumeric {
		SortNumeric(entries, func(e Entry) string { return e.Key })
	}
	return entries, nil
}

// SortNumeric orders items by the numeric value of their key. Keys that are
// not numbers keep their relative order after the numeric ones.
func SortNumeric[T any](items []T, key func(T) string) {
	sort.SliceStable(items, func(i, j int) bool {
		a, aErr := strconv.ParseFloat(key(items[i]), 64)
		b, bErr := strconv.ParseFloat(key(items[j]), 64)
		switch {
		case aErr == nil && bErr == nil:
			return a < b
		case aErr == nil:
			return true
		default:
			return false
		}
	})
}

// ClaimedKeys returns every document key the elements may produce, across
// all when branches. Inline collections own whatever is left.
func ClaimedKeys(elements []config.Element) map[string]bool {
	claimed := make(map[string]bool)
	var walk func([]config.Element)
	walk = func(elements []config.Element) {
		for _, e := range elements {
			switch t := e.(type) {
			case *config.Field:
				for _, k := range t.Keys() {
					claimed[k] = true
				}
			case *config.When:
				walk(t.Elements)
			case *config.Object:
				if t.Key == "" {
					walk(t.Elements)
				} else {
					claimed[t.Key] = true
				}
			case *config.Fragments:
				claimed[t.Key] = true
			case *config.Collection:
				if !t.Inline && t.Key != "" {
					claimed[t.Key] = true
				}
			}
		}
	}
	walk(elements)
	return claimed
}
