package inmemorystore

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/vk/flowsync/internal/attrpath"
	"gopkg.in/yaml.v3"
)

// Attribute keys of the fixture format. Every other mapping key is a child.
const (
	keyValue = "@value"
	keyUnit  = "@unit"
	keyBasis = "@basis"
	keyType  = "@type"
)

// LoadFile seeds the store from a YAML fixture file.
func (s *Store) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open fixture %s: %w", path, err)
	}
	defer f.Close()
	if err := s.LoadYAML(f); err != nil {
		return fmt.Errorf("fixture %s: %w", path, err)
	}
	return nil
}

// LoadYAML seeds the store from a YAML tree. Mapping order becomes child
// order. A scalar is shorthand for a leaf with a value; a mapping may carry
// @value, @unit, @basis and @type attributes next to its children; a
// sequence creates children labeled 1, 2, ...
func (s *Store) LoadYAML(r io.Reader) error {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("failed to decode fixture: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadInto(s.root, doc.Content[0])
}

func (s *Store) loadInto(n *node, y *yaml.Node) error {
	switch y.Kind {
	case yaml.ScalarNode:
		return decodeScalar(y, &n.value)
	case yaml.SequenceNode:
		for i, item := range y.Content {
			c := &node{store: s, parent: n, name: fmt.Sprint(i + 1)}
			n.children = append(n.children, c)
			if err := s.loadInto(c, item); err != nil {
				return err
			}
		}
		return nil
	case yaml.MappingNode:
		for i := 0; i+1 < len(y.Content); i += 2 {
			key, val := y.Content[i].Value, y.Content[i+1]
			switch key {
			case keyValue:
				if err := decodeScalar(val, &n.value); err != nil {
					return err
				}
			case keyUnit:
				code, err := s.table.ToCode(val.Value)
				if err != nil {
					return fmt.Errorf("line %d: %w", val.Line, err)
				}
				n.unit = code
			case keyBasis:
				n.basis = val.Value
			case keyType:
				n.recordType = val.Value
			default:
				if strings.HasPrefix(key, "@") {
					return fmt.Errorf("line %d: unknown attribute %q", y.Content[i].Line, key)
				}
				c := &node{store: s, parent: n, name: key}
				n.children = append(n.children, c)
				if err := s.loadInto(c, val); err != nil {
					return err
				}
			}
		}
		return nil
	default:
		return fmt.Errorf("line %d: unsupported YAML node kind %d", y.Line, y.Kind)
	}
}

func decodeScalar(y *yaml.Node, target *any) error {
	if y.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar value", y.Line)
	}
	if y.Tag == "!!null" {
		*target = nil
		return nil
	}
	var v any
	if err := y.Decode(&v); err != nil {
		return fmt.Errorf("line %d: %w", y.Line, err)
	}
	*target = v
	return nil
}

// DumpYAML writes the subtree at root in the fixture format.
func (s *Store) DumpYAML(w io.Writer, root string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := s.lookup(attrpath.Split(root))
	if n == nil {
		return fmt.Errorf("dump root %q not found", root)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s.dump(n)); err != nil {
		return fmt.Errorf("failed to encode fixture: %w", err)
	}
	return enc.Close()
}

func (s *Store) dump(n *node) *yaml.Node {
	hasAttrs := !n.unit.IsZero() || n.basis != "" || n.recordType != ""
	if len(n.children) == 0 && !hasAttrs {
		return scalarNode(n.value)
	}

	m := &yaml.Node{Kind: yaml.MappingNode}
	if n.recordType != "" {
		m.Content = append(m.Content, strNode(keyType), strNode(n.recordType))
	}
	if n.value != nil {
		m.Content = append(m.Content, strNode(keyValue), scalarNode(n.value))
	}
	if !n.unit.IsZero() {
		unit, _ := s.table.ToUnit(n.unit)
		m.Content = append(m.Content, strNode(keyUnit), strNode(unit))
	}
	if n.basis != "" {
		m.Content = append(m.Content, strNode(keyBasis), strNode(n.basis))
	}
	for _, c := range n.children {
		if c.name == "" {
			continue
		}
		m.Content = append(m.Content, strNode(c.name), s.dump(c))
	}
	return m
}

func strNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func scalarNode(v any) *yaml.Node {
	var y yaml.Node
	if err := y.Encode(v); err != nil {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	}
	return &y
}
