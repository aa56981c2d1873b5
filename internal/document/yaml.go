package document

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// MarshalYAML emits a mapping node in insertion order.
func (o *Object) MarshalYAML() (any, error) {
	m := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range o.Keys() {
		val := new(yaml.Node)
		if err := val.Encode(o.values[k]); err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, val)
	}
	return m, nil
}

// UnmarshalYAML decodes a mapping, keeping the source key order.
func (o *Object) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", value.Line)
	}
	v, err := fromYAML(value)
	if err != nil {
		return err
	}
	*o = *v.(*Object)
	return nil
}

func fromYAML(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return fromYAML(n.Alias)
	case yaml.MappingNode:
		obj := New()
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := fromYAML(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			obj.Set(n.Content[i].Value, v)
		}
		return obj, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, item := range n.Content {
			v, err := fromYAML(item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return Normalize(v), nil
	default:
		return nil, fmt.Errorf("line %d: unsupported YAML node kind %d", n.Line, n.Kind)
	}
}

// ParseYAML decodes a YAML document whose top level is a mapping.
func ParseYAML(data []byte) (*Object, error) {
	obj := New()
	if err := yaml.Unmarshal(data, obj); err != nil {
		return nil, err
	}
	return obj, nil
}
