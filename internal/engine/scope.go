package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vk/flowsync/internal/attrpath"
	"github.com/vk/flowsync/internal/config"
	"github.com/vk/flowsync/internal/document"
)

// Scope is one level of the walk: the variables bound by enclosing
// collections, the `~` base, the `.` node and the document object being
// built or read at this level. Scopes are immutable; the With* methods
// return a child.
type Scope struct {
	parent  *Scope
	name    string
	value   string
	base    string
	current string
	obj     *document.Object
}

var _ attrpath.Resolver = (*Scope)(nil)

// Root returns the scope of a section, anchored at the store root.
func Root() *Scope {
	return &Scope{}
}

func (s *Scope) child() *Scope {
	return &Scope{parent: s, base: s.base, current: s.current}
}

// WithVar binds a collection variable.
func (s *Scope) WithVar(name, value string) *Scope {
	c := s.child()
	c.name, c.value = name, value
	return c
}

// WithCurrent moves the `.` anchor.
func (s *Scope) WithCurrent(path string) *Scope {
	c := s.child()
	c.current = path
	return c
}

// WithBase moves the `~` anchor.
func (s *Scope) WithBase(path string) *Scope {
	c := s.child()
	c.base = path
	return c
}

// WithObject makes obj the innermost object for key lookups.
func (s *Scope) WithObject(obj *document.Object) *Scope {
	c := s.child()
	c.obj = obj
	return c
}

// Lookup implements attrpath.Resolver.
func (s *Scope) Lookup(name string) (string, bool) {
	for c := s; c != nil; c = c.parent {
		if c.name != "" && c.name == name {
			return c.value, true
		}
	}
	return "", false
}

// Base implements attrpath.Resolver.
func (s *Scope) Base() string { return s.base }

// Current implements attrpath.Resolver.
func (s *Scope) Current() string { return s.current }

// Resolve resolves a template against the scope.
func (s *Scope) Resolve(t *attrpath.Template) (string, error) {
	return t.Resolve(s)
}

// Instance describes the chain of bound variables, e.g. "H1/2", for logs
// and reports.
func (s *Scope) Instance() string {
	var parts []string
	for c := s; c != nil; c = c.parent {
		if c.name != "" {
			parts = append(parts, c.value)
		}
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/")
}

// LookupKey finds a dotted key path in the innermost object that has its
// first segment, searching outward.
func (s *Scope) LookupKey(dotted string) (any, bool) {
	head, rest, nested := strings.Cut(dotted, ".")
	for c := s; c != nil; c = c.parent {
		if c.obj == nil {
			continue
		}
		v, ok := c.obj.Get(head)
		if !ok {
			continue
		}
		if !nested {
			return v, true
		}
		for _, seg := range strings.Split(rest, ".") {
			obj, isObj := v.(*document.Object)
			if !isObj {
				return nil, false
			}
			if v, ok = obj.Get(seg); !ok {
				return nil, false
			}
		}
		return v, true
	}
	return nil, false
}

// Active reports whether a when block applies in this scope. A missing
// discriminator deactivates the block.
func (s *Scope) Active(w *config.When) bool {
	v, ok := s.LookupKey(w.Field)
	if !ok {
		return false
	}
	str := Stringify(v)
	if len(w.Equals) > 0 {
		return contains(w.Equals, str)
	}
	return !contains(w.NotEquals, str)
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// Stringify renders a scalar the way discriminators and labels compare it.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}
