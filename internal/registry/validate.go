package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/flowsync/internal/attrpath"
	"github.com/vk/flowsync/internal/config"
	"github.com/vk/flowsync/internal/ctxlog"
)

// ValidateRegistry orders the sections and checks every schema. All problems
// are collected into a single error.
func (r *Registry) ValidateRegistry(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	graph, errs := r.buildGraph()
	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}

	priority := make([]string, 0, len(r.declared))
	for _, s := range r.declared {
		priority = append(priority, s.Name)
	}
	order, err := graph.TopoSort(priority)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOrderingViolation, err)
	}

	providers := make(map[string]string)
	for _, s := range r.declared {
		for _, name := range providedSets(s.Elements) {
			if prev, ok := providers[name]; ok && prev != s.Name {
				errs = append(errs, fmt.Sprintf("key set '%s' is provided by both '%s' and '%s'", name, prev, s.Name))
				continue
			}
			providers[name] = s.Name
		}
	}

	for _, s := range r.declared {
		ancestors, err := graph.Ancestors(s.Name)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		v := &validator{section: s, providers: providers, ancestors: ancestors, local: make(map[string]bool)}
		v.elements(s.Elements, &vscope{keys: map[string]bool{}, vars: map[string]bool{}})
		errs = append(errs, v.errs...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}

	r.graph = graph
	r.ordered = r.ordered[:0]
	for _, name := range order {
		r.ordered = append(r.ordered, r.byName[name])
	}
	logger.Debug("Registry validation passed.", "sections", len(r.ordered))
	return nil
}

func providedSets(elements []config.Element) []string {
	var out []string
	for _, e := range elements {
		switch t := e.(type) {
		case *config.Collection:
			if t.Provides != "" {
				out = append(out, t.Provides)
			}
			out = append(out, providedSets(t.Elements)...)
		case *config.Object:
			out = append(out, providedSets(t.Elements)...)
		case *config.When:
			out = append(out, providedSets(t.Elements)...)
		}
	}
	return out
}

// vscope tracks what is visible at one nesting level while validating.
type vscope struct {
	parent *vscope
	keys   map[string]bool
	vars   map[string]bool
}

func (s *vscope) child() *vscope {
	return &vscope{parent: s, keys: map[string]bool{}, vars: map[string]bool{}}
}

func (s *vscope) hasKey(k string) bool {
	for c := s; c != nil; c = c.parent {
		if c.keys[k] {
			return true
		}
	}
	return false
}

func (s *vscope) hasVar(v string) bool {
	for c := s; c != nil; c = c.parent {
		if c.vars[v] {
			return true
		}
	}
	return false
}

type validator struct {
	section   *config.Section
	providers map[string]string
	ancestors map[string]bool
	// local holds key sets provided earlier in the same section.
	local map[string]bool
	errs  []string
}

func (v *validator) errorf(format string, args ...any) {
	v.errs = append(v.errs, fmt.Sprintf("section '%s': ", v.section.Name)+fmt.Sprintf(format, args...))
}

func (v *validator) template(t *attrpath.Template, scope *vscope, what string) {
	if t == nil {
		return
	}
	for _, name := range t.Vars() {
		if !scope.hasVar(name) {
			v.errorf("%s %q uses unbound variable '%s'", what, t.String(), name)
		}
	}
}

func (v *validator) elements(elements []config.Element, scope *vscope) {
	anonymous := 0
	for _, e := range elements {
		if config.Anonymous(e) {
			anonymous++
		}
	}
	if anonymous > 0 && len(elements) > 1 {
		v.errorf("an unnamed object or collection must be the only element of its body")
	}

	for _, e := range elements {
		switch t := e.(type) {
		case *config.Field:
			v.field(t, scope)
		case *config.Fragments:
			for _, f := range t.Fields {
				v.field(f, scope)
			}
			scope.keys[t.Key] = true
		case *config.When:
			head, _, _ := strings.Cut(t.Field, ".")
			if !scope.hasKey(head) {
				v.errorf("when '%s' refers to a key that is not extracted before it", t.Field)
			}
			// Branches are mutually exclusive, so their keys may repeat.
			branch := &vscope{parent: scope, keys: map[string]bool{}, vars: map[string]bool{}}
			v.elements(t.Elements, branch)
			for k := range branch.keys {
				scope.keys[k] = true
			}
		case *config.Object:
			v.template(t.Path, scope, "object path")
			inner := scope.child()
			v.elements(t.Elements, inner)
			if t.Key != "" {
				scope.keys[t.Key] = true
			}
		case *config.Collection:
			v.collection(t, scope)
		case *config.Assign:
			v.template(t.Path, scope, "assign path")
		}
	}
}

func (v *validator) field(f *config.Field, scope *vscope) {
	v.template(f.Path, scope, fmt.Sprintf("field '%s' path", f.Key))
	for _, a := range f.Also {
		v.template(a, scope, fmt.Sprintf("field '%s' also path", f.Key))
	}
	for _, name := range attrpath.Vars(f.Match) {
		if !scope.hasVar(name) {
			v.errorf("field '%s' match uses unbound variable '%s'", f.Key, name)
		}
	}
	for _, k := range f.Keys() {
		if scope.keys[k] {
			v.errorf("key '%s' is declared twice in the same object", k)
		}
		scope.keys[k] = true
	}
}

func (v *validator) collection(c *config.Collection, scope *vscope) {
	name := c.Key
	if name == "" {
		name = "(unnamed)"
	}
	v.template(c.Path, scope, fmt.Sprintf("collection '%s' path", name))

	inner := scope.child()
	for _, bound := range []string{c.Var, c.InnerVar} {
		if bound == "" {
			continue
		}
		if scope.hasVar(bound) {
			v.errorf("collection '%s' variable '%s' shadows an outer variable", name, bound)
		}
		inner.vars[bound] = true
	}
	v.template(c.Base, inner, fmt.Sprintf("collection '%s' base", name))
	v.template(c.ValuePath, inner, fmt.Sprintf("collection '%s' value_path", name))
	v.template(c.Mirror, scope, fmt.Sprintf("collection '%s' mirror", name))

	if c.Reference != "" {
		provider, ok := v.providers[c.Reference]
		switch {
		case !ok:
			v.errorf("collection '%s' references unknown key set '%s'", name, c.Reference)
		case provider == v.section.Name:
			if !v.local[c.Reference] {
				v.errorf("collection '%s' references key set '%s' before it is provided", name, c.Reference)
			}
		case !v.ancestors[provider]:
			v.errorf("collection '%s' references key set '%s' but does not depend on section '%s'", name, c.Reference, provider)
		}
	}

	if c.KeyField != "" {
		inner.keys[c.KeyField] = true
	}
	v.elements(c.Elements, inner)
	for _, req := range c.Require {
		if !inner.keys[req] {
			v.errorf("collection '%s' requires key '%s' which its items never produce", name, req)
		}
	}
	if c.CreateTypeKey != "" && !inner.keys[c.CreateTypeKey] {
		v.errorf("collection '%s' create_type_key '%s' is not an item key", name, c.CreateTypeKey)
	}

	if c.Provides != "" {
		v.local[c.Provides] = true
	}
	if c.Key != "" {
		scope.keys[c.Key] = true
	}
}
