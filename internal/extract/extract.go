package extract

import (
	"context"
	"fmt"

	"github.com/vk/flowsync/internal/attrpath"
	"github.com/vk/flowsync/internal/attrstore"
	"github.com/vk/flowsync/internal/config"
	"github.com/vk/flowsync/internal/ctxlog"
	"github.com/vk/flowsync/internal/document"
	"github.com/vk/flowsync/internal/engine"
)

// Engine extracts sections from a store. It holds no per-run state and may be
// shared.
type Engine struct{}

// New creates an extraction engine.
func New() *Engine {
	return &Engine{}
}

// run carries the state of one section extraction.
type run struct {
	store   attrstore.Store
	section *config.Section
	sets    *engine.KeySets
	result  *engine.Result
	depth   int
}

// Extract produces the document value of one section. Instance failures are
// collected in the result; the returned error is non-nil only for fatal
// failures. A failure outside any collection entry leaves the section value
// as an empty object and is recorded as a section-level failure.
func (e *Engine) Extract(ctx context.Context, store attrstore.Store, sec *config.Section, sets *engine.KeySets) (*engine.Result, error) {
	if sets == nil {
		sets = engine.NewKeySets()
	}
	r := &run{
		store:   store,
		section: sec,
		sets:    sets,
		result:  &engine.Result{Section: sec.Name},
	}

	v, err := r.body(ctx, sec.Elements, engine.Root())
	if err != nil {
		if engine.IsFatal(err) {
			return nil, fmt.Errorf("extracting section '%s': %w", sec.Name, err)
		}
		r.fail(ctx, "", err)
		v = document.New()
	}
	r.result.Value = v
	return r.result, nil
}

func (r *run) fail(ctx context.Context, instance string, err error) {
	ctxlog.FromContext(ctx).Warn("Instance extraction failed.", "section", r.section.Name, "instance", instance, "error", err)
	r.result.Failures = append(r.result.Failures, &engine.EntityConversionError{
		Section:  r.section.Name,
		Instance: instance,
		Op:       "extract",
		Err:      err,
	})
}

func (r *run) find(ctx context.Context, t *attrpath.Template, scope *engine.Scope) (attrstore.Node, error) {
	path, err := scope.Resolve(t)
	if err != nil {
		return nil, err
	}
	n, err := r.store.FindNode(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("finding '%s': %w", path, err)
	}
	return n, nil
}

// body builds the value of an element list: the value of its single
// anonymous element, or an object.
func (r *run) body(ctx context.Context, elements []config.Element, scope *engine.Scope) (any, error) {
	if len(elements) == 1 && config.Anonymous(elements[0]) {
		switch t := elements[0].(type) {
		case *config.Object:
			return r.object(ctx, t, scope)
		case *config.Collection:
			return r.collection(ctx, t, scope)
		}
	}
	obj := document.New()
	if err := r.fill(ctx, elements, obj, scope.WithObject(obj)); err != nil {
		return nil, err
	}
	return obj, nil
}

// fill adds the keys of elements to obj in declaration order, so that when
// blocks see every discriminator declared before them.
func (r *run) fill(ctx context.Context, elements []config.Element, obj *document.Object, scope *engine.Scope) error {
	for _, el := range elements {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch t := el.(type) {
		case *config.Field:
			if err := r.field(ctx, t, obj, scope); err != nil {
				return err
			}
		case *config.When:
			if scope.Active(t) {
				if err := r.fill(ctx, t.Elements, obj, scope); err != nil {
					return err
				}
			}
		case *config.Object:
			v, err := r.object(ctx, t, scope)
			if err != nil {
				return err
			}
			obj.Set(t.Key, v)
		case *config.Fragments:
			v, err := r.fragments(ctx, t, scope)
			if err != nil {
				return err
			}
			obj.Set(t.Key, v)
		case *config.Collection:
			if t.Inline {
				if err := r.inline(ctx, t, obj, scope); err != nil {
					return err
				}
				continue
			}
			v, err := r.collection(ctx, t, scope)
			if err != nil {
				return err
			}
			obj.Set(t.Key, v)
		case *config.Assign:
			// write only
		}
	}
	return nil
}

// field applies the sparse field contract: the key appears only when the
// node exists and holds a non-empty value, and the unit and basis keys only
// alongside it.
func (r *run) field(ctx context.Context, f *config.Field, obj *document.Object, scope *engine.Scope) error {
	n, err := r.find(ctx, f.Path, scope)
	if err != nil {
		return err
	}
	if n == nil {
		return nil
	}

	var v any
	if f.Source == config.SourceRecordType {
		v = n.RecordType()
	} else {
		v = n.Value()
	}
	if attrstore.IsEmpty(v) {
		return nil
	}

	if f.Match != "" {
		want, err := attrpath.Expand(f.Match, scope.Lookup)
		if err != nil {
			return fmt.Errorf("field '%s': %w", f.Key, err)
		}
		obj.Set(f.Key, engine.Stringify(v) == want)
		return nil
	}

	obj.Set(f.Key, document.Normalize(v))
	if f.UnitsKey != "" {
		if u := n.UnitString(); u != "" {
			obj.Set(f.UnitsKey, u)
		}
	}
	if f.BasisKey != "" {
		if b := n.Basis(); b != "" {
			obj.Set(f.BasisKey, b)
		}
	}
	return nil
}

func (r *run) object(ctx context.Context, o *config.Object, scope *engine.Scope) (any, error) {
	if o.Path != nil {
		path, err := scope.Resolve(o.Path)
		if err != nil {
			return nil, err
		}
		scope = scope.WithCurrent(path)
	}
	v, err := r.body(ctx, o.Elements, scope)
	if err != nil {
		return nil, err
	}
	if o.AsList {
		return []any{v}, nil
	}
	return v, nil
}

// fragments emits one single-key object per field that has a value.
func (r *run) fragments(ctx context.Context, fr *config.Fragments, scope *engine.Scope) (any, error) {
	out := []any{}
	for _, f := range fr.Fields {
		frag := document.New()
		if err := r.field(ctx, f, frag, scope); err != nil {
			return nil, err
		}
		if frag.Len() > 0 {
			out = append(out, frag)
		}
	}
	return out, nil
}

// inline splices a collection's map entries into the enclosing object.
func (r *run) inline(ctx context.Context, c *config.Collection, obj *document.Object, scope *engine.Scope) error {
	v, err := r.collection(ctx, c, scope)
	if err != nil {
		return err
	}
	entries, ok := v.(*document.Object)
	if !ok {
		return fmt.Errorf("inline collection at '%s' must have map shape", c.Path)
	}
	for _, k := range entries.Keys() {
		if obj.Has(k) {
			continue
		}
		val, _ := entries.Get(k)
		obj.Set(k, val)
	}
	return nil
}

func emptyOf(c *config.Collection) any {
	if c.Shape == config.ShapeList {
		return []any{}
	}
	return document.New()
}

func (r *run) collection(ctx context.Context, c *config.Collection, scope *engine.Scope) (any, error) {
	path, err := scope.Resolve(c.Path)
	if err != nil {
		return nil, err
	}
	parent, err := r.store.FindNode(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("finding '%s': %w", path, err)
	}
	if c.Provides != "" {
		r.sets.Declare(c.Provides)
	}
	if c.Invert {
		return r.inverted(ctx, c, parent, scope)
	}
	if parent == nil {
		return emptyOf(c), nil
	}

	entries, err := engine.Discover(ctx, parent, c, r.sets)
	if err != nil {
		return nil, err
	}

	top := r.depth == 0
	r.depth++
	defer func() { r.depth-- }()

	asMap := c.Shape != config.ShapeList
	mapOut := document.New()
	listOut := []any{}
	for _, entry := range entries {
		if top {
			r.result.Instances++
		}
		itemScope := scope.WithVar(c.Var, entry.Key).WithCurrent(entry.Node.Path())
		if c.Base != nil {
			base, err := itemScope.Resolve(c.Base)
			if err != nil {
				return nil, err
			}
			itemScope = itemScope.WithBase(base)
		}

		v, keep, err := r.entry(ctx, c, entry, itemScope)
		if err != nil {
			if engine.IsFatal(err) {
				return nil, err
			}
			r.fail(ctx, itemScope.Instance(), err)
			if !asMap {
				continue
			}
			v, keep = document.New(), true
		}
		if !keep {
			continue
		}
		if c.Provides != "" {
			r.sets.Add(c.Provides, entry.Key)
		}
		if asMap {
			mapOut.Set(entry.Key, v)
		} else {
			listOut = append(listOut, v)
		}
	}
	if asMap {
		return mapOut, nil
	}
	return listOut, nil
}

// entry builds the value of one collection entry. keep is false when the
// entry has nothing to contribute under the sparse contract.
func (r *run) entry(ctx context.Context, c *config.Collection, entry engine.Entry, scope *engine.Scope) (any, bool, error) {
	switch c.Item {
	case config.ItemKey:
		return entry.Key, true, nil
	case config.ItemValue:
		n, err := r.find(ctx, c.ValuePath, scope)
		if err != nil {
			return nil, false, err
		}
		if n == nil || attrstore.IsEmpty(n.Value()) {
			return nil, false, nil
		}
		return document.Normalize(n.Value()), true, nil
	}

	obj := document.New()
	if c.KeyField != "" {
		obj.Set(c.KeyField, entry.Key)
	}
	if len(c.Elements) == 1 && config.Anonymous(c.Elements[0]) {
		v, err := r.body(ctx, c.Elements, scope)
		return v, err == nil, err
	}
	if err := r.fill(ctx, c.Elements, obj, scope.WithObject(obj)); err != nil {
		return nil, false, err
	}
	for _, k := range c.Require {
		if !obj.Has(k) {
			return nil, false, nil
		}
	}
	return obj, true, nil
}

// inverted reads Path/{Var}/{InnerVar} and emits InnerVar -> Var, e.g. the
// port -> streams layout of a block's connections turned into stream -> port.
// A populated mirror wins over the two-level walk.
func (r *run) inverted(ctx context.Context, c *config.Collection, parent attrstore.Node, scope *engine.Scope) (any, error) {
	if c.Mirror != nil {
		out, err := r.mirrored(ctx, c, scope)
		if err != nil {
			return nil, err
		}
		if out.Len() > 0 {
			return sortKeys(c, out), nil
		}
	}

	out := document.New()
	if parent == nil {
		return out, nil
	}
	outer, err := engine.Discover(ctx, parent, c, r.sets)
	if err != nil {
		return nil, err
	}
	inner := &config.Collection{}
	for _, o := range outer {
		children, err := engine.Discover(ctx, o.Node, inner, r.sets)
		if err != nil {
			return nil, err
		}
		for _, ch := range children {
			if !out.Has(ch.Key) {
				out.Set(ch.Key, o.Key)
			}
		}
	}
	return sortKeys(c, out), nil
}

// mirrored reads the flat view: each child label maps to its value.
func (r *run) mirrored(ctx context.Context, c *config.Collection, scope *engine.Scope) (*document.Object, error) {
	out := document.New()
	n, err := r.find(ctx, c.Mirror, scope)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return out, nil
	}
	children, err := engine.Discover(ctx, n, &config.Collection{}, r.sets)
	if err != nil {
		return nil, err
	}
	for _, ch := range children {
		outer := engine.Stringify(ch.Node.Value())
		if outer == "" || !r.sets.Allows(c.Reference, outer) {
			continue
		}
		if !out.Has(ch.Key) {
			out.Set(ch.Key, outer)
		}
	}
	return out, nil
}

func sortKeys(c *config.Collection, out *document.Object) *document.Object {
	if !c.SortNumeric {
		return out
	}
	keys := out.Keys()
	engine.SortNumeric(keys, func(k string) string { return k })
	sorted := document.New()
	for _, k := range keys {
		v, _ := out.Get(k)
		sorted.Set(k, v)
	}
	return sorted
}
