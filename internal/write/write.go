package write

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/vk/flowsync/internal/attrpath"
	"github.com/vk/flowsync/internal/attrstore"
	"github.com/vk/flowsync/internal/config"
	"github.com/vk/flowsync/internal/ctxlog"
	"github.com/vk/flowsync/internal/document"
	"github.com/vk/flowsync/internal/engine"
	"github.com/vk/flowsync/internal/units"
)

// Engine writes section values into a store.
type Engine struct {
	table *units.Table
}

// New creates a write engine translating units with table.
func New(table *units.Table) *Engine {
	return &Engine{table: table}
}

type run struct {
	table   *units.Table
	store   attrstore.Store
	section *config.Section
	sets    *engine.KeySets
	result  *engine.Result
	depth   int
}

// Write stores one section value. Instance failures are collected in the
// result; the returned error is non-nil only for fatal failures. Read-only
// and results sections are skipped.
func (e *Engine) Write(ctx context.Context, store attrstore.Store, sec *config.Section, value any, sets *engine.KeySets) (*engine.Result, error) {
	if sets == nil {
		sets = engine.NewKeySets()
	}
	r := &run{
		table:   e.table,
		store:   store,
		section: sec,
		sets:    sets,
		result:  &engine.Result{Section: sec.Name},
	}
	if !sec.Writable() {
		return r.result, nil
	}

	if err := r.body(ctx, sec.Elements, document.Normalize(value), engine.Root()); err != nil {
		if engine.IsFatal(err) {
			return nil, fmt.Errorf("writing section '%s': %w", sec.Name, err)
		}
		r.fail(ctx, "", err)
	}
	return r.result, nil
}

func (r *run) fail(ctx context.Context, instance string, err error) {
	ctxlog.FromContext(ctx).Warn("Instance write failed.", "section", r.section.Name, "instance", instance, "error", err)
	r.result.Failures = append(r.result.Failures, &engine.EntityConversionError{
		Section:  r.section.Name,
		Instance: instance,
		Op:       "write",
		Err:      err,
	})
}

func (r *run) ensure(ctx context.Context, t *attrpath.Template, scope *engine.Scope) (attrstore.Node, error) {
	path, err := scope.Resolve(t)
	if err != nil {
		return nil, err
	}
	return ensurePath(ctx, r.store, path)
}

func (r *run) body(ctx context.Context, elements []config.Element, value any, scope *engine.Scope) error {
	if len(elements) == 1 && config.Anonymous(elements[0]) {
		switch t := elements[0].(type) {
		case *config.Object:
			return r.object(ctx, t, value, scope)
		case *config.Collection:
			return r.collection(ctx, t, value, scope)
		}
	}
	obj, ok := value.(*document.Object)
	if !ok {
		return fmt.Errorf("expected an object, got %T", value)
	}
	return r.fill(ctx, elements, obj, scope.WithObject(obj))
}

func (r *run) fill(ctx context.Context, elements []config.Element, obj *document.Object, scope *engine.Scope) error {
	var claimed map[string]bool
	for _, el := range elements {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		switch t := el.(type) {
		case *config.Field:
			err = r.field(ctx, t, obj, scope)
		case *config.When:
			if scope.Active(t) {
				err = r.fill(ctx, t.Elements, obj, scope)
			}
		case *config.Object:
			if v, ok := obj.Get(t.Key); ok {
				err = r.object(ctx, t, v, scope)
			}
		case *config.Fragments:
			if v, ok := obj.Get(t.Key); ok {
				err = r.fragments(ctx, t, v, scope)
			}
		case *config.Collection:
			if t.Inline {
				if claimed == nil {
					claimed = engine.ClaimedKeys(elements)
				}
				rest := document.New()
				for _, k := range obj.Keys() {
					if !claimed[k] {
						v, _ := obj.Get(k)
						rest.Set(k, v)
					}
				}
				err = r.collection(ctx, t, rest, scope)
			} else if v, ok := obj.Get(t.Key); ok {
				err = r.collection(ctx, t, v, scope)
			}
		case *config.Assign:
			err = r.assign(ctx, t, scope)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// field runs the per-field state machine: no value skips, a value alone is
// set, a unit translates through the unit table, and a basis without a unit
// keeps the node's unit.
func (r *run) field(ctx context.Context, f *config.Field, obj *document.Object, scope *engine.Scope) error {
	if f.ReadOnly || f.Source == config.SourceRecordType {
		return nil
	}
	v, ok := obj.Get(f.Key)
	if !ok || attrstore.IsEmpty(v) {
		return nil
	}

	if f.Match != "" {
		return r.match(ctx, f, v, scope)
	}

	unit := stringKey(obj, f.UnitsKey)
	basis := stringKey(obj, f.BasisKey)

	var code units.Code
	if unit != "" {
		c, err := r.table.ToCode(unit)
		if err != nil {
			return fmt.Errorf("field '%s': %w", f.Key, err)
		}
		code = c
	}

	n, err := r.ensure(ctx, f.Path, scope)
	if err != nil {
		return fmt.Errorf("field '%s': %w", f.Key, err)
	}
	switch {
	case basis != "":
		err = n.SetValueUnitAndBasis(ctx, v, code, basis)
	case unit != "":
		err = n.SetValueAndUnit(ctx, v, code)
	default:
		err = n.SetValue(ctx, v)
	}
	if err != nil {
		return fmt.Errorf("field '%s' at '%s': %w", f.Key, n.Path(), err)
	}
	return nil
}

func stringKey(obj *document.Object, key string) string {
	if key == "" {
		return ""
	}
	v, ok := obj.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// match stores the expanded match string at the field path and every also
// path when the document says true.
func (r *run) match(ctx context.Context, f *config.Field, v any, scope *engine.Scope) error {
	b, ok := v.(bool)
	if !ok {
		return fmt.Errorf("field '%s' must be a boolean, got %T", f.Key, v)
	}
	if !b {
		return nil
	}
	want, err := attrpath.Expand(f.Match, scope.Lookup)
	if err != nil {
		return fmt.Errorf("field '%s': %w", f.Key, err)
	}
	for _, t := range append([]*attrpath.Template{f.Path}, f.Also...) {
		n, err := r.ensure(ctx, t, scope)
		if err != nil {
			return fmt.Errorf("field '%s': %w", f.Key, err)
		}
		if err := n.SetValue(ctx, want); err != nil {
			return fmt.Errorf("field '%s' at '%s': %w", f.Key, n.Path(), err)
		}
	}
	return nil
}

func (r *run) assign(ctx context.Context, a *config.Assign, scope *engine.Scope) error {
	n, err := r.ensure(ctx, a.Path, scope)
	if err != nil {
		return fmt.Errorf("assign '%s': %w", a.Path, err)
	}
	if err := n.SetValue(ctx, a.Value); err != nil {
		return fmt.Errorf("assign '%s': %w", a.Path, err)
	}
	return nil
}

func (r *run) object(ctx context.Context, o *config.Object, value any, scope *engine.Scope) error {
	if o.AsList {
		list, ok := value.([]any)
		if !ok {
			return fmt.Errorf("object '%s' expects a one-element list, got %T", o.Key, value)
		}
		if len(list) == 0 {
			return nil
		}
		value = list[0]
	}
	if o.Path != nil {
		path, err := scope.Resolve(o.Path)
		if err != nil {
			return err
		}
		scope = scope.WithCurrent(path)
	}
	return r.body(ctx, o.Elements, value, scope)
}

// fragments writes each one-key object through the field whose key it holds.
func (r *run) fragments(ctx context.Context, fr *config.Fragments, value any, scope *engine.Scope) error {
	list, ok := value.([]any)
	if !ok {
		return fmt.Errorf("'%s' must be a list, got %T", fr.Key, value)
	}
	for i, item := range list {
		frag, ok := item.(*document.Object)
		if !ok {
			return fmt.Errorf("'%s' item %d must be an object, got %T", fr.Key, i, item)
		}
		matched := false
		for _, f := range fr.Fields {
			if !frag.Has(f.Key) {
				continue
			}
			matched = true
			if err := r.field(ctx, f, frag, scope); err != nil {
				return err
			}
		}
		if !matched {
			return fmt.Errorf("'%s' item %d has no known key (keys: %v)", fr.Key, i, frag.Keys())
		}
	}
	return nil
}

// item is one collection entry as found in the document.
type item struct {
	key   string
	value any
}

func (r *run) items(c *config.Collection, value any) ([]item, error) {
	if c.Shape != config.ShapeList {
		obj, ok := value.(*document.Object)
		if !ok {
			return nil, fmt.Errorf("collection '%s' expects an object, got %T", c.Key, value)
		}
		out := make([]item, 0, obj.Len())
		for _, k := range obj.Keys() {
			v, _ := obj.Get(k)
			out = append(out, item{key: k, value: v})
		}
		return out, nil
	}

	list, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("collection '%s' expects a list, got %T", c.Key, value)
	}
	out := make([]item, 0, len(list))
	for i, v := range list {
		switch {
		case c.Item == config.ItemKey:
			out = append(out, item{key: engine.Stringify(v), value: v})
		case c.KeyField != "":
			obj, ok := v.(*document.Object)
			if !ok {
				return nil, fmt.Errorf("collection '%s' item %d must be an object, got %T", c.Key, i, v)
			}
			k, ok := obj.Get(c.KeyField)
			if !ok || attrstore.IsEmpty(k) {
				return nil, fmt.Errorf("collection '%s' item %d has no '%s'", c.Key, i, c.KeyField)
			}
			out = append(out, item{key: engine.Stringify(k), value: v})
		default:
			out = append(out, item{key: strconv.Itoa(i + 1), value: v})
		}
	}
	return out, nil
}

func (r *run) collection(ctx context.Context, c *config.Collection, value any, scope *engine.Scope) error {
	if c.ReadOnly {
		return nil
	}
	path, err := scope.Resolve(c.Path)
	if err != nil {
		return err
	}
	items, err := r.items(c, value)
	if err != nil {
		return err
	}
	if c.Provides != "" {
		r.sets.Declare(c.Provides)
	}

	var parent attrstore.Node
	if c.Create == config.CreateNone {
		if parent, err = r.store.FindNode(ctx, path); err != nil {
			return fmt.Errorf("finding '%s': %w", path, err)
		}
		if parent == nil && len(items) > 0 {
			return fmt.Errorf("collection node '%s' does not exist", path)
		}
	} else if len(items) > 0 {
		if parent, err = ensurePath(ctx, r.store, path); err != nil {
			return err
		}
	}

	if c.Invert {
		return r.inverted(ctx, c, parent, items)
	}

	top := r.depth == 0
	r.depth++
	defer func() { r.depth-- }()

	for _, it := range items {
		if !r.sets.Allows(c.Reference, it.key) {
			ctxlog.FromContext(ctx).Debug("Skipping entry outside reference set.", "section", r.section.Name, "reference", c.Reference, "key", it.key)
			continue
		}
		if k := missingRequired(c, it.value); k != "" {
			ctxlog.FromContext(ctx).Debug("Skipping entry without required key.", "section", r.section.Name, "key", it.key, "required", k)
			continue
		}
		if top {
			r.result.Instances++
		}
		itemScope := scope.WithVar(c.Var, it.key)
		err := r.entry(ctx, c, parent, it, itemScope)
		if err != nil {
			if engine.IsFatal(err) {
				return err
			}
			r.fail(ctx, itemScope.Instance(), err)
			continue
		}
		if c.Provides != "" {
			r.sets.Add(c.Provides, it.key)
		}
	}
	return nil
}

// missingRequired returns the first required key an object item lacks or
// holds empty.
func missingRequired(c *config.Collection, value any) string {
	obj, ok := value.(*document.Object)
	if !ok {
		return ""
	}
	for _, k := range c.Require {
		if v, _ := obj.Get(k); attrstore.IsEmpty(v) {
			return k
		}
	}
	return ""
}

func (r *run) entry(ctx context.Context, c *config.Collection, parent attrstore.Node, it item, scope *engine.Scope) error {
	label := it.key

	var n attrstore.Node
	var err error
	switch c.Create {
	case config.CreateRecord:
		recordType := c.CreateType
		if c.CreateTypeKey != "" {
			if obj, ok := it.value.(*document.Object); ok {
				if s := stringKey(obj, c.CreateTypeKey); s != "" {
					recordType = s
				}
			}
		}
		n, err = ensureRecord(ctx, parent, label, recordType)
	case config.CreateNone:
		if n, err = parent.Elements().Item(ctx, label); err == nil && n == nil {
			err = fmt.Errorf("instance '%s' does not exist under '%s'", label, parent.Path())
		}
	default:
		n, err = ensureChild(ctx, parent, label)
	}
	if err != nil {
		return err
	}
	if len(c.FilterRecordType) > 0 && !slices.Contains(c.FilterRecordType, n.RecordType()) {
		return fmt.Errorf("'%s' has record type '%s', expected one of %v", n.Path(), n.RecordType(), c.FilterRecordType)
	}

	scope = scope.WithCurrent(n.Path())
	if c.Base != nil {
		base, err := scope.Resolve(c.Base)
		if err != nil {
			return err
		}
		scope = scope.WithBase(base)
	}

	switch c.Item {
	case config.ItemKey:
		return nil
	case config.ItemValue:
		if attrstore.IsEmpty(it.value) {
			return nil
		}
		target, err := r.ensure(ctx, c.ValuePath, scope)
		if err != nil {
			return err
		}
		return target.SetValue(ctx, it.value)
	}

	if len(c.Elements) == 1 && config.Anonymous(c.Elements[0]) {
		return r.body(ctx, c.Elements, it.value, scope)
	}
	obj, ok := it.value.(*document.Object)
	if !ok {
		return fmt.Errorf("expected an object, got %T", it.value)
	}
	return r.fill(ctx, c.Elements, obj, scope.WithObject(obj))
}

// inverted writes inner -> outer pairs back as Path/outer/inner children.
func (r *run) inverted(ctx context.Context, c *config.Collection, parent attrstore.Node, items []item) error {
	for _, it := range items {
		outer := engine.Stringify(it.value)
		if outer == "" {
			continue
		}
		n, err := ensureChild(ctx, parent, outer)
		if err != nil {
			return err
		}
		if _, err := ensureChild(ctx, n, it.key); err != nil {
			return err
		}
	}
	return nil
}
