package hcl

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/vk/flowsync/internal/attrpath"
	"github.com/vk/flowsync/internal/config"
	"github.com/vk/flowsync/internal/schema"
	"github.com/zclconf/go-cty/cty"
)

// translateSection converts a decoded section block into the agnostic model.
func translateSection(s *schema.Section) (*config.Section, hcl.Diagnostics) {
	elements, diags := translateBody(s.Body)
	if diags.HasErrors() {
		return nil, diags
	}
	return &config.Section{
		Name:        s.Name,
		Description: s.Description,
		DependsOn:   s.DependsOn,
		ReadOnly:    s.ReadOnly,
		Results:     s.Results,
		Elements:    elements,
		Source:      s.Body.MissingItemRange().Filename,
	}, nil
}

// translateBody decodes the element blocks of a body in source order.
func translateBody(body hcl.Body) ([]config.Element, hcl.Diagnostics) {
	content, diags := body.Content(schema.ElementsSchema)
	if diags.HasErrors() {
		return nil, diags
	}

	var out []config.Element
	for _, blk := range content.Blocks {
		var el config.Element
		var d hcl.Diagnostics

		switch blk.Type {
		case "field":
			var f schema.Field
			if d = gohcl.DecodeBody(blk.Body, nil, &f); !d.HasErrors() {
				f.Key = blk.Labels[0]
				el, d = translateField(&f, blk.DefRange)
			}
		case "when":
			var w schema.When
			if d = gohcl.DecodeBody(blk.Body, nil, &w); !d.HasErrors() {
				w.Field = blk.Labels[0]
				el, d = translateWhen(&w, blk.DefRange)
			}
		case "object":
			var o schema.Object
			if d = gohcl.DecodeBody(blk.Body, nil, &o); !d.HasErrors() {
				o.Key = blk.Labels[0]
				el, d = translateObject(&o, blk.DefRange)
			}
		case "fragments":
			var fr schema.Fragments
			if d = gohcl.DecodeBody(blk.Body, nil, &fr); !d.HasErrors() {
				fr.Key = blk.Labels[0]
				el, d = translateFragments(&fr, blk.DefRange)
			}
		case "collection":
			var c schema.Collection
			if d = gohcl.DecodeBody(blk.Body, nil, &c); !d.HasErrors() {
				c.Key = blk.Labels[0]
				el, d = translateCollection(&c, blk.DefRange)
			}
		case "assign":
			var a schema.Assign
			if d = gohcl.DecodeBody(blk.Body, nil, &a); !d.HasErrors() {
				a.Path = blk.Labels[0]
				el, d = translateAssign(&a, blk.DefRange)
			}
		}

		diags = append(diags, d...)
		if el != nil {
			out = append(out, el)
		}
	}
	return out, diags
}

func translateField(f *schema.Field, rng hcl.Range) (*config.Field, hcl.Diagnostics) {
	if f.Key == "" {
		return nil, hcl.Diagnostics{diagnostic(rng, "Invalid field", fmt.Errorf("field key cannot be empty"))}
	}

	raw := "~/" + strings.TrimSuffix(f.Key, "_VALUE")
	if f.Path != nil {
		raw = *f.Path
	}
	tpl, err := attrpath.ParseTemplate(raw)
	if err != nil {
		return nil, hcl.Diagnostics{diagnostic(rng, "Invalid field path", err)}
	}

	out := &config.Field{
		Key:      f.Key,
		Path:     tpl,
		UnitsKey: f.Units,
		BasisKey: f.Basis,
		Source:   config.SourceValue,
		Match:    f.Match,
		ReadOnly: f.ReadOnly,
	}
	switch f.Source {
	case "", string(config.SourceValue):
	case string(config.SourceRecordType):
		out.Source = config.SourceRecordType
	default:
		return nil, hcl.Diagnostics{diagnostic(rng, "Invalid field source", fmt.Errorf("source must be 'value' or 'record_type', got %q", f.Source))}
	}
	for _, a := range f.Also {
		t, err := attrpath.ParseTemplate(a)
		if err != nil {
			return nil, hcl.Diagnostics{diagnostic(rng, "Invalid field also path", err)}
		}
		out.Also = append(out.Also, t)
	}
	if len(out.Also) > 0 && out.Match == "" {
		return nil, hcl.Diagnostics{diagnostic(rng, "Invalid field", fmt.Errorf("field %q: 'also' requires 'match'", f.Key))}
	}
	return out, nil
}

func translateWhen(w *schema.When, rng hcl.Range) (*config.When, hcl.Diagnostics) {
	if len(w.Equals) == 0 && len(w.NotEquals) == 0 {
		return nil, hcl.Diagnostics{diagnostic(rng, "Invalid when block", fmt.Errorf("when %q needs 'equals' or 'not_equals'", w.Field))}
	}
	elements, diags := translateBody(w.Body)
	if diags.HasErrors() {
		return nil, diags
	}
	return &config.When{
		Field:     w.Field,
		Equals:    w.Equals,
		NotEquals: w.NotEquals,
		Elements:  elements,
	}, nil
}

func translateObject(o *schema.Object, rng hcl.Range) (*config.Object, hcl.Diagnostics) {
	out := &config.Object{Key: o.Key, AsList: o.AsList}
	if o.Path != "" {
		tpl, err := attrpath.ParseTemplate(o.Path)
		if err != nil {
			return nil, hcl.Diagnostics{diagnostic(rng, "Invalid object path", err)}
		}
		out.Path = tpl
	}
	elements, diags := translateBody(o.Body)
	if diags.HasErrors() {
		return nil, diags
	}
	out.Elements = elements
	return out, nil
}

func translateFragments(fr *schema.Fragments, rng hcl.Range) (*config.Fragments, hcl.Diagnostics) {
	if fr.Key == "" {
		return nil, hcl.Diagnostics{diagnostic(rng, "Invalid fragments block", fmt.Errorf("fragments key cannot be empty"))}
	}
	out := &config.Fragments{Key: fr.Key}
	for _, f := range fr.Fields {
		field, diags := translateField(f, rng)
		if diags.HasErrors() {
			return nil, diags
		}
		out.Fields = append(out.Fields, field)
	}
	return out, nil
}

func translateCollection(c *schema.Collection, rng hcl.Range) (*config.Collection, hcl.Diagnostics) {
	fail := func(err error) (*config.Collection, hcl.Diagnostics) {
		return nil, hcl.Diagnostics{diagnostic(rng, "Invalid collection", fmt.Errorf("collection %q: %w", c.Key, err))}
	}

	out := &config.Collection{
		Key:              c.Key,
		Var:              c.Var,
		KeyField:         c.KeyField,
		Reference:        c.Reference,
		Provides:         c.Provides,
		StripSuffix:      c.StripSuffix,
		Dedup:            c.Dedup,
		FilterRecordType: c.FilterRecordType,
		CreateType:       c.CreateType,
		CreateTypeKey:    c.CreateTypeKey,
		Require:          c.Require,
		Inline:           c.Inline,
		Invert:           c.Invert,
		InnerVar:         c.InnerVar,
		ReadOnly:         c.ReadOnly,
	}

	var err error
	if out.Path, err = attrpath.ParseTemplate(c.Path); err != nil {
		return fail(err)
	}
	if c.Base != "" {
		if out.Base, err = attrpath.ParseTemplate(c.Base); err != nil {
			return fail(err)
		}
	}
	if c.Mirror != "" {
		if !c.Invert {
			return fail(fmt.Errorf("mirror requires invert"))
		}
		if out.Mirror, err = attrpath.ParseTemplate(c.Mirror); err != nil {
			return fail(err)
		}
	}
	valuePath := c.ValuePath
	if valuePath == "" {
		valuePath = "."
	}
	if out.ValuePath, err = attrpath.ParseTemplate(valuePath); err != nil {
		return fail(err)
	}

	switch config.Shape(c.Shape) {
	case "", config.ShapeMap:
		out.Shape = config.ShapeMap
	case config.ShapeList:
		out.Shape = config.ShapeList
	default:
		return fail(fmt.Errorf("shape must be 'map' or 'list', got %q", c.Shape))
	}

	switch config.CreateMode(c.Create) {
	case "", config.CreateRow:
		out.Create = config.CreateRow
	case config.CreateRecord, config.CreateNone:
		out.Create = config.CreateMode(c.Create)
	default:
		return fail(fmt.Errorf("create must be 'row', 'record' or 'none', got %q", c.Create))
	}

	switch c.Sort {
	case "":
	case "numeric":
		out.SortNumeric = true
	default:
		return fail(fmt.Errorf("sort must be 'numeric', got %q", c.Sort))
	}

	elements, diags := translateBody(c.Body)
	if diags.HasErrors() {
		return nil, diags
	}
	out.Elements = elements

	switch config.ItemKind(c.Item) {
	case "":
		out.Item = config.ItemValue
		if len(elements) > 0 {
			out.Item = config.ItemObject
		}
	case config.ItemObject, config.ItemValue, config.ItemKey:
		out.Item = config.ItemKind(c.Item)
	default:
		return fail(fmt.Errorf("item must be 'object', 'value' or 'key', got %q", c.Item))
	}

	switch {
	case out.Item != config.ItemObject && len(elements) > 0:
		return fail(fmt.Errorf("only object items may declare elements"))
	case out.Inline && out.Shape != config.ShapeMap:
		return fail(fmt.Errorf("inline collections must have map shape"))
	case out.Invert && (out.InnerVar == "" || out.Item != config.ItemValue):
		return fail(fmt.Errorf("invert requires 'inner_var' and value items"))
	case out.KeyField != "" && (out.Shape != config.ShapeList || out.Item != config.ItemObject):
		return fail(fmt.Errorf("key_field applies to lists of objects only"))
	case out.Create == config.CreateRecord && out.CreateType == "" && out.CreateTypeKey == "":
		return fail(fmt.Errorf("record creation needs 'create_type' or 'create_type_key'"))
	}
	return out, nil
}

func translateAssign(a *schema.Assign, rng hcl.Range) (*config.Assign, hcl.Diagnostics) {
	tpl, err := attrpath.ParseTemplate(a.Path)
	if err != nil {
		return nil, hcl.Diagnostics{diagnostic(rng, "Invalid assign path", err)}
	}
	v, err := ctyToGo(a.Value)
	if err != nil {
		return nil, hcl.Diagnostics{diagnostic(rng, "Invalid assign value", err)}
	}
	return &config.Assign{Path: tpl, Value: v}, nil
}

// ctyToGo converts a primitive cty value to the document value space.
func ctyToGo(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, fmt.Errorf("value must be a known, non-null primitive")
	}
	switch v.Type() {
	case cty.String:
		return v.AsString(), nil
	case cty.Number:
		f, _ := v.AsBigFloat().Float64()
		return f, nil
	case cty.Bool:
		return v.True(), nil
	default:
		return nil, fmt.Errorf("value must be a string, number or bool, got %s", v.Type().FriendlyName())
	}
}

func diagnostic(rng hcl.Range, summary string, err error) *hcl.Diagnostic {
	return &hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  summary,
		Detail:   err.Error(),
		Subject:  rng.Ptr(),
	}
}
