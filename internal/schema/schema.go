// Package schema holds the HCL struct-tag definitions of the section schema
// files. Element bodies are decoded block by block, in source order, so the
// nested element blocks are listed in ElementsSchema instead of as struct
// fields.
package schema

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// File is the top-level structure of a schema file.
type File struct {
	Sections []*Section `hcl:"section,block"`
}

// Section is a `section` block.
type Section struct {
	Name        string   `hcl:"name,label"`
	Description string   `hcl:"description,optional"`
	DependsOn   []string `hcl:"depends_on,optional"`
	ReadOnly    bool     `hcl:"read_only,optional"`
	Results     bool     `hcl:"results,optional"`
	Body        hcl.Body `hcl:",remain"`
}

// Field is a `field` block.
type Field struct {
	Key      string   `hcl:"key,label"`
	Path     *string  `hcl:"path,optional"`
	Units    string   `hcl:"units,optional"`
	Basis    string   `hcl:"basis,optional"`
	Source   string   `hcl:"source,optional"`
	Match    string   `hcl:"match,optional"`
	Also     []string `hcl:"also,optional"`
	ReadOnly bool     `hcl:"read_only,optional"`
}

// When is a `when` block gating its nested elements.
type When struct {
	Field     string   `hcl:"field,label"`
	Equals    []string `hcl:"equals,optional"`
	NotEquals []string `hcl:"not_equals,optional"`
	Body      hcl.Body `hcl:",remain"`
}

// Object is an `object` block.
type Object struct {
	Key    string   `hcl:"key,label"`
	Path   string   `hcl:"path,optional"`
	AsList bool     `hcl:"as_list,optional"`
	Body   hcl.Body `hcl:",remain"`
}

// Fragments is a `fragments` block. Only fields may be nested in it.
type Fragments struct {
	Key    string   `hcl:"key,label"`
	Fields []*Field `hcl:"field,block"`
}

// Collection is a `collection` block.
type Collection struct {
	Key              string   `hcl:"key,label"`
	Path             string   `hcl:"path"`
	Var              string   `hcl:"var,optional"`
	Base             string   `hcl:"base,optional"`
	Shape            string   `hcl:"shape,optional"`
	KeyField         string   `hcl:"key_field,optional"`
	Item             string   `hcl:"item,optional"`
	ValuePath        string   `hcl:"value_path,optional"`
	Reference        string   `hcl:"reference,optional"`
	Provides         string   `hcl:"provides,optional"`
	StripSuffix      string   `hcl:"strip_suffix,optional"`
	Dedup            bool     `hcl:"dedup,optional"`
	FilterRecordType []string `hcl:"filter_record_type,optional"`
	Create           string   `hcl:"create,optional"`
	CreateType       string   `hcl:"create_type,optional"`
	CreateTypeKey    string   `hcl:"create_type_key,optional"`
	Require          []string `hcl:"require,optional"`
	Sort             string   `hcl:"sort,optional"`
	Inline           bool     `hcl:"inline,optional"`
	Invert           bool     `hcl:"invert,optional"`
	InnerVar         string   `hcl:"inner_var,optional"`
	Mirror           string   `hcl:"mirror,optional"`
	ReadOnly         bool     `hcl:"read_only,optional"`
	Body             hcl.Body `hcl:",remain"`
}

// Assign is an `assign` block: a constant written to a path.
type Assign struct {
	Path  string    `hcl:"path,label"`
	Value cty.Value `hcl:"value"`
}

// ElementsSchema lists the element blocks allowed inside a section, object,
// collection or when body.
var ElementsSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "field", LabelNames: []string{"key"}},
		{Type: "when", LabelNames: []string{"field"}},
		{Type: "object", LabelNames: []string{"key"}},
		{Type: "fragments", LabelNames: []string{"key"}},
		{Type: "collection", LabelNames: []string{"key"}},
		{Type: "assign", LabelNames: []string{"path"}},
	},
}
