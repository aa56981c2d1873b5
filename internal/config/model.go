package config

import "github.com/vk/flowsync/internal/attrpath"

// Model is the unified representation of all loaded section schemas, in
// declaration order.
type Model struct {
	Sections []*Section
}

// Section describes one top-level key of the config document.
type Section struct {
	Name        string
	Description string
	DependsOn   []string
	// ReadOnly sections are extracted but never written.
	ReadOnly bool
	// Results sections hold simulation outputs. They are extracted only on
	// request and never written.
	Results  bool
	Elements []Element
	// Source is the file:line the section was declared at.
	Source string
}

// Writable reports whether the write engine should process the section.
func (s *Section) Writable() bool {
	return !s.ReadOnly && !s.Results
}

// Element is one entry of a section or object body.
type Element interface {
	isElement()
}

// Source selects what a Field reads from its node.
type Source string

const (
	SourceValue      Source = "value"
	SourceRecordType Source = "record_type"
)

// Field maps one node to a document key, optionally with unit and basis keys.
type Field struct {
	Key      string
	Path     *attrpath.Template
	UnitsKey string
	BasisKey string
	Source   Source
	// Match turns the field into a boolean that is true when the node value
	// equals the expanded Match string. Writing true stores that string at
	// Path and every Also path.
	Match    string
	Also     []*attrpath.Template
	ReadOnly bool
}

// HasUnits reports whether the field carries a unit key.
func (f *Field) HasUnits() bool {
	return f.UnitsKey != ""
}

// Keys returns every document key the field may produce.
func (f *Field) Keys() []string {
	keys := []string{f.Key}
	if f.UnitsKey != "" {
		keys = append(keys, f.UnitsKey)
	}
	if f.BasisKey != "" {
		keys = append(keys, f.BasisKey)
	}
	return keys
}

// When gates its elements on the value of a previously extracted key.
type When struct {
	// Field is a dotted key path looked up in the current object first and
	// then outward through the enclosing objects.
	Field     string
	Equals    []string
	NotEquals []string
	Elements  []Element
}

// Object nests elements under a key. An empty Key splices the object's
// value into its parent.
type Object struct {
	Key string
	// Path rebases the current scope node; nil keeps the parent's.
	Path     *attrpath.Template
	AsList   bool
	Elements []Element
}

// Fragments emits a list of single-field objects, one per present field.
type Fragments struct {
	Key    string
	Fields []*Field
}

// Shape is the document form of a collection.
type Shape string

const (
	ShapeMap  Shape = "map"
	ShapeList Shape = "list"
)

// ItemKind is what each collection entry holds.
type ItemKind string

const (
	// ItemObject entries are objects built from the collection's elements.
	ItemObject ItemKind = "object"
	// ItemValue entries are the scalar value at ValuePath.
	ItemValue ItemKind = "value"
	// ItemKey entries are the child label itself.
	ItemKey ItemKind = "key"
)

// CreateMode is how the write engine creates a missing instance.
type CreateMode string

const (
	CreateRow    CreateMode = "row"
	CreateRecord CreateMode = "record"
	CreateNone   CreateMode = "none"
)

// Collection is a dynamic collection whose entries are discovered from the
// children of Path at extraction time and created on demand when writing.
type Collection struct {
	Key  string
	Path *attrpath.Template
	// Var is the variable bound to each entry's key.
	Var string
	// Base, when set, becomes the `~` anchor inside each entry.
	Base     *attrpath.Template
	Shape    Shape
	KeyField string
	Item     ItemKind
	// ValuePath is resolved against the entry node for ItemValue.
	ValuePath *attrpath.Template
	// Reference names a key set provided earlier; entries outside it are skipped.
	Reference string
	// Provides publishes the entry keys under a name for later references.
	Provides         string
	StripSuffix      string
	Dedup            bool
	FilterRecordType []string
	Create           CreateMode
	CreateType       string
	CreateTypeKey    string
	Require          []string
	SortNumeric      bool
	// Inline splices map entries into the enclosing object.
	Inline bool
	// Invert reads two levels, Path/{Var}/{InnerVar}, and emits InnerVar -> Var.
	Invert   bool
	InnerVar string
	// Mirror is a flat InnerVar -> Var view the engine maintains next to an
	// inverted Path. Extraction prefers it; writes only touch Path.
	Mirror   *attrpath.Template
	ReadOnly bool
	Elements []Element
}

// Assign is a write-only constant stored at Path.
type Assign struct {
	Path  *attrpath.Template
	Value any
}

func (*Field) isElement()      {}
func (*When) isElement()       {}
func (*Object) isElement()     {}
func (*Fragments) isElement()  {}
func (*Collection) isElement() {}
func (*Assign) isElement()     {}

// Anonymous reports whether an element replaces its container's value
// instead of adding a key to it.
func Anonymous(e Element) bool {
	switch t := e.(type) {
	case *Object:
		return t.Key == ""
	case *Collection:
		return t.Key == "" && !t.Inline
	}
	return false
}
