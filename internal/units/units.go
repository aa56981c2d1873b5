package units

import (
	"fmt"
	"sort"
	"strings"
)

// Code is the engine's internal identifier for a unit: the physical quantity
// plus the unit's index within that quantity. The zero Code means "keep the
// node's current unit".
type Code struct {
	Quantity string `json:"quantity"`
	Index    int    `json:"index"`
}

// IsZero reports whether c is the keep-current-unit code.
func (c Code) IsZero() bool {
	return c.Quantity == "" && c.Index == 0
}

func (c Code) String() string {
	if c.IsZero() {
		return "-"
	}
	return fmt.Sprintf("%s:%d", c.Quantity, c.Index)
}

// UnknownUnitError is returned when a literal unit string has no mapping.
type UnknownUnitError struct {
	Unit string
}

func (e *UnknownUnitError) Error() string {
	return fmt.Sprintf("unknown unit %q", e.Unit)
}

// Entry is one row of a Table.
type Entry struct {
	Unit string
	Code Code
}

// Table is a bidirectional unit string <-> Code mapping.
type Table struct {
	byUnit  map[string]Code
	byCode  map[Code]string
	entries []Entry
}

// NewTable builds a Table, rejecting duplicate unit strings and duplicate codes.
func NewTable(entries []Entry) (*Table, error) {
	t := &Table{
		byUnit: make(map[string]Code, len(entries)),
		byCode: make(map[Code]string, len(entries)),
	}

	var errs []string
	for _, e := range entries {
		switch {
		case e.Unit == "":
			errs = append(errs, fmt.Sprintf("entry with code %s has an empty unit string", e.Code))
			continue
		case e.Code.Quantity == "" || e.Code.Index <= 0:
			errs = append(errs, fmt.Sprintf("unit %q has an invalid code %s", e.Unit, e.Code))
			continue
		}
		if prev, ok := t.byUnit[e.Unit]; ok {
			errs = append(errs, fmt.Sprintf("unit %q is mapped twice (%s and %s)", e.Unit, prev, e.Code))
			continue
		}
		if prev, ok := t.byCode[e.Code]; ok {
			errs = append(errs, fmt.Sprintf("code %s is shared by units %q and %q", e.Code, prev, e.Unit))
			continue
		}
		t.byUnit[e.Unit] = e.Code
		t.byCode[e.Code] = e.Unit
		t.entries = append(t.entries, e)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("unit table validation failed:\n- %s", strings.Join(errs, "\n- "))
	}

	sort.Slice(t.entries, func(i, j int) bool {
		a, b := t.entries[i].Code, t.entries[j].Code
		if a.Quantity != b.Quantity {
			return a.Quantity < b.Quantity
		}
		return a.Index < b.Index
	})
	return t, nil
}

// ToCode translates a unit string. The empty string maps to the zero Code.
func (t *Table) ToCode(unit string) (Code, error) {
	if unit == "" {
		return Code{}, nil
	}
	code, ok := t.byUnit[unit]
	if !ok {
		return Code{}, &UnknownUnitError{Unit: unit}
	}
	return code, nil
}

// ToUnit translates a code back to its unit string.
func (t *Table) ToUnit(code Code) (string, bool) {
	unit, ok := t.byCode[code]
	return unit, ok
}

// Units returns all entries ordered by quantity and index.
func (t *Table) Units() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of registered units.
func (t *Table) Len() int {
	return len(t.entries)
}
