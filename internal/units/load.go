package units

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

//go:embed units.hcl
var defaultSource []byte

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// fileSchema is the HCL layout of a unit table file.
type fileSchema struct {
	Quantities []quantityBlock `hcl:"quantity,block"`
}

type quantityBlock struct {
	Name  string         `hcl:"name,label"`
	Units map[string]int `hcl:"units"`
}

// Default returns the table compiled into the binary. It is parsed once.
func Default() *Table {
	defaultOnce.Do(func() {
		t, err := Parse(defaultSource, "units.hcl")
		if err != nil {
			// The embedded file is part of the build, so this is a programmer error.
			panic(fmt.Errorf("embedded unit table is invalid: %w", err))
		}
		defaultTable = t
	})
	return defaultTable
}

// LoadFile reads a unit table from an HCL file on disk.
func LoadFile(path string) (*Table, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read unit table %s: %w", path, err)
	}
	return Parse(src, path)
}

// Parse decodes a unit table from HCL source.
func Parse(src []byte, filename string) (*Table, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse unit table %s: %w", filename, diags)
	}

	var schema fileSchema
	if diags := gohcl.DecodeBody(file.Body, nil, &schema); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode unit table %s: %w", filename, diags)
	}

	var entries []Entry
	for _, q := range schema.Quantities {
		for unit, index := range q.Units {
			entries = append(entries, Entry{Unit: unit, Code: Code{Quantity: q.Name, Index: index}})
		}
	}
	return NewTable(entries)
}
