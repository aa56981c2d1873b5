package hcl

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/flowsync/internal/config"
	"github.com/vk/flowsync/internal/ctxlog"
	"github.com/vk/flowsync/internal/fsutil"
	"github.com/vk/flowsync/internal/schema"
)

//go:embed builtin/*.hcl
var builtinFS embed.FS

// Loader is the HCL implementation of config.Loader.
type Loader struct {
	builtin fs.FS
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithoutBuiltin makes the loader read only the paths passed to Load.
func WithoutBuiltin() LoaderOption {
	return func(l *Loader) { l.builtin = nil }
}

// WithBuiltin replaces the compiled-in schema set.
func WithBuiltin(fsys fs.FS) LoaderOption {
	return func(l *Loader) { l.builtin = fsys }
}

// NewLoader creates a loader that starts from the built-in schemas.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{}
	if sub, err := fs.Sub(builtinFS, "builtin"); err == nil {
		l.builtin = sub
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var _ config.Loader = (*Loader)(nil)

// Load parses the built-in schemas, then every .hcl file under paths. A
// section declared in an override file replaces the built-in section of the
// same name in place.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	parser := hclparse.NewParser()
	model := &config.Model{}
	index := make(map[string]int)

	if l.builtin != nil {
		names, err := fs.Glob(l.builtin, "*.hcl")
		if err != nil {
			return nil, fmt.Errorf("failed to list built-in schemas: %w", err)
		}
		sort.Strings(names)
		for _, name := range names {
			src, err := fs.ReadFile(l.builtin, name)
			if err != nil {
				return nil, fmt.Errorf("failed to read built-in schema %s: %w", name, err)
			}
			file, diags := parser.ParseHCL(src, path.Join("builtin", name))
			if diags.HasErrors() {
				return nil, fmt.Errorf("failed to parse HCL file %s: %w", name, diags)
			}
			sections, err := decodeFile(file)
			if err != nil {
				return nil, err
			}
			for _, s := range sections {
				if prev, ok := index[s.Name]; ok {
					return nil, fmt.Errorf("section %q declared twice (%s and %s)", s.Name, model.Sections[prev].Source, s.Source)
				}
				index[s.Name] = len(model.Sections)
				model.Sections = append(model.Sections, s)
			}
		}
		logger.Debug("Built-in schemas loaded.", "sections", len(model.Sections))
	}

	for _, p := range paths {
		files, err := schemaFiles(p)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			logger.Warn("No .hcl schema files found in path.", "path", p)
			continue
		}
		seen := make(map[string]string)
		for _, filePath := range files {
			file, diags := parser.ParseHCLFile(filePath)
			if diags.HasErrors() {
				return nil, fmt.Errorf("failed to parse HCL file %s: %w", filePath, diags)
			}
			sections, err := decodeFile(file)
			if err != nil {
				return nil, err
			}
			for _, s := range sections {
				if prev, ok := seen[s.Name]; ok {
					return nil, fmt.Errorf("section %q declared twice (%s and %s)", s.Name, prev, s.Source)
				}
				seen[s.Name] = s.Source
				if i, ok := index[s.Name]; ok {
					logger.Info("Section overridden.", "section", s.Name, "source", s.Source)
					model.Sections[i] = s
					continue
				}
				index[s.Name] = len(model.Sections)
				model.Sections = append(model.Sections, s)
			}
			logger.Debug("Successfully loaded schemas from HCL file.", "file", filePath)
		}
	}

	logger.Debug("Schema model loaded.", "sections", len(model.Sections))
	return model, nil
}

func schemaFiles(p string) ([]string, error) {
	files, err := fsutil.FindFiles(p, ".hcl")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema path: %w", err)
	}
	return files, nil
}

func decodeFile(file *hcl.File) ([]*config.Section, error) {
	var f schema.File
	if diags := gohcl.DecodeBody(file.Body, nil, &f); diags.HasErrors() {
		return nil, diags
	}

	sections := make([]*config.Section, 0, len(f.Sections))
	for _, s := range f.Sections {
		sec, diags := translateSection(s)
		if diags.HasErrors() {
			return nil, diags
		}
		sections = append(sections, sec)
	}
	return sections, nil
}

// ParseSections decodes the sections of a single schema source. It is the
// building block for tooling and tests that work with schema snippets.
func ParseSections(src []byte, filename string) ([]*config.Section, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	return decodeFile(file)
}
