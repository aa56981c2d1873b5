package registry

import (
	"errors"
	"fmt"

	"github.com/vk/flowsync/internal/config"
	"github.com/vk/flowsync/internal/dag"
)

// ErrOrderingViolation marks schema sets whose dependencies cannot be ordered.
var ErrOrderingViolation = errors.New("ordering violation")

// Registry holds the loaded section schemas for one application instance.
type Registry struct {
	declared []*config.Section
	byName   map[string]*config.Section
	ordered  []*config.Section
	graph    *dag.Graph
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{byName: make(map[string]*config.Section)}
}

// PopulateFromModel copies the sections of a loaded model into the registry.
// Validation must run again before the registry is used.
func (r *Registry) PopulateFromModel(model *config.Model) {
	for _, s := range model.Sections {
		if _, ok := r.byName[s.Name]; !ok {
			r.declared = append(r.declared, s)
		} else {
			for i, d := range r.declared {
				if d.Name == s.Name {
					r.declared[i] = s
				}
			}
		}
		r.byName[s.Name] = s
	}
	r.ordered = nil
	r.graph = nil
}

// Section returns a section by name.
func (r *Registry) Section(name string) (*config.Section, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// Sections returns the sections in dependency order. It is empty until
// ValidateRegistry has succeeded.
func (r *Registry) Sections() []*config.Section {
	out := make([]*config.Section, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Names returns the section names in dependency order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ordered))
	for _, s := range r.ordered {
		names = append(names, s.Name)
	}
	return names
}

// Len returns the number of registered sections.
func (r *Registry) Len() int {
	return len(r.declared)
}

// buildGraph links every section to its declared dependencies.
func (r *Registry) buildGraph() (*dag.Graph, []string) {
	g := dag.New()
	var errs []string
	for _, s := range r.declared {
		g.AddNode(s.Name)
	}
	for _, s := range r.declared {
		for _, dep := range s.DependsOn {
			if _, ok := r.byName[dep]; !ok {
				errs = append(errs, fmt.Sprintf("section '%s': depends on unknown section '%s'", s.Name, dep))
				continue
			}
			if err := g.AddEdge(dep, s.Name); err != nil {
				errs = append(errs, fmt.Sprintf("section '%s': %v", s.Name, err))
			}
		}
	}
	return g, errs
}

// Dependencies returns every section name depends on, directly or
// transitively, in dependency order.
func (r *Registry) Dependencies(name string) ([]*config.Section, error) {
	if r.graph == nil {
		return nil, fmt.Errorf("registry has not been validated")
	}
	ancestors, err := r.graph.Ancestors(name)
	if err != nil {
		return nil, err
	}
	var out []*config.Section
	for _, s := range r.ordered {
		if ancestors[s.Name] {
			out = append(out, s)
		}
	}
	return out, nil
}

// Provides lists the key sets a section publishes.
func (r *Registry) Provides(name string) []string {
	s, ok := r.byName[name]
	if !ok {
		return nil
	}
	return providedSets(s.Elements)
}
