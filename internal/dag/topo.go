package dag

import (
	"fmt"
	"sort"
)

// TopoSort returns every node ordered so that each node comes after all of
// its dependencies. Among nodes that are ready at the same time, the one
// listed first in priority wins; nodes missing from priority come last, by ID.
func (g *Graph) TopoSort(priority []string) ([]string, error) {
	if err := g.DetectCycles(); err != nil {
		return nil, err
	}

	g.mutex.RLock()
	defer g.mutex.RUnlock()

	rank := make(map[string]int, len(priority))
	for i, id := range priority {
		if _, ok := rank[id]; !ok {
			rank[id] = i
		}
	}
	less := func(a, b string) bool {
		ra, okA := rank[a]
		rb, okB := rank[b]
		switch {
		case okA && okB:
			return ra < rb
		case okA != okB:
			return okA
		default:
			return a < b
		}
	}

	remaining := make(map[string]int, len(g.nodes))
	var ready []string
	for id, n := range g.nodes {
		remaining[id] = len(n.deps)
		if len(n.deps) == 0 {
			ready = append(ready, id)
		}
	}

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return less(ready[i], ready[j]) })
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		for depID := range g.nodes[id].dependents {
			remaining[depID]--
			if remaining[depID] == 0 {
				ready = append(ready, depID)
			}
		}
	}

	if len(order) != len(g.nodes) {
		// Unreachable after DetectCycles.
		return nil, fmt.Errorf("topological sort incomplete: ordered %d of %d nodes", len(order), len(g.nodes))
	}
	return order, nil
}

// Ancestors returns every node the given node depends on, directly or
// transitively.
func (g *Graph) Ancestors(id string) (map[string]bool, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	start, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}

	seen := make(map[string]bool)
	stack := []*node{start}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for depID, dep := range n.deps {
			if !seen[depID] {
				seen[depID] = true
				stack = append(stack, dep)
			}
		}
	}
	return seen, nil
}
