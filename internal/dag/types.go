package dag

import "sync"

// Graph is a directed graph of string IDs. An edge from A to B means B
// depends on A. It is safe for concurrent use.
type Graph struct {
	mutex sync.RWMutex
	nodes map[string]*node
}

type node struct {
	id         string
	deps       map[string]*node // what this node depends on
	dependents map[string]*node // what depends on this node
}
