// Package dag provides a small, concurrency-safe directed graph with cycle
// detection and a deterministic topological sort. The registry uses it to
// order document sections by their data dependencies.
package dag
