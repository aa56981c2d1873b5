// Package inmemorystore provides an in-memory implementation of the
// attrstore.Store interface. It backs tests, fixtures and offline dry runs,
// and can be seeded from or dumped to a YAML tree.
package inmemorystore
