// Package app wires the schema registry, the unit table, an attribute store
// and the orchestrator into one App, and exposes the operations the CLI and
// the HTTP service run: extract, write, retry, capture and watch.
package app
