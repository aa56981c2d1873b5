// Package orchestrator runs every section of a registry against one store
// handle, in dependency order, and reports per section what succeeded.
//
// Runs are strictly sequential. A store handle is one engine session, so an
// Orchestrator serializes its runs and never fans out work. Instance and
// section failures are recorded in the Report; only a lost store connection
// or a cancelled context aborts a run.
package orchestrator
