// Package testutil holds helpers shared by the package tests: a goroutine
// safe log buffer, a logger carrying context, schema snippets, seeded
// in-memory stores and a store wrapper that injects failures.
//
// Set FLOWSYNC_TEST_LOGS=true to echo captured logs through t.Log.
package testutil
