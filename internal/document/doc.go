// Package document is the in-memory form of a config document: nested JSON
// objects that keep their keys in insertion order.
//
// Order matters because parallel collections in the attribute tree are
// aligned by position. An extracted document lists keys in discovery order,
// and a written document is replayed in the same order.
//
// Values held by an Object are one of: string, float64, bool, *Object, []any.
package document
