// Package write walks a section's document value according to its schema and
// creates or updates the corresponding store nodes.
//
// Missing dynamic children are created with the insert-then-label protocol:
// an empty row is appended to the parent's elements, labeled, and the label
// is read back before any value is assigned. Existing children are reused,
// so writing the same document twice leaves the store unchanged.
//
// An error while writing one collection entry aborts the rest of that entry
// and is recorded in the Result; sibling entries continue.
package write
