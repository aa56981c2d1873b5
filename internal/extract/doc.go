// Package extract walks an attribute store according to a section schema and
// produces the section's document value.
//
// Absent nodes and empty values are the normal case: the key is simply left
// out of the document. Errors while building one collection entry are caught
// at that entry, logged and recorded; a map entry then becomes an empty
// object and a list entry is dropped, so sibling entries still complete.
// Only errors for which engine.IsFatal holds escape a section.
package extract
