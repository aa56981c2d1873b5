// Package engine holds the machinery shared by the extraction and write
// engines: the variable scope used to resolve path templates, the key sets
// that collections publish for later reference filters, collection entry
// discovery, and the error taxonomy of a conversion run.
package engine
