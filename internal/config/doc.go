// Package config defines the format-agnostic schema model: the sections of a
// config document and the elements that map document keys to attribute
// store paths. It also defines the Loader interface implemented by format
// specific packages such as internal/hcl.
//
// The model is the single source of truth for the registry, the extraction
// engine and the write engine. Nothing in it refers to HCL.
package config
