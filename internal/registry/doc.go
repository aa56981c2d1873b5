// Package registry holds the section schemas of a config document and the
// order they must run in.
//
// The registry is populated from the format-agnostic config model and then
// validated. Validation computes the dependency order (sections never run
// before the sections whose data they filter by) and checks that every
// schema is internally consistent: discriminators are declared before they
// gate anything, referenced key sets are provided by an earlier section, and
// every template variable is bound. Problems are reported together so a
// schema author can fix them in one pass.
package registry
