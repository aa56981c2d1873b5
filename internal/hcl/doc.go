// Package hcl provides the concrete HCL implementation of the config.Loader
// interface. It parses the built-in section schemas compiled into the binary
// plus any override files, and translates them into the format-agnostic
// config model. Path templates are parsed here so that malformed schemas fail
// at load time with a source location.
package hcl
