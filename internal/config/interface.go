package config

import "context"

// Loader is the interface for a format-specific schema loader.
type Loader interface {
	// Load reads the built-in schemas plus any overrides found at paths and
	// translates them into the format-agnostic model.
	Load(ctx context.Context, paths ...string) (*Model, error)
}
