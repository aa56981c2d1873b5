package attrpath

import (
	"fmt"
	"slices"
	"strings"
)

// Build joins segments into a rooted path string.
func Build(segments ...string) string {
	if len(segments) == 0 {
		return ""
	}
	return Delimiter + strings.Join(segments, Delimiter)
}

// Join appends segments to an existing path string.
func Join(base string, segments ...string) string {
	if len(segments) == 0 {
		return base
	}
	return strings.TrimSuffix(base, Delimiter) + Delimiter + strings.Join(segments, Delimiter)
}

// Split breaks a path string into its segments. The root ("" or a lone
// delimiter) has no segments.
func Split(path string) []string {
	path = strings.TrimPrefix(path, Delimiter)
	if path == "" {
		return nil
	}
	return strings.Split(path, Delimiter)
}

// Parse creates a Path from its string form, rejecting empty segments.
func Parse(raw string) (Path, error) {
	if raw == "" {
		return Path{}, fmt.Errorf("path cannot be empty")
	}
	if !strings.HasPrefix(raw, Delimiter) {
		return Path{}, fmt.Errorf("path %q must start with %q", raw, Delimiter)
	}

	segments := Split(raw)
	for _, s := range segments {
		if s == "" {
			return Path{}, fmt.Errorf("path %q contains empty segment", raw)
		}
	}
	return Path{Segments: segments}, nil
}

// String serializes the Path into its canonical string form.
func (p Path) String() string {
	return Build(p.Segments...)
}

// Equal reports whether two paths address the same node.
func (p Path) Equal(other Path) bool {
	return slices.Equal(p.Segments, other.Segments)
}

// IsRoot reports whether the path has no segments.
func (p Path) IsRoot() bool {
	return len(p.Segments) == 0
}

// Parent returns the path without its last segment.
func (p Path) Parent() Path {
	if len(p.Segments) == 0 {
		return p
	}
	return Path{Segments: slices.Clone(p.Segments[:len(p.Segments)-1])}
}

// Name returns the last segment, or "" for the root.
func (p Path) Name() string {
	if len(p.Segments) == 0 {
		return ""
	}
	return p.Segments[len(p.Segments)-1]
}

// Child returns a new path extended by one segment.
func (p Path) Child(segment string) Path {
	out := make([]string, len(p.Segments), len(p.Segments)+1)
	copy(out, p.Segments)
	return Path{Segments: append(out, segment)}
}
