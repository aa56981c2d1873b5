package attrpath

import (
	"fmt"
	"regexp"
	"strings"
)

// varRegex matches a `{name}` placeholder inside a template segment.
var varRegex = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Template is a parsed path template. It is immutable and safe to share.
type Template struct {
	raw      string
	anchor   Anchor
	segments []string
	vars     []string
}

// ParseTemplate parses the `/` separated template notation.
func ParseTemplate(raw string) (*Template, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("template cannot be empty")
	}

	t := &Template{raw: raw, anchor: AnchorScope}
	rest := raw
	switch {
	case strings.HasPrefix(rest, "/"):
		t.anchor = AnchorRoot
		rest = strings.TrimPrefix(rest, "/")
	case rest == "~" || strings.HasPrefix(rest, "~/"):
		t.anchor = AnchorBase
		rest = strings.TrimPrefix(strings.TrimPrefix(rest, "~"), "/")
	case rest == "." || strings.HasPrefix(rest, "./"):
		rest = strings.TrimPrefix(strings.TrimPrefix(rest, "."), "/")
	}

	if rest != "" {
		for _, seg := range strings.Split(rest, "/") {
			if seg == "" {
				return nil, fmt.Errorf("template %q contains empty segment", raw)
			}
			if strings.Contains(seg, Delimiter) {
				return nil, fmt.Errorf("template %q: segment %q contains the path delimiter", raw, seg)
			}
			if strings.Count(seg, "{") != strings.Count(seg, "}") {
				return nil, fmt.Errorf("template %q: unbalanced braces in segment %q", raw, seg)
			}
			t.segments = append(t.segments, seg)
		}
	}
	t.vars = Vars(raw)
	return t, nil
}

// MustParseTemplate is like ParseTemplate but panics on error.
func MustParseTemplate(raw string) *Template {
	t, err := ParseTemplate(raw)
	if err != nil {
		panic(err)
	}
	return t
}

// String returns the template as written.
func (t *Template) String() string {
	return t.raw
}

// Anchor returns where resolution starts.
func (t *Template) Anchor() Anchor {
	return t.anchor
}

// Vars returns the distinct placeholder names in order of first use.
func (t *Template) Vars() []string {
	return t.vars
}

// IsScope reports whether the template is exactly the current scope node.
func (t *Template) IsScope() bool {
	return t.anchor == AnchorScope && len(t.segments) == 0
}

// Resolve substitutes bound variables and returns the concrete path string.
func (t *Template) Resolve(r Resolver) (string, error) {
	var start string
	switch t.anchor {
	case AnchorRoot:
		start = ""
	case AnchorBase:
		start = r.Base()
	default:
		start = r.Current()
	}

	segments := make([]string, 0, len(t.segments))
	for _, seg := range t.segments {
		resolved, err := Expand(seg, r.Lookup)
		if err != nil {
			return "", fmt.Errorf("resolving template %q: %w", t.raw, err)
		}
		segments = append(segments, resolved)
	}
	if start == "" {
		return Build(segments...), nil
	}
	return Join(start, segments...), nil
}

// Vars lists the distinct `{name}` placeholders of any template string.
func Vars(s string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range varRegex.FindAllStringSubmatch(s, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// Expand replaces every `{name}` placeholder in s using lookup.
func Expand(s string, lookup func(string) (string, bool)) (string, error) {
	var missing string
	out := varRegex.ReplaceAllStringFunc(s, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := lookup(name)
		if !ok && missing == "" {
			missing = name
		}
		return v
	})
	if missing != "" {
		return "", fmt.Errorf("variable %q is not bound", missing)
	}
	return out, nil
}
