package attrpath

// Delimiter separates segments in a concrete path string.
const Delimiter = `\`

// Path is the structured form of a concrete store path.
type Path struct {
	Segments []string
}

// Anchor tells a Template where resolution starts.
type Anchor int

const (
	// AnchorScope resolves relative to the current scope node.
	AnchorScope Anchor = iota
	// AnchorRoot resolves from the store root.
	AnchorRoot
	// AnchorBase resolves relative to the enclosing instance base.
	AnchorBase
)

func (a Anchor) String() string {
	switch a {
	case AnchorRoot:
		return "root"
	case AnchorBase:
		return "base"
	default:
		return "scope"
	}
}

// Resolver supplies the bindings a Template needs at resolution time.
type Resolver interface {
	// Lookup returns the value bound to a collection variable.
	Lookup(name string) (string, bool)
	// Base returns the concrete path of the enclosing instance.
	Base() string
	// Current returns the concrete path of the current scope node.
	Current() string
}
