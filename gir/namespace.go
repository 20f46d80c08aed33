package gir

import (
	"maps"
	"slices"

	"go.uber.org/zap"

	"github.com/wippyai/gibind/errors"
)

// Namespace is the merged, indexed view of one library namespace.
type Namespace struct {
	node      *Node
	types     map[string]RegisteredType
	order     []string
	functions []Callable
	constants []*Node
}

// BuildNamespace merges one or more platform-specific declarations of the
// same namespace into a single namespace. Registered types sharing a name are
// merged; functions and constants sharing a name are deduplicated when they
// are structurally equal and otherwise keep the first declaration.
func BuildNamespace(decls ...*Node) (*Namespace, error) {
	if len(decls) == 0 {
		return nil, errors.InvalidData(errors.PhaseMerge, nil, "no namespace declarations")
	}
	name := decls[0].Name()
	var platforms Platform
	for _, d := range decls {
		if d.kind != KindNamespace {
			return nil, errors.New(errors.PhaseMerge, errors.KindTypeMismatch).
				Path(d.Path()...).
				Detail("expected namespace, got %s", d.kind).
				Build()
		}
		if d.Name() != name {
			return nil, errors.New(errors.PhaseMerge, errors.KindMergeConflict).
				Namespace(name).
				Detail("cannot merge namespace %q into %q", d.Name(), name).
				Build()
		}
		platforms |= d.Platforms()
	}

	var (
		order   []string
		byName  = make(map[string]*Node)
		others  []*Node
		decided = make(map[string]int) // function/constant key -> index in others
	)
	for _, d := range decls {
		for _, c := range d.children {
			switch {
			case c.kind.IsRegistered():
				tagged := c
				if c.platforms == 0 {
					tagged = c.WithPlatforms(c.Platforms())
				}
				prev, ok := byName[c.Name()]
				if !ok {
					byName[c.Name()] = tagged
					order = append(order, c.Name())
					continue
				}
				merged, _ := Merge(RegisteredType{prev}, RegisteredType{tagged})
				byName[c.Name()] = merged.n
			case c.kind == KindFunction || c.kind == KindConstant:
				key := c.kind.String() + ":" + c.Name()
				tagged := c.WithPlatforms(c.Platforms())
				i, ok := decided[key]
				if !ok {
					decided[key] = len(others)
					others = append(others, tagged)
					continue
				}
				if equalShape(others[i], tagged) {
					others[i] = others[i].WithPlatforms(others[i].platforms | tagged.platforms)
				} else {
					Logger().Debug("namespace member differs between platforms, keeping first",
						zap.String("namespace", name),
						zap.String("name", c.Name()),
						zap.Stringer("discarded_platforms", tagged.platforms),
					)
				}
			}
		}
	}

	children := make([]*Node, 0, len(order)+len(others))
	for _, n := range order {
		children = append(children, byName[n])
	}
	children = append(children, others...)

	root := New(KindNamespace, decls[0].attrs, children...)
	root.platforms = platforms
	return indexNamespace(root), nil
}

func indexNamespace(root *Node) *Namespace {
	ns := &Namespace{
		node:  root,
		types: make(map[string]RegisteredType),
	}
	for _, c := range root.children {
		switch {
		case c.kind.IsRegistered():
			ns.types[c.Name()] = RegisteredType{c}
			ns.order = append(ns.order, c.Name())
		case c.kind == KindFunction:
			ns.functions = append(ns.functions, Callable{c})
		case c.kind == KindConstant:
			ns.constants = append(ns.constants, c)
		}
	}
	return ns
}

func equalShape(a, b *Node) bool {
	return a.kind == b.kind &&
		maps.Equal(a.attrs, b.attrs) &&
		slices.EqualFunc(a.children, b.children, Equal)
}

// Node returns the merged namespace node.
func (ns *Namespace) Node() *Node { return ns.node }

// Name returns the namespace name.
func (ns *Namespace) Name() string { return ns.node.Name() }

// Version returns the namespace version.
func (ns *Namespace) Version() string { return ns.node.Attr("version") }

// SharedLibrary returns the shared-library attribute.
func (ns *Namespace) SharedLibrary() string { return ns.node.Attr("shared-library") }

// Platforms returns the union of platforms the namespace was declared on.
func (ns *Namespace) Platforms() Platform { return ns.node.Platforms() }

// Lookup returns the registered type with the given unqualified name.
func (ns *Namespace) Lookup(name string) (RegisteredType, bool) {
	t, ok := ns.types[name]
	return t, ok
}

// Types returns the registered types in first-seen order.
func (ns *Namespace) Types() []RegisteredType {
	out := make([]RegisteredType, 0, len(ns.order))
	for _, name := range ns.order {
		out = append(out, ns.types[name])
	}
	return out
}

// Functions returns the namespace-level functions.
func (ns *Namespace) Functions() []Callable {
	return ns.functions
}

// Constants returns the namespace-level constants.
func (ns *Namespace) Constants() []*Node {
	return ns.constants
}

// Library is a set of namespaces that may reference each other.
type Library struct {
	namespaces map[string]*Namespace
	order      []string
}

// NewLibrary creates a library from namespaces.
func NewLibrary(namespaces ...*Namespace) *Library {
	lib := &Library{namespaces: make(map[string]*Namespace)}
	for _, ns := range namespaces {
		lib.Add(ns)
	}
	return lib
}

// Add registers a namespace, replacing any previous one with the same name.
func (l *Library) Add(ns *Namespace) {
	if _, ok := l.namespaces[ns.Name()]; !ok {
		l.order = append(l.order, ns.Name())
	}
	l.namespaces[ns.Name()] = ns
}

// Namespace returns a namespace by name.
func (l *Library) Namespace(name string) (*Namespace, bool) {
	ns, ok := l.namespaces[name]
	return ns, ok
}

// Namespaces returns all namespaces in insertion order.
func (l *Library) Namespaces() []*Namespace {
	out := make([]*Namespace, 0, len(l.order))
	for _, name := range l.order {
		out = append(out, l.namespaces[name])
	}
	return out
}

// Resolve finds the registered type a Type refers to.
func (l *Library) Resolve(t Type) (RegisteredType, bool) {
	nsName, name := t.Qualified()
	ns, ok := l.namespaces[nsName]
	if !ok {
		return RegisteredType{}, false
	}
	return ns.Lookup(name)
}

// Missing returns every type reference that is neither built in nor
// resolvable, as "namespace#name" keys in first-seen order.
func (l *Library) Missing() []string {
	seen := make(map[string]bool)
	var out []string
	for _, ns := range l.Namespaces() {
		ns.node.Walk(func(n *Node) bool {
			t, ok := AsType(n)
			if !ok || t.Name() == "" || t.IsVoid() || t.IsPrimitive() || t.IsString() ||
				t.IsOpaquePointer() || t.IsVaList() {
				return true
			}
			if _, ok := l.Resolve(t); ok {
				return true
			}
			key := ns.Name() + "#" + t.Name()
			if !seen[key] {
				seen[key] = true
				out = append(out, key)
			}
			return true
		})
	}
	return out
}
