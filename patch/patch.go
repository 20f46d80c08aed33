package patch

import (
	"go.uber.org/zap"

	"github.com/wippyai/gibind/gir"
)

// Patch corrects known-incorrect declarations. Implementations must be pure
// and total: when nothing applies they return n itself.
type Patch interface {
	Patch(n *gir.Node, namespace string) *gir.Node
}

// Func adapts a function to the Patch interface.
type Func func(n *gir.Node, namespace string) *gir.Node

// Patch calls f.
func (f Func) Patch(n *gir.Node, namespace string) *gir.Node {
	return f(n, namespace)
}

// Named attaches a name to a patch for logging.
type Named struct {
	Patch
	Name string
}

// Apply runs each patch over the tree in order and returns the new root
// together with the number of replaced nodes. Every patch sees the result of
// the patches before it. Within one patch the tree is traversed pre-order
// and traversal continues into the replacement's children.
func Apply(root *gir.Node, patches ...Patch) (*gir.Node, int) {
	total := 0
	for _, p := range patches {
		var replaced int
		root, replaced = applyOne(p, root, root.NamespaceName())
		total += replaced
		if replaced > 0 {
			Logger().Debug("patch applied",
				zap.String("patch", nameOf(p)),
				zap.String("namespace", root.NamespaceName()),
				zap.Int("replaced", replaced),
			)
		}
	}
	return root, total
}

func applyOne(p Patch, n *gir.Node, namespace string) (*gir.Node, int) {
	count := 0
	r := p.Patch(n, namespace)
	if r != n {
		count++
	}
	if r.Kind() == gir.KindNamespace {
		namespace = r.Name()
	}

	children := r.Children()
	var rebuilt []*gir.Node
	for i, c := range children {
		nc, k := applyOne(p, c, namespace)
		count += k
		if nc != c && rebuilt == nil {
			rebuilt = make([]*gir.Node, i, len(children))
			copy(rebuilt, children[:i])
		}
		if rebuilt != nil {
			rebuilt = append(rebuilt, nc)
		}
	}
	if rebuilt != nil {
		r = r.WithChildren(rebuilt...)
	}
	return r, count
}

func nameOf(p Patch) string {
	switch v := p.(type) {
	case Named:
		return v.Name
	case *Rule:
		return v.String()
	}
	return "anonymous"
}

// removeChildren returns n without the children matching drop, or n itself
// when none match.
func removeChildren(n *gir.Node, drop func(*gir.Node) bool) *gir.Node {
	var kept []*gir.Node
	removed := false
	for _, c := range n.Children() {
		if drop(c) {
			removed = true
			continue
		}
		kept = append(kept, c)
	}
	if !removed {
		return n
	}
	return n.WithChildren(kept...)
}
