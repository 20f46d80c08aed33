package patch

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/wippyai/gibind/gir"
)

// Rule is a declarative patch loaded from configuration. It matches nodes of
// one kind whose attributes include every Match entry, optionally limited to
// one namespace, and either sets attributes on them or removes them.
type Rule struct {
	Match     map[string]string
	Set       map[string]string
	Namespace string
	Kind      gir.Kind
	Remove    bool
}

// Matches reports whether n is selected by the rule.
func (r *Rule) Matches(n *gir.Node, namespace string) bool {
	if r.Namespace != "" && r.Namespace != namespace {
		return false
	}
	if n.Kind() != r.Kind {
		return false
	}
	for k, v := range r.Match {
		if n.Attr(k) != v {
			return false
		}
	}
	return true
}

// Patch implements Patch. Removal happens at the parent, so a matching root
// is never removed.
func (r *Rule) Patch(n *gir.Node, namespace string) *gir.Node {
	if r.Remove {
		return removeChildren(n, func(c *gir.Node) bool {
			return r.Matches(c, namespace)
		})
	}
	if !r.Matches(n, namespace) {
		return n
	}
	out := n
	for _, k := range slices.Sorted(maps.Keys(r.Set)) {
		if v := r.Set[k]; out.Attr(k) != v || !out.HasAttr(k) {
			out = out.WithAttr(k, v)
		}
	}
	return out
}

func (r *Rule) String() string {
	var b strings.Builder
	b.WriteString("rule:")
	if r.Namespace != "" {
		b.WriteString(r.Namespace)
		b.WriteByte('/')
	}
	b.WriteString(r.Kind.String())
	for _, k := range slices.Sorted(maps.Keys(r.Match)) {
		fmt.Fprintf(&b, "[%s=%s]", k, r.Match[k])
	}
	if r.Remove {
		b.WriteString(" remove")
	}
	return b.String()
}
