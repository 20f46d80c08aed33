package patch

import (
	"strings"

	"github.com/wippyai/gibind/gir"
)

// Builtin returns the built-in corrections in application order.
func Builtin() []Patch {
	return []Patch{
		Named{Func(GLib), "glib"},
		Named{Func(GObject), "gobject"},
		Named{Func(GioWindowsFileDescriptorBased), "gio-windows-fd"},
		Named{Func(HarfBuzzWindowsBitfields), "harfbuzz-windows-bitfields"},
		Named{Func(HarfBuzzRemoveTrailingT), "harfbuzz-trailing-t"},
		Named{Func(Spice), "spice"},
	}
}

// strvReturning lists GLib functions that return a NULL-terminated string
// vector without saying so.
var strvReturning = map[string]bool{
	"g_strsplit":     true,
	"g_strsplit_set": true,
	"g_strdupv":      true,
}

// GLib marks string-vector returns as zero-terminated and drops va_list
// variants of functions and methods.
func GLib(n *gir.Node, namespace string) *gir.Node {
	if namespace != "GLib" {
		return n
	}
	switch n.Kind() {
	case gir.KindArray:
		rv := n.Parent()
		if rv == nil || rv.Kind() != gir.KindReturnValue || rv.Parent() == nil {
			return n
		}
		if strvReturning[rv.Parent().Attr("c:identifier")] && n.Attr("zero-terminated") != "1" {
			return n.WithAttr("zero-terminated", "1")
		}
	case gir.KindNamespace, gir.KindRecord, gir.KindClass, gir.KindUnion:
		return removeChildren(n, func(c *gir.Node) bool {
			return c.Kind().IsCallable() && strings.HasSuffix(c.Attr("c:identifier"), "_valist")
		})
	}
	return n
}

// GObject removes g_object_new_valist and renames the notify virtual method
// of Object, which clashes with the notify method.
func GObject(n *gir.Node, namespace string) *gir.Node {
	if namespace != "GObject" {
		return n
	}
	switch n.Kind() {
	case gir.KindClass:
		if n.Name() != "Object" {
			return n
		}
		return removeChildren(n, func(c *gir.Node) bool {
			return c.Attr("c:identifier") == "g_object_new_valist"
		})
	case gir.KindVirtualMethod:
		if n.Name() == "notify" && n.Parent() != nil && n.Parent().Name() == "Object" {
			return n.WithAttr("name", "notify_vfunc")
		}
	}
	return n
}

// unixOnly lists Gio types that exist only on unix-like platforms although
// the Windows introspection data declares them.
var unixOnly = map[string]bool{
	"FileDescriptorBased":       true,
	"FileDescriptorBasedIface":  true,
	"UnixFDList":                true,
	"UnixFDMessage":             true,
	"UnixInputStream":           true,
	"UnixOutputStream":          true,
	"DesktopAppInfoLookup":      true,
	"DesktopAppInfoLookupIface": true,
}

// GioWindowsFileDescriptorBased clears the Windows platform from unix-only
// Gio types and removes them when no platform remains.
func GioWindowsFileDescriptorBased(n *gir.Node, namespace string) *gir.Node {
	if namespace != "Gio" || n.Kind() != gir.KindNamespace {
		return n
	}
	changed := false
	var kept []*gir.Node
	for _, c := range n.Children() {
		if !c.Kind().IsRegistered() || !unixOnly[c.Name()] || !c.Platforms().Has(gir.PlatformWindows) {
			kept = append(kept, c)
			continue
		}
		changed = true
		if p := c.Platforms() &^ gir.PlatformWindows; p != 0 {
			kept = append(kept, c.WithPlatforms(p))
		}
	}
	if !changed {
		return n
	}
	return n.WithChildren(kept...)
}

// HarfBuzzWindowsBitfields turns flag enumerations of the Windows data into
// bitfields so they merge with the other platforms.
func HarfBuzzWindowsBitfields(n *gir.Node, namespace string) *gir.Node {
	if namespace != "HarfBuzz" || n.Kind() != gir.KindEnumeration {
		return n
	}
	if !n.Platforms().Has(gir.PlatformWindows) {
		return n
	}
	name := strings.TrimSuffix(n.Name(), "_t")
	if strings.HasSuffix(name, "_flags") {
		return n.WithKind(gir.KindBitfield)
	}
	return n
}

// HarfBuzzRemoveTrailingT strips the "_t" suffix from HarfBuzz type names
// and references to them.
func HarfBuzzRemoveTrailingT(n *gir.Node, namespace string) *gir.Node {
	if namespace != "HarfBuzz" {
		return n
	}
	if !n.Kind().IsRegistered() && n.Kind() != gir.KindType {
		return n
	}
	name := n.Name()
	if n.Kind() == gir.KindType && strings.Contains(name, ".") && !strings.HasPrefix(name, "HarfBuzz.") {
		return n
	}
	if trimmed, ok := strings.CutSuffix(name, "_t"); ok && trimmed != "" {
		return n.WithAttr("name", trimmed)
	}
	return n
}

// Spice replaces an unmappable guint16** with an opaque pointer and renames
// Channel.open_fd, which clashes with the open-fd signal handler.
func Spice(n *gir.Node, namespace string) *gir.Node {
	if namespace != "SpiceClientGLib" {
		return n
	}
	switch n.Kind() {
	case gir.KindType:
		if n.Attr("c:type") == "guint16**" {
			return n.WithAttr("c:type", "gpointer").WithAttr("name", "gpointer")
		}
	case gir.KindMethod:
		if n.Attr("c:identifier") == "spice_channel_open_fd" && n.Name() != "open_socket" {
			return n.WithAttr("name", "open_socket")
		}
	}
	return n
}
