package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/gibind/errors"
	"github.com/wippyai/gibind/gir"
)

const sample = `
[generator]
pointer-size = 4
output = "out/plans.cbor"

[[namespace]]
name = "GLib"
version = "2.0"
package = "glib"
exclude = ["g_printf", "Variant"]
inputs = [
  { platform = "linux", path = "glib-linux.cbor" },
  { platform = "windows", path = "/abs/glib-windows.cbor" },
]

[[namespace]]
name = "Gdk"
inputs = [{ path = "gdk.cbor" }]

[[patch]]
namespace = "Gdk"
kind = "function"
match = { name = "beep" }
remove = true

[[patch]]
kind = "record"
match = { name = "Rectangle" }
set = { opaque = "1" }
`

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(sample), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "c", cfg.Generator.Convention, "default convention")
	assert.Equal(t, uint32(4), cfg.Generator.PointerSize)
	require.Len(t, cfg.Namespaces, 2)

	glib, ok := cfg.Namespace("GLib")
	require.True(t, ok)
	assert.Equal(t, "glib", glib.Package)
	assert.Equal(t, []string{"g_printf", "Variant"}, glib.Exclude)
	require.Len(t, glib.Inputs, 2)
	assert.Equal(t, filepath.Join(cfg.Dir, "glib-linux.cbor"), cfg.InputPath(glib.Inputs[0]))
	assert.Equal(t, "/abs/glib-windows.cbor", cfg.InputPath(glib.Inputs[1]))
	assert.Equal(t, filepath.Join(cfg.Dir, "out", "plans.cbor"), cfg.OutputPath())

	_, ok = cfg.Namespace("Gtk")
	assert.False(t, ok)

	assert.Equal(t, []string{"g_printf", "Variant"}, cfg.Exclusions())
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.New(errors.PhaseConfig, errors.KindInvalidData).Build())
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default().Generator, cfg.Generator)
	assert.Empty(t, cfg.Namespaces)
}

func TestRules(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	rules := cfg.Rules()
	require.Len(t, rules, 2)
	assert.Equal(t, "Gdk", rules[0].Namespace)
	assert.Equal(t, gir.KindFunction, rules[0].Kind)
	assert.True(t, rules[0].Remove)
	assert.Equal(t, map[string]string{"name": "beep"}, rules[0].Match)

	assert.Equal(t, gir.KindRecord, rules[1].Kind)
	assert.Equal(t, map[string]string{"opaque": "1"}, rules[1].Set)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"syntax", `[generator`},
		{"unknown key", "[generator]\nthreads = 4"},
		{"convention", "[generator]\nconvention = \"java\""},
		{"pointer size", "[generator]\npointer-size = 2"},
		{"unnamed namespace", "[[namespace]]\ninputs = [{ path = \"a.cbor\" }]"},
		{"no inputs", "[[namespace]]\nname = \"GLib\""},
		{"input without path", "[[namespace]]\nname = \"GLib\"\ninputs = [{ platform = \"linux\" }]"},
		{"platform", "[[namespace]]\nname = \"GLib\"\ninputs = [{ platform = \"beos\", path = \"a\" }]"},
		{"duplicate", "[[namespace]]\nname = \"A\"\ninputs = [{ path = \"a\" }]\n[[namespace]]\nname = \"A\"\ninputs = [{ path = \"b\" }]"},
		{"patch kind", "[[patch]]\nkind = \"widget\"\nremove = true"},
		{"patch no action", "[[patch]]\nkind = \"record\""},
		{"patch both", "[[patch]]\nkind = \"record\"\nremove = true\nset = { a = \"b\" }"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			require.Error(t, err)
			var e *errors.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, errors.PhaseConfig, e.Phase)
		})
	}
}
