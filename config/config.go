// Package config handles gibind.toml generator configuration.
package config

import (
	"os"
	"path/filepath"
	"slices"

	"github.com/BurntSushi/toml"

	"github.com/wippyai/gibind/errors"
	"github.com/wippyai/gibind/gir"
	"github.com/wippyai/gibind/patch"
)

// FileName is the configuration file looked up by Load.
const FileName = "gibind.toml"

// Config represents a gibind.toml file.
type Config struct {
	Generator  Generator   `toml:"generator"`
	Namespaces []Namespace `toml:"namespace"`
	Patches    []Rule      `toml:"patch"`

	// Dir is the directory containing the file (set at load time). Relative
	// input paths resolve against it.
	Dir string `toml:"-"`
}

// Generator configures plan derivation.
type Generator struct {
	Convention  string `toml:"convention"`
	Output      string `toml:"output"`
	PointerSize uint32 `toml:"pointer-size"`
}

// Namespace declares one namespace to generate.
type Namespace struct {
	Name    string   `toml:"name"`
	Version string   `toml:"version"`
	Package string   `toml:"package"`
	Inputs  []Input  `toml:"inputs"`
	Exclude []string `toml:"exclude"`
}

// Input is one declaration tree snapshot, valid on the named platforms.
type Input struct {
	Platform string `toml:"platform"`
	Path     string `toml:"path"`
}

// Rule is a declarative patch.
type Rule struct {
	Match     map[string]string `toml:"match"`
	Set       map[string]string `toml:"set"`
	Namespace string            `toml:"namespace"`
	Kind      string            `toml:"kind"`
	Remove    bool              `toml:"remove"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Generator: Generator{
			Convention:  "c",
			PointerSize: 8,
			Output:      "plans.cbor",
		},
		Dir: ".",
	}
}

// Load reads gibind.toml from dir.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Config("cannot read "+path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, errors.Config("cannot resolve path "+dir, err)
	}
	return cfg, nil
}

// Parse decodes and validates configuration data. Unset generator fields
// take their defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, errors.Config("parse error", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidData).
			Value(undecoded[0].String()).
			Detail("unknown key %s", undecoded[0]).
			Build()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func invalid(path ...string) *errors.Builder {
	return errors.New(errors.PhaseConfig, errors.KindInvalidData).Path(path...)
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Generator.Convention != "c" {
		return invalid("generator", "convention").
			Value(c.Generator.Convention).
			Detail("unsupported convention %q", c.Generator.Convention).
			Build()
	}
	if c.Generator.PointerSize != 4 && c.Generator.PointerSize != 8 {
		return invalid("generator", "pointer-size").
			Value(c.Generator.PointerSize).
			Detail("pointer size must be 4 or 8").
			Build()
	}

	seen := make(map[string]bool)
	for _, ns := range c.Namespaces {
		if ns.Name == "" {
			return invalid("namespace").Detail("namespace without name").Build()
		}
		if seen[ns.Name] {
			return invalid("namespace", ns.Name).Detail("duplicate namespace %s", ns.Name).Build()
		}
		seen[ns.Name] = true
		if len(ns.Inputs) == 0 {
			return invalid("namespace", ns.Name).Detail("namespace %s has no inputs", ns.Name).Build()
		}
		for _, in := range ns.Inputs {
			if in.Path == "" {
				return invalid("namespace", ns.Name, "inputs").Detail("input without path").Build()
			}
			if _, ok := gir.ParsePlatform(in.Platform); !ok {
				return invalid("namespace", ns.Name, "inputs").
					Value(in.Platform).
					Detail("unknown platform %q", in.Platform).
					Build()
			}
		}
	}

	for i, r := range c.Patches {
		if gir.ParseKind(r.Kind) == gir.KindUnknown {
			return invalid("patch").Value(i).Detail("patch %d: unknown kind %q", i, r.Kind).Build()
		}
		if !r.Remove && len(r.Set) == 0 {
			return invalid("patch").Value(i).Detail("patch %d neither sets nor removes", i).Build()
		}
		if r.Remove && len(r.Set) > 0 {
			return invalid("patch").Value(i).Detail("patch %d both sets and removes", i).Build()
		}
	}
	return nil
}

// Namespace returns the configuration of a namespace by name.
func (c *Config) Namespace(name string) (Namespace, bool) {
	i := slices.IndexFunc(c.Namespaces, func(ns Namespace) bool { return ns.Name == name })
	if i < 0 {
		return Namespace{}, false
	}
	return c.Namespaces[i], true
}

// InputPath resolves an input path against the configuration directory.
func (c *Config) InputPath(in Input) string {
	if filepath.IsAbs(in.Path) || c.Dir == "" {
		return in.Path
	}
	return filepath.Join(c.Dir, in.Path)
}

// OutputPath resolves the plan output path against the configuration
// directory.
func (c *Config) OutputPath() string {
	if filepath.IsAbs(c.Generator.Output) || c.Dir == "" {
		return c.Generator.Output
	}
	return filepath.Join(c.Dir, c.Generator.Output)
}

// Rules converts the declarative patches, in file order.
func (c *Config) Rules() []*patch.Rule {
	rules := make([]*patch.Rule, 0, len(c.Patches))
	for _, r := range c.Patches {
		rules = append(rules, &patch.Rule{
			Match:     r.Match,
			Set:       r.Set,
			Namespace: r.Namespace,
			Kind:      gir.ParseKind(r.Kind),
			Remove:    r.Remove,
		})
	}
	return rules
}

// Exclusions returns the excluded names of every namespace.
func (c *Config) Exclusions() []string {
	var out []string
	for _, ns := range c.Namespaces {
		out = append(out, ns.Exclude...)
	}
	return out
}
