package generator

import (
	"context"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/wippyai/gibind/config"
	"github.com/wippyai/gibind/errors"
	"github.com/wippyai/gibind/gir"
	"github.com/wippyai/gibind/patch"
	"github.com/wippyai/gibind/plan"
)

// Report is the outcome of a generation run. Units that failed are absent
// from Units and recorded in Failures; other units are unaffected.
type Report struct {
	Units    []*plan.Unit
	Failures []plan.Failure
	Excluded []plan.Exclusion
	Missing  []string
}

// Err returns the unresolved type references as one grouped error, or nil.
func (r *Report) Err() error {
	if len(r.Missing) == 0 {
		return nil
	}
	return errors.NewMissingDeclarationsError(r.Missing)
}

// Opener opens a snapshot file.
type Opener func(path string) (io.ReadCloser, error)

// Generator turns configured snapshots into Call Plans.
type Generator struct {
	cfg     *config.Config
	open    Opener
	lib     *gir.Library
	report  *Report
	patches []patch.Patch
}

// Option configures a Generator.
type Option func(*Generator)

// WithPatches appends patches after the built-in list and the configured
// rules.
func WithPatches(ps ...patch.Patch) Option {
	return func(g *Generator) {
		g.patches = append(g.patches, ps...)
	}
}

// WithOpener replaces how snapshot files are opened.
func WithOpener(open Opener) Option {
	return func(g *Generator) {
		g.open = open
	}
}

// New creates a generator. A nil configuration uses config.Default.
func New(cfg *config.Config, opts ...Option) *Generator {
	if cfg == nil {
		cfg = config.Default()
	}
	g := &Generator{
		cfg:  cfg,
		open: func(path string) (io.ReadCloser, error) { return os.Open(path) },
	}
	g.patches = append(g.patches, patch.Builtin()...)
	for _, r := range cfg.Rules() {
		g.patches = append(g.patches, r)
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Patches returns the ordered patch list applied to every snapshot.
func (g *Generator) Patches() []patch.Patch {
	return g.patches
}

// Normalize tags a snapshot with its platforms and applies the patch list.
func (g *Generator) Normalize(root *gir.Node, platforms gir.Platform) *gir.Node {
	if platforms != 0 {
		root = root.WithPlatforms(platforms)
	}
	out, _ := patch.Apply(root, g.patches...)
	return out
}

// Load reads every configured snapshot and builds the library.
func (g *Generator) Load(ctx context.Context) (*gir.Library, error) {
	lib := gir.NewLibrary()
	for _, nsCfg := range g.cfg.Namespaces {
		decls := make([]*gir.Node, 0, len(nsCfg.Inputs))
		for _, in := range nsCfg.Inputs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			root, err := g.readSnapshot(g.cfg.InputPath(in), nsCfg.Name)
			if err != nil {
				return nil, err
			}
			platforms, _ := gir.ParsePlatform(in.Platform)
			decls = append(decls, g.Normalize(root, platforms))
		}
		ns, err := gir.BuildNamespace(decls...)
		if err != nil {
			return nil, err
		}
		lib.Add(ns)
		Logger().Debug("namespace loaded",
			zap.String("namespace", ns.Name()),
			zap.Int("inputs", len(decls)),
			zap.Int("types", len(ns.Types())),
			zap.Int("functions", len(ns.Functions())),
		)
	}
	g.lib = lib
	return lib, nil
}

// readSnapshot decodes one snapshot. A repository root is unwrapped to the
// namespace it declares.
func (g *Generator) readSnapshot(path, namespace string) (*gir.Node, error) {
	f, err := g.open(path)
	if err != nil {
		return nil, errors.Load("cannot open "+path, err)
	}
	defer f.Close()

	root, err := gir.DecodeTree(f)
	if err != nil {
		return nil, err
	}
	if root.Kind() == gir.KindRepository {
		for _, c := range root.ChildrenOf(gir.KindNamespace) {
			if c.Name() == namespace {
				root = c
				break
			}
		}
	}
	if root.Kind() != gir.KindNamespace || root.Name() != namespace {
		return nil, errors.New(errors.PhaseLoad, errors.KindNotFound).
			Namespace(namespace).
			Path(path).
			Detail("snapshot does not declare namespace %s", namespace).
			Build()
	}
	return root, nil
}

// Run plans every configured namespace, loading the library first when
// needed.
func (g *Generator) Run(ctx context.Context) (*Report, error) {
	if g.lib == nil {
		if _, err := g.Load(ctx); err != nil {
			return nil, err
		}
	}

	report := &Report{}
	for _, nsCfg := range g.cfg.Namespaces {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ns, ok := g.lib.Namespace(nsCfg.Name)
		if !ok {
			continue
		}
		planner := plan.NewPlanner(g.lib,
			plan.WithPointerSize(g.cfg.Generator.PointerSize),
			plan.WithFilter(plan.NewFilter(g.lib, nsCfg.Exclude...)),
		)
		units, failures, excluded := planner.PlanNamespace(ns)
		report.Units = append(report.Units, units...)
		report.Failures = append(report.Failures, failures...)
		report.Excluded = append(report.Excluded, excluded...)
	}
	report.Missing = g.lib.Missing()

	Logger().Info("generation finished",
		zap.Int("units", len(report.Units)),
		zap.Int("failures", len(report.Failures)),
		zap.Int("excluded", len(report.Excluded)),
		zap.Int("missing", len(report.Missing)),
		zap.Int64("merge_fallbacks", gir.MergeFallbacks()),
	)
	g.report = report
	return report, nil
}

// Library returns the loaded library, or nil before Load.
func (g *Generator) Library() *gir.Library {
	return g.lib
}

// WritePlans encodes the units of the last run.
func (g *Generator) WritePlans(w io.Writer) error {
	if g.report == nil {
		return errors.New(errors.PhaseEncode, errors.KindInvalidData).
			Detail("no generation run to write").
			Build()
	}
	return plan.Encode(w, g.report.Units)
}
