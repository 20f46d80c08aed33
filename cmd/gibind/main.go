package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/gibind/config"
	"github.com/wippyai/gibind/generator"
	"github.com/wippyai/gibind/gir"
	"github.com/wippyai/gibind/interop"
	"github.com/wippyai/gibind/patch"
	"github.com/wippyai/gibind/plan"
	"github.com/wippyai/gibind/proxy"
)

func main() {
	cmd := &cli.Command{
		Name:  "gibind",
		Usage: "Derive Call Plans from introspection snapshots",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Log debug output",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Directory containing " + config.FileName,
				Value:   ".",
			},
		},
		Before: setupLogging,
		Commands: []*cli.Command{
			{
				Name:   "plan",
				Usage:  "Load, patch and merge the configured snapshots and write Call Plans",
				Action: planAction,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o", "output"},
						Usage:   "Override the configured output file",
					},
					&cli.BoolFlag{
						Name:  "strict",
						Usage: "Fail when any plan failed or a reference is unresolved",
					},
				},
			},
			{
				Name:      "inspect",
				Usage:     "Print the Call Plans of a plan file",
				ArgsUsage: "[plans.cbor]",
				Action:    inspectAction,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "interactive",
						Aliases: []string{"i"},
						Usage:   "Browse plans in a terminal UI",
					},
					&cli.StringFlag{
						Name:    "filter",
						Aliases: []string{"f"},
						Usage:   "Show only plans whose name contains this substring",
					},
					&cli.BoolFlag{
						Name:  "steps",
						Usage: "Print the step list of every plan",
					},
				},
			},
			{
				Name:   "patch",
				Usage:  "Apply the patch list to one snapshot and write the result",
				Action: patchAction,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "in",
						Usage:    "Snapshot to read",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "out",
						Usage:    "File to write",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "namespace",
						Usage: "Namespace to select from a repository snapshot",
					},
					&cli.StringFlag{
						Name:  "platform",
						Usage: "Platform to tag the snapshot with (linux, windows, macos)",
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogging(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cmd.Bool("verbose") {
		logger, err = zap.NewDevelopment()
	} else {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		cfg.Encoding = "console"
		logger, err = cfg.Build()
	}
	if err != nil {
		return ctx, err
	}
	gir.SetLogger(logger.Named("gir"))
	patch.SetLogger(logger.Named("patch"))
	plan.SetLogger(logger.Named("plan"))
	generator.SetLogger(logger.Named("generator"))
	interop.SetLogger(logger.Named("interop"))
	proxy.SetLogger(logger.Named("proxy"))
	return ctx, nil
}

func planAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}
	gen := generator.New(cfg)
	report, err := gen.Run(ctx)
	if err != nil {
		return err
	}

	output := cfg.OutputPath()
	if o := cmd.String("out"); o != "" {
		output = o
	}
	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create %s: %w", output, err)
	}
	if err := gen.WritePlans(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	plans := 0
	for _, u := range report.Units {
		plans += len(u.Plans)
	}
	fmt.Printf("Units: %d\n", len(report.Units))
	fmt.Printf("Plans: %d\n", plans)
	fmt.Printf("Excluded: %d\n", len(report.Excluded))
	for _, fail := range report.Failures {
		fmt.Fprintf(os.Stderr, "failed: %v\n", fail)
	}
	missingErr := report.Err()
	if missingErr != nil {
		fmt.Fprintf(os.Stderr, "%v\n", missingErr)
	}
	fmt.Printf("Wrote %s\n", output)

	if cmd.Bool("strict") {
		if len(report.Failures) > 0 {
			return fmt.Errorf("%d plan failures", len(report.Failures))
		}
		return missingErr
	}
	return nil
}

func inspectAction(ctx context.Context, cmd *cli.Command) error {
	filename := cmd.Args().First()
	if filename == "" {
		cfg, err := config.Load(cmd.String("config"))
		if err != nil {
			return err
		}
		filename = cfg.OutputPath()
	}
	units, err := readPlans(filename)
	if err != nil {
		return err
	}

	if cmd.Bool("interactive") {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return fmt.Errorf("interactive mode needs a terminal")
		}
		return runInteractive(filename, units, cmd.String("filter"))
	}
	printPlans(os.Stdout, units, cmd.String("filter"), cmd.Bool("steps"))
	return nil
}

func readPlans(filename string) ([]*plan.Unit, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	defer f.Close()
	return plan.Decode(f)
}

func printPlans(w io.Writer, units []*plan.Unit, filter string, steps bool) {
	for _, u := range units {
		var matched []*plan.Plan
		for _, p := range u.Plans {
			if filter == "" || strings.Contains(p.String(), filter) {
				matched = append(matched, p)
			}
		}
		if len(matched) == 0 && filter != "" {
			continue
		}
		fmt.Fprintf(w, "%s.%s (%s, %s)\n", u.Namespace, u.Name, u.Kind, u.Platforms)
		for _, p := range matched {
			fmt.Fprintf(w, "  %s\n    %s %s\n", p, p.Symbol, p.Signature())
			if steps {
				for _, s := range p.Steps {
					fmt.Fprintf(w, "      %s\n", s)
				}
			}
		}
	}
}

func patchAction(ctx context.Context, cmd *cli.Command) error {
	cfg := config.Default()
	dir := cmd.String("config")
	if _, err := os.Stat(filepath.Join(dir, config.FileName)); err == nil {
		if cfg, err = config.Load(dir); err != nil {
			return err
		}
	}

	in, err := os.Open(cmd.String("in"))
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	root, err := gir.DecodeTree(in)
	in.Close()
	if err != nil {
		return err
	}

	if root, err = selectNamespace(root, cmd.String("namespace")); err != nil {
		return err
	}

	var platforms gir.Platform
	if name := cmd.String("platform"); name != "" {
		var ok bool
		if platforms, ok = gir.ParsePlatform(name); !ok {
			return fmt.Errorf("unknown platform %q", name)
		}
	}
	root = generator.New(cfg).Normalize(root, platforms)

	out, err := os.Create(cmd.String("out"))
	if err != nil {
		return fmt.Errorf("create %s: %w", cmd.String("out"), err)
	}
	if err := gir.EncodeTree(out, root); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// selectNamespace returns the namespace node of a snapshot. An empty name
// accepts a namespace root or a repository declaring exactly one namespace.
func selectNamespace(root *gir.Node, name string) (*gir.Node, error) {
	if root.Kind() == gir.KindNamespace {
		if name != "" && root.Name() != name {
			return nil, fmt.Errorf("snapshot declares namespace %s, not %s", root.Name(), name)
		}
		return root, nil
	}
	var candidates []*gir.Node
	for _, ns := range root.ChildrenOf(gir.KindNamespace) {
		if name == "" || ns.Name() == name {
			candidates = append(candidates, ns)
		}
	}
	switch len(candidates) {
	case 0:
		return nil, fmt.Errorf("snapshot does not declare namespace %q", name)
	case 1:
		return candidates[0], nil
	}
	return nil, fmt.Errorf("snapshot declares %d namespaces, select one with --namespace", len(candidates))
}
