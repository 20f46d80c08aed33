// Package gibind turns GObject-Introspection style declaration trees into
// foreign-call plans for language bindings.
//
// The library takes already-parsed declaration trees (one per namespace and
// platform), normalizes them and derives, for every callable, a Call Plan:
// the foreign layouts of the arguments and the return value, the conversion
// applied to each argument, ownership transfer and error-slot handling.
// Textual emission of source code is left to the consumer of the plans.
//
// # Architecture Overview
//
//	gibind/              Root package with the runtime surface used by bindings
//	├── gir/             Declaration tree, typed views, merge, reference resolution
//	├── patch/           Ordered correction patches applied before merging
//	├── plan/            Call Plan derivation (classification, layouts, ownership)
//	├── proxy/           Identity-stable wrappers over foreign addresses
//	├── interop/         Executes Call Plans against a foreign address space
//	├── config/          gibind.toml configuration
//	├── generator/       Pipeline: load, patch, merge, filter, plan
//	├── errors/          Structured error types
//	└── cmd/gibind/      Command line tool and interactive plan browser
//
// # Quick Start
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	gen := generator.New(cfg)
//	report, err := gen.Run(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, u := range report.Units {
//	    fmt.Println(u.Name, len(u.Plans))
//	}
//
// # Error Classes
//
// Malformed cross references in the input are generation defects: they abort
// the affected unit and are reported by the generator. Native failures declared
// by the interface description (GError) are returned to callers of executed
// bindings as *interop.GError values. A fault of the foreign-call primitive
// itself panics; it indicates a broken plan, not a runtime data condition.
//
// # Thread Safety
//
// Generation is single threaded. The proxy registry is safe for concurrent
// use, including from foreign callbacks on threads the program does not own.
package gibind
