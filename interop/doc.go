// Package interop executes Call Plans at binding run time.
//
// A Binding walks the Steps of one plan.Plan: it marshals host arguments
// into native memory, reserves out and error slots, invokes the foreign
// function through a gibind.Invoker and demarshals the results. Transient
// buffers live in an Arena released when the call returns.
//
// The foreign side is any address space behind gibind.Memory. WrapMemory
// and ModuleInvoker connect a wazero module so native libraries compiled
// to WebAssembly can be called directly:
//
//	mod, _ := rt.Instantiate(ctx, wasm)
//	b := &interop.Binding{
//		Plan:        pl,
//		Invoker:     interop.ModuleInvoker{Module: mod},
//		Memory:      interop.WrapMemory(mod.ExportedMemory("memory")),
//		Allocator:   interop.WrapAllocator(ctx, mod.ExportedFunction("malloc"), mod.ExportedFunction("free")),
//		PointerSize: 4,
//	}
//	results, err := b.Call(ctx, args...)
//
// A non-null error slot ends the call with a *GError before any result is
// read. A fault of the invocation primitive itself is a defect and panics.
package interop
