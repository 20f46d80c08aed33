// Package errors provides structured error types for gibind.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: namespace, declaration, element path and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseResolve, errors.KindInvalidReference).
//		Namespace("Gtk").
//		Decl("gtk_widget_list_mnemonic_labels").
//		Path("return-value", "array").
//		Detail("length index 3 beyond 2 parameters").
//		Fatal().
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.OutOfBounds(errors.PhaseResolve, path, 3, 2)
//	err := errors.Unsupported(errors.PhaseFilter, "variadic function")
//
// Generation defects (malformed cross references, unsupported shapes that
// escaped the filter) are marked fatal; IsDefect reports them anywhere in a
// wrapped chain. All errors implement the standard error interface and
// support errors.Is/As.
package errors
