package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseLoad    Phase = "load"    // snapshot decoding
	PhaseConfig  Phase = "config"  // configuration parsing
	PhasePatch   Phase = "patch"   // correction patches
	PhaseMerge   Phase = "merge"   // platform declaration merge
	PhaseResolve Phase = "resolve" // cross-reference resolution
	PhaseFilter  Phase = "filter"  // pre-generation filtering
	PhasePlan    Phase = "plan"    // call plan derivation
	PhaseEncode  Phase = "encode"  // host to native
	PhaseDecode  Phase = "decode"  // native to host
	PhaseInvoke  Phase = "invoke"  // foreign call primitive
	PhaseRuntime Phase = "runtime" // binding runtime
)

// Kind categorizes the error
type Kind string

const (
	KindOutOfBounds      Kind = "out_of_bounds"
	KindInvalidReference Kind = "invalid_reference"
	KindInvalidData      Kind = "invalid_data"
	KindUnsupported      Kind = "unsupported"
	KindNotFound         Kind = "not_found"
	KindMergeConflict    Kind = "merge_conflict"
	KindTypeMismatch     Kind = "type_mismatch"
	KindAllocation       Kind = "allocation"
	KindInvocation       Kind = "invocation"
	KindNilPointer       Kind = "nil_pointer"
	KindNative           Kind = "native"
)

// Error is the structured error type used throughout gibind
type Error struct {
	Value     any
	Cause     error
	Phase     Phase
	Kind      Kind
	Namespace string
	Decl      string
	Detail    string
	Path      []string
	fatal     bool
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Namespace != "" || e.Decl != "" {
		b.WriteString(" in ")
		if e.Namespace != "" {
			b.WriteString(e.Namespace)
			if e.Decl != "" {
				b.WriteByte('.')
			}
		}
		b.WriteString(e.Decl)
	}

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Fatal reports whether the error is a generation defect.
func (e *Error) Fatal() bool {
	return e.fatal
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the element path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Namespace sets the namespace name
func (b *Builder) Namespace(ns string) *Builder {
	b.err.Namespace = ns
	return b
}

// Decl sets the declaration name
func (b *Builder) Decl(name string) *Builder {
	b.err.Decl = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Fatal marks the error as a generation defect
func (b *Builder) Fatal() *Builder {
	b.err.fatal = true
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Defect marks err as a generation defect. Non-structured errors are wrapped.
func Defect(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		e.fatal = true
		return e
	}
	return &Error{
		Phase: PhasePlan,
		Kind:  KindInvalidData,
		Cause: err,
		fatal: true,
	}
}

// IsDefect reports whether any error in err's chain is a generation defect.
func IsDefect(err error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.fatal {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Convenience constructors for common error patterns

// OutOfBounds creates an out of bounds defect
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
		fatal:  true,
	}
}

// InvalidReference creates a malformed cross-reference defect
func InvalidReference(path []string, detail string) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindInvalidReference,
		Path:   path,
		Detail: detail,
		fatal:  true,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// NilPointer creates a nil pointer error
func NilPointer(phase Phase, path []string, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNilPointer,
		Path:   path,
		Detail: fmt.Sprintf("nil %s", what),
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, want string, got any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Path:   path,
		Detail: fmt.Sprintf("expected %s, got %T", want, got),
		Value:  got,
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size, align uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Invocation creates a foreign-call fault. It is always fatal.
func Invocation(symbol string, cause error) *Error {
	return &Error{
		Phase:  PhaseInvoke,
		Kind:   KindInvocation,
		Decl:   symbol,
		Detail: "foreign call faulted",
		Cause:  cause,
		fatal:  true,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Load creates a snapshot loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// Config creates a configuration error
func Config(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// MissingDeclaration represents a single unresolved type reference
type MissingDeclaration struct {
	Namespace string // e.g., "Gtk"
	Name      string // e.g., "Gdk.Rectangle"
}

// MissingDeclarationsError reports type references that resolve to nothing
type MissingDeclarationsError struct {
	Declarations []MissingDeclaration
}

// NewMissingDeclarationsError creates an error from a list of "namespace#name" strings
func NewMissingDeclarationsError(refs []string) *MissingDeclarationsError {
	result := &MissingDeclarationsError{
		Declarations: make([]MissingDeclaration, 0, len(refs)),
	}
	for _, ref := range refs {
		ns, name := parseRefKey(ref)
		result.Declarations = append(result.Declarations, MissingDeclaration{
			Namespace: ns,
			Name:      name,
		})
	}
	return result
}

func parseRefKey(key string) (namespace, name string) {
	ns, n, found := strings.Cut(key, "#")
	if found {
		return ns, n
	}
	return "", key
}

func (e *MissingDeclarationsError) Error() string {
	if len(e.Declarations) == 0 {
		return "[resolve] not_found: no declarations specified"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%d unresolved type reference(s):\n", len(e.Declarations)))

	byNS := make(map[string][]string)
	var nsOrder []string
	for _, d := range e.Declarations {
		if _, exists := byNS[d.Namespace]; !exists {
			nsOrder = append(nsOrder, d.Namespace)
		}
		byNS[d.Namespace] = append(byNS[d.Namespace], d.Name)
	}

	for _, ns := range nsOrder {
		b.WriteString("\n  ")
		if ns == "" {
			b.WriteString("(global)")
		} else {
			b.WriteString(ns)
		}
		b.WriteString(":\n")
		for _, name := range byNS[ns] {
			b.WriteString("    - ")
			b.WriteString(name)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *MissingDeclarationsError) Is(target error) bool {
	_, ok := target.(*MissingDeclarationsError)
	return ok
}
