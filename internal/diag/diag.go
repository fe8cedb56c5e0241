// Package diag holds the error kinds and the changed/unchanged reporting
// protocol every pass in the pipeline uses (spec.md §5, §7). There is no
// framework here, deliberately: the teacher package this is adapted from
// (github.com/aclements/go-misc/obj) reports failures with plain
// fmt.Errorf-wrapped errors and nothing more, and this tree follows suit.
package diag

import "fmt"

// Kind discriminates the four error kinds spec.md §7 names.
type Kind uint8

const (
	// MalformedRegion means sentinel calls were missing or out of
	// order. The function that triggered it must be skipped with no
	// partial mutation.
	MalformedRegion Kind = iota
	// UnsupportedType means a load/store's type category has no
	// matching ITM barrier (spec.md §7: MMX, arrays, unsupported
	// integer widths, unsupported 128-bit integer vector lanes).
	UnsupportedType
	// CloneCollision means a clone's target name already exists with a
	// differing signature.
	CloneCollision
	// UnresolvableCall means a call needs a clone that doesn't exist in
	// the module.
	UnresolvableCall
)

func (k Kind) String() string {
	switch k {
	case MalformedRegion:
		return "malformed region"
	case UnsupportedType:
		return "unsupported type"
	case CloneCollision:
		return "clone collision"
	case UnresolvableCall:
		return "unresolvable call"
	default:
		return "unknown diagnostic"
	}
}

// Error is a diagnostic of one of the four kinds above, always naming the
// function it occurred in.
type Error struct {
	Kind    Kind
	Func    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Func, e.Kind, e.Message)
}

// Errorf builds an *Error for function fn.
func Errorf(kind Kind, fn, format string, args ...any) *Error {
	return &Error{Kind: kind, Func: fn, Message: fmt.Sprintf(format, args...)}
}

// Result is what every pass returns: whether it mutated the IR, and any
// non-fatal diagnostics it collected along the way. Per spec.md §7, no kind
// is fatal to the compilation — MalformedRegion causes only the offending
// function to be skipped (Changed stays false, the diagnostic is recorded),
// and the other three kinds leave the offending instruction untouched but
// otherwise let the pass continue and still report Changed if anything else
// in the function was rewritten.
type Result struct {
	Changed     bool
	Diagnostics []*Error
}

// Merge folds o into r in place, OR-ing Changed and appending diagnostics.
func (r *Result) Merge(o Result) {
	r.Changed = r.Changed || o.Changed
	r.Diagnostics = append(r.Diagnostics, o.Diagnostics...)
}

// Add records a diagnostic without affecting Changed.
func (r *Result) Add(err *Error) {
	r.Diagnostics = append(r.Diagnostics, err)
}
