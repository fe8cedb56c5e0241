// Package cloning implements C3, the Clone Registry: a module-level pass
// that deep-clones every transaction_safe function and registers the
// resulting (original, clone) pairs in the module clone table (spec.md
// §4.3).
package cloning

import "strings"

// ClonePrefix names every function C3 produces. A function already named
// with this prefix is never cloned again (spec.md §4.3's idempotence rule),
// and internal/locality and internal/barrier both use it to recognize a
// clone body without needing a back-reference to the pair that produced it.
const ClonePrefix = "__transactional_clone"

// IsClone reports whether name was produced by (or looks like it was
// produced by) the clone registry.
func IsClone(name string) bool {
	return strings.HasPrefix(name, ClonePrefix)
}
