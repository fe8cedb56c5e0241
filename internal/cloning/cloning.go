package cloning

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/aclements/tmelide/internal/diag"
	"github.com/aclements/tmelide/internal/ir"
)

// Run performs the whole-module pass spec.md §4.3 describes: every
// non-empty transaction_safe function is deep-cloned, the clone's
// transaction_safe flag is stripped, and the (original, clone) pairs are
// registered with the module's clone table. A function already named with
// ClonePrefix is never cloned again (idempotence), and a module with no
// transaction_safe functions registers no pairs at all.
//
// This is translated from original_source/lib/Transforms/Transactify/
// TransactionSafeCreation.cpp into the teacher's idiom of a single exported
// Run function over an interface, since spec.md §1 puts the pass-manager
// host out of scope.
func Run(mod ir.Module) (diag.Result, []ir.ClonePair) {
	var res diag.Result

	funcs := mod.Funcs()
	existing := make(map[string]bool, len(funcs))
	for _, f := range funcs {
		existing[f.Name()] = true
	}

	var pairs []ir.ClonePair
	for _, f := range funcs {
		if !f.Safe() || IsClone(f.Name()) || len(f.Blocks()) == 0 {
			continue
		}

		name := cloneName(f, existing)
		if existing[name] {
			res.Add(diag.Errorf(diag.CloneCollision, f.Name(),
				"clone target %s already exists with a differing signature", name))
			continue
		}

		clone, _, err := mod.CloneFunction(f, name)
		if err != nil {
			res.Add(diag.Errorf(diag.CloneCollision, f.Name(), "%v", err))
			continue
		}
		clone.SetSafe(false)

		existing[name] = true
		pairs = append(pairs, ir.ClonePair{Original: f, Clone: clone})
		res.Changed = true
	}

	if len(pairs) > 0 {
		mod.RegisterClonePairs(pairs)
	}
	return res, pairs
}

// cloneName builds "__transactional_clone.<mangled name of f>" (spec.md
// §4.3). f's own name is used directly when it's both non-empty and not
// already claimed in existing; otherwise a 16-character blake2b-256 hex
// digest is mangled in, which spec.md §9's resolved open question keys off
// the function's declared source position. The host IR contract here
// (internal/ir) carries no source-location API, so the digest is taken over
// f's own address instead — the closest stable per-declaration identity
// this boundary exposes, and, like a source position, invariant across
// nothing but this one compilation's lifetime.
func cloneName(f ir.Func, existing map[string]bool) string {
	base := f.Name()
	if base != "" {
		candidate := ClonePrefix + "." + base
		if !existing[candidate] {
			return candidate
		}
	}

	digest := mangle(f)
	if base == "" {
		return ClonePrefix + "." + digest
	}
	return ClonePrefix + "." + base + "." + digest
}

func mangle(f ir.Func) string {
	h, _ := blake2b.New256(nil)
	fmt.Fprintf(h, "%p", f.Value())
	return hex.EncodeToString(h.Sum(nil))[:16]
}
