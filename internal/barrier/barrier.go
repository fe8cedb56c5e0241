// Package barrier implements C5, the Barrier Rewriter (spec.md §4.5): for
// every memory-accessing or call instruction reachable inside a region's
// slow-path subgraph, or anywhere inside a __transactional_clone.* function,
// it substitutes an ABI-conformant call into the STM runtime.
//
// The closed type-category enumeration and its suffix table are modeled on
// obj/internal/asm.Op/asm.Loc in this repository's teacher (a small closed
// uint8 enumeration with arithmetic/lookup methods), and the
// per-instruction-kind dispatch translates
// original_source/lib/Transforms/Transactify/LoadStoreBarrierInsertion.cpp
// and ReplaceCallInsideTransaction.cpp into one table.
package barrier

import (
	"github.com/aclements/tmelide/internal/cloning"
	"github.com/aclements/tmelide/internal/diag"
	"github.com/aclements/tmelide/internal/ir"
	"github.com/aclements/tmelide/internal/locality"
	"github.com/aclements/tmelide/internal/region"
)

// GetTMCloneSafe is the runtime entry point used to resolve an indirect
// transaction_safe call target (spec.md §4.5). It is called lazily at each
// indirect call site; nothing is hoisted to a function prologue.
const GetTMCloneSafe = "_ITM_getTMCloneSafe"

// LogByteRange is declared (spec.md §4.5) but never invoked by the default
// per-instruction dispatch: nothing in this pipeline performs a byte-range
// log of a variable-length region, so there is no call site to emit it at
// (spec.md §9).
const LogByteRange = "_ITM_LB"

// suffix returns the ABI type suffix a barrier name uses for c, or "" if c
// has no barrier (spec.md §7's UnsupportedType: MMX, arrays, unsupported
// integer widths and 128-bit integer vector lanes have no entry here and
// every such Category falls through to the default case).
func suffix(c ir.Category) string {
	switch c {
	case ir.CategoryI8:
		return "U1"
	case ir.CategoryI16:
		return "U2"
	case ir.CategoryI32:
		return "U4"
	case ir.CategoryI64, ir.CategoryPointer:
		return "U8"
	case ir.CategoryF32:
		return "F"
	case ir.CategoryF64:
		return "D"
	case ir.CategoryV128F32:
		return "M128"
	case ir.CategoryV128I32:
		return "M128i"
	case ir.CategoryV128I64:
		return "M128ii"
	case ir.CategoryV128F64:
		return "M128d"
	case ir.CategoryV256F32:
		return "M256"
	case ir.CategoryV256I32:
		return "M256i"
	case ir.CategoryV256I64:
		return "M256ii"
	case ir.CategoryV256F64:
		return "M256d"
	default:
		return ""
	}
}

// barrierName builds "_ITM_<op><suffix>" for op in {R, W, L} (spec.md
// §4.5's barrier name scheme), reporting false if c has no ABI suffix.
func barrierName(op string, c ir.Category) (string, bool) {
	s := suffix(c)
	if s == "" {
		return "", false
	}
	return "_ITM_" + op + s, true
}

// Run rewrites fn's region-bounded slow paths (spec.md §4.5's first
// traversal) using the locality classification loc, which must already have
// been computed for fn by internal/locality. fn may also be a
// __transactional_clone.* body, in which case every block of fn is in
// scope, not just blocks reachable from a region's slow_entry_block.
func Run(mod ir.Module, fn ir.Func, regions []*region.Region, loc *locality.Result) diag.Result {
	var res diag.Result

	if cloning.IsClone(fn.Name()) {
		res.Merge(rewriteBlocks(mod, fn, fn.Blocks(), loc))
		return res
	}

	for _, r := range regions {
		if r.SlowEntryBlock == nil {
			res.Add(diag.Errorf(diag.MalformedRegion, fn.Name(),
				"region has no slow_entry_block; C4 must run before C5"))
			continue
		}
		blocks := bfsOrder(r.SlowEntryBlock, r.Terminators)
		res.Merge(rewriteBlocks(mod, fn, blocks, loc))
	}

	return res
}

func bfsOrder(root ir.Block, stop map[ir.Block]bool) []ir.Block {
	visited := map[ir.Block]bool{root: true}
	queue := []ir.Block{root}
	var order []ir.Block

	for len(queue) > 0 {
		b := queue[0]
		queue = queue[1:]
		order = append(order, b)

		for _, s := range b.Succs() {
			if stop[s] || visited[s] {
				continue
			}
			visited[s] = true
			queue = append(queue, s)
		}
	}
	return order
}

func rewriteBlocks(mod ir.Module, fn ir.Func, blocks []ir.Block, loc *locality.Result) diag.Result {
	var res diag.Result
	for _, b := range blocks {
		var toErase []ir.Inst
		for _, inst := range b.Insts() {
			switch v := inst.(type) {
			case ir.MemIntrinsic:
				name := "_ITM_" + v.Name()
				callee := mod.DeclareFunction(name)
				args := v.Args()
				if len(args) > 3 {
					args = args[:3]
				}
				b.InsertCallBefore(inst, callee.Value(), args)
				toErase = append(toErase, inst)
				res.Changed = true

			case ir.Storer:
				// Storer is checked before Loader: a store also has
				// Category and Pointer, so it satisfies ir.Loader too.
				if loc.TxLocalOps[inst] {
					continue
				}
				if loc.ThreadLocalOps[inst] {
					name, ok := barrierName("L", v.Category())
					if !ok {
						res.Add(diag.Errorf(diag.UnsupportedType, fn.Name(),
							"store of category %s has no ITM log barrier", v.Category()))
						continue
					}
					callee := mod.DeclareFunction(name)
					b.InsertCallBefore(inst, callee.Value(), []ir.Value{v.Pointer()})
					res.Changed = true
					continue
				}
				name, ok := barrierName("W", v.Category())
				if !ok {
					res.Add(diag.Errorf(diag.UnsupportedType, fn.Name(),
						"store of category %s has no ITM barrier", v.Category()))
					continue
				}
				callee := mod.DeclareFunction(name)
				b.InsertCallBefore(inst, callee.Value(), []ir.Value{v.Pointer(), v.Stored()})
				toErase = append(toErase, inst)
				res.Changed = true

			case ir.Loader:
				if loc.ThreadLocalOps[inst] || loc.TxLocalOps[inst] {
					continue
				}
				name, ok := barrierName("R", v.Category())
				if !ok {
					res.Add(diag.Errorf(diag.UnsupportedType, fn.Name(),
						"load of category %s has no ITM barrier", v.Category()))
					continue
				}
				callee := mod.DeclareFunction(name)
				replacement := b.InsertCallBefore(inst, callee.Value(), []ir.Value{v.Pointer()})
				inst.ReplaceAllUsesWith(replacement)
				toErase = append(toErase, inst)
				res.Changed = true

			case ir.Caller:
				changed, err := rewriteCall(mod, fn.Name(), b, v)
				if err != nil {
					res.Add(err)
				}
				if changed {
					res.Changed = true
				}
			}
		}

		for _, inst := range toErase {
			inst.EraseFromParent()
		}
	}
	return res
}

// rewriteCall implements spec.md §4.5's call-rewriting clauses for a Caller
// that isn't a MemIntrinsic (MemIntrinsic is handled in rewriteBlocks before
// the type switch ever reaches the plain Caller case). fnName is the
// enclosing function's name, used only to attribute a diagnostic.
func rewriteCall(mod ir.Module, fnName string, b ir.Block, call ir.Caller) (bool, *diag.Error) {
	if f, ok := call.DirectCallee(); ok {
		switch {
		case f.Safe():
			clone, ok := findClone(mod, f)
			if !ok {
				return false, diag.Errorf(diag.UnresolvableCall, fnName,
					"call to transaction_safe function %s has no registered clone", f.Name())
			}
			call.SetCallee(clone.Value())
			return true, nil
		case isAllocatorControl(f.Name()):
			callee := mod.DeclareFunction("_ITM_" + f.Name())
			call.SetCallee(callee.Value())
			return true, nil
		}
		return false, nil
	}

	if !call.TransactionSafe() {
		return false, nil
	}
	resolver := mod.DeclareFunction(GetTMCloneSafe)
	resolved := b.InsertCallBefore(call, resolver.Value(), []ir.Value{call.Callee()})
	cast := b.InsertBitcastBefore(call, resolved)
	call.SetCallee(cast)
	return true, nil
}

// findClone looks up the clone C3 registered for f in mod's clone table,
// rather than reconstructing its name: cloning.cloneName falls back to a
// mangled name when the plain "ClonePrefix.f.Name()" is already claimed, so
// rebuilding the name here could resolve to the wrong (or a nonexistent)
// function. A callee with no registered pair means C3 either never ran
// over it (bodyless transaction_safe functions are skipped, spec.md §4.3)
// or hit a CloneCollision, in which case spec.md §7's UnresolvableCall
// applies and the call must be left untouched.
func findClone(mod ir.Module, f ir.Func) (ir.Func, bool) {
	for _, p := range mod.ClonePairs() {
		if p.Original == f {
			return p.Clone, true
		}
	}
	return nil, false
}

// isAllocatorControl reports whether name is one of the three allocator
// lifecycle functions C5 redirects unconditionally to their ITM
// counterparts. This is the exact-name clause spec.md §4.5 lists, distinct
// from internal/locality's broader "intrinsic variants whose name contains
// malloc/calloc" match, which only governs locality classification.
func isAllocatorControl(name string) bool {
	switch name {
	case "malloc", "calloc", "free":
		return true
	}
	return false
}
