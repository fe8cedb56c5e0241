// Package locality implements C2, the Locality Analyser (spec.md §4.2):
// given a function's Regions and a pair of dominator trees, it classifies
// allocator call sites as thread-local or transaction-local so C5 knows
// which loads and stores the slow path can leave uninstrumented.
//
// The reachable-user work-list traversal is adapted from the flood-fill use
// walk in obj/internal/ssa.Func in this repository's teacher (a value's
// uses are flooded outward there to propagate liveness; here the same
// bounded-edge-set traversal propagates locality through store/load/GEP/
// bitcast edges instead).
package locality

import (
	"strings"

	"github.com/aclements/tmelide/internal/cloning"
	"github.com/aclements/tmelide/internal/ir"
	"github.com/aclements/tmelide/internal/region"
)

// Result holds the two locality sets C2 computes for one function.
// Classification is exclusive by construction: an instruction is added to
// at most one of the two maps (spec.md §3's locality maps invariant).
type Result struct {
	ThreadLocalOps map[ir.Inst]bool
	TxLocalOps     map[ir.Inst]bool
}

func newResult() *Result {
	return &Result{
		ThreadLocalOps: make(map[ir.Inst]bool),
		TxLocalOps:     make(map[ir.Inst]bool),
	}
}

// IsAllocator reports whether name is one of the allocator names C2
// recognizes: malloc, calloc, and any intrinsic variant whose name contains
// either as a substring (spec.md §4.2's "intrinsic variants whose name
// contains \"malloc\"/\"calloc\"").
func IsAllocator(name string) bool {
	return strings.Contains(name, "malloc") || strings.Contains(name, "calloc")
}

// Analyze classifies every allocator call site reachable in fn against
// regions, using the forward dominator tree dom and the post-dominator tree
// post (spec.md §4.2).
//
// The open question spec.md §9 raises over malloc locality keying is
// resolved per SPEC_FULL.md/DESIGN.md in favor of the definitions spec.md
// §4.2 already gives: thread-local keys off dominance of slow_entry_block,
// transaction-local keys off post-dominance of slow_entry_block combined
// with dominance of some terminator.
func Analyze(fn ir.Func, regions []*region.Region, dom, post ir.DomTree) *Result {
	res := newResult()

	cloneBody := cloning.IsClone(fn.Name())

	for _, b := range fn.Blocks() {
		for _, inst := range b.Insts() {
			call, ok := inst.(ir.Caller)
			if !ok {
				continue
			}
			f, ok := call.DirectCallee()
			if !ok || !IsAllocator(f.Name()) {
				continue
			}

			if cloneBody {
				floodUses(call, res.TxLocalOps)
				continue
			}

			switch classify(b, regions, dom, post) {
			case threadLocal:
				floodUses(call, res.ThreadLocalOps)
			case txLocal:
				floodUses(call, res.TxLocalOps)
			}
		}
	}

	return res
}

type classification uint8

const (
	unclassified classification = iota
	threadLocal
	txLocal
)

// classify implements spec.md §4.2's two-clause definition: thread-local if
// b dominates some region's slow_entry_block, transaction-local if b both
// post-dominates some region's slow_entry_block and dominates some region
// terminator. A block is checked against every region since an allocator
// site's relationship to the regions in its function doesn't depend on
// which region, if any, lexically encloses it.
func classify(b ir.Block, regions []*region.Region, dom, post ir.DomTree) classification {
	for _, r := range regions {
		if r.SlowEntryBlock == nil {
			continue
		}
		if dom.Dominates(b, r.SlowEntryBlock) {
			return threadLocal
		}
	}
	for _, r := range regions {
		if r.SlowEntryBlock == nil || !post.Dominates(b, r.SlowEntryBlock) {
			continue
		}
		for t := range r.Terminators {
			if dom.Dominates(b, t) {
				return txLocal
			}
		}
	}
	return unclassified
}

// floodUses implements spec.md §4.2's reachable-user graph: a work-list
// traversal from root's result value, following store/load/getelementptr/
// bitcast edges, recording only load/store leaves into set. The traversal
// always terminates because visited tracks every instruction enqueued at
// most once, and the SSA user graph of a single value is finite.
func floodUses(root ir.Inst, set map[ir.Inst]bool) {
	visited := map[ir.Inst]bool{root: true}
	queue := []ir.Inst{root}

	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]

		for _, user := range v.Users() {
			switch u := user.(type) {
			case ir.Loader:
				if u.Pointer() != ir.Value(v) {
					continue
				}
				set[u] = true
			case ir.Storer:
				if u.Pointer() != ir.Value(v) {
					continue
				}
				set[u] = true
			default:
				if user.Kind() != ir.KindGEP && user.Kind() != ir.KindBitcast {
					continue
				}
				ops := user.Operands()
				if len(ops) == 0 || ops[0] != ir.Value(v) {
					continue
				}
				if visited[user] {
					continue
				}
				visited[user] = true
				queue = append(queue, user)
			}
		}
	}
}
