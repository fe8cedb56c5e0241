// Package pipeline implements C7, the Pipeline Driver (spec.md §4.7): it
// schedules C1…C6 in the required dependency order and supplies each stage
// the analysis results it depends on.
//
// Per-function order: C1 (region.Scan), then C2 (locality.Analyze) if any
// Region was found or the function is a transactional clone, then C4
// (slowpath.Run), then C5 (barrier.Run), then C6 (cleanup.Run) last. C3
// (cloning.Run) is module-level and runs once, before any function's C5, so
// call rewriting can find each callee's clone in the module's clone table.
//
// Grounded on obj/objbrowse/main.go's shape of a small struct wiring
// together independently-testable internal packages in a fixed order.
package pipeline

import (
	"github.com/aclements/tmelide/internal/barrier"
	"github.com/aclements/tmelide/internal/cleanup"
	"github.com/aclements/tmelide/internal/cloning"
	"github.com/aclements/tmelide/internal/diag"
	"github.com/aclements/tmelide/internal/graph"
	"github.com/aclements/tmelide/internal/ir"
	"github.com/aclements/tmelide/internal/locality"
	"github.com/aclements/tmelide/internal/region"
	"github.com/aclements/tmelide/internal/slowpath"
)

// Run lowers every transaction-marked function in mod, after first running
// the module-wide clone registry pass.
func Run(mod ir.Module) diag.Result {
	var res diag.Result

	cres, _ := cloning.Run(mod)
	res.Merge(cres)

	for _, fn := range mod.Funcs() {
		res.Merge(RunFunc(mod, fn))
	}

	return res
}

// RunFunc lowers one function. It is exported so tests and cmd/tmelide can
// drive (or re-drive, for idempotence checks) a single function without a
// whole-module clone pass.
func RunFunc(mod ir.Module, fn ir.Func) diag.Result {
	var res diag.Result

	regions, err := region.Scan(fn)
	if err != nil {
		res.Add(err)
		return res
	}

	isClone := cloning.IsClone(fn.Name())
	if len(regions) == 0 && !isClone {
		return res
	}

	dom, post := domTrees(fn)
	loc := locality.Analyze(fn, regions, dom, post)

	if len(regions) > 0 {
		sres, values := slowpath.Run(fn, regions)
		res.Merge(sres)
		carryLocality(loc, values)
	}

	res.Merge(barrier.Run(mod, fn, regions, loc))
	res.Merge(cleanup.Run(fn, regions))

	return res
}

// carryLocality extends loc's two sets to also cover each slow-path clone
// of an instruction already classified on the fast path, using the value
// map C4 produced. Locality is computed once, against the pre-clone CFG
// (spec.md §4.2 takes Regions, D, and P as already-computed inputs); C4
// then duplicates the fast-path instructions those classifications refer
// to, so C5 needs the classification to hold for the clones too.
func carryLocality(loc *locality.Result, values ir.ValueMap) {
	for orig, clone := range values {
		inst, ok := orig.(ir.Inst)
		if !ok {
			continue
		}
		cloneInst, ok := clone.(ir.Inst)
		if !ok {
			continue
		}
		if loc.ThreadLocalOps[inst] {
			loc.ThreadLocalOps[cloneInst] = true
		}
		if loc.TxLocalOps[inst] {
			loc.TxLocalOps[cloneInst] = true
		}
	}
}

// domTrees builds the dominator tree D and post-dominator tree P spec.md
// §4.2 requires as C2's inputs, by adapting fn's CFG (block IDs as dense
// node indices, via internal/graph) and running internal/graph's dominance
// algorithm once each way. internal/ir has no dominator-tree constructor of
// its own: a real embedding compiler would hand the pipeline its own
// pre-computed D/P, but one still has to be built here to exercise and test
// the pipeline against internal/fakeir.
func domTrees(fn ir.Func) (dom, post ir.DomTree) {
	blocks := fn.Blocks()
	bg := graph.MakeBiGraph(funcGraph{blocks})

	d := graph.Dom(graph.IDom(bg, fn.EntryBlock().ID()))

	var exits []int
	for _, b := range blocks {
		if len(b.Succs()) == 0 {
			exits = append(exits, b.ID())
		}
	}
	rev, root := graph.PostDomGraph(bg, exits)
	p := graph.Dom(graph.IDom(rev, root))

	return &domAdapter{d}, &domAdapter{p}
}

// funcGraph adapts an ir.Func's blocks to a graph.Graph keyed by Block.ID.
type funcGraph struct {
	blocks []ir.Block
}

func (g funcGraph) NumNodes() int { return len(g.blocks) }

func (g funcGraph) Out(i int) []int {
	succs := g.blocks[i].Succs()
	out := make([]int, len(succs))
	for j, s := range succs {
		out[j] = s.ID()
	}
	return out
}

// domAdapter implements ir.DomTree over a graph.DomTree indexed by block
// ID. When tree is a post-dominator tree, its node space has one extra
// node (the synthetic exit root graph.PostDomGraph adds), but Dominates is
// only ever called with real ir.Blocks, whose IDs stay within tree's
// original node range either way.
type domAdapter struct {
	tree *graph.DomTree
}

func (d *domAdapter) Dominates(a, b ir.Block) bool {
	return d.tree.Dominates(a.ID(), b.ID())
}
