// Package slowpath implements C4, the Slow-Path Synthesizer (spec.md §4.4):
// for each Region it splits slow_entry_block to create slow_exit_block, then
// duplicates the fast-path block subgraph and threads the duplicate between
// slow_entry_block and slow_exit_block.
//
// Not much of original_source/lib/Transforms/Transactify/SlowPathCreation.cpp
// survives past its runImpl stub, so this is mostly new code written
// directly against internal/ir, in the teacher's procedural,
// one-function-per-step style (see obj/internal/asm/bb.go's
// BasicBlocks construction, which this BFS-with-visited-set shape is
// adapted from).
package slowpath

import (
	"github.com/aclements/tmelide/internal/diag"
	"github.com/aclements/tmelide/internal/ir"
	"github.com/aclements/tmelide/internal/region"
)

// Run synthesizes the slow-path subgraph for every region of fn, and
// returns the union, across every region, of the value map from each
// original fast-path instruction to its slow-path clone. Callers that hold
// analysis results keyed by the pre-clone instructions (internal/locality's
// Result, notably) use this map to carry that classification over to the
// newly created slow-path instructions.
func Run(fn ir.Func, regions []*region.Region) (diag.Result, ir.ValueMap) {
	var res diag.Result
	values := make(ir.ValueMap)
	for _, r := range regions {
		err := synthesize(fn, r, values)
		if err != nil {
			res.Add(err)
			continue
		}
		res.Changed = true
	}
	return res, values
}

func synthesize(fn ir.Func, r *region.Region, values ir.ValueMap) *diag.Error {
	slowEnd, err := findSentinel(r.SlowEntryBlock, region.SlowpathEnd, fn.Name())
	if err != nil {
		return err
	}
	r.SlowExitBlock = r.SlowEntryBlock.SplitBefore(slowEnd)

	order := bfsOrder(r.FastEntryBlock, r.Terminators)

	blocks := make(map[ir.Block]ir.Block, len(order))

	for _, b := range order {
		clone, vm := b.Clone()
		fn.InsertBlock(clone)
		blocks[b] = clone
		for k, v := range vm {
			values[k] = v
		}
	}

	// Re-wire each clone's successor edges: an edge to another block of
	// this same fast-path subgraph is redirected to that block's clone;
	// the fast-path exit's edge out of the subgraph is redirected to
	// slow_exit_block instead, since the clone now lives between
	// slow_entry_block and slow_exit_block rather than wherever the fast
	// path originally went (spec.md §4.4 step 2). Any other edge leaving
	// the subgraph keeps Clone's copy of the original target.
	for _, b := range order {
		clone := blocks[b]
		for i, s := range b.Succs() {
			switch {
			case blocks[s] != nil:
				clone.SetSucc(i, blocks[s])
			case b == r.FastExitBlock:
				clone.SetSucc(i, r.SlowExitBlock)
			}
		}

		if begin, ok := findSentinelInst(clone, region.FastpathBegin); ok {
			begin.EraseFromParent()
		}
		if end, ok := findSentinelInst(clone, region.FastpathEnd); ok {
			end.EraseFromParent()
		}
	}

	r.SlowEntryBlock.SetSucc(0, blocks[r.FastEntryBlock])

	// Rewrite pass: re-walk every clone and rebind operands that refer to
	// an original value cloned in this same pass, leaving uses of values
	// external to the slow-path subgraph (globals, arguments, values
	// defined outside the cloned blocks) untouched.
	for _, b := range order {
		clone := blocks[b]
		for _, inst := range clone.Insts() {
			for i, u := range inst.Operands() {
				if v, ok := values[u]; ok {
					inst.SetOperand(i, v)
				}
			}
		}
	}

	return nil
}

// bfsOrder walks the blocks reachable from root without entering a block in
// stop, in insertion order of successors (spec.md §4.4's tie-break rule).
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

func findSentinelInst(b ir.Block, name string) (ir.Inst, bool) {
	for _, inst := range b.Insts() {
		call, ok := inst.(ir.Caller)
		if !ok {
			continue
		}
		if f, ok := call.DirectCallee(); ok && f.Name() == name {
			return inst, true
		}
	}
	return nil, false
}

func findSentinel(b ir.Block, name, fnName string) (ir.Inst, *diag.Error) {
	if inst, ok := findSentinelInst(b, name); ok {
		return inst, nil
	}
	return nil, diag.Errorf(diag.MalformedRegion, fnName,
		"slow_entry_block missing %s", name)
}
