// Package cleanup implements C6 (spec.md §4.6): once every earlier pass has
// extracted what it needs from the boundary sentinel calls, this erases
// them. tx_begin and tx_commit are left in place — tx_begin is retained as
// the runtime entry point, tx_commit as the region's reachable-CFG
// terminator marker other passes still consult.
//
// Translated directly from
// original_source/lib/Transforms/Transactify/TransactifyCleanup.cpp: the
// simplest component in the pipeline, kept equally simple here.
package cleanup

import (
	"github.com/aclements/tmelide/internal/diag"
	"github.com/aclements/tmelide/internal/ir"
	"github.com/aclements/tmelide/internal/region"
)

var boundarySentinels = [4]string{
	region.FastpathBegin,
	region.FastpathEnd,
	region.SlowpathBegin,
	region.SlowpathEnd,
}

// Run erases the four boundary sentinels across every region of fn.
func Run(fn ir.Func, regions []*region.Region) diag.Result {
	var res diag.Result
	if len(regions) == 0 {
		return res
	}

	var toErase []ir.Inst
	for _, r := range regions {
		for _, b := range r.BoundaryBlocks() {
			for _, inst := range b.Insts() {
				call, ok := inst.(ir.Caller)
				if !ok {
					continue
				}
				f, ok := call.DirectCallee()
				if !ok {
					continue
				}
				if isBoundarySentinel(f.Name()) {
					toErase = append(toErase, inst)
				}
			}
		}
	}

	for _, inst := range toErase {
		inst.EraseFromParent()
	}
	res.Changed = len(toErase) > 0
	return res
}

func isBoundarySentinel(name string) bool {
	for _, s := range boundarySentinels {
		if name == s {
			return true
		}
	}
	return false
}
