package cleanup

import (
	"testing"

	"github.com/aclements/tmelide/internal/fakeir"
	"github.com/aclements/tmelide/internal/ir"
	"github.com/aclements/tmelide/internal/region"
)

func TestRunErasesOnlyTheFourBoundarySentinels(t *testing.T) {
	mod := fakeir.NewModule()
	fn := mod.DeclareFunction("f").(*fakeir.Func)

	txBegin := mod.DeclareFunction(region.TxBegin)
	fastBegin := mod.DeclareFunction(region.FastpathBegin)
	fastEnd := mod.DeclareFunction(region.FastpathEnd)
	slowBegin := mod.DeclareFunction(region.SlowpathBegin)
	slowEnd := mod.DeclareFunction(region.SlowpathEnd)
	txCommit := mod.DeclareFunction(region.TxCommit)

	fastEntry := fn.AddBlock()
	fastEntry.AddCall(fastBegin.Value())
	fastEntry.AddCall(fastEnd.Value())

	slowEntry := fn.AddBlock()
	slowEntry.AddCall(slowBegin.Value())

	slowExit := fn.AddBlock()
	slowExit.AddCall(slowEnd.Value())

	commit := fn.AddBlock()
	txBeginCall := commit.AddCall(txBegin.Value())
	txCommitCall := commit.AddCall(txCommit.Value())

	r := &region.Region{
		FastEntryBlock: fastEntry,
		FastExitBlock:  fastEntry,
		SlowEntryBlock: slowEntry,
		SlowExitBlock:  slowExit,
		Terminators:    map[ir.Block]bool{commit: true},
	}

	res := Run(fn, []*region.Region{r})
	if !res.Changed {
		t.Fatal("want Changed, got false")
	}

	if len(fastEntry.Insts()) != 0 {
		t.Errorf("want fast_entry_block emptied, got %d insts", len(fastEntry.Insts()))
	}
	if len(slowEntry.Insts()) != 0 {
		t.Errorf("want slow_entry_block emptied, got %d insts", len(slowEntry.Insts()))
	}
	if len(slowExit.Insts()) != 0 {
		t.Errorf("want slow_exit_block emptied, got %d insts", len(slowExit.Insts()))
	}

	commitInsts := commit.Insts()
	if len(commitInsts) != 2 || commitInsts[0] != txBeginCall || commitInsts[1] != txCommitCall {
		t.Errorf("want tx_begin and tx_commit both left in place, got %v", commitInsts)
	}
}

func TestRunNoRegionsIsNoop(t *testing.T) {
	mod := fakeir.NewModule()
	fn := mod.DeclareFunction("f").(*fakeir.Func)
	fn.AddBlock()

	res := Run(fn, nil)
	if res.Changed {
		t.Error("want Changed false with no regions")
	}
}
