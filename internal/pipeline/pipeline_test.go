package pipeline

import (
	"testing"

	"github.com/aclements/tmelide/internal/diag"
	"github.com/aclements/tmelide/internal/fakeir"
	"github.com/aclements/tmelide/internal/ir"
	"github.com/aclements/tmelide/internal/region"
)

// TestRunFuncLowersOneRegion builds one function with a single region, an
// allocator call on each side of the boundary (one dominating
// slow_entry_block, one post-dominating it and dominating the commit
// block), and an ordinary store inside the fast path. It exercises every
// stage C1 through C6 in one pass and checks that the two allocator-derived
// accesses, which lie outside the slow-path subgraph, are left untouched
// while the ordinary store gets a full write barrier once duplicated onto
// the slow path.
func TestRunFuncLowersOneRegion(t *testing.T) {
	mod := fakeir.NewModule()
	fn := mod.DeclareFunction("txn_widget").(*fakeir.Func)

	malloc := mod.DeclareFunction("malloc")
	txBegin := mod.DeclareFunction(region.TxBegin)
	txCommit := mod.DeclareFunction(region.TxCommit)
	fastBegin := mod.DeclareFunction(region.FastpathBegin)
	fastEnd := mod.DeclareFunction(region.FastpathEnd)
	slowBegin := mod.DeclareFunction(region.SlowpathBegin)
	slowEnd := mod.DeclareFunction(region.SlowpathEnd)

	// entry: allocates a thread-local buffer, then branches to either the
	// fast or the slow path depending on _ITM_beginTransaction's outcome.
	entry := fn.AddBlock()
	tlCall := entry.AddCall(malloc.Value())
	tlStore := entry.AddStore(tlCall, "tlVal", ir.CategoryI32)
	tlBegin := entry.AddCall(txBegin.Value())

	fastEntry := fn.AddBlock()
	fastEntry.AddCall(fastBegin.Value())
	fastStore := fastEntry.AddStore("globalPtr", "v", ir.CategoryI32)
	fastEntry.AddCall(fastEnd.Value())

	slowEntry := fn.AddBlock()
	slowEntry.AddCall(slowBegin.Value())
	slowEntry.AddCall(slowEnd.Value())

	// commit: every path converges here; an allocation here both
	// post-dominates slow_entry_block and dominates the commit terminator,
	// so it classifies transaction-local.
	commit := fn.AddBlock()
	txCall := commit.AddCall(malloc.Value())
	txStore := commit.AddStore(txCall, "txVal", ir.CategoryI32)
	txCommitCall := commit.AddCall(txCommit.Value())

	entry.SetSuccs(fastEntry, slowEntry)
	fastEntry.SetSuccs(commit)
	slowEntry.SetSuccs(commit)

	res := RunFunc(mod, fn)
	if len(res.Diagnostics) != 0 {
		t.Fatalf("want no diagnostics, got %v", res.Diagnostics)
	}
	if !res.Changed {
		t.Fatal("want Changed, got false")
	}

	// entry and commit are outside the slow-path subgraph and hold no
	// boundary sentinels, so C5 and C6 never visit them: both allocator
	// call sites and their stores survive untouched.
	entryInsts := entry.Insts()
	if len(entryInsts) != 3 || entryInsts[0] != tlCall || entryInsts[1] != tlStore || entryInsts[2] != tlBegin {
		t.Errorf("want entry untouched, got %v", entryInsts)
	}
	commitInsts := commit.Insts()
	if len(commitInsts) != 3 || commitInsts[0] != txCall || commitInsts[1] != txStore || commitInsts[2] != txCommitCall {
		t.Errorf("want commit untouched, got %v", commitInsts)
	}

	// fastEntry is the real fast path: C6 strips its boundary sentinels,
	// leaving the bare, uninstrumented store that runs when no retry is
	// needed.
	fastInsts := fastEntry.Insts()
	if len(fastInsts) != 1 || fastInsts[0] != fastStore {
		t.Fatalf("want fast_entry_block left with just the original store, got %v", fastInsts)
	}

	// slow_entry_block was split by C4 and then emptied of its one
	// remaining sentinel by C6; it now leads into the cloned fast path.
	if len(slowEntry.Insts()) != 0 {
		t.Errorf("want slow_entry_block emptied, got %d insts", len(slowEntry.Insts()))
	}
	succs := slowEntry.Succs()
	if len(succs) != 1 {
		t.Fatalf("want slow_entry_block to have 1 successor, got %d", len(succs))
	}
	clone, ok := succs[0].(*fakeir.Block)
	if !ok {
		t.Fatal("want slow_entry_block's successor to be a fakeir.Block")
	}

	// The duplicated store was never classified by C2 (it isn't reachable
	// from either allocator call), so C5 must instrument it with a full
	// write barrier rather than leaving it bare or log-only.
	cloneInsts := clone.Insts()
	if len(cloneInsts) != 1 {
		t.Fatalf("want 1 inst in the cloned fast path, got %d", len(cloneInsts))
	}
	call, ok := cloneInsts[0].(ir.Caller)
	if !ok {
		t.Fatal("want the cloned store replaced by a call")
	}
	f, ok := call.DirectCallee()
	if !ok || f.Name() != "_ITM_WU4" {
		t.Errorf("want the clone's store barrier to be _ITM_WU4, got %v", f)
	}

	cloneSuccs := clone.Succs()
	if len(cloneSuccs) != 1 {
		t.Fatalf("want the clone to have 1 successor, got %d", len(cloneSuccs))
	}
	slowExit, ok := cloneSuccs[0].(*fakeir.Block)
	if !ok {
		t.Fatal("want the clone's successor to be a fakeir.Block")
	}
	if len(slowExit.Insts()) != 0 {
		t.Errorf("want slow_exit_block emptied by C6, got %d insts", len(slowExit.Insts()))
	}
	exitSuccs := slowExit.Succs()
	if len(exitSuccs) != 1 || exitSuccs[0] != ir.Block(commit) {
		t.Errorf("want slow_exit_block to lead into commit, got %v", exitSuccs)
	}
}

// TestRunFuncNoRegionAndNotCloneIsNoop checks that a function with no
// _ITM_beginTransaction sentinel and no __transactional_clone. prefix is
// left alone: C2 through C6 never even need to compute anything for it.
func TestRunFuncNoRegionAndNotCloneIsNoop(t *testing.T) {
	mod := fakeir.NewModule()
	fn := mod.DeclareFunction("ordinary").(*fakeir.Func)
	b := fn.AddBlock()
	b.AddStore("ptr", "val", ir.CategoryI32)

	res := RunFunc(mod, fn)
	if res.Changed {
		t.Error("want Changed false for a function with no transactional region")
	}
	if len(b.Insts()) != 1 {
		t.Errorf("want the store left in place, got %d insts", len(b.Insts()))
	}
}

// TestRunFuncMalformedRegionReportsDiagnostic checks that a scan failure is
// surfaced as a diagnostic and stops RunFunc before any later stage runs.
func TestRunFuncMalformedRegionReportsDiagnostic(t *testing.T) {
	mod := fakeir.NewModule()
	fn := mod.DeclareFunction("broken").(*fakeir.Func)
	txCommit := mod.DeclareFunction(region.TxCommit)

	b := fn.AddBlock()
	b.AddCall(txCommit.Value())

	res := RunFunc(mod, fn)
	if len(res.Diagnostics) != 1 {
		t.Fatalf("want 1 diagnostic, got %d", len(res.Diagnostics))
	}
	if res.Diagnostics[0].Kind != diag.MalformedRegion {
		t.Errorf("want a MalformedRegion diagnostic, got %v", res.Diagnostics[0].Kind)
	}
}

// TestRunClonesSafeFunctionBeforeLoweringCallers checks C7's module-level
// ordering guarantee: Run clones every transaction_safe function before any
// function's slow path is rewritten, so a direct call to a safe callee
// resolves to the clone's name rather than being left dangling.
func TestRunClonesSafeFunctionBeforeLoweringCallers(t *testing.T) {
	mod := fakeir.NewModule()

	push := mod.DeclareFunction("push").(*fakeir.Func)
	push.SetSafe(true)
	push.AddBlock().AddStore("ptr", "val", ir.CategoryI32)

	caller := mod.DeclareFunction("txn_caller").(*fakeir.Func)
	txBegin := mod.DeclareFunction(region.TxBegin)
	txCommit := mod.DeclareFunction(region.TxCommit)
	fastBegin := mod.DeclareFunction(region.FastpathBegin)
	fastEnd := mod.DeclareFunction(region.FastpathEnd)
	slowBegin := mod.DeclareFunction(region.SlowpathBegin)
	slowEnd := mod.DeclareFunction(region.SlowpathEnd)

	entry := caller.AddBlock()
	entry.AddCall(txBegin.Value())

	fastEntry := caller.AddBlock()
	fastEntry.AddCall(fastBegin.Value())
	fastEntry.AddCall(push.Value())
	fastEntry.AddCall(fastEnd.Value())

	slowEntry := caller.AddBlock()
	slowEntry.AddCall(slowBegin.Value())
	slowEntry.AddCall(slowEnd.Value())

	commit := caller.AddBlock()
	commit.AddCall(txCommit.Value())

	entry.SetSuccs(fastEntry, slowEntry)
	fastEntry.SetSuccs(commit)
	slowEntry.SetSuccs(commit)

	res := Run(mod)
	if len(res.Diagnostics) != 0 {
		t.Fatalf("want no diagnostics, got %v", res.Diagnostics)
	}

	pairs := mod.ClonePairs()
	if len(pairs) != 1 {
		t.Fatalf("want 1 clone pair, got %d", len(pairs))
	}

	slowSucc := slowEntry.Succs()[0].(*fakeir.Block)
	var found bool
	for _, inst := range slowSucc.Insts() {
		call, ok := inst.(ir.Caller)
		if !ok {
			continue
		}
		f, ok := call.DirectCallee()
		if ok && f == pairs[0].Clone {
			found = true
		}
	}
	if !found {
		t.Error("want the cloned slow path's call to push redirected to the clone")
	}
}
