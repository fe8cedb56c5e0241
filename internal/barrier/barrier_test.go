package barrier

import (
	"testing"

	"github.com/aclements/tmelide/internal/cloning"
	"github.com/aclements/tmelide/internal/diag"
	"github.com/aclements/tmelide/internal/fakeir"
	"github.com/aclements/tmelide/internal/ir"
	"github.com/aclements/tmelide/internal/locality"
	"github.com/aclements/tmelide/internal/region"
)

func emptyLocality() *locality.Result {
	return &locality.Result{ThreadLocalOps: map[ir.Inst]bool{}, TxLocalOps: map[ir.Inst]bool{}}
}

func TestRewriteLoadAndStore(t *testing.T) {
	mod := fakeir.NewModule()
	fn := mod.DeclareFunction("f").(*fakeir.Func)
	slowEntry := fn.AddBlock()

	load := slowEntry.AddLoad("ptr", ir.CategoryI32)
	store := slowEntry.AddStore("ptr", load, ir.CategoryI64)
	slowEntry.AddTerminator()

	r := &region.Region{SlowEntryBlock: slowEntry, Terminators: map[ir.Block]bool{}}
	res := Run(mod, fn, []*region.Region{r}, emptyLocality())
	if !res.Changed {
		t.Fatal("want Changed, got false")
	}

	insts := slowEntry.Insts()
	// load and store instructions are erased and replaced by calls.
	for _, inst := range insts {
		if inst == load || inst == store {
			t.Fatal("original load/store should have been erased")
		}
	}

	var calleeNames []string
	for _, inst := range insts {
		call, ok := inst.(ir.Caller)
		if !ok {
			continue
		}
		if f, ok := call.DirectCallee(); ok {
			calleeNames = append(calleeNames, f.Name())
		}
	}
	want := []string{"_ITM_RU4", "_ITM_WU8"}
	if len(calleeNames) != len(want) {
		t.Fatalf("want callees %v, got %v", want, calleeNames)
	}
	for i := range want {
		if calleeNames[i] != want[i] {
			t.Errorf("callee %d: want %s, got %s", i, want[i], calleeNames[i])
		}
	}
}

func TestClassifiedOpsAreLeftAlone(t *testing.T) {
	mod := fakeir.NewModule()
	fn := mod.DeclareFunction("f").(*fakeir.Func)
	slowEntry := fn.AddBlock()

	load := slowEntry.AddLoad("ptr", ir.CategoryI32)

	loc := emptyLocality()
	loc.TxLocalOps[load] = true

	r := &region.Region{SlowEntryBlock: slowEntry, Terminators: map[ir.Block]bool{}}
	res := Run(mod, fn, []*region.Region{r}, loc)
	if res.Changed {
		t.Error("want Changed false, a tx-local load must not be instrumented")
	}
	if slowEntry.Insts()[0] != load {
		t.Error("tx-local load should be untouched")
	}
}

func TestThreadLocalStoreGetsLogBarrierOnly(t *testing.T) {
	mod := fakeir.NewModule()
	fn := mod.DeclareFunction("f").(*fakeir.Func)
	slowEntry := fn.AddBlock()

	store := slowEntry.AddStore("ptr", "val", ir.CategoryI32)

	loc := emptyLocality()
	loc.ThreadLocalOps[store] = true

	r := &region.Region{SlowEntryBlock: slowEntry, Terminators: map[ir.Block]bool{}}
	res := Run(mod, fn, []*region.Region{r}, loc)
	if !res.Changed {
		t.Fatal("want Changed, got false")
	}

	insts := slowEntry.Insts()
	if len(insts) != 2 {
		t.Fatalf("want 2 insts (log barrier call + original store), got %d", len(insts))
	}
	call, ok := insts[0].(ir.Caller)
	if !ok {
		t.Fatal("want a call instruction first")
	}
	f, _ := call.DirectCallee()
	if f.Name() != "_ITM_LU4" {
		t.Errorf("want _ITM_LU4, got %s", f.Name())
	}
	if insts[1] != store {
		t.Error("original store should survive a log-only barrier")
	}
}

func TestMemIntrinsicRedirected(t *testing.T) {
	mod := fakeir.NewModule()
	fn := mod.DeclareFunction("f").(*fakeir.Func)
	slowEntry := fn.AddBlock()

	memcpy := mod.DeclareFunction("memcpy")
	slowEntry.AddMemIntrinsic("memcpy", memcpy.Value(), "dst", "src", "16")

	r := &region.Region{SlowEntryBlock: slowEntry, Terminators: map[ir.Block]bool{}}
	res := Run(mod, fn, []*region.Region{r}, emptyLocality())
	if !res.Changed {
		t.Fatal("want Changed, got false")
	}

	insts := slowEntry.Insts()
	if len(insts) != 1 {
		t.Fatalf("want 1 inst, got %d", len(insts))
	}
	call := insts[0].(ir.Caller)
	f, _ := call.DirectCallee()
	if f.Name() != "_ITM_memcpy" {
		t.Errorf("want _ITM_memcpy, got %s", f.Name())
	}
}

func TestDirectCallToSafeFunctionRedirectsToClone(t *testing.T) {
	mod := fakeir.NewModule()
	fn := mod.DeclareFunction("f").(*fakeir.Func)
	slowEntry := fn.AddBlock()

	push := mod.DeclareFunction("push").(*fakeir.Func)
	push.SetSafe(true)
	clone := mod.DeclareFunction(cloning.ClonePrefix + ".push")
	mod.RegisterClonePairs([]ir.ClonePair{{Original: push, Clone: clone}})
	call := slowEntry.AddCall(push.Value())

	r := &region.Region{SlowEntryBlock: slowEntry, Terminators: map[ir.Block]bool{}}
	res := Run(mod, fn, []*region.Region{r}, emptyLocality())
	if !res.Changed {
		t.Fatal("want Changed, got false")
	}

	c := call.(ir.Caller)
	f, ok := c.DirectCallee()
	if !ok || f.Name() != cloning.ClonePrefix+".push" {
		t.Errorf("want callee redirected to the clone, got %v", f)
	}
}

// TestDirectCallToSafeFunctionWithNoRegisteredCloneIsUnresolvable covers the
// case C3 never produced a clone for a transaction_safe callee (a bodyless
// declaration, or a CloneCollision that made Run skip registering a pair):
// the call must be left pointing at the original function and an
// UnresolvableCall diagnostic raised, not silently rebound to a fabricated
// clone name.
func TestDirectCallToSafeFunctionWithNoRegisteredCloneIsUnresolvable(t *testing.T) {
	mod := fakeir.NewModule()
	fn := mod.DeclareFunction("f").(*fakeir.Func)
	slowEntry := fn.AddBlock()

	push := mod.DeclareFunction("push").(*fakeir.Func)
	push.SetSafe(true)
	call := slowEntry.AddCall(push.Value())

	r := &region.Region{SlowEntryBlock: slowEntry, Terminators: map[ir.Block]bool{}}
	res := Run(mod, fn, []*region.Region{r}, emptyLocality())
	if res.Changed {
		t.Error("want Changed false, the call must be left untouched")
	}
	if len(res.Diagnostics) != 1 {
		t.Fatalf("want 1 diagnostic, got %d", len(res.Diagnostics))
	}
	if res.Diagnostics[0].Kind != diag.UnresolvableCall {
		t.Errorf("want an UnresolvableCall diagnostic, got %v", res.Diagnostics[0].Kind)
	}

	c := call.(ir.Caller)
	f, ok := c.DirectCallee()
	if !ok || f != ir.Func(push) {
		t.Errorf("want callee left pointing at push, got %v", f)
	}
}

func TestIndirectTransactionSafeCallResolvedThroughGetTMCloneSafe(t *testing.T) {
	mod := fakeir.NewModule()
	fn := mod.DeclareFunction("f").(*fakeir.Func)
	slowEntry := fn.AddBlock()

	fptr := slowEntry.AddLoad("fptr_slot", ir.CategoryPointer)
	call := slowEntry.AddIndirectCall(fptr, true)

	r := &region.Region{SlowEntryBlock: slowEntry, Terminators: map[ir.Block]bool{}}
	res := Run(mod, fn, []*region.Region{r}, emptyLocality())
	if !res.Changed {
		t.Fatal("want Changed, got false")
	}

	// The load should be instrumented first (it isn't locality-excluded),
	// then the resolver call and bitcast spliced in before the original
	// call, which should now target the bitcast result.
	insts := slowEntry.Insts()
	var resolverCall ir.Inst
	for _, inst := range insts {
		if c, ok := inst.(ir.Caller); ok {
			if f, ok := c.DirectCallee(); ok && f.Name() == GetTMCloneSafe {
				resolverCall = inst
			}
		}
	}
	if resolverCall == nil {
		t.Fatal("want a call to _ITM_getTMCloneSafe")
	}

	c := call.(ir.Caller)
	if _, ok := c.DirectCallee(); ok {
		t.Error("callee should now be the bitcast result, not a direct callee")
	}
	callee := c.Callee().(ir.Inst)
	if callee.Kind() != ir.KindBitcast {
		t.Errorf("want callee to be a bitcast, got kind %v", callee.Kind())
	}
}

func TestIndirectNonTransactionSafeCallLeftAlone(t *testing.T) {
	mod := fakeir.NewModule()
	fn := mod.DeclareFunction("f").(*fakeir.Func)
	slowEntry := fn.AddBlock()

	fptr := slowEntry.AddLoad("fptr_slot", ir.CategoryPointer)
	slowEntry.AddIndirectCall(fptr, false)

	r := &region.Region{SlowEntryBlock: slowEntry, Terminators: map[ir.Block]bool{}}
	res := Run(mod, fn, []*region.Region{r}, emptyLocality())

	for _, inst := range slowEntry.Insts() {
		if c, ok := inst.(ir.Caller); ok {
			if f, ok := c.DirectCallee(); ok && f.Name() == GetTMCloneSafe {
				t.Error("non-transaction_safe indirect call should not be resolved")
			}
		}
	}
	_ = res
}

func TestRunOnCloneBodyCoversEveryBlock(t *testing.T) {
	mod := fakeir.NewModule()
	fn := mod.DeclareFunction(cloning.ClonePrefix + ".push").(*fakeir.Func)
	b := fn.AddBlock()
	b.AddLoad("ptr", ir.CategoryI32)

	res := Run(mod, fn, nil, emptyLocality())
	if !res.Changed {
		t.Fatal("want Changed, got false; clone bodies are in scope regardless of regions")
	}
}
