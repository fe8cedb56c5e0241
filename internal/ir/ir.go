// Package ir declares the host-IR contract the tmelide pipeline is built
// against. Nothing in this package has an implementation here beyond what
// internal/fakeir supplies for tests and the cmd/tmelide driver: a real
// embedding compiler provides its own SSA representation, dominator-tree
// construction, function-cloning utility, and basic-block splitting utility
// behind these same interfaces (spec.md §1, "Deliberately out of scope").
package ir

// Value is an SSA value: the result of an Inst, a function reference, a
// constant, or a global. It carries no methods of its own, the same way
// obj/internal/asm.Arg is an empty marker interface for instruction
// arguments in the teacher package this is adapted from — callers that need
// to do something with a Value type-assert it to Inst or to one of the
// kind-specific interfaces below.
type Value interface{}

// InstKind discriminates the instructions the pipeline cares about. Kinds
// outside this set (and there are many, in any real IR) are KindOther and
// are left untouched by every pass.
type InstKind uint8

const (
	KindOther InstKind = iota
	KindLoad
	KindStore
	KindCall
	KindBitcast
	KindGEP
	KindTerminator
)

func (k InstKind) String() string {
	switch k {
	case KindLoad:
		return "load"
	case KindStore:
		return "store"
	case KindCall:
		return "call"
	case KindBitcast:
		return "bitcast"
	case KindGEP:
		return "gep"
	case KindTerminator:
		return "terminator"
	default:
		return "other"
	}
}

// Inst is an opaque handle to a single instruction. Every Inst also
// satisfies Value: in the host IRs this is modeled on, an instruction's
// result register is itself the SSA value users read.
type Inst interface {
	Kind() InstKind
	Block() Block

	// Operands returns this instruction's operand values in order.
	Operands() []Value
	// SetOperand rewrites operand i in place, used by the rewrite pass of
	// C4 (slowpath) to re-bind intra-clone uses.
	SetOperand(i int, v Value)

	// Users returns every instruction that reads this instruction's
	// result as an operand.
	Users() []Inst

	// EraseFromParent removes this instruction from its block. Callers
	// must have already redirected every user (ReplaceAllUsesWith) to
	// keep the IR well-typed throughout, per spec.md §9's
	// replace-all-uses-with discipline.
	EraseFromParent()

	// ReplaceAllUsesWith redirects every current user of this
	// instruction's result to v instead.
	ReplaceAllUsesWith(v Value)
}

// Loader is implemented by every Inst with Kind() == KindLoad.
type Loader interface {
	Inst
	Category() Category
	Pointer() Value
}

// Storer is implemented by every Inst with Kind() == KindStore.
type Storer interface {
	Inst
	Category() Category
	Pointer() Value
	Stored() Value
}

// Caller is implemented by every Inst with Kind() == KindCall.
type Caller interface {
	Inst
	Callee() Value
	Args() []Value

	// DirectCallee returns the Func this call invokes and true, if
	// Callee() names a known module-level function (as opposed to an
	// indirect call through a computed function pointer).
	DirectCallee() (Func, bool)

	// TransactionSafe reports whether this call site itself carries the
	// transaction_safe attribute. Meaningful only for indirect calls
	// (spec.md §4.5, "Call whose target is not a known function").
	TransactionSafe() bool

	// SetCallee redirects this call's target, used when C5 rewrites a
	// call to a transaction_safe function's clone, an allocator, or a
	// resolved indirect-clone pointer.
	SetCallee(v Value)
}

// MemIntrinsic is implemented by calls to known memory intrinsics
// (memcpy/memmove/memset) so the rewriter can read their first three
// arguments without depending on a particular intrinsic name mangling.
type MemIntrinsic interface {
	Caller
	// Name returns the canonical intrinsic this call matches:
	// "memcpy", "memmove", or "memset".
	Name() string
}

// Block is an opaque, ordered handle to a basic block: a maximal run of
// instructions with control flow entering only at the top and leaving only
// at the bottom.
type Block interface {
	// ID is a small, dense, stable index into the owning Func's block
	// list.
	ID() int
	Func() Func

	// Insts returns this block's instructions in program order,
	// including the terminator as the last element.
	Insts() []Inst
	Terminator() Inst

	// Succs returns this block's successor blocks, in the order their
	// edges appear on the terminator (spec.md §4.4's "first successor").
	Succs() []Block
	// SetSucc rewires the i'th successor edge to point at b instead,
	// updating both the terminator's control-flow target and the
	// adjacent blocks' Preds-equivalent bookkeeping.
	SetSucc(i int, b Block)

	// SplitBefore splits this block immediately before inst: inst and
	// every instruction after it move into a newly created successor
	// block, this block gains an unconditional jump to it, and the new
	// block is returned (spec.md §4.4, "block-splitting preparation").
	SplitBefore(inst Inst) Block

	// Clone duplicates every instruction in this block into a new,
	// uninserted block, returning the clone and a map from every
	// original instruction to its counterpart (spec.md §4.4 step 1).
	// The clone's successor edges initially point at the same targets
	// as this block's (so SetSucc has a valid index to rewire for every
	// original edge); Clone does not redirect any of them to other
	// clones produced in the same batch, and it does not insert the
	// clone anywhere — callers do both with Func.InsertBlock and
	// Block.SetSucc.
	Clone() (Block, ValueMap)

	// InsertCallBefore builds a new call instruction invoking callee
	// with args and inserts it immediately before at (or immediately
	// before the terminator if at is nil), returning the new
	// instruction. This is the host's IRBuilder-equivalent that C5 uses
	// to splice in ITM barrier calls.
	InsertCallBefore(at Inst, callee Value, args []Value) Inst

	// InsertBitcastBefore builds a new KindBitcast instruction wrapping
	// v and inserts it immediately before at, returning the new
	// instruction. C5 uses this once, to cast the pointer
	// _ITM_getTMCloneSafe returns back to the original function
	// pointer's type before redirecting an indirect call to it (spec.md
	// §4.5).
	InsertBitcastBefore(at Inst, v Value) Inst
}

// ValueMap records the original-to-clone correspondence produced by
// Block.Clone or Module.CloneFunction.
type ValueMap map[Value]Value

// Func is an opaque handle to a function.
type Func interface {
	Name() string

	// Safe reports whether this function carries the transaction_safe
	// attribute (spec.md §6).
	Safe() bool
	SetSafe(safe bool)

	Blocks() []Block
	EntryBlock() Block
	// InsertBlock appends b to this function's block list.
	InsertBlock(b Block)

	// Value returns this function's own address, usable as a call
	// callee operand.
	Value() Value

	Module() Module
}

// ClonePair is one (original, clone) entry of the module clone table
// (spec.md §3, §4.3, §6).
type ClonePair struct {
	Original, Clone Func
}

// Module is an opaque handle to a whole compilation unit.
type Module interface {
	Funcs() []Func

	// CloneFunction performs a deep copy of f (the host's function
	// cloning utility), names the result newName, and returns the clone
	// together with a map from f's values to the clone's corresponding
	// values. The clone is already inserted into the module.
	CloneFunction(f Func, newName string) (Func, ValueMap, error)

	// DeclareFunction returns the Func named name, declaring a bodyless
	// external function if one doesn't already exist (the host's
	// get-or-insert-function utility, spec.md §4.5).
	DeclareFunction(name string) Func

	// RegisterClonePairs installs the module-level clone table described
	// by spec.md §4.3/§6.
	RegisterClonePairs(pairs []ClonePair)

	// ClonePairs returns every (original, clone) pair registered so far.
	// internal/barrier uses this to confirm a transaction_safe callee was
	// actually cloned by C3 before redirecting a call to it (spec.md §7's
	// UnresolvableCall: a call needs a clone that doesn't exist in the
	// module).
	ClonePairs() []ClonePair
}

// DomTree answers dominance queries over one function's control-flow graph.
// The pipeline is handed two of these per function (spec.md §4.2): the
// ordinary dominator tree D, and the dominator tree of the reverse graph,
// i.e. the post-dominator tree P.
type DomTree interface {
	// Dominates reports whether a dominates b. A block dominates itself.
	Dominates(a, b Block) bool
}
