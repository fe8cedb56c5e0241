// Package fakeir is an in-memory implementation of the internal/ir contract,
// used by every other package's tests and by cmd/tmelide in place of a real
// compiler's SSA representation (internal/ir itself declares interfaces
// only, per spec.md §1's "host IR is out of scope").
//
// Shaped after obj/internal/asm.BasicBlock and obj/internal/ssa.Func in this
// repository's teacher: small, densely-numbered blocks holding a flat
// instruction list, functions holding a block slice, and a module holding a
// function slice — no separate symbol table, no parser, just enough
// bookkeeping to build and mutate a CFG by hand.
package fakeir

import (
	"fmt"

	"github.com/aclements/tmelide/internal/ir"
)

// Module is a fake compilation unit: a flat, ordered list of functions
// looked up by name.
type Module struct {
	funcs      []*Func
	byName     map[string]*Func
	clonePairs []ir.ClonePair
}

// NewModule returns an empty Module.
func NewModule() *Module {
	return &Module{byName: make(map[string]*Func)}
}

func (m *Module) Funcs() []ir.Func {
	out := make([]ir.Func, len(m.funcs))
	for i, f := range m.funcs {
		out[i] = f
	}
	return out
}

func (m *Module) DeclareFunction(name string) ir.Func {
	if f, ok := m.byName[name]; ok {
		return f
	}
	f := &Func{mod: m, name: name}
	m.byName[name] = f
	m.funcs = append(m.funcs, f)
	return f
}

func (m *Module) CloneFunction(f ir.Func, newName string) (ir.Func, ir.ValueMap, error) {
	orig, ok := f.(*Func)
	if !ok {
		return nil, nil, fmt.Errorf("fakeir: CloneFunction: %T is not a fakeir function", f)
	}
	if _, exists := m.byName[newName]; exists {
		return nil, nil, fmt.Errorf("fakeir: CloneFunction: %s already exists", newName)
	}

	clone := &Func{mod: m, name: newName, safe: orig.safe}
	values := make(ir.ValueMap)
	blockMap := make(map[*Block]*Block, len(orig.blocks))

	for _, b := range orig.blocks {
		nb := &Block{fn: clone, id: clone.nextBlockID}
		clone.nextBlockID++
		clone.blocks = append(clone.blocks, nb)
		blockMap[b] = nb
	}

	for _, b := range orig.blocks {
		nb := blockMap[b]
		nb.insts = make([]ir.Inst, len(b.insts))
		for i, origInst := range b.insts {
			c := cloneInst(origInst, nb)
			nb.insts[i] = c
			values[origInst] = c
		}
		succs := make([]ir.Block, len(b.succs))
		for i, s := range b.succs {
			if sb, ok := s.(*Block); ok {
				if mapped, ok := blockMap[sb]; ok {
					succs[i] = mapped
					continue
				}
			}
			succs[i] = s
		}
		nb.succs = succs
	}

	// Rebind every operand that refers to a value cloned in this same
	// pass (an intra-function use); operands naming something outside f
	// (globals, other functions) are left as-is.
	for _, nb := range clone.blocks {
		for _, inst := range nb.insts {
			for i, op := range inst.Operands() {
				if v, ok := values[op]; ok {
					inst.SetOperand(i, v)
				}
			}
		}
	}

	m.byName[newName] = clone
	m.funcs = append(m.funcs, clone)
	return clone, values, nil
}

func (m *Module) RegisterClonePairs(pairs []ir.ClonePair) {
	m.clonePairs = append(m.clonePairs, pairs...)
}

// ClonePairs returns the clone table RegisterClonePairs has accumulated, in
// registration order (ir.Module's ClonePairs; internal/barrier reads it to
// find a callee's clone, and tests use it to assert on C3's output).
func (m *Module) ClonePairs() []ir.ClonePair {
	return m.clonePairs
}

// Func is a fake function: an ordered block list plus the transaction_safe
// flag and name every pipeline pass keys on.
type Func struct {
	mod  *Module
	name string
	safe bool

	blocks      []*Block
	nextBlockID int
}

// NewFunc builds a standalone Func not yet attached to any Module. Useful
// for tests that only need region.Scan/locality.Analyze over a single
// function and never exercise C3's module-level clone registry.
func NewFunc(name string, safe bool) *Func {
	return &Func{name: name, safe: safe}
}

func (f *Func) Name() string { return f.name }
func (f *Func) Safe() bool   { return f.safe }
func (f *Func) SetSafe(v bool) {
	f.safe = v
}

func (f *Func) Blocks() []ir.Block {
	out := make([]ir.Block, len(f.blocks))
	for i, b := range f.blocks {
		out[i] = b
	}
	return out
}

func (f *Func) EntryBlock() ir.Block {
	if len(f.blocks) == 0 {
		return nil
	}
	return f.blocks[0]
}

func (f *Func) InsertBlock(b ir.Block) {
	bl := b.(*Block)
	bl.fn = f
	f.blocks = append(f.blocks, bl)
}

// Value returns f itself: any Go value satisfies the empty ir.Value
// interface, and f's own identity is as good a "function address" as this
// fake host needs.
func (f *Func) Value() ir.Value { return f }

func (f *Func) Module() ir.Module { return f.mod }

// AddBlock appends a new, empty Block to f and returns it.
func (f *Func) AddBlock() *Block {
	b := &Block{fn: f, id: f.nextBlockID}
	f.nextBlockID++
	f.blocks = append(f.blocks, b)
	return b
}

func (f *Func) usersOf(v ir.Value) []ir.Inst {
	var out []ir.Inst
	for _, b := range f.blocks {
		for _, inst := range b.insts {
			for _, op := range inst.Operands() {
				if op == v {
					out = append(out, inst)
					break
				}
			}
		}
	}
	return out
}

// Block is a fake basic block: a flat, mutable instruction list plus an
// explicit successor list (control flow is tracked directly through Succs,
// not derived from any particular terminator encoding).
type Block struct {
	fn    *Func
	id    int
	insts []ir.Inst
	succs []ir.Block
}

func (b *Block) ID() int       { return b.id }
func (b *Block) Func() ir.Func { return b.fn }

// Insts returns a defensive copy of b's instruction list: every pass in
// this pipeline ranges over a block's instructions while inserting or
// erasing others in the same block (internal/barrier splices barrier calls
// in ahead of the load/store they guard, internal/cleanup erases sentinels
// out from under the range it found them in), and none of them expect that
// to perturb the iteration in progress.
func (b *Block) Insts() []ir.Inst {
	return append([]ir.Inst(nil), b.insts...)
}

func (b *Block) Terminator() ir.Inst {
	if len(b.insts) == 0 {
		return nil
	}
	return b.insts[len(b.insts)-1]
}

func (b *Block) Succs() []ir.Block { return b.succs }

func (b *Block) SetSucc(i int, target ir.Block) {
	b.succs[i] = target
}

// SetSuccs is a test-builder convenience, not part of the ir.Block
// contract: it replaces b's whole successor list at once.
func (b *Block) SetSuccs(succs ...*Block) {
	out := make([]ir.Block, len(succs))
	for i, s := range succs {
		out[i] = s
	}
	b.succs = out
}

func (b *Block) indexOf(target ir.Inst) int {
	for i, inst := range b.insts {
		if inst == target {
			return i
		}
	}
	return -1
}

func (b *Block) erase(target ir.Inst) {
	idx := b.indexOf(target)
	if idx < 0 {
		return
	}
	b.insts = append(b.insts[:idx], b.insts[idx+1:]...)
}

func (b *Block) insertAt(idx int, newInst ir.Inst) {
	b.insts = append(b.insts, nil)
	copy(b.insts[idx+1:], b.insts[idx:])
	b.insts[idx] = newInst
}

func (b *Block) insertBefore(at ir.Inst, newInst ir.Inst) {
	idx := len(b.insts)
	switch {
	case at != nil:
		idx = b.indexOf(at)
		if idx < 0 {
			idx = len(b.insts)
		}
	case len(b.insts) > 0 && b.insts[len(b.insts)-1].Kind() == ir.KindTerminator:
		idx = len(b.insts) - 1
	}
	b.insertAt(idx, newInst)
}

func (b *Block) SplitBefore(at ir.Inst) ir.Block {
	idx := b.indexOf(at)
	if idx < 0 {
		idx = len(b.insts)
	}

	tail := &Block{fn: b.fn, id: b.fn.nextBlockID}
	b.fn.nextBlockID++

	tail.insts = append([]ir.Inst(nil), b.insts[idx:]...)
	for _, inst := range tail.insts {
		inst.(blockSetter).setBlock(tail)
	}
	tail.succs = b.succs

	b.insts = b.insts[:idx]
	b.succs = []ir.Block{tail}

	b.fn.blocks = append(b.fn.blocks, tail)
	return tail
}

func (b *Block) Clone() (ir.Block, ir.ValueMap) {
	nb := &Block{fn: b.fn, id: b.fn.nextBlockID}
	b.fn.nextBlockID++

	vm := make(ir.ValueMap, len(b.insts))
	nb.insts = make([]ir.Inst, len(b.insts))
	for i, orig := range b.insts {
		c := cloneInst(orig, nb)
		nb.insts[i] = c
		vm[orig] = c
	}
	nb.succs = append([]ir.Block(nil), b.succs...)
	return nb, vm
}

func (b *Block) InsertCallBefore(at ir.Inst, callee ir.Value, args []ir.Value) ir.Inst {
	operands := append([]ir.Value{callee}, args...)
	c := newCall(b, operands)
	b.insertBefore(at, c)
	return c
}

func (b *Block) InsertBitcastBefore(at ir.Inst, v ir.Value) ir.Inst {
	g := newGeneric(b, ir.KindBitcast, []ir.Value{v})
	b.insertBefore(at, g)
	return g
}

// AddLoad, AddStore, AddCall, and friends below are test-builder
// convenience constructors, not part of the ir.Block contract: they append
// the new instruction at the end of b.

func (b *Block) AddLoad(ptr ir.Value, cat ir.Category) ir.Inst {
	l := newLoad(b, ptr, cat)
	b.insts = append(b.insts, l)
	return l
}

func (b *Block) AddStore(ptr, val ir.Value, cat ir.Category) ir.Inst {
	s := newStore(b, ptr, val, cat)
	b.insts = append(b.insts, s)
	return s
}

func (b *Block) AddCall(callee ir.Value, args ...ir.Value) ir.Inst {
	c := newCall(b, append([]ir.Value{callee}, args...))
	b.insts = append(b.insts, c)
	return c
}

// AddIndirectCall builds a call through a computed function pointer (callee
// is not a *Func), optionally carrying the transaction_safe attribute C5
// checks for an indirect call site (spec.md §4.5).
func (b *Block) AddIndirectCall(callee ir.Value, transactionSafe bool, args ...ir.Value) ir.Inst {
	c := newCall(b, append([]ir.Value{callee}, args...))
	c.transactionSafe = transactionSafe
	b.insts = append(b.insts, c)
	return c
}

func (b *Block) AddMemIntrinsic(name string, callee ir.Value, args ...ir.Value) ir.Inst {
	c := newCall(b, append([]ir.Value{callee}, args...))
	m := &memInst{callInst: c, name: name}
	c.inst.self = m
	b.insts = append(b.insts, m)
	return m
}

func (b *Block) AddBitcast(v ir.Value) ir.Inst {
	g := newGeneric(b, ir.KindBitcast, []ir.Value{v})
	b.insts = append(b.insts, g)
	return g
}

func (b *Block) AddGEP(base ir.Value) ir.Inst {
	g := newGeneric(b, ir.KindGEP, []ir.Value{base})
	b.insts = append(b.insts, g)
	return g
}

func (b *Block) AddTerminator() ir.Inst {
	g := newGeneric(b, ir.KindTerminator, nil)
	b.insts = append(b.insts, g)
	return g
}

func (b *Block) AddOther(operands ...ir.Value) ir.Inst {
	g := newGeneric(b, ir.KindOther, operands)
	b.insts = append(b.insts, g)
	return g
}

// blockSetter lets SplitBefore reassign a moved instruction's owning block
// without a type switch over every concrete instruction type.
type blockSetter interface {
	setBlock(b *Block)
}

// inst is the common core every concrete instruction type embeds: the
// generic Kind/Block/Operands/Users/Erase/ReplaceAllUsesWith machinery
// internal/ir.Inst requires of every instruction, regardless of kind.
type inst struct {
	self     ir.Inst // the outermost wrapper (loadInst, callInst, memInst, or this struct itself)
	block    *Block
	kind     ir.InstKind
	operands []ir.Value
}

func (i *inst) Kind() ir.InstKind    { return i.kind }
func (i *inst) Block() ir.Block      { return i.block }
func (i *inst) Operands() []ir.Value { return i.operands }
func (i *inst) SetOperand(idx int, v ir.Value) {
	i.operands[idx] = v
}
func (i *inst) setBlock(b *Block) { i.block = b }

func (i *inst) Users() []ir.Inst {
	return i.block.fn.usersOf(i.self)
}

func (i *inst) EraseFromParent() {
	i.block.erase(i.self)
}

func (i *inst) ReplaceAllUsesWith(v ir.Value) {
	for _, u := range i.Users() {
		for idx, op := range u.Operands() {
			if op == i.self {
				u.SetOperand(idx, v)
			}
		}
	}
}

func newGeneric(b *Block, kind ir.InstKind, operands []ir.Value) *inst {
	g := &inst{block: b, kind: kind, operands: operands}
	g.self = g
	return g
}

// loadInst is a KindLoad instruction: internal/ir.Loader, and nothing more,
// so a type assertion to ir.Caller or ir.Storer correctly fails on it.
type loadInst struct {
	*inst
	category ir.Category
}

func (l *loadInst) Category() ir.Category { return l.category }
func (l *loadInst) Pointer() ir.Value     { return l.operands[0] }

func newLoad(b *Block, ptr ir.Value, cat ir.Category) *loadInst {
	l := &loadInst{inst: &inst{block: b, kind: ir.KindLoad, operands: []ir.Value{ptr}}, category: cat}
	l.inst.self = l
	return l
}

// storeInst is a KindStore instruction: internal/ir.Storer.
type storeInst struct {
	*inst
	category ir.Category
}

func (s *storeInst) Category() ir.Category { return s.category }
func (s *storeInst) Pointer() ir.Value     { return s.operands[0] }
func (s *storeInst) Stored() ir.Value      { return s.operands[1] }

func newStore(b *Block, ptr, val ir.Value, cat ir.Category) *storeInst {
	s := &storeInst{inst: &inst{block: b, kind: ir.KindStore, operands: []ir.Value{ptr, val}}, category: cat}
	s.inst.self = s
	return s
}

// callInst is a KindCall instruction: internal/ir.Caller. Operand 0 is
// always the callee; a direct call's callee operand is the target *Func
// itself, an indirect call's is anything else (a loaded function pointer,
// a bitcast result, ...).
type callInst struct {
	*inst
	directCallee    *Func
	transactionSafe bool
}

func (c *callInst) Callee() ir.Value      { return c.operands[0] }
func (c *callInst) Args() []ir.Value      { return c.operands[1:] }
func (c *callInst) TransactionSafe() bool { return c.transactionSafe }

func (c *callInst) DirectCallee() (ir.Func, bool) {
	if c.directCallee == nil {
		return nil, false
	}
	return c.directCallee, true
}

func (c *callInst) SetCallee(v ir.Value) {
	c.SetOperand(0, v)
}

// SetOperand overrides inst.SetOperand so directCallee tracks operand 0
// through every rewrite path, not just SetCallee: C4's operand rebind pass
// and Inst.ReplaceAllUsesWith both rewrite operands through the generic
// Inst interface, and a later pass (C5) still needs DirectCallee to answer
// correctly afterward.
func (c *callInst) SetOperand(idx int, v ir.Value) {
	c.inst.SetOperand(idx, v)
	if idx == 0 {
		c.directCallee, _ = v.(*Func)
	}
}

func newCall(b *Block, operands []ir.Value) *callInst {
	c := &callInst{inst: &inst{block: b, kind: ir.KindCall, operands: operands}}
	c.directCallee, _ = operands[0].(*Func)
	c.inst.self = c
	return c
}

// memInst is a call to a known memory intrinsic: internal/ir.MemIntrinsic.
type memInst struct {
	*callInst
	name string
}

func (m *memInst) Name() string { return m.name }

// cloneInst duplicates orig into a new instruction owned by nb, preserving
// its kind-specific fields but not its position in any block (the caller
// appends it to nb.insts itself). Operands are copied verbatim; rebinding
// operands that refer to other cloned values is the caller's job (C4's
// rewrite pass, or Module.CloneFunction's whole-function rebind).
func cloneInst(orig ir.Inst, nb *Block) ir.Inst {
	switch v := orig.(type) {
	case *memInst:
		c := newCall(nb, append([]ir.Value(nil), v.operands...))
		m := &memInst{callInst: c, name: v.name}
		c.inst.self = m
		return m
	case *loadInst:
		return newLoad(nb, v.operands[0], v.category)
	case *storeInst:
		return newStore(nb, v.operands[0], v.operands[1], v.category)
	case *callInst:
		c := newCall(nb, append([]ir.Value(nil), v.operands...))
		c.transactionSafe = v.transactionSafe
		return c
	case *inst:
		return newGeneric(nb, v.kind, append([]ir.Value(nil), v.operands...))
	default:
		panic(fmt.Sprintf("fakeir: cloneInst: unknown instruction type %T", orig))
	}
}
