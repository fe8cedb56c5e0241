// Package region implements C1, the Region Scanner (spec.md §4.1): a single
// linear pass over a function's call instructions that recovers the
// structural description of each atomic region from the sentinel intrinsic
// calls an earlier front end left behind.
//
// This is adapted from two sources: the single-pass, incremental-state
// shape of obj/internal/asm.BasicBlocks in this repository's teacher
// (one forward walk, building up a slice of records as landmarks are
// found), and the actual pass this was distilled from,
// original_source/lib/Analysis/TransactionAtomicInfo.cpp's
// DualPathInfoCollector, a call visitor keyed on sentinel name that mutates
// the last element of a region list.
package region

import (
	"github.com/aclements/tmelide/internal/diag"
	"github.com/aclements/tmelide/internal/ir"
)

// Sentinel names recognized by the scanner (spec.md §6). Names are
// the canonical reference-implementation names; a front end that uses
// different sentinel names can wrap its ir.Module to rename them before
// handing it to this package.
const (
	TxBegin       = "_ITM_beginTransaction"
	TxCommit      = "_ITM_commitTransaction"
	FastpathBegin = "__begin_tm_fast_path"
	FastpathEnd   = "__end_tm_fast_path"
	SlowpathBegin = "__begin_tm_slow_path"
	SlowpathEnd   = "__end_tm_slow_path"
)

// Region is one atomic block, recovered from sentinel markers (spec.md §3).
type Region struct {
	TxEntryBlock ir.Block

	FastEntryBlock ir.Block
	FastExitBlock  ir.Block

	SlowEntryBlock ir.Block
	// SlowExitBlock is nil until internal/slowpath (C4) creates it by
	// splitting SlowEntryBlock.
	SlowExitBlock ir.Block

	// Terminators is the set of blocks containing commit sentinels.
	// These blocks terminate the region's reachable CFG for
	// region-bounded traversals (spec.md §3 invariant R1-R3).
	Terminators map[ir.Block]bool
}

// TerminatorList returns r.Terminators as a slice, in no particular order;
// convenient for callers that need to range over it repeatedly.
func (r *Region) TerminatorList() []ir.Block {
	out := make([]ir.Block, 0, len(r.Terminators))
	for b := range r.Terminators {
		out = append(out, b)
	}
	return out
}

// BoundaryBlocks returns the union of r's fast/slow entry/exit blocks, each
// appearing once, in fast-entry/fast-exit/slow-entry/slow-exit order. This
// is the scope internal/cleanup (C6) erases boundary sentinels from
// (spec.md §4.6); slow_exit_block is omitted if C4 has not yet split it out.
func (r *Region) BoundaryBlocks() []ir.Block {
	seen := make(map[ir.Block]bool, 4)
	var out []ir.Block
	for _, b := range []ir.Block{r.FastEntryBlock, r.FastExitBlock, r.SlowEntryBlock, r.SlowExitBlock} {
		if b == nil || seen[b] {
			continue
		}
		seen[b] = true
		out = append(out, b)
	}
	return out
}

// Scan walks fn's instructions in program order and returns one Region per
// _ITM_beginTransaction sentinel, in source order (spec.md §4.1).
//
// Scan never partially mutates fn: on a malformed sentinel sequence it
// returns the diag.MalformedRegion error built so far and no Regions, per
// spec.md §7's "no partial mutation" policy — Scan itself never mutates the
// IR at all, but it's the gate every later pass trusts to have validated
// invariant R1-R2 first.
func Scan(fn ir.Func) ([]*Region, *diag.Error) {
	var regions []*Region

	current := func() (*Region, *diag.Error) {
		if len(regions) == 0 {
			return nil, diag.Errorf(diag.MalformedRegion, fn.Name(),
				"sentinel seen before any %s", TxBegin)
		}
		return regions[len(regions)-1], nil
	}

	for _, b := range fn.Blocks() {
		for _, inst := range b.Insts() {
			call, ok := inst.(ir.Caller)
			if !ok {
				continue
			}
			f, ok := call.DirectCallee()
			if !ok {
				continue
			}
			switch f.Name() {
			case TxBegin:
				regions = append(regions, &Region{
					TxEntryBlock: b,
					Terminators:  make(map[ir.Block]bool),
				})

			case TxCommit:
				r, err := current()
				if err != nil {
					return nil, err
				}
				r.Terminators[b] = true

			case FastpathBegin:
				r, err := current()
				if err != nil {
					return nil, err
				}
				if r.FastEntryBlock != nil {
					return nil, diag.Errorf(diag.MalformedRegion, fn.Name(),
						"duplicate %s before next %s", FastpathBegin, TxBegin)
				}
				r.FastEntryBlock = b

			case FastpathEnd:
				r, err := current()
				if err != nil {
					return nil, err
				}
				if r.FastEntryBlock == nil {
					return nil, diag.Errorf(diag.MalformedRegion, fn.Name(),
						"%s before matching %s", FastpathEnd, FastpathBegin)
				}
				if r.FastExitBlock != nil {
					return nil, diag.Errorf(diag.MalformedRegion, fn.Name(),
						"duplicate %s before next %s", FastpathEnd, TxBegin)
				}
				r.FastExitBlock = b

			case SlowpathBegin:
				r, err := current()
				if err != nil {
					return nil, err
				}
				if r.SlowEntryBlock != nil {
					return nil, diag.Errorf(diag.MalformedRegion, fn.Name(),
						"duplicate %s before next %s", SlowpathBegin, TxBegin)
				}
				r.SlowEntryBlock = b

			case SlowpathEnd:
				r, err := current()
				if err != nil {
					return nil, err
				}
				if r.SlowEntryBlock == nil {
					return nil, diag.Errorf(diag.MalformedRegion, fn.Name(),
						"%s before matching %s", SlowpathEnd, SlowpathBegin)
				}

			default:
				// Unknown names are ignored (spec.md §4.1).
			}
		}
	}

	for _, r := range regions {
		if r.FastEntryBlock == nil || r.FastExitBlock == nil ||
			r.SlowEntryBlock == nil || len(r.Terminators) == 0 {
			return nil, diag.Errorf(diag.MalformedRegion, fn.Name(),
				"region opened at block %d is missing a fast/slow boundary or commit", r.TxEntryBlock.ID())
		}
	}

	return regions, nil
}
