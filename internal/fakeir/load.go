package fakeir

import (
	"encoding/json"
	"fmt"

	"github.com/aclements/tmelide/internal/ir"
)

// Load parses a JSON module description and builds the *Module it
// describes. This is fakeir's own small schema, not any standard object or
// IR interchange format: cmd/tmelide is the only reader (cmd/tmelide-scan
// writes a separate sidecar, not this schema), and it exists so the pipeline
// can be driven end-to-end
// from the command line without a real compiler front end attached (spec.md
// §1's host IR is out of scope; this is the stand-in).
func Load(data []byte) (*Module, error) {
	var doc moduleDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("fakeir: parsing module: %w", err)
	}

	mod := NewModule()

	// Declare every function, and set its transaction_safe flag, before
	// building any body, so a call naming a function defined later in
	// the document still resolves.
	for _, fd := range doc.Funcs {
		f := mod.DeclareFunction(fd.Name).(*Func)
		f.SetSafe(fd.Safe)
	}

	for _, fd := range doc.Funcs {
		f := mod.byName[fd.Name]
		if err := buildBody(mod, f, fd); err != nil {
			return nil, fmt.Errorf("fakeir: function %s: %w", fd.Name, err)
		}
	}

	return mod, nil
}

type moduleDoc struct {
	Funcs []funcDoc `json:"funcs"`
}

type funcDoc struct {
	Name   string     `json:"name"`
	Safe   bool       `json:"transaction_safe"`
	Blocks []blockDoc `json:"blocks"`
}

type blockDoc struct {
	Succs []int     `json:"succs"`
	Insts []instDoc `json:"insts"`
}

// instDoc is a tagged union over the seven instruction kinds, read as a
// flat object with only the fields a given op uses populated.
type instDoc struct {
	ID       string   `json:"id"` // name this instruction's result is referenced by later; optional
	Op       string   `json:"op"`
	Category string   `json:"category"` // load/store only; one of ir.Category.String()'s names
	Callee   string   `json:"callee"`   // call/memintrinsic only
	Pointer  string   `json:"pointer"`  // load/gep
	Value    string   `json:"value"`    // store/bitcast
	Args     []string `json:"args"`     // call/memintrinsic/other
	Name     string   `json:"name"`     // memintrinsic only: "memcpy", "memmove", or "memset"
	Safe     bool     `json:"transaction_safe"` // call only, indirect call sites
}

func buildBody(mod *Module, f *Func, fd funcDoc) error {
	blocks := make([]*Block, len(fd.Blocks))
	for i := range fd.Blocks {
		blocks[i] = &Block{fn: f, id: i}
		f.blocks = append(f.blocks, blocks[i])
	}
	f.nextBlockID = len(blocks)

	for i, bd := range fd.Blocks {
		succs := make([]ir.Block, len(bd.Succs))
		for j, s := range bd.Succs {
			if s < 0 || s >= len(blocks) {
				return fmt.Errorf("block %d: successor index %d out of range", i, s)
			}
			succs[j] = blocks[s]
		}
		blocks[i].succs = succs
	}

	values := make(map[string]ir.Value)
	resolve := func(ref string) ir.Value {
		if ref == "" {
			return nil
		}
		if v, ok := values[ref]; ok {
			return v
		}
		if callee, ok := mod.byName[ref]; ok {
			return callee
		}
		// Not a known value or function name: treat it as an opaque
		// constant, the same way a literal immediate or a global
		// reference the document never declares would be.
		return ref
	}

	for i, bd := range fd.Blocks {
		b := blocks[i]
		for _, id := range bd.Insts {
			result, err := buildInst(b, id, resolve)
			if err != nil {
				return fmt.Errorf("block %d: %w", i, err)
			}
			b.insts = append(b.insts, result)
			if id.ID != "" {
				values[id.ID] = result
			}
		}
	}
	return nil
}

func buildInst(b *Block, id instDoc, resolve func(string) ir.Value) (ir.Inst, error) {
	switch id.Op {
	case "load":
		cat, err := parseCategory(id.Category)
		if err != nil {
			return nil, err
		}
		return newLoad(b, resolve(id.Pointer), cat), nil

	case "store":
		cat, err := parseCategory(id.Category)
		if err != nil {
			return nil, err
		}
		return newStore(b, resolve(id.Pointer), resolve(id.Value), cat), nil

	case "call":
		c := newCall(b, append([]ir.Value{resolve(id.Callee)}, resolveAll(id.Args, resolve)...))
		c.transactionSafe = id.Safe
		return c, nil

	case "memintrinsic":
		c := newCall(b, append([]ir.Value{resolve(id.Callee)}, resolveAll(id.Args, resolve)...))
		m := &memInst{callInst: c, name: id.Name}
		c.inst.self = m
		return m, nil

	case "bitcast":
		return newGeneric(b, ir.KindBitcast, []ir.Value{resolve(id.Value)}), nil

	case "gep":
		return newGeneric(b, ir.KindGEP, []ir.Value{resolve(id.Pointer)}), nil

	case "terminator":
		return newGeneric(b, ir.KindTerminator, nil), nil

	case "other":
		return newGeneric(b, ir.KindOther, resolveAll(id.Args, resolve)), nil

	default:
		return nil, fmt.Errorf("unknown op %q", id.Op)
	}
}

func resolveAll(refs []string, resolve func(string) ir.Value) []ir.Value {
	out := make([]ir.Value, len(refs))
	for i, r := range refs {
		out[i] = resolve(r)
	}
	return out
}

func parseCategory(name string) (ir.Category, error) {
	for c := 0; c < ir.CategoryCount; c++ {
		if ir.Category(c).String() == name {
			return ir.Category(c), nil
		}
	}
	return 0, fmt.Errorf("unknown type category %q", name)
}
