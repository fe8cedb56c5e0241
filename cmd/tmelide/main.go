// Command tmelide drives the pipeline over a JSON module description: the
// stand-in for a real compiler invocation, since spec.md §1 puts the host
// compiler out of scope. It is the executable entry point
// obj/objbrowse/main.go is for that teacher's disassembly browser: a small
// flag-driven CLI that opens an input, runs an analysis, and reports the
// result.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	shellwords "github.com/kballard/go-shellquote"

	"github.com/aclements/tmelide/internal/barrier"
	"github.com/aclements/tmelide/internal/cleanup"
	"github.com/aclements/tmelide/internal/cloning"
	"github.com/aclements/tmelide/internal/diag"
	"github.com/aclements/tmelide/internal/fakeir"
	"github.com/aclements/tmelide/internal/graph"
	"github.com/aclements/tmelide/internal/ir"
	"github.com/aclements/tmelide/internal/locality"
	"github.com/aclements/tmelide/internal/pipeline"
	"github.com/aclements/tmelide/internal/region"
	"github.com/aclements/tmelide/internal/report"
	"github.com/aclements/tmelide/internal/slowpath"
)

var (
	safeFlag   = flag.String("safe", "", "optional cmd/tmelide-scan sidecar JSON naming additional transaction_safe functions")
	passesFlag = flag.String("passes", "", "space-separated subset of {region locality cloning slowpath barrier cleanup} to run, in order (default: all, in the required order)")
	reportFlag = flag.String("report", "", "write an SVG summary chart to this path")
)

var allPasses = []string{"region", "locality", "cloning", "slowpath", "barrier", "cleanup"}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] module.json\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}
	mod, err := fakeir.Load(data)
	if err != nil {
		log.Fatal(err)
	}

	if *safeFlag != "" {
		if err := applySafeSidecar(mod, *safeFlag); err != nil {
			log.Fatal(err)
		}
	}

	passes, err := parsePasses(*passesFlag)
	if err != nil {
		log.Fatal(err)
	}

	stats := report.NewStats()
	stats.Regions = countRegions(mod)

	var res diag.Result
	if samePasses(passes, allPasses) {
		res = pipeline.Run(mod)
	} else {
		res = runSelected(mod, passes)
	}
	stats.Diagnostics = len(res.Diagnostics)
	for _, d := range res.Diagnostics {
		fmt.Fprintf(os.Stderr, "%v\n", d)
	}

	stats.Clones = len(mod.ClonePairs())
	tallyRegionsAndBarriers(mod, stats)

	printModule(mod)

	if *reportFlag != "" {
		f, err := os.Create(*reportFlag)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		report.Render(f, stats)
	}
}

// applySafeSidecar merges cmd/tmelide-scan's //tm:safe findings into mod:
// every function named in the sidecar gets Func.SetSafe(true), declaring it
// first if the JSON module never mentioned it.
func applySafeSidecar(mod *fakeir.Module, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var doc struct {
		Safe []string `json:"safe"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	for _, name := range doc.Safe {
		f := mod.DeclareFunction(name).(*fakeir.Func)
		f.SetSafe(true)
	}
	return nil
}

func parsePasses(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return allPasses, nil
	}
	words, err := shellwords.Split(s)
	if err != nil {
		return nil, fmt.Errorf("-passes: %w", err)
	}
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		valid := false
		for _, p := range allPasses {
			if w == p {
				valid = true
				break
			}
		}
		if !valid {
			return nil, fmt.Errorf("-passes: unknown pass %q", w)
		}
		seen[w] = true
	}
	var out []string
	for _, p := range allPasses {
		if seen[p] {
			out = append(out, p)
		}
	}
	return out, nil
}

func samePasses(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// runSelected runs only the requested passes, in pipeline order, skipping
// the rest. This exists purely as a debugging aid (spec.md's pipeline always
// runs every stage); it mirrors internal/pipeline.RunFunc's wiring by hand
// rather than teaching that package to skip stages it should never skip in
// production use. The per-function passes all consume region's output, so
// none of them runs unless "region" is among the requested passes. Unlike
// RunFunc, it does not carry locality classifications over to the slow-path
// clones slowpath creates.
func runSelected(mod ir.Module, passes []string) diag.Result {
	want := make(map[string]bool, len(passes))
	for _, p := range passes {
		want[p] = true
	}

	var res diag.Result
	if want["cloning"] {
		cres, _ := cloning.Run(mod)
		res.Merge(cres)
	}

	for _, fn := range mod.Funcs() {
		if !want["region"] {
			continue
		}
		regions, err := region.Scan(fn)
		if err != nil {
			res.Add(err)
			continue
		}

		isClone := cloning.IsClone(fn.Name())
		if len(regions) == 0 && !isClone {
			continue
		}

		var loc *locality.Result
		if want["locality"] {
			dom, post := domTrees(fn)
			loc = locality.Analyze(fn, regions, dom, post)
		} else {
			loc = &locality.Result{ThreadLocalOps: map[ir.Inst]bool{}, TxLocalOps: map[ir.Inst]bool{}}
		}

		if want["slowpath"] && len(regions) > 0 {
			sres, _ := slowpath.Run(fn, regions)
			res.Merge(sres)
		}

		if want["barrier"] {
			res.Merge(barrier.Run(mod, fn, regions, loc))
		}
		if want["cleanup"] {
			res.Merge(cleanup.Run(fn, regions))
		}
	}
	return res
}

// domTrees builds the dominator and post-dominator trees locality.Analyze
// needs, the same way internal/pipeline's unexported helper of the same
// name does: it exists here too only because -passes lets a caller ask to
// run locality without slowpath/cleanup's usual pipeline.RunFunc wiring.
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

type domAdapter struct {
	tree *graph.DomTree
}

func (d *domAdapter) Dominates(a, b ir.Block) bool {
	return d.tree.Dominates(a.ID(), b.ID())
}

func printModule(mod *fakeir.Module) {
	for _, fn := range mod.Funcs() {
		if len(fn.Blocks()) == 0 {
			continue
		}
		fmt.Printf("func %s (transaction_safe=%v):\n", fn.Name(), fn.Safe())
		for _, b := range fn.Blocks() {
			fmt.Printf("  block %d ->", b.ID())
			for _, s := range b.Succs() {
				fmt.Printf(" %d", s.ID())
			}
			fmt.Println()
			for _, inst := range b.Insts() {
				printInst(inst)
			}
		}
	}
}

func printInst(inst ir.Inst) {
	switch v := inst.(type) {
	case ir.MemIntrinsic:
		fmt.Printf("    %s (mem intrinsic)\n", v.Name())
	case ir.Caller:
		if f, ok := v.DirectCallee(); ok {
			fmt.Printf("    call %s\n", f.Name())
		} else {
			fmt.Printf("    call (indirect, transaction_safe=%v)\n", v.TransactionSafe())
		}
	case ir.Storer:
		fmt.Printf("    store %s\n", v.Category())
	case ir.Loader:
		fmt.Printf("    load %s\n", v.Category())
	default:
		fmt.Printf("    %s\n", inst.Kind())
	}
}

// countRegions scans every function's regions before the pipeline lowers
// anything, since C6 erases the boundary sentinels a later re-scan would
// need to find them again. A malformed region is simply not counted here;
// RunFunc reports the actual diagnostic once the real passes run.
func countRegions(mod *fakeir.Module) int {
	total := 0
	for _, fn := range mod.Funcs() {
		regions, err := region.Scan(fn)
		if err != nil {
			continue
		}
		total += len(regions)
	}
	return total
}

// tallyRegionsAndBarriers walks the final module, counting how many ITM
// barrier calls of each shape ended up in the final IR.
func tallyRegionsAndBarriers(mod *fakeir.Module, stats *report.Stats) {
	for _, fn := range mod.Funcs() {
		for _, b := range fn.Blocks() {
			for _, inst := range b.Insts() {
				call, ok := inst.(ir.Caller)
				if !ok {
					continue
				}
				f, ok := call.DirectCallee()
				if !ok || !strings.HasPrefix(f.Name(), "_ITM_") {
					continue
				}
				stats.Barriers[barrierKind(f.Name())]++
			}
		}
	}
}

func barrierKind(name string) string {
	switch {
	case strings.HasPrefix(name, "_ITM_R"):
		return "read"
	case strings.HasPrefix(name, "_ITM_W"):
		return "write"
	case strings.HasPrefix(name, "_ITM_L"):
		return "log"
	case strings.HasPrefix(name, "_ITM_mem"):
		return "mem"
	case name == barrier.GetTMCloneSafe:
		return "resolve"
	default:
		return "other"
	}
}
