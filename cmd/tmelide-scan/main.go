// Command tmelide-scan is a front-end-assist tool: it walks real Go source
// with golang.org/x/tools/go/packages (the same load-then-walk shape
// abi/abi.go uses to collect every *types.Func across a set of packages)
// looking for a `//tm:safe` doc-comment pragma, and emits a small JSON
// sidecar naming every function it found one on. cmd/tmelide's -safe flag
// reads that sidecar and applies it to a loaded module, since spec.md's IR
// has no notion of Go source or doc comments of its own.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"go/ast"
	"log"
	"os"
	"sort"
	"strings"

	"golang.org/x/tools/go/packages"
)

var outFlag = flag.String("o", "", "write the sidecar JSON here instead of stdout")

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-o out.json] package...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	pkgPaths := flag.Args()
	if len(pkgPaths) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedSyntax}
	pkgs, err := packages.Load(cfg, pkgPaths...)
	if err != nil {
		log.Fatal(err)
	}
	if packages.PrintErrors(pkgs) > 0 {
		os.Exit(1)
	}

	names := scanSafe(pkgs)

	out := os.Stdout
	if *outFlag != "" {
		f, err := os.Create(*outFlag)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(struct {
		Safe []string `json:"safe"`
	}{names}); err != nil {
		log.Fatal(err)
	}
}

// scanSafe collects the name of every top-level function whose doc comment
// carries a //tm:safe line, across every file of every loaded package. The
// result is sorted and deduplicated so the sidecar is stable across runs.
func scanSafe(pkgs []*packages.Package) []string {
	seen := make(map[string]bool)
	for _, pkg := range pkgs {
		for _, file := range pkg.Syntax {
			for _, decl := range file.Decls {
				fn, ok := decl.(*ast.FuncDecl)
				if !ok || fn.Doc == nil {
					continue
				}
				if hasSafePragma(fn.Doc) {
					seen[fn.Name.Name] = true
				}
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// hasSafePragma reports whether doc contains a line whose trimmed,
// comment-marker-stripped text is exactly "tm:safe" — the same loose,
// line-oriented pragma matching `go vet`'s low-level comment directives use,
// rather than a structured annotation syntax this toy front end has no
// need for.
func hasSafePragma(doc *ast.CommentGroup) bool {
	for _, c := range doc.List {
		text := strings.TrimPrefix(c.Text, "//")
		text = strings.TrimPrefix(text, "/*")
		text = strings.TrimSuffix(text, "*/")
		if strings.TrimSpace(text) == "tm:safe" {
			return true
		}
	}
	return false
}
