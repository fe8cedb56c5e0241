package graph

// PostDomGraph returns a BiGraph on which running IDom/Dom rooted at
// exitRoot gives the post-dominator tree of g: a node x post-dominates a
// node y in g exactly when x dominates y in this graph. g's edges are
// reversed, and one synthetic node (index g.NumNodes(), returned as
// exitRoot) is added with an edge from every block in exits, so the
// algorithm has a single root to work from even when g has more than one
// true exit (spec.md §4.2 requires both a dominator tree D and a post-
// dominator tree P per function; a function can return from more than one
// block, so P needs this unification the same way a compiler would
// synthesize a single return block).
func PostDomGraph(g BiGraph, exits []int) (r BiGraph, exitRoot int) {
	exitRoot = g.NumNodes()
	isExit := make(map[int]bool, len(exits))
	for _, e := range exits {
		isExit[e] = true
	}
	return &postDomGraph{g, exitRoot, exits, isExit}, exitRoot
}

type postDomGraph struct {
	g      BiGraph
	root   int
	exits  []int
	isExit map[int]bool
}

func (p *postDomGraph) NumNodes() int { return p.root + 1 }

// Out(i) in the post-dom graph is the set of i's predecessors in g: walking
// "forward" here means walking backward through the original CFG.
func (p *postDomGraph) Out(i int) []int {
	if i == p.root {
		return p.exits
	}
	return p.g.In(i)
}

// In(i) in the post-dom graph is the set of i's successors in g, plus the
// virtual root if i is one of the designated exits.
func (p *postDomGraph) In(i int) []int {
	if i == p.root {
		return nil
	}
	out := p.g.Out(i)
	if !p.isExit[i] {
		return out
	}
	withRoot := make([]int, len(out), len(out)+1)
	copy(withRoot, out)
	return append(withRoot, p.root)
}
