// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package graph

// Example graph from Muchnick, "Advanced Compiler Design & Implementation",
// figure 8.21. Kept as a fixture from the teacher package's test suite: it's
// a well-known worked example, not anything x86- or asm-specific.
var graphMuchnick = MakeBiGraph(IntGraph{
	0: {1},
	1: {2},
	2: {3, 4},
	3: {2},
	4: {5, 6},
	5: {7},
	6: {7},
	7: {},
})

// Example graph from
// https://www.seas.harvard.edu/courses/cs252/2011sp/slides/Lec04-SSA.pdf
// slide 24.
var graphCS252 = MakeBiGraph(IntGraph{
	0: {1},
	1: {2, 5},
	2: {3, 4},
	3: {6},
	4: {6},
	5: {1, 7},
	6: {7},
	7: {8},
	8: {},
})

// A small single-entry, two-exit graph standing in for a Region's CFG: node
// 0 is fast_entry, node 3 and node 4 are both commit terminators.
var graphTwoExit = MakeBiGraph(IntGraph{
	0: {1, 2},
	1: {3},
	2: {4},
	3: {},
	4: {},
})
