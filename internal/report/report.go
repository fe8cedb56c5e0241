// Package report aggregates per-run metrics from a pipeline.Run and renders
// them as a small SVG bar chart, the batch-CLI analogue of
// obj/objbrowse/main.go's httpMain symbol table page: a summary view over
// the result of an analysis pass, rendered for a human rather than consumed
// by another program.
package report

import (
	"fmt"
	"io"
	"sort"

	svg "github.com/ajstarks/svgo"
)

// Stats holds the counts cmd/tmelide tallies after a pipeline.Run: how many
// regions were found, how many transaction_safe clones were created, how
// many diagnostics were raised, and how many calls to _ITM_-prefixed
// functions the final IR holds, by kind ("read", "write", "log", "mem",
// "resolve", or "other", which also counts the transaction begin/commit
// calls the pipeline leaves in place — see cmd/tmelide/main.go's
// tallyRegionsAndBarriers).
type Stats struct {
	Regions     int
	Clones      int
	Diagnostics int
	Barriers    map[string]int
}

// NewStats returns a Stats with its Barriers map ready to accumulate into.
func NewStats() *Stats {
	return &Stats{Barriers: make(map[string]int)}
}

// bar is one row of the rendered chart: a label and its count.
type bar struct {
	label string
	count int
}

// rows returns s's bars in a fixed, human-meaningful order: the three
// headline counts first, then the barrier kinds sorted alphabetically so
// the output is deterministic across runs.
func (s *Stats) rows() []bar {
	rows := []bar{
		{"regions", s.Regions},
		{"clones", s.Clones},
		{"diagnostics", s.Diagnostics},
	}

	kinds := make([]string, 0, len(s.Barriers))
	for k := range s.Barriers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		rows = append(rows, bar{"barrier:" + k, s.Barriers[k]})
	}
	return rows
}

const (
	rowHeight  = 24
	barGap     = 6
	labelWidth = 160
	chartWidth = 480
	maxBarPx   = chartWidth - labelWidth - 40
)

// Render draws s as a horizontal bar chart to w: one row per metric, the bar
// length proportional to the largest count in the chart. svgo's flat,
// imperative Rect/Text calls are used directly, the same way
// go-gg/gg/render.go drives *svg.SVG — there's no grammar-of-graphics layer
// between this and the primitives, since a handful of integer tallies don't
// need one.
func Render(w io.Writer, s *Stats) {
	rows := s.rows()

	max := 1
	for _, r := range rows {
		if r.count > max {
			max = r.count
		}
	}

	height := len(rows)*(rowHeight+barGap) + barGap

	canvas := svg.New(w)
	canvas.Start(chartWidth, height)
	canvas.Rect(0, 0, chartWidth, height, "fill:#ffffff")

	for i, r := range rows {
		y := barGap + i*(rowHeight+barGap)
		canvas.Text(8, y+rowHeight*2/3, r.label, "font-family:monospace;font-size:14px")

		barPx := 0
		if r.count > 0 {
			barPx = r.count * maxBarPx / max
			if barPx < 2 {
				barPx = 2
			}
		}
		canvas.Rect(labelWidth, y, barPx, rowHeight, "fill:#4a6fa5")
		canvas.Text(labelWidth+barPx+6, y+rowHeight*2/3, fmt.Sprint(r.count),
			"font-family:monospace;font-size:14px")
	}

	canvas.End()
}
