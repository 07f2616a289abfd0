// Package diff computes line diffs with sergi/go-diff and renders them as
// unified diff text that patch(1) accepts.
package diff

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Labels used on the --- and +++ header lines.
const (
	OldLabel = "before"
	NewLabel = "after"
)

// DefaultContext is the number of unchanged lines around each change.
const DefaultContext = 3

// LineType represents the type of diff line
type LineType int

const (
	LineContext LineType = iota // Unchanged context line
	LineAdded                   // Added line
	LineRemoved                 // Removed line
)

// Line represents a single line in the diff
type Line struct {
	Type    LineType
	Content string // without the trailing newline
	NoEOL   bool   // last line of its side and not newline-terminated
}

// Hunk represents a group of changes. Starts are 0-based line offsets.
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []Line
}

// Engine provides diff computation
type Engine struct {
	dmp     *diffmatchpatch.DiffMatchPatch
	context int
}

// NewEngine creates a new diff engine with optimal settings
func NewEngine() *Engine {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0 // Disable timeout for accuracy
	return &Engine{
		dmp:     dmp,
		context: DefaultContext,
	}
}

// ComputeHunks returns the hunks turning oldContent into newContent. Equal
// inputs yield no hunks.
func (e *Engine) ComputeHunks(oldContent, newContent string) []Hunk {
	if oldContent == newContent {
		return nil
	}
	return e.groupIntoHunks(e.lineOperations(oldContent, newContent))
}

// Unified renders the diff between two texts in unified format, or "" when
// they are equal.
func (e *Engine) Unified(oldContent, newContent string) string {
	return Render(e.ComputeHunks(oldContent, newContent))
}

// Render formats hunks as unified diff text with before/after labels.
func Render(hunks []Hunk) string {
	if len(hunks) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "--- %s\n+++ %s\n", OldLabel, NewLabel)
	for _, h := range hunks {
		fmt.Fprintf(&b, "@@ -%s +%s @@\n",
			formatRange(h.OldStart, h.OldCount),
			formatRange(h.NewStart, h.NewCount))
		for _, l := range h.Lines {
			switch l.Type {
			case LineContext:
				b.WriteByte(' ')
			case LineAdded:
				b.WriteByte('+')
			case LineRemoved:
				b.WriteByte('-')
			}
			b.WriteString(l.Content)
			b.WriteByte('\n')
			if l.NoEOL {
				b.WriteString("\\ No newline at end of file\n")
			}
		}
	}
	return b.String()
}

// Stats counts added and removed lines across hunks.
func Stats(hunks []Hunk) (added, removed int) {
	for _, h := range hunks {
		for _, l := range h.Lines {
			switch l.Type {
			case LineAdded:
				added++
			case LineRemoved:
				removed++
			}
		}
	}
	return added, removed
}

// formatRange renders a hunk range the way GNU diff and difflib do:
// a single line is just its number, an empty range names the line before it.
func formatRange(start, count int) string {
	switch count {
	case 1:
		return fmt.Sprintf("%d", start+1)
	case 0:
		return fmt.Sprintf("%d,0", start)
	default:
		return fmt.Sprintf("%d,%d", start+1, count)
	}
}

// operation represents a single line operation
type operation struct {
	typ  LineType
	text string // includes the newline when present
}

// lineOperations diffs at line granularity. Every distinct line is encoded
// as one rune so diffmatchpatch never splits inside a line.
func (e *Engine) lineOperations(oldContent, newContent string) []operation {
	var lineArray []string
	index := make(map[string]rune)

	encode := func(text string) []rune {
		lines := splitLines(text)
		runes := make([]rune, len(lines))
		for i, line := range lines {
			r, ok := index[line]
			if !ok {
				r = lineRune(len(lineArray))
				index[line] = r
				lineArray = append(lineArray, line)
			}
			runes[i] = r
		}
		return runes
	}

	a := encode(oldContent)
	b := encode(newContent)

	// No semantic cleanup: it slices Diff.Text by bytes, which would cut
	// the multi-byte runes used for line indexes past 127.
	diffs := e.dmp.DiffMainRunes(a, b, false)

	var ops []operation
	for _, d := range diffs {
		var typ LineType
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			typ = LineContext
		case diffmatchpatch.DiffInsert:
			typ = LineAdded
		case diffmatchpatch.DiffDelete:
			typ = LineRemoved
		}
		for _, r := range d.Text {
			ops = append(ops, operation{typ: typ, text: lineArray[runeIndex(r)]})
		}
	}
	return ops
}

// lineRune maps a line index to a valid, non-surrogate rune.
func lineRune(i int) rune {
	r := rune(i + 1)
	if r >= 0xD800 {
		r += 0x800
	}
	return r
}

func runeIndex(r rune) int {
	if r >= 0xE000 {
		r -= 0x800
	}
	return int(r) - 1
}

// splitLines splits text after each newline. The final element lacks a
// newline only when the text does.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// groupIntoHunks groups operations into hunks with context. Changes separated
// by at most 2*context unchanged lines share a hunk.
func (e *Engine) groupIntoHunks(ops []operation) []Hunk {
	var changes []int
	for i, op := range ops {
		if op.typ != LineContext {
			changes = append(changes, i)
		}
	}
	if len(changes) == 0 {
		return nil
	}

	// Line offsets before each op
	oldAt := make([]int, len(ops)+1)
	newAt := make([]int, len(ops)+1)
	for i, op := range ops {
		oldAt[i+1], newAt[i+1] = oldAt[i], newAt[i]
		if op.typ != LineAdded {
			oldAt[i+1]++
		}
		if op.typ != LineRemoved {
			newAt[i+1]++
		}
	}

	var hunks []Hunk
	for c := 0; c < len(changes); {
		first := changes[c]
		last := first
		for c+1 < len(changes) && changes[c+1]-last-1 <= 2*e.context {
			c++
			last = changes[c]
		}
		c++

		start := max(first-e.context, 0)
		end := min(last+e.context+1, len(ops))

		h := Hunk{
			OldStart: oldAt[start],
			NewStart: newAt[start],
			OldCount: oldAt[end] - oldAt[start],
			NewCount: newAt[end] - newAt[start],
		}
		for _, op := range ops[start:end] {
			h.Lines = append(h.Lines, Line{
				Type:    op.typ,
				Content: strings.TrimSuffix(op.text, "\n"),
				NoEOL:   !strings.HasSuffix(op.text, "\n"),
			})
		}
		hunks = append(hunks, h)
	}
	return hunks
}
