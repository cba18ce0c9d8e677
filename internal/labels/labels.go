// Package labels builds the label table from a single pass over a
// program's text segment.
package labels

import (
	"fmt"

	"github.com/zaynotley/rv64sim/internal/lexnorm"
)

// Entry records where a label points: the 1-based text index it
// resolves to, and the absolute source line it was declared on.
type Entry struct {
	TextIndex  int
	SourceLine int
}

// Table maps label name to its resolved location.
type Table struct {
	entries map[string]Entry
}

// New returns an empty label table.
func New() *Table {
	return &Table{entries: make(map[string]Entry)}
}

// Lookup returns the entry for name, if any.
func (t *Table) Lookup(name string) (Entry, bool) {
	e, ok := t.entries[name]
	return e, ok
}

// Line pairs a raw text-segment source line with its absolute file line
// number, as handed to Build by the caller that already split .data from
// .text and skipped the .text directive line itself.
type Line struct {
	Text       string
	SourceLine int
}

// Build walks the text segment once, tracking text_line (counts only
// lines that yield instructions) and file_line (absolute source line),
// and returns the label table. Duplicate label names are a fatal error.
func Build(lines []Line) (*Table, error) {
	t := New()
	textLine := 1

	for _, ln := range lines {
		norm := lexnorm.Normalize(ln.Text)
		if lexnorm.IsBlank(norm) {
			continue
		}

		name, hasLabel := lexnorm.HasLabel(norm)
		if !hasLabel {
			textLine++
			continue
		}

		if _, dup := t.entries[name]; dup {
			return nil, fmt.Errorf("duplicate label %q at line %d", name, ln.SourceLine)
		}
		t.entries[name] = Entry{TextIndex: textLine, SourceLine: ln.SourceLine}

		// A label-only line does not itself consume a text index; a
		// label followed by an instruction on the same line does.
		rest := stripLabel(norm)
		if !lexnorm.IsBlank(rest) {
			textLine++
		}
	}

	return t, nil
}

// stripLabel removes the leading "name:" token from an already
// normalized, non-blank line.
func stripLabel(norm string) string {
	fields := lexnorm.Fields(norm)
	if len(fields) <= 1 {
		return ""
	}
	rest := ""
	for i, f := range fields[1:] {
		if i > 0 {
			rest += " "
		}
		rest += f
	}
	return rest
}

// NameAt returns the name of the label (if any) whose text index equals
// textIndex — the reverse lookup execJal needs to name a call-stack
// frame after its target.
func (t *Table) NameAt(textIndex int) (string, bool) {
	for name, e := range t.entries {
		if e.TextIndex == textIndex {
			return name, true
		}
	}
	return "", false
}

// Max returns the highest text index recorded by any label, 0 if empty.
func (t *Table) Max() int {
	max := 0
	for _, e := range t.entries {
		if e.TextIndex > max {
			max = e.TextIndex
		}
	}
	return max
}
