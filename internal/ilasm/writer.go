package ilasm

import "strings"

// writer accumulates the listing with block indentation.
type writer struct {
	buf         strings.Builder
	width       int
	indentLevel int
}

func newWriter(width int) *writer {
	if width <= 0 {
		width = 4
	}
	return &writer{width: width}
}

// line writes one indented line; an empty string writes a blank line.
func (w *writer) line(s string) {
	if s != "" {
		w.buf.WriteString(strings.Repeat(" ", w.indentLevel*w.width))
		w.buf.WriteString(s)
	}
	w.buf.WriteByte('\n')
}

// open writes s followed by "{" and indents.
func (w *writer) open(s string) {
	w.line(s)
	w.line("{")
	w.indentLevel++
}

func (w *writer) close() {
	if w.indentLevel > 0 {
		w.indentLevel--
	}
	w.line("}")
}

func (w *writer) String() string { return w.buf.String() }
