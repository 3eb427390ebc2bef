package diagfmt

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"cilforge/internal/diag"
)

// palette holds the colors of one Pretty call. The caller decides on color
// (the --color flag), so terminal detection inside fatih/color is overridden
// both ways.
type palette struct {
	err, warn, info, loc, note *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		err:  color.New(color.FgRed, color.Bold),
		warn: color.New(color.FgYellow, color.Bold),
		info: color.New(color.FgCyan),
		loc:  color.New(color.Bold),
		note: color.New(color.FgBlue),
	}
	for _, c := range []*color.Color{p.err, p.warn, p.info, p.loc, p.note} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) severity(s diag.Severity) *color.Color {
	switch s {
	case diag.SevError:
		return p.err
	case diag.SevWarning:
		return p.warn
	default:
		return p.info
	}
}

// Pretty форматирует диагностики в человекочитаемый вид.
// Идёт по bag.Items() (ожидается bag.Sort() заранее).
// Для каждого diag печатает:
//
//	<unit>:<method>#<stmt>: <SEV> <CODE>: <Message>
//
// затем Notes с отступом.
func Pretty(w io.Writer, bag *diag.Bag, opts PrettyOpts) error {
	p := newPalette(opts.Color)
	for _, d := range bag.Items() {
		if d.Severity < opts.MinSeverity {
			continue
		}
		loc := location(d.Primary, opts.PathMode, opts.BaseDir)
		if loc != "" {
			loc = p.loc.Sprint(loc) + ": "
		}
		sev := p.severity(d.Severity).Sprintf("%s %s", d.Severity, d.Code.ID())
		if _, err := fmt.Fprintf(w, "%s%s: %s\n", loc, sev, d.Message); err != nil {
			return err
		}
		if !opts.ShowNotes {
			continue
		}
		for _, n := range d.Notes {
			nl := location(n.Loc, opts.PathMode, opts.BaseDir)
			if nl != "" {
				nl = " (" + nl + ")"
			}
			if _, err := fmt.Fprintf(w, "  %s%s: %s\n", p.note.Sprint("note"), nl, n.Msg); err != nil {
				return err
			}
		}
	}
	return nil
}

// Summary is the closing line of a build: "2 errors, 1 warning".
func Summary(bag *diag.Bag) string {
	var errs, warns int
	for _, d := range bag.Items() {
		switch d.Severity {
		case diag.SevError:
			errs++
		case diag.SevWarning:
			warns++
		}
	}
	s := fmt.Sprintf("%d %s, %d %s", errs, plural(errs, "error"), warns, plural(warns, "warning"))
	if n := bag.Dropped(); n > 0 {
		s += fmt.Sprintf(" (%d more over the limit)", n)
	}
	return s
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

func location(l diag.Location, mode PathMode, base string) string {
	if l == (diag.Location{}) || l.IsZero() {
		return ""
	}
	l.Unit = formatPath(l.Unit, mode, base)
	return l.String()
}
