package diag

import (
	"fmt"
	"sort"
	"strings"
)

// FormatShort renders diagnostics one per line in a stable order:
//
//	error STK3001 hello:main#2 stack underflow
//
// Notes follow their diagnostic when includeNotes is set. Used by tests and
// by the CLI short output mode.
func FormatShort(diags []Diagnostic, includeNotes bool) string {
	if len(diags) == 0 {
		return ""
	}
	sorted := append([]Diagnostic(nil), diags...)
	sort.SliceStable(sorted, func(i, j int) bool {
		di, dj := sorted[i], sorted[j]
		if di.Primary != dj.Primary {
			return di.Primary.Less(dj.Primary)
		}
		if di.Severity != dj.Severity {
			return di.Severity > dj.Severity
		}
		if di.Code != dj.Code {
			return di.Code < dj.Code
		}
		return di.Message < dj.Message
	})

	var lines []string
	for _, d := range sorted {
		lines = append(lines, fmt.Sprintf("%s %s %s %s", severityLabel(d.Severity), d.Code.ID(), d.Primary, sanitizeMessage(d.Message)))
		if !includeNotes {
			continue
		}
		for _, n := range d.Notes {
			lines = append(lines, fmt.Sprintf("note %s %s %s", d.Code.ID(), n.Loc, sanitizeMessage(n.Msg)))
		}
	}
	return strings.Join(lines, "\n")
}

func severityLabel(sev Severity) string {
	switch sev {
	case SevError:
		return "error"
	case SevWarning:
		return "warning"
	default:
		return "info"
	}
}

func sanitizeMessage(msg string) string {
	msg = strings.ReplaceAll(msg, "\r\n", "\n")
	msg = strings.ReplaceAll(msg, "\r", "\n")
	msg = strings.ReplaceAll(msg, "\n", " ")
	return strings.TrimSpace(msg)
}
