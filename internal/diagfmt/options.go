// Package diagfmt renders diagnostic bags for terminals, tools and CI.
package diagfmt

import (
	"path/filepath"

	"cilforge/internal/diag"
)

// PathMode specifies how unit paths are displayed.
type PathMode uint8

const (
	// PathModeAuto keeps the path as reported.
	PathModeAuto PathMode = iota
	// PathModeAbsolute always uses absolute paths.
	PathModeAbsolute
	PathModeRelative
	PathModeBasename
)

// PrettyOpts configures pretty-printing of diagnostics.
type PrettyOpts struct {
	Color     bool
	PathMode  PathMode
	BaseDir   string // for PathModeRelative; working directory when empty
	ShowNotes bool
	// MinSeverity hides anything less severe.
	MinSeverity diag.Severity
}

// JSONOpts configures JSON output of diagnostics.
type JSONOpts struct {
	PathMode     PathMode
	BaseDir      string
	Max          int // обрезка вывода, не Bag
	IncludeNotes bool
}

// SarifRunMeta provides metadata for SARIF output.
type SarifRunMeta struct {
	ToolName       string
	ToolVersion    string
	InvocationArgs []string
}

// formatPath renders a unit path. Units that are not files (assembly names)
// pass through unchanged in every mode but absolute.
func formatPath(p string, mode PathMode, base string) string {
	if p == "" {
		return p
	}
	switch mode {
	case PathModeAbsolute:
		if abs, err := filepath.Abs(p); err == nil {
			return abs
		}
	case PathModeRelative:
		if base == "" {
			return p
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return p
		}
		if rel, err := filepath.Rel(base, abs); err == nil {
			return rel
		}
	case PathModeBasename:
		return filepath.Base(p)
	}
	return p
}
