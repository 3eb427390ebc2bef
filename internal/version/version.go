// Package version holds the build identity of the cilforge CLI.
package version

import (
	"fmt"

	"github.com/fatih/color"
)

// These variables can be overridden at build time via -ldflags.
var (
	Major = "0"
	Minor = "1"
	Patch = "0"
	// Suffix is appended after a dash when not empty.
	Suffix = "dev"

	// GitCommit is an optional git commit hash.
	GitCommit = ""

	// BuildDate is an optional build date in ISO-8601.
	BuildDate = ""
)

var (
	versionMajorColor = color.New(color.FgYellow, color.Bold)
	versionMinorColor = color.New(color.FgGreen, color.Bold)
	versionPatchColor = color.New(color.FgBlue, color.Bold)
)

// Plain is the uncolored semantic version.
func Plain() string {
	v := Major + "." + Minor + "." + Patch
	if Suffix != "" {
		v += "-" + Suffix
	}
	return v
}

// Colored renders the version with each part in its own color. fatih/color
// drops the escapes itself when output is not a terminal or NO_COLOR is set.
func Colored() string {
	v := versionMajorColor.Sprint(Major) + "." + versionMinorColor.Sprint(Minor) + "." + versionPatchColor.Sprint(Patch)
	if Suffix != "" {
		v += "-" + Suffix
	}
	return v
}

// Long is the one-line form printed by `cilforge version`.
func Long(colored bool) string {
	v := Plain()
	if colored {
		v = Colored()
	}
	s := "cilforge " + v
	if GitCommit != "" {
		s += fmt.Sprintf(" (%s)", GitCommit)
	}
	if BuildDate != "" {
		s += " built " + BuildDate
	}
	return s
}
