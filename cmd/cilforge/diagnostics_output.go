package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"cilforge/internal/diag"
	"cilforge/internal/diagfmt"
	"cilforge/internal/version"
)

type outputOptions struct {
	format         string
	minSeverity    diag.Severity
	color          bool
	quiet          bool
	timings        bool
	maxDiagnostics int
}

func readOutputOptions(cmd *cobra.Command) (outputOptions, error) {
	var opts outputOptions
	root := cmd.Root().PersistentFlags()
	colorFlag, err := root.GetString("color")
	if err != nil {
		return opts, fmt.Errorf("failed to get color flag: %w", err)
	}
	if opts.quiet, err = root.GetBool("quiet"); err != nil {
		return opts, fmt.Errorf("failed to get quiet flag: %w", err)
	}
	if opts.timings, err = root.GetBool("timings"); err != nil {
		return opts, fmt.Errorf("failed to get timings flag: %w", err)
	}
	if opts.maxDiagnostics, err = root.GetInt("max-diagnostics"); err != nil {
		return opts, fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}
	format, err := root.GetString("format")
	if err != nil {
		return opts, fmt.Errorf("failed to get format flag: %w", err)
	}
	minSeverity, err := root.GetString("min-severity")
	if err != nil {
		return opts, fmt.Errorf("failed to get min-severity flag: %w", err)
	}
	if opts.minSeverity, err = diag.ParseSeverity(minSeverity); err != nil {
		return opts, err
	}
	if opts.quiet && opts.minSeverity < diag.SevWarning {
		opts.minSeverity = diag.SevWarning
	}
	opts.format = strings.ToLower(format)
	switch opts.format {
	case "pretty", "json", "sarif":
	default:
		return opts, fmt.Errorf("unsupported format %q (expected pretty|json|sarif)", format)
	}
	switch colorFlag {
	case "on":
		opts.color = true
	case "off":
		opts.color = false
	case "auto":
		opts.color = isTerminal(os.Stderr)
	default:
		return opts, fmt.Errorf("invalid --color value %q (expected auto|on|off)", colorFlag)
	}
	return opts, nil
}

// humanOut is where progress lines go: stdout unless stdout carries
// machine-readable diagnostics.
func (o outputOptions) humanOut(cmd *cobra.Command) io.Writer {
	if o.format != "pretty" {
		return cmd.ErrOrStderr()
	}
	return cmd.OutOrStdout()
}

// printDiagnostics renders bag in the selected format. Pretty output goes
// to stderr, json and sarif to stdout.
func printDiagnostics(cmd *cobra.Command, bag *diag.Bag, opts outputOptions, baseDir string) error {
	if bag == nil {
		return nil
	}
	switch opts.format {
	case "json":
		return diagfmt.JSON(cmd.OutOrStdout(), bag, diagfmt.JSONOpts{
			PathMode:     diagfmt.PathModeRelative,
			BaseDir:      baseDir,
			Max:          opts.maxDiagnostics,
			IncludeNotes: true,
		})
	case "sarif":
		return diagfmt.Sarif(cmd.OutOrStdout(), bag, diagfmt.SarifRunMeta{
			ToolName:       "cilforge",
			ToolVersion:    version.Plain(),
			InvocationArgs: os.Args[1:],
		})
	}
	if bag.Len() == 0 {
		return nil
	}
	pretty := diagfmt.PrettyOpts{
		Color:     opts.color,
		PathMode:  diagfmt.PathModeRelative,
		BaseDir:   baseDir,
		ShowNotes: true,

		MinSeverity: opts.minSeverity,
	}
	w := cmd.ErrOrStderr()
	if err := diagfmt.Pretty(w, bag, pretty); err != nil {
		return err
	}
	if !opts.quiet {
		fmt.Fprintln(w, diagfmt.Summary(bag))
	}
	return nil
}
