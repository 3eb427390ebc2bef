package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"cilforge/internal/buildpipeline"
)

var buildCmd = &cobra.Command{
	Use:   "build [flags] [paths...]",
	Short: "Compile AST units to .NET assemblies",
	Long: `Compile every .ast / .ast.json unit named on the command line, or the
sources listed in cilforge.toml, into one assembly per unit. Directories are
searched recursively.`,
	RunE: buildExecution,
}

var emitILCmd = &cobra.Command{
	Use:   "emit-il [flags] [paths...]",
	Short: "Write textual IL listings",
	Long:  "Lower AST units and write one ilasm-style .il listing per unit.",
	RunE:  emitILExecution,
}

var checkCmd = &cobra.Command{
	Use:   "check [flags] [paths...]",
	Short: "Lower and emit in memory, report diagnostics only",
	RunE:  checkExecution,
}

func init() {
	addBuildFlags(buildCmd, true)
	addBuildFlags(emitILCmd, false)
	addBuildFlags(checkCmd, true)
}

func buildExecution(cmd *cobra.Command, args []string) error {
	setup, err := resolveBuild(cmd, args)
	if err != nil {
		return err
	}
	return runPipeline(cmd, setup, "cilforge build", buildpipeline.StageWrite)
}

func emitILExecution(cmd *cobra.Command, args []string) error {
	setup, err := resolveBuild(cmd, args)
	if err != nil {
		return err
	}
	setup.req.Backend = buildpipeline.BackendIL
	return runPipeline(cmd, setup, "cilforge emit-il", buildpipeline.StageWrite)
}

func checkExecution(cmd *cobra.Command, args []string) error {
	setup, err := resolveBuild(cmd, args)
	if err != nil {
		return err
	}
	setup.req.DryRun = true
	return runPipeline(cmd, setup, "cilforge check", buildpipeline.StageEmit)
}

// runPipeline runs the request, with the progress view when it is wanted,
// then reports diagnostics, timings and artifacts.
func runPipeline(cmd *cobra.Command, setup *buildSetup, title string, final buildpipeline.Stage) error {
	var (
		res buildpipeline.BuildResult
		err error
	)
	if shouldUseTUI(setup.ui, setup.out.quiet, setup.out.format) && len(setup.display) > 0 {
		res, err = runBuildWithUI(cmd.Context(), title, setup.display, final, &setup.req)
	} else {
		res, err = buildpipeline.Build(cmd.Context(), &setup.req)
	}

	if printErr := printDiagnostics(cmd, res.Bag, setup.out, setup.baseDir); printErr != nil {
		return printErr
	}
	out := setup.out.humanOut(cmd)
	if setup.out.timings {
		printStageTimings(out, res.Timings, setup.req.Timer)
	}
	if !setup.out.quiet {
		for _, a := range res.Artifacts {
			if a.Path == "" {
				continue
			}
			verb := "built"
			if a.Cached {
				verb = "cached"
			}
			if _, printErr := fmt.Fprintf(out, "%s %s\n", verb, formatPathForOutput(setup.baseDir, a.Path)); printErr != nil {
				return printErr
			}
		}
	}
	if err != nil {
		return err
	}
	if res.Bag != nil && res.Bag.HasErrors() {
		return fmt.Errorf("%s: compilation reported errors", title)
	}
	if setup.req.DryRun && !setup.out.quiet {
		_, err = fmt.Fprintf(out, "checked %d unit(s)\n", len(res.Units))
	}
	return err
}

func formatPathForOutput(root, path string) string {
	if root == "" || path == "" {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	if strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}
