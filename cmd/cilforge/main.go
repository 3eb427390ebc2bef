// Package main implements the cilforge CLI.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"cilforge/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "cilforge",
	Short: "AST to CIL compiler",
	Long: `cilforge lowers typed AST units to CIL and writes them either as
runnable .NET assemblies or as textual IL listings.`,
	SilenceUsage:      true,
	PersistentPreRunE: beforeCommand,
}

func init() {
	// Устанавливаем версию для автоматического флага --version
	rootCmd.Version = version.Plain()

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(emitILCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(versionCmd)

	registerPersistentFlags(rootCmd)
}

// main runs the root command. Any error exits with status 1.
func main() {
	err := rootCmd.Execute()
	finishTracing(err)
	finishProfiling()
	if err != nil {
		os.Exit(1)
	}
}

func registerPersistentFlags(cmd *cobra.Command) {
	// Глобальные флаги
	cmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	cmd.PersistentFlags().Bool("quiet", false, "suppress non-essential output")
	cmd.PersistentFlags().Bool("timings", false, "show timing information")
	cmd.PersistentFlags().Int("max-diagnostics", 100, "maximum number of diagnostics to show")
	cmd.PersistentFlags().String("format", "pretty", "diagnostics format (pretty|json|sarif)")
	cmd.PersistentFlags().String("min-severity", "info", "hide less severe diagnostics in pretty output (info|warning|error)")

	cmd.PersistentFlags().String("trace", "", "write trace events to a file (- for stderr)")
	cmd.PersistentFlags().String("trace-level", "off", "trace level (off|error|phase|detail|debug)")
	cmd.PersistentFlags().String("trace-mode", "ring", "trace storage (stream|ring|both)")
	cmd.PersistentFlags().Int("trace-ring-size", 4096, "events kept by the ring tracer")
	cmd.PersistentFlags().Duration("trace-heartbeat", 0, "emit a heartbeat event at this interval (0 disables)")

	cmd.PersistentFlags().String("cpu-profile", "", "write a CPU profile to this file")
	cmd.PersistentFlags().String("mem-profile", "", "write a heap profile to this file on exit")
	cmd.PersistentFlags().String("runtime-trace", "", "write a Go runtime trace to this file")
}

func beforeCommand(cmd *cobra.Command, _ []string) error {
	if err := setupProfiling(cmd); err != nil {
		return err
	}
	return setupTracing(cmd)
}

// isTerminal проверяет, является ли файл терминалом
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
