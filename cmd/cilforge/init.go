package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"cilforge/internal/project"
)

var initCmd = &cobra.Command{
	Use:   "init [path|name]",
	Short: "Initialize a new cilforge project",
	Long: `Initialize a cilforge project by writing a cilforge.toml manifest. If
[path|name] is omitted, the current directory is used. A directory that does
not exist yet is created.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	target := wd
	if len(args) == 1 && args[0] != "." {
		target = args[0]
		if !filepath.IsAbs(target) {
			target = filepath.Join(wd, target)
		}
	}

	name := strings.TrimSpace(filepath.Base(target))
	if !project.IsValidPackageName(name) {
		name = "app"
	}
	path, err := project.Init(target, name)
	if err != nil {
		return err
	}

	rel := target
	if r, relErr := filepath.Rel(wd, target); relErr == nil {
		rel = r
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Initialized cilforge project %q in %s\n", name, rel)
	fmt.Fprintf(out, "  - %s\n", filepath.Base(path))
	return nil
}
