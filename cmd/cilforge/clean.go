package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cilforge/internal/buildcache"
	"cilforge/internal/ilasm"
)

var cleanCmd = &cobra.Command{
	Use:   "clean [path]",
	Short: "Remove build output",
	Long: `Remove the output directory of the project at [path] (the manifest's
output_dir, or <tmp>/cilforge without a manifest). --cache also drops the
artifact cache.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().Bool("cache", false, "also drop the artifact cache")
}

func runClean(cmd *cobra.Command, args []string) error {
	baseDir := "."
	if len(args) > 0 && args[0] != "" {
		baseDir = args[0]
	}
	root, targetDir, err := resolveOutputBase(baseDir)
	if err != nil {
		return err
	}
	if targetDir == "" {
		targetDir = ilasm.DefaultOutputDir()
	}
	out := cmd.OutOrStdout()

	if err := removeDir(targetDir); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		fmt.Fprintf(out, "output directory not found\n")
	} else {
		fmt.Fprintf(out, "removed %s\n", formatPathForOutput(root, targetDir))
	}

	dropCache, err := cmd.Flags().GetBool("cache")
	if err != nil {
		return err
	}
	if !dropCache {
		return nil
	}
	cache, err := buildcache.OpenDefault("cilforge")
	if err != nil {
		return err
	}
	if err := cache.DropAll(); err != nil {
		return fmt.Errorf("failed to drop cache: %w", err)
	}
	fmt.Fprintf(out, "removed %s\n", cache.Dir())
	return nil
}

func removeDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return err
		}
		return fmt.Errorf("failed to stat %q: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%q is not a directory", dir)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove %q: %w", dir, err)
	}
	return nil
}
