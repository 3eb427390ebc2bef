package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"cilforge/internal/buildcache"
	"cilforge/internal/buildpipeline"
	"cilforge/internal/observ"
	"cilforge/internal/project"
	"cilforge/internal/symbols"
)

const noManifestMessage = "no cilforge.toml found\nplease name the inputs explicitly, e.g.:\n  cilforge build path/to/unit.ast"

// buildSetup is a BuildRequest merged from the manifest and the flags,
// plus the output settings of the command.
type buildSetup struct {
	req      buildpipeline.BuildRequest
	manifest *project.Manifest
	baseDir  string
	display  []string
	out      outputOptions
	ui       uiMode
}

// addBuildFlags registers the flags shared by build, emit-il and check.
func addBuildFlags(cmd *cobra.Command, withBackend bool) {
	if withBackend {
		cmd.Flags().String("backend", "pe", "output backend (pe|il)")
	}
	cmd.Flags().StringP("output", "o", "", "output directory (default: manifest output_dir or <tmp>/cilforge)")
	cmd.Flags().Bool("optimize", false, "request optimized output")
	cmd.Flags().Bool("debug-info", false, "request debug information")
	cmd.Flags().Bool("no-validate", false, "skip the listing smoke check")
	cmd.Flags().Bool("no-cache", false, "do not read or fill the artifact cache")
	cmd.Flags().Int("jobs", 0, "parallel compilation units (0 = GOMAXPROCS)")
	cmd.Flags().String("symbols", "", "extra external symbol table (TOML)")
	cmd.Flags().String("ui", "auto", "progress UI (auto|on|off)")
}

// resolveBuild merges cilforge.toml with the command flags. Flags that were
// set explicitly win over the manifest.
func resolveBuild(cmd *cobra.Command, args []string) (*buildSetup, error) {
	out, err := readOutputOptions(cmd)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	uiValue, err := flags.GetString("ui")
	if err != nil {
		return nil, err
	}
	mode, err := readUIMode(uiValue)
	if err != nil {
		return nil, err
	}

	start := "."
	if len(args) == 1 {
		if st, statErr := os.Stat(args[0]); statErr == nil && st.IsDir() {
			start = args[0]
		}
	}
	manifest, found, err := project.LoadFromDir(start)
	if err != nil {
		return nil, err
	}

	setup := &buildSetup{manifest: manifest, out: out, ui: mode}
	var inputs []string
	switch {
	case len(args) > 0:
		inputs = args
	case found:
		inputs = manifest.SourcePaths()
	default:
		return nil, errors.New(noManifestMessage)
	}
	if found {
		setup.baseDir = manifest.Root
	} else if wd, wdErr := os.Getwd(); wdErr == nil {
		setup.baseDir = wd
	}

	files, err := buildpipeline.CollectInputs(inputs)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		setup.display = append(setup.display, buildpipeline.DisplayPath(f, setup.baseDir))
	}

	var cfg project.BuildConfig
	if found {
		cfg = manifest.Build
	} else {
		cfg = project.BuildConfig{Validate: true, Cache: true}
	}

	req := &setup.req
	req.Files = files
	req.BaseDir = setup.baseDir
	req.MaxDiagnostics = out.maxDiagnostics
	if out.timings {
		req.Timer = observ.NewTimer()
	}

	backend := cfg.Backend
	if flags.Lookup("backend") != nil && (flags.Changed("backend") || backend == "") {
		if backend, err = flags.GetString("backend"); err != nil {
			return nil, err
		}
	}
	if req.Backend, err = buildpipeline.ParseBackend(backend); err != nil {
		return nil, err
	}

	if req.OutputDir, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if req.OutputDir == "" && found {
		req.OutputDir = manifest.OutputDir()
	}
	if req.OutputDir != "" {
		if abs, absErr := filepath.Abs(req.OutputDir); absErr == nil {
			req.OutputDir = abs
		}
	}

	optimize, _ := flags.GetBool("optimize")
	debugInfo, _ := flags.GetBool("debug-info")
	noValidate, _ := flags.GetBool("no-validate")
	noCache, _ := flags.GetBool("no-cache")
	req.Optimize = optimize || cfg.Optimize
	req.DebugInfo = debugInfo || cfg.DebugInfo
	req.Validate = cfg.Validate && !noValidate

	req.Jobs = cfg.Jobs
	if flags.Changed("jobs") {
		if req.Jobs, err = flags.GetInt("jobs"); err != nil {
			return nil, err
		}
		if req.Jobs < 0 {
			return nil, fmt.Errorf("--jobs must not be negative")
		}
	}

	extra, err := flags.GetString("symbols")
	if err != nil {
		return nil, err
	}
	if extra == "" && found {
		extra = manifest.SymbolsPath()
	}
	if req.Symbols, err = symbols.Load(extra); err != nil {
		return nil, err
	}

	if cfg.Cache && !noCache {
		cache, cacheErr := buildcache.OpenDefault("cilforge")
		if cacheErr != nil {
			if !out.quiet {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: artifact cache disabled: %v\n", cacheErr)
			}
		} else {
			req.Cache = cache
		}
	}
	return setup, nil
}

// resolveOutputBase is the directory whose output `clean` removes.
func resolveOutputBase(base string) (root, outputDir string, err error) {
	info, err := os.Stat(base)
	if err != nil {
		return "", "", fmt.Errorf("failed to stat %q: %w", base, err)
	}
	if !info.IsDir() {
		base = filepath.Dir(base)
	}
	manifest, ok, err := project.LoadFromDir(base)
	if err != nil {
		return "", "", err
	}
	if ok {
		return manifest.Root, manifest.OutputDir(), nil
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return base, "", nil
	}
	return abs, "", nil
}
