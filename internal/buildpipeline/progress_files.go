package buildpipeline

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Input extensions picked up when a directory is given.
var inputSuffixes = []string{".ast", ".ast.json"}

func isInput(path string) bool {
	for _, s := range inputSuffixes {
		if strings.HasSuffix(path, s) {
			return true
		}
	}
	return false
}

// CollectInputs expands directories into the syntax tree files below them.
// Files named explicitly are taken whatever their extension. The result is
// sorted and free of duplicates.
func CollectInputs(paths []string) ([]string, error) {
	seen := make(map[string]struct{}, len(paths))
	var files []string
	add := func(p string) {
		p = filepath.Clean(p)
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		files = append(files, p)
	}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != p && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if isInput(path) {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no input files in %s", strings.Join(paths, ", "))
	}
	// Сортируем для детерминированного порядка
	sort.Strings(files)
	return files, nil
}

// DisplayPath shortens file relative to baseDir for progress and
// diagnostics output; paths outside baseDir stay as they are.
func DisplayPath(file, baseDir string) string {
	path := filepath.Clean(file)
	base := strings.TrimSpace(baseDir)
	if base == "" {
		return filepath.ToSlash(path)
	}
	if abs, err := filepath.Abs(base); err == nil {
		base = abs
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if rel, err := filepath.Rel(base, path); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
		path = rel
	}
	return filepath.ToSlash(path)
}
