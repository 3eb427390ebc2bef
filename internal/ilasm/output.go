package ilasm

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// DefaultOutputDir is used when no output directory is configured.
func DefaultOutputDir() string {
	return filepath.Join(os.TempDir(), "cilforge")
}

// Validate is a smoke check: the listing must be non-empty and carry the
// assembly and module directives. It does not parse anything.
func Validate(text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("empty IL listing")
	}
	if !strings.Contains(text, ".assembly") {
		return errors.New("IL listing has no .assembly directive")
	}
	if !strings.Contains(text, ".module") {
		return errors.New("IL listing has no .module directive")
	}
	return nil
}

// WriteFile stores text as <dir>/<name>.il and returns the path.
func WriteFile(dir, name, text string) (string, error) {
	if dir == "" {
		dir = DefaultOutputDir()
	}
	if name == "" {
		name = "DefaultAssembly"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name+".il")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
