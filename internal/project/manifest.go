package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/BurntSushi/toml"

	"cilforge/internal/il"
)

var (
	// ErrPackageSectionMissing indicates that [package] is missing in the manifest.
	ErrPackageSectionMissing = errors.New("missing [package]")
	// ErrPackageNameMissing indicates that [package].name is missing in the manifest.
	ErrPackageNameMissing = errors.New("missing [package].name")
)

// Manifest is a decoded cilforge.toml.
type Manifest struct {
	Path    string
	Root    string
	Package PackageConfig
	Build   BuildConfig
}

type PackageConfig struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	// Sources lists input files or directories relative to the root.
	// Empty means the whole project directory.
	Sources []string `toml:"sources"`
}

type BuildConfig struct {
	OutputDir string `toml:"output_dir"`
	Backend   string `toml:"backend"`
	Optimize  bool   `toml:"optimize"`
	DebugInfo bool   `toml:"debug_info"`
	Validate  bool   `toml:"validate"`
	Symbols   string `toml:"symbols"`
	Jobs      int    `toml:"jobs"`
	Cache     bool   `toml:"cache"`
}

type manifestFile struct {
	Package PackageConfig `toml:"package"`
	Build   BuildConfig   `toml:"build"`
}

// Load parses the manifest at path. Keys the manifest does not know are
// rejected so typos do not pass silently.
func Load(path string) (*Manifest, error) {
	var cfg manifestFile
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if !meta.IsDefined("package") {
		return nil, fmt.Errorf("%s: %w", path, ErrPackageSectionMissing)
	}
	name := strings.TrimSpace(cfg.Package.Name)
	if !meta.IsDefined("package", "name") || name == "" {
		return nil, fmt.Errorf("%s: %w", path, ErrPackageNameMissing)
	}
	if !IsValidPackageName(name) {
		return nil, fmt.Errorf("%s: invalid package name %q", path, name)
	}
	cfg.Package.Name = name
	if _, err := il.ParseVersion(cfg.Package.Version); err != nil {
		return nil, fmt.Errorf("%s: [package].version: %w", path, err)
	}
	// validate defaults to on
	if !meta.IsDefined("build", "validate") {
		cfg.Build.Validate = true
	}
	if !meta.IsDefined("build", "cache") {
		cfg.Build.Cache = true
	}
	switch cfg.Build.Backend {
	case "", "pe", "il":
	default:
		return nil, fmt.Errorf("%s: [build].backend must be \"pe\" or \"il\", got %q", path, cfg.Build.Backend)
	}
	if cfg.Build.Jobs < 0 {
		return nil, fmt.Errorf("%s: [build].jobs must not be negative", path)
	}

	m := &Manifest{
		Path:    path,
		Root:    filepath.Dir(path),
		Package: cfg.Package,
		Build:   cfg.Build,
	}
	for _, src := range m.Package.Sources {
		if _, err := m.resolve(src); err != nil {
			return nil, fmt.Errorf("%s: [package].sources: %w", path, err)
		}
	}
	return m, nil
}

// LoadFromDir finds the manifest above startDir and loads it. ok is false
// when there is none.
func LoadFromDir(startDir string) (m *Manifest, ok bool, err error) {
	path, ok, err := FindManifest(startDir)
	if err != nil || !ok {
		return nil, ok, err
	}
	m, err = Load(path)
	if err != nil {
		return nil, true, err
	}
	return m, true, nil
}

// resolve maps a manifest-relative path into the project; paths must stay
// inside the root.
func (m *Manifest) resolve(rel string) (string, error) {
	rel = strings.TrimSpace(rel)
	if rel == "" {
		return "", fmt.Errorf("empty path")
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%q must be relative", rel)
	}
	path := filepath.Join(m.Root, filepath.Clean(filepath.FromSlash(rel)))
	if !pathWithin(m.Root, path) {
		return "", fmt.Errorf("%q escapes the project root", rel)
	}
	return path, nil
}

// SourcePaths are the inputs to build, absolute.
func (m *Manifest) SourcePaths() []string {
	if len(m.Package.Sources) == 0 {
		return []string{m.Root}
	}
	out := make([]string, 0, len(m.Package.Sources))
	for _, src := range m.Package.Sources {
		if p, err := m.resolve(src); err == nil {
			out = append(out, p)
		}
	}
	return out
}

// OutputDir is [build].output_dir resolved against the root, or "" when
// the manifest leaves it unset. Output may live outside the project.
func (m *Manifest) OutputDir() string {
	dir := strings.TrimSpace(m.Build.OutputDir)
	if dir == "" {
		return ""
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(m.Root, filepath.FromSlash(dir))
}

// SymbolsPath is the extra external symbol table, or "".
func (m *Manifest) SymbolsPath() string {
	s := strings.TrimSpace(m.Build.Symbols)
	if s == "" {
		return ""
	}
	if filepath.IsAbs(s) {
		return s
	}
	return filepath.Join(m.Root, filepath.FromSlash(s))
}

// IsValidPackageName accepts assembly-friendly names: a letter or '_'
// followed by letters, digits, '_', '.' and '-'.
func IsValidPackageName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		if r > unicode.MaxASCII {
			return false
		}
		if i == 0 && r != '_' && !unicode.IsLetter(r) {
			return false
		}
		if i > 0 && r != '_' && r != '.' && r != '-' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// DefaultManifest returns the manifest written by `cilforge init`.
func DefaultManifest(name string) string {
	return fmt.Sprintf(`# cilforge project manifest
[package]
name = %q
version = "1.0.0.0"

[build]
output_dir = "target"
backend = "pe"
validate = true
`, name)
}

// Init writes a default manifest into dir, creating dir when needed. It
// refuses to overwrite an existing manifest.
func Init(dir, name string) (string, error) {
	if st, err := os.Stat(dir); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create directory %q: %w", dir, err)
		}
	} else if !st.IsDir() {
		return "", fmt.Errorf("%q is not a directory", dir)
	}
	if !IsValidPackageName(name) {
		name = "app"
	}
	path := filepath.Join(dir, ManifestName)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("project already initialized: %s exists", path)
	}
	if err := os.WriteFile(path, []byte(DefaultManifest(name)), 0o644); err != nil {
		return "", fmt.Errorf("failed to write manifest: %w", err)
	}
	return path, nil
}
