package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cilforge/internal/ast"
	"cilforge/internal/astio"
)

func TestReadUIMode(t *testing.T) {
	tests := []struct {
		in   string
		want uiMode
		err  bool
	}{
		{"", uiModeAuto, false},
		{"AUTO", uiModeAuto, false},
		{" on ", uiModeOn, false},
		{"off", uiModeOff, false},
		{"sometimes", "", true},
	}
	for _, tt := range tests {
		got, err := readUIMode(tt.in)
		if (err != nil) != tt.err || got != tt.want {
			t.Errorf("readUIMode(%q) = %q, %v", tt.in, got, err)
		}
	}
	if shouldUseTUI(uiModeOff, false, "pretty") || !shouldUseTUI(uiModeOn, true, "json") {
		t.Error("explicit ui mode ignored")
	}
	if shouldUseTUI(uiModeAuto, false, "sarif") {
		t.Error("progress view over machine-readable output")
	}
}

func TestFormatPathForOutput(t *testing.T) {
	tests := []struct {
		root, path, want string
	}{
		{"/work", "/work/target/App.dll", "target/App.dll"},
		{"/work", "/tmp/cilforge/App.dll", "/tmp/cilforge/App.dll"},
		{"", "/x/App.dll", "/x/App.dll"},
	}
	for _, tt := range tests {
		if got := formatPathForOutput(tt.root, tt.path); got != tt.want {
			t.Errorf("formatPathForOutput(%q, %q) = %q, want %q", tt.root, tt.path, got, tt.want)
		}
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func writeHello(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "hello.ast")
	a := &ast.Assembly{Name: "Hello", Module: ast.Module{Functions: []*ast.Function{
		ast.Func("main", "int", nil, ast.Return(ast.Int(42))),
	}}}
	if err := astio.WriteFile(path, a); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBuildThenInspect(t *testing.T) {
	dir := t.TempDir()
	src := writeHello(t, dir)
	out := filepath.Join(dir, "out")

	text, err := execute(t, "build", "--ui", "off", "--no-cache", "-o", out, src)
	if err != nil {
		t.Fatalf("build: %v\n%s", err, text)
	}
	dll := filepath.Join(out, "Hello.dll")
	if !strings.Contains(text, "built ") {
		t.Errorf("no artifact line in %q", text)
	}
	if _, err := os.Stat(dll); err != nil {
		t.Fatal(err)
	}

	text, err = execute(t, "inspect", dll)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	for _, want := range []string{"runtime      2.5", "MethodDef", "Main", "(entry)", "assembly     Hello"} {
		if !strings.Contains(text, want) {
			t.Errorf("inspect output lacks %q:\n%s", want, text)
		}
	}
}

func TestCheckWritesNothing(t *testing.T) {
	dir := t.TempDir()
	src := writeHello(t, dir)
	out := filepath.Join(dir, "out")

	text, err := execute(t, "check", "--ui", "off", "--no-cache", "-o", out, src)
	if err != nil {
		t.Fatalf("check: %v\n%s", err, text)
	}
	if !strings.Contains(text, "checked 1 unit(s)") {
		t.Errorf("output = %q", text)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("check created %s", out)
	}
}

func TestVersionFullJSON(t *testing.T) {
	text, err := execute(t, "version", "--full", "--format", "json")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"tool": "cilforge"`, `"target": "net8.0`, `"metadata_version": "v4.0.30319"`, `"cli_runtime": "2.5"`} {
		if !strings.Contains(text, want) {
			t.Errorf("version output lacks %q:\n%s", want, text)
		}
	}
	// --format is persistent; later tests expect pretty again.
	if _, err := execute(t, "version", "--full=false", "--format", "pretty"); err != nil {
		t.Fatal(err)
	}
}

func TestInitWritesManifest(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "demo")
	text, err := execute(t, "init", dir)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, `"demo"`) {
		t.Errorf("output = %q", text)
	}
	if _, err := os.Stat(filepath.Join(dir, "cilforge.toml")); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "init", dir); err == nil {
		t.Error("second init succeeded")
	}
}
