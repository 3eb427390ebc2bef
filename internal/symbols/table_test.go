package symbols

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultTable(t *testing.T) {
	tab := Default()
	console, ok := tab.LookupType("Console")
	if !ok {
		t.Fatalf("Console not found by short name")
	}
	if console.Assembly != "System.Console" || console.QualifiedName() != "System.Console" {
		t.Fatalf("unexpected console type %+v", console)
	}
	if n := len(console.Overloads("WriteLine")); n < 5 {
		t.Fatalf("expected WriteLine overloads, got %d", n)
	}
	b, ok := tab.Builtin("print")
	if !ok || b.Type != "System.Console" || b.Method != "WriteLine" {
		t.Fatalf("unexpected print builtin %+v", b)
	}
	sb, ok := tab.LookupType("System.Text.StringBuilder")
	if !ok || !sb.DefaultCtor {
		t.Fatalf("StringBuilder missing or without ctor")
	}
	if sb.Overloads("Append")[0].IsStatic() {
		t.Fatalf("Append is an instance method")
	}
	if !console.Overloads("WriteLine")[0].IsStatic() {
		t.Fatalf("WriteLine defaults to static")
	}
}

func TestLoadMerges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "extra.toml")
	doc := `
[[type]]
assembly = "System.Console"
namespace = "System"
name = "Console"
methods = [{ name = "Beep", params = [], returns = "System.Void" }]

[[type]]
assembly = "Acme.Runtime"
namespace = "Acme"
name = "Graph"
methods = [{ name = "Create", params = [], returns = "Acme.Graph@Acme.Runtime" }]
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	tab, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	console, _ := tab.LookupType("System.Console")
	if len(console.Overloads("Beep")) != 1 || len(console.Overloads("WriteLine")) == 0 {
		t.Fatalf("merge lost methods")
	}
	if _, ok := tab.LookupType("Acme.Graph"); !ok {
		t.Fatalf("new type not registered")
	}
	if tab.Fingerprint() == Default().Fingerprint() {
		t.Fatalf("fingerprint must change after merge")
	}
}

func TestMergeRejectsUnknownKeys(t *testing.T) {
	tab := Default()
	err := tab.Merge("bad.toml", []byte("[[type]]\nname = \"X\"\ncolour = \"red\"\n"))
	if err == nil || !strings.Contains(err.Error(), "unknown keys") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestAmbiguousShortName(t *testing.T) {
	tab := Default()
	if err := tab.Merge("dup.toml", []byte("[[type]]\nnamespace = \"Other\"\nname = \"Console\"\n")); err != nil {
		t.Fatal(err)
	}
	if _, ok := tab.LookupType("Console"); ok {
		t.Fatalf("ambiguous short name must not resolve")
	}
	if _, ok := tab.LookupType("Other.Console"); !ok {
		t.Fatalf("qualified lookup must still work")
	}
}

func TestExtensions(t *testing.T) {
	tab := Default()
	doc := `
[[type]]
namespace = "Acme.Text"
name = "StringExt"
methods = [{ name = "Shout", params = ["System.String"], returns = "System.String", extension = true }]
`
	if err := tab.Merge("ext.toml", []byte(doc)); err != nil {
		t.Fatal(err)
	}
	ext := tab.Extensions("Shout")
	if len(ext) != 1 || ext[0].Type.QualifiedName() != "Acme.Text.StringExt" || ext[0].Type.Assembly != "System.Runtime" {
		t.Fatalf("unexpected extensions %+v", ext)
	}
	if len(tab.Extensions("WriteLine")) != 0 {
		t.Fatalf("non-extension methods must not be listed")
	}
}
