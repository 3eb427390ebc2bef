package astio

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"cilforge/internal/ast"
)

func sample() *ast.Assembly {
	return &ast.Assembly{
		Name:    "app",
		Version: "1.2",
		Module: ast.Module{
			Classes: []*ast.Class{{Name: "Point", Fields: []*ast.Field{{Name: "x", Type: "int"}}}},
			Functions: []*ast.Function{
				ast.Func("main", "int", nil,
					ast.Decl("p", "", ast.New("Point")),
					ast.Assign(ast.Member(ast.Var("p"), "x"), ast.Int(3)),
					ast.Return(ast.Bin(ast.OpAdd, ast.Member(ast.Var("p"), "x"), ast.Int(1))),
				),
			},
		},
	}
}

func TestFormats(t *testing.T) {
	for _, f := range []Format{FormatMsgpack, FormatJSON} {
		t.Run(f.String(), func(t *testing.T) {
			var buf bytes.Buffer
			if err := Encode(&buf, sample(), f); err != nil {
				t.Fatalf("encode: %v", err)
			}
			got, err := Decode(&buf, f)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !reflect.DeepEqual(got, sample()) {
				t.Fatalf("tree changed in transit:\n got %+v\nwant %+v", got, sample())
			}
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"unknown field", `{"name":"a","bogus":1,"module":{}}`, "bogus"},
		{"bad kind", `{"name":"a","module":{"functions":[{"name":"f","body":[{"kind":"goto"}]}]}}`, "goto"},
		{"not json", `{`, "decode json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.in), FormatJSON)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestReadWriteFile(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"app.ast", "app.json"} {
		path := filepath.Join(dir, name)
		if err := WriteFile(path, sample()); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		u, err := ReadFile(path)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if u.Name() != "app" {
			t.Errorf("%s: name = %q", name, u.Name())
		}
		raw, _ := os.ReadFile(path)
		if len(raw) == 0 || u.Digest == [32]byte{} {
			t.Errorf("%s: empty file or digest", name)
		}
	}
	if FormatOf("x.JSON") != FormatJSON || FormatOf("x.mp") != FormatMsgpack {
		t.Error("FormatOf picked the wrong encoding")
	}
}
