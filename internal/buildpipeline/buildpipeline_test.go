package buildpipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"cilforge/internal/ast"
	"cilforge/internal/astio"
	"cilforge/internal/buildcache"
	"cilforge/internal/diag"
	"cilforge/internal/pe"
)

func writeUnit(t *testing.T, dir, file, name string, funcs ...*ast.Function) string {
	t.Helper()
	path := filepath.Join(dir, file)
	a := &ast.Assembly{Name: name, Module: ast.Module{Functions: funcs}}
	if err := astio.WriteFile(path, a); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func mainReturning(v int32) *ast.Function {
	return ast.Func("main", "int", nil, ast.Return(ast.Int(v)))
}

func hasCode(bag *diag.Bag, code diag.Code) bool {
	for _, d := range bag.Items() {
		if d.Code == code {
			return true
		}
	}
	return false
}

func TestParseBackend(t *testing.T) {
	tests := []struct {
		in   string
		want Backend
		err  bool
	}{
		{"", BackendPE, false},
		{"pe", BackendPE, false},
		{"il", BackendIL, false},
		{"llvm", "", true},
	}
	for _, tt := range tests {
		got, err := ParseBackend(tt.in)
		if (err != nil) != tt.err || got != tt.want {
			t.Errorf("ParseBackend(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestCollectInputs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.ast", "a.ast.json", "notes.txt", filepath.Join(".cache", "c.ast"), filepath.Join("sub", "d.ast")} {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	explicit := filepath.Join(dir, "notes.txt")
	got, err := CollectInputs([]string{dir, explicit, filepath.Join(dir, "b.ast")})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		filepath.Join(dir, "a.ast.json"),
		filepath.Join(dir, "b.ast"),
		explicit,
		filepath.Join(dir, "sub", "d.ast"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("CollectInputs = %v, want %v", got, want)
	}
	if _, err := CollectInputs([]string{filepath.Join(dir, "sub", "empty-dir-missing")}); err == nil {
		t.Error("missing path accepted")
	}
}

func TestDisplayPath(t *testing.T) {
	if got := DisplayPath("/work/src/a.ast", "/work"); got != "src/a.ast" {
		t.Errorf("DisplayPath = %q", got)
	}
	if got := DisplayPath("/elsewhere/a.ast", "/work"); got != "/elsewhere/a.ast" {
		t.Errorf("outside base = %q", got)
	}
}

func TestCompileParallelUnits(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeUnit(t, dir, "one.ast", "One", mainReturning(1)),
		writeUnit(t, dir, "two.ast.json", "Two", mainReturning(2)),
		writeUnit(t, dir, "lib.ast", "Lib", ast.Func("helper", "int", nil, ast.Return(ast.Int(3)))),
	}
	res, err := Compile(context.Background(), &CompileRequest{Files: files, BaseDir: dir, Jobs: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Units) != 3 {
		t.Fatalf("units = %d", len(res.Units))
	}
	for i, name := range []string{"One", "Two", "Lib"} {
		u := res.Units[i]
		if u.Name() != name || u.Decl == nil || u.Transformer == nil {
			t.Errorf("unit %d = %s decl=%v", i, u.Name(), u.Decl != nil)
		}
	}
	if !res.Timings.Has(StageDecode) || !res.Timings.Has(StageLower) {
		t.Error("missing stage timings")
	}
	// Lib has no main
	if !hasCode(res.Bag, diag.PipeInfo) {
		t.Errorf("no entry point note in %v", res.Bag.Items())
	}
}

func TestBuildContinuesPastBrokenUnit(t *testing.T) {
	dir := t.TempDir()
	good := writeUnit(t, dir, "good.ast", "Good", mainReturning(7))
	bad := filepath.Join(dir, "bad.ast")
	if err := os.WriteFile(bad, []byte("not msgpack"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out")
	res, err := Build(context.Background(), &BuildRequest{
		CompileRequest: CompileRequest{Files: []string{bad, good}, BaseDir: dir},
		OutputDir:      out,
	})
	if err == nil || !strings.Contains(err.Error(), "1 of 2 units failed") {
		t.Fatalf("err = %v", err)
	}
	if !hasCode(res.Bag, diag.PipeDecodeFailed) {
		t.Errorf("no decode diagnostic in %v", res.Bag.Items())
	}
	if len(res.Artifacts) != 1 {
		t.Fatalf("artifacts = %+v", res.Artifacts)
	}
	a := res.Artifacts[0]
	if a.Path != filepath.Join(out, "Good.dll") || a.Image == nil || a.Cached {
		t.Errorf("artifact = %+v", a)
	}
	data, err := os.ReadFile(a.Path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, a.Image.Bytes) || a.Size != len(data) {
		t.Error("written image differs from the emitted one")
	}
	if _, err := os.Stat(pe.RuntimeConfigPath(a.Path)); err != nil {
		t.Errorf("runtime config: %v", err)
	}
}

func TestEmitILListing(t *testing.T) {
	dir := t.TempDir()
	file := writeUnit(t, dir, "hello.ast", "Hello", mainReturning(0))
	res, err := EmitIL(context.Background(), &BuildRequest{
		CompileRequest: CompileRequest{Files: []string{file}},
		OutputDir:      dir,
		Validate:       true,
		Now:            func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) },
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Artifacts) != 1 || res.Artifacts[0].Path != filepath.Join(dir, "Hello.il") {
		t.Fatalf("artifacts = %+v", res.Artifacts)
	}
	text, err := os.ReadFile(res.Artifacts[0].Path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{".assembly Hello", ".module", "ret"} {
		if !strings.Contains(string(text), want) {
			t.Errorf("listing lacks %q", want)
		}
	}
}

func TestBuildUsesCache(t *testing.T) {
	dir := t.TempDir()
	cache, err := buildcache.Open(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatal(err)
	}
	file := writeUnit(t, dir, "app.ast", "App", ast.Func("main", "void", nil,
		ast.Do(ast.Call("mystery", ast.Int(1))),
	))
	req := &BuildRequest{
		CompileRequest: CompileRequest{Files: []string{file}},
		OutputDir:      filepath.Join(dir, "out"),
		Cache:          cache,
	}
	first, err := Build(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if first.Artifacts[0].Cached {
		t.Fatal("first build was served from the cache")
	}
	if !hasCode(first.Bag, diag.EmitUnresolvedMethod) {
		t.Fatalf("no emission warning in %v", first.Bag.Items())
	}
	if err := os.Remove(first.Artifacts[0].Path); err != nil {
		t.Fatal(err)
	}

	second, err := Build(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	a := second.Artifacts[0]
	if !a.Cached || a.Image != nil {
		t.Errorf("second artifact = %+v", a)
	}
	data, err := os.ReadFile(a.Path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, first.Artifacts[0].Image.Bytes) {
		t.Error("cached image differs")
	}
	if first.Bag.Len() != second.Bag.Len() || !hasCode(second.Bag, diag.EmitUnresolvedMethod) {
		t.Errorf("replayed diagnostics = %v, want %v", second.Bag.Items(), first.Bag.Items())
	}

	// another backend is another key
	il, err := EmitIL(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if il.Artifacts[0].Cached {
		t.Error("listing served from the image entry")
	}
}

func TestProgressEvents(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeUnit(t, dir, "a.ast", "A", mainReturning(1)),
		writeUnit(t, dir, "b.ast", "B", mainReturning(2)),
	}
	ch := make(chan Event, 64)
	_, err := Build(context.Background(), &BuildRequest{
		CompileRequest: CompileRequest{Files: files, BaseDir: dir, Progress: ChannelSink{Ch: ch}},
		OutputDir:      filepath.Join(dir, "out"),
	})
	if err != nil {
		t.Fatal(err)
	}
	close(ch)
	last := map[string]Event{}
	queued := 0
	for ev := range ch {
		if ev.File == "" {
			continue
		}
		if ev.Status == StatusQueued {
			queued++
		}
		last[ev.File] = ev
	}
	if queued != 2 {
		t.Errorf("queued events = %d", queued)
	}
	for _, f := range []string{"a.ast", "b.ast"} {
		ev, ok := last[f]
		if !ok || ev.Stage != StageWrite || ev.Status != StatusDone {
			t.Errorf("last event for %s = %+v", f, ev)
		}
	}
}

func TestCheckEntrypoint(t *testing.T) {
	tests := []struct {
		name  string
		fn    *ast.Function
		notes int
	}{
		{"int main", mainReturning(0), 0},
		{"void main", ast.Func("main", "void", nil), 0},
		{"main with params", ast.Func("main", "int", []*ast.Param{ast.P("argc", "int")}, ast.Return(ast.Int(0))), 1},
		{"string main", ast.Func("main", "string", nil, ast.Return(ast.Str("x"))), 1},
		{"no main", ast.Func("other", "int", nil, ast.Return(ast.Int(0))), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			file := writeUnit(t, dir, "u.ast", "U", tt.fn)
			res, err := Compile(context.Background(), &CompileRequest{Files: []string{file}})
			if err != nil {
				t.Fatal(err)
			}
			notes := 0
			for _, d := range res.Bag.Items() {
				if d.Code == diag.PipeInfo {
					notes++
				}
			}
			if notes != tt.notes {
				t.Errorf("entry point notes = %d, want %d: %v", notes, tt.notes, res.Bag.Items())
			}
		})
	}
}

func TestDryRunWritesNothing(t *testing.T) {
	dir := t.TempDir()
	file := writeUnit(t, dir, "dry.ast", "Dry", mainReturning(4))
	out := filepath.Join(dir, "out")
	res, err := Build(context.Background(), &BuildRequest{
		CompileRequest: CompileRequest{Files: []string{file}},
		OutputDir:      out,
		DryRun:         true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Artifacts) != 1 || res.Artifacts[0].Path != "" || res.Artifacts[0].Image == nil {
		t.Fatalf("artifacts = %+v", res.Artifacts)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("output dir exists after a dry run: %v", err)
	}
	if res.Timings.Has(StageWrite) {
		t.Error("write stage ran")
	}
}

func TestChannelSinkDropsAfterDone(t *testing.T) {
	ch := make(chan Event) // unbuffered, nobody reads
	done := make(chan struct{})
	close(done)
	sink := ChannelSink{Ch: ch, Done: done}
	finished := make(chan struct{})
	go func() {
		sink.OnEvent(Event{File: "a.ast", Stage: StageDecode, Status: StatusWorking})
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("OnEvent blocked after Done")
	}
}
