package diagfmt

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"cilforge/internal/diag"
)

func sampleBag() *diag.Bag {
	bag := diag.NewBag(10)
	bag.Add(diag.NewWarning(diag.EmitUnresolvedMethod, diag.At("/src/app/main.json", "main").Stmt(2),
		"unresolved call mystery"))
	bag.Add(diag.NewError(diag.StackUnderflow, diag.At("/src/app/main.json", "f"), "stack underflow").
		WithNote(diag.At("/src/app/main.json", "f").Stmt(0), "last statement"))
	bag.Add(diag.New(diag.SevInfo, diag.PipeInfo, diag.Location{Statement: -1}, "cache hit"))
	return bag
}

func TestPrettyPlain(t *testing.T) {
	var buf bytes.Buffer
	if err := Pretty(&buf, sampleBag(), PrettyOpts{PathMode: PathModeBasename, ShowNotes: true}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"main.json:main#2: WARNING EMT2002: unresolved call mystery\n",
		"main.json:f: ERROR STK3001: stack underflow\n",
		"  note (main.json:f#0): last statement\n",
		"INFO PIP4000: cache hit\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("plain output has escapes:\n%s", out)
	}
}

func TestPrettyColorAndFilter(t *testing.T) {
	var buf bytes.Buffer
	opts := PrettyOpts{Color: true, MinSeverity: diag.SevWarning}
	if err := Pretty(&buf, sampleBag(), opts); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "\x1b[") {
		t.Errorf("colored output has no escapes:\n%q", out)
	}
	if strings.Contains(out, "cache hit") {
		t.Errorf("info diagnostic not filtered:\n%s", out)
	}
	if strings.Contains(out, "note") {
		t.Errorf("notes shown without ShowNotes:\n%s", out)
	}
}

func TestSummary(t *testing.T) {
	if got := Summary(sampleBag()); got != "1 error, 1 warning" {
		t.Errorf("Summary = %q", got)
	}
	if got := Summary(diag.NewBag(0)); got != "0 errors, 0 warnings" {
		t.Errorf("Summary = %q", got)
	}
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := JSON(&buf, sampleBag(), JSONOpts{PathMode: PathModeBasename, IncludeNotes: true, Max: 2}); err != nil {
		t.Fatal(err)
	}
	var out DiagnosticsOutput
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if out.Count != 2 || len(out.Diagnostics) != 2 {
		t.Fatalf("count = %d", out.Count)
	}
	if out.Dropped != 1 {
		t.Errorf("dropped = %d, want 1", out.Dropped)
	}
	first := out.Diagnostics[0]
	if first.Code != "EMT2002" || first.Severity != "WARNING" || first.Location.Unit != "main.json" {
		t.Errorf("first = %+v", first)
	}
	if first.Location.Statement == nil || *first.Location.Statement != 2 {
		t.Errorf("statement = %v", first.Location.Statement)
	}
	if len(out.Diagnostics[1].Notes) != 1 {
		t.Errorf("notes = %+v", out.Diagnostics[1].Notes)
	}
}

func TestSarif(t *testing.T) {
	var buf bytes.Buffer
	meta := SarifRunMeta{ToolName: "cilforge", ToolVersion: "0.1.0", InvocationArgs: []string{"build"}}
	if err := Sarif(&buf, sampleBag(), meta); err != nil {
		t.Fatal(err)
	}
	var log sarifLog
	if err := json.Unmarshal(buf.Bytes(), &log); err != nil {
		t.Fatalf("invalid SARIF: %v", err)
	}
	if log.Version != "2.1.0" || len(log.Runs) != 1 {
		t.Fatalf("log = %+v", log)
	}
	run := log.Runs[0]
	if len(run.Results) != 3 || len(run.Tool.Driver.Rules) != 3 {
		t.Errorf("results=%d rules=%d", len(run.Results), len(run.Tool.Driver.Rules))
	}
	if run.Results[1].Level != "error" || run.Invocations[0].ExecutionSuccessful {
		t.Errorf("error result not reflected: %+v", run)
	}
	if run.Results[2].Locations != nil {
		t.Errorf("unit-less diagnostic has locations: %+v", run.Results[2].Locations)
	}
}

func TestFormatPath(t *testing.T) {
	tests := []struct {
		path string
		mode PathMode
		base string
		want string
	}{
		{"/a/b/c.json", PathModeBasename, "", "c.json"},
		{"/a/b/c.json", PathModeRelative, "/a", "b/c.json"},
		{"/a/b/c.json", PathModeAuto, "", "/a/b/c.json"},
		{"", PathModeBasename, "", ""},
	}
	for _, tt := range tests {
		if got := formatPath(tt.path, tt.mode, tt.base); got != tt.want {
			t.Errorf("formatPath(%q, %d) = %q, want %q", tt.path, tt.mode, got, tt.want)
		}
	}
}
