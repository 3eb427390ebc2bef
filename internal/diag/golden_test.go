package diag

import "testing"

func TestFormatShort(t *testing.T) {
	diags := []Diagnostic{
		NewWarning(EmitUnresolvedField, At("app", "main").Stmt(3), "field 'x' has no owner"),
		NewError(StackUnderflow, At("app", "main").Stmt(1), "stack underflow\nat pop").
			WithNote(At("app", "main").Stmt(0), "depth 0"),
	}

	expected := "error STK3001 app:main#1 stack underflow at pop\n" +
		"note STK3001 app:main#0 depth 0\n" +
		"warning EMT2001 app:main#3 field 'x' has no owner"

	if got := FormatShort(diags, true); got != expected {
		t.Fatalf("unexpected short diagnostics:\nwant:\n%s\n\ngot:\n%s", expected, got)
	}
}

func TestBagLimitAndDedup(t *testing.T) {
	bag := NewBag(3)
	loc := At("u", "f")
	for range 4 {
		bag.Add(NewWarning(EmitUnresolvedMethod, loc, "same"))
	}
	if bag.Len() != 3 {
		t.Fatalf("limit not applied: %d", bag.Len())
	}
	bag.Dedup()
	if bag.Len() != 1 {
		t.Fatalf("dedup kept %d", bag.Len())
	}
	if bag.HasErrors() || !bag.HasWarnings() {
		t.Fatalf("unexpected severity flags")
	}
}

func TestBagCountsDropped(t *testing.T) {
	unit := NewBag(1)
	unit.Add(NewError(StackUnderflow, At("u", "f"), "first"))
	if unit.Add(NewError(StackUnderflow, At("u", "g"), "second")) {
		t.Fatal("Add past the limit succeeded")
	}
	other := NewBag(5)
	other.Add(NewWarning(EmitUnresolvedField, At("v", "h"), "third"))

	all := NewBag(1)
	all.Merge(unit)
	all.Merge(other)
	if all.Len() != 2 || all.Dropped() != 1 {
		t.Fatalf("len %d dropped %d, want 2 and 1", all.Len(), all.Dropped())
	}
	all.Sort()
	if got := all.Items()[0].Primary.Unit; got != "u" {
		t.Errorf("first unit after Sort = %q", got)
	}
}

func TestDedupReporter(t *testing.T) {
	bag := NewBag(10)
	r := NewDedupReporter(BagReporter{Bag: bag})
	ReportWarning(r, EmitUnresolvedCtor, At("u", "f").Stmt(0), "no ctor").Emit()
	ReportWarning(r, EmitUnresolvedCtor, At("u", "f").Stmt(0), "no ctor").Emit()
	ReportWarning(r, EmitUnresolvedCtor, At("u", "f").Stmt(1), "no ctor").Emit()
	if bag.Len() != 2 {
		t.Fatalf("expected 2 unique diagnostics, got %d", bag.Len())
	}
}

func TestLocationString(t *testing.T) {
	cases := []struct {
		loc  Location
		want string
	}{
		{At("app", ""), "app"},
		{At("app", "main"), "app:main"},
		{At("app", "main").Stmt(4), "app:main#4"},
		{Location{Method: "f", Statement: -1}, "f"},
	}
	for _, tc := range cases {
		if got := tc.loc.String(); got != tc.want {
			t.Errorf("%+v: got %q want %q", tc.loc, got, tc.want)
		}
	}
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in   string
		want Severity
		err  bool
	}{
		{"info", SevInfo, false},
		{"WARN", SevWarning, false},
		{" warning ", SevWarning, false},
		{"Error", SevError, false},
		{"fatal", SevInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseSeverity(tt.in)
		if (err != nil) != tt.err || got != tt.want {
			t.Errorf("ParseSeverity(%q) = %v, %v", tt.in, got, err)
		}
	}
}
