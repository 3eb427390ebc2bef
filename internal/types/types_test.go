package types

import "testing"

func TestMapNameRoundTrip(t *testing.T) {
	for _, name := range Primitives() {
		ns, clr := MapName(name)
		if ns != "System" {
			t.Fatalf("%s: expected System namespace, got %q", name, ns)
		}
		back, ok := LangName(ns, clr)
		if !ok {
			t.Fatalf("%s: no reverse mapping for %s.%s", name, ns, clr)
		}
		if back != name {
			t.Fatalf("round trip mismatch: %s -> %s.%s -> %s", name, ns, clr, back)
		}
		// the runtime spelling maps forward to itself
		ns2, clr2 := MapName(ns + "." + clr)
		if ns2 != ns || clr2 != clr {
			t.Fatalf("runtime name %s.%s mapped to %s.%s", ns, clr, ns2, clr2)
		}
	}
}

func TestMapNameUnknown(t *testing.T) {
	tests := []struct {
		in, ns, name string
	}{
		{"Point", GeneratedNamespace, "Point"},
		{"Geo.Point", "Geo", "Point"},
		{"", "System", "Object"},
		{"int8", "System", "SByte"},
		{"Int32", "System", "Int32"},
	}
	for _, tt := range tests {
		ns, name := MapName(tt.in)
		if ns != tt.ns || name != tt.name {
			t.Errorf("MapName(%q) = %s.%s, want %s.%s", tt.in, ns, name, tt.ns, tt.name)
		}
	}
}

func TestCanWiden(t *testing.T) {
	tests := []struct {
		from, to Kind
		want     bool
	}{
		{KindInt32, KindInt64, true},
		{KindInt32, KindFloat32, true},
		{KindInt32, KindFloat64, true},
		{KindInt32, KindDecimal, true},
		{KindFloat32, KindFloat64, true},
		{KindInt64, KindFloat32, true},
		{KindInt64, KindDecimal, true},
		{KindInt64, KindInt32, false},
		{KindFloat64, KindFloat32, false},
		{KindInt32, KindInt32, false},
		{KindInt32, KindString, false},
		{KindDecimal, KindFloat64, false},
	}
	for _, tt := range tests {
		if got := CanWiden(tt.from, tt.to); got != tt.want {
			t.Errorf("CanWiden(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestPromote(t *testing.T) {
	tests := []struct {
		a, b, want Type
	}{
		{Int32, Int32, Int32},
		{Int32, Int64, Int64},
		{Int64, Float32, Float32},
		{Float32, Float64, Float64},
		{Int32, Decimal, Decimal},
		{Decimal, Int64, Int64},
		{Type{Kind: KindInt16}, Int32, Int32},
		{Unknown, Float64, Float64},
		{Unknown, Unknown, Unknown},
	}
	for _, tt := range tests {
		if got := Promote(tt.a, tt.b); got != tt.want {
			t.Errorf("Promote(%s, %s) = %s, want %s", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestParse(t *testing.T) {
	if got := Parse("System.String"); got != String {
		t.Fatalf("expected string, got %s", got)
	}
	if got := Parse("Point"); got.Kind != KindClass || got.Name != "Point" {
		t.Fatalf("expected class Point, got %+v", got)
	}
	if got := Parse(" "); got.Known() {
		t.Fatalf("blank name must be unknown, got %s", got)
	}
	if Int32.CLRName() != "System.Int32" {
		t.Fatalf("unexpected CLR name %q", Int32.CLRName())
	}
	if KindString.SigCode() != 0x0e || KindObject.SigCode() != 0x1c {
		t.Fatalf("unexpected signature codes")
	}
}
