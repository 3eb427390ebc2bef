package il

import (
	"reflect"
	"strings"
	"testing"
)

func TestExtCallRoundTrip(t *testing.T) {
	c := ExtCall{
		Asm:    "System.Console",
		Ns:     "System",
		Type:   "Console",
		Method: "WriteLine",
		Params: []string{"System.Int32"},
		Return: "System.Void",
	}
	got, err := ParseExtCall(c.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !reflect.DeepEqual(got, c) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, c)
	}
}

func TestParseExtCallErrors(t *testing.T) {
	for _, tok := range []string{"WriteLine", "extcall:Asm=x;Ns=y", "extcall:Type=T"} {
		if _, err := ParseExtCall(tok); err == nil {
			t.Errorf("expected error for %q", tok)
		}
	}
	c, err := ParseExtCall("extcall:Type=KG;Method=CreateGraph;Params=;Return=VDS.RDF.IGraph@dotNetRDF")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(c.Params) != 0 {
		t.Fatalf("expected no params, got %v", c.Params)
	}
	name, asm := SplitTypeToken(c.Return)
	if name != "VDS.RDF.IGraph" || asm != "dotNetRDF" {
		t.Fatalf("unexpected split %q %q", name, asm)
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in   string
		want Version
		err  bool
	}{
		{"", Version{Major: 1}, false},
		{"8.0.0.0", Version{8, 0, 0, 0}, false},
		{"1.2", Version{1, 2, 0, 0}, false},
		{"1.2.3.4.5", Version{}, true},
		{"1.x", Version{}, true},
	}
	for _, tt := range tests {
		got, err := ParseVersion(tt.in)
		if (err != nil) != tt.err {
			t.Fatalf("ParseVersion(%q) err = %v", tt.in, err)
		}
		if !tt.err && got != tt.want {
			t.Fatalf("ParseVersion(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if (Version{1, 2, 3, 4}).ILString() != "1:2:3:4" {
		t.Fatalf("unexpected IL version form")
	}
}

func TestSequenceInsert(t *testing.T) {
	var s Sequence
	s.Add(LdcI4(1), Ret())
	s.Insert(s.IndexOf(KindReturn), LdcI4(2))
	if got := s.String(); got != "ldc.i4 1; ldc.i4 2; ret" {
		t.Fatalf("unexpected sequence %q", got)
	}
	s.Insert(-1, Pop())
	if s.Instrs[len(s.Instrs)-1].Op != OpPop {
		t.Fatalf("out of range insert must append")
	}
	if !s.HasReturn() {
		t.Fatalf("expected return")
	}
}

func TestTypeReferenceArity(t *testing.T) {
	if RefOf("void").Arity() != 0 {
		t.Fatalf("void arity must be 0")
	}
	if RefOf("int").Arity() != 1 || RefOf("Point").Arity() != 1 {
		t.Fatalf("value arity must be 1")
	}
	if RefOf("Point").Namespace != "CilForge.Generated" {
		t.Fatalf("unexpected namespace %q", RefOf("Point").Namespace)
	}
}

func TestDefaultValue(t *testing.T) {
	cases := []struct {
		tok  string
		want Opcode
	}{
		{"System.Int32", OpLdcI4},
		{"System.Boolean", OpLdcI4},
		{"System.Int64", OpLdcI8},
		{"System.Single", OpLdcR4},
		{"System.Double", OpLdcR8},
		{"System.String", OpLdnull},
		{"", OpLdnull},
		{"Acme.Graph@Acme.Runtime", OpLdnull},
	}
	for _, tc := range cases {
		if got := DefaultForToken(tc.tok).Op; got != tc.want {
			t.Errorf("%q: got %s want %s", tc.tok, got, tc.want)
		}
	}
}

func TestLocalsFirstUseOrder(t *testing.T) {
	var a, b Sequence
	a.Add(LdcI4(1), Store(OpStloc, "x"))
	b.Add(Load(OpLdloc, "y"), Load(OpLdloc, "x"), Store(OpStloc, "z"), Load(OpLdarg, "p"))
	got := strings.Join(Locals([]Sequence{a, b}), ",")
	if got != "x,y,z" {
		t.Fatalf("Locals = %q, want x,y,z", got)
	}
}
