package pe

import (
	"bytes"
	"encoding/binary"
	"testing"

	"cilforge/internal/il"
	"cilforge/internal/metadata"
)

func TestLdcI4Forms(t *testing.T) {
	tests := []struct {
		v    int32
		want []byte
	}{
		{-1, []byte{0x15}},
		{0, []byte{0x16}},
		{8, []byte{0x1E}},
		{9, []byte{0x1F, 9}},
		{-128, []byte{0x1F, 0x80}},
		{128, []byte{0x20, 0x80, 0, 0, 0}},
		{-70000, binary.LittleEndian.AppendUint32([]byte{0x20}, uint32(0xFFFEEE90))},
	}
	for _, tt := range tests {
		enc := newEncoder()
		enc.ldcI4(tt.v)
		if !bytes.Equal(enc.code, tt.want) {
			t.Errorf("ldcI4(%d) = % x, want % x", tt.v, enc.code, tt.want)
		}
	}
}

func TestSlotForms(t *testing.T) {
	tests := []struct {
		name string
		emit func(*encoder) error
		want []byte
	}{
		{"ldloc.2", func(e *encoder) error { return e.ldloc(2) }, []byte{0x08}},
		{"ldloc.s", func(e *encoder) error { return e.ldloc(4) }, []byte{0x11, 4}},
		{"ldloc long", func(e *encoder) error { return e.ldloc(300) }, []byte{0xFE, 0x0C, 0x2C, 0x01}},
		{"stloc.3", func(e *encoder) error { return e.stloc(3) }, []byte{0x0D}},
		{"ldarg.1", func(e *encoder) error { return e.ldarg(1) }, []byte{0x03}},
		{"starg.s", func(e *encoder) error { return e.starg(0) }, []byte{0x10, 0}},
	}
	for _, tt := range tests {
		enc := newEncoder()
		if err := tt.emit(enc); err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if !bytes.Equal(enc.code, tt.want) {
			t.Errorf("%s = % x, want % x", tt.name, enc.code, tt.want)
		}
	}
	if err := newEncoder().ldloc(70000); err == nil {
		t.Error("slot 70000 accepted")
	}
}

func TestArithExpansions(t *testing.T) {
	enc := newEncoder()
	if err := enc.arith(il.OpCle); err != nil {
		t.Fatal(err)
	}
	want := []byte{0xFE, 0x02, 0x16, 0xFE, 0x01}
	if !bytes.Equal(enc.code, want) {
		t.Errorf("cle = % x, want % x", enc.code, want)
	}
	if err := newEncoder().arith(il.OpLdcI4); err == nil {
		t.Error("ldc.i4 accepted as arithmetic")
	}
}

func TestBranchFixups(t *testing.T) {
	enc := newEncoder()
	enc.label("top")
	if err := enc.branch(il.OpBrfalse, "end"); err != nil {
		t.Fatal(err)
	}
	enc.op(opDup)
	if err := enc.branch(il.OpBr, "top"); err != nil {
		t.Fatal(err)
	}
	enc.label("end")
	if err := enc.branch(il.OpBr, "nowhere"); err != nil {
		t.Fatal(err)
	}
	missing := enc.resolve()
	if len(missing) != 1 || missing[0] != "nowhere" {
		t.Errorf("missing = %v", missing)
	}
	// brfalse at 0 jumps over dup and br: next=5, end=11
	if off := int32(binary.LittleEndian.Uint32(enc.code[1:])); off != 6 {
		t.Errorf("brfalse offset = %d, want 6", off)
	}
	// br at 6 jumps back to 0: next=11
	if off := int32(binary.LittleEndian.Uint32(enc.code[7:])); off != -11 {
		t.Errorf("br offset = %d, want -11", off)
	}
}

func TestAppendBodyHeaders(t *testing.T) {
	code := []byte{0x16, opRet}
	out, at, err := appendBody(nil, code, 8, 0)
	if err != nil {
		t.Fatal(err)
	}
	if at != 0 || !bytes.Equal(out, []byte{0x0A, 0x16, opRet}) {
		t.Errorf("tiny body = % x at %d", out, at)
	}

	locals := metadata.MakeToken(metadata.TableStandAloneSig, 1)
	out, at, err = appendBody(out, code, 8, locals)
	if err != nil {
		t.Fatal(err)
	}
	if at != 4 {
		t.Fatalf("fat header at %d, want 4", at)
	}
	h := out[at:]
	if flags := binary.LittleEndian.Uint16(h); flags != fatFlags|initLocals {
		t.Errorf("flags = %#x", flags)
	}
	if binary.LittleEndian.Uint16(h[2:]) != 8 || binary.LittleEndian.Uint32(h[4:]) != 2 {
		t.Errorf("header = % x", h[:12])
	}
	if metadata.Token(binary.LittleEndian.Uint32(h[8:])) != locals {
		t.Errorf("local sig token = % x", h[8:12])
	}

	// large stacks need the fat form even without locals
	out, _, err = appendBody(nil, code, 9, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 12+len(code) {
		t.Errorf("fat body length = %d", len(out))
	}
	if _, _, err := appendBody(nil, make([]byte, tinyMaxCode), 8, 0); err != nil {
		t.Fatal(err)
	}
}
