package pe

import (
	"errors"
	"testing"

	"cilforge/internal/il"
	"cilforge/internal/types"
)

func seqOf(ins ...il.Instr) il.Sequence {
	var s il.Sequence
	s.Add(ins...)
	return s
}

func TestEffect(t *testing.T) {
	tests := []struct {
		in        il.Instr
		pop, push int
	}{
		{il.LdcI4(1), 0, 1},
		{il.Load(il.OpLdfld, "x"), 1, 1},
		{il.Load(il.OpDup, ""), 1, 2},
		{il.Store(il.OpStloc, "x"), 1, 0},
		{il.Store(il.OpStfld, "x"), 2, 0},
		{il.Store(il.OpStelem, ""), 3, 0},
		{il.Arith(il.OpAdd), 2, 1},
		{il.Arith(il.OpNeg), 1, 1},
		{il.Branch(il.OpBrfalse, "L"), 1, 0},
		{il.Branch(il.OpBr, "L"), 0, 0},
		{il.Call("f", 2, "System.Int32"), 2, 1},
		{il.Call("g", 3, "System.Void"), 3, 0},
		{il.Pop(), 1, 0},
		{il.Label("L"), 0, 0},
		{il.Ret(), 0, 0},
	}
	for _, tt := range tests {
		pop, push := Effect(tt.in)
		if pop != tt.pop || push != tt.push {
			t.Errorf("Effect(%s) = (%d, %d), want (%d, %d)", tt.in, pop, push, tt.pop, tt.push)
		}
	}
}

func TestSimulatorUnderflow(t *testing.T) {
	sim := NewSimulator()
	_, err := sim.Run(seqOf(il.LdcI4(1), il.Arith(il.OpAdd)))
	var under *UnderflowError
	if !errors.As(err, &under) {
		t.Fatalf("err = %v, want UnderflowError", err)
	}
	if under.Index != 1 || under.Depth != 1 {
		t.Errorf("underflow = %+v", under)
	}
}

func TestSimulatorIfElse(t *testing.T) {
	sim := NewSimulator()
	rets, err := sim.Run(seqOf(
		il.LdcI4(0),
		il.Branch(il.OpBrfalse, "IL_false_0"),
		il.LdcI4(1), il.Ret(),
		il.Branch(il.OpBr, "IL_end_1"),
		il.Label("IL_false_0"),
		il.LdcI4(2), il.Ret(),
		il.Label("IL_end_1"),
	))
	if err != nil {
		t.Fatal(err)
	}
	if len(rets) != 2 || rets[0].Depth != 1 || rets[1].Depth != 1 {
		t.Errorf("rets = %+v", rets)
	}
	// nothing branches to the end label on a live path
	if sim.Live() || sim.Depth() != 0 {
		t.Errorf("live=%v depth=%d after both arms return", sim.Live(), sim.Depth())
	}
	if sim.Peak() != 1 {
		t.Errorf("peak = %d", sim.Peak())
	}
}

func TestSimulatorLoop(t *testing.T) {
	sim := NewSimulator()
	_, err := sim.Run(seqOf(
		il.Label("IL_loop_0"),
		il.Load(il.OpLdloc, "i"),
		il.Branch(il.OpBrfalse, "IL_end_1"),
		il.Load(il.OpLdloc, "i"), il.LdcI4(1), il.Arith(il.OpSub), il.Store(il.OpStloc, "i"),
		il.Branch(il.OpBr, "IL_loop_0"),
		il.Label("IL_end_1"),
	))
	if err != nil {
		t.Fatal(err)
	}
	if !sim.Live() || sim.Depth() != 0 {
		t.Errorf("live=%v depth=%d", sim.Live(), sim.Depth())
	}
}

func TestSimulatorLabelDepthMismatch(t *testing.T) {
	sim := NewSimulator()
	_, err := sim.Run(seqOf(
		il.LdcI4(1),
		il.Branch(il.OpBrtrue, "L"),
		il.LdcI4(5),
		il.Label("L"),
	))
	var mismatch *LabelDepthError
	if !errors.As(err, &mismatch) {
		t.Fatalf("err = %v, want LabelDepthError", err)
	}
	if mismatch.Have != 1 || mismatch.Want != 0 {
		t.Errorf("mismatch = %+v", mismatch)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	sim := NewSimulator()
	if _, err := sim.Run(seqOf(il.Branch(il.OpBr, "L"))); err != nil {
		t.Fatal(err)
	}
	c := sim.Clone()
	if _, err := c.Run(seqOf(il.Label("L"), il.LdcI4(1))); err != nil {
		t.Fatal(err)
	}
	if sim.Live() || c.Depth() != 1 {
		t.Errorf("original live=%v, clone depth=%d", sim.Live(), c.Depth())
	}
}

func TestFitReturns(t *testing.T) {
	tests := []struct {
		name     string
		seq      il.Sequence
		arity    int
		want     string
		repaired bool
		err      bool
	}{
		{
			name:  "already fits",
			seq:   seqOf(il.LdcI4(1), il.Ret()),
			arity: 1,
			want:  "ldc.i4 1; ret",
		},
		{
			name:     "bare return gets default",
			seq:      seqOf(il.Ret()),
			arity:    1,
			want:     "ldc.i4 0; ret",
			repaired: true,
		},
		{
			name: "both arms repaired",
			seq: seqOf(
				il.LdcI4(1), il.Branch(il.OpBrfalse, "E"), il.Ret(),
				il.Label("E"), il.Ret(),
			),
			arity:    1,
			want:     "ldc.i4 1; brfalse E; ldc.i4 0; ret; E:; ldc.i4 0; ret",
			repaired: true,
		},
		{
			name:  "void method untouched",
			seq:   seqOf(il.Ret()),
			arity: 0,
			want:  "ret",
		},
		{
			name:  "too many values",
			seq:   seqOf(il.LdcI4(1), il.LdcI4(2), il.Ret()),
			arity: 1,
			err:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := NewSimulator()
			got, repaired, err := fitReturns(sim, tt.seq, types.Int32, tt.arity)
			if tt.err {
				var arity *ArityError
				if !errors.As(err, &arity) {
					t.Fatalf("err = %v, want ArityError", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got.String() != tt.want || repaired != tt.repaired {
				t.Errorf("got %q repaired=%v, want %q repaired=%v", got.String(), repaired, tt.want, tt.repaired)
			}
			if sim.Depth() != 0 || !sim.Live() {
				t.Error("fitReturns changed the caller's simulator")
			}
		})
	}
}
