package observ

import (
	"errors"
	"strings"
	"testing"
)

func TestTimerGroupsByStage(t *testing.T) {
	tm := NewTimer()
	ok := func() error { return nil }
	boom := errors.New("boom")

	for _, unit := range []string{"a.ast", "b.ast"} {
		if err := tm.Track("lower", unit, ok); err != nil {
			t.Fatal(err)
		}
	}
	if err := tm.Track("emit", "a.ast", func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("Track returned %v", err)
	}

	r := tm.Report()
	if len(r.Stages) != 2 {
		t.Fatalf("got %d stages", len(r.Stages))
	}
	lower, emit := r.Stages[0], r.Stages[1]
	if lower.Stage != "lower" || lower.Units != 2 || lower.Failed != 0 {
		t.Errorf("lower = %+v", lower)
	}
	if lower.Slowest == "" {
		t.Error("lower has no slowest unit")
	}
	if emit.Stage != "emit" || emit.Units != 1 || emit.Failed != 1 {
		t.Errorf("emit = %+v", emit)
	}
	if r.WallMS < 0 {
		t.Errorf("wall = %f", r.WallMS)
	}

	s := tm.Summary()
	for _, want := range []string{"timings:", "lower", "slowest", "emit", "// 1 failed", "wall"} {
		if !strings.Contains(s, want) {
			t.Errorf("summary lacks %q:\n%s", want, s)
		}
	}
}

func TestEmptyTimer(t *testing.T) {
	tm := NewTimer()
	if got := tm.Summary(); got != "" {
		t.Errorf("Summary = %q", got)
	}
	if r := tm.Report(); r.WallMS != 0 || len(r.Stages) != 0 {
		t.Errorf("Report = %+v", r)
	}
}

func TestNilTimerTrack(t *testing.T) {
	var tm *Timer
	called := false
	if err := tm.Track("lower", "x", func() error { called = true; return nil }); err != nil || !called {
		t.Errorf("nil Track: err=%v called=%v", err, called)
	}
	if tm.Phases() != nil {
		t.Error("nil timer has phases")
	}
}
