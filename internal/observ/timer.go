// Package observ measures how long the build stages take.
package observ

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Phase is one stage of one unit.
type Phase struct {
	Stage  string
	Unit   string
	Start  time.Time
	Dur    time.Duration
	Failed bool
}

// Timer collects phases from units running in parallel, so all access is
// locked. A nil Timer records nothing.
type Timer struct {
	mu     sync.Mutex
	phases []Phase
}

// NewTimer creates a new empty Timer.
func NewTimer() *Timer { return &Timer{phases: make([]Phase, 0, 16)} }

// Track runs fn as the stage of unit and records how long it took.
func (t *Timer) Track(stage, unit string, fn func() error) error {
	if t == nil {
		return fn()
	}
	start := time.Now()
	err := fn()
	t.record(Phase{Stage: stage, Unit: unit, Start: start, Dur: time.Since(start), Failed: err != nil})
	return err
}

func (t *Timer) record(p Phase) {
	t.mu.Lock()
	t.phases = append(t.phases, p)
	t.mu.Unlock()
}

// Phases returns a copy of the recorded phases in completion order.
func (t *Timer) Phases() []Phase {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Phase(nil), t.phases...)
}

// StageReport сводит все фазы одной стадии.
type StageReport struct {
	Stage     string  `json:"stage"`
	Units     int     `json:"units"`
	Failed    int     `json:"failed,omitempty"`
	TotalMS   float64 `json:"total_ms"`
	Slowest   string  `json:"slowest,omitempty"`
	SlowestMS float64 `json:"slowest_ms,omitempty"`
}

// Report is the aggregate view of a timer. WallMS spans from the first start
// to the last end; with parallel units it is below the sum of the stages.
type Report struct {
	WallMS float64       `json:"wall_ms"`
	Stages []StageReport `json:"stages"`
}

// Report groups phases by stage, in the order stages first appeared.
func (t *Timer) Report() Report {
	phases := t.Phases()
	if len(phases) == 0 {
		return Report{}
	}
	var rep Report
	index := make(map[string]int)
	slowest := make(map[string]time.Duration)
	first, last := phases[0].Start, time.Time{}
	for _, p := range phases {
		if p.Start.Before(first) {
			first = p.Start
		}
		if end := p.Start.Add(p.Dur); end.After(last) {
			last = end
		}
		i, ok := index[p.Stage]
		if !ok {
			i = len(rep.Stages)
			index[p.Stage] = i
			rep.Stages = append(rep.Stages, StageReport{Stage: p.Stage})
		}
		s := &rep.Stages[i]
		s.Units++
		s.TotalMS += toMillis(p.Dur)
		if p.Failed {
			s.Failed++
		}
		if p.Dur > slowest[p.Stage] || s.Slowest == "" {
			slowest[p.Stage] = p.Dur
			s.Slowest, s.SlowestMS = p.Unit, toMillis(p.Dur)
		}
	}
	rep.WallMS = toMillis(last.Sub(first))
	return rep
}

// Summary renders the report as an aligned table; empty when nothing ran.
func (t *Timer) Summary() string {
	rep := t.Report()
	if len(rep.Stages) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("timings:\n")
	for _, s := range rep.Stages {
		fmt.Fprintf(&sb, "  %-8s %3d unit(s) %9.2f ms", s.Stage, s.Units, s.TotalMS)
		if s.Units > 1 {
			fmt.Fprintf(&sb, "  slowest %s %.2f ms", s.Slowest, s.SlowestMS)
		}
		if s.Failed > 0 {
			fmt.Fprintf(&sb, "  // %d failed", s.Failed)
		}
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "  %-8s %20.2f ms\n", "wall", rep.WallMS)
	return sb.String()
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
