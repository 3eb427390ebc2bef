package trace

import (
	"sync/atomic"
	"time"
)

var (
	seqCounter  atomic.Uint64
	spanCounter atomic.Uint64
	openSpans   atomic.Int64
)

// NextSeq returns a monotonically increasing sequence number.
func NextSeq() uint64 { return seqCounter.Add(1) }

// NextSpanID returns a process-unique span ID.
func NextSpanID() uint64 { return spanCounter.Add(1) }

// OpenSpans is the number of spans begun and not yet ended. A heartbeat
// that keeps reporting the same non-zero count points at a stuck stage.
func OpenSpans() int64 { return openSpans.Load() }

// Span tracks one timed operation. A Span whose scope is filtered out by
// the tracer level still carries the tracer and unit, so Child and Point
// work on it; it just emits nothing itself.
type Span struct {
	tracer  Tracer
	id      uint64
	parent  uint64
	scope   Scope
	unit    string
	name    string
	started time.Time
	extra   map[string]string
	ended   bool
}

// Begin starts a span under parent (0 for a root span).
func Begin(t Tracer, scope Scope, name string, parent uint64) *Span {
	return begin(t, scope, "", name, parent)
}

// BeginUnit starts a unit-scoped span whose events, and those of its
// children, are tagged with unit.
func BeginUnit(t Tracer, unit, name string, parent uint64) *Span {
	return begin(t, ScopeUnit, unit, name, parent)
}

func begin(t Tracer, scope Scope, unit, name string, parent uint64) *Span {
	if t == nil {
		t = Nop
	}
	s := &Span{tracer: t, parent: parent, scope: scope, unit: unit, name: name}
	if !t.Enabled() || !t.Level().Records(scope) {
		return s
	}
	s.id = NextSpanID()
	s.started = time.Now()
	openSpans.Add(1)
	t.Emit(&Event{
		Time:     s.started,
		Kind:     KindSpanBegin,
		Scope:    scope,
		SpanID:   s.id,
		ParentID: parent,
		Unit:     unit,
		Name:     name,
	})
	return s
}

// Child starts a span below s, inheriting its tracer and unit. When s
// itself was filtered out, the child hangs off s's parent.
func (s *Span) Child(scope Scope, name string) *Span {
	if s == nil {
		return begin(Nop, scope, "", name, 0)
	}
	parent := s.id
	if parent == 0 {
		parent = s.parent
	}
	return begin(s.tracer, scope, s.unit, name, parent)
}

// Point emits an instant event under s.
func (s *Span) Point(scope Scope, name, detail string) {
	if s == nil {
		return
	}
	parent := s.id
	if parent == 0 {
		parent = s.parent
	}
	point(s.tracer, scope, s.unit, name, detail, parent)
}

// Point emits an instant event when the tracer's level covers scope.
func Point(t Tracer, scope Scope, name, detail string) {
	point(t, scope, "", name, detail, 0)
}

func point(t Tracer, scope Scope, unit, name, detail string, parent uint64) {
	if t == nil || !t.Enabled() || !t.Level().Records(scope) {
		return
	}
	t.Emit(&Event{
		Time:     time.Now(),
		Kind:     KindPoint,
		Scope:    scope,
		ParentID: parent,
		Unit:     unit,
		Name:     name,
		Detail:   detail,
	})
}

// End emits the end event and returns the span duration. Only the first
// call has an effect.
func (s *Span) End(detail string) time.Duration {
	if s == nil || s.id == 0 || s.ended {
		return 0
	}
	s.ended = true
	openSpans.Add(-1)
	now := time.Now()
	s.tracer.Emit(&Event{
		Time:     now,
		Kind:     KindSpanEnd,
		Scope:    s.scope,
		SpanID:   s.id,
		ParentID: s.parent,
		Unit:     s.unit,
		Name:     s.name,
		Detail:   detail,
		Extra:    s.extra,
	})
	return now.Sub(s.started)
}

// WithExtra attaches a key-value pair to the end event.
func (s *Span) WithExtra(key, value string) *Span {
	if s == nil || s.id == 0 {
		return s
	}
	if s.extra == nil {
		s.extra = make(map[string]string, 2)
	}
	s.extra[key] = value
	return s
}

// ID is the span ID, 0 for spans that emit nothing.
func (s *Span) ID() uint64 {
	if s == nil {
		return 0
	}
	return s.id
}

// Unit is the unit the span belongs to, "" outside units.
func (s *Span) Unit() string {
	if s == nil {
		return ""
	}
	return s.unit
}
