package trace

import "time"

// Kind represents the type of trace event.
type Kind uint8

const (
	KindSpanBegin Kind = iota + 1 // span start
	KindSpanEnd                   // span end
	KindPoint                     // instant event
	KindHeartbeat                 // periodic liveness signal
)

func (k Kind) String() string {
	switch k {
	case KindSpanBegin:
		return "begin"
	case KindSpanEnd:
		return "end"
	case KindPoint:
		return "point"
	case KindHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// Scope indicates the granularity of an event. Lower values are coarser.
type Scope uint8

const (
	// ScopeDriver covers a whole command invocation.
	ScopeDriver Scope = iota + 1
	// ScopePass covers pipeline stages (decode, lower, emit, write).
	ScopePass
	// ScopeUnit covers one assembly declaration.
	ScopeUnit
	// ScopeMethod covers one method body and the emitter notes raised in it.
	ScopeMethod
)

func (s Scope) String() string {
	switch s {
	case ScopeDriver:
		return "driver"
	case ScopePass:
		return "pass"
	case ScopeUnit:
		return "unit"
	case ScopeMethod:
		return "method"
	default:
		return "unknown"
	}
}

// Event is a single trace record.
type Event struct {
	Time     time.Time
	Seq      uint64 // stamped by the tracer that stores the event
	Kind     Kind
	Scope    Scope
	SpanID   uint64
	ParentID uint64 // 0 for roots
	// Unit is the assembly the event belongs to; units are compiled in
	// parallel, so this is what separates their timelines.
	Unit   string
	Name   string // "lower", "emit", "method:main", a diagnostic ID
	Detail string
	Extra  map[string]string
}
