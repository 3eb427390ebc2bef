// Package trace records what the build pipeline does and how long it takes.
//
// Pass spans mark pipeline stages; unit spans carry the assembly name so
// parallel units stay apart; method spans and points cover body generation
// and emitter notes such as fallbacks and inferred local types.
//
//	cilforge build --trace=build.ndjson --trace-level=detail src/
//
// Tracers: Nop when disabled, StreamTracer writes as events happen,
// RingTracer keeps the last events for the failure dump, MultiTracer does
// both. At LevelError nothing is written unless the command fails.
//
// Spans travel through context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	ctx, span := trace.StartSpan(ctx, trace.ScopePass, "emit")
//	defer span.End("")
//
//	unit := trace.BeginUnit(trace.FromContext(ctx), "Hello", "emit", span.ID())
//	m := unit.Child(trace.ScopeMethod, "method:Main")
package trace
