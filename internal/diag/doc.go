// Package diag defines the diagnostic model shared by the backend phases.
//
// Diagnostics are plain data: Severity, a numeric Code with a stable ID, a
// message, a primary Location and optional notes. Locations address the
// compilation (unit, method, statement index) rather than source text, since
// the backend receives an already-parsed tree.
//
// Code ranges:
//
//   - 1000 lowering: unsupported shapes, unresolved calls, overload failures.
//   - 2000 emission, degraded: placeholders were emitted and the build continues.
//   - 3000 stack simulation: underflow and arity mismatches abort the build;
//     repairs are reported as info.
//   - 4000 pipeline and configuration.
//
// Phases emit through a Reporter (BagReporter, DedupReporter, NopReporter) and
// never format anything themselves; rendering lives in internal/diagfmt.
package diag
