package buildpipeline

import (
	"fmt"
	"time"
)

// Stage describes a high-level pipeline phase.
type Stage string

const (
	// StageDecode reads and validates the syntax tree of a unit.
	StageDecode Stage = "decode"
	// StageLower builds the IL metamodel.
	StageLower Stage = "lower"
	// StageEmit produces the image or the listing.
	StageEmit Stage = "emit"
	// StageWrite stores the artifact.
	StageWrite Stage = "write"
)

// Status captures progress state within a stage.
type Status string

const (
	// StatusQueued indicates the task is waiting to start.
	StatusQueued Status = "queued"
	// StatusWorking indicates the task is currently working.
	StatusWorking Status = "working"
	// StatusDone indicates the task is done.
	StatusDone Status = "done"
	// StatusCached indicates the artifact came from the build cache.
	StatusCached Status = "cached"
	// StatusError indicates the task encountered an error.
	StatusError Status = "error"
)

// Event reports progress for a file (or for the overall pipeline when File is empty).
type Event struct {
	File    string
	Stage   Stage
	Status  Status
	Err     error
	Elapsed time.Duration
}

// ProgressSink consumes progress events.
type ProgressSink interface {
	OnEvent(Event)
}

// Backend selects the output form.
type Backend string

const (
	// BackendPE writes a runnable PE image.
	BackendPE Backend = "pe"
	// BackendIL writes an assembler listing.
	BackendIL Backend = "il"
)

// ParseBackend accepts the --backend flag values.
func ParseBackend(s string) (Backend, error) {
	switch Backend(s) {
	case "", BackendPE:
		return BackendPE, nil
	case BackendIL:
		return BackendIL, nil
	default:
		return "", fmt.Errorf("unsupported backend: %s (supported: pe, il)", s)
	}
}

// Ext is the artifact file extension.
func (b Backend) Ext() string {
	if b == BackendIL {
		return ".il"
	}
	return ".dll"
}

// Timings holds stage durations summed over all units.
type Timings struct {
	stages map[Stage]time.Duration
}

func (t *Timings) ensure() {
	if t.stages == nil {
		t.stages = make(map[Stage]time.Duration)
	}
}

// Set stores a duration for the given stage.
func (t *Timings) Set(stage Stage, dur time.Duration) {
	if t == nil {
		return
	}
	t.ensure()
	t.stages[stage] = dur
}

// Add accumulates dur into stage.
func (t *Timings) Add(stage Stage, dur time.Duration) {
	if t == nil {
		return
	}
	t.ensure()
	t.stages[stage] += dur
}

// Has reports whether a duration for stage is recorded.
func (t Timings) Has(stage Stage) bool {
	if t.stages == nil {
		return false
	}
	_, ok := t.stages[stage]
	return ok
}

// Duration returns the recorded duration for stage.
func (t Timings) Duration(stage Stage) time.Duration {
	if t.stages == nil {
		return 0
	}
	return t.stages[stage]
}

// Sum returns the sum of durations across the provided stages.
func (t Timings) Sum(stages ...Stage) time.Duration {
	if t.stages == nil {
		return 0
	}
	var total time.Duration
	for _, stage := range stages {
		total += t.stages[stage]
	}
	return total
}
