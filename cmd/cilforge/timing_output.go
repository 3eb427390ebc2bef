package main

import (
	"fmt"
	"io"
	"time"

	"cilforge/internal/buildpipeline"
	"cilforge/internal/observ"
)

// printStageTimings prints the summed per-stage durations and, when a timer
// ran, its per-unit phases.
func printStageTimings(out io.Writer, timings buildpipeline.Timings, timer *observ.Timer) {
	if out == nil {
		return
	}
	stages := []struct {
		stage buildpipeline.Stage
		label string
	}{
		{buildpipeline.StageDecode, "decoded"},
		{buildpipeline.StageLower, "lowered"},
		{buildpipeline.StageEmit, "emitted"},
		{buildpipeline.StageWrite, "written"},
	}
	for _, s := range stages {
		if !timings.Has(s.stage) {
			continue
		}
		if _, err := fmt.Fprintf(out, "%s %.1f ms\n", s.label, toMillis(timings.Duration(s.stage))); err != nil {
			panic(err)
		}
	}
	if timer != nil {
		if summary := timer.Summary(); summary != "" {
			if _, err := fmt.Fprint(out, summary); err != nil {
				panic(err)
			}
		}
	}
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
