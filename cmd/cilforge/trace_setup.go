package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"cilforge/internal/trace"
)

// activeTrace is the tracer of the running command; finishTracing tears it down.
var activeTrace struct {
	tracer    trace.Tracer
	heartbeat *trace.Heartbeat
	dumpTo    io.Writer
	format    trace.Format
}

// setupTracing inspects trace-related flags and attaches a tracer to the
// command context.
func setupTracing(cmd *cobra.Command) error {
	root := cmd.Root()

	traceOutput, err := root.PersistentFlags().GetString("trace")
	if err != nil {
		return fmt.Errorf("failed to get trace flag: %w", err)
	}
	levelStr, err := root.PersistentFlags().GetString("trace-level")
	if err != nil {
		return fmt.Errorf("failed to get trace-level flag: %w", err)
	}
	modeStr, err := root.PersistentFlags().GetString("trace-mode")
	if err != nil {
		return fmt.Errorf("failed to get trace-mode flag: %w", err)
	}
	ringSize, err := root.PersistentFlags().GetInt("trace-ring-size")
	if err != nil {
		return fmt.Errorf("failed to get trace-ring-size flag: %w", err)
	}
	heartbeatInterval, err := root.PersistentFlags().GetDuration("trace-heartbeat")
	if err != nil {
		return fmt.Errorf("failed to get trace-heartbeat flag: %w", err)
	}

	level, err := trace.ParseLevel(levelStr)
	if err != nil {
		return fmt.Errorf("invalid trace level: %w", err)
	}
	// a file without a level means "phase"
	if level == trace.LevelOff && traceOutput != "" {
		level = trace.LevelPhase
	}
	if level == trace.LevelOff {
		cmd.SetContext(trace.WithTracer(cmd.Context(), trace.Nop))
		return nil
	}

	mode, err := trace.ParseMode(modeStr)
	if err != nil {
		return fmt.Errorf("invalid trace mode: %w", err)
	}
	// without a ring there is nothing to dump, so a bare file streams
	if traceOutput != "" && mode == trace.ModeRing && !cmd.Root().PersistentFlags().Changed("trace-mode") {
		mode = trace.ModeStream
	}

	tracer, err := trace.New(trace.Config{
		Level:      level,
		Mode:       mode,
		OutputPath: traceOutput,
		RingSize:   ringSize,
	})
	if err != nil {
		return fmt.Errorf("failed to create tracer: %w", err)
	}

	ctx := trace.WithTracer(cmd.Context(), tracer)
	cmd.SetContext(ctx)
	cmd.Root().SetContext(ctx)

	activeTrace.tracer = tracer
	activeTrace.dumpTo = cmd.ErrOrStderr()
	activeTrace.format = trace.FormatText
	if heartbeatInterval > 0 {
		activeTrace.heartbeat = trace.StartHeartbeat(tracer, heartbeatInterval)
	}
	return nil
}

// finishTracing stops the heartbeat and closes the tracer. When the command
// failed, the ring buffer (if any) is dumped first.
func finishTracing(cmdErr error) {
	tracer := activeTrace.tracer
	if tracer == nil {
		return
	}
	out := activeTrace.dumpTo
	if out == nil {
		out = os.Stderr
	}
	if activeTrace.heartbeat != nil {
		activeTrace.heartbeat.Stop()
	}
	if ring := trace.RingOf(tracer); ring != nil && cmdErr != nil {
		fmt.Fprintf(out, "trace: last %d events before the failure\n", len(ring.Snapshot()))
		if err := ring.Dump(out, activeTrace.format); err != nil {
			fmt.Fprintf(out, "trace: dump error: %v\n", err)
		}
	}
	if err := tracer.Flush(); err != nil {
		fmt.Fprintf(out, "trace: flush error: %v\n", err)
	}
	if err := tracer.Close(); err != nil {
		fmt.Fprintf(out, "trace: close error: %v\n", err)
	}
	activeTrace.tracer = nil
	activeTrace.heartbeat = nil
}
