package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"cilforge/internal/buildpipeline"
	"cilforge/internal/ui"
)

// uiMode is the --ui flag.
type uiMode string

const (
	uiModeAuto uiMode = "auto"
	uiModeOn   uiMode = "on"
	uiModeOff  uiMode = "off"
)

var errInterrupted = errors.New("build interrupted")

func readUIMode(value string) (uiMode, error) {
	v := uiMode(strings.ToLower(strings.TrimSpace(value)))
	switch v {
	case "":
		return uiModeAuto, nil
	case uiModeAuto, uiModeOn, uiModeOff:
		return v, nil
	}
	return "", fmt.Errorf("invalid --ui value %q (expected auto|on|off)", value)
}

// shouldUseTUI: in auto mode the view runs only for pretty output on a
// terminal, and never with --quiet.
func shouldUseTUI(mode uiMode, quiet bool, format string) bool {
	if mode != uiModeAuto {
		return mode == uiModeOn
	}
	return !quiet && format == "pretty" && isTerminal(os.Stdout)
}

// runBuildWithUI runs Build behind the progress view. final is the stage
// that marks a unit finished. Quitting the view cancels the build; the
// units still in flight stop at their next stage boundary.
func runBuildWithUI(ctx context.Context, title string, files []string, final buildpipeline.Stage, req *buildpipeline.BuildRequest) (buildpipeline.BuildResult, error) {
	if req == nil {
		return buildpipeline.BuildResult{}, fmt.Errorf("missing build request")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan buildpipeline.Event, 256)
	viewGone := make(chan struct{})
	type outcome struct {
		res buildpipeline.BuildResult
		err error
	}
	finished := make(chan outcome, 1)

	go func() {
		r := *req
		r.Progress = buildpipeline.ChannelSink{Ch: events, Done: viewGone}
		res, err := buildpipeline.Build(ctx, &r)
		finished <- outcome{res, err}
		close(events)
	}()

	view, uiErr := tea.NewProgram(ui.NewProgressModel(title, files, final, events), tea.WithOutput(os.Stdout)).Run()
	if ui.Interrupted(view) {
		cancel()
	}
	close(viewGone)
	out := <-finished
	switch {
	case uiErr != nil:
		return out.res, uiErr
	case ui.Interrupted(view) && out.err != nil:
		return out.res, errors.Join(errInterrupted, out.err)
	}
	return out.res, out.err
}
