package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"cilforge/internal/buildpipeline"
)

// unitState is the row status of one unit.
type unitState uint8

const (
	stateQueued unitState = iota
	stateRunning
	stateDone
	stateCached
	stateFailed
)

func (s unitState) terminal() bool { return s >= stateDone }

// stageShare is how much of a unit's bar a started stage fills.
var stageShare = map[buildpipeline.Stage]float64{
	buildpipeline.StageDecode: 0.1,
	buildpipeline.StageLower:  0.3,
	buildpipeline.StageEmit:   0.6,
	buildpipeline.StageWrite:  0.9,
}

var stageVerb = map[buildpipeline.Stage]string{
	buildpipeline.StageDecode: "decoding",
	buildpipeline.StageLower:  "lowering",
	buildpipeline.StageEmit:   "emitting",
	buildpipeline.StageWrite:  "writing",
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	faintStyle   = lipgloss.NewStyle().Faint(true)
)

type unitRow struct {
	path  string
	state unitState
	stage buildpipeline.Stage
	spent time.Duration
}

// label is the text shown in the status column.
func (r *unitRow) label() string {
	switch r.state {
	case stateRunning:
		return stageVerb[r.stage]
	case stateDone:
		return "done"
	case stateCached:
		return "cached"
	case stateFailed:
		return "error"
	}
	return "queued"
}

func (r *unitRow) style() lipgloss.Style {
	switch r.state {
	case stateDone, stateCached:
		return okStyle
	case stateFailed:
		return failStyle
	case stateRunning:
		return runningStyle
	}
	return idleStyle
}

type progressModel struct {
	title   string
	events  <-chan buildpipeline.Event
	final   buildpipeline.Stage
	spinner spinner.Model
	bar     progress.Model
	rows    []unitRow
	byPath  map[string]int
	phase   string
	width   int
	done    bool

	// interrupted is set when the user quits before the pipeline finishes.
	interrupted bool
}

type eventMsg buildpipeline.Event
type closedMsg struct{}

// NewProgressModel returns a Bubble Tea model that renders one row per unit.
// A unit is finished once final reports done; earlier stages only move the
// bar. The model quits when events is closed.
func NewProgressModel(title string, files []string, final buildpipeline.Stage, events <-chan buildpipeline.Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = runningStyle

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 76

	m := &progressModel{
		title:   title,
		events:  events,
		final:   final,
		spinner: sp,
		bar:     bar,
		rows:    make([]unitRow, len(files)),
		byPath:  make(map[string]int, len(files)),
		width:   80,
	}
	for i, f := range files {
		m.rows[i] = unitRow{path: f}
		m.byPath[f] = i
	}
	return m
}

// Interrupted reports whether the view returned by NewProgressModel was
// quit by the user rather than by the pipeline finishing.
func Interrupted(model tea.Model) bool {
	m, ok := model.(*progressModel)
	return ok && m.interrupted
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.next())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		return m, tea.Batch(m.apply(buildpipeline.Event(msg)), m.next())
	case closedMsg:
		m.done = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.String() == "q" {
			m.interrupted = true
			return m, tea.Quit
		}
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.bar.Width = msg.Width - 4
		}
	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	if len(m.rows) == 0 {
		return ""
	}
	header := m.title
	if m.phase != "" {
		header += " (" + m.phase + ")"
	}
	if m.done {
		header = "done: " + header
	} else {
		header = m.spinner.View() + " " + header
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n\n")

	nameWidth := max(m.width-30, 20)
	for i := range m.rows {
		r := &m.rows[i]
		fmt.Fprintf(&b, "  %s %s", r.style().Render(fmt.Sprintf("%10s", r.label())), truncate(r.path, nameWidth))
		if r.spent > 0 {
			b.WriteString(faintStyle.Render(fmt.Sprintf("  %s", r.spent.Round(time.Millisecond))))
		}
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	if m.done {
		b.WriteString(m.bar.ViewAs(1.0))
	} else {
		b.WriteString(m.bar.View())
	}
	b.WriteString("\n")
	b.WriteString(faintStyle.Render(m.tally()))
	b.WriteString("\n")
	return b.String()
}

// tally summarizes finished rows, e.g. "2/3 units, 1 cached, 1 failed".
func (m *progressModel) tally() string {
	var finished, cached, failed int
	for i := range m.rows {
		switch m.rows[i].state {
		case stateDone:
			finished++
		case stateCached:
			finished++
			cached++
		case stateFailed:
			finished++
			failed++
		}
	}
	s := fmt.Sprintf("%d/%d units", finished, len(m.rows))
	if cached > 0 {
		s += fmt.Sprintf(", %d cached", cached)
	}
	if failed > 0 {
		s += fmt.Sprintf(", %d failed", failed)
	}
	return s
}

func (m *progressModel) next() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return closedMsg{}
		}
		return eventMsg(ev)
	}
}

// apply folds one pipeline event into the rows. Pipeline-wide events only
// change the phase shown in the header.
func (m *progressModel) apply(ev buildpipeline.Event) tea.Cmd {
	if ev.File == "" {
		if ev.Status == buildpipeline.StatusWorking {
			m.phase = stageVerb[ev.Stage]
		}
		return nil
	}
	i, ok := m.byPath[ev.File]
	if !ok {
		return nil
	}
	r := &m.rows[i]
	if r.state.terminal() {
		return nil
	}
	r.spent += ev.Elapsed
	switch ev.Status {
	case buildpipeline.StatusWorking:
		r.state, r.stage = stateRunning, ev.Stage
	case buildpipeline.StatusCached:
		r.state, r.stage = stateCached, ev.Stage
	case buildpipeline.StatusError:
		r.state, r.stage = stateFailed, ev.Stage
	case buildpipeline.StatusDone:
		if ev.Stage != m.final {
			return m.bar.SetPercent(m.percent())
		}
		r.state, r.stage = stateDone, ev.Stage
	case buildpipeline.StatusQueued:
		r.state = stateQueued
	}
	return m.bar.SetPercent(m.percent())
}

func (m *progressModel) percent() float64 {
	if len(m.rows) == 0 {
		return 0
	}
	var sum float64
	for i := range m.rows {
		r := &m.rows[i]
		if r.state.terminal() {
			sum++
			continue
		}
		sum += stageShare[r.stage]
	}
	return sum / float64(len(m.rows))
}

func truncate(value string, width int) string {
	if width <= 0 || runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width-3, "...")
}
