// Package tui renders a live progress display for a batch decompile run,
// adapted from the Charm stack used throughout this codebase: a spinner
// and progress bar drive the "still working" feedback, and a scrolling
// log of the most recent outcomes gives a sense of what's landing.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kotor-tools/ncsdecomp/internal/batch"
	"github.com/kotor-tools/ncsdecomp/internal/driver"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	partialStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAF00"))
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Bold(true)
	pathStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#767676"))
)

// maxLogLines bounds how many recent outcome lines the view retains;
// batches of thousands of files shouldn't grow the render buffer
// unbounded.
const maxLogLines = 12

func codeStyle(c driver.Code) lipgloss.Style {
	switch c {
	case driver.Success:
		return successStyle
	case driver.PartialCompare, driver.PartialCompile:
		return partialStyle
	default:
		return failureStyle
	}
}

type progressMsg batch.Progress

type doneMsg struct{ err error }

type model struct {
	total    int
	done     int
	summary  batch.Summary
	log      []string
	spinner  spinner.Model
	bar      progress.Model
	ch       <-chan batch.Progress
	finished bool
	runErr   error
	noColor  bool
}

func newModel(total int, ch <-chan batch.Progress, noColor bool) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF79C6"))

	b := progress.New(progress.WithDefaultGradient())
	b.Width = 50

	return model{total: total, spinner: s, bar: b, ch: ch, noColor: noColor}
}

func (m model) style(s lipgloss.Style, text string) string {
	if m.noColor {
		return text
	}
	return s.Render(text)
}

func waitForProgress(ch <-chan batch.Progress) tea.Cmd {
	return func() tea.Msg {
		p, ok := <-ch
		if !ok {
			return doneMsg{}
		}
		return progressMsg(p)
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForProgress(m.ch))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		}

	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progressMsg:
		m.done++
		m.summary.Total++
		switch msg.Outcome.Code {
		case driver.Success:
			m.summary.Success++
		case driver.PartialCompare:
			m.summary.PartialCompare++
		case driver.PartialCompile:
			m.summary.PartialCompile++
		case driver.Failure:
			m.summary.Failure++
		}
		m.log = append(m.log, fmt.Sprintf("%s %s",
			m.style(codeStyle(msg.Outcome.Code), string(msg.Outcome.Code)),
			m.style(pathStyle, msg.Outcome.Path)))
		if len(m.log) > maxLogLines {
			m.log = m.log[len(m.log)-maxLogLines:]
		}
		var cmds []tea.Cmd
		if m.total > 0 {
			cmds = append(cmds, m.bar.SetPercent(float64(m.done)/float64(m.total)))
		}
		cmds = append(cmds, waitForProgress(m.ch))
		return m, tea.Batch(cmds...)

	case doneMsg:
		m.finished = true
		m.runErr = msg.err
		return m, tea.Quit

	case progress.FrameMsg:
		newBar, cmd := m.bar.Update(msg)
		m.bar = newBar.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(m.style(titleStyle, " ncsdecomp batch "))
	b.WriteString("\n\n")

	if !m.finished {
		fmt.Fprintf(&b, "%s decompiling (%d/%d)\n", m.spinner.View(), m.done, m.total)
	} else {
		fmt.Fprintf(&b, "done (%d/%d)\n", m.done, m.total)
	}
	b.WriteString(m.bar.View())
	b.WriteString("\n\n")

	for _, line := range m.log {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	if m.finished {
		b.WriteByte('\n')
		fmt.Fprintf(&b, "success=%d partial_compare=%d partial_compile=%d failure=%d\n",
			m.summary.Success, m.summary.PartialCompare, m.summary.PartialCompile, m.summary.Failure)
	}
	return b.String()
}

// Run launches fd.Decompile over paths via batch.Run, rendering live
// progress, and returns the tallied Summary once the run (and the TUI
// program) completes.
func Run(ctx context.Context, fd *driver.FileDecompiler, paths []string, opts batch.Options, noColor bool) (batch.Summary, error) {
	ch := make(chan batch.Progress, len(paths))
	m := newModel(len(paths), ch, noColor)
	p := tea.NewProgram(m)

	var outcomes []driver.Outcome
	var batchErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		outcomes, batchErr = batch.Run(ctx, fd, paths, opts, ch)
	}()

	_, runErr := p.Run()
	<-done
	if runErr != nil {
		return batch.Summary{}, runErr
	}
	if batchErr != nil {
		return batch.Summary{}, batchErr
	}
	return batch.Summarize(outcomes), nil
}
