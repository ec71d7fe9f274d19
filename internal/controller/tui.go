package controller

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	m "shaker.dev/pkg/shaker/internal/model"
)

const tailLines = 8

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	passedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	crashedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	faintStyle   = lipgloss.NewStyle().Faint(true)
)

// TUI implements UI using Bubble Tea: a progress bar, verdict counters and the
// tail of the session log, redrawn in place.
type TUI struct {
	cmd *cobra.Command

	mu      sync.Mutex
	program *tea.Program
	done    chan struct{}
	writer  *lineWriter
}

// NewTUI creates a new TUI.
func NewTUI(cmd *cobra.Command) *TUI {
	t := &TUI{cmd: cmd}
	t.writer = &lineWriter{emit: t.send}

	return t
}

// Start launches the Bubble Tea program in the background.
func (t *TUI) Start(ctx context.Context, options ...StartOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cfg := newStartConfig(options)
	if cfg.mode == ModeTool {
		return nil
	}

	program := tea.NewProgram(
		newSessionModel(cfg.total, cfg.interrupt),
		tea.WithOutput(t.cmd.OutOrStdout()),
	)

	done := make(chan struct{})

	t.mu.Lock()
	t.program = program
	t.done = done
	t.mu.Unlock()

	go func() {
		defer close(done)

		_, _ = program.Run()
	}()

	return nil
}

// Close stops the program after it rendered its final frame.
func (t *TUI) Close(_ context.Context) {
	t.writer.Flush()

	t.mu.Lock()
	program, done := t.program, t.done
	t.program = nil
	t.mu.Unlock()

	if program == nil {
		return
	}

	program.Quit()
	<-done
}

// LogWriter returns a writer that feeds complete lines into the log tail.
func (t *TUI) LogWriter() io.Writer {
	return t.writer
}

// DisplayOutcome updates the counters.
func (t *TUI) DisplayOutcome(_ context.Context, record m.TestRecord) {
	t.send(outcomeMsg(record))
}

// DisplaySummary freezes the counters with the final summary.
func (t *TUI) DisplaySummary(_ context.Context, summary m.SessionSummary) {
	t.send(summaryMsg(summary))
}

// DisplayMessage shows a message in the log tail, or prints it when no
// program is running.
func (t *TUI) DisplayMessage(_ context.Context, message string) {
	t.send(logLineMsg(message))
}

func (t *TUI) send(msg tea.Msg) {
	t.mu.Lock()
	program := t.program
	t.mu.Unlock()

	if program != nil {
		program.Send(msg)
		return
	}

	if line, ok := msg.(logLineMsg); ok {
		_, _ = fmt.Fprintln(t.cmd.OutOrStdout(), string(line))
	}
}

// lineWriter splits writes into lines and emits each complete one.
type lineWriter struct {
	mu      sync.Mutex
	pending strings.Builder
	emit    func(tea.Msg)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, b := range p {
		if b == '\n' {
			w.emit(logLineMsg(w.pending.String()))
			w.pending.Reset()

			continue
		}

		w.pending.WriteByte(b)
	}

	return len(p), nil
}

// Flush emits a trailing partial line.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending.Len() > 0 {
		w.emit(logLineMsg(w.pending.String()))
		w.pending.Reset()
	}
}

type (
	logLineMsg string
	outcomeMsg m.TestRecord
	summaryMsg m.SessionSummary
)

// sessionModel is the Bubble Tea model of a running session.
type sessionModel struct {
	total     int
	counts    m.SessionSummary
	lines     []string
	bar       progress.Model
	finished  bool
	interrupt context.CancelFunc
}

func newSessionModel(total int, interrupt context.CancelFunc) sessionModel {
	return sessionModel{
		total:     total,
		bar:       progress.New(progress.WithDefaultGradient()),
		interrupt: interrupt,
	}
}

func (sm sessionModel) Init() tea.Cmd {
	return nil
}

func (sm sessionModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		sm.bar.Width = max(msg.Width-12, 10)
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.String() == "q" {
			if sm.interrupt != nil {
				sm.interrupt()
			}

			sm.lines = appendTail(sm.lines, "stopping after in-flight tests...")
		}
	case logLineMsg:
		sm.lines = appendTail(sm.lines, string(msg))
	case outcomeMsg:
		sm.counts.Add(m.TestRecord(msg))
	case summaryMsg:
		sm.counts = m.SessionSummary(msg)
		sm.finished = true
	}

	return sm, nil
}

func (sm sessionModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("shaker - mutation fuzzing"))
	b.WriteString("\n\n")

	percent := 0.0
	if sm.total > 0 {
		percent = float64(sm.counts.Total) / float64(sm.total)
	}

	fmt.Fprintf(&b, "  %s %d/%d\n\n", sm.bar.ViewAs(percent), sm.counts.Total, sm.total)
	fmt.Fprintf(&b, "  %s  %s",
		passedStyle.Render(fmt.Sprintf("passed %d", sm.counts.Passed)),
		crashedStyle.Render(fmt.Sprintf("crashed %d", sm.counts.Crashed)),
	)

	if sm.counts.Errors > 0 {
		fmt.Fprintf(&b, "  storage errors %d", sm.counts.Errors)
	}

	b.WriteString("\n\n")

	for _, line := range sm.lines {
		b.WriteString(faintStyle.Render("  " + line))
		b.WriteString("\n")
	}

	if sm.finished {
		b.WriteString("\n  All tests are done.\n")
	}

	return b.String()
}

func appendTail(lines []string, line string) []string {
	lines = append(lines, line)
	if len(lines) > tailLines {
		lines = lines[len(lines)-tailLines:]
	}

	return lines
}
