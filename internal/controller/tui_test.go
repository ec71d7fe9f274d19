package controller

import (
	"context"
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "shaker.dev/pkg/shaker/internal/model"
)

func update(t *testing.T, model sessionModel, msg tea.Msg) sessionModel {
	t.Helper()

	next, _ := model.Update(msg)
	sm, ok := next.(sessionModel)
	require.True(t, ok)

	return sm
}

func TestSessionModel_CountsOutcomes(t *testing.T) {
	model := newSessionModel(4, nil)

	model = update(t, model, outcomeMsg(m.TestRecord{Verdict: m.Passed}))
	model = update(t, model, outcomeMsg(m.TestRecord{Verdict: m.Crashed}))

	view := model.View()
	assert.Contains(t, view, "2/4")
	assert.Contains(t, view, "passed 1")
	assert.Contains(t, view, "crashed 1")
}

func TestSessionModel_KeepsLogTail(t *testing.T) {
	model := newSessionModel(1, nil)

	for i := range tailLines + 3 {
		model = update(t, model, logLineMsg(fmt.Sprintf("line %d", i)))
	}

	require.Len(t, model.lines, tailLines)
	assert.Equal(t, "line 3", model.lines[0])
	assert.NotContains(t, model.View(), "line 2\n")
}

func TestSessionModel_InterruptKey(t *testing.T) {
	interrupted := false
	model := newSessionModel(1, func() { interrupted = true })

	model = update(t, model, tea.KeyMsg{Type: tea.KeyCtrlC})

	assert.True(t, interrupted)
	assert.Contains(t, model.View(), "stopping after in-flight tests")
}

func TestSessionModel_Summary(t *testing.T) {
	model := newSessionModel(2, nil)

	model = update(t, model, summaryMsg(m.SessionSummary{Total: 2, Passed: 2}))

	assert.True(t, model.finished)
	assert.Contains(t, model.View(), "All tests are done")
}

func TestLineWriter(t *testing.T) {
	var got []string
	w := &lineWriter{emit: func(msg tea.Msg) { got = append(got, string(msg.(logLineMsg))) }}

	_, err := w.Write([]byte("first\nsec"))
	require.NoError(t, err)
	_, err = w.Write([]byte("ond\n\npartial"))
	require.NoError(t, err)
	w.Flush()

	assert.Equal(t, []string{"first", "second", "", "partial"}, got)
}

func TestTUI_PrintsWhenNotRunning(t *testing.T) {
	cmd, out := newBufferedCmd()
	tui := NewTUI(cmd)

	require.NoError(t, tui.Start(context.Background(), WithToolMode()))
	tui.DisplayMessage(context.Background(), "Candidate written to out.png")
	tui.Close(context.Background())

	assert.True(t, strings.Contains(out.String(), "Candidate written to out.png"))
}
