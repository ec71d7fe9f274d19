package controller

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	m "shaker.dev/pkg/shaker/internal/model"
)

// SimpleUI implements UI using the cobra command's output stream.
type SimpleUI struct {
	cmd   *cobra.Command
	total int

	passed  *color.Color
	crashed *color.Color
	warn    *color.Color
}

// NewSimpleUI creates a new SimpleUI.
func NewSimpleUI(cmd *cobra.Command) *SimpleUI {
	return &SimpleUI{
		cmd:     cmd,
		passed:  color.New(color.FgGreen),
		crashed: color.New(color.FgRed, color.Bold),
		warn:    color.New(color.FgYellow),
	}
}

// Start initializes the UI.
func (s *SimpleUI) Start(ctx context.Context, options ...StartOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.total = newStartConfig(options).total

	return nil
}

// Close finalizes the UI.
func (s *SimpleUI) Close(_ context.Context) {}

// LogWriter returns the command output so log lines are printed as they come.
func (s *SimpleUI) LogWriter() io.Writer {
	return s.cmd.OutOrStdout()
}

// DisplayOutcome prints a colored verdict marker for a finished test.
func (s *SimpleUI) DisplayOutcome(_ context.Context, record m.TestRecord) {
	label := s.passed.Sprint("PASSED")
	if record.Verdict == m.Crashed {
		label = s.crashed.Sprint("CRASHED")
	}

	s.printf("==> [%d/%d] %s %s (%s)\n", record.Number, s.total, label, record.CandidateName, record.Reason)

	if record.StoreError != "" {
		s.printf("    %s\n", s.warn.Sprintf("artifact not stored: %s", record.StoreError))
	}
}

// DisplaySummary prints the verdict counts as a table.
func (s *SimpleUI) DisplaySummary(_ context.Context, summary m.SessionSummary) {
	s.printf("\n%s", renderSummaryTable(summary))
}

// DisplayMessage prints a message verbatim.
func (s *SimpleUI) DisplayMessage(_ context.Context, message string) {
	s.printf("%s\n", message)
}

func renderSummaryTable(summary m.SessionSummary) string {
	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Verdict", "Tests"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})

	table.Append([]string{m.Passed.String(), fmt.Sprintf("%d", summary.Passed)})
	table.Append([]string{m.Crashed.String(), fmt.Sprintf("%d", summary.Crashed)})

	if summary.Errors > 0 {
		table.Append([]string{"storage errors", fmt.Sprintf("%d", summary.Errors)})
	}

	table.SetFooter([]string{"Total", fmt.Sprintf("%d", summary.Total)})
	table.Render()

	return tableBuffer.String()
}

func (s *SimpleUI) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.cmd.OutOrStdout(), format, args...)
}
