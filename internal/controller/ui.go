// Package controller provides the operator-facing output of the fuzzing harness.
package controller

import (
	"context"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	m "shaker.dev/pkg/shaker/internal/model"
)

// StartMode defines the mode of operation for the UI.
type StartMode int

// Available StartMode values.
const (
	ModeSession StartMode = iota
	ModeTool
)

// StartOption is a functional option for Start method.
type StartOption func(*StartConfig)

// StartConfig holds configuration for starting the UI.
type StartConfig struct {
	mode      StartMode
	total     int
	interrupt context.CancelFunc
}

// WithSessionMode shows progress over total tests.
func WithSessionMode(total int) StartOption {
	return func(c *StartConfig) {
		c.mode = ModeSession
		c.total = total
	}
}

// WithToolMode is used by one-shot commands such as replay and patch.
func WithToolMode() StartOption {
	return func(c *StartConfig) {
		c.mode = ModeTool
	}
}

// WithInterrupt registers the function called when the operator asks to stop.
func WithInterrupt(cancel context.CancelFunc) StartOption {
	return func(c *StartConfig) {
		c.interrupt = cancel
	}
}

func newStartConfig(options []StartOption) StartConfig {
	cfg := StartConfig{mode: ModeTool}
	for _, option := range options {
		option(&cfg)
	}

	return cfg
}

// UI defines how a session is shown to the operator.
// Implementations can use different output methods (simple text, TUI, etc).
type UI interface {
	Start(ctx context.Context, options ...StartOption) error
	Close(ctx context.Context)
	// LogWriter receives the mirrored session log, one line per write.
	LogWriter() io.Writer
	DisplayOutcome(ctx context.Context, record m.TestRecord)
	DisplaySummary(ctx context.Context, summary m.SessionSummary)
	DisplayMessage(ctx context.Context, message string)
}

// NewUI returns the TUI when useTTY is set and the simple line UI otherwise.
func NewUI(cmd *cobra.Command, useTTY bool) UI {
	if useTTY {
		return NewTUI(cmd)
	}

	return NewSimpleUI(cmd)
}

// IsTTY reports whether w is an interactive terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
