package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"slices"
	"syscall"
	"time"

	m "shaker.dev/pkg/shaker/internal/model"
)

// ErrTargetSpawn reports that the target program could not be started. A broken
// target makes every later result meaningless, so callers abort the session.
var ErrTargetSpawn = errors.New("failed to spawn target")

// TargetRunnerAdapter abstracts launching the program under test.
type TargetRunnerAdapter interface {
	// Run starts the target with input appended to its arguments, waits for the
	// configured budget and reports what it observed. The only error it returns
	// wraps ErrTargetSpawn; everything after a successful start is an outcome.
	Run(ctx context.Context, cfg m.ExecConfig, input m.Path) (m.ProcessOutcome, error)
}

// LocalTargetRunnerAdapter runs targets with os/exec.
type LocalTargetRunnerAdapter struct{}

// NewLocalTargetRunnerAdapter constructs a LocalTargetRunnerAdapter.
func NewLocalTargetRunnerAdapter() *LocalTargetRunnerAdapter {
	return &LocalTargetRunnerAdapter{}
}

// Run launches the target and polls it once the budget elapsed. A target still
// alive at that point is sent SIGTERM; StopErr carries a failed delivery. The
// budget is wall clock and is not shortened by ctx cancellation.
func (a *LocalTargetRunnerAdapter) Run(ctx context.Context, cfg m.ExecConfig, input m.Path) (m.ProcessOutcome, error) {
	args := append(slices.Clone(cfg.Args), string(input))

	// #nosec G204 - running the configured target is the purpose of the harness
	cmd := exec.Command(cfg.Command, args...)

	if err := cmd.Start(); err != nil {
		slog.ErrorContext(ctx, "Failed to start target", "command", cfg.Command, "error", err)
		return m.ProcessOutcome{ExitCode: -1}, fmt.Errorf("%w %q: %w", ErrTargetSpawn, cfg.Command, err)
	}

	exited := make(chan error, 1)

	go func() {
		exited <- cmd.Wait()
	}()

	budget := time.NewTimer(cfg.Budget)
	defer budget.Stop()

	select {
	case err := <-exited:
		return exitOutcome(err), nil
	case <-budget.C:
	}

	outcome := m.ProcessOutcome{State: m.StillAlive, ExitCode: -1}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		slog.DebugContext(ctx, "Failed to stop target", "pid", cmd.Process.Pid, "error", err)
		outcome.StopErr = err
	}

	outcome.ForcedKill = reap(ctx, cmd, exited, cfg.KillGrace)

	return outcome, nil
}

// reap waits for the stopped target and kills it when it outlives grace.
// It reports whether a kill was needed.
func reap(ctx context.Context, cmd *exec.Cmd, exited <-chan error, grace time.Duration) bool {
	select {
	case <-exited:
		return false
	case <-time.After(grace):
	}

	if err := cmd.Process.Kill(); err != nil {
		slog.DebugContext(ctx, "Failed to kill target", "pid", cmd.Process.Pid, "error", err)
	}

	select {
	case <-exited:
	case <-time.After(grace + time.Second):
		slog.WarnContext(ctx, "Target did not exit after kill", "pid", cmd.Process.Pid)
	}

	return true
}

func exitOutcome(err error) m.ProcessOutcome {
	if err == nil {
		return m.ProcessOutcome{State: m.ExitedCleanly, ExitCode: 0}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return m.ProcessOutcome{State: m.ExitedAbnormally, ExitCode: exitErr.ExitCode()}
	}

	return m.ProcessOutcome{State: m.ExitedAbnormally, ExitCode: -1}
}
