package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"shaker.dev/pkg/shaker/internal/adapter"
	m "shaker.dev/pkg/shaker/internal/model"
)

// Oracle writes a candidate to disk, runs the target on it and decides whether
// the target survived.
type Oracle interface {
	Run(ctx context.Context, candidate m.MutatedCandidate, number int, stamp string) (m.TestOutcome, error)
}

type oracle struct {
	fsAdapter adapter.FSAdapter
	runner    adapter.TargetRunnerAdapter
	cfg       m.ExecConfig
	workDir   m.Path
}

// NewOracle validates cfg and returns an Oracle that writes candidates into
// workDir.
func NewOracle(fsAdapter adapter.FSAdapter, runner adapter.TargetRunnerAdapter, cfg m.ExecConfig, workDir m.Path) (Oracle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if workDir == "" {
		workDir = "."
	}

	return &oracle{
		fsAdapter: fsAdapter,
		runner:    runner,
		cfg:       cfg,
		workDir:   workDir,
	}, nil
}

// CandidateName is the file name of test number taken in the session
// identified by stamp. Numbers are unique within a session, so the name is
// too, whatever order workers finish in.
func CandidateName(stamp string, number int, ext string) string {
	return fmt.Sprintf("%s_%04d%s", stamp, number, ext)
}

// Run returns an error only when the candidate cannot be written or the
// target cannot be started. Both abort the session.
func (o *oracle) Run(ctx context.Context, candidate m.MutatedCandidate, number int, stamp string) (m.TestOutcome, error) {
	path := o.fsAdapter.JoinPath(ctx, string(o.workDir), CandidateName(stamp, number, candidate.Extension))

	if err := o.fsAdapter.WriteFile(ctx, path, candidate.Content, 0o600); err != nil {
		slog.ErrorContext(ctx, "Failed to write candidate", "path", path, "error", err)
		return m.TestOutcome{}, fmt.Errorf("write candidate %s: %w", path, err)
	}

	process, err := o.runner.Run(ctx, o.cfg, path)
	if err != nil {
		if rmErr := o.fsAdapter.Remove(ctx, path); rmErr != nil {
			slog.DebugContext(ctx, "Failed to remove candidate", "path", path, "error", rmErr)
		}

		return m.TestOutcome{}, err
	}

	verdict, reason := Classify(process, o.cfg.CleanExitPasses)

	slog.DebugContext(ctx, "Classified test", "number", number, "state", process.State, "verdict", verdict, "reason", reason)

	return m.TestOutcome{
		Verdict:       verdict,
		CandidatePath: path,
		Reason:        reason,
		Process:       process,
	}, nil
}

// Classify maps what the runner observed to a verdict and a short reason.
// Only a target that was alive when the budget elapsed and accepted the stop
// request passes, unless cleanExitPasses also admits a zero exit.
func Classify(process m.ProcessOutcome, cleanExitPasses bool) (m.Verdict, string) {
	switch process.State {
	case m.StillAlive:
		if process.StopErr != nil {
			if errors.Is(process.StopErr, os.ErrProcessDone) {
				return m.Crashed, "target exited while being stopped"
			}

			return m.Crashed, fmt.Sprintf("target could not be stopped: %v", process.StopErr)
		}

		if process.ForcedKill {
			return m.Passed, "alive after budget, killed after ignoring stop"
		}

		return m.Passed, "alive after budget"
	case m.ExitedCleanly:
		if cleanExitPasses {
			return m.Passed, "exited cleanly within budget"
		}

		return m.Crashed, "exited with code 0 within budget"
	case m.ExitedAbnormally:
		if process.ExitCode < 0 {
			return m.Crashed, "terminated by signal within budget"
		}

		return m.Crashed, fmt.Sprintf("exited with code %d within budget", process.ExitCode)
	default:
		return m.Crashed, fmt.Sprintf("unexpected process state %d", process.State)
	}
}
