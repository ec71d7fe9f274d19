package adapter

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "shaker.dev/pkg/shaker/internal/model"
)

// These tests exercise LocalTargetRunnerAdapter against /bin/sh scripts; the
// candidate path arrives as $0 of the -c script.

func shellTarget(t *testing.T, script string, budget time.Duration) m.ExecConfig {
	t.Helper()

	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}

	return m.ExecConfig{
		Command:   "/bin/sh",
		Args:      []string{"-c", script},
		Budget:    budget,
		KillGrace: 200 * time.Millisecond,
	}
}

func TestLocalTargetRunnerAdapter_Run_ExitsNonZero(t *testing.T) {
	runner := NewLocalTargetRunnerAdapter()

	outcome, err := runner.Run(context.Background(), shellTarget(t, "exit 3", 2*time.Second), "input.png")
	require.NoError(t, err)

	assert.Equal(t, m.ExitedAbnormally, outcome.State)
	assert.Equal(t, 3, outcome.ExitCode)
}

func TestLocalTargetRunnerAdapter_Run_ExitsCleanly(t *testing.T) {
	runner := NewLocalTargetRunnerAdapter()

	outcome, err := runner.Run(context.Background(), shellTarget(t, "exit 0", 2*time.Second), "input.png")
	require.NoError(t, err)

	assert.Equal(t, m.ExitedCleanly, outcome.State)
	assert.Equal(t, 0, outcome.ExitCode)
}

func TestLocalTargetRunnerAdapter_Run_StillAliveIsStopped(t *testing.T) {
	runner := NewLocalTargetRunnerAdapter()

	start := time.Now()
	outcome, err := runner.Run(context.Background(), shellTarget(t, "sleep 10", 100*time.Millisecond), "input.png")
	require.NoError(t, err)

	assert.Equal(t, m.StillAlive, outcome.State)
	assert.NoError(t, outcome.StopErr)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestLocalTargetRunnerAdapter_Run_IgnoredTermIsKilled(t *testing.T) {
	runner := NewLocalTargetRunnerAdapter()

	cfg := shellTarget(t, "trap '' TERM; while :; do sleep 1; done", 100*time.Millisecond)
	outcome, err := runner.Run(context.Background(), cfg, "input.png")
	require.NoError(t, err)

	assert.Equal(t, m.StillAlive, outcome.State)
	assert.NoError(t, outcome.StopErr)
	assert.True(t, outcome.ForcedKill)
}

func TestLocalTargetRunnerAdapter_Run_ReceivesInputPath(t *testing.T) {
	runner := NewLocalTargetRunnerAdapter()

	dir := t.TempDir()
	marker := filepath.Join(dir, "seen")
	cfg := shellTarget(t, `printf '%s' "$0" > "`+marker+`"`, 2*time.Second)

	_, err := runner.Run(context.Background(), cfg, "20261016_101010_000_GMT_0001.png")
	require.NoError(t, err)

	seen, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "20261016_101010_000_GMT_0001.png", string(seen))
}

func TestLocalTargetRunnerAdapter_Run_SpawnFailure(t *testing.T) {
	runner := NewLocalTargetRunnerAdapter()

	cfg := m.ExecConfig{Command: filepath.Join(t.TempDir(), "missing-viewer"), Budget: time.Second}

	_, err := runner.Run(context.Background(), cfg, "input.png")
	require.ErrorIs(t, err, ErrTargetSpawn)
	assert.Contains(t, err.Error(), "missing-viewer")
}

func TestExitOutcome(t *testing.T) {
	assert.Equal(t, m.ProcessOutcome{State: m.ExitedCleanly, ExitCode: 0}, exitOutcome(nil))
	assert.Equal(t, m.ProcessOutcome{State: m.ExitedAbnormally, ExitCode: -1}, exitOutcome(os.ErrClosed))
}
