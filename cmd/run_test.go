package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"shaker.dev/pkg/shaker/internal/domain"
	m "shaker.dev/pkg/shaker/internal/model"
)

func TestRunCmd_Defaults(t *testing.T) {
	cmd, mockWorkflow, _ := newTestRoot(t, newRunCmd())

	mockWorkflow.On("Run", mock.Anything, mock.MatchedBy(func(args domain.RunArgs) bool {
		return args.Tests == 300 &&
			args.Parallel == 1 &&
			args.Seed == 0 &&
			args.Corpus == m.Path("inputs") &&
			args.WorkDir == m.Path(".") &&
			args.Mutation == m.DefaultMutationConfig() &&
			args.Exec.Budget == time.Second &&
			args.Exec.KillGrace == 2*time.Second &&
			!args.Exec.CleanExitPasses
	})).Return(nil)

	cmd.SetArgs([]string{"run"})
	require.NoError(t, cmd.Execute())
}

func TestRunCmd_Flags(t *testing.T) {
	cmd, mockWorkflow, _ := newTestRoot(t, newRunCmd())

	mockWorkflow.On("Run", mock.Anything, mock.MatchedBy(func(args domain.RunArgs) bool {
		return args.Tests == 5 &&
			args.Parallel == 3 &&
			args.Seed == 42 &&
			args.Corpus == m.Path("seeds") &&
			args.Exec.Command == "/usr/bin/viewer" &&
			args.Exec.Budget == 250*time.Millisecond &&
			assert.ObjectsAreEqual([]string{"--headless", "-q"}, args.Exec.Args)
	})).Return(nil)

	cmd.SetArgs([]string{
		"run", "-n", "5", "-p", "3", "--seed", "42", "--budget", "250ms",
		"-t", "/usr/bin/viewer", "-c", "seeds", "--", "--headless", "-q",
	})
	require.NoError(t, cmd.Execute())
}

func TestRunCmd_EnvOverridesDefaults(t *testing.T) {
	cmd, mockWorkflow, _ := newTestRoot(t, newRunCmd())

	t.Setenv("SHAKER_MUTATION_SAME_EXT_PROBABILITY", "0.25")
	t.Setenv("SHAKER_EXEC_CLEAN_EXIT_PASSES", "true")
	t.Setenv("SHAKER_TARGET_ARGS", "--one --two")

	mockWorkflow.On("Run", mock.Anything, mock.MatchedBy(func(args domain.RunArgs) bool {
		return args.Mutation.SameExtProbability == 0.25 &&
			args.Exec.CleanExitPasses &&
			assert.ObjectsAreEqual([]string{"--one", "--two"}, args.Exec.Args)
	})).Return(nil)

	cmd.SetArgs([]string{"run"})
	require.NoError(t, cmd.Execute())
}

func TestRunCmd_RejectsArgumentsBeforeDash(t *testing.T) {
	cmd, mockWorkflow, _ := newTestRoot(t, newRunCmd())

	cmd.SetArgs([]string{"run", "stray"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after --")

	mockWorkflow.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestRunCmd_NegativeSeed(t *testing.T) {
	cmd, mockWorkflow, _ := newTestRoot(t, newRunCmd())
	t.Setenv("SHAKER_RUN_SEED", "-1")

	cmd.SetArgs([]string{"run"})
	err := cmd.Execute()

	var cfgErr *m.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, runSeedKey, cfgErr.Field)

	mockWorkflow.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestRunCmd_PropagatesWorkflowError(t *testing.T) {
	cmd, mockWorkflow, _ := newTestRoot(t, newRunCmd())

	mockWorkflow.On("Run", mock.Anything, mock.Anything).Return(domain.ErrEmptyCorpus)

	cmd.SetArgs([]string{"run"})
	require.ErrorIs(t, cmd.Execute(), domain.ErrEmptyCorpus)
}
