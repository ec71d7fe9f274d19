package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"shaker.dev/pkg/shaker/internal/domain"
	m "shaker.dev/pkg/shaker/internal/model"
)

var runCorpusFlag string
var runTestsFlag int
var runParallelFlag int
var runSeedFlag int64
var runBudgetFlag string
var runTargetFlag string

// runCmd represents the run command.
var runCmd = newRunCmd()

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [-- target args...]",
		Short: "Run a fuzzing session",
		Long:  runLongDescription,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 && cmd.ArgsLenAtDash() != 0 {
				return fmt.Errorf("unexpected arguments %q: target arguments go after --", args)
			}

			seed, err := seedSetting()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return workflow.Run(ctx, domain.RunArgs{
				Corpus:   m.Path(viper.GetString(corpusDirKey)),
				Tests:    viper.GetInt(runTestsKey),
				Parallel: viper.GetInt(runParallelKey),
				Seed:     seed,
				Mutation: mutationSettings(),
				Exec:     execSettings(args),
				WorkDir:  m.Path(viper.GetString(workDirKey)),
			})
		},
	}

	configureRunFlags(cmd)

	return cmd
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func configureRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&runCorpusFlag, corpusFlagName, "c", viper.GetString(corpusDirKey), "directory holding the seed files")
	bindFlagToConfig(cmd.Flags().Lookup(corpusFlagName), corpusDirKey)

	cmd.Flags().IntVarP(&runTestsFlag, testsFlagName, "n", viper.GetInt(runTestsKey), "number of tests to run")
	bindFlagToConfig(cmd.Flags().Lookup(testsFlagName), runTestsKey)

	cmd.Flags().IntVarP(&runParallelFlag, parallelFlagName, "p", viper.GetInt(runParallelKey), "number of tests running at the same time")
	bindFlagToConfig(cmd.Flags().Lookup(parallelFlagName), runParallelKey)

	cmd.Flags().Int64Var(&runSeedFlag, seedFlagName, viper.GetInt64(runSeedKey), "random seed of the session (0 derives one from the clock)")
	bindFlagToConfig(cmd.Flags().Lookup(seedFlagName), runSeedKey)

	cmd.Flags().StringVar(&runBudgetFlag, budgetFlagName, viper.GetDuration(execBudgetKey).String(), "time the target must survive each test")
	bindFlagToConfig(cmd.Flags().Lookup(budgetFlagName), execBudgetKey)

	cmd.Flags().StringVarP(&runTargetFlag, targetFlagName, "t", viper.GetString(targetCommandKey), "program under test")
	bindFlagToConfig(cmd.Flags().Lookup(targetFlagName), targetCommandKey)
}
