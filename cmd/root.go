// Package cmd provides the root command and CLI setup for shaker.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"shaker.dev/pkg/shaker/internal/adapter"
	"shaker.dev/pkg/shaker/internal/controller"
	"shaker.dev/pkg/shaker/internal/domain"
)

var fsAdapter adapter.FSAdapter
var targetRunner adapter.TargetRunnerAdapter
var binaryDiff adapter.BinaryDiffAdapter
var artifactStore adapter.ArtifactStore
var workflow domain.Workflow
var ui controller.UI

// verboseFlag raises the diagnostic log level to debug.
var verboseFlag bool

func init() {
	configureRootFlags(rootCmd)

	// Initialize shared dependencies.
	ui = controller.NewUI(rootCmd, controller.IsTTY(os.Stdout))
	fsAdapter = adapter.NewLocalFSAdapter()
	targetRunner = adapter.NewLocalTargetRunnerAdapter()
	binaryDiff = adapter.NewBsdiffAdapter()
	artifactStore = adapter.NewLocalArtifactStore(fsAdapter, binaryDiff, storeLayout())
	workflow = domain.NewWorkflow(
		fsAdapter,
		targetRunner,
		artifactStore,
		binaryDiff,
		ui,
	)
}

const rootLongDescription = `Shaker is a mutation-based file fuzzer. It corrupts seed files taken from a
corpus directory, feeds each corrupted candidate to a target program and
watches whether the program survives a fixed time budget.

Passing candidates are kept as binary diffs against their seed, crashing ones
are archived verbatim so they can be reproduced.`

const runLongDescription = `Run a fuzzing session against the target program.

The target is started once per test with the candidate path appended to its
arguments. Arguments after "--" replace the configured target arguments:

  shaker run --target ./viewer -- --headless`

// rootCmd represents the base command when called without any subcommands.
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "shaker",
		Short:        "Mutation-based file fuzzer",
		Long:         rootLongDescription,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			configureLogger(viper.GetString(logFilenameKey), viper.GetBool(logVerboseKey))

			if configFileErr != nil {
				slog.Error("Failed to load config file", "error", configFileErr)
				return configFileErr
			}

			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
}

func configureRootFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().BoolVarP(&verboseFlag, verboseFlagName, "v", viper.GetBool(logVerboseKey), "write debug diagnostics to the log file")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(verboseFlagName), logVerboseKey)
}

// bindFlagToConfig wires a Cobra flag to a Viper key so config/env values feed the flag.
func bindFlagToConfig(flag *pflag.Flag, key string) {
	if flag == nil {
		cobra.CheckErr(fmt.Errorf("flag for config key %q not found", key))
		return
	}

	cobra.CheckErr(viper.BindPFlag(key, flag))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
