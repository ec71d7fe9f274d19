package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"shaker.dev/pkg/shaker/internal/domain"
	m "shaker.dev/pkg/shaker/internal/model"
)

var replayOutputFlag string
var replayCorpusFlag string

// replayCmd represents the replay command.
var replayCmd = newReplayCmd()

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <session-dir> <test-number>",
		Short: "Regenerate the candidate of a stored test",
		Long: `Regenerate the exact candidate a test ran against, from the session journal,
the session manifest and the corpus. The corpus must be unchanged since the
session ran.`,
		Args: cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			number, err := strconv.Atoi(args[1])
			if err != nil || number < 1 {
				return fmt.Errorf("invalid test number %q", args[1])
			}

			return workflow.Replay(context.Background(), domain.ReplayArgs{
				Session: m.Path(args[0]),
				Test:    number,
				Corpus:  m.Path(replayCorpusFlag),
				Output:  m.Path(replayOutputFlag),
			})
		},
	}

	cmd.Flags().StringVarP(&replayOutputFlag, outputFlagName, "o", "", "output file (default: the original candidate name)")
	cmd.Flags().StringVarP(&replayCorpusFlag, corpusFlagName, "c", "", "corpus directory (default: the one recorded for the session)")

	return cmd
}

func init() {
	rootCmd.AddCommand(replayCmd)
}
