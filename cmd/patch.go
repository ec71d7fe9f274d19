package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"shaker.dev/pkg/shaker/internal/domain"
	m "shaker.dev/pkg/shaker/internal/model"
)

var patchOutputFlag string
var patchHexDiffFlag bool

// patchCmd represents the patch command.
var patchCmd = newPatchCmd()

func newPatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patch <seed> <diff>",
		Short: "Rebuild a passed candidate from its seed and diff",
		Long: `Apply a diff artifact stored for a passed test to its seed file and write
the resulting candidate.`,
		Args: cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return workflow.Patch(context.Background(), domain.PatchArgs{
				Seed:    m.Path(args[0]),
				Diff:    m.Path(args[1]),
				Output:  m.Path(patchOutputFlag),
				HexDiff: patchHexDiffFlag,
			})
		},
	}

	cmd.Flags().StringVarP(&patchOutputFlag, outputFlagName, "o", "", "output file (default: the diff name without its extension)")
	cmd.Flags().BoolVar(&patchHexDiffFlag, hexDiffFlagName, false, "print a diff of the hex dumps of seed and candidate")

	return cmd
}

func init() {
	rootCmd.AddCommand(patchCmd)
}
