package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lockstep-sim/lockstep/sim"
)

var listDir string // Directory holding the checkpoint log to list

// checkpointsCmd prints the steps recorded in a checkpoint log, oldest
// first, one per line. The log names only checkpoints every rank
// confirmed, so each listed step is resumable.
var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "List the checkpoint steps recorded in a directory",
	Run: func(cmd *cobra.Command, args []string) {
		configureLogging()

		recorded, err := sim.ReadCheckpointSteps(listDir)
		if err != nil {
			logrus.Fatalf("Unable to read checkpoint log: %v", err)
		}
		if len(recorded) == 0 {
			logrus.Warnf("no checkpoints recorded in %s", listDir)
			return
		}
		for _, step := range recorded {
			fmt.Fprintln(cmd.OutOrStdout(), step)
		}
	},
}

// init sets up CLI flags for the checkpoints subcommand
func init() {
	checkpointsCmd.Flags().StringVar(&listDir, "dir", "checkpoints", "Directory holding the checkpoint log")
	rootCmd.AddCommand(checkpointsCmd)
}
