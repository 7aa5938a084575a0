// File: cmd/resume.go
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// newResumeCmd creates the `resume` command: re-run an input against the
// ledger of an earlier run. Items the ledger already records as terminal
// are skipped; everything else is processed as usual.
func newResumeCmd() *cobra.Command {
	var (
		runDir     string
		inputPath  string
		targetName string
		mode       string
	)

	resumeCmd := &cobra.Command{
		Use:   "resume",
		Short: "Resumes an interrupted run from its ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := os.Stat(runDir)
			if err != nil {
				return fmt.Errorf("run directory: %w", err)
			}
			if !info.IsDir() {
				return fmt.Errorf("run directory %q is not a directory", runDir)
			}
			return executeStage(cmd.Context(), runDir, inputPath, targetName, mode)
		},
	}

	resumeCmd.Flags().StringVarP(&runDir, "run-dir", "r", "", "Run directory of the interrupted run (required)")
	resumeCmd.Flags().StringVarP(&inputPath, "input", "i", "", "Input file with the items to process (required)")
	resumeCmd.Flags().StringVarP(&targetName, "target", "t", "", "Configured target to drive (required)")
	resumeCmd.Flags().StringVarP(&mode, "mode", "m", "", "Row selection mode: 'visible' or 'available' (overrides config)")
	_ = resumeCmd.MarkFlagRequired("run-dir")
	_ = resumeCmd.MarkFlagRequired("input")
	_ = resumeCmd.MarkFlagRequired("target")

	return resumeCmd
}
