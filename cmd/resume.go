package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/cwbudde/swarmviz/internal/store"
	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume [run-id]",
	Short: "Continue a saved run",
	Long: `Loads a saved run's expression, algorithm and parameters and runs more
generations from a fresh population. The saved best is only replaced when the
new run finds a lower value.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	addRunFlags(resumeCmd, &resumeOpts, "./data")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	runID := args[0]

	if resumeOpts.DataDir == "" {
		return fmt.Errorf("--data-dir is required to resume")
	}

	fs, err := store.NewFSStore(resumeOpts.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	previous, err := fs.LoadRun(runID)
	if err != nil {
		return fmt.Errorf("failed to load run: %w", err)
	}
	if err := previous.Validate(); err != nil {
		return fmt.Errorf("saved run is not resumable: %w", err)
	}

	slog.Info("Resuming run",
		"run_id", runID,
		"expression", previous.Setup.Expression,
		"algorithm", previous.Setup.Algorithm,
		"generation", previous.Generation,
		"best_fitness", previous.BestFitness,
	)

	o := resumeOpts

	sess, scene := newHeadlessSession(o.Seed, o.Patience)
	if err := sess.Configure(previous.Setup.Expression, previous.Setup.Algorithm, previous.Setup.Params); err != nil {
		return fmt.Errorf("failed to restore setup: %w", err)
	}

	res, err := execute(sess, runID, o, true)
	if err != nil {
		return err
	}
	if err := finish(sess, scene, runID, res, o, previous); err != nil {
		return err
	}

	printResult(os.Stdout, sess, runID, res, o)
	return nil
}
