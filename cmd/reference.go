package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cwbudde/swarmviz/internal/render"
	"github.com/cwbudde/swarmviz/internal/session"
	"github.com/spf13/cobra"
)

var (
	refIters int
	refPop   int
	refSeed  int64
)

var referenceCmd = &cobra.Command{
	Use:   "reference",
	Short: "Minimize the expression with the mayfly batch optimizer",
	Long: `Runs the mayfly algorithm to completion over the same expression and bounds,
as a reference value for the step-driven algorithms.`,
	RunE: runReference,
}

func init() {
	addSetupFlags(referenceCmd)
	referenceCmd.Flags().IntVar(&refIters, "iters", 500, "Max iterations")
	referenceCmd.Flags().IntVar(&refPop, "mayfly-pop", 30, "Mayfly population size (at least 20)")
	referenceCmd.Flags().Int64Var(&refSeed, "seed", 42, "Random seed")

	referenceCmd.MarkFlagRequired("expr")
	rootCmd.AddCommand(referenceCmd)
}

func runReference(cmd *cobra.Command, args []string) error {
	sess := session.New(render.NewScene())
	if err := sess.Configure(expr, algorithm, setParams()); err != nil {
		return fmt.Errorf("invalid setup: %w", err)
	}
	if !sess.ParametersValid() {
		return explainInvalid(sess)
	}

	start := time.Now()
	best, err := sess.Reference(refIters, refPop, refSeed)
	if err != nil {
		return fmt.Errorf("reference run failed: %w", err)
	}
	elapsed := time.Since(start)

	slog.Info("Reference complete",
		"expression", expr,
		"iters", refIters,
		"pop", refPop,
		"best_fitness", best.Fitness,
		"elapsed", elapsed,
	)

	fmt.Fprintf(os.Stdout, "Mayfly: f%v = %.6g (%s)\n", best.Position, best.Fitness, elapsed.Round(time.Millisecond))
	return nil
}
