package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/cwbudde/swarmviz/internal/expression"
	"github.com/spf13/cobra"
)

var evalCmd = &cobra.Command{
	Use:   "eval <expression> [x] [y]",
	Short: "Validate and evaluate an expression",
	Long: `Parses the expression, reports its dimension and whether it is defined at
the origin, then evaluates it at the given point (the origin when omitted).`,
	Args: cobra.RangeArgs(1, 3),
	RunE: runEval,
}

func init() {
	rootCmd.AddCommand(evalCmd)
}

func runEval(cmd *cobra.Command, args []string) error {
	return evaluate(os.Stdout, args[0], args[1:])
}

func evaluate(w io.Writer, src string, coords []string) error {
	e := expression.Parse(src)

	point := expression.Origin(e.Dimension())
	if len(coords) > 0 {
		point = make([]float64, len(coords))
		for i, c := range coords {
			v, err := strconv.ParseFloat(c, 64)
			if err != nil {
				return fmt.Errorf("invalid coordinate %q: %w", c, err)
			}
			point[i] = v
		}
	}

	fmt.Fprintf(w, "Expression: %s\n", e.String())
	fmt.Fprintf(w, "Dimension: %d\n", e.Dimension())
	fmt.Fprintf(w, "Valid: %v\n", e.Valid())

	value, err := e.Evaluate(point)
	switch {
	case err == nil:
		fmt.Fprintf(w, "f%v = %.10g\n", point, value)
		return nil
	case errors.Is(err, expression.ErrDomain):
		fmt.Fprintf(w, "f%v is undefined: %v\n", point, err)
		return nil
	default:
		return err
	}
}
