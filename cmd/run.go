package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cwbudde/swarmviz/internal/opt"
	"github.com/cwbudde/swarmviz/internal/params"
	"github.com/cwbudde/swarmviz/internal/render"
	"github.com/cwbudde/swarmviz/internal/sampling"
	"github.com/cwbudde/swarmviz/internal/session"
	"github.com/cwbudde/swarmviz/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// paramFlag binds a CLI flag to a form field. Values stay strings so the
// CLI goes through the same validators as the UI.
type paramFlag struct {
	flag  string
	field string
	usage string
}

var paramFlags = []paramFlag{
	{"lower", params.Lower, "Lower bound of every coordinate"},
	{"upper", params.Upper, "Upper bound of every coordinate"},
	{"pop", params.PopulationSize, "Population size"},
	{"w", params.Inertia, "PSO inertia weight in [0,1]"},
	{"c1", params.Cognitive, "PSO cognitive coefficient in [0,1]"},
	{"c2", params.Social, "PSO social coefficient in [0,1]"},
	{"mutation-rate", params.MutationRate, "GA per-coordinate mutation probability"},
	{"crossover-rate", params.CrossoverRate, "GA crossover probability"},
	{"mutation-scale", params.MutationScale, "GA mutation sd as a fraction of (upper-lower)"},
}

// runOptions are the execution flags shared by run and resume.
type runOptions struct {
	Steps    int
	Patience int
	Seed     uint64
	DataDir  string
	PlotPath string
	LogEvery int
}

var (
	expr       string
	algorithm  string
	rawParams  = make(map[string]*string)
	runOpts    runOptions
	resumeOpts runOptions
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Step a minimizer over an expression without a UI",
	Long: `Runs the chosen algorithm over the expression for a number of generations,
optionally stopping early when the best value stalls. With --data-dir the
generation trace and the result are saved and can be resumed later.`,
	RunE: runSearch,
}

func init() {
	addSetupFlags(runCmd)
	addRunFlags(runCmd, &runOpts, "")

	runCmd.MarkFlagRequired("expr")
	rootCmd.AddCommand(runCmd)
}

func addSetupFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&expr, "expr", "", "Expression in x, or x and y")
	cmd.Flags().StringVar(&algorithm, "algorithm", opt.AlgorithmGenetic, "Algorithm: "+strings.Join(opt.Algorithms(), ", "))
	for _, pf := range paramFlags {
		v, ok := rawParams[pf.field]
		if !ok {
			v = new(string)
			rawParams[pf.field] = v
		}
		cmd.Flags().StringVar(v, pf.flag, "", pf.usage+" (empty = default)")
	}
}

func addRunFlags(cmd *cobra.Command, o *runOptions, defaultDataDir string) {
	cmd.Flags().IntVar(&o.Steps, "steps", 100, "Generations to run")
	cmd.Flags().IntVar(&o.Patience, "patience", 0, "Stop after N generations without improvement (0 = never)")
	cmd.Flags().Uint64Var(&o.Seed, "seed", 0, "Random seed (0 = from clock)")
	cmd.Flags().StringVar(&o.DataDir, "data-dir", defaultDataDir, "Directory for traces and run records (empty = don't save)")
	cmd.Flags().StringVar(&o.PlotPath, "plot", "", "Write a PNG plot of the final population to this path")
	cmd.Flags().IntVar(&o.LogEvery, "log-every", 10, "Log progress every N generations (0 = never)")
}

// setParams returns the fields given on the command line.
func setParams() map[string]string {
	raw := make(map[string]string)
	for field, v := range rawParams {
		if v != nil && *v != "" {
			raw[field] = *v
		}
	}
	return raw
}

func runSearch(cmd *cobra.Command, args []string) error {
	sess, scene := newHeadlessSession(runOpts.Seed, runOpts.Patience)
	if err := sess.Configure(expr, algorithm, setParams()); err != nil {
		return fmt.Errorf("invalid setup: %w", err)
	}

	runID := uuid.New().String()
	res, err := execute(sess, runID, runOpts, false)
	if err != nil {
		return err
	}

	if err := finish(sess, scene, runID, res, runOpts, nil); err != nil {
		return err
	}
	printResult(os.Stdout, sess, runID, res, runOpts)
	return nil
}

// newHeadlessSession creates a session drawing on an in-memory scene.
func newHeadlessSession(seed uint64, patience int) (*session.Session, *render.Scene) {
	stall := opt.DisabledStallConfig()
	if patience > 0 {
		stall = opt.DefaultStallConfig()
		stall.Patience = patience
	}

	opts := []session.Option{session.WithStallConfig(stall)}
	if seed != 0 {
		opts = append(opts, session.WithSampler(sampling.New(seed)))
	}

	scene := render.NewScene()
	return session.New(scene, opts...), scene
}

// outcome summarizes an executed run.
type outcome struct {
	Generations int
	Best        *opt.Point
	Stalled     bool
	Elapsed     time.Duration
}

// execute steps sess up to o.Steps generations, tracing each one under
// runID when a data dir is set.
func execute(sess *session.Session, runID string, o runOptions, appendTrace bool) (outcome, error) {
	if !sess.ParametersValid() {
		return outcome{}, explainInvalid(sess)
	}
	if o.Steps < 1 {
		return outcome{}, fmt.Errorf("--steps must be at least 1")
	}

	var tw *store.TraceWriter
	if o.DataDir != "" {
		var err error
		mode := store.TraceFresh
		if appendTrace {
			mode = store.TraceContinue
		}
		tw, err = store.OpenTrace(o.DataDir, runID, mode)
		if err != nil {
			return outcome{}, fmt.Errorf("failed to open trace: %w", err)
		}
		defer tw.Close()
	}

	slog.Info("Starting run",
		"run_id", runID,
		"expression", sess.Expression().String(),
		"algorithm", sess.Algorithm(),
		"steps", o.Steps,
		"patience", o.Patience,
	)

	start := time.Now()
	var out outcome
	for i := 0; i < o.Steps; i++ {
		res, err := sess.Step()
		if err != nil {
			return out, fmt.Errorf("generation %d: %w", i+1, err)
		}
		out.Generations = res.Generation
		out.Best = res.Best

		if tw != nil {
			entry := store.TraceEntry{
				Generation: res.Generation,
				Defined:    sess.Status().Defined,
				Improved:   res.Improved,
				Timestamp:  time.Now(),
			}
			if res.Best != nil {
				entry.BestFitness = res.Best.Fitness
				entry.BestPosition = res.Best.Position
			}
			if err := tw.Write(entry); err != nil {
				return out, fmt.Errorf("failed to write trace: %w", err)
			}
		}

		if o.LogEvery > 0 && res.Generation%o.LogEvery == 0 && res.Best != nil {
			slog.Info("Progress", "generation", res.Generation, "best_fitness", res.Best.Fitness)
		}

		if res.Stalled {
			out.Stalled = true
			break
		}
	}
	out.Elapsed = time.Since(start)

	slog.Info("Run complete",
		"run_id", runID,
		"generations", out.Generations,
		"stalled", out.Stalled,
		"elapsed", out.Elapsed,
	)
	return out, nil
}

// finish writes the plot and the run record. previous, when set, is the
// record being resumed; it is only replaced by a better result.
func finish(sess *session.Session, scene *render.Scene, runID string, res outcome, o runOptions, previous *store.Run) error {
	if o.PlotPath != "" {
		if err := writePlot(sess, scene, o.PlotPath); err != nil {
			return err
		}
		slog.Info("Plot written", "path", o.PlotPath)
	}

	if o.DataDir == "" || res.Best == nil {
		return nil
	}

	fs, err := store.NewFSStore(o.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	generation := res.Generations
	if previous != nil {
		generation += previous.Generation
		if len(previous.BestPosition) > 0 && previous.BestFitness <= res.Best.Fitness {
			slog.Info("Keeping previous best", "run_id", runID, "best_fitness", previous.BestFitness)
			previous.Generation = generation
			return fs.SaveRun(runID, previous)
		}
	}

	run := store.NewRun(runID, store.Setup{
		Expression: sess.Expression().String(),
		Algorithm:  sess.Algorithm(),
		Params:     sess.RawParams(),
		Seed:       o.Seed,
	}, generation, res.Best.Position, res.Best.Fitness)
	return fs.SaveRun(runID, run)
}

func writePlot(sess *session.Session, scene *render.Scene, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create plot: %w", err)
	}
	defer f.Close()

	opts := render.DefaultPlotOptions()
	opts.Lower, opts.Upper = sess.Bounds()
	if err := scene.WritePNG(f, opts); err != nil {
		return fmt.Errorf("failed to write plot: %w", err)
	}
	return nil
}

// explainInvalid lists why a session cannot step.
func explainInvalid(sess *session.Session) error {
	st := sess.Status()

	var problems []string
	if !st.ExpressionValid {
		msg := fmt.Sprintf("expression %q", st.Expression)
		if st.ExpressionError != "" {
			msg += ": " + st.ExpressionError
		}
		problems = append(problems, msg)
	}
	for _, f := range st.Fields {
		if !f.Valid {
			problems = append(problems, fmt.Sprintf("%s=%q", f.Name, f.Raw))
		}
	}
	if !st.BoundsOrdered {
		problems = append(problems, "lower bound exceeds upper bound")
	}
	return fmt.Errorf("%w: %s", session.ErrParametersInvalid, strings.Join(problems, "; "))
}

func printResult(w io.Writer, sess *session.Session, runID string, res outcome, o runOptions) {
	if res.Best == nil {
		fmt.Fprintf(w, "No defined point found in %d generations\n", res.Generations)
		return
	}

	coords := make([]string, len(res.Best.Position))
	names := []string{"x", "y"}
	for i, v := range res.Best.Position {
		coords[i] = fmt.Sprintf("%s=%.6g", names[i], v)
	}

	suffix := ""
	if res.Stalled {
		suffix = ", stalled"
	}
	fmt.Fprintf(w, "%s: f(%s) = %.6g after %d generations (%s%s)\n",
		opt.Label(sess.Algorithm()),
		strings.Join(coords, ", "),
		res.Best.Fitness,
		res.Generations,
		res.Elapsed.Round(time.Millisecond),
		suffix,
	)
	if o.DataDir != "" {
		fmt.Fprintf(w, "Run ID: %s\n", runID)
	}
}
