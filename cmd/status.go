package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/cwbudde/swarmviz/internal/server"
	"github.com/spf13/cobra"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [session-id]",
	Short: "Query server status or a specific session",
	Long: `Queries the server for session information.
If no session-id is provided, lists all sessions.
If session-id is provided, shows detailed status for that session.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return listSessions(os.Stdout, fmt.Sprintf("%s/api/v1/sessions", serverURL))
	}
	id := args[0]
	return getSessionStatus(os.Stdout, fmt.Sprintf("%s/api/v1/sessions/%s", serverURL, id), id)
}

func fetchJSON(url string, v interface{}) (int, error) {
	resp, err := http.Get(url)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("server returned error: %s", strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func listSessions(w io.Writer, url string) error {
	var views []server.SessionView
	if _, err := fetchJSON(url, &views); err != nil {
		return err
	}

	if len(views) == 0 {
		fmt.Fprintln(w, "No sessions found")
		return nil
	}

	fmt.Fprintf(w, "Found %d session(s):\n\n", len(views))
	for _, v := range views {
		fmt.Fprintf(w, "Session ID: %s\n", v.ID)
		fmt.Fprintf(w, "  Expression: %s\n", v.Expression)
		fmt.Fprintf(w, "  Algorithm: %s\n", v.AlgorithmLabel)
		fmt.Fprintf(w, "  Generation: %d\n", v.Generation)
		if v.Best != nil {
			fmt.Fprintf(w, "  Best: %.6g at %v\n", v.Best.Fitness, v.Best.Position)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func getSessionStatus(w io.Writer, url, id string) error {
	var v server.SessionView
	code, err := fetchJSON(url, &v)
	if code == http.StatusNotFound {
		return fmt.Errorf("session not found: %s", id)
	}
	if err != nil {
		return err
	}

	state := "idle"
	if v.Running {
		state = "running"
	}
	fmt.Fprintf(w, "Session: %s\n", v.ID)
	fmt.Fprintf(w, "State: %s\n", state)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Setup:")
	fmt.Fprintf(w, "  Expression: %s (dimension %d)\n", v.Expression, v.Dimension)
	if !v.ExpressionValid {
		fmt.Fprintf(w, "  Expression invalid: %s\n", v.ExpressionError)
	}
	fmt.Fprintf(w, "  Algorithm: %s\n", v.AlgorithmLabel)
	for _, f := range v.Fields {
		mark := ""
		if !f.Valid {
			mark = "  (invalid)"
		}
		fmt.Fprintf(w, "  %s: %s%s\n", f.Name, f.Raw, mark)
	}
	if !v.BoundsOrdered {
		fmt.Fprintln(w, "  Bounds: lower exceeds upper")
	}
	fmt.Fprintf(w, "  Ready: %v\n", v.ParametersValid)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Progress:")
	fmt.Fprintf(w, "  Generation: %d\n", v.Generation)
	if v.Best != nil {
		fmt.Fprintf(w, "  Best: %.6g at %v\n", v.Best.Fitness, v.Best.Position)
	}
	if v.Population > 0 {
		fmt.Fprintf(w, "  Population: %d (%d defined)\n", v.Population, v.Defined)
		fmt.Fprintf(w, "  Fitness: mean %.6g, sd %.6g\n", v.MeanFitness, v.FitnessStdDev)
	}
	if v.StaleGenerations > 0 {
		fmt.Fprintf(w, "  Generations without improvement: %d\n", v.StaleGenerations)
	}
	return nil
}
