package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/grovelabs/stepflow"
	"github.com/grovelabs/stepflow/loader"
)

// NewRunCmd creates the "run" subcommand.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Execute a workflow definition file",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}

	cmd.Flags().StringP("input", "i", "", "Initial state as inline JSON string")
	cmd.Flags().StringP("input-file", "f", "", "Initial state from a JSON file")
	cmd.Flags().StringP("output", "o", "", "Write result to file (default: stdout)")
	cmd.Flags().String("format", "pretty", "Output format: json | text | pretty")
	cmd.Flags().Duration("timeout", 5*time.Minute, "Execution timeout")
	cmd.Flags().Int("max-iterations", 0, "Iteration budget (default: engine default)")
	cmd.Flags().Bool("dry-run", false, "Compile and validate only, do not execute")
	cmd.Flags().Bool("stream", false, "Print run events to stderr as they happen")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	filePath := args[0]

	g, err := loadGraphForRun(cmd, filePath)
	if err != nil {
		return err
	}

	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "Validation and compilation successful.")
		return nil
	}

	initial, err := buildInitialState(cmd)
	if err != nil {
		return err
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	opts := stepflow.DefaultRunOptions()
	if maxIterations, _ := cmd.Flags().GetInt("max-iterations"); maxIterations > 0 {
		opts.MaxIterations = maxIterations
	}
	if streaming, _ := cmd.Flags().GetBool("stream"); streaming {
		opts.EventHandler = runStreamingEventHandler(cmd.ErrOrStderr())
	}

	result, err := stepflow.NewExecutor(nil).Run(ctx, g, initial, opts)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return exitError(exitTimeout, "execution timed out after %s", timeout)
		}
		return exitError(exitRuntime, "execution failed: %v", err)
	}

	return writeOutput(cmd, result)
}

func loadGraphForRun(cmd *cobra.Command, filePath string) (*stepflow.Graph, error) {
	g, err := loader.LoadGraph(filePath, nil)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, exitError(exitFileNotFound, "file not found: %s", filePath)
		}
		if loader.IsValidationError(err) {
			printProblems(cmd.ErrOrStderr(), err)
			return nil, exitError(exitValidation, "validation failed")
		}
		return nil, exitError(exitValidation, "%v", err)
	}
	return g, nil
}

// buildInitialState parses --input or --input-file into the run's seed vars.
func buildInitialState(cmd *cobra.Command) (map[string]any, error) {
	inputStr, _ := cmd.Flags().GetString("input")
	inputFile, _ := cmd.Flags().GetString("input-file")

	if inputStr != "" && inputFile != "" {
		return nil, exitError(exitInputParse, "cannot specify both --input and --input-file")
	}
	if inputStr == "" && inputFile == "" {
		return nil, nil
	}

	var data []byte
	if inputStr != "" {
		data = []byte(inputStr)
	} else {
		var err error
		data, err = os.ReadFile(inputFile) // #nosec G304 -- path from user CLI flag
		if err != nil {
			return nil, exitError(exitFileNotFound, "reading input file: %v", err)
		}
	}

	var vars map[string]any
	if err := json.Unmarshal(data, &vars); err != nil {
		return nil, exitError(exitInputParse, "parsing input JSON: %v", err)
	}
	return vars, nil
}

func runStreamingEventHandler(out io.Writer) stepflow.EventHandler {
	return func(e stepflow.Event) {
		switch e.Kind {
		case stepflow.EventStepStarted:
			fmt.Fprintf(out, "[%d] %s...\n", e.Iteration, e.StepID)
		case stepflow.EventStepFailed:
			fmt.Fprintf(out, "[%d] %s failed: %v\n", e.Iteration, e.StepID, e.Payload["error"])
		case stepflow.EventRunFinished:
			fmt.Fprintf(out, "run %s: %v\n", e.RunID, e.Payload["status"])
		}
	}
}

// writeOutput formats and writes the run result.
func writeOutput(cmd *cobra.Command, result *stepflow.Result) error {
	format, _ := cmd.Flags().GetString("format")
	outputPath, _ := cmd.Flags().GetString("output")

	var output string
	switch format {
	case "json":
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return exitError(exitRuntime, "marshaling output: %v", err)
		}
		output = string(data)
	case "text":
		// Just the final message, if the workflow produced one.
		if v, ok := result.FinalState["message"]; ok {
			output = fmt.Sprintf("%v", v)
		}
	case "pretty":
		output = formatPretty(result)
	default:
		return exitError(exitInputParse, "unknown format %q (use json, text, or pretty)", format)
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, []byte(output+"\n"), 0600); err != nil {
			return exitError(exitRuntime, "writing output file: %v", err)
		}
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), output)
	return nil
}

// formatPretty returns a human-readable summary of the run.
func formatPretty(result *stepflow.Result) string {
	var sb strings.Builder

	sb.WriteString("=== Final State ===\n")
	keys := make([]string, 0, len(result.FinalState))
	for k := range result.FinalState {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("  %s: %v\n", k, result.FinalState[k]))
	}

	if len(result.Log) > 0 {
		sb.WriteString(fmt.Sprintf("\n=== Steps (%d) ===\n", len(result.Log)))
		for _, entry := range result.Log {
			sb.WriteString(fmt.Sprintf("  [%s] %s: %s\n", entry.Status, entry.StepID, entry.Message))
		}
	}

	sb.WriteString("\n=== Run ===\n")
	sb.WriteString(fmt.Sprintf("  Run ID: %s\n", result.RunID))
	sb.WriteString(fmt.Sprintf("  Iterations: %d\n", result.Iterations))

	return sb.String()
}
