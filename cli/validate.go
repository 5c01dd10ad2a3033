package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/grovelabs/stepflow/loader"
)

// NewValidateCmd creates the "validate" subcommand.
func NewValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a workflow definition without executing",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}

	cmd.Flags().String("format", "text", "Output format: text | json")

	return cmd
}

type validateReport struct {
	Valid     bool     `json:"valid"`
	Problems  []string `json:"problems"`
	StepCount int      `json:"step_count,omitempty"`
	EdgeCount int      `json:"edge_count,omitempty"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	filePath := args[0]
	format, _ := cmd.Flags().GetString("format")
	out := cmd.OutOrStdout()

	data, err := os.ReadFile(filePath) // #nosec G304 -- path from user CLI flag
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return exitError(exitFileNotFound, "file not found: %s", filePath)
		}
		return fmt.Errorf("reading file: %w", err)
	}

	report := validateReport{Valid: true, Problems: []string{}}

	spec, err := loader.Parse(data, filePath)
	if err != nil {
		report.Valid = false
		report.Problems = append(report.Problems, err.Error())
	} else if g, buildErr := loader.Build(spec, nil); buildErr != nil {
		report.Valid = false
		var de *loader.DiagnosticError
		if errors.As(buildErr, &de) {
			report.Problems = append(report.Problems, de.Problems...)
		} else {
			report.Problems = append(report.Problems, buildErr.Error())
		}
	} else {
		report.StepCount = g.StepCount()
		report.EdgeCount = g.EdgeCount()
	}

	printValidateReport(out, report, format)

	if !report.Valid {
		return exitError(exitValidation, "validation failed")
	}
	return nil
}

func printValidateReport(w io.Writer, report validateReport, format string) {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
		return
	}

	for _, problem := range report.Problems {
		fmt.Fprintf(w, "ERROR: %s\n", problem)
	}
	if report.Valid {
		fmt.Fprintf(w, "Valid! (%d %s, %d %s)\n",
			report.StepCount, pluralize("step", report.StepCount),
			report.EdgeCount, pluralize("edge", report.EdgeCount))
		return
	}
	fmt.Fprintf(w, "\n%d %s\n", len(report.Problems), pluralize("error", len(report.Problems)))
}

// printProblems writes the problems of a loader validation failure.
func printProblems(w io.Writer, err error) {
	var de *loader.DiagnosticError
	if !errors.As(err, &de) {
		fmt.Fprintf(w, "ERROR: %v\n", err)
		return
	}
	for _, problem := range de.Problems {
		fmt.Fprintf(w, "ERROR: %s\n", problem)
	}
}

// pluralize returns the singular or plural form of a word based on count.
func pluralize(word string, count int) string {
	if count == 1 {
		return word
	}
	return word + "s"
}
