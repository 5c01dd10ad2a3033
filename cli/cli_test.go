package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

// newTestRoot creates a fresh cobra root command wired to all subcommands.
// Each test gets an isolated command tree to avoid shared state.
func newTestRoot() *cobra.Command {
	root := &cobra.Command{
		Use:          "stepflow",
		SilenceUsage: true,
	}
	root.AddCommand(NewRunCmd())
	root.AddCommand(NewValidateCmd())
	root.AddCommand(NewToolsCmd())
	return root
}

// executeCommand runs a cobra command with the given args and captures stdout/stderr.
func executeCommand(root *cobra.Command, args ...string) (stdout, stderr string, err error) {
	var outBuf, errBuf bytes.Buffer
	root.SetOut(&outBuf)
	root.SetErr(&errBuf)
	root.SetArgs(args)
	err = root.Execute()
	return outBuf.String(), errBuf.String(), err
}

// writeTestFile creates a temporary file with the given content and returns its path.
func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validPipelineJSON = `{
  "id": "pipeline",
  "name": "Analysis Pipeline",
  "steps": [
    {"id": "extract", "tool": "extract_functions"},
    {"id": "score", "tool": "check_complexity"},
    {"id": "report", "description": "placeholder"}
  ],
  "edges": [["extract", "score"], ["score", "report"]],
  "exits": ["report"]
}`

const invalidPipelineJSON = `{
  "id": "bad",
  "steps": [
    {"id": "a", "tool": "nonexistent"},
    {"id": ""}
  ],
  "edges": [["a"]]
}`

// --- Validate command tests ---

func TestValidate_ValidFile(t *testing.T) {
	path := writeTestFile(t, "pipeline.json", validPipelineJSON)
	root := newTestRoot()
	stdout, _, err := executeCommand(root, "validate", path)
	if err != nil {
		t.Fatalf("validate error = %v", err)
	}
	if !strings.Contains(stdout, "Valid!") {
		t.Errorf("stdout = %q, want Valid!", stdout)
	}
	if !strings.Contains(stdout, "3 steps") {
		t.Errorf("stdout = %q, want step count", stdout)
	}
}

func TestValidate_InvalidFile(t *testing.T) {
	path := writeTestFile(t, "bad.json", invalidPipelineJSON)
	root := newTestRoot()
	stdout, _, err := executeCommand(root, "validate", path)

	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != exitValidation {
		t.Fatalf("validate error = %v, want ExitError with code %d", err, exitValidation)
	}
	if !strings.Contains(stdout, "ERROR:") {
		t.Errorf("stdout = %q, want problem listing", stdout)
	}
	if !strings.Contains(stdout, "unknown tool") {
		t.Errorf("stdout = %q, want unknown tool problem", stdout)
	}
}

func TestValidate_MissingFile(t *testing.T) {
	root := newTestRoot()
	_, _, err := executeCommand(root, "validate", filepath.Join(t.TempDir(), "ghost.json"))

	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != exitFileNotFound {
		t.Fatalf("validate error = %v, want ExitError with code %d", err, exitFileNotFound)
	}
}

func TestValidate_JSONFormat(t *testing.T) {
	path := writeTestFile(t, "bad.json", invalidPipelineJSON)
	root := newTestRoot()
	stdout, _, _ := executeCommand(root, "validate", path, "--format", "json")

	var report validateReport
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("unmarshal report: %v (stdout: %s)", err, stdout)
	}
	if report.Valid {
		t.Error("report.Valid = true, want false")
	}
	if len(report.Problems) == 0 {
		t.Error("report should list problems")
	}
}

// --- Run command tests ---

func TestRun_Success(t *testing.T) {
	path := writeTestFile(t, "pipeline.json", validPipelineJSON)
	root := newTestRoot()
	stdout, _, err := executeCommand(root, "run", path,
		"--input", `{"code": "func main() {\n}\n"}`,
		"--format", "json")
	if err != nil {
		t.Fatalf("run error = %v", err)
	}

	var result struct {
		RunID      string         `json:"RunID"`
		FinalState map[string]any `json:"FinalState"`
		Iterations int            `json:"Iterations"`
	}
	if err := json.Unmarshal([]byte(stdout), &result); err != nil {
		t.Fatalf("unmarshal result: %v (stdout: %s)", err, stdout)
	}
	if result.Iterations != 3 {
		t.Errorf("Iterations = %d, want 3", result.Iterations)
	}
	if result.FinalState["function_count"] != float64(1) {
		t.Errorf("function_count = %v, want 1", result.FinalState["function_count"])
	}
}

func TestRun_PrettyFormat(t *testing.T) {
	path := writeTestFile(t, "pipeline.json", validPipelineJSON)
	root := newTestRoot()
	stdout, _, err := executeCommand(root, "run", path, "--input", `{"code": "x := 1"}`)
	if err != nil {
		t.Fatalf("run error = %v", err)
	}
	for _, want := range []string{"=== Final State ===", "=== Steps (3) ===", "Run ID:"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}
}

func TestRun_DryRun(t *testing.T) {
	path := writeTestFile(t, "pipeline.json", validPipelineJSON)
	root := newTestRoot()
	stdout, _, err := executeCommand(root, "run", path, "--dry-run")
	if err != nil {
		t.Fatalf("run --dry-run error = %v", err)
	}
	if !strings.Contains(stdout, "successful") {
		t.Errorf("stdout = %q, want compilation confirmation", stdout)
	}
}

func TestRun_MissingFile(t *testing.T) {
	root := newTestRoot()
	_, _, err := executeCommand(root, "run", filepath.Join(t.TempDir(), "ghost.json"))

	// The loader wraps the os error, so classification must unwrap it.
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != exitFileNotFound {
		t.Fatalf("run error = %v, want ExitError with code %d", err, exitFileNotFound)
	}
	if !strings.Contains(exitErr.Message, "file not found") {
		t.Errorf("message = %q, want file not found", exitErr.Message)
	}
}

func TestRun_InvalidFileIsValidationError(t *testing.T) {
	path := writeTestFile(t, "bad.json", invalidPipelineJSON)
	root := newTestRoot()
	_, stderr, err := executeCommand(root, "run", path)

	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != exitValidation {
		t.Fatalf("run error = %v, want ExitError with code %d", err, exitValidation)
	}
	if !strings.Contains(stderr, "ERROR:") {
		t.Errorf("stderr = %q, want problem listing", stderr)
	}
}

func TestRun_BadInputJSON(t *testing.T) {
	path := writeTestFile(t, "pipeline.json", validPipelineJSON)
	root := newTestRoot()
	_, _, err := executeCommand(root, "run", path, "--input", "{not json")

	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != exitInputParse {
		t.Fatalf("run error = %v, want ExitError with code %d", err, exitInputParse)
	}
}

func TestRun_ConflictingInputFlags(t *testing.T) {
	path := writeTestFile(t, "pipeline.json", validPipelineJSON)
	root := newTestRoot()
	_, _, err := executeCommand(root, "run", path, "--input", "{}", "--input-file", "also.json")

	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != exitInputParse {
		t.Fatalf("run error = %v, want ExitError with code %d", err, exitInputParse)
	}
}

func TestRun_OutputFile(t *testing.T) {
	path := writeTestFile(t, "pipeline.json", validPipelineJSON)
	outPath := filepath.Join(t.TempDir(), "result.json")
	root := newTestRoot()
	_, _, err := executeCommand(root, "run", path,
		"--input", `{"code": "x := 1"}`,
		"--format", "json",
		"--output", outPath)
	if err != nil {
		t.Fatalf("run error = %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("reading output file: %v", err)
	}
	if !strings.Contains(string(data), "RunID") {
		t.Errorf("output file = %q, want serialized result", string(data))
	}
}

func TestRun_StreamPrintsEvents(t *testing.T) {
	path := writeTestFile(t, "pipeline.json", validPipelineJSON)
	root := newTestRoot()
	_, stderr, err := executeCommand(root, "run", path, "--input", `{"code": "x := 1"}`, "--stream")
	if err != nil {
		t.Fatalf("run error = %v", err)
	}
	if !strings.Contains(stderr, "extract...") {
		t.Errorf("stderr = %q, want step progress lines", stderr)
	}
	if !strings.Contains(stderr, "completed") {
		t.Errorf("stderr = %q, want run status line", stderr)
	}
}

// --- Tools command tests ---

func TestTools_Text(t *testing.T) {
	root := newTestRoot()
	stdout, _, err := executeCommand(root, "tools")
	if err != nil {
		t.Fatalf("tools error = %v", err)
	}
	for _, want := range []string{"check_complexity", "detect_smells", "extract_functions", "suggest_improvements"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}
}

func TestTools_JSON(t *testing.T) {
	root := newTestRoot()
	stdout, _, err := executeCommand(root, "tools", "--format", "json")
	if err != nil {
		t.Fatalf("tools error = %v", err)
	}

	var infos []map[string]string
	if err := json.Unmarshal([]byte(stdout), &infos); err != nil {
		t.Fatalf("unmarshal: %v (stdout: %s)", err, stdout)
	}
	if len(infos) != 4 {
		t.Errorf("got %d tools, want 4", len(infos))
	}
}
