package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/grovelabs/stepflow"
)

const jsonDefinition = `{
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

const yamlDefinition = `
id: pipeline
name: Analysis Pipeline
steps:
  - id: extract
    tool: extract_functions
  - id: score
    tool: check_complexity
  - id: report
    description: placeholder
edges:
  - [extract, score]
  - [score, report]
exits:
  - report
`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}

func TestLoadGraph_JSON(t *testing.T) {
	path := writeTemp(t, "pipeline.json", jsonDefinition)

	g, err := LoadGraph(path, nil)
	if err != nil {
		t.Fatalf("LoadGraph() error = %v", err)
	}

	if g.ID() != "pipeline" {
		t.Errorf("ID() = %v, want pipeline", g.ID())
	}
	if g.Name() != "Analysis Pipeline" {
		t.Errorf("Name() = %v, want Analysis Pipeline", g.Name())
	}
	if g.StepCount() != 3 {
		t.Errorf("StepCount() = %v, want 3", g.StepCount())
	}
	if g.Entry() != "extract" {
		t.Errorf("Entry() = %v, want extract (first declared step)", g.Entry())
	}
	if !g.IsExit("report") {
		t.Error("report should be an exit step")
	}
}

func TestLoadGraph_YAML(t *testing.T) {
	path := writeTemp(t, "pipeline.yaml", yamlDefinition)

	g, err := LoadGraph(path, nil)
	if err != nil {
		t.Fatalf("LoadGraph() error = %v", err)
	}
	if g.StepCount() != 3 {
		t.Errorf("StepCount() = %v, want 3", g.StepCount())
	}
	if succ := g.Successors("extract"); len(succ) != 1 || succ[0] != "score" {
		t.Errorf("Successors(extract) = %v, want [score]", succ)
	}
}

func TestLoadGraph_MissingFile(t *testing.T) {
	_, err := LoadGraph(filepath.Join(t.TempDir(), "ghost.json"), nil)

	if err == nil {
		t.Error("LoadGraph() should fail for a missing file")
	}
	if IsValidationError(err) {
		t.Error("missing file is not a validation error")
	}
}

func TestLoadGraph_MalformedJSON(t *testing.T) {
	path := writeTemp(t, "broken.json", "{not json")

	_, err := LoadGraph(path, nil)
	if err == nil {
		t.Error("LoadGraph() should fail for malformed JSON")
	}
}

func TestLoadGraph_UnknownTool(t *testing.T) {
	path := writeTemp(t, "bad-tool.json", `{
		"id": "g",
		"steps": [{"id": "a", "tool": "nonexistent"}],
		"edges": []
	}`)

	_, err := LoadGraph(path, nil)

	var de *DiagnosticError
	if !errors.As(err, &de) {
		t.Fatalf("LoadGraph() error = %v, want DiagnosticError", err)
	}
	if !IsValidationError(err) {
		t.Error("IsValidationError() = false, want true")
	}
}

func TestLoadGraph_NoSteps(t *testing.T) {
	path := writeTemp(t, "empty.json", `{"id": "g", "steps": [], "edges": []}`)

	_, err := LoadGraph(path, nil)
	if !IsValidationError(err) {
		t.Errorf("LoadGraph() error = %v, want validation error", err)
	}
}

func TestLoadGraph_BadEdgeShape(t *testing.T) {
	path := writeTemp(t, "bad-edge.json", `{
		"id": "g",
		"steps": [{"id": "a"}],
		"edges": [["a"]]
	}`)

	_, err := LoadGraph(path, nil)
	if !IsValidationError(err) {
		t.Errorf("LoadGraph() error = %v, want validation error", err)
	}
}

func TestBuild_ExplicitEntry(t *testing.T) {
	spec := &GraphSpec{
		ID: "g",
		Steps: []StepSpec{
			{ID: "a"},
			{ID: "b"},
		},
		Entry: "b",
	}

	g, err := Build(spec, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if g.Entry() != "b" {
		t.Errorf("Entry() = %v, want b", g.Entry())
	}
}

func TestLoadedGraph_Runs(t *testing.T) {
	path := writeTemp(t, "pipeline.yaml", yamlDefinition)

	g, err := LoadGraph(path, nil)
	if err != nil {
		t.Fatalf("LoadGraph() error = %v", err)
	}

	x := stepflow.NewExecutor(nil)
	result, err := x.Run(context.Background(), g, map[string]any{
		"code": "func main() {\n}\n",
	}, stepflow.DefaultRunOptions())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Iterations != 3 {
		t.Errorf("Iterations = %v, want 3", result.Iterations)
	}
	if result.FinalState["function_count"] != 1 {
		t.Errorf("function_count = %v, want 1 (tool output merged into state)", result.FinalState["function_count"])
	}
}
