// Package loader reads workflow definition files and compiles them into
// executable graphs. Definitions may be JSON or YAML; YAML is converted to
// JSON first so both formats share one decoding path.
package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/grovelabs/stepflow"
	"github.com/grovelabs/stepflow/tools"
)

// GraphSpec is the on-disk shape of a workflow definition.
type GraphSpec struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Steps []StepSpec `json:"steps"`
	Edges [][]string `json:"edges"`
	Entry string     `json:"entry,omitempty"`
	Exits []string   `json:"exits,omitempty"`
}

// StepSpec declares one step. A step may bind a named tool from the
// registry; without one it becomes a no-op placeholder.
type StepSpec struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
	Tool        string `json:"tool,omitempty"`
}

// DiagnosticError aggregates the validation problems found in a definition.
type DiagnosticError struct {
	Problems []string
}

func (e *DiagnosticError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("validation error: %s", e.Problems[0])
	}
	return fmt.Sprintf("%d validation errors (first: %s)", len(e.Problems), e.Problems[0])
}

// LoadGraph reads a definition file and compiles it into a graph. Steps that
// name a tool are bound against reg; a nil reg binds against tools.Default().
func LoadGraph(path string, reg *tools.Registry) (*stepflow.Graph, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path from caller
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}

	spec, err := Parse(data, path)
	if err != nil {
		return nil, err
	}
	return Build(spec, reg)
}

// Parse decodes a definition from raw bytes. YAML is detected by the file
// extension of origin (empty origin means JSON).
func Parse(data []byte, origin string) (*GraphSpec, error) {
	jsonData := data
	if isYAML(origin) {
		converted, err := yamlToJSON(data)
		if err != nil {
			return nil, err
		}
		jsonData = converted
	}

	var spec GraphSpec
	if err := json.Unmarshal(jsonData, &spec); err != nil {
		return nil, fmt.Errorf("parsing graph definition: %w", err)
	}
	return &spec, nil
}

// Build validates a spec and compiles it into an executable graph.
func Build(spec *GraphSpec, reg *tools.Registry) (*stepflow.Graph, error) {
	if reg == nil {
		reg = tools.Default()
	}

	if problems := validate(spec, reg); len(problems) > 0 {
		return nil, &DiagnosticError{Problems: problems}
	}

	g := stepflow.NewGraph(spec.ID, spec.Name)
	for _, s := range spec.Steps {
		if err := g.AddStep(s.ID, handlerFor(s, reg), s.Description); err != nil {
			return nil, err
		}
	}
	for _, e := range spec.Edges {
		if err := g.AddEdge(e[0], e[1]); err != nil {
			return nil, err
		}
	}
	if spec.Entry != "" {
		if err := g.SetEntry(spec.Entry); err != nil {
			return nil, err
		}
	}
	if len(spec.Exits) > 0 {
		if err := g.SetExits(spec.Exits...); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func validate(spec *GraphSpec, reg *tools.Registry) []string {
	var problems []string
	if len(spec.Steps) == 0 {
		problems = append(problems, "definition declares no steps")
	}
	for i, s := range spec.Steps {
		if s.ID == "" {
			problems = append(problems, fmt.Sprintf("step %d has no id", i))
		}
		if s.Tool != "" {
			if _, err := reg.Get(s.Tool); err != nil {
				problems = append(problems, fmt.Sprintf("step %q: unknown tool %q", s.ID, s.Tool))
			}
		}
	}
	for i, e := range spec.Edges {
		if len(e) != 2 {
			problems = append(problems, fmt.Sprintf("edge %d must be a [from, to] pair", i))
		}
	}
	return problems
}

// handlerFor binds a step to its tool. Tool steps feed the state's "code"
// var to the tool and merge the tool's output back into the state.
func handlerFor(s StepSpec, reg *tools.Registry) stepflow.Handler {
	if s.Tool == "" {
		return stepflow.NoopHandler()
	}
	tool := s.Tool
	return stepflow.HandlerFunc(func(_ context.Context, st *stepflow.State) (stepflow.Delta, error) {
		out, err := reg.Call(tool, st.Snapshot())
		if err != nil {
			return stepflow.Delta{}, err
		}
		return stepflow.Delta{Vars: out}, nil
	})
}

// IsValidationError reports whether err is a definition validation failure,
// as opposed to an I/O or syntax problem.
func IsValidationError(err error) bool {
	var de *DiagnosticError
	return errors.As(err, &de)
}

// isYAML returns true if the file path has a YAML extension.
func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// yamlToJSON converts raw bytes from YAML format to JSON bytes.
// YAML -> map[string]any -> JSON bytes -> typed struct.
func yamlToJSON(data []byte) ([]byte, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	return json.Marshal(raw)
}
