// Package tools provides the code analysis toolbox used by workflow steps,
// plus a registry that exposes the tools by name for discovery over the API.
package tools

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrToolNotFound indicates a lookup for an unregistered tool.
var ErrToolNotFound = errors.New("tool not found")

// Func is a registered tool: a named function over a map of arguments.
type Func func(args map[string]any) (map[string]any, error)

// Registry is a thread-safe name-to-tool map.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]registration
}

type registration struct {
	fn          Func
	description string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]registration)}
}

// Register adds a tool under the given name, replacing any previous entry.
func (r *Registry) Register(name, description string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = registration{fn: fn, description: description}
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Func, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrToolNotFound, name, r.namesLocked())
	}
	return reg.fn, nil
}

// Call invokes the tool registered under name with the given arguments.
func (r *Registry) Call(name string, args map[string]any) (map[string]any, error) {
	fn, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return fn(args)
}

// List returns name -> description for all registered tools, for discovery.
func (r *Registry) List() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.tools))
	for name, reg := range r.tools {
		out[name] = reg.description
	}
	return out
}

// Names returns registered tool names in deterministic order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default returns a registry preloaded with the code analysis tools.
func Default() *Registry {
	r := NewRegistry()
	r.Register("detect_smells", "Detect code smells: long functions, deep nesting, magic numbers, TODO markers", detectSmellsTool)
	r.Register("check_complexity", "Estimate cyclomatic complexity and derive a 0-100 quality score", checkComplexityTool)
	r.Register("extract_functions", "List the function definitions found in a source snippet", extractFunctionsTool)
	r.Register("suggest_improvements", "Turn detected issues and metrics into prioritized suggestions", suggestImprovementsTool)
	return r
}
