package tools

import (
	"fmt"
	"regexp"
	"strings"
)

// Smell thresholds. Tuned for small review snippets rather than whole files.
const (
	longFunctionLines = 50
	maxNestingDepth   = 4
	magicNumberBudget = 5
	complexityCeiling = 20
	lowQualityCutoff  = 50.0
)

// Issue is one detected code smell.
type Issue struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// Complexity holds the metrics computed for a source snippet.
type Complexity struct {
	Complexity   int     `json:"complexity"`
	LinesOfCode  int     `json:"lines_of_code"`
	TotalLines   int     `json:"total_lines"`
	QualityScore float64 `json:"quality_score"`
}

// Function describes one extracted function definition.
type Function struct {
	Name      string `json:"name"`
	Code      string `json:"code"`
	LineCount int    `json:"line_count"`
}

// Suggestion is one actionable improvement derived from the analysis.
type Suggestion struct {
	Type       string `json:"type"`
	Priority   string `json:"priority"`
	Suggestion string `json:"suggestion"`
}

var (
	magicNumberRe = regexp.MustCompile(`\b\d{3,}\b`)
	todoMarkerRe  = regexp.MustCompile(`(?i)(TODO|FIXME|XXX|HACK)`)
	// Matches both Go and Python style definitions.
	functionDefRe = regexp.MustCompile(`(?m)^\s*(?:func|def)\s+(\w+)\s*\(`)
	nestingOpenRe = regexp.MustCompile(`\b(if|for|while)\b`)
)

// DetectSmells scans a source snippet for common smells: overlong bodies,
// deep nesting, magic numbers, and leftover TODO markers.
func DetectSmells(code string) []Issue {
	var issues []Issue
	lines := strings.Split(code, "\n")

	if len(lines) > longFunctionLines {
		issues = append(issues, Issue{
			Type:     "long_function",
			Severity: "medium",
			Message:  fmt.Sprintf("snippet is %d lines long; consider splitting it into smaller functions", len(lines)),
		})
	}

	maxNesting := 0
	nesting := 0
	for _, line := range lines {
		nesting += len(nestingOpenRe.FindAllString(line, -1))
		if nesting > maxNesting {
			maxNesting = nesting
		}
	}
	if maxNesting > maxNestingDepth {
		issues = append(issues, Issue{
			Type:     "high_nesting",
			Severity: "high",
			Message:  fmt.Sprintf("%d levels of nesting; extract helpers or use early returns", maxNesting),
		})
	}

	if magic := magicNumberRe.FindAllString(code, -1); len(magic) > magicNumberBudget {
		issues = append(issues, Issue{
			Type:     "magic_numbers",
			Severity: "low",
			Message:  fmt.Sprintf("found %d potential magic numbers; consider named constants", len(magic)),
		})
	}

	if todos := todoMarkerRe.FindAllString(code, -1); len(todos) > 0 {
		issues = append(issues, Issue{
			Type:     "todo_comments",
			Severity: "low",
			Message:  fmt.Sprintf("found %d TODO/FIXME markers", len(todos)),
		})
	}

	return issues
}

// CheckComplexity estimates cyclomatic complexity by counting decision
// keywords, then maps it onto a 0-100 quality score where higher is better.
func CheckComplexity(code string) Complexity {
	lines := strings.Split(code, "\n")
	nonEmpty := 0
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			nonEmpty++
		}
	}

	keywords := []string{"if", "elif", "else", "for", "while", "except", "case", "&&", "||"}
	complexity := 1
	for _, line := range lines {
		for _, kw := range keywords {
			if strings.Contains(line, kw) {
				complexity++
			}
		}
	}

	score := 100.0 - float64(complexity)*2
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return Complexity{
		Complexity:   complexity,
		LinesOfCode:  nonEmpty,
		TotalLines:   len(lines),
		QualityScore: score,
	}
}

// ExtractFunctions lists the function definitions in a snippet. A function's
// body is taken to run until the next definition or the end of input.
func ExtractFunctions(code string) []Function {
	matches := functionDefRe.FindAllStringSubmatchIndex(code, -1)
	functions := make([]Function, 0, len(matches))

	for i, m := range matches {
		start := m[0]
		end := len(code)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		body := strings.TrimSpace(code[start:end])
		functions = append(functions, Function{
			Name:      code[m[2]:m[3]],
			Code:      body,
			LineCount: len(strings.Split(body, "\n")),
		})
	}
	return functions
}

// SuggestImprovements turns detected issues and metrics into prioritized,
// actionable suggestions.
func SuggestImprovements(issues []Issue, complexity int, qualityScore float64) []Suggestion {
	var suggestions []Suggestion

	for _, issue := range issues {
		switch issue.Type {
		case "long_function":
			suggestions = append(suggestions, Suggestion{
				Type:       "refactor",
				Priority:   "medium",
				Suggestion: "split the function into smaller ones, each doing one thing",
			})
		case "high_nesting":
			suggestions = append(suggestions, Suggestion{
				Type:       "refactor",
				Priority:   "high",
				Suggestion: "flatten nested conditionals with guard clauses or extracted helpers",
			})
		case "magic_numbers":
			suggestions = append(suggestions, Suggestion{
				Type:       "refactor",
				Priority:   "low",
				Suggestion: "replace hardcoded numbers with named constants",
			})
		}
	}

	if complexity > complexityCeiling {
		suggestions = append(suggestions, Suggestion{
			Type:       "refactor",
			Priority:   "high",
			Suggestion: fmt.Sprintf("complexity is %d; break the logic into smaller pieces", complexity),
		})
	}

	if qualityScore < lowQualityCutoff {
		suggestions = append(suggestions, Suggestion{
			Type:       "general",
			Priority:   "high",
			Suggestion: "overall quality is low; focus on simplifying logic and reducing nesting",
		})
	}

	return suggestions
}

// Tool adapters: map-in, map-out wrappers so the analysis functions can be
// registered and called by name.

func detectSmellsTool(args map[string]any) (map[string]any, error) {
	code, _ := args["code"].(string)
	issues := DetectSmells(code)
	return map[string]any{
		"issues":      issues,
		"issue_count": len(issues),
	}, nil
}

func checkComplexityTool(args map[string]any) (map[string]any, error) {
	code, _ := args["code"].(string)
	c := CheckComplexity(code)
	return map[string]any{
		"complexity":    c.Complexity,
		"lines_of_code": c.LinesOfCode,
		"total_lines":   c.TotalLines,
		"quality_score": c.QualityScore,
	}, nil
}

func extractFunctionsTool(args map[string]any) (map[string]any, error) {
	code, _ := args["code"].(string)
	functions := ExtractFunctions(code)
	return map[string]any{
		"functions":      functions,
		"function_count": len(functions),
	}, nil
}

func suggestImprovementsTool(args map[string]any) (map[string]any, error) {
	issues, _ := args["issues"].([]Issue)
	complexity, _ := args["complexity"].(int)
	score, _ := args["quality_score"].(float64)
	suggestions := SuggestImprovements(issues, complexity, score)
	return map[string]any{
		"suggestions":      suggestions,
		"suggestion_count": len(suggestions),
	}, nil
}
