package tools

import (
	"strings"
	"testing"
)

func TestDetectSmells_CleanCode(t *testing.T) {
	issues := DetectSmells("func add(a, b int) int {\n\treturn a + b\n}")

	if len(issues) != 0 {
		t.Errorf("issues = %v, want none for clean code", issues)
	}
}

func TestDetectSmells_LongFunction(t *testing.T) {
	code := strings.Repeat("x := 1\n", 60)

	issues := DetectSmells(code)

	if !hasIssue(issues, "long_function") {
		t.Errorf("issues = %v, want long_function", issues)
	}
}

func TestDetectSmells_HighNesting(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 6; i++ {
		b.WriteString("if x {\n")
	}

	issues := DetectSmells(b.String())

	if !hasIssue(issues, "high_nesting") {
		t.Errorf("issues = %v, want high_nesting", issues)
	}
	for _, issue := range issues {
		if issue.Type == "high_nesting" && issue.Severity != "high" {
			t.Errorf("high_nesting severity = %v, want high", issue.Severity)
		}
	}
}

func TestDetectSmells_MagicNumbers(t *testing.T) {
	code := "a := 100\nb := 200\nc := 300\nd := 400\ne := 500\nf := 600\n"

	issues := DetectSmells(code)

	if !hasIssue(issues, "magic_numbers") {
		t.Errorf("issues = %v, want magic_numbers", issues)
	}
}

func TestDetectSmells_TodoMarkers(t *testing.T) {
	issues := DetectSmells("// TODO: clean this up\n// FIXME broken\n")

	if !hasIssue(issues, "todo_comments") {
		t.Errorf("issues = %v, want todo_comments", issues)
	}
}

func TestCheckComplexity_Simple(t *testing.T) {
	c := CheckComplexity("x := 1\ny := 2\n\nz := x + y")

	if c.Complexity != 1 {
		t.Errorf("Complexity = %v, want base 1", c.Complexity)
	}
	if c.LinesOfCode != 3 {
		t.Errorf("LinesOfCode = %v, want 3 (empty lines excluded)", c.LinesOfCode)
	}
	if c.TotalLines != 4 {
		t.Errorf("TotalLines = %v, want 4", c.TotalLines)
	}
	if c.QualityScore != 98 {
		t.Errorf("QualityScore = %v, want 98", c.QualityScore)
	}
}

func TestCheckComplexity_ScoreFloorsAtZero(t *testing.T) {
	code := strings.Repeat("if a { for b { while } }\n", 30)

	c := CheckComplexity(code)

	if c.QualityScore != 0 {
		t.Errorf("QualityScore = %v, want floor of 0", c.QualityScore)
	}
}

func TestExtractFunctions_GoAndPython(t *testing.T) {
	code := "func alpha() {\n\treturn\n}\n\ndef beta(x):\n    pass\n"

	functions := ExtractFunctions(code)

	if len(functions) != 2 {
		t.Fatalf("len(functions) = %v, want 2", len(functions))
	}
	if functions[0].Name != "alpha" || functions[1].Name != "beta" {
		t.Errorf("names = [%s %s], want [alpha beta]", functions[0].Name, functions[1].Name)
	}
	if functions[0].LineCount == 0 {
		t.Error("LineCount should be positive")
	}
	if !strings.HasPrefix(functions[1].Code, "def beta") {
		t.Errorf("second body = %q, should start at its definition", functions[1].Code)
	}
}

func TestExtractFunctions_None(t *testing.T) {
	functions := ExtractFunctions("x := 1")

	if len(functions) != 0 {
		t.Errorf("functions = %v, want none", functions)
	}
}

func TestSuggestImprovements_FromIssues(t *testing.T) {
	issues := []Issue{
		{Type: "long_function", Severity: "medium"},
		{Type: "high_nesting", Severity: "high"},
		{Type: "magic_numbers", Severity: "low"},
		{Type: "todo_comments", Severity: "low"}, // no dedicated suggestion
	}

	suggestions := SuggestImprovements(issues, 5, 90)

	if len(suggestions) != 3 {
		t.Fatalf("len(suggestions) = %v, want 3", len(suggestions))
	}
	if suggestions[1].Priority != "high" {
		t.Errorf("nesting suggestion priority = %v, want high", suggestions[1].Priority)
	}
}

func TestSuggestImprovements_ComplexityAndQuality(t *testing.T) {
	suggestions := SuggestImprovements(nil, 25, 40)

	// One for complexity above the ceiling, one for the low quality score.
	if len(suggestions) != 2 {
		t.Fatalf("suggestions = %v, want 2", suggestions)
	}
	for _, s := range suggestions {
		if s.Priority != "high" {
			t.Errorf("priority = %v, want high", s.Priority)
		}
	}
}

func TestSuggestImprovements_NothingToSay(t *testing.T) {
	suggestions := SuggestImprovements(nil, 3, 94)

	if len(suggestions) != 0 {
		t.Errorf("suggestions = %v, want none", suggestions)
	}
}

func hasIssue(issues []Issue, typ string) bool {
	for _, issue := range issues {
		if issue.Type == typ {
			return true
		}
	}
	return false
}
