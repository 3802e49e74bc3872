package advice

import (
	"strings"
	"testing"

	"github.com/dshills/fcdrag/internal/pack"
	"github.com/dshills/fcdrag/internal/transform"
)

func TestBuildPromptIncludesQuestionAndAnswer(t *testing.T) {
	q := pack.Question{ID: "Q1", QuestionText: "Is input validated?"}
	block := transform.Render("R_A", transform.RenderList, []any{
		map[string]any{"path": "a.go", "line": float64(1)},
	}, transform.SchemaKeys{PathKeys: []string{"path"}, LineKeys: []string{"line"}}, 0)

	prompt := BuildPrompt(BuildOpts{
		Question:            q,
		DeterministicAnswer: "VERDICT=TRUE_POSITIVE\nCITATIONS=a.go:1\n",
		EvidenceBlocks:      []transform.EvidenceBlock{block},
	})

	if !strings.Contains(prompt, "Is input validated?") {
		t.Error("expected the question text to be embedded")
	}
	if !strings.Contains(prompt, "VERDICT=TRUE_POSITIVE") {
		t.Error("expected the deterministic answer to be embedded")
	}
	if !strings.Contains(prompt, "a.go:1") {
		t.Error("expected the evidence block to be embedded")
	}
	if !strings.Contains(prompt, "Produce up to 5 numbered issues") {
		t.Error("expected the default max-issues template")
	}
}

func TestBuildPromptRespectsMaxIssues(t *testing.T) {
	prompt := BuildPrompt(BuildOpts{MaxIssues: 3})
	if !strings.Contains(prompt, "Produce up to 3 numbered issues") {
		t.Errorf("expected custom max issues in template, got:\n%s", prompt)
	}
}

func TestBuildRepairPromptEnumeratesProblems(t *testing.T) {
	repaired := BuildRepairPrompt("original prompt", []string{"issue 1: missing citations"})
	if !strings.Contains(repaired, "original prompt") {
		t.Error("expected the original prompt to be preserved")
	}
	if !strings.Contains(repaired, "issue 1: missing citations") {
		t.Error("expected the problem to be enumerated")
	}
}
