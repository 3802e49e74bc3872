package prompt

import (
	"strings"
	"testing"

	"github.com/dshills/fcdrag/internal/pack"
	"github.com/dshills/fcdrag/internal/transform"
)

func TestSelectModeAuto(t *testing.T) {
	if SelectMode("auto", 0) != ModeGrounding {
		t.Error("expected grounding mode when auto and no evidence blocks")
	}
	if SelectMode("auto", 1) != ModeQuoteBypass {
		t.Error("expected quote-bypass mode when auto and at least one evidence block")
	}
}

func TestSelectModeForced(t *testing.T) {
	if SelectMode("on", 0) != ModeQuoteBypass {
		t.Error("expected quote-bypass mode when forced on, regardless of evidence")
	}
	if SelectMode("off", 5) != ModeGrounding {
		t.Error("expected grounding mode when forced off, regardless of evidence")
	}
}

func TestBuildIncludesContractAndQuestion(t *testing.T) {
	contract := pack.ResponseContract{
		RequiredHeaders: []string{"VERDICT=", "CITATIONS="},
		VerdictEnum:     []string{"TRUE_POSITIVE", "FALSE_POSITIVE"},
	}
	block := transform.Render("R_META_1", transform.RenderList, []any{
		map[string]any{"path": "src/a.rs", "line": float64(10), "snippet": "fn a()"},
	}, transform.SchemaKeys{PathKeys: []string{"path"}, LineKeys: []string{"line"}, SnippetKeys: []string{"snippet"}}, 0)

	prompt := Build(BuildOpts{
		Mode:           ModeQuoteBypass,
		Contract:       contract,
		QuestionText:   "Is this a real vulnerability?",
		EvidenceBlocks: []transform.EvidenceBlock{block},
	})

	if !strings.Contains(prompt, "Is this a real vulnerability?") {
		t.Error("expected the question text to be embedded")
	}
	if !strings.Contains(prompt, "VERDICT=, CITATIONS=") {
		t.Error("expected required headers to be listed")
	}
	if !strings.Contains(prompt, "src/a.rs:10") {
		t.Error("expected a citable token derived from the evidence block")
	}
	if !strings.Contains(prompt, quoteBypassSystemPrompt) {
		t.Error("expected the quote-bypass system prompt to be used")
	}
}

func TestBuildUsesGroundingPromptByMode(t *testing.T) {
	prompt := Build(BuildOpts{Mode: ModeGrounding, QuestionText: "q"})
	if !strings.Contains(prompt, groundingSystemPrompt) {
		t.Error("expected the grounding system prompt to be used")
	}
}

func TestBuildSystemPromptOverride(t *testing.T) {
	prompt := Build(BuildOpts{Mode: ModeGrounding, SystemPromptOverride: "Custom instructions."})
	if !strings.Contains(prompt, "Custom instructions.") {
		t.Error("expected the override system prompt to be used")
	}
	if strings.Contains(prompt, groundingSystemPrompt) {
		t.Error("expected the default grounding prompt to be suppressed when overridden")
	}
}

func TestBuildNoEvidencePlaceholder(t *testing.T) {
	prompt := Build(BuildOpts{Mode: ModeGrounding, QuestionText: "q"})
	if !strings.Contains(prompt, "no evidence was produced") {
		t.Error("expected an explicit no-evidence placeholder")
	}
}

func TestCitationAnchorTokensDeduplicates(t *testing.T) {
	keys := transform.SchemaKeys{PathKeys: []string{"path"}, LineKeys: []string{"line"}}
	rows := []any{map[string]any{"path": "a.go", "line": float64(1)}}
	b1 := transform.Render("R_A", transform.RenderList, rows, keys, 0)
	b2 := transform.Render("R_A", transform.RenderList, rows, keys, 0)

	tokens := citationAnchorTokens([]transform.EvidenceBlock{b1, b2})
	count := 0
	for _, tok := range tokens {
		if tok == "a.go:1" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected a.go:1 deduplicated to a single entry, got %d occurrences in %v", count, tokens)
	}
}
