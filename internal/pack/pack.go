// Package pack loads and validates FCDRAG audit packs: the ordered list of
// audit questions, their preflight plans, response contract, and validation
// policy.
package pack

import (
	"crypto/sha256"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ResponseMode selects how a question's answer is produced.
type ResponseMode string

const (
	ResponseModeLLM           ResponseMode = "llm"
	ResponseModeDeterministic ResponseMode = "deterministic"
)

// AdviceMode selects whether a question solicits a secondary advice pass.
type AdviceMode string

const (
	AdviceModeNone AdviceMode = "none"
	AdviceModeLLM  AdviceMode = "llm"
)

// Transform is the declarative filter pipeline applied to a preflight
// step's row portion.
type Transform struct {
	Excludes           []string `yaml:"excludes,omitempty"`
	Includes           []string `yaml:"includes,omitempty"`
	ExcludeTestFiles   bool     `yaml:"exclude_test_files,omitempty"`
	TestPathPatterns   []string `yaml:"test_path_patterns,omitempty"`
	ExcludeComments    bool     `yaml:"exclude_comments,omitempty"`
	RequireRegex       []string `yaml:"require_regex,omitempty"`
	RequireContains    []string `yaml:"require_contains,omitempty"`
	GroupByPathTopN    int      `yaml:"group_by_path_top_n,omitempty"`
	GroupByPathStep    string   `yaml:"group_by_path_step,omitempty"`
	GroupByCountField  string   `yaml:"group_by_count_field,omitempty"`
	GroupByPerPathCap  int      `yaml:"group_by_per_path_cap,omitempty"`
	MaxItems           int      `yaml:"max_items,omitempty"`
	MaxChars           int      `yaml:"max_chars,omitempty"`
	FilterFn           string   `yaml:"filter_fn,omitempty"`
	RenderOverride     string   `yaml:"render_override,omitempty"`
}

// PreflightStep is one deterministic CLI invocation planned for a question.
type PreflightStep struct {
	Name           string     `yaml:"name"`
	EngineOverride string     `yaml:"engine_override,omitempty"`
	ArgvTemplate   []string   `yaml:"argv_template"`
	Transform      *Transform `yaml:"transform,omitempty"`
	Render         string     `yaml:"render,omitempty"`
	StopIfNonempty bool       `yaml:"stop_if_nonempty,omitempty"`
}

// ChatParams carries per-question sampling overrides.
type ChatParams struct {
	TopK        int     `yaml:"top_k,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty"`
	TopP        float64 `yaml:"top_p,omitempty"`
	NumCtx      int     `yaml:"num_ctx,omitempty"`
}

// Question is a single audit question with its preflight plan.
type Question struct {
	ID                   string          `yaml:"id"`
	Title                string          `yaml:"title"`
	Category             string          `yaml:"category,omitempty"`
	QuestionText         string          `yaml:"question_text"`
	PreflightSteps       []PreflightStep `yaml:"preflight_steps"`
	ChatParams           ChatParams      `yaml:"chat_params,omitempty"`
	ResponseMode         ResponseMode    `yaml:"response_mode"`
	AdviceMode           AdviceMode      `yaml:"advice_mode,omitempty"`
	ExpectedVerdict      string          `yaml:"expected_verdict,omitempty"`
	AdvicePromptOverride string          `yaml:"advice_prompt_override,omitempty"`
}

// ResponseContract declares the required answer header fields and
// provenance enforcement switches.
type ResponseContract struct {
	RequiredHeaders            []string `yaml:"required_headers"`
	VerdictEnum                []string `yaml:"verdict_enum"`
	CitationFormat             string   `yaml:"citation_format,omitempty"`
	EnforceCitationsFromEvidence bool   `yaml:"enforce_citations_from_evidence"`
	EnforceNoNewPaths           bool     `yaml:"enforce_no_new_paths"`
	EnforcePathsMustBeCited     bool     `yaml:"enforce_paths_must_be_cited"`
	FailOnMissingCitations      bool     `yaml:"fail_on_missing_citations"`
}

// ValidationPolicy groups per-pack validation knobs layered on top of the
// runner-wide policy.
type ValidationPolicy struct {
	MinQuestions       int  `yaml:"min_questions,omitempty"`
	StarvationThreshold int `yaml:"starvation_threshold,omitempty"`
	ElevateStarvation  bool `yaml:"elevate_starvation,omitempty"`
	MissionMode        bool `yaml:"mission_mode,omitempty"`
}

// Defaults carries pack-wide sampling defaults.
type Defaults struct {
	TopK        int     `yaml:"top_k,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty"`
}

// RunnerOverrides lets a pack override select runner policy fields inline.
type RunnerOverrides struct {
	QuoteBypassMode    string `yaml:"quote_bypass_mode,omitempty"`
	FailOnEmptyEvidence *bool `yaml:"fail_on_empty_evidence,omitempty"`
	FailFast            *bool `yaml:"fail_fast,omitempty"`
}

// Pack is the top-level, read-only loaded audit pack.
type Pack struct {
	Version    string           `yaml:"version"`
	PackType   string           `yaml:"pack_type"`
	Engine     string           `yaml:"engine"`
	Schema     ResponseContract `yaml:"response_schema"`
	Defaults   Defaults         `yaml:"defaults"`
	Questions  []Question       `yaml:"questions"`
	Validation ValidationPolicy `yaml:"validation,omitempty"`
	Runner     RunnerOverrides  `yaml:"runner,omitempty"`

	FilePath string `yaml:"-"`
	Hash     string `yaml:"-"`
}

// Load reads and parses a pack YAML file, validating its invariants: unique
// question IDs and, when set, a minimum question count.
func Load(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pack.Load: %w", err)
	}

	var p Pack
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("pack.Load: parse %s: %w", path, err)
	}

	sum := sha256.Sum256(data)
	p.FilePath = path
	p.Hash = fmt.Sprintf("sha256:%x", sum)

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks pack-level invariants that must hold before a run starts.
func (p *Pack) Validate() error {
	seen := make(map[string]bool, len(p.Questions))
	for _, q := range p.Questions {
		if q.ID == "" {
			return fmt.Errorf("pack.Validate: question with empty id")
		}
		if seen[q.ID] {
			return fmt.Errorf("pack.Validate: duplicate question id %q", q.ID)
		}
		seen[q.ID] = true
	}
	if p.Validation.MinQuestions > 0 && len(p.Questions) < p.Validation.MinQuestions {
		return fmt.Errorf("pack.Validate: pack has %d questions, minimum is %d", len(p.Questions), p.Validation.MinQuestions)
	}
	return nil
}

// Question looks up a question by ID.
func (p *Pack) Question(id string) (Question, bool) {
	for _, q := range p.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}
