// Package advice implements the secondary advice pass: a grounding-style LLM
// call that produces numbered, evidence-backed corrective issues for a
// question, validated against a strict per-issue template and retried a
// bounded number of times on failure.
package advice

// Issue is one numbered advice entry.
type Issue struct {
	Number      int
	IssueText   string
	Rationale   string
	PatchSketch string
	TestPlan    string
	Citations   []string
}

// Advice is the parsed advice response for one question.
type Advice struct {
	QuestionID string
	Issues     []Issue
	Raw        string
}
