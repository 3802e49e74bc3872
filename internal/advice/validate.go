package advice

import (
	"fmt"
	"regexp"

	"github.com/dshills/fcdrag/internal/policy"
	"github.com/dshills/fcdrag/internal/validate"
)

// Problem is one advice-validation failure.
type Problem struct {
	IssueNumber int
	Message     string
}

// ValidateOpts configures one advice validation pass.
type ValidateOpts struct {
	Gate               policy.AdviceQualityGate
	Allow              validate.AllowSet
	WeakenedProvenance bool
	EvidenceExists     bool
}

// Validate runs every advice-quality check from the runner policy over a
// parsed advice response and returns every problem found.
func Validate(advice Advice, opts ValidateOpts) []Problem {
	var problems []Problem

	minIssues := opts.Gate.MinIssues
	if opts.EvidenceExists && len(advice.Issues) < minIssues {
		problems = append(problems, Problem{Message: fmt.Sprintf("expected at least %d issues, got %d", minIssues, len(advice.Issues))})
	}

	antiPraise := compileAll(opts.Gate.AntiPraiseRegex)
	var imperative *regexp.Regexp
	if opts.Gate.ImperativeVerbRegex != "" {
		imperative = regexp.MustCompile(opts.Gate.ImperativeVerbRegex)
	}

	for _, issue := range advice.Issues {
		for _, field := range requiredFieldSet(opts.Gate.RequiredFields) {
			if !hasField(issue, field) {
				problems = append(problems, Problem{IssueNumber: issue.Number, Message: fmt.Sprintf("missing required field %q", field)})
			}
		}

		for _, re := range antiPraise {
			if re.MatchString(issue.IssueText) || re.MatchString(issue.Rationale) {
				problems = append(problems, Problem{IssueNumber: issue.Number, Message: fmt.Sprintf("praise-only phrasing matched %q", re.String())})
			}
		}

		if imperative != nil && issue.IssueText != "" && !imperative.MatchString(issue.IssueText) {
			problems = append(problems, Problem{IssueNumber: issue.Number, Message: "issue statement does not open with an imperative verb"})
		}

		for _, raw := range issue.Citations {
			tok, ok := validate.ParseToken(raw)
			if !ok {
				problems = append(problems, Problem{IssueNumber: issue.Number, Message: fmt.Sprintf("malformed citation token %q", raw)})
				continue
			}
			if !opts.Allow.Allows(tok, opts.WeakenedProvenance) {
				problems = append(problems, Problem{IssueNumber: issue.Number, Message: fmt.Sprintf("citation %q is not backed by evidence", raw)})
			}
		}
	}

	return problems
}

func requiredFieldSet(fields []string) []string {
	if len(fields) == 0 {
		return []string{"issue", "rationale", "patch_sketch", "test_plan", "citations"}
	}
	return fields
}

func hasField(issue Issue, field string) bool {
	switch field {
	case "issue":
		return issue.IssueText != ""
	case "rationale":
		return issue.Rationale != ""
	case "patch_sketch":
		return issue.PatchSketch != ""
	case "test_plan":
		return issue.TestPlan != ""
	case "citations":
		return len(issue.Citations) > 0
	default:
		return true
	}
}

func compileAll(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}
