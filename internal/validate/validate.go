package validate

import "github.com/dshills/fcdrag/internal/pack"

// Result is the outcome of validating one answer: the accumulated issues
// (each already capped for report readability) and whether any of them
// must be promoted to a fatal contract issue.
type Result struct {
	Issues []Issue
	Fatal  bool
}

// Options configures one validation pass.
type Options struct {
	Contract          pack.ResponseContract
	EvidenceTokens    [][]string
	WeakenedProvenance bool
	Caps              int
}

// Validate runs the three independent checks — response schema, citation
// provenance, and the two path gates — against one answer, in order. Gate B
// assumes the caller has already run the Provenance Repairer over answer.
func Validate(answer string, opts Options) Result {
	var issues []Issue

	issues = append(issues, CheckResponseSchema(answer, opts.Contract.RequiredHeaders, opts.Contract.VerdictEnum)...)

	citationTokens := CitationsHeaderTokens(answer)
	allow := BuildAllowSet(opts.EvidenceTokens)

	if opts.Contract.EnforceCitationsFromEvidence {
		issues = append(issues, CheckCitationProvenance(citationTokens, allow, opts.WeakenedProvenance)...)
	}

	if opts.Contract.EnforceNoNewPaths {
		issues = append(issues, CheckGateA(answer, citationTokens, allow)...)
	}

	if opts.Contract.EnforcePathsMustBeCited {
		issues = append(issues, CheckGateB(answer, citationTokens)...)
	}

	if opts.Caps > 0 && len(issues) > opts.Caps {
		issues = issues[:opts.Caps]
	}

	return Result{
		Issues: issues,
		Fatal:  len(issues) > 0 && opts.Contract.FailOnMissingCitations,
	}
}
