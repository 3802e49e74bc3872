package validate

import (
	"fmt"

	"github.com/dshills/fcdrag/internal/provenance"
)

// CheckGateA (enforce_no_new_paths) verifies every path token mentioned
// anywhere in the answer, body or citations, appears in the evidence's
// allowed-path set.
func CheckGateA(answer string, citationTokens []string, allow AllowSet) []Issue {
	var issues []Issue

	bodyPaths := provenance.ExtractPaths(provenance.StripHeaders(answer))
	for _, p := range bodyPaths {
		if !allow.Paths[p] {
			issues = append(issues, Issue{Kind: "path_gate_a", Message: fmt.Sprintf("path %q mentioned in answer body is not present in evidence", p)})
		}
	}

	for _, raw := range citationTokens {
		tok, ok := ParseToken(raw)
		if !ok {
			continue
		}
		if !allow.Paths[tok.Path] {
			issues = append(issues, Issue{Kind: "path_gate_a", Message: fmt.Sprintf("cited path %q is not present in evidence", tok.Path)})
		}
	}

	return issues
}

// CheckGateB (enforce_paths_must_be_cited) verifies every path mentioned in
// the answer body is also covered by a citation token. Must be evaluated
// after the Provenance Repairer has run.
func CheckGateB(answer string, citationTokens []string) []Issue {
	var issues []Issue

	cited := map[string]bool{}
	for _, raw := range citationTokens {
		if tok, ok := ParseToken(raw); ok {
			cited[tok.Path] = true
		}
	}

	bodyPaths := provenance.ExtractPaths(provenance.StripHeaders(answer))
	for _, p := range bodyPaths {
		if !cited[p] {
			issues = append(issues, Issue{Kind: "path_gate_b", Message: fmt.Sprintf("path %q is mentioned in the answer body but not cited", p)})
		}
	}

	return issues
}
