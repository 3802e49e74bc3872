package validate

import "fmt"

// CheckCitationProvenance verifies every token in the citations header is
// backed by the evidence allow-set: an exact path+line-range overlap, or,
// when weakened is true, a path-only match.
func CheckCitationProvenance(citationTokens []string, allow AllowSet, weakened bool) []Issue {
	var issues []Issue
	for _, raw := range citationTokens {
		tok, ok := ParseToken(raw)
		if !ok {
			issues = append(issues, Issue{Kind: "provenance", Message: fmt.Sprintf("malformed citation token %q", raw)})
			continue
		}
		if !allow.Allows(tok, weakened) {
			issues = append(issues, Issue{Kind: "provenance", Message: fmt.Sprintf("citation token %q is not backed by evidence", raw)})
		}
	}
	return issues
}
