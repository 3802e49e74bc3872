package validate

import (
	"fmt"
	"regexp"
	"strings"
)

var citationsHeaderRe = regexp.MustCompile(`(?m)^CITATIONS=`)

// CheckResponseSchema verifies the answer begins with the required header
// lines: a verdict within the declared enumeration, and a citations header.
// Additional CITATIONS-like lines or bullet-style citations after the first
// are tolerated but never substitute for it.
func CheckResponseSchema(answer string, requiredHeaders []string, verdictEnum []string) []Issue {
	var issues []Issue

	for _, header := range requiredHeaders {
		if !hasHeaderPrefix(answer, header) {
			issues = append(issues, Issue{Kind: "schema", Message: fmt.Sprintf("missing required header %q", header)})
		}
	}

	if len(verdictEnum) > 0 {
		verdict, ok := extractHeaderValue(answer, "VERDICT=")
		if !ok {
			issues = append(issues, Issue{Kind: "schema", Message: "missing VERDICT= header"})
		} else if !inEnum(verdict, verdictEnum) {
			issues = append(issues, Issue{Kind: "schema", Message: fmt.Sprintf("verdict %q not in declared enumeration %v", verdict, verdictEnum)})
		}
	}

	if !citationsHeaderRe.MatchString(answer) {
		issues = append(issues, Issue{Kind: "schema", Message: "missing CITATIONS= header"})
	}

	return issues
}

func hasHeaderPrefix(answer, header string) bool {
	for _, line := range strings.Split(answer, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), header) {
			return true
		}
	}
	return false
}

func extractHeaderValue(answer, prefix string) (string, bool) {
	for _, line := range strings.Split(answer, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, prefix)), true
		}
	}
	return "", false
}

func inEnum(value string, enum []string) bool {
	for _, e := range enum {
		if e == value {
			return true
		}
	}
	return false
}

// CitationsHeaderTokens extracts the comma-separated tokens from the first
// CITATIONS= line.
func CitationsHeaderTokens(answer string) []string {
	value, ok := extractHeaderValue(answer, "CITATIONS=")
	if !ok {
		return nil
	}
	var out []string
	for _, tok := range strings.Split(value, ",") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}
