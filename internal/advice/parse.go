package advice

import (
	"regexp"
	"strconv"
	"strings"
)

var issueHeaderRe = regexp.MustCompile(`(?m)^##\s*Issue\s+(\d+)\s*$`)

// Parse splits an advice response into its numbered issue blocks. Fields
// absent from a block are left blank so validation can flag them by name.
func Parse(raw string) Advice {
	advice := Advice{Raw: raw}

	headers := issueHeaderRe.FindAllStringSubmatchIndex(raw, -1)
	if len(headers) == 0 {
		return advice
	}

	for i, h := range headers {
		numStr := raw[h[2]:h[3]]
		num, _ := strconv.Atoi(numStr)

		start := h[1]
		end := len(raw)
		if i+1 < len(headers) {
			end = headers[i+1][0]
		}
		body := raw[start:end]

		advice.Issues = append(advice.Issues, parseIssueBody(num, body))
	}

	return advice
}

var fieldRe = regexp.MustCompile(`(?m)^(ISSUE|RATIONALE|PATCH_SKETCH|TEST_PLAN|CITATIONS):\s*(.*)$`)

func parseIssueBody(num int, body string) Issue {
	issue := Issue{Number: num}

	matches := fieldRe.FindAllStringSubmatch(body, -1)
	for _, m := range matches {
		value := strings.TrimSpace(m[2])
		switch m[1] {
		case "ISSUE":
			issue.IssueText = value
		case "RATIONALE":
			issue.Rationale = value
		case "PATCH_SKETCH":
			issue.PatchSketch = value
		case "TEST_PLAN":
			issue.TestPlan = value
		case "CITATIONS":
			issue.Citations = splitCitations(value)
		}
	}

	return issue
}

func splitCitations(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
