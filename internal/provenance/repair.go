// Package provenance implements the Provenance Repairer: it closes the gap
// between paths an LLM mentions in an answer's body and the citations
// header, without ever inventing a token the evidence didn't already offer.
package provenance

import (
	"regexp"
	"strings"
)

var (
	verdictHeaderRe   = regexp.MustCompile(`(?m)^VERDICT=.*$`)
	citationsHeaderRe = regexp.MustCompile(`(?m)^CITATIONS=.*$`)
	pathTokenRe       = regexp.MustCompile(`\b[\w.\-]+(?:/[\w.\-]+)+\.[A-Za-z0-9]{1,8}\b`)
)

// EvidenceSource is the minimal view of an evidence block the repairer
// needs: its citation anchor token plus the row-derived path:line tokens it
// makes available.
type EvidenceSource struct {
	Tokens []string
}

// Repair applies the algorithm: parse the answer, extract body-mentioned
// paths, and for each path not already covered by a citation, append the
// first matching evidence token to the citations header. It never invents a
// token absent from evidence, and is idempotent: repairing an already-
// repaired answer against the same evidence is a no-op.
func Repair(answer string, sources []EvidenceSource) (repaired string, changed bool) {
	citationsLine, hasCitations := findCitationsLine(answer)
	existingTokens := map[string]bool{}
	var orderedTokens []string
	if hasCitations {
		for _, tok := range splitTokens(citationsLine) {
			if !existingTokens[tok] {
				existingTokens[tok] = true
				orderedTokens = append(orderedTokens, tok)
			}
		}
	}

	body := StripHeaders(answer)
	bodyPaths := ExtractPaths(body)

	evidenceByPath := buildEvidenceMap(sources)
	coveredPaths := coveredPathsFromTokens(orderedTokens)

	var added []string
	for _, p := range bodyPaths {
		if coveredPaths[p] {
			continue
		}
		candidates := evidenceByPath[p]
		if len(candidates) == 0 {
			continue
		}
		tok := candidates[0]
		if existingTokens[tok] {
			continue
		}
		existingTokens[tok] = true
		orderedTokens = append(orderedTokens, tok)
		coveredPaths[p] = true
		added = append(added, tok)
	}

	if len(added) == 0 {
		return answer, false
	}

	newLine := "CITATIONS=" + strings.Join(orderedTokens, ", ")
	if hasCitations {
		return citationsHeaderRe.ReplaceAllString(answer, newLine), true
	}
	return insertCitationsLine(answer, newLine), true
}

func findCitationsLine(answer string) (string, bool) {
	loc := citationsHeaderRe.FindString(answer)
	if loc == "" {
		return "", false
	}
	return loc, true
}

func splitTokens(citationsLine string) []string {
	value := strings.TrimPrefix(citationsLine, "CITATIONS=")
	var out []string
	for _, tok := range strings.Split(value, ",") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// StripHeaders removes recognized header lines (VERDICT=, CITATIONS=) so
// path extraction only scans the answer body.
func StripHeaders(answer string) string {
	lines := strings.Split(answer, "\n")
	var out []string
	for _, l := range lines {
		trimmed := strings.TrimSpace(l)
		if strings.HasPrefix(trimmed, "VERDICT=") || strings.HasPrefix(trimmed, "CITATIONS=") {
			continue
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}

func ExtractPaths(body string) []string {
	matches := pathTokenRe.FindAllString(body, -1)
	seen := map[string]bool{}
	var out []string
	for _, m := range matches {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

// buildEvidenceMap maps a path to the evidence tokens that reference it, in
// first-seen order, by scanning every evidence source's tokens for both
// row-derived path:line tokens and CITE=<token> anchors.
func buildEvidenceMap(sources []EvidenceSource) map[string][]string {
	out := map[string][]string{}
	for _, src := range sources {
		for _, tok := range src.Tokens {
			path := tokenPath(tok)
			if path == "" {
				continue
			}
			out[path] = append(out[path], tok)
		}
	}
	return out
}

// tokenPath returns the path portion of a path:line or path:line_start-line_end
// token (or of a CITE anchor token, whose "path" is its identifier prefix).
func tokenPath(token string) string {
	idx := strings.LastIndex(token, ":")
	if idx <= 0 {
		return ""
	}
	return token[:idx]
}

func coveredPathsFromTokens(tokens []string) map[string]bool {
	out := map[string]bool{}
	for _, tok := range tokens {
		if p := tokenPath(tok); p != "" {
			out[p] = true
		}
	}
	return out
}

func insertCitationsLine(answer, newLine string) string {
	if loc := verdictHeaderRe.FindStringIndex(answer); loc != nil {
		return answer[:loc[1]] + "\n" + newLine + answer[loc[1]:]
	}
	return newLine + "\n" + answer
}
