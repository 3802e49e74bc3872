// Package validate implements the Answer Validator: response-schema,
// citation-provenance, and path-gate checks over an LLM answer.
package validate

import (
	"strconv"
	"strings"
)

// Issue is a single validator finding, tagged with the check that raised it
// so callers can decide promotion to a fatal contract issue.
type Issue struct {
	Kind    string // "schema", "provenance", "path_gate_a", "path_gate_b"
	Message string
}

// Token is a parsed CitationToken: path:line or path:line_start-line_end.
type Token struct {
	Path  string
	Start int
	End   int
}

// ParseToken parses a canonical citation token. Non-numeric-line tokens
// (e.g. a CITE=<step>:1 anchor) parse with Start==End==the trailing int
// when present, or Start==End==0 when the suffix isn't numeric.
func ParseToken(tok string) (Token, bool) {
	idx := strings.LastIndex(tok, ":")
	if idx <= 0 {
		return Token{}, false
	}
	path := tok[:idx]
	lineSpec := tok[idx+1:]

	if start, end, ok := parseRange(lineSpec); ok {
		return Token{Path: path, Start: start, End: end}, true
	}
	return Token{Path: path, Start: 0, End: 0}, true
}

func parseRange(spec string) (int, int, bool) {
	if dash := strings.Index(spec, "-"); dash > 0 {
		start, err1 := strconv.Atoi(spec[:dash])
		end, err2 := strconv.Atoi(spec[dash+1:])
		if err1 == nil && err2 == nil {
			return start, end, true
		}
		return 0, 0, false
	}
	n, err := strconv.Atoi(spec)
	if err != nil {
		return 0, 0, false
	}
	return n, n, true
}

// Overlaps reports whether two inclusive integer ranges share a line.
func Overlaps(aStart, aEnd, bStart, bEnd int) bool {
	return aStart <= bEnd && bStart <= aEnd
}

// AllowSet is the set of citation tokens and bare paths an answer may
// legally reference, built from the evidence blocks injected into the
// prompt.
type AllowSet struct {
	Tokens []Token
	Paths  map[string]bool
}

// BuildAllowSet flattens the token lists of every evidence block (row
// path:line tokens and CITE=<step>:1 anchors alike) into one allow-set.
func BuildAllowSet(evidenceTokens [][]string) AllowSet {
	set := AllowSet{Paths: map[string]bool{}}
	for _, blockTokens := range evidenceTokens {
		for _, raw := range blockTokens {
			tok, ok := ParseToken(raw)
			if !ok {
				continue
			}
			set.Tokens = append(set.Tokens, tok)
			set.Paths[tok.Path] = true
		}
	}
	return set
}

// Allows reports whether a citation token is backed by the allow-set: an
// exact-path line-range overlap, or, when weakened is true, a path-only
// match.
func (s AllowSet) Allows(tok Token, weakened bool) bool {
	for _, t := range s.Tokens {
		if t.Path == tok.Path && Overlaps(tok.Start, tok.End, t.Start, t.End) {
			return true
		}
	}
	if weakened {
		return s.Paths[tok.Path]
	}
	return false
}
