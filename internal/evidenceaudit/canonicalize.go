// Package evidenceaudit implements the Evidence Delivery Auditor: it extracts
// the paths referenced in a question's injected evidence blocks, canonicalizes
// them against the repo root, and checks each against the stored table's path
// universe.
package evidenceaudit

import "strings"

// lowConfidencePrefixes marks path-like tokens that are never real source
// files: tool directories and generated index artifacts.
var lowConfidencePrefixes = []string{
	".git/",
	"node_modules/",
	"__pycache__/",
	".cache/",
	"vendor/",
	".index/",
	".venv/",
}

// toolchainSubstrings marks absolute paths that point outside the repo into
// language/package-manager installs rather than project source.
var toolchainSubstrings = []string{
	"/go/pkg/mod/",
	"/site-packages/",
	"/.cargo/registry/",
	"/usr/lib/",
	"/usr/local/",
	"/opt/",
}

// Canonicalize normalizes a raw path token into a repo-root-relative form:
// separators are normalized to "/", a redundant repo-root-name prefix is
// stripped, and absolute paths are resolved to the segment following the
// repo root. ok is false when the token is low-confidence (a tool path, an
// index artifact, or an absolute path that never mentions the repo root) and
// should be dropped rather than checked against the path universe.
//
// Canonicalize is idempotent: canonicalizing an already-canonical path with
// the same repoRootName returns it unchanged.
func Canonicalize(raw, repoRootName string) (canonical string, ok bool) {
	p := strings.ReplaceAll(raw, "\\", "/")
	p = strings.TrimPrefix(p, "./")
	if p == "" {
		return "", false
	}

	for _, sub := range toolchainSubstrings {
		if strings.Contains(p, sub) {
			return "", false
		}
	}

	if strings.HasPrefix(p, "/") {
		if repoRootName == "" {
			return "", false
		}
		marker := "/" + repoRootName + "/"
		idx := strings.Index(p, marker)
		if idx < 0 {
			return "", false
		}
		p = p[idx+len(marker):]
	} else if repoRootName != "" {
		switch {
		case p == repoRootName:
			p = ""
		case strings.HasPrefix(p, repoRootName+"/"):
			p = strings.TrimPrefix(p, repoRootName+"/")
		}
	}

	if p == "" {
		return "", false
	}

	for _, pre := range lowConfidencePrefixes {
		if strings.HasPrefix(p, pre) || strings.Contains(p, "/"+pre) {
			return "", false
		}
	}

	return p, true
}

// tokenPath returns the path portion of a "path:line" or
// "path:line_start-line_end" citation token.
func tokenPath(tok string) string {
	idx := strings.LastIndex(tok, ":")
	if idx <= 0 {
		return ""
	}
	return tok[:idx]
}
