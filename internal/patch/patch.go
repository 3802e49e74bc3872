// Package patch writes suggested-fix diffs gathered from advice results to a
// file.
package patch

import (
	"fmt"
	"os"
	"strings"

	"github.com/dshills/fcdrag/internal/advice"
)

// Patch is one suggested-fix sidecar entry: a question/issue's patch sketch,
// rendered as a unified-diff-shaped block anchored on its first citation.
type Patch struct {
	QuestionID  string
	IssueNumber int
	DiffUnified string
}

// FromAdvice converts one question's advice issues into patch sidecar
// entries. Only issues carrying a non-empty patch sketch produce an entry;
// advice issues are prose-level "what to change", not real diffs, so each
// entry is rendered as a unified-diff-style header naming the issue's first
// cited path followed by the patch sketch text as the body.
func FromAdvice(questionID string, adv advice.Advice) []Patch {
	var out []Patch
	for _, issue := range adv.Issues {
		if issue.PatchSketch == "" {
			continue
		}
		path := "unknown"
		if len(issue.Citations) > 0 {
			path = issue.Citations[0]
		}
		diff := fmt.Sprintf("--- a/%s\n+++ b/%s\n# %s\n%s\n", path, path, issue.IssueText, issue.PatchSketch)
		out = append(out, Patch{QuestionID: questionID, IssueNumber: issue.Number, DiffUnified: diff})
	}
	return out
}

// WritePatchFile writes all patch diffs to the given path. If there are no
// patches, no file is created.
func WritePatchFile(patches []Patch, outPath string) error {
	if len(patches) == 0 {
		return nil
	}

	var b strings.Builder
	for _, p := range patches {
		b.WriteString(p.DiffUnified)
		if !strings.HasSuffix(p.DiffUnified, "\n") {
			b.WriteString("\n")
		}
	}

	if err := os.WriteFile(outPath, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("patch.WritePatchFile: %w", err)
	}
	return nil
}
