package advice

import (
	"fmt"
	"strings"

	"github.com/dshills/fcdrag/internal/pack"
	"github.com/dshills/fcdrag/internal/transform"
)

const groundingSystemPrompt = `You are an audit assistant producing corrective advice about one question's answer, grounded entirely in the evidence below.

Do not praise the code. Do not say the answer looks fine or needs no changes. If the evidence supports no concrete issue, say so explicitly rather than padding the response with filler.

Every issue statement must open with an imperative verb describing the concrete change required (e.g. "Add", "Validate", "Guard"), not a description of the current state.`

// BuildOpts configures one advice prompt.
type BuildOpts struct {
	Question            pack.Question
	DeterministicAnswer  string
	EvidenceBlocks       []transform.EvidenceBlock
	MaxIssues            int
}

// BuildPrompt assembles the initial advice prompt for a question.
func BuildPrompt(opts BuildOpts) string {
	var b strings.Builder

	b.WriteString(groundingSystemPrompt)
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "## Question\n\n%s\n\n", opts.Question.QuestionText)
	fmt.Fprintf(&b, "## Answer\n\n%s\n\n", opts.DeterministicAnswer)

	b.WriteString("## Evidence\n\n")
	for _, block := range opts.EvidenceBlocks {
		b.WriteString(block.Text)
		b.WriteString("\n\n")
	}

	maxIssues := opts.MaxIssues
	if maxIssues <= 0 {
		maxIssues = 5
	}
	fmt.Fprintf(&b, template, maxIssues)

	return b.String()
}

const template = `## Required format

Produce up to %d numbered issues, each in this exact form:

## Issue <n>
ISSUE: <imperative statement of the concrete change required>
RATIONALE: <why this change is required, grounded in the evidence above>
PATCH_SKETCH: <a concrete sketch of the change>
TEST_PLAN: <how the change would be verified>
CITATIONS: <comma-separated evidence tokens backing this issue>

Produce at least two issues when the evidence supports them.
`

// BuildRepairPrompt constructs a repair prompt enumerating specific problems
// found in a prior advice response.
func BuildRepairPrompt(original string, problems []string) string {
	var b strings.Builder
	b.WriteString(original)
	b.WriteString("\n\nYour previous response was invalid advice. Problems:\n")
	for _, p := range problems {
		fmt.Fprintf(&b, "  - %s\n", p)
	}
	b.WriteString("\nProduce corrected advice in the exact required format, fixing every problem listed above.\n")
	return b.String()
}
