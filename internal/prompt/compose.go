// Package prompt builds the LLM prompt for one audit question: a system
// prompt selected by composition mode, the response contract, the question
// text, rendered evidence blocks, and the citation anchor tokens available
// to cite.
package prompt

import (
	"fmt"
	"strings"

	"github.com/dshills/fcdrag/internal/pack"
	"github.com/dshills/fcdrag/internal/transform"
)

// Mode selects which system prompt governs the answer.
type Mode string

const (
	ModeGrounding   Mode = "grounding"
	ModeQuoteBypass Mode = "quote_bypass"
)

// SelectMode applies the quote-bypass selection rule: in "auto", bypass is
// active iff at least one evidence block was produced; "on"/"off" force the
// mode regardless of evidence count.
func SelectMode(quoteBypassSetting string, evidenceBlocksCount int) Mode {
	switch quoteBypassSetting {
	case "on":
		return ModeQuoteBypass
	case "off":
		return ModeGrounding
	default:
		if evidenceBlocksCount >= 1 {
			return ModeQuoteBypass
		}
		return ModeGrounding
	}
}

const groundingSystemPrompt = `You are an audit assistant answering one question about a source repository using only the evidence provided below.

Only use facts present in the cited evidence. If the evidence does not contain enough information to answer, respond with NOT FOUND instead of guessing.

You MUST begin your answer with the required header lines exactly as specified in the response contract, followed by your reasoning.`

const quoteBypassSystemPrompt = `You are an audit assistant answering one question about a source repository. The evidence blocks below are authoritative: treat every row and snippet as ground truth about the repository's current state.

Do not respond with NOT FOUND. If the evidence is incomplete for a confident answer, say so explicitly by marking INSUFFICIENT EVIDENCE in your reasoning, but still produce the required header lines.

You MUST begin your answer with the required header lines exactly as specified in the response contract, followed by your reasoning.`

// BuildOpts configures prompt construction for one question.
type BuildOpts struct {
	Mode                Mode
	SystemPromptOverride string
	Contract            pack.ResponseContract
	QuestionText        string
	EvidenceBlocks      []transform.EvidenceBlock
}

// Build assembles the full augmented prompt for one question.
func Build(opts BuildOpts) string {
	var b strings.Builder

	b.WriteString(systemPrompt(opts))
	b.WriteString("\n\n")

	b.WriteString(formatContract(opts.Contract))
	b.WriteString("\n")

	fmt.Fprintf(&b, "## Question\n\n%s\n\n", opts.QuestionText)

	b.WriteString("## Evidence\n\n")
	if len(opts.EvidenceBlocks) == 0 {
		b.WriteString("(no evidence was produced for this question)\n\n")
	}
	for _, block := range opts.EvidenceBlocks {
		b.WriteString(block.Text)
		b.WriteString("\n\n")
	}

	b.WriteString("## Citable tokens\n\n")
	for _, tok := range citationAnchorTokens(opts.EvidenceBlocks) {
		fmt.Fprintf(&b, "- %s\n", tok)
	}

	return b.String()
}

func systemPrompt(opts BuildOpts) string {
	if opts.SystemPromptOverride != "" {
		return opts.SystemPromptOverride
	}
	if opts.Mode == ModeQuoteBypass {
		return quoteBypassSystemPrompt
	}
	return groundingSystemPrompt
}

func formatContract(c pack.ResponseContract) string {
	var b strings.Builder
	b.WriteString("## Response contract\n\n")
	fmt.Fprintf(&b, "Required header lines: %s\n", strings.Join(c.RequiredHeaders, ", "))
	if len(c.VerdictEnum) > 0 {
		fmt.Fprintf(&b, "Verdict must be one of: %s\n", strings.Join(c.VerdictEnum, ", "))
	}
	if c.CitationFormat != "" {
		fmt.Fprintf(&b, "Citation format: %s\n", c.CitationFormat)
	}
	b.WriteString("Cite only tokens listed under \"Citable tokens\" below.\n")
	return b.String()
}

// citationAnchorTokens deduplicates the tokens across all evidence blocks,
// preserving first-seen order.
func citationAnchorTokens(blocks []transform.EvidenceBlock) []string {
	seen := map[string]bool{}
	var out []string
	for _, block := range blocks {
		for _, tok := range block.Tokens {
			if !seen[tok] {
				seen[tok] = true
				out = append(out, tok)
			}
		}
	}
	return out
}
