package llm

import (
	"fmt"
	"strings"

	"github.com/dshills/fcdrag/internal/pack"
	"github.com/dshills/fcdrag/internal/transform"
)

// DeterministicAnswer synthesizes an answer for a response_mode=deterministic
// question directly from its evidence blocks, bypassing every chat backend.
// It follows the same single-pass, no-dispatch shape used for bootstrap-style
// analysis: one fixed template, no retries, no model variance.
func DeterministicAnswer(q pack.Question, blocks []transform.EvidenceBlock, contract pack.ResponseContract) string {
	var b strings.Builder

	verdict := deterministicVerdict(blocks, contract)
	fmt.Fprintf(&b, "VERDICT=%s\n", verdict)

	tokens := deterministicCitations(blocks)
	fmt.Fprintf(&b, "CITATIONS=%s\n", strings.Join(tokens, ", "))

	if len(blocks) == 0 {
		fmt.Fprintf(&b, "\nNo preflight evidence was produced for %q; verdict derived from absence of findings.\n", q.ID)
		return b.String()
	}

	fmt.Fprintf(&b, "\n%d evidence block(s) were collected for %q:\n", len(blocks), q.ID)
	for _, block := range blocks {
		fmt.Fprintf(&b, "- %s: %d citable token(s)\n", block.StepName, len(block.Tokens))
	}

	return b.String()
}

// deterministicVerdict picks the first enum value when evidence exists and
// the last (assumed "negative") value otherwise. Packs using deterministic
// mode are expected to declare a two-value enum ordered [positive, negative].
func deterministicVerdict(blocks []transform.EvidenceBlock, contract pack.ResponseContract) string {
	if len(contract.VerdictEnum) == 0 {
		if len(blocks) > 0 {
			return "TRUE_POSITIVE"
		}
		return "FALSE_POSITIVE"
	}
	if len(blocks) > 0 {
		return contract.VerdictEnum[0]
	}
	return contract.VerdictEnum[len(contract.VerdictEnum)-1]
}

func deterministicCitations(blocks []transform.EvidenceBlock) []string {
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
