package evidenceaudit

import (
	"fmt"
	"strings"

	"github.com/dshills/fcdrag/internal/llm"
	"github.com/dshills/fcdrag/internal/transform"
)

// EvidenceAuditRow is the per-question audit record: every path the
// question's evidence blocks referenced, which of those the stored table's
// path universe does not cover, and every LLM dispatch made while answering
// the question.
type EvidenceAuditRow struct {
	QID                           string                    `json:"qid"`
	EvidenceBlocksCount           int                       `json:"evidence_blocks_count"`
	EvidencePaths                 []string                  `json:"evidence_paths"`
	PathsMissingFromParquet       []string                  `json:"paths_missing_from_parquet"`
	PathsMissingFromParquetCount  int                       `json:"paths_missing_from_parquet_count"`
	LLMDispatches                 []llm.DispatchDescriptor  `json:"llm_dispatches"`
}

// AuditQuestion extracts the canonical path set referenced by a question's
// evidence blocks and checks each against universe. Path-like citation
// tokens are read from each block's Tokens (the same row-derived path:line
// tokens the Provenance Repairer and Answer Validator consume), not
// re-scanned from rendered text, so the three components agree on what
// counts as a referenced path. Single-segment tokens (bare CITE anchors
// such as "R_A:1") are dropped unless the universe itself contains that
// single segment as a real top-level file.
func AuditQuestion(qid string, blocks []transform.EvidenceBlock, universe PathUniverse, repoRootName string, dispatches []llm.DispatchDescriptor) EvidenceAuditRow {
	seen := map[string]bool{}
	var paths []string

	for _, b := range blocks {
		for _, tok := range b.Tokens {
			raw := tokenPath(tok)
			if raw == "" {
				continue
			}
			canonical, ok := Canonicalize(raw, repoRootName)
			if !ok {
				continue
			}
			if !strings.Contains(canonical, "/") && !universe.Contains(canonical) {
				continue
			}
			if !seen[canonical] {
				seen[canonical] = true
				paths = append(paths, canonical)
			}
		}
	}

	var missing []string
	for _, p := range paths {
		if !universe.Contains(p) {
			missing = append(missing, p)
		}
	}

	return EvidenceAuditRow{
		QID:                          qid,
		EvidenceBlocksCount:          len(blocks),
		EvidencePaths:                paths,
		PathsMissingFromParquet:      missing,
		PathsMissingFromParquetCount: len(missing),
		LLMDispatches:                dispatches,
	}
}

// RunSummary is the run-level evidence audit, written to
// EVIDENCE_DELIVERY_SUMMARY.json.
type RunSummary struct {
	Rows                          []EvidenceAuditRow `json:"rows"`
	TotalMissingPathsFromParquet  int                `json:"total_missing_paths_from_parquet"`
}

// Aggregate sums every question row's missing-path count into the run-level
// total.
func Aggregate(rows []EvidenceAuditRow) RunSummary {
	total := 0
	for _, r := range rows {
		total += r.PathsMissingFromParquetCount
	}
	return RunSummary{Rows: rows, TotalMissingPathsFromParquet: total}
}

// FatalIssue reports the fail-closed contract issue for this run's evidence
// audit: present whenever any question referenced a path absent from the
// table's path universe.
func (s RunSummary) FatalIssue() (string, bool) {
	if s.TotalMissingPathsFromParquet == 0 {
		return "", false
	}
	return fmt.Sprintf("evidence_audit_missing_path: %d path(s) referenced in evidence were not found in the table path universe", s.TotalMissingPathsFromParquet), true
}
