// Package coordinator implements the Run Coordinator: the state machine
// that sequences pack/policy loading, per-question preflight through
// evidence-audit, and run-level aggregation into a manifest, report, and
// exit code.
package coordinator

import (
	"github.com/dshills/fcdrag/internal/advice"
	"github.com/dshills/fcdrag/internal/evidenceaudit"
	"github.com/dshills/fcdrag/internal/llm"
	"github.com/dshills/fcdrag/internal/preflight"
	"github.com/dshills/fcdrag/internal/transform"
	"github.com/dshills/fcdrag/internal/validate"
)

// RuntimeStats summarizes one question's work for the manifest/report.
type RuntimeStats struct {
	PreflightStepsRun   int `json:"preflight_steps_run"`
	EvidenceBlocksCount int `json:"evidence_blocks_count"`
	DispatchCount       int `json:"dispatch_count"`
}

// QuestionResult is the full outcome of running one question through the
// pipeline.
type QuestionResult struct {
	ID                     string                        `json:"id"`
	Answer                 string                        `json:"answer"`
	Sources                []string                       `json:"sources"`
	DeterministicArtifacts []*preflight.Artifact          `json:"deterministic_artifacts,omitempty"`
	EvidenceBlocks         []transform.EvidenceBlock      `json:"evidence_blocks"`
	ValidatorIssues        []validate.Issue               `json:"validator_issues"`
	SchemaIssues           []string                        `json:"schema_issues"`
	ProvenanceIssues       []string                        `json:"provenance_issues"`
	PathGateIssues         []string                        `json:"path_gate_issues"`
	AdviceResult           *advice.Result                  `json:"advice_result,omitempty"`
	RuntimeStats           RuntimeStats                    `json:"runtime_stats"`
	EvidenceAudit          evidenceaudit.EvidenceAuditRow   `json:"evidence_audit"`
	Dispatches             []llm.DispatchDescriptor        `json:"dispatches"`
	Diagnostics            []transform.Diagnostic          `json:"diagnostics,omitempty"`
	Fatal                  bool                             `json:"fatal"`
	FatalReasons           []string                         `json:"fatal_reasons,omitempty"`
}

// splitIssuesByKind buckets the flat validator issue list into the
// per-category string lists the QuestionResult JSON shape names
// separately (schema_issues, provenance_issues, path_gate_issues).
func splitIssuesByKind(issues []validate.Issue) (schemaIssues, provenanceIssues, pathGateIssues []string) {
	for _, iss := range issues {
		switch iss.Kind {
		case "schema":
			schemaIssues = append(schemaIssues, iss.Message)
		case "provenance":
			provenanceIssues = append(provenanceIssues, iss.Message)
		case "path_gate_a", "path_gate_b":
			pathGateIssues = append(pathGateIssues, iss.Message)
		}
	}
	return
}

// RunManifest is the top-level, machine-readable record of one run.
type RunManifest struct {
	RunID       string                   `json:"run_id"`
	PackPath    string                   `json:"pack_path"`
	PackHash    string                   `json:"pack_hash"`
	ParquetPath string                   `json:"parquet_path,omitempty"`
	IndexPath   string                   `json:"index_path,omitempty"`
	Backend     string                   `json:"backend"`
	Model       string                   `json:"model"`
	Questions   []QuestionManifestEntry  `json:"questions"`
	FatalIssues []string                 `json:"fatal_issues"`
	ExitCode    int                      `json:"exit_code"`
}

// QuestionManifestEntry is one question's manifest-level summary.
type QuestionManifestEntry struct {
	ID      string   `json:"id"`
	Fatal   bool     `json:"fatal"`
	Reasons []string `json:"reasons,omitempty"`
}

// Result is what Run returns to its caller (the CLI layer): the full
// manifest plus the exit code to propagate via os.Exit.
type Result struct {
	Manifest RunManifest
	Summary  evidenceaudit.RunSummary
	Results  []QuestionResult
	ExitCode int
}
