package coordinator

import (
	"time"

	"github.com/dshills/fcdrag/internal/engine"
	"github.com/dshills/fcdrag/internal/llm"
	"github.com/dshills/fcdrag/internal/pack"
	"github.com/dshills/fcdrag/internal/policy"
)

// Options configures one run of the coordinator.
type Options struct {
	OutDir      string
	Pack        *pack.Pack
	Policy      *policy.Policy
	Registry    *engine.Registry
	Backend     llm.Backend
	BackendName string
	Model       string

	ParquetPath string
	IndexPath   string
	TargetDir   string

	// RepoRootName is the top-level directory name the repo is checked out
	// under, used to strip the redundant prefix during path canonicalization.
	RepoRootName string
	// PathUniverse lists every path the stored table covers. The
	// coordinator treats the table as an opaque engine input and expects
	// this list to already be resolved (e.g. from a preflight "list all
	// paths" query) rather than parsing --parquet itself.
	PathUniverse []string

	CachePreflights       bool
	ShortCircuitPreflight bool
	PreflightTimeout      time.Duration

	QuoteBypassMode   string
	EvidenceEmptyGate bool

	SystemPromptGroundingOverride string
	SystemPromptAnalyzeOverride   string

	RedactEnabled bool

	SeverityThreshold string
	FailOn            string
	PatchOutPath      string

	Verbose bool
	Debug   bool
}
