// Package policy loads the runner policy: default filters, evidence gates,
// advice-quality gates, issue caps, and filenames.
package policy

import (
	"embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// EvidencePresenceGate controls empty-evidence strictness.
type EvidencePresenceGate struct {
	FailOnEmptyEvidence bool `yaml:"fail_on_empty_evidence"`
	FailFast            bool `yaml:"fail_fast"`
}

// AdviceQualityGate controls advice-validation thresholds.
type AdviceQualityGate struct {
	RequiredFields      []string `yaml:"required_fields"`
	MinIssues           int      `yaml:"min_issues"`
	AntiPraiseRegex     []string `yaml:"anti_praise_regex"`
	ImperativeVerbRegex string   `yaml:"imperative_verb_regex"`
}

// IssueCaps bounds report-readability list lengths.
type IssueCaps struct {
	UnknownPaths   int `yaml:"unknown_paths"`
	UncitedPaths   int `yaml:"uncited_paths"`
	Sources        int `yaml:"sources"`
	AdviceTopKCap  int `yaml:"advice_top_k_cap"`
}

// AdviceRetry controls the advice repair-and-retry loop.
type AdviceRetry struct {
	Attempts        int    `yaml:"attempts"`
	OnValidationFail string `yaml:"on_validation_fail"`
}

// Policy is the full runner policy.
type Policy struct {
	Name                string               `yaml:"name"`
	Excludes            []string             `yaml:"excludes"`
	Includes            []string             `yaml:"includes"`
	TestPathPatterns    []string             `yaml:"test_path_patterns"`
	StalePathDenylist   []string             `yaml:"stale_path_denylist"`
	EvidencePresenceGate EvidencePresenceGate `yaml:"evidence_presence_gate"`
	AdviceQualityGate   AdviceQualityGate    `yaml:"advice_quality_gate"`
	IssueCaps           IssueCaps            `yaml:"issue_caps"`
	AdviceRetry         AdviceRetry          `yaml:"advice_retry"`
	ReportFilename      string               `yaml:"report_filename"`
	ManifestFilename    string               `yaml:"manifest_filename"`
	EvidenceAuditSummaryFilename string      `yaml:"evidence_audit_summary_filename"`
	PathAliases         map[string]string    `yaml:"path_aliases"`
	QuoteBypassMode     string               `yaml:"quote_bypass_mode"`
	StarvationThreshold int                  `yaml:"starvation_threshold"`
	ElevateStarvation   bool                 `yaml:"elevate_starvation"`
	MissionMode         bool                 `yaml:"mission_mode"`
}

// EnvOverrideVar is the environment variable that overrides the default
// runner policy file path.
const EnvOverrideVar = "RUNNER_POLICY_PATH"

// Resolve loads the runner policy: an explicit path, else $RUNNER_POLICY_PATH,
// else the embedded "default" builtin policy.
func Resolve(explicitPath string) (*Policy, error) {
	if explicitPath != "" {
		return loadFile(explicitPath)
	}
	if envPath := os.Getenv(EnvOverrideVar); envPath != "" {
		return loadFile(envPath)
	}
	return LoadBuiltin("default")
}

func loadFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy.loadFile: %w", err)
	}
	return parse(data)
}

// LoadBuiltin loads a built-in policy preset by name ("default" or "mission").
func LoadBuiltin(name string) (*Policy, error) {
	data, err := builtinFS.ReadFile("builtin/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("policy.LoadBuiltin: unknown policy %q: %w", name, err)
	}
	return parse(data)
}

func parse(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("policy.parse: %w", err)
	}
	applyDefaults(&p)
	return &p, nil
}

func applyDefaults(p *Policy) {
	if p.ReportFilename == "" {
		p.ReportFilename = "REPORT.md"
	}
	if p.ManifestFilename == "" {
		p.ManifestFilename = "RUN_MANIFEST.json"
	}
	if p.EvidenceAuditSummaryFilename == "" {
		p.EvidenceAuditSummaryFilename = "EVIDENCE_DELIVERY_SUMMARY.json"
	}
	if p.QuoteBypassMode == "" {
		p.QuoteBypassMode = "auto"
	}
	if p.IssueCaps.UnknownPaths == 0 {
		p.IssueCaps.UnknownPaths = 25
	}
	if p.IssueCaps.UncitedPaths == 0 {
		p.IssueCaps.UncitedPaths = 25
	}
	if p.IssueCaps.Sources == 0 {
		p.IssueCaps.Sources = 50
	}
	if p.AdviceRetry.Attempts == 0 {
		p.AdviceRetry.Attempts = 1
	}
}

// CanonicalPath resolves a legacy filename through PathAliases, returning
// the input unchanged when no alias applies.
func (p *Policy) CanonicalPath(name string) string {
	if canonical, ok := p.PathAliases[name]; ok {
		return canonical
	}
	return name
}
