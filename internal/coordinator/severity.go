package coordinator

import "strings"

// severityOrder ranks the fatal-reason kinds this runner produces from
// least to most severe, mirroring plancritic's severityOrder/
// verdictMeetsThreshold but applied to the aggregate manifest's fatal
// issues instead of one review's findings.
var severityOrder = map[string]int{
	"filtered_to_zero":            1,
	"empty_evidence_strict":       2,
	"fatal_contract_issue":        3,
	"evidence_audit_missing_path": 3,
	"fatal_advice_gate_issue":     3,
}

func severityOf(reason string) string {
	if idx := strings.Index(reason, ":"); idx > 0 {
		return reason[:idx]
	}
	return reason
}

func severityRank(reason string) int {
	if rank, ok := severityOrder[severityOf(reason)]; ok {
		return rank
	}
	return 3
}

// severityMeetsThreshold reports whether reason's severity is at or above
// the named threshold kind. An unrecognized or empty threshold means no
// filtering applies.
func severityMeetsThreshold(reason, threshold string) bool {
	if threshold == "" {
		return true
	}
	thresholdRank, ok := severityOrder[threshold]
	if !ok {
		return true
	}
	return severityRank(reason) >= thresholdRank
}

// filterReasonsBySeverity keeps only the reasons meeting threshold,
// preserving order.
func filterReasonsBySeverity(reasons []string, threshold string) []string {
	if threshold == "" {
		return reasons
	}
	var out []string
	for _, r := range reasons {
		if severityMeetsThreshold(r, threshold) {
			out = append(out, r)
		}
	}
	return out
}

// anyMeetsThreshold reports whether any reason in the list meets
// threshold, used to decide whether --fail-on should promote the run to a
// nonzero exit code.
func anyMeetsThreshold(reasons []string, threshold string) bool {
	if threshold == "" {
		return len(reasons) > 0
	}
	for _, r := range reasons {
		if severityMeetsThreshold(r, threshold) {
			return true
		}
	}
	return false
}
