// Package render produces the human-readable REPORT.md from a run's
// manifest and per-question results. It depends only on its own small view
// types so the run coordinator can feed it a report without an import
// cycle back through internal/coordinator.
package render

import (
	"fmt"
	"strings"
)

// Report is the render-facing view of one run, built by the coordinator
// from its RunManifest and QuestionResult values.
type Report struct {
	PackPath    string
	Backend     string
	Model       string
	ExitCode    int
	FatalIssues []string
	Questions   []QuestionView
}

// QuestionView is the render-facing view of one question's outcome.
type QuestionView struct {
	ID                  string
	Answer              string
	Fatal               bool
	FatalReasons        []string
	EvidenceBlocksCount int
	DispatchCount       int
	SchemaIssues        []string
	ProvenanceIssues    []string
	PathGateIssues      []string
	Diagnostics         []DiagnosticView
	Advice              *AdviceView
	PathsMissing        []string
}

// DiagnosticView is a rendered filtered_to_zero-style starvation event.
type DiagnosticView struct {
	Kind       string
	StepName   string
	PreFilter  int
	PostFilter int
}

// AdviceView is the render-facing view of one question's advice result.
type AdviceView struct {
	Attempts   int
	FatalGated bool
	Problems   []string
	Issues     []string
}

// Markdown renders a Report as a Markdown document.
func Markdown(r Report) string {
	var b strings.Builder

	b.WriteString("# FCDRAG Audit Run\n\n")
	fmt.Fprintf(&b, "**Pack:** %s\n", r.PackPath)
	fmt.Fprintf(&b, "**Backend:** %s\n", r.Backend)
	if r.Model != "" {
		fmt.Fprintf(&b, "**Model:** %s\n", r.Model)
	}
	fmt.Fprintf(&b, "**Questions:** %d\n", len(r.Questions))
	fmt.Fprintf(&b, "**Exit code:** %d\n\n", r.ExitCode)

	if len(r.FatalIssues) > 0 {
		b.WriteString("## Fatal Issues\n\n")
		for _, f := range r.FatalIssues {
			fmt.Fprintf(&b, "- %s\n", f)
		}
		b.WriteString("\n")
	} else {
		b.WriteString("No fatal issues.\n\n")
	}

	b.WriteString("## Questions\n\n")
	for _, q := range r.Questions {
		renderQuestion(&b, q)
	}

	return b.String()
}

func renderQuestion(b *strings.Builder, q QuestionView) {
	status := "OK"
	if q.Fatal {
		status = "FATAL"
	}
	fmt.Fprintf(b, "### %s [%s]\n\n", q.ID, status)

	fmt.Fprintf(b, "**Evidence blocks:** %d | **Dispatches:** %d\n\n", q.EvidenceBlocksCount, q.DispatchCount)

	b.WriteString("```\n")
	b.WriteString(q.Answer)
	if !strings.HasSuffix(q.Answer, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("```\n\n")

	renderList(b, "Fatal reasons", q.FatalReasons)
	renderList(b, "Schema issues", q.SchemaIssues)
	renderList(b, "Provenance issues", q.ProvenanceIssues)
	renderList(b, "Path gate issues", q.PathGateIssues)

	if len(q.Diagnostics) > 0 {
		b.WriteString("**Diagnostics:**\n\n")
		for _, d := range q.Diagnostics {
			fmt.Fprintf(b, "- %s: step %q pre_filter=%d post_filter=%d\n", d.Kind, d.StepName, d.PreFilter, d.PostFilter)
		}
		b.WriteString("\n")
	}

	if q.Advice != nil {
		renderAdvice(b, q.Advice)
	}

	renderList(b, "Paths missing from table", q.PathsMissing)
}

func renderList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "**%s:**\n\n", title)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
	b.WriteString("\n")
}

func renderAdvice(b *strings.Builder, a *AdviceView) {
	fmt.Fprintf(b, "**Advice** (attempts: %d", a.Attempts)
	if a.FatalGated {
		b.WriteString(", gated")
	}
	b.WriteString("):\n\n")

	if len(a.Problems) > 0 {
		for _, p := range a.Problems {
			fmt.Fprintf(b, "- %s\n", p)
		}
		b.WriteString("\n")
		return
	}

	for _, issue := range a.Issues {
		fmt.Fprintf(b, "- %s\n", issue)
	}
	b.WriteString("\n")
}
