package transform

import (
	"testing"

	"github.com/dshills/fcdrag/internal/pack"
	"github.com/dshills/fcdrag/internal/preflight"
)

func schemaKeys() SchemaKeys {
	return SchemaKeys{
		PathKeys:    []string{"path"},
		LineKeys:    []string{"line"},
		SnippetKeys: []string{"snippet"},
	}
}

func mkRow(path string, line float64, snippet string) map[string]any {
	return map[string]any{"path": path, "line": line, "snippet": snippet}
}

func TestApplyShapePreservingDict(t *testing.T) {
	artifact := &preflight.Artifact{
		Stdout: map[string]any{
			"summary": map[string]any{"grade": "B"},
			"rows": []any{
				mkRow("src/a.rs", 1, "fn a()"),
				mkRow("src/b.rs", 2, "fn b()"),
				mkRow("src/c.rs", 3, "fn c()"),
			},
		},
	}

	filtered := []any{mkRow("src/a.rs", 1, "fn a()")}
	ApplyShapePreserving(artifact, filtered)

	dict, ok := artifact.Stdout.(map[string]any)
	if !ok {
		t.Fatal("expected stdout to remain dict-shaped")
	}
	if _, ok := dict["summary"]; !ok {
		t.Error("expected 'summary' key preserved in stdout")
	}
	if _, ok := dict["rows"]; !ok {
		t.Error("expected 'rows' key preserved in stdout (unfiltered)")
	}
	rowsFiltered, ok := artifact.StdoutRowsFiltered.([]any)
	if !ok || len(rowsFiltered) != 1 {
		t.Fatalf("expected StdoutRowsFiltered with 1 row, got %v", artifact.StdoutRowsFiltered)
	}
}

func TestApplyShapePreservingList(t *testing.T) {
	original := []any{mkRow("a.go", 1, "x"), mkRow("b.go", 2, "y")}
	artifact := &preflight.Artifact{Stdout: original}

	filtered := []any{mkRow("a.go", 1, "x")}
	ApplyShapePreserving(artifact, filtered)

	newList, ok := artifact.Stdout.([]any)
	if !ok || len(newList) != 1 {
		t.Fatalf("expected stdout replaced with filtered list, got %v", artifact.Stdout)
	}
	rawList, ok := artifact.StdoutRaw.([]any)
	if !ok || len(rawList) != 2 {
		t.Fatalf("expected StdoutRaw to retain original list, got %v", artifact.StdoutRaw)
	}
}

func TestApplyExcludesStalePaths(t *testing.T) {
	artifact := &preflight.Artifact{
		Stdout: []any{
			mkRow("audit_runs/2024/out.json", 1, "x"),
			mkRow("src/main.go", 2, "y"),
		},
	}
	res, err := Apply(artifact, &pack.Transform{}, Options{
		StalePathDenylist: []string{"audit_runs/"},
		SchemaKeys:        schemaKeys(),
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("expected 1 row after stale-path exclusion, got %d", len(res.Rows))
	}
	p, _ := rowPath(res.Rows[0], []string{"path"})
	if p != "src/main.go" {
		t.Errorf("expected surviving row to be src/main.go, got %s", p)
	}
}

func TestApplyExcludeTestFiles(t *testing.T) {
	artifact := &preflight.Artifact{
		Stdout: []any{
			mkRow("src/main.go", 1, "x"),
			mkRow("src/main_test.go", 2, "y"),
		},
	}
	res, err := Apply(artifact, &pack.Transform{ExcludeTestFiles: true}, Options{
		TestPathPatterns: []string{`_test\.go$`},
		SchemaKeys:        schemaKeys(),
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("expected 1 row after test-file exclusion, got %d", len(res.Rows))
	}
}

func TestApplyExcludeComments(t *testing.T) {
	artifact := &preflight.Artifact{
		Stdout: []any{
			mkRow("src/main.go", 1, "// a comment"),
			mkRow("src/main.go", 2, "func main() {}"),
		},
	}
	res, err := Apply(artifact, &pack.Transform{ExcludeComments: true}, Options{SchemaKeys: schemaKeys()})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("expected 1 row after comment exclusion, got %d", len(res.Rows))
	}
}

func TestApplyRequireRegexMatchesPathOrText(t *testing.T) {
	artifact := &preflight.Artifact{
		Stdout: []any{
			mkRow("src/auth.go", 1, "checkPassword(x)"),
			mkRow("src/other.go", 2, "doSomethingElse()"),
		},
	}
	res, err := Apply(artifact, &pack.Transform{RequireRegex: []string{`(?i)password`}}, Options{SchemaKeys: schemaKeys()})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("expected 1 matching row, got %d", len(res.Rows))
	}
}

func TestApplyRequireRegexCompileErrorIsFatal(t *testing.T) {
	if err := CompileRegexes([]string{"(unclosed"}); err == nil {
		t.Fatal("expected compile error for invalid regex")
	}
}

func TestApplyStarvationDiagnostic(t *testing.T) {
	rows := make([]any, 200)
	for i := range rows {
		rows[i] = mkRow("src/file.go", float64(i), "nomatch")
	}
	artifact := &preflight.Artifact{Stdout: rows, StepName: "R_BIG_1"}
	res, err := Apply(artifact, &pack.Transform{RequireContains: []string{"definitely-not-present"}}, Options{
		StarvationThreshold: 20,
		SchemaKeys:           schemaKeys(),
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(res.Rows) != 0 {
		t.Fatalf("expected 0 rows post-filter, got %d", len(res.Rows))
	}
	if len(res.Diagnostics) != 1 || res.Diagnostics[0].Kind != "filtered_to_zero" {
		t.Fatalf("expected a filtered_to_zero diagnostic, got %v", res.Diagnostics)
	}
	if res.Diagnostics[0].PreFilter != 200 || res.Diagnostics[0].PostFilter != 0 {
		t.Errorf("unexpected diagnostic counts: %+v", res.Diagnostics[0])
	}
}

func TestApplyMaxItemsBounds(t *testing.T) {
	artifact := &preflight.Artifact{
		Stdout: []any{mkRow("a", 1, "x"), mkRow("b", 2, "y"), mkRow("c", 3, "z")},
	}
	res, err := Apply(artifact, &pack.Transform{MaxItems: 2}, Options{SchemaKeys: schemaKeys()})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("expected max_items to cap at 2, got %d", len(res.Rows))
	}
}

func TestGroupByPathTopN(t *testing.T) {
	countRows := []any{
		map[string]any{"path": "src/hot.go", "count": float64(50)},
		map[string]any{"path": "src/cold.go", "count": float64(1)},
	}
	countArtifact := &preflight.Artifact{Stdout: countRows}

	detailRows := []any{
		mkRow("src/hot.go", 1, "a"),
		mkRow("src/hot.go", 2, "b"),
		mkRow("src/cold.go", 3, "c"),
	}
	detailArtifact := &preflight.Artifact{Stdout: detailRows}

	res, err := Apply(detailArtifact, &pack.Transform{
		GroupByPathTopN: 1,
		GroupByPathStep: "counts",
	}, Options{
		SchemaKeys:    schemaKeys(),
		StepArtifacts: map[string]*preflight.Artifact{"counts": countArtifact},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	for _, r := range res.Rows {
		p, _ := rowPath(r, []string{"path"})
		if p != "src/hot.go" {
			t.Errorf("expected only src/hot.go rows to survive top-1 narrowing, found %s", p)
		}
	}
	if len(res.Rows) != 2 {
		t.Errorf("expected 2 rows for src/hot.go, got %d", len(res.Rows))
	}
}
