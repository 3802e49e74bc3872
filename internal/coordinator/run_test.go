package coordinator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dshills/fcdrag/internal/engine"
	"github.com/dshills/fcdrag/internal/llm"
	"github.com/dshills/fcdrag/internal/pack"
	"github.com/dshills/fcdrag/internal/policy"
)

func basePolicy(t *testing.T) *policy.Policy {
	t.Helper()
	p, err := policy.LoadBuiltin("default")
	if err != nil {
		t.Fatalf("policy.LoadBuiltin: %v", err)
	}
	return p
}

func echoRegistry() *engine.Registry {
	return engine.NewRegistry([]engine.Spec{
		{Name: "code-index", InvocationPrefix: []string{"/bin/echo"}},
	})
}

func basePack(questions ...pack.Question) *pack.Pack {
	return &pack.Pack{
		Version:  "1",
		PackType: "audit",
		Engine:   "code-index",
		Schema: pack.ResponseContract{
			RequiredHeaders: []string{"VERDICT", "CITATIONS"},
			VerdictEnum:     []string{"TRUE_POSITIVE", "FALSE_POSITIVE"},
		},
		Questions: questions,
		FilePath:  "test-pack.yaml",
		Hash:      "sha256:test",
	}
}

func TestRunDeterministicNoEvidenceHappyPath(t *testing.T) {
	p := basePack(pack.Question{
		ID:           "Q1",
		Title:        "no-op question",
		QuestionText: "Is there a problem?",
		ResponseMode: pack.ResponseModeDeterministic,
	})

	pol := basePolicy(t)

	opts := Options{
		Pack:              p,
		Policy:            pol,
		Registry:          echoRegistry(),
		Backend:           &llm.MockBackend{},
		BackendName:       "mock",
		CachePreflights:   true,
		EvidenceEmptyGate: false,
	}

	result, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != 0 {
		t.Fatalf("ExitCode = %d, want 0; fatal issues: %v", result.ExitCode, result.Manifest.FatalIssues)
	}
	if len(result.Results) != 1 {
		t.Fatalf("expected 1 question result, got %d", len(result.Results))
	}
	if !strings.Contains(result.Results[0].Answer, "VERDICT=") {
		t.Errorf("expected deterministic answer to carry a VERDICT= header, got %q", result.Results[0].Answer)
	}
}

func TestRunEmptyEvidenceGateFailsClosed(t *testing.T) {
	p := basePack(pack.Question{
		ID:           "Q1",
		QuestionText: "Is there a problem?",
		ResponseMode: pack.ResponseModeDeterministic,
	})

	pol := basePolicy(t)
	pol.EvidencePresenceGate.FailOnEmptyEvidence = true

	opts := Options{
		Pack:              p,
		Policy:            pol,
		Registry:          echoRegistry(),
		Backend:           &llm.MockBackend{},
		EvidenceEmptyGate: true,
	}

	result, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != 2 {
		t.Fatalf("ExitCode = %d, want 2", result.ExitCode)
	}
	if !result.Results[0].Fatal {
		t.Fatalf("expected question to be fatal")
	}
	found := false
	for _, r := range result.Results[0].FatalReasons {
		if strings.HasPrefix(r, "empty_evidence_strict") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an empty_evidence_strict reason, got %v", result.Results[0].FatalReasons)
	}
}

func TestRunWithEvidenceDispatchesToLLM(t *testing.T) {
	row := `[{"path":"foo.go","line":1,"snippet":"bad code here"}]`
	p := basePack(pack.Question{
		ID:           "Q1",
		QuestionText: "Is there a bug?",
		ResponseMode: pack.ResponseModeLLM,
		PreflightSteps: []pack.PreflightStep{
			{
				Name:         "scan",
				ArgvTemplate: []string{row},
				Render:       "json",
			},
		},
	})

	pol := basePolicy(t)

	opts := Options{
		Pack:              p,
		Policy:            pol,
		Registry:          echoRegistry(),
		Backend:           &llm.MockBackend{Text: "VERDICT=TRUE_POSITIVE\nCITATIONS=foo.go:1\n"},
		BackendName:       "mock",
		CachePreflights:   true,
		EvidenceEmptyGate: true,
	}

	result, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != 0 {
		t.Fatalf("ExitCode = %d, want 0; fatal issues: %v", result.ExitCode, result.Manifest.FatalIssues)
	}
	qr := result.Results[0]
	if qr.RuntimeStats.EvidenceBlocksCount != 1 {
		t.Errorf("expected 1 evidence block, got %d", qr.RuntimeStats.EvidenceBlocksCount)
	}
	if qr.RuntimeStats.DispatchCount != 1 {
		t.Errorf("expected 1 dispatch, got %d", qr.RuntimeStats.DispatchCount)
	}
	if !strings.Contains(qr.Answer, "TRUE_POSITIVE") {
		t.Errorf("expected mock answer to pass through, got %q", qr.Answer)
	}
}

func TestRunLLMDispatchFailureIsFatalNotAnError(t *testing.T) {
	row := `[{"path":"foo.go","line":1,"snippet":"bad code here"}]`
	p := basePack(pack.Question{
		ID:           "Q1",
		QuestionText: "Is there a bug?",
		ResponseMode: pack.ResponseModeLLM,
		PreflightSteps: []pack.PreflightStep{
			{Name: "scan", ArgvTemplate: []string{row}, Render: "json"},
		},
	})

	opts := Options{
		Pack:              p,
		Policy:            basePolicy(t),
		Registry:          echoRegistry(),
		Backend:           &llm.MockBackend{Err: context.DeadlineExceeded},
		EvidenceEmptyGate: true,
	}

	result, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run should not return a hard error on a per-question dispatch failure: %v", err)
	}
	if result.ExitCode != 2 {
		t.Fatalf("ExitCode = %d, want 2", result.ExitCode)
	}
	if !result.Results[0].Fatal {
		t.Fatalf("expected the question carrying the dispatch failure to be fatal")
	}
}

func TestRunFailFastOnlyAbortsOnEmptyEvidenceNotOtherFatals(t *testing.T) {
	row := `[{"path":"foo.go","line":1,"snippet":"bad code here"}]`
	p := basePack(
		pack.Question{
			ID:           "Q1",
			QuestionText: "Is there a bug?",
			ResponseMode: pack.ResponseModeLLM,
			PreflightSteps: []pack.PreflightStep{
				{Name: "scan", ArgvTemplate: []string{row}, Render: "json"},
			},
		},
		pack.Question{
			ID:           "Q2",
			QuestionText: "Is there another problem?",
			ResponseMode: pack.ResponseModeDeterministic,
		},
	)

	pol := basePolicy(t)
	pol.EvidencePresenceGate.FailFast = true

	opts := Options{
		Pack:              p,
		Policy:            pol,
		Registry:          echoRegistry(),
		Backend:           &llm.MockBackend{Err: context.DeadlineExceeded},
		EvidenceEmptyGate: false,
	}

	result, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Results[0].Fatal {
		t.Fatalf("expected Q1 to be fatal (llm dispatch failure)")
	}
	if len(result.Results) != 2 {
		t.Fatalf("expected Q2 to still run after Q1's non-empty-evidence fatal, got %d question result(s)", len(result.Results))
	}
	if result.Results[1].ID != "Q2" {
		t.Errorf("expected second result to be Q2, got %s", result.Results[1].ID)
	}
}

func TestRunNonZeroReturnCodeProducesNoEvidence(t *testing.T) {
	// /bin/sh -c 'echo <row>; exit 1' prints a parseable JSON row but
	// exits non-zero; that must collapse to zero rows, not a real
	// evidence block, per the "failed step never fabricates evidence"
	// invariant.
	row := `[{"path":"foo.go","line":1,"snippet":"bad code here"}]`
	registry := engine.NewRegistry([]engine.Spec{
		{Name: "code-index", InvocationPrefix: []string{"/bin/sh", "-c"}},
	})

	p := basePack(pack.Question{
		ID:           "Q1",
		QuestionText: "Is there a bug?",
		ResponseMode: pack.ResponseModeDeterministic,
		PreflightSteps: []pack.PreflightStep{
			{Name: "scan", ArgvTemplate: []string{"echo '" + row + "'; exit 1"}, Render: "json"},
		},
	})

	pol := basePolicy(t)
	pol.EvidencePresenceGate.FailOnEmptyEvidence = true

	opts := Options{
		Pack:              p,
		Policy:            pol,
		Registry:          registry,
		Backend:           &llm.MockBackend{},
		EvidenceEmptyGate: true,
	}

	result, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	qr := result.Results[0]
	if qr.RuntimeStats.EvidenceBlocksCount != 0 {
		t.Errorf("expected a non-zero-return-code step to produce zero evidence blocks, got %d", qr.RuntimeStats.EvidenceBlocksCount)
	}
	if !qr.Fatal {
		t.Errorf("expected the question to hit the empty-evidence gate instead of fabricating evidence")
	}
}

func TestRunUnresolvableEngineIsInfraError(t *testing.T) {
	p := basePack(pack.Question{ID: "Q1", ResponseMode: pack.ResponseModeDeterministic})
	p.Engine = "no-such-engine"

	opts := Options{
		Pack:     p,
		Policy:   basePolicy(t),
		Registry: echoRegistry(),
		Backend:  &llm.MockBackend{},
	}

	_, err := Run(context.Background(), opts)
	if err == nil {
		t.Fatal("expected an error for an unresolvable engine")
	}
	var ie *InfraError
	if !asInfraError(err, &ie) {
		t.Fatalf("expected *InfraError, got %T: %v", err, err)
	}
	if ie.Code != 4 {
		t.Errorf("Code = %d, want 4", ie.Code)
	}
}

func TestRunBadRegexIsInfraError(t *testing.T) {
	p := basePack(pack.Question{
		ID:           "Q1",
		ResponseMode: pack.ResponseModeDeterministic,
		PreflightSteps: []pack.PreflightStep{
			{
				Name:         "scan",
				ArgvTemplate: []string{"[]"},
				Transform:    &pack.Transform{RequireRegex: []string{"("}},
			},
		},
	})

	opts := Options{
		Pack:     p,
		Policy:   basePolicy(t),
		Registry: echoRegistry(),
		Backend:  &llm.MockBackend{},
	}

	_, err := Run(context.Background(), opts)
	if err == nil {
		t.Fatal("expected an error for an invalid require_regex")
	}
	var ie *InfraError
	if !asInfraError(err, &ie) {
		t.Fatalf("expected *InfraError, got %T: %v", err, err)
	}
	if ie.Code != 3 {
		t.Errorf("Code = %d, want 3", ie.Code)
	}
}

func TestSeverityThresholdFiltersLowerFatals(t *testing.T) {
	p := basePack(pack.Question{
		ID:           "Q1",
		QuestionText: "Is there a problem?",
		ResponseMode: pack.ResponseModeDeterministic,
	})

	pol := basePolicy(t)
	pol.EvidencePresenceGate.FailOnEmptyEvidence = true

	opts := Options{
		Pack:              p,
		Policy:            pol,
		Registry:          echoRegistry(),
		Backend:           &llm.MockBackend{},
		EvidenceEmptyGate: true,
		SeverityThreshold: "fatal_contract_issue",
	}

	result, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != 0 {
		t.Fatalf("ExitCode = %d, want 0 once empty_evidence_strict is filtered below threshold", result.ExitCode)
	}
	if result.Results[0].Fatal {
		t.Errorf("expected the question to no longer be marked fatal after severity filtering")
	}
}

func TestRunWritesOutputFiles(t *testing.T) {
	dir := t.TempDir()
	p := basePack(pack.Question{
		ID:           "Q1",
		QuestionText: "Is there a problem?",
		ResponseMode: pack.ResponseModeDeterministic,
	})

	opts := Options{
		OutDir:            dir,
		Pack:              p,
		Policy:            basePolicy(t),
		Registry:          echoRegistry(),
		Backend:           &llm.MockBackend{},
		EvidenceEmptyGate: false,
	}

	if _, err := Run(context.Background(), opts); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, name := range []string{"REPORT.md", "RUN_MANIFEST.json", "EVIDENCE_DELIVERY_SUMMARY.json", "Q1_chat.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s to be written: %v", name, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "RUN_MANIFEST.json"))
	if err != nil {
		t.Fatal(err)
	}
	var manifest RunManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		t.Fatalf("manifest is not valid JSON: %v", err)
	}
	if manifest.RunID == "" {
		t.Error("expected a non-empty RunID")
	}
}

// asInfraError is a small errors.As wrapper kept local to this file so the
// test package doesn't need to import "errors" just for this one pattern
// repeated across several tests.
func asInfraError(err error, target **InfraError) bool {
	ie, ok := err.(*InfraError)
	if !ok {
		return false
	}
	*target = ie
	return true
}
