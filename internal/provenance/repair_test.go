package provenance

import (
	"strings"
	"testing"
)

func TestRepairScenarioS1(t *testing.T) {
	answer := "VERDICT=TRUE_POSITIVE\nCITATIONS=R_META_1_files.json:1\nBody mentions src/a.rs.\n"
	sources := []EvidenceSource{
		{Tokens: []string{"R_META_1_files.json:1", "src/a.rs:10"}},
	}

	repaired, changed := Repair(answer, sources)
	if !changed {
		t.Fatal("expected the repairer to report a change")
	}
	if !strings.Contains(repaired, "CITATIONS=R_META_1_files.json:1, src/a.rs:10") {
		t.Fatalf("unexpected repaired answer:\n%s", repaired)
	}
}

func TestRepairIdempotent(t *testing.T) {
	answer := "VERDICT=TRUE_POSITIVE\nCITATIONS=R_META_1_files.json:1\nBody mentions src/a.rs.\n"
	sources := []EvidenceSource{
		{Tokens: []string{"R_META_1_files.json:1", "src/a.rs:10"}},
	}

	once, changedOnce := Repair(answer, sources)
	if !changedOnce {
		t.Fatal("expected first pass to change the answer")
	}
	twice, changedTwice := Repair(once, sources)
	if changedTwice {
		t.Error("expected second pass over the already-repaired answer to report no change")
	}
	if once != twice {
		t.Errorf("expected idempotent repair, got:\nfirst:  %q\nsecond: %q", once, twice)
	}
}

func TestRepairNeverInventsTokens(t *testing.T) {
	answer := "VERDICT=TRUE_POSITIVE\nCITATIONS=\nBody mentions src/unknown.go which has no evidence backing.\n"
	sources := []EvidenceSource{
		{Tokens: []string{"src/other.go:3"}},
	}

	repaired, changed := Repair(answer, sources)
	if changed {
		t.Errorf("expected no change since evidence has no token for the mentioned path, got:\n%s", repaired)
	}
}

func TestRepairInsertsCitationsLineWhenMissing(t *testing.T) {
	answer := "VERDICT=FALSE_POSITIVE\nNo citations header at all, but mentions src/a.rs.\n"
	sources := []EvidenceSource{
		{Tokens: []string{"src/a.rs:10"}},
	}

	repaired, changed := Repair(answer, sources)
	if !changed {
		t.Fatal("expected a citations line to be inserted")
	}
	if !strings.Contains(repaired, "CITATIONS=src/a.rs:10") {
		t.Fatalf("expected an inserted citations line, got:\n%s", repaired)
	}
	lines := strings.Split(repaired, "\n")
	if lines[0] != "VERDICT=FALSE_POSITIVE" || lines[1] != "CITATIONS=src/a.rs:10" {
		t.Errorf("expected citations line immediately after verdict, got: %v", lines[:2])
	}
}

func TestRepairMultipleBodyPathsOrderedByBodyAppearance(t *testing.T) {
	answer := "VERDICT=TRUE_POSITIVE\nCITATIONS=\nsrc/first.go and then src/second.go are both involved.\n"
	sources := []EvidenceSource{
		{Tokens: []string{"src/first.go:1", "src/second.go:9"}},
	}
	repaired, changed := Repair(answer, sources)
	if !changed {
		t.Fatal("expected a change")
	}
	if !strings.Contains(repaired, "CITATIONS=src/first.go:1, src/second.go:9") {
		t.Fatalf("unexpected token order:\n%s", repaired)
	}
}
