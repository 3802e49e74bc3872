package evidenceaudit

import "testing"

func TestCanonicalizeStripsRepoRootPrefix(t *testing.T) {
	got, ok := Canonicalize("repo_name/src/b.rs", "repo_name")
	if !ok || got != "src/b.rs" {
		t.Errorf("got %q, %v", got, ok)
	}
}

func TestCanonicalizeResolvesAbsolutePath(t *testing.T) {
	got, ok := Canonicalize("/abs/repo_name/src/c.rs", "repo_name")
	if !ok || got != "src/c.rs" {
		t.Errorf("got %q, %v", got, ok)
	}
}

func TestCanonicalizeNormalizesSeparators(t *testing.T) {
	got, ok := Canonicalize(`repo_name\src\d.rs`, "repo_name")
	if !ok || got != "src/d.rs" {
		t.Errorf("got %q, %v", got, ok)
	}
}

func TestCanonicalizeDropsGitPath(t *testing.T) {
	_, ok := Canonicalize(".git/HEAD", "repo_name")
	if ok {
		t.Error("expected .git path to be dropped")
	}
}

func TestCanonicalizeDropsToolchainPath(t *testing.T) {
	_, ok := Canonicalize("/usr/lib/go/src/fmt/print.go", "repo_name")
	if ok {
		t.Error("expected toolchain path to be dropped")
	}
}

func TestCanonicalizeDropsAbsolutePathWithoutRepoRoot(t *testing.T) {
	_, ok := Canonicalize("/some/other/tree/src/a.rs", "repo_name")
	if ok {
		t.Error("expected absolute path never mentioning the repo root to be dropped")
	}
}

func TestCanonicalizeIsIdempotent(t *testing.T) {
	first, ok := Canonicalize("repo_name/src/b.rs", "repo_name")
	if !ok {
		t.Fatal("first canonicalization failed")
	}
	second, ok := Canonicalize(first, "repo_name")
	if !ok || second != first {
		t.Errorf("expected idempotence, got %q then %q", first, second)
	}
}
