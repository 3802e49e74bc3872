package engine

import "testing"

func TestLoadBuiltinResolvesKnownEngines(t *testing.T) {
	r, err := LoadBuiltin()
	if err != nil {
		t.Fatalf("LoadBuiltin: %v", err)
	}
	spec, err := r.Resolve("code-index")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if spec.ChatSubcommand != "chat" {
		t.Errorf("expected chat subcommand, got %q", spec.ChatSubcommand)
	}
	if !spec.NeedsIndex("search") {
		t.Error("expected 'search' to require index flags")
	}
	if spec.NeedsIndex("schema") {
		t.Error("did not expect 'schema' to require index flags")
	}
}

func TestResolveUnknownEngine(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Resolve("nonexistent-engine")
	if err == nil {
		t.Fatal("expected ErrEngineUnknown")
	}
	var unknown *ErrEngineUnknown
	if !asEngineUnknown(err, &unknown) {
		t.Fatalf("expected *ErrEngineUnknown, got %T", err)
	}
	if unknown.Name != "nonexistent-engine" {
		t.Errorf("expected name in error, got %q", unknown.Name)
	}
}

func asEngineUnknown(err error, target **ErrEngineUnknown) bool {
	e, ok := err.(*ErrEngineUnknown)
	if !ok {
		return false
	}
	*target = e
	return true
}
