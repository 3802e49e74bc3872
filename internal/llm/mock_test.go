package llm

import (
	"context"
	"errors"
	"testing"
)

func TestMockBackendReturnsCannedText(t *testing.T) {
	m := &MockBackend{Text: "VERDICT=TRUE_POSITIVE\nCITATIONS=src/a.rs:10\n"}
	resp, err := m.Chat(context.Background(), Request{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Text != m.Text {
		t.Errorf("unexpected response: %s", resp.Text)
	}
	if m.Name() != "mock" {
		t.Errorf("expected mock name, got %s", m.Name())
	}
}

func TestMockBackendReturnsConfiguredError(t *testing.T) {
	want := errors.New("boom")
	m := &MockBackend{Err: want}
	_, err := m.Chat(context.Background(), Request{})
	if !errors.Is(err, want) {
		t.Errorf("expected configured error, got %v", err)
	}
}

func TestDispatchRecordsDescriptor(t *testing.T) {
	m := &MockBackend{Text: "ok"}
	req := Request{SystemPrompt: "sys", UserPrompt: "user", Model: "test-model", TopK: 5}

	resp, descriptor, err := Dispatch(context.Background(), m, req, "analyze")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Text != "ok" {
		t.Errorf("unexpected response text: %s", resp.Text)
	}
	if descriptor.Phase != "analyze" {
		t.Errorf("expected phase 'analyze', got %s", descriptor.Phase)
	}
	if descriptor.Backend != "mock" {
		t.Errorf("expected backend 'mock', got %s", descriptor.Backend)
	}
	if descriptor.Model != "test-model" {
		t.Errorf("expected model passthrough, got %s", descriptor.Model)
	}
	if descriptor.TopK != 5 {
		t.Errorf("expected top_k passthrough, got %d", descriptor.TopK)
	}
	if descriptor.PromptChars != len("sys")+len("user") {
		t.Errorf("unexpected prompt_chars: %d", descriptor.PromptChars)
	}
	if descriptor.PromptSHA256 == "" {
		t.Error("expected a non-empty prompt hash")
	}
}

func TestDispatchRecordsDescriptorOnFailure(t *testing.T) {
	m := &MockBackend{Err: errors.New("unavailable")}
	_, descriptor, err := Dispatch(context.Background(), m, Request{UserPrompt: "x"}, "analyze")
	if err == nil {
		t.Fatal("expected an error")
	}
	if descriptor.Backend != "mock" {
		t.Errorf("expected descriptor to still be recorded on failure, got %+v", descriptor)
	}
}
