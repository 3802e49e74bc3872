// Package llm dispatches composed prompts to a chat backend and records a
// dispatch descriptor for the evidence audit.
package llm

import (
	"context"
	"crypto/sha256"
	"fmt"
)

// Request carries one chat dispatch's parameters.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	Model        string
	TopK         int
	MaxTokens    int
	Temperature  float64
	TopP         float64
	NumCtx       int
}

// Response is a backend's answer text.
type Response struct {
	Text string
}

// Backend is the uniform chat interface every LLM provider implements.
type Backend interface {
	Chat(ctx context.Context, req Request) (Response, error)
	Name() string
}

// DispatchDescriptor is appended to a question's evidence audit for every
// chat dispatch, successful or not.
type DispatchDescriptor struct {
	Phase        string `json:"phase"`
	PromptSHA256 string `json:"prompt_sha256"`
	PromptChars  int    `json:"prompt_chars"`
	Backend      string `json:"backend"`
	Model        string `json:"model"`
	TopK         int    `json:"top_k"`
}

// Dispatch runs one chat call and returns both the response and its
// descriptor, regardless of whether the call succeeded.
func Dispatch(ctx context.Context, backend Backend, req Request, phase string) (Response, DispatchDescriptor, error) {
	descriptor := DispatchDescriptor{
		Phase:        phase,
		PromptSHA256: promptHash(req.SystemPrompt + "\n" + req.UserPrompt),
		PromptChars:  len(req.SystemPrompt) + len(req.UserPrompt),
		Backend:      backend.Name(),
		Model:        req.Model,
		TopK:         req.TopK,
	}
	resp, err := backend.Chat(ctx, req)
	return resp, descriptor, err
}

func promptHash(prompt string) string {
	return fmt.Sprintf("sha256:%x", sha256.Sum256([]byte(prompt)))
}
