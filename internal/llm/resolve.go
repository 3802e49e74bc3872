package llm

import (
	"fmt"
	"os"
	"strings"
)

// ResolveBackend selects a chat backend by explicit name, falling back to
// auto-detection from whichever API key environment variable is set.
func ResolveBackend(backendName, model string) (Backend, error) {
	switch strings.ToLower(backendName) {
	case "anthropic":
		return NewAnthropicBackend(model)
	case "openai":
		return NewOpenAIBackend(model)
	case "gemini", "google":
		return NewGeminiBackend(model)
	case "":
		return autoDetectBackend(model)
	default:
		return nil, fmt.Errorf("llm: unknown backend %q", backendName)
	}
}

func autoDetectBackend(model string) (Backend, error) {
	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		return NewAnthropicBackend(model)
	}
	if os.Getenv("OPENAI_API_KEY") != "" {
		return NewOpenAIBackend(model)
	}
	if os.Getenv("GEMINI_API_KEY") != "" || os.Getenv("GOOGLE_API_KEY") != "" {
		return NewGeminiBackend(model)
	}
	return nil, fmt.Errorf("llm: no backend configured; set --backend or one of ANTHROPIC_API_KEY, OPENAI_API_KEY, GEMINI_API_KEY")
}
