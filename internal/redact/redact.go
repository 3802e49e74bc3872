// Package redact scrubs secret-shaped text out of a composed prompt before
// it is dispatched to an LLM backend. Evidence blocks quote the target
// repository's own source verbatim, so a question whose preflight turned up
// a config file or checked-in credential would otherwise forward it
// straight into the chat request.
package redact

import "regexp"

var patterns []*regexp.Regexp

func init() {
	raw := []string{
		// AWS access key IDs
		`AKIA[0-9A-Z]{16}`,
		// AWS secret access keys (40 char base64 after common prefixes)
		`(?i)(aws_secret_access_key|aws_secret)\s*[:=]\s*[A-Za-z0-9/+=]{40}`,
		// Private key blocks
		`-----BEGIN [A-Z ]+PRIVATE KEY-----[\s\S]*?-----END [A-Z ]+PRIVATE KEY-----`,
		// Bearer tokens
		`Bearer\s+[A-Za-z0-9\-._~+/]+=*`,
		// Chat backend API keys in the shapes this runner's own
		// anthropic/openai/gemini backends read from the environment
		// (sk-ant-..., sk-proj-..., AIza...), in case a scanned source
		// file or .env hardcodes one.
		`sk-ant-[A-Za-z0-9\-_]{20,}`,
		`sk-proj-[A-Za-z0-9\-_]{20,}`,
		`AIza[A-Za-z0-9\-_]{20,}`,
		// GitHub personal access tokens, a common secret-shaped literal
		// turned up by a preflight scan over application source.
		`gh[pousr]_[A-Za-z0-9]{30,}`,
		// Generic key/secret/token/password assignments
		`(?i)(api[_-]?key|api[_-]?secret|secret[_-]?key|token|password|passwd|credentials)\s*[:=]\s*\S+`,
	}
	for _, r := range raw {
		patterns = append(patterns, regexp.MustCompile(r))
	}
}

// Redact replaces secret patterns in text with [REDACTED].
func Redact(text string) string {
	for _, p := range patterns {
		text = p.ReplaceAllString(text, "[REDACTED]")
	}
	return text
}
