package transform

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RenderMode selects how a filtered row list is rendered into an evidence
// block.
type RenderMode string

const (
	RenderList  RenderMode = "list"
	RenderBlock RenderMode = "block"
	RenderLines RenderMode = "lines"
	RenderJSON  RenderMode = "json"
)

// EvidenceBlock is a rendered, bounded string ready for prompt injection,
// plus the citation anchor tokens it makes available.
type EvidenceBlock struct {
	StepName string
	Mode     RenderMode
	Text     string
	CiteAnchor string
	Tokens   []string
}

// Render produces an EvidenceBlock from filtered rows, attaching a
// CITE=<artifact_basename>:1 anchor plus per-row path:line tokens where the
// schema permits.
func Render(stepName string, mode RenderMode, rows []any, keys SchemaKeys, maxChars int) EvidenceBlock {
	if mode == "" {
		mode = RenderList
	}

	anchor := fmt.Sprintf("CITE=%s:1", stepName)

	var body string
	switch mode {
	case RenderBlock:
		body = renderBlock(rows)
	case RenderLines:
		body = renderLines(rows, keys)
	case RenderJSON:
		body = renderJSON(rows)
	default:
		body = renderListMode(rows, keys)
	}

	if maxChars > 0 && len(body) > maxChars {
		body = body[:maxChars]
	}

	tokens := []string{stepName + ":1"}
	tokens = append(tokens, rowTokens(rows, keys)...)

	return EvidenceBlock{
		StepName:   stepName,
		Mode:       mode,
		Text:       fmt.Sprintf("[%s] %s\n%s", stepName, anchor, body),
		CiteAnchor: anchor,
		Tokens:     tokens,
	}
}

func renderListMode(rows []any, keys SchemaKeys) string {
	var b strings.Builder
	for _, r := range rows {
		p, hasPath := rowPath(r, keys.PathKeys)
		snippet := rowSnippet(r, keys.SnippetKeys)
		if hasPath {
			fmt.Fprintf(&b, "- %s: %s\n", p, snippet)
		} else {
			fmt.Fprintf(&b, "- %v\n", r)
		}
	}
	return b.String()
}

func renderLines(rows []any, keys SchemaKeys) string {
	var b strings.Builder
	for _, r := range rows {
		snippet := rowSnippet(r, keys.SnippetKeys)
		if snippet == "" {
			snippet = fmt.Sprintf("%v", r)
		}
		b.WriteString(snippet)
		b.WriteString("\n")
	}
	return b.String()
}

func renderBlock(rows []any) string {
	var b strings.Builder
	b.WriteString("```\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%v\n", r)
	}
	b.WriteString("```\n")
	return b.String()
}

func renderJSON(rows []any) string {
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(data)
}

// rowTokens extracts path:line citation tokens from rows where the schema
// keys permit.
func rowTokens(rows []any, keys SchemaKeys) []string {
	var tokens []string
	for _, r := range rows {
		p, ok := rowPath(r, keys.PathKeys)
		if !ok {
			continue
		}
		line, ok := rowLine(r, keys.LineKeys)
		if !ok {
			continue
		}
		tokens = append(tokens, fmt.Sprintf("%s:%s", p, line))
	}
	return tokens
}

func rowLine(row any, keys []string) (string, bool) {
	m, ok := row.(map[string]any)
	if !ok {
		return "", false
	}
	for _, k := range keys {
		if v, ok := m[k]; ok {
			switch n := v.(type) {
			case float64:
				return fmt.Sprintf("%d", int(n)), true
			case string:
				if n != "" {
					return n, true
				}
			}
		}
	}
	return "", false
}
