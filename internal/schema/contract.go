// Package schema implements the Schema Contract Layer: discovery of which
// row keys carry path, line-number, and snippet information, so the
// transformer and prompt composer can extract citation tokens without a
// hard-coded schema per engine.
package schema

import "fmt"

// defaultPathKeys/defaultLineKeys/defaultSnippetKeys are the column-name
// candidates considered when falling back to a stored table's column list.
var (
	defaultPathKeys    = []string{"path", "file", "file_path", "doc_path"}
	defaultLineKeys    = []string{"line", "line_start", "lineno", "heading_line"}
	defaultSnippetKeys = []string{"snippet", "text", "line_text", "heading_text"}
)

// Contract is the effective key set used to extract path/line/snippet data
// from one engine's rows.
type Contract struct {
	PathKeys    []string
	LineKeys    []string
	SnippetKeys []string
	// Source names, per category, which discovery source supplied the
	// final key list: "endpoint", "table", or "observed".
	PathSource    string
	LineSource    string
	SnippetSource string
}

// EndpointResponse is the parsed output of an engine's schema-contract
// endpoint command.
type EndpointResponse struct {
	Metadata      map[string]any `json:"metadata"`
	Columns       []string       `json:"columns"`
	SemanticHints SemanticHints  `json:"semantic_hints"`
}

// SemanticHints is the engine's self-reported key hints, plus the semantic
// categories it claims to support.
type SemanticHints struct {
	Claims      []string `json:"claims"`
	PathKeys    []string `json:"path_keys"`
	LineKeys    []string `json:"line_keys"`
	SnippetKeys []string `json:"snippet_keys"`
}

// BreachError reports that an engine's schema-contract endpoint claimed a
// semantic category without supplying its hint list.
type BreachError struct {
	Engine   string
	Category string
}

func (e *BreachError) Error() string {
	return fmt.Sprintf("schema: engine %q claims semantic category %q but its contract omits the hint list", e.Engine, e.Category)
}

// CheckBreach validates an endpoint response: every claimed category must
// carry a non-empty hint list.
func CheckBreach(engineName string, resp EndpointResponse) error {
	for _, claim := range resp.SemanticHints.Claims {
		switch claim {
		case "path":
			if len(resp.SemanticHints.PathKeys) == 0 {
				return &BreachError{Engine: engineName, Category: "path"}
			}
		case "line":
			if len(resp.SemanticHints.LineKeys) == 0 {
				return &BreachError{Engine: engineName, Category: "line"}
			}
		case "snippet":
			if len(resp.SemanticHints.SnippetKeys) == 0 {
				return &BreachError{Engine: engineName, Category: "snippet"}
			}
		}
	}
	return nil
}

// Discover resolves the effective key set for one engine, per category, in
// priority order: the engine's schema-contract endpoint, then the stored
// table's column list, then keys observed in the current preflight
// payloads. endpoint may be nil when the engine has no endpoint response
// (e.g. schema_endpoint_cmd unset, or the command was not run).
func Discover(engineName string, endpoint *EndpointResponse, tableColumns []string, observedRows []any) (Contract, error) {
	c := Contract{}

	if endpoint != nil {
		if err := CheckBreach(engineName, *endpoint); err != nil {
			return Contract{}, err
		}
	}

	resolveCategory(&c.PathKeys, &c.PathSource, endpoint, tableColumns, observedRows,
		func(h SemanticHints) []string { return h.PathKeys }, defaultPathKeys)
	resolveCategory(&c.LineKeys, &c.LineSource, endpoint, tableColumns, observedRows,
		func(h SemanticHints) []string { return h.LineKeys }, defaultLineKeys)
	resolveCategory(&c.SnippetKeys, &c.SnippetSource, endpoint, tableColumns, observedRows,
		func(h SemanticHints) []string { return h.SnippetKeys }, defaultSnippetKeys)

	return c, nil
}

func resolveCategory(
	dst *[]string,
	source *string,
	endpoint *EndpointResponse,
	tableColumns []string,
	observedRows []any,
	fromEndpoint func(SemanticHints) []string,
	candidates []string,
) {
	if endpoint != nil {
		if keys := fromEndpoint(endpoint.SemanticHints); len(keys) > 0 {
			*dst = keys
			*source = "endpoint"
			return
		}
	}

	if len(tableColumns) > 0 {
		if keys := intersect(candidates, tableColumns); len(keys) > 0 {
			*dst = keys
			*source = "table"
			return
		}
	}

	if keys := observedKeys(observedRows, candidates); len(keys) > 0 {
		*dst = keys
		*source = "observed"
		return
	}

	*dst = nil
	*source = "none"
}

func intersect(candidates, have []string) []string {
	haveSet := make(map[string]bool, len(have))
	for _, h := range have {
		haveSet[h] = true
	}
	var out []string
	for _, c := range candidates {
		if haveSet[c] {
			out = append(out, c)
		}
	}
	return out
}

func observedKeys(rows []any, candidates []string) []string {
	seen := map[string]bool{}
	for _, r := range rows {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		for k := range m {
			seen[k] = true
		}
	}
	var out []string
	for _, c := range candidates {
		if seen[c] {
			out = append(out, c)
		}
	}
	return out
}
