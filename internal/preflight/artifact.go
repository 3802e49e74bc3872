// Package preflight implements the Preflight Executor: it
// materializes planned commands, runs them, normalizes stdout, and persists
// signed artifacts with within-run signature caching.
package preflight

import "encoding/json"

// Artifact is the persisted record of one preflight step invocation.
type Artifact struct {
	Argv             []string        `json:"argv"`
	ReturnCode       int             `json:"returncode"`
	Stdout           any             `json:"stdout"`
	StdoutRaw        any             `json:"stdout_raw,omitempty"`
	StdoutRowsFiltered any           `json:"stdout_rows_filtered,omitempty"`
	Stderr           string          `json:"stderr"`
	Signature        string          `json:"signature"`
	Cached           bool            `json:"cached"`
	StepName         string          `json:"step_name"`
}

// RowCount returns the number of rows in the artifact's row-shaped stdout,
// collapsing non-zero return codes, empty stdout, and zero rows to the
// same "zero rows" outcome.
func (a *Artifact) RowCount() int {
	if a.ReturnCode != 0 {
		return 0
	}
	rows := Rows(a.Stdout)
	return len(rows)
}

// Rows extracts the row portion of a parsed stdout payload: the payload
// itself when it is a list, or the first slice-valued field found under a
// conventional key ("rows") when it is a dict. Unparseable or row-less
// payloads yield nil, which callers treat as zero rows.
func Rows(stdout any) []any {
	switch v := stdout.(type) {
	case []any:
		return v
	case map[string]any:
		if rows, ok := v["rows"].([]any); ok {
			return rows
		}
		for _, val := range v {
			if rows, ok := val.([]any); ok {
				return rows
			}
		}
	}
	return nil
}

// IsDict reports whether the parsed stdout payload is a JSON object
// (dict-shaped), as opposed to a JSON array (list-shaped) or raw text.
func IsDict(stdout any) bool {
	_, ok := stdout.(map[string]any)
	return ok
}

// IsList reports whether the parsed stdout payload is a JSON array.
func IsList(stdout any) bool {
	_, ok := stdout.([]any)
	return ok
}

// ParseStdout attempts to parse raw subprocess stdout as JSON; on failure
// it is kept as a raw string.
func ParseStdout(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}
