// Package transform implements the Evidence Transformer: a
// declarative filter pipeline over preflight rows, applied in a fixed
// order, followed by bounded, shape-preserving rendering into evidence
// blocks (internal/transform/render.go).
package transform

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/dshills/fcdrag/internal/pack"
	"github.com/dshills/fcdrag/internal/preflight"
)

// CommentPredicate decides whether a line is comment-only. It is pluggable
// since the heuristic is language-family dependent.
type CommentPredicate func(line string) bool

// DefaultCommentPredicate flags lines whose first non-whitespace
// characters are a common single-line comment marker.
func DefaultCommentPredicate(line string) bool {
	trimmed := strings.TrimSpace(line)
	for _, marker := range []string{"//", "#", "--"} {
		if strings.HasPrefix(trimmed, marker) {
			return true
		}
	}
	return false
}

// Diagnostic records a filtered-to-zero starvation event.
type Diagnostic struct {
	StepName   string
	PreFilter  int
	PostFilter int
	Kind       string
}

// Options configures one transform pass over a question's preflight
// artifacts.
type Options struct {
	DefaultExcludes    []string
	DefaultIncludes    []string
	StalePathDenylist  []string
	TestPathPatterns   []string
	CommentPredicate   CommentPredicate
	StarvationThreshold int
	SchemaKeys         SchemaKeys
	// StepArtifacts allows group_by_path_top_n to reference an earlier
	// step's rows by name.
	StepArtifacts map[string]*preflight.Artifact
}

// SchemaKeys names the row fields carrying path/line/snippet data, so the
// transformer can extract citation tokens.
type SchemaKeys struct {
	PathKeys    []string
	LineKeys    []string
	SnippetKeys []string
}

// Result is the outcome of applying a Transform to one preflight artifact.
type Result struct {
	Artifact    *preflight.Artifact
	Rows        []any
	Diagnostics []Diagnostic
}

var regexCache = map[string]*regexp.Regexp{}

// CompileRegexes validates that every require_regex pattern across a pack
// compiles, fatally, at pack-validation time rather than silently disabling
// the filter later.
func CompileRegexes(patterns []string) error {
	for _, p := range patterns {
		if _, err := compile(p); err != nil {
			return fmt.Errorf("transform.CompileRegexes: invalid require_regex %q: %w", p, err)
		}
	}
	return nil
}

func compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := regexCache[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	regexCache[pattern] = re
	return re, nil
}

// Apply runs the full filter pipeline over one preflight artifact in a
// fixed order, preserving the artifact's original shape.
func Apply(artifact *preflight.Artifact, t *pack.Transform, opts Options) (*Result, error) {
	if t == nil {
		t = &pack.Transform{}
	}

	// A non-zero return code collapses to zero rows, the same as empty or
	// unparseable stdout, so a failed deterministic step can never be
	// mistaken for filtered-to-zero evidence.
	var rows []any
	if artifact.ReturnCode == 0 {
		rows = preflight.Rows(artifact.Stdout)
	}
	preCount := len(rows)

	filtered := rows

	filtered = excludePaths(filtered, opts.StalePathDenylist, opts.SchemaKeys)
	filtered = excludePaths(filtered, opts.DefaultExcludes, opts.SchemaKeys)
	filtered = excludePaths(filtered, t.Excludes, opts.SchemaKeys)

	includes := t.Includes
	if len(includes) == 0 {
		includes = opts.DefaultIncludes
	}
	if len(includes) > 0 {
		filtered = includePaths(filtered, includes, opts.SchemaKeys)
	}

	if t.ExcludeTestFiles {
		patterns := t.TestPathPatterns
		if len(patterns) == 0 {
			patterns = opts.TestPathPatterns
		}
		filtered = excludeTestFiles(filtered, patterns, opts.SchemaKeys)
	}

	if t.ExcludeComments {
		pred := opts.CommentPredicate
		if pred == nil {
			pred = DefaultCommentPredicate
		}
		filtered = excludeComments(filtered, pred, opts.SchemaKeys)
	}

	if len(t.RequireContains) > 0 {
		filtered = requireContains(filtered, t.RequireContains, opts.SchemaKeys)
	}

	if len(t.RequireRegex) > 0 {
		var err error
		filtered, err = requireRegex(filtered, t.RequireRegex, opts.SchemaKeys)
		if err != nil {
			return nil, err
		}
	}

	if t.GroupByPathTopN > 0 {
		filtered = groupByPathTopN(filtered, t, opts)
	}

	if t.FilterFn != "" {
		filtered = applyFilterFn(t.FilterFn, filtered, opts.SchemaKeys)
	}

	var diagnostics []Diagnostic
	threshold := opts.StarvationThreshold
	if threshold <= 0 {
		threshold = 20
	}
	if preCount >= threshold && len(filtered) == 0 {
		diagnostics = append(diagnostics, Diagnostic{
			StepName:   artifact.StepName,
			PreFilter:  preCount,
			PostFilter: 0,
			Kind:       "filtered_to_zero",
		})
	}

	if t.MaxItems > 0 && len(filtered) > t.MaxItems {
		filtered = filtered[:t.MaxItems]
	}

	return &Result{Artifact: artifact, Rows: filtered, Diagnostics: diagnostics}, nil
}

func rowPath(row any, keys []string) (string, bool) {
	m, ok := row.(map[string]any)
	if !ok {
		return "", false
	}
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

func rowSnippet(row any, keys []string) string {
	m, ok := row.(map[string]any)
	if !ok {
		return ""
	}
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

func matchesAnyGlob(path string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, path); ok {
			return true
		}
		if strings.Contains(path, p) {
			return true
		}
	}
	return false
}

func excludePaths(rows []any, patterns []string, keys SchemaKeys) []any {
	if len(patterns) == 0 {
		return rows
	}
	var out []any
	for _, r := range rows {
		p, ok := rowPath(r, keys.PathKeys)
		if ok && matchesAnyGlob(p, patterns) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func includePaths(rows []any, patterns []string, keys SchemaKeys) []any {
	var out []any
	for _, r := range rows {
		p, ok := rowPath(r, keys.PathKeys)
		if ok && matchesAnyGlob(p, patterns) {
			out = append(out, r)
		}
	}
	return out
}

func excludeTestFiles(rows []any, patterns []string, keys SchemaKeys) []any {
	var compiled []*regexp.Regexp
	for _, p := range patterns {
		if re, err := compile(p); err == nil {
			compiled = append(compiled, re)
		}
	}
	var out []any
	for _, r := range rows {
		p, ok := rowPath(r, keys.PathKeys)
		excluded := false
		if ok {
			for _, re := range compiled {
				if re.MatchString(p) {
					excluded = true
					break
				}
			}
		}
		if !excluded {
			out = append(out, r)
		}
	}
	return out
}

func excludeComments(rows []any, pred CommentPredicate, keys SchemaKeys) []any {
	var out []any
	for _, r := range rows {
		snippet := rowSnippet(r, keys.SnippetKeys)
		if snippet != "" && pred(snippet) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// searchText returns the union of path and extracted line text a row
// exposes for require_contains/require_regex matching.
func searchText(row any, keys SchemaKeys) string {
	p, _ := rowPath(row, keys.PathKeys)
	s := rowSnippet(row, keys.SnippetKeys)
	return p + "\n" + s
}

func requireContains(rows []any, substrings []string, keys SchemaKeys) []any {
	var out []any
	for _, r := range rows {
		text := searchText(r, keys)
		for _, sub := range substrings {
			if strings.Contains(text, sub) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

func requireRegex(rows []any, patterns []string, keys SchemaKeys) ([]any, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := compile(p)
		if err != nil {
			return nil, fmt.Errorf("transform.requireRegex: %w", err)
		}
		compiled = append(compiled, re)
	}
	var out []any
	for _, r := range rows {
		text := searchText(r, keys)
		for _, re := range compiled {
			if re.MatchString(text) {
				out = append(out, r)
				break
			}
		}
	}
	return out, nil
}

func groupByPathTopN(rows []any, t *pack.Transform, opts Options) []any {
	source := rows
	if t.GroupByPathStep != "" {
		if artifact, ok := opts.StepArtifacts[t.GroupByPathStep]; ok {
			source = preflight.Rows(artifact.Stdout)
		}
	}

	countField := t.GroupByCountField
	if countField == "" {
		countField = "count"
	}

	counts := map[string]float64{}
	for _, r := range source {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		p, ok := rowPath(r, opts.SchemaKeys.PathKeys)
		if !ok {
			continue
		}
		if v, ok := m[countField].(float64); ok {
			counts[p] += v
		} else {
			counts[p]++
		}
	}

	type pc struct {
		path  string
		count float64
	}
	ranked := make([]pc, 0, len(counts))
	for p, c := range counts {
		ranked = append(ranked, pc{p, c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].path < ranked[j].path
	})

	n := t.GroupByPathTopN
	if n > len(ranked) {
		n = len(ranked)
	}
	topPaths := make(map[string]bool, n)
	for _, r := range ranked[:n] {
		topPaths[r.path] = true
	}

	perPathCap := t.GroupByPerPathCap
	perPathCount := map[string]int{}
	var out []any
	for _, r := range rows {
		p, ok := rowPath(r, opts.SchemaKeys.PathKeys)
		if !ok || !topPaths[p] {
			continue
		}
		if perPathCap > 0 && perPathCount[p] >= perPathCap {
			continue
		}
		perPathCount[p]++
		out = append(out, r)
	}
	return out
}

// applyFilterFn dispatches to a named pluggable compactor.
func applyFilterFn(name string, rows []any, keys SchemaKeys) []any {
	switch name {
	case "doc-compact":
		return docCompact(rows, keys)
	default:
		return rows
	}
}

// docCompact keeps only the first row per unique path, approximating the
// "one representative hit per document" compaction doc-index evidence
// commonly needs.
func docCompact(rows []any, keys SchemaKeys) []any {
	seen := map[string]bool{}
	var out []any
	for _, r := range rows {
		p, ok := rowPath(r, keys.PathKeys)
		if ok && seen[p] {
			continue
		}
		if ok {
			seen[p] = true
		}
		out = append(out, r)
	}
	return out
}
