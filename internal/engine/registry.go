// Package engine implements the Engine Registry: a pure lookup
// from symbolic engine names to CLI invocation specs and schema-contract
// endpoints.
package engine

import (
	"embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Spec describes how to invoke one deterministic query engine.
type Spec struct {
	Name                      string   `yaml:"name"`
	InvocationPrefix          []string `yaml:"invocation_prefix"`
	TargetDirFlag             string   `yaml:"target_dir_flag"`
	IndexFlag                 string   `yaml:"index_flag"`
	TableFlag                 string   `yaml:"table_flag"`
	NeedsIndexSubcommands     []string `yaml:"needs_index_subcommands"`
	ChatSubcommand            string   `yaml:"chat_subcommand"`
	ChatFlagNames             ChatFlagNames `yaml:"chat_flag_names"`
	SchemaEndpointCmd         []string `yaml:"schema_endpoint_cmd"`
	PathKeys                  []string `yaml:"path_keys,omitempty"`
	LineKeys                  []string `yaml:"line_keys,omitempty"`
	SnippetKeys               []string `yaml:"snippet_keys,omitempty"`
}

// ChatFlagNames names the flags the chat subcommand expects.
type ChatFlagNames struct {
	Backend     string `yaml:"backend"`
	Model       string `yaml:"model"`
	TopK        string `yaml:"top_k"`
	MaxTokens   string `yaml:"max_tokens"`
	Temperature string `yaml:"temperature"`
	TopP        string `yaml:"top_p"`
	NumCtx      string `yaml:"num_ctx"`
	SystemPromptFile string `yaml:"system_prompt_file"`
}

// NeedsIndex reports whether the given preflight subcommand requires
// injected index/table flags.
func (s Spec) NeedsIndex(subcommand string) bool {
	for _, sc := range s.NeedsIndexSubcommands {
		if sc == subcommand {
			return true
		}
	}
	return false
}

// ErrEngineUnknown is returned when a pack references an engine the
// registry has no spec for.
type ErrEngineUnknown struct {
	Name string
}

func (e *ErrEngineUnknown) Error() string {
	return fmt.Sprintf("engine: unknown engine %q", e.Name)
}

// Registry maps engine names to their invocation specs.
type Registry struct {
	specs map[string]Spec
}

// NewRegistry builds a registry from a list of specs.
func NewRegistry(specs []Spec) *Registry {
	r := &Registry{specs: make(map[string]Spec, len(specs))}
	for _, s := range specs {
		r.specs[s.Name] = s
	}
	return r
}

// Resolve looks up an engine spec by name.
func (r *Registry) Resolve(name string) (Spec, error) {
	s, ok := r.specs[name]
	if !ok {
		return Spec{}, &ErrEngineUnknown{Name: name}
	}
	return s, nil
}

// Load reads a registry from an engine-specs YAML file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("engine.Load: %w", err)
	}
	return parseRegistry(data)
}

// LoadBuiltin loads the embedded default engine specs ("code-index",
// "doc-index").
func LoadBuiltin() (*Registry, error) {
	data, err := builtinFS.ReadFile("builtin/engines.yaml")
	if err != nil {
		return nil, fmt.Errorf("engine.LoadBuiltin: %w", err)
	}
	return parseRegistry(data)
}

func parseRegistry(data []byte) (*Registry, error) {
	var doc struct {
		Engines []Spec `yaml:"engines"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("engine.parseRegistry: %w", err)
	}
	return NewRegistry(doc.Engines), nil
}
