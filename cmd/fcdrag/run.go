package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/fcdrag/internal/coordinator"
	"github.com/dshills/fcdrag/internal/engine"
	"github.com/dshills/fcdrag/internal/llm"
	"github.com/dshills/fcdrag/internal/pack"
	"github.com/dshills/fcdrag/internal/policy"
)

// runFlags holds every CLI flag the run subcommand accepts, mirroring the
// pack runner's configuration surface one field at a time.
type runFlags struct {
	outDir      string
	packPath    string
	parquet     string
	index       string
	targetDir   string
	engineSpecs string
	policyPath  string

	backend string
	model   string

	promptProfile                 string
	maxTokens                     int
	temperature                   float64
	topP                          float64
	numCtx                        int
	systemPromptGroundingFile     string
	systemPromptAnalyzeFile       string

	cachePreflights       bool
	shortCircuitPreflight bool
	preflightTimeout      time.Duration

	quoteBypassMode   string
	evidenceEmptyGate bool

	redact bool

	severityThreshold string
	failOn            string
	patchOut          string

	repoRootName     string
	pathUniverseFile string

	replicate      bool
	replicateSeeds string

	verbose bool
	debug   bool
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "fcdrag",
		Short:         "Run FCDRAG audit packs against a target repository",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd())
	return root
}

func newRunCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one audit pack and write its manifest, report, and evidence audit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, flags)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.outDir, "out-dir", "", "directory to write run artifacts to (required)")
	f.StringVar(&flags.packPath, "pack", "", "path to the audit pack YAML file (required)")
	f.StringVar(&flags.parquet, "parquet", "", "path to the stored table the engine queries")
	f.StringVar(&flags.index, "index", "", "path to the engine's prebuilt index")
	f.StringVar(&flags.targetDir, "target-dir", ".", "repository root the preflight commands run against")
	f.StringVar(&flags.engineSpecs, "engine-specs", "", "path to an engine-specs YAML file (default: built-in registry)")
	f.StringVar(&flags.policyPath, "policy", "", "path to a runner policy YAML file (default: $RUNNER_POLICY_PATH or the built-in default policy)")

	f.StringVar(&flags.backend, "backend", "", "chat backend: anthropic, openai, gemini (default: auto-detect from API key env vars)")
	f.StringVar(&flags.model, "model", "", "model name override passed to the chat backend")

	f.StringVar(&flags.promptProfile, "prompt-profile", "", "unused alias reserved for named prompt-profile presets")
	f.IntVar(&flags.maxTokens, "max-tokens", 0, "max tokens override for chat dispatch")
	f.Float64Var(&flags.temperature, "temperature", 0, "temperature override for chat dispatch")
	f.Float64Var(&flags.topP, "top-p", 0, "top_p override for chat dispatch")
	f.IntVar(&flags.numCtx, "num-ctx", 0, "context window override for chat dispatch")
	f.StringVar(&flags.systemPromptGroundingFile, "system-prompt-grounding-file", "", "path to a file overriding the grounding-mode system prompt")
	f.StringVar(&flags.systemPromptAnalyzeFile, "system-prompt-analyze-file", "", "path to a file overriding the quote-bypass-mode system prompt")

	f.BoolVar(&flags.cachePreflights, "cache-preflights", true, "reuse a preflight result within the run when its materialized invocation repeats")
	f.BoolVar(&flags.shortCircuitPreflight, "short-circuit-preflights", true, "stop a question's remaining preflight steps once a step marked stop_if_nonempty returns rows")
	f.DurationVar(&flags.preflightTimeout, "preflight-timeout", 2*time.Minute, "per-invocation preflight subprocess timeout")

	f.StringVar(&flags.quoteBypassMode, "quote-bypass-mode", "", "on, off, or auto (default: the runner policy's setting)")
	f.BoolVar(&flags.evidenceEmptyGate, "evidence-empty-gate", true, "fail a question (or abort the run, per policy) when it produces no evidence")

	f.BoolVar(&flags.redact, "redact", false, "scrub secret-shaped text from prompts before dispatch")

	f.StringVar(&flags.severityThreshold, "severity-threshold", "", "minimum verdict severity a question must meet to be reported (unused if empty)")
	f.StringVar(&flags.failOn, "fail-on", "", "minimum verdict severity that converts a question's outcome into a fatal issue")
	f.StringVar(&flags.patchOut, "patch-out", "", "path to write the patch sidecar diff to (default: <out-dir>/PATCHES.diff)")

	f.StringVar(&flags.repoRootName, "repo-root-name", "", "top-level directory name the repo is checked out under, stripped during path canonicalization")
	f.StringVar(&flags.pathUniverseFile, "path-universe-file", "", "newline-delimited file listing every path the stored table covers")

	f.BoolVar(&flags.replicate, "replicate", false, "run the pack once per seed in --replicate-seeds and aggregate verdict stability")
	f.StringVar(&flags.replicateSeeds, "replicate-seeds", "1,2,3", "comma-separated seed list used by --replicate")

	f.BoolVar(&flags.verbose, "verbose", false, "log each question's stage as it runs")
	f.BoolVar(&flags.debug, "debug", false, "dump each question's composed prompt to stderr before dispatch")

	return cmd
}

func runRun(cmd *cobra.Command, flags *runFlags) error {
	logger := log.New(os.Stderr, "", 0)
	verbose := func(format string, args ...any) {
		if flags.verbose {
			logger.Printf(format, args...)
		}
	}

	if flags.outDir == "" {
		return &exitErr{code: 1, msg: "fcdrag run: --out-dir is required"}
	}
	if flags.packPath == "" {
		return &exitErr{code: 1, msg: "fcdrag run: --pack is required"}
	}

	verbose("loading pack %s", flags.packPath)
	p, err := pack.Load(flags.packPath)
	if err != nil {
		return &exitErr{code: 1, msg: fmt.Sprintf("fcdrag run: %v", err)}
	}

	pol, err := resolvePolicy(flags.policyPath)
	if err != nil {
		return &exitErr{code: 1, msg: fmt.Sprintf("fcdrag run: %v", err)}
	}

	registry, err := resolveRegistry(flags.engineSpecs)
	if err != nil {
		return &exitErr{code: 1, msg: fmt.Sprintf("fcdrag run: %v", err)}
	}

	backend, backendName, err := resolveBackend(p, flags.backend, flags.model)
	if err != nil {
		return &exitErr{code: 1, msg: fmt.Sprintf("fcdrag run: %v", err)}
	}

	groundingOverride, err := readFileOr(flags.systemPromptGroundingFile)
	if err != nil {
		return &exitErr{code: 1, msg: fmt.Sprintf("fcdrag run: %v", err)}
	}
	analyzeOverride, err := readFileOr(flags.systemPromptAnalyzeFile)
	if err != nil {
		return &exitErr{code: 1, msg: fmt.Sprintf("fcdrag run: %v", err)}
	}

	pathUniverse, err := readPathUniverseFile(flags.pathUniverseFile)
	if err != nil {
		return &exitErr{code: 1, msg: fmt.Sprintf("fcdrag run: %v", err)}
	}

	opts := coordinator.Options{
		OutDir:                        flags.outDir,
		Pack:                          p,
		Policy:                        pol,
		Registry:                      registry,
		Backend:                       backend,
		BackendName:                   backendName,
		Model:                         flags.model,
		ParquetPath:                   flags.parquet,
		IndexPath:                     flags.index,
		TargetDir:                     flags.targetDir,
		RepoRootName:                  flags.repoRootName,
		PathUniverse:                  pathUniverse,
		CachePreflights:               flags.cachePreflights,
		ShortCircuitPreflight:         flags.shortCircuitPreflight,
		PreflightTimeout:              flags.preflightTimeout,
		QuoteBypassMode:               flags.quoteBypassMode,
		EvidenceEmptyGate:             flags.evidenceEmptyGate,
		SystemPromptGroundingOverride: groundingOverride,
		SystemPromptAnalyzeOverride:   analyzeOverride,
		RedactEnabled:                 flags.redact,
		SeverityThreshold:             flags.severityThreshold,
		FailOn:                        flags.failOn,
		PatchOutPath:                  flags.patchOut,
		Verbose:                       flags.verbose,
		Debug:                         flags.debug,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if flags.replicate {
		seeds, err := parseSeeds(flags.replicateSeeds)
		if err != nil {
			return &exitErr{code: 1, msg: fmt.Sprintf("fcdrag run: %v", err)}
		}
		verbose("replicating pack %s across seeds %v", flags.packPath, seeds)
		rr, err := coordinator.Replicate(ctx, opts, seeds)
		if err != nil {
			return translateCoordinatorError(err)
		}
		if rr.ExitCode != 0 {
			return &exitErr{code: rr.ExitCode, msg: fmt.Sprintf("fcdrag run: replicate sweep produced fatal issues in at least one seed (see %s/STABILITY_SUMMARY.md)", flags.outDir)}
		}
		return nil
	}

	verbose("running %d question(s)", len(p.Questions))
	result, err := coordinator.Run(ctx, opts)
	if err != nil {
		return translateCoordinatorError(err)
	}

	verbose("run complete: exit code %d, %d fatal issue(s)", result.ExitCode, len(result.Manifest.FatalIssues))
	if result.ExitCode != 0 {
		return &exitErr{code: result.ExitCode, msg: fmt.Sprintf("fcdrag run: %d fatal issue(s), see %s/REPORT.md", len(result.Manifest.FatalIssues), flags.outDir)}
	}
	return nil
}

func translateCoordinatorError(err error) error {
	var ie *coordinator.InfraError
	if errors.As(err, &ie) {
		return &exitErr{code: ie.Code, msg: fmt.Sprintf("fcdrag run: %v", ie)}
	}
	return &exitErr{code: 1, msg: fmt.Sprintf("fcdrag run: %v", err)}
}

func resolvePolicy(path string) (*policy.Policy, error) {
	return policy.Resolve(path)
}

func resolveRegistry(path string) (*engine.Registry, error) {
	if path != "" {
		return engine.Load(path)
	}
	return engine.LoadBuiltin()
}

// resolveBackend resolves a chat backend unless the pack needs none: a pack
// whose every question is response_mode=deterministic and advice_mode=none
// never dispatches, so a missing API key shouldn't block the run.
func resolveBackend(p *pack.Pack, backendFlag, model string) (llm.Backend, string, error) {
	needsBackend := false
	for _, q := range p.Questions {
		if q.ResponseMode != pack.ResponseModeDeterministic || q.AdviceMode == pack.AdviceModeLLM {
			needsBackend = true
			break
		}
	}

	backend, err := llm.ResolveBackend(backendFlag, model)
	if err != nil {
		if !needsBackend {
			return nil, "none", nil
		}
		return nil, "", err
	}
	return backend, backend.Name(), nil
}

func readFileOr(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func readPathUniverseFile(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			out = append(out, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}

func parseSeeds(raw string) ([]int, error) {
	parts := strings.Split(raw, ",")
	seeds := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid seed %q in --replicate-seeds: %w", p, err)
		}
		seeds = append(seeds, n)
	}
	if len(seeds) == 0 {
		return nil, fmt.Errorf("--replicate-seeds must list at least one seed")
	}
	return seeds, nil
}
