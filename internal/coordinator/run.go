package coordinator

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/dshills/fcdrag/internal/advice"
	"github.com/dshills/fcdrag/internal/engine"
	"github.com/dshills/fcdrag/internal/evidenceaudit"
	"github.com/dshills/fcdrag/internal/llm"
	"github.com/dshills/fcdrag/internal/pack"
	"github.com/dshills/fcdrag/internal/patch"
	"github.com/dshills/fcdrag/internal/preflight"
	"github.com/dshills/fcdrag/internal/prompt"
	"github.com/dshills/fcdrag/internal/provenance"
	"github.com/dshills/fcdrag/internal/redact"
	"github.com/dshills/fcdrag/internal/render"
	"github.com/dshills/fcdrag/internal/schema"
	"github.com/dshills/fcdrag/internal/transform"
	"github.com/dshills/fcdrag/internal/validate"
)

// Run executes one full pack run: pack-wide validation, then every question
// through preflight, evidence filtering and rendering, schema discovery,
// prompt composition, dispatch, provenance repair, validation, the advice
// pass, and evidence-delivery auditing, followed by run-level aggregation
// into a manifest, Markdown report, and exit code.
//
// Run only returns a non-nil error for input-level failures that abort
// before any question runs (an invalid require_regex, an unresolvable pack
// engine); every other failure mode is captured per-question in the
// returned Result and reflected in its ExitCode.
func Run(ctx context.Context, opts Options) (Result, error) {
	if err := validateRegexes(opts.Pack); err != nil {
		return Result{}, infraErrorf(3, "coordinator.Run: %v", err)
	}

	spec, err := opts.Registry.Resolve(opts.Pack.Engine)
	if err != nil {
		return Result{}, infraErrorf(4, "coordinator.Run: %v", err)
	}

	executor := preflight.NewExecutor(preflight.Options{
		CacheEnabled: opts.CachePreflights,
		Timeout:      opts.PreflightTimeout,
	})

	runID := uuid.New().String()
	universe := evidenceaudit.NewPathUniverse(opts.PathUniverse)
	schemaCache := map[string]schema.Contract{}

	var results []QuestionResult
	var manifestEntries []QuestionManifestEntry
	var auditRows []evidenceaudit.EvidenceAuditRow
	var fatalIssues []string
	var patches []patch.Patch
	failOnMet := false

	for _, q := range opts.Pack.Questions {
		result := runQuestion(ctx, opts, executor, spec, opts.Registry, schemaCache, universe, q)

		reasons := filterReasonsBySeverity(result.FatalReasons, opts.SeverityThreshold)
		result.FatalReasons = reasons
		result.Fatal = len(reasons) > 0
		if anyMeetsThreshold(reasons, opts.FailOn) {
			failOnMet = true
		}

		results = append(results, result)
		auditRows = append(auditRows, result.EvidenceAudit)
		manifestEntries = append(manifestEntries, QuestionManifestEntry{
			ID:      result.ID,
			Fatal:   result.Fatal,
			Reasons: result.FatalReasons,
		})
		for _, reason := range result.FatalReasons {
			fatalIssues = append(fatalIssues, fmt.Sprintf("%s: %s", result.ID, reason))
		}
		if result.AdviceResult != nil {
			patches = append(patches, patch.FromAdvice(result.ID, result.AdviceResult.Advice)...)
		}

		if hasEmptyEvidenceAbort(result.FatalReasons) && questionAbortsRun(opts, q) {
			break
		}
	}

	summary := evidenceaudit.Aggregate(auditRows)
	if msg, ok := summary.FatalIssue(); ok && severityMeetsThreshold(msg, opts.SeverityThreshold) {
		fatalIssues = append(fatalIssues, msg)
		if severityMeetsThreshold(msg, opts.FailOn) {
			failOnMet = true
		}
	}

	exitCode := 0
	if failOnMet {
		exitCode = 2
	}

	manifest := RunManifest{
		RunID:       runID,
		PackPath:    opts.Pack.FilePath,
		PackHash:    opts.Pack.Hash,
		ParquetPath: opts.ParquetPath,
		IndexPath:   opts.IndexPath,
		Backend:     opts.BackendName,
		Model:       opts.Model,
		Questions:   manifestEntries,
		FatalIssues: fatalIssues,
		ExitCode:    exitCode,
	}

	result := Result{
		Manifest: manifest,
		Summary:  summary,
		Results:  results,
		ExitCode: exitCode,
	}

	if opts.OutDir != "" {
		if err := writeOutputs(opts, result, patches); err != nil {
			return result, err
		}
	}

	return result, nil
}

// validateRegexes compiles every require_regex filter in the pack up front,
// fatally, so a bad pattern aborts the run before any preflight executes
// rather than silently degrading a single question's filter pass.
func validateRegexes(p *pack.Pack) error {
	for _, q := range p.Questions {
		for _, step := range q.PreflightSteps {
			if step.Transform == nil {
				continue
			}
			if err := transform.CompileRegexes(step.Transform.RequireRegex); err != nil {
				return fmt.Errorf("question %s, step %s: %w", q.ID, step.Name, err)
			}
		}
	}
	return nil
}

// questionAbortsRun reports whether a question whose fatal reason came from
// the empty-evidence gate should short-circuit the remaining run, per the
// gate's fail_fast setting (pack runner override takes precedence over
// runner policy). Validator, provenance, and advice-gate fatals never
// reach here: per the propagation policy, those are collected per question
// and the run continues, aggregating fatals instead of aborting.
func questionAbortsRun(opts Options, q pack.Question) bool {
	failFast := opts.Policy.EvidencePresenceGate.FailFast
	if opts.Pack.Runner.FailFast != nil {
		failFast = *opts.Pack.Runner.FailFast
	}
	return failFast
}

// hasEmptyEvidenceAbort reports whether any of a question's (post
// severity-filtering) fatal reasons came from the empty-evidence gate,
// the only fatal reason kind fail_fast is allowed to act on.
func hasEmptyEvidenceAbort(reasons []string) bool {
	for _, r := range reasons {
		if strings.HasPrefix(r, "empty_evidence_strict") {
			return true
		}
	}
	return false
}

// runQuestion executes the full per-question pipeline: preflight, filter,
// render, schema discovery, prompt composition, dispatch, provenance
// repair, validation, the advice pass, and evidence-delivery auditing.
func runQuestion(
	ctx context.Context,
	opts Options,
	executor *preflight.Executor,
	primarySpec engine.Spec,
	registry *engine.Registry,
	schemaCache map[string]schema.Contract,
	universe evidenceaudit.PathUniverse,
	q pack.Question,
) QuestionResult {
	qctx := preflight.Context{
		TargetDir: opts.TargetDir,
		Index:     opts.IndexPath,
		Parquet:   opts.ParquetPath,
		PackPath:  opts.Pack.FilePath,
	}

	stepArtifacts := map[string]*preflight.Artifact{}
	var artifacts []*preflight.Artifact
	var diagnostics []transform.Diagnostic
	var evidenceBlocks []transform.EvidenceBlock
	var sources []string
	stepsRun := 0
	var fatalReasons []string

	for _, step := range q.PreflightSteps {
		stepSpec := primarySpec
		if step.EngineOverride != "" {
			if override, err := registry.Resolve(step.EngineOverride); err == nil {
				stepSpec = override
			}
		}

		artifact, err := executor.Run(ctx, stepSpec, step, qctx)
		if err != nil {
			continue
		}
		stepsRun++
		stepArtifacts[step.Name] = artifact
		artifacts = append(artifacts, artifact)

		var observedRows []any
		if artifact.ReturnCode == 0 {
			observedRows = preflight.Rows(artifact.Stdout)
		}
		contract, err := schemaContractFor(schemaCache, stepSpec, observedRows)
		if err != nil {
			fatalReasons = append(fatalReasons, fmt.Sprintf("fatal_contract_issue: %v", err))
			continue
		}

		keys := transform.SchemaKeys{PathKeys: contract.PathKeys, LineKeys: contract.LineKeys, SnippetKeys: contract.SnippetKeys}
		starvation := opts.Policy.StarvationThreshold
		if opts.Pack.Validation.StarvationThreshold > 0 {
			starvation = opts.Pack.Validation.StarvationThreshold
		}

		result, err := transform.Apply(artifact, step.Transform, transform.Options{
			DefaultExcludes:     opts.Policy.Excludes,
			DefaultIncludes:     opts.Policy.Includes,
			StalePathDenylist:   opts.Policy.StalePathDenylist,
			TestPathPatterns:    opts.Policy.TestPathPatterns,
			StarvationThreshold: starvation,
			SchemaKeys:          keys,
			StepArtifacts:       stepArtifacts,
		})
		if err != nil {
			continue
		}
		transform.ApplyShapePreserving(artifact, result.Rows)
		diagnostics = append(diagnostics, result.Diagnostics...)

		if len(result.Rows) > 0 {
			mode := transform.RenderMode(step.Render)
			if step.Transform != nil && step.Transform.RenderOverride != "" {
				mode = transform.RenderMode(step.Transform.RenderOverride)
			}
			maxChars := 0
			if step.Transform != nil {
				maxChars = step.Transform.MaxChars
			}
			block := transform.Render(step.Name, mode, result.Rows, keys, maxChars)
			evidenceBlocks = append(evidenceBlocks, block)
			sources = append(sources, step.Name)
		}

		if opts.ShortCircuitPreflight && step.StopIfNonempty && len(result.Rows) > 0 {
			break
		}
	}

	elevateStarvation := opts.Policy.ElevateStarvation || opts.Pack.Validation.ElevateStarvation
	if elevateStarvation {
		for _, d := range diagnostics {
			if d.Kind == "filtered_to_zero" {
				fatalReasons = append(fatalReasons, fmt.Sprintf("filtered_to_zero: step %q produced %d rows before filtering and 0 after", d.StepName, d.PreFilter))
			}
		}
	}

	if abortResult, abort := applyEmptyEvidenceGate(opts, q, evidenceBlocks, artifacts, diagnostics, stepsRun, fatalReasons); abort {
		persistQuestionArtifacts(opts, q, artifacts, "", "", nil, nil, abortResult.EvidenceAudit)
		return abortResult
	}

	mode := prompt.SelectMode(effectiveQuoteBypassMode(opts), len(evidenceBlocks))
	systemOverride := opts.SystemPromptGroundingOverride
	if mode == prompt.ModeQuoteBypass {
		systemOverride = opts.SystemPromptAnalyzeOverride
	}

	promptText := prompt.Build(prompt.BuildOpts{
		Mode:                 mode,
		SystemPromptOverride: systemOverride,
		Contract:             opts.Pack.Schema,
		QuestionText:         q.QuestionText,
		EvidenceBlocks:       evidenceBlocks,
	})
	if opts.RedactEnabled {
		promptText = redact.Redact(promptText)
	}
	if opts.Debug {
		fmt.Fprintf(os.Stderr, "--- prompt for %s ---\n%s\n--- end prompt ---\n", q.ID, promptText)
	}

	evidenceTokens := make([][]string, len(evidenceBlocks))
	for i, b := range evidenceBlocks {
		evidenceTokens[i] = b.Tokens
	}

	var answer string
	var dispatches []llm.DispatchDescriptor

	if q.ResponseMode == pack.ResponseModeDeterministic {
		answer = llm.DeterministicAnswer(q, evidenceBlocks, opts.Pack.Schema)
	} else {
		req := llm.Request{
			UserPrompt:  promptText,
			Model:       opts.Model,
			TopK:        effectiveTopK(opts, q),
			MaxTokens:   effectiveMaxTokens(opts, q),
			Temperature: effectiveTemperature(opts, q),
			TopP:        q.ChatParams.TopP,
			NumCtx:      q.ChatParams.NumCtx,
		}
		resp, descriptor, err := llm.Dispatch(ctx, opts.Backend, req, "answer")
		dispatches = append(dispatches, descriptor)
		if err != nil {
			answer = fmt.Sprintf("VERDICT=\nCITATIONS=\nLLM dispatch failed: %v\n", err)
			fatalReasons = append(fatalReasons, fmt.Sprintf("fatal_contract_issue: llm dispatch failed: %v", err))
		} else {
			answer = resp.Text
		}
	}

	if opts.Pack.Schema.EnforcePathsMustBeCited && len(evidenceBlocks) > 0 {
		evSources := make([]provenance.EvidenceSource, len(evidenceBlocks))
		for i, b := range evidenceBlocks {
			evSources[i] = provenance.EvidenceSource{Tokens: b.Tokens}
		}
		if repaired, changed := provenance.Repair(answer, evSources); changed {
			answer = repaired
		}
	}

	vres := validate.Validate(answer, validate.Options{
		Contract:           opts.Pack.Schema,
		EvidenceTokens:     evidenceTokens,
		WeakenedProvenance: true,
		Caps:               opts.Policy.IssueCaps.UnknownPaths,
	})
	schemaIssues, provenanceIssues, pathGateIssues := splitIssuesByKind(vres.Issues)
	if vres.Fatal {
		fatalReasons = append(fatalReasons, "fatal_contract_issue: response failed schema/provenance validation")
	}

	var adviceResult *advice.Result
	advicePromptText := ""
	if q.AdviceMode == pack.AdviceModeLLM && len(evidenceBlocks) > 0 {
		allow := validate.BuildAllowSet(evidenceTokens)
		missionMode := opts.Pack.Validation.MissionMode || opts.Policy.MissionMode
		buildOpts := advice.BuildOpts{
			Question:            q,
			DeterministicAnswer: answer,
			EvidenceBlocks:      evidenceBlocks,
			MaxIssues:           opts.Policy.IssueCaps.AdviceTopKCap,
		}
		advicePromptText = advice.BuildPrompt(buildOpts)
		res, err := advice.Run(ctx, opts.Backend, buildOpts, opts.Policy.AdviceRetry, advice.ValidateOpts{
			Gate:               opts.Policy.AdviceQualityGate,
			Allow:              allow,
			WeakenedProvenance: true,
			EvidenceExists:     true,
		}, missionMode)
		if err == nil {
			adviceResult = &res
			dispatches = append(dispatches, res.Dispatches...)
			if res.FatalGated {
				for _, p := range res.Problems {
					fatalReasons = append(fatalReasons, fmt.Sprintf("fatal_advice_gate_issue: %s", p.Message))
				}
			}
		}
	}

	auditRow := evidenceaudit.AuditQuestion(q.ID, evidenceBlocks, universe, opts.RepoRootName, dispatches)

	result := QuestionResult{
		ID:                     q.ID,
		Answer:                 answer,
		Sources:                sources,
		DeterministicArtifacts: artifacts,
		EvidenceBlocks:         evidenceBlocks,
		ValidatorIssues:        vres.Issues,
		SchemaIssues:           schemaIssues,
		ProvenanceIssues:       provenanceIssues,
		PathGateIssues:         pathGateIssues,
		AdviceResult:           adviceResult,
		RuntimeStats: RuntimeStats{
			PreflightStepsRun:   stepsRun,
			EvidenceBlocksCount: len(evidenceBlocks),
			DispatchCount:       len(dispatches),
		},
		EvidenceAudit: auditRow,
		Dispatches:    dispatches,
		Diagnostics:   diagnostics,
		Fatal:         len(fatalReasons) > 0,
		FatalReasons:  fatalReasons,
	}

	persistQuestionArtifacts(opts, q, artifacts, promptText, advicePromptText, dispatches, &result, auditRow)

	return result
}

// applyEmptyEvidenceGate checks whether a question produced no evidence
// blocks and, if the effective gate says so, returns a terminal
// QuestionResult without ever dispatching to an LLM, plus whether the run
// as a whole should abort.
func applyEmptyEvidenceGate(
	opts Options,
	q pack.Question,
	evidenceBlocks []transform.EvidenceBlock,
	artifacts []*preflight.Artifact,
	diagnostics []transform.Diagnostic,
	stepsRun int,
	fatalReasons []string,
) (QuestionResult, bool) {
	if len(evidenceBlocks) > 0 {
		return QuestionResult{}, false
	}

	failOnEmpty := opts.Policy.EvidencePresenceGate.FailOnEmptyEvidence
	if opts.Pack.Runner.FailOnEmptyEvidence != nil {
		failOnEmpty = *opts.Pack.Runner.FailOnEmptyEvidence
	}
	if !opts.EvidenceEmptyGate {
		failOnEmpty = false
	}
	if !failOnEmpty {
		return QuestionResult{}, false
	}

	reasons := append(append([]string{}, fatalReasons...), "empty_evidence_strict: no evidence blocks were produced for this question")
	auditRow := evidenceaudit.EvidenceAuditRow{QID: q.ID}

	return QuestionResult{
		ID:                     q.ID,
		Answer:                 "",
		DeterministicArtifacts: artifacts,
		Diagnostics:            diagnostics,
		EvidenceAudit:          auditRow,
		RuntimeStats:           RuntimeStats{PreflightStepsRun: stepsRun},
		Fatal:                  true,
		FatalReasons:           reasons,
	}, true
}

func effectiveQuoteBypassMode(opts Options) string {
	if opts.QuoteBypassMode != "" {
		return opts.QuoteBypassMode
	}
	if opts.Pack.Runner.QuoteBypassMode != "" {
		return opts.Pack.Runner.QuoteBypassMode
	}
	return opts.Policy.QuoteBypassMode
}

func effectiveTopK(opts Options, q pack.Question) int {
	if q.ChatParams.TopK > 0 {
		return q.ChatParams.TopK
	}
	return opts.Pack.Defaults.TopK
}

func effectiveMaxTokens(opts Options, q pack.Question) int {
	if q.ChatParams.MaxTokens > 0 {
		return q.ChatParams.MaxTokens
	}
	return opts.Pack.Defaults.MaxTokens
}

func effectiveTemperature(opts Options, q pack.Question) float64 {
	if q.ChatParams.Temperature != 0 {
		return q.ChatParams.Temperature
	}
	return opts.Pack.Defaults.Temperature
}

// schemaContractFor discovers (and caches, per engine name, for the
// lifetime of the run) the effective path/line/snippet key set for an
// engine's rows.
func schemaContractFor(cache map[string]schema.Contract, spec engine.Spec, observedRows []any) (schema.Contract, error) {
	if c, ok := cache[spec.Name]; ok {
		return c, nil
	}
	endpoint := schemaEndpointFromSpec(spec)
	contract, err := schema.Discover(spec.Name, endpoint, nil, observedRows)
	if err != nil {
		return schema.Contract{}, err
	}
	cache[spec.Name] = contract
	return contract, nil
}

func schemaEndpointFromSpec(spec engine.Spec) *schema.EndpointResponse {
	if len(spec.PathKeys) == 0 && len(spec.LineKeys) == 0 && len(spec.SnippetKeys) == 0 {
		return nil
	}
	var claims []string
	if len(spec.PathKeys) > 0 {
		claims = append(claims, "path")
	}
	if len(spec.LineKeys) > 0 {
		claims = append(claims, "line")
	}
	if len(spec.SnippetKeys) > 0 {
		claims = append(claims, "snippet")
	}
	return &schema.EndpointResponse{
		SemanticHints: schema.SemanticHints{
			Claims:      claims,
			PathKeys:    spec.PathKeys,
			LineKeys:    spec.LineKeys,
			SnippetKeys: spec.SnippetKeys,
		},
	}
}

// persistQuestionArtifacts writes every per-question output file the run
// directory carries: one JSON artifact per preflight step, the composed
// prompt, the chat dispatch record, the advice prompt/response, and the
// evidence-delivery audit row.
func persistQuestionArtifacts(
	opts Options,
	q pack.Question,
	artifacts []*preflight.Artifact,
	promptText string,
	advicePromptText string,
	dispatches []llm.DispatchDescriptor,
	result *QuestionResult,
	auditRow evidenceaudit.EvidenceAuditRow,
) {
	if opts.OutDir == "" {
		return
	}

	for _, a := range artifacts {
		_ = writeJSONFile(opts.OutDir, fmt.Sprintf("%s_%s.json", q.ID, a.StepName), a)
	}

	if promptText != "" {
		name := fmt.Sprintf("%s_augmented_prompt.md", q.ID)
		_ = writeTextFile(opts.OutDir, name, promptText)
	}

	if result != nil {
		_ = writeJSONFile(opts.OutDir, fmt.Sprintf("%s_chat.json", q.ID), struct {
			Answer     string                    `json:"answer"`
			Dispatches []llm.DispatchDescriptor `json:"dispatches"`
		}{Answer: result.Answer, Dispatches: dispatches})
	}

	if advicePromptText != "" {
		_ = writeTextFile(opts.OutDir, fmt.Sprintf("%s_advice_prompt.md", q.ID), advicePromptText)
	}
	if result != nil && result.AdviceResult != nil {
		_ = writeJSONFile(opts.OutDir, fmt.Sprintf("%s_advice_chat.json", q.ID), result.AdviceResult)
	}

	_ = writeJSONFile(opts.OutDir, fmt.Sprintf("%s_evidence_delivery_audit.json", q.ID), auditRow)
}

// writeOutputs writes the run-level artifacts: the Markdown report, the
// JSON manifest, the evidence-delivery summary, and, if any advice issue
// carried a patch sketch, the patch sidecar.
func writeOutputs(opts Options, result Result, patches []patch.Patch) error {
	reportFilename := opts.Policy.CanonicalPath(opts.Policy.ReportFilename)
	manifestFilename := opts.Policy.CanonicalPath(opts.Policy.ManifestFilename)
	summaryFilename := opts.Policy.CanonicalPath(opts.Policy.EvidenceAuditSummaryFilename)

	report := toRenderReport(opts, result)
	if err := writeTextFile(opts.OutDir, reportFilename, render.Markdown(report)); err != nil {
		return err
	}
	if err := writeJSONFile(opts.OutDir, manifestFilename, result.Manifest); err != nil {
		return err
	}
	if err := writeJSONFile(opts.OutDir, summaryFilename, result.Summary); err != nil {
		return err
	}

	patchPath := opts.PatchOutPath
	if patchPath == "" {
		patchPath = opts.OutDir + "/PATCHES.diff"
	}
	if err := patch.WritePatchFile(patches, patchPath); err != nil {
		return err
	}

	return nil
}

// toRenderReport converts the coordinator's own result types into render's
// self-contained view types.
func toRenderReport(opts Options, result Result) render.Report {
	questions := make([]render.QuestionView, 0, len(result.Results))
	for _, r := range result.Results {
		var adviceView *render.AdviceView
		if r.AdviceResult != nil {
			var issues []string
			for _, iss := range r.AdviceResult.Advice.Issues {
				issues = append(issues, iss.IssueText)
			}
			var problems []string
			for _, p := range r.AdviceResult.Problems {
				problems = append(problems, p.Message)
			}
			adviceView = &render.AdviceView{
				Attempts:   r.AdviceResult.Attempts,
				FatalGated: r.AdviceResult.FatalGated,
				Problems:   problems,
				Issues:     issues,
			}
		}

		diagViews := make([]render.DiagnosticView, 0, len(r.Diagnostics))
		for _, d := range r.Diagnostics {
			diagViews = append(diagViews, render.DiagnosticView{
				Kind:       d.Kind,
				StepName:   d.StepName,
				PreFilter:  d.PreFilter,
				PostFilter: d.PostFilter,
			})
		}

		questions = append(questions, render.QuestionView{
			ID:                  r.ID,
			Answer:              r.Answer,
			Fatal:               r.Fatal,
			FatalReasons:        r.FatalReasons,
			EvidenceBlocksCount: r.RuntimeStats.EvidenceBlocksCount,
			DispatchCount:       r.RuntimeStats.DispatchCount,
			SchemaIssues:        r.SchemaIssues,
			ProvenanceIssues:    r.ProvenanceIssues,
			PathGateIssues:      r.PathGateIssues,
			Diagnostics:         diagViews,
			Advice:              adviceView,
			PathsMissing:        r.EvidenceAudit.PathsMissingFromParquet,
		})
	}

	return render.Report{
		PackPath:    opts.Pack.FilePath,
		Backend:     opts.BackendName,
		Model:       opts.Model,
		ExitCode:    result.ExitCode,
		FatalIssues: result.Manifest.FatalIssues,
		Questions:   questions,
	}
}
