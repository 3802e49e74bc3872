package preflight

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/dshills/fcdrag/internal/engine"
	"github.com/dshills/fcdrag/internal/pack"
)

// Context carries the per-question placeholder values substituted into an
// argv template.
type Context struct {
	TargetDir string
	Index     string
	Parquet   string
	PackPath  string
}

// Options configures one Executor for the lifetime of a run.
type Options struct {
	CacheEnabled bool
	Timeout      time.Duration
}

// Executor runs planned preflight steps and owns the in-run signature
// cache.
type Executor struct {
	opts  Options
	cache map[string]*Artifact
}

// NewExecutor creates an Executor with a fresh, empty signature cache.
func NewExecutor(opts Options) *Executor {
	return &Executor{opts: opts, cache: make(map[string]*Artifact)}
}

// Run executes a single planned preflight step: materializes argv, checks
// the signature cache, runs the subprocess (or reuses a cached artifact),
// and returns the resulting artifact.
func (e *Executor) Run(ctx context.Context, spec engine.Spec, step pack.PreflightStep, qctx Context) (*Artifact, error) {
	argv, err := materialize(spec, step, qctx)
	if err != nil {
		return nil, fmt.Errorf("preflight.Run: %w", err)
	}

	signature := Signature(argv, qctx.PackPath, qctx.Parquet, qctx.Index)

	if e.opts.CacheEnabled {
		if cached, ok := e.cache[signature]; ok {
			clone := *cached
			clone.Cached = true
			clone.StepName = step.Name
			return &clone, nil
		}
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if e.opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	artifact := e.execute(runCtx, argv)
	artifact.Signature = signature
	artifact.StepName = step.Name

	if e.opts.CacheEnabled {
		stored := *artifact
		e.cache[signature] = &stored
	}

	return artifact, nil
}

func (e *Executor) execute(ctx context.Context, argv []string) *Artifact {
	if len(argv) == 0 {
		return &Artifact{Argv: argv, ReturnCode: -1, Stderr: "preflight: empty argv"}
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	rc := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			rc = exitErr.ExitCode()
		} else {
			// Lookup failure or timeout rather than a process exit;
			// record it as a failed run instead of a Go error.
			rc = -1
			stderr.WriteString(err.Error())
		}
	}

	return &Artifact{
		Argv:       argv,
		ReturnCode: rc,
		Stdout:     ParseStdout(stdout.Bytes()),
		Stderr:     stderr.String(),
	}
}

func materialize(spec engine.Spec, step pack.PreflightStep, qctx Context) ([]string, error) {
	if len(step.ArgvTemplate) == 0 {
		return nil, fmt.Errorf("materialize: step %q has empty argv_template", step.Name)
	}

	argv := make([]string, 0, len(spec.InvocationPrefix)+len(step.ArgvTemplate)+4)
	argv = append(argv, spec.InvocationPrefix...)
	for _, tok := range step.ArgvTemplate {
		argv = append(argv, substitute(tok, qctx))
	}

	if len(step.ArgvTemplate) > 0 && spec.NeedsIndex(step.ArgvTemplate[0]) {
		if spec.IndexFlag != "" && qctx.Index != "" {
			argv = append(argv, spec.IndexFlag, qctx.Index)
		}
		if spec.TableFlag != "" && qctx.Parquet != "" {
			argv = append(argv, spec.TableFlag, qctx.Parquet)
		}
	}

	return argv, nil
}

func substitute(token string, qctx Context) string {
	replacer := strings.NewReplacer(
		"{parquet}", qctx.Parquet,
		"{target_dir}", qctx.TargetDir,
		"{index}", qctx.Index,
		"{pack}", qctx.PackPath,
	)
	return replacer.Replace(token)
}

// Signature computes the within-run cache key for a materialized preflight
// invocation.
func Signature(argv []string, packPath, tablePath, indexPath string) string {
	h := sha256.New()
	for _, a := range argv {
		h.Write([]byte(a))
		h.Write([]byte{0})
	}
	h.Write([]byte(packPath))
	h.Write([]byte{0})
	h.Write([]byte(tablePath))
	h.Write([]byte{0})
	h.Write([]byte(indexPath))
	return fmt.Sprintf("sha256:%x", h.Sum(nil))
}
