package advice

import (
	"context"
	"fmt"

	"github.com/dshills/fcdrag/internal/llm"
	"github.com/dshills/fcdrag/internal/policy"
)

// Result is the outcome of one advice pass, including every chat dispatch
// made along the way.
type Result struct {
	Advice      Advice
	Problems    []Problem
	Dispatches  []llm.DispatchDescriptor
	Attempts    int
	FatalGated  bool
}

// Run executes the advice pass: build the initial prompt, dispatch, validate,
// and on failure retry with a repair prompt up to opts.Gate's configured
// attempt count. In mission mode, problems surviving every retry are
// returned with FatalGated set so the run coordinator can append them to
// fatal_advice_gate_issues; outside mission mode the final problems are
// still returned, but the caller should only log them as warnings.
func Run(ctx context.Context, backend llm.Backend, buildOpts BuildOpts, retry policy.AdviceRetry, validateOpts ValidateOpts, missionMode bool) (Result, error) {
	attempts := retry.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	prompt := BuildPrompt(buildOpts)
	var result Result

	for attempt := 1; attempt <= attempts; attempt++ {
		result.Attempts = attempt

		phase := "advice"
		if attempt > 1 {
			phase = fmt.Sprintf("advice_retry_%d", attempt-1)
		}

		resp, descriptor, err := llm.Dispatch(ctx, backend, llm.Request{UserPrompt: prompt}, phase)
		result.Dispatches = append(result.Dispatches, descriptor)
		if err != nil {
			return result, fmt.Errorf("advice.Run: dispatch attempt %d: %w", attempt, err)
		}

		parsed := Parse(resp.Text)
		problems := Validate(parsed, validateOpts)

		result.Advice = parsed
		result.Problems = problems

		if len(problems) == 0 {
			return result, nil
		}

		if attempt < attempts {
			prompt = BuildRepairPrompt(prompt, problemMessages(problems))
		}
	}

	if missionMode && len(result.Problems) > 0 {
		result.FatalGated = true
	}
	return result, nil
}

func problemMessages(problems []Problem) []string {
	out := make([]string, 0, len(problems))
	for _, p := range problems {
		if p.IssueNumber > 0 {
			out = append(out, fmt.Sprintf("issue %d: %s", p.IssueNumber, p.Message))
		} else {
			out = append(out, p.Message)
		}
	}
	return out
}
