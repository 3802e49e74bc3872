package coordinator

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
)

// StabilityRow is one question's verdict-agreement outcome across a
// replicate sweep.
type StabilityRow struct {
	ID         string   `json:"id"`
	Verdicts   []string `json:"verdicts"`
	Agreement  float64  `json:"agreement"`
	FatalSeeds []int    `json:"fatal_seeds,omitempty"`
}

// ReplicateResult is the outcome of running a pack once per seed.
type ReplicateResult struct {
	Seeds      []int          `json:"seeds"`
	PerSeed    []Result       `json:"-"`
	Stability  []StabilityRow `json:"stability"`
	ExitCode   int            `json:"exit_code"`
}

// Replicate runs the same pack once per seed, writing each run's full
// output set to its own "seed-<n>" subdirectory under opts.OutDir, then
// aggregates per-question verdict agreement into a STABILITY_SUMMARY.md
// and returns the worst exit code observed across all seeds.
//
// The verdict extracted for agreement is the answer's leading VERDICT=
// header line; a question whose answer never agrees across seeds is the
// signal this sweep exists to surface, not a run failure on its own.
func Replicate(ctx context.Context, opts Options, seeds []int) (ReplicateResult, error) {
	baseOutDir := opts.OutDir
	perSeed := make([]Result, 0, len(seeds))
	exitCode := 0

	for _, seed := range seeds {
		seedOpts := opts
		seedOpts.OutDir = filepath.Join(baseOutDir, fmt.Sprintf("seed-%d", seed))

		result, err := Run(ctx, seedOpts)
		if err != nil {
			return ReplicateResult{}, fmt.Errorf("coordinator.Replicate: seed %d: %w", seed, err)
		}
		perSeed = append(perSeed, result)
		if result.ExitCode > exitCode {
			exitCode = result.ExitCode
		}
	}

	stability := computeStability(seeds, perSeed)

	rr := ReplicateResult{
		Seeds:     seeds,
		PerSeed:   perSeed,
		Stability: stability,
		ExitCode:  exitCode,
	}

	if baseOutDir != "" {
		if err := writeTextFile(baseOutDir, "STABILITY_SUMMARY.md", renderStabilitySummary(rr)); err != nil {
			return rr, err
		}
		if err := writeJSONFile(baseOutDir, "STABILITY_SUMMARY.json", rr); err != nil {
			return rr, err
		}
	}

	return rr, nil
}

// computeStability groups every seed's per-question verdict by question ID
// and scores each question's agreement as the fraction of seeds matching
// the plurality verdict.
func computeStability(seeds []int, perSeed []Result) []StabilityRow {
	verdictsByQ := map[string][]string{}
	fatalSeedsByQ := map[string][]int{}
	var order []string
	seen := map[string]bool{}

	for i, result := range perSeed {
		for _, r := range result.Results {
			if !seen[r.ID] {
				seen[r.ID] = true
				order = append(order, r.ID)
			}
			verdictsByQ[r.ID] = append(verdictsByQ[r.ID], extractVerdict(r.Answer))
			if r.Fatal && i < len(seeds) {
				fatalSeedsByQ[r.ID] = append(fatalSeedsByQ[r.ID], seeds[i])
			}
		}
	}

	rows := make([]StabilityRow, 0, len(order))
	for _, id := range order {
		verdicts := verdictsByQ[id]
		rows = append(rows, StabilityRow{
			ID:         id,
			Verdicts:   verdicts,
			Agreement:  pluralityAgreement(verdicts),
			FatalSeeds: fatalSeedsByQ[id],
		})
	}
	return rows
}

func extractVerdict(answer string) string {
	for _, line := range splitLines(answer) {
		if len(line) > len("VERDICT=") && line[:len("VERDICT=")] == "VERDICT=" {
			return line[len("VERDICT="):]
		}
	}
	return ""
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func pluralityAgreement(verdicts []string) float64 {
	if len(verdicts) == 0 {
		return 0
	}
	counts := map[string]int{}
	for _, v := range verdicts {
		counts[v]++
	}
	best := 0
	for _, c := range counts {
		if c > best {
			best = c
		}
	}
	return float64(best) / float64(len(verdicts))
}

func renderStabilitySummary(rr ReplicateResult) string {
	rows := append([]StabilityRow{}, rr.Stability...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })

	out := "# Stability Summary\n\n"
	out += fmt.Sprintf("**Seeds:** %v\n\n", rr.Seeds)
	out += "| Question | Agreement | Verdicts | Fatal seeds |\n"
	out += "|---|---|---|---|\n"
	for _, row := range rows {
		out += fmt.Sprintf("| %s | %.0f%% | %v | %v |\n", row.ID, row.Agreement*100, row.Verdicts, row.FatalSeeds)
	}
	return out
}
