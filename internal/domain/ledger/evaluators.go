package ledger

import (
	"fmt"
	"strings"
)

// TestsPassEvaluator passes iff the event recorded a passing test run.
type TestsPassEvaluator struct{}

func (TestsPassEvaluator) Name() string { return "tests-pass" }

func (TestsPassEvaluator) Evaluate(event RunEvent, _ EvalContext) EvaluatorResult {
	if event.TestsPassed {
		return EvaluatorResult{Name: "tests-pass", Passed: true, Score: 1, Detail: "tests passed"}
	}
	return EvaluatorResult{Name: "tests-pass", Passed: false, Score: 0, Detail: "tests did not pass"}
}

// ForbiddenCommandScanEvaluator fails if any command recorded on the event
// matches a configured forbidden substring/pattern.
type ForbiddenCommandScanEvaluator struct {
	Forbidden []string
}

func (ForbiddenCommandScanEvaluator) Name() string { return "forbidden-command-scan" }

func (e ForbiddenCommandScanEvaluator) Evaluate(event RunEvent, _ EvalContext) EvaluatorResult {
	for _, cmd := range event.CommandsRun {
		for _, forbidden := range e.Forbidden {
			if strings.Contains(cmd, forbidden) {
				return EvaluatorResult{
					Name:   "forbidden-command-scan",
					Passed: false,
					Score:  0,
					Detail: fmt.Sprintf("command %q matches forbidden token %q", cmd, forbidden),
				}
			}
		}
	}
	return EvaluatorResult{Name: "forbidden-command-scan", Passed: true, Score: 1, Detail: "no forbidden commands"}
}

// ForbiddenDependencyScanEvaluator fails if any modified file path carries a
// disallowed dependency token (e.g. an import path fragment surfaced via the
// file path or a recorded tool argument).
type ForbiddenDependencyScanEvaluator struct {
	Forbidden []string
}

func (ForbiddenDependencyScanEvaluator) Name() string { return "forbidden-dependency-scan" }

func (e ForbiddenDependencyScanEvaluator) Evaluate(event RunEvent, _ EvalContext) EvaluatorResult {
	for _, f := range event.FilesModified {
		for _, forbidden := range e.Forbidden {
			if strings.Contains(f, forbidden) {
				return EvaluatorResult{
					Name:   "forbidden-dependency-scan",
					Passed: false,
					Score:  0,
					Detail: fmt.Sprintf("file %q references forbidden dependency %q", f, forbidden),
				}
			}
		}
	}
	return EvaluatorResult{Name: "forbidden-dependency-scan", Passed: true, Score: 1, Detail: "no forbidden dependencies"}
}

// ViolationRateEvaluator fails if the rolling window violation rate exceeds
// a threshold (violations per 10 tasks).
type ViolationRateEvaluator struct {
	Threshold float64
	Window    int
}

func (ViolationRateEvaluator) Name() string { return "violation-rate" }

func (e ViolationRateEvaluator) Evaluate(_ RunEvent, ctx EvalContext) EvaluatorResult {
	events := ctx.RecentEvents
	window := e.Window
	if window > 0 && window < len(events) {
		events = events[len(events)-window:]
	}
	if len(events) == 0 {
		return EvaluatorResult{Name: "violation-rate", Passed: true, Score: 1, Detail: "no events in window"}
	}
	var total int
	for _, ev := range events {
		total += len(ev.Violations)
	}
	rate := float64(total) / float64(len(events)) * 10
	if rate > e.Threshold {
		return EvaluatorResult{
			Name:   "violation-rate",
			Passed: false,
			Score:  rate,
			Detail: fmt.Sprintf("violation rate %.2f/10 exceeds threshold %.2f", rate, e.Threshold),
		}
	}
	return EvaluatorResult{Name: "violation-rate", Passed: true, Score: rate, Detail: "within threshold"}
}

// DefaultMaxReworkRatio is the default diff-quality threshold.
const DefaultMaxReworkRatio = 0.3

// DiffQualityEvaluator fails if reworkLines/(linesAdded+linesRemoved) exceeds
// MaxReworkRatio. A zero denominator passes.
type DiffQualityEvaluator struct {
	MaxReworkRatio float64
}

func (DiffQualityEvaluator) Name() string { return "diff-quality" }

func (e DiffQualityEvaluator) Evaluate(event RunEvent, _ EvalContext) EvaluatorResult {
	maxRatio := e.MaxReworkRatio
	if maxRatio <= 0 {
		maxRatio = DefaultMaxReworkRatio
	}
	denom := event.DiffSummary.LinesAdded + event.DiffSummary.LinesRemoved
	if denom == 0 {
		return EvaluatorResult{Name: "diff-quality", Passed: true, Score: 0, Detail: "no diff recorded"}
	}
	ratio := float64(event.DiffSummary.ReworkLines) / float64(denom)
	if ratio > maxRatio {
		return EvaluatorResult{
			Name:   "diff-quality",
			Passed: false,
			Score:  ratio,
			Detail: fmt.Sprintf("rework ratio %.2f exceeds max %.2f", ratio, maxRatio),
		}
	}
	return EvaluatorResult{Name: "diff-quality", Passed: true, Score: ratio, Detail: "within threshold"}
}
