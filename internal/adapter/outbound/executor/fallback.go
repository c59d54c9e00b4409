// Package executor provides the conservative fallback A/B executor used
// when no real headless compliance-suite runner is wired. Acknowledged as a
// placeholder per spec.md §9 open questions: prefer a real executor
// wherever one is available.
package executor

import (
	"time"

	"github.com/guidanceplane/guidance/internal/domain/optimizer"
)

// reduction is the fixed violation-reduction/regression estimate per change kind.
var reduction = map[optimizer.ChangeKind]float64{
	optimizer.ChangeModify:  0.40,
	optimizer.ChangeAdd:     0.60,
	optimizer.ChangePromote: 0.80,
	optimizer.ChangeRemove:  -0.20,
}

// ConservativeFallback implements optimizer.ABExecutor using the fixed
// estimates from spec.md §4.5 instead of running a real compliance suite.
type ConservativeFallback struct {
	MaxRiskIncrease      float64
	ImprovementThreshold float64
}

// RunComparison never suspends and never errors; it estimates deltas from
// change.Kind alone.
func (f ConservativeFallback) RunComparison(change optimizer.RuleChange, _ time.Duration) (optimizer.ABTestResult, error) {
	r := reduction[change.Kind]
	result := optimizer.ABTestResult{
		ReworkDelta:    -r,
		ViolationDelta: -r,
		RiskDelta:      0,
	}
	result.ShouldPromote = result.RiskDelta <= f.MaxRiskIncrease && result.ReworkDelta <= -f.ImprovementThreshold
	return result, nil
}
