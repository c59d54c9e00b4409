// Package optimizer implements the A/B-test-driven rule promotion cycle
// described in spec.md §4.5: violation ranking to change proposal, executor
// evaluation, and a win-twice promotion tracker.
package optimizer

import "time"

// ChangeKind is the kind of RuleChange an optimizer cycle proposes.
type ChangeKind string

const (
	ChangeAdd     ChangeKind = "add"
	ChangeModify  ChangeKind = "modify"
	ChangePromote ChangeKind = "promote"
	ChangeDemote  ChangeKind = "demote"
	ChangeRemove  ChangeKind = "remove"
)

// RuleChange is a proposed mutation to the rule set derived from a
// violation ranking.
type RuleChange struct {
	Kind          ChangeKind
	TargetRuleID  string
	ProposedText  string
	Rationale     string
}

// ABTestResult is the outcome of evaluating a RuleChange against a baseline.
type ABTestResult struct {
	BaselineMetrics  map[string]float64
	CandidateMetrics map[string]float64
	ReworkDelta      float64
	ViolationDelta   float64
	RiskDelta        float64
	ShouldPromote    bool
}

// RuleADR records the decision made for one RuleChange during one cycle.
type RuleADR struct {
	Number     int
	Title      string
	Decision   string
	Rationale  string
	Change     RuleChange
	TestResult ABTestResult
	Date       time.Time
}

// ABExecutor is the injectable capability that runs a compliance suite
// against baseline and candidate rule sets. Implementations may suspend
// (I/O, subprocess) and must respect the supplied deadline.
type ABExecutor interface {
	RunComparison(change RuleChange, timeout time.Duration) (ABTestResult, error)
}

// Options configures an optimizer cycle; every field mirrors a spec.md §6
// configuration option.
type Options struct {
	TopViolationsPerCycle    int
	PromotionWins            int
	ImprovementThreshold     float64
	MaxRiskIncrease          float64
	MinEventsForOptimization int
	ABTimeout                time.Duration
	Now                      func() time.Time
}

// DefaultOptions returns the spec.md §6 defaults.
func DefaultOptions() Options {
	return Options{
		TopViolationsPerCycle:    3,
		PromotionWins:            2,
		ImprovementThreshold:     0.10,
		MaxRiskIncrease:          0.05,
		MinEventsForOptimization: 10,
		ABTimeout:                30 * time.Second,
		Now:                      time.Now,
	}
}
