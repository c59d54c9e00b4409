package optimizer

import (
	"fmt"
	"sync"
	"time"

	"github.com/guidanceplane/guidance/internal/apperr"
	"github.com/guidanceplane/guidance/internal/domain/ledger"
	"github.com/guidanceplane/guidance/internal/domain/retrieval"
	"github.com/guidanceplane/guidance/internal/domain/rule"
)

const (
	frequencyModifyThreshold = 5
	costModifyThreshold      = 50
)

// conservativeFallback are the fixed reduction/regression percentages used
// when no ABExecutor is wired. Acknowledged placeholder per spec.md §9 open
// questions; a real executor should be preferred whenever available.
var conservativeFallback = map[ChangeKind]float64{
	ChangeModify:  0.40,
	ChangeAdd:     0.60,
	ChangePromote: 0.80,
	ChangeRemove:  -0.20,
}

// Optimizer runs periodic optimization cycles over a Ledger's accumulated
// violations, proposing and (on sustained A/B wins) applying RuleChanges to
// a Retriever's shard pool.
type Optimizer struct {
	ledger    *ledger.Ledger
	retriever *retrieval.Retriever
	executor  ABExecutor
	opts      Options

	mu            sync.Mutex
	cycleInFlight bool
	wins          map[string]int
	adrs          []RuleADR
	adrCounter    int
	eventsAtLast  int
	maxConstLines int
}

// New constructs an Optimizer. executor may be nil, in which case
// conservativeFallback estimates are used.
func New(l *ledger.Ledger, r *retrieval.Retriever, executor ABExecutor, opts Options, maxConstitutionLines int) *Optimizer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TopViolationsPerCycle <= 0 {
		opts.TopViolationsPerCycle = DefaultOptions().TopViolationsPerCycle
	}
	if opts.PromotionWins <= 0 {
		opts.PromotionWins = DefaultOptions().PromotionWins
	}
	if opts.MinEventsForOptimization <= 0 {
		opts.MinEventsForOptimization = DefaultOptions().MinEventsForOptimization
	}
	if opts.ABTimeout <= 0 {
		opts.ABTimeout = DefaultOptions().ABTimeout
	}
	return &Optimizer{
		ledger:        l,
		retriever:     r,
		executor:      executor,
		opts:          opts,
		wins:          make(map[string]int),
		maxConstLines: maxConstitutionLines,
	}
}

// ADRs returns a snapshot of every RuleADR appended so far.
func (o *Optimizer) ADRs() []RuleADR {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]RuleADR(nil), o.adrs...)
}

// WinCount returns the current promotion-tracker win count for ruleID.
func (o *Optimizer) WinCount(ruleID string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.wins[ruleID]
}

// RunCycle executes one optimizer cycle: rank violations, derive and
// evaluate changes, and apply promotions/demotions per the win-twice
// tracker. A single cycle may be in flight at a time; reentrant calls fail
// with InvalidState. Any error aborts the cycle without mutating the
// tracker or shard pool.
func (o *Optimizer) RunCycle() ([]RuleADR, error) {
	o.mu.Lock()
	if o.cycleInFlight {
		o.mu.Unlock()
		return nil, apperr.NewInvalidStateError("optimizer", "cycle already in flight")
	}
	o.cycleInFlight = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.cycleInFlight = false
		o.mu.Unlock()
	}()

	events := o.ledger.Events()
	eventsSinceLast := len(events) - o.eventsSnapshot()
	if eventsSinceLast < o.opts.MinEventsForOptimization {
		return nil, nil
	}

	rankings := o.ledger.RankViolations()
	if len(rankings) > o.opts.TopViolationsPerCycle {
		rankings = rankings[:o.opts.TopViolationsPerCycle]
	}

	var produced []RuleADR
	for _, ranking := range rankings {
		change := o.deriveChange(ranking)
		result, err := o.evaluateChange(change)
		if err != nil {
			return nil, err
		}
		adr, err := o.applyDecision(change, result)
		if err != nil {
			return nil, err
		}
		produced = append(produced, adr)
	}

	o.setEventsSnapshot(len(events))
	return produced, nil
}

func (o *Optimizer) eventsSnapshot() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.eventsAtLast
}

func (o *Optimizer) setEventsSnapshot(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.eventsAtLast = n
}

// deriveChange implements spec.md §4.5 step 2's branching.
func (o *Optimizer) deriveChange(ranking ledger.ViolationRanking) RuleChange {
	existing, found := o.retriever.FindRule(ranking.RuleID)

	if found && ranking.Frequency > frequencyModifyThreshold {
		return RuleChange{
			Kind:         ChangeModify,
			TargetRuleID: ranking.RuleID,
			Rationale:    fmt.Sprintf("violation frequency %d exceeds threshold; sharpening rule text", ranking.Frequency),
		}
	}
	if found && ranking.Cost > costModifyThreshold {
		return RuleChange{
			Kind:         ChangeModify,
			TargetRuleID: ranking.RuleID,
			Rationale:    fmt.Sprintf("accumulated rework cost %d exceeds threshold; elevating priority", ranking.Cost),
		}
	}
	if found && existing.Source == rule.SourceLocal && o.WinCount(ranking.RuleID) >= o.opts.PromotionWins-1 {
		return RuleChange{
			Kind:         ChangePromote,
			TargetRuleID: ranking.RuleID,
			Rationale:    "local rule has accumulated sufficient promotion wins",
		}
	}
	if found {
		return RuleChange{
			Kind:         ChangeModify,
			TargetRuleID: ranking.RuleID,
			Rationale:    "recurring violation on existing rule below modify thresholds",
		}
	}
	return RuleChange{
		Kind:      ChangeAdd,
		Rationale: fmt.Sprintf("no matching rule for recurring violation ruleId %q", ranking.RuleID),
	}
}

// evaluateChange runs the injected ABExecutor, or falls back to
// conservativeFallback estimates when none is wired.
func (o *Optimizer) evaluateChange(change RuleChange) (ABTestResult, error) {
	if o.executor != nil {
		result, err := o.executor.RunComparison(change, o.opts.ABTimeout)
		if err != nil {
			return ABTestResult{}, apperr.NewCapabilityError("ab-executor", err)
		}
		return result, nil
	}

	reduction := conservativeFallback[change.Kind]
	result := ABTestResult{
		ReworkDelta:    -reduction,
		ViolationDelta: -reduction,
		RiskDelta:      0,
	}
	result.ShouldPromote = result.RiskDelta <= o.opts.MaxRiskIncrease &&
		result.ReworkDelta <= -o.opts.ImprovementThreshold
	return result, nil
}

// applyDecision runs the promotion tracker state machine and emits an ADR.
func (o *Optimizer) applyDecision(change RuleChange, result ABTestResult) (RuleADR, error) {
	o.mu.Lock()
	o.adrCounter++
	number := o.adrCounter
	o.mu.Unlock()

	decision := "rejected"
	hasTarget := change.TargetRuleID != ""

	if result.ShouldPromote {
		o.mu.Lock()
		o.wins[change.TargetRuleID]++
		win := o.wins[change.TargetRuleID]
		o.mu.Unlock()

		if hasTarget && win >= o.opts.PromotionWins {
			if err := o.retriever.Promote(change.TargetRuleID, change.ProposedText, nil, o.maxConstLines); err != nil {
				return RuleADR{}, err
			}
			o.mu.Lock()
			o.wins[change.TargetRuleID] = 0
			o.mu.Unlock()
			decision = "promoted"
		} else {
			decision = "pending"
		}
	} else {
		o.mu.Lock()
		o.wins[change.TargetRuleID] = 0
		o.mu.Unlock()

		if change.Kind == ChangePromote {
			if err := o.retriever.Demote(change.TargetRuleID, o.maxConstLines); err != nil {
				return RuleADR{}, err
			}
			decision = "demoted"
		}
	}

	adr := RuleADR{
		Number:     number,
		Title:      fmt.Sprintf("%s %s", change.Kind, change.TargetRuleID),
		Decision:   decision,
		Rationale:  change.Rationale,
		Change:     change,
		TestResult: result,
		Date:       o.opts.Now(),
	}

	o.mu.Lock()
	o.adrs = append(o.adrs, adr)
	o.mu.Unlock()

	return adr, nil
}
