package ledger

import (
	"sort"
	"sync"
	"time"

	"github.com/guidanceplane/guidance/internal/apperr"
)

// Ledger is an append-only store of finalized RunEvents plus a registry of
// Evaluators run at finalization, in registration order. The map guards
// concurrent access across independent event ids; callers are responsible
// for serializing RecordViolation/FinalizeEvent calls against the same id
// per spec.md §5.
type Ledger struct {
	mu         sync.Mutex
	inFlight   map[string]*RunEvent
	finalized  []RunEvent
	evaluators []Evaluator
	now        func() time.Time
}

// New constructs an empty Ledger. now defaults to time.Now when nil.
func New(now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		inFlight: make(map[string]*RunEvent),
		now:      now,
	}
}

// RegisterEvaluator appends e to the registration order.
func (l *Ledger) RegisterEvaluator(e Evaluator) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evaluators = append(l.evaluators, e)
}

// CreateEvent starts a new RunEvent with the given id and task intent.
func (l *Ledger) CreateEvent(id, taskIntent, promptDigest, guidanceHash string, retrievedRuleIDs []string) RunEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev := &RunEvent{
		ID:               id,
		TaskIntent:       taskIntent,
		PromptDigest:     promptDigest,
		GuidanceHash:     guidanceHash,
		RetrievedRuleIDs: append([]string(nil), retrievedRuleIDs...),
		StartedAt:        l.now(),
		Outcome:          outcomeInProgress,
	}
	l.inFlight[id] = ev
	return *ev
}

// RecordViolation appends a violation to an in-flight event. Fails with
// InvalidState if the event is unknown or already finalized.
func (l *Ledger) RecordViolation(eventID string, v Violation) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev, ok := l.inFlight[eventID]
	if !ok {
		return apperr.NewInvalidStateError(eventID, "unknown or already-finalized event")
	}
	if ev.finalized {
		return apperr.NewInvalidStateError(eventID, "event already finalized")
	}
	ev.Violations = append(ev.Violations, v)
	return nil
}

// AccumulateDiff adds to the in-flight event's diff summary.
func (l *Ledger) AccumulateDiff(eventID string, added, removed, files, reworkLines int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev, ok := l.inFlight[eventID]
	if !ok {
		return apperr.NewInvalidStateError(eventID, "unknown or already-finalized event")
	}
	if ev.finalized {
		return apperr.NewInvalidStateError(eventID, "event already finalized")
	}
	ev.DiffSummary.LinesAdded += added
	ev.DiffSummary.LinesRemoved += removed
	ev.DiffSummary.FilesChanged += files
	ev.DiffSummary.ReworkLines += reworkLines
	return nil
}

// RecordToolUse appends a tool name to the in-flight event's ToolsUsed.
func (l *Ledger) RecordToolUse(eventID, toolName string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev, ok := l.inFlight[eventID]
	if !ok || ev.finalized {
		return apperr.NewInvalidStateError(eventID, "unknown or already-finalized event")
	}
	ev.ToolsUsed = append(ev.ToolsUsed, toolName)
	return nil
}

// RecordCommand appends a command string to the in-flight event's
// CommandsRun, the input forbidden-command-scan evaluates at finalization.
func (l *Ledger) RecordCommand(eventID, command string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev, ok := l.inFlight[eventID]
	if !ok || ev.finalized {
		return apperr.NewInvalidStateError(eventID, "unknown or already-finalized event")
	}
	ev.CommandsRun = append(ev.CommandsRun, command)
	return nil
}

// RecordFilesModified appends a file path to the in-flight event's
// FilesModified, the input forbidden-dependency-scan evaluates at
// finalization.
func (l *Ledger) RecordFilesModified(eventID, path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev, ok := l.inFlight[eventID]
	if !ok || ev.finalized {
		return apperr.NewInvalidStateError(eventID, "unknown or already-finalized event")
	}
	ev.FilesModified = append(ev.FilesModified, path)
	return nil
}

// SetTestsPassed records the test outcome on an in-flight event.
func (l *Ledger) SetTestsPassed(eventID string, passed bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev, ok := l.inFlight[eventID]
	if !ok || ev.finalized {
		return apperr.NewInvalidStateError(eventID, "unknown or already-finalized event")
	}
	ev.TestsPassed = passed
	return nil
}

// FinalizeEvent freezes the event, moves it to the finalized log, and runs
// every registered evaluator in registration order.
func (l *Ledger) FinalizeEvent(eventID string, outcome Outcome) ([]EvaluatorResult, error) {
	l.mu.Lock()
	ev, ok := l.inFlight[eventID]
	if !ok {
		l.mu.Unlock()
		return nil, apperr.NewInvalidStateError(eventID, "unknown or already-finalized event")
	}
	if ev.finalized {
		l.mu.Unlock()
		return nil, apperr.NewInvalidStateError(eventID, "event already finalized")
	}

	ev.finalized = true
	ev.Outcome = outcome
	ev.FinalizedAt = l.now()
	frozen := *ev
	delete(l.inFlight, eventID)
	l.finalized = append(l.finalized, frozen)
	recent := append([]RunEvent(nil), l.finalized...)
	evaluators := append([]Evaluator(nil), l.evaluators...)
	l.mu.Unlock()

	ctx := EvalContext{RecentEvents: recent}
	results := make([]EvaluatorResult, 0, len(evaluators))
	for _, e := range evaluators {
		results = append(results, e.Evaluate(frozen, ctx))
	}
	return results, nil
}

// Events returns a snapshot of all finalized events, in finalization order.
func (l *Ledger) Events() []RunEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]RunEvent(nil), l.finalized...)
}

// RankViolations aggregates violations across all finalized events by rule
// id, sorted by frequency*cost descending, ties broken by ruleId ascending.
func (l *Ledger) RankViolations() []ViolationRanking {
	l.mu.Lock()
	events := append([]RunEvent(nil), l.finalized...)
	l.mu.Unlock()

	type acc struct {
		frequency int
		cost      int
	}
	byRule := make(map[string]*acc)
	for _, ev := range events {
		for _, v := range ev.Violations {
			a, ok := byRule[v.RuleID]
			if !ok {
				a = &acc{}
				byRule[v.RuleID] = a
			}
			a.frequency++
			a.cost += v.Cost
		}
	}

	rankings := make([]ViolationRanking, 0, len(byRule))
	for ruleID, a := range byRule {
		rankings = append(rankings, ViolationRanking{
			RuleID:    ruleID,
			Frequency: a.frequency,
			Cost:      a.cost,
			Score:     a.frequency * a.cost,
		})
	}
	sort.Slice(rankings, func(i, j int) bool {
		if rankings[i].Score != rankings[j].Score {
			return rankings[i].Score > rankings[j].Score
		}
		return rankings[i].RuleID < rankings[j].RuleID
	})
	return rankings
}

// ComputeMetrics summarizes the last window finalized events (all events if
// window <= 0 or exceeds the log length).
func (l *Ledger) ComputeMetrics(window int) Metrics {
	l.mu.Lock()
	events := append([]RunEvent(nil), l.finalized...)
	l.mu.Unlock()

	if window > 0 && window < len(events) {
		events = events[len(events)-window:]
	}
	if len(events) == 0 {
		return Metrics{}
	}

	var totalViolations, totalPassed int
	var reworkRatioSum float64
	var reworkSamples int
	for _, ev := range events {
		totalViolations += len(ev.Violations)
		if ev.Outcome == OutcomeSuccess {
			totalPassed++
		}
		denom := ev.DiffSummary.LinesAdded + ev.DiffSummary.LinesRemoved
		if denom > 0 {
			reworkRatioSum += float64(ev.DiffSummary.ReworkLines) / float64(denom)
			reworkSamples++
		}
	}

	m := Metrics{
		EventCount:              len(events),
		ViolationRatePer10Tasks: float64(totalViolations) / float64(len(events)) * 10,
		PassRate:                float64(totalPassed) / float64(len(events)),
	}
	if reworkSamples > 0 {
		m.AvgReworkRatio = reworkRatioSum / float64(reworkSamples)
	}
	return m
}
