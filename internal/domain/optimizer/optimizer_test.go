package optimizer

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/guidanceplane/guidance/internal/domain/ledger"
	"github.com/guidanceplane/guidance/internal/domain/retrieval"
	"github.com/guidanceplane/guidance/internal/domain/rule"
)

var seedEventSeq int

func seedEvents(t *testing.T, l *ledger.Ledger, n int, ruleID string) {
	t.Helper()
	for i := 0; i < n; i++ {
		seedEventSeq++
		id := "ev" + string(rune('A'+(seedEventSeq%26))) + string(rune('0'+(seedEventSeq/26)))
		l.CreateEvent(id, "bug-fix", "digest", "hash", nil)
		l.RecordViolation(id, ledger.Violation{RuleID: ruleID, Cost: 1})
		if _, err := l.FinalizeEvent(id, ledger.OutcomeSuccess); err != nil {
			t.Fatalf("unexpected finalize error: %v", err)
		}
	}
}

func newTestRetrieverWithLocalRule(ruleID string) *retrieval.Retriever {
	r := retrieval.New(nil, retrieval.Config{})
	r.Index(rule.PolicyBundle{
		Shards: []rule.RuleShard{
			{
				Rule: rule.GuidanceRule{
					ID:       ruleID,
					Text:     "sharpen this rule",
					Priority: 10,
					Source:   rule.SourceLocal,
				},
				CompactText: "[" + ruleID + "] sharpen this rule",
			},
		},
	})
	return r
}

type alwaysPromoteExecutor struct{}

func (alwaysPromoteExecutor) RunComparison(change RuleChange, _ time.Duration) (ABTestResult, error) {
	return ABTestResult{RiskDelta: 0, ReworkDelta: -0.5, ShouldPromote: true}, nil
}

func TestRunCycle_SkipsWhenBelowMinEvents(t *testing.T) {
	l := ledger.New(nil)
	r := newTestRetrieverWithLocalRule("R042")
	opts := DefaultOptions()
	opts.MinEventsForOptimization = 10
	o := New(l, r, nil, opts, 60)

	seedEvents(t, l, 3, "R042")
	adrs, err := o.RunCycle()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if adrs != nil {
		t.Errorf("expected no-op cycle, got %+v", adrs)
	}
}

func TestRunCycle_TwoConsecutiveWinsPromotesRule(t *testing.T) {
	l := ledger.New(nil)
	r := newTestRetrieverWithLocalRule("R042")
	opts := DefaultOptions()
	opts.MinEventsForOptimization = 5
	o := New(l, r, alwaysPromoteExecutor{}, opts, 60)

	seedEvents(t, l, 5, "R042")
	if _, err := o.RunCycle(); err != nil {
		t.Fatalf("unexpected error on cycle 1: %v", err)
	}
	if win := o.WinCount("R042"); win != 1 {
		t.Errorf("expected win count 1 after cycle 1, got %d", win)
	}

	seedEvents(t, l, 5, "R042")
	adrs, err := o.RunCycle()
	if err != nil {
		t.Fatalf("unexpected error on cycle 2: %v", err)
	}
	if len(adrs) == 0 {
		t.Fatal("expected at least one ADR from cycle 2")
	}

	found, ok := r.FindRule("R042")
	if !ok {
		t.Fatal("expected R042 to still be findable")
	}
	if !found.IsConstitution {
		t.Error("expected R042 promoted into constitution after 2 consecutive wins")
	}
	if found.Source != rule.SourceRoot {
		t.Errorf("expected source=root after promotion, got %s", found.Source)
	}
	if found.Priority != 110 {
		t.Errorf("expected priority 110 (10+100), got %d", found.Priority)
	}
	if win := o.WinCount("R042"); win != 0 {
		t.Errorf("expected win count reset to 0 after promotion, got %d", win)
	}

	allADRs := o.ADRs()
	if len(allADRs) != 2 {
		t.Errorf("expected one ADR per cycle (2 total), got %d", len(allADRs))
	}
}

type failingExecutor struct{}

func (failingExecutor) RunComparison(change RuleChange, _ time.Duration) (ABTestResult, error) {
	return ABTestResult{}, errors.New("executor unreachable")
}

func TestRunCycle_ExecutorFailureAbortsWithoutMutatingTracker(t *testing.T) {
	l := ledger.New(nil)
	r := newTestRetrieverWithLocalRule("R042")
	opts := DefaultOptions()
	opts.MinEventsForOptimization = 5
	o := New(l, r, failingExecutor{}, opts, 60)

	seedEvents(t, l, 5, "R042")
	_, err := o.RunCycle()
	if err == nil {
		t.Fatal("expected error from failing executor")
	}
	if win := o.WinCount("R042"); win != 0 {
		t.Errorf("expected tracker untouched on abort, got win count %d", win)
	}
	if len(o.ADRs()) != 0 {
		t.Errorf("expected no ADR recorded on abort, got %d", len(o.ADRs()))
	}

	rule, ok := r.FindRule("R042")
	if !ok || rule.IsConstitution {
		t.Error("expected shard pool unchanged on abort")
	}
}

func TestRunCycle_FallbackEstimatesUsedWhenNoExecutor(t *testing.T) {
	l := ledger.New(nil)
	r := newTestRetrieverWithLocalRule("R042")
	opts := DefaultOptions()
	opts.MinEventsForOptimization = 5
	o := New(l, r, nil, opts, 60)

	seedEvents(t, l, 5, "R042")
	adrs, err := o.RunCycle()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(adrs) == 0 {
		t.Fatal("expected an ADR even with the conservative fallback")
	}
}

func TestRunCycle_ReentrantCallFails(t *testing.T) {
	l := ledger.New(nil)
	r := newTestRetrieverWithLocalRule("R042")
	o := New(l, r, nil, DefaultOptions(), 60)

	o.mu.Lock()
	o.cycleInFlight = true
	o.mu.Unlock()

	_, err := o.RunCycle()
	if err == nil {
		t.Fatal("expected InvalidState on reentrant cycle")
	}
}

// blockingExecutor holds RunComparison open until release is closed, so a
// concurrent second RunCycle call observes cycleInFlight still set.
type blockingExecutor struct {
	release chan struct{}
}

func (b blockingExecutor) RunComparison(change RuleChange, _ time.Duration) (ABTestResult, error) {
	<-b.release
	return ABTestResult{RiskDelta: 0, ReworkDelta: -0.5, ShouldPromote: false}, nil
}

func TestRunCycle_ConcurrentCallsOneWinsOneRejected(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := ledger.New(nil)
	r := newTestRetrieverWithLocalRule("R042")
	opts := DefaultOptions()
	opts.MinEventsForOptimization = 5
	release := make(chan struct{})
	o := New(l, r, blockingExecutor{release: release}, opts, 60)
	seedEvents(t, l, 5, "R042")

	started := make(chan struct{})
	firstErrCh := make(chan error, 1)
	go func() {
		close(started)
		_, err := o.RunCycle()
		firstErrCh <- err
	}()

	<-started
	// give the first call a chance to set cycleInFlight before the second fires.
	for {
		o.mu.Lock()
		inFlight := o.cycleInFlight
		o.mu.Unlock()
		if inFlight {
			break
		}
	}

	_, secondErr := o.RunCycle()
	if secondErr == nil {
		t.Error("expected the concurrent second call to be rejected")
	}

	close(release)
	if firstErr := <-firstErrCh; firstErr != nil {
		t.Errorf("expected the first call to succeed, got %v", firstErr)
	}
}
