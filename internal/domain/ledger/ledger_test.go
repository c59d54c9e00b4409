package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/guidanceplane/guidance/internal/apperr"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCreateEventAndFinalize_RunsEvaluatorsInOrder(t *testing.T) {
	l := New(fixedClock(time.Unix(1000, 0)))

	var order []string
	l.RegisterEvaluator(recordingEvaluator{name: "first", order: &order})
	l.RegisterEvaluator(recordingEvaluator{name: "second", order: &order})

	l.CreateEvent("ev1", "bug-fix", "digest", "hash", nil)
	results, err := l.FinalizeEvent("ev1", OutcomeSuccess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 || results[0].Name != "first" || results[1].Name != "second" {
		t.Fatalf("expected evaluators in registration order, got %+v", results)
	}
	if order[0] != "first" || order[1] != "second" {
		t.Errorf("expected evaluation order first,second, got %v", order)
	}
}

type recordingEvaluator struct {
	name  string
	order *[]string
}

func (r recordingEvaluator) Name() string { return r.name }
func (r recordingEvaluator) Evaluate(RunEvent, EvalContext) EvaluatorResult {
	*r.order = append(*r.order, r.name)
	return EvaluatorResult{Name: r.name, Passed: true}
}

func TestRecordViolation_AfterFinalizeFailsWithInvalidState(t *testing.T) {
	l := New(fixedClock(time.Now()))
	l.CreateEvent("ev1", "bug-fix", "d", "h", nil)
	if _, err := l.FinalizeEvent("ev1", OutcomeSuccess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := l.RecordViolation("ev1", Violation{RuleID: "R1"})
	if err == nil {
		t.Fatal("expected error recording violation after finalize")
	}
	if !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("expected InvalidState error, got %v", err)
	}
}

func TestFinalizeEvent_DoubleFinalizeFails(t *testing.T) {
	l := New(fixedClock(time.Now()))
	l.CreateEvent("ev1", "bug-fix", "d", "h", nil)
	if _, err := l.FinalizeEvent("ev1", OutcomeSuccess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := l.FinalizeEvent("ev1", OutcomeSuccess); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("expected InvalidState on double finalize, got %v", err)
	}
}

func TestRankViolations_SortsByScoreDescRuleIDAsc(t *testing.T) {
	l := New(fixedClock(time.Now()))

	l.CreateEvent("ev1", "bug-fix", "d", "h", nil)
	l.RecordViolation("ev1", Violation{RuleID: "R1", Cost: 10})
	l.RecordViolation("ev1", Violation{RuleID: "R2", Cost: 5})
	l.RecordViolation("ev1", Violation{RuleID: "R2", Cost: 5})
	l.RecordViolation("ev1", Violation{RuleID: "R3", Cost: 10})
	l.FinalizeEvent("ev1", OutcomeSuccess)

	rankings := l.RankViolations()
	// R1: freq1*cost10=10 ; R2: freq2*cost10=20 ; R3: freq1*cost10=10
	if len(rankings) != 3 {
		t.Fatalf("expected 3 rankings, got %d", len(rankings))
	}
	if rankings[0].RuleID != "R2" {
		t.Errorf("expected R2 to rank first (score 20), got %s", rankings[0].RuleID)
	}
	// R1 and R3 tie at score 10; ruleId ascending tiebreak.
	if rankings[1].RuleID != "R1" || rankings[2].RuleID != "R3" {
		t.Errorf("expected R1 before R3 on tiebreak, got %s, %s", rankings[1].RuleID, rankings[2].RuleID)
	}
}

func TestAppendOnly_FirstNEventsStable(t *testing.T) {
	l := New(fixedClock(time.Now()))
	l.CreateEvent("ev1", "bug-fix", "d", "h", nil)
	l.FinalizeEvent("ev1", OutcomeSuccess)
	snapshot1 := l.Events()

	l.CreateEvent("ev2", "feature", "d", "h", nil)
	l.FinalizeEvent("ev2", OutcomeSuccess)
	snapshot2 := l.Events()

	if len(snapshot2) != len(snapshot1)+1 {
		t.Fatalf("expected snapshot2 to have one more event")
	}
	if snapshot1[0].ID != snapshot2[0].ID {
		t.Error("expected prefix of snapshot2 to equal snapshot1")
	}
}

func TestDiffQualityEvaluator_ZeroDenominatorPasses(t *testing.T) {
	e := DiffQualityEvaluator{}
	result := e.Evaluate(RunEvent{}, EvalContext{})
	if !result.Passed {
		t.Error("expected pass when linesAdded+linesRemoved == 0")
	}
}

func TestDiffQualityEvaluator_ExceedsRatioFails(t *testing.T) {
	e := DiffQualityEvaluator{MaxReworkRatio: 0.3}
	ev := RunEvent{DiffSummary: DiffSummary{LinesAdded: 50, LinesRemoved: 50, ReworkLines: 40}}
	result := e.Evaluate(ev, EvalContext{})
	if result.Passed {
		t.Error("expected fail when rework ratio exceeds max")
	}
}

func TestTestsPassEvaluator(t *testing.T) {
	e := TestsPassEvaluator{}
	if r := e.Evaluate(RunEvent{TestsPassed: true}, EvalContext{}); !r.Passed {
		t.Error("expected pass when TestsPassed true")
	}
	if r := e.Evaluate(RunEvent{TestsPassed: false}, EvalContext{}); r.Passed {
		t.Error("expected fail when TestsPassed false")
	}
}

func TestForbiddenCommandScanEvaluator(t *testing.T) {
	e := ForbiddenCommandScanEvaluator{Forbidden: []string{"rm -rf"}}
	clean := RunEvent{CommandsRun: []string{"git status"}}
	if r := e.Evaluate(clean, EvalContext{}); !r.Passed {
		t.Error("expected pass for clean commands")
	}
	dirty := RunEvent{CommandsRun: []string{"rm -rf /tmp/x"}}
	if r := e.Evaluate(dirty, EvalContext{}); r.Passed {
		t.Error("expected fail for forbidden command")
	}
}

func TestAccumulateDiff_AfterFinalizeFails(t *testing.T) {
	l := New(fixedClock(time.Now()))
	l.CreateEvent("ev1", "bug-fix", "d", "h", nil)
	l.FinalizeEvent("ev1", OutcomeSuccess)
	if err := l.AccumulateDiff("ev1", 1, 1, 1, 1); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("expected InvalidState, got %v", err)
	}
}
