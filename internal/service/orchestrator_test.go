package service

import (
	"testing"
	"time"

	"github.com/guidanceplane/guidance/internal/adapter/outbound/storage"
	"github.com/guidanceplane/guidance/internal/config"
	"github.com/guidanceplane/guidance/internal/domain/gate"
	"github.com/guidanceplane/guidance/internal/domain/ledger"
	"github.com/guidanceplane/guidance/internal/domain/retrieval"
)

const sampleDoc = "## Safety Invariants\n[R001] Never run destructive commands without confirmation priority:10\n\n" +
	"## Testing\n[R010] Always write tests before merging code @testing #testing\n"

func newTestConfig(t *testing.T) *config.GuidanceConfig {
	t.Helper()
	cfg := &config.GuidanceConfig{RulesPath: "rules.md"}
	cfg.Storage.Dir = t.TempDir()
	cfg.SetDefaults()
	return cfg
}

func TestNew_ConstructsAndCloses(t *testing.T) {
	cfg := newTestConfig(t)
	o, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := o.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
}

func TestCompileAndLoad_PersistsManifestAndIndexes(t *testing.T) {
	cfg := newTestConfig(t)
	o, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer o.Close()

	if _, err := o.CompileAndLoad(sampleDoc, ""); err != nil {
		t.Fatalf("unexpected compile error: %v", err)
	}

	if len(o.Constitution().Rules) != 1 {
		t.Fatalf("expected 1 constitution rule, got %d", len(o.Constitution().Rules))
	}

	manifestStore := storage.NewAtomicJSONStore(cfg.Storage.Dir+"/manifest.json", nil)
	if !manifestStore.Exists() {
		t.Fatal("expected manifest.json to be persisted")
	}
}

func TestRetrieve_ReturnsRelevantShard(t *testing.T) {
	cfg := newTestConfig(t)
	o, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer o.Close()

	if _, err := o.CompileAndLoad(sampleDoc, ""); err != nil {
		t.Fatalf("unexpected compile error: %v", err)
	}

	result, err := o.Retrieve(retrieval.Request{TaskDescription: "add unit tests for the parser", TopK: 5})
	if err != nil {
		t.Fatalf("unexpected retrieve error: %v", err)
	}
	found := false
	for _, s := range result.SelectedShards {
		if s.Rule.ID == "R010" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected R010 among selected shards, got %+v", result.SelectedShards)
	}
}

type constProvider struct{ vec []float64 }

func (p constProvider) Dim() int { return len(p.vec) }
func (p constProvider) Embed(string) ([]float64, error) {
	return append([]float64{}, p.vec...), nil
}

func TestWithEmbeddingProvider_IsActuallyUsedByRetriever(t *testing.T) {
	cfg := newTestConfig(t)
	provider := constProvider{vec: []float64{1, 0, 0, 0}}
	o, err := New(cfg, WithEmbeddingProvider(provider))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer o.Close()

	if _, err := o.CompileAndLoad(sampleDoc, ""); err != nil {
		t.Fatalf("unexpected compile error: %v", err)
	}

	// every shard's embedding came from the same constant vector, so cosine
	// similarity must be 1.0 for every candidate rather than the hash
	// provider's spread of scores. This only holds if the optimizer and
	// retriever built inside New share the provider captured by the option.
	result, err := o.Retrieve(retrieval.Request{TaskDescription: "irrelevant text", TopK: 5})
	if err != nil {
		t.Fatalf("unexpected retrieve error: %v", err)
	}
	for _, sb := range result.ScoreBreakdown {
		if sb.Cosine < 0.999 {
			t.Errorf("expected cosine ~1.0 for shard %s using injected provider, got %v", sb.RuleID, sb.Cosine)
		}
	}
}

func TestEvaluateCommand_BlocksDestructiveCommand(t *testing.T) {
	cfg := newTestConfig(t)
	o, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer o.Close()

	result := o.EvaluateCommand("rm -rf /")
	if result.Decision != gate.Block {
		t.Errorf("expected Block, got %v", result.Decision)
	}
}

func TestRunLifecycle_PersistsEventAndComputesMetrics(t *testing.T) {
	cfg := newTestConfig(t)
	o, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer o.Close()

	ev := o.StartRun("ev1", "feature", "digest1", "hash1", []string{"R010"})
	if ev.ID != "ev1" {
		t.Fatalf("expected event id ev1, got %s", ev.ID)
	}
	if err := o.RecordViolation("ev1", ledger.Violation{RuleID: "R010", GateName: "diff-size", Detail: "diff too large", Severity: 1, Cost: 10}); err != nil {
		t.Fatalf("unexpected violation error: %v", err)
	}
	if err := o.AccumulateDiff("ev1", 50, 10, 3, 5); err != nil {
		t.Fatalf("unexpected diff error: %v", err)
	}

	results, err := o.FinalizeRun("ev1", ledger.OutcomeSuccess)
	if err != nil {
		t.Fatalf("unexpected finalize error: %v", err)
	}
	if results == nil {
		t.Fatal("expected non-nil evaluator results slice")
	}

	persisted, err := storage.ReadAllJSONL[ledger.RunEvent](cfg.Storage.Dir + "/events.log")
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if len(persisted) != 1 {
		t.Fatalf("expected 1 persisted event, got %d", len(persisted))
	}
	if persisted[0].ID != "ev1" {
		t.Errorf("expected persisted event id ev1, got %s", persisted[0].ID)
	}
}

func TestRunLifecycle_ForbiddenCommandScanFailsOnMatchingCommand(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Ledger.ForbiddenCommandTokens = []string{"rm -rf"}
	o, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer o.Close()

	o.StartRun("ev1", "feature", "digest1", "hash1", nil)
	if err := o.RecordCommand("ev1", "rm -rf /tmp/scratch"); err != nil {
		t.Fatalf("unexpected record command error: %v", err)
	}

	results, err := o.FinalizeRun("ev1", ledger.OutcomeSuccess)
	if err != nil {
		t.Fatalf("unexpected finalize error: %v", err)
	}

	found := false
	for _, r := range results {
		if r.Name == "forbidden-command-scan" {
			found = true
			if r.Passed {
				t.Error("expected forbidden-command-scan to fail on a matching recorded command")
			}
		}
	}
	if !found {
		t.Fatal("expected forbidden-command-scan to be registered and run at finalization")
	}
}

func TestRunLifecycle_ForbiddenDependencyScanFailsOnMatchingFile(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Ledger.ForbiddenDependencyTokens = []string{"vendor/legacy"}
	o, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer o.Close()

	o.StartRun("ev1", "feature", "digest1", "hash1", nil)
	if err := o.RecordFilesModified("ev1", "vendor/legacy/client.go"); err != nil {
		t.Fatalf("unexpected record files modified error: %v", err)
	}

	results, err := o.FinalizeRun("ev1", ledger.OutcomeSuccess)
	if err != nil {
		t.Fatalf("unexpected finalize error: %v", err)
	}

	found := false
	for _, r := range results {
		if r.Name == "forbidden-dependency-scan" {
			found = true
			if r.Passed {
				t.Error("expected forbidden-dependency-scan to fail on a matching recorded file")
			}
		}
	}
	if !found {
		t.Fatal("expected forbidden-dependency-scan to be registered and run at finalization")
	}
}

func TestOptimize_PromotesAfterTwoConsecutiveCycles(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Optimizer.MinEventsForOptimization = 1
	o, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer o.Close()

	if _, err := o.CompileAndLoad(sampleDoc, ""); err != nil {
		t.Fatalf("unexpected compile error: %v", err)
	}

	seedViolation := func(id string) {
		o.StartRun(id, "testing", "digest", "hash", []string{"R010"})
		if err := o.RecordViolation(id, ledger.Violation{RuleID: "R010", GateName: "diff-size", Detail: "too big", Severity: 1, Cost: 5, OccurredAt: time.Unix(0, 0)}); err != nil {
			t.Fatalf("unexpected violation error: %v", err)
		}
		if _, err := o.FinalizeRun(id, ledger.OutcomeFailure); err != nil {
			t.Fatalf("unexpected finalize error: %v", err)
		}
	}

	seedViolation("cycle1-ev1")
	adrs1, err := o.Optimize()
	if err != nil {
		t.Fatalf("unexpected cycle 1 error: %v", err)
	}
	if len(adrs1) != 1 || adrs1[0].Decision == "promoted" {
		t.Fatalf("expected cycle 1 to stay pending, got %+v", adrs1)
	}

	seedViolation("cycle2-ev1")
	adrs2, err := o.Optimize()
	if err != nil {
		t.Fatalf("unexpected cycle 2 error: %v", err)
	}
	if len(adrs2) != 1 || adrs2[0].Decision != "promoted" {
		t.Fatalf("expected cycle 2 to promote R010, got %+v", adrs2)
	}

	rule, ok := o.retriever.FindRule("R010")
	if !ok {
		t.Fatal("expected R010 to still be findable after promotion")
	}
	if !rule.IsConstitution {
		t.Error("expected R010 to be promoted into the constitution")
	}

	persisted, err := storage.ReadAllJSONL[map[string]any](cfg.Storage.Dir + "/adrs.log")
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if len(persisted) != 2 {
		t.Fatalf("expected 2 persisted ADRs, got %d", len(persisted))
	}
}
