// Package service hosts the orchestrator that owns the live PolicyBundle,
// Retriever, Gates, Ledger, and Optimizer collaborators and wires them
// together behind a small, synchronous API surface.
package service

import (
	"log/slog"
	"time"

	"github.com/guidanceplane/guidance/internal/adapter/outbound/metrics"
	"github.com/guidanceplane/guidance/internal/adapter/outbound/storage"
	"github.com/guidanceplane/guidance/internal/apperr"
	"github.com/guidanceplane/guidance/internal/config"
	"github.com/guidanceplane/guidance/internal/domain/compiler"
	"github.com/guidanceplane/guidance/internal/domain/gate"
	"github.com/guidanceplane/guidance/internal/domain/ledger"
	"github.com/guidanceplane/guidance/internal/domain/optimizer"
	"github.com/guidanceplane/guidance/internal/domain/retrieval"
	"github.com/guidanceplane/guidance/internal/domain/rule"
)

// Orchestrator owns every collaborator described in spec.md §3's ownership
// summary: the live PolicyBundle, Retriever, Gates config, Ledger, and
// Optimizer. Retriever borrows shard references; RunEvents are appended to
// the Ledger and never mutated after finalization.
type Orchestrator struct {
	cfg    *config.GuidanceConfig
	logger *slog.Logger
	mx     *metrics.Metrics

	gates     *gate.Evaluator
	retriever *retrieval.Retriever
	ledger    *ledger.Ledger
	optimizer *optimizer.Optimizer

	manifestStore *storage.AtomicJSONStore
	trackerStore  *storage.AtomicJSONStore
	eventsStore   *storage.JSONLStore
	adrsStore     *storage.JSONLStore

	bundle rule.PolicyBundle
}

// buildState stages constructor inputs that influence which collaborators
// get built, so options are applied before the retriever/optimizer/ledger
// are wired together rather than swapped out after the fact.
type buildState struct {
	logger            *slog.Logger
	metrics           *metrics.Metrics
	embeddingProvider retrieval.EmbeddingProvider
	abExecutor        optimizer.ABExecutor
}

// Option configures an Orchestrator at construction.
type Option func(*buildState)

// WithLogger overrides the default slog.Default() logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *buildState) { s.logger = logger }
}

// WithMetrics wires a *metrics.Metrics instance; nil disables instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *buildState) { s.metrics = m }
}

// WithEmbeddingProvider overrides the retriever's default hash-based embedding provider.
func WithEmbeddingProvider(p retrieval.EmbeddingProvider) Option {
	return func(s *buildState) { s.embeddingProvider = p }
}

// WithABExecutor wires a real A/B compliance-suite runner; nil keeps the
// conservative fallback estimates.
func WithABExecutor(executor optimizer.ABExecutor) Option {
	return func(s *buildState) { s.abExecutor = executor }
}

// New constructs an Orchestrator from cfg: the shard pool starts empty until
// CompileAndLoad is called, and persisted state is opened under
// cfg.Storage.Dir.
func New(cfg *config.GuidanceConfig, opts ...Option) (*Orchestrator, error) {
	state := &buildState{logger: slog.Default()}
	for _, opt := range opts {
		opt(state)
	}

	dir := cfg.Storage.Dir
	eventsStore, err := storage.NewJSONLStore(dir+"/events.log", state.logger)
	if err != nil {
		return nil, apperr.NewCapabilityError("ledger-storage", err)
	}
	adrsStore, err := storage.NewJSONLStore(dir+"/adrs.log", state.logger)
	if err != nil {
		return nil, apperr.NewCapabilityError("optimizer-storage", err)
	}

	gatesEvaluator, warnings := gate.NewEvaluator(gatesConfigFrom(cfg))
	for _, w := range warnings {
		state.logger.Warn("gate pattern compile warning", "detail", w)
	}

	l := ledger.New(time.Now)
	l.RegisterEvaluator(ledger.TestsPassEvaluator{})
	l.RegisterEvaluator(ledger.DiffQualityEvaluator{MaxReworkRatio: cfg.Optimizer.MaxReworkRatio})
	l.RegisterEvaluator(ledger.ForbiddenCommandScanEvaluator{Forbidden: cfg.Ledger.ForbiddenCommandTokens})
	l.RegisterEvaluator(ledger.ForbiddenDependencyScanEvaluator{Forbidden: cfg.Ledger.ForbiddenDependencyTokens})
	l.RegisterEvaluator(ledger.ViolationRateEvaluator{Threshold: cfg.Ledger.ViolationRateThreshold, Window: cfg.Ledger.ViolationRateWindow})

	provider := state.embeddingProvider
	if provider == nil {
		provider = retrieval.NewHashEmbeddingProvider(cfg.Retrieval.EmbeddingDim)
	}
	r := retrieval.New(provider, retrieval.Config{IntentBoost: cfg.Retrieval.IntentBoost})
	opt := optimizer.New(l, r, state.abExecutor, optimizerOptions(cfg), cfg.MaxConstitutionLines)

	o := &Orchestrator{
		cfg:           cfg,
		logger:        state.logger,
		mx:            state.metrics,
		gates:         gatesEvaluator,
		retriever:     r,
		ledger:        l,
		optimizer:     opt,
		manifestStore: storage.NewAtomicJSONStore(dir+"/manifest.json", state.logger),
		trackerStore:  storage.NewAtomicJSONStore(dir+"/tracker.json", state.logger),
		eventsStore:   eventsStore,
		adrsStore:     adrsStore,
	}
	return o, nil
}

func gatesConfigFrom(cfg *config.GuidanceConfig) gate.Config {
	var destructive []gate.NamedPattern
	for _, p := range cfg.Gates.DestructivePatterns {
		destructive = append(destructive, gate.NamedPattern{Name: p.Name, Pattern: p.Pattern})
	}
	var secrets []gate.NamedPattern
	for _, p := range cfg.Gates.SecretPatterns {
		secrets = append(secrets, gate.NamedPattern{Name: p.Name, Pattern: p.Pattern})
	}
	return gate.Config{
		DestructivePatterns: destructive,
		SecretPatterns:      secrets,
		AllowedTools:        cfg.Gates.AllowedTools,
		DiffSizeThreshold:   cfg.Gates.DiffSizeThreshold,
	}
}

func optimizerOptions(cfg *config.GuidanceConfig) optimizer.Options {
	return optimizer.Options{
		TopViolationsPerCycle:    cfg.Optimizer.TopViolationsPerCycle,
		PromotionWins:            cfg.Optimizer.PromotionWins,
		ImprovementThreshold:     cfg.Optimizer.ImprovementThreshold,
		MaxRiskIncrease:          cfg.Optimizer.MaxRiskIncrease,
		MinEventsForOptimization: cfg.Optimizer.MinEventsForOptimization,
		ABTimeout:                time.Duration(cfg.Optimizer.ABTimeoutSeconds) * time.Second,
		Now:                      time.Now,
	}
}

// CompileAndLoad compiles primaryDoc/localOverlay into a PolicyBundle,
// persists its manifest, and hands the bundle's shards to the retriever.
func (o *Orchestrator) CompileAndLoad(primaryDoc, localOverlay string) (compiler.Result, error) {
	result, err := compiler.Compile(primaryDoc, localOverlay, compiler.Options{MaxConstitutionLines: o.cfg.MaxConstitutionLines})
	if err != nil {
		return result, err
	}
	o.bundle = result.Bundle
	warnings := o.retriever.Index(result.Bundle)
	for _, w := range warnings {
		o.logger.Warn("index warning", "ruleId", w.RuleID, "detail", w.Detail)
	}
	if err := o.manifestStore.Save(result.Bundle.Manifest); err != nil {
		o.logger.Warn("failed to persist manifest", "error", err)
	}
	return result, nil
}

// Retrieve delegates to the retriever.
func (o *Orchestrator) Retrieve(req retrieval.Request) (retrieval.Result, error) {
	start := time.Now()
	result, err := o.retriever.Retrieve(req)
	o.mx.ObserveRetrievalDuration(time.Since(start).Seconds())
	return result, err
}

// EvaluateCommand delegates to the gates evaluator and records metrics.
func (o *Orchestrator) EvaluateCommand(command string) gate.GateResult {
	return o.aggregateAndRecord(o.gates.EvaluateCommand(command))
}

// EvaluateToolUse delegates to the gates evaluator and records metrics.
func (o *Orchestrator) EvaluateToolUse(toolName, paramsSerialized string) gate.GateResult {
	return o.aggregateAndRecord(o.gates.EvaluateToolUse(toolName, paramsSerialized))
}

// EvaluateEdit delegates to the gates evaluator and records metrics.
func (o *Orchestrator) EvaluateEdit(path, content string, diffLines int) gate.GateResult {
	return o.aggregateAndRecord(o.gates.EvaluateEdit(path, content, diffLines))
}

func (o *Orchestrator) aggregateAndRecord(results []gate.GateResult) gate.GateResult {
	for _, r := range results {
		o.mx.RecordGateDecision(r.GateName, r.Decision.String())
	}
	return gate.Aggregate(results)
}

// StartRun creates a new ledger event.
func (o *Orchestrator) StartRun(id, taskIntent, promptDigest, guidanceHash string, retrievedRuleIDs []string) ledger.RunEvent {
	return o.ledger.CreateEvent(id, taskIntent, promptDigest, guidanceHash, retrievedRuleIDs)
}

// RecordViolation appends a violation to an in-flight run.
func (o *Orchestrator) RecordViolation(eventID string, v ledger.Violation) error {
	return o.ledger.RecordViolation(eventID, v)
}

// AccumulateDiff records diff stats against an in-flight run.
func (o *Orchestrator) AccumulateDiff(eventID string, added, removed, files, reworkLines int) error {
	return o.ledger.AccumulateDiff(eventID, added, removed, files, reworkLines)
}

// RecordCommand appends a command an agent ran under this event, feeding
// the forbidden-command-scan evaluator at finalization.
func (o *Orchestrator) RecordCommand(eventID, command string) error {
	return o.ledger.RecordCommand(eventID, command)
}

// RecordFilesModified appends a file path an agent modified under this
// event, feeding the forbidden-dependency-scan evaluator at finalization.
func (o *Orchestrator) RecordFilesModified(eventID, path string) error {
	return o.ledger.RecordFilesModified(eventID, path)
}

// RecordToolUse appends a tool name an agent invoked under this event.
func (o *Orchestrator) RecordToolUse(eventID, toolName string) error {
	return o.ledger.RecordToolUse(eventID, toolName)
}

// FinalizeRun finalizes the run, persists it, and runs registered evaluators.
func (o *Orchestrator) FinalizeRun(eventID string, outcome ledger.Outcome) ([]ledger.EvaluatorResult, error) {
	results, err := o.ledger.FinalizeEvent(eventID, outcome)
	if err != nil {
		return nil, err
	}
	events := o.ledger.Events()
	if len(events) > 0 {
		if werr := o.eventsStore.Append(events[len(events)-1]); werr != nil {
			o.logger.Warn("failed to persist run event", "eventId", eventID, "error", werr)
		}
	}
	metricsSnapshot := o.ledger.ComputeMetrics(0)
	o.mx.SetViolationRate(metricsSnapshot.ViolationRatePer10Tasks)
	return results, nil
}

// Optimize runs one optimizer cycle and persists every produced ADR.
func (o *Orchestrator) Optimize() ([]optimizer.RuleADR, error) {
	adrs, err := o.optimizer.RunCycle()
	if err != nil {
		return nil, err
	}
	for _, adr := range adrs {
		if werr := o.adrsStore.Append(adr); werr != nil {
			o.logger.Warn("failed to persist ADR", "number", adr.Number, "error", werr)
		}
		o.mx.RecordOptimizerCycle(adr.Decision)
		if adr.Change.TargetRuleID != "" {
			o.mx.SetPromotionWins(float64(o.optimizer.WinCount(adr.Change.TargetRuleID)))
		}
	}
	if err := o.trackerStore.Save(trackerSnapshot(o.optimizer)); err != nil {
		o.logger.Warn("failed to persist promotion tracker", "error", err)
	}
	return adrs, nil
}

func trackerSnapshot(o *optimizer.Optimizer) map[string]int {
	snapshot := make(map[string]int)
	for _, adr := range o.ADRs() {
		snapshot[adr.Change.TargetRuleID] = o.WinCount(adr.Change.TargetRuleID)
	}
	return snapshot
}

// Constitution returns the currently indexed constitution.
func (o *Orchestrator) Constitution() rule.Constitution {
	return o.retriever.Constitution()
}

// Close releases persisted-state file handles.
func (o *Orchestrator) Close() error {
	if err := o.eventsStore.Close(); err != nil {
		return err
	}
	return o.adrsStore.Close()
}
