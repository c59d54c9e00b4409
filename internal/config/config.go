// Package config provides the configuration schema for the guidance
// control plane, covering every option listed in spec.md §6: compiler
// rendering, retrieval scoring, gate patterns, optimizer tunables, and
// persisted-state paths.
package config

// GuidanceConfig is the top-level configuration for the control plane.
type GuidanceConfig struct {
	// RulesPath is the primary rules document path.
	RulesPath string `yaml:"rules_path" mapstructure:"rules_path" validate:"required"`
	// LocalOverlayPath is the optional local overlay rules document path.
	LocalOverlayPath string `yaml:"local_overlay_path" mapstructure:"local_overlay_path"`
	// MaxConstitutionLines caps constitution rendering (default 60).
	MaxConstitutionLines int `yaml:"max_constitution_lines" mapstructure:"max_constitution_lines" validate:"omitempty,min=1"`

	Retrieval RetrievalConfig `yaml:"retrieval" mapstructure:"retrieval"`
	Gates     GatesConfig     `yaml:"gates" mapstructure:"gates"`
	Optimizer OptimizerConfig `yaml:"optimizer" mapstructure:"optimizer"`
	Ledger    LedgerConfig    `yaml:"ledger" mapstructure:"ledger"`
	Storage   StorageConfig   `yaml:"storage" mapstructure:"storage"`

	// LogLevel sets the minimum slog level ("debug", "info", "warn", "error").
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	// MetricsEnabled controls whether Prometheus instruments are registered.
	MetricsEnabled bool `yaml:"metrics_enabled" mapstructure:"metrics_enabled"`
}

// RetrievalConfig configures the retriever's scoring and selection tunables.
type RetrievalConfig struct {
	// TopK is the default retrieval count (default 5).
	TopK int `yaml:"top_k" mapstructure:"top_k" validate:"omitempty,min=1"`
	// IntentBoost is the additive score when a shard's intent tags match the detected intent (default 0.15).
	IntentBoost float64 `yaml:"intent_boost" mapstructure:"intent_boost" validate:"omitempty,gte=0"`
	// EmbeddingDim is the fixed embedding dimension every provider must honor (default 64).
	EmbeddingDim int `yaml:"embedding_dim" mapstructure:"embedding_dim" validate:"omitempty,min=1"`
}

// GatesConfig configures the four pure gate checks.
type GatesConfig struct {
	// DiffSizeThreshold is the line-count threshold above which the diff-size gate warns (default 300).
	DiffSizeThreshold int `yaml:"diff_size_threshold" mapstructure:"diff_size_threshold" validate:"omitempty,min=0"`
	// AllowedTools enables the tool-allowlist gate when non-empty; supports "*" suffix globs and a universal "*" entry.
	AllowedTools []string `yaml:"allowed_tools" mapstructure:"allowed_tools"`
	// DestructivePatterns overrides/extends the built-in destructive-command patterns.
	DestructivePatterns []NamedPatternConfig `yaml:"destructive_patterns" mapstructure:"destructive_patterns" validate:"omitempty,dive"`
	// SecretPatterns overrides/extends the built-in secret-detection patterns.
	SecretPatterns []NamedPatternConfig `yaml:"secret_patterns" mapstructure:"secret_patterns" validate:"omitempty,dive"`
}

// NamedPatternConfig is a user-configurable named regex pattern.
type NamedPatternConfig struct {
	Name    string `yaml:"name" mapstructure:"name" validate:"required"`
	Pattern string `yaml:"pattern" mapstructure:"pattern" validate:"required,regex"`
}

// OptimizerConfig configures the violation-ranking and A/B promotion cycle.
type OptimizerConfig struct {
	// PromotionWins is the number of consecutive A/B wins required to promote a rule (default 2).
	PromotionWins int `yaml:"promotion_wins" mapstructure:"promotion_wins" validate:"omitempty,min=1"`
	// TopViolationsPerCycle is the optimizer's per-cycle breadth (default 3).
	TopViolationsPerCycle int `yaml:"top_violations_per_cycle" mapstructure:"top_violations_per_cycle" validate:"omitempty,min=1"`
	// ImprovementThreshold is the minimum required rework-lines reduction (default 0.10).
	ImprovementThreshold float64 `yaml:"improvement_threshold" mapstructure:"improvement_threshold" validate:"omitempty,gte=0"`
	// MaxRiskIncrease is the maximum allowed risk delta (default 0.05).
	MaxRiskIncrease float64 `yaml:"max_risk_increase" mapstructure:"max_risk_increase" validate:"omitempty,gte=0"`
	// MinEventsForOptimization is the cycle-skip floor (default 10).
	MinEventsForOptimization int `yaml:"min_events_for_optimization" mapstructure:"min_events_for_optimization" validate:"omitempty,min=0"`
	// MaxReworkRatio is the diff-quality evaluator's threshold (default 0.30).
	MaxReworkRatio float64 `yaml:"max_rework_ratio" mapstructure:"max_rework_ratio" validate:"omitempty,gte=0"`
	// ABTimeoutSeconds bounds each A/B executor invocation.
	ABTimeoutSeconds int `yaml:"ab_timeout_seconds" mapstructure:"ab_timeout_seconds" validate:"omitempty,min=1"`
}

// LedgerConfig configures the built-in finalization evaluators (spec.md §4.4).
type LedgerConfig struct {
	// ForbiddenCommandTokens fails forbidden-command-scan when a recorded
	// command contains any of these substrings.
	ForbiddenCommandTokens []string `yaml:"forbidden_command_tokens" mapstructure:"forbidden_command_tokens"`
	// ForbiddenDependencyTokens fails forbidden-dependency-scan when a
	// recorded modified file path contains any of these substrings.
	ForbiddenDependencyTokens []string `yaml:"forbidden_dependency_tokens" mapstructure:"forbidden_dependency_tokens"`
	// ViolationRateThreshold is the violation-rate evaluator's per-10-tasks threshold (default 5).
	ViolationRateThreshold float64 `yaml:"violation_rate_threshold" mapstructure:"violation_rate_threshold" validate:"omitempty,gte=0"`
	// ViolationRateWindow bounds the violation-rate evaluator's rolling window (0 = unbounded, default 20).
	ViolationRateWindow int `yaml:"violation_rate_window" mapstructure:"violation_rate_window" validate:"omitempty,min=0"`
}

// StorageConfig configures the persisted-state file layout (spec.md §6).
type StorageConfig struct {
	// Dir is the directory holding events.log, adrs.log, manifest.json, tracker.json.
	Dir string `yaml:"dir" mapstructure:"dir" validate:"required"`
}

// SetDefaults fills every unset option with its spec.md §6 default.
func (c *GuidanceConfig) SetDefaults() {
	if c.MaxConstitutionLines <= 0 {
		c.MaxConstitutionLines = 60
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 5
	}
	if c.Retrieval.IntentBoost <= 0 {
		c.Retrieval.IntentBoost = 0.15
	}
	if c.Retrieval.EmbeddingDim <= 0 {
		c.Retrieval.EmbeddingDim = 64
	}
	if c.Gates.DiffSizeThreshold <= 0 {
		c.Gates.DiffSizeThreshold = 300
	}
	if c.Optimizer.PromotionWins <= 0 {
		c.Optimizer.PromotionWins = 2
	}
	if c.Optimizer.TopViolationsPerCycle <= 0 {
		c.Optimizer.TopViolationsPerCycle = 3
	}
	if c.Optimizer.ImprovementThreshold <= 0 {
		c.Optimizer.ImprovementThreshold = 0.10
	}
	if c.Optimizer.MaxRiskIncrease <= 0 {
		c.Optimizer.MaxRiskIncrease = 0.05
	}
	if c.Optimizer.MinEventsForOptimization <= 0 {
		c.Optimizer.MinEventsForOptimization = 10
	}
	if c.Optimizer.MaxReworkRatio <= 0 {
		c.Optimizer.MaxReworkRatio = 0.30
	}
	if c.Optimizer.ABTimeoutSeconds <= 0 {
		c.Optimizer.ABTimeoutSeconds = 30
	}
	if c.Ledger.ViolationRateThreshold <= 0 {
		c.Ledger.ViolationRateThreshold = 5
	}
	if c.Ledger.ViolationRateWindow <= 0 {
		c.Ledger.ViolationRateWindow = 20
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = "."
	}
}
