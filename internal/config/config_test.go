package config

import "testing"

func TestSetDefaults_FillsSpecDefaults(t *testing.T) {
	c := &GuidanceConfig{RulesPath: "rules.md"}
	c.SetDefaults()

	if c.MaxConstitutionLines != 60 {
		t.Errorf("expected maxConstitutionLines 60, got %d", c.MaxConstitutionLines)
	}
	if c.Retrieval.TopK != 5 {
		t.Errorf("expected topK 5, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.IntentBoost != 0.15 {
		t.Errorf("expected intentBoost 0.15, got %v", c.Retrieval.IntentBoost)
	}
	if c.Gates.DiffSizeThreshold != 300 {
		t.Errorf("expected diffSizeThreshold 300, got %d", c.Gates.DiffSizeThreshold)
	}
	if c.Optimizer.PromotionWins != 2 {
		t.Errorf("expected promotionWins 2, got %d", c.Optimizer.PromotionWins)
	}
	if c.Optimizer.MaxReworkRatio != 0.30 {
		t.Errorf("expected maxReworkRatio 0.30, got %v", c.Optimizer.MaxReworkRatio)
	}
	if c.Ledger.ViolationRateThreshold != 5 {
		t.Errorf("expected violationRateThreshold 5, got %v", c.Ledger.ViolationRateThreshold)
	}
	if c.Ledger.ViolationRateWindow != 20 {
		t.Errorf("expected violationRateWindow 20, got %d", c.Ledger.ViolationRateWindow)
	}
}

func TestValidate_MissingRulesPathFails(t *testing.T) {
	c := &GuidanceConfig{}
	c.SetDefaults()
	if err := c.Validate(); err == nil {
		t.Fatal("expected validation error for missing rules_path")
	}
}

func TestValidate_InvalidRegexPatternFails(t *testing.T) {
	c := &GuidanceConfig{RulesPath: "rules.md"}
	c.SetDefaults()
	c.Gates.SecretPatterns = []NamedPatternConfig{{Name: "bad", Pattern: "("}}
	if err := c.Validate(); err == nil {
		t.Fatal("expected validation error for invalid regex pattern")
	}
}

func TestValidate_DuplicatePatternNameFails(t *testing.T) {
	c := &GuidanceConfig{RulesPath: "rules.md"}
	c.SetDefaults()
	c.Gates.DestructivePatterns = []NamedPatternConfig{{Name: "dup", Pattern: "a"}}
	c.Gates.SecretPatterns = []NamedPatternConfig{{Name: "dup", Pattern: "b"}}
	if err := c.Validate(); err == nil {
		t.Fatal("expected validation error for duplicate pattern name")
	}
}

func TestValidate_ValidConfigPasses(t *testing.T) {
	c := &GuidanceConfig{RulesPath: "rules.md"}
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected valid config to pass, got %v", err)
	}
}
