package cmd

import (
	"fmt"
	"os"

	"github.com/guidanceplane/guidance/internal/config"
	"github.com/guidanceplane/guidance/internal/service"
)

// buildOrchestrator loads config, constructs an Orchestrator, and compiles
// cfg.RulesPath (plus cfg.LocalOverlayPath, if set) into it. The caller owns
// the returned Orchestrator and must Close it.
func buildOrchestrator() (*service.Orchestrator, *config.GuidanceConfig, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	orch, err := service.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("construct orchestrator: %w", err)
	}

	primaryDoc, err := os.ReadFile(cfg.RulesPath)
	if err != nil {
		orch.Close()
		return nil, nil, fmt.Errorf("read rules document %s: %w", cfg.RulesPath, err)
	}

	var overlayDoc []byte
	if cfg.LocalOverlayPath != "" {
		overlayDoc, err = os.ReadFile(cfg.LocalOverlayPath)
		if err != nil && !os.IsNotExist(err) {
			orch.Close()
			return nil, nil, fmt.Errorf("read local overlay %s: %w", cfg.LocalOverlayPath, err)
		}
	}

	if _, err := orch.CompileAndLoad(string(primaryDoc), string(overlayDoc)); err != nil {
		orch.Close()
		return nil, nil, fmt.Errorf("compile rules: %w", err)
	}

	return orch, cfg, nil
}
