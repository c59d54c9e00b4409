package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "GUIDANCE"

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches standard locations for
// guidance.yaml/.yml. An explicit extension is required so Viper's
// SetConfigName search never matches the "guidance" binary itself.
func InitViper(v *viper.Viper, configFile string) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		v.SetConfigFile(found)
	} else {
		v.SetConfigName("guidance")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	bindNestedEnvKeys(v)
}

func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{".", filepath.Join(home, ".guidance"), "/etc/guidance"}
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "guidance"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds every scalar config key so GUIDANCE_RETRIEVAL_TOP_K
// style environment variables override nested values.
func bindNestedEnvKeys(v *viper.Viper) {
	keys := []string{
		"rules_path",
		"local_overlay_path",
		"max_constitution_lines",
		"retrieval.top_k",
		"retrieval.intent_boost",
		"retrieval.embedding_dim",
		"gates.diff_size_threshold",
		"optimizer.promotion_wins",
		"optimizer.top_violations_per_cycle",
		"optimizer.improvement_threshold",
		"optimizer.max_risk_increase",
		"optimizer.min_events_for_optimization",
		"optimizer.max_rework_ratio",
		"optimizer.ab_timeout_seconds",
		"ledger.forbidden_command_tokens",
		"ledger.forbidden_dependency_tokens",
		"ledger.violation_rate_threshold",
		"ledger.violation_rate_window",
		"storage.dir",
		"log_level",
		"metrics_enabled",
	}
	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

// Load reads the configuration file (if any), applies environment
// overrides, fills defaults, and validates the result.
func Load(v *viper.Viper) (*GuidanceConfig, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg GuidanceConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigFileUsed returns the path of the configuration file Load read from,
// or empty string if none was found.
func ConfigFileUsed(v *viper.Viper) string {
	return v.ConfigFileUsed()
}
