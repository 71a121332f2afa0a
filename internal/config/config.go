package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Matching   MatchingConfig   `mapstructure:"matching"`
	Dedup      DedupConfig      `mapstructure:"dedup"`
	Rules      RulesConfig      `mapstructure:"rules"`
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

// ClassifierConfig holds external classifier settings.
type ClassifierConfig struct {
	Provider  string `mapstructure:"provider"`
	APIKeyEnv string `mapstructure:"api_key_env"`
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	ChunkSize int    `mapstructure:"chunk_size"`
}

// MatchingConfig holds pair-matching tuning. The thresholds and bonuses
// are empirical; only their relative ordering is load-bearing.
type MatchingConfig struct {
	MaxDaysDifference   int     `mapstructure:"max_days_difference"`
	TolerancePercentage float64 `mapstructure:"tolerance_percentage"`
	AutoApplyThreshold  float64 `mapstructure:"auto_apply_threshold"`
}

// DedupConfig holds duplicate-detection tuning.
type DedupConfig struct {
	Threshold     float64 `mapstructure:"threshold"`
	MaxDaysWindow int     `mapstructure:"max_days_window"`
}

// RulesConfig holds rule-generation tuning.
type RulesConfig struct {
	PromotionThreshold float64 `mapstructure:"promotion_threshold"`
}

// Load reads configuration from file and env. Env var overrides use
// prefix LEDGERLINK_.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("database.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "ledgerlink", "ledgerlink.db"))
	v.SetDefault("database.migrations_path", "internal/database/migrations")
	v.SetDefault("classifier.provider", "openai")
	v.SetDefault("classifier.api_key_env", "OPENAI_API_KEY")
	v.SetDefault("classifier.api_key", "")
	v.SetDefault("classifier.model", "gpt-4o-mini")
	v.SetDefault("classifier.chunk_size", 20)
	v.SetDefault("matching.max_days_difference", 3)
	v.SetDefault("matching.tolerance_percentage", 0.01)
	v.SetDefault("matching.auto_apply_threshold", 0.7)
	v.SetDefault("dedup.threshold", 0.8)
	v.SetDefault("dedup.max_days_window", 7)
	v.SetDefault("rules.promotion_threshold", 0.8)

	v.SetConfigType("toml")

	cfgPath := os.Getenv("LEDGERLINK_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "ledgerlink"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("LEDGERLINK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

// ResolveAPIKey prefers the environment variable named in the config,
// falling back to the literal key in the config file.
func (c Config) ResolveAPIKey() string {
	env := strings.TrimSpace(c.Classifier.APIKeyEnv)
	if env == "" {
		env = "OPENAI_API_KEY"
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return strings.TrimSpace(c.Classifier.APIKey)
}
