// Package config handles Finsight configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/finsight/config.yaml, /etc/finsight/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "finsight", "config.yaml"))
	}

	paths = append(paths, "/etc/finsight/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Finsight configuration.
type Config struct {
	Listen     ListenConfig            `yaml:"listen"`
	Anthropic  AnthropicConfig         `yaml:"anthropic"`
	Tiers      TiersConfig             `yaml:"tiers"`
	Engine     EngineConfig            `yaml:"engine"`
	Summarizer SummarizerConfig        `yaml:"summarizer"`
	MarketData MarketDataConfig        `yaml:"market_data"`
	Pricing    map[string]PricingEntry `yaml:"pricing"`
	DataDir    string                  `yaml:"data_dir"`
	LogLevel   string                  `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
}

// TierModel binds one reasoning tier to a concrete model.
type TierModel struct {
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// TiersConfig maps the three reasoning tiers to models.
type TiersConfig struct {
	Routine  TierModel `yaml:"routine"`
	Standard TierModel `yaml:"standard"`
	Deep     TierModel `yaml:"deep"`
}

// EngineConfig holds orchestration loop policy knobs. These are
// deployment policy, not contracts; defaults mirror production usage.
type EngineConfig struct {
	// MaxToolRounds bounds model-call/tool-call cycles per turn.
	MaxToolRounds int `yaml:"max_tool_rounds"`
	// ToolResultMaxChars caps a single tool result before it is placed
	// back into the conversation.
	ToolResultMaxChars int `yaml:"tool_result_max_chars"`
	// ModelTimeoutSec is the per-model-call timeout in seconds.
	ModelTimeoutSec int `yaml:"model_timeout_sec"`
	// ToolTimeoutSec is the per-tool-invocation timeout in seconds.
	ToolTimeoutSec int `yaml:"tool_timeout_sec"`
	// DeepDailyBudget is the maximum deep-tier reservations per calendar day.
	DeepDailyBudget int `yaml:"deep_daily_budget"`
}

// SummarizerConfig controls background conversation compaction.
type SummarizerConfig struct {
	// TriggerMessages is the history length beyond which compaction fires.
	TriggerMessages int `yaml:"trigger_messages"`
	// KeepRecent is the number of trailing messages never compacted away.
	KeepRecent int `yaml:"keep_recent"`
}

// MarketDataConfig defines the market data provider connection.
type MarketDataConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// PricingEntry holds per-million-token pricing for one model.
type PricingEntry struct {
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen:  ListenConfig{Port: 8080},
		DataDir: "data",
		Tiers: TiersConfig{
			Routine:  TierModel{Model: "claude-haiku-4-5", MaxTokens: 4096},
			Standard: TierModel{Model: "claude-sonnet-4-5", MaxTokens: 8192},
			Deep:     TierModel{Model: "claude-opus-4-1", MaxTokens: 8192},
		},
		Engine: EngineConfig{
			MaxToolRounds:      6,
			ToolResultMaxChars: 12000,
			ModelTimeoutSec:    120,
			ToolTimeoutSec:     30,
			DeepDailyBudget:    10,
		},
		Summarizer: SummarizerConfig{
			TriggerMessages: 20,
			KeepRecent:      10,
		},
		Pricing: map[string]PricingEntry{
			"claude-haiku-4-5":  {InputPerMillion: 1.0, OutputPerMillion: 5.0},
			"claude-sonnet-4-5": {InputPerMillion: 3.0, OutputPerMillion: 15.0},
			"claude-opus-4-1":   {InputPerMillion: 15.0, OutputPerMillion: 75.0},
		},
	}
}
