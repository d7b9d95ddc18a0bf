// Package config loads the impetus configuration from ~/.impetus/config.yaml,
// merges IMPETUS_* environment overrides, and writes a default file on first
// run.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/normanking/impetus/internal/engine"
	"github.com/normanking/impetus/internal/inference"
	"github.com/normanking/impetus/internal/routing"
)

// Config holds all application configuration.
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine" yaml:"engine"`
	Routing RoutingConfig `mapstructure:"routing" yaml:"routing"`
	LLM     LLMConfig     `mapstructure:"llm" yaml:"llm"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// EngineConfig contains the decision cycle timings.
type EngineConfig struct {
	// IntervalMinutes is the base cycle interval before jitter
	IntervalMinutes int `mapstructure:"interval_minutes" yaml:"interval_minutes"`
	// JitterFraction widens the interval by ± this fraction
	JitterFraction float64 `mapstructure:"jitter_fraction" yaml:"jitter_fraction"`
	// ThresholdPollSeconds is the doom-scroll poll cadence
	ThresholdPollSeconds int `mapstructure:"threshold_poll_seconds" yaml:"threshold_poll_seconds"`
	// NudgeCooldownMinutes is the default cooldown after a nudge
	NudgeCooldownMinutes int `mapstructure:"nudge_cooldown_minutes" yaml:"nudge_cooldown_minutes"`
	// Temperature is the model sampling temperature per cycle
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
	// MaxTokens bounds the model response per cycle
	MaxTokens int `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// RoutingConfig contains the path selection thresholds.
type RoutingConfig struct {
	// LowBattery is the battery fraction below which routing always goes local
	LowBattery float64 `mapstructure:"low_battery" yaml:"low_battery"`
	// LowComplexity routes local below this score when the local path is healthy
	LowComplexity float64 `mapstructure:"low_complexity" yaml:"low_complexity"`
	// HighComplexity routes cloud above this score
	HighComplexity float64 `mapstructure:"high_complexity" yaml:"high_complexity"`
	// LocalRatio lets local win the latency comparison below this fraction of cloud
	LocalRatio float64 `mapstructure:"local_ratio" yaml:"local_ratio"`
}

// LLMConfig contains the inference backend settings.
type LLMConfig struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic" yaml:"anthropic"`
	Ollama    OllamaConfig    `mapstructure:"ollama" yaml:"ollama"`
	Hybrid    HybridConfig    `mapstructure:"hybrid" yaml:"hybrid"`
}

// AnthropicConfig configures the cloud backend.
type AnthropicConfig struct {
	// APIKey authenticates against the Anthropic API; empty disables the backend
	APIKey string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Model  string `mapstructure:"model" yaml:"model"`
}

// OllamaConfig configures the pure local backend.
type OllamaConfig struct {
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	Model    string `mapstructure:"model" yaml:"model"`
}

// HybridConfig configures the authenticated remote ollama relay.
type HybridConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	APIKey   string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Model    string `mapstructure:"model" yaml:"model,omitempty"`
}

// StoreConfig contains persistence settings.
type StoreConfig struct {
	// Path is the data directory holding the SQLite database
	Path string `mapstructure:"path" yaml:"path"`
	// AuditCap bounds the retained cycle result rows; 0 uses the built-in cap
	AuditCap int `mapstructure:"audit_cap" yaml:"audit_cap"`
}

// ServerConfig contains the event feed server settings.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// LoggingConfig contains application logging settings.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error")
	Level string `mapstructure:"level" yaml:"level"`
	// File is the path to the log file
	File string `mapstructure:"file" yaml:"file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".impetus")

	return &Config{
		Engine: EngineConfig{
			IntervalMinutes:      45,
			JitterFraction:       0.2,
			ThresholdPollSeconds: 30,
			NudgeCooldownMinutes: 120,
			Temperature:          0.3,
			MaxTokens:            512,
		},
		Routing: RoutingConfig{
			LowBattery:     0.15,
			LowComplexity:  0.30,
			HighComplexity: 0.70,
			LocalRatio:     0.70,
		},
		LLM: LLMConfig{
			Anthropic: AnthropicConfig{
				APIKey: "",
				Model:  inference.DefaultCloudModel,
			},
			Ollama: OllamaConfig{
				Endpoint: inference.DefaultLocalURL,
				Model:    inference.DefaultLocalModel,
			},
			Hybrid: HybridConfig{
				Enabled: false,
			},
		},
		Store: StoreConfig{
			Path:     dataDir,
			AuditCap: 0,
		},
		Server: ServerConfig{
			Enabled: true,
			Addr:    "127.0.0.1:7890",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(dataDir, "logs", "impetus.log"),
		},
	}
}

// Load reads configuration from the default location (~/.impetus/config.yaml)
// and merges with environment variables. If no config file exists, it creates
// one with default values.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return LoadFromPath(filepath.Join(homeDir, ".impetus", "config.yaml"))
}

// LoadFromPath reads configuration from a specific file path and merges with
// environment variables. If the file doesn't exist, it creates one with
// default values.
func LoadFromPath(path string) (*Config, error) {
	path = expandPath(path)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeConfigFile(path, Default()); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Example: IMPETUS_LLM_ANTHROPIC_API_KEY
	v.SetEnvPrefix("IMPETUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Store.Path = expandPath(cfg.Store.Path)
	cfg.Logging.File = expandPath(cfg.Logging.File)

	return &cfg, nil
}

// Save writes the current configuration to the default config file location.
func (c *Config) Save() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	return c.SaveToPath(filepath.Join(homeDir, ".impetus", "config.yaml"))
}

// SaveToPath writes the current configuration to a specific file path.
func (c *Config) SaveToPath(path string) error {
	path = expandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return writeConfigFile(path, c)
}

// EnsureDirectories creates the data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Store.Path, filepath.Dir(c.Logging.File)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Validate checks the configuration for common errors and inconsistencies.
func (c *Config) Validate() error {
	if c.Engine.IntervalMinutes < 1 {
		return fmt.Errorf("engine.interval_minutes must be at least 1")
	}
	if c.Engine.JitterFraction < 0 || c.Engine.JitterFraction >= 1 {
		return fmt.Errorf("engine.jitter_fraction must be in [0, 1)")
	}
	if c.Engine.NudgeCooldownMinutes < 0 {
		return fmt.Errorf("engine.nudge_cooldown_minutes cannot be negative")
	}

	if c.Routing.LowBattery < 0 || c.Routing.LowBattery > 1 {
		return fmt.Errorf("routing.low_battery must be in [0, 1]")
	}
	if c.Routing.LowComplexity >= c.Routing.HighComplexity {
		return fmt.Errorf("routing.low_complexity must be below routing.high_complexity")
	}

	if c.LLM.Hybrid.Enabled && c.LLM.Hybrid.Endpoint == "" {
		return fmt.Errorf("llm.hybrid.endpoint is required when the hybrid relay is enabled")
	}

	if c.Store.AuditCap < 0 {
		return fmt.Errorf("store.audit_cap cannot be negative")
	}

	if c.Server.Enabled && c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required when the server is enabled")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}

	return nil
}

// ToEngine converts the engine section to the orchestrator's config.
func (c *Config) ToEngine() engine.Config {
	return engine.Config{
		Interval:      time.Duration(c.Engine.IntervalMinutes) * time.Minute,
		Jitter:        c.Engine.JitterFraction,
		ThresholdPoll: time.Duration(c.Engine.ThresholdPollSeconds) * time.Second,
		Temperature:   c.Engine.Temperature,
		MaxTokens:     c.Engine.MaxTokens,
	}
}

// ToRouting converts the routing section to the router's config.
func (c *Config) ToRouting() routing.Config {
	return routing.Config{
		LowBattery:     c.Routing.LowBattery,
		LowComplexity:  c.Routing.LowComplexity,
		HighComplexity: c.Routing.HighComplexity,
		LocalRatio:     c.Routing.LocalRatio,
	}
}

// NudgeCooldown returns the configured nudge cooldown duration.
func (c *Config) NudgeCooldown() time.Duration {
	return time.Duration(c.Engine.NudgeCooldownMinutes) * time.Minute
}

// writeConfigFile writes a Config struct to a YAML file.
// Uses gopkg.in/yaml.v3 directly to ensure proper tag-based serialization.
func writeConfigFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// expandPath expands ~ to the user's home directory in a path string.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
