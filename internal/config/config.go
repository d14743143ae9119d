// Package config provides YAML-based configuration loading for Jerry.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default generation settings. The prompt texts are placeholders; deployments
// override them with the real persona in config.yaml.
const (
	defaultDirectPrompt = "You are Jerry, a friendly renewable energy advisor. " +
		"Answer the user's questions conversationally, using the conversation history for context. " +
		"Ask clarifying questions when the user's situation is unclear."
	defaultBroadcastPrompt = "You are Jerry, a friendly renewable energy advisor. " +
		"You get exactly one message to answer, with no follow-up conversation. " +
		"Give a complete, self-contained answer and do not ask clarifying questions."
)

// Config is the top-level Jerry configuration, loaded from config.yaml.
type Config struct {
	Discord   DiscordConfig   `yaml:"discord"`
	Model     ModelConfig     `yaml:"model"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Database  DatabaseConfig  `yaml:"database"`
	Status    StatusConfig    `yaml:"status"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
}

// DiscordConfig holds the bot token and conversation settings.
type DiscordConfig struct {
	Token         string `yaml:"token"`
	HistoryWindow int    `yaml:"history_window"` // max prior messages per DM turn
}

// ModelConfig holds the Gemini API key and the two mode-specific
// generation configurations.
type ModelConfig struct {
	APIKey     string     `yaml:"api_key"` // falls back to GEMINI_API_KEY
	TimeoutSec int        `yaml:"timeout_sec"`
	Direct     ModeConfig `yaml:"direct"`
	Broadcast  ModeConfig `yaml:"broadcast"`
}

// ModeConfig is one mode's generation configuration bundle.
type ModeConfig struct {
	Model           string  `yaml:"model"`
	Temperature     float32 `yaml:"temperature"`
	MaxOutputTokens int32   `yaml:"max_output_tokens"`
	SafetyThreshold string  `yaml:"safety_threshold"` // "low", "medium", "high"
	SystemPrompt    string  `yaml:"system_prompt"`
}

// KnowledgeConfig points at the optional local context snippet.
type KnowledgeConfig struct {
	Path string `yaml:"path"`
}

// DatabaseConfig selects the conversation store backend.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "sqlite" (default) or "mysql"
	Path     string `yaml:"path"`   // sqlite file path
	Host     string `yaml:"host"`   // mysql only
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// StatusConfig configures the HTTP status server.
type StatusConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// BroadcastConfig configures the scheduled single-shot broadcast post.
type BroadcastConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Cron      string `yaml:"cron"` // 5-field cron expression
	ChannelID string `yaml:"channel_id"`
	Prompt    string `yaml:"prompt"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ResolveAPIKey returns the Gemini API key from the config, falling back to
// the GEMINI_API_KEY environment variable.
func (c *Config) ResolveAPIKey() string {
	if c.Model.APIKey != "" {
		return c.Model.APIKey
	}
	return os.Getenv("GEMINI_API_KEY")
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Discord.HistoryWindow <= 0 {
		c.Discord.HistoryWindow = 20
	}
	if c.Model.TimeoutSec <= 0 {
		c.Model.TimeoutSec = 120
	}
	applyModeDefaults(&c.Model.Direct, 0.7, 1024, "medium", defaultDirectPrompt)
	applyModeDefaults(&c.Model.Broadcast, 0.4, 2048, "low", defaultBroadcastPrompt)
	if c.Knowledge.Path == "" {
		c.Knowledge.Path = "knowledge/context.txt"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "jerry.db"
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.Database == "" {
		c.Database.Database = "jerry"
	}
	if c.Database.User == "" {
		c.Database.User = "root"
	}
	if c.Status.Port <= 0 {
		c.Status.Port = 8080
	}
	if c.Broadcast.Cron == "" {
		c.Broadcast.Cron = "0 9 * * *"
	}
}

func applyModeDefaults(m *ModeConfig, temp float32, maxTokens int32, threshold, prompt string) {
	if m.Model == "" {
		m.Model = "gemini-2.0-flash"
	}
	if m.Temperature == 0 {
		m.Temperature = temp
	}
	if m.MaxOutputTokens <= 0 {
		m.MaxOutputTokens = maxTokens
	}
	if m.SafetyThreshold == "" {
		m.SafetyThreshold = threshold
	}
	if m.SystemPrompt == "" {
		m.SystemPrompt = prompt
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Discord.Token == "" {
		errs = append(errs, "discord.token is required")
	}
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (use sqlite or mysql)", c.Database.Driver))
	}
	for _, m := range []struct {
		name string
		cfg  ModeConfig
	}{{"direct", c.Model.Direct}, {"broadcast", c.Model.Broadcast}} {
		switch m.cfg.SafetyThreshold {
		case "low", "medium", "high":
		default:
			errs = append(errs, fmt.Sprintf("model.%s.safety_threshold %q is not supported (use low, medium, or high)", m.name, m.cfg.SafetyThreshold))
		}
	}
	if c.Broadcast.Enabled && c.Broadcast.ChannelID == "" {
		errs = append(errs, "broadcast.channel_id is required when broadcast is enabled")
	}
	if c.Broadcast.Enabled && c.Broadcast.Prompt == "" {
		errs = append(errs, "broadcast.prompt is required when broadcast is enabled")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
