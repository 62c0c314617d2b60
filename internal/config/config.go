package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	DefaultModel         = "claude-sonnet-4-5-20250929"
	DefaultMaxTokens     = 8192
	DefaultMaxIterations = 20
	DefaultTimeout       = 30
	DefaultMaxRetries    = 3
	DefaultLogLevel      = "info"
)

type Config struct {
	Jira       AtlassianConfig `json:"jira"`
	Confluence AtlassianConfig `json:"confluence"`
	Provider   ProviderConfig  `json:"provider"`
	Agent      AgentConfig     `json:"agent"`
	Log        LogConfig       `json:"log"`
	Schedule   ScheduleConfig  `json:"schedule"`
}

// AtlassianConfig holds the credentials and transport settings for one
// Atlassian Cloud product.
type AtlassianConfig struct {
	URL        string `json:"url"`
	Username   string `json:"username"`
	APIToken   string `json:"apiToken"`
	Timeout    int    `json:"timeout"`    // seconds
	MaxRetries int    `json:"maxRetries"` // retries after the first attempt
}

type ProviderConfig struct {
	Type    string `json:"type,omitempty"` // "anthropic" (default) or "openai"
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl,omitempty"`
}

type AgentConfig struct {
	Workspace     string `json:"workspace"`
	Model         string `json:"model"`
	MaxTokens     int    `json:"maxTokens"`
	MaxIterations int    `json:"maxIterations"`
}

type LogConfig struct {
	Level string `json:"level"`
}

type ScheduleConfig struct {
	StorePath string `json:"storePath"`
}

func DefaultConfig() *Config {
	return &Config{
		Jira:       AtlassianConfig{Timeout: DefaultTimeout, MaxRetries: DefaultMaxRetries},
		Confluence: AtlassianConfig{Timeout: DefaultTimeout, MaxRetries: DefaultMaxRetries},
		Agent: AgentConfig{
			Workspace:     filepath.Join(ConfigDir(), "workspace"),
			Model:         DefaultModel,
			MaxTokens:     DefaultMaxTokens,
			MaxIterations: DefaultMaxIterations,
		},
		Log: LogConfig{Level: DefaultLogLevel},
		Schedule: ScheduleConfig{
			StorePath: filepath.Join(ConfigDir(), "data", "schedule", "jobs.json"),
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".atlastools")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyAtlassianEnv(&cfg.Jira, "JIRA")
	applyAtlassianEnv(&cfg.Confluence, "CONFLUENCE")

	// Provider overrides, most specific first.
	if key := os.Getenv("ATLASTOOLS_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
		if cfg.Provider.Type == "" {
			cfg.Provider.Type = "openai"
		}
	}
	if url := os.Getenv("ATLASTOOLS_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if url := os.Getenv("ANTHROPIC_BASE_URL"); url != "" && cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = url
	}
	if model := os.Getenv("ATLASTOOLS_MODEL"); model != "" {
		cfg.Agent.Model = model
	}
	if level := os.Getenv("ATLASTOOLS_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}

	defaults := DefaultConfig()
	if cfg.Agent.Workspace == "" {
		cfg.Agent.Workspace = defaults.Agent.Workspace
	}
	if cfg.Agent.MaxIterations <= 0 {
		cfg.Agent.MaxIterations = DefaultMaxIterations
	}
	if cfg.Schedule.StorePath == "" {
		cfg.Schedule.StorePath = defaults.Schedule.StorePath
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}

	return cfg, nil
}

func applyAtlassianEnv(c *AtlassianConfig, prefix string) {
	if v := os.Getenv(prefix + "_URL"); v != "" {
		c.URL = v
	}
	if v := os.Getenv(prefix + "_USERNAME"); v != "" {
		c.Username = v
	}
	if v := os.Getenv(prefix + "_API_TOKEN"); v != "" {
		c.APIToken = v
	}
	if v := os.Getenv(prefix + "_TIMEOUT"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			c.Timeout = parsed
		}
	}
	if v := os.Getenv(prefix + "_MAX_RETRIES"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			c.MaxRetries = parsed
		}
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = DefaultMaxRetries
	}
}

// Validate reports the first missing credential, naming the environment
// variable that supplies it.
func (c AtlassianConfig) Validate(prefix string) error {
	prefix = strings.ToUpper(prefix)
	switch {
	case strings.TrimSpace(c.URL) == "":
		return fmt.Errorf("%s_URL environment variable is required", prefix)
	case strings.TrimSpace(c.Username) == "":
		return fmt.Errorf("%s_USERNAME environment variable is required", prefix)
	case strings.TrimSpace(c.APIToken) == "":
		return fmt.Errorf("%s_API_TOKEN environment variable is required", prefix)
	}
	return nil
}

// Configured reports whether all credentials are present.
func (c AtlassianConfig) Configured() bool {
	return c.Validate("x") == nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	// The file carries API tokens.
	return os.WriteFile(ConfigPath(), data, 0600)
}
