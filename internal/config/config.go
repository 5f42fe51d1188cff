// ABOUTME: Configuration loading and parsing for parley
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults applied by Load when a field is left empty.
const (
	DefaultPollInterval       = time.Second
	DefaultMaxAttempts        = 10
	DefaultMaxDelegationDepth = 3
	DefaultDatabaseFile       = "parley.db"
	DefaultModerationModel    = "omni-moderation-latest"
)

// Config represents the complete parley configuration
type Config struct {
	OpenAI   OpenAIConfig   `yaml:"openai" toml:"openai"`
	Engine   EngineConfig   `yaml:"engine" toml:"engine"`
	Tools    ToolsConfig    `yaml:"tools" toml:"tools"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Agents   []AgentConfig  `yaml:"agents" toml:"agents"`
	Session  SessionConfig  `yaml:"session" toml:"session"`
}

// OpenAIConfig holds credentials for the remote reasoning service
type OpenAIConfig struct {
	APIKey          string `yaml:"api_key" toml:"api_key"`
	BaseURL         string `yaml:"base_url" toml:"base_url"`
	ModerationModel string `yaml:"moderation_model" toml:"moderation_model"`
}

// EngineConfig holds run polling and delegation limits
type EngineConfig struct {
	PollInterval       time.Duration `yaml:"-" toml:"-"`
	MaxAttempts        int           `yaml:"max_attempts" toml:"max_attempts"`
	MaxDelegationDepth int           `yaml:"max_delegation_depth" toml:"max_delegation_depth"`

	// Raw string value for unmarshaling
	PollIntervalRaw string `yaml:"poll_interval" toml:"poll_interval"`
}

// ToolsConfig holds the sandbox for the built-in file tools
type ToolsConfig struct {
	Root    string   `yaml:"root" toml:"root"`
	Exclude []string `yaml:"exclude" toml:"exclude"`

	// Arguments fixes tool arguments for every agent; an agent's own arguments win
	Arguments map[string]map[string]any `yaml:"arguments" toml:"arguments"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// AgentConfig describes one assistant. Agents with an ID wrap an existing
// remote assistant; agents without one are created by provisioning.
type AgentConfig struct {
	Key          string   `yaml:"key" toml:"key"`
	ID           string   `yaml:"id" toml:"id"`
	Name         string   `yaml:"name" toml:"name"`
	Description  string   `yaml:"description" toml:"description"`
	Instructions string   `yaml:"instructions" toml:"instructions"`
	Model        string   `yaml:"model" toml:"model"`
	Temperature  *float64 `yaml:"temperature" toml:"temperature"`
	TopP         *float64 `yaml:"top_p" toml:"top_p"`
	Tools        []string `yaml:"tools" toml:"tools"`
	Delegation   bool     `yaml:"delegation" toml:"delegation"`
	Avatar       string   `yaml:"avatar" toml:"avatar"`

	// Arguments fixes tool arguments: tool name -> argument -> value
	Arguments map[string]map[string]any `yaml:"arguments" toml:"arguments"`
}

// SessionConfig holds the default multi-agent session
type SessionConfig struct {
	Topic  string   `yaml:"topic" toml:"topic"`
	Roster []string `yaml:"roster" toml:"roster"`
	Limit  int      `yaml:"limit" toml:"limit"`
	Chunk  int      `yaml:"chunk" toml:"chunk"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, anything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal([]byte(expandedData), &cfg)
	} else {
		err = yaml.Unmarshal([]byte(expandedData), &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills empty fields. Relative paths are resolved against the
// directory holding the config file.
func (c *Config) applyDefaults(configDir string) {
	if c.Engine.PollInterval == 0 {
		c.Engine.PollInterval = DefaultPollInterval
	}
	if c.Engine.MaxAttempts == 0 {
		c.Engine.MaxAttempts = DefaultMaxAttempts
	}
	if c.Engine.MaxDelegationDepth == 0 {
		c.Engine.MaxDelegationDepth = DefaultMaxDelegationDepth
	}
	if c.OpenAI.ModerationModel == "" {
		c.OpenAI.ModerationModel = DefaultModerationModel
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabaseFile
	}
	c.Database.Path = resolvePath(configDir, c.Database.Path)
	if c.Tools.Root != "" {
		c.Tools.Root = resolvePath(configDir, c.Tools.Root)
	}
}

func resolvePath(dir, p string) string {
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Engine.PollInterval < 0 {
		return fmt.Errorf("engine.poll_interval must not be negative")
	}
	if c.Engine.MaxAttempts < 0 {
		return fmt.Errorf("engine.max_attempts must not be negative")
	}
	if c.Engine.MaxDelegationDepth < 0 {
		return fmt.Errorf("engine.max_delegation_depth must not be negative")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}

	seen := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		if a.Key == "" {
			return fmt.Errorf("agents[%d].key is required", i)
		}
		if seen[a.Key] {
			return fmt.Errorf("agents[%d].key %q is duplicated", i, a.Key)
		}
		seen[a.Key] = true

		if a.ID == "" && a.Model == "" {
			return fmt.Errorf("agents[%d] (%s): model is required when id is not set", i, a.Key)
		}
		if a.Temperature != nil && (*a.Temperature < 0 || *a.Temperature > 2) {
			return fmt.Errorf("agents[%d] (%s): temperature must be between 0 and 2", i, a.Key)
		}
		if a.TopP != nil && (*a.TopP < 0 || *a.TopP > 1) {
			return fmt.Errorf("agents[%d] (%s): top_p must be between 0 and 1", i, a.Key)
		}
		if len(a.Tools) > 0 && c.Tools.Root == "" {
			return fmt.Errorf("agents[%d] (%s): tools.root is required when agents use tools", i, a.Key)
		}
	}

	for _, key := range c.Session.Roster {
		if !seen[key] {
			return fmt.Errorf("session.roster references unknown agent %q", key)
		}
	}
	if c.Session.Limit < 0 {
		return fmt.Errorf("session.limit must not be negative")
	}
	if c.Session.Chunk < 0 {
		return fmt.Errorf("session.chunk must not be negative")
	}

	return nil
}

// Agent returns the agent configured under key.
func (c *Config) Agent(key string) (*AgentConfig, bool) {
	for i := range c.Agents {
		if c.Agents[i].Key == key {
			return &c.Agents[i], true
		}
	}
	return nil, false
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Engine.PollIntervalRaw != "" {
		cfg.Engine.PollInterval, err = time.ParseDuration(cfg.Engine.PollIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing poll_interval %q: %w", cfg.Engine.PollIntervalRaw, err)
		}
	}

	return nil
}
