package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file the CLI reads when --config is not given.
const DefaultPath = "mend.yaml"

// DefaultEnvFile is the dotenv file read from the working directory.
const DefaultEnvFile = ".env"

// Config holds all mend configuration.
type Config struct {
	// Run loop and program launch
	Runner RunnerConfig `yaml:"runner"`

	// Failure trace parsing
	Trace TraceConfig `yaml:"trace"`

	// Code transformation collaborator
	LLM LLMConfig `yaml:"llm"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Run history ledger (SQLite)
	History HistoryConfig `yaml:"history"`

	// Prometheus textfile export
	Metrics MetricsConfig `yaml:"metrics"`
}

// TraceConfig configures the trace resolver.
type TraceConfig struct {
	// Source file extension recognized in `File "<path><ext>", line` frames.
	Extension string `yaml:"extension"`

	// Directory relative trace paths resolve against. Empty = working directory.
	BaseDir string `yaml:"base_dir"`
}

// HistoryConfig configures the run ledger.
type HistoryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"` // empty = <log_dir>/history.db
}

// MetricsConfig configures metrics export.
type MetricsConfig struct {
	TextfilePath string `yaml:"textfile_path"` // empty = no export
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Runner: RunnerConfig{
			MaxCycles:      3,
			MaxFileTouches: 4,
			Interpreter:    "python3",
			ExecTimeout:    "0s",
			MaxOutputBytes: 10 * 1024 * 1024,
		},

		Trace: TraceConfig{
			Extension: ".py",
		},

		LLM: LLMConfig{
			Provider:    ProviderOpenAI,
			Temperature: 0.2,
			Timeout:     "0s",
			MaxRetries:  3,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Dir:    "logs",
		},

		History: HistoryConfig{
			Enabled: true,
		},
	}
}

// Load loads configuration from a YAML file, then the dotenv file in the
// working directory, then environment variables.
func Load(path string) (*Config, error) {
	return LoadWithEnvFile(path, DefaultEnvFile)
}

// LoadWithEnvFile is Load with an explicit dotenv path. Variables already
// present in the process environment are never overwritten by the file.
func LoadWithEnvFile(path, envFile string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case os.IsNotExist(err):
		// Defaults if config file doesn't exist
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	if err := c.LLM.applyEnvOverrides(); err != nil {
		return err
	}

	if dir := os.Getenv("MEND_LOG_DIR"); dir != "" {
		c.Logging.Dir = dir
	}
	if level := os.Getenv("MEND_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Runner.MaxCycles < 1 {
		return fmt.Errorf("max cycles must be >= 1, got %d", c.Runner.MaxCycles)
	}
	if c.Runner.MaxFileTouches < 1 {
		return fmt.Errorf("max file touches must be >= 1, got %d", c.Runner.MaxFileTouches)
	}
	if c.Runner.MaxOutputBytes < 0 {
		return fmt.Errorf("max output bytes must not be negative, got %d", c.Runner.MaxOutputBytes)
	}
	if _, err := parseDuration(c.Runner.ExecTimeout); err != nil {
		return fmt.Errorf("invalid runner.exec_timeout: %w", err)
	}

	if c.Trace.Extension == "" || !strings.HasPrefix(c.Trace.Extension, ".") {
		return fmt.Errorf("trace extension must start with '.', got %q", c.Trace.Extension)
	}

	return c.LLM.Validate()
}

// Redacted returns a copy safe to print: credentials are masked.
func (c *Config) Redacted() *Config {
	cp := *c
	if cp.LLM.APIKey != "" {
		cp.LLM.APIKey = "<redacted>"
	}
	return &cp
}

// HistoryPath returns the ledger path, defaulting into the log directory.
func (c *Config) HistoryPath() string {
	if c.History.DatabasePath != "" {
		return c.History.DatabasePath
	}
	return filepath.Join(c.Logging.Dir, "history.db")
}

// parseDuration treats an empty string as zero (no timeout).
func parseDuration(raw string) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", raw)
	}
	return d, nil
}
