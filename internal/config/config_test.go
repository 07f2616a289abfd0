package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 3, cfg.Runner.MaxCycles)
	assert.Equal(t, 4, cfg.Runner.MaxFileTouches)
	assert.Equal(t, "python3", cfg.Runner.Interpreter)
	assert.Equal(t, ".py", cfg.Trace.Extension)
	assert.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, "o3-2025-04-16", cfg.LLM.ResolvedModel())
	assert.InDelta(t, 0.2, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, "logs", cfg.Logging.Dir)
	assert.Zero(t, cfg.Runner.GetExecTimeout())
	assert.Zero(t, cfg.LLM.GetTimeout())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	clearOverrideEnv(t)

	cfg, err := LoadWithEnvFile(filepath.Join(t.TempDir(), "absent.yaml"), "")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	clearOverrideEnv(t)

	path := filepath.Join(t.TempDir(), "mend.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
runner:
  entry: app/main.py
  max_cycles: 5
  exec_timeout: 30s
llm:
  provider: anthropic
  model: claude-sonnet-4-20250514
logging:
  dir: out
`), 0644))

	cfg, err := LoadWithEnvFile(path, "")
	require.NoError(t, err)

	assert.Equal(t, "app/main.py", cfg.Runner.Entry)
	assert.Equal(t, 5, cfg.Runner.MaxCycles)
	assert.Equal(t, 4, cfg.Runner.MaxFileTouches, "unset keys keep defaults")
	assert.Equal(t, 30*time.Second, cfg.Runner.GetExecTimeout())
	assert.Equal(t, ProviderAnthropic, cfg.LLM.Provider)
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.LLM.ResolvedModel())
	assert.Equal(t, filepath.Join("out", "history.db"), cfg.HistoryPath())
	assert.Equal(t, filepath.Join("out", "runner.log"), cfg.Logging.RunLogPath())
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mend.yaml")
	require.NoError(t, os.WriteFile(path, []byte("runner: [unclosed"), 0644))

	_, err := LoadWithEnvFile(path, "")
	assert.Error(t, err)
}

func TestLoad_DotEnvDoesNotOverrideShell(t *testing.T) {
	clearOverrideEnv(t)
	t.Setenv("OPENAI_API_KEY", "from-shell")

	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("OPENAI_API_KEY=from-file\nOPENAI_MODEL=gpt-4.1\n"), 0644))

	cfg, err := LoadWithEnvFile(filepath.Join(dir, "mend.yaml"), envFile)
	require.NoError(t, err)

	assert.Equal(t, "from-shell", cfg.LLM.APIKey)
	assert.Equal(t, "gpt-4.1", cfg.LLM.Model, "dotenv fills variables the shell left unset")
}

func TestLoad_MissingDotEnvIsFine(t *testing.T) {
	clearOverrideEnv(t)
	dir := t.TempDir()

	_, err := LoadWithEnvFile(filepath.Join(dir, "mend.yaml"), filepath.Join(dir, ".env"))
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero cycles", func(c *Config) { c.Runner.MaxCycles = 0 }},
		{"negative touches", func(c *Config) { c.Runner.MaxFileTouches = -1 }},
		{"bad exec timeout", func(c *Config) { c.Runner.ExecTimeout = "soon" }},
		{"negative exec timeout", func(c *Config) { c.Runner.ExecTimeout = "-1s" }},
		{"extension without dot", func(c *Config) { c.Trace.Extension = "py" }},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "zai" }},
		{"temperature too high", func(c *Config) { c.LLM.Temperature = 3 }},
		{"bad llm timeout", func(c *Config) { c.LLM.Timeout = "1 minute" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRedactedAndSave(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.APIKey = "sk-secret"

	red := cfg.Redacted()
	assert.Equal(t, "<redacted>", red.LLM.APIKey)
	assert.Equal(t, "sk-secret", cfg.LLM.APIKey, "original untouched")

	path := filepath.Join(t.TempDir(), "sub", "mend.yaml")
	require.NoError(t, red.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-secret")

	var back Config
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.Equal(t, cfg.Runner, back.Runner)
}
