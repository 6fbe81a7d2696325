package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(configPathEnv, "")

	cfg := Load()

	assert.Equal(t, SinkSheets, cfg.Sink.Backend)
	assert.Equal(t, "Sheet1", cfg.Sink.Sheets.SheetName)
	assert.Equal(t, "qwen2.5:3b", cfg.LLM.Model)
	assert.Equal(t, LedgerFile, cfg.Ledger.Backend)
	assert.Equal(t, 10, cfg.Ledger.FlushEvery)
	assert.Equal(t, "UTC", cfg.Scheduler.Location().String())
}

func TestLoad_FileMergesOntoDefaults(t *testing.T) {
	path := writeConfig(t, `
sink:
  backend: postgres
  database:
    dsn: postgres://u:p@localhost/apps
llm:
  model: llama3.1:8b
  timeout: 15s
scheduler:
  timezone: Europe/Berlin
`)
	t.Setenv(configPathEnv, path)

	cfg := Load()

	assert.Equal(t, SinkPostgres, cfg.Sink.Backend)
	assert.Equal(t, "postgres://u:p@localhost/apps", cfg.Sink.Database.DSN)
	assert.Equal(t, "applications", cfg.Sink.Database.Table, "unset nested fields keep defaults")
	assert.Equal(t, "llama3.1:8b", cfg.LLM.Model)
	assert.Equal(t, 15*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, "Europe/Berlin", cfg.Scheduler.Location().String())
}

func TestLoad_BrokenFileFallsBackToDefaults(t *testing.T) {
	t.Setenv(configPathEnv, writeConfig(t, "sink: [unterminated"))

	cfg := Load()
	assert.Equal(t, SinkSheets, cfg.Sink.Backend)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv(spreadsheetIDEnv, "https://docs.google.com/spreadsheets/d/1AbC-d_E/edit#gid=0")
	t.Setenv(ollamaHostEnv, "http://gpu-box:11434/")
	t.Setenv(ollamaModelEnv, "mistral")
	t.Setenv(stateFilePathEnv, "/var/lib/scanner/state.json")
	t.Setenv(sheetsWPMEnv, "not-a-number")

	cfg := Load()

	assert.Equal(t, "1AbC-d_E", cfg.Sink.Sheets.SpreadsheetID)
	assert.Equal(t, "http://gpu-box:11434/v1/chat/completions", cfg.LLM.Endpoint)
	assert.Equal(t, "mistral", cfg.LLM.Model)
	assert.Equal(t, "/var/lib/scanner/state.json", cfg.Ledger.Path)
	assert.Equal(t, 50, cfg.Sink.Sheets.WritesPerMinute)
}

func TestLoad_AnthropicKey(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv(llmProviderEnv, ProviderAnthropic)
	t.Setenv(anthropicAPIKeyEnv, "sk-ant-test")

	cfg := Load()
	assert.Equal(t, "sk-ant-test", cfg.LLM.APIKey)
}

func TestValidate(t *testing.T) {
	valid := defaultConfig()
	valid.Sink.Sheets.SpreadsheetID = "sheet-id"
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing spreadsheet", func(c *Config) { c.Sink.Sheets.SpreadsheetID = "" }, "spreadsheetId is required"},
		{"sql without dsn", func(c *Config) { c.Sink.Backend = SinkSQLite }, "dsn is required"},
		{"unknown sink", func(c *Config) { c.Sink.Backend = "excel" }, `unknown sink backend "excel"`},
		{"redis without addr", func(c *Config) { c.Ledger.Backend = LedgerRedis }, "redis.addr is required"},
		{"zero flush", func(c *Config) { c.Ledger.FlushEvery = 0 }, "flushEvery must be positive"},
		{"anthropic without key", func(c *Config) { c.LLM.Provider = ProviderAnthropic }, "apiKey is required"},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "palm" }, "unknown llm provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestExtractSpreadsheetID(t *testing.T) {
	assert.Equal(t, "plain-id", ExtractSpreadsheetID(" plain-id "))
	assert.Equal(t, "1xYz_9-Q", ExtractSpreadsheetID("https://docs.google.com/spreadsheets/d/1xYz_9-Q/edit"))
	assert.Equal(t, "", ExtractSpreadsheetID(""))
}
