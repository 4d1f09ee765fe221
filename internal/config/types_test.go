package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFileAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: 127.0.0.1
database:
  driver: sqlite
mission:
  base_url: http://localhost:9300
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "fleetwatch.db", cfg.Database.DBName)
	assert.Equal(t, 30, cfg.Evaluation.IntervalSeconds)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "fleetwatch-alerts", cfg.Elasticsearch.IndexPrefix)
	assert.Equal(t, 3, cfg.Orchestrator.MaxLoops)

	require.NoError(t, cfg.Validate())
}

func TestLoadFromFileMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0644))

	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestSaveAndReloadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := Load()
	cfg.Server.HTTPPort = 9090
	cfg.Orchestrator.Repairable = false
	require.NoError(t, SaveToFile(path, cfg))

	reloaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, reloaded.Server.HTTPPort)
	assert.False(t, reloaded.Orchestrator.Repairable)
}

func TestValidate(t *testing.T) {
	valid := Load()
	require.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.HTTPPort = 0 }},
		{"bad driver", func(c *Config) { c.Database.Driver = "oracle" }},
		{"bad log level", func(c *Config) { c.Logger.Level = "verbose" }},
		{"zero eval interval", func(c *Config) { c.Evaluation.IntervalSeconds = 0 }},
		{"missing mission url", func(c *Config) { c.Mission.BaseURL = "" }},
		{"zero max loops", func(c *Config) { c.Orchestrator.MaxLoops = 0 }},
		{"es enabled without addresses", func(c *Config) {
			c.Elasticsearch.Enabled = true
			c.Elasticsearch.Addresses = nil
		}},
		{"slack enabled without webhook", func(c *Config) {
			c.Slack.Enabled = true
			c.Slack.WebhookURL = ""
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Load()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "8181")
	t.Setenv("ORCH_MAX_LOOPS", "5")
	t.Setenv("ORCH_REPAIRABLE", "false")
	t.Setenv("ES_ADDRESSES", "http://es1:9200, http://es2:9200")

	cfg := Load()
	assert.Equal(t, 8181, cfg.Server.HTTPPort)
	assert.Equal(t, 5, cfg.Orchestrator.MaxLoops)
	assert.False(t, cfg.Orchestrator.Repairable)
	assert.Equal(t, []string{"http://es1:9200", "http://es2:9200"}, cfg.Elasticsearch.Addresses)
}
