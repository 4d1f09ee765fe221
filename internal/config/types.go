package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Evaluation    EvaluationConfig    `yaml:"evaluation"`
	Logger        LoggerConfig        `yaml:"logger"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Introspection IntrospectionConfig `yaml:"introspection"`
	Mission       MissionConfig       `yaml:"mission"`
	Orchestrator  OrchestratorConfig  `yaml:"orchestrator"`
	Slack         SlackConfig         `yaml:"slack"`
}

type ServerConfig struct {
	HTTPPort int    `yaml:"http_port"`
	Host     string `yaml:"host"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

type EvaluationConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"` // alert rule evaluation cadence
}

type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Output string `yaml:"output"` // stdout, stderr, or file path
}

type ElasticsearchConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Addresses   []string `yaml:"addresses"`
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
	IndexPrefix string   `yaml:"index_prefix"` // e.g. "fleetwatch-alerts"
}

// IntrospectionConfig points at the cluster-introspection API that serves
// cluster/node/pod snapshots. An empty base URL switches the service to
// push mode, where collaborators POST snapshots to the HTTP API instead.
type IntrospectionConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// MissionConfig points at the external mission runner that executes AI
// diagnosis and repair tasks.
type MissionConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type OrchestratorConfig struct {
	MaxLoops   int  `yaml:"max_loops"`  // diagnose->repair->verify loop bound
	Repairable bool `yaml:"repairable"` // false = diagnose-only sessions
}

type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
	Channel    string `yaml:"channel"`
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(&config)

	return &config, nil
}

// SaveToFile writes configuration back to a YAML file
func SaveToFile(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Load builds configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: getEnvInt("HTTP_PORT", 8080),
			Host:     getEnv("HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "sqlite"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "fleetwatch"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "fleetwatch.db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Evaluation: EvaluationConfig{
			IntervalSeconds: getEnvInt("EVAL_INTERVAL", 30),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
		Elasticsearch: ElasticsearchConfig{
			Enabled:     getEnvBool("ES_ENABLED", false),
			Addresses:   getEnvSlice("ES_ADDRESSES", []string{"http://localhost:9200"}),
			Username:    getEnv("ES_USERNAME", ""),
			Password:    getEnv("ES_PASSWORD", ""),
			IndexPrefix: getEnv("ES_INDEX_PREFIX", "fleetwatch-alerts"),
		},
		Introspection: IntrospectionConfig{
			BaseURL:        getEnv("INTROSPECTION_URL", ""),
			TimeoutSeconds: getEnvInt("INTROSPECTION_TIMEOUT", 15),
		},
		Mission: MissionConfig{
			BaseURL:        getEnv("MISSION_URL", "http://localhost:9300"),
			TimeoutSeconds: getEnvInt("MISSION_TIMEOUT", 15),
		},
		Orchestrator: OrchestratorConfig{
			MaxLoops:   getEnvInt("ORCH_MAX_LOOPS", 3),
			Repairable: getEnvBool("ORCH_REPAIRABLE", true),
		},
		Slack: SlackConfig{
			Enabled:    getEnvBool("SLACK_ENABLED", false),
			WebhookURL: getEnv("SLACK_WEBHOOK_URL", ""),
			Channel:    getEnv("SLACK_CHANNEL", ""),
		},
	}
}

func setDefaults(config *Config) {
	if config.Server.HTTPPort == 0 {
		config.Server.HTTPPort = 8080
	}
	if config.Server.Host == "" {
		config.Server.Host = "0.0.0.0"
	}
	if config.Database.Driver == "" {
		config.Database.Driver = "sqlite"
	}
	if config.Database.DBName == "" {
		config.Database.DBName = "fleetwatch.db"
	}
	if config.Evaluation.IntervalSeconds == 0 {
		config.Evaluation.IntervalSeconds = 30
	}
	if config.Logger.Level == "" {
		config.Logger.Level = "info"
	}
	if config.Logger.Output == "" {
		config.Logger.Output = "stdout"
	}
	if config.Elasticsearch.IndexPrefix == "" {
		config.Elasticsearch.IndexPrefix = "fleetwatch-alerts"
	}
	if config.Introspection.TimeoutSeconds == 0 {
		config.Introspection.TimeoutSeconds = 15
	}
	if config.Mission.TimeoutSeconds == 0 {
		config.Mission.TimeoutSeconds = 15
	}
	if config.Orchestrator.MaxLoops == 0 {
		config.Orchestrator.MaxLoops = 3
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		var intVal int
		if _, err := fmt.Sscanf(val, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if val == "true" || val == "1" || val == "yes" {
			return true
		}
		return false
	}
	return defaultVal
}

func getEnvSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		var result []string
		for _, part := range strings.Split(val, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultVal
}

// Validate checks configuration for obvious mistakes
func (c *Config) Validate() error {
	if c.Server.HTTPPort < 1 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}

	validDrivers := map[string]bool{
		"sqlite":   true,
		"mysql":    true,
		"postgres": true,
	}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}

	if c.Database.Driver != "sqlite" {
		if c.Database.Host == "" {
			return fmt.Errorf("database host cannot be empty for %s", c.Database.Driver)
		}
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("invalid database port: %d", c.Database.Port)
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user cannot be empty for %s", c.Database.Driver)
		}
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("database name cannot be empty")
	}

	if c.Evaluation.IntervalSeconds < 1 {
		return fmt.Errorf("evaluation interval must be at least 1 second")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logger.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logger.Level)
	}

	if c.Elasticsearch.Enabled && len(c.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("elasticsearch addresses cannot be empty when enabled")
	}

	if c.Mission.BaseURL == "" {
		return fmt.Errorf("mission runner base_url cannot be empty")
	}

	if c.Orchestrator.MaxLoops < 1 {
		return fmt.Errorf("orchestrator max_loops must be at least 1")
	}

	if c.Slack.Enabled && c.Slack.WebhookURL == "" {
		return fmt.Errorf("slack webhook_url cannot be empty when slack is enabled")
	}

	return nil
}
