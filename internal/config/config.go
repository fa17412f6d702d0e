package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for configuration when --config is not given.
const DefaultPath = "gridnerd.yaml"

// Version is reported by health checks and the CLI.
const Version = "0.3.0"

// Config holds all gridNERD configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// AI planning service
	LLM LLMConfig `yaml:"llm"`

	// Spreadsheet automation surface
	Workbook WorkbookConfig `yaml:"workbook"`

	// HTTP API
	Server ServerConfig `yaml:"server"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "gridNERD",
		Version: Version,

		LLM: LLMConfig{
			Provider:        "gemini",
			Model:           "gemini-2.5-flash",
			Timeout:         "120s",
			Temperature:     0.2,
			MaxOutputTokens: 2048,
		},

		Workbook: WorkbookConfig{
			Driver:          DriverXLSX,
			Path:            "workbook.xlsx",
			SampleRows:      10,
			SampleCols:      10,
			MaxFormulas:     10,
			MaxCells:        100000,
			Watch:           true,
			CreateIfMissing: true,
		},

		Server: ServerConfig{
			ListenAddr:      "127.0.0.1:5000",
			ReadTimeout:     "10s",
			WriteTimeout:    "5m",
			ShutdownTimeout: "10s",
			MaxBodyBytes:    10 << 20,
			MaxConnections:  16,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
// A missing file yields the defaults with environment overrides applied.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

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
func (c *Config) applyEnvOverrides() {
	// GOOGLE_API_KEY is what the genai SDK reads; GEMINI_API_KEY wins when both are set.
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}
	if model := os.Getenv("GRIDNERD_MODEL"); model != "" {
		c.LLM.Model = model
	}

	if path := os.Getenv("GRIDNERD_WORKBOOK"); path != "" {
		c.Workbook.Path = path
	}

	if addr := os.Getenv("GRIDNERD_LISTEN"); addr != "" {
		c.Server.ListenAddr = addr
	}
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 120*time.Second)
}

// GetReadTimeout returns the HTTP read timeout as a duration.
func (c *Config) GetReadTimeout() time.Duration {
	return parseDuration(c.Server.ReadTimeout, 10*time.Second)
}

// GetWriteTimeout returns the HTTP write timeout as a duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return parseDuration(c.Server.WriteTimeout, 5*time.Minute)
}

// GetShutdownTimeout returns the graceful shutdown budget as a duration.
func (c *Config) GetShutdownTimeout() time.Duration {
	return parseDuration(c.Server.ShutdownTimeout, 10*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"gemini"}

// ValidDrivers lists all supported workbook drivers.
var ValidDrivers = []string{DriverXLSX, DriverMemory}

// Validate validates the configuration.
// A missing API key is not an error: execution-only commands work without one.
func (c *Config) Validate() error {
	if !contains(ValidProviders, c.LLM.Provider) {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}
	if !contains(ValidDrivers, c.Workbook.Driver) {
		return fmt.Errorf("invalid workbook driver: %s (valid: %v)", c.Workbook.Driver, ValidDrivers)
	}
	if c.Workbook.Driver == DriverXLSX && c.Workbook.Path == "" {
		return fmt.Errorf("workbook path required for driver %s", DriverXLSX)
	}
	if c.Workbook.SampleRows < 0 || c.Workbook.SampleCols < 0 || c.Workbook.MaxFormulas < 0 || c.Workbook.MaxCells < 0 {
		return fmt.Errorf("workbook sample bounds and max_cells must not be negative")
	}
	if c.Server.MaxConnections < 0 {
		return fmt.Errorf("server max_connections must not be negative")
	}
	return nil
}

// HasAPIKey reports whether the AI planning service can be used.
func (c *Config) HasAPIKey() bool {
	return c.LLM.APIKey != ""
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
