package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DirName is the per-workspace directory holding config and logs.
const DirName = ".classpane"

// Config holds all classpane configuration.
type Config struct {
	// Browser backend (Chrome DevTools)
	Browser BrowserConfig `yaml:"browser"`

	// Class engine write path
	Engine EngineConfig `yaml:"engine"`

	// Class-name completion
	Completion CompletionConfig `yaml:"completion"`

	// Offline HTML backend
	HTMLDoc HTMLDocConfig `yaml:"htmldoc"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Prometheus endpoint
	Metrics MetricsConfig `yaml:"metrics"`
}

// BrowserConfig configures the DevTools session.
type BrowserConfig struct {
	DebuggerURL       string   `yaml:"debugger_url"`       // ws:// or http:// endpoint of a running Chrome
	Launch            []string `yaml:"launch"`             // argv used when no debugger URL is set
	Headless          bool     `yaml:"headless"`
	NavigationTimeout string   `yaml:"navigation_timeout"`
	EchoTimeout       string   `yaml:"echo_timeout"` // how long SetAttribute waits for its attributeModified event
}

// EngineConfig configures flushing.
type EngineConfig struct {
	FlushDelay   string `yaml:"flush_delay"` // coalescing window, "0s" flushes on the next loop turn
	WriteTimeout string `yaml:"write_timeout"`
}

// CompletionConfig configures the completion provider.
type CompletionConfig struct {
	FetchTimeout string `yaml:"fetch_timeout"`
}

// HTMLDocConfig configures the offline backend.
type HTMLDocConfig struct {
	Autosave bool `yaml:"autosave"`
	Watch    bool `yaml:"watch"`
}

// MetricsConfig configures the metrics server. An empty address disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:          false,
			NavigationTimeout: "30s",
			EchoTimeout:       "2s",
		},
		Engine: EngineConfig{
			FlushDelay:   "0s",
			WriteTimeout: "10s",
		},
		Completion: CompletionConfig{
			FetchTimeout: "5s",
		},
		HTMLDoc: HTMLDocConfig{
			Autosave: true,
			Watch:    true,
		},
		Logging: LoggingConfig{
			Level:     "info",
			DebugMode: false,
		},
	}
}

// DefaultPath returns the config path inside workspace.
func DefaultPath(workspace string) string {
	return filepath.Join(workspace, DirName, "config.yaml")
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Defaults still honour the environment
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
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
	if url := os.Getenv("CLASSPANE_DEBUGGER_URL"); url != "" {
		c.Browser.DebuggerURL = url
	}
	if v := os.Getenv("CLASSPANE_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Browser.Headless = b
		}
	}
	if lvl := os.Getenv("CLASSPANE_LOG_LEVEL"); lvl != "" {
		c.Logging.Level = lvl
	}
	if addr := os.Getenv("CLASSPANE_METRICS_ADDR"); addr != "" {
		c.Metrics.Addr = addr
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// GetNavigationTimeout returns the page navigation timeout as a duration.
func (c *Config) GetNavigationTimeout() time.Duration {
	return parseDuration(c.Browser.NavigationTimeout, 30*time.Second)
}

// GetEchoTimeout returns how long a browser write waits for its echo.
func (c *Config) GetEchoTimeout() time.Duration {
	return parseDuration(c.Browser.EchoTimeout, 2*time.Second)
}

// GetFlushDelay returns the coalescing window.
func (c *Config) GetFlushDelay() time.Duration {
	return parseDuration(c.Engine.FlushDelay, 0)
}

// GetWriteTimeout returns the per-write timeout.
func (c *Config) GetWriteTimeout() time.Duration {
	return parseDuration(c.Engine.WriteTimeout, 10*time.Second)
}

// GetFetchTimeout returns the completion fetch timeout.
func (c *Config) GetFetchTimeout() time.Duration {
	return parseDuration(c.Completion.FetchTimeout, 5*time.Second)
}

// ValidLogLevels lists the accepted logging levels.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	durations := map[string]string{
		"browser.navigation_timeout": c.Browser.NavigationTimeout,
		"browser.echo_timeout":       c.Browser.EchoTimeout,
		"engine.flush_delay":         c.Engine.FlushDelay,
		"engine.write_timeout":       c.Engine.WriteTimeout,
		"completion.fetch_timeout":   c.Completion.FetchTimeout,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
		if d < 0 {
			return fmt.Errorf("invalid %s %q: must not be negative", key, value)
		}
	}

	validLevel := false
	for _, l := range ValidLogLevels {
		if c.Logging.Level == l {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid logging level: %s (valid: %v)", c.Logging.Level, ValidLogLevels)
	}

	if c.Metrics.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
			return fmt.Errorf("invalid metrics.addr %q: %w", c.Metrics.Addr, err)
		}
	}

	return nil
}

// FindWorkspaceRoot walks up from the working directory looking for a
// .classpane directory, then a go.mod. It falls back to the working
// directory.
func FindWorkspaceRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	originalDir := dir
	for {
		if _, err := os.Stat(filepath.Join(dir, DirName)); err == nil {
			return dir, nil
		}
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return originalDir, nil
}
