package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings
// coordinator, cleanly separated from business logic
type Config struct {
	Database  *DatabaseConfig
	HTTP      *HTTPConfig
	WebSocket *WebSocketConfig
	Alert     *AlertConfig
}

// DatabaseConfig locates and bounds the SQLite record store.
type DatabaseConfig struct {
	Path    string
	Timeout time.Duration
}

// HTTPConfig balances performance and reliability for the API surface.
type HTTPConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Host         string
}

// WebSocketConfig is tuned for classroom-scale presence connections.
type WebSocketConfig struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BufferSize   int
}

// AlertConfig parameterizes the pause detector.
// FUNCTIONAL DISCOVERY: 5 pauses in 60 seconds is the product threshold;
// the cleanup interval only bounds idle-window memory
type AlertConfig struct {
	Window          time.Duration
	Threshold       int
	CleanupInterval time.Duration
}

// DefaultConfig returns production-ready defaults for classroom deployments.
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:    "./tutorhub.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Port:         8000,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Host:         "0.0.0.0",
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Alert: &AlertConfig{
			Window:          60 * time.Second,
			Threshold:       5,
			CleanupInterval: 5 * time.Minute,
		},
	}
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= 0 {
		return fmt.Errorf("WebSocket read timeout must be positive")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}

	if c.Alert == nil {
		return fmt.Errorf("alert configuration is required")
	}
	if c.Alert.Window <= 0 {
		return fmt.Errorf("alert window must be positive")
	}
	if c.Alert.Threshold < 1 {
		return fmt.Errorf("alert threshold must be at least 1")
	}
	if c.Alert.CleanupInterval <= 0 {
		return fmt.Errorf("alert cleanup interval must be positive")
	}

	return nil
}

// LoadFromEnv returns defaults overridden by environment variables
// FUNCTIONAL DISCOVERY: Environment variables override defaults with
// fallback, supporting containerized deployments
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if port := os.Getenv("TUTORHUB_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}

	if host := os.Getenv("TUTORHUB_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}

	if dbPath := os.Getenv("TUTORHUB_DATABASE_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}

	setDuration := func(key string, target *time.Duration) {
		if value := os.Getenv(key); value != "" {
			if d, err := time.ParseDuration(value); err == nil {
				*target = d
			}
		}
	}

	setDuration("TUTORHUB_HTTP_READ_TIMEOUT", &config.HTTP.ReadTimeout)
	setDuration("TUTORHUB_HTTP_WRITE_TIMEOUT", &config.HTTP.WriteTimeout)
	setDuration("TUTORHUB_DATABASE_TIMEOUT", &config.Database.Timeout)
	setDuration("TUTORHUB_WEBSOCKET_PING_INTERVAL", &config.WebSocket.PingInterval)
	setDuration("TUTORHUB_WEBSOCKET_READ_TIMEOUT", &config.WebSocket.ReadTimeout)
	setDuration("TUTORHUB_WEBSOCKET_WRITE_TIMEOUT", &config.WebSocket.WriteTimeout)
	setDuration("TUTORHUB_ALERT_WINDOW", &config.Alert.Window)
	setDuration("TUTORHUB_ALERT_CLEANUP_INTERVAL", &config.Alert.CleanupInterval)

	if bufferSize := os.Getenv("TUTORHUB_WEBSOCKET_BUFFER_SIZE"); bufferSize != "" {
		if size, err := strconv.Atoi(bufferSize); err == nil {
			config.WebSocket.BufferSize = size
		}
	}

	if threshold := os.Getenv("TUTORHUB_ALERT_THRESHOLD"); threshold != "" {
		if n, err := strconv.Atoi(threshold); err == nil {
			config.Alert.Threshold = n
		}
	}

	return config
}

// ConfigFile is the YAML structure for file-based configuration.
// Durations are strings so operators can write "30s" instead of nanoseconds.
type ConfigFile struct {
	Database  *DatabaseConfigFile  `yaml:"database"`
	HTTP      *HTTPConfigFile      `yaml:"http"`
	WebSocket *WebSocketConfigFile `yaml:"websocket"`
	Alert     *AlertConfigFile     `yaml:"alert"`
}

type DatabaseConfigFile struct {
	Path    string `yaml:"path"`
	Timeout string `yaml:"timeout"`
}

type HTTPConfigFile struct {
	Port         int    `yaml:"port"`
	ReadTimeout  string `yaml:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout"`
	Host         string `yaml:"host"`
}

type WebSocketConfigFile struct {
	PingInterval string `yaml:"ping_interval"`
	ReadTimeout  string `yaml:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout"`
	BufferSize   int    `yaml:"buffer_size"`
}

type AlertConfigFile struct {
	Window          string `yaml:"window"`
	Threshold       int    `yaml:"threshold"`
	CleanupInterval string `yaml:"cleanup_interval"`
}

// LoadFromFile parses a YAML configuration file on top of the defaults.
func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile ConfigFile
	if err := yaml.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	config := DefaultConfig()

	parseDuration := func(value string, target *time.Duration) {
		if value != "" {
			if d, err := time.ParseDuration(value); err == nil {
				*target = d
			}
		}
	}

	if configFile.Database != nil {
		if configFile.Database.Path != "" {
			config.Database.Path = configFile.Database.Path
		}
		parseDuration(configFile.Database.Timeout, &config.Database.Timeout)
	}

	if configFile.HTTP != nil {
		if configFile.HTTP.Port > 0 {
			config.HTTP.Port = configFile.HTTP.Port
		}
		if configFile.HTTP.Host != "" {
			config.HTTP.Host = configFile.HTTP.Host
		}
		parseDuration(configFile.HTTP.ReadTimeout, &config.HTTP.ReadTimeout)
		parseDuration(configFile.HTTP.WriteTimeout, &config.HTTP.WriteTimeout)
	}

	if configFile.WebSocket != nil {
		if configFile.WebSocket.BufferSize > 0 {
			config.WebSocket.BufferSize = configFile.WebSocket.BufferSize
		}
		parseDuration(configFile.WebSocket.PingInterval, &config.WebSocket.PingInterval)
		parseDuration(configFile.WebSocket.ReadTimeout, &config.WebSocket.ReadTimeout)
		parseDuration(configFile.WebSocket.WriteTimeout, &config.WebSocket.WriteTimeout)
	}

	if configFile.Alert != nil {
		if configFile.Alert.Threshold > 0 {
			config.Alert.Threshold = configFile.Alert.Threshold
		}
		parseDuration(configFile.Alert.Window, &config.Alert.Window)
		parseDuration(configFile.Alert.CleanupInterval, &config.Alert.CleanupInterval)
	}

	// ARCHITECTURAL DISCOVERY: Validate after loading to catch errors early
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

// LoadConfigWithPrecedence resolves configuration as file > environment >
// defaults, enabling flexible deployment patterns with sane fallbacks.
func LoadConfigWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()

	if filepath != "" {
		if fileConfig, err := LoadFromFile(filepath); err == nil {
			config = fileConfig
		}
		// Silently ignore file errors - environment/defaults still work
	}

	return config
}
