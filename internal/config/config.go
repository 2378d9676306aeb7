// Package config handles configuration loading, validation, and persistence
// for the war server, client and load driver.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	AppName    = "war"
	AppVersion = "1.0.0"

	DefaultConfigDir   = "config"
	DefaultConfigFile  = "war.json"
	DefaultHost        = "127.0.0.1"
	DefaultPort        = 4444
	DefaultAPIPort     = 5050
	DefaultConcurrency = 1000
)

// Config is the root configuration structure.
type Config struct {
	mu   sync.RWMutex
	path string

	Server  ServerConfig  `json:"server"`
	Clients ClientsConfig `json:"clients"`
	API     APIConfig     `json:"api"`
	Health  HealthConfig  `json:"health"`
	MQTT    MQTTConfig    `json:"mqtt"`
	Logging LoggingConfig `json:"logging"`
}

// ServerConfig holds the game listener settings.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`

	// Reject PLAYCARD messages whose card is not the one dealt for the round.
	EnforceDealtCards bool `json:"enforce_dealt_cards"`

	// Zero disables deadlines; a stalled peer then stalls only its own session.
	ReadTimeout  int `json:"read_timeout_sec"`
	WriteTimeout int `json:"write_timeout_sec"`

	// How long shutdown waits for in-flight sessions to tear down.
	ShutdownGrace int `json:"shutdown_grace_sec"`

	// Interactive console on stdin.
	Console bool `json:"console"`
}

// ClientsConfig holds client and load driver settings.
type ClientsConfig struct {
	Concurrency int `json:"concurrency"`
	DialTimeout int `json:"dial_timeout_sec"`

	// Per-message read/write deadline on the client side. Zero disables it.
	IOTimeout int `json:"io_timeout_sec"`
}

// APIConfig holds the monitoring REST API settings.
type APIConfig struct {
	Enabled        bool     `json:"enabled"`
	Port           int      `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps"`
}

// HealthConfig holds the periodic server checks. A zero interval disables
// the corresponding check.
type HealthConfig struct {
	CheckInterval     int `json:"check_interval_sec"`
	HeartbeatInterval int `json:"heartbeat_interval_sec"`

	// In-game connections with no traffic for this long are closed, which
	// aborts their session. Zero, the default, never reaps.
	IdleTimeout int `json:"idle_timeout_sec"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled   bool   `json:"enabled"`
	BrokerURL string `json:"broker_url"`
	Port      int    `json:"port"`
	UseTLS    bool   `json:"use_tls"`
	ClientID  string `json:"client_id"`
	Topic     string `json:"topic_prefix"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxBackups int    `json:"max_backups"`
	File       bool   `json:"file"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              DefaultHost,
			Port:              DefaultPort,
			EnforceDealtCards: true,
			ShutdownGrace:     10,
			Console:           true,
		},
		Clients: ClientsConfig{
			Concurrency: DefaultConcurrency,
			DialTimeout: 10,
		},
		API: APIConfig{
			Enabled:      false,
			Port:         DefaultAPIPort,
			RateLimitRPS: 20,
		},
		Health: HealthConfig{
			CheckInterval:     30,
			HeartbeatInterval: 60,
			IdleTimeout:       0,
		},
		MQTT: MQTTConfig{
			Enabled: false,
			Port:    1883,
			Topic:   "war",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Directory:  "logs",
			MaxBackups: 5,
			File:       false,
		},
	}
}

// Load reads configuration from a JSON file in configDir. A missing file
// is created with defaults.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig() // Start with defaults, then overlay
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	// Re-save so the file always lists every option known to this build.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetServer returns a copy of the server configuration.
func (c *Config) GetServer() ServerConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Server
}

// SetServer updates the server configuration.
func (c *Config) SetServer(s ServerConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Server = s
}

// GetClients returns a copy of the clients configuration.
func (c *Config) GetClients() ClientsConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Clients
}

// SetClients updates the clients configuration.
func (c *Config) SetClients(cl ClientsConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Clients = cl
}

// GetHealth returns a copy of the health check configuration.
func (c *Config) GetHealth() HealthConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Health
}

// UpdateServerField updates a single server field by its JSON key.
func (c *Config) UpdateServerField(key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, _ := json.Marshal(c.Server)
	m := make(map[string]interface{})
	json.Unmarshal(data, &m)

	if _, ok := m[key]; !ok {
		return fmt.Errorf("unknown server field %s", key)
	}
	m[key] = value

	updated, _ := json.Marshal(m)
	if err := json.Unmarshal(updated, &c.Server); err != nil {
		return fmt.Errorf("failed to update field %s: %w", key, err)
	}

	return nil
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// Addr returns the host:port the game listener binds to.
func (c *Config) Addr() string {
	s := c.GetServer()
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
