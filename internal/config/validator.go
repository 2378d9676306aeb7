package config

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate performs comprehensive validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	validateServer(&cfg.Server, result)
	validateClients(&cfg.Clients, result)
	validateAPI(&cfg.API, cfg.Server.Port, result)
	validateHealth(&cfg.Health, result)
	validateMQTT(&cfg.MQTT, result)
	validateLogging(&cfg.Logging, result)

	return result
}

func validateServer(data *ServerConfig, result *ValidationResult) {
	if strings.TrimSpace(data.Host) == "" {
		result.AddError("server.host", "listen host is required")
	}

	validatePort(data.Port, "server.port", result)

	if data.ReadTimeout < 0 {
		result.AddError("server.read_timeout_sec", "must not be negative")
	}
	if data.WriteTimeout < 0 {
		result.AddError("server.write_timeout_sec", "must not be negative")
	}
	if data.ShutdownGrace < 0 {
		result.AddError("server.shutdown_grace_sec", "must not be negative")
	}

	if !data.EnforceDealtCards {
		result.AddWarning("server.enforce_dealt_cards",
			"played cards are not checked against the dealt hand, clients can cheat")
	}
}

func validateClients(data *ClientsConfig, result *ValidationResult) {
	if data.Concurrency < 1 {
		result.AddError("clients.concurrency", "must allow at least 1 client in flight")
	}
	if data.Concurrency > 10000 {
		result.AddWarning("clients.concurrency",
			fmt.Sprintf("high concurrency (%d) may exhaust file descriptors", data.Concurrency))
	}
	if data.DialTimeout < 0 {
		result.AddError("clients.dial_timeout_sec", "must not be negative")
	}
	if data.IOTimeout < 0 {
		result.AddError("clients.io_timeout_sec", "must not be negative")
	}
}

func validateAPI(data *APIConfig, gamePort int, result *ValidationResult) {
	if !data.Enabled {
		return
	}
	validatePort(data.Port, "api.port", result)
	if data.Port == gamePort {
		result.AddError("api.port", "port conflict detected: api and game ports must differ")
	}
}

func validateHealth(data *HealthConfig, result *ValidationResult) {
	if data.CheckInterval < 0 {
		result.AddError("health.check_interval_sec", "must not be negative")
	}
	if data.HeartbeatInterval < 0 {
		result.AddError("health.heartbeat_interval_sec", "must not be negative")
	}
	if data.IdleTimeout < 0 {
		result.AddError("health.idle_timeout_sec", "must not be negative")
	}
	if data.IdleTimeout > 0 && data.CheckInterval == 0 {
		result.AddWarning("health.idle_timeout_sec", "idle connections are never reaped while checks are disabled")
	}
}

func validateMQTT(data *MQTTConfig, result *ValidationResult) {
	if !data.Enabled {
		return
	}
	if strings.TrimSpace(data.BrokerURL) == "" {
		result.AddError("mqtt.broker_url", "MQTT broker URL is required when enabled")
	}
	if data.Port < 1 || data.Port > 65535 {
		result.AddError("mqtt.port", "invalid MQTT port")
	}
}

func validateLogging(data *LoggingConfig, result *ValidationResult) {
	if _, err := zerolog.ParseLevel(data.Level); err != nil {
		result.AddWarning("logging.level", fmt.Sprintf("unknown level %q, falling back to info", data.Level))
	}
	if data.File && strings.TrimSpace(data.Directory) == "" {
		result.AddError("logging.directory", "log directory is required when file logging is enabled")
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}
