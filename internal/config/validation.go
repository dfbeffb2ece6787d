package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"yqhp/freq-engine/pkg/logger"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration values.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

func (v *Validator) addError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

// Validate validates the entire configuration and returns all problems at once.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = make(ValidationErrors, 0)

	v.validateMasterConfig(&cfg.Master)
	v.validateSlaveConfig(&cfg.Slave)
	v.validateClientConfig(&cfg.Client)
	v.validateLoggingConfig(&cfg.Logging)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) validateMasterConfig(cfg *MasterConfig) {
	v.requireAddress("master.client_address", cfg.ClientAddress)
	v.requireAddress("master.slave_address", cfg.SlaveAddress)
	if cfg.StatusAddress != "" && !isValidAddress(cfg.StatusAddress) {
		v.addError("master.status_address", "invalid address format, expected host:port or :port")
	}

	if cfg.ClientAddress != "" && cfg.ClientAddress == cfg.SlaveAddress {
		v.addError("master.slave_address", "client and slave endpoints must use different addresses")
	}

	if cfg.TaskTimeout <= 0 {
		v.addError("master.task_timeout", "task timeout must be positive")
	}
	if cfg.LivenessInterval <= 0 {
		v.addError("master.liveness_interval", "liveness interval must be positive")
	} else if cfg.LivenessInterval < 10*time.Millisecond {
		v.addError("master.liveness_interval", "liveness interval should be at least 10ms")
	}
	if cfg.AcceptBackoff < 0 {
		v.addError("master.accept_backoff", "accept backoff must be non-negative")
	}
}

func (v *Validator) validateSlaveConfig(cfg *SlaveConfig) {
	v.requireAddress("slave.master_addr", cfg.MasterAddr)
	if cfg.DialTimeout < 0 {
		v.addError("slave.dial_timeout", "dial timeout must be non-negative")
	}
}

func (v *Validator) validateClientConfig(cfg *ClientConfig) {
	v.requireAddress("client.master_addr", cfg.MasterAddr)
	if cfg.DialTimeout < 0 {
		v.addError("client.dial_timeout", "dial timeout must be non-negative")
	}
	if cfg.ResponseTimeout < 0 {
		v.addError("client.response_timeout", "response timeout must be non-negative")
	}
}

func (v *Validator) validateLoggingConfig(cfg *logger.Config) {
	if _, err := logger.ParseLevel(cfg.Level); err != nil {
		v.addError("logging.level", fmt.Sprintf("invalid log level '%s', must be one of: debug, info, warn, error", cfg.Level))
	}

	switch strings.ToLower(cfg.Format) {
	case "", "json", "console":
	default:
		v.addError("logging.format", fmt.Sprintf("invalid log format '%s', must be one of: json, console", cfg.Format))
	}

	switch strings.ToLower(cfg.Output) {
	case "", "stdout", "stderr":
	case "file", "both":
		if cfg.FilePath == "" {
			v.addError("logging.file_path", "file path is required when output includes a file")
		}
	default:
		v.addError("logging.output", fmt.Sprintf("invalid log output '%s', must be one of: stdout, stderr, file, both", cfg.Output))
	}
}

func (v *Validator) requireAddress(field, addr string) {
	if addr == "" {
		v.addError(field, "address is required")
	} else if !isValidAddress(addr) {
		v.addError(field, "invalid address format, expected host:port or :port")
	}
}

// isValidAddress checks if the address is a valid host:port format.
func isValidAddress(addr string) bool {
	if addr == "" {
		return false
	}

	// Handle :port format
	if strings.HasPrefix(addr, ":") {
		port := strings.TrimPrefix(addr, ":")
		if port == "" {
			return false
		}
		_, err := net.LookupPort("tcp", port)
		return err == nil
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil || port == "" {
		return false
	}
	if _, err := net.LookupPort("tcp", port); err != nil {
		return false
	}

	if host != "" && net.ParseIP(host) == nil && !isValidHostname(host) {
		return false
	}
	return true
}

// isValidHostname performs basic hostname validation.
func isValidHostname(hostname string) bool {
	if len(hostname) == 0 || len(hostname) > 253 {
		return false
	}

	for _, label := range strings.Split(hostname, ".") {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		// Labels must start and end with alphanumeric
		if !isAlphanumeric(label[0]) || !isAlphanumeric(label[len(label)-1]) {
			return false
		}
		for _, c := range label {
			if !isAlphanumeric(byte(c)) && c != '-' {
				return false
			}
		}
	}

	return true
}

func isAlphanumeric(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	return NewValidator().Validate(c)
}

// LoadAndValidate loads configuration from a file and validates it.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
