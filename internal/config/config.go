package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"yqhp/freq-engine/pkg/logger"
)

// Config represents the complete configuration for freq-engine.
type Config struct {
	Master  MasterConfig  `yaml:"master"`
	Slave   SlaveConfig   `yaml:"slave"`
	Client  ClientConfig  `yaml:"client"`
	Logging logger.Config `yaml:"logging"`
}

// MasterConfig holds master node configuration.
type MasterConfig struct {
	ClientAddress    string        `yaml:"client_address" env:"FE_MASTER_CLIENT_ADDRESS"`
	SlaveAddress     string        `yaml:"slave_address" env:"FE_MASTER_SLAVE_ADDRESS"`
	StatusAddress    string        `yaml:"status_address" env:"FE_MASTER_STATUS_ADDRESS"` // empty disables the status API
	TaskTimeout      time.Duration `yaml:"task_timeout" env:"FE_MASTER_TASK_TIMEOUT"`
	LivenessInterval time.Duration `yaml:"liveness_interval" env:"FE_MASTER_LIVENESS_INTERVAL"`
	AcceptBackoff    time.Duration `yaml:"accept_backoff" env:"FE_MASTER_ACCEPT_BACKOFF"`
}

// SlaveConfig holds slave node configuration.
type SlaveConfig struct {
	MasterAddr  string        `yaml:"master_addr" env:"FE_SLAVE_MASTER_ADDR"`
	DialTimeout time.Duration `yaml:"dial_timeout" env:"FE_SLAVE_DIAL_TIMEOUT"`
}

// ClientConfig holds submit client configuration.
type ClientConfig struct {
	MasterAddr      string        `yaml:"master_addr" env:"FE_CLIENT_MASTER_ADDR"`
	DialTimeout     time.Duration `yaml:"dial_timeout" env:"FE_CLIENT_DIAL_TIMEOUT"`
	ResponseTimeout time.Duration `yaml:"response_timeout" env:"FE_CLIENT_RESPONSE_TIMEOUT"` // 0 waits forever
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Master: MasterConfig{
			ClientAddress:    ":5000",
			SlaveAddress:     ":5001",
			StatusAddress:    ":8080",
			TaskTimeout:      10 * time.Second,
			LivenessInterval: time.Second,
			AcceptBackoff:    100 * time.Millisecond,
		},
		Slave: SlaveConfig{
			MasterAddr:  "localhost:5001",
			DialTimeout: 5 * time.Second,
		},
		Client: ClientConfig{
			MasterAddr:      "localhost:5000",
			DialTimeout:     5 * time.Second,
			ResponseTimeout: 0,
		},
		Logging: *logger.DefaultConfig(),
	}
}

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	envPrefix  string
	cmdArgs    map[string]string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPrefix: "FE_",
		cmdArgs:   make(map[string]string),
	}
}

// WithConfigPath sets the path to the YAML configuration file.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithCmdArgs sets dot-path overrides such as "master.task_timeout" -> "5s".
func (l *Loader) WithCmdArgs(args map[string]string) *Loader {
	l.cmdArgs = args
	return l
}

// Load loads configuration from all sources with proper precedence:
// defaults < YAML file < environment variables < command-line flags
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := l.applyEnvToStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	if err := l.applyCmdOverrides(cfg); err != nil {
		return nil, fmt.Errorf("apply flag overrides: %w", err)
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File doesn't exist, use defaults
		}
		return fmt.Errorf("read %s: %w", l.configPath, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", l.configPath, err)
	}
	return nil
}

// applyEnvToStruct recursively applies environment variables to struct fields.
// Only variables carrying the loader's prefix are consulted.
func (l *Loader) applyEnvToStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// time.Duration is an int64, so only real structs recurse
		if field.Kind() == reflect.Struct {
			if err := l.applyEnvToStruct(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || !strings.HasPrefix(envTag, l.envPrefix) {
			continue
		}

		envValue := os.Getenv(envTag)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("%s: %w", envTag, err)
		}
	}

	return nil
}

func (l *Loader) applyCmdOverrides(cfg *Config) error {
	for key, value := range l.cmdArgs {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a configuration value by its dot-notation YAML path.
func setConfigValue(cfg *Config, path, value string) error {
	parts := strings.Split(path, ".")
	v := reflect.ValueOf(cfg).Elem()

	for i, part := range parts {
		field, ok := fieldByYAMLName(v, part)
		if !ok {
			return fmt.Errorf("unknown config path: %s", path)
		}

		if i == len(parts)-1 {
			return setFieldValue(field, value)
		}

		if field.Kind() != reflect.Struct {
			return fmt.Errorf("expected %s to be a section, got %s", part, field.Kind())
		}
		v = field
	}

	return nil
}

func fieldByYAMLName(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag, _, _ := strings.Cut(t.Field(i).Tag.Get("yaml"), ",")
		if tag == name || strings.EqualFold(t.Field(i).Name, name) {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// setFieldValue sets a reflect.Value from a string value.
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return fmt.Errorf("field cannot be set")
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Serialize serializes the configuration to YAML bytes.
func (c *Config) Serialize() ([]byte, error) {
	return yaml.Marshal(c)
}

// ParseConfig parses a YAML configuration from bytes on top of the defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file path.
func LoadFromFile(path string) (*Config, error) {
	return NewLoader().WithConfigPath(path).Load()
}
