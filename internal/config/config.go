// Package config loads tinyrpc's server/client configuration the way the
// teacher's pkg/config loads dittofs's: viper reads a YAML file and env
// vars (TINYRPC_*) over built-in defaults (no CLI flags are bound here);
// mapstructure decodes into typed structs with a duration hook; validator enforces the
// same fail-fast struct-tag validation the teacher's adapters perform.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the top-level document: a server section, a client section,
// logging, and telemetry — mirroring the teacher's Config composing
// per-concern sub-structs.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Client    ClientConfig    `mapstructure:"client" yaml:"client"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
}

// ServerConfig carries the knobs §4.6/§6 name: listen address, worker
// count, idle eviction, and the pool/fd-table sizing the accept path
// enforces.
type ServerConfig struct {
	IP                  string        `mapstructure:"ip" validate:"required" yaml:"ip"`
	Port                uint16        `mapstructure:"port" validate:"required" yaml:"port"`
	IsIPv6              bool          `mapstructure:"is_ipv6" yaml:"is_ipv6"`
	WorkerNum           int           `mapstructure:"worker_num" validate:"required,min=1,max=32" yaml:"worker_num"`
	IdleTimeoutSeconds  int           `mapstructure:"idle_timeout_seconds" validate:"required,min=1" yaml:"idle_timeout_seconds"`
	MaxConnectionNum    int           `mapstructure:"max_connection_num" validate:"required,min=1" yaml:"max_connection_num"`
	PoolInitialCapacity int           `mapstructure:"pool_initial_capacity" validate:"required,min=1" yaml:"pool_initial_capacity"`
	MaxFDCapacity       int           `mapstructure:"max_fd_capacity" validate:"required,min=1" yaml:"max_fd_capacity"`
	IdleCheckPeriod     time.Duration `mapstructure:"idle_check_period" yaml:"idle_check_period"`
}

// ClientConfig carries the knobs §4.7 names.
type ClientConfig struct {
	IP               string        `mapstructure:"ip" validate:"required" yaml:"ip"`
	Port             uint16        `mapstructure:"port" validate:"required" yaml:"port"`
	IsIPv6           bool          `mapstructure:"is_ipv6" yaml:"is_ipv6"`
	ConnectTimeoutMS int           `mapstructure:"connect_timeout_ms" validate:"required,min=1" yaml:"connect_timeout_ms"`
	IsAsync          bool          `mapstructure:"is_async" yaml:"is_async"`
	CallTimeout      time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
}

// LoggingConfig mirrors the teacher's LoggingConfig exactly in shape.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig mirrors the teacher's TelemetryConfig, trimmed of the
// profiling sub-section this domain has no use for.
type TelemetryConfig struct {
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string  `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure   bool    `mapstructure:"insecure" yaml:"insecure"`
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`
}

// MetricsConfig mirrors the teacher's MetricsConfig.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

var validate = validator.New()

// Load reads configPath (if non-empty, else ./tinyrpc.yaml), decodes it
// over the built-in defaults, and validates the result. TINYRPC_*
// environment variables override only keys that the file itself sets;
// when no file is found the defaults are validated as they are and the
// environment is not consulted.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if found {
		if err := v.Unmarshal(cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
			return nil, fmt.Errorf("config: unmarshal: %w", err)
		}
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to path in YAML, matching the teacher's SaveConfig.
func Save(cfg *Config, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create directory: %w", err)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("TINYRPC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("tinyrpc")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("config: read file: %w", err)
	}
	return true, nil
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:                  "0.0.0.0",
			Port:                8900,
			WorkerNum:           4,
			IdleTimeoutSeconds:  60,
			MaxConnectionNum:    10240,
			PoolInitialCapacity: 256,
			MaxFDCapacity:       10240,
			IdleCheckPeriod:     5 * time.Second,
		},
		Client: ClientConfig{
			IP:               "127.0.0.1",
			Port:             8900,
			ConnectTimeoutMS: 3000,
			CallTimeout:      3 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
			Output: "stdout",
		},
		Telemetry: TelemetryConfig{
			Enabled:    false,
			Endpoint:   "localhost:4317",
			Insecure:   true,
			SampleRate: 1.0,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
		},
	}
}
