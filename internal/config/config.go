// Package config loads supervisor settings from config.yaml, SUPERVISOR_*
// environment variables and bound command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/t77yq/script-supervisor/internal/model"
)

// Config holds every supervisor setting
type Config struct {
	App     AppConfig
	Log     LogConfig
	Runner  RunnerConfig
	Viewer  ViewerConfig
	History HistoryConfig
	NATS    NATSConfig
	Server  ServerConfig
}

type AppConfig struct {
	Name string
	Env  string
}

type LogConfig struct {
	File    string
	Level   model.Level
	MaxSize int64
}

type RunnerConfig struct {
	Interpreter     string
	InterpreterArgs []string
	Timeout         time.Duration
}

type ViewerConfig struct {
	Interval time.Duration
}

type HistoryConfig struct {
	Path            string // empty disables history
	Retention       time.Duration
	CleanupSchedule string
}

type NATSConfig struct {
	URL           string // empty disables result events
	SubjectPrefix string
}

type ServerConfig struct {
	Addr string
}

// SetDefaults registers default values on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "script-supervisor")
	v.SetDefault("app.env", "development")
	v.SetDefault("log.file", "debug.log")
	v.SetDefault("log.level", "DEBUG")
	v.SetDefault("log.max_size", 0)
	v.SetDefault("runner.interpreter", "python3")
	v.SetDefault("runner.interpreter_args", []string{})
	v.SetDefault("runner.timeout", 0)
	v.SetDefault("viewer.interval", time.Second)
	v.SetDefault("history.path", "history.db")
	v.SetDefault("history.retention", 30*24*time.Hour)
	v.SetDefault("history.cleanup_schedule", "@daily")
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", "script.result")
	v.SetDefault("server.addr", "127.0.0.1:8080")
}

// NewViper returns a viper instance with defaults, env binding and the
// config search path set up. configFile overrides the search when set.
func NewViper(configFile string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("SUPERVISOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}
	return v
}

// Load reads the config file if present and decodes all settings. A
// missing file is not an error when no explicit file was requested.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	level, err := model.ParseLevel(v.GetString("log.level"))
	if err != nil {
		return nil, fmt.Errorf("invalid log.level: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		Log: LogConfig{
			File:    v.GetString("log.file"),
			Level:   level,
			MaxSize: v.GetInt64("log.max_size"),
		},
		Runner: RunnerConfig{
			Interpreter:     v.GetString("runner.interpreter"),
			InterpreterArgs: v.GetStringSlice("runner.interpreter_args"),
			Timeout:         v.GetDuration("runner.timeout"),
		},
		Viewer: ViewerConfig{
			Interval: v.GetDuration("viewer.interval"),
		},
		History: HistoryConfig{
			Path:            v.GetString("history.path"),
			Retention:       v.GetDuration("history.retention"),
			CleanupSchedule: v.GetString("history.cleanup_schedule"),
		},
		NATS: NATSConfig{
			URL:           v.GetString("nats.url"),
			SubjectPrefix: v.GetString("nats.subject_prefix"),
		},
		Server: ServerConfig{
			Addr: v.GetString("server.addr"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail later at runtime
func (c *Config) Validate() error {
	if c.Log.File == "" {
		return errors.New("log.file must be set")
	}
	if c.Log.MaxSize < 0 {
		return errors.New("log.max_size must not be negative")
	}
	if c.Runner.Timeout < 0 {
		return errors.New("runner.timeout must not be negative")
	}
	if c.Viewer.Interval <= 0 {
		return errors.New("viewer.interval must be positive")
	}
	if c.NATS.URL != "" && c.NATS.SubjectPrefix == "" {
		return errors.New("nats.subject_prefix must be set when nats.url is set")
	}
	return nil
}
