package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type TimerConfig struct {
	MaxMinutes     int `mapstructure:"max_minutes"`
	DefaultMinutes int `mapstructure:"default_minutes"` // used by the CLI when --minutes is omitted
}

type VisibilityConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	FocusApps []string `mapstructure:"focus_apps"` // WM_CLASS values that count as "visible"
}

type DistractionConfig struct {
	Threshold         int  `mapstructure:"threshold"`
	TerminateOnHidden bool `mapstructure:"terminate_on_hidden"`
}

type SuggestionConfig struct {
	Policy            string `mapstructure:"policy"` // "bucket", "score" or "random"
	ShortMinutes      int    `mapstructure:"short_minutes"`
	LongMinutes       int    `mapstructure:"long_minutes"`
	DistractThreshold int    `mapstructure:"distract_threshold"`
	Seed              int64  `mapstructure:"seed"`
}

type FeedbackConfig struct {
	Backend string `mapstructure:"backend"` // "sqlite" or "file"
	Dir     string `mapstructure:"dir"`
}

type PersistenceConfig struct {
	Mode           string `mapstructure:"mode"` // "local" or "remote"
	Endpoint       string `mapstructure:"endpoint"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type IdentityConfig struct {
	UserHeader   string `mapstructure:"user_header"`
	NameHeader   string `mapstructure:"name_header"`
	AvatarHeader string `mapstructure:"avatar_header"`
}

type Config struct {
	DatabasePath              string `mapstructure:"database_path"`
	ListenAddr                string `mapstructure:"listen_addr"` // empty disables the HTTP API
	APIKey                    string `mapstructure:"api_key"`
	MaxUsers                  int    `mapstructure:"max_users"` // cap on per-user session controllers, 0 is unlimited
	SocketPath                string `mapstructure:"socket_path"`
	LocalUser                 string `mapstructure:"local_user"`
	LogLevel                  string `mapstructure:"log_level"`
	CatalogPath               string `mapstructure:"catalog_path"`
	CollectionIntervalSeconds int    `mapstructure:"collection_interval_seconds"`

	Timer       TimerConfig       `mapstructure:"timer"`
	Visibility  VisibilityConfig  `mapstructure:"visibility"`
	Distraction DistractionConfig `mapstructure:"distraction"`
	Suggestion  SuggestionConfig  `mapstructure:"suggestion"`
	Feedback    FeedbackConfig    `mapstructure:"feedback"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Identity    IdentityConfig    `mapstructure:"identity"`
}

var ErrInvalidConfig = errors.New("invalid configuration")

func setDefaults(v *viper.Viper) {
	v.SetDefault("database_path", "focusift.db")
	v.SetDefault("listen_addr", "127.0.0.1:8425")
	v.SetDefault("api_key", "")
	v.SetDefault("max_users", 1000)
	v.SetDefault("socket_path", "/tmp/focusift.sock")
	v.SetDefault("local_user", "local")
	v.SetDefault("log_level", "info")
	v.SetDefault("catalog_path", "")
	v.SetDefault("collection_interval_seconds", 2)

	v.SetDefault("timer.max_minutes", 240)
	v.SetDefault("timer.default_minutes", 25)

	v.SetDefault("visibility.enabled", false)
	v.SetDefault("visibility.focus_apps", []string{})

	v.SetDefault("distraction.threshold", 3)
	v.SetDefault("distraction.terminate_on_hidden", false)

	v.SetDefault("suggestion.policy", "bucket")
	v.SetDefault("suggestion.short_minutes", 10)
	v.SetDefault("suggestion.long_minutes", 30)
	v.SetDefault("suggestion.distract_threshold", 3)
	v.SetDefault("suggestion.seed", 0)

	v.SetDefault("feedback.backend", "sqlite")
	v.SetDefault("feedback.dir", "")

	v.SetDefault("persistence.mode", "local")
	v.SetDefault("persistence.endpoint", "")
	v.SetDefault("persistence.api_key", "")
	v.SetDefault("persistence.timeout_seconds", 5)

	v.SetDefault("identity.user_header", "X-Forwarded-User")
	v.SetDefault("identity.name_header", "X-Forwarded-Preferred-Username")
	v.SetDefault("identity.avatar_header", "X-Forwarded-Avatar")
}

// LoadConfig reads configPath, or searches the usual locations when it is
// empty. A .env file in the working directory is loaded first so its values
// can be picked up as FOCUSIFT_* variables.
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not load .env file", "error", err)
	}

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/focusift")
		v.AddConfigPath("/etc/focusift/")
	}

	v.SetEnvPrefix("FOCUSIFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			slog.Info("config file not found, using defaults")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	slog.Debug("configuration loaded", "file", v.ConfigFileUsed(), "listen", cfg.ListenAddr, "policy", cfg.Suggestion.Policy)
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.CollectionIntervalSeconds < 1 {
		slog.Warn("collection_interval_seconds too low, setting to 1")
		c.CollectionIntervalSeconds = 1
	}
	if c.Timer.MaxMinutes < 1 {
		slog.Warn("timer.max_minutes too low, setting to 240")
		c.Timer.MaxMinutes = 240
	}
	if c.Timer.DefaultMinutes < 1 || c.Timer.DefaultMinutes > c.Timer.MaxMinutes {
		slog.Warn("timer.default_minutes out of range, setting to 25", "value", c.Timer.DefaultMinutes)
		c.Timer.DefaultMinutes = min(25, c.Timer.MaxMinutes)
	}
	if c.Distraction.Threshold < 1 {
		slog.Warn("distraction.threshold too low, setting to 3")
		c.Distraction.Threshold = 3
	}
	if c.MaxUsers < 0 {
		slog.Warn("max_users negative, setting to 0 (unlimited)")
		c.MaxUsers = 0
	}
	if c.LocalUser == "" {
		c.LocalUser = "local"
	}

	switch c.Suggestion.Policy {
	case "bucket", "score", "random":
	default:
		slog.Warn("invalid suggestion.policy, defaulting to 'bucket'", "value", c.Suggestion.Policy)
		c.Suggestion.Policy = "bucket"
	}
	if c.Suggestion.ShortMinutes < 1 || c.Suggestion.LongMinutes <= c.Suggestion.ShortMinutes {
		slog.Warn("invalid suggestion bucket bounds, using 10/30",
			"short", c.Suggestion.ShortMinutes, "long", c.Suggestion.LongMinutes)
		c.Suggestion.ShortMinutes = 10
		c.Suggestion.LongMinutes = 30
	}

	switch c.Feedback.Backend {
	case "sqlite":
	case "file":
		if c.Feedback.Dir == "" {
			return fmt.Errorf("%w: feedback.dir is required for the file backend", ErrInvalidConfig)
		}
	default:
		slog.Warn("invalid feedback.backend, defaulting to 'sqlite'", "value", c.Feedback.Backend)
		c.Feedback.Backend = "sqlite"
	}

	switch c.Persistence.Mode {
	case "local":
	case "remote":
		if c.Persistence.Endpoint == "" {
			return fmt.Errorf("%w: persistence.endpoint is required in remote mode", ErrInvalidConfig)
		}
	default:
		slog.Warn("invalid persistence.mode, defaulting to 'local'", "value", c.Persistence.Mode)
		c.Persistence.Mode = "local"
	}
	if c.Persistence.TimeoutSeconds < 1 {
		c.Persistence.TimeoutSeconds = 5
	}
	return nil
}

func (c *Config) CollectionInterval() time.Duration {
	return time.Duration(c.CollectionIntervalSeconds) * time.Second
}

func (p PersistenceConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// SlogLevel maps log_level to a slog level; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
