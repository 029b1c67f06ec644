// Package config loads the lumauthd configuration.
//
// Sources, highest precedence first:
//  1. Environment variables (LUMAUTH_*, e.g. LUMAUTH_AUTH_CACHE_TIMEOUT=5m)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/hnrobert/lumauth/internal/hostfs"
)

const (
	DefaultPath = "/etc/lumauth/config.yaml"
	EnvPrefix   = "LUMAUTH"
)

type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Auth       AuthConfig       `mapstructure:"auth" yaml:"auth"`
	Session    SessionConfig    `mapstructure:"session" yaml:"session"`
	Privileges PrivilegesConfig `mapstructure:"privileges" yaml:"privileges"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
}

type LoggingConfig struct {
	// Level is DEBUG, INFO, WARN or ERROR.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR" yaml:"level"`
	// Format is text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	// Output is stdout, stderr or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
	// Dir additionally writes daily files to <dir>/logs/YYYY-MM-DD.log.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

type ServerConfig struct {
	Listen     string `mapstructure:"listen" validate:"required" yaml:"listen"`
	CookieName string `mapstructure:"cookie_name" validate:"required" yaml:"cookie_name"`
	// JWTSecret signs session cookies. Empty means a random secret per
	// start, which logs everybody out on restart.
	JWTSecret       string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	TokenTTL        time.Duration `mapstructure:"token_ttl" validate:"gt=0" yaml:"token_ttl"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0" yaml:"shutdown_timeout"`
}

type AuthConfig struct {
	// HostRoot is where the host filesystem is visible, "/host" in a
	// container.
	HostRoot string `mapstructure:"host_root" validate:"required" yaml:"host_root"`
	// RequiredGroup restricts logins to members of this group.
	RequiredGroup   string        `mapstructure:"required_group" yaml:"required_group"`
	ResponseTimeout time.Duration `mapstructure:"response_timeout" validate:"gt=0" yaml:"response_timeout"`
	CacheTimeout    time.Duration `mapstructure:"cache_timeout" validate:"gte=0" yaml:"cache_timeout"`
	HashIterations  int           `mapstructure:"hash_iterations" validate:"gte=1000" yaml:"hash_iterations"`
	SuFallback      bool          `mapstructure:"su_fallback" yaml:"su_fallback"`
	SuTimeout       time.Duration `mapstructure:"su_timeout" validate:"gt=0" yaml:"su_timeout"`
	// SuUser is the unprivileged account su(1) runs as inside the worker.
	SuUser            string        `mapstructure:"su_user" yaml:"su_user"`
	WorkerStopTimeout time.Duration `mapstructure:"worker_stop_timeout" validate:"gt=0" yaml:"worker_stop_timeout"`
}

type SessionConfig struct {
	Timeout       time.Duration     `mapstructure:"timeout" validate:"gt=0" yaml:"timeout"`
	CleanInterval time.Duration     `mapstructure:"clean_interval" validate:"gte=0" yaml:"clean_interval"`
	Persistence   PersistenceConfig `mapstructure:"persistence" yaml:"persistence"`
}

type PersistenceConfig struct {
	Type  string      `mapstructure:"type" validate:"required,oneof=none file badger redis sqlite" yaml:"type"`
	Path  string      `mapstructure:"path" yaml:"path"`
	Redis RedisConfig `mapstructure:"redis" yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0" yaml:"db"`
	Key      string `mapstructure:"key" yaml:"key"`
}

// PrivilegesConfig names the account the server runs as after spawning the
// worker. Empty User keeps the current identity.
type PrivilegesConfig struct {
	User  string `mapstructure:"user" yaml:"user"`
	Group string `mapstructure:"group" yaml:"group"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
}

// Load reads path (DefaultPath when empty). A missing file is not an error:
// defaults and environment still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setupViper(v, path)
	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	normalize(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Save writes cfg as YAML, readable by its owner only.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := hostfs.WriteFileAtomic(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.Server.JWTSecret != "" {
		c.Server.JWTSecret = "<redacted>"
	}
	if c.Session.Persistence.Redis.Password != "" {
		c.Session.Persistence.Redis.Password = "<redacted>"
	}
	return c
}

func setupViper(v *viper.Viper, path string) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	registerDefaults(v, Default())

	if path == "" {
		path = DefaultPath
	}
	v.SetConfigFile(path)
	if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext == "" {
		v.SetConfigType("yaml")
	}
}

// readConfigFile reports whether a config file was read.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

func normalize(cfg *Config) {
	cfg.Logging.Level = strings.ToUpper(strings.TrimSpace(cfg.Logging.Level))
	if cfg.Logging.Level == "WARNING" {
		cfg.Logging.Level = "WARN"
	}
	cfg.Logging.Format = strings.ToLower(strings.TrimSpace(cfg.Logging.Format))
	cfg.Session.Persistence.Type = strings.ToLower(strings.TrimSpace(cfg.Session.Persistence.Type))
}

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook accepts "30s", "5m" and plain numbers of nanoseconds.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
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
