package config

import (
	"time"

	"github.com/spf13/viper"
)

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
			Output: "stdout",
		},
		Server: ServerConfig{
			Listen:          ":14392",
			CookieName:      "lumauth_token",
			TokenTTL:        24 * time.Hour,
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			HostRoot:          "/",
			ResponseTimeout:   30 * time.Second,
			CacheTimeout:      10 * time.Minute,
			HashIterations:    10000,
			SuFallback:        true,
			SuTimeout:         6 * time.Second,
			SuUser:            "nobody",
			WorkerStopTimeout: 10 * time.Second,
		},
		Session: SessionConfig{
			Timeout:       30 * time.Minute,
			CleanInterval: 5 * time.Minute,
			Persistence: PersistenceConfig{
				Type: "file",
				Path: "/var/lib/lumauth/sessions.json",
				Redis: RedisConfig{
					Addr: "127.0.0.1:6379",
					Key:  "lumauth:sessions",
				},
			},
		},
		Metrics: MetricsConfig{
			Listen: ":9090",
		},
	}
}

// registerDefaults makes every key known to viper so environment variables
// override keys that are absent from the file.
func registerDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("logging.dir", d.Logging.Dir)

	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.cookie_name", d.Server.CookieName)
	v.SetDefault("server.jwt_secret", d.Server.JWTSecret)
	v.SetDefault("server.token_ttl", d.Server.TokenTTL)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("auth.host_root", d.Auth.HostRoot)
	v.SetDefault("auth.required_group", d.Auth.RequiredGroup)
	v.SetDefault("auth.response_timeout", d.Auth.ResponseTimeout)
	v.SetDefault("auth.cache_timeout", d.Auth.CacheTimeout)
	v.SetDefault("auth.hash_iterations", d.Auth.HashIterations)
	v.SetDefault("auth.su_fallback", d.Auth.SuFallback)
	v.SetDefault("auth.su_timeout", d.Auth.SuTimeout)
	v.SetDefault("auth.su_user", d.Auth.SuUser)
	v.SetDefault("auth.worker_stop_timeout", d.Auth.WorkerStopTimeout)

	v.SetDefault("session.timeout", d.Session.Timeout)
	v.SetDefault("session.clean_interval", d.Session.CleanInterval)
	v.SetDefault("session.persistence.type", d.Session.Persistence.Type)
	v.SetDefault("session.persistence.path", d.Session.Persistence.Path)
	v.SetDefault("session.persistence.redis.addr", d.Session.Persistence.Redis.Addr)
	v.SetDefault("session.persistence.redis.password", d.Session.Persistence.Redis.Password)
	v.SetDefault("session.persistence.redis.db", d.Session.Persistence.Redis.DB)
	v.SetDefault("session.persistence.redis.key", d.Session.Persistence.Redis.Key)

	v.SetDefault("privileges.user", d.Privileges.User)
	v.SetDefault("privileges.group", d.Privileges.Group)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.listen", d.Metrics.Listen)
}
