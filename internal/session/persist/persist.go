// Package persist provides the session persistence backends: a JSON or
// YAML file, badger, redis and sqlite. Each one stores the full session set
// and replaces it as a whole on Save.
package persist

import (
	"context"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"

	"github.com/hnrobert/lumauth/internal/session"
)

const (
	TypeNone   = "none"
	TypeFile   = "file"
	TypeBadger = "badger"
	TypeRedis  = "redis"
	TypeSQLite = "sqlite"
)

// Backend is a session.Persistence that holds resources until closed.
type Backend interface {
	session.Persistence
	io.Closer
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

type Config struct {
	Type string
	// Path is the file for "file" and "sqlite" and the directory for
	// "badger".
	Path  string
	Redis RedisConfig
}

// Open returns the backend cfg names.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Type {
	case TypeNone, "":
		return None{}, nil
	case TypeFile:
		return NewFile(cfg.Path), nil
	case TypeBadger:
		return OpenBadger(cfg.Path)
	case TypeSQLite:
		return OpenSQLite(cfg.Path)
	case TypeRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect to redis %s: %w", cfg.Redis.Addr, err)
		}
		return NewRedis(client, cfg.Redis.Key), nil
	default:
		return nil, fmt.Errorf("unsupported session persistence type: %s", cfg.Type)
	}
}

// None keeps nothing across restarts.
type None struct{}

func (None) Load(context.Context) ([]session.Session, error) { return nil, nil }
func (None) Save(context.Context, []session.Session) error   { return nil }
func (None) Close() error                                    { return nil }
