package persist

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/hnrobert/lumauth/internal/session"
)

const DefaultRedisKey = "lumauth:sessions"

// Redis stores the sessions in one hash, field per session id.
type Redis struct {
	client *redis.Client
	key    string
}

func NewRedis(client *redis.Client, key string) *Redis {
	if key == "" {
		key = DefaultRedisKey
	}
	return &Redis{client: client, key: key}
}

func (r *Redis) Load(ctx context.Context) ([]session.Session, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, err
	}
	out := make([]session.Session, 0, len(fields))
	for id, v := range fields {
		var s session.Session
		if err := json.Unmarshal([]byte(v), &s); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", id, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *Redis) Save(ctx context.Context, sessions []session.Session) error {
	values := make([]any, 0, 2*len(sessions))
	for _, s := range sessions {
		v, err := json.Marshal(s)
		if err != nil {
			return err
		}
		values = append(values, s.ID, string(v))
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key)
		if len(values) > 0 {
			pipe.HSet(ctx, r.key, values...)
		}
		return nil
	})
	return err
}

func (r *Redis) Close() error {
	return r.client.Close()
}
