package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the pair in Redis so several agent replicas share one session.
// Keys are "<prefix>token" and "<prefix>refreshToken".
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing client. An empty prefix defaults to "backoffice:session:".
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "backoffice:session:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(name string) string {
	return s.prefix + name
}

func (s *RedisStore) Get(ctx context.Context) (Credentials, error) {
	vals, err := s.client.MGet(ctx, s.key(AccessTokenKey), s.key(RefreshTokenKey)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Credentials{}, fmt.Errorf("session: redis get: %w", err)
	}

	var creds Credentials
	if len(vals) == 2 {
		creds.AccessToken, _ = vals[0].(string)
		creds.RefreshToken, _ = vals[1].(string)
	}
	return creds, nil
}

func (s *RedisStore) Set(ctx context.Context, creds Credentials) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if creds.AccessToken == "" {
			p.Del(ctx, s.key(AccessTokenKey))
		} else {
			p.Set(ctx, s.key(AccessTokenKey), creds.AccessToken, 0)
		}
		if creds.RefreshToken == "" {
			p.Del(ctx, s.key(RefreshTokenKey))
		} else {
			p.Set(ctx, s.key(RefreshTokenKey), creds.RefreshToken, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("session: redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key(AccessTokenKey), s.key(RefreshTokenKey)).Err(); err != nil {
		return fmt.Errorf("session: redis clear: %w", err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
