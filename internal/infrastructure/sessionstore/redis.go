package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/billing-engine/internal/usecase"
)

const keyPrefix = "checkout:session:"

type redisTokenStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisTokenStore creates a redis-backed session token store and verifies
// connectivity.
func NewRedisTokenStore(addr, password string, db int, logger *zap.Logger) (usecase.TokenStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &redisTokenStore{client: client, logger: logger}, nil
}

// NewRedisTokenStoreFromClient wraps an existing client, used by tests.
func NewRedisTokenStoreFromClient(client *redis.Client, logger *zap.Logger) usecase.TokenStore {
	return &redisTokenStore{client: client, logger: logger}
}

// Issue maps the opaque session key to the session id for the session's
// remaining lifetime.
func (s *redisTokenStore) Issue(ctx context.Context, key string, sessionID uuid.UUID, ttl time.Duration) error {
	if err := s.client.Set(ctx, keyPrefix+key, sessionID.String(), ttl).Err(); err != nil {
		s.logger.Error("Failed to store session key",
			zap.String("session_id", sessionID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to store session key: %w", err)
	}
	return nil
}

// Lookup resolves a session key to its session id. An unknown or expired key
// returns uuid.Nil with no error.
func (s *redisTokenStore) Lookup(ctx context.Context, key string) (uuid.UUID, error) {
	val, err := s.client.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, nil
	}
	if err != nil {
		s.logger.Error("Failed to look up session key", zap.Error(err))
		return uuid.Nil, fmt.Errorf("failed to look up session key: %w", err)
	}

	sessionID, err := uuid.Parse(val)
	if err != nil {
		s.logger.Warn("Malformed session id in token store", zap.String("value", val))
		return uuid.Nil, nil
	}
	return sessionID, nil
}

// Revoke removes a session key. Revoking an unknown key is not an error.
func (s *redisTokenStore) Revoke(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to revoke session key: %w", err)
	}
	return nil
}
