//-------------------------------------------------------------------------
//
// Evidentiary Server
//
// Copyright (c) 2026, The Evidentiary Authors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/evidentiary/evidentiary-server/internal/config"
)

const redisKeyPrefix = "evidentiary:checkpoint:"

// RedisStore persists checkpoints in Redis so conversations survive
// process restarts and can resume on any server instance.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store and verifies connectivity.
func NewRedisStore(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisStore{
		client: client,
		ttl:    time.Duration(cfg.TTLSeconds) * time.Second,
	}, nil
}

// Save persists the state blob, refreshing the configured TTL.
func (s *RedisStore) Save(ctx context.Context, conversationID string, state []byte) error {
	if err := s.client.Set(ctx, redisKeyPrefix+conversationID, state, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Load returns the last saved state blob for a conversation.
func (s *RedisStore) Load(ctx context.Context, conversationID string) ([]byte, error) {
	state, err := s.client.Get(ctx, redisKeyPrefix+conversationID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return state, nil
}

// Delete removes a conversation's checkpoint.
func (s *RedisStore) Delete(ctx context.Context, conversationID string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+conversationID).Err(); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Close releases the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
