// Package store provides the key-value persistence used for player
// preferences (volume, mute, shuffle, repeat, crossfade settings). Storage
// is a convenience: every failure is swallowed so a broken backend can
// never affect playback.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/seguefm/segue/internal/logger"
)

// Store is a synchronous key-value preference store.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string)
}

// Memory is an in-process Store, also used as the fallback when no redis
// is configured.
type Memory struct {
	mu sync.RWMutex
	m  map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{m: make(map[string]string)}
}

// Get returns the stored value for key.
func (s *Memory) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok
}

// Set stores value under key.
func (s *Memory) Set(key, value string) {
	s.mu.Lock()
	s.m[key] = value
	s.mu.Unlock()
}

const redisTimeout = 500 * time.Millisecond

// Redis is a redis-backed Store. Calls use a short timeout and treat any
// error as a miss.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis creates a redis-backed store with the given key prefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// Get returns the stored value for key, or a miss on any error.
func (s *Redis) Get(key string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if err != nil {
		if err != redis.Nil {
			logger.Debug("preference get failed", logger.String("key", key), logger.Err(err))
		}
		return "", false
	}
	return v, true
}

// Set stores value under key. Errors are logged and dropped.
func (s *Redis) Set(key, value string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		logger.Debug("preference set failed", logger.String("key", key), logger.Err(err))
	}
}
