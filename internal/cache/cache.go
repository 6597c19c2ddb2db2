// Package cache provides Redis-backed caching for TileJSON descriptor
// lookups so repeated source reconciliation does not refetch tile metadata.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store caches the vector layer names discovered for a TileJSON URL.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New connects to Redis and verifies the connection before returning.
func New(redisURL string, ttl time.Duration) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewWithClient(client, ttl), nil
}

// NewWithClient creates a store from an existing Redis client.
func NewWithClient(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Store{
		client: client,
		prefix: "descriptor:",
		ttl:    ttl,
	}
}

func (s *Store) key(url string) string {
	return s.prefix + url
}

// Descriptor returns the cached layer names for a TileJSON URL. The bool
// reports whether the cache held an entry.
func (s *Store) Descriptor(ctx context.Context, url string) ([]string, bool, error) {
	jsonData, err := s.client.Get(ctx, s.key(url)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup descriptor: %w", err)
	}

	var layers []string
	if err := json.Unmarshal([]byte(jsonData), &layers); err != nil {
		return nil, false, fmt.Errorf("unmarshal descriptor: %w", err)
	}
	return layers, true, nil
}

// StoreDescriptor caches the layer names for a TileJSON URL.
func (s *Store) StoreDescriptor(ctx context.Context, url string, layers []string) error {
	jsonData, err := json.Marshal(layers)
	if err != nil {
		return fmt.Errorf("marshal descriptor: %w", err)
	}
	if err := s.client.Set(ctx, s.key(url), jsonData, s.ttl).Err(); err != nil {
		return fmt.Errorf("save descriptor: %w", err)
	}
	return nil
}

// Ping checks if Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
