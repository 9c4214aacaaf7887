package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	redisclient "github.com/redis/go-redis/v9"

	"uchef.app/cart-api/pkg/cart"
)

// CartStorage keeps cart snapshots as plain string values under cart:<owner>
type CartStorage struct {
	client *redisclient.Client
	ttl    time.Duration
}

// NewCartStorage stores records with the given expiry; zero keeps them forever
func NewCartStorage(client *redisclient.Client, ttl time.Duration) *CartStorage {
	return &CartStorage{client: client, ttl: ttl}
}

func (s *CartStorage) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redisclient.Nil) {
		return nil, cart.ErrNoRecord
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s from Redis: %w", key, err)
	}
	return data, nil
}

func (s *CartStorage) Save(ctx context.Context, key string, data []byte) error {
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save %s to Redis: %w", key, err)
	}
	return nil
}

func (s *CartStorage) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete %s from Redis: %w", key, err)
	}
	return nil
}

func (s *CartStorage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *CartStorage) Close() error {
	return s.client.Close()
}
