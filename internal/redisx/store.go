package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KV is a per-id JSON document store. Session state, checkout progress and
// caches all go through it.
type KV[T any] interface {
	Load(ctx context.Context, id string) (T, bool, error)
	Save(ctx context.Context, id string, v T) error
	Delete(ctx context.Context, id string) error
}

type Store[T any] struct {
	rdb    redis.Cmdable
	keyFmt string
	ttl    time.Duration
}

func NewStore[T any](rdb redis.Cmdable, keyFmt string, ttl time.Duration) *Store[T] {
	return &Store[T]{rdb: rdb, keyFmt: keyFmt, ttl: ttl}
}

func (s *Store[T]) Key(id string) string { return fmt.Sprintf(s.keyFmt, id) }

func (s *Store[T]) Load(ctx context.Context, id string) (T, bool, error) {
	var v T
	found, err := GetJSON(ctx, s.rdb, s.Key(id), &v)
	return v, found, err
}

func (s *Store[T]) Save(ctx context.Context, id string, v T) error {
	return SetJSON(ctx, s.rdb, s.Key(id), v, s.ttl)
}

func (s *Store[T]) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, s.Key(id)).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", s.Key(id), err)
	}
	return nil
}
