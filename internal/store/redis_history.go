package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Harshitk-cp/credence/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	bookmarkKeyPrefix = "credence:bookmark:"
	processedSetKey   = "credence:processed"
)

// RedisHistoryStore keeps the processing ledger in Redis: a hash per source
// bookmark and one set of processed content hashes. Useful when the analyze
// path should not touch Postgres at all.
type RedisHistoryStore struct {
	rdb *redis.Client
}

func NewRedisHistoryStore(redisURL string) (*RedisHistoryStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisHistoryStore{rdb: rdb}, nil
}

func (s *RedisHistoryStore) GetLastBookmark(ctx context.Context, sourceID string) (*domain.Bookmark, error) {
	fields, err := s.rdb.HGetAll(ctx, bookmarkKeyPrefix+sourceID).Result()
	if err != nil {
		return nil, fmt.Errorf("get bookmark: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	b := &domain.Bookmark{SourceID: sourceID}
	if _, err := fmt.Sscanf(fields["last_index"], "%d", &b.LastIndex); err != nil {
		return nil, fmt.Errorf("parse bookmark index: %w", err)
	}
	if at, err := time.Parse(time.RFC3339Nano, fields["processed_at"]); err == nil {
		b.ProcessedAt = at
	}
	return b, nil
}

func (s *RedisHistoryStore) IsProcessed(ctx context.Context, contentHash string) (bool, error) {
	member, err := s.rdb.SIsMember(ctx, processedSetKey, contentHash).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("check processed hash: %w", err)
	}
	return member, nil
}

func (s *RedisHistoryStore) RecordProcessed(ctx context.Context, record *domain.ProcessedWindow) error {
	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, processedSetKey, record.ContentHash)
	pipe.HSet(ctx, bookmarkKeyPrefix+record.SourceID,
		"last_index", record.EndIndex,
		"processed_at", record.ProcessedAt.Format(time.RFC3339Nano),
	)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record processed window: %w", err)
	}
	return nil
}

func (s *RedisHistoryStore) Close() error {
	return s.rdb.Close()
}
