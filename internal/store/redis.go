package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	crawlerrors "github.com/PentesterFlow/sitecrawl/internal/errors"
)

// ErrEmptyAddress is returned when Redis address is not configured.
var ErrEmptyAddress = errors.New("redis address is required")

// connectionTimeout is the timeout for verifying Redis connection.
const connectionTimeout = 5 * time.Second

type redisRecord struct {
	Body      []byte    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// RedisStore implements Store on Redis. Each collection is a hash of
// documents plus a sorted set ordering keys by insertion sequence.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "sitecrawl"
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) docsKey(collection string) string {
	return s.prefix + ":" + collection + ":docs"
}

func (s *RedisStore) orderKey(collection string) string {
	return s.prefix + ":" + collection + ":order"
}

func (s *RedisStore) seqKey(collection string) string {
	return s.prefix + ":" + collection + ":seq"
}

// Upsert inserts or replaces a document. ZAddNX keeps the position of an
// existing key.
func (s *RedisStore) Upsert(ctx context.Context, collection string, doc Document) error {
	data, err := json.Marshal(redisRecord{Body: doc.Body, CreatedAt: doc.CreatedAt})
	if err != nil {
		return crawlerrors.NewPersistenceError("upsert", collection, err)
	}

	seq, err := s.client.Incr(ctx, s.seqKey(collection)).Result()
	if err != nil {
		return crawlerrors.NewPersistenceError("upsert", collection, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.docsKey(collection), doc.Key, data)
		pipe.ZAddNX(ctx, s.orderKey(collection), redis.Z{Score: float64(seq), Member: doc.Key})
		return nil
	})
	if err != nil {
		return crawlerrors.NewPersistenceError("upsert", collection, err)
	}
	return nil
}

// Delete removes a document.
func (s *RedisStore) Delete(ctx context.Context, collection, key string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, s.docsKey(collection), key)
		pipe.ZRem(ctx, s.orderKey(collection), key)
		return nil
	})
	if err != nil {
		return crawlerrors.NewPersistenceError("delete", collection, err)
	}
	return nil
}

// FindOne returns the document with key.
func (s *RedisStore) FindOne(ctx context.Context, collection, key string) (*Document, error) {
	data, err := s.client.HGet(ctx, s.docsKey(collection), key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, crawlerrors.NewPersistenceError("find", collection, err)
	}

	var rec redisRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, crawlerrors.NewPersistenceError("find", collection, err)
	}
	return &Document{Key: key, Body: rec.Body, CreatedAt: rec.CreatedAt}, nil
}

// Last returns the most recently inserted document.
func (s *RedisStore) Last(ctx context.Context, collection string) (*Document, error) {
	keys, err := s.client.ZRevRange(ctx, s.orderKey(collection), 0, 0).Result()
	if err != nil {
		return nil, crawlerrors.NewPersistenceError("last", collection, err)
	}
	if len(keys) == 0 {
		return nil, ErrNotFound
	}
	return s.FindOne(ctx, collection, keys[0])
}

// Keys returns up to limit keys in insertion order.
func (s *RedisStore) Keys(ctx context.Context, collection string, limit int) ([]string, error) {
	stop := int64(limit) - 1
	if limit <= 0 {
		stop = -1
	}

	keys, err := s.client.ZRange(ctx, s.orderKey(collection), 0, stop).Result()
	if err != nil {
		return nil, crawlerrors.NewPersistenceError("keys", collection, err)
	}
	return keys, nil
}

// Count returns the number of documents in a collection.
func (s *RedisStore) Count(ctx context.Context, collection string) (int, error) {
	n, err := s.client.ZCard(ctx, s.orderKey(collection)).Result()
	if err != nil {
		return 0, crawlerrors.NewPersistenceError("count", collection, err)
	}
	return int(n), nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
