// Package store provides the key-based persistent store that backs the
// crawl frontier, the visited set and the batch cache.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Collections used by the crawler.
const (
	CollectionFoundURLs   = "found_urls"
	CollectionVisitedURLs = "visited_urls"
	CollectionScreenshots = "screenshots"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// Document is a stored record. Key is unique within a collection.
type Document struct {
	Key       string
	Body      []byte
	CreatedAt time.Time
}

// Store is a key-based document store. Every backend keeps insertion order
// per collection: a new key is appended, an upsert of an existing key keeps
// its position.
type Store interface {
	// Upsert inserts or replaces the document with doc.Key.
	Upsert(ctx context.Context, collection string, doc Document) error
	// Delete removes a document. Deleting a missing key is not an error.
	Delete(ctx context.Context, collection, key string) error
	// FindOne returns the document with key, or ErrNotFound.
	FindOne(ctx context.Context, collection, key string) (*Document, error)
	// Last returns the most recently inserted document, or ErrNotFound.
	Last(ctx context.Context, collection string) (*Document, error)
	// Keys returns up to limit keys in insertion order.
	Keys(ctx context.Context, collection string, limit int) ([]string, error)
	// Count returns the number of documents in a collection.
	Count(ctx context.Context, collection string) (int, error)
	// Close releases the backend.
	Close() error
}

// Backend names.
const (
	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config selects and configures a backend.
type Config struct {
	Backend string      `yaml:"backend" json:"backend"`
	Path    string      `yaml:"path" json:"path"` // database file for bolt and sqlite
	Redis   RedisConfig `yaml:"redis" json:"redis"`
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Address  string `yaml:"address" json:"address"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	Prefix   string `yaml:"prefix" json:"prefix"` // key namespace, usually the site host
}

// Open opens the configured backend.
func Open(cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendBolt, "":
		return NewBoltStore(cfg.Path)
	case BackendSQLite:
		return NewSQLiteStore(cfg.Path)
	case BackendRedis:
		return NewRedisStore(cfg.Redis)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// Drain deletes every document of a collection by repeatedly fetching a
// page of keys and deleting them until none remain. It returns the number
// of deleted documents.
func Drain(ctx context.Context, s Store, collection string, pageSize int) (int, error) {
	if pageSize <= 0 {
		pageSize = 500
	}

	deleted := 0
	for {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}

		keys, err := s.Keys(ctx, collection, pageSize)
		if err != nil {
			return deleted, err
		}
		if len(keys) == 0 {
			return deleted, nil
		}

		for _, key := range keys {
			if err := s.Delete(ctx, collection, key); err != nil {
				return deleted, err
			}
			deleted++
		}
	}
}
