package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	crawlerrors "github.com/PentesterFlow/sitecrawl/internal/errors"
)

// seqSuffix names the per-collection index bucket mapping the big-endian
// insertion sequence to the document key.
const seqSuffix = ".seq"

type boltRecord struct {
	Seq       uint64    `json:"seq"`
	Body      []byte    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db   *bolt.DB
	path string
}

// NewBoltStore creates a new BoltDB-backed store.
func NewBoltStore(path string) (*BoltStore, error) {
	if path == "" {
		return nil, fmt.Errorf("bolt store requires a path")
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{CollectionFoundURLs, CollectionVisitedURLs, CollectionScreenshots} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
			if _, err := tx.CreateBucketIfNotExists([]byte(name + seqSuffix)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BoltStore{db: db, path: path}, nil
}

func seqKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

func buckets(tx *bolt.Tx, collection string, create bool) (docs, index *bolt.Bucket, err error) {
	if create {
		if docs, err = tx.CreateBucketIfNotExists([]byte(collection)); err != nil {
			return nil, nil, err
		}
		if index, err = tx.CreateBucketIfNotExists([]byte(collection + seqSuffix)); err != nil {
			return nil, nil, err
		}
		return docs, index, nil
	}
	return tx.Bucket([]byte(collection)), tx.Bucket([]byte(collection + seqSuffix)), nil
}

// Upsert inserts or replaces a document.
func (s *BoltStore) Upsert(ctx context.Context, collection string, doc Document) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		docs, index, err := buckets(tx, collection, true)
		if err != nil {
			return err
		}

		rec := boltRecord{Body: doc.Body, CreatedAt: doc.CreatedAt}
		if existing := docs.Get([]byte(doc.Key)); existing != nil {
			var old boltRecord
			if err := json.Unmarshal(existing, &old); err != nil {
				return err
			}
			rec.Seq = old.Seq
		} else {
			seq, err := docs.NextSequence()
			if err != nil {
				return err
			}
			rec.Seq = seq
			if err := index.Put(seqKey(seq), []byte(doc.Key)); err != nil {
				return err
			}
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return docs.Put([]byte(doc.Key), data)
	})
	if err != nil {
		return crawlerrors.NewPersistenceError("upsert", collection, err)
	}
	return nil
}

// Delete removes a document.
func (s *BoltStore) Delete(ctx context.Context, collection, key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		docs, index, _ := buckets(tx, collection, false)
		if docs == nil {
			return nil
		}

		data := docs.Get([]byte(key))
		if data == nil {
			return nil
		}

		var rec boltRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		if index != nil {
			if err := index.Delete(seqKey(rec.Seq)); err != nil {
				return err
			}
		}
		return docs.Delete([]byte(key))
	})
	if err != nil {
		return crawlerrors.NewPersistenceError("delete", collection, err)
	}
	return nil
}

// FindOne returns the document with key.
func (s *BoltStore) FindOne(ctx context.Context, collection, key string) (*Document, error) {
	var doc *Document

	err := s.db.View(func(tx *bolt.Tx) error {
		docs, _, _ := buckets(tx, collection, false)
		if docs == nil {
			return nil
		}
		data := docs.Get([]byte(key))
		if data == nil {
			return nil // Not found, but not an error
		}

		var rec boltRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		doc = &Document{Key: key, Body: rec.Body, CreatedAt: rec.CreatedAt}
		return nil
	})
	if err != nil {
		return nil, crawlerrors.NewPersistenceError("find", collection, err)
	}
	if doc == nil {
		return nil, ErrNotFound
	}
	return doc, nil
}

// Last returns the most recently inserted document.
func (s *BoltStore) Last(ctx context.Context, collection string) (*Document, error) {
	var key string

	err := s.db.View(func(tx *bolt.Tx) error {
		_, index, _ := buckets(tx, collection, false)
		if index == nil {
			return nil
		}
		_, v := index.Cursor().Last()
		if v != nil {
			key = string(v)
		}
		return nil
	})
	if err != nil {
		return nil, crawlerrors.NewPersistenceError("last", collection, err)
	}
	if key == "" {
		return nil, ErrNotFound
	}
	return s.FindOne(ctx, collection, key)
}

// Keys returns up to limit keys in insertion order.
func (s *BoltStore) Keys(ctx context.Context, collection string, limit int) ([]string, error) {
	var keys []string

	err := s.db.View(func(tx *bolt.Tx) error {
		_, index, _ := buckets(tx, collection, false)
		if index == nil {
			return nil
		}
		c := index.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if limit > 0 && len(keys) >= limit {
				break
			}
			keys = append(keys, string(v))
		}
		return nil
	})
	if err != nil {
		return nil, crawlerrors.NewPersistenceError("keys", collection, err)
	}
	return keys, nil
}

// Count returns the number of documents in a collection.
func (s *BoltStore) Count(ctx context.Context, collection string) (int, error) {
	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		docs, _, _ := buckets(tx, collection, false)
		if docs == nil {
			return nil
		}
		n = docs.Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, crawlerrors.NewPersistenceError("count", collection, err)
	}
	return n, nil
}

// Path returns the database file path.
func (s *BoltStore) Path() string {
	return s.path
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
