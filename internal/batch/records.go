// Package batch accumulates cache records and writes them to the store in
// periodic, mutually exclusive flushes.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/PentesterFlow/sitecrawl/internal/store"
)

// Kind names a record variant.
type Kind string

// Record kinds.
const (
	KindFoundURL   Kind = "found_url"
	KindVisitedURL Kind = "visited_url"
	KindScreenshot Kind = "screenshot"
)

// Record is a queued cache record. The set of variants is closed.
type Record interface {
	Kind() Kind
	// Key is the record's identity within its collection.
	Key() string
	// Document encodes the record for the store.
	Document() (store.Document, error)

	record()
}

// FoundURL records a URL discovered and pushed to the frontier.
type FoundURL struct {
	URL     string    `json:"url"`
	FoundAt time.Time `json:"found_at"`
}

// VisitedURL records a URL that has been fetched (or attempted).
type VisitedURL struct {
	URL       string    `json:"url"`
	VisitedAt time.Time `json:"visited_at"`
}

// Screenshot records a captured page image.
type Screenshot struct {
	URL     string    `json:"url"`
	Path    string    `json:"path"`
	TakenAt time.Time `json:"taken_at"`
}

// Kind implements Record.
func (FoundURL) Kind() Kind { return KindFoundURL }

// Kind implements Record.
func (VisitedURL) Kind() Kind { return KindVisitedURL }

// Kind implements Record.
func (Screenshot) Kind() Kind { return KindScreenshot }

// Key implements Record.
func (r FoundURL) Key() string { return r.URL }

// Key implements Record.
func (r VisitedURL) Key() string { return r.URL }

// Key implements Record.
func (r Screenshot) Key() string { return r.URL }

// Document implements Record.
func (r FoundURL) Document() (store.Document, error) { return encode(r.URL, r.FoundAt, r) }

// Document implements Record.
func (r VisitedURL) Document() (store.Document, error) { return encode(r.URL, r.VisitedAt, r) }

// Document implements Record.
func (r Screenshot) Document() (store.Document, error) { return encode(r.URL, r.TakenAt, r) }

func (FoundURL) record()   {}
func (VisitedURL) record() {}
func (Screenshot) record() {}

func encode(key string, at time.Time, v interface{}) (store.Document, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return store.Document{}, err
	}
	return store.Document{Key: key, Body: body, CreatedAt: at}, nil
}

// FlushFunc persists one record.
type FlushFunc func(ctx context.Context, rec Record) error

// UpsertFlush returns a FlushFunc that upserts records into collection,
// keyed by the value of keyField in the encoded record.
func UpsertFlush(s store.Store, collection, keyField string) FlushFunc {
	return func(ctx context.Context, rec Record) error {
		doc, err := rec.Document()
		if err != nil {
			return fmt.Errorf("encode %s: %w", rec.Kind(), err)
		}

		key, err := keyOf(doc.Body, keyField)
		if err != nil {
			return err
		}
		doc.Key = key

		return s.Upsert(ctx, collection, doc)
	}
}

func keyOf(body []byte, field string) (string, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return "", err
	}

	key, ok := fields[field].(string)
	if !ok || key == "" {
		return "", fmt.Errorf("record has no %q key field", field)
	}
	return key, nil
}
