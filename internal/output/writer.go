// Package output writes crawl records and the end-of-run summary.
package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Writer defines the interface for output writers.
type Writer interface {
	// WritePage writes one fetched page.
	WritePage(page *PageRecord) error

	// WriteError writes one failed fetch.
	WriteError(err *ErrorRecord) error

	// WriteSummary writes the end-of-run summary.
	WriteSummary(summary *Summary) error

	// Flush flushes any buffered output.
	Flush() error

	// Close closes the writer.
	Close() error
}

// Config holds output configuration.
type Config struct {
	Format   string `yaml:"format" json:"format"`
	Pretty   bool   `yaml:"pretty" json:"pretty"`
	FilePath string `yaml:"file" json:"file"`
}

// NewWriter creates a new output writer.
func NewWriter(w io.Writer, config Config) Writer {
	switch config.Format {
	case "json", "jsonl":
		return NewJSONWriter(w, config.Pretty)
	default:
		return NewJSONWriter(w, config.Pretty)
	}
}

// Open creates a writer for config.FilePath, or stdout when it is empty or "-".
func Open(config Config) (Writer, error) {
	if config.FilePath == "" || config.FilePath == "-" {
		return NewWriter(nopCloser{os.Stdout}, config), nil
	}

	if err := os.MkdirAll(filepath.Dir(config.FilePath), 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.OpenFile(config.FilePath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open output file: %w", err)
	}
	return NewWriter(f, config), nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
