package output

import (
	"bufio"
	"encoding/json"
	"io"
	"sync"
)

// JSONWriter writes one JSON event per line.
type JSONWriter struct {
	mu     sync.Mutex
	writer io.Writer
	buf    *bufio.Writer
	pretty bool
	closed bool
}

// NewJSONWriter creates a new JSON writer.
func NewJSONWriter(w io.Writer, pretty bool) *JSONWriter {
	return &JSONWriter{
		writer: w,
		buf:    bufio.NewWriter(w),
		pretty: pretty,
	}
}

// StreamEvent represents a streaming output event.
type StreamEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// WritePage writes a page event.
func (j *JSONWriter) WritePage(page *PageRecord) error {
	return j.write(StreamEvent{Type: "page", Data: page})
}

// WriteError writes an error event.
func (j *JSONWriter) WriteError(err *ErrorRecord) error {
	return j.write(StreamEvent{Type: "error", Data: err})
}

// WriteSummary writes the summary event and flushes.
func (j *JSONWriter) WriteSummary(summary *Summary) error {
	if err := j.write(StreamEvent{Type: "summary", Data: summary}); err != nil {
		return err
	}
	return j.Flush()
}

func (j *JSONWriter) write(event StreamEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}

	var data []byte
	var err error

	if j.pretty {
		data, err = json.MarshalIndent(event, "", "  ")
	} else {
		data, err = json.Marshal(event)
	}
	if err != nil {
		return err
	}

	if _, err := j.buf.Write(data); err != nil {
		return err
	}
	return j.buf.WriteByte('\n')
}

// Flush flushes buffered events to the underlying writer.
func (j *JSONWriter) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.buf.Flush(); err != nil {
		return err
	}
	if flusher, ok := j.writer.(interface{ Sync() error }); ok {
		_ = flusher.Sync()
	}
	return nil
}

// Close flushes and closes the writer.
func (j *JSONWriter) Close() error {
	if err := j.Flush(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true

	if closer, ok := j.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
