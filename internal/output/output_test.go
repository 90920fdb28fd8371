package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// mockCloser implements io.Writer with Close support
type mockCloser struct {
	bytes.Buffer
	closed bool
}

func (m *mockCloser) Close() error {
	m.closed = true
	return nil
}

// mockWriteError simulates write errors
type mockWriteError struct {
	err error
}

func (m *mockWriteError) Write(p []byte) (n int, err error) {
	return 0, m.err
}

func decodeEvents(t *testing.T, data string) []map[string]interface{} {
	t.Helper()
	var events []map[string]interface{}
	scanner := bufio.NewScanner(strings.NewReader(data))
	for scanner.Scan() {
		var ev map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("line is not JSON: %q: %v", scanner.Text(), err)
		}
		events = append(events, ev)
	}
	return events
}

// =============================================================================
// JSONWriter Tests
// =============================================================================

func TestJSONWriter_WritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONWriter(&buf, false)

	_ = w.WritePage(&PageRecord{URL: "https://example.com", StatusCode: 200, Title: "Home"})
	_ = w.WriteError(&ErrorRecord{URL: "https://example.com/x", StatusCode: 404, Type: "not_found"})
	if err := w.WriteSummary(&Summary{Target: "https://example.com", PagesCrawled: 1}); err != nil {
		t.Fatalf("WriteSummary() error = %v", err)
	}

	events := decodeEvents(t, buf.String())
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}

	wantTypes := []string{"page", "error", "summary"}
	for i, want := range wantTypes {
		if events[i]["type"] != want {
			t.Errorf("event[%d].type = %v, want %s", i, events[i]["type"], want)
		}
	}

	page := events[0]["data"].(map[string]interface{})
	if page["title"] != "Home" || page["status_code"] != float64(200) {
		t.Errorf("page data = %v", page)
	}
}

func TestJSONWriter_BuffersUntilFlush(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONWriter(&buf, false)

	_ = w.WritePage(&PageRecord{URL: "https://example.com"})
	if buf.Len() != 0 {
		t.Error("page should stay buffered before Flush")
	}

	if err := w.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if buf.Len() == 0 {
		t.Error("Flush() should write buffered events")
	}
}

func TestJSONWriter_Pretty(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONWriter(&buf, true)

	_ = w.WriteSummary(&Summary{Target: "https://example.com"})
	if !strings.Contains(buf.String(), "\n  ") {
		t.Errorf("pretty output not indented: %s", buf.String())
	}
}

func TestJSONWriter_Close(t *testing.T) {
	mc := &mockCloser{}
	w := NewJSONWriter(mc, false)

	_ = w.WritePage(&PageRecord{URL: "https://example.com"})
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !mc.closed {
		t.Error("Close() should close the underlying writer")
	}
	if mc.Len() == 0 {
		t.Error("Close() should flush pending events")
	}

	n := mc.Len()
	_ = w.WritePage(&PageRecord{URL: "https://example.com/after"})
	_ = w.Flush()
	if mc.Len() != n {
		t.Error("writes after Close() should be ignored")
	}
}

func TestJSONWriter_WriteError(t *testing.T) {
	boom := errors.New("disk full")
	w := NewJSONWriter(&mockWriteError{err: boom}, false)

	if err := w.WriteSummary(&Summary{}); !errors.Is(err, boom) {
		t.Errorf("WriteSummary() error = %v, want %v", err, boom)
	}
}

func TestJSONWriter_Concurrent(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONWriter(&buf, false)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.WritePage(&PageRecord{URL: "https://example.com"})
		}()
	}
	wg.Wait()
	_ = w.Flush()

	if got := len(decodeEvents(t, buf.String())); got != 20 {
		t.Errorf("got %d events, want 20", got)
	}
}

// =============================================================================
// Writer construction
// =============================================================================

func TestNewWriter(t *testing.T) {
	for _, format := range []string{"json", "jsonl", ""} {
		if _, ok := NewWriter(&bytes.Buffer{}, Config{Format: format}).(*JSONWriter); !ok {
			t.Errorf("NewWriter(%q) should return a JSONWriter", format)
		}
	}
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "pages.jsonl")

	w, err := Open(Config{FilePath: path})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	_ = w.WritePage(&PageRecord{URL: "https://example.com"})
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if len(decodeEvents(t, string(data))) != 1 {
		t.Errorf("file content = %s", data)
	}
}

func TestOpen_Stdout(t *testing.T) {
	w, err := Open(Config{FilePath: "-"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close() on stdout error = %v", err)
	}
}

// =============================================================================
// Summary Tests
// =============================================================================

func TestSummary_PagesPerSecond(t *testing.T) {
	s := &Summary{PagesCrawled: 10, Duration: 5 * time.Second}
	if got := s.PagesPerSecond(); got != 2 {
		t.Errorf("PagesPerSecond() = %v, want 2", got)
	}
	if (&Summary{PagesCrawled: 3}).PagesPerSecond() != 0 {
		t.Error("PagesPerSecond() should be 0 without a duration")
	}
}

func TestRenderSummary(t *testing.T) {
	var buf bytes.Buffer
	RenderSummary(&buf, &Summary{
		RunID:        "run-1",
		Target:       "https://example.com",
		Reason:       "page_limit_reached",
		PagesCrawled: 5,
		StatusCodes:  map[int]int{200: 5, 404: 1, 0: 2},
		Links:        LinkStats{Relative: 3, Absolute: 2, Blacklisted: 1},
		Mode:         ModeInfo{Mode: "persistent", SwitchReason: "page_threshold", SwitchedAt: time.Now()},
	})

	out := buf.String()
	for _, want := range []string{"https://example.com", "page_limit_reached", "Links blacklisted", "persistent", "page_threshold", "transport error", "404"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary table missing %q:\n%s", want, out)
		}
	}

	if strings.Index(out, "transport error") > strings.Index(out, "404") {
		t.Error("status codes should be sorted ascending")
	}
}
