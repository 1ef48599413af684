package liveinsight_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/randalmurphal/liveinsight/pkg/liveinsight"
	"github.com/randalmurphal/liveinsight/pkg/liveinsight/storage"
)

// received is one request seen by the test collector.
type received struct {
	path    string
	headers http.Header
	events  []map[string]any
}

// collector is an httptest server standing in for the collection and
// token endpoints.
type collector struct {
	*httptest.Server

	mu       sync.Mutex
	requests []received
	status   int
	token    string
}

func newCollector(t *testing.T) *collector {
	t.Helper()
	c := &collector{status: http.StatusOK, token: "tok-test"}
	c.Server = httptest.NewServer(http.HandlerFunc(c.handle))
	t.Cleanup(c.Close)
	return c
}

func (c *collector) handle(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Events []map[string]any `json:"events"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	c.mu.Lock()
	c.requests = append(c.requests, received{path: r.URL.Path, headers: r.Header.Clone(), events: body.Events})
	status, token := c.status, c.token
	c.mu.Unlock()

	if strings.HasSuffix(r.URL.Path, "/csrf-token") {
		_ = json.NewEncoder(w).Encode(map[string]string{"csrf_token": token})
		return
	}
	w.WriteHeader(status)
}

func (c *collector) setStatus(status int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
}

// batches returns the requests made to the events endpoint.
func (c *collector) batches() []received {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []received
	for _, r := range c.requests {
		if strings.HasSuffix(r.path, "/events") {
			out = append(out, r)
		}
	}
	return out
}

// tokenFetches counts requests to the token endpoint.
func (c *collector) tokenFetches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, r := range c.requests {
		if strings.HasSuffix(r.path, "/csrf-token") {
			n++
		}
	}
	return n
}

func (c *collector) eventCount() int {
	n := 0
	for _, b := range c.batches() {
		n += len(b.events)
	}
	return n
}

func (c *collector) eventTypes() []string {
	var out []string
	for _, b := range c.batches() {
		for _, e := range b.events {
			out = append(out, e["event_type"].(string))
		}
	}
	return out
}

// clock is a settable time source safe for the client's goroutines.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// logBuffer is a concurrency-safe sink for a text slog handler.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (l *logBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

func (l *logBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

func newTestLogger() (*slog.Logger, *logBuffer) {
	buf := &logBuffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

// quietSettings never flushes on the timer during a test.
func quietSettings() liveinsight.Settings {
	return liveinsight.Settings{
		FlushInterval: time.Hour,
		RetryDelay:    time.Millisecond,
	}
}

// testOptions points a client at c with CSRF off and in-memory storage.
func testOptions(c *collector, extra ...liveinsight.Option) []liveinsight.Option {
	opts := []liveinsight.Option{
		liveinsight.WithEndpoint(c.URL),
		liveinsight.WithCSRF(false),
		liveinsight.WithStore(storage.NewMemoryStore()),
	}
	return append(opts, extra...)
}
