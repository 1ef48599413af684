package benchmarks

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/randalmurphal/liveinsight/pkg/liveinsight/event"
	"github.com/randalmurphal/liveinsight/pkg/liveinsight/session"
	"github.com/randalmurphal/liveinsight/pkg/liveinsight/storage"
)

// BenchmarkQueue_PushTake fills a batch and takes it.
func BenchmarkQueue_PushTake(b *testing.B) {
	q := event.NewQueue()
	events := buildEvents(10)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, e := range events {
			q.Push(e)
		}
		_ = q.TakeBatch(10)
	}
}

// BenchmarkSessionResolve_Memory resolves an active session from memory.
func BenchmarkSessionResolve_Memory(b *testing.B) {
	m := session.NewManager(storage.NewMemoryStore())
	now := time.Now()
	m.Resolve(now)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Resolve(now)
	}
}

// BenchmarkSessionResolve_SQLite resolves an active session from a SQLite store.
func BenchmarkSessionResolve_SQLite(b *testing.B) {
	store, err := storage.NewSQLiteStore(filepath.Join(b.TempDir(), "bench.db"))
	if err != nil {
		b.Fatal(err)
	}
	defer store.Close()

	m := session.NewManager(store)
	now := time.Now()
	m.Resolve(now)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Resolve(now)
	}
}
