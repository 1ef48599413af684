package liveinsight_test

import (
	"context"
	"math"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/randalmurphal/liveinsight/pkg/liveinsight"
	"github.com/randalmurphal/liveinsight/pkg/liveinsight/event"
	"github.com/randalmurphal/liveinsight/pkg/liveinsight/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// prop returns a property value, nil when absent.
func prop(evt event.Event, key string) any {
	v, _ := evt.Property(key)
	return v
}

func closeClient(t *testing.T, c *liveinsight.Client) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Close(ctx))
}

// Init with site key "abc123" queues one page_view stamped with the site
// key and a session id.
func TestInit_PageViewScenario(t *testing.T) {
	col := newCollector(t)
	client, err := liveinsight.Init("abc123", quietSettings(), testOptions(col,
		liveinsight.WithPage(event.Page{URL: "https://shop.test/", Title: "Shop"}),
	)...)
	require.NoError(t, err)
	defer closeClient(t, client)

	pending := client.Pending()
	require.Len(t, pending, 1)

	evt := pending[0]
	assert.Equal(t, event.TypePageView, evt.Type())
	assert.Equal(t, "abc123", evt.SiteKey())
	assert.NotEmpty(t, evt.SessionID())
	assert.Equal(t, "https://shop.test/", evt.PageURL())
	assert.Equal(t, "Shop", prop(evt, "page_title"))
}

func TestInit_RequiresSiteKey(t *testing.T) {
	logger, logs := newTestLogger()
	client := liveinsight.New(liveinsight.WithLogger(logger))

	err := client.Init("")

	assert.ErrorIs(t, err, liveinsight.ErrSiteKeyRequired)
	assert.False(t, client.Initialized())
	assert.Contains(t, logs.String(), "level=ERROR")
	assert.ErrorIs(t, client.Track("x", nil), liveinsight.ErrNotInitialized)
}

// A second Init leaves identifiers unchanged whatever settings it is given.
func TestInit_Idempotent(t *testing.T) {
	col := newCollector(t)
	logger, logs := newTestLogger()
	client := liveinsight.New(testOptions(col, liveinsight.WithLogger(logger))...)
	require.NoError(t, client.Init("abc123", quietSettings()))
	defer closeClient(t, client)

	before, ok := client.Identity()
	require.True(t, ok)

	err := client.Init("other-site", liveinsight.Settings{SessionTimeout: time.Millisecond, BatchSize: 1})
	assert.ErrorIs(t, err, liveinsight.ErrAlreadyInitialized)

	after, ok := client.Identity()
	require.True(t, ok)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, client.QueueLen())
	assert.Contains(t, logs.String(), "already initialized")
}

func TestSessionContinuity(t *testing.T) {
	tests := []struct {
		name     string
		idle     time.Duration
		wantSame bool
	}{
		{"10 minutes idle reuses session", 10 * time.Minute, true},
		{"40 minutes idle starts new session", 40 * time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			col := newCollector(t)
			store := storage.NewMemoryStore()
			clk := newClock()
			opts := []liveinsight.Option{
				liveinsight.WithEndpoint(col.URL),
				liveinsight.WithCSRF(false),
				liveinsight.WithStore(store),
				liveinsight.WithClock(clk.Now),
			}
			settings := quietSettings()
			settings.SessionTimeout = 30 * time.Minute

			first, err := liveinsight.Init("abc123", settings, opts...)
			require.NoError(t, err)
			firstID, _ := first.Identity()
			closeClient(t, first)

			clk.Advance(tt.idle)

			second, err := liveinsight.Init("abc123", settings, opts...)
			require.NoError(t, err)
			defer closeClient(t, second)
			secondID, _ := second.Identity()

			assert.Equal(t, firstID.UserID, secondID.UserID)
			assert.Equal(t, tt.wantSame, firstID.SessionID == secondID.SessionID)
			assert.Equal(t, tt.wantSame, secondID.Resumed)
		})
	}
}

// Fewer than BatchSize events are not delivered before the flush interval.
func TestBatchThreshold(t *testing.T) {
	col := newCollector(t)
	settings := quietSettings()
	settings.BatchSize = 5

	client, err := liveinsight.Init("abc123", settings, testOptions(col)...)
	require.NoError(t, err)
	defer closeClient(t, client)

	for i := 0; i < 3; i++ {
		require.NoError(t, client.Track("step", map[string]any{"i": i}))
	}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 4, client.QueueLen())
	assert.Empty(t, col.batches())

	// the fifth event reaches the threshold
	require.NoError(t, client.Track("step", map[string]any{"i": 3}))
	assert.Equal(t, 0, client.QueueLen())

	require.Eventually(t, func() bool { return len(col.batches()) == 1 }, 2*time.Second, 5*time.Millisecond)
	batch := col.batches()[0]
	require.Len(t, batch.events, 5)
	assert.Equal(t, "page_view", batch.events[0]["event_type"])
	assert.Equal(t, float64(3), batch.events[4]["i"])
}

func TestPeriodicFlush(t *testing.T) {
	col := newCollector(t)
	settings := quietSettings()
	settings.FlushInterval = 20 * time.Millisecond

	client, err := liveinsight.Init("abc123", settings, testOptions(col)...)
	require.NoError(t, err)
	defer closeClient(t, client)

	require.Eventually(t, func() bool { return col.eventCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, client.QueueLen())
}

// A batch that always fails is attempted exactly RetryAttempts times.
func TestRetryBound(t *testing.T) {
	col := newCollector(t)
	col.setStatus(http.StatusInternalServerError)
	logger, logs := newTestLogger()

	client, err := liveinsight.Init("abc123", quietSettings(), testOptions(col, liveinsight.WithLogger(logger))...)
	require.NoError(t, err)

	require.NoError(t, client.Flush())
	require.Eventually(t, func() bool {
		return len(col.batches()) == 3
	}, 2*time.Second, 5*time.Millisecond)

	closeClient(t, client)
	assert.Len(t, col.batches(), 3)
	assert.Contains(t, logs.String(), "failed to send events after retries, dropping batch")
}

func TestDeliveryHeaders(t *testing.T) {
	col := newCollector(t)
	client, err := liveinsight.Init("abc123", quietSettings(),
		liveinsight.WithEndpoint(col.URL),
		liveinsight.WithAPIKey("key-1"),
		liveinsight.WithStore(storage.NewMemoryStore()),
	)
	require.NoError(t, err)
	id, _ := client.Identity()

	require.NoError(t, client.Flush())
	require.Eventually(t, func() bool { return len(col.batches()) == 1 }, 2*time.Second, 5*time.Millisecond)
	closeClient(t, client)

	h := col.batches()[0].headers
	assert.Equal(t, "application/json", h.Get("Content-Type"))
	assert.Equal(t, "key-1", h.Get("X-API-Key"))
	assert.Equal(t, "tok-test", h.Get("X-CSRF-Token"))
	assert.Equal(t, id.SessionID, h.Get("X-Session-ID"))
}

func TestLegacyTransport(t *testing.T) {
	col := newCollector(t)
	client, err := liveinsight.Init("abc123", quietSettings(), testOptions(col,
		liveinsight.WithLegacyTransport(nil),
	)...)
	require.NoError(t, err)

	require.NoError(t, client.Flush())
	closeClient(t, client)
	assert.Equal(t, 1, col.eventCount())
}

func TestTrack_ReservedFieldsWin(t *testing.T) {
	col := newCollector(t)
	logger, logs := newTestLogger()
	client, err := liveinsight.Init("abc123", quietSettings(), testOptions(col, liveinsight.WithLogger(logger))...)
	require.NoError(t, err)
	defer closeClient(t, client)

	require.NoError(t, client.Track("signup", map[string]any{
		"site_key": "spoofed",
		"plan":     "pro",
	}))

	pending := client.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, "abc123", pending[1].SiteKey())
	assert.Equal(t, "pro", prop(pending[1], "plan"))
	assert.Nil(t, prop(pending[1], "site_key"))
	assert.Contains(t, logs.String(), "reserved properties dropped")
}

func TestTrack_Validation(t *testing.T) {
	col := newCollector(t)
	client, err := liveinsight.Init("abc123", quietSettings(), testOptions(col)...)
	require.NoError(t, err)
	defer closeClient(t, client)

	assert.ErrorIs(t, client.Track("", nil), liveinsight.ErrEventTypeRequired)
	assert.ErrorIs(t, client.TrackConversion(""), liveinsight.ErrEventTypeRequired)
	assert.Equal(t, 1, client.QueueLen())
}

// A property that can't be encoded is rejected at Track and never reaches
// the batch, so the events around it are still delivered.
func TestTrack_UnencodableRejected(t *testing.T) {
	col := newCollector(t)
	client, err := liveinsight.Init("abc123", quietSettings(), testOptions(col)...)
	require.NoError(t, err)

	require.NoError(t, client.Track("good", nil))
	err = client.Track("bad", map[string]any{"v": math.NaN()})
	assert.ErrorIs(t, err, liveinsight.ErrInvalidProperties)
	assert.ErrorContains(t, err, `property "v"`)
	require.NoError(t, client.Track("good2", nil))

	require.NoError(t, client.Flush())
	closeClient(t, client)
	assert.Equal(t, []string{"page_view", "good", "good2"}, col.eventTypes())
}

func TestInit_LogsSessionIDOnce(t *testing.T) {
	col := newCollector(t)
	logger, logs := newTestLogger()
	client, err := liveinsight.Init("abc123", quietSettings(), testOptions(col, liveinsight.WithLogger(logger))...)
	require.NoError(t, err)
	defer closeClient(t, client)

	var line string
	for _, l := range strings.Split(logs.String(), "\n") {
		if strings.Contains(l, "liveinsight initialized") {
			line = l
		}
	}
	require.NotEmpty(t, line)
	assert.Equal(t, 1, strings.Count(line, "session_id="))
}

func TestTrackClickAndConversion(t *testing.T) {
	col := newCollector(t)
	client, err := liveinsight.Init("abc123", quietSettings(), testOptions(col)...)
	require.NoError(t, err)
	defer closeClient(t, client)

	require.NoError(t, client.TrackClick(event.Element{ID: "buy", Tag: "BUTTON", Text: "Buy now"}, 10, 20))
	require.NoError(t, client.TrackConversion("purchase"))

	pending := client.Pending()
	require.Len(t, pending, 3)

	click := pending[1]
	assert.Equal(t, event.TypeClick, click.Type())
	assert.Equal(t, "buy", prop(click, "element_id"))
	assert.Nil(t, prop(click, "element_class"))
	assert.Equal(t, 10, prop(click, "x_position"))

	conv := pending[2]
	assert.Equal(t, event.TypeConversion, conv.Type())
	assert.Equal(t, "purchase", prop(conv, "conversion_type"))
}

func TestClose_FlushesAndResets(t *testing.T) {
	col := newCollector(t)
	client, err := liveinsight.Init("abc123", quietSettings(), testOptions(col)...)
	require.NoError(t, err)

	require.NoError(t, client.Track("a", nil))
	require.NoError(t, client.Track("b", nil))
	closeClient(t, client)

	assert.Equal(t, []string{"page_view", "a", "b"}, col.eventTypes())
	assert.False(t, client.Initialized())
	assert.ErrorIs(t, client.Track("c", nil), liveinsight.ErrNotInitialized)
	assert.ErrorIs(t, client.TrackPageView(), liveinsight.ErrNotInitialized)
	assert.ErrorIs(t, client.Flush(), liveinsight.ErrNotInitialized)
	assert.Equal(t, 0, client.QueueLen())

	// closing twice is harmless and the client can start again
	assert.NoError(t, client.Close(context.Background()))
	require.NoError(t, client.Init("abc123", quietSettings()))
	closeClient(t, client)
	assert.Len(t, col.eventTypes(), 4)
}

func TestClose_ContextExpiry(t *testing.T) {
	col := newCollector(t)
	col.setStatus(http.StatusServiceUnavailable)
	settings := quietSettings()
	settings.RetryDelay = time.Hour

	client, err := liveinsight.Init("abc123", settings, testOptions(col)...)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, client.Close(ctx), context.DeadlineExceeded)
	assert.False(t, client.Initialized())
}

func TestDefaultSettingsApplied(t *testing.T) {
	assert.Equal(t, liveinsight.Settings{
		SessionTimeout: 30 * time.Minute,
		RetryAttempts:  3,
		RetryDelay:     time.Second,
		BatchSize:      10,
		FlushInterval:  5 * time.Second,
	}, liveinsight.DefaultSettings())
}

func TestStats(t *testing.T) {
	t.Run("delivered", func(t *testing.T) {
		col := newCollector(t)
		client, err := liveinsight.Init("abc123", quietSettings(), testOptions(col)...)
		require.NoError(t, err)
		require.NoError(t, client.Track("a", nil))
		closeClient(t, client)

		assert.Equal(t, liveinsight.Stats{Delivered: 2}, client.Stats())
	})

	t.Run("exhausted retries count as dropped", func(t *testing.T) {
		col := newCollector(t)
		col.setStatus(http.StatusInternalServerError)
		client, err := liveinsight.Init("abc123", quietSettings(), testOptions(col)...)
		require.NoError(t, err)
		require.NoError(t, client.Track("a", nil))
		closeClient(t, client)

		assert.Equal(t, liveinsight.Stats{Dropped: 2}, client.Stats())
	})
}
