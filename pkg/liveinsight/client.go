package liveinsight

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randalmurphal/liveinsight/pkg/liveinsight/csrf"
	"github.com/randalmurphal/liveinsight/pkg/liveinsight/delivery"
	"github.com/randalmurphal/liveinsight/pkg/liveinsight/event"
	"github.com/randalmurphal/liveinsight/pkg/liveinsight/observability"
	"github.com/randalmurphal/liveinsight/pkg/liveinsight/session"
	"github.com/randalmurphal/liveinsight/pkg/liveinsight/storage"
	"github.com/randalmurphal/liveinsight/pkg/liveinsight/transport"
)

// Client tracks events for one site and delivers them in batches.
//
// A Client is safe for concurrent use. It does nothing until Init and
// returns to that state after Close; it can be initialised again.
type Client struct {
	cfg       clientConfig
	transport transport.Transport

	mu   sync.Mutex
	page event.Page
	run  *run // nil while uninitialised

	delivered atomic.Int64
	dropped   atomic.Int64
}

// Stats counts events by delivery result over the client's lifetime,
// across Init/Close cycles.
type Stats struct {
	// Delivered is the number of events the collector accepted, by batch
	// or beacon.
	Delivered int64

	// Dropped is the number of events given up on: retries exhausted,
	// unencodable, delivery queue full, or abandoned when Close's context
	// expired.
	Dropped int64
}

// run is the state of one Init..Close span.
type run struct {
	siteKey  string
	settings Settings
	identity session.Identity
	logger   *slog.Logger

	sessions  *session.Manager
	deliverer *delivery.Deliverer
	queue     *event.Queue

	batches chan batch
	stop    chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type batch struct {
	sessionID string
	events    []event.Event
}

// New returns an uninitialised client.
func New(opts ...Option) *Client {
	cfg := defaultClientConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.store == nil {
		cfg.store = storage.NewMemoryStore()
	}
	return &Client{
		cfg:       cfg,
		transport: cfg.selectTransport(),
		page:      cfg.page,
	}
}

// Init is New followed by (*Client).Init.
func Init(siteKey string, settings Settings, opts ...Option) (*Client, error) {
	c := New(opts...)
	if err := c.Init(siteKey, settings); err != nil {
		return nil, err
	}
	return c, nil
}

// Init resolves the session, starts background delivery and tracks the
// initial page view. Only the first settings value is used; zero fields
// keep their defaults.
//
// A second Init while running returns ErrAlreadyInitialized and leaves the
// session untouched.
func (c *Client) Init(siteKey string, settings ...Settings) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.run != nil {
		observability.LogAlreadyInitialized(c.run.logger)
		return ErrAlreadyInitialized
	}
	if siteKey == "" {
		observability.LogInitFailed(c.cfg.logger, ErrSiteKeyRequired)
		return ErrSiteKeyRequired
	}

	var s Settings
	if len(settings) > 0 {
		s = settings[0]
	}
	s = s.merge()

	sessions := session.NewManager(c.cfg.store,
		session.WithTimeout(s.SessionTimeout),
		session.WithLogger(c.cfg.logger),
	)
	id := sessions.Resolve(c.cfg.now())
	logger := observability.EnrichLogger(c.cfg.logger, siteKey, id.SessionID)

	// left as a nil interface when disabled
	var tokens delivery.TokenSource
	if c.cfg.csrf {
		tokens = csrf.NewManager(c.cfg.store, c.transport, c.cfg.endpoint,
			csrf.WithAPIKey(c.cfg.apiKey),
			csrf.WithClock(c.cfg.now),
			csrf.WithLogger(logger),
			csrf.WithMetrics(c.cfg.metrics),
		)
	}

	r := &run{
		siteKey:  siteKey,
		settings: s,
		identity: id,
		logger:   logger,
		sessions: sessions,
		deliverer: delivery.New(c.transport, delivery.Config{
			BaseURL:     c.cfg.endpoint,
			APIKey:      c.cfg.apiKey,
			MaxAttempts: s.RetryAttempts,
			RetryDelay:  s.RetryDelay,
			Logger:      logger,
			Metrics:     c.cfg.metrics,
			Spans:       c.cfg.spans,
			Tokens:      tokens,
		}),
		queue:   event.NewQueue(),
		batches: make(chan batch, c.cfg.batchBuffer),
		stop:    make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.wg.Add(2)
	go c.deliverLoop(ctx, r)
	go c.tickLoop(r)

	c.run = r
	observability.LogInitialized(logger, id.Resumed)

	c.enqueueLocked(r, event.TypePageView, c.page.PageViewProperties())
	return nil
}

// Track enqueues a custom event on the current page. Properties named
// like identity fields (event_type, page_url, timestamp, session_id,
// user_id, site_key) are dropped. A property that cannot be JSON-encoded
// rejects the event with ErrInvalidProperties.
func (c *Client) Track(eventType string, props map[string]any) error {
	if eventType == "" {
		return ErrEventTypeRequired
	}
	if err := event.CheckProperties(props); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProperties, err)
	}
	return c.with("track", func(r *run) {
		c.enqueueLocked(r, eventType, props)
	})
}

// TrackPageView enqueues a page_view for the current page.
func (c *Client) TrackPageView() error {
	return c.with("track_page_view", func(r *run) {
		c.enqueueLocked(r, event.TypePageView, c.page.PageViewProperties())
	})
}

// TrackClick enqueues a click on el at viewport position (x, y).
func (c *Client) TrackClick(el event.Element, x, y int) error {
	return c.with("track_click", func(r *run) {
		c.enqueueLocked(r, event.TypeClick, event.ClickProperties(el, x, y))
	})
}

// TrackConversion enqueues a conversion of the given kind.
func (c *Client) TrackConversion(conversionType string) error {
	if conversionType == "" {
		return ErrEventTypeRequired
	}
	return c.with("track_conversion", func(r *run) {
		c.enqueueLocked(r, event.TypeConversion, map[string]any{"conversion_type": conversionType})
	})
}

// Flush hands every queued event to the delivery worker, in batches of at
// most BatchSize.
func (c *Client) Flush() error {
	return c.with("flush", func(r *run) {
		for _, events := range r.queue.Drain(r.settings.BatchSize) {
			c.dispatchLocked(r, events)
		}
	})
}

// Close stops the timers, flushes what is queued and waits for delivery to
// finish or ctx to expire, whichever comes first. When ctx expires,
// in-flight retries are abandoned and ctx.Err() is returned.
// Closing an uninitialised client is a no-op.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	r := c.run
	c.run = nil
	c.mu.Unlock()

	if r == nil {
		return nil
	}

	// senders check c.run under the lock, so from here only Close writes
	// to r.batches
	close(r.stop)
	for _, events := range r.queue.Drain(r.settings.BatchSize) {
		select {
		case r.batches <- batch{sessionID: r.identity.SessionID, events: events}:
		case <-ctx.Done():
			observability.LogBatchDropped(r.logger, len(events), "client closed")
			c.cfg.metrics.RecordBatchDropped(ctx, len(events), "closed")
		}
	}
	close(r.batches)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		return ctx.Err()
	}
}

// Stats returns the delivery counters. Batches still queued or in flight
// are in neither count; after Close returns nil every tracked event is.
func (c *Client) Stats() Stats {
	return Stats{Delivered: c.delivered.Load(), Dropped: c.dropped.Load()}
}

// record adds the result of sending total events, sent of which arrived.
func (c *Client) record(total, sent int) {
	c.delivered.Add(int64(sent))
	c.dropped.Add(int64(total - sent))
}

// Identity returns the current session identity.
func (c *Client) Identity() (session.Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run == nil {
		return session.Identity{}, false
	}
	return c.run.identity, true
}

// Initialized reports whether the client is running.
func (c *Client) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.run != nil
}

// QueueLen returns the number of events waiting to be flushed.
func (c *Client) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run == nil {
		return 0
	}
	return c.run.queue.Len()
}

// Pending returns a copy of the events waiting to be flushed, oldest first.
func (c *Client) Pending() []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run == nil {
		return nil
	}
	return c.run.queue.Snapshot()
}

// Page returns the page events are currently attributed to.
func (c *Client) Page() event.Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page
}

// with runs fn under the lock if the client is initialised.
func (c *Client) with(op string, fn func(r *run)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run == nil {
		observability.LogNotInitialized(c.cfg.logger, op)
		return ErrNotInitialized
	}
	fn(c.run)
	return nil
}

// newEventLocked stamps an event with the run's identity and the current page.
func (c *Client) newEventLocked(r *run, eventType string, props map[string]any) event.Event {
	evt, dropped := event.New(eventType, c.page.URL, c.cfg.now(), event.Identity{
		SessionID: r.identity.SessionID,
		UserID:    r.identity.UserID,
		SiteKey:   r.siteKey,
	}, props)
	observability.LogReservedDropped(r.logger, eventType, dropped)
	c.cfg.metrics.RecordEventTracked(context.Background(), eventType)
	return evt
}

// enqueueLocked queues an event and flushes one batch at the threshold.
func (c *Client) enqueueLocked(r *run, eventType string, props map[string]any) {
	if r.queue.Push(c.newEventLocked(r, eventType, props)) >= r.settings.BatchSize {
		c.flushLocked(r)
	}
}

func (c *Client) flushLocked(r *run) {
	events := r.queue.TakeBatch(r.settings.BatchSize)
	if len(events) == 0 {
		return
	}
	c.dispatchLocked(r, events)
}

// dispatchLocked hands a batch to the worker without blocking the caller.
func (c *Client) dispatchLocked(r *run, events []event.Event) {
	select {
	case r.batches <- batch{sessionID: r.identity.SessionID, events: events}:
	default:
		observability.LogBatchDropped(r.logger, len(events), "delivery queue full")
		c.cfg.metrics.RecordBatchDropped(context.Background(), len(events), "queue_full")
		c.dropped.Add(int64(len(events)))
	}
}

// deliverLoop is the single delivery worker; batches go out in the order
// they were dispatched.
func (c *Client) deliverLoop(ctx context.Context, r *run) {
	defer r.wg.Done()
	for b := range r.batches {
		res := r.deliverer.Deliver(ctx, b.sessionID, b.events)
		c.record(len(b.events), res.Sent)
	}
}

// tickLoop drives the periodic flush and, when enabled, the heartbeat.
func (c *Client) tickLoop(r *run) {
	defer r.wg.Done()

	flush := time.NewTicker(r.settings.FlushInterval)
	defer flush.Stop()

	var heartbeat <-chan time.Time
	if r.settings.HeartbeatInterval > 0 {
		t := time.NewTicker(r.settings.HeartbeatInterval)
		defer t.Stop()
		heartbeat = t.C
	}

	for {
		select {
		case <-r.stop:
			return
		case <-flush.C:
			c.mu.Lock()
			if c.run == r && r.queue.Len() > 0 {
				c.flushLocked(r)
			}
			c.mu.Unlock()
		case <-heartbeat:
			c.mu.Lock()
			if c.run == r {
				c.enqueueLocked(r, event.TypeHeartbeat, nil)
			}
			c.mu.Unlock()
		}
	}
}
