// Package delivery posts event batches to the collector with retry.
//
// Each batch is encoded once as {"events":[...]}; an event that cannot be
// encoded is dropped on its own and the rest of the batch still goes out.
// The batch is then sent up to
// MaxAttempts times. Every failed attempt (transport error or non-2xx
// status) is retried after RetryDelay * attempt; once the budget is spent
// the batch is dropped and logged. Only a cancelled context stops the loop
// early.
package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/randalmurphal/liveinsight/pkg/liveinsight/event"
	lierrors "github.com/randalmurphal/liveinsight/pkg/liveinsight/errors"
	"github.com/randalmurphal/liveinsight/pkg/liveinsight/observability"
	"github.com/randalmurphal/liveinsight/pkg/liveinsight/transport"
)

// Path is appended to the collector base URL for event batches.
const Path = "/events"

// Defaults for the retry budget.
const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = time.Second
)

// Outcome classifies the result of an attempt or a whole delivery.
type Outcome int

const (
	// OutcomeDelivered means the collector accepted the batch.
	OutcomeDelivered Outcome = iota
	// OutcomeRetryable means the attempt failed and another may follow.
	OutcomeRetryable
	// OutcomeExhausted means no attempts remain; the batch was dropped.
	OutcomeExhausted
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Result is the outcome of Deliver.
type Result struct {
	Outcome  Outcome
	Attempts int
	Duration time.Duration
	Err      error

	// Sent is how many events the collector accepted; zero unless
	// delivered. Events dropped for failing to encode are not counted.
	Sent int
}

// TokenSource supplies the anti-CSRF token for a session.
// An empty token means the header is omitted.
type TokenSource interface {
	// Token returns a valid token, fetching one if needed.
	Token(ctx context.Context, sessionID string) string

	// CachedToken returns a still-valid cached token without fetching.
	// Beacons use it since they cannot wait on a round trip.
	CachedToken() string
}

// Config holds the delivery parameters.
type Config struct {
	// BaseURL is the collector root; batches go to BaseURL + Path.
	BaseURL string
	APIKey  string

	MaxAttempts int
	RetryDelay  time.Duration

	Logger  *slog.Logger
	Metrics observability.MetricsRecorder
	Spans   observability.SpanManager

	// Tokens is optional; nil disables the CSRF header.
	Tokens TokenSource
}

// Deliverer sends batches through a Transport.
type Deliverer struct {
	transport transport.Transport
	beacon    *transport.Beacon
	tokens    TokenSource
	url       string
	apiKey    string
	retry     lierrors.RetryConfig

	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
}

// New creates a Deliverer. Zero retry fields take the defaults.
func New(t transport.Transport, cfg Config) *Deliverer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NoopMetrics{}
	}
	if cfg.Spans == nil {
		cfg.Spans = observability.NoopSpanManager{}
	}

	d := &Deliverer{
		transport: t,
		beacon:    transport.NewBeacon(t, 0),
		tokens:    cfg.Tokens,
		url:       strings.TrimRight(cfg.BaseURL, "/") + Path,
		apiKey:    cfg.APIKey,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		spans:     cfg.Spans,
	}
	d.retry = lierrors.NewRetryConfig(
		lierrors.WithMaxAttempts(cfg.MaxAttempts),
		lierrors.WithInitialBackoff(cfg.RetryDelay),
		lierrors.WithOnRetry(func(attempt int, err error, wait time.Duration) {
			observability.LogDeliveryRetry(d.logger, attempt, err, wait)
		}),
	)
	return d
}

// URL returns the batch endpoint.
func (d *Deliverer) URL() string {
	return d.url
}

// Deliver sends events as one batch, retrying until delivered or the
// attempt budget is spent. The returned Outcome is never OutcomeRetryable.
func (d *Deliverer) Deliver(ctx context.Context, sessionID string, events []event.Event) Result {
	done := observability.TimedOperation()

	body, size, err := d.encode(ctx, events)
	if err != nil {
		return Result{Outcome: OutcomeExhausted, Err: err}
	}

	ctx, span := d.spans.StartDeliverySpan(ctx, sessionID, size)

	// every failure is retried until the caller's context is done
	cfg := d.retry
	lierrors.WithRetryableFunc(func(error) bool { return ctx.Err() == nil })(&cfg)

	res := lierrors.WithRetryContext(ctx, cfg, func(ctx context.Context, attempt int) (struct{}, error) {
		outcome, err := d.Attempt(ctx, sessionID, body, attempt)
		if outcome == OutcomeDelivered {
			return struct{}{}, nil
		}
		return struct{}{}, err
	})

	d.metrics.RecordDelivery(ctx, size, res.Attempts, res.Duration, res.Err)
	d.spans.EndSpanWithError(span, res.Err)

	if res.Err != nil {
		observability.LogDeliveryExhausted(d.logger, size, res.Attempts, unwrapCategorized(res.Err))
		return Result{Outcome: OutcomeExhausted, Attempts: res.Attempts, Duration: res.Duration, Err: res.Err}
	}

	observability.LogBatchSent(d.logger, size, res.Attempts, done())
	return Result{Outcome: OutcomeDelivered, Attempts: res.Attempts, Duration: res.Duration, Sent: size}
}

// Attempt performs send number attempt of an encoded batch and records it
// as an event on the delivery span. The token is resolved fresh for each
// attempt.
func (d *Deliverer) Attempt(ctx context.Context, sessionID string, body []byte, attempt int) (Outcome, error) {
	req := transport.Request{
		URL:       d.url,
		Body:      body,
		SessionID: sessionID,
		APIKey:    d.apiKey,
	}
	if d.tokens != nil {
		req.CSRFToken = d.tokens.Token(ctx, sessionID)
	}

	outcome, status, err := d.send(ctx, req)
	attrs := []attribute.KeyValue{
		attribute.Int("attempt", attempt),
		attribute.String("outcome", outcome.String()),
	}
	if status != 0 {
		attrs = append(attrs, attribute.Int("http.status_code", status))
	}
	d.spans.AddSpanEvent(ctx, "delivery.attempt", attrs...)
	return outcome, err
}

func (d *Deliverer) send(ctx context.Context, req transport.Request) (Outcome, int, error) {
	resp, err := d.transport.Do(ctx, req)
	if err != nil {
		return OutcomeRetryable, 0, err
	}
	if err := transport.StatusError(d.url, resp); err != nil {
		return OutcomeRetryable, resp.StatusCode, err
	}
	return OutcomeDelivered, resp.StatusCode, nil
}

// Beacon sends events once, without retry, for use while the page is
// unloading. The CSRF token is attached only if one is already cached.
func (d *Deliverer) Beacon(ctx context.Context, sessionID string, events []event.Event) error {
	body, _, err := d.encode(ctx, events)
	if err != nil {
		return err
	}
	req := transport.Request{
		URL:       d.url,
		Body:      body,
		SessionID: sessionID,
		APIKey:    d.apiKey,
	}
	if d.tokens != nil {
		req.CSRFToken = d.tokens.CachedToken()
	}
	return d.beacon.Send(ctx, req)
}

// encode renders the payload. When the batch as a whole fails to encode,
// events are encoded one at a time and those that fail are dropped and
// logged. It returns the number of events in the payload and fails only if
// none could be encoded.
func (d *Deliverer) encode(ctx context.Context, events []event.Event) ([]byte, int, error) {
	body, err := Encode(events)
	if err == nil {
		return body, len(events), nil
	}

	kept := make([]json.RawMessage, 0, len(events))
	for _, evt := range events {
		raw, err := json.Marshal(evt)
		if err != nil {
			observability.LogEventDropped(d.logger, evt.Type(), err)
			d.metrics.RecordBatchDropped(ctx, 1, "encode")
			continue
		}
		kept = append(kept, raw)
	}
	if len(kept) == 0 {
		return nil, 0, err
	}

	body, err = json.Marshal(struct {
		Events []json.RawMessage `json:"events"`
	}{kept})
	if err != nil {
		return nil, 0, fmt.Errorf("encode batch: %w", err)
	}
	return body, len(kept), nil
}

// Encode renders events as the collector payload {"events":[...]}.
func Encode(events []event.Event) ([]byte, error) {
	body, err := json.Marshal(event.NewBatch(events))
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}
	return body, nil
}

func unwrapCategorized(err error) error {
	var ce *lierrors.CategorizedError
	if errors.As(err, &ce) && ce.Err != nil {
		return ce.Err
	}
	return err
}
