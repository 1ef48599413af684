package transport

import (
	"context"
	"time"
)

// DefaultBeaconTimeout bounds a beacon send.
const DefaultBeaconTimeout = 2 * time.Second

// Beacon is a best-effort, single-shot send used while a page is closing:
// no retry, no token fetch, bounded by a short timeout.
type Beacon struct {
	transport Transport
	timeout   time.Duration
}

// NewBeacon wraps t. A non-positive timeout uses DefaultBeaconTimeout.
func NewBeacon(t Transport, timeout time.Duration) *Beacon {
	if timeout <= 0 {
		timeout = DefaultBeaconTimeout
	}
	return &Beacon{transport: t, timeout: timeout}
}

// Send posts req once. The returned error is informational only; callers
// are expected to log it and move on.
func (b *Beacon) Send(ctx context.Context, req Request) error {
	// detached so a cancelled caller context doesn't abort the last send
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
	defer cancel()

	resp, err := b.transport.Do(ctx, req)
	if err != nil {
		return err
	}
	return StatusError(req.URL, resp)
}
