package liveinsight

import (
	"context"

	"github.com/randalmurphal/liveinsight/pkg/liveinsight/event"
	"github.com/randalmurphal/liveinsight/pkg/liveinsight/observability"
)

// Page lifecycle hooks. The host calls these from whatever signals it has
// for navigation, tab visibility and unload.

// HandleUnload is called when the page is going away. Queued events are
// sent immediately as beacons (one attempt each, no retry), followed by a
// page_exit beacon; a session_end event is then queued for the final
// flush. Beacons carry the CSRF token only if one is already cached.
// Beacon failures are logged and counted as dropped.
func (c *Client) HandleUnload(ctx context.Context) error {
	c.mu.Lock()
	r := c.run
	if r == nil {
		c.mu.Unlock()
		observability.LogNotInitialized(c.cfg.logger, "unload")
		return ErrNotInitialized
	}
	pending := r.queue.Drain(r.settings.BatchSize)
	exit := c.newEventLocked(r, event.TypePageExit, nil)
	c.mu.Unlock()

	// the queue was emptied under the lock, so these events can't also be
	// picked up by a periodic flush
	for _, events := range append(pending, []event.Event{exit}) {
		if err := r.deliverer.Beacon(ctx, r.identity.SessionID, events); err != nil {
			observability.LogBeaconFailed(r.logger, events[0].Type(), err)
			c.record(len(events), 0)
			continue
		}
		c.record(len(events), len(events))
	}

	return c.Track(event.TypeSessionEnd, nil)
}

// HandleVisibilityChange records the tab being hidden or shown. Becoming
// visible also counts as session activity.
func (c *Client) HandleVisibilityChange(hidden bool) error {
	return c.with("visibility_change", func(r *run) {
		if hidden {
			c.enqueueLocked(r, event.TypePageHidden, nil)
			return
		}
		c.enqueueLocked(r, event.TypePageVisible, nil)
		r.sessions.Touch(r.identity, c.cfg.now())
	})
}

// Navigate switches to page p and tracks a page_view for it, the
// equivalent of a client-side route change.
func (c *Client) Navigate(p event.Page) error {
	return c.with("navigate", func(r *run) {
		c.page = p
		c.enqueueLocked(r, event.TypePageView, p.PageViewProperties())
	})
}
