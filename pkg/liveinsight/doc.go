/*
Package liveinsight is a client for the LiveInsight collector: it tracks
page views, clicks, conversions and custom events, groups them into
batches and delivers them with bounded retry.

# Overview

A Client is created with New, started with Init and stopped with Close.
Init resolves the visitor's session against storage (reusing it while the
last activity is within the session timeout), starts a background flush
and a single delivery worker, and tracks the initial page view.

	client, err := liveinsight.Init("abc123", liveinsight.Settings{},
	    liveinsight.WithEndpoint("https://collector.example.com/api"),
	    liveinsight.WithPage(event.Page{URL: "https://shop.example.com/"}),
	)
	if err != nil {
	    return err
	}
	defer client.Close(context.Background())

	client.Track("signup", map[string]any{"plan": "pro"})

# Batching

Events are queued and sent as {"events":[...]} once BatchSize events are
waiting, or every FlushInterval when the queue is non-empty. A failed
delivery is retried after RetryDelay * attempt, up to RetryAttempts
attempts in total, then dropped with an error log.

# Page Lifecycle

The host forwards page signals: HandleUnload when the page closes,
HandleVisibilityChange when the tab is hidden or shown, and Navigate for
client-side route changes.

# Errors

Tracking never blocks on the network and never panics into the host.
Calls before Init or after Close return ErrNotInitialized; delivery,
storage and token failures are logged and absorbed.
*/
package liveinsight
