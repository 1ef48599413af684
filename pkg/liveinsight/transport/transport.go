// Package transport sends JSON requests to the collection and token
// endpoints.
//
// Two paths exist: HTTP, built on *http.Client (the modern path), and
// Legacy, which drives a bare http.RoundTripper for hosts that cannot or
// will not supply a client. Both build requests with NewHTTPRequest, so the
// headers and session metadata are identical whichever path runs.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	lierrors "github.com/randalmurphal/liveinsight/pkg/liveinsight/errors"
)

// Header names sent with every collection request.
const (
	HeaderContentType = "Content-Type"
	HeaderAPIKey      = "X-API-Key"
	HeaderCSRFToken   = "X-CSRF-Token"
	HeaderSessionID   = "X-Session-ID"
)

// maxResponseBody caps how much of a response is read.
const maxResponseBody = 64 << 10

// Request is one JSON POST.
type Request struct {
	URL  string
	Body []byte

	// SessionID, APIKey and CSRFToken become headers when non-empty.
	SessionID string
	APIKey    string
	CSRFToken string
}

// Response is a fully read response.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the status is 2xx.
func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Transport performs a Request.
// A non-nil error means no response was obtained; status handling is the
// caller's job.
type Transport interface {
	Do(ctx context.Context, req Request) (Response, error)
}

// NewHTTPRequest builds the POST for req.
func NewHTTPRequest(ctx context.Context, req Request) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set(HeaderContentType, "application/json")
	if req.APIKey != "" {
		httpReq.Header.Set(HeaderAPIKey, req.APIKey)
	}
	if req.CSRFToken != "" {
		httpReq.Header.Set(HeaderCSRFToken, req.CSRFToken)
	}
	if req.SessionID != "" {
		httpReq.Header.Set(HeaderSessionID, req.SessionID)
	}
	return httpReq, nil
}

// HTTP sends requests with an *http.Client.
type HTTP struct {
	Client *http.Client
}

// NewHTTP returns an HTTP transport. A nil client gets a 10s-timeout default.
func NewHTTP(client *http.Client) *HTTP {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTP{Client: client}
}

// Do implements Transport.
func (t *HTTP) Do(ctx context.Context, req Request) (Response, error) {
	httpReq, err := NewHTTPRequest(ctx, req)
	if err != nil {
		return Response{}, err
	}
	resp, err := t.Client.Do(httpReq)
	if err != nil {
		return Response{}, &lierrors.TransportError{Endpoint: req.URL, Err: err}
	}
	return readResponse(req.URL, resp)
}

// Legacy sends requests through a bare http.RoundTripper: no redirects,
// no cookie jar, no client timeout beyond the context.
type Legacy struct {
	RoundTripper http.RoundTripper
}

// NewLegacy returns a Legacy transport. A nil round tripper uses http.DefaultTransport.
func NewLegacy(rt http.RoundTripper) *Legacy {
	if rt == nil {
		rt = http.DefaultTransport
	}
	return &Legacy{RoundTripper: rt}
}

// Do implements Transport.
func (t *Legacy) Do(ctx context.Context, req Request) (Response, error) {
	httpReq, err := NewHTTPRequest(ctx, req)
	if err != nil {
		return Response{}, err
	}
	resp, err := t.RoundTripper.RoundTrip(httpReq)
	if err != nil {
		return Response{}, &lierrors.TransportError{Endpoint: req.URL, Err: err}
	}
	return readResponse(req.URL, resp)
}

// Select returns the HTTP path when a client is available and the Legacy
// path otherwise.
func Select(client *http.Client, rt http.RoundTripper) Transport {
	if client != nil {
		return NewHTTP(client)
	}
	return NewLegacy(rt)
}

func readResponse(endpoint string, resp *http.Response) (Response, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return Response{}, &lierrors.TransportError{Endpoint: endpoint, Err: fmt.Errorf("read body: %w", err)}
	}
	return Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// StatusError converts a non-2xx response into an *errors.HTTPError.
// Returns nil for 2xx.
func StatusError(endpoint string, resp Response) error {
	if resp.OK() {
		return nil
	}
	return &lierrors.HTTPError{
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
		Endpoint:   endpoint,
	}
}
