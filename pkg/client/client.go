// Package client provides a Go client for a swarm simulation server.
// It mirrors the server's command surface (initialize, destroy, step,
// start, stop, snapshot) and can subscribe to the server's websocket
// event stream.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/hello3x3/SwarmRescueUI/internal/sim"
)

// Client talks to a swarm simulation server over HTTP.
// The zero value is not usable; create one with New.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying *http.Client. Useful for tests
// and for callers that need custom transports or timeouts.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// New creates a client for the server at baseURL
// (e.g. "http://localhost:8080").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError reports a non-2xx response from the server.
// Status 409 means the command was rejected by a precondition
// (for example stepping before initializing).
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Body)
}

// IsConflict reports whether err is a StatusError carrying HTTP 409,
// the status the server uses for precondition failures.
func IsConflict(err error) bool {
	var serr *StatusError
	return errors.As(err, &serr) && serr.StatusCode == http.StatusConflict
}

// initializeRequest mirrors the server's /initialize body. Nil fields
// leave the server's configured defaults in place.
type initializeRequest struct {
	Algorithm    *int `json:"algorithm,omitempty"`
	DestroyCount *int `json:"destroy_count,omitempty"`
}

// InitializeOption customizes an Initialize call.
type InitializeOption func(*initializeRequest)

// WithAlgorithm selects the reconnection algorithm mode (0..5).
func WithAlgorithm(mode sim.AlgorithmMode) InitializeOption {
	return func(r *initializeRequest) {
		m := int(mode)
		r.Algorithm = &m
	}
}

// WithDestroyCount sets how many agents are destroyed on the first step.
func WithDestroyCount(n int) InitializeOption {
	return func(r *initializeRequest) { r.DestroyCount = &n }
}

// Initialize resets the simulation to a fresh swarm and returns the
// resulting snapshot. Options omitted fall back to the server's
// configured defaults.
func (c *Client) Initialize(ctx context.Context, opts ...InitializeOption) (*sim.Snapshot, error) {
	req := initializeRequest{}
	for _, opt := range opts {
		opt(&req)
	}
	return c.postSnapshot(ctx, "initialize", req)
}

// DestroyNow destroys count random surviving agents immediately and
// returns the resulting snapshot.
func (c *Client) DestroyNow(ctx context.Context, count int) (*sim.Snapshot, error) {
	return c.postSnapshot(ctx, "destroy", map[string]int{"count": count})
}

// Step advances the simulation by a single step and returns the
// resulting snapshot.
func (c *Client) Step(ctx context.Context) (*sim.Snapshot, error) {
	return c.postSnapshot(ctx, "step", nil)
}

// Start begins auto-stepping on the server.
func (c *Client) Start(ctx context.Context) error {
	return c.postCommand(ctx, "start")
}

// Stop requests a cooperative stop of the auto-stepping loop. The
// in-flight step on the server finishes before the loop parks.
func (c *Client) Stop(ctx context.Context) error {
	return c.postCommand(ctx, "stop")
}

// Snapshot fetches the latest committed simulation snapshot.
func (c *Client) Snapshot(ctx context.Context) (*sim.Snapshot, error) {
	u, err := url.JoinPath(c.baseURL, "snapshot")
	if err != nil {
		return nil, fmt.Errorf("failed to build URL: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.doSnapshot(req)
}

// Subscribe dials the server's websocket endpoint and delivers its
// events on the returned channel until ctx is cancelled or the
// connection drops. The channel is closed when delivery ends.
func (c *Client) Subscribe(ctx context.Context) (<-chan sim.Event, error) {
	wsURL, err := websocketURL(c.baseURL)
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", wsURL, err)
	}
	if resp != nil {
		resp.Body.Close()
	}

	events := make(chan sim.Event, 16)
	go func() {
		defer close(events)
		defer conn.Close()
		go func() {
			<-ctx.Done()
			conn.Close()
		}()
		for {
			var ev sim.Event
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

// websocketURL rewrites an http(s) base URL into the ws(s) URL of the
// server's /ws endpoint.
func websocketURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path, err = url.JoinPath(u.Path, "ws")
	if err != nil {
		return "", fmt.Errorf("failed to build URL: %w", err)
	}
	return u.String(), nil
}

func (c *Client) postSnapshot(ctx context.Context, path string, body any) (*sim.Snapshot, error) {
	u, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return nil, fmt.Errorf("failed to build URL: %w", err)
	}

	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doSnapshot(req)
}

func (c *Client) doSnapshot(req *http.Request) (*sim.Snapshot, error) {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var snap sim.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

func (c *Client) postCommand(ctx context.Context, path string) error {
	u, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return fmt.Errorf("failed to build URL: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return nil
}
