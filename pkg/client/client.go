package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// ErrNotReady is returned when the node reports that its settlement layer
// is unavailable. Establish connectivity before retrying.
var ErrNotReady = errors.New("node settlement layer not ready")

// SubmitResult holds the correlation handle returned by Post.
type SubmitResult struct {
	Handle string `json:"handle"`
	Status string `json:"status"`
}

// ViewEntry is one row of the node's local view. Index is -1 while the
// entry is still pending settlement.
type ViewEntry struct {
	Author string `json:"author"`
	Body   string `json:"body"`
	Status string `json:"status"`
	Index  int    `json:"index"`
}

// Submission is the tracked record of one append request.
type Submission struct {
	Handle      string    `json:"handle"`
	Author      string    `json:"author"`
	Body        string    `json:"body"`
	Status      string    `json:"status"`
	Reason      string    `json:"reason,omitempty"`
	Index       int       `json:"index"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// LedgerOverview holds the chain length and tip hash.
type LedgerOverview struct {
	Entries int    `json:"entries"`
	Root    string `json:"root"`
}

// Event is a coordinator notification received via Watch.
type Event struct {
	Kind   string `json:"kind"`
	Handle string `json:"handle,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Client is the guestchain SDK entry point.
type Client struct {
	base       string
	httpClient *http.Client
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		c.httpClient.Timeout = d
		return nil
	}
}

// New creates a Client connected to a guestchain node at base,
// e.g. "http://localhost:8080".
func New(base string, opts ...Option) (*Client, error) {
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Post submits a guestbook entry and returns its correlation handle.
// The entry is not yet settled when Post returns; poll Submission or use
// Watch to observe the outcome.
func (c *Client) Post(ctx context.Context, author, body string) (*SubmitResult, error) {
	payload, _ := json.Marshal(map[string]string{"author": author, "body": body})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/v1/entries", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	respBody, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var result SubmitResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

// View returns the node's current local view.
func (c *Client) View(ctx context.Context) ([]ViewEntry, error) {
	return c.fetchView(ctx, http.MethodGet, "/api/v1/entries")
}

// Refresh forces the node to re-read the ledger, then returns the view.
func (c *Client) Refresh(ctx context.Context) ([]ViewEntry, error) {
	return c.fetchView(ctx, http.MethodPost, "/api/v1/refresh")
}

func (c *Client) fetchView(ctx context.Context, method, path string) ([]ViewEntry, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var wrapper struct {
		Entries []ViewEntry `json:"entries"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return wrapper.Entries, nil
}

// Submission fetches the tracked record for a handle.
func (c *Client) Submission(ctx context.Context, handle string) (*Submission, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/v1/submissions/"+handle, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var sub Submission
	if err := json.Unmarshal(body, &sub); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &sub, nil
}

// Submissions returns the node's full submission history.
func (c *Client) Submissions(ctx context.Context) ([]Submission, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/v1/submissions", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var wrapper struct {
		Submissions []Submission `json:"submissions"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return wrapper.Submissions, nil
}

// LedgerOverview returns the chain length and current root hash.
func (c *Client) LedgerOverview(ctx context.Context) (*LedgerOverview, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/v1/ledger", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var overview LedgerOverview
	if err := json.Unmarshal(body, &overview); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &overview, nil
}

// VerifyLedger asks the node to walk its chain. It returns (true, "") on an
// intact chain, or (false, reason) when the check fails.
func (c *Client) VerifyLedger(ctx context.Context) (bool, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/v1/ledger/verify", nil)
	if err != nil {
		return false, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return false, "", err
	}

	var resp struct {
		Valid bool   `json:"valid"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, "", fmt.Errorf("decode response: %w", err)
	}
	return resp.Valid, resp.Error, nil
}

// Watch connects to the node's websocket event stream and calls fn for
// every event until ctx is done or the connection drops.
func (c *Client) Watch(ctx context.Context, fn func(Event)) error {
	wsURL := strings.Replace(c.base, "http", "ws", 1) + "/api/v1/events"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial event stream: %w", err)
	}
	defer conn.Close() //nolint:errcheck

	// Unblock ReadJSON when the caller cancels.
	go func() {
		<-ctx.Done()
		conn.Close() //nolint:errcheck
	}()

	for {
		var e Event
		if err := conn.ReadJSON(&e); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read event: %w", err)
		}
		fn(e)
	}
}

// do executes an HTTP request and returns the response body, mapping
// error statuses to SDK errors.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusServiceUnavailable:
		return nil, ErrNotReady
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("not found: %s", req.URL.Path)
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("server error %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
