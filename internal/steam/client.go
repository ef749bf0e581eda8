package steam

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const (
	// APIBaseURL is the Steam Web API host
	APIBaseURL = "https://api.steampowered.com"

	// CommunityBaseURL is the Steam Community host used for profile links and vanity lookups
	CommunityBaseURL = "https://steamcommunity.com"
)

// FetchError describes a failed Steam API call: transport error, timeout,
// unexpected status or an undecodable body.
type FetchError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("steam %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("steam %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Client is a Steam Web API client with rate limiting
type Client struct {
	apiKey       string
	baseURL      string
	communityURL string
	httpClient   *http.Client

	// Simple rate limiter
	mu          sync.Mutex
	lastRequest time.Time
	minInterval time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL points the client at a different API host
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithCommunityURL points vanity URL lookups at a different community host
func WithCommunityURL(communityURL string) Option {
	return func(c *Client) { c.communityURL = communityURL }
}

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMinInterval sets the minimum delay between two requests
func WithMinInterval(d time.Duration) Option {
	return func(c *Client) { c.minInterval = d }
}

// NewClient creates a new Steam API client
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:       apiKey,
		baseURL:      APIBaseURL,
		communityURL: CommunityBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		// Steam allows 100k calls per day; stay well below bursts
		minInterval: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// wait blocks until the rate limiter admits the next request or ctx is done
func (c *Client) wait(ctx context.Context) error {
	c.mu.Lock()
	delay := c.minInterval - time.Since(c.lastRequest)
	if delay < 0 {
		delay = 0
	}
	c.lastRequest = time.Now().Add(delay)
	c.mu.Unlock()

	if delay == 0 {
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// doRequest performs an HTTP request with rate limiting
func (c *Client) doRequest(ctx context.Context, url string) (*http.Response, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	// Handle rate limiting (429)
	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		// Wait and retry once
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(1 * time.Second):
		}
		retry, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		return c.httpClient.Do(retry)
	}

	return resp, nil
}

// get performs a GET request and decodes the JSON response
func (c *Client) get(ctx context.Context, op, url string, result interface{}) error {
	resp, err := c.doRequest(ctx, url)
	if err != nil {
		return &FetchError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &FetchError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected response: %s", string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return &FetchError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	return nil
}

// ProfileURL returns the community profile link for a SteamID64
func ProfileURL(steamID string) string {
	return CommunityBaseURL + "/profiles/" + steamID
}
