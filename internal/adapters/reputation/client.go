// Package reputation implements the network-backed signals that ask third
// party reputation services about a message's sender, links and origin.
package reputation

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
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrUnavailable wraps every provider failure: missing data, non-2xx status,
// network error or an undecodable body.
var ErrUnavailable = errors.New("reputation provider unavailable")

// maxResponseBytes bounds how much of a provider response is read
const maxResponseBytes = 1 << 20

// Client is a rate-limited JSON client for one provider
type Client struct {
	name       string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates a client for the provider called name. A non-positive
// requestsPerMinute disables rate limiting.
func NewClient(name, baseURL string, requestsPerMinute int, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), requestsPerMinute)
	}

	return &Client{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		limiter:    limiter,
		logger:     logger.With(zap.String("provider", name)),
	}
}

// Name returns the provider name
func (c *Client) Name() string {
	return c.name
}

// GetJSON issues a GET request and decodes the JSON response into out
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, header http.Header, out interface{}) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, query, header, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

// PostJSON encodes body as JSON, POSTs it and decodes the JSON response into out
func (c *Client) PostJSON(ctx context.Context, path string, query url.Values, header http.Header, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", c.name, err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, query, header, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, header http.Header, body io.Reader) (*http.Request, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, c.name, err)
	}
	for k, values := range header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return c.fail("rate limit wait aborted", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.fail("request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return c.fail("failed to read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.fail("unexpected status", &StatusError{Provider: c.name, Code: resp.StatusCode})
	}

	if err := json.Unmarshal(body, out); err != nil {
		return c.fail("malformed response", err)
	}
	return nil
}

// fail logs a provider failure and wraps it in ErrUnavailable
func (c *Client) fail(msg string, err error) error {
	c.logger.Warn("Reputation lookup failed: "+msg, zap.Error(err))
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, c.name, err)
}

// StatusError reports a non-2xx provider response
type StatusError struct {
	Provider string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d", e.Provider, e.Code)
}

// IsNotFound reports whether err is a 404 from the provider
func IsNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound
}
