package torn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"
)

const (
	BaseURL = "https://api.torn.com"
)

// Error codes returned in the API error payload
const (
	CodeUnknown          = 0
	CodeKeyEmpty         = 1
	CodeIncorrectKey     = 2
	CodeIncorrectID      = 6
	CodeKeyOwnerInJail   = 10
	CodeKeyDisabled      = 13
	CodeAccessLevel      = 16
	CodeKeyPaused        = 18
	CodeRequestTimedOut  = -1
	CodeTransportFailure = -2
)

// APIError represents an error payload returned by the API
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error code %d: %s", e.Code, e.Message)
}

// KeyRejected reports whether the error is about the key rather than the request
func (e *APIError) KeyRejected() bool {
	switch e.Code {
	case CodeKeyEmpty, CodeIncorrectKey, CodeKeyOwnerInJail, CodeKeyDisabled, CodeAccessLevel, CodeKeyPaused:
		return true
	}
	return false
}

type errorPayload struct {
	Error *APIError `json:"error"`
}

// Client is a Torn API client with rate limiting
type Client struct {
	baseURL    string
	httpClient *http.Client

	// Simple rate limiter
	mu          sync.Mutex
	lastRequest time.Time
	minInterval time.Duration
}

// NewClient creates a new Torn API client.
// An empty baseURL selects the public API.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = BaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		// Rate limit: ~20 requests per second (50ms between requests)
		minInterval: 50 * time.Millisecond,
	}
}

// doRequest performs an HTTP request with rate limiting
func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < c.minInterval {
		time.Sleep(c.minInterval - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	// Handle rate limiting (429)
	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(1 * time.Second):
		}
		return c.httpClient.Do(req)
	}

	return resp, nil
}

// get performs a GET request for one section and decodes the JSON response.
// Error payloads come back with HTTP 200 and are returned as *APIError.
func (c *Client) get(ctx context.Context, section, id string, fields []string, key string, result interface{}) error {
	endpoint := fmt.Sprintf("%s/%s/%s?selections=%s&key=%s",
		c.baseURL, section, url.PathEscape(id), url.QueryEscape(strings.Join(fields, ",")), url.QueryEscape(key))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.doRequest(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(err)
	}

	if resp.StatusCode != http.StatusOK {
		return &APIError{
			Code:    CodeUnknown,
			Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, HideKey(string(body))),
		}
	}

	var payload errorPayload
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != nil {
		return payload.Error
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// transportError converts a failed call into an APIError so callers can
// treat timeouts like any other provider failure
func transportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return &APIError{Code: CodeRequestTimedOut, Message: "request timed out"}
	}
	return &APIError{Code: CodeTransportFailure, Message: HideKey(err.Error())}
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

var keyPattern = regexp.MustCompile(`\b[A-Za-z0-9]{16}\b`)

// HideKey masks anything that looks like an API key
func HideKey(s string) string {
	return keyPattern.ReplaceAllString(s, "****************")
}
