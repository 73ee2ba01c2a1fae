package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to the DataSage analysis backend over HTTP.
type Client struct {
	httpClient       *http.Client
	baseURL          string
	host             string
	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
}

// NewClient allows customizing HTTP timeout and retry/backoff behavior.
func NewClient(baseURL string, httpTimeout time.Duration, retryMax int, baseDelay, maxDelay time.Duration) *Client {
	if httpTimeout <= 0 {
		httpTimeout = 30 * time.Second
	}
	if retryMax <= 0 {
		retryMax = 3
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 4 * time.Second
	}
	baseURL = strings.TrimRight(baseURL, "/")
	host := baseURL
	if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
		host = u.Host
	}
	return &Client{
		httpClient:       &http.Client{Timeout: httpTimeout},
		baseURL:          baseURL,
		host:             host,
		retryMaxAttempts: retryMax,
		retryBaseDelay:   baseDelay,
		retryMaxDelay:    maxDelay,
	}
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string { return c.baseURL }

// Health checks that the backend answers on /health.
func (c *Client) Health(ctx context.Context) error {
	return c.getJSON(ctx, "/health", nil)
}

// ColumnStatistics fetches aggregate statistics for one column of a session.
func (c *Client) ColumnStatistics(ctx context.Context, sessionID, column string) (*ColumnStatistics, error) {
	var out ColumnStatistics
	p := fmt.Sprintf("/sessions/%s/columns/%s/statistics", url.PathEscape(sessionID), url.PathEscape(column))
	if err := c.getJSON(ctx, p, &out); err != nil {
		return nil, err
	}
	if out.Column == "" {
		out.Column = column
	}
	return &out, nil
}

// Distribution fetches the histogram of one column of a session.
func (c *Client) Distribution(ctx context.Context, sessionID, column string) (*Distribution, error) {
	var out Distribution
	p := fmt.Sprintf("/sessions/%s/distribution/%s", url.PathEscape(sessionID), url.PathEscape(column))
	if err := c.getJSON(ctx, p, &out); err != nil {
		return nil, err
	}
	if out.Column == "" {
		out.Column = column
	}
	return &out, nil
}

// Correlation fetches the pairwise correlations of a session's numeric columns.
func (c *Client) Correlation(ctx context.Context, sessionID string) (*Correlation, error) {
	var out Correlation
	p := fmt.Sprintf("/sessions/%s/correlation", url.PathEscape(sessionID))
	if err := c.getJSON(ctx, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// getJSON issues a GET with retries on 429, 5xx and transient network errors
// and decodes a 2xx body into out when out is non-nil.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	if c.baseURL == "" {
		return errors.New("backend url is not configured")
	}
	endpoint := c.baseURL + path
	maxAttempts := c.retryMaxAttempts
	backoff := c.retryBaseDelay

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if isRetryableNetErr(err) && attempt < maxAttempts {
				lastErr = err
				if err := sleepCtx(ctx, withJitter(backoff)); err != nil {
					return err
				}
				backoff *= 2
				continue
			}
			return &UnreachableError{Host: c.host, Err: err}
		}

		var wait time.Duration
		retry := false
		func() {
			defer resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				lastErr = nil
				if out == nil {
					_, _ = io.Copy(io.Discard, resp.Body)
					return
				}
				if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
					lastErr = fmt.Errorf("decode response: %w", err)
				}
				return
			}
			apiErr := decodeAPIError(resp)
			if (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500) && attempt < maxAttempts {
				retry = true
				lastErr = classifyAPIError(apiErr, resp)
				if secs, err := parseRetryAfterSeconds(resp.Header.Get("Retry-After")); err == nil && secs >= 0 {
					wait = time.Duration(secs) * time.Second
					return
				}
				wait = withJitter(backoff)
				if c.retryMaxDelay > 0 && wait > c.retryMaxDelay {
					wait = c.retryMaxDelay
				}
				backoff *= 2
				return
			}
			lastErr = classifyAPIError(apiErr, resp)
		}()
		if !retry {
			return lastErr
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
	return lastErr
}

// decodeAPIError reads a bounded error body. It understands {"error": {...}},
// {"error": "..."}, {"detail": "..."} and {"message": "..."}.
func decodeAPIError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	var raw map[string]any
	_ = json.Unmarshal(body, &raw)
	apiErr := &APIError{StatusCode: resp.StatusCode, Raw: raw, RequestID: extractRequestID(resp)}
	src := raw
	if v, ok := raw["error"].(map[string]any); ok {
		src = v
	} else if s, ok := raw["error"].(string); ok {
		apiErr.Message = s
	}
	if msg, ok := src["message"].(string); ok {
		apiErr.Message = msg
	}
	if msg, ok := src["detail"].(string); ok && apiErr.Message == "" {
		apiErr.Message = msg
	}
	if code, ok := src["code"].(string); ok {
		apiErr.Code = code
	}
	if apiErr.Message == "" && raw == nil {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

// classifyAPIError maps a generic APIError to a typed error.
func classifyAPIError(apiErr *APIError, resp *http.Response) error {
	switch sc := apiErr.StatusCode; {
	case sc == http.StatusNotFound:
		return &NotFoundError{APIError: apiErr}
	case sc == http.StatusBadRequest || sc == http.StatusUnprocessableEntity:
		return &BadRequestError{APIError: apiErr}
	case sc == http.StatusTooManyRequests:
		var ra time.Duration
		if secs, err := parseRetryAfterSeconds(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			ra = time.Duration(secs) * time.Second
		}
		return &RateLimitError{APIError: apiErr, RetryAfter: ra}
	case sc >= 500 && sc <= 599:
		return &ServerError{APIError: apiErr}
	}
	return apiErr
}

func isRetryableNetErr(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// parseRetryAfterSeconds interprets a Retry-After header value as seconds or an HTTP date.
func parseRetryAfterSeconds(v string) (int, error) {
	if v == "" {
		return 0, errors.New("empty Retry-After")
	}
	if s, err := strconv.Atoi(v); err == nil {
		return s, nil
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return int(d.Seconds()), nil
	}
	return 0, fmt.Errorf("invalid Retry-After: %q", v)
}

// extractRequestID pulls a best-effort request ID from common headers.
func extractRequestID(resp *http.Response) string {
	if resp == nil {
		return ""
	}
	for _, k := range []string{"X-Request-Id", "X-Correlation-Id", "X-Amzn-Requestid"} {
		if v := resp.Header.Get(k); v != "" {
			return v
		}
	}
	return ""
}

// withJitter returns a backoff duration with +/- 20% jitter applied.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 500 * time.Millisecond
	}
	f := 0.8 + rand.Float64()*0.4
	out := time.Duration(float64(d) * f)
	if out <= 0 {
		return d
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
