// Package remote talks to the server that receives synced health records.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/healthsync/internal/domain"
)

// HTTPError represents a non-2xx response from the server.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth retrying.
func (e *HTTPError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client is the HTTP implementation of the remote authority.
type Client struct {
	baseURL    string
	userID     string
	token      string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewClient constructs a Client for userID. Lookups retry transient failures a few
// times; uploads are single attempts because the upload queue owns their retries.
func NewClient(baseURL, userID, token string, httpClient *http.Client) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:3000"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		userID:     strings.TrimSpace(userID),
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
		maxRetries: 3,
		baseDelay:  200 * time.Millisecond,
		maxDelay:   5 * time.Second,
	}
}

type latestResponse struct {
	Success *string `json:"success"`
}

// LatestTimestamp returns the newest timestamp the server holds for activity.
func (c *Client) LatestTimestamp(ctx context.Context, activity string) (time.Time, bool, error) {
	path := fmt.Sprintf("/activities/%s/%s/latest", url.PathEscape(activity), url.PathEscape(c.userID))
	var out latestResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, nil, &out, c.maxRetries); err != nil {
		return time.Time{}, false, err
	}
	if out.Success == nil {
		return time.Time{}, false, nil
	}
	ts, ok := domain.ParseTimestamp(*out.Success)
	return ts, ok, nil
}

// Upload posts one record. Only a 2xx status counts as delivered.
func (c *Client) Upload(ctx context.Context, record domain.Record) error {
	body := make(map[string]any, len(record.Payload)+1)
	for k, v := range record.Payload {
		body[k] = v
	}
	if _, ok := body["user_id"]; !ok && c.userID != "" {
		body["user_id"] = c.userID
	}
	headers := map[string]string{"Idempotency-Key": IdempotencyKey(record)}
	path := fmt.Sprintf("/activities/%s", url.PathEscape(record.Activity))
	return c.doJSON(ctx, http.MethodPost, path, headers, body, nil, 0)
}

// IdempotencyKey derives a stable key for a record so a retried upload can be
// recognised by the server.
func IdempotencyKey(record domain.Record) string {
	payload, err := json.Marshal(record.Payload)
	if err != nil {
		payload = []byte(fmt.Sprint(record.Payload))
	}
	name := record.Activity + "|" + record.Timestamp.UTC().Format(time.RFC3339Nano) + "|" + string(payload)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

func (c *Client) doJSON(
	ctx context.Context,
	method, requestPath string,
	headers map[string]string,
	body any,
	out any,
	maxRetries int,
) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}
	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for key, value := range headers {
			req.Header.Set(key, value)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < maxRetries && ctx.Err() == nil {
				if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return err
		}
		payload, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(payload) == 0 {
				return nil
			}
			return json.Unmarshal(payload, out)
		}

		httpErr := &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
		if httpErr.Retryable() && attempt < maxRetries {
			if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return waitErr
			}
			continue
		}
		return httpErr
	}
}

func (c *Client) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if retryAfter := parseRetryAfter(retryAfterHeader); retryAfter > 0 {
		if retryAfter > c.maxDelay {
			return c.maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	return delay
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if ts, err := http.ParseTime(header); err == nil {
		if delta := time.Until(ts); delta > 0 {
			return delta
		}
	}
	return 0
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
