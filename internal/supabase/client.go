// Package supabase is the hosted store backend: a PostgREST client plus
// repositories over the users_credits, quizzes, payments_log and
// generation_logs tables.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vyud-ai/vyud/internal/config"
	"github.com/vyud-ai/vyud/internal/storeerr"
)

// pageSize matches the default max-rows of hosted PostgREST.
const pageSize = 1000

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		apiKey:  cfg.SupabaseKey,
		baseURL: strings.TrimRight(cfg.SupabaseURL, "/") + "/rest/v1",
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// StatusError is a non-2xx PostgREST response.
type StatusError struct {
	Status  int
	Code    string
	Message string
	Body    string

	retryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("supabase: status=%d code=%s message=%s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("supabase: status=%d body=%s", e.Status, e.Body)
}

// RetryAfter is the server-suggested wait, zero when none was sent.
func (e *StatusError) RetryAfter() time.Duration {
	return e.retryAfter
}

// request describes one PostgREST call.
type request struct {
	method string
	path   string
	query  url.Values
	body   any
	prefer string
}

func (c *Client) do(ctx context.Context, req request, out any) error {
	endpoint := c.baseURL + "/" + strings.TrimLeft(req.path, "/")
	if len(req.query) > 0 {
		endpoint += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("apikey", c.apiKey)
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.prefer != "" {
		httpReq.Header.Set("Prefer", req.prefer)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s %s: %w", req.method, req.path, err)
		}
		return storeerr.Transient(fmt.Errorf("%s %s: %w", req.method, req.path, err))
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return storeerr.Transient(fmt.Errorf("read response body: %w", err))
	}

	if resp.StatusCode >= 300 {
		statusErr := newStatusError(resp, rawBody)
		if c.log != nil {
			c.log.Debug("supabase request failed", "method", req.method, "path", req.path, "status", resp.StatusCode, "code", statusErr.Code)
		}
		return classifyStatus(statusErr)
	}

	if out == nil || len(bytes.TrimSpace(rawBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(rawBody, out); err != nil {
		return fmt.Errorf("decode %s response: %w (body=%s)", req.path, err, truncateBody(rawBody))
	}
	return nil
}

// selectAll pages through a GET until a short page arrives.
func selectAll[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	var all []T
	for offset := 0; ; offset += pageSize {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("limit", strconv.Itoa(pageSize))
		q.Set("offset", strconv.Itoa(offset))

		var page []T
		if err := c.do(ctx, request{method: http.MethodGet, path: path, query: q}, &page); err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}

func newStatusError(resp *http.Response, rawBody []byte) *StatusError {
	statusErr := &StatusError{
		Status: resp.StatusCode,
		Body:   truncateBody(rawBody),
	}
	var apiErr struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(rawBody, &apiErr) == nil {
		statusErr.Code = apiErr.Code
		statusErr.Message = apiErr.Message
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After"))); err == nil && secs > 0 {
		statusErr.retryAfter = time.Duration(secs) * time.Second
	}
	return statusErr
}

// classifyStatus maps HTTP and Postgres codes onto the storeerr taxonomy.
func classifyStatus(err *StatusError) error {
	switch {
	case err.Code == "23505" || err.Status == http.StatusConflict:
		return storeerr.Duplicate(err)
	case err.Status == http.StatusRequestTimeout,
		err.Status == http.StatusTooManyRequests,
		err.Status >= 500:
		return storeerr.Transient(err)
	case err.Status == http.StatusUnauthorized,
		err.Status == http.StatusForbidden,
		err.Code == "PGRST202", // function not found
		err.Code == "PGRST205", // table not found
		err.Code == "42P01",
		err.Code == "42883":
		return storeerr.Configuration(err)
	}
	return err
}

func eq(value string) string {
	return "eq." + value
}

func truncateBody(body []byte) string {
	const max = 512
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "..."
}
