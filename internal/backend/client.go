// Package backend is the HTTP client of the REST store that holds linked
// calendars, canonical events and computed availability.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxErrorBody = 64 << 10

// Client talks to the backend store. Authentication is the job of the
// supplied http.Client (see auth.BackendHTTPClient).
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client for the backend at baseURL. A nil httpClient uses
// http.DefaultClient and a nil logger discards output.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend URL %q: scheme and host are required", baseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{baseURL: u, httpClient: httpClient, logger: logger}, nil
}

type request struct {
	op     string
	method string
	path   []string
	query  url.Values
	body   any
	header http.Header
}

// do sends req and decodes a successful response into dst when dst is not nil.
func (c *Client) do(ctx context.Context, req request, dst any) error {
	escaped := make([]string, len(req.path))
	for i, p := range req.path {
		escaped[i] = url.PathEscape(p)
	}
	u := c.baseURL.JoinPath(escaped...)
	if len(req.query) > 0 {
		u.RawQuery = req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", req.op, err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), body)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", req.op, err)
	}
	for k, vs := range req.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", uuid.NewString())

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Debug("backend request failed", "op", req.op, "error", err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("failed to %s: %w", req.op, ctxErr)
		}
		return &TransportError{Op: req.op, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("backend request",
		"op", req.op,
		"method", req.method,
		"path", u.Path,
		"status", resp.StatusCode,
		"duration", time.Since(started))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &RejectedError{
			Op:         req.op,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(raw),
			Body:       raw,
		}
	}

	if dst == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to %s: empty response body", req.op)
		}
		return fmt.Errorf("failed to decode %s response: %w", req.op, err)
	}
	return nil
}

// errorMessage extracts the human-readable part of an error body.
func errorMessage(raw []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(string(raw))
}

func windowQuery(start, end time.Time) url.Values {
	q := url.Values{}
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("end", end.UTC().Format(time.RFC3339))
	return q
}
