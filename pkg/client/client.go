// Package client is a Go client for the folio HTTP API.
//
// Client implements autosave.Persister, so an editor session can drive a
// Reconciler directly against a running server:
//
//	c := client.New("http://localhost:8080", client.WithToken(tok))
//	r := autosave.New(c, initial)
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
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/fyrsmithlabs/folio/internal/apperr"
	"github.com/fyrsmithlabs/folio/internal/autosave"
	"github.com/fyrsmithlabs/folio/internal/billing"
	apihttp "github.com/fyrsmithlabs/folio/internal/http"
	"github.com/fyrsmithlabs/folio/internal/resume"
)

// Client talks to a folio server.
type Client struct {
	baseURL    string
	token      string
	http       *http.Client
	maxTries   uint
	retryAfter time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent on /api routes.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMaxTries bounds attempts for idempotent requests. 1 disables retries.
func WithMaxTries(n uint) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTries = n
		}
	}
}

// WithRetryInterval sets the initial backoff between attempts.
func WithRetryInterval(d time.Duration) Option {
	return func(c *Client) { c.retryAfter = d }
}

// New creates a Client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: 30 * time.Second},
		maxTries:   3,
		retryAfter: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response. It matches the apperr kind sentinels, so
// errors.Is(err, apperr.ErrQuotaExceeded) works across the wire.
type APIError struct {
	Status  int
	Kind    string
	Message string
	Issues  []apperr.Issue
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("folio: status %d", e.Status)
	}
	return fmt.Sprintf("folio: %s (status %d)", e.Message, e.Status)
}

// Is maps the wire kind back to its sentinel.
func (e *APIError) Is(target error) bool {
	switch e.Kind {
	case "unauthorized":
		return target == apperr.ErrUnauthorized
	case "not_found":
		return target == apperr.ErrNotFound
	case "validation_failed":
		return target == apperr.ErrValidation
	case "quota_exceeded":
		return target == apperr.ErrQuotaExceeded
	case "upstream_failure":
		return target == apperr.ErrUpstream
	}
	return false
}

// Health returns the server status string, "ok" when ready.
func (c *Client) Health(ctx context.Context) (string, error) {
	var out apihttp.HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, &out, true)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusServiceUnavailable {
		return "degraded", err
	}
	return out.Status, err
}

// SaveResume creates (no ID) or updates a resume.
func (c *Client) SaveResume(ctx context.Context, snap resume.Snapshot) (*apihttp.SaveResponse, error) {
	var out apihttp.SaveResponse
	// Creates are never retried.
	if err := c.do(ctx, http.MethodPut, "/api/v1/resumes", snap, &out, snap.ID != ""); err != nil {
		return nil, err
	}
	return &out, nil
}

// Persist implements autosave.Persister.
func (c *Client) Persist(ctx context.Context, snap resume.Snapshot) (autosave.Persisted, error) {
	res, err := c.SaveResume(ctx, snap)
	if err != nil {
		return autosave.Persisted{}, err
	}
	return autosave.Persisted{ID: res.ID, PhotoURL: res.PhotoURL}, nil
}

// GetResume fetches one resume.
func (c *Client) GetResume(ctx context.Context, id string) (*resume.Record, error) {
	var out resume.Record
	if err := c.do(ctx, http.MethodGet, "/api/v1/resumes/"+url.PathEscape(id), nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListResumes returns a page of the caller's resumes, most recently updated
// first.
func (c *Client) ListResumes(ctx context.Context, limit, offset int) (*resume.ListResult, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	path := "/api/v1/resumes"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out resume.ListResult
	if err := c.do(ctx, http.MethodGet, path, nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteResume deletes a resume and its photo.
func (c *Client) DeleteResume(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/resumes/"+url.PathEscape(id), nil, nil, true)
}

// Billing returns the caller's plan overview.
func (c *Client) Billing(ctx context.Context) (*billing.Overview, error) {
	var out billing.Overview
	if err := c.do(ctx, http.MethodGet, "/api/v1/billing", nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, idempotent bool) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = b
	}

	tries := c.maxTries
	if !idempotent {
		tries = 1
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryAfter

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, c.attempt(ctx, method, path, body, out)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(tries))
	return err
}

// attempt performs one request. Errors worth retrying are returned as is,
// everything else is wrapped permanent.
func (c *Client) attempt(ctx context.Context, method, path string, body []byte, out any) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return fmt.Errorf("failed to send request to %s: %w", req.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := decodeError(resp)
		switch resp.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return apiErr
		}
		return backoff.Permanent(apiErr)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

func decodeError(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return apiErr
	}
	var envelope apihttp.ErrorBody
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error.Kind != "" {
		apiErr.Kind = envelope.Error.Kind
		apiErr.Message = envelope.Error.Message
		apiErr.Issues = envelope.Error.Issues
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(raw))
	return apiErr
}

var _ autosave.Persister = (*Client)(nil)
