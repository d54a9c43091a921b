package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/folio/internal/apperr"
	"github.com/fyrsmithlabs/folio/internal/autosave"
	apihttp "github.com/fyrsmithlabs/folio/internal/http"
	"github.com/fyrsmithlabs/folio/internal/resume"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", WithToken("tok"), WithRetryInterval(time.Millisecond))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestPersist(t *testing.T) {
	var got resume.Snapshot
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v1/resumes", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, apihttp.SaveResponse{ID: "r1", PhotoURL: "https://blobs/p.png"})
	})

	res, err := c.Persist(context.Background(), resume.Snapshot{Title: "CV", Skills: []string{"Go"}})
	require.NoError(t, err)
	assert.Equal(t, autosave.Persisted{ID: "r1", PhotoURL: "https://blobs/p.png"}, res)
	assert.Equal(t, "CV", got.Title)
	assert.Equal(t, []string{"Go"}, got.Skills)
}

func TestAPIErrorKinds(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, apihttp.ErrorBody{Error: apihttp.ErrorDetail{
			Kind:    "quota_exceeded",
			Message: "maximum resume count reached for this subscription level",
		}})
	})

	_, err := c.SaveResume(context.Background(), resume.Snapshot{Title: "Second"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrQuotaExceeded)
	assert.NotErrorIs(t, err, apperr.ErrValidation)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Contains(t, err.Error(), "maximum resume count")
}

func TestValidationIssues(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, apihttp.ErrorBody{Error: apihttp.ErrorDetail{
			Kind:   "validation_failed",
			Issues: []apperr.Issue{{Field: "email", Message: "must be a valid email address"}},
		}})
	})

	_, err := c.SaveResume(context.Background(), resume.Snapshot{ID: "r1", Email: "nope"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	require.Len(t, apiErr.Issues, 1)
	assert.Equal(t, "email", apiErr.Issues[0].Field)
}

func TestRetries(t *testing.T) {
	tests := []struct {
		name      string
		call      func(*Client) error
		status    int
		wantCalls int32
	}{
		{
			name:      "idempotent get retried on 503",
			call:      func(c *Client) error { _, err := c.GetResume(context.Background(), "r1"); return err },
			status:    http.StatusServiceUnavailable,
			wantCalls: 3,
		},
		{
			name:      "update retried on 502",
			call:      func(c *Client) error { _, err := c.SaveResume(context.Background(), resume.Snapshot{ID: "r1"}); return err },
			status:    http.StatusBadGateway,
			wantCalls: 3,
		},
		{
			name:      "create not retried",
			call:      func(c *Client) error { _, err := c.SaveResume(context.Background(), resume.Snapshot{}); return err },
			status:    http.StatusBadGateway,
			wantCalls: 1,
		},
		{
			name:      "client errors not retried",
			call:      func(c *Client) error { return c.DeleteResume(context.Background(), "r1") },
			status:    http.StatusNotFound,
			wantCalls: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			})
			err := tt.call(c)
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestRetryRecovers(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, resume.ListResult{TotalCount: 2})
	})

	res, err := c.ListResumes(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalCount)
	assert.Equal(t, int32(2), calls.Load())
}

func TestListResumesQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Equal(t, "10", r.URL.Query().Get("offset"))
		writeJSON(w, http.StatusOK, resume.ListResult{})
	})
	_, err := c.ListResumes(context.Background(), 5, 10)
	require.NoError(t, err)
}

func TestDeleteResume(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/v1/resumes/a%2Fb", r.URL.EscapedPath())
		w.WriteHeader(http.StatusNoContent)
	})
	assert.NoError(t, c.DeleteResume(context.Background(), "a/b"))
}

func TestHealth(t *testing.T) {
	status := http.StatusOK
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Content-Type"))
		if status == http.StatusOK {
			writeJSON(w, status, apihttp.HealthResponse{Status: "ok"})
			return
		}
		writeJSON(w, status, apihttp.HealthResponse{Status: "degraded"})
	})

	got, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", got)

	status = http.StatusServiceUnavailable
	got, err = New(c.baseURL, WithMaxTries(1)).Health(context.Background())
	assert.Error(t, err)
	assert.Equal(t, "degraded", got)
}

func TestContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.GetResume(ctx, "r1")
	assert.ErrorIs(t, err, context.Canceled)
}
