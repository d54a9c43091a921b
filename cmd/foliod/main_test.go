package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/folio/internal/auth"
	"github.com/fyrsmithlabs/folio/internal/config"
	"github.com/fyrsmithlabs/folio/internal/logging"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Version:    dev")
}

func TestMigrateCommand(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("FOLIO_DATABASE_PATH", filepath.Join(dir, "data", "folio.db"))
	t.Setenv("FOLIO_STORAGE_BUCKET_URL", "mem://")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"migrate"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "schema version")
}

func TestWire(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "folio.db")
	cfg.Storage.BucketURL = "mem://"
	cfg.Auth.JWTSecret = "0123456789abcdef0123456789abcdef"

	a, err := wire(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	rec := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	tok, err := auth.IssueToken([]byte(cfg.Auth.JWTSecret.Value()), "", "user_1", "", time.Hour)
	require.NoError(t, err)

	// Without an AI key the generation routes are unavailable.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ai/summary", strings.NewReader(`{"jobTitle":"Engineer"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)
	a.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWire_WeakSecret(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "folio.db")
	cfg.Storage.BucketURL = "mem://"
	cfg.Auth.JWTSecret = "short"

	_, err := wire(context.Background(), cfg, logging.NewNop())
	assert.Error(t, err)
}
