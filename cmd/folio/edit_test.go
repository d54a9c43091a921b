package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/folio/internal/apperr"
	"github.com/fyrsmithlabs/folio/internal/autosave"
	"github.com/fyrsmithlabs/folio/internal/resume"
	"github.com/fyrsmithlabs/folio/pkg/client"
)

type recordingPersister struct {
	mu    sync.Mutex
	saved []resume.Snapshot
	fail  error
}

func (p *recordingPersister) Persist(_ context.Context, s resume.Snapshot) (autosave.Persisted, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return autosave.Persisted{}, p.fail
	}
	p.saved = append(p.saved, s)
	id := s.ID
	if id == "" {
		id = "r1"
	}
	return autosave.Persisted{ID: id}, nil
}

func (p *recordingPersister) setFail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = err
}

func (p *recordingPersister) titles() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.saved))
	for _, s := range p.saved {
		out = append(out, s.Title)
	}
	return out
}

// syncBuffer guards the output shared by the editor and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type editHarness struct {
	path  string
	out   *syncBuffer
	p     *recordingPersister
	input *io.PipeWriter
	sigs  chan os.Signal
	done  chan error
}

func startEditor(t *testing.T, initialYAML string) *editHarness {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cv.yaml")
	writeFile(t, path, initialYAML)

	h := &editHarness{
		path: path,
		out:  &syncBuffer{},
		p:    &recordingPersister{},
		sigs: make(chan os.Signal, 1),
		done: make(chan error, 1),
	}
	pr, pw := io.Pipe()
	h.input = pw
	t.Cleanup(func() { _ = pw.Close() })

	ed := newEditor(path, h.out, h.p, resume.Snapshot{}, 20*time.Millisecond)
	go func() { h.done <- ed.run(context.Background(), pr, h.sigs) }()

	require.Eventually(t, func() bool { return strings.Contains(h.out.String(), "editing") }, time.Second, 5*time.Millisecond)
	return h
}

func (h *editHarness) waitOutput(t *testing.T, s string) {
	t.Helper()
	require.Eventually(t, func() bool { return strings.Contains(h.out.String(), s) }, 2*time.Second, 5*time.Millisecond,
		"output: %s", h.out.String())
}

func (h *editHarness) send(t *testing.T, line string) {
	t.Helper()
	_, err := io.WriteString(h.input, line+"\n")
	require.NoError(t, err)
}

func (h *editHarness) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("editor did not exit")
		return nil
	}
}

func TestEditor_SavesFileChanges(t *testing.T) {
	h := startEditor(t, "title: First\n")
	h.waitOutput(t, "created resume r1")

	writeFile(t, h.path, "title: Second\n")
	require.Eventually(t, func() bool {
		titles := h.p.titles()
		return len(titles) == 2 && titles[1] == "Second"
	}, 2*time.Second, 5*time.Millisecond)

	h.send(t, "q")
	require.NoError(t, h.wait(t))
	assert.Contains(t, h.out.String(), "all changes saved")
	assert.Equal(t, []string{"First", "Second"}, h.p.titles())
}

func TestEditor_RetryAfterFailure(t *testing.T) {
	h := startEditor(t, "title: Draft\n")
	h.waitOutput(t, "created resume r1")

	h.p.setFail(&client.APIError{
		Status: 422,
		Kind:   "validation_failed",
		Issues: []apperr.Issue{{Field: "email", Message: "must be a valid email address"}},
	})
	writeFile(t, h.path, "title: Draft\nemail: nope\n")
	h.waitOutput(t, "save failed: email: must be a valid email address")

	h.p.setFail(nil)
	h.send(t, "r")
	h.waitOutput(t, "saved after retry")

	h.send(t, "q")
	require.NoError(t, h.wait(t))
}

func TestEditor_ConfirmsLeavingUnsaved(t *testing.T) {
	h := startEditor(t, "title: Draft\n")
	h.waitOutput(t, "created resume r1")

	h.p.setFail(errors.New("connection refused"))
	writeFile(t, h.path, "title: Changed\n")
	h.waitOutput(t, "save failed: connection refused")

	h.sigs <- os.Interrupt
	h.waitOutput(t, "repeat to discard")
	select {
	case <-h.done:
		t.Fatal("editor exited on first interrupt")
	default:
	}

	h.sigs <- os.Interrupt
	require.NoError(t, h.wait(t))
	assert.Contains(t, h.out.String(), "left with unsaved changes")
}

func TestEditor_RetryWithoutFailure(t *testing.T) {
	h := startEditor(t, "title: Draft\n")
	h.waitOutput(t, "created resume r1")
	h.send(t, "r")
	h.waitOutput(t, "nothing to retry")
	h.send(t, "q")
	require.NoError(t, h.wait(t))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "boom", describe(errors.New("boom")))
	err := &client.APIError{Kind: "validation_failed", Issues: []apperr.Issue{
		{Field: "email", Message: "bad"},
		{Field: "colorHex", Message: "worse"},
	}}
	assert.Equal(t, "email: bad; colorHex: worse", describe(err))
}
