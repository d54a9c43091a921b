package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/folio/internal/resume"
)

const sampleDraft = `title: Backend CV
firstName: Ada
lastName: Lovelace
jobTitle: Engineer
photo: me.png
workExperience:
  - position: Engineer
    company: Acme
    startDate: "2020-01-01"
skills: [Go, SQL]
borderStyle: circle
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoadDraft(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "me.png"), "\x89PNG\r\n\x1a\n")
	path := filepath.Join(dir, "cv.yaml")
	writeFile(t, path, sampleDraft)

	snap, err := loadDraft(path)
	require.NoError(t, err)
	assert.Equal(t, "Backend CV", snap.Title)
	assert.Equal(t, []string{"Go", "SQL"}, snap.Skills)
	assert.Equal(t, resume.BorderCircle, snap.BorderStyle)
	require.Len(t, snap.WorkExperience, 1)
	assert.Equal(t, "Acme", snap.WorkExperience[0].Company)

	require.Equal(t, resume.PhotoPending, snap.Photo.Kind)
	assert.Equal(t, "me.png", snap.Photo.Descriptor.Name)
	assert.Equal(t, "image/png", snap.Photo.Descriptor.ContentType)
	assert.EqualValues(t, 8, snap.Photo.Descriptor.Size)

	// Reloading an untouched photo yields an equal snapshot.
	again, err := loadDraft(path)
	require.NoError(t, err)
	assert.True(t, resume.Equal(snap, again))
}

func TestLoadDraft_PhotoRefs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cv.yaml")

	writeFile(t, path, "title: x\nphoto: https://blobs.example/resume_photo/a.png\n")
	snap, err := loadDraft(path)
	require.NoError(t, err)
	assert.Equal(t, resume.RemotePhoto("https://blobs.example/resume_photo/a.png"), snap.Photo)

	writeFile(t, path, "title: x\n")
	snap, err = loadDraft(path)
	require.NoError(t, err)
	assert.Equal(t, resume.PhotoNone, snap.Photo.Kind)

	writeFile(t, path, "title: x\nphoto: missing.png\n")
	_, err = loadDraft(path)
	assert.ErrorContains(t, err, "photo")
}

func TestLoadDraft_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cv.yaml")
	writeFile(t, path, "title: [unclosed\n")
	_, err := loadDraft(path)
	assert.ErrorContains(t, err, "failed to parse")
}

func TestWriteDraft(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cv.yaml")
	rec := &resume.Record{
		ID:       "r1",
		Title:    "Stored",
		PhotoURL: "https://blobs.example/p.png",
		Skills:   []string{"Go"},
	}
	require.NoError(t, writeDraft(path, rec.Snapshot()))

	snap, err := loadDraft(path)
	require.NoError(t, err)
	assert.True(t, resume.Equal(rec.Snapshot(), snap))
}
