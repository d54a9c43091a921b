package resume

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/folio/internal/apperr"
	"github.com/fyrsmithlabs/folio/internal/subscription"
)

type memRepo struct {
	mu      sync.Mutex
	resumes map[string]*Record
	calls   []string
}

func newMemRepo() *memRepo {
	return &memRepo{resumes: map[string]*Record{}}
}

func (m *memRepo) record(call string) {
	m.calls = append(m.calls, call)
}

func (m *memRepo) CountResumes(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("count")
	n := 0
	for _, r := range m.resumes {
		if r.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) GetResume(_ context.Context, userID, id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resumes[id]
	if !ok || r.UserID != userID {
		return nil, apperr.NotFound("store.resume", "resume")
	}
	c := *r
	return &c, nil
}

func (m *memRepo) ListResumes(_ context.Context, userID string, limit, offset int) ([]*Record, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Record
	for _, r := range m.resumes {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *memRepo) CreateResume(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("create")
	c := *rec
	m.resumes[rec.ID] = &c
	return nil
}

func (m *memRepo) UpdateResume(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("update")
	c := *rec
	m.resumes[rec.ID] = &c
	return nil
}

func (m *memRepo) DeleteResume(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("delete")
	delete(m.resumes, id)
	return nil
}

type fakePhotos struct {
	uploads []string
	deletes []string
	log     *[]string
	failPut error
}

func (f *fakePhotos) Upload(_ context.Context, key, _ string, _ []byte) (string, error) {
	if f.failPut != nil {
		return "", f.failPut
	}
	f.uploads = append(f.uploads, key)
	if f.log != nil {
		*f.log = append(*f.log, "upload")
	}
	return "https://blobs.test/" + key, nil
}

func (f *fakePhotos) Delete(_ context.Context, url string) error {
	f.deletes = append(f.deletes, url)
	if f.log != nil {
		*f.log = append(*f.log, "blob-delete")
	}
	return nil
}

type capturePublisher struct {
	subjects []string
}

func (c *capturePublisher) Publish(_ context.Context, subject string, _ any) error {
	c.subjects = append(c.subjects, subject)
	return nil
}

func pendingPNG() Photo {
	return PendingPhoto(PhotoDescriptor{Name: "Me.PNG", ContentType: "image/png", Size: 4}, []byte("\x89PNG"))
}

func TestService_Save_Create(t *testing.T) {
	repo, photos, pub := newMemRepo(), &fakePhotos{}, &capturePublisher{}
	svc := NewService(repo, photos, WithPublisher(pub))

	rec, err := svc.Save(context.Background(), "user_1", subscription.Free, Snapshot{
		Title:          "  My CV ",
		Photo:          pendingPNG(),
		WorkExperience: []WorkExperience{{Position: "Dev"}},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "My CV", rec.Title)
	assert.Equal(t, DefaultBorderStyle, rec.BorderStyle)
	require.Len(t, photos.uploads, 1)
	assert.True(t, strings.HasPrefix(photos.uploads[0], PhotoPrefix))
	assert.True(t, strings.HasSuffix(photos.uploads[0], ".png"))
	assert.Equal(t, "https://blobs.test/"+photos.uploads[0], rec.PhotoURL)
	assert.Equal(t, []string{"users.user_1." + SubjectSaved}, pub.subjects)
}

func TestService_Save_FreeTierSecondResume(t *testing.T) {
	repo, photos := newMemRepo(), &fakePhotos{}
	svc := NewService(repo, photos)
	ctx := context.Background()

	_, err := svc.Save(ctx, "user_1", subscription.Free, Snapshot{Title: "first"})
	require.NoError(t, err)
	repo.calls = nil

	_, err = svc.Save(ctx, "user_1", subscription.Free, Snapshot{Title: "second", Photo: pendingPNG()})
	require.ErrorIs(t, err, apperr.ErrQuotaExceeded)

	assert.Empty(t, photos.uploads, "no upload may happen before the quota check")
	assert.Equal(t, []string{"count"}, repo.calls, "no write may happen after the quota check")
	n, _ := repo.CountResumes(ctx, "user_1")
	assert.Equal(t, 1, n)
}

func TestService_Save_ProTierAllowsThree(t *testing.T) {
	svc := NewService(newMemRepo(), &fakePhotos{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Save(ctx, "user_1", subscription.Pro, Snapshot{})
		require.NoError(t, err)
	}
	_, err := svc.Save(ctx, "user_1", subscription.Pro, Snapshot{})
	assert.ErrorIs(t, err, apperr.ErrQuotaExceeded)
}

func TestService_Save_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("no identity", func(t *testing.T) {
		svc := NewService(newMemRepo(), &fakePhotos{})
		_, err := svc.Save(ctx, "", subscription.ProPlus, Snapshot{})
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	})

	t.Run("invalid payload", func(t *testing.T) {
		svc := NewService(newMemRepo(), &fakePhotos{})
		_, err := svc.Save(ctx, "user_1", subscription.ProPlus, Snapshot{Email: "nope"})
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("foreign resume", func(t *testing.T) {
		repo := newMemRepo()
		svc := NewService(repo, &fakePhotos{})
		rec, err := svc.Save(ctx, "owner", subscription.Free, Snapshot{})
		require.NoError(t, err)

		_, err = svc.Save(ctx, "intruder", subscription.Free, Snapshot{ID: rec.ID, Title: "mine now"})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("upload failure", func(t *testing.T) {
		svc := NewService(newMemRepo(), &fakePhotos{failPut: errors.New("bucket offline")})
		_, err := svc.Save(ctx, "user_1", subscription.Free, Snapshot{Photo: pendingPNG()})
		assert.ErrorIs(t, err, apperr.ErrUpstream)
	})
}

func TestService_Save_Customizations(t *testing.T) {
	ctx := context.Background()

	t.Run("pro cannot change color", func(t *testing.T) {
		svc := NewService(newMemRepo(), &fakePhotos{})
		_, err := svc.Save(ctx, "user_1", subscription.Pro, Snapshot{ColorHex: "#ff0000"})
		assert.ErrorIs(t, err, apperr.ErrQuotaExceeded)
	})

	t.Run("default values are not customizations", func(t *testing.T) {
		svc := NewService(newMemRepo(), &fakePhotos{})
		_, err := svc.Save(ctx, "user_1", subscription.Free, Snapshot{ColorHex: DefaultColorHex, BorderStyle: DefaultBorderStyle})
		assert.NoError(t, err)
	})

	t.Run("pro_plus can customize and downgraded user keeps values", func(t *testing.T) {
		svc := NewService(newMemRepo(), &fakePhotos{})
		rec, err := svc.Save(ctx, "user_1", subscription.ProPlus, Snapshot{ColorHex: "#FF0000", BorderStyle: BorderCircle})
		require.NoError(t, err)

		_, err = svc.Save(ctx, "user_1", subscription.Free, Snapshot{ID: rec.ID, ColorHex: "#FF0000", BorderStyle: BorderCircle, Title: "edited"})
		assert.NoError(t, err)

		_, err = svc.Save(ctx, "user_1", subscription.Free, Snapshot{ID: rec.ID, ColorHex: "#00FF00", BorderStyle: BorderCircle})
		assert.ErrorIs(t, err, apperr.ErrQuotaExceeded)
	})
}

func TestService_Save_PhotoTransitions(t *testing.T) {
	ctx := context.Background()
	repo, photos := newMemRepo(), &fakePhotos{}
	svc := NewService(repo, photos)

	rec, err := svc.Save(ctx, "user_1", subscription.Free, Snapshot{Photo: pendingPNG()})
	require.NoError(t, err)
	first := rec.PhotoURL

	t.Run("remote keeps stored photo", func(t *testing.T) {
		for _, summary := range []string{"a", "ab"} {
			got, err := svc.Save(ctx, "user_1", subscription.Free, Snapshot{ID: rec.ID, Summary: summary, Photo: RemotePhoto(first)})
			require.NoError(t, err)
			assert.Equal(t, first, got.PhotoURL)
		}
		assert.Len(t, photos.uploads, 1)
		assert.Empty(t, photos.deletes)
	})

	t.Run("pending replaces and deletes previous", func(t *testing.T) {
		got, err := svc.Save(ctx, "user_1", subscription.Free, Snapshot{ID: rec.ID, Photo: pendingPNG()})
		require.NoError(t, err)
		assert.NotEqual(t, first, got.PhotoURL)
		assert.Equal(t, []string{first}, photos.deletes)
		first = got.PhotoURL
	})

	t.Run("none removes photo", func(t *testing.T) {
		got, err := svc.Save(ctx, "user_1", subscription.Free, Snapshot{ID: rec.ID, Photo: NoPhoto()})
		require.NoError(t, err)
		assert.Empty(t, got.PhotoURL)
		assert.Equal(t, first, photos.deletes[len(photos.deletes)-1])
	})
}

func TestService_Save_ReplacesSubCollections(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := NewService(repo, &fakePhotos{})

	rec, err := svc.Save(ctx, "user_1", subscription.Free, Snapshot{
		WorkExperience: []WorkExperience{{Position: "A"}, {Position: "B"}},
		Education:      []Education{{Degree: "X"}},
	})
	require.NoError(t, err)

	_, err = svc.Save(ctx, "user_1", subscription.Free, Snapshot{
		ID:             rec.ID,
		WorkExperience: []WorkExperience{{Position: "C"}},
	})
	require.NoError(t, err)

	got, err := svc.Get(ctx, "user_1", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, []WorkExperience{{Position: "C"}}, got.WorkExperience)
	assert.Empty(t, got.Education)
	assert.Equal(t, rec.CreatedAt, got.CreatedAt)
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	var order []string
	repo, photos, pub := newMemRepo(), &fakePhotos{}, &capturePublisher{}
	svc := NewService(repo, photos, WithPublisher(pub))

	rec, err := svc.Save(ctx, "user_1", subscription.Free, Snapshot{Photo: pendingPNG()})
	require.NoError(t, err)

	photos.log = &order
	repo.calls = nil
	require.NoError(t, svc.Delete(ctx, "user_1", rec.ID))

	assert.Equal(t, []string{"blob-delete"}, order)
	assert.Equal(t, []string{"delete"}, repo.calls)
	assert.Equal(t, []string{"users.user_1." + SubjectSaved, "users.user_1." + SubjectDeleted}, pub.subjects)

	assert.ErrorIs(t, svc.Delete(ctx, "user_1", rec.ID), apperr.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, "", rec.ID), apperr.ErrUnauthorized)
}

func TestService_List(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemRepo(), &fakePhotos{})

	for i := 0; i < 2; i++ {
		_, err := svc.Save(ctx, "user_1", subscription.ProPlus, Snapshot{})
		require.NoError(t, err)
	}
	_, err := svc.Save(ctx, "user_2", subscription.Free, Snapshot{})
	require.NoError(t, err)

	res, err := svc.List(ctx, "user_1", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalCount)
	assert.Len(t, res.Resumes, 2)

	_, err = svc.List(ctx, "", 10, 0)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestPhotoKey(t *testing.T) {
	a, err := PhotoKey("portrait.JPG")
	require.NoError(t, err)
	b, err := PhotoKey("portrait.JPG")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, PhotoPrefix))
	assert.True(t, strings.HasSuffix(a, ".jpg"))
	assert.Len(t, strings.TrimSuffix(strings.TrimPrefix(a, PhotoPrefix), ".jpg"), 32)
}
