package resume

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/folio/internal/apperr"
)

func sampleSnapshot() Snapshot {
	return Snapshot{
		ID:        "res_1",
		Title:     "Backend CV",
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@example.com",
		Photo:     RemotePhoto("https://blobs.example.com/resume_photo/a.png"),
		WorkExperience: []WorkExperience{
			{Position: "Engineer", Company: "Acme", StartDate: "2020-01-01"},
		},
		Education:   []Education{{Degree: "BSc", School: "Uni"}},
		Skills:      []string{"go", "sql"},
		Summary:     "Engineer",
		ColorHex:    "#112233",
		BorderStyle: BorderCircle,
	}
}

func TestEqual_Photo(t *testing.T) {
	mod := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	desc := PhotoDescriptor{Name: "me.png", ContentType: "image/png", Size: 3, LastModified: mod}

	tests := []struct {
		name  string
		a, b  Photo
		equal bool
	}{
		{"none vs none", NoPhoto(), NoPhoto(), true},
		{"same remote url", RemotePhoto("u1"), RemotePhoto("u1"), true},
		{"different remote url", RemotePhoto("u1"), RemotePhoto("u2"), false},
		{"pending same descriptor different bytes", PendingPhoto(desc, []byte{1, 2, 3}), PendingPhoto(desc, []byte{9, 9, 9}), true},
		{"pending different mtime", PendingPhoto(desc, nil), PendingPhoto(PhotoDescriptor{Name: "me.png", ContentType: "image/png", Size: 3, LastModified: mod.Add(time.Second)}, nil), false},
		{"remote becomes pending", RemotePhoto("u1"), PendingPhoto(desc, []byte{1}), false},
		{"none becomes remote", NoPhoto(), RemotePhoto("u1"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.equal, tt.a.Equal(tt.b))
			assert.Equal(t, tt.equal, tt.b.Equal(tt.a))
		})
	}
}

func TestEqual_Fields(t *testing.T) {
	base := sampleSnapshot()
	assert.True(t, Equal(base, base.Clone()))

	mutations := map[string]func(*Snapshot){
		"summary":        func(s *Snapshot) { s.Summary = "Engineer at Acme" },
		"skill order":    func(s *Snapshot) { s.Skills = []string{"sql", "go"} },
		"work entry":     func(s *Snapshot) { s.WorkExperience[0].Company = "Initech" },
		"extra edu":      func(s *Snapshot) { s.Education = append(s.Education, Education{Degree: "MSc"}) },
		"border":         func(s *Snapshot) { s.BorderStyle = BorderSquare },
		"id":             func(s *Snapshot) { s.ID = "" },
		"photo":          func(s *Snapshot) { s.Photo = NoPhoto() },
		"personal field": func(s *Snapshot) { s.Phone = "555" },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			changed := base.Clone()
			mutate(&changed)
			assert.False(t, Equal(base, changed))
		})
	}

	t.Run("nil and empty lists are equal", func(t *testing.T) {
		a, b := Snapshot{}, Snapshot{Skills: []string{}, WorkExperience: []WorkExperience{}}
		assert.True(t, Equal(a, b))
	})

	t.Run("empty border equals default", func(t *testing.T) {
		assert.True(t, Equal(Snapshot{}, Snapshot{BorderStyle: DefaultBorderStyle}))
	})
}

func TestClone_NoAliasing(t *testing.T) {
	orig := sampleSnapshot()
	orig.Photo = PendingPhoto(PhotoDescriptor{Name: "a.png", ContentType: "image/png", Size: 2}, []byte{1, 2})

	c := orig.Clone()
	c.Skills[0] = "rust"
	c.WorkExperience[0].Position = "CTO"
	c.Education[0].School = "Elsewhere"
	c.Photo.Data[0] = 42

	assert.Equal(t, "go", orig.Skills[0])
	assert.Equal(t, "Engineer", orig.WorkExperience[0].Position)
	assert.Equal(t, "Uni", orig.Education[0].School)
	assert.Equal(t, byte(1), orig.Photo.Data[0])
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		require.NoError(t, sampleSnapshot().Validate())
	})

	t.Run("collects issues", func(t *testing.T) {
		s := sampleSnapshot()
		s.Email = "not an email"
		s.ColorHex = "red"
		s.BorderStyle = "hexagon"
		s.WorkExperience[0].EndDate = "01/02/2020"
		s.Photo = PendingPhoto(PhotoDescriptor{Name: "cv.pdf", ContentType: "application/pdf", Size: MaxPhotoBytes + 1}, nil)

		err := s.Validate()
		require.ErrorIs(t, err, apperr.ErrValidation)

		fields := map[string]bool{}
		for _, is := range apperr.IssuesOf(err) {
			fields[is.Field] = true
		}
		want := map[string]bool{
			"email": true, "colorHex": true, "borderStyle": true,
			"workExperience[0].endDate": true, "photo": true,
		}
		if diff := cmp.Diff(want, fields); diff != "" {
			t.Errorf("issue fields mismatch (-want +got):\n%s", diff)
		}
		assert.Contains(t, err.Error(), "4.0 MiB")
	})
}

func TestSanitize(t *testing.T) {
	s := Snapshot{
		Title:   "  <b>Senior</b> Engineer  ",
		Summary: "Built <script>alert(1)</script>systems & teams",
		Skills:  []string{" go ", "", "<i>sql</i>"},
		WorkExperience: []WorkExperience{
			{Company: "<a href='x'>Acme</a>", StartDate: " 2020-01-01 "},
		},
	}

	got := s.Sanitize()

	assert.Equal(t, "Senior Engineer", got.Title)
	assert.Equal(t, "Built systems & teams", got.Summary)
	assert.Equal(t, []string{"go", "sql"}, got.Skills)
	assert.Equal(t, "Acme", got.WorkExperience[0].Company)
	assert.Equal(t, "2020-01-01", got.WorkExperience[0].StartDate)
	assert.Equal(t, " go ", s.Skills[0], "input must not be modified")
}

func TestPhoto_JSON(t *testing.T) {
	s := sampleSnapshot()
	s.Photo = PendingPhoto(PhotoDescriptor{Name: "a.png", ContentType: "image/png", Size: 2}, []byte{1, 2})

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"kind":"pending"`))

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, Equal(s, decoded))
	assert.Equal(t, []byte{1, 2}, decoded.Photo.Data)

	var none Snapshot
	require.NoError(t, json.Unmarshal([]byte(`{"title":"x","photo":null}`), &none))
	assert.Equal(t, PhotoNone, none.Photo.Kind)

	var bad Photo
	assert.Error(t, json.Unmarshal([]byte(`{"kind":"sideways"}`), &bad))
}

func TestRecord_Snapshot(t *testing.T) {
	rec := &Record{ID: "r1", Title: "CV", PhotoURL: "https://x/y.png", Skills: []string{"go"}}
	s := rec.Snapshot()

	assert.Equal(t, PhotoRemote, s.Photo.Kind)
	assert.Equal(t, "https://x/y.png", s.Photo.URL)

	s.Skills[0] = "changed"
	assert.Equal(t, "go", rec.Skills[0])

	assert.Equal(t, PhotoNone, (&Record{ID: "r2"}).Snapshot().Photo.Kind)
}
