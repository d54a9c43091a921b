package main

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/folio/internal/resume"
)

// draftFile is the YAML layout edited by `folio edit`. Photo is a path
// relative to the file, an http(s) URL of an uploaded photo, or empty.
type draftFile struct {
	ID          string `yaml:"id,omitempty"`
	Title       string `yaml:"title"`
	Description string `yaml:"description,omitempty"`

	FirstName string `yaml:"firstName,omitempty"`
	LastName  string `yaml:"lastName,omitempty"`
	JobTitle  string `yaml:"jobTitle,omitempty"`
	City      string `yaml:"city,omitempty"`
	Country   string `yaml:"country,omitempty"`
	Phone     string `yaml:"phone,omitempty"`
	Email     string `yaml:"email,omitempty"`
	Photo     string `yaml:"photo,omitempty"`

	WorkExperience []resume.WorkExperience `yaml:"workExperience,omitempty"`
	Education      []resume.Education      `yaml:"education,omitempty"`
	Skills         []string                `yaml:"skills,omitempty"`
	Summary        string                  `yaml:"summary,omitempty"`

	ColorHex    string `yaml:"colorHex,omitempty"`
	BorderStyle string `yaml:"borderStyle,omitempty"`
}

// loadDraft parses the YAML draft at path into a snapshot.
func loadDraft(path string) (resume.Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return resume.Snapshot{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var f draftFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return resume.Snapshot{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	photo, err := loadPhoto(filepath.Dir(path), f.Photo)
	if err != nil {
		return resume.Snapshot{}, err
	}
	return resume.Snapshot{
		ID:             f.ID,
		Title:          f.Title,
		Description:    f.Description,
		FirstName:      f.FirstName,
		LastName:       f.LastName,
		JobTitle:       f.JobTitle,
		City:           f.City,
		Country:        f.Country,
		Phone:          f.Phone,
		Email:          f.Email,
		Photo:          photo,
		WorkExperience: f.WorkExperience,
		Education:      f.Education,
		Skills:         f.Skills,
		Summary:        f.Summary,
		ColorHex:       f.ColorHex,
		BorderStyle:    resume.BorderStyle(f.BorderStyle),
	}, nil
}

// writeDraft renders a stored resume as a draft file.
func writeDraft(path string, s resume.Snapshot) error {
	f := draftFile{
		ID:             s.ID,
		Title:          s.Title,
		Description:    s.Description,
		FirstName:      s.FirstName,
		LastName:       s.LastName,
		JobTitle:       s.JobTitle,
		City:           s.City,
		Country:        s.Country,
		Phone:          s.Phone,
		Email:          s.Email,
		Photo:          s.Photo.URL,
		WorkExperience: s.WorkExperience,
		Education:      s.Education,
		Skills:         s.Skills,
		Summary:        s.Summary,
		ColorHex:       s.ColorHex,
		BorderStyle:    string(s.BorderStyle),
	}
	raw, err := yaml.Marshal(&f)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

func loadPhoto(dir, ref string) (resume.Photo, error) {
	switch {
	case ref == "":
		return resume.NoPhoto(), nil
	case strings.HasPrefix(ref, "https://"), strings.HasPrefix(ref, "http://"):
		return resume.RemotePhoto(ref), nil
	}

	p := ref
	if !filepath.IsAbs(p) {
		p = filepath.Join(dir, p)
	}
	info, err := os.Stat(p)
	if err != nil {
		return resume.Photo{}, fmt.Errorf("photo: %w", err)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return resume.Photo{}, fmt.Errorf("photo: %w", err)
	}
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(p)))
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return resume.PendingPhoto(resume.PhotoDescriptor{
		Name:         filepath.Base(p),
		ContentType:  ct,
		Size:         info.Size(),
		LastModified: info.ModTime().UTC(),
	}, data), nil
}
