package resume

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/fyrsmithlabs/folio/internal/apperr"
)

// MaxPhotoBytes is the largest accepted photo upload.
const MaxPhotoBytes = 4 * 1024 * 1024

const dateLayout = "2006-01-02"

var colorHexPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Validate checks the snapshot against the resume schema. The returned error
// matches apperr.ErrValidation and carries one issue per offending field.
func (s Snapshot) Validate() error {
	var issues []apperr.Issue
	add := func(field, format string, args ...any) {
		issues = append(issues, apperr.Issue{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if s.Photo.Kind == PhotoPending {
		if !strings.HasPrefix(s.Photo.Descriptor.ContentType, "image/") {
			add("photo", "invalid file type %q, must be an image", s.Photo.Descriptor.ContentType)
		}
		size := s.Photo.Descriptor.Size
		if n := int64(len(s.Photo.Data)); n > size {
			size = n
		}
		if size > MaxPhotoBytes {
			add("photo", "image should be at most %s, got %s",
				humanize.IBytes(MaxPhotoBytes), humanize.IBytes(uint64(size)))
		}
	}
	if s.Photo.Kind == PhotoRemote && s.Photo.URL == "" {
		add("photo", "remote photo requires a url")
	}

	if email := strings.TrimSpace(s.Email); email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			add("email", "must be a valid email address")
		}
	}
	if s.ColorHex != "" && !colorHexPattern.MatchString(s.ColorHex) {
		add("colorHex", "must be a #RRGGBB color")
	}
	if !s.BorderStyle.Valid() {
		add("borderStyle", "must be one of squircle, circle, square")
	}

	for i, w := range s.WorkExperience {
		checkDate(add, fmt.Sprintf("workExperience[%d].startDate", i), w.StartDate)
		checkDate(add, fmt.Sprintf("workExperience[%d].endDate", i), w.EndDate)
	}
	for i, e := range s.Education {
		checkDate(add, fmt.Sprintf("education[%d].startDate", i), e.StartDate)
		checkDate(add, fmt.Sprintf("education[%d].endDate", i), e.EndDate)
	}

	if len(issues) > 0 {
		return apperr.Validation("resume.validate", issues...)
	}
	return nil
}

func checkDate(add func(string, string, ...any), field, value string) {
	if value == "" {
		return
	}
	if _, err := time.Parse(dateLayout, value); err != nil {
		add(field, "must be a YYYY-MM-DD date")
	}
}
