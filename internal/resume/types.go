// Package resume holds the resume draft model (Snapshot), its structural
// comparison, validation and sanitizing, and the Service that persists
// drafts for authenticated users.
package resume

import (
	"strings"
	"time"
)

// BorderStyle is the photo frame shape.
type BorderStyle string

const (
	BorderSquircle BorderStyle = "squircle"
	BorderCircle   BorderStyle = "circle"
	BorderSquare   BorderStyle = "square"

	DefaultBorderStyle = BorderSquircle
	DefaultColorHex    = "#000000"
)

// Valid reports whether b is a known style. Empty means default.
func (b BorderStyle) Valid() bool {
	switch b {
	case "", BorderSquircle, BorderCircle, BorderSquare:
		return true
	}
	return false
}

// OrDefault returns b, or DefaultBorderStyle when empty.
func (b BorderStyle) OrDefault() BorderStyle {
	if b == "" {
		return DefaultBorderStyle
	}
	return b
}

// WorkExperience is one ordered entry of the work history.
type WorkExperience struct {
	Position    string `json:"position,omitempty" yaml:"position,omitempty"`
	Company     string `json:"company,omitempty" yaml:"company,omitempty"`
	StartDate   string `json:"startDate,omitempty" yaml:"startDate,omitempty"`
	EndDate     string `json:"endDate,omitempty" yaml:"endDate,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Education is one ordered entry of the education history.
type Education struct {
	Degree    string `json:"degree,omitempty" yaml:"degree,omitempty"`
	School    string `json:"school,omitempty" yaml:"school,omitempty"`
	StartDate string `json:"startDate,omitempty" yaml:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty" yaml:"endDate,omitempty"`
}

// Snapshot is the complete value of one resume draft at a point in time.
// ID is empty until the draft is first persisted.
type Snapshot struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`

	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	JobTitle  string `json:"jobTitle,omitempty"`
	City      string `json:"city,omitempty"`
	Country   string `json:"country,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	Photo     Photo  `json:"photo"`

	WorkExperience []WorkExperience `json:"workExperience"`
	Education      []Education      `json:"education"`
	Skills         []string         `json:"skills"`
	Summary        string           `json:"summary,omitempty"`

	ColorHex    string      `json:"colorHex,omitempty"`
	BorderStyle BorderStyle `json:"borderStyle,omitempty"`
}

// Record is a persisted resume owned by a user.
type Record struct {
	ID          string `json:"id"`
	UserID      string `json:"userId"`
	Title       string `json:"title"`
	Description string `json:"description"`

	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	JobTitle  string `json:"jobTitle"`
	City      string `json:"city"`
	Country   string `json:"country"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	PhotoURL  string `json:"photoUrl,omitempty"`

	WorkExperience []WorkExperience `json:"workExperience"`
	Education      []Education      `json:"education"`
	Skills         []string         `json:"skills"`
	Summary        string           `json:"summary"`

	ColorHex    string      `json:"colorHex"`
	BorderStyle BorderStyle `json:"borderStyle"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Snapshot hydrates an editing snapshot from the stored record.
func (r *Record) Snapshot() Snapshot {
	s := Snapshot{
		ID:             r.ID,
		Title:          r.Title,
		Description:    r.Description,
		FirstName:      r.FirstName,
		LastName:       r.LastName,
		JobTitle:       r.JobTitle,
		City:           r.City,
		Country:        r.Country,
		Phone:          r.Phone,
		Email:          r.Email,
		Photo:          NoPhoto(),
		WorkExperience: r.WorkExperience,
		Education:      r.Education,
		Skills:         r.Skills,
		Summary:        r.Summary,
		ColorHex:       r.ColorHex,
		BorderStyle:    r.BorderStyle,
	}
	if r.PhotoURL != "" {
		s.Photo = RemotePhoto(r.PhotoURL)
	}
	return s.Clone()
}

// DisplayName returns "First Last", trimmed.
func (r *Record) DisplayName() string {
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

// ListResult is a page of a user's resumes.
type ListResult struct {
	Resumes    []*Record `json:"resumes"`
	TotalCount int       `json:"totalCount"`
}
