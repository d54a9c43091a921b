package resume

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// clean trims s and strips any markup. Entities escaped by the policy are
// decoded again so stored text stays plain.
func clean(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(s)))
}

// Sanitize returns a copy of s with every free-text field trimmed and
// stripped of markup. Empty skills are dropped.
func (s Snapshot) Sanitize() Snapshot {
	c := s.Clone()
	for _, f := range []*string{
		&c.Title, &c.Description, &c.FirstName, &c.LastName, &c.JobTitle,
		&c.City, &c.Country, &c.Phone, &c.Email, &c.Summary, &c.ColorHex,
	} {
		*f = clean(*f)
	}
	for i := range c.WorkExperience {
		w := &c.WorkExperience[i]
		w.Position, w.Company, w.Description = clean(w.Position), clean(w.Company), clean(w.Description)
		w.StartDate, w.EndDate = strings.TrimSpace(w.StartDate), strings.TrimSpace(w.EndDate)
	}
	for i := range c.Education {
		e := &c.Education[i]
		e.Degree, e.School = clean(e.Degree), clean(e.School)
		e.StartDate, e.EndDate = strings.TrimSpace(e.StartDate), strings.TrimSpace(e.EndDate)
	}
	if c.Skills != nil {
		skills := c.Skills[:0]
		for _, sk := range c.Skills {
			if sk = clean(sk); sk != "" {
				skills = append(skills, sk)
			}
		}
		c.Skills = skills
	}
	return c
}
