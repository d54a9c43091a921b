package resume

// Equal reports whether two snapshots are the same draft value. Strings
// compare by value, ordered lists element-wise, the photo by descriptor.
// An empty border style equals the default one.
func Equal(a, b Snapshot) bool {
	return a.ID == b.ID &&
		a.Title == b.Title &&
		a.Description == b.Description &&
		a.FirstName == b.FirstName &&
		a.LastName == b.LastName &&
		a.JobTitle == b.JobTitle &&
		a.City == b.City &&
		a.Country == b.Country &&
		a.Phone == b.Phone &&
		a.Email == b.Email &&
		a.Photo.Equal(b.Photo) &&
		equalSlices(a.WorkExperience, b.WorkExperience) &&
		equalSlices(a.Education, b.Education) &&
		equalSlices(a.Skills, b.Skills) &&
		a.Summary == b.Summary &&
		a.ColorHex == b.ColorHex &&
		a.BorderStyle.OrDefault() == b.BorderStyle.OrDefault()
}

// nil and empty lists are equal.
func equalSlices[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy that shares no memory with s.
func (s Snapshot) Clone() Snapshot {
	c := s
	c.Photo = s.Photo.Clone()
	c.WorkExperience = cloneSlice(s.WorkExperience)
	c.Education = cloneSlice(s.Education)
	c.Skills = cloneSlice(s.Skills)
	return c
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}
