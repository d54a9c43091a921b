package resume

import (
	"encoding/json"
	"fmt"
	"time"
)

// PhotoKind tags the Photo union.
type PhotoKind int

const (
	// PhotoNone is the explicit absence of a photo. Persisting it removes
	// any stored photo.
	PhotoNone PhotoKind = iota
	// PhotoPending is local content awaiting upload.
	PhotoPending
	// PhotoRemote is an already-uploaded photo referenced by URL. Persisting
	// it leaves the stored photo untouched.
	PhotoRemote
)

func (k PhotoKind) String() string {
	switch k {
	case PhotoPending:
		return "pending"
	case PhotoRemote:
		return "remote"
	default:
		return "none"
	}
}

// PhotoDescriptor identifies pending content without looking at its bytes.
type PhotoDescriptor struct {
	Name         string    `json:"name"`
	ContentType  string    `json:"contentType"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// Photo is one of none, pending content, or a remote URL.
type Photo struct {
	Kind       PhotoKind
	Descriptor PhotoDescriptor
	Data       []byte
	URL        string
}

// NoPhoto returns the absent photo.
func NoPhoto() Photo { return Photo{Kind: PhotoNone} }

// PendingPhoto returns content awaiting upload.
func PendingPhoto(desc PhotoDescriptor, data []byte) Photo {
	return Photo{Kind: PhotoPending, Descriptor: desc, Data: data}
}

// RemotePhoto returns a reference to an uploaded photo.
func RemotePhoto(url string) Photo {
	return Photo{Kind: PhotoRemote, URL: url}
}

// Equal compares photos by descriptor: pending photos by name, size, type
// and modification time (bytes ignored), remote photos by URL.
func (p Photo) Equal(o Photo) bool {
	if p.Kind != o.Kind {
		return false
	}
	switch p.Kind {
	case PhotoPending:
		return p.Descriptor.Name == o.Descriptor.Name &&
			p.Descriptor.Size == o.Descriptor.Size &&
			p.Descriptor.ContentType == o.Descriptor.ContentType &&
			p.Descriptor.LastModified.Equal(o.Descriptor.LastModified)
	case PhotoRemote:
		return p.URL == o.URL
	default:
		return true
	}
}

// Clone deep-copies the photo, including pending bytes.
func (p Photo) Clone() Photo {
	if p.Data != nil {
		data := make([]byte, len(p.Data))
		copy(data, p.Data)
		p.Data = data
	}
	return p
}

type photoWire struct {
	Kind string `json:"kind"`
	URL  string `json:"url,omitempty"`
	*PhotoDescriptor
	Data []byte `json:"data,omitempty"`
}

// MarshalJSON encodes none as null.
func (p Photo) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case PhotoPending:
		desc := p.Descriptor
		return json.Marshal(photoWire{Kind: "pending", PhotoDescriptor: &desc, Data: p.Data})
	case PhotoRemote:
		return json.Marshal(photoWire{Kind: "remote", URL: p.URL})
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts null, {"kind":"remote",...} or {"kind":"pending",...}.
func (p *Photo) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*p = NoPhoto()
		return nil
	}
	var w photoWire
	w.PhotoDescriptor = &PhotoDescriptor{}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	switch w.Kind {
	case "", "none":
		*p = NoPhoto()
	case "remote":
		*p = RemotePhoto(w.URL)
	case "pending":
		*p = PendingPhoto(*w.PhotoDescriptor, w.Data)
	default:
		return fmt.Errorf("unknown photo kind %q", w.Kind)
	}
	return nil
}
