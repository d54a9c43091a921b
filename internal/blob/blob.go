// Package blob stores resume photos in a gocloud.dev bucket and hands out
// public URLs for them.
package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"
)

// Store uploads and deletes photo blobs.
type Store struct {
	bucket  *blob.Bucket
	baseURL string
}

// Open opens the bucket at bucketURL (file://, mem://). Objects are
// addressed publicly as publicBaseURL + "/" + key.
func Open(ctx context.Context, bucketURL, publicBaseURL string) (*Store, error) {
	b, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %q: %w", bucketURL, err)
	}
	return New(b, publicBaseURL), nil
}

// New wraps an already opened bucket.
func New(b *blob.Bucket, publicBaseURL string) *Store {
	return &Store{bucket: b, baseURL: strings.TrimRight(publicBaseURL, "/")}
}

// Upload writes data under key and returns its public URL.
func (s *Store) Upload(ctx context.Context, key, contentType string, data []byte) (string, error) {
	opts := &blob.WriterOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=31536000, immutable",
	}
	if err := s.bucket.WriteAll(ctx, key, data, opts); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return s.URL(key), nil
}

// Delete removes the blob behind url. Unknown URLs and missing objects are
// ignored.
func (s *Store) Delete(ctx context.Context, url string) error {
	key, ok := s.Key(url)
	if !ok {
		return nil
	}
	err := s.bucket.Delete(ctx, key)
	if err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Reader returns a reader for key, used to serve photos.
func (s *Store) Reader(ctx context.Context, key string) (*blob.Reader, error) {
	r, err := s.bucket.NewReader(ctx, key, nil)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, ErrNotFound
	}
	return r, err
}

// ErrNotFound is returned by Reader for missing objects.
var ErrNotFound = errors.New("blob not found")

// URL returns the public URL of key.
func (s *Store) URL(key string) string {
	return s.baseURL + "/" + key
}

// Key extracts the object key from a public URL produced by URL.
func (s *Store) Key(url string) (string, bool) {
	key, ok := strings.CutPrefix(url, s.baseURL+"/")
	if !ok || key == "" || strings.Contains(key, "..") {
		return "", false
	}
	return key, true
}

// Close closes the bucket.
func (s *Store) Close() error {
	return s.bucket.Close()
}
