package storage

import (
	"context"
	"fmt"
	"io"
)

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// AvatarStore keeps user avatars in an ObjectStorage backend, one
// object per user.
type AvatarStore struct {
	backend ObjectStorage
}

// NewAvatarStore constructs an AvatarStore for the provided backend.
func NewAvatarStore(backend ObjectStorage) *AvatarStore {
	return &AvatarStore{backend: backend}
}

// Key returns the object key for a user's avatar.
func (s *AvatarStore) Key(userID int) string {
	return fmt.Sprintf("avatars/%d", userID)
}

// EnsureBucket ensures the configured bucket exists.
func (s *AvatarStore) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// Put stores a user's avatar, replacing any previous one.
func (s *AvatarStore) Put(ctx context.Context, userID int, r io.Reader, size int64, contentType string) error {
	return s.backend.Put(ctx, s.Key(userID), r, size, contentType)
}

// Get opens a reader for a user's avatar.
func (s *AvatarStore) Get(ctx context.Context, userID int) (io.ReadCloser, error) {
	return s.backend.Get(ctx, s.Key(userID))
}

// Delete removes a user's avatar.
func (s *AvatarStore) Delete(ctx context.Context, userID int) error {
	return s.backend.Delete(ctx, s.Key(userID))
}

// Bucket returns the configured bucket name.
func (s *AvatarStore) Bucket() string {
	return s.backend.Bucket()
}
