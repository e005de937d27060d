package services

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"
)

// PhotoUploader obtains a remote reference for a captured photo before the
// event body is built. External collaborator; the engine only requires that
// the returned URL is stable for the event across retries.
type PhotoUploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
}

// StaticPhotoUploader returns a fixed placeholder URL for every photo. Stands
// in until a real upload service is wired.
type StaticPhotoUploader struct {
	URL string
}

func (u *StaticPhotoUploader) Upload(ctx context.Context, localPath string) (string, error) {
	return u.URL, nil
}

// PhotoStore removes local photo files once the server holds the remote
// reference or the row is garbage collected.
type PhotoStore interface {
	Remove(path string) error
}

// LocalPhotoStore deletes photo files from the local filesystem. Accepts both
// plain paths and file:// URIs; a missing file is not an error.
type LocalPhotoStore struct{}

func (s *LocalPhotoStore) Remove(path string) error {
	path = strings.TrimPrefix(path, "file://")
	if path == "" {
		return nil
	}

	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
