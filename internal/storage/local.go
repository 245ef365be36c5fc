package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
)

// LocalStore keeps final objects on the local filesystem. Development
// stand-in for the GCS uploader.
type LocalStore struct {
	Dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "talentis_objects")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{Dir: dir}, nil
}

func (s *LocalStore) Upload(_ context.Context, objectName, _ string, r io.Reader) (string, error) {
	path := filepath.Join(s.Dir, filepath.FromSlash(objectName))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}
