package blob

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidRef is returned for references that don't name a stored blob.
var ErrInvalidRef = errors.New("invalid blob reference")

// Store is the proof-image blob contract: save bytes, read or delete by
// the returned opaque reference.
type Store interface {
	Save(data []byte) (ref string, err error)
	Read(ref string) ([]byte, error)
	Delete(ref string) error
}

// FSStore keeps blobs as files in a single directory; references are
// generated uuid filenames, so a ref can never escape the directory.
type FSStore struct {
	dir string
}

func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &FSStore{dir: dir}, nil
}

var _ Store = (*FSStore)(nil)

func (s *FSStore) Save(data []byte) (string, error) {
	ref := uuid.New().String()
	if err := os.WriteFile(filepath.Join(s.dir, ref), data, 0o644); err != nil {
		return "", err
	}
	return ref, nil
}

func (s *FSStore) Read(ref string) ([]byte, error) {
	path, err := s.path(ref)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func (s *FSStore) Delete(ref string) error {
	path, err := s.path(ref)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

func (s *FSStore) path(ref string) (string, error) {
	if ref == "" || strings.ContainsAny(ref, `/\`) {
		return "", ErrInvalidRef
	}
	return filepath.Join(s.dir, ref), nil
}
