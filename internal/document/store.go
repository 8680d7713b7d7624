// Package document stores identity-proof uploads on the local filesystem.
package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"transitpass/pkg/platform/sentinel"
)

// MaxSize caps a single upload.
const MaxSize = 5 << 20

var ErrTooLarge = errors.New("document exceeds size limit")

// FileStore writes each upload once under a uuid-prefixed normalized name.
type FileStore struct {
	dir string
}

// NewFileStore creates dir when missing.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create document dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Normalize lowercases the base name, replaces spaces with underscores and
// drops anything that could escape the storage directory.
func Normalize(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.Trim(name, ".")
	if name == "" || name == "/" {
		return "document"
	}
	return name
}

// Save copies r into a new file and returns its reference.
func (s *FileStore) Save(ctx context.Context, r io.Reader, suggestedName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref := uuid.NewString() + "_" + Normalize(suggestedName)
	path := filepath.Join(s.dir, ref)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", fmt.Errorf("create document: %w", err)
	}
	n, err := io.Copy(f, io.LimitReader(r, MaxSize+1))
	closeErr := f.Close()
	if err == nil && n > MaxSize {
		err = ErrTooLarge
	}
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("write document: %w", err)
	}
	return ref, nil
}

// Remove deletes the file behind ref. A missing file is not an error.
func (s *FileStore) Remove(_ context.Context, ref string) error {
	if !validRef(ref) {
		return sentinel.ErrNotFound
	}
	err := os.Remove(filepath.Join(s.dir, ref))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove document: %w", err)
	}
	return nil
}

func validRef(ref string) bool {
	return ref != "" && ref == filepath.Base(ref) && !strings.HasPrefix(ref, ".")
}

// Open resolves a reference returned by Save. Callers close the file.
func (s *FileStore) Open(_ context.Context, ref string) (*os.File, error) {
	if !validRef(ref) {
		return nil, sentinel.ErrNotFound
	}
	f, err := os.Open(filepath.Join(s.dir, ref))
	if errors.Is(err, os.ErrNotExist) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	return f, nil
}
