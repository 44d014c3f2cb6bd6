package images

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// ErrNotFound is returned when a stored image does not exist.
	ErrNotFound = errors.New("images: file not found")
	// ErrInvalidFilename is returned for names that are not generated image names.
	ErrInvalidFilename = errors.New("images: invalid filename")
)

var filenamePattern = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\.(jpg|webp)$`)

// ValidFilename reports whether name has the {uuid}.jpg or {uuid}.webp form.
func ValidFilename(name string) bool {
	return filenamePattern.MatchString(name)
}

// Store keeps processed image bytes under generated filenames.
type Store interface {
	Save(ctx context.Context, filename string, data []byte, contentType string) error
	Open(ctx context.Context, filename string) (io.ReadCloser, error)
	Delete(ctx context.Context, filename string) error
	Ping(ctx context.Context) error
}

// LocalStore keeps images in a directory on disk.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve image dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	return &LocalStore{dir: abs}, nil
}

// path resolves filename inside the store directory, refusing anything that
// would escape it.
func (s *LocalStore) path(filename string) (string, error) {
	if !ValidFilename(filename) {
		return "", ErrInvalidFilename
	}
	p := filepath.Join(s.dir, filename)
	if !strings.HasPrefix(p, s.dir+string(os.PathSeparator)) {
		return "", ErrInvalidFilename
	}
	return p, nil
}

func (s *LocalStore) Save(_ context.Context, filename string, data []byte, _ string) error {
	p, err := s.path(filename)
	if err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}

func (s *LocalStore) Open(_ context.Context, filename string) (io.ReadCloser, error) {
	p, err := s.path(filename)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

// Delete removes filename. A missing file is not an error.
func (s *LocalStore) Delete(_ context.Context, filename string) error {
	p, err := s.path(filename)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *LocalStore) Ping(_ context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.dir)
	}
	return nil
}

// readAll reads at most limit bytes from r and fails if more are available.
func readAll(r io.Reader, limit int64) ([]byte, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if n > limit {
		return nil, fmt.Errorf("image exceeds %d bytes", limit)
	}
	return buf.Bytes(), nil
}
