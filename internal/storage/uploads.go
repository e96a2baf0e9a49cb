// Package storage keeps uploaded manuscripts and attachments on local disk.
package storage

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/iliyamo/journal-portal/internal/utils"
)

var (
	ErrTooLarge       = errors.New("file exceeds upload size limit")
	ErrFileType       = errors.New("file type not allowed")
	ErrEmptyFile      = errors.New("file is empty")
	allowedExtensions = map[string]bool{
		".pdf": true, ".doc": true, ".docx": true, ".odt": true, ".rtf": true, ".txt": true,
		".tex": true, ".zip": true, ".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	}
)

// Store writes files under Dir and hands back paths relative to it.
type Store struct {
	Dir      string
	MaxBytes int64
}

func New(dir string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{Dir: dir, MaxBytes: maxBytes}, nil
}

// Check validates extension and size without touching disk.
func (s *Store) Check(fh *multipart.FileHeader) error {
	if fh.Size == 0 {
		return ErrEmptyFile
	}
	if s.MaxBytes > 0 && fh.Size > s.MaxBytes {
		return ErrTooLarge
	}
	if !allowedExtensions[strings.ToLower(filepath.Ext(fh.Filename))] {
		return ErrFileType
	}
	return nil
}

// Save stores fh as "<uuid>-<sanitized name>" and returns that name.
func (s *Store) Save(fh *multipart.FileHeader) (string, error) {
	if err := s.Check(fh); err != nil {
		return "", err
	}
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	name := uuid.NewString() + "-" + utils.SanitizeFilename(fh.Filename)
	dst, err := os.OpenFile(filepath.Join(s.Dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	limit := s.MaxBytes
	if limit <= 0 {
		limit = fh.Size
	}
	n, err := io.Copy(dst, io.LimitReader(src, limit+1))
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > limit {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(filepath.Join(s.Dir, name))
		return "", err
	}
	return name, nil
}

// SaveAll stores every file or none: on error the files already written
// are removed.
func (s *Store) SaveAll(fhs []*multipart.FileHeader) ([]string, error) {
	out := make([]string, 0, len(fhs))
	for _, fh := range fhs {
		name, err := s.Save(fh)
		if err != nil {
			s.Remove(out...)
			return nil, fmt.Errorf("%s: %w", fh.Filename, err)
		}
		out = append(out, name)
	}
	return out, nil
}

// Remove deletes stored files, ignoring ones that are already gone.
func (s *Store) Remove(names ...string) {
	for _, n := range names {
		if n == "" {
			continue
		}
		_ = os.Remove(filepath.Join(s.Dir, path.Base(n)))
	}
}

// URL is the public path a stored file is served under.
func URL(name string) string {
	if name == "" {
		return ""
	}
	return "/uploads/" + name
}
