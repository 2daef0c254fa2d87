// Package blobstore keeps staged upload bytes on a backing filesystem until
// they are scanned or explicitly deleted.
package blobstore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// ErrNotFound is returned when the bytes behind a key are gone.
var ErrNotFound = errors.New("blob not found")

// ErrInvalidKey is returned for keys that would escape the root directory.
var ErrInvalidKey = errors.New("invalid blob key")

// maxNameLen caps the client-supplied part of a staged name.
const maxNameLen = 128

// Store maps opaque keys to files under root.
type Store struct {
	fs   afero.Fs
	root string
}

// New creates the root directory if needed. The root is made absolute so
// that paths handed to the scan engine are valid from any working directory.
func New(fsys afero.Fs, root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("blobstore: resolve root: %w", err)
	}
	if err := fsys.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: create root: %w", err)
	}
	return &Store{fs: fsys, root: abs}, nil
}

// Root returns the directory holding staged bytes.
func (s *Store) Root() string { return s.root }

// Check reports whether the root directory is still usable.
func (s *Store) Check() error {
	info, err := s.fs.Stat(s.root)
	if err != nil {
		return fmt.Errorf("blobstore: stat root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("blobstore: %s is not a directory", s.root)
	}
	return nil
}

// Stage streams r to a new collision-resistant location derived from
// originalName and returns its key and the number of bytes written.
func (s *Store) Stage(originalName string, r io.Reader) (string, int64, error) {
	key := uuid.NewString() + "-" + SanitizeName(originalName)

	// Write to a temp file first so a half-written upload never sits under its final key.
	tmp, err := afero.TempFile(s.fs, s.root, "upload-*.tmp")
	if err != nil {
		return "", 0, fmt.Errorf("blobstore: create temp: %w", err)
	}
	tmpPath := tmp.Name()

	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = s.fs.Remove(tmpPath)
		return "", 0, fmt.Errorf("blobstore: write: %w", err)
	}

	if err := s.fs.Rename(tmpPath, filepath.Join(s.root, key)); err != nil {
		_ = s.fs.Remove(tmpPath)
		return "", 0, fmt.Errorf("blobstore: rename: %w", err)
	}
	return key, n, nil
}

// Path returns the absolute on-disk location of key.
func (s *Store) Path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || key == "." || key == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.root, key), nil
}

// Open opens the bytes behind key for reading.
func (s *Store) Open(key string) (afero.File, os.FileInfo, error) {
	p, err := s.Path(key)
	if err != nil {
		return nil, nil, err
	}
	f, err := s.fs.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("blobstore: open: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("blobstore: stat: %w", err)
	}
	return f, info, nil
}

// Remove deletes the bytes behind key. Bytes that are already gone count as
// success; existed reports whether anything was actually removed.
func (s *Store) Remove(key string) (existed bool, err error) {
	p, err := s.Path(key)
	if err != nil {
		return false, err
	}
	if err := s.fs.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("blobstore: remove: %w", err)
	}
	return true, nil
}

// Sniff detects the media type of the bytes behind key from their content.
func (s *Store) Sniff(key string) (string, error) {
	f, _, err := s.Open(key)
	if err != nil {
		return "", err
	}
	defer f.Close()

	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return "", fmt.Errorf("blobstore: sniff: %w", err)
	}
	return mt.String(), nil
}

// SanitizeName reduces a client-supplied file name to a safe base name.
func SanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7f, r == '/', r == ':':
			return '_'
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		name = "file"
	}
	if len(name) > maxNameLen {
		ext := filepath.Ext(name)
		if len(ext) > 16 {
			ext = ""
		}
		name = name[:maxNameLen-len(ext)] + ext
	}
	return name
}
