package ingest

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

// DefaultMaxBytes is the upload ceiling when none is configured.
const DefaultMaxBytes int64 = 2 << 30

// Gate performs the upstream checks that must pass before any record
// exists: non-empty, within the size ceiling, extension not denied.
type Gate struct {
	maxBytes int64
	denied   map[string]struct{}
}

// NewGate builds a gate. Extensions are matched case-insensitively and may
// be given with or without the leading dot.
func NewGate(maxBytes int64, deniedExt []string) *Gate {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	g := &Gate{maxBytes: maxBytes, denied: make(map[string]struct{}, len(deniedExt))}
	for _, ext := range deniedExt {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		g.denied[ext] = struct{}{}
	}
	return g
}

// MaxBytes returns the size ceiling.
func (g *Gate) MaxBytes() int64 { return g.maxBytes }

// CheckName rejects names with a denied extension. Surrounding whitespace
// and trailing dots are ignored, so "evil.exe. " counts as ".exe".
func (g *Gate) CheckName(name string) error {
	name = strings.TrimRight(strings.TrimSpace(name), ". \t")
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := g.denied[ext]; ok {
		return fmt.Errorf("%w: unsupported file type %q", ErrInputRejected, ext)
	}
	return nil
}

// CheckSize rejects empty and oversized files.
func (g *Gate) CheckSize(size int64) error {
	switch {
	case size <= 0:
		return fmt.Errorf("%w: file is empty", ErrInputRejected)
	case size > g.maxBytes:
		return fmt.Errorf("%w: file size exceeds %s limit", ErrInputRejected, humanize.IBytes(uint64(g.maxBytes)))
	}
	return nil
}
