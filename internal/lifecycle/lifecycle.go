// Package lifecycle removes files together with their bytes and scan history.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mtiwari1/scanvault/internal/identity"
	"github.com/mtiwari1/scanvault/internal/repository"
)

// Blobs purges stored bytes. *blobstore.Store satisfies it.
type Blobs interface {
	Remove(key string) (bool, error)
}

// Deletion describes a completed single delete.
type Deletion struct {
	FileID       string
	ScansRemoved int64
	BytesRemoved bool // false when the bytes were already gone
}

// Failure is one file a sweep could not delete.
type Failure struct {
	FileID string
	Err    error
}

// Report is the outcome of a best-effort sweep.
type Report struct {
	Succeeded []string
	Failed    []Failure
}

// Manager deletes files singly or in bulk.
type Manager struct {
	repo         repository.Repository
	blobs        Blobs
	scopeToOwner bool
	logger       *slog.Logger
}

// NewManager wires a manager. With scopeToOwner set, callers may only
// delete files they own or ownerless ones; anything else looks missing.
func NewManager(repo repository.Repository, blobs Blobs, scopeToOwner bool, logger *slog.Logger) *Manager {
	return &Manager{repo: repo, blobs: blobs, scopeToOwner: scopeToOwner, logger: logger}
}

// Authorize loads a file on behalf of caller, applying owner scoping.
func (m *Manager) Authorize(ctx context.Context, id string, caller identity.Caller) (*repository.FileRecord, error) {
	file, err := m.repo.GetFile(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.scopeToOwner && !caller.CanAccess(file.OwnerID) {
		return nil, repository.ErrNotFound
	}
	return file, nil
}

// Delete removes the file's bytes, then its scans and the file record.
// Bytes that are already gone are fine; other byte-removal failures are
// logged and do not block the metadata delete. Unknown ids yield
// repository.ErrNotFound.
func (m *Manager) Delete(ctx context.Context, id string, caller identity.Caller) (*Deletion, error) {
	file, err := m.Authorize(ctx, id, caller)
	if err != nil {
		return nil, err
	}
	return m.remove(ctx, file)
}

// DeleteInfected deletes every file whose current verdict is infected.
// Per-file failures are collected and never stop the sweep; only a failure
// to enumerate candidates is returned as an error.
func (m *Manager) DeleteInfected(ctx context.Context) (*Report, error) {
	ids, err := m.repo.InfectedFileIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate infected files: %w", err)
	}

	report := &Report{Succeeded: make([]string, 0, len(ids))}
	for _, id := range ids {
		if err := m.sweepOne(ctx, id); err != nil {
			m.logger.Error("delete infected file",
				slog.String("file_id", id),
				slog.String("error", err.Error()),
			)
			report.Failed = append(report.Failed, Failure{FileID: id, Err: err})
			continue
		}
		report.Succeeded = append(report.Succeeded, id)
	}

	m.logger.Info("infected sweep finished",
		slog.Int("candidates", len(ids)),
		slog.Int("deleted", len(report.Succeeded)),
		slog.Int("failed", len(report.Failed)),
	)
	return report, nil
}

func (m *Manager) sweepOne(ctx context.Context, id string) error {
	file, err := m.repo.GetFile(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil // deleted concurrently
	}
	if err != nil {
		return err
	}
	_, err = m.remove(ctx, file)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	return err
}

func (m *Manager) remove(ctx context.Context, file *repository.FileRecord) (*Deletion, error) {
	logger := m.logger.With(slog.String("file_id", file.ID))

	existed, err := m.blobs.Remove(file.StorageKey)
	if err != nil {
		logger.Warn("remove stored bytes, continuing with metadata", slog.String("error", err.Error()))
	}

	scans, err := m.repo.DeleteFile(ctx, file.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("delete file %s: %w", file.ID, err)
	}

	logger.Info("file deleted",
		slog.Int64("scans_removed", scans),
		slog.Bool("bytes_removed", existed),
	)
	return &Deletion{FileID: file.ID, ScansRemoved: scans, BytesRemoved: existed}, nil
}
