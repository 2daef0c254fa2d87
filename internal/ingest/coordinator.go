// Package ingest drives a staged upload through persistence, scanning and
// cleanup.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/mtiwari1/scanvault/internal/identity"
	"github.com/mtiwari1/scanvault/internal/repository"
	"github.com/mtiwari1/scanvault/internal/scanner"
)

var (
	// ErrInputRejected marks uploads refused before any record was created.
	ErrInputRejected = errors.New("input rejected")
	// ErrPersistence marks store failures; no partial upload survives them.
	ErrPersistence = errors.New("persistence failure")
)

// Staged describes bytes already written to the backing filesystem.
type Staged struct {
	Key          string // blob key, also used as the stored filename
	OriginalName string
	Size         int64
	MediaType    string
}

// Scanner produces a verdict for a staged file. *worker.Pool satisfies it.
type Scanner interface {
	Scan(ctx context.Context, fileID, path string) (scanner.Verdict, error)
}

// Blobs locates and purges staged bytes. *blobstore.Store satisfies it.
type Blobs interface {
	Path(key string) (string, error)
	Remove(key string) (bool, error)
}

// Result is the file merged with the verdict recorded for this upload.
type Result struct {
	File repository.FileRecord
	Scan repository.ScanRecord
}

// Coordinator runs uploads. Each call is independent; concurrent uploads
// share nothing but the stores.
type Coordinator struct {
	repo   repository.Repository
	blobs  Blobs
	scans  Scanner
	now    func() time.Time
	logger *slog.Logger
}

// NewCoordinator wires a coordinator.
func NewCoordinator(repo repository.Repository, blobs Blobs, scans Scanner, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		repo:   repo,
		blobs:  blobs,
		scans:  scans,
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		logger: logger,
	}
}

// Ingest persists the file record, scans the staged bytes, persists the
// verdict and removes the staged bytes, in that order. It returns either a
// complete result or an ErrInputRejected/ErrPersistence failure; engine
// faults end up as a StatusError verdict rather than an error.
func (c *Coordinator) Ingest(ctx context.Context, staged Staged, caller identity.Caller) (*Result, error) {
	logger := c.logger.With(slog.String("key", staged.Key), slog.String("caller", caller.String()))

	// Cleanup runs whatever the outcome: bytes live only while in flight.
	defer c.purge(logger, staged.Key)

	if staged.Size <= 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrInputRejected)
	}
	path, err := c.blobs.Path(staged.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputRejected, err)
	}

	file := repository.FileRecord{
		ID:         uuid.NewString(),
		Filename:   staged.Key,
		StorageKey: staged.Key,
		SizeBytes:  staged.Size,
		OwnerID:    caller.OwnerRef(),
		MediaType:  staged.MediaType,
		UploadedAt: c.now(),
	}
	if err := c.repo.CreateFile(ctx, &file); err != nil {
		logger.Error("persist file record", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	logger = logger.With(slog.String("file_id", file.ID))
	logger.Info("file record created",
		slog.String("original_name", staged.OriginalName),
		slog.String("size", humanize.IBytes(uint64(staged.Size))),
	)

	verdict, err := c.scans.Scan(ctx, file.ID, path)
	if err == nil {
		err = verdict.Check()
	}
	if err != nil {
		logger.Error("scan failed unexpectedly", slog.String("error", err.Error()))
		verdict = scanner.ErrorVerdict(verdict.Version, err)
	}

	// The record pair must not be left half-written because the client went away.
	persistCtx := context.WithoutCancel(ctx)

	scan := repository.ScanRecord{
		ID:          uuid.NewString(),
		FileID:      file.ID,
		Status:      verdict.Status,
		VirusName:   verdict.VirusName,
		ScanLog:     verdict.Log,
		ScanVersion: verdict.Version,
		ScannedAt:   c.now(),
	}
	if err := c.repo.CreateScan(persistCtx, &scan); err != nil {
		logger.Error("persist scan record", slog.String("error", err.Error()))
		if _, derr := c.repo.DeleteFile(persistCtx, file.ID); derr != nil {
			logger.Error("roll back file record", slog.String("error", derr.Error()))
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	logger.Info("upload scanned",
		slog.String("status", string(scan.Status)),
		slog.String("virus_name", scan.VirusName),
		slog.Bool("fallback", verdict.IsFallback()),
	)
	return &Result{File: file, Scan: scan}, nil
}

func (c *Coordinator) purge(logger *slog.Logger, key string) {
	if _, err := c.blobs.Remove(key); err != nil {
		logger.Warn("remove staged bytes", slog.String("error", err.Error()))
	}
}
