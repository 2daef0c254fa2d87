package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mtiwari1/scanvault/internal/scanner"
)

// ErrNotFound is returned when a referenced file does not exist.
var ErrNotFound = errors.New("file not found")

// FileRecord is the metadata of one uploaded artifact. It is never updated
// after creation.
type FileRecord struct {
	ID         string
	Filename   string // staged name, not necessarily the client's name
	StorageKey string // locator of the bytes; dangling once they are purged
	SizeBytes  int64
	OwnerID    *string // nil for anonymous uploads
	MediaType  string  // declared, advisory only
	UploadedAt time.Time
}

// ScanRecord is one scan attempt against a FileRecord.
type ScanRecord struct {
	ID          string
	FileID      string
	Status      scanner.Status
	VirusName   string
	ScanLog     string
	ScanVersion string
	ScannedAt   time.Time
}

// FileView joins a file with its current (most recent) scan, if any.
type FileView struct {
	File FileRecord
	Scan *ScanRecord
}

// Stats aggregates every stored scan record by status.
type Stats struct {
	Total    int64
	Clean    int64
	Infected int64
	Error    int64
}

// Repository persists files and their scan records. Implementations must
// honour the supplied context for cancellation and timeouts.
type Repository interface {
	// CreateFile inserts a new file record.
	CreateFile(ctx context.Context, rec *FileRecord) error

	// GetFile retrieves a file record by id or returns ErrNotFound.
	GetFile(ctx context.Context, id string) (*FileRecord, error)

	// CreateScan appends a scan record for an existing file.
	CreateScan(ctx context.Context, rec *ScanRecord) error

	// ScansFor returns every scan of a file, newest first.
	ScansFor(ctx context.Context, fileID string) ([]*ScanRecord, error)

	// List returns a filtered page of files joined with their current scan
	// and the number of files matching the filter regardless of paging.
	List(ctx context.Context, params ListParams) ([]*FileView, int, error)

	// Stats counts scan records by status.
	Stats(ctx context.Context) (Stats, error)

	// InfectedFileIDs lists files whose current verdict is infected.
	InfectedFileIDs(ctx context.Context) ([]string, error)

	// DeleteFile removes a file and all of its scans atomically and reports
	// how many scans went with it. Unknown ids yield ErrNotFound.
	DeleteFile(ctx context.Context, id string) (int64, error)

	// Ping checks store connectivity.
	Ping(ctx context.Context) error
}
