package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mtiwari1/scanvault/internal/scanner"
)

const dbTimeout = 5 * time.Second

const fileColumns = `f.id, f.filename, f.storage_key, f.size_bytes, f.owner_id, f.media_type, f.uploaded_at`

const scanColumns = `s.id, s.status, s.virus_name, s.scan_log, s.scan_version, s.scanned_at`

// latestScanJoin attaches at most one scan per file: the most recent one.
const latestScanJoin = `LEFT JOIN scans s ON s.id = (
	SELECT s2.id FROM scans s2
	WHERE s2.file_id = f.id
	ORDER BY s2.scanned_at DESC, s2.id DESC
	LIMIT 1)`

// SQLRepo implements Repository on database/sql using prepared statements
// and context timeouts. Queries use "?" placeholders, valid for both MySQL
// and SQLite.
type SQLRepo struct {
	db              *sql.DB
	stmtCreateFile  *sql.Stmt
	stmtGetFile     *sql.Stmt
	stmtCreateScan  *sql.Stmt
	stmtScansFor    *sql.Stmt
	stmtStats       *sql.Stmt
	stmtInfectedIDs *sql.Stmt
}

// NewSQLRepo prepares all static statements up front. The caller owns the
// *sql.DB lifetime; the schema must already exist.
func NewSQLRepo(db *sql.DB) (*SQLRepo, error) {
	r := &SQLRepo{db: db}
	prepared := []struct {
		dst   **sql.Stmt
		name  string
		query string
	}{
		{&r.stmtCreateFile, "createFile",
			`INSERT INTO files (id, filename, storage_key, size_bytes, owner_id, media_type, uploaded_at) VALUES (?, ?, ?, ?, ?, ?, ?)`},
		{&r.stmtGetFile, "getFile",
			`SELECT ` + fileColumns + ` FROM files f WHERE f.id = ?`},
		{&r.stmtCreateScan, "createScan",
			`INSERT INTO scans (id, file_id, status, virus_name, scan_log, scan_version, scanned_at) VALUES (?, ?, ?, ?, ?, ?, ?)`},
		{&r.stmtScansFor, "scansFor",
			`SELECT ` + scanColumns + ` FROM scans s WHERE s.file_id = ? ORDER BY s.scanned_at DESC, s.id DESC`},
		{&r.stmtStats, "stats",
			`SELECT COUNT(*),
				COALESCE(SUM(CASE WHEN status = 'clean' THEN 1 ELSE 0 END), 0),
				COALESCE(SUM(CASE WHEN status = 'infected' THEN 1 ELSE 0 END), 0),
				COALESCE(SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END), 0)
			FROM scans`},
		{&r.stmtInfectedIDs, "infectedIDs",
			`SELECT f.id FROM files f ` + latestScanJoin + ` WHERE s.status = 'infected' ORDER BY f.uploaded_at DESC, f.id DESC`},
	}
	for _, p := range prepared {
		stmt, err := db.Prepare(p.query)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("prepare %s: %w", p.name, err)
		}
		*p.dst = stmt
	}
	return r, nil
}

// CreateFile inserts a new file record.
func (r *SQLRepo) CreateFile(ctx context.Context, rec *FileRecord) error {
	if rec.SizeBytes <= 0 {
		return fmt.Errorf("repo createFile: size must be positive, got %d", rec.SizeBytes)
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := r.stmtCreateFile.ExecContext(ctx,
		rec.ID, rec.Filename, rec.StorageKey, rec.SizeBytes, nullString(rec.OwnerID), rec.MediaType, rec.UploadedAt.UTC())
	if err != nil {
		return fmt.Errorf("repo createFile: %w", err)
	}
	return nil
}

// GetFile retrieves a file record by id.
func (r *SQLRepo) GetFile(ctx context.Context, id string) (*FileRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rec, err := scanFile(r.stmtGetFile.QueryRowContext(ctx, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repo getFile: %w", err)
	}
	return rec, nil
}

// CreateScan appends a scan record.
func (r *SQLRepo) CreateScan(ctx context.Context, rec *ScanRecord) error {
	v := scanner.Verdict{Status: rec.Status, VirusName: rec.VirusName}
	if err := v.Check(); err != nil {
		return fmt.Errorf("repo createScan: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var virus *string
	if rec.VirusName != "" {
		virus = &rec.VirusName
	}
	_, err := r.stmtCreateScan.ExecContext(ctx,
		rec.ID, rec.FileID, string(rec.Status), nullString(virus), rec.ScanLog, rec.ScanVersion, rec.ScannedAt.UTC())
	if err != nil {
		return fmt.Errorf("repo createScan: %w", err)
	}
	return nil
}

// ScansFor returns the scans of a file, newest first.
func (r *SQLRepo) ScansFor(ctx context.Context, fileID string) ([]*ScanRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.stmtScansFor.QueryContext(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("repo scansFor: %w", err)
	}
	defer rows.Close()

	var out []*ScanRecord
	for rows.Next() {
		var ns nullScan
		if err := rows.Scan(ns.dest()...); err != nil {
			return nil, fmt.Errorf("repo scansFor scan: %w", err)
		}
		rec := ns.record(fileID)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Stats counts scan records by status.
func (r *SQLRepo) Stats(ctx context.Context) (Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var st Stats
	if err := r.stmtStats.QueryRowContext(ctx).Scan(&st.Total, &st.Clean, &st.Infected, &st.Error); err != nil {
		return Stats{}, fmt.Errorf("repo stats: %w", err)
	}
	return st, nil
}

// InfectedFileIDs lists files whose current verdict is infected.
func (r *SQLRepo) InfectedFileIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.stmtInfectedIDs.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("repo infectedIDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("repo infectedIDs scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteFile removes the scans of a file and then the file, in one transaction.
func (r *SQLRepo) DeleteFile(ctx context.Context, id string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("repo deleteFile begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM scans WHERE file_id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("repo deleteFile scans: %w", err)
	}
	scans, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("repo deleteFile scans: %w", err)
	}

	res, err = tx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("repo deleteFile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("repo deleteFile: %w", err)
	}
	if n == 0 {
		return 0, ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("repo deleteFile commit: %w", err)
	}
	return scans, nil
}

// Ping checks database connectivity.
func (r *SQLRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close releases all prepared statements.
func (r *SQLRepo) Close() error {
	for _, s := range []*sql.Stmt{r.stmtCreateFile, r.stmtGetFile, r.stmtCreateScan, r.stmtScansFor, r.stmtStats, r.stmtInfectedIDs} {
		if s != nil {
			s.Close()
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner, extra ...any) (*FileRecord, error) {
	rec := &FileRecord{}
	var owner sql.NullString
	dest := append([]any{
		&rec.ID, &rec.Filename, &rec.StorageKey, &rec.SizeBytes, &owner, &rec.MediaType, &rec.UploadedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if owner.Valid {
		rec.OwnerID = &owner.String
	}
	rec.UploadedAt = rec.UploadedAt.UTC()
	return rec, nil
}

// nullScan receives scan columns that may be NULL on the outer side of a join.
type nullScan struct {
	id, status, virus, log, version sql.NullString
	scannedAt                       sql.NullTime
}

func (n *nullScan) dest() []any {
	return []any{&n.id, &n.status, &n.virus, &n.log, &n.version, &n.scannedAt}
}

func (n *nullScan) record(fileID string) *ScanRecord {
	if !n.id.Valid {
		return nil
	}
	return &ScanRecord{
		ID:          n.id.String,
		FileID:      fileID,
		Status:      scanner.Status(n.status.String),
		VirusName:   n.virus.String,
		ScanLog:     n.log.String,
		ScanVersion: n.version.String,
		ScannedAt:   n.scannedAt.Time.UTC(),
	}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
