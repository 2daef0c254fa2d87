package repository

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Scan-status filter values. A nil ListParams.Status applies no filter.
const (
	StatusFilterClean     = "clean"
	StatusFilterInfected  = "infected"
	StatusFilterError     = "error"
	StatusFilterUnscanned = "unscanned"
)

// ListParams describes a conjunctive filter over files and their current
// scan. Nil fields do not filter.
type ListParams struct {
	// OwnerID matches the uploading caller exactly.
	OwnerID *string
	// FileID matches the file id exactly.
	FileID *string
	// Filename is a case-insensitive substring of the staged name.
	Filename *string
	// MediaType is a case-insensitive substring of the declared media type.
	MediaType *string
	// Status is one of the StatusFilter* values.
	Status *string
	// UploadedFrom and UploadedBefore bound uploaded_at as [from, before).
	UploadedFrom   *time.Time
	UploadedBefore *time.Time
	// Limit caps the number of rows; zero or less means no cap.
	Limit  int
	Offset int
}

// List returns the requested page, newest upload first, plus the filtered
// total computed without LIMIT/OFFSET.
func (r *SQLRepo) List(ctx context.Context, params ListParams) ([]*FileView, int, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	where, args := buildListWhere(params)

	var total int
	countQuery := `SELECT COUNT(*) FROM files f ` + latestScanJoin + ` ` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repo list count: %w", err)
	}

	// Pages past the end are empty; the store is not asked for them.
	if params.Limit > 0 && params.Offset >= total {
		return make([]*FileView, 0), total, nil
	}

	dataQuery := `SELECT ` + fileColumns + `, ` + scanColumns + ` FROM files f ` + latestScanJoin + ` ` + where +
		` ORDER BY f.uploaded_at DESC, f.id DESC`
	dataArgs := append([]any(nil), args...)
	if params.Limit > 0 {
		dataQuery += ` LIMIT ? OFFSET ?`
		dataArgs = append(dataArgs, params.Limit, max(params.Offset, 0))
	}

	rows, err := r.db.QueryContext(ctx, dataQuery, dataArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("repo list: %w", err)
	}
	defer rows.Close()

	views := make([]*FileView, 0)
	for rows.Next() {
		var ns nullScan
		f, err := scanFile(rows, ns.dest()...)
		if err != nil {
			return nil, 0, fmt.Errorf("repo list scan: %w", err)
		}
		views = append(views, &FileView{File: *f, Scan: ns.record(f.ID)})
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("repo list rows: %w", err)
	}
	return views, total, nil
}

// buildListWhere renders params as a WHERE clause with positional args.
func buildListWhere(params ListParams) (string, []any) {
	var (
		conditions []string
		args       []any
	)

	if params.OwnerID != nil {
		conditions = append(conditions, "f.owner_id = ?")
		args = append(args, *params.OwnerID)
	}
	if params.FileID != nil {
		conditions = append(conditions, "f.id = ?")
		args = append(args, *params.FileID)
	}
	if params.Filename != nil && *params.Filename != "" {
		conditions = append(conditions, "LOWER(f.filename) LIKE ? ESCAPE '!'")
		args = append(args, containsPattern(*params.Filename))
	}
	if params.MediaType != nil && *params.MediaType != "" {
		conditions = append(conditions, "LOWER(f.media_type) LIKE ? ESCAPE '!'")
		args = append(args, containsPattern(*params.MediaType))
	}
	if params.Status != nil {
		if *params.Status == StatusFilterUnscanned {
			conditions = append(conditions, "s.id IS NULL")
		} else {
			conditions = append(conditions, "s.status = ?")
			args = append(args, *params.Status)
		}
	}
	if params.UploadedFrom != nil {
		conditions = append(conditions, "f.uploaded_at >= ?")
		args = append(args, params.UploadedFrom.UTC())
	}
	if params.UploadedBefore != nil {
		conditions = append(conditions, "f.uploaded_at < ?")
		args = append(args, params.UploadedBefore.UTC())
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

// containsPattern builds a lower-cased LIKE pattern with "!" as the escape.
func containsPattern(s string) string {
	s = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(strings.ToLower(s))
	return "%" + s + "%"
}
