// Package query turns caller filters into paginated, joined views of files
// and their current verdicts.
package query

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mtiwari1/scanvault/internal/repository"
)

// ErrInvalidFilter is returned for malformed filter or paging parameters.
var ErrInvalidFilter = errors.New("invalid filter")

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// StatusAll disables status filtering.
const StatusAll = "all"

const dateLayout = "2006-01-02"

// Filter is a validated, conjunctive listing filter.
type Filter struct {
	OwnerID   string
	FileID    string
	Filename  string
	MediaType string
	Status    string     // clean, infected, error, unscanned or "" for all
	Date      *time.Time // calendar day, UTC midnight
	Page      int
	Limit     int
}

// ParseFilter reads a filter from listing query parameters:
// page, limit, userId, fileId, filename, mimeType, status, date.
// The legacy infected=true|false parameter maps to status when status is absent.
func ParseFilter(q url.Values) (Filter, error) {
	f := Filter{
		OwnerID:   strings.TrimSpace(q.Get("userId")),
		FileID:    strings.TrimSpace(q.Get("fileId")),
		Filename:  strings.TrimSpace(q.Get("filename")),
		MediaType: strings.TrimSpace(q.Get("mimeType")),
		Page:      DefaultPage,
		Limit:     DefaultLimit,
	}

	var err error
	if f.Page, err = positiveInt(q, "page", DefaultPage); err != nil {
		return Filter{}, err
	}
	if f.Limit, err = positiveInt(q, "limit", DefaultLimit); err != nil {
		return Filter{}, err
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}

	status := strings.ToLower(strings.TrimSpace(q.Get("status")))
	if status == "" {
		status = legacyInfected(q.Get("infected"))
	}
	if f.Status, err = parseStatus(status); err != nil {
		return Filter{}, err
	}

	if d := strings.TrimSpace(q.Get("date")); d != "" {
		day, err := time.ParseInLocation(dateLayout, d, time.UTC)
		if err != nil {
			return Filter{}, fmt.Errorf("%w: date must be YYYY-MM-DD, got %q", ErrInvalidFilter, d)
		}
		f.Date = &day
	}
	return f, nil
}

// Offset is the number of rows skipped before the requested page. It
// saturates at math.MaxInt instead of wrapping for absurd page numbers.
func (f Filter) Offset() int {
	if f.Page < 1 || f.Limit < 1 {
		return 0
	}
	if f.Page-1 > math.MaxInt/f.Limit {
		return math.MaxInt
	}
	return (f.Page - 1) * f.Limit
}

// Params converts the filter into repository parameters. Paging is applied
// only when withPaging is set.
func (f Filter) Params(withPaging bool) repository.ListParams {
	var p repository.ListParams
	if f.OwnerID != "" {
		p.OwnerID = &f.OwnerID
	}
	if f.FileID != "" {
		p.FileID = &f.FileID
	}
	if f.Filename != "" {
		p.Filename = &f.Filename
	}
	if f.MediaType != "" {
		p.MediaType = &f.MediaType
	}
	if f.Status != "" {
		p.Status = &f.Status
	}
	if f.Date != nil {
		from := *f.Date
		before := from.AddDate(0, 0, 1)
		p.UploadedFrom, p.UploadedBefore = &from, &before
	}
	if withPaging {
		p.Limit, p.Offset = f.Limit, f.Offset()
	}
	return p
}

func positiveInt(q url.Values, key string, def int) (int, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %q", ErrInvalidFilter, key, raw)
	}
	return n, nil
}

func parseStatus(s string) (string, error) {
	switch s {
	case "", StatusAll:
		return "", nil
	case repository.StatusFilterClean, repository.StatusFilterInfected,
		repository.StatusFilterError, repository.StatusFilterUnscanned:
		return s, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidFilter, s)
}

func legacyInfected(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "":
		return ""
	case "true", "1":
		return repository.StatusFilterInfected
	default:
		return repository.StatusFilterClean
	}
}
