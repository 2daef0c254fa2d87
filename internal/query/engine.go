package query

import (
	"context"
	"fmt"

	"github.com/mtiwari1/scanvault/internal/repository"
)

// DefaultExportLimit bounds an unpaginated export.
const DefaultExportLimit = 10000

// Page is one page of a listing plus the filtered total.
type Page struct {
	Files []*repository.FileView
	Total int
}

// Engine serves listings, exports and statistics straight from the store;
// nothing is cached, so a deleted or re-scanned file is never served stale.
type Engine struct {
	repo        repository.Repository
	exportLimit int
}

// NewEngine creates an engine. A non-positive exportLimit means DefaultExportLimit.
func NewEngine(repo repository.Repository, exportLimit int) *Engine {
	if exportLimit <= 0 {
		exportLimit = DefaultExportLimit
	}
	return &Engine{repo: repo, exportLimit: exportLimit}
}

// List returns the requested page. Pages past the end are empty but carry
// the same total.
func (e *Engine) List(ctx context.Context, f Filter) (*Page, error) {
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	views, total, err := e.repo.List(ctx, f.Params(true))
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return &Page{Files: views, Total: total}, nil
}

// Export returns every matching row, up to the export ceiling.
func (e *Engine) Export(ctx context.Context, f Filter) ([]*repository.FileView, error) {
	p := f.Params(false)
	p.Limit = e.exportLimit
	views, _, err := e.repo.List(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("export files: %w", err)
	}
	return views, nil
}

// Stats aggregates all scan records.
func (e *Engine) Stats(ctx context.Context) (repository.Stats, error) {
	st, err := e.repo.Stats(ctx)
	if err != nil {
		return repository.Stats{}, fmt.Errorf("scan stats: %w", err)
	}
	return st, nil
}
