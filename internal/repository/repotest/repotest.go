// Package repotest provides throwaway SQLite-backed repositories for tests.
package repotest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mtiwari1/scanvault/internal/repository"
)

// New opens a fresh SQLite database in t.TempDir, migrates it and returns a
// repository that is closed when the test ends.
func New(t testing.TB) *repository.SQLRepo {
	t.Helper()
	ctx := context.Background()

	db, err := repository.Open(ctx, repository.SQLite, filepath.Join(t.TempDir(), "scanvault.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := repository.Migrate(ctx, db, repository.SQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	repo, err := repository.NewSQLRepo(db)
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}
