package query

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtiwari1/scanvault/internal/repository"
	"github.com/mtiwari1/scanvault/internal/repository/repotest"
	"github.com/mtiwari1/scanvault/internal/scanner"
)

func TestParseFilterDefaults(t *testing.T) {
	f, err := ParseFilter(url.Values{})
	require.NoError(t, err)
	assert.Equal(t, DefaultPage, f.Page)
	assert.Equal(t, DefaultLimit, f.Limit)
	assert.Empty(t, f.Status)
	assert.Nil(t, f.Date)
	assert.Zero(t, f.Offset())
}

func TestParseFilterValues(t *testing.T) {
	f, err := ParseFilter(url.Values{
		"page":     {"3"},
		"limit":    {"500"},
		"userId":   {"alice"},
		"fileId":   {"abc"},
		"filename": {" Report "},
		"mimeType": {"pdf"},
		"status":   {"Unscanned"},
		"date":     {"2026-10-14"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, f.Page)
	assert.Equal(t, MaxLimit, f.Limit)
	assert.Equal(t, 200, f.Offset())
	assert.Equal(t, "alice", f.OwnerID)
	assert.Equal(t, "Report", f.Filename)
	assert.Equal(t, repository.StatusFilterUnscanned, f.Status)
	require.NotNil(t, f.Date)
	assert.Equal(t, time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC), *f.Date)

	p := f.Params(true)
	require.NotNil(t, p.UploadedBefore)
	assert.Equal(t, time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC), *p.UploadedBefore)
	assert.Equal(t, 100, p.Limit)
	assert.Equal(t, 200, p.Offset)

	unpaged := f.Params(false)
	assert.Zero(t, unpaged.Limit)
}

func TestOffsetSaturatesForHugePages(t *testing.T) {
	f, err := ParseFilter(url.Values{"page": {"1000000000000000000"}, "limit": {"10"}})
	require.NoError(t, err)
	assert.Equal(t, math.MaxInt, f.Offset())
	assert.Equal(t, math.MaxInt, f.Params(true).Offset)
}

func TestParseFilterStatus(t *testing.T) {
	for in, want := range map[string]string{"all": "", "infected": "infected", "clean": "clean", "error": "error"} {
		f, err := ParseFilter(url.Values{"status": {in}})
		require.NoError(t, err, in)
		assert.Equal(t, want, f.Status, in)
	}

	f, err := ParseFilter(url.Values{"infected": {"true"}})
	require.NoError(t, err)
	assert.Equal(t, "infected", f.Status)

	f, err = ParseFilter(url.Values{"infected": {"false"}})
	require.NoError(t, err)
	assert.Equal(t, "clean", f.Status)

	f, err = ParseFilter(url.Values{"infected": {"true"}, "status": {"unscanned"}})
	require.NoError(t, err)
	assert.Equal(t, "unscanned", f.Status)
}

func TestParseFilterRejects(t *testing.T) {
	for _, q := range []url.Values{
		{"page": {"0"}},
		{"page": {"-1"}},
		{"limit": {"ten"}},
		{"status": {"pending"}},
		{"date": {"14/10/2026"}},
	} {
		_, err := ParseFilter(q)
		assert.ErrorIs(t, err, ErrInvalidFilter, q.Encode())
	}
}

func seed(t *testing.T, repo repository.Repository, n int, status scanner.Status) {
	t.Helper()
	ctx := context.Background()
	at := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		f := &repository.FileRecord{
			ID: uuid.NewString(), Filename: fmt.Sprintf("%s-%d.txt", status, i), StorageKey: "k",
			SizeBytes: 1, MediaType: "text/plain", UploadedAt: at.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, repo.CreateFile(ctx, f))
		s := &repository.ScanRecord{ID: uuid.NewString(), FileID: f.ID, Status: status, ScannedAt: at}
		if status == scanner.StatusInfected {
			s.VirusName = "Eicar-Test-Signature"
		}
		require.NoError(t, repo.CreateScan(ctx, s))
	}
}

func TestEngineListPagination(t *testing.T) {
	repo := repotest.New(t)
	seed(t, repo, 15, scanner.StatusClean)
	e := NewEngine(repo, 0)

	page, err := e.List(context.Background(), Filter{Page: 2, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, page.Files, 5)
	assert.Equal(t, 15, page.Total)

	page, err = e.List(context.Background(), Filter{Page: 99, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, page.Files)
	assert.Equal(t, 15, page.Total)
}

func TestEngineListStatusOnlyMatches(t *testing.T) {
	repo := repotest.New(t)
	seed(t, repo, 3, scanner.StatusInfected)
	seed(t, repo, 2, scanner.StatusClean)
	e := NewEngine(repo, 0)

	page, err := e.List(context.Background(), Filter{Status: "infected", Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	for _, v := range page.Files {
		require.NotNil(t, v.Scan)
		assert.Equal(t, scanner.StatusInfected, v.Scan.Status)
	}

	page, err = e.List(context.Background(), Filter{Status: "unscanned", Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.Empty(t, page.Files)
}

func TestEngineExportCeiling(t *testing.T) {
	repo := repotest.New(t)
	seed(t, repo, 12, scanner.StatusClean)

	rows, err := NewEngine(repo, 0).Export(context.Background(), Filter{Page: 2, Limit: 5})
	require.NoError(t, err)
	assert.Len(t, rows, 12, "export ignores paging")

	rows, err = NewEngine(repo, 7).Export(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Len(t, rows, 7)
}

func TestEngineStats(t *testing.T) {
	repo := repotest.New(t)
	seed(t, repo, 3, scanner.StatusInfected)
	seed(t, repo, 2, scanner.StatusClean)

	st, err := NewEngine(repo, 0).Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, repository.Stats{Total: 5, Clean: 2, Infected: 3}, st)
}
