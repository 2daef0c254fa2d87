package repository_test

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtiwari1/scanvault/internal/repository"
	"github.com/mtiwari1/scanvault/internal/repository/repotest"
	"github.com/mtiwari1/scanvault/internal/scanner"
)

var base = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func seedFile(t *testing.T, repo repository.Repository, name string, at time.Time, owner *string) *repository.FileRecord {
	t.Helper()
	rec := &repository.FileRecord{
		ID:         uuid.NewString(),
		Filename:   name,
		StorageKey: "key-" + name,
		SizeBytes:  10,
		OwnerID:    owner,
		MediaType:  "text/plain",
		UploadedAt: at,
	}
	require.NoError(t, repo.CreateFile(context.Background(), rec))
	return rec
}

func seedScan(t *testing.T, repo repository.Repository, fileID string, status scanner.Status, at time.Time) *repository.ScanRecord {
	t.Helper()
	rec := &repository.ScanRecord{
		ID:          uuid.NewString(),
		FileID:      fileID,
		Status:      status,
		ScanLog:     "log",
		ScanVersion: "ClamAV 1.0.3",
		ScannedAt:   at,
	}
	if status == scanner.StatusInfected {
		rec.VirusName = "Eicar-Test-Signature"
	}
	require.NoError(t, repo.CreateScan(context.Background(), rec))
	return rec
}

func TestCreateAndGetFile(t *testing.T) {
	repo := repotest.New(t)
	ctx := context.Background()

	rec := seedFile(t, repo, "a.txt", base, ptr("alice"))

	got, err := repo.GetFile(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Filename, got.Filename)
	assert.Equal(t, rec.StorageKey, got.StorageKey)
	assert.EqualValues(t, 10, got.SizeBytes)
	require.NotNil(t, got.OwnerID)
	assert.Equal(t, "alice", *got.OwnerID)
	assert.True(t, base.Equal(got.UploadedAt))

	_, err = repo.GetFile(ctx, uuid.NewString())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCreateFileRejectsEmpty(t *testing.T) {
	repo := repotest.New(t)
	err := repo.CreateFile(context.Background(), &repository.FileRecord{
		ID: uuid.NewString(), Filename: "empty", StorageKey: "k", UploadedAt: base,
	})
	assert.Error(t, err)
}

func TestCreateScanEnforcesVirusNameInvariant(t *testing.T) {
	repo := repotest.New(t)
	f := seedFile(t, repo, "a.txt", base, nil)

	err := repo.CreateScan(context.Background(), &repository.ScanRecord{
		ID: uuid.NewString(), FileID: f.ID, Status: scanner.StatusClean, VirusName: "x", ScannedAt: base,
	})
	assert.Error(t, err)

	err = repo.CreateScan(context.Background(), &repository.ScanRecord{
		ID: uuid.NewString(), FileID: f.ID, Status: scanner.StatusInfected, ScannedAt: base,
	})
	assert.Error(t, err)
}

func TestListCurrentVerdictIsMostRecent(t *testing.T) {
	repo := repotest.New(t)
	f := seedFile(t, repo, "a.txt", base, nil)
	seedScan(t, repo, f.ID, scanner.StatusClean, base.Add(time.Minute))
	seedScan(t, repo, f.ID, scanner.StatusInfected, base.Add(2*time.Minute))

	views, total, err := repo.List(context.Background(), repository.ListParams{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, views, 1)
	require.NotNil(t, views[0].Scan)
	assert.Equal(t, scanner.StatusInfected, views[0].Scan.Status)
	assert.Equal(t, "Eicar-Test-Signature", views[0].Scan.VirusName)

	scans, err := repo.ScansFor(context.Background(), f.ID)
	require.NoError(t, err)
	require.Len(t, scans, 2)
	assert.Equal(t, scanner.StatusInfected, scans[0].Status)
}

func TestListStatusFilters(t *testing.T) {
	repo := repotest.New(t)
	clean := seedFile(t, repo, "clean.txt", base, nil)
	infected := seedFile(t, repo, "evil.txt", base.Add(time.Minute), nil)
	unscanned := seedFile(t, repo, "pending.txt", base.Add(2*time.Minute), nil)
	seedScan(t, repo, clean.ID, scanner.StatusClean, base)
	seedScan(t, repo, infected.ID, scanner.StatusInfected, base)

	cases := map[string]string{
		repository.StatusFilterClean:     clean.ID,
		repository.StatusFilterInfected:  infected.ID,
		repository.StatusFilterUnscanned: unscanned.ID,
	}
	for status, want := range cases {
		views, total, err := repo.List(context.Background(), repository.ListParams{Status: ptr(status)})
		require.NoError(t, err, status)
		assert.Equal(t, 1, total, status)
		require.Len(t, views, 1, status)
		assert.Equal(t, want, views[0].File.ID, status)
	}

	views, _, err := repo.List(context.Background(), repository.ListParams{Status: ptr(repository.StatusFilterUnscanned)})
	require.NoError(t, err)
	assert.Nil(t, views[0].Scan)
}

func TestListAttributeFilters(t *testing.T) {
	repo := repotest.New(t)
	a := seedFile(t, repo, "Quarterly-Report.PDF", base, ptr("alice"))
	seedFile(t, repo, "notes.txt", base.Add(26*time.Hour), ptr("bob"))
	seedFile(t, repo, "100%_done.txt", base.Add(time.Hour), nil)

	views, total, err := repo.List(context.Background(), repository.ListParams{Filename: ptr("report.pdf")})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, a.ID, views[0].File.ID)

	_, total, err = repo.List(context.Background(), repository.ListParams{Filename: ptr("%")})
	require.NoError(t, err)
	assert.Equal(t, 1, total, "wildcards in the filter are literal")

	_, total, err = repo.List(context.Background(), repository.ListParams{OwnerID: ptr("bob")})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	_, total, err = repo.List(context.Background(), repository.ListParams{FileID: ptr(a.ID)})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	_, total, err = repo.List(context.Background(), repository.ListParams{MediaType: ptr("TEXT/")})
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	views, total, err = repo.List(context.Background(), repository.ListParams{MediaType: ptr("image/png")})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Empty(t, views)
	assert.NotNil(t, views)

	day := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	next := day.AddDate(0, 0, 1)
	_, total, err = repo.List(context.Background(), repository.ListParams{UploadedFrom: &day, UploadedBefore: &next})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestListPagination(t *testing.T) {
	repo := repotest.New(t)
	for i := 0; i < 15; i++ {
		seedFile(t, repo, fmt.Sprintf("f%02d.txt", i), base.Add(time.Duration(i)*time.Minute), nil)
	}

	views, total, err := repo.List(context.Background(), repository.ListParams{Limit: 10, Offset: 10})
	require.NoError(t, err)
	assert.Equal(t, 15, total)
	require.Len(t, views, 5)
	assert.Equal(t, "f04.txt", views[0].File.Filename)

	views, total, err = repo.List(context.Background(), repository.ListParams{Limit: 10, Offset: 980})
	require.NoError(t, err)
	assert.Equal(t, 15, total)
	assert.Empty(t, views)

	views, total, err = repo.List(context.Background(), repository.ListParams{Limit: 10, Offset: math.MaxInt})
	require.NoError(t, err)
	assert.Equal(t, 15, total)
	assert.Empty(t, views)

	views, _, err = repo.List(context.Background(), repository.ListParams{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, "f14.txt", views[0].File.Filename, "newest first")
}

func TestListTiesBrokenByIDDescending(t *testing.T) {
	repo := repotest.New(t)
	a := seedFile(t, repo, "a.txt", base, nil)
	b := seedFile(t, repo, "b.txt", base, nil)

	views, _, err := repo.List(context.Background(), repository.ListParams{})
	require.NoError(t, err)
	require.Len(t, views, 2)
	first, second := a.ID, b.ID
	if first < second {
		first, second = second, first
	}
	assert.Equal(t, first, views[0].File.ID)
	assert.Equal(t, second, views[1].File.ID)
}

func TestDeleteFileCascades(t *testing.T) {
	repo := repotest.New(t)
	ctx := context.Background()
	f := seedFile(t, repo, "a.txt", base, nil)
	keep := seedFile(t, repo, "b.txt", base, nil)
	seedScan(t, repo, f.ID, scanner.StatusClean, base)
	seedScan(t, repo, f.ID, scanner.StatusError, base.Add(time.Second))
	seedScan(t, repo, keep.ID, scanner.StatusClean, base)

	removed, err := repo.DeleteFile(ctx, f.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)

	st, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.Total)

	_, err = repo.DeleteFile(ctx, f.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = repo.GetFile(ctx, f.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestStatsAndInfectedIDs(t *testing.T) {
	repo := repotest.New(t)
	ctx := context.Background()

	st, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, repository.Stats{}, st)

	var infected []string
	for i := 0; i < 3; i++ {
		f := seedFile(t, repo, fmt.Sprintf("evil%d.txt", i), base.Add(time.Duration(i)*time.Minute), nil)
		seedScan(t, repo, f.ID, scanner.StatusInfected, base)
		infected = append(infected, f.ID)
	}
	for i := 0; i < 2; i++ {
		f := seedFile(t, repo, fmt.Sprintf("ok%d.txt", i), base, nil)
		seedScan(t, repo, f.ID, scanner.StatusClean, base)
	}
	// Re-scanned clean: no longer counts as currently infected.
	healed := seedFile(t, repo, "healed.txt", base, nil)
	seedScan(t, repo, healed.ID, scanner.StatusInfected, base)
	seedScan(t, repo, healed.ID, scanner.StatusClean, base.Add(time.Hour))

	st, err = repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, repository.Stats{Total: 7, Clean: 3, Infected: 4}, st)

	ids, err := repo.InfectedFileIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, infected, ids)
}
