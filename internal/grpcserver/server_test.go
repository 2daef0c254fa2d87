package grpcserver

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/mtiwari1/scanvault/internal/blobstore"
	"github.com/mtiwari1/scanvault/internal/lifecycle"
	"github.com/mtiwari1/scanvault/internal/query"
	"github.com/mtiwari1/scanvault/internal/repository"
	"github.com/mtiwari1/scanvault/internal/repository/repotest"
	"github.com/mtiwari1/scanvault/internal/scanner"
	pb "github.com/mtiwari1/scanvault/proto"
)

func newClient(t *testing.T, scopeToOwner bool) (pb.AdminServiceClient, *repository.SQLRepo) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	repo := repotest.New(t)
	blobs, err := blobstore.New(afero.NewMemMapFs(), "/uploads")
	require.NoError(t, err)

	srv := grpc.NewServer()
	pb.RegisterAdminServiceServer(srv, NewServer(
		query.NewEngine(repo, 0),
		lifecycle.NewManager(repo, blobs, scopeToOwner, logger),
		logger,
	))

	lis := bufconn.Listen(1 << 20)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.DialContext(context.Background(), "passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return pb.NewAdminServiceClient(conn), repo
}

func seed(t *testing.T, repo repository.Repository, status scanner.Status, owner *string) string {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	f := &repository.FileRecord{
		ID:         uuid.NewString(),
		Filename:   "sample.bin",
		StorageKey: uuid.NewString() + "-sample.bin",
		SizeBytes:  1,
		OwnerID:    owner,
		UploadedAt: now,
	}
	require.NoError(t, repo.CreateFile(ctx, f))
	scan := &repository.ScanRecord{
		ID:          uuid.NewString(),
		FileID:      f.ID,
		Status:      status,
		ScanVersion: "ClamAV 1.3.1",
		ScannedAt:   now,
	}
	if status == scanner.StatusInfected {
		scan.VirusName = "Win.Test.EICAR_HDB-1"
	}
	require.NoError(t, repo.CreateScan(ctx, scan))
	return f.ID
}

func TestGetStats(t *testing.T) {
	client, repo := newClient(t, false)
	seed(t, repo, scanner.StatusClean, nil)
	seed(t, repo, scanner.StatusInfected, nil)
	seed(t, repo, scanner.StatusError, nil)

	resp, err := client.GetStats(context.Background(), &pb.GetStatsRequest{})
	require.NoError(t, err)
	assert.Equal(t, &pb.GetStatsResponse{Total: 3, Clean: 1, Infected: 1, Error: 1}, resp)
}

func TestDeleteFile(t *testing.T) {
	client, repo := newClient(t, false)
	id := seed(t, repo, scanner.StatusClean, nil)
	ctx := context.Background()

	resp, err := client.DeleteFile(ctx, &pb.DeleteFileRequest{FileId: id})
	require.NoError(t, err)
	assert.Equal(t, id, resp.FileId)
	assert.EqualValues(t, 1, resp.ScansRemoved)
	assert.False(t, resp.BytesRemoved)

	_, err = client.DeleteFile(ctx, &pb.DeleteFileRequest{FileId: id})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.DeleteFile(ctx, &pb.DeleteFileRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestDeleteFileScopedToOwner(t *testing.T) {
	client, repo := newClient(t, true)
	owner := "alice"
	id := seed(t, repo, scanner.StatusClean, &owner)
	ctx := context.Background()

	_, err := client.DeleteFile(ctx, &pb.DeleteFileRequest{FileId: id, CallerId: "bob"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.DeleteFile(ctx, &pb.DeleteFileRequest{FileId: id, CallerId: "alice"})
	assert.NoError(t, err)
}

func TestDeleteInfected(t *testing.T) {
	client, repo := newClient(t, false)
	infected := []string{
		seed(t, repo, scanner.StatusInfected, nil),
		seed(t, repo, scanner.StatusInfected, nil),
	}
	seed(t, repo, scanner.StatusClean, nil)
	ctx := context.Background()

	resp, err := client.DeleteInfected(ctx, &pb.DeleteInfectedRequest{})
	require.NoError(t, err)
	assert.ElementsMatch(t, infected, resp.Deleted)
	assert.Empty(t, resp.Failed)

	st, err := client.GetStats(ctx, &pb.GetStatsRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.Total)
	assert.Zero(t, st.Infected)
}
