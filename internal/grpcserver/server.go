// Package grpcserver implements the internal admin gRPC service.
package grpcserver

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mtiwari1/scanvault/internal/identity"
	"github.com/mtiwari1/scanvault/internal/lifecycle"
	"github.com/mtiwari1/scanvault/internal/query"
	"github.com/mtiwari1/scanvault/internal/repository"
	pb "github.com/mtiwari1/scanvault/proto"
)

// Server implements the AdminServiceServer gRPC interface.
// Dependencies are injected via the constructor, no global state.
type Server struct {
	query     *query.Engine
	lifecycle *lifecycle.Manager
	logger    *slog.Logger
}

// NewServer creates the admin service.
func NewServer(q *query.Engine, lm *lifecycle.Manager, logger *slog.Logger) *Server {
	return &Server{query: q, lifecycle: lm, logger: logger}
}

// GetStats returns scan record counts by status.
func (s *Server) GetStats(ctx context.Context, _ *pb.GetStatsRequest) (*pb.GetStatsResponse, error) {
	st, err := s.query.Stats(ctx)
	if err != nil {
		return nil, s.mapError(err, "GetStats")
	}
	return &pb.GetStatsResponse{
		Total:    st.Total,
		Clean:    st.Clean,
		Infected: st.Infected,
		Error:    st.Error,
	}, nil
}

// DeleteFile removes one file, its bytes and its scan history.
func (s *Server) DeleteFile(ctx context.Context, req *pb.DeleteFileRequest) (*pb.DeleteFileResponse, error) {
	id := strings.TrimSpace(req.FileId)
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "DeleteFile: file_id is required")
	}
	s.logger.Info("grpc DeleteFile", slog.String("file_id", id))

	caller := identity.Anonymous()
	if c := strings.TrimSpace(req.CallerId); c != "" {
		caller = identity.Owner(c)
	}

	del, err := s.lifecycle.Delete(ctx, id, caller)
	if err != nil {
		return nil, s.mapError(err, "DeleteFile")
	}
	return &pb.DeleteFileResponse{
		FileId:       del.FileID,
		ScansRemoved: del.ScansRemoved,
		BytesRemoved: del.BytesRemoved,
	}, nil
}

// DeleteInfected sweeps every file whose current verdict is infected.
func (s *Server) DeleteInfected(ctx context.Context, _ *pb.DeleteInfectedRequest) (*pb.DeleteInfectedResponse, error) {
	s.logger.Info("grpc DeleteInfected")

	report, err := s.lifecycle.DeleteInfected(ctx)
	if err != nil {
		return nil, s.mapError(err, "DeleteInfected")
	}
	resp := &pb.DeleteInfectedResponse{
		Deleted: report.Succeeded,
		Failed:  make([]*pb.DeleteFailure, 0, len(report.Failed)),
	}
	for _, f := range report.Failed {
		resp.Failed = append(resp.Failed, &pb.DeleteFailure{FileId: f.FileID, Error: f.Err.Error()})
	}
	return resp, nil
}

// mapError converts service errors to gRPC status codes.
func (s *Server) mapError(err error, method string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return status.Errorf(codes.NotFound, "%s: file not found", method)
	case errors.Is(err, query.ErrInvalidFilter):
		return status.Errorf(codes.InvalidArgument, "%s: %v", method, err)
	case errors.Is(err, context.DeadlineExceeded):
		return status.Errorf(codes.DeadlineExceeded, "%s: database timeout", method)
	case errors.Is(err, context.Canceled):
		return status.Errorf(codes.Canceled, "%s: request cancelled", method)
	}
	s.logger.Error("grpc "+method, slog.String("error", err.Error()))
	return status.Errorf(codes.Internal, "%s: %v", method, err)
}
