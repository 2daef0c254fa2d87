// Package restapi implements the REST gateway for uploads, listings and
// file lifecycle operations.
package restapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mtiwari1/scanvault/internal/blobstore"
	"github.com/mtiwari1/scanvault/internal/identity"
	"github.com/mtiwari1/scanvault/internal/ingest"
	"github.com/mtiwari1/scanvault/internal/lifecycle"
	"github.com/mtiwari1/scanvault/internal/metrics"
	"github.com/mtiwari1/scanvault/internal/query"
	"github.com/mtiwari1/scanvault/internal/repository"
)

// Pinger reports metadata store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps holds everything the REST endpoints need.
type Deps struct {
	Ingest         *ingest.Coordinator
	Gate           *ingest.Gate
	Blobs          *blobstore.Store
	Query          *query.Engine
	Lifecycle      *lifecycle.Manager
	DB             Pinger
	Policy         identity.Policy
	IdentityHeader string
	Logger         *slog.Logger
}

// Handler holds dependencies for REST endpoints.
type Handler struct {
	ingest         *ingest.Coordinator
	gate           *ingest.Gate
	blobs          *blobstore.Store
	query          *query.Engine
	lifecycle      *lifecycle.Manager
	db             Pinger
	policy         identity.Policy
	identityHeader string
	logger         *slog.Logger
}

// NewHandler creates a new REST handler.
func NewHandler(d Deps) *Handler {
	header := d.IdentityHeader
	if header == "" {
		header = "X-Caller-ID"
	}
	return &Handler{
		ingest:         d.Ingest,
		gate:           d.Gate,
		blobs:          d.Blobs,
		query:          d.Query,
		lifecycle:      d.Lifecycle,
		db:             d.DB,
		policy:         d.Policy,
		identityHeader: header,
		logger:         d.Logger,
	}
}

// RegisterRoutes attaches all REST routes to the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /upload-file", h.uploadFile)
	mux.HandleFunc("GET /files", h.listFiles)
	mux.HandleFunc("GET /download/{fileId}", h.downloadFile)
	mux.HandleFunc("DELETE /delete/{fileId}", h.deleteFile)
	mux.HandleFunc("DELETE /delete-infected", h.deleteInfected)
	mux.HandleFunc("GET /export-report", h.exportReport)
	mux.HandleFunc("GET /stats", h.stats)
	mux.HandleFunc("GET /healthz", h.healthz)
	mux.Handle("GET /metrics", metrics.Handler())
}

// Routes returns the full HTTP handler. Identity runs outermost so the
// metrics middleware sees the request the mux annotates with its pattern.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return identity.Middleware(h.identityHeader)(metrics.Middleware(mux))
}

// requestLogger tags every log line of one request with a fresh request_id.
func (h *Handler) requestLogger(w http.ResponseWriter, r *http.Request) *slog.Logger {
	requestID := uuid.New().String()
	w.Header().Set("X-Request-ID", requestID)
	return h.logger.With(
		slog.String("request_id", requestID),
		slog.String("route", r.Pattern),
	)
}

// ---------- GET /healthz ----------

// healthz verifies connectivity to the database and the upload directory.
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(w, r)
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	result := map[string]string{"status": "ok"}
	httpStatus := http.StatusOK

	if err := h.db.Ping(ctx); err != nil {
		logger.Warn("health check: database unreachable", slog.String("error", err.Error()))
		result["status"] = "degraded"
		result["database"] = "unreachable: " + err.Error()
		httpStatus = http.StatusServiceUnavailable
	} else {
		result["database"] = "connected"
	}

	if err := h.blobs.Check(); err != nil {
		logger.Warn("health check: upload dir inaccessible", slog.String("error", err.Error()))
		result["status"] = "degraded"
		result["disk"] = "upload dir inaccessible: " + err.Error()
		httpStatus = http.StatusServiceUnavailable
	} else {
		result["disk"] = "ok"
	}

	writeJSON(w, httpStatus, result)
}

// httpStatusFor maps service errors onto HTTP status codes.
func httpStatusFor(err error) int {
	switch {
	case errors.Is(err, ingest.ErrInputRejected), errors.Is(err, query.ErrInvalidFilter):
		return http.StatusBadRequest
	case errors.Is(err, identity.ErrAnonymousRejected):
		return http.StatusUnauthorized
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, blobstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
