package restapi

import (
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/mtiwari1/scanvault/internal/identity"
	"github.com/mtiwari1/scanvault/internal/query"
	"github.com/mtiwari1/scanvault/internal/repository"
)

// fileResponse is a file merged with its current verdict. Verdict fields
// are null when the file has never been scanned.
type fileResponse struct {
	ID          string     `json:"id"`
	Filename    string     `json:"filename"`
	SizeBytes   int64      `json:"sizeBytes"`
	MediaType   string     `json:"mediaType"`
	UploadedAt  time.Time  `json:"uploadedAt"`
	OwnerID     *string    `json:"ownerId"`
	Status      string     `json:"status"`
	VirusName   *string    `json:"virusName"`
	ScanLog     *string    `json:"scanLog"`
	ScanVersion *string    `json:"scanVersion"`
	ScannedAt   *time.Time `json:"scannedAt"`
}

func newFileResponse(f repository.FileRecord, s *repository.ScanRecord) fileResponse {
	resp := fileResponse{
		ID:         f.ID,
		Filename:   f.Filename,
		SizeBytes:  f.SizeBytes,
		MediaType:  f.MediaType,
		UploadedAt: f.UploadedAt,
		OwnerID:    f.OwnerID,
		Status:     repository.StatusFilterUnscanned,
	}
	if s == nil {
		return resp
	}
	resp.Status = string(s.Status)
	if s.VirusName != "" {
		resp.VirusName = &s.VirusName
	}
	resp.ScanLog = &s.ScanLog
	resp.ScanVersion = &s.ScanVersion
	resp.ScannedAt = &s.ScannedAt
	return resp
}

func newFileResponses(views []*repository.FileView) []fileResponse {
	out := make([]fileResponse, 0, len(views))
	for _, v := range views {
		out = append(out, newFileResponse(v.File, v.Scan))
	}
	return out
}

// ---------- GET /files ----------

func (h *Handler) listFiles(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(w, r)

	f, err := query.ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.query.List(r.Context(), f)
	if err != nil {
		logger.Error("list files", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list files")
		return
	}

	logger.Debug("files listed",
		slog.Int("page", f.Page),
		slog.Int("returned", len(page.Files)),
		slog.Int("total", page.Total),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"files": newFileResponses(page.Files),
		"total": page.Total,
	})
}

// ---------- GET /export-report ----------

func (h *Handler) exportReport(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(w, r)

	f, err := query.ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	views, err := h.query.Export(r.Context(), f)
	if err != nil {
		logger.Error("export report", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to export report")
		return
	}

	logger.Info("report exported", slog.Int("rows", len(views)))
	w.Header().Set("Content-Disposition", `attachment; filename="scan-report.json"`)
	writeJSON(w, http.StatusOK, map[string]any{"files": newFileResponses(views)})
}

// ---------- GET /stats ----------

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(w, r)

	st, err := h.query.Stats(r.Context())
	if err != nil {
		logger.Error("scan statistics", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to compute statistics")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{
		"total":    st.Total,
		"clean":    st.Clean,
		"infected": st.Infected,
		"error":    st.Error,
	})
}

// ---------- GET /download/{fileId} ----------

func (h *Handler) downloadFile(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(w, r)
	id := r.PathValue("fileId")
	logger = logger.With(slog.String("file_id", id))

	rec, err := h.lifecycle.Authorize(r.Context(), id, identity.FromContext(r.Context()))
	if err != nil {
		code := httpStatusFor(err)
		if code == http.StatusNotFound {
			writeError(w, code, "file not found")
			return
		}
		logger.Error("load file record", slog.String("error", err.Error()))
		writeError(w, code, "failed to load file")
		return
	}

	body, info, err := h.blobs.Open(rec.StorageKey)
	if err != nil {
		code := httpStatusFor(err)
		if code == http.StatusNotFound {
			writeError(w, code, "file content is no longer available")
			return
		}
		logger.Error("open stored bytes", slog.String("error", err.Error()))
		writeError(w, code, "failed to read file")
		return
	}
	defer body.Close()

	if rec.MediaType != "" {
		w.Header().Set("Content-Type", rec.MediaType)
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": rec.Filename}))
	logger.Info("download started", slog.Int64("size_bytes", info.Size()))
	http.ServeContent(w, r, rec.Filename, info.ModTime(), body)
}

// ---------- DELETE /delete/{fileId} ----------

func (h *Handler) deleteFile(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(w, r)
	id := r.PathValue("fileId")
	logger = logger.With(slog.String("file_id", id))

	del, err := h.lifecycle.Delete(r.Context(), id, identity.FromContext(r.Context()))
	if err != nil {
		code := httpStatusFor(err)
		if code == http.StatusNotFound {
			writeError(w, code, "file not found")
			return
		}
		logger.Error("delete file", slog.String("error", err.Error()))
		writeError(w, code, "failed to delete file")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":      "File deleted successfully",
		"fileId":       del.FileID,
		"scansRemoved": del.ScansRemoved,
	})
}

// ---------- DELETE /delete-infected ----------

type failureResponse struct {
	FileID string `json:"fileId"`
	Error  string `json:"error"`
}

func (h *Handler) deleteInfected(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(w, r)

	report, err := h.lifecycle.DeleteInfected(r.Context())
	if err != nil {
		logger.Error("delete infected files", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to enumerate infected files")
		return
	}

	failed := make([]failureResponse, 0, len(report.Failed))
	for _, f := range report.Failed {
		failed = append(failed, failureResponse{FileID: f.FileID, Error: f.Err.Error()})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Deleted %d infected file(s)", len(report.Succeeded)),
		"deleted": report.Succeeded,
		"failed":  failed,
	})
}
