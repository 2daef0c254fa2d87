package restapi

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/mtiwari1/scanvault/internal/identity"
	"github.com/mtiwari1/scanvault/internal/ingest"
	"github.com/mtiwari1/scanvault/internal/metrics"
)

// multipartSlack covers boundaries and part headers on top of the file.
const multipartSlack = 1 << 20

const genericMediaType = "application/octet-stream"

// ---------- POST /upload-file ----------

func (h *Handler) uploadFile(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(w, r)
	caller := identity.FromContext(r.Context())
	logger = logger.With(slog.String("caller", caller.String()))

	if err := h.policy.Admit(caller); err != nil {
		logger.Warn("upload refused", slog.String("error", err.Error()))
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.gate.MaxBytes()+multipartSlack)

	part, err := filePart(r)
	if err != nil {
		h.reject(w, logger, fmt.Errorf("%w: no file uploaded", ingest.ErrInputRejected))
		return
	}
	defer part.Close()

	name := part.FileName()
	if err := h.gate.CheckName(name); err != nil {
		h.reject(w, logger, err)
		return
	}

	// Streaming stops one byte past the ceiling; that is enough to refuse it.
	key, n, err := h.blobs.Stage(name, io.LimitReader(part, h.gate.MaxBytes()+1))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.reject(w, logger, h.gate.CheckSize(h.gate.MaxBytes()+1))
			return
		}
		logger.Error("stage upload", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	// The key is the name the bytes actually live under, so the gate sees it too.
	err = h.gate.CheckName(key)
	if err == nil {
		err = h.gate.CheckSize(n)
	}
	if err != nil {
		if _, rerr := h.blobs.Remove(key); rerr != nil {
			logger.Warn("remove refused upload", slog.String("error", rerr.Error()))
		}
		h.reject(w, logger, err)
		return
	}

	mediaType := part.Header.Get("Content-Type")
	if mediaType == "" || mediaType == genericMediaType {
		if sniffed, err := h.blobs.Sniff(key); err != nil {
			logger.Warn("sniff media type", slog.String("error", err.Error()))
		} else {
			mediaType = sniffed
		}
	}

	logger.Info("upload staged",
		slog.String("key", key),
		slog.String("original_name", name),
		slog.String("size", humanize.IBytes(uint64(n))),
		slog.String("media_type", mediaType),
	)

	res, err := h.ingest.Ingest(r.Context(), ingest.Staged{
		Key:          key,
		OriginalName: name,
		Size:         n,
		MediaType:    mediaType,
	}, caller)
	if err != nil {
		if errors.Is(err, ingest.ErrInputRejected) {
			h.reject(w, logger, err)
			return
		}
		logger.Error("ingest upload", slog.String("error", err.Error()))
		writeError(w, httpStatusFor(err), "failed to process upload")
		return
	}

	writeJSON(w, http.StatusOK, newFileResponse(res.File, &res.Scan))
}

func (h *Handler) reject(w http.ResponseWriter, logger *slog.Logger, err error) {
	metrics.UploadRejected()
	logger.Info("upload rejected", slog.String("error", err.Error()))
	writeError(w, http.StatusBadRequest, rejectionMessage(err))
}

// rejectionMessage drops the sentinel prefix so clients see only the reason.
func rejectionMessage(err error) string {
	msg, _ := strings.CutPrefix(err.Error(), ingest.ErrInputRejected.Error()+": ")
	return msg
}

// filePart advances the multipart stream to the "file" field without
// buffering the body.
func filePart(r *http.Request) (*multipart.Part, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" && part.FileName() != "" {
			return part, nil
		}
		part.Close()
	}
}
