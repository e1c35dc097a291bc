package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/orgpedia/orgpedia/internal/ingest"
	"github.com/orgpedia/orgpedia/internal/log"
)

// MaxUploadBytes caps the size of an uploaded document.
const MaxUploadBytes = 32 << 20 // 32 MiB

// Ingester turns uploaded bytes into indexed documents.
type Ingester interface {
	Ingest(ctx context.Context, data []byte, mimeType string) (*ingest.Receipt, error)
}

// UploadHandler handles document uploads for indexing.
type UploadHandler struct {
	pipeline Ingester
	logger   log.Logger
}

// RegisterRoutes registers the upload route on the given mux, wrapped in
// the auth guard.
func (h *UploadHandler) RegisterRoutes(mux *http.ServeMux, guard func(http.Handler) http.Handler) {
	mux.Handle("POST /api/business/upload", guard(http.HandlerFunc(h.upload)))
}

func (h *UploadHandler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer func() {
		_ = file.Close()
	}()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading upload failed")
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	receipt, err := h.pipeline.Ingest(r.Context(), data, mimeType)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrUnsupportedMedia):
			writeError(w, http.StatusBadRequest, "unsupported media type")
		case errors.Is(err, ingest.ErrEmptyContent):
			writeError(w, http.StatusBadRequest, "file contains no indexable text")
		default:
			// Backend details (embedding host, index schema) stay out of
			// the response.
			h.logger.Error("ingestion failed",
				"filename", header.Filename, "mime_type", mimeType, "error", err)
			writeError(w, http.StatusInternalServerError, "indexing failed")
		}
		return
	}

	h.logger.Info("upload indexed",
		"filename", header.Filename, "doc_id", receipt.DocumentID, "count", receipt.DocumentCount)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":       "File indexed successfully",
		"documentCount": receipt.DocumentCount,
	})
}
