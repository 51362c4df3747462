package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/docent-ai/docent/internal/ingest"
)

// MaxUploadBytes bounds the size of an uploaded document.
const MaxUploadBytes = 32 * 1024 * 1024

// DocumentService ingests and manages user documents. *ingest.Service
// satisfies this.
type DocumentService interface {
	Ingest(ctx context.Context, ownerID, filename string, data []byte) (int, error)
	ListDocuments(ctx context.Context, ownerID string) ([]string, error)
	DeleteDocument(ctx context.Context, ownerID, filename string) error
}

type documentsHandler struct {
	service DocumentService
	logger  *slog.Logger
}

// upload ingests one multipart "file" into the user's knowledge base.
func (h *documentsHandler) upload(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_upload", "multipart field 'file' is required")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error("failed to read upload", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "upload_failed", "failed to read the uploaded file")
		return
	}

	chunks, err := h.service.Ingest(r.Context(), userID, header.Filename, data)
	if err != nil {
		if errors.Is(err, ingest.ErrUnsupportedFormat) {
			writeError(w, http.StatusBadRequest, "unsupported_format",
				"only .pdf, .docx and .txt files are supported")
			return
		}
		h.logger.Error("ingestion failed", "user_id", userID,
			"filename", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "ingest_failed", "failed to process the document")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": fmt.Sprintf("indexed %q in %d chunks", header.Filename, chunks),
	})
}

// list returns the user's ingested document filenames.
func (h *documentsHandler) list(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")

	docs, err := h.service.ListDocuments(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list documents", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list documents")
		return
	}
	if docs == nil {
		docs = []string{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":   userID,
		"documents": docs,
	})
}

// remove deletes all indexed chunks of one document.
func (h *documentsHandler) remove(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	filename := r.PathValue("filename")

	if err := h.service.DeleteDocument(r.Context(), userID, filename); err != nil {
		h.logger.Error("failed to delete document", "user_id", userID,
			"filename", filename, "error", err)
		writeError(w, http.StatusInternalServerError, "delete_failed", "failed to delete the document")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": fmt.Sprintf("deleted %q", filename),
	})
}
