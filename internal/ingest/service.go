// Package ingest turns uploaded documents into embedded knowledge chunks.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/docent-ai/docent/internal/knowledge"
)

// ChunkStore defines the storage operations the service needs.
type ChunkStore interface {
	Upsert(ctx context.Context, chunk knowledge.Chunk) error
	ListSources(ctx context.Context, ownerID string) ([]string, error)
	DeleteSource(ctx context.Context, ownerID, source string) error
}

// Service ingests documents for an owner and manages their indexed sources.
type Service struct {
	store  ChunkStore
	logger *slog.Logger
}

// NewService creates a new ingestion service.
func NewService(store ChunkStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger.With("component", "ingest"),
	}
}

// Ingest extracts text from a document, chunks it, and upserts the chunks
// tagged with the owner and source filename. Returns the number of chunks
// indexed.
//
// Unsupported extensions return ErrUnsupportedFormat before anything is
// indexed. Chunk IDs are deterministic per (owner, filename, index), so
// re-uploading a document updates its chunks in place.
func (s *Service) Ingest(ctx context.Context, ownerID, filename string, data []byte) (int, error) {
	text, err := extractText(filename, data)
	if err != nil {
		return 0, fmt.Errorf("failed to extract %q: %w", filename, err)
	}

	chunks := chunkText(text, chunkSize, chunkOverlap)
	if len(chunks) == 0 {
		s.logger.Warn("document produced no chunks", "owner_id", ownerID, "source", filename)
		return 0, nil
	}

	now := time.Now()
	for i, content := range chunks {
		chunk := knowledge.Chunk{
			ID:      chunkID(ownerID, filename, i),
			OwnerID: ownerID,
			Source:  filename,
			Content: content,
			Metadata: map[string]string{
				"chunk_index": strconv.Itoa(i),
				"chunk_total": strconv.Itoa(len(chunks)),
				"ingested_at": now.Format(time.RFC3339),
			},
		}
		if err := s.store.Upsert(ctx, chunk); err != nil {
			return 0, fmt.Errorf("failed to index chunk %d of %q: %w", i, filename, err)
		}
	}

	s.logger.Info("ingested document",
		"owner_id", ownerID, "source", filename, "chunks", len(chunks), "bytes", len(data))
	return len(chunks), nil
}

// ListDocuments returns the distinct source filenames indexed for an owner.
func (s *Service) ListDocuments(ctx context.Context, ownerID string) ([]string, error) {
	sources, err := s.store.ListSources(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents for %s: %w", ownerID, err)
	}
	return sources, nil
}

// DeleteDocument removes all chunks of one document for an owner.
func (s *Service) DeleteDocument(ctx context.Context, ownerID, filename string) error {
	if err := s.store.DeleteSource(ctx, ownerID, filename); err != nil {
		return fmt.Errorf("failed to delete document %q for %s: %w", filename, ownerID, err)
	}
	s.logger.Info("deleted document", "owner_id", ownerID, "source", filename)
	return nil
}

// chunkID generates a deterministic chunk ID from owner, source, and index.
func chunkID(ownerID, source string, index int) string {
	hash := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%d", ownerID, source, index))
	return "chunk_" + hex.EncodeToString(hash[:16])
}
