package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/pgvector/pgvector-go"
)

// searchTimeout bounds embedding generation plus the vector query so a
// slow search cannot block a chat turn indefinitely.
const searchTimeout = 10 * time.Second

// Store manages embedded chunks with vector search.
// It generates embeddings via the configured embedder and searches with
// pgvector cosine similarity.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	queries  Querier
	embedder ai.Embedder
	logger   *slog.Logger
}

// New creates a new Store.
func New(querier Querier, embedder ai.Embedder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		queries:  querier,
		embedder: embedder,
		logger:   logger.With("component", "knowledge"),
	}
}

// Upsert embeds a chunk's content and inserts or updates it by ID.
func (s *Store) Upsert(ctx context.Context, chunk Chunk) error {
	embedding, err := s.embed(ctx, chunk.Content)
	if err != nil {
		return fmt.Errorf("failed to embed chunk %q: %w", chunk.ID, err)
	}

	metadataJSON, err := json.Marshal(chunk.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := s.queries.UpsertChunk(ctx, UpsertChunkParams{
		ID:        chunk.ID,
		OwnerID:   chunk.OwnerID,
		Source:    chunk.Source,
		Content:   chunk.Content,
		Embedding: embedding,
		Metadata:  metadataJSON,
	}); err != nil {
		return fmt.Errorf("failed to upsert chunk %q: %w", chunk.ID, err)
	}

	s.logger.Debug("upserted chunk",
		"id", chunk.ID, "owner_id", chunk.OwnerID, "source", chunk.Source,
		"content_length", len(chunk.Content))
	return nil
}

// Search returns the owner's k most similar chunks to the query, ordered
// by descending similarity. Chunks of other owners are never returned.
func (s *Store) Search(ctx context.Context, query string, k int, ownerID string) ([]Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	embedding, err := s.embed(queryCtx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("embedding generation timeout: %w", err)
		}
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	rows, err := s.queries.SearchChunks(queryCtx, SearchChunksParams{
		QueryEmbedding: embedding,
		OwnerID:        ownerID,
		ResultLimit:    int32(k), // #nosec G115 -- k validated positive and bounded by config
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search query timeout: %w", err)
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		var metadata map[string]string
		if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
			s.logger.Warn("failed to parse chunk metadata", "chunk_id", row.ID, "error", err)
			metadata = make(map[string]string)
		}

		results = append(results, Result{
			Chunk: Chunk{
				ID:       row.ID,
				OwnerID:  row.OwnerID,
				Source:   row.Source,
				Content:  row.Content,
				Metadata: metadata,
				CreateAt: row.CreatedAt,
			},
			Similarity: row.Similarity,
		})
	}

	s.logger.Debug("search completed", "owner_id", ownerID, "k", k, "hits", len(results))
	return results, nil
}

// ListSources returns the distinct source filenames of an owner's chunks.
func (s *Store) ListSources(ctx context.Context, ownerID string) ([]string, error) {
	sources, err := s.queries.ListSources(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources for %s: %w", ownerID, err)
	}
	return sources, nil
}

// DeleteSource removes all chunks of one source for an owner.
// Deleting a source with no chunks succeeds.
func (s *Store) DeleteSource(ctx context.Context, ownerID, source string) error {
	deleted, err := s.queries.DeleteSource(ctx, ownerID, source)
	if err != nil {
		return fmt.Errorf("failed to delete source %q for %s: %w", source, ownerID, err)
	}
	s.logger.Debug("deleted source", "owner_id", ownerID, "source", source, "chunks", deleted)
	return nil
}

// embed generates the embedding vector for one text.
func (s *Store) embed(ctx context.Context, text string) (*pgvector.Vector, error) {
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			{Content: []*ai.Part{ai.NewTextPart(text)}},
		},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}

	v := pgvector.NewVector(resp.Embeddings[0].Embedding)
	return &v, nil
}
