// Package rag builds the retrieved context string that grounds each chat
// turn.
package rag

import (
	"context"
	"log/slog"
	"strings"

	"github.com/docent-ai/docent/internal/knowledge"
)

// DefaultTopK is the number of chunks retrieved per turn.
const DefaultTopK = 10

// Searcher is the knowledge search operation the retriever needs.
type Searcher interface {
	Search(ctx context.Context, query string, k int, ownerID string) ([]knowledge.Result, error)
}

// ContextRetriever fetches an owner's most relevant chunks for a query
// and joins them into a single context string.
//
// Retrieval is best effort: failures yield an empty context and the turn
// proceeds without grounding.
type ContextRetriever struct {
	store  Searcher
	topK   int
	logger *slog.Logger
}

// New creates a ContextRetriever. topK <= 0 selects DefaultTopK.
func New(store Searcher, topK int, logger *slog.Logger) *ContextRetriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ContextRetriever{
		store:  store,
		topK:   topK,
		logger: logger.With("component", "rag"),
	}
}

// Retrieve returns the joined chunk texts for a query, most similar
// first, separated by blank lines. Returns "" when retrieval fails or
// nothing matches.
func (r *ContextRetriever) Retrieve(ctx context.Context, query, ownerID string) string {
	results, err := r.store.Search(ctx, query, r.topK, ownerID)
	if err != nil {
		r.logger.Warn("retrieval failed, proceeding without context",
			"owner_id", ownerID, "error", err)
		return ""
	}
	if len(results) == 0 {
		return ""
	}

	texts := make([]string, 0, len(results))
	for _, res := range results {
		texts = append(texts, res.Content)
	}

	r.logger.Debug("retrieved context", "owner_id", ownerID, "chunks", len(texts))
	return strings.Join(texts, "\n\n")
}
