// Package chatlog persists the append-only log of chat exchanges that
// backs the history API. Each entry is one user message paired with the
// assistant's final response.
package chatlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrNoHistory is returned when a conversation has no logged exchanges.
// Callers distinguish it from transient failures to map it to a 404.
var ErrNoHistory = errors.New("no chat history")

// Entry is one logged exchange.
type Entry struct {
	ID             int64
	ConversationID string
	UserMessage    string
	AIResponse     string
	CreatedAt      time.Time
}

// Querier defines the database operations the Store needs.
type Querier interface {
	InsertEntry(ctx context.Context, conversationID, userMessage, aiResponse string) (int64, error)
	ListEntries(ctx context.Context, conversationID string) ([]Entry, error)
	DeleteEntries(ctx context.Context, conversationID string) (int64, error)
}

// Store provides chat log persistence.
type Store struct {
	querier Querier
	logger  *slog.Logger
}

// New creates a new Store.
func New(querier Querier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		querier: querier,
		logger:  logger.With("component", "chatlog"),
	}
}

// Append logs one exchange and returns the inserted row id.
func (s *Store) Append(ctx context.Context, conversationID, userMessage, aiResponse string) (int64, error) {
	id, err := s.querier.InsertEntry(ctx, conversationID, userMessage, aiResponse)
	if err != nil {
		return 0, fmt.Errorf("failed to log exchange for %s: %w", conversationID, err)
	}
	s.logger.Debug("logged exchange", "conversation_id", conversationID, "id", id)
	return id, nil
}

// History returns all logged exchanges for a conversation in insertion
// order. Returns ErrNoHistory when the conversation has none.
func (s *Store) History(ctx context.Context, conversationID string) ([]Entry, error) {
	entries, err := s.querier.ListEntries(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list history for %s: %w", conversationID, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, ErrNoHistory)
	}
	return entries, nil
}

// Delete removes all logged exchanges for a conversation. Deleting a
// conversation with no history succeeds.
func (s *Store) Delete(ctx context.Context, conversationID string) error {
	deleted, err := s.querier.DeleteEntries(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("failed to delete history for %s: %w", conversationID, err)
	}
	s.logger.Debug("deleted history", "conversation_id", conversationID, "rows", deleted)
	return nil
}
