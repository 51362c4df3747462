package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store manages conversation persistence with a PostgreSQL backend.
//
// Store is safe for concurrent use by multiple goroutines. Writers to the
// same thread are serialized by a row lock; concurrent turns on the same
// thread are last-write-wins at the message level.
type Store struct {
	querier Querier
	pool    *pgxpool.Pool // nil in tests with a mock querier
	logger  *slog.Logger
}

// New creates a new Store.
//
// pool may be nil for tests with a mock querier; appends then run without
// a transaction.
func New(querier Querier, pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		querier: querier,
		pool:    pool,
		logger:  logger.With("component", "conversation"),
	}
}

// Load retrieves the conversation for a thread.
// A thread with no stored messages yields an empty conversation, not an
// error, so first contact needs no explicit create step.
func (s *Store) Load(ctx context.Context, threadID string) (*Conversation, error) {
	rows, err := s.querier.GetMessages(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load thread %s: %w", threadID, err)
	}

	conv := &Conversation{ThreadID: threadID, Messages: make([]*Message, 0, len(rows))}
	for _, r := range rows {
		var content []*ai.Part
		if err := json.Unmarshal(r.Content, &content); err != nil {
			s.logger.Warn("skipping message with malformed content",
				"message_id", r.ID, "thread_id", threadID, "error", err)
			continue
		}
		conv.Messages = append(conv.Messages, &Message{
			ID:             r.ID,
			ThreadID:       r.ThreadID,
			Role:           r.Role,
			Content:        content,
			SequenceNumber: r.SequenceNumber,
			CreatedAt:      r.CreatedAt,
		})
	}

	s.logger.Debug("loaded conversation", "thread_id", threadID, "messages", len(conv.Messages))
	return conv, nil
}

// Append adds messages to a thread with sequential sequence numbers.
//
// The operation is transactional: the thread row is created if absent,
// locked for the duration, and either all messages land or none do.
func (s *Store) Append(ctx context.Context, threadID string, msgs []*ai.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	if s.pool == nil {
		return s.appendWith(ctx, s.querier, threadID, msgs, false)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil {
			s.logger.Debug("transaction rollback (may be already committed)", "error", err)
		}
	}()

	if err := s.appendWith(ctx, NewQueries(tx), threadID, msgs, true); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug("appended messages", "thread_id", threadID, "count", len(msgs))
	return nil
}

// appendWith performs the append steps against the given querier.
// withLock is false only in the pool-less test path, where no transaction
// exists to hold the row lock.
func (s *Store) appendWith(ctx context.Context, q Querier, threadID string, msgs []*ai.Message, withLock bool) error {
	if err := q.UpsertThread(ctx, threadID); err != nil {
		return fmt.Errorf("failed to ensure thread %s: %w", threadID, err)
	}

	if withLock {
		if err := q.LockThread(ctx, threadID); err != nil {
			return fmt.Errorf("failed to lock thread %s: %w", threadID, err)
		}
	}

	maxSeq, err := q.MaxSequence(ctx, threadID)
	if err != nil {
		return fmt.Errorf("failed to read sequence for thread %s: %w", threadID, err)
	}

	for i, msg := range msgs {
		for j, part := range msg.Content {
			if part == nil {
				return fmt.Errorf("message %d has nil content at index %d", i, j)
			}
		}

		contentJSON, err := json.Marshal(msg.Content)
		if err != nil {
			return fmt.Errorf("failed to marshal message content at index %d: %w", i, err)
		}

		if err := q.InsertMessage(ctx, InsertMessageParams{
			ID:             uuid.New(),
			ThreadID:       threadID,
			Role:           string(msg.Role),
			Content:        contentJSON,
			SequenceNumber: maxSeq + int64(i) + 1,
		}); err != nil {
			return fmt.Errorf("failed to insert message %d: %w", i, err)
		}
	}

	return nil
}

// SaveHistory persists a full conversation snapshot by appending only the
// messages beyond what is already stored. Saving an unchanged history is a
// no-op, so load-then-save round-trips are idempotent.
func (s *Store) SaveHistory(ctx context.Context, threadID string, history []*ai.Message) error {
	if len(history) == 0 {
		return nil
	}

	existing, err := s.Load(ctx, threadID)
	if err != nil {
		return fmt.Errorf("failed to load existing history: %w", err)
	}

	if len(history) <= existing.Len() {
		return nil
	}

	return s.Append(ctx, threadID, history[existing.Len():])
}

// Delete removes a thread and all its messages. Deleting a thread that
// does not exist is a no-op.
func (s *Store) Delete(ctx context.Context, threadID string) error {
	if err := s.querier.DeleteThread(ctx, threadID); err != nil {
		return fmt.Errorf("failed to delete thread %s: %w", threadID, err)
	}
	s.logger.Debug("deleted conversation", "thread_id", threadID)
	return nil
}
