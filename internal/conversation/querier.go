package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier defines the database operations the Store needs.
// The interface is defined by the consumer so tests can substitute mocks
// and transactions can substitute a tx-bound implementation.
type Querier interface {
	UpsertThread(ctx context.Context, threadID string) error
	LockThread(ctx context.Context, threadID string) error
	MaxSequence(ctx context.Context, threadID string) (int64, error)
	InsertMessage(ctx context.Context, arg InsertMessageParams) error
	GetMessages(ctx context.Context, threadID string) ([]MessageRow, error)
	DeleteThread(ctx context.Context, threadID string) error
}

// InsertMessageParams holds the columns for one message insert.
type InsertMessageParams struct {
	ID             uuid.UUID
	ThreadID       string
	Role           string
	Content        []byte
	SequenceNumber int64
}

// MessageRow is the raw row shape returned by GetMessages; content is the
// undecoded JSONB payload.
type MessageRow struct {
	ID             uuid.UUID
	ThreadID       string
	Role           string
	Content        []byte
	SequenceNumber int64
	CreatedAt      time.Time
}

// DBTX is the subset of pgx shared by *pgxpool.Pool and pgx.Tx, so the same
// Queries implementation works inside and outside transactions.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries implements Querier against a pgx connection source.
type Queries struct {
	db DBTX
}

// NewQueries creates a Queries bound to the given connection source.
func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

const upsertThreadSQL = `
INSERT INTO conversations (thread_id)
VALUES ($1)
ON CONFLICT (thread_id) DO UPDATE SET updated_at = now()`

func (q *Queries) UpsertThread(ctx context.Context, threadID string) error {
	if _, err := q.db.Exec(ctx, upsertThreadSQL, threadID); err != nil {
		return fmt.Errorf("upsert thread: %w", err)
	}
	return nil
}

const lockThreadSQL = `
SELECT thread_id FROM conversations WHERE thread_id = $1 FOR UPDATE`

// LockThread takes a row lock on the thread for the duration of the
// enclosing transaction, serializing sequence number assignment.
func (q *Queries) LockThread(ctx context.Context, threadID string) error {
	var id string
	if err := q.db.QueryRow(ctx, lockThreadSQL, threadID).Scan(&id); err != nil {
		return fmt.Errorf("lock thread: %w", err)
	}
	return nil
}

const maxSequenceSQL = `
SELECT COALESCE(MAX(sequence_number), 0)
FROM conversation_messages
WHERE thread_id = $1`

func (q *Queries) MaxSequence(ctx context.Context, threadID string) (int64, error) {
	var maxSeq int64
	if err := q.db.QueryRow(ctx, maxSequenceSQL, threadID).Scan(&maxSeq); err != nil {
		return 0, fmt.Errorf("max sequence: %w", err)
	}
	return maxSeq, nil
}

const insertMessageSQL = `
INSERT INTO conversation_messages (id, thread_id, role, content, sequence_number)
VALUES ($1, $2, $3, $4, $5)`

func (q *Queries) InsertMessage(ctx context.Context, arg InsertMessageParams) error {
	_, err := q.db.Exec(ctx, insertMessageSQL,
		arg.ID, arg.ThreadID, arg.Role, arg.Content, arg.SequenceNumber)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

const getMessagesSQL = `
SELECT id, thread_id, role, content, sequence_number, created_at
FROM conversation_messages
WHERE thread_id = $1
ORDER BY sequence_number ASC`

func (q *Queries) GetMessages(ctx context.Context, threadID string) ([]MessageRow, error) {
	rows, err := q.db.Query(ctx, getMessagesSQL, threadID)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	var out []MessageRow
	for rows.Next() {
		var r MessageRow
		if err := rows.Scan(&r.ID, &r.ThreadID, &r.Role, &r.Content, &r.SequenceNumber, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

const deleteThreadSQL = `
DELETE FROM conversations WHERE thread_id = $1`

// DeleteThread removes the thread row; messages go with it via CASCADE.
func (q *Queries) DeleteThread(ctx context.Context, threadID string) error {
	if _, err := q.db.Exec(ctx, deleteThreadSQL, threadID); err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	return nil
}
