package chatlog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
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

const insertEntrySQL = `
INSERT INTO chat_history (conversation_id, user_message, ai_response)
VALUES ($1, $2, $3)
RETURNING id`

func (q *Queries) InsertEntry(ctx context.Context, conversationID, userMessage, aiResponse string) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, insertEntrySQL, conversationID, userMessage, aiResponse).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert entry: %w", err)
	}
	return id, nil
}

const listEntriesSQL = `
SELECT id, conversation_id, user_message, ai_response, created_at
FROM chat_history
WHERE conversation_id = $1
ORDER BY id ASC`

func (q *Queries) ListEntries(ctx context.Context, conversationID string) ([]Entry, error) {
	rows, err := q.db.Query(ctx, listEntriesSQL, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ConversationID, &e.UserMessage, &e.AIResponse, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return out, nil
}

const deleteEntriesSQL = `
DELETE FROM chat_history WHERE conversation_id = $1`

func (q *Queries) DeleteEntries(ctx context.Context, conversationID string) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteEntriesSQL, conversationID)
	if err != nil {
		return 0, fmt.Errorf("delete entries: %w", err)
	}
	return tag.RowsAffected(), nil
}
