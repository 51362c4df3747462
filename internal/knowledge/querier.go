package knowledge

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// Querier defines the database operations the Store needs.
type Querier interface {
	UpsertChunk(ctx context.Context, arg UpsertChunkParams) error
	SearchChunks(ctx context.Context, arg SearchChunksParams) ([]SearchChunksRow, error)
	ListSources(ctx context.Context, ownerID string) ([]string, error)
	DeleteSource(ctx context.Context, ownerID, source string) (int64, error)
}

// UpsertChunkParams holds the columns for one chunk upsert.
type UpsertChunkParams struct {
	ID        string
	OwnerID   string
	Source    string
	Content   string
	Embedding *pgvector.Vector
	Metadata  []byte
}

// SearchChunksParams holds the vector search inputs.
type SearchChunksParams struct {
	QueryEmbedding *pgvector.Vector
	OwnerID        string
	ResultLimit    int32
}

// SearchChunksRow is one search hit with its cosine similarity.
type SearchChunksRow struct {
	ID         string
	OwnerID    string
	Source     string
	Content    string
	Metadata   []byte
	CreatedAt  time.Time
	Similarity float64
}

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

const upsertChunkSQL = `
INSERT INTO knowledge_chunks (id, owner_id, source, content, embedding, metadata)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
    owner_id   = EXCLUDED.owner_id,
    source     = EXCLUDED.source,
    content    = EXCLUDED.content,
    embedding  = EXCLUDED.embedding,
    metadata   = EXCLUDED.metadata,
    updated_at = now()`

func (q *Queries) UpsertChunk(ctx context.Context, arg UpsertChunkParams) error {
	_, err := q.db.Exec(ctx, upsertChunkSQL,
		arg.ID, arg.OwnerID, arg.Source, arg.Content, arg.Embedding, arg.Metadata)
	if err != nil {
		return fmt.Errorf("upsert chunk: %w", err)
	}
	return nil
}

// <=> is pgvector cosine distance; similarity = 1 - distance.
const searchChunksSQL = `
SELECT id, owner_id, source, content, metadata, created_at,
       1 - (embedding <=> $1) AS similarity
FROM knowledge_chunks
WHERE owner_id = $2
ORDER BY embedding <=> $1
LIMIT $3`

func (q *Queries) SearchChunks(ctx context.Context, arg SearchChunksParams) ([]SearchChunksRow, error) {
	rows, err := q.db.Query(ctx, searchChunksSQL,
		arg.QueryEmbedding, arg.OwnerID, arg.ResultLimit)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var out []SearchChunksRow
	for rows.Next() {
		var r SearchChunksRow
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.Source, &r.Content, &r.Metadata, &r.CreatedAt, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}

const listSourcesSQL = `
SELECT DISTINCT source
FROM knowledge_chunks
WHERE owner_id = $1
ORDER BY source`

func (q *Queries) ListSources(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := q.db.Query(ctx, listSourcesSQL, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var source string
		if err := rows.Scan(&source); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, source)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return out, nil
}

const deleteSourceSQL = `
DELETE FROM knowledge_chunks
WHERE owner_id = $1 AND source = $2`

func (q *Queries) DeleteSource(ctx context.Context, ownerID, source string) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteSourceSQL, ownerID, source)
	if err != nil {
		return 0, fmt.Errorf("delete source: %w", err)
	}
	return tag.RowsAffected(), nil
}
