// Package knowledge stores embedded document chunks and serves vector
// similarity search over them using PostgreSQL + pgvector.
package knowledge

import "time"

// Chunk is one embedded piece of an ingested document.
type Chunk struct {
	// ID is deterministic per (owner, source, index) so re-ingesting a
	// document updates chunks in place instead of duplicating them.
	ID       string
	OwnerID  string
	Source   string
	Content  string
	Metadata map[string]string
	CreateAt time.Time
}

// Result is a chunk returned by Search together with its similarity to
// the query, in [0, 1] with 1 meaning identical direction.
type Result struct {
	Chunk
	Similarity float64
}
