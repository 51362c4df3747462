package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/docent-ai/docent/internal/knowledge"
)

type fakeSearcher struct {
	results []knowledge.Result
	err     error

	gotQuery string
	gotK     int
	gotOwner string
}

func (f *fakeSearcher) Search(_ context.Context, query string, k int, ownerID string) ([]knowledge.Result, error) {
	f.gotQuery = query
	f.gotK = k
	f.gotOwner = ownerID
	return f.results, f.err
}

func TestRetrieveJoinsChunks(t *testing.T) {
	s := &fakeSearcher{results: []knowledge.Result{
		{Chunk: knowledge.Chunk{Content: "first chunk"}, Similarity: 0.9},
		{Chunk: knowledge.Chunk{Content: "second chunk"}, Similarity: 0.8},
	}}
	r := New(s, 0, nil)

	got := r.Retrieve(context.Background(), "query", "alice")
	want := "first chunk\n\nsecond chunk"
	if got != want {
		t.Errorf("Retrieve() = %q, want %q", got, want)
	}

	if s.gotK != DefaultTopK {
		t.Errorf("k = %d, want %d", s.gotK, DefaultTopK)
	}
	if s.gotOwner != "alice" {
		t.Errorf("owner = %q, want alice", s.gotOwner)
	}
}

func TestRetrieveFailureYieldsEmpty(t *testing.T) {
	s := &fakeSearcher{err: errors.New("db down")}
	r := New(s, 5, nil)

	if got := r.Retrieve(context.Background(), "query", "alice"); got != "" {
		t.Errorf("Retrieve() on failure = %q, want empty", got)
	}
}

func TestRetrieveNoMatches(t *testing.T) {
	r := New(&fakeSearcher{}, 5, nil)

	if got := r.Retrieve(context.Background(), "query", "alice"); got != "" {
		t.Errorf("Retrieve() with no matches = %q, want empty", got)
	}
}
