package conversation

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
)

// mockQuerier implements Querier in memory, keyed by thread id.
type mockQuerier struct {
	threads  map[string]bool
	messages map[string][]MessageRow

	insertCalls int
	deleteCalls int
}

func newMockQuerier() *mockQuerier {
	return &mockQuerier{
		threads:  make(map[string]bool),
		messages: make(map[string][]MessageRow),
	}
}

func (m *mockQuerier) UpsertThread(_ context.Context, threadID string) error {
	m.threads[threadID] = true
	return nil
}

func (m *mockQuerier) LockThread(_ context.Context, threadID string) error {
	return nil
}

func (m *mockQuerier) MaxSequence(_ context.Context, threadID string) (int64, error) {
	var maxSeq int64
	for _, r := range m.messages[threadID] {
		if r.SequenceNumber > maxSeq {
			maxSeq = r.SequenceNumber
		}
	}
	return maxSeq, nil
}

func (m *mockQuerier) InsertMessage(_ context.Context, arg InsertMessageParams) error {
	m.insertCalls++
	m.messages[arg.ThreadID] = append(m.messages[arg.ThreadID], MessageRow{
		ID:             arg.ID,
		ThreadID:       arg.ThreadID,
		Role:           arg.Role,
		Content:        arg.Content,
		SequenceNumber: arg.SequenceNumber,
	})
	return nil
}

func (m *mockQuerier) GetMessages(_ context.Context, threadID string) ([]MessageRow, error) {
	return m.messages[threadID], nil
}

func (m *mockQuerier) DeleteThread(_ context.Context, threadID string) error {
	m.deleteCalls++
	delete(m.threads, threadID)
	delete(m.messages, threadID)
	return nil
}

func userMsg(text string) *ai.Message {
	return &ai.Message{Role: ai.RoleUser, Content: []*ai.Part{ai.NewTextPart(text)}}
}

func modelMsg(text string) *ai.Message {
	return &ai.Message{Role: ai.RoleModel, Content: []*ai.Part{ai.NewTextPart(text)}}
}

func TestLoadEmptyThread(t *testing.T) {
	store := New(newMockQuerier(), nil, nil)

	conv, err := store.Load(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if conv.ThreadID != "alice" {
		t.Errorf("expected thread id 'alice', got %q", conv.ThreadID)
	}
	if conv.Len() != 0 {
		t.Errorf("expected empty conversation, got %d messages", conv.Len())
	}
}

func TestAppendAssignsSequenceNumbers(t *testing.T) {
	q := newMockQuerier()
	store := New(q, nil, nil)
	ctx := context.Background()

	if err := store.Append(ctx, "alice", []*ai.Message{userMsg("hi"), modelMsg("hello")}); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	if err := store.Append(ctx, "alice", []*ai.Message{userMsg("again")}); err != nil {
		t.Fatalf("second Append() failed: %v", err)
	}

	rows := q.messages["alice"]
	if len(rows) != 3 {
		t.Fatalf("expected 3 stored messages, got %d", len(rows))
	}
	for i, r := range rows {
		want := int64(i + 1)
		if r.SequenceNumber != want {
			t.Errorf("message %d: sequence = %d, want %d", i, r.SequenceNumber, want)
		}
	}
}

func TestAppendRejectsNilPart(t *testing.T) {
	store := New(newMockQuerier(), nil, nil)

	msg := &ai.Message{Role: ai.RoleUser, Content: []*ai.Part{nil}}
	if err := store.Append(context.Background(), "alice", []*ai.Message{msg}); err == nil {
		t.Fatal("expected error for nil content part")
	}
}

func TestLoadRoundTrip(t *testing.T) {
	store := New(newMockQuerier(), nil, nil)
	ctx := context.Background()

	in := []*ai.Message{userMsg("what is pgvector?"), modelMsg("a postgres extension")}
	if err := store.Append(ctx, "alice", in); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}

	conv, err := store.Load(ctx, "alice")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	history := conv.History()
	if len(history) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(history))
	}
	if history[0].Role != ai.RoleUser || history[1].Role != ai.RoleModel {
		t.Errorf("roles not preserved: %s, %s", history[0].Role, history[1].Role)
	}
	if got := history[0].Content[0].Text; got != "what is pgvector?" {
		t.Errorf("text not preserved: %q", got)
	}
}

func TestLoadSkipsMalformedContent(t *testing.T) {
	q := newMockQuerier()
	good, _ := json.Marshal([]*ai.Part{ai.NewTextPart("ok")})
	q.messages["alice"] = []MessageRow{
		{ID: uuid.New(), ThreadID: "alice", Role: "user", Content: []byte("{not json"), SequenceNumber: 1},
		{ID: uuid.New(), ThreadID: "alice", Role: "model", Content: good, SequenceNumber: 2},
	}
	store := New(q, nil, nil)

	conv, err := store.Load(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if conv.Len() != 1 {
		t.Fatalf("expected malformed row skipped, got %d messages", conv.Len())
	}
}

func TestSaveHistoryIdempotent(t *testing.T) {
	q := newMockQuerier()
	store := New(q, nil, nil)
	ctx := context.Background()

	history := []*ai.Message{userMsg("hi"), modelMsg("hello")}
	if err := store.SaveHistory(ctx, "alice", history); err != nil {
		t.Fatalf("SaveHistory() failed: %v", err)
	}

	inserts := q.insertCalls

	// Saving the unchanged loaded history must not write new rows.
	conv, err := store.Load(ctx, "alice")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if err := store.SaveHistory(ctx, "alice", conv.History()); err != nil {
		t.Fatalf("second SaveHistory() failed: %v", err)
	}
	if q.insertCalls != inserts {
		t.Errorf("unchanged save inserted %d new rows", q.insertCalls-inserts)
	}

	// Extending the history appends only the delta.
	extended := append(conv.History(), userMsg("more"))
	if err := store.SaveHistory(ctx, "alice", extended); err != nil {
		t.Fatalf("extended SaveHistory() failed: %v", err)
	}
	if q.insertCalls != inserts+1 {
		t.Errorf("expected exactly 1 new row, got %d", q.insertCalls-inserts)
	}
}

func TestThreadIsolation(t *testing.T) {
	store := New(newMockQuerier(), nil, nil)
	ctx := context.Background()

	if err := store.Append(ctx, "alice", []*ai.Message{userMsg("alice msg")}); err != nil {
		t.Fatalf("Append(alice) failed: %v", err)
	}
	if err := store.Append(ctx, "bob", []*ai.Message{userMsg("bob msg"), modelMsg("reply")}); err != nil {
		t.Fatalf("Append(bob) failed: %v", err)
	}

	aliceConv, err := store.Load(ctx, "alice")
	if err != nil {
		t.Fatalf("Load(alice) failed: %v", err)
	}
	bobConv, err := store.Load(ctx, "bob")
	if err != nil {
		t.Fatalf("Load(bob) failed: %v", err)
	}

	if aliceConv.Len() != 1 {
		t.Errorf("alice has %d messages, want 1", aliceConv.Len())
	}
	if bobConv.Len() != 2 {
		t.Errorf("bob has %d messages, want 2", bobConv.Len())
	}
	if got := aliceConv.Messages[0].Content[0].Text; got != "alice msg" {
		t.Errorf("alice content leaked: %q", got)
	}
}

func TestDeleteUnknownThread(t *testing.T) {
	q := newMockQuerier()
	store := New(q, nil, nil)

	if err := store.Delete(context.Background(), "nobody"); err != nil {
		t.Fatalf("Delete() of unknown thread should succeed, got %v", err)
	}
	if q.deleteCalls != 1 {
		t.Errorf("expected delete to reach the querier")
	}
}
