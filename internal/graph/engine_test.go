package graph

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/docent-ai/docent/internal/conversation"
	"github.com/docent-ai/docent/internal/testutil"
	"github.com/docent-ai/docent/internal/tools"
)

// memStore is an in-memory ConversationStore.
type memStore struct {
	msgs        map[string][]*ai.Message
	appendCalls int
	appendErr   error
}

func newMemStore() *memStore {
	return &memStore{msgs: make(map[string][]*ai.Message)}
}

func (m *memStore) Load(_ context.Context, threadID string) (*conversation.Conversation, error) {
	conv := &conversation.Conversation{ThreadID: threadID}
	for _, msg := range m.msgs[threadID] {
		conv.Messages = append(conv.Messages, &conversation.Message{
			ThreadID: threadID,
			Role:     string(msg.Role),
			Content:  msg.Content,
		})
	}
	return conv, nil
}

func (m *memStore) Append(_ context.Context, threadID string, msgs []*ai.Message) error {
	m.appendCalls++
	if m.appendErr != nil {
		return m.appendErr
	}
	m.msgs[threadID] = append(m.msgs[threadID], msgs...)
	return nil
}

// staticRetriever returns a fixed context string.
type staticRetriever struct {
	context  string
	lastSeen string
}

func (r *staticRetriever) Retrieve(_ context.Context, query, _ string) string {
	r.lastSeen = query
	return r.context
}

// testEnv wires a mock model, real tool registry, and in-memory store.
type testEnv struct {
	engine *Engine
	mock   *testutil.MockLLM
	store  *memStore
}

func newTestEnv(t *testing.T, weatherURL string, maxRounds int) *testEnv {
	t.Helper()

	g := genkit.Init(context.Background())

	mock := testutil.NewMockLLM("fallback answer")
	mock.RegisterModel(g)

	fixedNow := func() time.Time {
		return time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	}
	registry, err := tools.NewRegistry(g, tools.Config{
		WeatherAPIKey:  "test-key",
		WeatherBaseURL: weatherURL,
		Now:            fixedNow,
	})
	if err != nil {
		t.Fatalf("NewRegistry() failed: %v", err)
	}

	store := newMemStore()
	engine, err := New(Config{
		Genkit:    g,
		ModelName: "mock/test-model",
		Retriever: &staticRetriever{},
		Store:     store,
		Tools:     registry,
		MaxRounds: maxRounds,
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	return &testEnv{engine: engine, mock: mock, store: store}
}

func TestTurnPlainAnswer(t *testing.T) {
	env := newTestEnv(t, "", 0)
	env.mock.AddResponse("capital of france", "The capital of France is Paris.")

	res, err := env.engine.Turn(context.Background(), "alice", "What is the capital of France?")
	if err != nil {
		t.Fatalf("Turn() failed: %v", err)
	}

	if res.Response != "The capital of France is Paris." {
		t.Errorf("Response = %q", res.Response)
	}
	if res.Rounds != 1 {
		t.Errorf("Rounds = %d, want 1", res.Rounds)
	}

	stored := env.store.msgs["alice"]
	if len(stored) != 2 {
		t.Fatalf("expected user + model messages stored, got %d", len(stored))
	}
	if stored[0].Role != ai.RoleUser || stored[1].Role != ai.RoleModel {
		t.Errorf("stored roles wrong: %s, %s", stored[0].Role, stored[1].Role)
	}
}

func TestTurnPragueWeatherOneRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "Prague" {
			t.Errorf("expected city Prague, got %q", r.URL.Query().Get("q"))
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{
			"weather": [{"description": "clear sky"}],
			"main": {"temp": 22.5, "feels_like": 21.8, "humidity": 40},
			"wind": {"speed": 3.2},
			"name": "Prague"
		}`))
	}))
	defer srv.Close()

	env := newTestEnv(t, srv.URL, 0)
	env.mock.AddToolResponse("weather in prague", []*ai.ToolRequest{
		{Name: tools.GetWeatherName, Ref: "call-1", Input: map[string]any{"city": "Prague"}},
	})

	res, err := env.engine.Turn(context.Background(), "alice", "What's the weather in Prague?")
	if err != nil {
		t.Fatalf("Turn() failed: %v", err)
	}

	// Exactly one tool round-trip: request call, then followup call.
	calls := env.mock.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 model calls, got %d", len(calls))
	}
	if !calls[1].ToolFollow {
		t.Error("second model call should answer tool results")
	}
	if res.Rounds != 2 {
		t.Errorf("Rounds = %d, want 2", res.Rounds)
	}

	if !strings.Contains(res.Response, "Prague") || !strings.Contains(res.Response, "22.5") {
		t.Errorf("weather data missing from response: %q", res.Response)
	}

	// Stored: user, model tool request, tool response, final model answer.
	stored := env.store.msgs["alice"]
	if len(stored) != 4 {
		t.Fatalf("expected 4 stored messages, got %d", len(stored))
	}
	if stored[2].Role != ai.RoleTool {
		t.Fatalf("third stored message should be tool role, got %s", stored[2].Role)
	}
	toolResp := stored[2].Content[0].ToolResponse
	if toolResp == nil || toolResp.Ref != "call-1" {
		t.Errorf("tool response Ref not correlated: %+v", toolResp)
	}
}

func TestTurnUnknownToolCompletesWithErrorMarker(t *testing.T) {
	env := newTestEnv(t, "", 0)
	env.mock.AddToolResponse("use the gadget", []*ai.ToolRequest{
		{Name: "no_such_tool", Ref: "r1", Input: map[string]any{}},
	})

	res, err := env.engine.Turn(context.Background(), "alice", "please use the gadget")
	if err != nil {
		t.Fatalf("unknown tool must not fail the turn: %v", err)
	}

	if !strings.Contains(res.Response, "no_such_tool") {
		t.Errorf("error marker should reach the final response: %q", res.Response)
	}

	stored := env.store.msgs["alice"]
	var toolMsg *ai.Message
	for _, m := range stored {
		if m.Role == ai.RoleTool {
			toolMsg = m
		}
	}
	if toolMsg == nil {
		t.Fatal("tool result message not stored")
	}
	out, ok := toolMsg.Content[0].ToolResponse.Output.(string)
	if !ok || !strings.Contains(out, "unknown tool") {
		t.Errorf("tool output should be an error string: %v", toolMsg.Content[0].ToolResponse.Output)
	}
}

func TestTurnToolResultsInIssueOrder(t *testing.T) {
	env := newTestEnv(t, "", 0)
	env.mock.AddToolResponse("time twice", []*ai.ToolRequest{
		{Name: tools.CurrentTimeName, Ref: "r1", Input: map[string]any{"timezone": "UTC"}},
		{Name: tools.CurrentTimeName, Ref: "r2", Input: map[string]any{"timezone": "Not/AZone"}},
	})

	_, err := env.engine.Turn(context.Background(), "alice", "time twice please")
	if err != nil {
		t.Fatalf("Turn() failed: %v", err)
	}

	var toolMsg *ai.Message
	for _, m := range env.store.msgs["alice"] {
		if m.Role == ai.RoleTool {
			toolMsg = m
		}
	}
	if toolMsg == nil || len(toolMsg.Content) != 2 {
		t.Fatalf("expected one tool message with 2 responses, got %+v", toolMsg)
	}
	if toolMsg.Content[0].ToolResponse.Ref != "r1" || toolMsg.Content[1].ToolResponse.Ref != "r2" {
		t.Errorf("responses out of issue order: %s, %s",
			toolMsg.Content[0].ToolResponse.Ref, toolMsg.Content[1].ToolResponse.Ref)
	}

	// The bad-zone result is a successful tool result carrying an error
	// string, not a failure.
	second, ok := toolMsg.Content[1].ToolResponse.Output.(string)
	if !ok || !strings.Contains(second, "Not/AZone") {
		t.Errorf("bad zone should produce an error string output: %v",
			toolMsg.Content[1].ToolResponse.Output)
	}
}

func TestTurnModelErrorLeavesNothingPersisted(t *testing.T) {
	g := genkit.Init(context.Background())

	genkit.DefineModel(g, "mock/error-model", &ai.ModelOptions{
		Supports: &ai.ModelSupports{Multiturn: true, Tools: true, SystemRole: true},
	}, func(context.Context, *ai.ModelRequest, ai.ModelStreamCallback) (*ai.ModelResponse, error) {
		return nil, errors.New("model unavailable")
	})

	registry, err := tools.NewRegistry(g, tools.Config{})
	if err != nil {
		t.Fatalf("NewRegistry() failed: %v", err)
	}

	store := newMemStore()
	engine, err := New(Config{
		Genkit:    g,
		ModelName: "mock/error-model",
		Retriever: &staticRetriever{},
		Store:     store,
		Tools:     registry,
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if _, err := engine.Turn(context.Background(), "alice", "hello"); err == nil {
		t.Fatal("model error must fail the turn")
	}
	if store.appendCalls != 0 {
		t.Errorf("no messages may be persisted on a failed turn, got %d appends", store.appendCalls)
	}
}

func TestTurnPersistErrorIsFatal(t *testing.T) {
	env := newTestEnv(t, "", 0)
	env.mock.AddResponse("hello", "hi there")
	env.store.appendErr = errors.New("db down")

	if _, err := env.engine.Turn(context.Background(), "alice", "hello"); err == nil {
		t.Fatal("persistence failure must fail the turn")
	}
}

func TestTurnMaxRoundsBoundsToolLoop(t *testing.T) {
	g := genkit.Init(context.Background())

	// A model that always requests another tool call.
	var modelCalls int
	genkit.DefineModel(g, "mock/loop-model", &ai.ModelOptions{
		Supports: &ai.ModelSupports{Multiturn: true, Tools: true, SystemRole: true},
	}, func(_ context.Context, req *ai.ModelRequest, _ ai.ModelStreamCallback) (*ai.ModelResponse, error) {
		modelCalls++
		return &ai.ModelResponse{
			Request: req,
			Message: &ai.Message{
				Role: ai.RoleModel,
				Content: []*ai.Part{{
					Kind:        ai.PartToolRequest,
					ToolRequest: &ai.ToolRequest{Name: tools.CurrentTimeName, Input: map[string]any{"timezone": "UTC"}},
				}},
			},
		}, nil
	})

	registry, err := tools.NewRegistry(g, tools.Config{})
	if err != nil {
		t.Fatalf("NewRegistry() failed: %v", err)
	}

	store := newMemStore()
	engine, err := New(Config{
		Genkit:    g,
		ModelName: "mock/loop-model",
		Retriever: &staticRetriever{},
		Store:     store,
		Tools:     registry,
		MaxRounds: 2,
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	res, err := engine.Turn(context.Background(), "alice", "loop forever")
	if err != nil {
		t.Fatalf("round exhaustion must complete the turn, got %v", err)
	}

	if modelCalls != 2 {
		t.Errorf("model called %d times, want 2", modelCalls)
	}
	if res.Response == "" {
		t.Error("exhausted turn must still produce a response")
	}
	if store.appendCalls != 1 {
		t.Errorf("turn messages must be persisted once, got %d appends", store.appendCalls)
	}
}

func TestTurnEmptyResponseFallback(t *testing.T) {
	g := genkit.Init(context.Background())

	genkit.DefineModel(g, "mock/empty-model", &ai.ModelOptions{
		Supports: &ai.ModelSupports{Multiturn: true, Tools: true, SystemRole: true},
	}, func(_ context.Context, req *ai.ModelRequest, _ ai.ModelStreamCallback) (*ai.ModelResponse, error) {
		return &ai.ModelResponse{
			Request: req,
			Message: &ai.Message{Role: ai.RoleModel, Content: []*ai.Part{ai.NewTextPart("  ")}},
		}, nil
	})

	registry, err := tools.NewRegistry(g, tools.Config{})
	if err != nil {
		t.Fatalf("NewRegistry() failed: %v", err)
	}

	engine, err := New(Config{
		Genkit:    g,
		ModelName: "mock/empty-model",
		Retriever: &staticRetriever{},
		Store:     newMemStore(),
		Tools:     registry,
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	res, err := engine.Turn(context.Background(), "alice", "hello")
	if err != nil {
		t.Fatalf("Turn() failed: %v", err)
	}
	if res.Response != FallbackResponse {
		t.Errorf("Response = %q, want fallback", res.Response)
	}
}

func TestTurnRetrievalQueryIsUserInput(t *testing.T) {
	g := genkit.Init(context.Background())
	mock := testutil.NewMockLLM("ok")
	mock.RegisterModel(g)

	registry, err := tools.NewRegistry(g, tools.Config{})
	if err != nil {
		t.Fatalf("NewRegistry() failed: %v", err)
	}

	retriever := &staticRetriever{context: "doc context"}
	engine, err := New(Config{
		Genkit:    g,
		ModelName: "mock/test-model",
		Retriever: retriever,
		Store:     newMemStore(),
		Tools:     registry,
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if _, err := engine.Turn(context.Background(), "alice", "what do my notes say?"); err != nil {
		t.Fatalf("Turn() failed: %v", err)
	}
	if retriever.lastSeen != "what do my notes say?" {
		t.Errorf("retrieval query = %q", retriever.lastSeen)
	}
}

func TestTurnThreadsAreIsolated(t *testing.T) {
	env := newTestEnv(t, "", 0)
	env.mock.AddResponse("hello", "hi")

	if _, err := env.engine.Turn(context.Background(), "alice", "hello from alice"); err != nil {
		t.Fatalf("Turn(alice) failed: %v", err)
	}
	if _, err := env.engine.Turn(context.Background(), "bob", "hello from bob"); err != nil {
		t.Fatalf("Turn(bob) failed: %v", err)
	}

	if len(env.store.msgs["alice"]) != 2 || len(env.store.msgs["bob"]) != 2 {
		t.Fatalf("threads not isolated: alice=%d bob=%d",
			len(env.store.msgs["alice"]), len(env.store.msgs["bob"]))
	}
	if env.store.msgs["alice"][0].Text() == env.store.msgs["bob"][0].Text() {
		t.Error("thread contents should differ")
	}
}
