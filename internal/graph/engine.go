package graph

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/docent-ai/docent/internal/conversation"
)

// DefaultMaxRounds caps model round-trips per turn. Each tool execution
// costs one extra round; a misbehaving model cannot loop forever.
const DefaultMaxRounds = 5

// FallbackResponse is returned when the model produces neither text nor
// tool requests.
const FallbackResponse = "I'm sorry, I couldn't generate a response. Please try rephrasing your question."

// maxRoundsResponse ends a turn that exhausted its round budget with tool
// requests still pending.
const maxRoundsResponse = "I couldn't finish answering within the allowed number of tool calls. Please try a simpler question."

// systemPromptFormat embeds the retrieved context and the tool policy.
// It stays well-formed when the context is empty.
const systemPromptFormat = "You're a helpful assistant. Use the following context to help answer: %s. " +
	"If the information is not in the context, use your tools (weather or time) to find out."

// ContextRetriever supplies the retrieved context for a turn.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query, ownerID string) string
}

// ConversationStore persists turn messages. *conversation.Store satisfies
// this.
type ConversationStore interface {
	Load(ctx context.Context, threadID string) (*conversation.Conversation, error)
	Append(ctx context.Context, threadID string, msgs []*ai.Message) error
}

// ToolRunner resolves and references the registered tools.
type ToolRunner interface {
	Refs() []ai.ToolRef
	Lookup(name string) ai.Tool
}

// Config holds the engine dependencies.
type Config struct {
	Genkit    *genkit.Genkit
	ModelName string

	Retriever ContextRetriever
	Store     ConversationStore
	Tools     ToolRunner

	// MaxRounds caps model calls per turn; <= 0 selects DefaultMaxRounds.
	MaxRounds int

	// RateLimiter gates model calls. nil means unlimited.
	RateLimiter *rate.Limiter

	Logger *slog.Logger
}

// Engine runs chat turns through the retrieve/model/decide/tool state
// machine.
//
// Engine is safe for concurrent use; turns on different threads never
// interact. Concurrent turns on the same thread are last-write-wins.
type Engine struct {
	g         *genkit.Genkit
	modelName string
	retriever ContextRetriever
	store     ConversationStore
	tools     ToolRunner
	maxRounds int
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// New creates an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Genkit == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("conversation store is required")
	}
	if cfg.Tools == nil {
		return nil, fmt.Errorf("tool runner is required")
	}

	maxRounds := cfg.MaxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		g:         cfg.Genkit,
		modelName: cfg.ModelName,
		retriever: cfg.Retriever,
		store:     cfg.Store,
		tools:     cfg.Tools,
		maxRounds: maxRounds,
		limiter:   limiter,
		logger:    logger.With("component", "graph"),
	}, nil
}

// Result is the outcome of one completed turn.
type Result struct {
	// Response is the assistant's final text.
	Response string

	// Rounds is how many model calls the turn took.
	Rounds int
}

// Turn runs one chat turn for a thread.
//
// The turn's messages (user input, intermediate assistant and tool
// messages, final answer) are persisted in one batch only after the turn
// completes; a failed turn leaves the stored conversation untouched.
// Model and persistence failures are fatal; retrieval and tool failures
// are absorbed into the turn.
func (e *Engine) Turn(ctx context.Context, threadID, userInput string) (*Result, error) {
	conv, err := e.store.Load(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	userMsg := ai.NewUserMessage(ai.NewTextPart(userInput))
	state := newTurnState(threadID, threadID, conv.History(), userMsg)

	// RETRIEVE: best effort, empty context on failure.
	current := stepRetrieve
	state.setContext(e.retriever.Retrieve(ctx, userInput, state.OwnerID))
	e.logger.Debug("step complete", "step", current.String(),
		"thread_id", threadID, "context_length", len(state.Context))

	var responseText string
	rounds := 0

	for rounds < e.maxRounds {
		// MODEL
		current = stepModel
		rounds++

		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		resp, err := genkit.Generate(ctx, e.g,
			ai.WithModelName(e.modelName),
			ai.WithSystem(fmt.Sprintf(systemPromptFormat, state.Context)),
			ai.WithMessages(state.Messages...),
			ai.WithTools(e.tools.Refs()...),
			ai.WithReturnToolRequests(true),
		)
		if err != nil {
			return nil, fmt.Errorf("model call failed (round %d): %w", rounds, err)
		}

		msg := resp.Message
		if msg == nil {
			msg = ai.NewModelMessage(ai.NewTextPart(""))
		}
		state.appendMessages(msg)

		// DECIDE
		current = stepDecide
		if decide(msg) == routeDone {
			responseText = strings.TrimSpace(resp.Text())
			if responseText == "" {
				e.logger.Warn("model returned empty response with no tool requests",
					"thread_id", threadID)
				responseText = FallbackResponse
				state.replaceLastMessage(ai.NewModelMessage(ai.NewTextPart(responseText)))
			}
			current = stepDone
			break
		}

		// TOOL_EXEC: all responses are appended before the next model call.
		current = stepToolExec
		state.appendMessages(e.runTools(ctx, toolRequests(msg)))
		e.logger.Debug("step complete", "step", current.String(),
			"thread_id", threadID, "round", rounds)
	}

	if current != stepDone {
		e.logger.Warn("turn exhausted round budget", "thread_id", threadID, "rounds", rounds)
		responseText = maxRoundsResponse
		state.appendMessages(ai.NewModelMessage(ai.NewTextPart(responseText)))
	}

	if err := e.store.Append(ctx, threadID, state.NewMessages); err != nil {
		return nil, fmt.Errorf("failed to persist turn: %w", err)
	}

	e.logger.Info("turn complete", "thread_id", threadID, "rounds", rounds,
		"messages", len(state.NewMessages))
	return &Result{Response: responseText, Rounds: rounds}, nil
}

// runTools executes pending tool requests sequentially in issue order and
// returns one tool-role message whose responses are correlated by Ref.
// Unknown tools and execution failures become error strings in the tool
// output; they never fail the turn.
func (e *Engine) runTools(ctx context.Context, reqs []*ai.ToolRequest) *ai.Message {
	parts := make([]*ai.Part, 0, len(reqs))
	for _, req := range reqs {
		var output any

		tool := e.tools.Lookup(req.Name)
		if tool == nil {
			e.logger.Warn("model requested unknown tool", "tool", req.Name)
			output = fmt.Sprintf("Error: unknown tool %q.", req.Name)
		} else {
			out, err := tool.RunRaw(ctx, req.Input)
			if err != nil {
				e.logger.Warn("tool execution failed", "tool", req.Name, "error", err)
				output = fmt.Sprintf("Error: tool %q failed: %v", req.Name, err)
			} else {
				output = out
			}
		}

		parts = append(parts, ai.NewToolResponsePart(&ai.ToolResponse{
			Name:   req.Name,
			Ref:    req.Ref,
			Output: output,
		}))
	}

	return &ai.Message{
		Role:    ai.RoleTool,
		Content: parts,
	}
}
