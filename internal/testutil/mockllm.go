// Package testutil provides deterministic Genkit model and embedder mocks
// for tests.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// MockLLM provides deterministic LLM responses for testing.
// It matches user message content against registered patterns and returns
// the corresponding response.
//
// When the last message in a request is a tool-role message, the mock
// returns a text answer incorporating the tool outputs instead of
// re-matching the user pattern. This mirrors a real model acknowledging
// tool results and keeps tool loops finite.
//
// Thread-safe for concurrent use.
type MockLLM struct {
	mu        sync.Mutex
	responses []mockRule
	fallback  string
	calls     []MockCall
}

type mockRule struct {
	pattern  string            // substring match in user message
	response string            // text response
	tools    []*ai.ToolRequest // tool calls to request (nil = text only)
}

// MockCall records a single call to the mock model.
type MockCall struct {
	UserMessage string // last user message text
	Response    string // response text returned
	ToolFollow  bool   // true when this call answered tool results
}

// NewMockLLM creates a mock LLM with the given fallback response.
// The fallback is returned when no pattern matches.
func NewMockLLM(fallback string) *MockLLM {
	return &MockLLM{fallback: fallback}
}

// AddResponse registers a pattern-response pair.
// When a user message contains the pattern (case-insensitive), the response
// is returned. Patterns are checked in registration order; first match wins.
func (m *MockLLM) AddResponse(pattern, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockRule{
		pattern:  strings.ToLower(pattern),
		response: response,
	})
}

// AddToolResponse registers a pattern that triggers tool calls.
func (m *MockLLM) AddToolResponse(pattern string, tools []*ai.ToolRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockRule{
		pattern: strings.ToLower(pattern),
		tools:   tools,
	})
}

// Calls returns a copy of all recorded calls.
func (m *MockLLM) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]MockCall, len(m.calls))
	copy(cp, m.calls)
	return cp
}

// Reset clears all recorded calls (keeps registered responses).
func (m *MockLLM) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// RegisterModel registers the mock as a Genkit model and returns a reference.
// The model name will be "mock/test-model".
func (m *MockLLM) RegisterModel(g *genkit.Genkit) ai.Model {
	return genkit.DefineModel(g, "mock/test-model", &ai.ModelOptions{
		Label: "Mock Test Model",
		Supports: &ai.ModelSupports{
			Multiturn:  true,
			Tools:      true,
			SystemRole: true,
			Media:      false,
		},
	}, m.generate)
}

// generate is the Genkit model function.
func (m *MockLLM) generate(ctx context.Context, req *ai.ModelRequest, cb ai.ModelStreamCallback) (*ai.ModelResponse, error) {
	// Tool results pending: answer them with a text response so the
	// caller's tool loop terminates.
	if last := lastMessage(req); last != nil && last.Role == ai.RoleTool {
		responseText := "tool result: " + toolOutputs(last)

		m.mu.Lock()
		m.calls = append(m.calls, MockCall{
			Response:   responseText,
			ToolFollow: true,
		})
		m.mu.Unlock()

		return textResponse(ctx, req, cb, responseText, nil), nil
	}

	// Extract last user message
	var userText string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == ai.RoleUser {
			userText = req.Messages[i].Text()
			break
		}
	}

	m.mu.Lock()
	var matched *mockRule
	lower := strings.ToLower(userText)
	for i := range m.responses {
		if strings.Contains(lower, m.responses[i].pattern) {
			matched = &m.responses[i]
			break
		}
	}

	responseText := m.fallback
	var tools []*ai.ToolRequest
	if matched != nil {
		responseText = matched.response
		tools = matched.tools
	}

	m.calls = append(m.calls, MockCall{
		UserMessage: userText,
		Response:    responseText,
	})
	m.mu.Unlock()

	return textResponse(ctx, req, cb, responseText, tools), nil
}

// textResponse builds a model response with optional tool request parts.
func textResponse(ctx context.Context, req *ai.ModelRequest, cb ai.ModelStreamCallback, text string, tools []*ai.ToolRequest) *ai.ModelResponse {
	if cb != nil {
		_ = cb(ctx, &ai.ModelResponseChunk{
			Content: []*ai.Part{ai.NewTextPart(text)},
		})
	}

	var parts []*ai.Part
	for _, tr := range tools {
		parts = append(parts, &ai.Part{
			Kind:        ai.PartToolRequest,
			ToolRequest: tr,
		})
	}
	if len(tools) == 0 && text != "" {
		parts = append(parts, ai.NewTextPart(text))
	}

	return &ai.ModelResponse{
		Request: req,
		Message: &ai.Message{
			Role:    ai.RoleModel,
			Content: parts,
		},
	}
}

// lastMessage returns the final message of the request, or nil.
func lastMessage(req *ai.ModelRequest) *ai.Message {
	if len(req.Messages) == 0 {
		return nil
	}
	return req.Messages[len(req.Messages)-1]
}

// toolOutputs renders all tool response outputs of a message as one string.
func toolOutputs(msg *ai.Message) string {
	var outputs []string
	for _, p := range msg.Content {
		if p.ToolResponse != nil {
			outputs = append(outputs, fmt.Sprintf("%v", p.ToolResponse.Output))
		}
	}
	return strings.Join(outputs, "; ")
}
