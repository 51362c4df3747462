// Package graph orchestrates one chat turn as an explicit state machine:
// retrieve context, call the model, decide, execute tools, repeat until
// the model answers in text.
package graph

import (
	"github.com/firebase/genkit/go/ai"
)

// step identifies a node of the turn state machine.
type step int

const (
	stepRetrieve step = iota
	stepModel
	stepDecide
	stepToolExec
	stepDone
)

func (s step) String() string {
	switch s {
	case stepRetrieve:
		return "retrieve"
	case stepModel:
		return "model"
	case stepDecide:
		return "decide"
	case stepToolExec:
		return "tool_exec"
	case stepDone:
		return "done"
	default:
		return "unknown"
	}
}

// route is the outcome of the decide step.
type route int

const (
	// routeDone ends the turn with the model's text answer.
	routeDone route = iota

	// routeToolExec executes the model's pending tool requests and loops
	// back to the model.
	routeToolExec
)

// TurnState is the explicit per-turn state.
// Messages grows append-only over the turn; Context is overwritten by the
// retrieve step. There is no implicit merging: every mutation goes through
// a named method.
type TurnState struct {
	ThreadID string
	OwnerID  string

	// Messages is the full model input: stored history plus everything
	// produced this turn.
	Messages []*ai.Message

	// NewMessages is the subset produced this turn, in order. Persisted
	// in one batch at turn completion.
	NewMessages []*ai.Message

	// Context is the retrieved document context for this turn.
	Context string
}

// newTurnState seeds the state with the stored history and the new user
// message.
func newTurnState(threadID, ownerID string, history []*ai.Message, userMsg *ai.Message) *TurnState {
	messages := make([]*ai.Message, 0, len(history)+1)
	messages = append(messages, history...)

	s := &TurnState{
		ThreadID: threadID,
		OwnerID:  ownerID,
		Messages: messages,
	}
	s.appendMessages(userMsg)
	return s
}

// appendMessages adds turn-produced messages to both the model input and
// the persistence batch.
func (s *TurnState) appendMessages(msgs ...*ai.Message) {
	s.Messages = append(s.Messages, msgs...)
	s.NewMessages = append(s.NewMessages, msgs...)
}

// setContext overwrites the retrieved context.
func (s *TurnState) setContext(context string) {
	s.Context = context
}

// replaceLastMessage swaps the most recent turn-produced message.
// Used when an empty model answer is replaced by the fallback text.
func (s *TurnState) replaceLastMessage(msg *ai.Message) {
	if len(s.Messages) == 0 || len(s.NewMessages) == 0 {
		return
	}
	s.Messages[len(s.Messages)-1] = msg
	s.NewMessages[len(s.NewMessages)-1] = msg
}

// decide routes based on the last assistant message: tool requests go to
// tool execution, anything else ends the turn.
func decide(msg *ai.Message) route {
	if msg == nil {
		return routeDone
	}
	for _, p := range msg.Content {
		if p.ToolRequest != nil {
			return routeToolExec
		}
	}
	return routeDone
}

// toolRequests returns the message's tool requests in issue order.
func toolRequests(msg *ai.Message) []*ai.ToolRequest {
	var reqs []*ai.ToolRequest
	for _, p := range msg.Content {
		if p.ToolRequest != nil {
			reqs = append(reqs, p.ToolRequest)
		}
	}
	return reqs
}
