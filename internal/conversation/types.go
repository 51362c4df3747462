// Package conversation persists per-thread conversation state.
//
// A thread is identified by an opaque string (the chat API uses the user id).
// Messages are stored in sequence order and reconstructed as genkit
// ai.Messages for the model.
package conversation

import (
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
)

// Message is one stored conversation message.
type Message struct {
	ID             uuid.UUID
	ThreadID       string
	Role           string
	Content        []*ai.Part
	SequenceNumber int64
	CreatedAt      time.Time
}

// Conversation is the loaded state of one thread.
type Conversation struct {
	ThreadID string
	Messages []*Message
}

// History converts stored messages to genkit messages in sequence order.
func (c *Conversation) History() []*ai.Message {
	out := make([]*ai.Message, len(c.Messages))
	for i, m := range c.Messages {
		out[i] = &ai.Message{
			Role:    ai.Role(m.Role),
			Content: m.Content,
		}
	}
	return out
}

// Len returns the number of stored messages.
func (c *Conversation) Len() int {
	return len(c.Messages)
}
