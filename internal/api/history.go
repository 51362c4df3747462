package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/docent-ai/docent/internal/chatlog"
)

// ChatLog records and retrieves past exchanges. *chatlog.Store satisfies
// this.
type ChatLog interface {
	Append(ctx context.Context, conversationID, userMessage, aiResponse string) (int64, error)
	History(ctx context.Context, conversationID string) ([]chatlog.Entry, error)
	Delete(ctx context.Context, conversationID string) error
}

// ThreadStore removes conversation state. *conversation.Store satisfies
// this.
type ThreadStore interface {
	Delete(ctx context.Context, threadID string) error
}

type historyHandler struct {
	chatlog ChatLog
	threads ThreadStore
	logger  *slog.Logger
}

// HistoryEntry is one exchange in the history listing.
type HistoryEntry struct {
	UserMessage string    `json:"user_message"`
	AIResponse  string    `json:"ai_response"`
	Timestamp   time.Time `json:"timestamp"`
}

// list returns all logged exchanges for a user, oldest first.
func (h *historyHandler) list(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")

	entries, err := h.chatlog.History(r.Context(), userID)
	if err != nil {
		if errors.Is(err, chatlog.ErrNoHistory) {
			writeError(w, http.StatusNotFound, "no_history", "no chat history for this user")
			return
		}
		h.logger.Error("failed to load history", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "history_failed", "failed to load history")
		return
	}

	out := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryEntry{
			UserMessage: e.UserMessage,
			AIResponse:  e.AIResponse,
			Timestamp:   e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// clear deletes the logged history and the conversation thread. Clearing
// a user with no history succeeds.
func (h *historyHandler) clear(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")

	if err := h.chatlog.Delete(r.Context(), userID); err != nil {
		h.logger.Error("failed to delete history", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "delete_failed", "failed to delete history")
		return
	}

	if h.threads != nil {
		if err := h.threads.Delete(r.Context(), userID); err != nil {
			h.logger.Error("failed to delete thread state", "user_id", userID, "error", err)
			writeError(w, http.StatusInternalServerError, "delete_failed", "failed to delete conversation state")
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "chat history deleted",
	})
}
