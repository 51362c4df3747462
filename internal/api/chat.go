package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/docent-ai/docent/internal/graph"
)

// MaxChatBodyBytes bounds the chat request body.
const MaxChatBodyBytes = 64 * 1024

// ChatEngine runs one chat turn. *graph.Engine satisfies this.
type ChatEngine interface {
	Turn(ctx context.Context, threadID, userInput string) (*graph.Result, error)
}

type chatHandler struct {
	engine  ChatEngine
	chatlog ChatLog
	logger  *slog.Logger
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

// ChatResponse is the body of a successful chat turn.
type ChatResponse struct {
	UserInput  string `json:"user_input"`
	AIResponse string `json:"ai_response"`
	DBID       int64  `json:"db_id"`
}

// send runs a turn and logs the exchange.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	r.Body = http.MaxBytesReader(w, r.Body, MaxChatBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	req.Message = strings.TrimSpace(req.Message)
	req.UserID = strings.TrimSpace(req.UserID)
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "missing_message", "message is required")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "missing_user_id", "user_id is required")
		return
	}

	result, err := h.engine.Turn(r.Context(), req.UserID, req.Message)
	if err != nil {
		h.logger.Error("chat turn failed", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "chat_failed", "failed to generate a response")
		return
	}

	id, err := h.chatlog.Append(r.Context(), req.UserID, req.Message, result.Response)
	if err != nil {
		h.logger.Error("failed to log exchange", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "log_failed", "failed to record the exchange")
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		UserInput:  req.Message,
		AIResponse: result.Response,
		DBID:       id,
	})
}
