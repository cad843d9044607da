package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"energy-agent/internal/middleware"
	"energy-agent/internal/usecase"
)

type ChatUseCase interface {
	Chat(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
}

type chatRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

type chatResponse struct {
	Reply     string `json:"reply"`
	RequestID string `json:"request_id"`
}

type chatHandler struct {
	uc     ChatUseCase
	logger *slog.Logger
}

// POST /chat
func (h *chatHandler) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	out, err := h.uc.Chat(r.Context(), usecase.ChatInput{
		UserID:    req.UserID,
		Message:   req.Message,
		RequestID: middleware.GetRequestID(r.Context()),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.logger.InfoContext(r.Context(), "chat answered",
		slog.String("request_id", out.RequestID),
		slog.String("user_id", req.UserID),
		slog.Int("reply_len", len(out.Reply)),
	)
	writeJSON(w, http.StatusOK, chatResponse{Reply: out.Reply, RequestID: out.RequestID})
}
