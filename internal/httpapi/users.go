package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"energy-agent/internal/auth"
	"energy-agent/internal/domain"
)

type ProfileUseCase interface {
	GetProfile(ctx context.Context, caller, userID string) (domain.Document, error)
	PutProfile(ctx context.Context, caller, userID string, doc domain.Document) (domain.Document, error)
	SubmitAudit(ctx context.Context, caller, userID string, answers map[string]any) (domain.Audit, error)
	LatestAudit(ctx context.Context, caller, userID string) (domain.Audit, error)
	RecentChats(ctx context.Context, caller, userID string) ([]domain.ChatTurn, error)
}

type meResponse struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

type auditRequest struct {
	Answers map[string]any `json:"answers"`
}

type auditCreatedResponse struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
}

type chatsResponse struct {
	Chats []domain.ChatTurn `json:"chats"`
}

type userHandler struct {
	uc     ProfileUseCase
	logger *slog.Logger
}

func caller(r *http.Request) string {
	id, _ := auth.IdentityFromContext(r.Context())
	return id.UID
}

// GET /auth/me
func me(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	writeJSON(w, http.StatusOK, meResponse{UID: id.UID, Email: id.Email})
}

// GET /users/{id}
func (h *userHandler) getProfile(w http.ResponseWriter, r *http.Request) {
	doc, err := h.uc.GetProfile(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// PUT /users/{id}
func (h *userHandler) putProfile(w http.ResponseWriter, r *http.Request) {
	var doc map[string]any
	if err := decodeJSON(r, &doc); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if doc == nil {
		writeError(w, r, h.logger, invalidBody(errors.New("profile must be a JSON object")))
		return
	}
	stored, err := h.uc.PutProfile(r.Context(), caller(r), chi.URLParam(r, "id"), domain.Document(doc))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

// POST /users/{id}/audits
func (h *userHandler) submitAudit(w http.ResponseWriter, r *http.Request) {
	var req auditRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	audit, err := h.uc.SubmitAudit(r.Context(), caller(r), chi.URLParam(r, "id"), req.Answers)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, auditCreatedResponse{
		ID:        audit.ID,
		Timestamp: audit.Timestamp.UTC().Format(time.RFC3339Nano),
	})
}

// GET /users/{id}/audits/latest
func (h *userHandler) latestAudit(w http.ResponseWriter, r *http.Request) {
	audit, err := h.uc.LatestAudit(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, audit)
}

// GET /users/{id}/chats
func (h *userHandler) recentChats(w http.ResponseWriter, r *http.Request) {
	turns, err := h.uc.RecentChats(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if turns == nil {
		turns = []domain.ChatTurn{}
	}
	writeJSON(w, http.StatusOK, chatsResponse{Chats: turns})
}
