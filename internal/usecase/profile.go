package usecase

import (
	"context"
	"errors"
	"strings"

	"energy-agent/internal/domain"
)

const defaultRecentChats = 20

type ProfileStore interface {
	GetDocument(ctx context.Context, collection, id string) (domain.Document, error)
	PutDocument(ctx context.Context, collection, id string, doc domain.Document) error
	PutAudit(ctx context.Context, audit domain.Audit) (domain.Audit, error)
	LatestAudit(ctx context.Context, userID string) (domain.Audit, error)
	RecentChatTurns(ctx context.Context, userID string, limit int) ([]domain.ChatTurn, error)
}

// ProfileService serves a user's own profile, audits and chat history.
// Every method requires caller to equal the target user.
type ProfileService struct {
	store ProfileStore
}

func NewProfileService(store ProfileStore) (*ProfileService, error) {
	if store == nil {
		return nil, errors.New("usecase: profile store must not be nil")
	}
	return &ProfileService{store: store}, nil
}

func authorize(caller, userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", newError(ErrorInvalidInput, "empty_user_id", nil)
	}
	if caller == "" {
		return "", newError(ErrorUnauthorized, "missing_identity", nil)
	}
	if caller != userID {
		return "", Forbidden("user_mismatch")
	}
	return userID, nil
}

func (s *ProfileService) GetProfile(ctx context.Context, caller, userID string) (domain.Document, error) {
	userID, err := authorize(caller, userID)
	if err != nil {
		return nil, err
	}
	doc, err := s.store.GetDocument(ctx, domain.CollectionUsers, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, newError(ErrorNotFound, "profile_not_found", err)
	}
	if err != nil {
		return nil, newError(ErrorDependencyUnavailable, "profile_read_error", err)
	}
	return doc, nil
}

// PutProfile replaces the whole profile document.
func (s *ProfileService) PutProfile(ctx context.Context, caller, userID string, doc domain.Document) (domain.Document, error) {
	userID, err := authorize(caller, userID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, newError(ErrorInvalidInput, "empty_profile", nil)
	}
	if err := s.store.PutDocument(ctx, domain.CollectionUsers, userID, doc); err != nil {
		return nil, newError(ErrorDependencyUnavailable, "profile_write_error", err)
	}
	return doc, nil
}

func (s *ProfileService) SubmitAudit(ctx context.Context, caller, userID string, answers map[string]any) (domain.Audit, error) {
	userID, err := authorize(caller, userID)
	if err != nil {
		return domain.Audit{}, err
	}
	if len(answers) == 0 {
		return domain.Audit{}, newError(ErrorInvalidInput, "empty_answers", nil)
	}
	audit, err := s.store.PutAudit(ctx, domain.Audit{UserID: userID, Answers: answers})
	if err != nil {
		return domain.Audit{}, newError(ErrorDependencyUnavailable, "audit_write_error", err)
	}
	return audit, nil
}

func (s *ProfileService) LatestAudit(ctx context.Context, caller, userID string) (domain.Audit, error) {
	userID, err := authorize(caller, userID)
	if err != nil {
		return domain.Audit{}, err
	}
	audit, err := s.store.LatestAudit(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Audit{}, newError(ErrorNotFound, "audit_not_found", err)
	}
	if err != nil {
		return domain.Audit{}, newError(ErrorDependencyUnavailable, "audit_read_error", err)
	}
	return audit, nil
}

func (s *ProfileService) RecentChats(ctx context.Context, caller, userID string) ([]domain.ChatTurn, error) {
	userID, err := authorize(caller, userID)
	if err != nil {
		return nil, err
	}
	turns, err := s.store.RecentChatTurns(ctx, userID, defaultRecentChats)
	if err != nil {
		return nil, newError(ErrorDependencyUnavailable, "chat_history_read_error", err)
	}
	return turns, nil
}
