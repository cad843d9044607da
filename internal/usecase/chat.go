package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"energy-agent/internal/domain"
	"energy-agent/internal/integrations/inference"
	"energy-agent/internal/ratelimit"
)

const defaultMaxInputLen = 1000

// Chat outcomes reported to ChatMetrics.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// ContextReader loads the caller's stored context.
type ContextReader interface {
	GetDocument(ctx context.Context, collection, id string) (domain.Document, error)
	LatestAudit(ctx context.Context, userID string) (domain.Audit, error)
}

type ModelClient interface {
	Generate(ctx context.Context, prompt string) (inference.Reply, error)
}

type TranscriptWriter interface {
	SaveChatTurn(ctx context.Context, turn domain.ChatTurn) error
}

// ChatMetrics is satisfied by metrics.Recorder.
type ChatMetrics interface {
	IncChatOutcome(outcome, code string)
	IncRateLimited()
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

type ChatService struct {
	store       ContextReader
	limiter     ratelimit.Limiter
	model       ModelClient
	transcripts TranscriptWriter
	metrics     ChatMetrics
	logger      *slog.Logger
	maxInputLen int
	now         func() time.Time
}

type ChatOption func(*ChatService)

func WithMaxInputLength(n int) ChatOption {
	return func(s *ChatService) {
		if n > 0 {
			s.maxInputLen = n
		}
	}
}

// WithTranscripts records successful turns. Recording is best effort.
func WithTranscripts(w TranscriptWriter) ChatOption {
	return func(s *ChatService) {
		s.transcripts = w
	}
}

func WithChatMetrics(m ChatMetrics) ChatOption {
	return func(s *ChatService) {
		s.metrics = m
	}
}

func WithChatLogger(logger *slog.Logger) ChatOption {
	return func(s *ChatService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

type ChatInput struct {
	UserID    string
	Message   string
	RequestID string
}

type ChatOutput struct {
	Reply     string
	RequestID string
}

func NewChatService(store ContextReader, limiter ratelimit.Limiter, model ModelClient, opts ...ChatOption) (*ChatService, error) {
	if store == nil {
		return nil, errors.New("usecase: context store must not be nil")
	}
	if limiter == nil {
		return nil, errors.New("usecase: rate limiter must not be nil")
	}
	if model == nil {
		return nil, errors.New("usecase: model client must not be nil")
	}
	s := &ChatService{
		store:       store,
		limiter:     limiter,
		model:       model,
		logger:      slog.Default(),
		maxInputLen: defaultMaxInputLen,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *ChatService) Chat(ctx context.Context, in ChatInput) (ChatOutput, error) {
	out, err := s.chat(ctx, in)
	if s.metrics == nil {
		return out, err
	}
	if err == nil {
		s.metrics.IncChatOutcome(OutcomeOK, "")
		return out, nil
	}
	code := AsError(err).Code
	if code == ErrorInvalidInput || code == ErrorRateLimited {
		s.metrics.IncChatOutcome(OutcomeRejected, string(code))
	} else {
		s.metrics.IncChatOutcome(OutcomeFailed, string(code))
	}
	return out, err
}

func (s *ChatService) chat(ctx context.Context, in ChatInput) (ChatOutput, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return ChatOutput{}, newError(ErrorInvalidInput, "empty_user_id", nil)
	}
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return ChatOutput{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	if utf8.RuneCountInString(message) > s.maxInputLen {
		return ChatOutput{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}
	requestID := strings.TrimSpace(in.RequestID)
	if requestID == "" {
		requestID = newUUID()
	}

	allowed, err := s.limiter.Allow(ctx, userID)
	if err != nil {
		return ChatOutput{}, newError(ErrorDependencyUnavailable, "rate_limiter_error", err)
	}
	if !allowed {
		if s.metrics != nil {
			s.metrics.IncRateLimited()
		}
		return ChatOutput{}, newError(ErrorRateLimited, "rate_limit_exceeded", nil)
	}

	profile, audit, err := s.loadContext(ctx, userID)
	if err != nil {
		return ChatOutput{}, newError(ErrorDependencyUnavailable, "context_read_error", err)
	}

	prompt, err := buildPrompt(profile, audit, message)
	if err != nil {
		return ChatOutput{}, newError(ErrorInternal, "prompt_build_error", err)
	}

	reply, err := s.model.Generate(ctx, prompt)
	if err != nil {
		return ChatOutput{}, classifyModelError(err)
	}
	text := cleanReply(reply.Text)

	s.recordTurn(ctx, domain.ChatTurn{
		UserID:    userID,
		RequestID: requestID,
		Message:   message,
		Reply:     text,
		CreatedAt: s.now().UTC(),
	})

	return ChatOutput{Reply: text, RequestID: requestID}, nil
}

// loadContext reads the profile and latest audit concurrently. Missing
// documents are replaced with placeholders.
func (s *ChatService) loadContext(ctx context.Context, userID string) (any, any, error) {
	var profile, audit any = missingProfile, missingAudit

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		doc, err := s.store.GetDocument(gctx, domain.CollectionUsers, userID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load profile: %w", err)
		}
		profile = doc
		return nil
	})
	g.Go(func() error {
		a, err := s.store.LatestAudit(gctx, userID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load audit: %w", err)
		}
		audit = map[string]any{
			"timestamp": a.Timestamp.UTC().Format(time.RFC3339),
			"answers":   a.Answers,
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return profile, audit, nil
}

func (s *ChatService) recordTurn(ctx context.Context, turn domain.ChatTurn) {
	if s.transcripts == nil {
		return
	}
	if err := s.transcripts.SaveChatTurn(ctx, turn); err != nil {
		s.logger.WarnContext(ctx, "usecase: transcript write failed",
			slog.String("request_id", turn.RequestID),
			slog.String("user_id", turn.UserID),
			slog.String("error", err.Error()),
		)
	}
}

func classifyModelError(err error) *Error {
	if errors.Is(err, inference.ErrNotConfigured) {
		return newError(ErrorServiceUnavailable, "model_not_configured", err)
	}
	if status, ok := upstreamStatusCode(err); ok {
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return newError(ErrorServiceUnavailable, "model_auth_error", err)
		}
		return newError(ErrorUpstream, "model_status_error", err)
	}
	if errors.Is(err, inference.ErrMalformedResponse) {
		return newError(ErrorUpstream, "model_malformed_response", err)
	}
	return newError(ErrorUpstream, "model_network_error", err)
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

var newUUID = func() string {
	return uuid.NewString()
}
