package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"energy-agent/internal/auth"
	"energy-agent/internal/domain"
	"energy-agent/internal/integrations/inference"
	"energy-agent/internal/metrics"
	"energy-agent/internal/middleware"
	"energy-agent/internal/ratelimit"
	"energy-agent/internal/repository"
	"energy-agent/internal/testutil"
	"energy-agent/internal/usecase"
)

var testSecret = []byte("test-hmac-secret")

type stubModel struct {
	reply inference.Reply
	err   error
}

func (s *stubModel) Generate(context.Context, string) (inference.Reply, error) {
	return s.reply, s.err
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type testEnv struct {
	handler http.Handler
	repo    *repository.Client
	db      *testutil.MemoryDynamo
	model   *stubModel
	metrics *metrics.Prometheus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewMemoryDynamo()
	repo, err := repository.New(db, "energy-test")
	require.NoError(t, err)

	limiter, err := ratelimit.NewMemory(2, time.Minute)
	require.NoError(t, err)
	model := &stubModel{reply: inference.Reply{Kind: inference.KindGenerated, Text: "Seal the gaps around your doors."}}
	recorder := metrics.NewPrometheus()

	chat, err := usecase.NewChatService(repo, limiter, model,
		usecase.WithTranscripts(repo), usecase.WithChatMetrics(recorder))
	require.NoError(t, err)
	profiles, err := usecase.NewProfileService(repo)
	require.NoError(t, err)
	catalog, err := usecase.NewCatalogService(repo)
	require.NoError(t, err)

	h, err := NewRouter(Deps{
		Chat:         chat,
		Profiles:     profiles,
		Catalog:      catalog,
		Verifier:     auth.NewJWTVerifier(auth.Config{HMACSecret: testSecret}),
		Metrics:      recorder,
		HealthChecks: map[string]HealthChecker{"dynamodb": repo},
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return &testEnv{handler: h, repo: repo, db: db, model: model, metrics: recorder}
}

func signToken(t *testing.T, uid, email string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   uid,
		"email": email,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString(testSecret)
	require.NoError(t, err)
	return s
}

func (e *testEnv) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestNewRouter_ValidatesDependencies(t *testing.T) {
	_, err := NewRouter(Deps{})
	require.Error(t, err)
}

func TestChat_HappyPath(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"user_id":"u1","message":"How do I save energy?"}`))
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	out := decode[chatResponse](t, rec)
	require.Equal(t, "Seal the gaps around your doors.", out.Reply)
	require.Equal(t, "req-42", out.RequestID)

	turns, err := env.repo.RecentChatTurns(context.Background(), "u1", 5)
	require.NoError(t, err)
	require.Len(t, turns, 1)
}

func TestChat_ErrorStatuses(t *testing.T) {
	cases := []struct {
		name     string
		body     string
		modelErr error
		status   int
		code     string
	}{
		{name: "malformed body", body: `{"user_id":`, status: http.StatusBadRequest, code: "INVALID_INPUT"},
		{name: "empty message", body: `{"user_id":"u1","message":" "}`, status: http.StatusBadRequest, code: "INVALID_INPUT"},
		{name: "too long", body: `{"user_id":"u1","message":"` + strings.Repeat("a", 1001) + `"}`, status: http.StatusBadRequest, code: "INVALID_INPUT"},
		{name: "not configured", body: `{"user_id":"u1","message":"hi"}`, modelErr: inference.ErrNotConfigured, status: http.StatusServiceUnavailable, code: "SERVICE_UNAVAILABLE"},
		{name: "upstream", body: `{"user_id":"u1","message":"hi"}`, modelErr: &inference.HTTPStatusError{StatusCode: 500}, status: http.StatusBadGateway, code: "UPSTREAM_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.model.err = tc.modelErr

			rec := env.do(t, http.MethodPost, "/chat", tc.body, "")
			require.Equal(t, tc.status, rec.Code)
			body := decode[middleware.ErrorBody](t, rec)
			require.Equal(t, tc.code, body.Error)
			require.NotEmpty(t, body.RequestID)
		})
	}
}

func TestChat_RateLimited(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/chat", `{"user_id":"u1","message":"hi"}`, "").Code)
	}
	rec := env.do(t, http.MethodPost, "/chat", `{"user_id":"u1","message":"hi"}`, "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "Rate limit exceeded. Try again later.", decode[middleware.ErrorBody](t, rec).Message)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/chat", `{"user_id":"u2","message":"hi"}`, "").Code)
}

func TestAuthMe(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/auth/me", "", signToken(t, "u1", "u1@example.com"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, meResponse{UID: "u1", Email: "u1@example.com"}, decode[meResponse](t, rec))

	rec = env.do(t, http.MethodGet, "/auth/me", "", "garbage")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decode[middleware.ErrorBody](t, rec)
	require.Equal(t, "UNAUTHORIZED", body.Error)
	require.Equal(t, "Invalid token", body.Message)

	require.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/auth/me", "", "").Code)
}

func TestProfileRoutes(t *testing.T) {
	env := newTestEnv(t)
	token := signToken(t, "u1", "")

	rec := env.do(t, http.MethodGet, "/users/u1", "", token)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPut, "/users/u1", `{"location":"QLD","family_size":4}`, token)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/users/u1", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"location":"QLD","family_size":4}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/users/u2", "", token)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPut, "/users/u1", `["not","an","object"]`, token)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/users/u1", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuditRoutes(t *testing.T) {
	env := newTestEnv(t)
	token := signToken(t, "u1", "")

	require.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/users/u1/audits/latest", "", token).Code)
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/users/u1/audits", `{"answers":{}}`, token).Code)

	rec := env.do(t, http.MethodPost, "/users/u1/audits", `{"answers":{"heating":"gas","windows":2}}`, token)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[auditCreatedResponse](t, rec)
	require.NotEmpty(t, created.ID)
	require.NotEmpty(t, created.Timestamp)

	rec = env.do(t, http.MethodGet, "/users/u1/audits/latest", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	latest := decode[domain.Audit](t, rec)
	require.Equal(t, created.ID, latest.ID)
	require.Equal(t, "gas", latest.Answers["heating"])

	rec = env.do(t, http.MethodGet, "/users/u1/chats", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"chats":[]}`, rec.Body.String())
}

func TestCatalogRoutes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.repo.PutDocument(ctx, domain.CollectionRebates, "federal_sres",
		domain.Rebate{ID: "federal_sres", Name: "SRES", Level: "federal", Region: domain.NationwideRegion}.Document()))
	require.NoError(t, env.repo.PutDocument(ctx, domain.CollectionRebates, "vic_solar_homes",
		domain.Rebate{ID: "vic_solar_homes", Name: "Solar Homes", Level: "state", Region: "VIC"}.Document()))
	require.NoError(t, env.repo.PutDocument(ctx, domain.CollectionContractors, "c1",
		domain.Contractor{ID: "c1", Name: "Sunny", Services: []string{"solar"}, Region: "VIC"}.Document()))

	rec := env.do(t, http.MethodGet, "/rebates?region=nsw", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rebates := decode[rebatesResponse](t, rec)
	require.Len(t, rebates.Rebates, 1)
	require.Equal(t, "federal_sres", rebates.Rebates[0].ID)

	rec = env.do(t, http.MethodGet, "/contractors?region=VIC&service=Solar", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[contractorsResponse](t, rec).Contractors, 1)

	env.db.QueryErr = errors.New("throttled")
	rec = env.do(t, http.MethodGet, "/rebates", "", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NotContains(t, rec.Body.String(), "throttled")
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", "", "").Code)

	rec := env.do(t, http.MethodGet, "/readyz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decode[healthResponse](t, rec).Checks["dynamodb"])

	env.db.PingErr = errors.New("describe table energy-docs at http://localhost:8000: not found")
	rec = env.do(t, http.MethodGet, "/readyz", "", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "error", decode[healthResponse](t, rec).Checks["dynamodb"])
	require.NotContains(t, rec.Body.String(), "energy-docs")
	require.NotContains(t, rec.Body.String(), "localhost")

	env.do(t, http.MethodPost, "/chat", `{"user_id":"u1","message":"hi"}`, "")
	rec = env.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `energy_agent_chat_requests_total{code="none",outcome="ok"} 1`)
	require.Contains(t, rec.Body.String(), `route="/chat"`)
}

func TestReadyz_ReportsEveryCheck(t *testing.T) {
	var logs bytes.Buffer
	h := &healthHandler{
		checks:  map[string]HealthChecker{"dynamodb": stubPinger{}, "redis": stubPinger{err: errors.New("dial tcp 10.0.0.5:6379: connection refused")}},
		timeout: time.Second,
		logger:  slog.New(slog.NewTextHandler(&logs, nil)),
	}
	rec := httptest.NewRecorder()
	h.readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	out := decode[healthResponse](t, rec)
	require.Equal(t, "unhealthy", out.Status)
	require.Equal(t, "ok", out.Checks["dynamodb"])
	require.Equal(t, "error", out.Checks["redis"])
	require.NotContains(t, rec.Body.String(), "10.0.0.5")
	require.Contains(t, logs.String(), "connection refused")
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/nope", "", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "NOT_FOUND", decode[middleware.ErrorBody](t, rec).Error)
}
