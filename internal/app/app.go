// Package app wires configuration, clients and use cases into the HTTP
// handler shared by the server and Lambda entry points.
package app

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/redis/go-redis/v9"

	"energy-agent/internal/auth"
	"energy-agent/internal/config"
	"energy-agent/internal/httpapi"
	"energy-agent/internal/integrations/inference"
	"energy-agent/internal/integrations/paramstore"
	"energy-agent/internal/metrics"
	"energy-agent/internal/middleware"
	"energy-agent/internal/ratelimit"
	"energy-agent/internal/repository"
	"energy-agent/internal/usecase"
)

const keyLoadTimeout = 10 * time.Second

// DynamoAPI is the DynamoDB surface the repository needs.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

type SSMAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Clients are the external connections the app is built on. SSM and Redis
// are optional.
type Clients struct {
	Dynamo DynamoAPI
	SSM    SSMAPI
	Redis  *redis.Client
}

// App is the assembled service.
type App struct {
	Handler  http.Handler
	Recorder metrics.Recorder
	Repo     *repository.Client

	memory      *ratelimit.Memory
	window      time.Duration
	redis       *redis.Client
	verifier    *auth.JWTVerifier
	keySource   string
	keysRefresh time.Duration
	logger      *slog.Logger
}

func New(cfg *config.Config, clients Clients, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	if clients.Dynamo == nil {
		return nil, errors.New("app: dynamodb client must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var recorder metrics.Recorder = metrics.NewNoop()
	if cfg.MetricsEnabled {
		recorder = metrics.NewPrometheus()
	}

	repo, err := repository.New(clients.Dynamo, cfg.DocumentTable)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	checks := map[string]httpapi.HealthChecker{"dynamodb": repo}

	memory, err := ratelimit.NewMemory(cfg.ChatMaxRequests, cfg.ChatWindow())
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	var limiter ratelimit.Limiter = memory
	if clients.Redis != nil {
		shared, err := ratelimit.NewRedis(clients.Redis, cfg.ChatMaxRequests, cfg.ChatWindow())
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		limiter, err = ratelimit.NewFallback(shared, cfg.FallbackMode(), memory, logger, func(mode ratelimit.FallbackMode) {
			recorder.IncLimiterFallback(string(mode))
		})
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		checks["redis"] = shared
	}

	tokens, err := tokenSource(cfg, clients.SSM)
	if err != nil {
		return nil, err
	}
	model, err := inference.NewClient(cfg.ModelEndpoint(), tokens,
		inference.WithTimeout(cfg.ModelTimeout),
		inference.WithMaxRetries(cfg.ModelMaxRetries),
		inference.WithBackoff(cfg.ModelBackoffBase, cfg.ModelBackoffMax),
		inference.WithRateLimit(cfg.ModelRPS, cfg.ModelBurst),
		inference.WithParameters(inference.Parameters{
			MaxNewTokens: cfg.ModelMaxTokens,
			Temperature:  cfg.ModelTemperature,
		}),
		inference.WithLogger(logger),
		inference.WithRetryHook(func(_ int, status int, _ time.Duration) {
			recorder.IncUpstreamRetry(status)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	chat, err := usecase.NewChatService(repo, limiter, model,
		usecase.WithMaxInputLength(cfg.ChatMaxInputLen),
		usecase.WithTranscripts(repo),
		usecase.WithChatMetrics(recorder),
		usecase.WithChatLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	profiles, err := usecase.NewProfileService(repo)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	catalog, err := usecase.NewCatalogService(repo)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	verifier, err := newVerifier(cfg)
	if err != nil {
		return nil, err
	}

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.GetCORSAllowedOrigins()

	handler, err := httpapi.NewRouter(httpapi.Deps{
		Chat:         chat,
		Profiles:     profiles,
		Catalog:      catalog,
		Verifier:     verifier,
		Metrics:      recorder,
		HealthChecks: checks,
		CORS:         cors,
		MaxBodyBytes: cfg.MaxRequestBodySize,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	return &App{
		Handler:     handler,
		Recorder:    recorder,
		Repo:        repo,
		memory:      memory,
		window:      cfg.ChatWindow(),
		redis:       clients.Redis,
		verifier:    verifier,
		keySource:   cfg.AuthPublicKeys,
		keysRefresh: cfg.AuthKeysRefresh,
		logger:      logger,
	}, nil
}

// StartJanitor evicts idle in-memory limiter keys until ctx is done. The
// returned channel closes once the janitor has exited.
func (a *App) StartJanitor(ctx context.Context) <-chan struct{} {
	return a.memory.StartJanitor(ctx, a.window)
}

// StartKeyRefresh reloads the RS256 key set on the configured interval until
// ctx is done. Without a key source or interval the returned channel is
// already closed.
func (a *App) StartKeyRefresh(ctx context.Context) <-chan struct{} {
	if a.keySource == "" || a.keysRefresh <= 0 {
		done := make(chan struct{})
		close(done)
		return done
	}
	return a.verifier.RefreshKeys(ctx, a.keysRefresh, func(ctx context.Context) (map[string]*rsa.PublicKey, error) {
		return loadKeys(ctx, a.keySource)
	}, a.logger)
}

func loadKeys(ctx context.Context, source string) (map[string]*rsa.PublicKey, error) {
	ctx, cancel := context.WithTimeout(ctx, keyLoadTimeout)
	defer cancel()
	return auth.FetchPublicKeys(ctx, nil, source)
}

// Close releases the shared limiter connection, if any.
func (a *App) Close(context.Context) error {
	if a.redis == nil {
		return nil
	}
	return a.redis.Close()
}

func tokenSource(cfg *config.Config, api SSMAPI) (inference.TokenSource, error) {
	var sources []inference.TokenSource
	if cfg.ModelAPIToken != "" {
		sources = append(sources, inference.StaticToken(cfg.ModelAPIToken))
	}
	if cfg.ModelTokenParam != "" {
		if api == nil {
			return nil, errors.New("app: MODEL_TOKEN_PARAM is set but no SSM client is available")
		}
		store, err := paramstore.New(api)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		param, err := inference.NewParamToken(store, cfg.ModelTokenParam, cfg.ModelTokenField)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		sources = append(sources, param)
	}
	return inference.FirstToken(sources...), nil
}

func newVerifier(cfg *config.Config) (*auth.JWTVerifier, error) {
	authCfg := auth.Config{
		Audience: cfg.AuthAudience,
		Issuer:   cfg.AuthIssuer,
		Leeway:   cfg.AuthLeeway,
	}
	if cfg.AuthPublicKeys != "" {
		keys, err := loadKeys(context.Background(), cfg.AuthPublicKeys)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		authCfg.PublicKeys = keys
	}
	if cfg.AuthHMACSecret != "" {
		authCfg.HMACSecret = []byte(cfg.AuthHMACSecret)
	}
	return auth.NewJWTVerifier(authCfg), nil
}
