package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lexboard/lexboard/internal/config"
	"github.com/lexboard/lexboard/internal/handler"
	"github.com/lexboard/lexboard/pkg/apiclient"
	"github.com/lexboard/lexboard/pkg/health"
	"github.com/lexboard/lexboard/pkg/session"
	"github.com/lexboard/lexboard/pkg/tracing"
)

const serviceName = "session-gateway"

// App wires the session gateway together and owns its lifecycle.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
	server *http.Server

	redisClient    *redis.Client
	tracerShutdown func(context.Context) error
}

// NewApp builds the gateway from configuration.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	a := &App{cfg: cfg, logger: logger, tracerShutdown: tracerShutdown}

	var store session.CredentialStore
	switch cfg.CredentialStore {
	case "redis":
		a.redisClient = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := a.redisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		store = session.NewRedisStore(a.redisClient)
	default:
		store = session.NewMemoryStore()
	}

	registry := session.NewRegistry()
	redirector := handler.NewRedirector()

	clientCfg := apiclient.DefaultConfig(cfg.APIBaseURL)
	clientCfg.Timeout = cfg.RequestTimeout
	clientCfg.SlowTimeout = cfg.SlowRequestTimeout

	client, err := apiclient.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create backend client: %w", err)
	}

	guard := apiclient.NewAuthGuard(store, registry, redirector, apiclient.DefaultAuthGuardConfig(), logger)
	client.OnRequest(apiclient.BearerAuth(store, logger))
	client.OnRequest(apiclient.SanitizeIdentifiers(logger))
	client.OnResponse(guard.Intercept)

	backend := apiclient.NewCircuitBreakerClient(client, apiclient.DefaultCircuitBreakerConfig("backend-api"), logger)

	healthHandler := health.NewHandler()
	healthHandler.Register("backend", backendCheck(cfg.APIBaseURL))
	if a.redisClient != nil {
		healthHandler.Register("redis", func(ctx context.Context) error {
			return a.redisClient.Ping(ctx).Err()
		})
	}

	router := handler.NewRouter(handler.Deps{
		Auth:    handler.NewAuthHandler(client, store, registry, guard, logger),
		Profile: handler.NewProfileHandler(client, logger),
		Proxy:   handler.NewProxy(backend, client, redirector, logger),
		Health:  healthHandler,
		Config:  cfg,
		Logger:  logger,
	})

	a.server = &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.HTTPPort),
		Handler: router,
		// WriteTimeout leaves headroom over the slow-endpoint budget so the
		// gateway never cuts off a relay the backend is still serving.
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.SlowRequestTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return a, nil
}

// backendCheck reports whether the backend answers HTTP at all. Any status
// counts as reachable; only transport failures mark it down.
func backendCheck(baseURL string) func(ctx context.Context) error {
	probe := &http.Client{Timeout: 5 * time.Second}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, http.NoBody)
		if err != nil {
			return err
		}
		resp, err := probe.Do(req)
		if err != nil {
			return err
		}
		return resp.Body.Close()
	}
}

// Run starts the HTTP server and blocks until ctx is canceled, then drains
// in-flight requests and releases resources.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("session gateway listening",
			slog.String("addr", a.server.Addr),
			slog.String("backend", a.cfg.APIBaseURL),
			slog.String("credential_store", a.cfg.CredentialStore),
		)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown", slog.String("error", err.Error()))
	}
	if err := a.tracerShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown", slog.String("error", err.Error()))
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Error("redis close", slog.String("error", err.Error()))
		}
	}

	return nil
}
