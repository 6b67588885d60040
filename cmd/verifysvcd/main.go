// Command verifysvcd runs the phone-number verification service: it loads
// configuration, wires the session store, rate-limit engine, sender
// registry, selection strategy, and orchestrator, then serves the wire
// surface over HTTP until asked to shut down.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/haloverify/verifysvc/internal/app"
	"github.com/haloverify/verifysvc/internal/config"
	"github.com/haloverify/verifysvc/internal/domain"
	"github.com/haloverify/verifysvc/internal/http/handler"
	appmiddleware "github.com/haloverify/verifysvc/internal/http/middleware"
	"github.com/haloverify/verifysvc/internal/http/router"
	"github.com/haloverify/verifysvc/internal/observability"
	"github.com/haloverify/verifysvc/internal/orchestrator"
	"github.com/haloverify/verifysvc/internal/ratelimit"
	"github.com/haloverify/verifysvc/internal/selection"
	"github.com/haloverify/verifysvc/internal/sender"
	"github.com/haloverify/verifysvc/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	configPath := os.Getenv("VERIFYSVC_CONFIG_PATH")
	cfg, err := config.Load(ctx, configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	runtime, err := observability.InitRuntime(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init observability runtime: %w", err)
	}
	logger := runtime.Logger

	sessionStore, stopStore, err := buildStore(cfg)
	if err != nil {
		return fmt.Errorf("build session store: %w", err)
	}

	limitEngine, rateLimitRedisClient, err := buildRateLimitEngine(cfg)
	if err != nil {
		return fmt.Errorf("build rate limit engine: %w", err)
	}

	registry, err := buildSenderRegistry(cfg)
	if err != nil {
		return fmt.Errorf("build sender registry: %w", err)
	}

	strategy := buildSelectionStrategy(cfg, registry)

	sink, err := buildAttemptSink(cfg)
	if err != nil {
		return fmt.Errorf("build attempt sink: %w", err)
	}

	o := orchestrator.New(sessionStore, limitEngine.Engine, strategy, registry, sink, orchestrator.Config{
		DefaultSessionTTL:   cfg.DefaultSessionTTL,
		SenderCallAttempts:  cfg.SenderCallAttempts,
		DispatchConcurrency: cfg.DispatchConcurrency,
	})

	apiLimiter := appmiddleware.NewRateLimiter(limitEngine.HTTPLimiter(), ratelimit.NewPolicy(600, time.Minute, 1.5), appmiddleware.FailOpen, "api")

	mux := router.NewRouter(router.Dependencies{
		Verification:   handler.NewVerificationHandler(o),
		APIRateLimiter: apiLimiter,
		Readiness: map[string]router.ReadinessChecker{
			"store": func(r *http.Request) error {
				_, err := sessionStore.Get(r.Context(), domain.Session{}.SessionID)
				if err == store.ErrNotFound {
					return nil
				}
				return err
			},
			"ratelimit": func(r *http.Request) error {
				if rateLimitRedisClient == nil {
					return nil
				}
				return rateLimitRedisClient.Ping(r.Context()).Err()
			},
		},
		EnableOTelHTTP: cfg.OTELTracingEnabled,
	})

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	stop := stopStore
	if rateLimitRedisClient != nil {
		stop = func() {
			stopStore()
			_ = rateLimitRedisClient.Close()
		}
	}
	a := app.New(cfg, logger, server, runtime, o, stop)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("verifysvcd listening", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return a.Shutdown(shutdownCtx)
}

func buildStore(cfg *config.Config) (store.SessionStore, func(), error) {
	switch cfg.StoreBackend {
	case config.StoreBackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		return store.NewRedisStore(client, "verifysvc:session:"), func() { _ = client.Close() }, nil
	default:
		mem := store.NewMemoryStore(time.Minute)
		return mem, mem.Close, nil
	}
}

// buildRateLimitEngine wires the limiter backend cfg.RateLimitBackend names.
// The development profile's default config picks
// config.RateLimitBackendAllowAll, so local runs never get rate limited
// while exercising the RPCs. It also returns the Redis client backing the
// limiter, if any, so the caller can register a readiness check and close
// it on shutdown.
func buildRateLimitEngine(cfg *config.Config) (*namedEngine, *redis.Client, error) {
	var limiter ratelimit.Limiter
	var client *redis.Client
	switch cfg.RateLimitBackend {
	case config.RateLimitBackendRedis:
		client = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		limiter = ratelimit.NewRedisLimiter(client, "verifysvc:ratelimit:")
	case config.RateLimitBackendAllowAll:
		limiter = ratelimit.NewAllowAllLimiter()
	default:
		limiter = ratelimit.NewLocalLimiter()
	}

	engine := ratelimit.NewEngine(limiter, defaultPolicy())
	return &namedEngine{Engine: engine, httpLimiter: limiter}, client, nil
}

// namedEngine adapts ratelimit.Engine with the extra accessor the HTTP
// layer needs to reuse the same limiter backend.
type namedEngine struct {
	*ratelimit.Engine
	httpLimiter ratelimit.Limiter
}

func (n *namedEngine) HTTPLimiter() ratelimit.Limiter { return n.httpLimiter }

func defaultPolicy() ratelimit.Policy {
	return ratelimit.NewPolicy(5, time.Minute, 2.0)
}

func buildSenderRegistry(cfg *config.Config) (*sender.Registry, error) {
	adapters := []sender.Adapter{sender.NewLastDigitsAdapter(6, 10 * time.Minute)}

	if cfg.TwilioMessaging.AccountSID != "" {
		adapters = append(adapters, sender.NewMessagingSMSAdapter(sender.MessagingSMSConfig{
			AccountSID:  cfg.TwilioMessaging.AccountSID,
			AuthToken:   cfg.TwilioMessaging.AuthToken,
			MessagingID: cfg.TwilioMessaging.MessagingID,
		}, http.DefaultClient))
	}
	if cfg.TwilioVerify.AccountSID != "" {
		adapters = append(adapters, sender.NewVerifyDelegatedAdapter(sender.VerifyDelegatedConfig{
			AccountSID: cfg.TwilioVerify.AccountSID,
			AuthToken:  cfg.TwilioVerify.AuthToken,
			ServiceSID: cfg.TwilioVerify.ServiceSID,
		}, http.DefaultClient))
	}
	if cfg.MessageBird.AccessKey != "" {
		adapters = append(adapters, sender.NewMessageBirdSMSAdapter(sender.MessageBirdSMSConfig{
			AccessKey:  cfg.MessageBird.AccessKey,
			Originator: cfg.MessageBird.Originator,
		}, http.DefaultClient))
	}

	return sender.NewRegistry(adapters...)
}

func buildSelectionStrategy(cfg *config.Config, registry *sender.Registry) *selection.Strategy {
	opts := []selection.Option{selection.WithFallback(cfg.FallbackAdapter)}
	for _, route := range cfg.Routes {
		opts = append(opts, selection.WithRoute(route.CountryCode, domain.MessageTransport(route.Transport), route.Adapter))
	}
	return selection.NewStrategy(registry, opts...)
}

func buildAttemptSink(cfg *config.Config) (orchestrator.AttemptSink, error) {
	var dialector gorm.Dialector
	switch cfg.SinkDriver {
	case config.SinkDriverPostgres:
		dialector = postgres.Open(cfg.SinkDSN)
	default:
		dialector = sqlite.Open(cfg.SinkDSN)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open attempt sink database: %w", err)
	}
	return orchestrator.NewGormAttemptSink(db)
}
