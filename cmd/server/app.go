package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/studypal-api/internal/billing"
	"github.com/phrazzld/studypal-api/internal/clock"
	"github.com/phrazzld/studypal-api/internal/config"
	"github.com/phrazzld/studypal-api/internal/generation"
	"github.com/phrazzld/studypal-api/internal/guard"
	"github.com/phrazzld/studypal-api/internal/platform/gemini"
	"github.com/phrazzld/studypal-api/internal/platform/memory"
	"github.com/phrazzld/studypal-api/internal/platform/metrics"
	"github.com/phrazzld/studypal-api/internal/platform/postgres"
	"github.com/phrazzld/studypal-api/internal/platform/redisstore"
	"github.com/phrazzld/studypal-api/internal/redact"
	"github.com/phrazzld/studypal-api/internal/service"
	"github.com/phrazzld/studypal-api/internal/service/auth"
	"github.com/phrazzld/studypal-api/internal/store"
	"github.com/phrazzld/studypal-api/internal/trial"
	"github.com/redis/go-redis/v9"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config  *config.Config
	logger  *slog.Logger
	clock   clock.Clock
	metrics *metrics.Recorder

	// Connections; nil unless the matching backend is configured.
	db    *sql.DB
	redis *redis.Client

	// accountStore is nil when store.backend is "none".
	accountStore store.AccountStore

	guard          *guard.Guard
	trialCounter   *trial.Counter
	accountService service.AccountService
	jwtService     auth.JWTService
	assistant      generation.Assistant
	billing        *billing.Processor
}

// newApplication creates a new application instance with all dependencies
// initialized. On error every connection opened so far is closed.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *application, err error) {
	app := &application{
		config:  cfg,
		logger:  logger,
		clock:   clock.System(),
		metrics: metrics.New(),
	}
	defer func() {
		if err != nil {
			app.cleanup()
		}
	}()

	if err = app.openStore(ctx); err != nil {
		return nil, err
	}

	app.guard = guard.New(app.accountStore,
		guard.WithClock(app.clock),
		guard.WithStoreTimeout(cfg.Entitlement.StoreTimeout),
		guard.WithEnforcementDisabled(cfg.Entitlement.EnforcementDisabled),
		guard.WithLogger(logger),
		guard.WithRecorder(app.metrics),
	)
	if cfg.Entitlement.EnforcementDisabled {
		logger.Warn("entitlement enforcement is disabled; every identified request is allowed")
	}
	if app.accountStore == nil && !cfg.Entitlement.EnforcementDisabled {
		logger.Warn("no account store configured; gated routes will reject with store unavailable")
	}
	if cfg.IsProduction() && cfg.Auth.IdentitySource == config.IdentityHeader {
		logger.Warn("header identity in production; the identity header must be set by a trusted proxy",
			"header", cfg.Auth.IdentityHeader)
	}

	app.trialCounter = trial.NewCounter(app.accountStore,
		trial.WithLogger(logger),
		trial.WithRecorder(app.metrics))
	app.accountService = service.NewAccountService(app.accountStore, app.clock, logger)

	if cfg.Auth.IdentitySource == config.IdentityJWT {
		app.jwtService, err = auth.NewJWTService(cfg.Auth, app.clock)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
		}
		logger.Info("JWT identity initialized", "token_lifetime", cfg.Auth.TokenLifetime.String())
	}

	if cfg.LLM.GeminiAPIKey != "" {
		app.assistant, err = gemini.NewAssistant(ctx, cfg.LLM, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize assistant: %w", err)
		}
		logger.Info("assistant initialized", "model", cfg.LLM.ModelName)
	} else {
		app.assistant = generation.Disabled{}
		logger.Info("assistant disabled: no gemini api key configured")
	}

	if cfg.Billing.WebhookSecret != "" {
		app.billing, err = billing.NewProcessor(cfg.Billing.WebhookSecret, app.accountService, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize billing: %w", err)
		}
	}

	return app, nil
}

// openStore connects the configured account store backend and wraps it
// with latency metrics.
func (app *application) openStore(ctx context.Context) error {
	cfg := app.config
	var raw store.AccountStore

	switch cfg.Store.Backend {
	case config.BackendNone:
		return nil
	case config.BackendMemory:
		raw = memory.NewAccountStore()
	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to open database: %s", redact.Error(err))
		}
		app.db = db
		raw = postgres.NewPostgresAccountStore(db, app.logger)
		app.logger.Info("postgres account store connected", "database", postgres.MaskURL(cfg.Database.URL))
	case config.BackendRedis:
		client, err := redisstore.Open(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to open redis: %s", redact.Error(err))
		}
		app.redis = client
		raw = redisstore.NewAccountStore(client, app.logger)
		app.logger.Info("redis account store connected", "addr", cfg.Redis.Addr)
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	app.accountStore = metrics.InstrumentStore(raw, cfg.Store.Backend, app.metrics)
	return nil
}

// cleanup releases every open connection.
func (app *application) cleanup() {
	var errs []error
	if app.db != nil {
		errs = append(errs, app.db.Close())
		app.db = nil
	}
	if app.redis != nil {
		errs = append(errs, app.redis.Close())
		app.redis = nil
	}
	if err := errors.Join(errs...); err != nil {
		app.logger.Error("failed to close connections", redact.Attr(err))
	}
}
