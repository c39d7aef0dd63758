package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/coder/quartz"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"

	"licensegate/internal/config"
	"licensegate/internal/events"
	"licensegate/internal/infrastructure"
	"licensegate/internal/license"
	"licensegate/internal/ratelimit"
	"licensegate/internal/security"
	"licensegate/internal/services"
	"licensegate/internal/storage"
	"licensegate/internal/store/memory"
	"licensegate/internal/store/postgres"
	"licensegate/internal/watermark"
	"licensegate/pkg/contracts"
)

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Clock         quartz.Clock

	Keyring   *security.Keyring
	Store     license.Store
	Redis     *redis.Client
	Events    events.Sink
	Metrics   *license.Metrics
	Licenses  services.LicenseService
	Health    *services.HealthService
	Retention *RetentionJob

	Router *chi.Mux
	Server *http.Server

	// closers run in reverse order on Stop
	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// NewApplication loads the configuration and builds the application
func NewApplication(ctx context.Context) (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return New(ctx, cfg, logger, quartz.NewReal())
}

// New builds the application from an already loaded configuration. On
// error every resource opened so far is released.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, clock quartz.Clock) (_ *Application, err error) {
	logger.InfoContext(ctx, "Application starting",
		slog.String("version", contracts.Version),
		slog.String("store", cfg.Database.Driver),
		slog.String("storage", cfg.Storage.Backend),
		slog.String("events", cfg.Events.Sink))

	app := &Application{Config: cfg, Logger: logger, Clock: clock}
	defer func() {
		if err != nil {
			app.closeAll(context.Background())
		}
	}()

	providers, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Telemetry), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	app.OTelProviders = providers
	app.addCloser("telemetry", func() error { return providers.Shutdown(context.Background()) })

	app.Keyring, err = security.NewKeyring(cfg.Security.LookupSecret, cfg.Security.EncryptionSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize keyring: %w", err)
	}

	if err := app.openStore(ctx); err != nil {
		return nil, err
	}

	app.Redis, err = ratelimit.Connect(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to connect redis: %w", err)
	}
	app.addCloser("redis", app.Redis.Close)

	limiter, err := ratelimit.New(app.Redis, cfg.Redis.KeyPrefix, logger, providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}

	artifacts, err := storage.New(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize artifact storage: %w", err)
	}

	var watermarker license.Watermarker
	if cfg.Watermark.URL != "" {
		watermarker = watermark.NewClient(cfg.Watermark, logger)
	}

	app.Events, err = events.New(cfg.Events, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize event sink: %w", err)
	}
	app.addCloser("events", app.Events.Close)

	app.Metrics, err = license.NewMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create license metrics: %w", err)
	}

	deps := license.Dependencies{
		Store:   app.Store,
		Teams:   license.NewTeamCache(app.Store, app.Keyring, clock, cfg.Limits.TeamCacheTTL, cfg.Limits.TeamCacheSize),
		Limiter: limiter,
		Keyring: app.Keyring,
		Audit:   app.Events,
		Clock:   clock,
		Metrics: app.Metrics,
		Logger:  infrastructure.WithComponent(logger, "license"),
		Limits:  cfg.Limits,
	}
	app.Licenses = services.NewLicenseService(
		license.NewVerifier(deps),
		license.NewDistributor(deps, artifacts, watermarker),
		app.Events,
		app.Metrics,
		clock,
		logger,
	)

	redisClient := app.Redis
	app.Health = services.NewHealthService(map[string]services.CheckFunc{
		"store": app.Store.Ping,
		"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	}, 0, clock, logger)

	if cfg.Retention.Enabled {
		app.Retention, err = NewRetentionJob(app.Store, cfg.Retention, clock, logger)
		if err != nil {
			return nil, err
		}
	}

	if err := app.setupRouter(); err != nil {
		return nil, err
	}
	app.createServer()
	return app, nil
}

// openStore selects the policy store named by the configuration
func (a *Application) openStore(ctx context.Context) error {
	cfg := a.Config.Database
	switch cfg.Driver {
	case "memory":
		store := memory.New()
		if cfg.SeedFile != "" {
			if err := store.LoadSeedFile(afero.NewOsFs(), cfg.SeedFile, a.Keyring, a.Clock.Now()); err != nil {
				return err
			}
			a.Logger.InfoContext(ctx, "Memory store seeded", slog.String("seed_file", cfg.SeedFile))
		}
		a.Store = store
	case "postgres":
		db, err := postgres.Connect(ctx, cfg, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to connect database: %w", err)
		}
		store := postgres.NewStore(db)
		a.addCloser("store", store.Close)
		if cfg.RunMigrations {
			if err := postgres.RunMigrations(ctx, db, a.Logger); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		a.Store = store
	default:
		return fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
	return nil
}

func (a *Application) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

func (a *Application) closeAll(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.Logger.ErrorContext(ctx, "Failed to close resource",
				slog.String("resource", c.name),
				slog.String("error", err.Error()))
		}
	}
	a.closers = nil
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Start starts the HTTP server and the background jobs. A listener failure
// cancels ctx through cancel.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("version", contracts.Version),
		slog.Int("port", a.Config.Server.Port),
		slog.String("level", a.Config.Logging.Level))

	if a.Retention != nil {
		a.Retention.Start()
	}

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	a.Logger.InfoContext(ctx, "Application started successfully",
		slog.String("address", a.Server.Addr))
	return nil
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var shutdownErr error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		shutdownErr = fmt.Errorf("server shutdown error: %w", err)
	}

	if a.Retention != nil {
		a.Retention.Stop(shutdownCtx)
	}
	a.closeAll(ctx)

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return shutdownErr
}

// Run runs the application until interrupted
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer func() { _ = infrastructure.CloseLogFile() }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case sig := <-sigChan:
		a.Logger.InfoContext(ctx, "Received interrupt signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		a.Logger.WarnContext(ctx, "Server stopped unexpectedly")
	}

	// The run context may already be canceled by a listener failure
	return a.Stop(context.Background())
}
