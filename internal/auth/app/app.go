package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tallystack/tallyauth/internal/auth/cache"
	httpapi "github.com/tallystack/tallyauth/internal/auth/http"
	"github.com/tallystack/tallyauth/internal/auth/identity"
	"github.com/tallystack/tallyauth/internal/auth/service"
	"github.com/tallystack/tallyauth/internal/auth/store"
	"github.com/tallystack/tallyauth/internal/auth/store/drivers/sqlite"
	"github.com/tallystack/tallyauth/pkg/cryptox"
	"github.com/tallystack/tallyauth/pkg/jwtx"
	"github.com/tallystack/tallyauth/pkg/slogx"
)

// BuildVersion should be set at build time via ldflags.
const BuildVersion = "v0.1.0"

// Application wires the auth engine together: store, identity verifier,
// session manager, services, and the HTTP surface.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db       store.Store
	signer   *jwtx.Signer
	verifier *identity.LocalVerifier

	sessions         *service.SessionManager
	loginService     *service.LoginService
	userService      *service.UserService
	totpService      *service.TOTPService
	activityService  *service.ActivityService
	retentionService *service.RetentionService

	server *http.Server
	router *httpapi.Router

	cancelEvents context.CancelFunc
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "tallyauth",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	cryptox.SetPepperPath(cfg.PepperFile)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	signer, err := jwtx.NewEphemeralSigner()
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize session signer: %w", err)
	}
	app.signer = signer

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.retentionService.Start()

	// Session bootstrap runs in the background: the cached profile is
	// published immediately and reconciled against the store, so a slow
	// disk or busy database never delays serving.
	ctx, cancel := context.WithCancel(context.Background())
	app.cancelEvents = cancel

	go app.sessions.Bootstrap(ctx)

	events, unsubscribe := app.verifier.Subscribe()
	go func() {
		defer unsubscribe()
		app.sessions.Run(ctx, events)
	}()

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if app.cancelEvents != nil {
		app.cancelEvents()
	}

	app.retentionService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

func (app *Application) initServices() {
	app.verifier = identity.NewLocalVerifier(app.db)

	app.activityService = &service.ActivityService{
		Store:  app.db,
		Logger: app.logger,
	}

	guard := &service.LockoutGuard{
		Store:        app.db,
		MaxAttempts:  app.cfg.MaxLoginAttempts,
		LockDuration: app.cfg.LockDuration,
	}

	app.totpService = &service.TOTPService{
		Store:    app.db,
		Activity: app.activityService,
		Issuer:   app.cfg.Issuer,
	}

	app.sessions = &service.SessionManager{
		Remote:           service.StoreProfileSource{Profiles: app.db.Profiles()},
		Cache:            cache.New(app.cfg.CacheFile),
		Activity:         app.activityService,
		Logger:           app.logger,
		ReconcileTimeout: app.cfg.ReconcileTimeout,
	}

	app.loginService = &service.LoginService{
		Store:    app.db,
		Verifier: app.verifier,
		Notifier: app.verifier,
		Guard:    guard,
		TOTP:     app.totpService,
		Sessions: app.sessions,
		Activity: app.activityService,
		Bootstrap: service.BootstrapAdmin{
			Username: app.cfg.BootstrapUsername,
			Password: app.cfg.BootstrapPassword,
			Email:    app.cfg.BootstrapEmail,
			FullName: app.cfg.BootstrapFullName,
		},
	}

	app.userService = &service.UserService{
		Store:    app.db,
		Verifier: app.verifier,
		Guard:    guard,
		Sessions: app.sessions,
		Activity: app.activityService,
	}

	app.retentionService = service.NewRetentionService(
		app.db,
		app.logger,
		app.cfg.RetentionInterval,
		app.cfg.ActivityMaxAge,
	)
}

func (app *Application) initHTTP() {
	app.router = httpapi.NewRouter(
		app.signer,
		app.cfg.Issuer,
		BuildVersion,
		app.cfg.SessionTTL,
		app.db,
		app.logger,
	)
	app.router.LoginService = app.loginService
	app.router.UserService = app.userService
	app.router.TOTPService = app.totpService
	app.router.ActivityService = app.activityService
	app.router.Sessions = app.sessions
	app.router.ApplyRoutes()

	app.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", app.cfg.Port),
		Handler: app.router,
	}
}
