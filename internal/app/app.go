package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"fishcam/internal/config"
	"fishcam/internal/logger"
	"fishcam/internal/repository/sqlite"
	"fishcam/internal/routes"
	"fishcam/internal/services"
	"fishcam/internal/services/ai"
	"fishcam/internal/services/capture"
	"fishcam/internal/services/identity"
	"fishcam/internal/services/localdata"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config   *config.Config
	logger   *logger.Logger
	db       *sqlite.DB
	store    *localdata.Store
	gateway  *identity.Gateway
	detector *ai.NetDetector
	manager  *services.Manager
	server   *http.Server
}

// NewApp builds every component from the configuration.
func NewApp(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	store, err := localdata.NewStore(sqlite.NewLocalDataRepository(db), log.Named("localdata"))
	if err != nil {
		db.Close()
		return nil, err
	}

	signer, err := identity.NewSigner(cfg.SigningKey)
	if err != nil {
		db.Close()
		return nil, err
	}
	gateway := identity.NewGateway(store, identity.PlatformFromConfig(cfg), signer, log.Named("identity"))

	detector := ai.NewNetDetector(cfg, log.Named("detector")) // załaduj model raz, analiza jest sekwencyjna
	manager := services.NewManager(detector, capture.NewSource(cfg, log), store, cfg, log)

	a := &App{
		config:   cfg,
		logger:   log,
		db:       db,
		store:    store,
		gateway:  gateway,
		detector: detector,
		manager:  manager,
	}
	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: routes.SetupRoutes(manager, store, gateway, log),
	}
	return a, nil
}

// Run serves until ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.store.Run(ctx) })
	g.Go(func() error { return a.manager.Run(ctx) })

	g.Go(func() error {
		// Tożsamość tworzona przy starcie, żeby błąd był widoczny od razu
		id, err := a.gateway.DeviceIdentity(ctx)
		if err != nil {
			a.logger.Error("Device identity not available yet: %v", err)
			return nil
		}
		a.logger.Info("🔑 Device %s", id.DeviceID)
		return nil
	})

	g.Go(func() error {
		a.logger.Info("🚀 Fish detection server")
		a.logger.Info("📍 URL: http://localhost:%d", a.config.Port)
		a.logger.Info("🤖 AI Model: %s (min confidence %.2f)", a.config.ModelPath, a.config.MinConfidence)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Close releases the model and the database.
func (a *App) Close() error {
	a.logger.Info("🛑 Shutting down")
	return multierr.Combine(
		a.detector.Close(),
		a.db.Close(),
		a.logger.Sync(),
	)
}
