package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"tutorhub/internal/alert"
	"tutorhub/internal/api"
	"tutorhub/internal/config"
	"tutorhub/internal/database"
	"tutorhub/internal/registry"
	"tutorhub/internal/websocket"
	pkgdatabase "tutorhub/pkg/database"
)

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config      *config.Config
	dbManager   *database.Manager
	registry    *registry.Registry
	detector    *alert.Detector
	apiServer   *api.Server
	httpServer  *http.Server
	cleanupStop chan struct{}
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Database -> Registry -> Detector -> API -> WebSocket -> HTTP
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: Initialize database manager (foundation layer)
	dbConfig := &pkgdatabase.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  10,
		ConnMaxLifetime: cfg.Database.Timeout,
		ConnMaxIdleTime: cfg.Database.Timeout / 3,
	}

	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	// STEP 1.5: Apply database migrations to ensure schema is up to date
	migrationManager := pkgdatabase.NewMigrationManager(dbManager.GetDB())
	if err := migrationManager.ApplyMigrations(); err != nil {
		dbManager.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	log.Println("Database migrations applied successfully")

	// STEP 2: Initialize connection registry for presence tracking
	reg := registry.NewRegistry()

	// STEP 3: Initialize the behavior alert detector
	detector := alert.NewDetector(cfg.Alert.Window, cfg.Alert.Threshold)

	// STEP 4: Initialize API server with all business dependencies
	apiServer := api.NewServer(dbManager, reg, detector)

	// STEP 5: Initialize WebSocket handler and mount it on the API router
	wsHandler := websocket.NewHandler(reg, cfg.WebSocket)
	apiServer.Router().Get("/ws/{user_id}", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:      cfg,
		dbManager:   dbManager,
		registry:    reg,
		detector:    detector,
		apiServer:   apiServer,
		httpServer:  httpServer,
		cleanupStop: make(chan struct{}),
	}, nil
}

// Start begins application execution
// Startup coordination ensures background maintenance is running before
// the HTTP server accepts connections
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting Tutorhub application on %s", app.httpServer.Addr)

	// STEP 1: Start detector maintenance (evicts idle pause windows)
	go app.runDetectorCleanup()

	// STEP 2: Start HTTP server (accepts connections)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Verify server is ready before returning
	select {
	case err := <-serverErrCh:
		close(app.cleanupStop)
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("Tutorhub application started successfully")
		return nil
	case <-ctx.Done():
		close(app.cleanupStop)
		return ctx.Err()
	}
}

// runDetectorCleanup periodically drops pause windows for users that have
// gone quiet so detector state stays bounded by active users.
func (app *Application) runDetectorCleanup() {
	ticker := time.NewTicker(app.config.Alert.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			app.detector.Cleanup()
		case <-app.cleanupStop:
			return
		}
	}
}

// Stop gracefully shuts down the application
// Reverse dependency order: HTTP -> Detector maintenance -> Database
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down Tutorhub application")

	// STEP 1: Stop accepting new connections
	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// STEP 2: Stop detector maintenance
	select {
	case <-app.cleanupStop:
		// already closed by a failed Start
	default:
		close(app.cleanupStop)
	}

	// STEP 3: Close database connections
	if err := app.dbManager.Close(); err != nil {
		log.Printf("Database shutdown error: %v", err)
	}

	log.Printf("Tutorhub application shutdown complete")
	return nil
}

// GetAddr returns the server address for external connections
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}
