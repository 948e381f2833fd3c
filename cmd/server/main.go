/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the visitor pass server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Initialize logging
  3. Initialize SQLite store
  4. Create API handler and router
  5. Start party-day reconciler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS (override environment):
  --port                HTTP server port (PORT, default 8080)
  --db                  SQLite database path (DB_PATH, default parkingpass.db)
                        Use ":memory:" for an in-memory database
  --admin-code          Admin access code (ADMIN_CODE, required)
  --log-level           Log level (LOG_LEVEL, default info)
  --reconcile-interval  Reconciliation period (RECONCILE_INTERVAL, default 1h)
  --allowed-origins     CORS origins (ALLOWED_ORIGINS)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the reconciler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  ADMIN_CODE=secret ./server --db="./data/passes.db"
  ADMIN_CODE=secret ./server --db=":memory:" --port=3000

SEE ALSO:
  - config/config.go: Configuration sources
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/spf13/pflag"

	"github.com/RL96-hub/ParkingPass/api"
	"github.com/RL96-hub/ParkingPass/config"
	"github.com/RL96-hub/ParkingPass/logging"
	"github.com/RL96-hub/ParkingPass/store/sqlite"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	logging.Init("parkingpass", cfg.LogLevel)
	log := logging.Logger

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	defer store.Close()

	// Initialize handler
	handler := api.NewHandler(store)
	router := api.NewRouter(handler, api.RouterOptions{
		AdminCode:      cfg.AdminCode,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	reconciler := api.NewPartyDayReconciler(handler)
	reconciler.CheckInterval = cfg.ReconcileInterval
	reconciler.Start()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.WithField("port", cfg.Port).WithField("db", cfg.DBPath).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	reconciler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	log.Info("Server stopped")
}
