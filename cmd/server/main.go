package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	httpapi "payungku-returns/internal/api/http"
	"payungku-returns/internal/config"
	"payungku-returns/internal/flow"
	"payungku-returns/internal/jobs"
	"payungku-returns/internal/logger"
	"payungku-returns/internal/notify"
	"payungku-returns/internal/payment"
	"payungku-returns/internal/rentalapi"
	"payungku-returns/internal/repository/postgres"
	"payungku-returns/internal/scheduler"
	"payungku-returns/internal/security"
	"payungku-returns/internal/session"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting PayungKu return gateway...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "address", cfg.GetServerAddress())
	logger.Info("Core API configuration", "base_url", cfg.CoreAPI.BaseURL, "timeout_seconds", cfg.CoreAPI.TimeoutSeconds)
	logger.Info("Database configuration", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database, "user", cfg.Database.User)

	// Initialize Database
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Test database connection
	if err := db.Ping(); err != nil {
		logger.Error("Failed to ping database", "error", err)
		log.Fatalf("Failed to ping database: %v", err)
	}
	logger.Info("Database connection established")

	// Initialize Repositories
	store := postgres.NewStore(db)

	// Initialize Security
	tokenValidator := security.NewTokenValidator(cfg.JWT.Secret)

	// Initialize external collaborators
	coreAPI := rentalapi.NewClient(cfg.CoreAPI.BaseURL, time.Duration(cfg.CoreAPI.TimeoutSeconds)*time.Second)
	gateway := payment.NewSnapGateway(cfg.Snap.BaseURL, cfg.Snap.ServerKey)
	bridge := payment.NewBridge(gateway)
	mailer := notify.NewSupportMailer(
		cfg.SendGrid.APIKey,
		cfg.SendGrid.FromEmail,
		cfg.SendGrid.FromName,
		cfg.SendGrid.SupportEmail,
	)

	// Initialize session manager; every session gets a controller wired to
	// the same collaborators.
	deps := flow.Deps{
		Resolver:  coreAPI,
		Submitter: coreAPI,
		Checkout:  bridge,
		Notifier:  mailer,
	}
	factory := func(id, token, locationID string) *flow.Controller {
		return flow.New(id, token, locationID, deps,
			flow.WithPenaltyWindow(cfg.Session.PenaltyWindowSeconds))
	}
	sessions := session.NewManager(factory, store, time.Duration(cfg.Session.TTLMinutes)*time.Minute)

	// Initialize HTTP handlers
	returnHandler := httpapi.NewReturnHandler(sessions, tokenValidator)
	webhookHandler := httpapi.NewWebhookHandler(sessions, cfg.Snap.ServerKey)
	router := httpapi.NewRouter(returnHandler, webhookHandler)

	// Initialize Scheduler
	jobRunner := jobs.NewJobRunner(sessions, store, cfg)
	sched := scheduler.NewScheduler(jobRunner)
	sched.Start()
	defer sched.Stop()

	// Start HTTP server
	srv := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			log.Fatalf("Failed to serve: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("Shutdown signal received", "signal", fmt.Sprintf("%v", sig))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	logger.Info("Server stopped")
}
