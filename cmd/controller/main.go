// Package main is the entry point for the labelplane controller.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"labelplane/internal/config"
	"labelplane/internal/controller"
	"labelplane/internal/controller/handlers"
	"labelplane/internal/imposer"
	"labelplane/internal/logger"
	"labelplane/internal/observability"
	"labelplane/internal/store/postgres"
)

func main() {
	// Parse flags
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	flag.Parse()

	// Load Config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logg := logger.New()

	// Setup Database
	ctx := context.Background()
	store, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer store.Close()

	// Run migrations if requested
	if *migrateFlag {
		log.Println("Running database migrations...")
		if err := postgres.Migrate(store.DB()); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Migrations completed successfully")
	}

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "labelplane-controller", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Printf("Failed to shutdown metrics: %v", err)
		}
	}()

	// Observable gauges query the DB only when scraped.
	if err := observability.RegisterRunGauges(store); err != nil {
		log.Printf("Failed to register run gauges: %v", err)
	}

	// Imposition pipeline
	policy := cfg.Policy()
	renderer := imposer.NewHTTPRenderer(cfg.RendererURL, cfg.RendererAPIKey, cfg.RendererAcceptTimeout)

	var waiter imposer.CompletionWaiter
	if cfg.CompletionMode == "callback" {
		waiter = imposer.NewCallbackWatcher(store, cfg.CompletionPollInterval, cfg.CompletionMaxWait)
	}

	newRunner := func(tracker *imposer.Tracker) handlers.BatchRunner {
		return imposer.New(store, renderer, waiter, policy, logg, tracker)
	}

	// Start Server
	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := controller.New(controller.Options{
		Addr:           addr,
		APIKeyHash:     cfg.APIKeyHash,
		CallbackSecret: cfg.CallbackSecret,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		MetricsHandler: metricsHandler,
	}, store, policy, newRunner, logg)

	go func() {
		log.Printf("Labelplane Controller starting on %s", addr)
		if err := srv.Run(ctx); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down controller...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited properly")
}
