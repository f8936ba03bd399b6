// Package main is a one-shot imposition batch runner. It dispatches an
// order's planned runs to the renderer from the command line, without
// going through the controller API. Intended for operators recovering
// from renderer outages and for scheduled re-runs.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"labelplane/internal/config"
	"labelplane/internal/imposer"
	"labelplane/internal/logger"
	"labelplane/internal/observability"
	"labelplane/internal/store/postgres"
)

func main() {
	orderFlag := flag.String("order-id", "", "Order UUID to impose (required)")
	reprocessFlag := flag.Bool("reprocess", false, "Reset and re-impose runs that already succeeded")
	flag.Parse()

	orderID, err := uuid.Parse(*orderFlag)
	if err != nil {
		log.Fatalf("Invalid -order-id: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logg := logger.New()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer store.Close()

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "labelplane-imposer", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
		}
	}()

	policy := cfg.Policy()
	renderer := imposer.NewHTTPRenderer(cfg.RendererURL, cfg.RendererAPIKey, cfg.RendererAcceptTimeout)

	var waiter imposer.CompletionWaiter
	if cfg.CompletionMode == "callback" {
		waiter = imposer.NewCallbackWatcher(store, cfg.CompletionPollInterval, cfg.CompletionMaxWait)
	}

	orch := imposer.New(store, renderer, waiter, policy, logg, nil)

	result, err := orch.ImposeOrder(ctx, orderID, *reprocessFlag)
	if err != nil {
		if errors.Is(err, imposer.ErrCircuitOpen) && result != nil {
			logg.Error("batch aborted by circuit breaker",
				"order_id", orderID,
				"succeeded", result.Succeeded,
				"failed", result.Failed,
				"skipped", result.Skipped)
			os.Exit(1)
		}
		log.Fatalf("Imposition failed: %v", err)
	}

	logg.Info("batch finished",
		"order_id", orderID,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"skipped", result.Skipped)
	if result.Failed > 0 {
		os.Exit(1)
	}
}
