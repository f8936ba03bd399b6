// Package config handles environment variable loading for ports, database strings, etc.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"labelplane/internal/imposer"
)

// Config holds all configuration values for the application.
type Config struct {
	// Database connection string
	DatabaseURL string

	// HTTP server port for the controller
	HTTPPort int

	// Base URL of the external rendering service
	RendererURL string

	// API key sent to the renderer
	RendererAPIKey string

	// How long a dispatch call may take before "rejected quickly" becomes
	// "accepted, processing async"
	RendererAcceptTimeout time.Duration

	// CompletionMode selects how completion is learned: "poll" queries
	// the renderer's status endpoint, "callback" watches the run row for
	// the renderer's push notification.
	CompletionMode string

	// Shared secret the renderer presents on the completion callback
	CallbackSecret string

	// Operator API key (SHA-256 hash checked by the auth middleware)
	APIKeyHash string

	// URL of the controller (used by the CLI and for callback targets)
	ControllerURL string

	// OTLP collector endpoint for traces
	OTELEndpoint string

	// Imposition policy knobs. Zero values fall back to machine defaults.
	OverrunTolerance       int
	RollCapacity           int
	SplitMergeTolerance    int
	BusyMaxAttempts        int
	BusyRetryDelay         time.Duration
	CompletionPollInterval time.Duration
	CompletionMaxWait      time.Duration
	FailureThreshold       int
	InterRunDelay          time.Duration
	IncludeProof           bool

	// Global API rate limit. Zero disables it.
	RateLimitRPS   float64
	RateLimitBurst int
}

// Load reads configuration from environment variables.
// Missing renderer or database settings fail here, before any dispatch.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	port, err := intEnv("PORT", 7171)
	if err != nil {
		return nil, err
	}

	rendererURL := os.Getenv("RENDERER_URL")
	if rendererURL == "" {
		return nil, fmt.Errorf("RENDERER_URL is required")
	}

	acceptTimeout, err := durationEnv("RENDERER_ACCEPT_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	completionMode := os.Getenv("COMPLETION_MODE")
	if completionMode == "" {
		completionMode = "poll"
	}
	if completionMode != "poll" && completionMode != "callback" {
		return nil, fmt.Errorf("invalid COMPLETION_MODE %q (want poll or callback)", completionMode)
	}

	callbackSecret := os.Getenv("CALLBACK_SECRET")
	if completionMode == "callback" && callbackSecret == "" {
		return nil, fmt.Errorf("CALLBACK_SECRET is required when COMPLETION_MODE=callback")
	}

	controllerURL := os.Getenv("CONTROLLER_URL")
	if controllerURL == "" {
		controllerURL = fmt.Sprintf("http://localhost:%d", port)
	}

	otelEndpoint := os.Getenv("OTEL_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "localhost:4317"
	}

	overrun, err := intEnv("OVERRUN_TOLERANCE", 250)
	if err != nil {
		return nil, err
	}
	rollCapacity, err := intEnv("ROLL_CAPACITY", 5000)
	if err != nil {
		return nil, err
	}
	mergeTolerance, err := intEnv("SPLIT_MERGE_TOLERANCE", 50)
	if err != nil {
		return nil, err
	}
	busyAttempts, err := intEnv("BUSY_MAX_ATTEMPTS", 5)
	if err != nil {
		return nil, err
	}
	busyDelay, err := durationEnv("BUSY_RETRY_DELAY", 15*time.Second)
	if err != nil {
		return nil, err
	}
	pollInterval, err := durationEnv("COMPLETION_POLL_INTERVAL", 5*time.Second)
	if err != nil {
		return nil, err
	}
	maxWait, err := durationEnv("COMPLETION_MAX_WAIT", 10*time.Minute)
	if err != nil {
		return nil, err
	}
	failureThreshold, err := intEnv("FAILURE_THRESHOLD", 2)
	if err != nil {
		return nil, err
	}
	interRunDelay, err := durationEnv("INTER_RUN_DELAY", 3*time.Second)
	if err != nil {
		return nil, err
	}
	rateRPS, err := floatEnv("RATE_LIMIT_RPS", 0)
	if err != nil {
		return nil, err
	}
	rateBurst, err := intEnv("RATE_LIMIT_BURST", 20)
	if err != nil {
		return nil, err
	}

	return &Config{
		DatabaseURL:            dbURL,
		HTTPPort:               port,
		RendererURL:            rendererURL,
		RendererAPIKey:         os.Getenv("RENDERER_API_KEY"),
		RendererAcceptTimeout:  acceptTimeout,
		CompletionMode:         completionMode,
		CallbackSecret:         callbackSecret,
		APIKeyHash:             os.Getenv("API_KEY_HASH"),
		ControllerURL:          controllerURL,
		OTELEndpoint:           otelEndpoint,
		OverrunTolerance:       overrun,
		RollCapacity:           rollCapacity,
		SplitMergeTolerance:    mergeTolerance,
		BusyMaxAttempts:        busyAttempts,
		BusyRetryDelay:         busyDelay,
		CompletionPollInterval: pollInterval,
		CompletionMaxWait:      maxWait,
		FailureThreshold:       failureThreshold,
		InterRunDelay:          interRunDelay,
		IncludeProof:           os.Getenv("INCLUDE_PROOF") != "false",
		RateLimitRPS:           rateRPS,
		RateLimitBurst:         rateBurst,
	}, nil
}

// Policy maps the configured knobs onto the imposition policy. Callback
// fields are only populated in callback completion mode.
func (c *Config) Policy() imposer.Policy {
	p := imposer.Policy{
		OverrunTolerance:            c.OverrunTolerance,
		RollCapacity:                c.RollCapacity,
		SplitMergeTolerance:         c.SplitMergeTolerance,
		BusyMaxAttempts:             c.BusyMaxAttempts,
		BusyRetryDelay:              c.BusyRetryDelay,
		CompletionPollInterval:      c.CompletionPollInterval,
		CompletionMaxWait:           c.CompletionMaxWait,
		ConsecutiveFailureThreshold: c.FailureThreshold,
		InterRunDelay:               c.InterRunDelay,
		IncludeProof:                c.IncludeProof,
	}
	if c.CompletionMode == "callback" {
		p.CallbackBaseURL = c.ControllerURL
		p.CallbackToken = c.CallbackSecret
	}
	return p
}

func intEnv(name string, def int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}

func floatEnv(name string, def float64) (float64, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}

func durationEnv(name string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}
