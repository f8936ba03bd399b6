package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("RENDERER_URL", "http://renderer.local")
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("RENDERER_URL", "http://renderer.local")

	if _, err := Load(); err == nil {
		t.Error("expected error when DATABASE_URL is missing")
	}
}

func TestLoad_RequiresRendererURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("RENDERER_URL", "")

	if _, err := Load(); err == nil {
		t.Error("expected error when RENDERER_URL is missing")
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != 7171 {
		t.Errorf("expected HTTPPort 7171, got %d", cfg.HTTPPort)
	}
	if cfg.ControllerURL != "http://localhost:7171" {
		t.Errorf("expected ControllerURL http://localhost:7171, got %s", cfg.ControllerURL)
	}
	if cfg.CompletionMode != "poll" {
		t.Errorf("expected CompletionMode poll, got %s", cfg.CompletionMode)
	}
	if cfg.OverrunTolerance != 250 {
		t.Errorf("expected OverrunTolerance 250, got %d", cfg.OverrunTolerance)
	}
	if cfg.RollCapacity != 5000 {
		t.Errorf("expected RollCapacity 5000, got %d", cfg.RollCapacity)
	}
	if cfg.BusyMaxAttempts != 5 {
		t.Errorf("expected BusyMaxAttempts 5, got %d", cfg.BusyMaxAttempts)
	}
	if cfg.BusyRetryDelay != 15*time.Second {
		t.Errorf("expected BusyRetryDelay 15s, got %v", cfg.BusyRetryDelay)
	}
	if cfg.CompletionMaxWait != 10*time.Minute {
		t.Errorf("expected CompletionMaxWait 10m, got %v", cfg.CompletionMaxWait)
	}
	if cfg.FailureThreshold != 2 {
		t.Errorf("expected FailureThreshold 2, got %d", cfg.FailureThreshold)
	}
	if !cfg.IncludeProof {
		t.Error("expected IncludeProof true by default")
	}
	if cfg.OTELEndpoint != "localhost:4317" {
		t.Errorf("expected OTELEndpoint localhost:4317, got %s", cfg.OTELEndpoint)
	}
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "8080")
	t.Setenv("BUSY_MAX_ATTEMPTS", "3")
	t.Setenv("INTER_RUN_DELAY", "500ms")
	t.Setenv("INCLUDE_PROOF", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != 8080 {
		t.Errorf("expected HTTPPort 8080, got %d", cfg.HTTPPort)
	}
	if cfg.BusyMaxAttempts != 3 {
		t.Errorf("expected BusyMaxAttempts 3, got %d", cfg.BusyMaxAttempts)
	}
	if cfg.InterRunDelay != 500*time.Millisecond {
		t.Errorf("expected InterRunDelay 500ms, got %v", cfg.InterRunDelay)
	}
	if cfg.IncludeProof {
		t.Error("expected IncludeProof false")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "not-a-port")

	if _, err := Load(); err == nil {
		t.Error("expected error for invalid PORT")
	}
}

func TestLoad_CallbackModeNeedsSecret(t *testing.T) {
	setRequired(t)
	t.Setenv("COMPLETION_MODE", "callback")
	t.Setenv("CALLBACK_SECRET", "")

	if _, err := Load(); err == nil {
		t.Error("expected error when callback mode has no secret")
	}

	t.Setenv("CALLBACK_SECRET", "s3cret")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.CompletionMode != "callback" {
		t.Errorf("expected callback mode, got %s", cfg.CompletionMode)
	}
}

func TestPolicy_CallbackFieldsOnlyInCallbackMode(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p := cfg.Policy(); p.CallbackBaseURL != "" || p.CallbackToken != "" {
		t.Errorf("poll mode should not set callback fields, got %q / %q", p.CallbackBaseURL, p.CallbackToken)
	}

	t.Setenv("COMPLETION_MODE", "callback")
	t.Setenv("CALLBACK_SECRET", "s3cret")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := cfg.Policy()
	if p.CallbackBaseURL != "http://localhost:7171" {
		t.Errorf("expected CallbackBaseURL http://localhost:7171, got %s", p.CallbackBaseURL)
	}
	if p.CallbackToken != "s3cret" {
		t.Errorf("expected CallbackToken s3cret, got %s", p.CallbackToken)
	}
	if p.OverrunTolerance != cfg.OverrunTolerance {
		t.Errorf("expected OverrunTolerance %d, got %d", cfg.OverrunTolerance, p.OverrunTolerance)
	}
}

func TestLoad_RejectsUnknownCompletionMode(t *testing.T) {
	setRequired(t)
	t.Setenv("COMPLETION_MODE", "webhookish")

	if _, err := Load(); err == nil {
		t.Error("expected error for unknown completion mode")
	}
}
