package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"labelplane/pkg/api"
)

func TestOverrideCommand_Success(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT method, got %s", r.Method)
		}
		if !strings.HasSuffix(r.URL.Path, "/runs/run-1/override") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		var req api.OverrideRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.Quantity != 12000 {
			t.Errorf("expected quantity 12000, got %d", req.Quantity)
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(api.OverrideResponse{
			Run:      api.RunResponse{RunNumber: 1, FramesCount: 24, MetersToPrint: 182.88},
			Warnings: []string{"override prints 11000 labels per slot over demand (tolerance 250)"},
		})
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"override", "run-1", "--quantity", "12000"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "Override set to 12000") {
		t.Errorf("expected confirmation, got: %s", output)
	}
	if !strings.Contains(output, "Warning:") {
		t.Errorf("expected warning in output, got: %s", output)
	}
}
