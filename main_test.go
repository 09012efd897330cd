package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/wricardo/sessionrelay/game/config"
)

func TestConstants(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
	if AppName != "Session Relay" {
		t.Errorf("Expected app name Session Relay, got %s", AppName)
	}
}

// captureConfig runs the root command with args and returns the config its
// action would have used
func captureConfig(t *testing.T, args ...string) (config.Config, error) {
	t.Helper()
	var (
		cfg    config.Config
		cfgErr error
	)
	cmd := newCommand()
	cmd.Action = func(ctx context.Context, cmd *cli.Command) error {
		cfg, cfgErr = loadConfig(cmd)
		return nil
	}

	missing := filepath.Join(t.TempDir(), "missing.env")
	argv := append([]string{"sessionrelay", "--env-file", missing}, args...)
	if err := cmd.Run(context.Background(), argv); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return cfg, cfgErr
}

func TestFlagDefaults(t *testing.T) {
	cfg, err := captureConfig(t)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg != config.Default() {
		t.Errorf("Expected defaults without flags, got %+v", cfg)
	}
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv("RELAY_PORT", "7000")
	t.Setenv("RELAY_HOST", "0.0.0.0")

	cfg, err := captureConfig(t,
		"--port", "9090",
		"--debug",
		"--messages-per-second", "30",
		"--max-message-bytes", "2048",
		"--ngrok",
	)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Expected flag port 9090, got %d", cfg.Port)
	}
	if cfg.Host != "0.0.0.0" {
		t.Errorf("Expected env host to survive, got %s", cfg.Host)
	}
	if cfg.LogLevel != "DEBUG" {
		t.Errorf("Expected DEBUG log level, got %s", cfg.LogLevel)
	}
	if cfg.MessagesPerSecond != 30 || cfg.MaxMessageBytes != 2048 {
		t.Errorf("Unexpected limits: %+v", cfg)
	}
	if !cfg.NgrokEnabled {
		t.Error("Expected ngrok enabled")
	}
}

func TestInvalidFlag(t *testing.T) {
	if _, err := captureConfig(t, "--send-buffer", "0"); err == nil {
		t.Error("Expected error for zero send buffer")
	}
}

func TestStdioAliases(t *testing.T) {
	cmd := newCommand()
	for _, name := range []string{"stdio-mcp", "mcp-stdio", "mcp"} {
		sub := cmd.Command(name)
		if sub == nil || sub.Name != "stdio-mcp" {
			t.Errorf("Expected %s to resolve to stdio-mcp", name)
		}
	}
}

func TestRelayStack(t *testing.T) {
	stack := newRelayStack(config.Default(), zap.NewNop(), nil)
	server := httptest.NewServer(stack.handler)
	defer server.Close()

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if !relayReachable(server.URL) {
		t.Error("Expected relay to be reachable")
	}

	resp, err = http.Get(server.URL + "/api/session")
	if err != nil {
		t.Fatalf("session failed: %v", err)
	}
	defer resp.Body.Close()

	var view map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("Failed to decode session: %v", err)
	}
	if view["connections"] != float64(0) {
		t.Errorf("Expected 0 connections, got %v", view["connections"])
	}
}

func TestRelayReachable_NoServer(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	if relayReachable(url) {
		t.Error("Expected closed server to be unreachable")
	}
}
