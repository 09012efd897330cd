// Command sessionrelay starts the real-time session relay.
//
// It supports two modes:
//  1. "server" (default) – serves the WebSocket relay, the read-only REST API,
//     an /mcp HTTP endpoint and the static client on one port
//  2. "stdio-mcp" – runs an MCP stdio server against a running relay, or
//     against an internal one on a loopback port if none is reachable
//
// Configuration comes from defaults, a .env file, RELAY_* environment
// variables and finally command-line flags. An ngrok tunnel can expose the
// relay publicly during development.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"github.com/wricardo/sessionrelay/api"
	"github.com/wricardo/sessionrelay/game/config"
	"github.com/wricardo/sessionrelay/game/metrics"
	"github.com/wricardo/sessionrelay/game/service"
	"github.com/wricardo/sessionrelay/logging"
	"github.com/wricardo/sessionrelay/transport/mcp"
	"github.com/wricardo/sessionrelay/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Session Relay"
)

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "sessionrelay",
		Usage:   AppName + ": relays player and entity state between WebSocket clients",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "env-file", Usage: "env files to load (default .env)"},
			&cli.StringFlag{Name: "host", Usage: "HTTP server host"},
			&cli.IntFlag{Name: "port", Usage: "HTTP server port"},
			&cli.StringFlag{Name: "static-dir", Usage: "directory served at /"},
			&cli.StringFlag{Name: "log-level", Usage: "DEBUG, INFO, WARNING or ERROR"},
			&cli.StringFlag{Name: "log-file", Usage: "also log to this rotating file"},
			&cli.BoolFlag{Name: "debug", Usage: "shorthand for --log-level DEBUG"},
			&cli.IntFlag{Name: "send-buffer", Usage: "queued outbound frames per connection"},
			&cli.Int64Flag{Name: "max-message-bytes", Usage: "largest accepted inbound frame"},
			&cli.FloatFlag{Name: "messages-per-second", Usage: "inbound frames per second per connection, 0 for unlimited"},
			&cli.IntFlag{Name: "message-burst", Usage: "inbound rate limiter burst"},
			&cli.BoolFlag{Name: "ngrok", Usage: "enable ngrok tunnel"},
			&cli.StringFlag{Name: "ngrok-auth", Usage: "ngrok auth token (or NGROK_AUTHTOKEN)"},
			&cli.StringFlag{Name: "ngrok-domain", Usage: "custom ngrok domain"},
		},
		Action: runServer,
		Commands: []*cli.Command{
			{
				Name:    "server",
				Aliases: []string{"http"},
				Usage:   "run the relay with REST API, WebSocket and MCP endpoint (default)",
				Action:  runServer,
			},
			{
				Name:    "stdio-mcp",
				Aliases: []string{"mcp-stdio", "mcp"},
				Usage:   "run an MCP stdio server",
				Action:  runStdioMCP,
			},
		},
	}
}

// loadConfig layers command-line flags over config.Load
func loadConfig(cmd *cli.Command) (config.Config, error) {
	cfg, err := config.Load(cmd.StringSlice("env-file")...)
	if err != nil {
		return config.Config{}, err
	}

	if cmd.IsSet("host") {
		cfg.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Port = cmd.Int("port")
	}
	if cmd.IsSet("static-dir") {
		cfg.StaticDir = cmd.String("static-dir")
	}
	if cmd.IsSet("log-level") {
		cfg.LogLevel = cmd.String("log-level")
	}
	if cmd.Bool("debug") {
		cfg.LogLevel = "DEBUG"
	}
	if cmd.IsSet("log-file") {
		cfg.LogFile = cmd.String("log-file")
	}
	if cmd.IsSet("send-buffer") {
		cfg.SendBuffer = cmd.Int("send-buffer")
	}
	if cmd.IsSet("max-message-bytes") {
		cfg.MaxMessageBytes = cmd.Int64("max-message-bytes")
	}
	if cmd.IsSet("messages-per-second") {
		cfg.MessagesPerSecond = cmd.Float("messages-per-second")
	}
	if cmd.IsSet("message-burst") {
		cfg.MessageBurst = cmd.Int("message-burst")
	}
	if cmd.Bool("ngrok") {
		cfg.NgrokEnabled = true
	}
	if cmd.IsSet("ngrok-auth") {
		cfg.NgrokAuthToken = cmd.String("ngrok-auth")
	}
	if cmd.IsSet("ngrok-domain") {
		cfg.NgrokDomain = cmd.String("ngrok-domain")
	}

	return cfg, cfg.Validate()
}

// relayStack is one relay with everything needed to serve it over HTTP
type relayStack struct {
	relay   *service.Relay
	hub     *websocket.Hub
	handler http.Handler
}

func newRelayStack(cfg config.Config, logger *zap.Logger, mcpHandler http.Handler) *relayStack {
	relay := service.NewRelay(logger.Named("relay"), metrics.New())
	hub := websocket.NewHub(relay, relay.Metrics(), cfg, logger.Named("ws"))
	handler := api.NewServer(relay, api.Options{
		WebSocket: http.HandlerFunc(hub.ServeWS),
		MCP:       mcpHandler,
		StaticDir: cfg.StaticDir,
		Logger:    logger.Named("http"),
	})
	return &relayStack{relay: relay, hub: hub, handler: handler}
}

// runServer serves the relay until SIGINT or SIGTERM
func runServer(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, syncLogs, err := logging.New(logging.Options{Level: cfg.LogLevel, FilePath: cfg.LogFile, Console: true})
	if err != nil {
		return err
	}
	defer syncLogs()

	addr := cfg.Addr()
	mcpClient := mcp.NewClient("http://"+addr, Version)
	stack := newRelayStack(cfg, logger, mcpClient)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           stack.handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting",
		zap.String("app", AppName),
		zap.String("version", Version),
		zap.String("addr", addr))

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("websocket", "ws://"+addr+"/ws"),
			zap.String("api", "http://"+addr+"/api"),
			zap.String("mcp", "http://"+addr+"/mcp"))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var wg sync.WaitGroup
	if cfg.NgrokEnabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runNgrok(ctx, cfg, stack.handler, logger.Named("ngrok"))
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			stop()
			wg.Wait()
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	stack.hub.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown error", zap.Error(err))
	}

	wg.Wait()
	logger.Info("server stopped")
	return nil
}

// runNgrok serves handler through an ngrok tunnel until ctx ends
func runNgrok(ctx context.Context, cfg config.Config, handler http.Handler, logger *zap.Logger) {
	if cfg.NgrokAuthToken == "" {
		logger.Warn("ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN or NGROK_AUTH_TOKEN)")
		return
	}

	var tunnel ngrokConfig.Tunnel
	if cfg.NgrokDomain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(cfg.NgrokDomain))
		logger.Info("using custom ngrok domain", zap.String("domain", cfg.NgrokDomain))
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(cfg.NgrokAuthToken))
	if err != nil {
		logger.Error("failed to start ngrok tunnel", zap.Error(err))
		return
	}

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			logger.Warn("failed to close ngrok tunnel", zap.Error(err))
		}
	}()

	url := tun.URL()
	logger.Info("ngrok tunnel established",
		zap.String("url", url),
		zap.String("websocket", url+"/ws"),
		zap.String("mcp", url+"/mcp"))

	if err := http.Serve(tun, handler); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		logger.Error("ngrok server error", zap.Error(err))
	}
	logger.Info("ngrok tunnel closed")
}

// runStdioMCP serves MCP over stdio. It uses a relay already listening on
// the configured address when there is one; otherwise it starts an internal
// relay on a random loopback port.
func runStdioMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// stdout carries the MCP protocol
	logger, syncLogs, err := logging.New(logging.Options{
		Level:    cfg.LogLevel,
		FilePath: cfg.LogFile,
		Console:  true,
		Stderr:   true,
	})
	if err != nil {
		return err
	}
	defer syncLogs()

	baseURL := "http://" + cfg.Addr()
	if !relayReachable(baseURL) {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}

		stack := newRelayStack(cfg, logger, nil)
		internal := &http.Server{Handler: stack.handler, ReadHeaderTimeout: 15 * time.Second}
		go func() {
			if err := internal.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("internal HTTP server error", zap.Error(err))
			}
		}()
		defer func() {
			stack.hub.Shutdown()
			internal.Close()
		}()

		baseURL = "http://" + listener.Addr().String()
		logger.Info("no relay found, started internal relay", zap.String("addr", listener.Addr().String()))
	} else {
		logger.Info("using running relay", zap.String("url", baseURL))
	}

	mcpClient := mcp.NewClient(baseURL, Version)
	logger.Info("MCP stdio server ready")
	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}

func relayReachable(baseURL string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/healthz")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
