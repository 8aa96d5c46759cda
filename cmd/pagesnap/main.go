// CLAUDE:SUMMARY CLI entry point for pagesnap: HTTP screenshot server, one-shot capture to file, MCP over stdio.
// Command pagesnap serves viewport screenshots of web pages.
//
// Usage:
//
//	pagesnap -config pagesnap.yaml                  # HTTP API (default)
//	pagesnap -url https://example.com -out a.png    # one-shot capture
//	pagesnap -mcp stdio                             # MCP tool over stdio
//	pagesnap -hash-token <token>                    # bcrypt hash for http.token_hash
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/pagesnap/capture"
	"github.com/hazyhaar/pagesnap/dbopen"
	"github.com/hazyhaar/pagesnap/observability"
	"github.com/hazyhaar/pagesnap/shield"
)

var version = "dev"

func main() {
	configPath := flag.String("config", env("PAGESNAP_CONFIG", ""), "path to pagesnap.yaml config file")
	singleURL := flag.String("url", "", "capture a single URL and exit")
	out := flag.String("out", "screenshot.png", "output file for -url (- for stdout)")
	width := flag.Int("width", 0, "viewport width for -url (default 1280)")
	height := flag.Int("height", 0, "viewport height for -url (default 720)")
	mcpMode := flag.String("mcp", "", "serve the MCP tool instead of HTTP: stdio")
	hashToken := flag.String("hash-token", "", "print the bcrypt hash of a bearer token and exit")
	logLevel := flag.String("log-level", env("LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	// stderr keeps stdout free for -out - and the MCP stdio transport.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if *hashToken != "" {
		h, err := shield.HashToken(*hashToken)
		if err != nil {
			logger.Error("pagesnap: hash token", "error", err)
			os.Exit(1)
		}
		fmt.Println(h)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := capture.LoadConfig(*configPath)
	if err != nil {
		logger.Error("pagesnap: config", "error", err)
		os.Exit(1)
	}

	switch {
	case *singleURL != "":
		err = runOnce(ctx, logger, cfg, *singleURL, *width, *height, *out)
	case *mcpMode == "stdio":
		err = runMCP(ctx, logger, cfg)
	case *mcpMode != "":
		err = fmt.Errorf("unknown -mcp transport %q (want stdio)", *mcpMode)
	default:
		err = runServer(ctx, logger, cfg)
	}
	if err != nil {
		logger.Error("pagesnap: fatal", "error", err)
		os.Exit(1)
	}
}

func runOnce(ctx context.Context, logger *slog.Logger, cfg *capture.Config, url string, width, height int, out string) error {
	svc, err := capture.New(cfg, capture.WithLogger(logger))
	if err != nil {
		return err
	}
	defer svc.Close()

	res, err := svc.Capture(ctx, capture.Request{URL: url, Width: width, Height: height})
	if err != nil {
		return err
	}
	if out == "-" {
		_, err = os.Stdout.Write(res.PNG)
		return err
	}
	if err := os.WriteFile(out, res.PNG, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	logger.Info("pagesnap: saved", "file", out, "bytes", len(res.PNG), "id", res.ID)
	return nil
}

func runMCP(ctx context.Context, logger *slog.Logger, cfg *capture.Config) error {
	svc, err := capture.New(cfg, capture.WithLogger(logger))
	if err != nil {
		return err
	}
	defer svc.Close()

	srv := newMCPServer(svc, cfg)
	logger.Info("pagesnap: mcp stdio ready")
	return srv.Run(ctx, &mcp.StdioTransport{})
}

func newMCPServer(svc *capture.Service, cfg *capture.Config) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "pagesnap", Version: version}, nil)
	svc.RegisterMCP(srv, cfg.HTTP.AllowPrivate, nil)
	return srv
}

func runServer(ctx context.Context, logger *slog.Logger, cfg *capture.Config) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	opts := []capture.Option{
		capture.WithLogger(logger),
		capture.WithMetrics(capture.NewMetrics(reg)),
	}

	var journal *observability.CaptureLog
	if cfg.Journal.Path != "" {
		db, err := dbopen.Open(cfg.Journal.Path, dbopen.WithMkdirAll(), dbopen.WithSchema(observability.Schema))
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer db.Close()
		journal = observability.NewCaptureLog(db, observability.WithLogger(logger))
		journal.StartRetention(ctx, cfg.Journal.RetentionDays, time.Hour)
		opts = append(opts, capture.WithRecorder(journal))
		logger.Info("pagesnap: journal enabled", "path", cfg.Journal.Path, "retention_days", cfg.Journal.RetentionDays)
	}

	svc, err := capture.New(cfg, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn("pagesnap: close service", "error", err)
		}
	}()

	proxies, err := shield.ParseTrustedProxies(cfg.HTTP.TrustedProxies)
	if err != nil {
		return err
	}
	stack, rl := shield.DefaultStack(shield.StackConfig{
		RatePerSecond:  cfg.HTTP.RateLimit,
		Burst:          cfg.HTTP.RateBurst,
		TokenHash:      cfg.HTTP.TokenHash,
		Exempt:         []string{"/healthz", "/metrics"},
		TrustedProxies: proxies,
	})
	if rl != nil {
		rl.StartGC(time.Minute, ctx.Done())
	}

	hopts := capture.HandlerOptions{
		Middleware: stack,
		Gatherer:   reg,
		MCP:        newMCPServer(svc, cfg),
		Logger:     logger,
	}
	if journal != nil {
		hopts.Journal = journal
	}
	srv := capture.Server(cfg.HTTP.Addr, capture.NewHandler(svc, cfg.HTTP, hopts), cfg.NavigationTimeout)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("pagesnap: server starting", "addr", cfg.HTTP.Addr, "mode", cfg.Mode, "host", svc.Host())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("pagesnap: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("pagesnap: shutdown", "error", err)
	}
	logger.Info("pagesnap: server stopped")
	return nil
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
