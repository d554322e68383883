// Command pricewatch is the price and stock monitoring daemon.
//
// Usage:
//
//	pricewatch -config pricewatch.yaml
//	pricewatch -db prices.db -listen :8080
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

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/pricewatch"
	"github.com/hazyhaar/pricewatch/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to pricewatch.yaml config file")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	listenAddr := flag.String("listen", "", "HTTP listen address (overrides config)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
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
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *dbPath, *listenAddr); err != nil {
		logger.Error("pricewatch: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, dbPath, listenAddr string) error {
	cfg := pricewatch.DefaultConfig()
	if configPath != "" {
		loaded, err := pricewatch.LoadConfigFile(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}

	st, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	svc := pricewatch.New(st, cfg, logger)
	defer svc.Close()
	svc.Start(ctx)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           svc.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("pricewatch: listening", "addr", cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		logger.Warn("pricewatch: shutdown", "error", err)
	}
	return nil
}
