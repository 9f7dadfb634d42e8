package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"tasks-api/internal/config"
	"tasks-api/internal/db"
	"tasks-api/internal/middleware"
	"tasks-api/internal/tasks"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		return err
	}

	logger, err := newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	driver, dsn := cfg.DataSource()
	database, err := db.Connect(driver, dsn)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer database.Close()

	logger.Info("connected to database", "driver", driver)

	if cfg.EnsureSchema {
		if err := db.EnsureSchema(ctx, database, driver); err != nil {
			return err
		}
	}

	dialect, err := tasks.DialectFor(driver)
	if err != nil {
		return err
	}
	store := tasks.NewSQLStore(database, dialect)

	handler := middleware.Chain(
		tasks.NewRouter(store, logger),
		middleware.RequestID,
		middleware.AccessLog(logger),
		middleware.Recover(logger, tasks.InternalErrorHandler()),
		middleware.CORS(cfg.CORSOrigins),
		middleware.Compress,
	)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("API server is running", "addr", cfg.Addr)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
