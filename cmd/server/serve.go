package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"checkin/internal/platform/config"
	"checkin/internal/platform/httpserver"
	"checkin/internal/platform/logger"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger.New(cfg.LogLevel))
		},
	}
}

func serve(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	app, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	// Lets a memory-store deployment log in without a separate seed step.
	if password := os.Getenv("CHECKIN_OPERATOR_PASSWORD"); password != "" {
		username := os.Getenv("CHECKIN_OPERATOR_USERNAME")
		if username == "" {
			username = "admin"
		}
		if _, err := app.Operators.SeedOperator(ctx, username, password); err != nil {
			return fmt.Errorf("seed operator %q: %w", username, err)
		}
	}

	srv := httpserver.New(cfg, app.Router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting checkin",
			"addr", cfg.Addr,
			"store", cfg.Database.Driver,
			"allocator", cfg.Registration.Allocator,
			"duplicate_policy", cfg.Registration.DuplicatePolicy,
			"code_prefix", cfg.Registration.CodePrefix,
			"event_year", cfg.Registration.EventYear,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}
