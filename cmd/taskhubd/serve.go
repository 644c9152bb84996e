package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/taskhub/realtime/internal/auth"
	"github.com/taskhub/realtime/internal/config"
	"github.com/taskhub/realtime/internal/metrics"
	"github.com/taskhub/realtime/internal/mock"
	"github.com/taskhub/realtime/internal/procstat"
	"github.com/taskhub/realtime/internal/registry"
	"github.com/taskhub/realtime/internal/ws"
)

func serveCmd() *cobra.Command {
	var (
		configPath   string
		port         int
		mockProject  string
		mockInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath, port, mockProject, mockInterval)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Override server port")
	cmd.Flags().StringVar(&mockProject, "mock-project", "", "Feed this project with synthetic collaborators")
	cmd.Flags().DurationVar(&mockInterval, "mock-interval", 2*time.Second, "Delay between synthetic events")

	return cmd
}

func serve(ctx context.Context, configPath string, port int, mockProject string, mockInterval time.Duration) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port > 0 {
		cfg.Server.Port = port
	}
	if mockProject != "" && mockInterval <= 0 {
		return fmt.Errorf("--mock-interval must be positive, got %s", mockInterval)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
	slog.SetDefault(logger)

	if cfg.UsingDefaultSecret() {
		logger.Warn("no JWT secret configured; tokens are verified with the built-in development secret",
			"env", "TASKHUB_JWT_SECRET")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	reg := registry.New(logger, m)
	verifier := auth.NewHMAC([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer)
	srv := ws.NewServer(cfg, reg, verifier, m, logger)

	if sampler, err := procstat.NewSampler(ctx); err != nil {
		logger.Warn("process stats unavailable", "err", err)
	} else {
		srv.SetSampler(sampler)
	}

	srv.Start(ctx)
	if mockProject != "" {
		logger.Info("starting in mock mode", "project", mockProject, "interval", mockInterval)
		mock.NewGenerator(srv.Gateway(), mockProject, mockInterval, time.Now().UnixNano()).Start(ctx)
	}
	defer func() {
		logger.Info("shutting down")
		srv.Close()
	}()

	return ws.ListenAndServe(ctx, cfg.Addr(), srv.Routes(), logger)
}
