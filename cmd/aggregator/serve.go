package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"jobmate/aggregator-service/internal/api"
	"jobmate/aggregator-service/internal/grpcserver"
	"jobmate/aggregator-service/internal/logger"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and gRPC servers and the sync scheduler",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	// ── Config ──────────────────────────────────────────────────────────────
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	// ── HTTP server ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	h := api.NewHandler(a.scheduler, a.sources, a.postings, api.Options{
		Events:  a.events,
		Metrics: a.metrics.Handler(),
		Logger:  log,
	})
	h.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		// POST /sync holds the connection for a whole run.
		WriteTimeout: cfg.LockTTL,
	}

	// ── gRPC server ──────────────────────────────────────────────────────────
	gs := grpcserver.NewGRPCServer(grpcserver.NewServer(a.scheduler, a.sources, a.events, log))
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("http listening", logger.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		log.Info("grpc listening", logger.String("port", cfg.GRPCPort))
		if err := gs.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	// ── Scheduler ────────────────────────────────────────────────────────────
	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}

	// ── Graceful shutdown ────────────────────────────────────────────────────
	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		log.Error("server failed", logger.Error(serveErr))
	}

	log.Info("shutting down")

	// The scheduler goes first: it refuses new triggers and drains the active
	// run, whichever surface started it, before the pool is closed. A run is
	// bounded by the lock TTL, so that is the wait budget.
	stopCtx, cancelStop := context.WithTimeout(context.Background(), cfg.LockTTL)
	defer cancelStop()
	if err := a.scheduler.Stop(stopCtx); err != nil {
		log.Warn("scheduler did not stop in time", logger.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown error", logger.Error(err))
	}
	gs.GracefulStop()
	log.Info("stopped")
	return serveErr
}
