package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/pvfit/internal/fit"
	"github.com/copyleftdev/pvfit/internal/metrics"
	"github.com/copyleftdev/pvfit/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and JSON-RPC server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port > 0 {
				a.cfg.HTTP.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "Listen port (default HTTP_PORT)")
	return cmd
}

// serve runs the server until ctx is cancelled, then shuts it down
// gracefully.
func serve(ctx context.Context, a *app) error {
	serviceLogger := a.logger.WithFields(map[string]interface{}{
		"service": "pvfit",
		"version": version,
	})

	m := metrics.New()
	runner := fit.NewRunner(a.cfg, m, a.zap)
	srv := server.NewServer(runner, serviceLogger, m)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.HTTP.Port),
		Handler:      srv.Handler(a.logger),
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		serviceLogger.Info("Starting server", map[string]interface{}{
			"address": httpServer.Addr,
		})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

	serviceLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		serviceLogger.Error("Server forced to shutdown", map[string]interface{}{"error": err.Error()})
		return err
	}
	if err := srv.Close(); err != nil {
		serviceLogger.Error("error closing server resources", map[string]interface{}{"error": err.Error()})
	}

	serviceLogger.Info("Server stopped")
	return nil
}
