package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-mapper/pkg/handlers"
	"github.com/ekaya-inc/ekaya-mapper/pkg/middleware"
	"github.com/ekaya-inc/ekaya-mapper/pkg/services"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the mapping session API over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sessCfg, closeBackend, err := newSessionConfig(ctx)
		if err != nil {
			return err
		}
		defer closeBackend()

		registry := services.NewSessionRegistry(sessCfg, logger)

		mux := http.NewServeMux()
		handlers.NewHealthHandler(cfg, registry, logger).RegisterRoutes(mux)
		handlers.NewMappingHandler(registry, handlers.ExportFileNames{
			Narrow: cfg.Export.NarrowFileName,
			Long:   cfg.Export.LongFileName,
		}, logger).RegisterRoutes(mux)

		server := &http.Server{
			Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
			Handler:           middleware.RequestLogger(logger.Named("http"))(mux),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("Starting ekaya-mapper",
				zap.String("addr", server.Addr),
				zap.String("base_url", cfg.BaseURL),
				zap.String("version", cfg.Version),
				zap.String("catalog_backend", cfg.Catalog.Backend))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
