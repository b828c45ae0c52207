package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/textlens/textlens/internal/client"
	"github.com/textlens/textlens/internal/config"
	"github.com/textlens/textlens/internal/connectivity"
	"github.com/textlens/textlens/internal/core/store"
	errwrap "github.com/textlens/textlens/internal/errors"
	"github.com/textlens/textlens/internal/metrics"
	"github.com/textlens/textlens/internal/observability"
	"github.com/textlens/textlens/internal/server"
	"github.com/textlens/textlens/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// backendHealthChecker reports a degraded service while the backend is
// unreachable. Cached responses are still served.
type backendHealthChecker struct {
	oracle connectivity.Oracle
}

func (b backendHealthChecker) CheckHealth(ctx context.Context) error {
	if !b.oracle.IsOnline() {
		return fmt.Errorf("backend unreachable: %w", handlers.ErrDegraded)
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP gateway",
	Long: `Start the HTTP gateway with graceful shutdown support.

Endpoints:
  POST   /api/{endpoint}   summarize, sentiment, qa, related-questions, follow-up
  DELETE /api/cache        remove cached responses
  GET    /api/status       connectivity, cache, queue and throttle state

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Config reload (log level and probe settings take effect on restart)

Queued requests are drained before the store is closed.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return errwrap.WrapConfigInvalid(cmd.Context(), err, "invalid configuration")
	}

	if err := observability.InitServerLogger(config.AppName, cfg.Logging.Level); err != nil {
		return errwrap.WrapConfigInvalid(cmd.Context(), err, "invalid logging configuration")
	}
	logger := observability.ServerLogger

	if cfg.Metrics.Enabled {
		if err := observability.InitMetrics(config.AppName, cfg.Metrics.Port); err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
		}
	}

	logger.Info("Initializing server",
		zap.String("service", config.AppName),
		zap.String("version", versionInfo.Version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("backend", cfg.Backend.Mode),
		zap.Int("metrics_port", cfg.Metrics.Port))

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	svc, err := newApp(ctx, cfg, logger)
	if err != nil {
		return errwrap.WrapInternal(ctx, err, "failed to initialize dispatcher")
	}

	if svc.probe != nil {
		go svc.probe.Run(ctx)
	}
	go svc.cache.RunJanitor(ctx, cfg.Cache.SweepInterval)

	actions := client.NewActions(svc.client, cfg.Dispatch.ThrottleDelay)

	hm := handlers.NewHealthManager(versionInfo.Version)
	hm.RegisterChecker("backend", backendHealthChecker{oracle: svc.oracle})
	if s, ok := svc.kv.(*store.Store); ok {
		hm.RegisterChecker("store", s)
	}
	if cfg.Metrics.Enabled {
		hm.RegisterChecker("telemetry", telemetryHealthChecker{})
	}

	srv := server.New(cfg.Server.Host, cfg.Server.Port,
		server.WithAPI(handlers.NewAPI(svc.client, actions)),
		server.WithHealthManager(hm),
		server.WithTimeouts(cfg.Server),
	)

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 10 * time.Second
	}

	// Register graceful shutdown handlers (LIFO order - last registered, first executed)
	// Handler 1: Flush logger (executed last)
	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Flushing logger...")
		if err := logger.Sync(); err != nil {
			// Sync errors are often benign (stdout/stderr already closed)
			logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
		}
		return nil
	})

	// Handler 2: Drain the dispatcher and close the store
	signals.OnShutdown(func(ctx context.Context) error {
		actions.Stop()
		drainCtx, drainCancel := context.WithTimeout(ctx, shutdownTimeout)
		defer drainCancel()
		err := svc.Close(drainCtx)
		cancel()
		if err != nil {
			return errwrap.WrapInternal(ctx, err, "dispatcher drain failed")
		}
		logger.Info("Dispatcher drained")
		if err := observability.ShutdownMetrics(); err != nil {
			logger.Warn("Metrics exporter did not stop cleanly", zap.Error(err))
		}
		return nil
	})

	// Handler 3: Shutdown HTTP server (executed first)
	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Shutting down HTTP server...")
		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, shutdownTimeout)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errwrap.WrapInternal(ctx, err, "server shutdown failed")
		}

		logger.Info("HTTP server stopped gracefully")
		return nil
	})

	// Register config reload handler (SIGHUP)
	signals.OnReload(func(ctx context.Context) error {
		logger.Info("Received SIGHUP: attempting config reload")

		v := viper.GetViper()
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				logger.Error("Failed to reload config file",
					zap.String("file", v.ConfigFileUsed()),
					zap.Error(err))
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}
			logger.Info("No config file found - using defaults and environment variables")
		}

		if _, err := config.Load(v); err != nil {
			logger.Error("Reloaded configuration is invalid", zap.Error(err))
			return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
		}

		logger.Info("Configuration reloaded successfully",
			zap.String("file", v.ConfigFileUsed()))
		return nil
	})

	// Enable double-tap force quit (Ctrl+C within 2 seconds)
	if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
		Window:  2 * time.Second,
		Message: "Press Ctrl+C again within 2 seconds to force quit",
	}); err != nil {
		logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
	}

	metrics.SetServerStartTime(time.Now().Unix())

	// Start server in background goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Start signal listener in background
	go func() {
		if err := signals.Listen(cmd.Context()); err != nil {
			logger.Error("Signal handler error", zap.Error(err))
			errChan <- err
		}
	}()

	// Wait for error or shutdown completion
	if err := <-errChan; err != nil {
		return errwrap.WrapInternal(cmd.Context(), err, "server error")
	}

	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8090, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
