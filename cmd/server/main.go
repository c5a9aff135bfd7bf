package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Aviral1511/Collaborative-Canvas/internal/api"
	"github.com/Aviral1511/Collaborative-Canvas/internal/compaction"
	"github.com/Aviral1511/Collaborative-Canvas/internal/config"
	"github.com/Aviral1511/Collaborative-Canvas/internal/db"
	"github.com/Aviral1511/Collaborative-Canvas/internal/discovery"
	"github.com/Aviral1511/Collaborative-Canvas/internal/logging"
	"github.com/Aviral1511/Collaborative-Canvas/internal/metrics"
	"github.com/Aviral1511/Collaborative-Canvas/internal/room"
	"github.com/Aviral1511/Collaborative-Canvas/internal/session"
	"github.com/Aviral1511/Collaborative-Canvas/internal/ws"
)

var version = "dev"

func main() {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "canvas-server",
		Short:         "Real-time collaborative drawing server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configFile)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yaml", "Path to configuration file")

	rootCmd.AddCommand(exportCmd(&configFile), versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

func serve(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("🎨 Canvas server starting", zap.String("version", version), zap.String("address", cfg.Address()))

	// Storage is optional; without it rooms live only in memory
	var (
		database *db.Database
		loader   room.Loader
		store    compaction.Store
	)
	if cfg.Storage.Type == "sqlite" {
		database, err = db.New(cfg.Storage.SQLite.Path, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer database.Close()
		loader, store = database, database
		logger.Info("📁 Database ready", zap.String("path", cfg.Storage.SQLite.Path))
	}

	var (
		m              *metrics.Metrics
		metricsHandler http.Handler
	)
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(cfg.Metrics.Namespace, reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := ws.NewHub(ws.Config{
		MaxMessageSize:    cfg.WS.MaxMessageSize,
		SendBuffer:        cfg.WS.SendBuffer,
		MessagesPerSecond: cfg.WS.MessagesPerSecond,
		MessageBurst:      cfg.WS.MessageBurst,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
	}, logger, m)

	rooms := room.NewRegistry(cfg.RoomOptions(), loader, logger)
	coordinator := session.NewCoordinator(rooms, hub, logger, m)
	hub.SetDispatcher(coordinator)
	go hub.Run(ctx)

	compactor := compaction.New(rooms, store, m, compaction.Config{
		Interval: cfg.Compaction.Interval,
		IdleTTL:  cfg.Compaction.IdleTTL,
	}, logger)
	compactor.Start()

	if cfg.Discovery.MDNSEnabled {
		advert, err := discovery.Advertise(cfg.Discovery.Instance, cfg.Server.Port)
		if err != nil {
			logger.Warn("mDNS advertisement failed", zap.Error(err))
		} else {
			defer func() { _ = advert.Shutdown() }()
			logger.Info("📡 Advertising over mDNS", zap.String("service", discovery.ServiceType))
		}
	}

	handler := api.New(hub, rooms, database, coordinator, logger).Router(api.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Metrics:        metricsHandler,
	})

	srv := &http.Server{
		Addr:        cfg.Address(),
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Endpoints",
			zap.String("websocket", "/ws?room={roomId}"),
			zap.String("health", "GET /health"),
			zap.String("stats", "GET /api/stats"),
			zap.String("rooms", "GET /api/rooms[/{id}]"),
			zap.String("export", "GET /api/rooms/{id}/export.pdf"),
			zap.String("checkpoints", "GET/POST /api/rooms/{id}/checkpoints"),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-errCh:
		logger.Error("Server failed", zap.Error(err))
	}

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Close connections before the final flush
	cancel()
	compactor.Stop()

	logger.Info("Server exited")
	return nil
}
