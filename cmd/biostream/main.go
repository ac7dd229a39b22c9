// Package main implements the entry point for the biostream backend: it
// ingests potentiostat and biosensor telemetry from NATS, persists it to
// Postgres, and serves the measurement API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/biostream/config"
	gateway "github.com/c360/biostream/gateway/http"
	"github.com/c360/biostream/health"
	"github.com/c360/biostream/ingest"
	"github.com/c360/biostream/metric"
	"github.com/c360/biostream/natsclient"
	"github.com/c360/biostream/store"
	"github.com/c360/biostream/wifinet"
)

const (
	Version = "0.1.0"
	appName = "biostream"

	shutdownTimeout     = 10 * time.Second
	healthCheckInterval = 15 * time.Second
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	showVersion := flag.Bool("version", false, "print version and exit")
	enableWiFi := flag.Bool("wifi", false, "enable host Wi-Fi management endpoints")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := setupLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	slog.Info("Starting biostream backend",
		"version", Version,
		"config_path", *configPath,
		"nats_url", cfg.NATS.URL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}

	metrics := metric.NewRegistry()
	monitor := health.NewMonitor()
	monitor.UpdateHealthy("database", "connected")

	broker, err := buildBroker(cfg, metrics.Metrics, monitor, logger)
	if err != nil {
		return fmt.Errorf("create broker client: %w", err)
	}

	stats := ingest.NewStats()
	stats.AddObserver(metrics.Metrics)

	sessions := ingest.NewSessionRegistry(logger)
	router := ingest.NewRouter(stats, logger)
	ingest.NewHandlers(sessions, st, stats, logger).Register(router)

	supervisor := ingest.NewSupervisor(broker, st, sessions, router, stats, logger)

	opts := []gateway.Option{gateway.WithMetrics(metrics)}
	if dir := staticDir(cfg.HTTP.StaticDir); dir != "" {
		opts = append(opts, gateway.WithStaticDir(dir))
	}
	if *enableWiFi {
		opts = append(opts, gateway.WithWiFi(wifinet.NewManager(".", logger)))
	}
	server := gateway.NewServer(cfg.HTTP.Addr, supervisor, st, monitor, logger, opts...)

	// Every inbound message is mirrored to live feed subscribers.
	router.AddTap(server.Hub().Broadcast)

	if err := supervisor.Start(ctx); err != nil {
		return fmt.Errorf("start ingestion pipeline: %w", err)
	}
	metrics.Metrics.RecordNATSStatus(true)
	monitor.UpdateHealthy("broker", "connected")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(server.Start)

	g.Go(func() error {
		healthLoop(gctx, broker, st, monitor, metrics.Metrics)
		return nil
	})

	if cfg.Retention.Enabled {
		g.Go(func() error {
			retentionLoop(gctx, st, cfg.Retention, logger)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		slog.Info("Shutting down")
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP shutdown failed", "error", err)
		}
		if err := supervisor.Stop(shutdownCtx); err != nil {
			slog.Error("Pipeline shutdown failed", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("biostream shutdown complete")
	return nil
}

// buildBroker assembles the NATS client with the reconnect policy from
// configuration and the metric and health callbacks.
func buildBroker(cfg *config.Config, m *metric.Metrics, monitor *health.Monitor, logger *slog.Logger) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithClientName(appName),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait),
		natsclient.WithLogger(&slogAdapter{logger: logger}),
		natsclient.WithDisconnectCallback(func(err error) {
			m.RecordNATSStatus(false)
			monitor.UpdateDegraded("broker", "disconnected, reconnecting")
		}),
		natsclient.WithReconnectCallback(func() {
			m.RecordNATSReconnect()
			m.RecordNATSStatus(true)
			monitor.UpdateHealthy("broker", "reconnected")
		}),
		natsclient.WithConnectionLostCallback(func(err error) {
			m.RecordNATSStatus(false)
			monitor.UpdateUnhealthy("broker", "connection lost")
		}),
	}
	if cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	}
	return natsclient.NewClient(cfg.NATS.URL, opts...)
}

// healthLoop keeps the database and broker health entries current.
func healthLoop(ctx context.Context, broker *natsclient.Client, st *store.Store, monitor *health.Monitor, m *metric.Metrics) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if broker.IsConnected() {
			m.RecordNATSStatus(true)
			monitor.UpdateHealthy("broker", "connected")
		} else {
			m.RecordNATSStatus(false)
			monitor.UpdateUnhealthy("broker", "not connected")
		}

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := st.Ping(pingCtx); err != nil {
			monitor.UpdateUnhealthy("database", "ping failed")
		} else {
			monitor.UpdateHealthy("database", "connected")
		}
		cancel()
	}
}

// retentionLoop deletes measurements older than the configured age. One pass
// runs immediately so a long interval does not delay the first cleanup.
func retentionLoop(ctx context.Context, st *store.Store, cfg config.RetentionConfig, logger *slog.Logger) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		deleted, err := st.DeleteOldMeasurements(ctx, cfg.MaxAge)
		if err != nil {
			logger.Error("retention cleanup failed", "error", err)
		} else if deleted > 0 {
			logger.Info("retention cleanup removed measurements", "count", deleted, "max_age_days", cfg.MaxAge)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// staticDir resolves the frontend directory: the configured path, or a
// web/ directory next to the binary when one exists.
func staticDir(configured string) string {
	if configured != "" {
		return configured
	}
	if info, err := os.Stat("web"); err == nil && info.IsDir() {
		return "web"
	}
	return ""
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: level == "debug",
	})
	return slog.New(handler)
}

// slogAdapter bridges the broker client's printf-style logger to slog.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Printf(format string, v ...any) {
	a.logger.Info(fmt.Sprintf(format, v...))
}

func (a *slogAdapter) Errorf(format string, v ...any) {
	a.logger.Error(fmt.Sprintf(format, v...))
}

func (a *slogAdapter) Debugf(format string, v ...any) {
	a.logger.Debug(fmt.Sprintf(format, v...))
}
