// Package main provides the fairrank server binary.
// The server evaluates ranking fairness over HTTP and keeps the reports.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/ricesearch/fairrank/internal/bus"
	"github.com/ricesearch/fairrank/internal/config"
	"github.com/ricesearch/fairrank/internal/evaluation"
	"github.com/ricesearch/fairrank/internal/metrics"
	"github.com/ricesearch/fairrank/internal/pkg/logger"
	"github.com/ricesearch/fairrank/internal/report"
	"github.com/ricesearch/fairrank/internal/server"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fairrank-server",
		Short: "fairrank server - ranking fairness evaluation over HTTP",
		Long: `fairrank-server evaluates group fairness of rankings and keeps the reports.

Endpoints:
  POST /v1/fairness/evaluate        evaluate one dataset (JSON or YAML body)
  POST /v1/fairness/evaluate/batch  evaluate {"datasets": [...]} concurrently
  GET  /v1/reports                  list stored reports, newest first
  GET  /v1/reports/{id}             fetch a report (?format=text for tables)
  GET  /healthz                     liveness
  GET  /metrics                     Prometheus metrics

Examples:
  fairrank-server                       # Start with defaults
  fairrank-server -c fairrank.yaml      # Load a config file
  fairrank-server --port 9090 -v        # Custom port, debug logging`,
		RunE:         runServer,
		SilenceUsage: true,
	}

	rootCmd.Flags().StringP("config", "c", "", "config file path")
	rootCmd.Flags().BoolP("verbose", "v", false, "verbose logging")
	rootCmd.Flags().Int("port", 8080, "HTTP server port")
	rootCmd.Flags().String("host", "0.0.0.0", "server host")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("fairrank-server %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Override from flags
	if cmd.Flags().Changed("port") {
		appCfg.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("host") {
		appCfg.Host, _ = cmd.Flags().GetString("host")
	}
	if verbose {
		appCfg.Log.Level = "debug"
	}

	log := logger.New(appCfg.Log.Level, appCfg.Log.Format)
	log.Info("Starting fairrank server",
		"version", version,
		"addr", appCfg.Address(),
		"store", appCfg.Store.Type,
		"bus", appCfg.Bus.Type,
	)

	// Metrics first: the bus and the service report into them
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metricsSvc := metrics.New()
	if err := metricsSvc.Register(registry); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	reportStore, err := report.NewStore(appCfg.Store)
	if err != nil {
		return fmt.Errorf("failed to create report store: %w", err)
	}
	defer reportStore.Close()

	innerBus, err := bus.NewBus(appCfg.Bus, log)
	if err != nil {
		return fmt.Errorf("failed to create event bus: %w", err)
	}
	eventBus := bus.NewInstrumentedBus(innerBus, metricsSvc)
	defer eventBus.Close()

	svc := evaluation.NewService(reportStore, eventBus, metricsSvc, log, appCfg.Evaluation)

	if logged, ok := innerBus.(*bus.LoggedBus); ok && appCfg.Store.Type != "redis" {
		restoreReports(svc, logged.Journal(), appCfg.Store.TTL, log)
	}

	srv := server.New(server.ConfigFrom(appCfg, version), svc, metricsSvc, registry, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal (platform-specific: Unix includes SIGQUIT, Windows does not)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, shutdownSignals...)

	select {
	case sig := <-sigCh:
		log.Info("Shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Stop(ctx); err != nil {
		log.Warn("Error stopping HTTP server", "error", err)
	}

	log.Info("Server stopped")
	return nil
}

// restoreReports reloads reports announced before a restart from the event
// journal into the in-memory store.
func restoreReports(svc *evaluation.Service, journal *bus.EventLogger, ttl time.Duration, log *logger.Logger) {
	var since time.Time
	if ttl > 0 {
		since = time.Now().Add(-ttl)
	}

	events, err := journal.GetEvents(bus.TopicReportCreated, since, 0)
	if err != nil {
		log.Warn("Failed to read event journal", "error", err)
		return
	}

	n, err := svc.Restore(context.Background(), events)
	if err != nil {
		log.Warn("Failed to restore reports", "error", err, "restored", n)
		return
	}
	if n > 0 {
		log.Info("Restored reports from event journal", "count", n)
	}
}
