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
	"time"

	"github.com/spf13/cobra"

	"kennel/internal/config"
	"kennel/internal/events"
	"kennel/internal/metrics"
	"kennel/internal/report"
	"kennel/internal/server"
	"kennel/internal/service"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "kenneld",
		Short: "Supervise service processes and stream their output",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "./kennel.yaml", "path to config file")

	root.AddCommand(
		serveCmd(),
		configValidateCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config-validate",
		Short: "Validate the config file and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			fmt.Printf("config OK: %d services, listening on %s\n", len(cfg.Services), cfg.Listen)
			return nil
		},
	}
}

func run() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return err
	}
	logger.Info("config loaded", "services", len(cfg.Services), "listen", cfg.Listen)

	emitter := events.NewEmitter(logger)
	metrics.RegisterEventHandler(emitter)

	// Remote status reporting is optional; a missing endpoint at startup is
	// logged and the daemon runs without it.
	var reporter *report.Client
	if cfg.Report.URL != "" {
		reporter, err = report.Connect(cfg.Report, "kenneld", logger)
		if err != nil {
			logger.Warn("status reporting disabled", "error", err)
		} else {
			reporter.RegisterEventHandler(emitter)
			defer reporter.Close()
		}
	}

	registry := service.NewRegistry(emitter, logger)
	for _, sc := range cfg.Services {
		svc := service.New(service.DescriptionFromConfig(sc), emitter, logger)
		registry.Insert(svc)
	}

	for _, entry := range registry.List() {
		svc, ok := registry.Fetch(entry.ID)
		if !ok {
			continue
		}
		if err := svc.Start(); err != nil {
			logger.Error("failed to start service", "service", svc.Name(), "error", err)
			registry.StopAll()
			return err
		}
	}

	srv := server.New(registry, emitter, cfg.Defaults, logger)
	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		logger.Error("http server failed", "error", err)
		registry.StopAll()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}

	registry.StopAll()
	logger.Info("all services stopped, bye")
	return nil
}
