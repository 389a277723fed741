package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crmbridge/internal/config"
	"crmbridge/internal/constants"
	"crmbridge/internal/journal"
	"crmbridge/internal/models"
	"crmbridge/internal/service"
	"crmbridge/internal/tracing"
	"crmbridge/pkg/whatsapp"
	"crmbridge/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes phone numbers)")
	configPath = flag.String("config", "", "Path to a JSON or YAML configuration file (default: config.json if present)")
	version    = flag.Bool("version", false, "Show version information")
)

const defaultConfigFile = "config.json"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("crmbridge %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting crmbridge")

	path := resolveConfigPath(*configPath)
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	configureLogLevel(logger, cfg, *verbose)
	for _, warning := range config.Warnings(cfg) {
		logger.Warn(warning)
	}

	tracingManager := tracing.NewTracingManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	// The journal only backs /status history; the bridge runs without it
	sessionJournal, err := journal.OpenWithRetry(ctx, cfg.Journal.Path, logger)
	if err != nil {
		logger.WithError(err).Warn("Session journal unavailable, continuing without transition history")
		sessionJournal = nil
	} else {
		defer sessionJournal.Close()
		logger.WithFields(logrus.Fields{
			service.LogFieldRunID: sessionJournal.RunID(),
			"path":                cfg.Journal.Path,
		}).Info("Session journal opened")
	}

	client := whatsapp.NewClient(types.ClientConfig{
		BaseURL:     cfg.Adapter.BaseURL,
		APIKey:      cfg.Adapter.APIKey,
		SessionName: cfg.Session.Name,
		Timeout:     time.Duration(cfg.Adapter.TimeoutSec) * time.Second,
		EventBuffer: constants.DefaultEventBufferSize,
	}, logger)

	relay := service.NewRelay(service.RelayConfig{
		WebhookURL: cfg.CRM.WebhookURL,
		SyncKey:    cfg.CRM.SyncKey,
		Timeout:    time.Duration(cfg.CRM.WebhookTimeoutSec) * time.Second,
		QueueSize:  constants.DefaultRelayQueueSize,
		Location:   config.Location(cfg),
		Verbose:    *verbose,
	}, logger)
	relay.Start(ctx)

	supervisor := service.NewSupervisor(client, relay, supervisorConfig(ctx, cfg, sessionJournal, logger), logger,
		supervisorOptions(logger, sessionJournal)...)
	if err := supervisor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start session supervisor: %w", err)
	}

	gateway := service.NewGateway(client, supervisor, service.GatewayConfig{
		SyncKey:     cfg.CRM.SyncKey,
		SendTimeout: time.Duration(cfg.CRM.SendTimeoutSec) * time.Second,
		Verbose:     *verbose,
	}, logger)

	liveness := service.NewLivenessMonitor(client, supervisor,
		time.Duration(cfg.Session.LivenessIntervalSec)*time.Second,
		time.Duration(cfg.Session.LivenessTimeoutSec)*time.Second,
		logger,
	)
	liveness.Start(ctx)

	var scheduler *service.Scheduler
	if sessionJournal != nil {
		scheduler = service.NewScheduler(sessionJournal, cfg.Journal.RetentionDays, cfg.Journal.CleanupIntervalHours, logger)
		go scheduler.Start(ctx)
	}

	if path != "" {
		watcher := config.NewConfigWatcher(path, cfg, 0, logger)
		if !*verbose {
			watcher.OnConfigChange(config.ApplyLogLevel(logger))
		}
		go func() {
			if err := watcher.Start(ctx); err != nil {
				logger.WithError(err).Warn("Configuration watcher stopped")
			}
		}()
	}

	server := NewServer(cfg, supervisor, gateway, logger)
	if sessionJournal != nil {
		server.SetHistory(sessionJournal)
	}
	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case runErr = <-serverErrCh:
		logger.Error(runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to shutdown server gracefully")
	}
	liveness.Stop()
	if err := supervisor.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to stop session supervisor")
	}
	if err := relay.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to stop relay")
	}
	if scheduler != nil {
		scheduler.Stop()
	}

	logger.Info("Shutdown completed")
	return runErr
}

// resolveConfigPath returns the explicit path, or the default file when it
// exists, or "" to run from defaults and environment alone
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat(defaultConfigFile); err == nil {
		return defaultConfigFile
	}
	return ""
}

func configureLogLevel(logger *logrus.Logger, cfg *models.Config, verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - phone numbers will be logged unmasked")
		return
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}

func supervisorConfig(ctx context.Context, cfg *models.Config, j *journal.Journal, logger *logrus.Logger) service.SupervisorConfig {
	sc := service.SupervisorConfig{
		SessionName:          cfg.Session.Name,
		MaxReconnectAttempts: cfg.Session.MaxReconnectAttempts,
		BaseDelay:            time.Duration(cfg.Session.ReconnectBaseDelaySec) * time.Second,
		MaxDelay:             time.Duration(cfg.Session.ReconnectMaxDelaySec) * time.Second,
		StartTimeout:         time.Duration(cfg.Session.StartTimeoutSec) * time.Second,
		CloseTimeout:         time.Duration(constants.DefaultSessionCloseTimeoutSec) * time.Second,
	}
	if j == nil {
		return sc
	}

	last, ok, err := j.LastConnected(ctx, cfg.Session.Name)
	switch {
	case err != nil:
		logger.WithError(err).Warn("Failed to read last connection from journal")
	case ok:
		sc.LastConnectedAt = last
		logger.WithField("last_connected_at", last.Format(time.RFC3339)).Info("Restored last connection time from journal")
	}
	return sc
}

func supervisorOptions(logger *logrus.Logger, j *journal.Journal) []service.SupervisorOption {
	opts := []service.SupervisorOption{
		service.WithPresenter(service.NewQRPresenter(logger, os.Stdout)),
	}
	// A nil *Journal must not become a non-nil recorder interface
	if j != nil {
		opts = append(opts, service.WithRecorder(j))
	}
	return opts
}
