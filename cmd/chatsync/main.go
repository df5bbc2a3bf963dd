package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatsync/internal/cache"
	"chatsync/internal/config"
	"chatsync/internal/constants"
	"chatsync/internal/events"
	"chatsync/internal/retry"
	"chatsync/internal/service"
	"chatsync/internal/store"
	"chatsync/internal/tracing"
	"chatsync/pkg/chatapi"
	"chatsync/pkg/push"
	"chatsync/pkg/upload"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("chatsync %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
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
	}).Info("Starting chatsync")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
			level = logrus.InfoLevel
		}
		logger.SetLevel(level)
	}

	token := os.Getenv("CHATSYNC_AUTH_TOKEN")
	if token == "" {
		return fmt.Errorf("CHATSYNC_AUTH_TOKEN environment variable is required")
	}
	selfID := os.Getenv("CHATSYNC_USER_ID")
	if selfID == "" {
		return fmt.Errorf("CHATSYNC_USER_ID environment variable is required")
	}
	tokenProvider := func() (string, error) { return token, nil }

	tracingManager := tracing.NewManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	historyCache, err := cache.New(cfg.Cache.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize history cache: %w", err)
	}
	defer historyCache.Close()

	if deleted, err := historyCache.CleanupOldMessages(ctx, cfg.Cache.RetentionDays); err != nil {
		logger.Warnf("Cache cleanup failed: %v", err)
	} else if deleted > 0 {
		logger.WithField("deleted", deleted).Info("Pruned expired cached messages")
	}

	st := store.New(logger)
	bus := events.NewBus(logger)

	apiClient := chatapi.NewClient(cfg.API.BaseURL, tokenProvider, time.Duration(cfg.API.TimeoutSec)*time.Second)
	uploadClient := upload.NewClient(cfg.Upload.URL, tokenProvider, time.Duration(cfg.Upload.TimeoutSec)*time.Second, cfg.Upload.MaxSizeMB)

	pushClient := push.NewClient(push.Config{
		URL: cfg.Push.URL,
		Reconnect: retry.BackoffConfig{
			InitialDelay: time.Duration(cfg.Push.ReconnectInitialMs) * time.Millisecond,
			MaxDelay:     time.Duration(cfg.Push.ReconnectMaxMs) * time.Millisecond,
			Multiplier:   cfg.Push.ReconnectMultiplier,
			Jitter:       true,
		},
		HandshakeTimeout: time.Duration(cfg.Push.HandshakeTimeoutSec) * time.Second,
	}, tokenProvider, logger)

	pipeline := service.NewSendPipeline(apiClient, uploadClient, st, selfID,
		time.Duration(cfg.Engine.AssumeDeliveredMs)*time.Millisecond, logger)
	typing := service.NewTypingTracker(time.Duration(cfg.Engine.TypingExpirySec)*time.Second, bus, logger)
	receipts := service.NewReadReceiptTracker(apiClient, st, pushClient, selfID, logger)
	aggregator := service.NewConversationAggregator(apiClient, st, bus, selfID, logger)
	syncer := service.NewSyncer(apiClient, st, historyCache, logger)

	bridge := service.NewEventBridge(pushClient, st, typing, bus, syncer, receipts, aggregator, selfID, logger)

	go func() {
		if err := pushClient.Run(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("Push channel terminated")
		}
	}()
	go bridge.Run(ctx)

	if err := aggregator.Refresh(ctx); err != nil {
		logger.WithError(err).Warn("Initial conversation refresh failed, continuing with cached state")
	}
	for _, conv := range aggregator.List() {
		if err := syncer.WarmStart(ctx, conv.ID); err != nil {
			logger.WithError(err).WithField("conversation_id", conv.ID).Debug("Warm start skipped")
		}
	}

	server := NewServer(st, aggregator, pipeline, logger)
	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-serverErr:
		return fmt.Errorf("debug server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultGracefulShutdownSec*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("Server shutdown error: %v", err)
	}

	return nil
}
