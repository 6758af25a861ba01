package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wardflow/tanksentry/internal/auth"
	"github.com/wardflow/tanksentry/internal/config"
	"github.com/wardflow/tanksentry/internal/conn"
	"github.com/wardflow/tanksentry/internal/event"
	"github.com/wardflow/tanksentry/internal/export"
	"github.com/wardflow/tanksentry/internal/notify"
	"github.com/wardflow/tanksentry/internal/server"
	"github.com/wardflow/tanksentry/internal/store"
	"github.com/wardflow/tanksentry/internal/telemetry"
	"github.com/wardflow/tanksentry/internal/version"
	"github.com/wardflow/tanksentry/pkg/models"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	// Load configuration (before logger, so log level/format can be configured).
	v, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("TankSentry server starting", zap.String("version", version.Short()))

	if f := v.ConfigFileUsed(); f != "" {
		logger.Info("configuration loaded",
			zap.String("component", "config"),
			zap.String("source", f),
		)
	} else {
		logger.Warn("no configuration file found, using defaults",
			zap.String("component", "config"),
		)
	}

	// Open database and run notification migrations.
	dbPath := v.GetString("database.dsn")
	db, err := store.New(dbPath)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := notify.Migrate(ctx, db); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database initialized",
		zap.String("component", "database"),
		zap.String("path", dbPath),
	)

	// Shared event bus.
	bus := event.NewBus(logger.Named("event"))

	// Channel handshake tokens.
	secret := v.GetString("auth.secret")
	if secret == "" {
		// Generate an ephemeral secret -- tokens won't survive restarts.
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			logger.Fatal("failed to generate auth secret", zap.Error(err))
		}
		secret = hex.EncodeToString(b)
		logger.Info("using auto-generated auth secret (set auth.secret in config to persist tokens across restarts)",
			zap.String("component", "auth"),
		)
	}
	tokens := auth.NewTokenService([]byte(secret), v.GetDuration("auth.token_ttl"))

	// Classification policy from config.
	policy := telemetry.DefaultPolicy()
	if err := v.UnmarshalKey("policy", &policy); err != nil {
		logger.Fatal("invalid classification policy", zap.Error(err))
	}

	dedup := telemetry.NewDeduplicator(v.GetInt("alerts.dedup_capacity"))
	router := telemetry.NewRouter(policy, dedup, bus, logger.Named("telemetry"))

	// Telemetry channel manager and subscription registry.
	mgr := conn.NewManager(conn.Config{
		URL:              v.GetString("channel.url"),
		HandshakeTimeout: v.GetDuration("channel.handshake_timeout"),
		MaxAttempts:      v.GetInt("channel.max_attempts"),
		InitialBackoff:   v.GetDuration("channel.initial_backoff"),
		MaxBackoff:       v.GetDuration("channel.max_backoff"),
	}, nil, bus, logger.Named("channel"))
	defer mgr.Close()

	registry := conn.NewRegistry(mgr, bus, logger.Named("registry"))

	// Bind the channel when an identity is configured; otherwise stay
	// idle until an operator binds at runtime.
	identity := v.GetString("channel.identity")
	if identity != "" {
		credential := v.GetString("channel.token")
		if credential == "" {
			credential, err = tokens.Issue(identity, "")
			if err != nil {
				logger.Fatal("failed to issue channel token", zap.Error(err))
			}
		}
		mgr.Bind(identity, credential)
		logger.Info("telemetry channel bound",
			zap.String("component", "channel"),
			zap.String("identity", identity),
		)

		// Express interest in any tanks pinned in configuration.
		for _, tank := range v.GetStringSlice("channel.tanks") {
			registry.Subscribe(ctx, tank)
		}
	}

	// Notification store, watcher, and HTTP handlers.
	notifyStore := notify.NewStore(db)
	watcher := notify.NewWatcher(notifyStore, bus, models.Categories(),
		v.GetDuration("notify.poll_interval"), logger.Named("notify"))
	watcher.Start(ctx)
	defer watcher.Stop()

	notifyHandler := notify.NewHandler(notifyStore, logger.Named("notify"))
	exportHandler := export.NewHandler(router, logger.Named("export"))

	// HTTP server.
	addr := fmt.Sprintf("%s:%d", v.GetString("server.host"), v.GetInt("server.port"))
	readyCheck := server.ReadinessChecker(func(ctx context.Context) error {
		return db.DB().PingContext(ctx)
	})
	srv := server.New(addr, router, mgr, logger.Named("server"), readyCheck,
		notifyHandler, exportHandler)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	logger.Info("TankSentry server ready", zap.String("addr", addr))

	// Wait for shutdown signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	watcher.Stop()
	mgr.Close()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	logger.Info("TankSentry server stopped")
}
