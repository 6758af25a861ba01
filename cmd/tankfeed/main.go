// Command tankfeed runs a standalone telemetry feed: a WebSocket
// endpoint that emits simulated sensor readings and alerts for a set
// of tanks. TankSentry binds to it during development and testing.
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

	"go.uber.org/zap"

	"github.com/wardflow/tanksentry/internal/auth"
	"github.com/wardflow/tanksentry/internal/config"
	"github.com/wardflow/tanksentry/internal/feed"
	"github.com/wardflow/tanksentry/internal/telemetry"
	"github.com/wardflow/tanksentry/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		os.Exit(0)
	}

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

	logger.Info("tankfeed starting", zap.String("version", version.Short()))

	secret := v.GetString("auth.secret")
	if secret == "" {
		logger.Fatal("auth.secret must be set so tankfeed and tanksentry share handshake tokens")
	}
	tokens := auth.NewTokenService([]byte(secret), v.GetDuration("auth.token_ttl"))

	policy := telemetry.DefaultPolicy()
	if err := v.UnmarshalKey("policy", &policy); err != nil {
		logger.Fatal("invalid classification policy", zap.Error(err))
	}

	hub := feed.NewHub(logger.Named("hub"))
	handler := feed.NewHandler(hub, tokens, logger.Named("feed"))

	tanks := v.GetStringSlice("feed.tanks")
	sim := feed.NewSimulator(hub, tanks, v.GetDuration("feed.emit_interval"), policy, logger.Named("sim"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sim.Start(ctx)
	defer sim.Stop()

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	addr := fmt.Sprintf("%s:%d", v.GetString("feed.host"), v.GetInt("feed.port"))
	srv := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("feed listening", zap.String("addr", addr), zap.Strings("tanks", tanks))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("feed server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	sim.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("feed shutdown error", zap.Error(err))
	}

	logger.Info("tankfeed stopped")
}
