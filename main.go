package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kisansathi/orchestrator/internal/config"
	"github.com/kisansathi/orchestrator/internal/oracle"
	"github.com/kisansathi/orchestrator/internal/policy"
	"github.com/kisansathi/orchestrator/internal/push"
	"github.com/kisansathi/orchestrator/internal/service"
	"github.com/kisansathi/orchestrator/internal/session"
	"github.com/kisansathi/orchestrator/internal/store"
	"github.com/kisansathi/orchestrator/internal/tools"
	handler "github.com/kisansathi/orchestrator/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting farmer assistant",
		"http_port", cfg.HTTPPort,
		"database", cfg.DatabasePath,
		"oracle_url", cfg.OracleURL,
		"oracle_model", cfg.OracleModel,
	)

	db, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		logger.Error("failed to initialize policy engine", "error", err)
		os.Exit(1)
	}

	registry := tools.NewRegistry()
	tools.RegisterFarmTools(registry, db)

	sessions := session.NewStore(cfg.SessionEviction, cfg.SessionTTL, cfg.SessionMax)
	oracleClient := oracle.NewClient(cfg.OracleURL, cfg.OracleAPIKey, cfg.OracleModel, cfg.OracleTimeout)

	hub := push.NewHub(logger)
	go hub.Run()

	svc := service.New(sessions, db, oracleClient, registry, policyEngine, hub, cfg, logger)
	server := handler.NewServer(svc, hub)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()
	logger.Info("listening", "port", cfg.HTTPPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown was not graceful", "error", err)
	}
	logger.Info("stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
