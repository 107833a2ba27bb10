package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/opentrusty/tenantgate/internal/config"
	"github.com/opentrusty/tenantgate/internal/observability/logger"
	"github.com/opentrusty/tenantgate/internal/session"
	"github.com/opentrusty/tenantgate/internal/store/postgres"
)

// cleanup purges expired sessions once and exits. Meant for cron.
func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName + "-cleanup",
	})

	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: 2,
		MaxIdleConns: 1,
	})
	if err != nil {
		slog.Error("failed to connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	sessions := session.NewService(postgres.NewSessionRepository(db), cfg.Session.Lifetime, cfg.Session.IdleTimeout)
	n, err := sessions.CleanupExpired(ctx)
	if err != nil {
		slog.Error("session cleanup failed", logger.Component("cleanup"), logger.Error(err))
		os.Exit(1)
	}
	slog.Info("expired sessions purged", logger.Component("cleanup"), slog.Int64("count", n))
}
