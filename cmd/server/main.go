// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

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

	"github.com/opentrusty/tenantgate/internal/audit"
	"github.com/opentrusty/tenantgate/internal/config"
	"github.com/opentrusty/tenantgate/internal/identity"
	"github.com/opentrusty/tenantgate/internal/mail"
	"github.com/opentrusty/tenantgate/internal/membership"
	"github.com/opentrusty/tenantgate/internal/observability/logger"
	"github.com/opentrusty/tenantgate/internal/observability/metrics"
	"github.com/opentrusty/tenantgate/internal/observability/tracing"
	"github.com/opentrusty/tenantgate/internal/onboarding"
	"github.com/opentrusty/tenantgate/internal/profile"
	"github.com/opentrusty/tenantgate/internal/session"
	"github.com/opentrusty/tenantgate/internal/store/postgres"
	"github.com/opentrusty/tenantgate/internal/store/redis"
	"github.com/opentrusty/tenantgate/internal/tenant"
	transportHTTP "github.com/opentrusty/tenantgate/internal/transport/http"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
		OTelEnabled: cfg.Observability.OTELEnabled,
	})

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(ctx, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, cfg); err != nil {
		slog.Error("server failed", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting tenantgate")

	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	} else {
		defer tracer.Shutdown(context.Background())
	}

	domainMetrics, err := metrics.New(metrics.Config{Enabled: cfg.Observability.OTELEnabled}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
	}

	db, err := openDB(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	slog.Info("connected to database")

	userRepo := postgres.NewUserRepository(db)
	profileRepo := postgres.NewProfileRepository(db)
	tenantRepo := postgres.NewTenantRepository(db)
	sessionRepo := postgres.NewSessionRepository(db)

	auditLogger := audit.NewSlogLogger()
	passwordHasher := identity.NewPasswordHasher(
		cfg.Security.Argon2Memory,
		cfg.Security.Argon2Iterations,
		cfg.Security.Argon2Parallelism,
		cfg.Security.Argon2SaltLength,
		cfg.Security.Argon2KeyLength,
	)

	identityService := identity.NewService(
		userRepo,
		passwordHasher,
		auditLogger,
		cfg.Security.LockoutMaxAttempts,
		cfg.Security.LockoutDuration,
	)
	sessionService := session.NewService(sessionRepo, cfg.Session.Lifetime, cfg.Session.IdleTimeout)
	tenantService := tenant.NewService(tenantRepo, auditLogger)

	notifier, closeNotifier, err := newNotifier(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeNotifier()

	membershipService := membership.NewService(membership.Options{
		Identities: identityService,
		Profiles:   profileRepo,
		Tenants:    tenantRepo,
		Notifier:   notifier,
		Tokens:     membership.NewInviteTokens(cfg.Invite.Secret, cfg.Invite.TTL),
		BaseURL:    cfg.Server.PublicBaseURL,
		Audit:      auditLogger,
		Metrics:    domainMetrics,
	})

	urls := onboarding.DefaultURLs()
	cookieCfg := transportHTTP.SessionConfig{
		CookieName:     cfg.Session.CookieName,
		CookieDomain:   cfg.Session.CookieDomain,
		CookiePath:     cfg.Session.CookiePath,
		CookieSecure:   cfg.Session.CookieSecure,
		CookieHTTPOnly: cfg.Session.CookieHTTPOnly,
		CookieSameSite: cfg.Session.SameSite(),
	}

	handler := transportHTTP.NewHandler(transportHTTP.Services{
		Identity:   identityService,
		Sessions:   sessionService,
		Profiles:   profile.NewService(profileRepo, auditLogger),
		Tenants:    tenantService,
		Onboarding: onboarding.NewService(profileRepo, tenantService, auditLogger, domainMetrics),
		Membership: membershipService,
		Gate:       onboarding.NewGate(profileRepo, urls, cfg.Gate.ExemptPaths, domainMetrics),
		URLs:       urls,
		Audit:      auditLogger,
		DB:         db,
	}, transportHTTP.NewFlagStore([]byte(cfg.Session.Secret), cfg.Session.FlagCookieName, cookieCfg), cookieCfg)

	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, cfg.RateLimit.IdleTTL)
	router := transportHTTP.NewRouter(handler, rateLimiter, transportHTTP.RouterConfig{
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go sessionService.RunCleanup(ctx, cfg.Session.CleanupEvery)
	go rateLimiter.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"), logger.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}

	slog.Info("server stopped")
	return nil
}

// newNotifier picks the invitation delivery path. The smtp driver queues
// invitations in Redis and relays them from a background worker. The
// returned close func must run after the HTTP server has drained.
func newNotifier(ctx context.Context, cfg *config.Config) (membership.Notifier, func(), error) {
	if cfg.Mail.Driver != "smtp" {
		return mail.NewDirect(mail.NewLogSender(slog.Default())), func() {}, nil
	}

	client, err := redis.Connect(ctx, redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Timeout:  cfg.Redis.Timeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	sender := mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.Mail.SMTPHost,
		Port:     cfg.Mail.SMTPPort,
		User:     cfg.Mail.SMTPUser,
		Password: cfg.Mail.SMTPPass,
		From:     cfg.Mail.From,
	})
	worker := redis.NewWorker(client, cfg.Redis.OutboxKey, sender, slog.Default())
	go worker.Run(ctx)

	closeClient := func() {
		if err := client.Close(); err != nil {
			slog.Error("failed to close redis client", logger.Error(err))
		}
	}
	return redis.NewOutbox(client, cfg.Redis.OutboxKey), closeClient, nil
}

func openDB(ctx context.Context, cfg *config.Config) (*postgres.DB, error) {
	return postgres.New(ctx, postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
}

func runMigrate(ctx context.Context, cfg *config.Config) error {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Println("Applying initial schema...")
	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		return err
	}
	fmt.Println("Migration successful.")
	return nil
}
