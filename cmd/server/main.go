// Copyright 2026 The CourseKit Authors
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
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coursekit/coursekit/internal/audit"
	"github.com/coursekit/coursekit/internal/billing"
	"github.com/coursekit/coursekit/internal/config"
	"github.com/coursekit/coursekit/internal/invitation"
	"github.com/coursekit/coursekit/internal/member"
	"github.com/coursekit/coursekit/internal/notify"
	"github.com/coursekit/coursekit/internal/observability/logger"
	"github.com/coursekit/coursekit/internal/observability/metrics"
	"github.com/coursekit/coursekit/internal/observability/tracing"
	"github.com/coursekit/coursekit/internal/organization"
	"github.com/coursekit/coursekit/internal/store/postgres"
	transportHTTP "github.com/coursekit/coursekit/internal/transport/http"
	"github.com/coursekit/coursekit/internal/trial"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	slog.Info("starting coursekit subscription engine")

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(cfg); err != nil {
			fmt.Printf("Migration failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	ctx := context.Background()

	// Initialize tracer
	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	}
	if tracer != nil {
		defer tracer.Shutdown(ctx)
	}

	// Initialize meter
	_, err = metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
	}

	// Initialize database
	db, err := openDB(ctx, cfg)
	if err != nil {
		slog.Error("failed to connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to database")

	// Initialize repositories
	orgRepo := postgres.NewOrganizationRepository(db)
	memberRepo := postgres.NewMemberRepository(db)
	inviteRepo := postgres.NewInvitationRepository(db)
	ledger := postgres.NewBillingEventRepository(db)
	membershipTx := postgres.NewMembershipTx(db)
	trialWarnings := postgres.NewTrialWarningRepository(db)

	// Initialize helpers
	auditLogger := audit.NewSlogLogger()
	passwordHasher := member.NewPasswordHasher(
		cfg.Security.Argon2Memory,
		cfg.Security.Argon2Iterations,
		cfg.Security.Argon2Parallelism,
		cfg.Security.Argon2SaltLength,
		cfg.Security.Argon2KeyLength,
	)

	var mailer notify.Mailer = notify.NoopMailer{}
	if cfg.SMTP.Host != "" {
		mailer = notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
	}

	// Initialize services
	orgService := organization.NewService(orgRepo, auditLogger)
	seats := member.NewSeatAccountant(orgRepo, memberRepo)
	memberService := member.NewService(memberRepo, membershipTx, auditLogger)

	provider := billing.NewStripeProvider(billing.StripeConfig{
		APIKey:        cfg.Stripe.APIKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Timeout:       cfg.Stripe.RequestTimeout,
	})
	reconciler := billing.NewReconciler(orgService, ledger, provider, auditLogger)
	checkoutCfg := billing.CheckoutConfig{
		PriceIDs: map[organization.Tier]string{
			organization.TierStarter: cfg.Stripe.StarterPriceID,
			organization.TierPro:     cfg.Stripe.ProPriceID,
		},
		TrialDays:  int64(cfg.Trial.DurationDays),
		SuccessURL: cfg.Server.BaseURL + "/billing/success",
		CancelURL:  cfg.Server.BaseURL + "/billing/cancel",
	}

	inviteService := invitation.NewService(
		inviteRepo,
		membershipTx,
		orgService,
		memberRepo,
		seats,
		passwordHasher,
		mailer,
		auditLogger,
		cfg.Server.BaseURL,
	)

	trialMonitor := trial.NewMonitor(orgRepo, memberRepo)
	trialRunner := trial.NewRunner(trialMonitor, trialWarnings, mailer, auditLogger, cfg.Server.BaseURL+"/billing")

	// Rate limiter
	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	tokens := transportHTTP.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)

	// Initialize HTTP handler
	handler := transportHTTP.NewHandler(
		orgService,
		memberService,
		inviteService,
		reconciler,
		checkoutCfg,
		trialRunner,
		tokens,
		passwordHasher,
		membershipTx,
		seats,
		auditLogger,
	)

	// Create router
	router := transportHTTP.NewRouter(handler, rateLimiter)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Background workers
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	go trialRunner.Run(workerCtx, cfg.Trial.ScanInterval)

	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				if _, err := inviteService.CleanupExpired(workerCtx); err != nil {
					slog.ErrorContext(workerCtx, "failed to cleanup expired invitations", logger.Error(err))
				}
			}
		}
	}()

	// Start server
	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"))
		slog.Info(fmt.Sprintf("listening on %s", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	stopWorkers()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}

	slog.Info("server stopped")
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

func runMigrate(cfg *config.Config) error {
	ctx := context.Background()
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	slog.Info("database schema applied")
	return nil
}
