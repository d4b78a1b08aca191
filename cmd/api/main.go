package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/melodix/backend/internal/adreward"
	"github.com/melodix/backend/internal/config"
	"github.com/melodix/backend/internal/db"
	"github.com/melodix/backend/internal/entitlement"
	"github.com/melodix/backend/internal/reconcile"
	"github.com/melodix/backend/internal/router"
	"github.com/melodix/backend/internal/subscription"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.New()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL (connection refused or invalid). Ensure Postgres is running", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL database")

	// Schema migrations (goose over the pgx stdlib driver)
	sqlDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to open migration connection", "error", err)
		os.Exit(1)
	}
	if err := db.RunMigrations(sqlDB); err != nil {
		slog.Error("Schema migrations failed", "error", err)
		os.Exit(1)
	}
	_ = sqlDB.Close()
	slog.Info("Schema migrations applied")

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}
	slog.Info("River migrations applied")

	// Stores
	entRepo := entitlement.NewRepository(pool)
	adRepo := adreward.NewRepository(pool)
	subRepo := subscription.NewRepository(pool)

	// Services
	entSvc := entitlement.NewService(entRepo)
	adSvc := adreward.NewService(entRepo, adRepo)
	subSvc := subscription.NewService(subRepo, subRepo, entRepo, subscription.ManualSettler{}, cfg.SettleTimeout)

	// Expiry reconciliation worker (periodic River job)
	workers := river.NewWorkers()
	river.AddWorker(workers, reconcile.NewExpirySweepWorker(entRepo, subSvc, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
		PeriodicJobs: []*river.PeriodicJob{
			river.NewPeriodicJob(
				river.PeriodicInterval(cfg.ReconcileInterval),
				func() (river.JobArgs, *river.InsertOpts) {
					return reconcile.ExpirySweepArgs{BatchSize: cfg.ReconcileBatch}, nil
				},
				&river.PeriodicJobOpts{RunOnStart: true},
			),
		},
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	// Handlers & routes
	entHandler := entitlement.NewHandler(entSvc, logger)
	adHandler := adreward.NewHandler(adSvc, logger)
	subHandler := subscription.NewHandler(subSvc, logger)

	mux := router.New(entHandler, adHandler, subHandler)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Account-ID", "X-Account-Role"},
		AllowCredentials: true,
	}).Handler(mux)

	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	serverAddr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	slog.Info("Starting HTTP server", "addr", serverAddr, "env", cfg.Env)
	if err := http.ListenAndServe(serverAddr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
