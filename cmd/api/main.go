package main

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	backend "github.com/tasktoearn/backend"
	"github.com/tasktoearn/backend/internal/admin"
	"github.com/tasktoearn/backend/internal/auth"
	"github.com/tasktoearn/backend/internal/blob"
	"github.com/tasktoearn/backend/internal/catalog"
	"github.com/tasktoearn/backend/internal/cleanup"
	"github.com/tasktoearn/backend/internal/config"
	"github.com/tasktoearn/backend/internal/database"
	"github.com/tasktoearn/backend/internal/ledger"
	"github.com/tasktoearn/backend/internal/middleware"
	"github.com/tasktoearn/backend/internal/progress"
	"github.com/tasktoearn/backend/internal/router"
	"github.com/tasktoearn/backend/internal/web"
	"github.com/tasktoearn/backend/internal/withdrawal"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Cannot reach PostgreSQL (connection refused or invalid). Ensure Postgres is running, e.g. make dev-up or docker-compose up -d", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	slog.Info("Connected to PostgreSQL database successfully!")

	migrationsFS, err := fs.Sub(backend.MigrationsFS, "migrations")
	if err != nil {
		slog.Error("Failed to open embedded migrations", "error", err)
		os.Exit(1)
	}
	if err := database.RunMigrations(cfg.DatabaseURL, migrationsFS); err != nil {
		slog.Error("Schema migrations failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Schema migrations applied")

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed. If the error is 'connection refused', start PostgreSQL first (e.g. make dev-up)", "error", err)
		os.Exit(1)
	}
	slog.Info("River migrations applied")

	blobStore, err := blob.NewFSStore(cfg.BlobDir)
	if err != nil {
		slog.Error("Failed to initialize blob store", "dir", cfg.BlobDir, "error", err)
		os.Exit(1)
	}

	// Ledger
	ledgerRepo := ledger.NewRepository(pool)
	ledgerSvc := ledger.NewService(ledgerRepo, ledgerRepo)

	// Proof image cleanup: insert func is set after the River client is
	// created (breaks the init cycle)
	var insertMu sync.Mutex
	var insertFn progress.EnqueueBlobDeleteFunc
	enqueueBlobDelete := func(ctx context.Context, tx pgx.Tx, imageRef string) error {
		insertMu.Lock()
		fn := insertFn
		insertMu.Unlock()
		if fn == nil {
			panic("river insert not wired")
		}
		return fn(ctx, tx, imageRef)
	}

	catalogRepo := catalog.NewRepository(pool)
	catalogSvc := catalog.NewService(catalogRepo)

	progressRepo := progress.NewRepository(pool)
	progressSvc := progress.NewService(pool, catalogRepo, progressRepo, ledgerSvc, enqueueBlobDelete, logger)

	workers := river.NewWorkers()
	river.AddWorker(workers, cleanup.NewDeleteProofImageWorker(blobStore, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	insertMu.Lock()
	insertFn = func(ctx context.Context, tx pgx.Tx, imageRef string) error {
		_, err := riverClient.InsertTx(ctx, tx, cleanup.DeleteProofImageArgs{ImageRef: imageRef}, nil)
		return err
	}
	insertMu.Unlock()

	// Auth
	authRepo := auth.NewRepository(pool)
	authSvc := auth.NewService(authRepo, cfg.JWTSecret)

	withdrawalRepo := withdrawal.NewRepository(pool)
	withdrawalSvc := withdrawal.NewService(pool, withdrawalRepo, ledgerSvc, cfg.MinWithdrawPoints)

	handlers := router.Handlers{
		Auth:       auth.NewHandler(authSvc, logger),
		Catalog:    catalog.NewHandler(catalogSvc, logger),
		Progress:   progress.NewHandler(progressSvc, progressRepo, blobStore, logger),
		Ledger:     ledger.NewHandler(ledgerRepo, logger),
		Withdrawal: withdrawal.NewHandler(withdrawalSvc, withdrawalRepo, logger),
		Admin: admin.NewHandler(
			catalogSvc, progressSvc, progressRepo,
			withdrawalSvc, withdrawalRepo,
			authRepo, ledgerRepo, blobStore, logger,
		),
	}

	authMW := middleware.JWTAuth(authSvc, authSvc)
	apiRouter := router.New(handlers, authMW)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiRouter)
	mux.HandleFunc("GET /api/v1/health/db", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			web.Error(w, http.StatusServiceUnavailable, web.CodeInternal, "database unreachable")
			return
		}
		web.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	gate := middleware.NewGate(cfg.RateLimitPerMin, time.Minute, cfg.BannedIPs)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(gate.Handler(mux))

	// Start River client (processes proof image deletions)
	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	serverAddr := "0.0.0.0:" + strconv.Itoa(cfg.Port)
	slog.Info("Starting HTTP server", "addr", serverAddr)
	if err := http.ListenAndServe(serverAddr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
