package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"growthboard/internal/auth"
	"growthboard/internal/board"
	"growthboard/internal/config"
	"growthboard/internal/db"
	api "growthboard/internal/http"
	"growthboard/internal/logging"
	"growthboard/internal/maintenance"
	"growthboard/internal/plan"
	"growthboard/internal/planner"
	"growthboard/internal/repo"
	"growthboard/migrations"
)

func main() {
	cfg := config.Load()
	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect db: %v", err)
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, migrations.FS); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	repository := repo.New(pool)
	generator := planner.NewClient(cfg.PlannerURL, logger)
	planService := plan.NewService(repository, generator, logger)
	boards := board.NewManager(repository, planService, logger)

	reconciler := maintenance.NewReconciler(repository, logger)
	if err := reconciler.Start(); err != nil {
		log.Fatalf("reconciler: %v", err)
	}

	handler := &api.API{
		Repo:    repository,
		Plan:    planService,
		Boards:  boards,
		Auth:    auth.NewManager(cfg.JWTSecret),
		Log:     logger,
		Origins: splitOrigins(cfg.CORSOrigin),
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Error("server shutdown", "err", err)
	}
	reconciler.Stop()
	// Let queued write-behind writes land before the pool closes.
	boards.Close()
}

func splitOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
