// Callflow Scheduler — возвращает в очередь отложенные tasks.
//
// Sweep запускается по cron-выражению (scheduler.cron_spec) только на
// реплике-лидере. Лидер выбирается через pg_try_advisory_lock, а без
// PostgreSQL через ключ в ResourceStore.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Callflow/internal/bootstrap"
	"github.com/shaiso/Callflow/internal/config"
	"github.com/shaiso/Callflow/internal/repo"
	"github.com/shaiso/Callflow/internal/scheduler"
	"github.com/shaiso/Callflow/internal/telemetry"
)

const (
	schedLockKey int64 = 424242

	// leaderTTL — срок ключа лидерства в ResourceStore.
	leaderTTL = 30 * time.Second
)

func main() {
	_ = godotenv.Load()

	logger := telemetry.SetupLogger("callflow-scheduler")
	logger.Info("starting callflow-scheduler")

	cfg, err := config.Load("")
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	backends, err := bootstrap.Open(ctx, cfg.Backends, logger)
	if err != nil {
		logger.Error("failed to open backends", "error", err)
		os.Exit(1)
	}
	defer backends.Close()

	sched := scheduler.New(scheduler.Config{
		Store:     backends.Store,
		Tasks:     backends.Tasks,
		Queue:     backends.Queue.Pusher(),
		BatchSize: cfg.Scheduler.BatchSize,
		Logger:    logger,
	})

	runner, err := scheduler.NewRunner(sched, scheduler.RunnerConfig{
		Spec:   cfg.Scheduler.CronSpec,
		Logger: logger,
	})
	if err != nil {
		logger.Error("invalid sweep schedule", "error", err)
		os.Exit(1)
	}

	// Выбор лидера
	var elector scheduler.Elector
	if cfg.Backends.TaskStore == config.BackendPostgres {
		pool, err := repo.NewPool(ctx, cfg.Backends.DatabaseURL, 2)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		elector = repo.NewAdvisoryLock(pool, schedLockKey)
		logger.Info("leader election via advisory lock", "key", schedLockKey)
	} else {
		id := uuid.NewString()
		elector = scheduler.NewStoreElector(backends.Store, "callflow-scheduler", id, leaderTTL)
		logger.Info("leader election via store", "id", id)
	}

	// HTTP mux: /healthz + /metrics + /last
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/last", func(w http.ResponseWriter, _ *http.Request) {
		last, runs := runner.Last()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"last": last, "runs": runs})
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8081"
	if v := os.Getenv("SCHED_PORT"); v != "" {
		port = ":" + v
	}

	server := &http.Server{Addr: port, Handler: mux}
	go func() {
		logger.Info("listening", "addr", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Блокирует до сигнала завершения
	runner.RunAsLeader(ctx, elector, scheduler.DefaultLeaderInterval)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	logger.Info("callflow-scheduler stopped")
}
