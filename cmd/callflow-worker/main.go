// Callflow Worker — выполняет исходящие звонки.
//
// Worker:
//   - Запускает два пула: normal и bulk, каждый со своим топиком
//   - Выполняет tasks через выбранного провайдера
//   - Откладывает tasks вне рабочих часов и при заполненном провайдере
//   - Перечитывает конфигурацию при изменении файла CALLFLOW_CONFIG
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Callflow/internal/bootstrap"
	"github.com/shaiso/Callflow/internal/config"
	"github.com/shaiso/Callflow/internal/domain"
	"github.com/shaiso/Callflow/internal/telemetry"
	"github.com/shaiso/Callflow/internal/worker"
)

func main() {
	_ = godotenv.Load()

	// Инициализируем structured logging
	logger := telemetry.SetupLogger("callflow-worker")
	logger.Info("starting callflow-worker")

	cfg, err := config.Load("")
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracing, err := telemetry.InitTracing(ctx, cfg.Tracing)
	if err != nil {
		logger.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		tracing.Shutdown(shutdownCtx)
	}()

	backends, err := bootstrap.Open(ctx, cfg.Backends, logger)
	if err != nil {
		logger.Error("failed to open backends", "error", err)
		os.Exit(1)
	}
	defer backends.Close()

	rt, err := bootstrap.NewRuntime(cfg, backends, tracing.Tracer, logger)
	if err != nil {
		logger.Error("failed to build runtime", "error", err)
		os.Exit(1)
	}
	logger.Info("providers registered", "providers", rt.Selector.Registry().Kinds())

	// Пулы normal и bulk
	var pools []*worker.Pool
	for _, mode := range []domain.Mode{domain.ModeNormal, domain.ModeBulk} {
		pool, err := rt.NewPool(mode)
		if err != nil {
			logger.Error("failed to create pool", "mode", mode, "error", err)
			os.Exit(1)
		}
		if err := pool.Start(ctx); err != nil {
			logger.Error("failed to start pool", "mode", mode, "error", err)
			stopAll(pools)
			os.Exit(1)
		}
		pools = append(pools, pool)
	}

	// Перезагрузка конфигурации
	if cfg.Path != "" {
		watcher := config.NewWatcher(cfg.Path, func(next config.Config) {
			if err := rt.Apply(next, pools...); err != nil {
				logger.Error("failed to apply config", "error", err)
			}
		}, logger)
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("config watcher disabled", "error", err)
		}
	}

	// HTTP mux: /healthz + /metrics + /stats
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := backends.Store.Ping(r.Context()); err != nil {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		stats := make([]worker.Stats, len(pools))
		for i, p := range pools {
			stats[i] = p.Stats()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8082"
	if v := os.Getenv("WORKER_PORT"); v != "" {
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

	// Ожидаем сигнал завершения
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	// Останавливаем пулы: звонки в процессе получают отмену
	stopAll(pools)
	logger.Info("callflow-worker stopped")
}

func stopAll(pools []*worker.Pool) {
	for _, p := range pools {
		p.Stop()
	}
}
