package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Callflow/internal/api"
	"github.com/shaiso/Callflow/internal/bootstrap"
	"github.com/shaiso/Callflow/internal/config"
	"github.com/shaiso/Callflow/internal/domain"
	"github.com/shaiso/Callflow/internal/governor"
	"github.com/shaiso/Callflow/internal/provider"
	"github.com/shaiso/Callflow/internal/scheduler"
	"github.com/shaiso/Callflow/internal/telemetry"
)

var (
	startTime = time.Now()
	reqTotal  = promauto.NewCounter(prometheus.CounterOpts{
		Name: "callflow_api_http_requests_total",
		Help: "Total HTTP requests handled by callflow_api",
	})
)

func main() {
	_ = godotenv.Load()

	// Инициализируем structured logging
	logger := telemetry.SetupLogger("callflow-api")
	logger.Info("starting callflow-api")

	cfg, err := config.Load("")
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Подключаемся к хранилищам и очереди
	backends, err := bootstrap.Open(ctx, cfg.Backends, logger)
	if err != nil {
		logger.Error("failed to open backends", "error", err)
		os.Exit(1)
	}
	defer backends.Close()

	providers := bootstrap.NewRegistry(cfg, logger).Kinds()
	if len(providers) == 0 {
		providers = provider.Kinds()
	}

	governors := []*governor.Governor{
		bootstrap.NewGovernor(backends.Store, cfg, domain.ModeNormal, logger),
		bootstrap.NewGovernor(backends.Store, cfg, domain.ModeBulk, logger),
	}

	// Создаём API handler
	handler := api.NewHandler(api.Config{
		Tasks:     backends.Tasks,
		Queue:     backends.Queue.Pusher(),
		Store:     backends.Store,
		Governors: governors,
		Collector: telemetry.NewCollector(backends.Store, telemetry.CollectorConfig{
			SLA:    cfg.SLA.ByMode(),
			Logger: logger,
		}),
		Deferrer: scheduler.New(scheduler.Config{
			Store:     backends.Store,
			Tasks:     backends.Tasks,
			Queue:     backends.Queue.Pusher(),
			BatchSize: cfg.Scheduler.BatchSize,
			Logger:    logger,
		}),
		Providers:     providers,
		DefaultRegion: cfg.BusinessHours.DefaultRegion,
		Logger:        logger,
	})

	// Потолки в статистике следуют за файлом конфигурации
	if cfg.Path != "" {
		watcher := config.NewWatcher(cfg.Path, func(next config.Config) {
			for _, g := range governors {
				g.SetCeilings(next.Workers.MaxWorkers(g.Mode()), next.Providers.Ceilings())
			}
		}, logger)
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("config watcher disabled", "error", err)
		}
	}

	mux := http.NewServeMux()

	// Uptime и metrics
	mux.HandleFunc("/uptime", func(w http.ResponseWriter, _ *http.Request) {
		reqTotal.Inc()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты (включая /healthz)
	handler.RegisterRoutes(mux)

	addr := ":8080"
	if v := os.Getenv("API_PORT"); v != "" {
		addr = ":" + v
	}

	// Создаём HTTP сервер с возможностью graceful shutdown
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}
