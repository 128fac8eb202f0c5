// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает:
//   - logging.go   — structured logging через slog
//   - metrics.go   — Prometheus метрики
//   - collector.go — MetricsCollector: история задержек, SLA, среднее и p95
//   - tracing.go   — OpenTelemetry трейсинг (otlp-http, stdout, none)
//
// Все сервисы используют единый формат логирования
// и экспортируют метрики на /metrics endpoint.
package telemetry
