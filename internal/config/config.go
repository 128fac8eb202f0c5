// Package config загружает конфигурацию Callflow.
//
// Порядок: значения по умолчанию → YAML-файл (CALLFLOW_CONFIG) →
// переменные окружения. .env загружается в main до вызова Load.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/Callflow/internal/domain"
	"github.com/shaiso/Callflow/internal/scheduler"
	"github.com/shaiso/Callflow/internal/telemetry"
)

// EnvConfigPath — переменная с путём к YAML-файлу.
const EnvConfigPath = "CALLFLOW_CONFIG"

// Значения по умолчанию.
const (
	DefaultMaxRetries         = 3
	DefaultTotalWorkers       = 4
	DefaultNormalShare        = 0.3
	DefaultCapacityRetryDelay = 5 * time.Minute
	DefaultSweepInterval      = 60 * time.Second
	DefaultCronSpec           = scheduler.DefaultSweepSpec
	DefaultPollNormal         = time.Second
	DefaultPollBulk           = 3 * time.Second
	DefaultBatchNormal        = 5
	DefaultBatchBulk          = 20
)

// Бэкенды.
const (
	BackendRedis    = "redis"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
	BackendKafka    = "kafka"
	BackendRabbitMQ = "rabbitmq"
)

// Config — конфигурация всех сервисов Callflow.
type Config struct {
	// MaxRetries — сколько попыток даётся task.
	MaxRetries int `yaml:"max_retries"`

	// OutgoingCallsEnabled — глобальный выключатель исходящих звонков.
	OutgoingCallsEnabled bool `yaml:"outgoing_calls_enabled"`

	Workers       WorkersConfig           `yaml:"workers"`
	BusinessHours BusinessHoursConfig     `yaml:"business_hours"`
	Providers     ProvidersConfig         `yaml:"providers"`
	SLA           SLAConfig               `yaml:"sla"`
	Scheduler     SchedulerConfig         `yaml:"scheduler"`
	Backends      BackendsConfig          `yaml:"backends"`
	Tracing       telemetry.TracingConfig `yaml:"tracing"`

	// Path — файл, из которого загружена конфигурация (пусто — только defaults и env).
	Path string `yaml:"-"`
}

// WorkersConfig — размеры и интервалы WorkerPool.
type WorkersConfig struct {
	// Total — общий потолок воркеров, делится между режимами.
	Total int `yaml:"total"`

	// NormalShare — доля normal (bulk получает остаток).
	NormalShare float64 `yaml:"normal_share"`

	PollIntervalNormal time.Duration `yaml:"poll_interval_normal"`
	PollIntervalBulk   time.Duration `yaml:"poll_interval_bulk"`
	BatchNormal        int           `yaml:"batch_normal"`
	BatchBulk          int           `yaml:"batch_bulk"`

	// CapacityRetryDelay — на сколько откладывается task, если провайдер занят.
	CapacityRetryDelay time.Duration `yaml:"capacity_retry_delay"`

	// SweepInterval — период sweep внутри цикла пула (0 — выключено).
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// MaxWorkers возвращает потолок воркеров режима.
// normal — NormalShare от Total, bulk — остаток; каждому не меньше 1.
func (w WorkersConfig) MaxWorkers(mode domain.Mode) int {
	share := w.NormalShare
	if mode == domain.ModeBulk {
		share = 1 - w.NormalShare
	}
	return max(1, int(float64(w.Total)*share))
}

// PollInterval возвращает базовый интервал опроса режима.
func (w WorkersConfig) PollInterval(mode domain.Mode) time.Duration {
	if mode == domain.ModeBulk {
		return w.PollIntervalBulk
	}
	return w.PollIntervalNormal
}

// BatchSize возвращает базовый размер выборки режима.
func (w WorkersConfig) BatchSize(mode domain.Mode) int {
	if mode == domain.ModeBulk {
		return w.BatchBulk
	}
	return w.BatchNormal
}

// BusinessHoursConfig — окно рабочих часов получателя.
type BusinessHoursConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Start         int      `yaml:"start"`
	End           int      `yaml:"end"`
	BypassNumbers []string `yaml:"bypass_numbers"`
	DefaultRegion string   `yaml:"default_region"`
}

// WindowConfig возвращает параметры scheduler.Window.
func (b BusinessHoursConfig) WindowConfig() scheduler.WindowConfig {
	return scheduler.WindowConfig{
		StartHour:     b.Start,
		EndHour:       b.End,
		BypassNumbers: b.BypassNumbers,
		DefaultRegion: b.DefaultRegion,
	}
}

// ProviderConfig — настройки одного провайдера.
// Провайдер регистрируется, только если задан BaseURL.
type ProviderConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`

	// MaxConcurrent — потолок одновременных звонков (0 — потолок режима).
	MaxConcurrent int `yaml:"max_concurrent"`

	// hosted
	PhoneNumberID      string        `yaml:"phone_number_id"`
	MaxConcurrentCalls int           `yaml:"max_concurrent_calls"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	MaxPollDuration    time.Duration `yaml:"max_poll_duration"`

	// dispatch
	AgentName string `yaml:"agent_name"`

	// direct
	Timeout time.Duration `yaml:"timeout"`
}

// Enabled — провайдер настроен.
func (p ProviderConfig) Enabled() bool {
	return p.BaseURL != ""
}

// ProvidersConfig — настройки провайдеров.
type ProvidersConfig struct {
	// Default — провайдер по умолчанию (DEFAULT_CALL_PROVIDER).
	Default string `yaml:"default"`

	Hosted   ProviderConfig `yaml:"hosted"`
	Dispatch ProviderConfig `yaml:"dispatch"`
	Direct   ProviderConfig `yaml:"direct"`
}

// Ceilings возвращает собственные потолки провайдеров (только заданные).
func (p ProvidersConfig) Ceilings() map[string]int {
	out := make(map[string]int)
	for kind, pc := range map[string]ProviderConfig{
		"hosted":   p.Hosted,
		"dispatch": p.Dispatch,
		"direct":   p.Direct,
	} {
		if pc.MaxConcurrent > 0 {
			out[kind] = pc.MaxConcurrent
		}
	}
	return out
}

// SLAConfig — пороги задержки по режимам.
type SLAConfig struct {
	Normal time.Duration `yaml:"normal"`
	Bulk   time.Duration `yaml:"bulk"`
}

// ByMode возвращает пороги в виде map для telemetry.Collector.
func (s SLAConfig) ByMode() map[string]time.Duration {
	return map[string]time.Duration{
		domain.ModeNormal.String(): s.Normal,
		domain.ModeBulk.String():   s.Bulk,
	}
}

// SchedulerConfig — настройки sweep отложенных tasks.
type SchedulerConfig struct {
	CronSpec  string `yaml:"cron_spec"`
	BatchSize int64  `yaml:"batch_size"`
}

// BackendsConfig — выбор хранилищ и транспорта.
type BackendsConfig struct {
	// Store — ResourceStore: redis | memory.
	Store    string `yaml:"store"`
	RedisURL string `yaml:"redis_url"`

	// TaskStore — postgres | dynamodb | memory.
	TaskStore   string       `yaml:"task_store"`
	DatabaseURL string       `yaml:"database_url"`
	DynamoDB    DynamoConfig `yaml:"dynamodb"`

	// Queue — kafka | rabbitmq | memory.
	Queue        string `yaml:"queue"`
	KafkaBrokers string `yaml:"kafka_brokers"`
	KafkaGroupID string `yaml:"kafka_group_id"`
	AMQPURL      string `yaml:"amqp_url"`
}

// DynamoConfig — параметры DynamoDB TaskStore.
type DynamoConfig struct {
	Region     string `yaml:"region"`
	Endpoint   string `yaml:"endpoint"`
	TasksTable string `yaml:"tasks_table"`
	RunsTable  string `yaml:"runs_table"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() Config {
	return Config{
		MaxRetries:           DefaultMaxRetries,
		OutgoingCallsEnabled: true,
		Workers: WorkersConfig{
			Total:              DefaultTotalWorkers,
			NormalShare:        DefaultNormalShare,
			PollIntervalNormal: DefaultPollNormal,
			PollIntervalBulk:   DefaultPollBulk,
			BatchNormal:        DefaultBatchNormal,
			BatchBulk:          DefaultBatchBulk,
			CapacityRetryDelay: DefaultCapacityRetryDelay,
			SweepInterval:      DefaultSweepInterval,
		},
		BusinessHours: BusinessHoursConfig{
			Enabled: true,
			Start:   scheduler.DefaultStartHour,
			End:     scheduler.DefaultEndHour,
		},
		SLA: SLAConfig{
			Normal: telemetry.DefaultSLANormal,
			Bulk:   telemetry.DefaultSLABulk,
		},
		Scheduler: SchedulerConfig{
			CronSpec: DefaultCronSpec,
		},
		Backends: BackendsConfig{
			Store:     BackendRedis,
			TaskStore: BackendPostgres,
			Queue:     BackendKafka,
		},
	}
}

// Load читает конфигурацию. Пустой path — CALLFLOW_CONFIG;
// отсутствующий файл не ошибка, остаются значения по умолчанию.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
			cfg.Path = path
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate проверяет согласованность значений.
func (c Config) Validate() error {
	if c.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be >= 1, got %d", c.MaxRetries)
	}
	if c.Workers.NormalShare <= 0 || c.Workers.NormalShare >= 1 {
		return fmt.Errorf("workers.normal_share must be in (0, 1), got %v", c.Workers.NormalShare)
	}
	bh := c.BusinessHours
	if bh.Start < 0 || bh.End > 24 || bh.Start >= bh.End {
		return fmt.Errorf("invalid business hours %d-%d", bh.Start, bh.End)
	}
	if err := scheduler.ValidateCronExpr(c.Scheduler.CronSpec); err != nil {
		return err
	}
	if d := c.Providers.Default; d != "" {
		switch d {
		case "hosted", "dispatch", "direct":
		default:
			return fmt.Errorf("unknown default provider %q", d)
		}
	}
	return nil
}

func normalize(cfg *Config) {
	if cfg.Workers.Total <= 0 {
		cfg.Workers.Total = DefaultTotalWorkers
	}
	if cfg.Workers.PollIntervalNormal <= 0 {
		cfg.Workers.PollIntervalNormal = DefaultPollNormal
	}
	if cfg.Workers.PollIntervalBulk <= 0 {
		cfg.Workers.PollIntervalBulk = DefaultPollBulk
	}
	if cfg.Workers.BatchNormal <= 0 {
		cfg.Workers.BatchNormal = DefaultBatchNormal
	}
	if cfg.Workers.BatchBulk <= 0 {
		cfg.Workers.BatchBulk = DefaultBatchBulk
	}
	if cfg.Workers.CapacityRetryDelay <= 0 {
		cfg.Workers.CapacityRetryDelay = DefaultCapacityRetryDelay
	}
	if cfg.Scheduler.CronSpec == "" {
		cfg.Scheduler.CronSpec = DefaultCronSpec
	}
	cfg.Providers.Default = strings.ToLower(strings.TrimSpace(cfg.Providers.Default))
	cfg.Backends.Store = strings.ToLower(cfg.Backends.Store)
	cfg.Backends.TaskStore = strings.ToLower(cfg.Backends.TaskStore)
	cfg.Backends.Queue = strings.ToLower(cfg.Backends.Queue)
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := envInt("MAX_CALL_RETRIES"); ok {
		cfg.MaxRetries = v
	}
	if v, ok := envBool("OUTGOING_CALLS_ENABLED"); ok {
		cfg.OutgoingCallsEnabled = v
	}
	if v, ok := envInt("AGENT_OUTBOUND_MAX_WORKERS"); ok {
		cfg.Workers.Total = v
	}
	if v, ok := envBool("ENABLE_BUSINESS_HOURS_CHECK"); ok {
		cfg.BusinessHours.Enabled = v
	}
	if v, ok := envInt("BUSINESS_HOURS_START"); ok {
		cfg.BusinessHours.Start = v
	}
	if v, ok := envInt("BUSINESS_HOURS_END"); ok {
		cfg.BusinessHours.End = v
	}
	if raw := os.Getenv("BUSINESS_HOURS_BYPASS_NUMBERS"); raw != "" {
		cfg.BusinessHours.BypassNumbers = splitList(raw)
	}
	if raw := os.Getenv("DEFAULT_CALL_PROVIDER"); raw != "" {
		cfg.Providers.Default = raw
	}

	envProvider(&cfg.Providers.Hosted, "HOSTED")
	envProvider(&cfg.Providers.Dispatch, "DISPATCH")
	envProvider(&cfg.Providers.Direct, "DIRECT")
	if raw := os.Getenv("HOSTED_PHONE_NUMBER_ID"); raw != "" {
		cfg.Providers.Hosted.PhoneNumberID = raw
	}

	if raw := os.Getenv("CALLFLOW_STORE"); raw != "" {
		cfg.Backends.Store = raw
	}
	if raw := os.Getenv("REDIS_URL"); raw != "" {
		cfg.Backends.RedisURL = raw
	}
	if raw := os.Getenv("CALLFLOW_TASK_STORE"); raw != "" {
		cfg.Backends.TaskStore = raw
	}
	if raw := os.Getenv("DB_URL"); raw != "" {
		cfg.Backends.DatabaseURL = raw
	}
	if raw := os.Getenv("DYNAMODB_ENDPOINT"); raw != "" {
		cfg.Backends.DynamoDB.Endpoint = raw
	}
	if raw := os.Getenv("AWS_REGION"); raw != "" {
		cfg.Backends.DynamoDB.Region = raw
	}
	if raw := os.Getenv("CALLFLOW_QUEUE"); raw != "" {
		cfg.Backends.Queue = raw
	}
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		cfg.Backends.KafkaBrokers = raw
	}
	if raw := os.Getenv("RABBITMQ_URL"); raw != "" {
		cfg.Backends.AMQPURL = raw
	}

	if v, ok := envBool("TRACING_ENABLED"); ok {
		cfg.Tracing.Enabled = v
	}
	if raw := os.Getenv("TRACING_EXPORTER"); raw != "" {
		cfg.Tracing.Exporter = raw
	}
	if raw := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); raw != "" {
		cfg.Tracing.Endpoint = raw
	}
}

// envProvider читает {PREFIX}_API_URL, {PREFIX}_API_KEY и {PREFIX}_MAX_CONCURRENT.
func envProvider(pc *ProviderConfig, prefix string) {
	if raw := os.Getenv(prefix + "_API_URL"); raw != "" {
		pc.BaseURL = raw
	}
	if raw := os.Getenv(prefix + "_API_KEY"); raw != "" {
		pc.APIKey = raw
	}
	if v, ok := envInt(prefix + "_MAX_CONCURRENT"); ok {
		pc.MaxConcurrent = v
	}
}

func envInt(key string) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envBool(key string) (bool, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
