package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shaiso/Callflow/internal/domain"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "callflow.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// --- Load Tests ---

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(EnvConfigPath, "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxRetries != DefaultMaxRetries {
		t.Errorf("expected max retries %d, got %d", DefaultMaxRetries, cfg.MaxRetries)
	}
	if !cfg.OutgoingCallsEnabled {
		t.Error("outgoing calls should be enabled by default")
	}
	if !cfg.BusinessHours.Enabled || cfg.BusinessHours.Start != 9 || cfg.BusinessHours.End != 20 {
		t.Errorf("unexpected business hours %+v", cfg.BusinessHours)
	}
	if cfg.Workers.CapacityRetryDelay != 5*time.Minute {
		t.Errorf("expected capacity retry delay 5m, got %v", cfg.Workers.CapacityRetryDelay)
	}
	if cfg.Backends.Store != BackendRedis || cfg.Backends.TaskStore != BackendPostgres || cfg.Backends.Queue != BackendKafka {
		t.Errorf("unexpected backends %+v", cfg.Backends)
	}
	if cfg.Path != "" {
		t.Errorf("expected empty path, got %q", cfg.Path)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
max_retries: 5
outgoing_calls_enabled: false
workers:
  total: 20
  capacity_retry_delay: 2m
business_hours:
  start: 8
  end: 18
  bypass_numbers: ["+919876543210"]
providers:
  default: Hosted
  hosted:
    base_url: http://hosted.local
    max_concurrent: 4
    poll_interval: 5s
sla:
  normal: 3s
backends:
  store: memory
  queue: RabbitMQ
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Path != path {
		t.Errorf("expected path %s, got %s", path, cfg.Path)
	}
	if cfg.MaxRetries != 5 || cfg.OutgoingCallsEnabled {
		t.Errorf("unexpected top-level values %+v", cfg)
	}
	if cfg.Workers.Total != 20 || cfg.Workers.CapacityRetryDelay != 2*time.Minute {
		t.Errorf("unexpected workers %+v", cfg.Workers)
	}
	// не заданные в файле поля остаются по умолчанию
	if cfg.Workers.NormalShare != DefaultNormalShare {
		t.Errorf("expected default normal share, got %v", cfg.Workers.NormalShare)
	}
	if cfg.BusinessHours.Start != 8 || len(cfg.BusinessHours.BypassNumbers) != 1 {
		t.Errorf("unexpected business hours %+v", cfg.BusinessHours)
	}
	if cfg.Providers.Default != "hosted" {
		t.Errorf("expected normalized default provider, got %q", cfg.Providers.Default)
	}
	if !cfg.Providers.Hosted.Enabled() || cfg.Providers.Direct.Enabled() {
		t.Error("only hosted provider should be enabled")
	}
	if cfg.Providers.Hosted.PollInterval != 5*time.Second {
		t.Errorf("expected hosted poll interval 5s, got %v", cfg.Providers.Hosted.PollInterval)
	}
	if cfg.SLA.Normal != 3*time.Second || cfg.SLA.Bulk != 30*time.Second {
		t.Errorf("unexpected sla %+v", cfg.SLA)
	}
	if cfg.Backends.Store != BackendMemory || cfg.Backends.Queue != BackendRabbitMQ {
		t.Errorf("unexpected backends %+v", cfg.Backends)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file should not fail: %v", err)
	}
	if cfg.Path != "" {
		t.Errorf("expected empty path, got %q", cfg.Path)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "workers: [1, 2")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "max_retries: 5\n")
	t.Setenv("MAX_CALL_RETRIES", "7")
	t.Setenv("OUTGOING_CALLS_ENABLED", "false")
	t.Setenv("ENABLE_BUSINESS_HOURS_CHECK", "false")
	t.Setenv("AGENT_OUTBOUND_MAX_WORKERS", "10")
	t.Setenv("DEFAULT_CALL_PROVIDER", "DIRECT")
	t.Setenv("DIRECT_API_URL", "http://direct.local")
	t.Setenv("DIRECT_MAX_CONCURRENT", "2")
	t.Setenv("BUSINESS_HOURS_BYPASS_NUMBERS", "+911111111111, +912222222222")
	t.Setenv("CALLFLOW_QUEUE", "memory")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxRetries != 7 {
		t.Errorf("env should override file: got %d", cfg.MaxRetries)
	}
	if cfg.OutgoingCallsEnabled || cfg.BusinessHours.Enabled {
		t.Error("flags should be disabled by env")
	}
	if cfg.Workers.Total != 10 {
		t.Errorf("expected 10 workers, got %d", cfg.Workers.Total)
	}
	if cfg.Providers.Default != "direct" {
		t.Errorf("expected direct default, got %q", cfg.Providers.Default)
	}
	if cfg.Providers.Direct.BaseURL != "http://direct.local" || cfg.Providers.Direct.MaxConcurrent != 2 {
		t.Errorf("unexpected direct provider %+v", cfg.Providers.Direct)
	}
	if got := cfg.BusinessHours.BypassNumbers; len(got) != 2 || got[1] != "+912222222222" {
		t.Errorf("unexpected bypass numbers %v", got)
	}
	if cfg.Backends.Queue != BackendMemory {
		t.Errorf("expected memory queue, got %q", cfg.Backends.Queue)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero retries", func(c *Config) { c.MaxRetries = 0 }},
		{"share out of range", func(c *Config) { c.Workers.NormalShare = 1 }},
		{"inverted hours", func(c *Config) { c.BusinessHours.Start, c.BusinessHours.End = 18, 9 }},
		{"bad cron", func(c *Config) { c.Scheduler.CronSpec = "every minute" }},
		{"unknown provider", func(c *Config) { c.Providers.Default = "carrier" }},
	}

	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

// --- Worker Split Tests ---

func TestWorkersConfig_MaxWorkers(t *testing.T) {
	tests := []struct {
		total      int
		wantNormal int
		wantBulk   int
	}{
		{10, 3, 7},
		{4, 1, 2},
		{2, 1, 1},
		{1, 1, 1},
		{100, 30, 70},
	}

	for _, tt := range tests {
		w := WorkersConfig{Total: tt.total, NormalShare: DefaultNormalShare}
		if got := w.MaxWorkers(domain.ModeNormal); got != tt.wantNormal {
			t.Errorf("total %d: expected normal %d, got %d", tt.total, tt.wantNormal, got)
		}
		if got := w.MaxWorkers(domain.ModeBulk); got != tt.wantBulk {
			t.Errorf("total %d: expected bulk %d, got %d", tt.total, tt.wantBulk, got)
		}
	}
}

func TestProvidersConfig_Ceilings(t *testing.T) {
	p := ProvidersConfig{
		Hosted: ProviderConfig{MaxConcurrent: 4},
		Direct: ProviderConfig{MaxConcurrent: 0},
	}
	got := p.Ceilings()
	if len(got) != 1 || got["hosted"] != 4 {
		t.Errorf("unexpected ceilings %v", got)
	}
}

// --- Watcher Tests ---

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "max_retries: 3\n")

	reloaded := make(chan Config, 4)
	w := NewWatcher(path, func(c Config) { reloaded <- c }, nil)
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start watcher: %v", err)
	}

	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	writeConfig(t, dir, "max_retries: 6\n")
	for {
		select {
		case c := <-reloaded:
			if c.MaxRetries == 6 {
				return
			}
		case <-tick.C:
			// повторная запись, если watcher ещё не был готов
			_ = os.WriteFile(path, []byte("max_retries: 6\n"), 0o644)
		case <-deadline:
			t.Fatal("timed out waiting for config reload")
		}
	}
}

func TestWatcher_EmptyPath(t *testing.T) {
	if err := NewWatcher("", nil, nil).Start(context.Background()); err == nil {
		t.Fatal("expected error for empty path")
	}
}
