package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Callflow/internal/phone"
)

// Рабочие часы по умолчанию: 9:00–20:00 местного времени получателя.
const (
	DefaultStartHour = 9
	DefaultEndHour   = 20
)

// DefaultZones — часовой пояс по коду страны.
// Для стран с несколькими поясами берётся основной (для +1 — восточное время).
var DefaultZones = map[int]string{
	1:   "America/New_York",
	30:  "Europe/Athens",
	31:  "Europe/Amsterdam",
	32:  "Europe/Brussels",
	33:  "Europe/Paris",
	34:  "Europe/Madrid",
	36:  "Europe/Budapest",
	39:  "Europe/Rome",
	41:  "Europe/Zurich",
	43:  "Europe/Vienna",
	44:  "Europe/London",
	45:  "Europe/Copenhagen",
	46:  "Europe/Stockholm",
	47:  "Europe/Oslo",
	48:  "Europe/Warsaw",
	49:  "Europe/Berlin",
	61:  "Australia/Sydney",
	64:  "Pacific/Auckland",
	90:  "Europe/Istanbul",
	91:  "Asia/Kolkata",
	351: "Europe/Lisbon",
	353: "Europe/Dublin",
	358: "Europe/Helsinki",
	420: "Europe/Prague",
	962: "Asia/Amman",
	965: "Asia/Kuwait",
	966: "Asia/Riyadh",
	968: "Asia/Muscat",
	971: "Asia/Dubai",
	973: "Asia/Bahrain",
	974: "Asia/Qatar",
}

// WindowConfig — параметры окна рабочих часов.
type WindowConfig struct {
	// StartHour — начало окна (включительно), 0–23.
	StartHour int

	// EndHour — конец окна (не включительно), 1–24.
	EndHour int

	// Zones — часовой пояс по коду страны (по умолчанию DefaultZones).
	Zones map[int]string

	// BypassNumbers — номера, которым звонить можно всегда (тестовые).
	BypassNumbers []string

	// DefaultRegion — регион для локальных номеров (ISO, "IN").
	DefaultRegion string

	Logger *slog.Logger
}

// Window проверяет, попадает ли местное время получателя в рабочие часы.
//
// Если пояс получателя неизвестен, звонок разрешается.
type Window struct {
	logger *slog.Logger

	mu            sync.RWMutex
	start, end    int
	zones         map[int]string
	bypass        map[string]struct{}
	defaultRegion string

	locations sync.Map // string → *time.Location
}

// NewWindow создаёт Window.
func NewWindow(cfg WindowConfig) (*Window, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	w := &Window{logger: cfg.Logger}
	if err := w.Update(cfg); err != nil {
		return nil, err
	}
	return w, nil
}

// Update заменяет параметры окна (перезагрузка конфигурации).
func (w *Window) Update(cfg WindowConfig) error {
	if cfg.StartHour == 0 && cfg.EndHour == 0 {
		cfg.StartHour, cfg.EndHour = DefaultStartHour, DefaultEndHour
	}
	if cfg.StartHour < 0 || cfg.EndHour > 24 || cfg.StartHour >= cfg.EndHour {
		return fmt.Errorf("invalid business hours %d-%d", cfg.StartHour, cfg.EndHour)
	}
	if cfg.Zones == nil {
		cfg.Zones = DefaultZones
	}
	if cfg.DefaultRegion == "" {
		cfg.DefaultRegion = phone.DefaultRegion
	}

	bypass := make(map[string]struct{}, len(cfg.BypassNumbers))
	for _, raw := range cfg.BypassNumbers {
		n, err := phone.Normalize(raw, cfg.DefaultRegion)
		if err != nil {
			w.logger.Warn("ignoring invalid bypass number", "number", raw, "error", err)
			continue
		}
		bypass[n] = struct{}{}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.start, w.end = cfg.StartHour, cfg.EndHour
	w.zones = cfg.Zones
	w.bypass = bypass
	w.defaultRegion = cfg.DefaultRegion
	return nil
}

// Hours возвращает текущие границы окна.
func (w *Window) Hours() (start, end int) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.start, w.end
}

// Check проверяет номер на момент now.
//
// Возвращает true, если звонить можно. Иначе — ближайшее начало окна
// в поясе получателя (сегодня, если день ещё не начался, иначе завтра), в UTC.
// Невалидный номер — ошибка phone.ErrInvalid.
func (w *Window) Check(raw string, now time.Time) (bool, time.Time, error) {
	w.mu.RLock()
	start, end := w.start, w.end
	zones, bypass, region := w.zones, w.bypass, w.defaultRegion
	w.mu.RUnlock()

	num, err := phone.Parse(raw, region)
	if err != nil {
		return false, time.Time{}, err
	}

	if _, ok := bypass[num.E164]; ok {
		w.logger.Debug("bypassing business hours check", "number", num.E164)
		return true, time.Time{}, nil
	}

	zone, ok := zones[num.CountryCode]
	if !ok {
		w.logger.Debug("no timezone for country code, allowing call", "country_code", num.CallingCode())
		return true, time.Time{}, nil
	}
	loc, err := w.location(zone)
	if err != nil {
		w.logger.Warn("unknown timezone, allowing call", "timezone", zone, "error", err)
		return true, time.Time{}, nil
	}

	local := now.In(loc)
	if h := local.Hour(); start <= h && h < end {
		return true, time.Time{}, nil
	}

	next := time.Date(local.Year(), local.Month(), local.Day(), start, 0, 0, 0, loc)
	if local.Hour() >= start {
		next = next.AddDate(0, 0, 1)
	}
	return false, next.UTC(), nil
}

func (w *Window) location(name string) (*time.Location, error) {
	if v, ok := w.locations.Load(name); ok {
		return v.(*time.Location), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, err
	}
	w.locations.Store(name, loc)
	return loc, nil
}
