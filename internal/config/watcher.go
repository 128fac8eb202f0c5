package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce — пауза после события: редакторы пишут файл в несколько приёмов.
const reloadDebounce = 200 * time.Millisecond

// ReloadFunc получает новую конфигурацию после успешной перезагрузки.
type ReloadFunc func(Config)

// Watcher следит за YAML-файлом и перезагружает конфигурацию при изменении.
//
// Следит за каталогом файла: так переживаются замены через rename.
// Невалидная конфигурация логируется и не применяется.
type Watcher struct {
	path     string
	onReload ReloadFunc
	logger   *slog.Logger
	debounce time.Duration
}

// NewWatcher создаёт Watcher.
func NewWatcher(path string, onReload ReloadFunc, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:     path,
		onReload: onReload,
		logger:   logger,
		debounce: reloadDebounce,
	}
}

// Start запускает наблюдение в фоне до отмены ctx.
func (w *Watcher) Start(ctx context.Context) error {
	if w.path == "" {
		return errors.New("config watcher: empty path")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", w.path, err)
	}

	target := filepath.Clean(w.path)

	go func() {
		defer fsw.Close()

		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				w.logger.Debug("config file changed", "path", ev.Name, "op", ev.Op.String())
				if timer != nil {
					timer.Stop()
				}
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			case <-fire:
				fire = nil
				w.reload()
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				w.logger.Error("config watcher error", "error", err)
			}
		}
	}()

	w.logger.Info("config watcher started", "path", w.path)
	return nil
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Error("config reload failed, keeping previous config", "path", w.path, "error", err)
		return
	}
	w.logger.Info("config reloaded", "path", w.path)
	if w.onReload != nil {
		w.onReload(cfg)
	}
}
