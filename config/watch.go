package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"gridex-go/infrastructure/logger"
)

// HotReloadConfig 热更新配置
type HotReloadConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Cooldown time.Duration `yaml:"cooldown"` // 冷却时间，避免编辑器连续写入触发多次
}

func DefaultHotReloadConfig() HotReloadConfig {
	return HotReloadConfig{Enabled: true, Cooldown: 500 * time.Millisecond}
}

// Watcher 监听配置文件，内容变化且校验通过后把新配置交给回调。
// 监听所在目录而不是文件本身，这样原子替换（rename）也能收到。
type Watcher struct {
	path     string
	cooldown time.Duration
	log      *logger.Logger
	fw       *fsnotify.Watcher

	lastReload time.Time
}

func NewWatcher(path string, cfg HotReloadConfig, log *logger.Logger) (*Watcher, error) {
	if log == nil {
		log = logger.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch config dir: %w", err)
	}
	return &Watcher{path: abs, cooldown: cfg.Cooldown, log: log, fw: fw}, nil
}

// Start blocks until ctx is done; onUpdate runs on the watcher goroutine.
func (w *Watcher) Start(ctx context.Context, onUpdate func(AppConfig)) error {
	defer w.fw.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if event.Name != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if time.Since(w.lastReload) < w.cooldown {
				continue
			}
			cfg, err := w.reload()
			if err != nil {
				w.log.Warn("config reload rejected", zap.String("path", w.path), zap.Error(err))
				continue
			}
			w.lastReload = time.Now()
			if onUpdate != nil {
				onUpdate(cfg)
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			// 记录错误但继续监听
			w.log.Warn("config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() (AppConfig, error) {
	return LoadWithEnvOverrides(w.path)
}
