package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"gridex-go/config"
	"gridex-go/infrastructure/logger"
	"gridex-go/internal/store"
)

// Lifecycle 生命周期接口
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop() error
	Health() error
}

type component struct {
	name    string
	c       Lifecycle
	started bool
}

// LifecycleManager 按注册顺序启动组件（存储、metrics、配置监听），逆序停止，错误信息带组件名。
type LifecycleManager struct {
	mu         sync.Mutex
	components []*component
}

func NewLifecycleManager() *LifecycleManager {
	return &LifecycleManager{}
}

func (m *LifecycleManager) Register(name string, c Lifecycle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, &component{name: name, c: c})
}

// Names lists registered components in start order.
func (m *LifecycleManager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.components))
	for _, c := range m.components {
		out = append(out, c.name)
	}
	return out
}

// StartAll 启动失败时先停掉本轮已启动的组件再返回
func (m *LifecycleManager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.components {
		if c.started {
			continue
		}
		if err := c.c.Start(ctx); err != nil {
			_ = m.stopStarted()
			return fmt.Errorf("start %s: %w", c.name, err)
		}
		c.started = true
	}
	return nil
}

// StopAll 逆序停止全部组件，包括 Build 之后从未 Start 的（存储在 Build 时已打开）。
// 组件的 Stop 需可重复调用。
func (m *LifecycleManager) StopAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stop(false)
}

func (m *LifecycleManager) stopStarted() error {
	return m.stop(true)
}

func (m *LifecycleManager) stop(onlyStarted bool) error {
	var errs []error
	for i := len(m.components) - 1; i >= 0; i-- {
		c := m.components[i]
		if onlyStarted && !c.started {
			continue
		}
		if err := c.c.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", c.name, err))
		}
		c.started = false
	}
	return errors.Join(errs...)
}

// CheckHealth 未启动的组件直接视为不健康
func (m *LifecycleManager) CheckHealth() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.components {
		if !c.started {
			return fmt.Errorf("%s not started", c.name)
		}
		if err := c.c.Health(); err != nil {
			return fmt.Errorf("%s unhealthy: %w", c.name, err)
		}
	}
	return nil
}

// httpServerComponent HTTP服务器组件
type httpServerComponent struct {
	name    string
	handler http.Handler
	addr    string
	logger  *logger.Logger
	server  **http.Server
	started bool
	mu      sync.Mutex
}

func (h *httpServerComponent) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", h.handler)
	srv := &http.Server{
		Addr:              h.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	*h.server = srv

	go func() {
		h.logger.Info("http listening", zap.String("component", h.name), zap.String("addr", h.addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.LogError(err, map[string]interface{}{
				"component": h.name,
				"action":    "listen",
			})
		}
	}()

	h.started = true
	return nil
}

func (h *httpServerComponent) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started || *h.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := (*h.server).Shutdown(ctx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", h.name, err)
	}
	h.started = false
	return nil
}

func (h *httpServerComponent) Health() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.started {
		return fmt.Errorf("%s not started", h.name)
	}
	return nil
}

// storeComponent 停止时关闭 pebble
type storeComponent struct {
	store  *store.Store
	logger *logger.Logger
	closed bool
}

func (s *storeComponent) Start(context.Context) error { return nil }

func (s *storeComponent) Stop() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	s.logger.Info("store closed")
	return nil
}

func (s *storeComponent) Health() error {
	if s.closed {
		return errors.New("store closed")
	}
	return nil
}

// watcherComponent 把热更新的配置投递到 reloads，只保留最新一份
type watcherComponent struct {
	path    string
	cfg     config.HotReloadConfig
	logger  *logger.Logger
	reloads chan config.AppConfig

	cancel context.CancelFunc
	done   chan struct{}
}

func (w *watcherComponent) Start(ctx context.Context) error {
	fw, err := config.NewWatcher(w.path, w.cfg, w.logger)
	if err != nil {
		return err
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go func() {
		defer close(w.done)
		_ = fw.Start(ctx, func(c config.AppConfig) {
			select {
			case <-w.reloads:
			default:
			}
			w.reloads <- c
		})
	}()
	return nil
}

func (w *watcherComponent) Stop() error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	<-w.done
	w.cancel = nil
	return nil
}

func (w *watcherComponent) Health() error {
	if w.cancel == nil {
		return errors.New("config watcher not running")
	}
	return nil
}
