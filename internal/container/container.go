package container

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"gridex-go/config"
	"gridex-go/exchange"
	"gridex-go/infrastructure/alert"
	"gridex-go/infrastructure/logger"
	"gridex-go/infrastructure/monitor"
	"gridex-go/internal/store"
	"gridex-go/order"
	"gridex-go/settlement"
	"gridex-go/strategy"
)

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	cfg     config.AppConfig
	cfgPath string

	// 基础设施
	logger  *logger.Logger
	monitor *monitor.Monitor
	alerts  *alert.Manager

	// 核心服务
	registry *strategy.Registry
	store    *store.Store
	engine   *order.Engine
	ledger   *settlement.Ledger
	exchange *exchange.Exchange

	metricsServer *http.Server
	reloads       chan config.AppConfig

	lifecycle *LifecycleManager
}

// New 从配置文件创建 Container，启用热更新时监听该文件
func New(configPath string) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	c := NewWithConfig(cfg)
	c.cfgPath = configPath
	return c, nil
}

func NewWithConfig(cfg config.AppConfig) *Container {
	return &Container{
		cfg:       cfg,
		reloads:   make(chan config.AppConfig, 1),
		lifecycle: NewLifecycleManager(),
	}
}

// SetMetricsListen 覆盖配置中的 /metrics 监听地址，需在 Build 之前调用
func (c *Container) SetMetricsListen(addr string) {
	c.cfg.Metrics.Listen = addr
}

// Build 构建所有组件
func (c *Container) Build() error {
	if err := config.Validate(c.cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}
	if err := c.buildEngine(); err != nil {
		return fmt.Errorf("build engine failed: %w", err)
	}
	c.ledger = settlement.NewLedger()
	c.exchange = exchange.New(c.engine, c.ledger, c.cfg.AdminAddress(),
		exchange.WithLogger(c.logger),
		exchange.WithAlerter(c.alerts))

	c.registerLifecycleComponents()
	c.logger.Info("container built")
	return nil
}

func (c *Container) buildInfrastructure() error {
	var err error
	c.logger, err = logger.New(c.cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger failed: %w", err)
	}
	c.monitor = monitor.New(c.cfg.Metrics.Config)
	c.alerts = alert.NewManager(c.cfg.Alert, alert.NewLoggerChannel("log", c.logger))
	return nil
}

// buildEngine 启用存储时从快照恢复，否则从空状态开始
func (c *Container) buildEngine() error {
	c.registry = strategy.NewDefaultRegistry()
	allowed := make(map[strategy.Ref]bool)
	for _, s := range c.cfg.Engine.AllowedStrategies {
		allowed[strategy.Ref(s)] = true
	}
	for _, ref := range c.registry.Refs() {
		if err := c.registry.SetAllowed(ref, allowed[ref]); err != nil {
			return err
		}
	}

	opts := []order.Option{
		order.WithLogger(c.logger),
		order.WithMonitor(c.monitor),
		order.WithMaxCallDepth(c.cfg.Engine.MaxCallDepth),
	}
	if !c.cfg.Store.Enabled {
		c.engine = order.NewEngine(order.NewState(c.cfg.Engine.OneshotFeeBps), c.registry, opts...)
		return nil
	}

	st, err := store.Open(c.cfg.Store.Path)
	if err != nil {
		return err
	}
	snap, err := st.LoadSnapshot()
	if err != nil {
		st.Close()
		return err
	}
	e, err := order.Restore(snap, c.registry, append(opts, order.WithPersister(st))...)
	if err != nil {
		st.Close()
		return err
	}
	c.store, c.engine = st, e
	total, active := e.State().GridCount()
	c.logger.Info("engine restored",
		zap.String("path", c.cfg.Store.Path),
		zap.Int("grids", total),
		zap.Int("active", active))
	return nil
}

func (c *Container) registerLifecycleComponents() {
	if c.store != nil {
		c.lifecycle.Register("store", &storeComponent{store: c.store, logger: c.logger})
	}
	if c.cfg.Metrics.Listen != "" {
		c.lifecycle.Register("metrics_server", &httpServerComponent{
			name:    "metrics_server",
			handler: c.monitor.Handler(),
			addr:    c.cfg.Metrics.Listen,
			logger:  c.logger,
			server:  &c.metricsServer,
		})
	}
	if c.cfgPath != "" && c.cfg.HotReload.Enabled {
		c.lifecycle.Register("config_watcher", &watcherComponent{
			path:    c.cfgPath,
			cfg:     c.cfg.HotReload,
			logger:  c.logger,
			reloads: c.reloads,
		})
	}
}

func (c *Container) Start(ctx context.Context) error {
	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}
	c.logger.Info("container started")
	return nil
}

func (c *Container) Stop() error {
	err := c.lifecycle.StopAll()
	if err != nil && c.logger != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
	}
	if c.logger != nil {
		_ = c.logger.Close()
	}
	return err
}

func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}

// Reloads 推送热更新后的配置。必须由驱动引擎的 goroutine 调用 ApplyReload
func (c *Container) Reloads() <-chan config.AppConfig { return c.reloads }

// ApplyReload 目前只有 oneshot 费率支持热更新
func (c *Container) ApplyReload(cfg config.AppConfig) error {
	if cfg.Engine.OneshotFeeBps == c.engine.OneshotFeeBps() {
		return nil
	}
	if err := c.exchange.SetOneshotFeeBps(c.cfg.AdminAddress(), cfg.Engine.OneshotFeeBps); err != nil {
		return err
	}
	c.cfg.Engine.OneshotFeeBps = cfg.Engine.OneshotFeeBps
	c.logger.Info("oneshot fee reloaded", zap.Uint32("fee_bps", cfg.Engine.OneshotFeeBps))
	return nil
}

func (c *Container) Config() config.AppConfig     { return c.cfg }
func (c *Container) Logger() *logger.Logger       { return c.logger }
func (c *Container) Monitor() *monitor.Monitor    { return c.monitor }
func (c *Container) Alerts() *alert.Manager       { return c.alerts }
func (c *Container) Engine() *order.Engine        { return c.engine }
func (c *Container) Ledger() *settlement.Ledger   { return c.ledger }
func (c *Container) Exchange() *exchange.Exchange { return c.exchange }
