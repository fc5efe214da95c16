package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor Prometheus监控指标收集器
type Monitor struct {
	registry *prometheus.Registry

	// 网格指标
	gridsPlaced   prometheus.Counter
	gridsCanceled prometheus.Counter
	rungsCanceled prometheus.Counter
	activeGrids   prometheus.Gauge

	// 成交指标
	fills        *prometheus.CounterVec
	filledBase   *prometheus.CounterVec
	filledQuote  *prometheus.CounterVec
	lpFees       prometheus.Counter
	protocolFees prometheus.Counter
	rungsClosed  prometheus.Counter
	callDepth    prometheus.Histogram

	// 利润
	profitAccrued   prometheus.Counter
	profitWithdrawn prometheus.Counter

	rejects *prometheus.CounterVec
}

// Config 监控配置
type Config struct {
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "gridex",
		Subsystem: "engine",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		})
	}

	return &Monitor{
		registry: reg,

		gridsPlaced:   counter("grids_placed_total", "网格创建总数"),
		gridsCanceled: counter("grids_canceled_total", "网格撤销总数"),
		rungsCanceled: counter("rungs_canceled_total", "单独撤销的网格档位数"),
		activeGrids: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "active_grids",
			Help:      "当前未撤销的网格数",
		}),

		fills: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "fills_total",
			Help:      "成交笔数（按taker方向）",
		}, []string{"side"}),
		filledBase: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "filled_base_total",
			Help:      "成交base数量（原始精度，近似值）",
		}, []string{"side"}),
		filledQuote: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "filled_quote_total",
			Help:      "成交quote数量（原始精度，近似值）",
		}, []string{"side"}),
		lpFees:       counter("lp_fees_total", "LP手续费累计"),
		protocolFees: counter("protocol_fees_total", "协议手续费累计"),
		rungsClosed:  counter("oneshot_rungs_closed_total", "oneshot档位耗尽关闭数"),
		callDepth: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "fill_call_depth",
			Help:      "成交发生时的嵌套深度",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),

		profitAccrued:   counter("profit_accrued_total", "网格利润累计"),
		profitWithdrawn: counter("profit_withdrawn_total", "已提取利润"),

		rejects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "rejects_total",
			Help:      "被拒绝的操作（按操作名）",
		}, []string{"op"}),
	}
}

func (m *Monitor) RecordPlace() {
	m.gridsPlaced.Inc()
	m.activeGrids.Inc()
}

// RecordGridCanceled 整个网格撤销
func (m *Monitor) RecordGridCanceled() {
	m.gridsCanceled.Inc()
	m.activeGrids.Dec()
}

func (m *Monitor) RecordRungsCanceled(n int) {
	m.rungsCanceled.Add(float64(n))
}

// RecordFill side 为 taker 方向：buy(fillAsk) / sell(fillBid)
func (m *Monitor) RecordFill(side string, depth int, base, quote, lpFee, protocolFee, profit float64) {
	m.fills.WithLabelValues(side).Inc()
	m.filledBase.WithLabelValues(side).Add(base)
	m.filledQuote.WithLabelValues(side).Add(quote)
	m.lpFees.Add(lpFee)
	m.protocolFees.Add(protocolFee)
	m.profitAccrued.Add(profit)
	m.callDepth.Observe(float64(depth))
}

func (m *Monitor) RecordRungClosed() {
	m.rungsClosed.Inc()
}

func (m *Monitor) RecordWithdraw(amount float64) {
	m.profitWithdrawn.Add(amount)
}

func (m *Monitor) RecordReject(op string) {
	m.rejects.WithLabelValues(op).Inc()
}

// SetActiveGrids 启动恢复后校准
func (m *Monitor) SetActiveGrids(n int) {
	m.activeGrids.Set(float64(n))
}

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
