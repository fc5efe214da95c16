package order

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"gridex-go/infrastructure/logger"
	"gridex-go/infrastructure/monitor"
	"gridex-go/strategy"
)

// Engine 网格订单引擎。单写者模型，不加锁；调用方保证串行执行。
type Engine struct {
	st        *State
	registry  *strategy.Registry
	sm        *StateMachine
	log       *logger.Logger
	mon       *monitor.Monitor
	persister Persister
	maxDepth  int

	// active 正在执行的顶层会话，回调期间非空
	active *Session
}

type Option func(*Engine)

func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func WithMonitor(m *monitor.Monitor) Option {
	return func(e *Engine) { e.mon = m }
}

func WithPersister(p Persister) Option {
	return func(e *Engine) { e.persister = p }
}

// WithMaxCallDepth 设置嵌套成交上限，<=0 时保持默认值
func WithMaxCallDepth(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxDepth = n
		}
	}
}

func NewEngine(st *State, reg *strategy.Registry, opts ...Option) *Engine {
	e := &Engine{
		st:       st,
		registry: reg,
		sm:       NewStateMachine(),
		log:      logger.NewNop(),
		maxDepth: MaxCallDepth,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewSession starts a fresh operation context at depth 0. It fails with
// ErrReentrantCall if used while another operation is still running.
func (e *Engine) NewSession() *Session {
	return &Session{e: e}
}

// session 回调中调用快捷入口时复用正在执行的会话：深度照常累加，撤销日志共用
func (e *Engine) session() *Session {
	if e.active != nil {
		return e.active
	}
	return e.NewSession()
}

func (e *Engine) State() *State { return e.st }

func (e *Engine) Registry() *strategy.Registry { return e.registry }

func (e *Engine) reject(op string, err error) {
	e.log.LogError(err, map[string]interface{}{"op": op, "kind": ErrorKind(err)})
	if e.mon != nil {
		e.mon.RecordReject(op)
	}
}

// Grid returns a copy of the grid config.
func (e *Engine) Grid(id GridID) (GridConfig, error) {
	g, ok := e.st.grids[id]
	if !ok {
		return GridConfig{}, ErrInvalidGridID
	}
	return *g.clone(), nil
}

func (e *Engine) OneshotFeeBps() uint32 { return e.st.counters.OneshotFeeBps }

func (e *Engine) GetOrderInfo(h OrderHandle, forFill bool) (OrderInfo, error) {
	return e.getOrderInfo(h, forFill)
}

// 以下为快捷入口。空闲时开启新会话，回调中则嵌套进当前会话

func (e *Engine) Place(pairID PairID, maker common.Address, p PlaceParams) (PlaceResult, error) {
	return e.session().Place(pairID, maker, p)
}

func (e *Engine) PlaceFunded(pairID PairID, maker common.Address, p PlaceParams, fund PlaceCallback) (PlaceResult, error) {
	return e.session().PlaceFunded(pairID, maker, p, fund)
}

func (e *Engine) FillAsk(h OrderHandle, baseAmt *uint256.Int, cb FillCallback) (FillResult, error) {
	return e.session().FillAsk(h, baseAmt, cb)
}

func (e *Engine) FillBid(h OrderHandle, baseAmt *uint256.Int, cb FillCallback) (FillResult, error) {
	return e.session().FillBid(h, baseAmt, cb)
}

func (e *Engine) CancelGrid(owner common.Address, id GridID) (CancelResult, error) {
	return e.session().CancelGrid(owner, id)
}

func (e *Engine) CancelGridOrders(owner common.Address, id GridID, handles []OrderHandle) (CancelResult, error) {
	return e.session().CancelGridOrders(owner, id, handles)
}

func (e *Engine) ModifyFee(owner common.Address, id GridID, feeBps uint32) error {
	return e.session().ModifyFee(owner, id, feeBps)
}

func (e *Engine) WithdrawProfit(owner common.Address, id GridID, amount *uint256.Int) (PairID, *uint256.Int, error) {
	return e.session().WithdrawProfit(owner, id, amount)
}

func (e *Engine) SetOneshotFeeBps(feeBps uint32) error {
	return e.session().SetOneshotFeeBps(feeBps)
}

func (e *Engine) Atomic(fn func(s *Session) error) error {
	return e.session().Atomic(fn)
}

// ErrorKind 把错误归类，供调用方决定补救方式
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidGridID), errors.Is(err, ErrNotGridOwner):
		return "identity"
	case errors.Is(err, ErrOrderCanceled), errors.Is(err, ErrFillReversedOneShotOrder),
		errors.Is(err, ErrCannotModifyOneshotFee), errors.Is(err, ErrReentrantCall),
		errors.Is(err, ErrCallDepthExceeded), errors.Is(err, ErrNoProfit),
		errors.Is(err, ErrIllegalTransition), errors.Is(err, strategy.ErrAlreadyExists):
		return "state"
	case isArithmetic(err):
		return "arithmetic"
	default:
		return "parameter"
	}
}
