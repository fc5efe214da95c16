// Package exchange 把网格引擎、结算账本和交易对登记组合成一个可直接调用的宿主。
// 引擎只计算数量，这里负责收取抵押、成交结算、退款和手续费归集。
package exchange

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"gridex-go/infrastructure/logger"
	"gridex-go/order"
	"gridex-go/settlement"
)

var (
	ErrPairExists     = errors.New("pair already registered")
	ErrUnknownPair    = errors.New("unknown pair")
	ErrInvalidPair    = errors.New("invalid pair tokens")
	ErrPaused         = errors.New("exchange paused")
	ErrNotAdmin       = errors.New("caller is not admin")
	ErrZeroAmount     = errors.New("zero amount")
	ErrNoProtocolFees = errors.New("no protocol fees to withdraw")
	ErrEmptyFillBatch = errors.New("empty fill batch")
)

// Pair 交易对：base 与 quote 代币地址
type Pair struct {
	ID    order.PairID   `json:"id"`
	Base  common.Address `json:"base"`
	Quote common.Address `json:"quote"`
}

// Alerter 接收需要人工介入的事件
type Alerter interface {
	SendCritical(message string, fields map[string]interface{}) error
}

type Exchange struct {
	engine *order.Engine
	settle settlement.Settlement
	log    *logger.Logger
	alerts Alerter
	admin  common.Address

	pairs     map[order.PairID]Pair
	pairIndex map[[2]common.Address]order.PairID
	nextPair  order.PairID

	paused       bool
	protocolFees map[order.PairID]*uint256.Int
}

type Option func(*Exchange)

func WithLogger(l *logger.Logger) Option {
	return func(x *Exchange) { x.log = l }
}

func WithAlerter(a Alerter) Option {
	return func(x *Exchange) { x.alerts = a }
}

func New(engine *order.Engine, settle settlement.Settlement, admin common.Address, opts ...Option) *Exchange {
	x := &Exchange{
		engine:       engine,
		settle:       settle,
		log:          logger.NewNop(),
		admin:        admin,
		pairs:        make(map[order.PairID]Pair),
		pairIndex:    make(map[[2]common.Address]order.PairID),
		nextPair:     1,
		protocolFees: make(map[order.PairID]*uint256.Int),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

func (x *Exchange) Engine() *order.Engine { return x.engine }

func (x *Exchange) RegisterPair(base, quote common.Address) (order.PairID, error) {
	if base == quote || base == (common.Address{}) || quote == (common.Address{}) {
		return 0, ErrInvalidPair
	}
	k := [2]common.Address{base, quote}
	if id, ok := x.pairIndex[k]; ok {
		return id, fmt.Errorf("%w: %d", ErrPairExists, id)
	}
	id := x.nextPair
	x.nextPair++
	x.pairs[id] = Pair{ID: id, Base: base, Quote: quote}
	x.pairIndex[k] = id
	return id, nil
}

func (x *Exchange) Pair(id order.PairID) (Pair, error) {
	p, ok := x.pairs[id]
	if !ok {
		return Pair{}, fmt.Errorf("%w: %d", ErrUnknownPair, id)
	}
	return p, nil
}

func (x *Exchange) onlyAdmin(caller common.Address) error {
	if caller != x.admin {
		return fmt.Errorf("%w: %s", ErrNotAdmin, caller.Hex())
	}
	return nil
}

// SetPaused 暂停后禁止下单和成交，撤单与提取不受影响
func (x *Exchange) SetPaused(caller common.Address, paused bool) error {
	if err := x.onlyAdmin(caller); err != nil {
		return err
	}
	x.paused = paused
	x.log.Info("pause_changed", zap.Bool("paused", paused))
	return nil
}

func (x *Exchange) Paused() bool { return x.paused }

func (x *Exchange) SetOneshotFeeBps(caller common.Address, feeBps uint32) error {
	if err := x.onlyAdmin(caller); err != nil {
		return err
	}
	return x.engine.SetOneshotFeeBps(feeBps)
}

// collect/pay 在会话中执行转账，并登记回滚时的反向转账
func (x *Exchange) collect(s *order.Session, token, from common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	if err := x.settle.Collect(token, from, amount); err != nil {
		return err
	}
	amt := new(uint256.Int).Set(amount)
	s.OnRollback(func() {
		if err := x.settle.Pay(token, from, amt); err != nil {
			x.compensationFailed("return_collected", token, from, amt, err)
		}
	})
	return nil
}

func (x *Exchange) pay(s *order.Session, token, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	if err := x.settle.Pay(token, to, amount); err != nil {
		return err
	}
	amt := new(uint256.Int).Set(amount)
	s.OnRollback(func() {
		if err := x.settle.Collect(token, to, amt); err != nil {
			x.compensationFailed("reclaim_paid", token, to, amt, err)
		}
	})
	return nil
}

// PlaceGrid places a grid and collects its collateral from maker in one
// atomic step.
func (x *Exchange) PlaceGrid(maker common.Address, pairID order.PairID, p order.PlaceParams) (order.PlaceResult, error) {
	if x.paused {
		return order.PlaceResult{}, ErrPaused
	}
	pair, err := x.Pair(pairID)
	if err != nil {
		return order.PlaceResult{}, err
	}
	return x.engine.PlaceFunded(pairID, maker, p, func(s *order.Session, res order.PlaceResult) error {
		if err := x.collect(s, pair.Base, maker, res.RequiredBase); err != nil {
			return fmt.Errorf("collect base: %w", err)
		}
		if err := x.collect(s, pair.Quote, maker, res.RequiredQuote); err != nil {
			return fmt.Errorf("collect quote: %w", err)
		}
		return nil
	})
}

// accrue 记入交易对的协议费，回滚时恢复原值
func (x *Exchange) accrue(s *order.Session, pairID order.PairID, fee *uint256.Int) {
	if fee == nil || fee.IsZero() {
		return
	}
	prev, had := x.protocolFees[pairID]
	next := new(uint256.Int).Set(fee)
	if had {
		next.Add(next, prev)
	}
	x.protocolFees[pairID] = next
	s.OnRollback(func() {
		if had {
			x.protocolFees[pairID] = prev
		} else {
			delete(x.protocolFees, pairID)
		}
	})
}

// settleFill 成交回调：向 taker 收款、付款，记协议费，oneshot 耗尽时把反向库存付给所有者
func (x *Exchange) settleFill(taker common.Address) order.FillCallback {
	return func(s *order.Session, res order.FillResult) error {
		pair, err := x.Pair(res.PairID)
		if err != nil {
			return err
		}
		quote := res.TakerQuote()
		if res.TakerBuys {
			if err := x.collect(s, pair.Quote, taker, quote); err != nil {
				return fmt.Errorf("taker quote: %w", err)
			}
			if err := x.pay(s, pair.Base, taker, res.FilledAmt); err != nil {
				return fmt.Errorf("taker base: %w", err)
			}
		} else {
			if err := x.collect(s, pair.Base, taker, res.FilledAmt); err != nil {
				return fmt.Errorf("taker base: %w", err)
			}
			if err := x.pay(s, pair.Quote, taker, quote); err != nil {
				return fmt.Errorf("taker quote: %w", err)
			}
		}
		x.accrue(s, res.PairID, res.ProtocolFee)

		if res.OwnerPayout != nil && !res.OwnerPayout.IsZero() {
			token := pair.Base
			if res.TakerBuys {
				token = pair.Quote
			}
			if err := x.pay(s, token, res.Owner, res.OwnerPayout); err != nil {
				return fmt.Errorf("owner payout: %w", err)
			}
		}
		return nil
	}
}

func (x *Exchange) FillAsk(taker common.Address, h order.OrderHandle, baseAmt *uint256.Int) (order.FillResult, error) {
	if x.paused {
		return order.FillResult{}, ErrPaused
	}
	return x.engine.FillAsk(h, baseAmt, x.settleFill(taker))
}

func (x *Exchange) FillBid(taker common.Address, h order.OrderHandle, baseAmt *uint256.Int) (order.FillResult, error) {
	if x.paused {
		return order.FillResult{}, ErrPaused
	}
	return x.engine.FillBid(h, baseAmt, x.settleFill(taker))
}

// FillTarget 批量成交中的一项。Buy 为 true 时 taker 买入 base（FillAsk）
type FillTarget struct {
	Handle order.OrderHandle
	Amount *uint256.Int
	Buy    bool
}

// FillOrders executes every target or none of them.
func (x *Exchange) FillOrders(taker common.Address, targets []FillTarget) ([]order.FillResult, error) {
	if x.paused {
		return nil, ErrPaused
	}
	if len(targets) == 0 {
		return nil, ErrEmptyFillBatch
	}
	for i, t := range targets {
		if t.Amount == nil || t.Amount.IsZero() {
			return nil, fmt.Errorf("target %d (%s): %w", i, t.Handle, ErrZeroAmount)
		}
	}

	settle := x.settleFill(taker)
	var out []order.FillResult
	err := x.engine.Atomic(func(s *order.Session) error {
		out = out[:0]
		for _, t := range targets {
			var (
				res order.FillResult
				err error
			)
			if t.Buy {
				res, err = s.FillAsk(t.Handle, t.Amount, settle)
			} else {
				res, err = s.FillBid(t.Handle, t.Amount, settle)
			}
			if err != nil {
				return err
			}
			out = append(out, res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// payOut 引擎提交之后的付款。资金池始终持有全部抵押，失败意味着账目已不一致
func (x *Exchange) payOut(op string, pairID order.PairID, to common.Address, base, quote *uint256.Int) error {
	pair, err := x.Pair(pairID)
	if err != nil {
		return err
	}
	if err := x.settle.Pay(pair.Base, to, base); err != nil {
		return x.payoutFailed(op, pairID, to, err)
	}
	if err := x.settle.Pay(pair.Quote, to, quote); err != nil {
		return x.payoutFailed(op, pairID, to, err)
	}
	return nil
}

func (x *Exchange) payoutFailed(op string, pairID order.PairID, to common.Address, err error) error {
	fields := map[string]interface{}{"op": op, "pair": uint64(pairID), "to": to.Hex(), "error": err.Error()}
	x.log.LogError(err, fields)
	if x.alerts != nil {
		_ = x.alerts.SendCritical("settlement_payout_failed", fields)
	}
	return fmt.Errorf("%s payout: %w", op, err)
}

// compensationFailed 回滚时的反向转账失败，引擎状态已撤回但余额没有，需要人工对账
func (x *Exchange) compensationFailed(op string, token, account common.Address, amount *uint256.Int, err error) {
	fields := map[string]interface{}{
		"op":      op,
		"token":   token.Hex(),
		"account": account.Hex(),
		"amount":  amount.Dec(),
		"error":   err.Error(),
	}
	x.log.LogError(err, fields)
	if x.alerts != nil {
		_ = x.alerts.SendCritical("settlement_compensation_failed", fields)
	}
}

func (x *Exchange) CancelGrid(owner common.Address, id order.GridID) (order.CancelResult, error) {
	res, err := x.engine.CancelGrid(owner, id)
	if err != nil {
		return res, err
	}
	return res, x.payOut("cancel_grid", res.PairID, owner, res.BaseRefund, res.QuoteRefund)
}

func (x *Exchange) CancelGridOrders(owner common.Address, id order.GridID, handles []order.OrderHandle) (order.CancelResult, error) {
	res, err := x.engine.CancelGridOrders(owner, id, handles)
	if err != nil {
		return res, err
	}
	return res, x.payOut("cancel_grid_orders", res.PairID, owner, res.BaseRefund, res.QuoteRefund)
}

// WithdrawProfit pays accumulated grid profit (quote) to the owner; nil or
// zero amount withdraws all of it.
func (x *Exchange) WithdrawProfit(owner common.Address, id order.GridID, amount *uint256.Int) (*uint256.Int, error) {
	pairID, paid, err := x.engine.WithdrawProfit(owner, id, amount)
	if err != nil {
		return nil, err
	}
	return paid, x.payOut("withdraw_profit", pairID, owner, nil, paid)
}

func (x *Exchange) ProtocolFees(pairID order.PairID) *uint256.Int {
	if f, ok := x.protocolFees[pairID]; ok {
		return new(uint256.Int).Set(f)
	}
	return new(uint256.Int)
}

// WithdrawProtocolFees 把交易对累计的协议费（quote）付给 to；amount 为 0 时全部提取
func (x *Exchange) WithdrawProtocolFees(caller common.Address, pairID order.PairID, to common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if err := x.onlyAdmin(caller); err != nil {
		return nil, err
	}
	pair, err := x.Pair(pairID)
	if err != nil {
		return nil, err
	}
	avail := x.protocolFees[pairID]
	if avail == nil || avail.IsZero() {
		return nil, fmt.Errorf("pair %d: %w", pairID, ErrNoProtocolFees)
	}
	amt := new(uint256.Int).Set(avail)
	if amount != nil && !amount.IsZero() && amount.Lt(avail) {
		amt.Set(amount)
	}
	if err := x.settle.Pay(pair.Quote, to, amt); err != nil {
		return nil, err
	}
	x.protocolFees[pairID] = new(uint256.Int).Sub(avail, amt)
	x.log.Info("protocol_fees_withdrawn",
		zap.Uint64("pair", uint64(pairID)),
		zap.String("amount", amt.Dec()),
		zap.String("to", to.Hex()))
	return amt, nil
}
