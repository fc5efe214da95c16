package order

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"gridex-go/fixedpoint"
	"gridex-go/lens"
)

// FillResult 单次成交结果。
// TakerBuys 为 true 表示 FillAsk：taker 支付 FilledVol+LPFee+ProtocolFee 的 quote，得到 FilledAmt 的 base；
// 否则 taker 交出 FilledAmt 的 base，得到 FilledVol-LPFee-ProtocolFee 的 quote。
type FillResult struct {
	PairID    PairID
	GridID    GridID
	OrderID   OrderID
	Handle    OrderHandle
	Owner     common.Address
	TakerBuys bool

	FilledAmt   *uint256.Int
	FilledVol   *uint256.Int
	LPFee       *uint256.Int
	ProtocolFee *uint256.Int
	ProfitDelta *uint256.Int

	NewResidual        *uint256.Int
	NewReverseResidual *uint256.Int

	// OwnerPayout oneshot 档位耗尽时释放给网格所有者的反向库存：
	// FillAsk 时为 quote，FillBid 时为 base
	OwnerPayout *uint256.Int
	RungClosed  bool
}

// TakerQuote is the quote amount the taker pays (TakerBuys) or receives.
func (r FillResult) TakerQuote() *uint256.Int {
	if r.TakerBuys {
		q := new(uint256.Int).Add(r.FilledVol, r.LPFee)
		return q.Add(q, r.ProtocolFee)
	}
	q := new(uint256.Int).Sub(r.FilledVol, r.LPFee)
	return q.Sub(q, r.ProtocolFee)
}

// FillCallback 在成交写入状态之后、操作提交之前执行。回调可以用同一个 Session
// 继续成交（受深度上限约束）；回调返回错误时整笔成交回滚。
type FillCallback func(s *Session, res FillResult) error

// FillAsk lets a taker buy up to baseAmt base from the rung.
func (s *Session) FillAsk(h OrderHandle, baseAmt *uint256.Int, cb FillCallback) (FillResult, error) {
	return s.fillOp("fill_ask", h, baseAmt, true, cb)
}

// FillBid lets a taker sell up to baseAmt base to the rung.
func (s *Session) FillBid(h OrderHandle, baseAmt *uint256.Int, cb FillCallback) (FillResult, error) {
	return s.fillOp("fill_bid", h, baseAmt, false, cb)
}

func (s *Session) fillOp(op string, h OrderHandle, baseAmt *uint256.Int, takerBuys bool, cb FillCallback) (FillResult, error) {
	var res FillResult
	err := s.run(false, op, func() error {
		r, err := s.fill(h, baseAmt, takerBuys)
		if err != nil {
			return fmt.Errorf("%s %s: %w", op, h, err)
		}
		res = r
		if cb != nil {
			return cb(s, r)
		}
		return nil
	})
	if err != nil {
		return FillResult{}, err
	}
	return res, nil
}

func (s *Session) fill(h OrderHandle, req *uint256.Int, takerBuys bool) (FillResult, error) {
	e := s.e
	if req == nil || req.IsZero() {
		return FillResult{}, lens.ErrZeroBaseAmt
	}
	r, err := e.st.locate(h)
	if err != nil {
		return FillResult{}, err
	}
	v, err := e.view(r)
	if err != nil {
		return FillResult{}, err
	}
	if v.canceled {
		return FillResult{}, ErrOrderCanceled
	}
	g := r.grid
	// oneshot 档位只能按原方向成交：ask 档只能被买，bid 档只能被卖
	if g.Oneshot && takerBuys != r.isAsk {
		return FillResult{}, ErrFillReversedOneShotOrder
	}

	var (
		res  FillResult
		next *Order
	)
	if takerBuys {
		res, next, err = fillAskSide(g, v, req)
	} else {
		res, next, err = fillBidSide(g, v, req)
	}
	if err != nil {
		return FillResult{}, err
	}

	if err := e.sm.ValidateTransition(v.state, next.State); err != nil {
		return FillResult{}, err
	}
	if !res.ProfitDelta.IsZero() {
		profit, err := addAmount(g.Profit, res.ProfitDelta, lens.ErrExceedQuoteAmt)
		if err != nil {
			return FillResult{}, err
		}
		s.touchGrid(g)
		g.Profit = profit
	}
	s.putOrder(h, next)

	res.PairID = g.PairID
	res.GridID = g.GridID
	res.OrderID = h.OrderID()
	res.Handle = h
	res.Owner = g.Owner
	res.TakerBuys = takerBuys
	res.NewResidual = new(uint256.Int).Set(next.Amount)
	res.NewReverseResidual = new(uint256.Int).Set(next.RevAmount)

	depth := s.depth
	s.emit(func() { e.recordFill(res, depth) })
	return res, nil
}

// fillAskSide taker 买入 base。档位可能是原生 ask，也可能是已翻转、持有 base 的 bid
func fillAskSide(g *GridConfig, v rungView, req *uint256.Int) (FillResult, *Order, error) {
	var baseAvail, quoteRes, sellPrice, buyPrice *uint256.Int
	if v.isAsk {
		baseAvail, quoteRes, sellPrice, buyPrice = v.amount, v.rev, v.price, v.revPrice
	} else {
		baseAvail, quoteRes, sellPrice, buyPrice = v.rev, v.amount, v.revPrice, v.price
	}

	amt := new(uint256.Int).Set(req)
	if amt.Gt(baseAvail) {
		amt.Set(baseAvail)
	}
	if amt.IsZero() {
		return FillResult{}, nil, lens.ErrZeroBaseAmt
	}
	vol, err := lens.ToQuote(amt, sellPrice, true)
	if err != nil {
		return FillResult{}, nil, err
	}
	fees := feesFor(g, vol)

	proceeds := new(uint256.Int).Add(vol, fees.LP)
	profit := new(uint256.Int)
	if g.Compound {
		quoteRes, err = addAmount(quoteRes, proceeds, lens.ErrExceedQuoteAmt)
		if err != nil {
			return FillResult{}, nil, err
		}
	} else {
		// 只保留按买入价回补名义 base 所需的 quote，多余部分计入利润
		quota, err := lens.ToQuote(g.BaseAmount, buyPrice, false)
		if err != nil {
			return FillResult{}, nil, err
		}
		if !quoteRes.Lt(quota) {
			profit.Set(proceeds)
		} else {
			sum, err := addAmount(quoteRes, proceeds, lens.ErrExceedQuoteAmt)
			if err != nil {
				return FillResult{}, nil, err
			}
			if sum.Gt(quota) {
				profit.Sub(sum, quota)
				quoteRes = quota
			} else {
				quoteRes = sum
			}
		}
	}
	baseLeft := new(uint256.Int).Sub(baseAvail, amt)

	res := FillResult{
		FilledAmt:   amt,
		FilledVol:   vol,
		LPFee:       fees.LP,
		ProtocolFee: fees.Protocol,
		ProfitDelta: profit,
		OwnerPayout: new(uint256.Int),
	}
	next := &Order{State: RungOpen}
	if v.isAsk {
		next.Amount, next.RevAmount = baseLeft, quoteRes
	} else {
		next.Amount, next.RevAmount = quoteRes, baseLeft
	}
	if g.Oneshot && baseLeft.IsZero() {
		closeRung(next, &res, quoteRes)
	}
	return res, next, nil
}

// fillBidSide taker 卖出 base。档位可能是原生 bid，也可能是已翻转、持有 quote 的 ask
func fillBidSide(g *GridConfig, v rungView, req *uint256.Int) (FillResult, *Order, error) {
	var quoteAvail, baseRes, buyPrice *uint256.Int
	if v.isAsk {
		quoteAvail, baseRes, buyPrice = v.rev, v.amount, v.revPrice
	} else {
		quoteAvail, baseRes, buyPrice = v.amount, v.rev, v.price
	}

	amt := new(uint256.Int).Set(req)
	vol, err := lens.ToQuote(amt, buyPrice, false)
	if err != nil {
		return FillResult{}, nil, err
	}
	if vol.Gt(quoteAvail) {
		// 按剩余 quote 反推可成交的 base 上限
		amt, err = lens.ToBase(quoteAvail, buyPrice, true)
		if err != nil {
			return FillResult{}, nil, err
		}
		vol = new(uint256.Int).Set(quoteAvail)
	}
	fees := feesFor(g, vol)

	profit := new(uint256.Int)
	quoteLeft := new(uint256.Int).Sub(quoteAvail, vol)
	if g.Compound {
		quoteLeft.Add(quoteLeft, fees.LP)
	} else {
		profit.Set(fees.LP)
	}
	baseRes, err = addAmount(baseRes, amt, lens.ErrExceedBaseAmt)
	if err != nil {
		return FillResult{}, nil, err
	}

	res := FillResult{
		FilledAmt:   amt,
		FilledVol:   vol,
		LPFee:       fees.LP,
		ProtocolFee: fees.Protocol,
		ProfitDelta: profit,
		OwnerPayout: new(uint256.Int),
	}
	next := &Order{State: RungOpen}
	if v.isAsk {
		next.Amount, next.RevAmount = baseRes, quoteLeft
	} else {
		next.Amount, next.RevAmount = quoteLeft, baseRes
	}
	if g.Oneshot && quoteLeft.IsZero() {
		closeRung(next, &res, baseRes)
	}
	return res, next, nil
}

// closeRung oneshot 档位耗尽后关闭，反向库存一次性释放给所有者
func closeRung(next *Order, res *FillResult, payout *uint256.Int) {
	res.OwnerPayout = new(uint256.Int).Set(payout)
	res.RungClosed = true
	next.State = RungCanceled
	next.Amount = new(uint256.Int)
	next.RevAmount = new(uint256.Int)
}

func feesFor(g *GridConfig, vol *uint256.Int) lens.Fees {
	if g.Oneshot {
		return lens.OneshotFee(vol, g.FeeBps)
	}
	return lens.SplitFee(vol, g.FeeBps)
}

func (e *Engine) recordFill(res FillResult, depth int) {
	event, side := "fill_bid", "sell"
	if res.TakerBuys {
		event, side = "fill_ask", "buy"
	}
	e.log.LogFill(event, uint64(res.Handle), map[string]interface{}{
		"grid_id":      res.GridID,
		"depth":        depth,
		"filled_amt":   res.FilledAmt.Dec(),
		"filled_vol":   res.FilledVol.Dec(),
		"lp_fee":       res.LPFee.Dec(),
		"protocol_fee": res.ProtocolFee.Dec(),
		"profit":       res.ProfitDelta.Dec(),
		"residual":     res.NewResidual.Dec(),
		"rev_residual": res.NewReverseResidual.Dec(),
		"rung_closed":  res.RungClosed,
	})
	if e.mon == nil {
		return
	}
	e.mon.RecordFill(side, depth,
		toFloat(res.FilledAmt), toFloat(res.FilledVol),
		toFloat(res.LPFee), toFloat(res.ProtocolFee), toFloat(res.ProfitDelta))
	if res.RungClosed {
		e.mon.RecordRungClosed()
	}
}

// toFloat 仅用于指标，精度损失可接受
func toFloat(x *uint256.Int) float64 {
	f, _ := new(big.Float).SetInt(x.ToBig()).Float64()
	return f
}

func isArithmetic(err error) bool {
	for _, target := range []error{
		lens.ErrZeroBaseAmt, lens.ErrZeroQuoteAmt, lens.ErrExceedBaseAmt,
		lens.ErrExceedQuoteAmt, lens.ErrZeroPrice, fixedpoint.ErrOverflow,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
