package order

import (
	"fmt"

	"github.com/holiman/uint256"

	"gridex-go/lens"
	"gridex-go/strategy"
)

// OrderInfo 档位的只读投影
type OrderInfo struct {
	GridID    GridID
	OrderID   OrderID
	Handle    OrderHandle
	PairID    PairID
	Index     uint32
	IsAsk     bool
	Compound  bool
	Oneshot   bool
	FeeBps    uint32
	State     RungState
	Canceled  bool
	Amount    *uint256.Int
	RevAmount *uint256.Int
	Price     *uint256.Int
	RevPrice  *uint256.Int
}

// rungView 档位的有效数值：已物化时取存储值，否则按虚拟默认值推导
type rungView struct {
	rung
	state    RungState
	canceled bool
	amount   *uint256.Int
	rev      *uint256.Int
	price    *uint256.Int
	revPrice *uint256.Int
}

func (e *Engine) strategyFor(g *GridConfig, isAsk bool) (strategy.Strategy, error) {
	ref := g.BidStrategy
	if isAsk {
		ref = g.AskStrategy
	}
	return e.registry.Lookup(ref)
}

func (e *Engine) view(r rung) (rungView, error) {
	strat, err := e.strategyFor(r.grid, r.isAsk)
	if err != nil {
		return rungView{}, err
	}
	gid := uint32(r.grid.GridID)
	price, err := strat.Price(r.isAsk, gid, r.idx)
	if err != nil {
		return rungView{}, err
	}
	revPrice, err := strat.ReversePrice(r.isAsk, gid, r.idx)
	if err != nil {
		return rungView{}, err
	}

	v := rungView{rung: r, state: RungVirtual, price: price, revPrice: revPrice}
	o, stored := e.st.orders[r.handle]
	if stored {
		v.state = o.State
	}
	v.canceled = r.grid.Status == GridCanceled || v.state == RungCanceled
	switch {
	case v.canceled:
		// 已退款，剩余数量视为0
		v.amount, v.rev = new(uint256.Int), new(uint256.Int)
	case stored:
		// 即使两边都为0也以存储值为准，不回退到虚拟默认值
		v.amount = new(uint256.Int).Set(o.Amount)
		v.rev = new(uint256.Int).Set(o.RevAmount)
	case r.isAsk:
		v.amount = new(uint256.Int).Set(r.grid.BaseAmount)
		v.rev = new(uint256.Int)
	default:
		q, err := lens.ToQuote(r.grid.BaseAmount, price, false)
		if err != nil {
			return rungView{}, err
		}
		v.amount = q
		v.rev = new(uint256.Int)
	}
	return v, nil
}

func (e *Engine) getOrderInfo(h OrderHandle, forFill bool) (OrderInfo, error) {
	r, err := e.st.locate(h)
	if err != nil {
		return OrderInfo{}, fmt.Errorf("order %s: %w", h, err)
	}
	v, err := e.view(r)
	if err != nil {
		return OrderInfo{}, fmt.Errorf("order %s: %w", h, err)
	}
	if v.canceled && forFill {
		return OrderInfo{}, fmt.Errorf("order %s: %w", h, ErrOrderCanceled)
	}
	g := r.grid
	return OrderInfo{
		GridID:    g.GridID,
		OrderID:   h.OrderID(),
		Handle:    h,
		PairID:    g.PairID,
		Index:     r.idx,
		IsAsk:     r.isAsk,
		Compound:  g.Compound,
		Oneshot:   g.Oneshot,
		FeeBps:    g.FeeBps,
		State:     v.state,
		Canceled:  v.canceled,
		Amount:    v.amount,
		RevAmount: v.rev,
		Price:     v.price,
		RevPrice:  v.revPrice,
	}, nil
}
