package order

import (
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"gridex-go/fixedpoint"
	"gridex-go/lens"
	"gridex-go/strategy"
)

// 手续费以 1e6 为分母
const (
	MinFeeBps uint32 = 10
	MaxFeeBps uint32 = 100_000
)

// SideParams 网格一侧的策略与档位数，Count 为 0 时忽略其余字段
type SideParams struct {
	Strategy strategy.Ref
	Params   strategy.Params
	Count    uint32
}

type PlaceParams struct {
	BaseAmount *uint256.Int
	Ask        SideParams
	Bid        SideParams
	FeeBps     uint32
	Compound   bool
	Oneshot    bool
}

// PlaceResult 下单结果；RequiredBase/RequiredQuote 是宿主需要向 maker 收取的抵押
type PlaceResult struct {
	GridID        GridID
	AskHandleBase OrderHandle
	BidHandleBase OrderHandle
	RequiredBase  *uint256.Int
	RequiredQuote *uint256.Int
}

// AskHandle returns the handle of the idx-th ask rung.
func (g *GridConfig) AskHandle(idx uint32) OrderHandle {
	return NewHandle(g.GridID, g.StartAskID+OrderID(idx))
}

// BidHandle returns the handle of the idx-th bid rung.
func (g *GridConfig) BidHandle(idx uint32) OrderHandle {
	return NewHandle(g.GridID, g.StartBidID+OrderID(idx))
}

// PlaceCallback 在网格写入之后、提交之前执行，宿主用它收取抵押；返回错误则下单回滚
type PlaceCallback func(s *Session, res PlaceResult) error

func (s *Session) Place(pairID PairID, maker common.Address, p PlaceParams) (PlaceResult, error) {
	return s.PlaceFunded(pairID, maker, p, nil)
}

// PlaceFunded places a grid and runs fund before the placement commits.
func (s *Session) PlaceFunded(pairID PairID, maker common.Address, p PlaceParams, fund PlaceCallback) (PlaceResult, error) {
	var res PlaceResult
	err := s.run(true, "place", func() (err error) {
		res, err = s.place(pairID, maker, p)
		if err == nil && fund != nil {
			err = fund(s, res)
		}
		return err
	})
	if err != nil {
		return PlaceResult{}, err
	}
	return res, nil
}

func (s *Session) place(pairID PairID, maker common.Address, p PlaceParams) (PlaceResult, error) {
	st := s.e.st

	fee := p.FeeBps
	if p.Oneshot {
		// 一次性网格使用创建时的全局费率快照
		fee = st.counters.OneshotFeeBps
	} else if fee < MinFeeBps || fee > MaxFeeBps {
		return PlaceResult{}, fmt.Errorf("%w: %d", ErrInvalidGridFee, fee)
	}
	if p.Ask.Count == 0 && p.Bid.Count == 0 {
		return PlaceResult{}, ErrZeroGridOrderCount
	}
	if p.BaseAmount == nil || p.BaseAmount.IsZero() {
		return PlaceResult{}, lens.ErrZeroBaseAmt
	}
	if !fixedpoint.FitsAmount(p.BaseAmount) {
		return PlaceResult{}, fmt.Errorf("%w: base amount", ErrExceedMaxAmount)
	}
	requiredBase, overflow := new(uint256.Int).MulOverflow(p.BaseAmount, uint256.NewInt(uint64(p.Ask.Count)))
	if overflow || !fixedpoint.FitsAmount(requiredBase) {
		return PlaceResult{}, fmt.Errorf("%w: base amount * ask count", ErrExceedMaxAmount)
	}

	askStrat, err := s.e.checkSide(true, p.BaseAmount, p.Ask)
	if err != nil {
		return PlaceResult{}, err
	}
	bidStrat, err := s.e.checkSide(false, p.BaseAmount, p.Bid)
	if err != nil {
		return PlaceResult{}, err
	}

	c := st.counters
	gid := c.NextGridID
	if gid == 0 {
		return PlaceResult{}, fmt.Errorf("%w: grid ids", ErrOrderIDExhausted)
	}
	nextAsk := uint64(c.NextAskID) + uint64(p.Ask.Count)
	nextBid := uint64(c.NextBidID) + uint64(p.Bid.Count)
	if p.Ask.Count > 0 && (!c.NextAskID.IsAsk() || nextAsk > math.MaxUint32+1) {
		return PlaceResult{}, fmt.Errorf("%w: ask ids", ErrOrderIDExhausted)
	}
	if nextBid > uint64(AskFlag) {
		return PlaceResult{}, fmt.Errorf("%w: bid ids", ErrOrderIDExhausted)
	}
	next := c
	next.NextGridID = gid + 1
	next.NextAskID = OrderID(nextAsk)
	next.NextBidID = OrderID(nextBid)
	s.setCounters(next)

	g := &GridConfig{
		GridID:     gid,
		Owner:      maker,
		PairID:     pairID,
		BaseAmount: new(uint256.Int).Set(p.BaseAmount),
		AskCount:   p.Ask.Count,
		BidCount:   p.Bid.Count,
		StartAskID: c.NextAskID,
		StartBidID: c.NextBidID,
		FeeBps:     fee,
		Compound:   p.Compound,
		Oneshot:    p.Oneshot,
		Status:     GridNormal,
		Profit:     new(uint256.Int),
	}
	if askStrat != nil {
		g.AskStrategy = p.Ask.Strategy
		if err := s.createStrategy(askStrat, StrategyRecord{GridID: gid, IsAsk: true, Ref: p.Ask.Strategy, Params: p.Ask.Params}); err != nil {
			return PlaceResult{}, fmt.Errorf("ask strategy: %w", err)
		}
	}
	requiredQuote := new(uint256.Int)
	if bidStrat != nil {
		g.BidStrategy = p.Bid.Strategy
		if err := s.createStrategy(bidStrat, StrategyRecord{GridID: gid, IsAsk: false, Ref: p.Bid.Strategy, Params: p.Bid.Params}); err != nil {
			return PlaceResult{}, fmt.Errorf("bid strategy: %w", err)
		}
		// 每档 quote 都不超过首档反向价换算值（< 2^128），档数 < 2^31，求和不会溢出 256 位
		for i := uint32(0); i < p.Bid.Count; i++ {
			price, err := bidStrat.Price(false, uint32(gid), i)
			if err != nil {
				return PlaceResult{}, err
			}
			q, err := lens.ToQuote(p.BaseAmount, price, false)
			if err != nil {
				return PlaceResult{}, fmt.Errorf("bid rung %d: %w", i, err)
			}
			requiredQuote.Add(requiredQuote, q)
		}
	}
	s.insertGrid(g)

	res := PlaceResult{
		GridID:        gid,
		AskHandleBase: NewHandle(gid, g.StartAskID),
		BidHandleBase: NewHandle(gid, g.StartBidID),
		RequiredBase:  requiredBase,
		RequiredQuote: requiredQuote,
	}
	s.emit(func() {
		s.e.log.LogGrid("place", uint32(gid), map[string]interface{}{
			"owner":          maker.Hex(),
			"pair_id":        pairID,
			"base_amount":    p.BaseAmount.Dec(),
			"ask_count":      p.Ask.Count,
			"bid_count":      p.Bid.Count,
			"fee_bps":        fee,
			"compound":       p.Compound,
			"oneshot":        p.Oneshot,
			"required_base":  requiredBase.Dec(),
			"required_quote": requiredQuote.Dec(),
		})
		if s.e.mon != nil {
			s.e.mon.RecordPlace()
		}
	})
	return res, nil
}

// checkSide 白名单 + 参数校验，在任何状态写入之前完成
func (e *Engine) checkSide(isAsk bool, baseAmt *uint256.Int, side SideParams) (strategy.Strategy, error) {
	if side.Count == 0 {
		return nil, nil
	}
	name := "bid"
	if isAsk {
		name = "ask"
	}
	if !e.registry.Allowed(side.Strategy) {
		return nil, fmt.Errorf("%s: %w: %q", name, strategy.ErrStrategyNotAllowed, side.Strategy)
	}
	strat, err := e.registry.Lookup(side.Strategy)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if err := strat.ValidateParams(isAsk, baseAmt, side.Params, side.Count); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return strat, nil
}
