package order

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridex-go/lens"
	"gridex-go/strategy"
)

func TestPlaceRequiredCollateralAndPrices(t *testing.T) {
	e := newTestEngine()
	res, g := placeStandard(t, e, nil)

	assert.Equal(t, GridID(1), res.GridID)
	assert.Equal(t, "3000", res.RequiredBase.Dec())
	// 1000*95 + 1000*90
	assert.Equal(t, "185000", res.RequiredQuote.Dec())

	for i, want := range []uint64{100, 105, 110} {
		oi := info(t, e, g.AskHandle(uint32(i)))
		assert.True(t, oi.Price.Eq(px(want)), "ask %d", i)
		assert.True(t, oi.IsAsk)
		assert.Equal(t, RungVirtual, oi.State)
		assert.Equal(t, "1000", oi.Amount.Dec())
		assert.True(t, oi.RevAmount.IsZero())
	}
	bid := info(t, e, g.BidHandle(1))
	assert.True(t, bid.Price.Eq(px(90)))
	assert.True(t, bid.RevPrice.Eq(px(95)))
	assert.Equal(t, "90000", bid.Amount.Dec())
	assert.Equal(t, uint32(3000), bid.FeeBps)
	assert.Equal(t, testPair, bid.PairID)
}

func TestPlaceRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*PlaceParams)
		want   error
	}{
		{"fee too low", func(p *PlaceParams) { p.FeeBps = MinFeeBps - 1 }, ErrInvalidGridFee},
		{"fee too high", func(p *PlaceParams) { p.FeeBps = MaxFeeBps + 1 }, ErrInvalidGridFee},
		{"no orders", func(p *PlaceParams) { p.Ask.Count, p.Bid.Count = 0, 0 }, ErrZeroGridOrderCount},
		{"zero base", func(p *PlaceParams) { p.BaseAmount = n(0) }, lens.ErrZeroBaseAmt},
		{"base beyond amount domain", func(p *PlaceParams) {
			p.BaseAmount = new(uint256.Int).Lsh(n(1), 128)
		}, ErrExceedMaxAmount},
		{"base times count overflow", func(p *PlaceParams) {
			p.BaseAmount = new(uint256.Int).Lsh(n(1), 127)
			p.Bid.Count = 0
		}, ErrExceedMaxAmount},
		{"unknown strategy", func(p *PlaceParams) { p.Ask.Strategy = "spiral" }, strategy.ErrStrategyNotAllowed},
		{"bad gap", func(p *PlaceParams) { p.Ask = linearSide(100, -5, 3) }, strategy.ErrInvalidGap},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEngine()
			p := standardParams()
			tc.mutate(&p)
			_, err := e.Place(testPair, maker, p)
			assert.ErrorIs(t, err, tc.want)

			// 失败不消耗编号
			c := e.State().Counters()
			assert.Equal(t, GridID(1), c.NextGridID)
			assert.Equal(t, AskFlag|1, c.NextAskID)
			assert.Equal(t, OrderID(1), c.NextBidID)
		})
	}
}

func TestPlaceDisallowedStrategy(t *testing.T) {
	e := newTestEngine()
	require.NoError(t, e.Registry().SetAllowed(strategy.Ref(strategy.TypeLinear), false))
	_, err := e.Place(testPair, maker, standardParams())
	assert.ErrorIs(t, err, strategy.ErrStrategyNotAllowed)
}

func TestOrderIDsContiguousAndDisjoint(t *testing.T) {
	e := newTestEngine()
	r1, g1 := placeStandard(t, e, nil)
	r2, g2 := placeStandard(t, e, nil)

	assert.Equal(t, r1.GridID+1, r2.GridID)
	assert.Equal(t, AskFlag|1, g1.StartAskID)
	assert.Equal(t, g1.StartAskID+3, g2.StartAskID)
	assert.Equal(t, OrderID(1), g1.StartBidID)
	assert.Equal(t, g1.StartBidID+2, g2.StartBidID)

	seen := map[OrderID]bool{}
	for _, g := range []GridConfig{g1, g2} {
		for i := uint32(0); i < g.AskCount; i++ {
			h := g.AskHandle(i)
			assert.True(t, h.IsAsk())
			assert.Equal(t, g.GridID, h.GridID())
			assert.False(t, seen[h.OrderID()])
			seen[h.OrderID()] = true
		}
		for i := uint32(0); i < g.BidCount; i++ {
			h := g.BidHandle(i)
			assert.False(t, h.IsAsk())
			assert.False(t, seen[h.OrderID()])
			seen[h.OrderID()] = true
		}
	}
	assert.Equal(t, r2.AskHandleBase, g2.AskHandle(0))
}

func TestAskIDExhaustionLeavesBidsUsable(t *testing.T) {
	e := newTestEngine()
	e.st.counters.NextAskID = OrderID(math.MaxUint32)

	// 最后一个卖单 ID 用完后卖单域回绕为 0
	_, g := placeStandard(t, e, func(p *PlaceParams) { p.Ask = linearSide(100, 5, 1) })
	assert.Equal(t, OrderID(math.MaxUint32), g.StartAskID)
	assert.Equal(t, OrderID(0), e.State().Counters().NextAskID)

	_, err := e.Place(testPair, maker, standardParams())
	assert.ErrorIs(t, err, ErrOrderIDExhausted)

	_, bidOnly := placeStandard(t, e, func(p *PlaceParams) { p.Ask = SideParams{} })
	assert.Equal(t, uint32(0), bidOnly.AskCount)
	assert.Equal(t, uint32(2), bidOnly.BidCount)
	assert.Equal(t, OrderID(0), e.State().Counters().NextAskID)
}

func TestGetOrderInfoBounds(t *testing.T) {
	e := newTestEngine()
	_, g := placeStandard(t, e, nil)

	_, err := e.GetOrderInfo(g.AskHandle(3), false)
	assert.ErrorIs(t, err, ErrInvalidGridID)
	_, err = e.GetOrderInfo(g.BidHandle(2), false)
	assert.ErrorIs(t, err, ErrInvalidGridID)
	_, err = e.GetOrderInfo(NewHandle(99, AskFlag|1), false)
	assert.ErrorIs(t, err, ErrInvalidGridID)
}

func TestDrainedRungStaysAuthoritative(t *testing.T) {
	e := newTestEngine()
	_, g := placeStandard(t, e, nil)
	h := g.AskHandle(0)
	e.State().orders[h] = &Order{State: RungOpen, Amount: n(0), RevAmount: n(0)}

	oi := info(t, e, h)
	assert.Equal(t, RungOpen, oi.State)
	assert.True(t, oi.Amount.IsZero(), "drained rung must not fall back to the virtual default")

	_, err := e.FillAsk(h, n(1), nil)
	assert.ErrorIs(t, err, lens.ErrZeroBaseAmt)
}

func TestFillAskClampsToBaseAmount(t *testing.T) {
	e := newTestEngine()
	_, g := placeStandard(t, e, nil)
	h := g.AskHandle(0)

	res, err := e.FillAsk(h, n(5000), nil)
	require.NoError(t, err)
	assert.Equal(t, "1000", res.FilledAmt.Dec())
	assert.Equal(t, "100000", res.FilledVol.Dec())
	assert.Equal(t, "120", res.LPFee.Dec())
	assert.Equal(t, "180", res.ProtocolFee.Dec())
	// quota = 1000*95, proceeds 100120 -> 5120 skimmed
	assert.Equal(t, "5120", res.ProfitDelta.Dec())
	assert.True(t, res.NewResidual.IsZero())
	assert.Equal(t, "95000", res.NewReverseResidual.Dec())
	assert.Equal(t, "100300", res.TakerQuote().Dec())

	_, err = e.FillAsk(h, n(1), nil)
	assert.ErrorIs(t, err, lens.ErrZeroBaseAmt)

	grid, err := e.Grid(g.GridID)
	require.NoError(t, err)
	assert.Equal(t, "5120", grid.Profit.Dec())
}

func TestFlippedRungRoundTrip(t *testing.T) {
	e := newTestEngine()
	_, g := placeStandard(t, e, nil)
	h := g.AskHandle(0)

	_, err := e.FillAsk(h, n(1000), nil)
	require.NoError(t, err)

	// taker 以反向价 95 卖回 base
	res, err := e.FillBid(h, n(1000), nil)
	require.NoError(t, err)
	assert.Equal(t, "1000", res.FilledAmt.Dec())
	assert.Equal(t, "95000", res.FilledVol.Dec())
	assert.Equal(t, "114", res.LPFee.Dec())
	assert.Equal(t, "171", res.ProtocolFee.Dec())
	assert.Equal(t, "114", res.ProfitDelta.Dec())
	assert.Equal(t, "94715", res.TakerQuote().Dec())

	oi := info(t, e, h)
	assert.Equal(t, "1000", oi.Amount.Dec())
	assert.True(t, oi.RevAmount.IsZero())

	grid, _ := e.Grid(g.GridID)
	assert.Equal(t, "5234", grid.Profit.Dec())
}

func TestCompoundFillBidClampsToQuote(t *testing.T) {
	e := newTestEngine()
	_, g := placeStandard(t, e, func(p *PlaceParams) { p.Compound = true })
	h := g.AskHandle(0)

	res, err := e.FillAsk(h, n(1000), nil)
	require.NoError(t, err)
	assert.True(t, res.ProfitDelta.IsZero())
	assert.Equal(t, "100120", res.NewReverseResidual.Dec())

	res, err = e.FillBid(h, n(2000), nil)
	require.NoError(t, err)
	// ceil(100120/95)
	assert.Equal(t, "1054", res.FilledAmt.Dec())
	assert.Equal(t, "100120", res.FilledVol.Dec())
	assert.Equal(t, "120", res.LPFee.Dec())
	assert.Equal(t, "1054", res.NewResidual.Dec())
	assert.Equal(t, "120", res.NewReverseResidual.Dec())

	grid, _ := e.Grid(g.GridID)
	assert.True(t, grid.Profit.IsZero())
}

func TestFillBidOnVirtualBid(t *testing.T) {
	e := newTestEngine()
	_, g := placeStandard(t, e, nil)
	h := g.BidHandle(0)

	res, err := e.FillBid(h, n(400), nil)
	require.NoError(t, err)
	assert.Equal(t, "400", res.FilledAmt.Dec())
	assert.Equal(t, "38000", res.FilledVol.Dec())

	oi := info(t, e, h)
	assert.Equal(t, RungOpen, oi.State)
	assert.Equal(t, "57000", oi.Amount.Dec())
	assert.Equal(t, "400", oi.RevAmount.Dec())

	// 翻转后 taker 以 ask 价 100 买回
	res, err = e.FillAsk(h, n(1000), nil)
	require.NoError(t, err)
	assert.Equal(t, "400", res.FilledAmt.Dec())
	assert.Equal(t, "40000", res.FilledVol.Dec())
}

func TestOneshotDrainClosesOnlyThatRung(t *testing.T) {
	e := newTestEngine()
	_, g := placeStandard(t, e, func(p *PlaceParams) {
		p.Oneshot = true
		p.FeeBps = 0
	})
	assert.Equal(t, uint32(500), g.FeeBps)
	h0, h1 := g.AskHandle(0), g.AskHandle(1)

	res, err := e.FillAsk(h0, n(1000), nil)
	require.NoError(t, err)
	assert.True(t, res.LPFee.IsZero())
	assert.Equal(t, "50", res.ProtocolFee.Dec())
	assert.True(t, res.RungClosed)
	assert.Equal(t, "95000", res.OwnerPayout.Dec())
	assert.Equal(t, "5000", res.ProfitDelta.Dec())

	oi := info(t, e, h0)
	assert.True(t, oi.Canceled)
	assert.Equal(t, RungCanceled, oi.State)
	assert.False(t, info(t, e, h1).Canceled)

	grid, _ := e.Grid(g.GridID)
	assert.Equal(t, GridNormal, grid.Status)

	_, err = e.FillAsk(h0, n(1), nil)
	assert.ErrorIs(t, err, ErrOrderCanceled)
	_, err = e.GetOrderInfo(h0, true)
	assert.ErrorIs(t, err, ErrOrderCanceled)
}

func TestOneshotRejectsReversedFill(t *testing.T) {
	e := newTestEngine()
	_, g := placeStandard(t, e, func(p *PlaceParams) { p.Oneshot = true })

	_, err := e.FillAsk(g.AskHandle(0), n(500), nil)
	require.NoError(t, err)
	_, err = e.FillBid(g.AskHandle(0), n(100), nil)
	assert.ErrorIs(t, err, ErrFillReversedOneShotOrder)
	_, err = e.FillAsk(g.BidHandle(0), n(100), nil)
	assert.ErrorIs(t, err, ErrFillReversedOneShotOrder)
}

func TestOneshotFeeSnapshot(t *testing.T) {
	e := newTestEngine()
	_, g1 := placeStandard(t, e, func(p *PlaceParams) { p.Oneshot = true })
	require.NoError(t, e.SetOneshotFeeBps(800))
	assert.Equal(t, uint32(800), e.OneshotFeeBps())
	_, g2 := placeStandard(t, e, func(p *PlaceParams) { p.Oneshot = true })

	grid1, _ := e.Grid(g1.GridID)
	assert.Equal(t, uint32(500), grid1.FeeBps)
	assert.Equal(t, uint32(800), g2.FeeBps)

	assert.ErrorIs(t, e.SetOneshotFeeBps(MaxFeeBps+1), ErrInvalidGridFee)
}

func TestCancelGridRefundsAndIsSticky(t *testing.T) {
	e := newTestEngine()
	_, g := placeStandard(t, e, nil)
	_, err := e.FillAsk(g.AskHandle(0), n(1000), nil)
	require.NoError(t, err)

	_, err = e.CancelGrid(other, g.GridID)
	assert.ErrorIs(t, err, ErrNotGridOwner)

	res, err := e.CancelGrid(maker, g.GridID)
	require.NoError(t, err)
	assert.Equal(t, testPair, res.PairID)
	assert.Equal(t, "2000", res.BaseRefund.Dec())
	// 95000 (flipped rung) + 95000 + 90000 + 5120 profit
	assert.Equal(t, "285120", res.QuoteRefund.Dec())

	grid, _ := e.Grid(g.GridID)
	assert.Equal(t, GridCanceled, grid.Status)
	assert.True(t, grid.Profit.IsZero())

	_, err = e.CancelGrid(maker, g.GridID)
	assert.ErrorIs(t, err, ErrOrderCanceled)
	assert.ErrorIs(t, err, ErrGridCanceled)

	_, err = e.FillAsk(g.AskHandle(1), n(1), nil)
	assert.ErrorIs(t, err, ErrOrderCanceled)
	oi := info(t, e, g.AskHandle(1))
	assert.True(t, oi.Canceled)
	assert.True(t, oi.Amount.IsZero())
}

func TestCancelGridOrdersStrict(t *testing.T) {
	e := newTestEngine()
	_, g := placeStandard(t, e, nil)
	_, g2 := placeStandard(t, e, nil)

	res, err := e.CancelGridOrders(maker, g.GridID, []OrderHandle{g.AskHandle(1), g.BidHandle(0)})
	require.NoError(t, err)
	assert.Equal(t, "1000", res.BaseRefund.Dec())
	assert.Equal(t, "95000", res.QuoteRefund.Dec())

	_, err = e.CancelGridOrders(maker, g.GridID, []OrderHandle{g.AskHandle(1)})
	assert.ErrorIs(t, err, ErrOrderCanceled)

	// 列表中有一个失败，整批回滚
	_, err = e.CancelGridOrders(maker, g.GridID, []OrderHandle{g.AskHandle(2), g.AskHandle(1)})
	assert.ErrorIs(t, err, ErrOrderCanceled)
	assert.False(t, info(t, e, g.AskHandle(2)).Canceled)

	_, err = e.CancelGridOrders(maker, g.GridID, []OrderHandle{g2.AskHandle(0)})
	assert.ErrorIs(t, err, ErrInvalidGridID)
	_, err = e.CancelGridOrders(other, g.GridID, []OrderHandle{g.AskHandle(0)})
	assert.ErrorIs(t, err, ErrNotGridOwner)

	// 整体撤销不会重复退还已撤销档位
	all, err := e.CancelGrid(maker, g.GridID)
	require.NoError(t, err)
	assert.Equal(t, "2000", all.BaseRefund.Dec())
	assert.Equal(t, "90000", all.QuoteRefund.Dec())
}

func TestModifyFee(t *testing.T) {
	e := newTestEngine()
	_, g := placeStandard(t, e, nil)
	_, og := placeStandard(t, e, func(p *PlaceParams) { p.Oneshot = true })

	require.NoError(t, e.ModifyFee(maker, g.GridID, 10_000))
	grid, _ := e.Grid(g.GridID)
	assert.Equal(t, uint32(10_000), grid.FeeBps)

	assert.ErrorIs(t, e.ModifyFee(other, g.GridID, 10_000), ErrNotGridOwner)
	assert.ErrorIs(t, e.ModifyFee(maker, g.GridID, 1), ErrInvalidGridFee)
	assert.ErrorIs(t, e.ModifyFee(maker, og.GridID, 10_000), ErrCannotModifyOneshotFee)
	assert.ErrorIs(t, e.ModifyFee(maker, 77, 10_000), ErrInvalidGridID)
}

func TestWithdrawProfit(t *testing.T) {
	e := newTestEngine()
	_, g := placeStandard(t, e, nil)

	_, _, err := e.WithdrawProfit(maker, g.GridID, nil)
	assert.ErrorIs(t, err, ErrNoProfit)

	_, err = e.FillAsk(g.AskHandle(0), n(1000), nil)
	require.NoError(t, err)

	pair, out, err := e.WithdrawProfit(maker, g.GridID, n(120))
	require.NoError(t, err)
	assert.Equal(t, testPair, pair)
	assert.Equal(t, "120", out.Dec())

	_, out, err = e.WithdrawProfit(maker, g.GridID, n(1_000_000))
	require.NoError(t, err)
	assert.Equal(t, "5000", out.Dec())

	_, _, err = e.WithdrawProfit(other, g.GridID, nil)
	assert.ErrorIs(t, err, ErrNotGridOwner)
}

// 随机成交序列下 base/quote 守恒
func TestFillConservation(t *testing.T) {
	for _, compound := range []bool{false, true} {
		e := newTestEngine()
		res, g := placeStandard(t, e, func(p *PlaceParams) { p.Compound = compound })

		var handles []OrderHandle
		for i := uint32(0); i < g.AskCount; i++ {
			handles = append(handles, g.AskHandle(i))
		}
		for i := uint32(0); i < g.BidCount; i++ {
			handles = append(handles, g.BidHandle(i))
		}

		baseOut, baseIn := new(uint256.Int), new(uint256.Int)
		quoteIn, quoteOut := new(uint256.Int), new(uint256.Int)
		protocol := new(uint256.Int)

		rng := rand.New(rand.NewSource(7))
		for step := 0; step < 400; step++ {
			h := handles[rng.Intn(len(handles))]
			amt := n(uint64(rng.Intn(700) + 1))
			var (
				fr  FillResult
				err error
			)
			if rng.Intn(2) == 0 {
				fr, err = e.FillAsk(h, amt, nil)
			} else {
				fr, err = e.FillBid(h, amt, nil)
			}
			if err != nil {
				require.True(t, errors.Is(err, lens.ErrZeroBaseAmt) || errors.Is(err, lens.ErrZeroQuoteAmt), err)
				continue
			}
			protocol.Add(protocol, fr.ProtocolFee)
			if fr.TakerBuys {
				baseOut.Add(baseOut, fr.FilledAmt)
				quoteIn.Add(quoteIn, fr.TakerQuote())
			} else {
				baseIn.Add(baseIn, fr.FilledAmt)
				quoteOut.Add(quoteOut, fr.TakerQuote())
			}
		}

		baseHeld, quoteHeld := new(uint256.Int), new(uint256.Int)
		for _, h := range handles {
			oi := info(t, e, h)
			if oi.IsAsk {
				baseHeld.Add(baseHeld, oi.Amount)
				quoteHeld.Add(quoteHeld, oi.RevAmount)
			} else {
				quoteHeld.Add(quoteHeld, oi.Amount)
				baseHeld.Add(baseHeld, oi.RevAmount)
			}
		}
		grid, _ := e.Grid(g.GridID)

		lhsBase := new(uint256.Int).Add(baseHeld, baseOut)
		rhsBase := new(uint256.Int).Add(res.RequiredBase, baseIn)
		assert.True(t, lhsBase.Eq(rhsBase), "compound=%v base %s != %s", compound, lhsBase.Dec(), rhsBase.Dec())

		lhsQuote := new(uint256.Int).Add(quoteHeld, grid.Profit)
		lhsQuote.Add(lhsQuote, protocol)
		lhsQuote.Add(lhsQuote, quoteOut)
		rhsQuote := new(uint256.Int).Add(res.RequiredQuote, quoteIn)
		assert.True(t, lhsQuote.Eq(rhsQuote), "compound=%v quote %s != %s", compound, lhsQuote.Dec(), rhsQuote.Dec())
	}
}
