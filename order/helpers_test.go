package order

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"gridex-go/fixedpoint"
	"gridex-go/strategy"
)

var (
	maker = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	other = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

const testPair PairID = 1

func px(units uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(units), fixedpoint.PriceScale)
}

func n(v uint64) *uint256.Int { return uint256.NewInt(v) }

// ratio 以千分比给出，换算到 1e18 精度
func ratio(permille uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(permille), uint256.NewInt(1e15))
}

func gap(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), fixedpoint.PriceScale.ToBig())
}

func linearSide(basePrice uint64, step int64, count uint32) SideParams {
	return SideParams{
		Strategy: strategy.Ref(strategy.TypeLinear),
		Params:   strategy.LinearParams{BasePrice: px(basePrice), Gap: gap(step)},
		Count:    count,
	}
}

func newTestEngine(opts ...Option) *Engine {
	return NewEngine(NewState(500), strategy.NewDefaultRegistry(), opts...)
}

// standardParams: asks at 100,105,110 and bids at 95,90, 1000 base per rung, fee 0.3%.
func standardParams() PlaceParams {
	return PlaceParams{
		BaseAmount: n(1000),
		Ask:        linearSide(100, 5, 3),
		Bid:        linearSide(95, -5, 2),
		FeeBps:     3000,
	}
}

func placeStandard(t *testing.T, e *Engine, mutate func(*PlaceParams)) (PlaceResult, GridConfig) {
	t.Helper()
	p := standardParams()
	if mutate != nil {
		mutate(&p)
	}
	res, err := e.Place(testPair, maker, p)
	require.NoError(t, err)
	g, err := e.Grid(res.GridID)
	require.NoError(t, err)
	return res, g
}

func info(t *testing.T, e *Engine, h OrderHandle) OrderInfo {
	t.Helper()
	oi, err := e.GetOrderInfo(h, false)
	require.NoError(t, err)
	return oi
}

// memPersister 把每次提交合并进内存快照
type memPersister struct {
	grids      map[GridID]GridConfig
	orders     map[OrderHandle]Order
	strategies []StrategyRecord
	counters   Counters
	commits    int
	fail       error
}

func newMemPersister() *memPersister {
	return &memPersister{grids: map[GridID]GridConfig{}, orders: map[OrderHandle]Order{}}
}

func (m *memPersister) Commit(b *Batch) error {
	if m.fail != nil {
		return m.fail
	}
	m.commits++
	for _, g := range b.Grids {
		m.grids[g.GridID] = g
	}
	for _, o := range b.Orders {
		m.orders[o.Handle] = o.Order
	}
	m.strategies = append(m.strategies, b.Strategies...)
	m.counters = b.Counters
	return nil
}

func (m *memPersister) snapshot() *Snapshot {
	snap := &Snapshot{Strategies: m.strategies, Counters: m.counters}
	for _, g := range m.grids {
		snap.Grids = append(snap.Grids, g)
	}
	for h, o := range m.orders {
		snap.Orders = append(snap.Orders, OrderRecord{Handle: h, Order: o})
	}
	return snap
}
