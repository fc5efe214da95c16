package order

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"gridex-go/strategy"
)

// PairID 交易对编号，由宿主（exchange）分配
type PairID uint64

// GridStatus 网格状态，撤销后不可恢复
type GridStatus uint8

const (
	GridNormal GridStatus = iota + 1
	GridCanceled
)

func (s GridStatus) String() string {
	switch s {
	case GridNormal:
		return "NORMAL"
	case GridCanceled:
		return "CANCELED"
	default:
		return "UNKNOWN"
	}
}

// RungState 单档订单状态
type RungState uint8

const (
	// RungVirtual 从未成交，没有存储记录，数量由网格配置推导
	RungVirtual RungState = iota
	RungOpen
	RungCanceled
)

func (s RungState) String() string {
	switch s {
	case RungVirtual:
		return "VIRTUAL"
	case RungOpen:
		return "OPEN"
	case RungCanceled:
		return "CANCELED"
	default:
		return "UNKNOWN"
	}
}

// GridConfig 网格配置。Owner、档位数量创建后不再变化
type GridConfig struct {
	GridID      GridID         `json:"gridId"`
	Owner       common.Address `json:"owner"`
	PairID      PairID         `json:"pairId"`
	BaseAmount  *uint256.Int   `json:"baseAmount"`
	AskStrategy strategy.Ref   `json:"askStrategy,omitempty"`
	BidStrategy strategy.Ref   `json:"bidStrategy,omitempty"`
	AskCount    uint32         `json:"askCount"`
	BidCount    uint32         `json:"bidCount"`
	StartAskID  OrderID        `json:"startAskId"`
	StartBidID  OrderID        `json:"startBidId"`
	FeeBps      uint32         `json:"feeBps"`
	Compound    bool           `json:"compound"`
	Oneshot     bool           `json:"oneshot"`
	Status      GridStatus     `json:"status"`
	Profit      *uint256.Int   `json:"profit"`
}

func (g *GridConfig) clone() *GridConfig {
	c := *g
	c.BaseAmount = new(uint256.Int).Set(g.BaseAmount)
	c.Profit = new(uint256.Int).Set(g.Profit)
	return &c
}

// Order 已物化的档位记录。Amount 为本侧库存（ask为base，bid为quote），RevAmount 为反向库存
type Order struct {
	State     RungState    `json:"state"`
	Amount    *uint256.Int `json:"amount"`
	RevAmount *uint256.Int `json:"revAmount"`
}

func (o *Order) clone() *Order {
	return &Order{
		State:     o.State,
		Amount:    new(uint256.Int).Set(o.Amount),
		RevAmount: new(uint256.Int).Set(o.RevAmount),
	}
}

// Counters 全局计数器与一次性手续费
type Counters struct {
	NextGridID    GridID  `json:"nextGridId"`
	NextAskID     OrderID `json:"nextAskId"`
	NextBidID     OrderID `json:"nextBidId"`
	OneshotFeeBps uint32  `json:"oneshotFeeBps"`
}

// State 引擎的全部可变状态，显式传给 Engine，不存在包级全局变量
type State struct {
	grids    map[GridID]*GridConfig
	orders   map[OrderHandle]*Order
	counters Counters
}

func NewState(oneshotFeeBps uint32) *State {
	return &State{
		grids:  make(map[GridID]*GridConfig),
		orders: make(map[OrderHandle]*Order),
		counters: Counters{
			NextGridID:    1,
			NextAskID:     AskFlag | 1,
			NextBidID:     1,
			OneshotFeeBps: oneshotFeeBps,
		},
	}
}

func (s *State) Counters() Counters { return s.counters }

// GridCount returns the number of grids ever placed and the number still normal.
func (s *State) GridCount() (total, active int) {
	for _, g := range s.grids {
		total++
		if g.Status == GridNormal {
			active++
		}
	}
	return total, active
}

// rung 解析后的档位位置
type rung struct {
	grid   *GridConfig
	handle OrderHandle
	idx    uint32
	isAsk  bool
}

// locate 校验订单号落在网格该侧的区间内
func (s *State) locate(h OrderHandle) (rung, error) {
	g, ok := s.grids[h.GridID()]
	if !ok {
		return rung{}, ErrInvalidGridID
	}
	oid := h.OrderID()
	start, count := g.StartBidID, g.BidCount
	if oid.IsAsk() {
		start, count = g.StartAskID, g.AskCount
	}
	if oid < start || uint32(oid-start) >= count {
		return rung{}, ErrInvalidGridID
	}
	return rung{grid: g, handle: h, idx: uint32(oid - start), isAsk: oid.IsAsk()}, nil
}
