package order

import (
	"fmt"

	"gridex-go/strategy"
)

// StrategyRecord 一个 (grid, side) 的策略参数，只在下单时写入一次
type StrategyRecord struct {
	GridID GridID
	IsAsk  bool
	Ref    strategy.Ref
	Params strategy.Params
}

type OrderRecord struct {
	Handle OrderHandle
	Order  Order
}

// Batch 一次顶层操作提交时的脏数据
type Batch struct {
	Grids      []GridConfig
	Orders     []OrderRecord
	Strategies []StrategyRecord
	Counters   Counters
}

func (b *Batch) Empty() bool {
	return len(b.Grids) == 0 && len(b.Orders) == 0 && len(b.Strategies) == 0
}

// Persister receives the batch of every successful top-level operation.
// A returned error rolls the operation back.
type Persister interface {
	Commit(b *Batch) error
}

// Snapshot 持久化层加载出的完整状态
type Snapshot struct {
	Grids      []GridConfig
	Orders     []OrderRecord
	Strategies []StrategyRecord
	Counters   Counters
}

// Restore rebuilds an engine from a snapshot. Strategy records are replayed
// into the registry's strategies regardless of their allowed flag.
func Restore(snap *Snapshot, reg *strategy.Registry, opts ...Option) (*Engine, error) {
	st := NewState(snap.Counters.OneshotFeeBps)
	if snap.Counters.NextGridID != 0 {
		st.counters = snap.Counters
	}
	for i := range snap.Grids {
		g := snap.Grids[i]
		if g.BaseAmount == nil || g.Profit == nil {
			return nil, fmt.Errorf("restore grid %d: missing amounts", g.GridID)
		}
		st.grids[g.GridID] = g.clone()
	}
	for _, rec := range snap.Orders {
		if _, ok := st.grids[rec.Handle.GridID()]; !ok {
			return nil, fmt.Errorf("restore order %s: %w", rec.Handle, ErrInvalidGridID)
		}
		if rec.Order.Amount == nil || rec.Order.RevAmount == nil {
			return nil, fmt.Errorf("restore order %s: missing amounts", rec.Handle)
		}
		st.orders[rec.Handle] = rec.Order.clone()
	}
	for _, rec := range snap.Strategies {
		s, err := reg.Lookup(rec.Ref)
		if err != nil {
			return nil, fmt.Errorf("restore strategy for grid %d: %w", rec.GridID, err)
		}
		if err := s.CreateStrategy(rec.IsAsk, uint32(rec.GridID), rec.Params); err != nil {
			return nil, fmt.Errorf("restore strategy for grid %d: %w", rec.GridID, err)
		}
	}
	for id, g := range st.grids {
		for _, side := range []struct {
			isAsk bool
			count uint32
			ref   strategy.Ref
		}{{true, g.AskCount, g.AskStrategy}, {false, g.BidCount, g.BidStrategy}} {
			if side.count == 0 {
				continue
			}
			s, err := reg.Lookup(side.ref)
			if err != nil {
				return nil, fmt.Errorf("restore grid %d: %w", id, err)
			}
			if _, ok := s.Params(side.isAsk, uint32(id)); !ok {
				return nil, fmt.Errorf("restore grid %d: %w", id, strategy.ErrNotFound)
			}
		}
	}

	e := NewEngine(st, reg, opts...)
	if e.mon != nil {
		_, active := st.GridCount()
		e.mon.SetActiveGrids(active)
	}
	return e, nil
}
