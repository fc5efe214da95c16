package order

import (
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"gridex-go/strategy"
)

// MaxCallDepth 默认的嵌套上限（顶层成交算第1层）
const MaxCallDepth = 5

// Session 一次顶层操作的上下文：携带嵌套深度和撤销日志。
// 成交回调拿到同一个 Session，可以在回调里继续成交；
// 任意一层失败都会把自该层开始以来的修改全部撤回。
type Session struct {
	e     *Engine
	depth int

	undo       []func()
	events     []func()
	strategies []StrategyRecord

	dirtyGrids    map[GridID]struct{}
	dirtyOrders   map[OrderHandle]struct{}
	dirtyCounters bool
}

type savepoint struct {
	undo, events, strategies int
}

// Depth returns the current nesting level; 0 outside any operation.
func (s *Session) Depth() int { return s.depth }

func (s *Session) Engine() *Engine { return s.e }

// Atomic runs fn as one operation: either everything fn did through s is
// kept or nothing is.
func (s *Session) Atomic(fn func(s *Session) error) error {
	return s.run(false, "atomic", func() error { return fn(s) })
}

// OnRollback registers fn to run if the current level (or any enclosing one)
// is rolled back. Hosts use it to undo side effects outside the engine, such
// as balance transfers made inside a fill callback.
func (s *Session) OnRollback(fn func()) {
	s.undo = append(s.undo, fn)
}

// run 执行一层操作。admin 操作在任何嵌套中都拒绝执行
func (s *Session) run(admin bool, op string, fn func() error) error {
	if s.depth == 0 && s.e.active != nil && s.e.active != s {
		return fmt.Errorf("%s: another operation in progress: %w", op, ErrReentrantCall)
	}
	if admin && s.depth > 0 {
		return fmt.Errorf("%s: %w", op, ErrReentrantCall)
	}
	if s.depth >= s.e.maxDepth {
		return fmt.Errorf("%s at depth %d: %w", op, s.depth, ErrCallDepthExceeded)
	}
	if s.depth == 0 {
		s.e.active = s
		defer func() { s.e.active = nil }()
	}

	sp := s.mark()
	s.depth++
	err := fn()
	s.depth--

	if err == nil && s.depth == 0 {
		err = s.commit()
	}
	if err != nil {
		s.rollback(sp)
		if s.depth == 0 {
			s.reset()
			s.e.reject(op, err)
		}
		return err
	}
	return nil
}

func (s *Session) mark() savepoint {
	return savepoint{undo: len(s.undo), events: len(s.events), strategies: len(s.strategies)}
}

func (s *Session) rollback(sp savepoint) {
	for i := len(s.undo) - 1; i >= sp.undo; i-- {
		s.undo[i]()
	}
	s.undo = s.undo[:sp.undo]
	s.events = s.events[:sp.events]
	s.strategies = s.strategies[:sp.strategies]
}

func (s *Session) reset() {
	s.undo = nil
	s.events = nil
	s.strategies = nil
	s.dirtyGrids = nil
	s.dirtyOrders = nil
	s.dirtyCounters = false
}

// commit 先落盘，落盘成功后才输出日志和指标
func (s *Session) commit() error {
	if s.e.persister != nil {
		if b := s.batch(); !b.Empty() || s.dirtyCounters {
			if err := s.e.persister.Commit(b); err != nil {
				return fmt.Errorf("persist: %w", err)
			}
		}
	}
	events := s.events
	s.reset()
	for _, ev := range events {
		ev()
	}
	return nil
}

func (s *Session) batch() *Batch {
	st := s.e.st
	b := &Batch{Counters: st.counters, Strategies: s.strategies}

	gids := make([]GridID, 0, len(s.dirtyGrids))
	for id := range s.dirtyGrids {
		gids = append(gids, id)
	}
	sort.Slice(gids, func(i, j int) bool { return gids[i] < gids[j] })
	for _, id := range gids {
		if g, ok := st.grids[id]; ok {
			b.Grids = append(b.Grids, *g.clone())
		}
	}

	hs := make([]OrderHandle, 0, len(s.dirtyOrders))
	for h := range s.dirtyOrders {
		hs = append(hs, h)
	}
	sort.Slice(hs, func(i, j int) bool { return hs[i] < hs[j] })
	for _, h := range hs {
		if o, ok := st.orders[h]; ok {
			b.Orders = append(b.Orders, OrderRecord{Handle: h, Order: *o.clone()})
		}
	}
	return b
}

func (s *Session) emit(ev func()) {
	s.events = append(s.events, ev)
}

// touchGrid 记录网格修改前的快照
func (s *Session) touchGrid(g *GridConfig) {
	saved := g.clone()
	s.undo = append(s.undo, func() { *g = *saved })
	s.markGrid(g.GridID)
}

func (s *Session) markGrid(id GridID) {
	if s.dirtyGrids == nil {
		s.dirtyGrids = make(map[GridID]struct{})
	}
	s.dirtyGrids[id] = struct{}{}
}

func (s *Session) insertGrid(g *GridConfig) {
	grids := s.e.st.grids
	grids[g.GridID] = g
	s.undo = append(s.undo, func() { delete(grids, g.GridID) })
	s.markGrid(g.GridID)
}

// putOrder 替换档位记录。旧记录对象不会被原地修改
func (s *Session) putOrder(h OrderHandle, o *Order) {
	orders := s.e.st.orders
	prev, existed := orders[h]
	orders[h] = o
	s.undo = append(s.undo, func() {
		if existed {
			orders[h] = prev
		} else {
			delete(orders, h)
		}
	})
	if s.dirtyOrders == nil {
		s.dirtyOrders = make(map[OrderHandle]struct{})
	}
	s.dirtyOrders[h] = struct{}{}
}

func (s *Session) setCounters(c Counters) {
	st := s.e.st
	prev := st.counters
	st.counters = c
	s.undo = append(s.undo, func() { st.counters = prev })
	s.dirtyCounters = true
}

func (s *Session) createStrategy(strat strategy.Strategy, rec StrategyRecord) error {
	if err := strat.CreateStrategy(rec.IsAsk, uint32(rec.GridID), rec.Params); err != nil {
		return err
	}
	if r, ok := strat.(strategy.Remover); ok {
		s.undo = append(s.undo, func() { r.RemoveStrategy(rec.IsAsk, uint32(rec.GridID)) })
	}
	s.strategies = append(s.strategies, rec)
	return nil
}

// addAmount 相加并保证结果仍在数量域内（< 2^128）
func addAmount(a, b *uint256.Int, exceed error) (*uint256.Int, error) {
	sum, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow || sum.BitLen() > 128 {
		return nil, exceed
	}
	return sum, nil
}
