package order

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// CancelResult 撤单退款，由宿主转给网格所有者
type CancelResult struct {
	PairID      PairID
	BaseRefund  *uint256.Int
	QuoteRefund *uint256.Int
}

// ownedGrid 校验网格存在、调用者为所有者且网格未撤销
func (e *Engine) ownedGrid(owner common.Address, id GridID) (*GridConfig, error) {
	g, ok := e.st.grids[id]
	if !ok {
		return nil, fmt.Errorf("grid %d: %w", id, ErrInvalidGridID)
	}
	if g.Owner != owner {
		return nil, fmt.Errorf("grid %d: %w", id, ErrNotGridOwner)
	}
	return g, nil
}

// refund 档位当前库存按币种拆分
func refund(v rungView) (base, quote *uint256.Int) {
	if v.isAsk {
		return v.amount, v.rev
	}
	return v.rev, v.amount
}

// CancelGrid cancels every remaining rung of the grid and folds accrued
// profit into the quote refund.
func (s *Session) CancelGrid(owner common.Address, id GridID) (CancelResult, error) {
	var res CancelResult
	err := s.run(true, "cancel_grid", func() (err error) {
		res, err = s.cancelGrid(owner, id)
		return err
	})
	if err != nil {
		return CancelResult{}, err
	}
	return res, nil
}

func (s *Session) cancelGrid(owner common.Address, id GridID) (CancelResult, error) {
	e := s.e
	g, err := e.ownedGrid(owner, id)
	if err != nil {
		return CancelResult{}, err
	}
	if g.Status != GridNormal {
		return CancelResult{}, fmt.Errorf("grid %d: %w", id, ErrGridCanceled)
	}

	res := CancelResult{PairID: g.PairID, BaseRefund: new(uint256.Int), QuoteRefund: new(uint256.Int)}
	canceled := 0
	for _, side := range []struct {
		count uint32
		at    func(uint32) OrderHandle
	}{{g.AskCount, g.AskHandle}, {g.BidCount, g.BidHandle}} {
		for i := uint32(0); i < side.count; i++ {
			r, err := e.st.locate(side.at(i))
			if err != nil {
				return CancelResult{}, err
			}
			v, err := e.view(r)
			if err != nil {
				return CancelResult{}, err
			}
			// 已撤销的档位退过款，跳过
			if v.canceled {
				continue
			}
			base, quote := refund(v)
			res.BaseRefund.Add(res.BaseRefund, base)
			res.QuoteRefund.Add(res.QuoteRefund, quote)
			canceled++
		}
	}

	s.touchGrid(g)
	res.QuoteRefund.Add(res.QuoteRefund, g.Profit)
	profit := g.Profit
	g.Profit = new(uint256.Int)
	g.Status = GridCanceled

	s.emit(func() {
		e.log.LogCancel("cancel_grid", uint32(id), map[string]interface{}{
			"rungs":        canceled,
			"base_refund":  res.BaseRefund.Dec(),
			"quote_refund": res.QuoteRefund.Dec(),
			"profit":       profit.Dec(),
		})
		if e.mon != nil {
			e.mon.RecordGridCanceled()
		}
	})
	return res, nil
}

// CancelGridOrders cancels the listed rungs. Any invalid or already canceled
// handle fails the whole call.
func (s *Session) CancelGridOrders(owner common.Address, id GridID, handles []OrderHandle) (CancelResult, error) {
	var res CancelResult
	err := s.run(true, "cancel_grid_orders", func() (err error) {
		res, err = s.cancelGridOrders(owner, id, handles)
		return err
	})
	if err != nil {
		return CancelResult{}, err
	}
	return res, nil
}

func (s *Session) cancelGridOrders(owner common.Address, id GridID, handles []OrderHandle) (CancelResult, error) {
	e := s.e
	g, err := e.ownedGrid(owner, id)
	if err != nil {
		return CancelResult{}, err
	}
	if g.Status != GridNormal {
		return CancelResult{}, fmt.Errorf("grid %d: %w", id, ErrGridCanceled)
	}

	res := CancelResult{PairID: g.PairID, BaseRefund: new(uint256.Int), QuoteRefund: new(uint256.Int)}
	for _, h := range handles {
		if h.GridID() != id {
			return CancelResult{}, fmt.Errorf("order %s not in grid %d: %w", h, id, ErrInvalidGridID)
		}
		r, err := e.st.locate(h)
		if err != nil {
			return CancelResult{}, fmt.Errorf("order %s: %w", h, err)
		}
		v, err := e.view(r)
		if err != nil {
			return CancelResult{}, fmt.Errorf("order %s: %w", h, err)
		}
		if v.canceled {
			return CancelResult{}, fmt.Errorf("order %s: %w", h, ErrOrderCanceled)
		}
		if err := e.sm.ValidateTransition(v.state, RungCanceled); err != nil {
			return CancelResult{}, err
		}
		base, quote := refund(v)
		res.BaseRefund.Add(res.BaseRefund, base)
		res.QuoteRefund.Add(res.QuoteRefund, quote)
		s.putOrder(h, &Order{State: RungCanceled, Amount: new(uint256.Int), RevAmount: new(uint256.Int)})
	}

	n := len(handles)
	s.emit(func() {
		e.log.LogCancel("cancel_grid_orders", uint32(id), map[string]interface{}{
			"rungs":        n,
			"base_refund":  res.BaseRefund.Dec(),
			"quote_refund": res.QuoteRefund.Dec(),
		})
		if e.mon != nil {
			e.mon.RecordRungsCanceled(n)
		}
	})
	return res, nil
}
