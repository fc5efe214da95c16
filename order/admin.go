package order

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ModifyFee 修改非 oneshot 网格的费率
func (s *Session) ModifyFee(owner common.Address, id GridID, feeBps uint32) error {
	return s.run(true, "modify_fee", func() error {
		e := s.e
		g, err := e.ownedGrid(owner, id)
		if err != nil {
			return err
		}
		if g.Oneshot {
			return fmt.Errorf("grid %d: %w", id, ErrCannotModifyOneshotFee)
		}
		if feeBps < MinFeeBps || feeBps > MaxFeeBps {
			return fmt.Errorf("%w: %d", ErrInvalidGridFee, feeBps)
		}
		old := g.FeeBps
		s.touchGrid(g)
		g.FeeBps = feeBps
		s.emit(func() {
			e.log.LogGrid("modify_fee", uint32(id), map[string]interface{}{"old_fee_bps": old, "fee_bps": feeBps})
		})
		return nil
	})
}

// WithdrawProfit takes amount out of the grid's accrued profit; a nil or zero
// amount withdraws all of it. The amount is clamped to what is available.
func (s *Session) WithdrawProfit(owner common.Address, id GridID, amount *uint256.Int) (PairID, *uint256.Int, error) {
	var (
		pair PairID
		out  *uint256.Int
	)
	err := s.run(true, "withdraw_profit", func() error {
		e := s.e
		g, err := e.ownedGrid(owner, id)
		if err != nil {
			return err
		}
		out = new(uint256.Int).Set(g.Profit)
		if amount != nil && !amount.IsZero() && amount.Lt(out) {
			out.Set(amount)
		}
		if out.IsZero() {
			return fmt.Errorf("grid %d: %w", id, ErrNoProfit)
		}
		s.touchGrid(g)
		g.Profit = new(uint256.Int).Sub(g.Profit, out)
		pair = g.PairID
		s.emit(func() {
			e.log.LogGrid("withdraw_profit", uint32(id), map[string]interface{}{"amount": out.Dec()})
			if e.mon != nil {
				e.mon.RecordWithdraw(toFloat(out))
			}
		})
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return pair, out, nil
}

// SetOneshotFeeBps changes the fee snapshotted by oneshot grids placed later.
func (s *Session) SetOneshotFeeBps(feeBps uint32) error {
	return s.run(true, "set_oneshot_fee", func() error {
		if feeBps < MinFeeBps || feeBps > MaxFeeBps {
			return fmt.Errorf("%w: %d", ErrInvalidGridFee, feeBps)
		}
		c := s.e.st.counters
		old := c.OneshotFeeBps
		c.OneshotFeeBps = feeBps
		s.setCounters(c)
		s.emit(func() {
			s.e.log.LogGrid("set_oneshot_fee", 0, map[string]interface{}{"old_fee_bps": old, "fee_bps": feeBps})
		})
		return nil
	})
}
