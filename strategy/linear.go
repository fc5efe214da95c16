package strategy

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// LinearParams price(idx) = BasePrice + Gap*idx。
// Gap 为有符号数：卖单 > 0（价格递增），买单 < 0（价格递减）。
type LinearParams struct {
	BasePrice *uint256.Int `json:"basePrice"`
	Gap       *big.Int     `json:"gap"`
}

func (LinearParams) Kind() Type { return TypeLinear }
func (LinearParams) isParams()  {}

type linearRecord struct {
	base *uint256.Int
	gap  *uint256.Int // magnitude
	neg  bool
}

// Linear 等差网格。
type Linear struct {
	records map[key]linearRecord
}

func NewLinear() *Linear {
	return &Linear{records: make(map[key]linearRecord)}
}

func (l *Linear) Type() Type { return TypeLinear }

func (l *Linear) ValidateParams(isAsk bool, baseAmt *uint256.Int, params Params, count uint32) error {
	p, ok := params.(LinearParams)
	if !ok {
		return fmt.Errorf("linear: %w", ErrParamsMismatch)
	}
	if count == 0 {
		return fmt.Errorf("linear %s: %w", sideName(isAsk), ErrInvalidCount)
	}
	rec, err := normalizeLinear(p)
	if err != nil {
		return err
	}
	steps := uint256.NewInt(uint64(count - 1))
	span, overflow := new(uint256.Int).MulOverflow(rec.gap, steps)
	if overflow {
		return fmt.Errorf("linear %s top rung: %w", sideName(isAsk), ErrPriceOverflow)
	}

	var extreme, reverse0 *uint256.Int
	if isAsk {
		if rec.neg {
			return fmt.Errorf("linear ask: gap must be positive: %w", ErrInvalidGap)
		}
		if !rec.gap.Lt(rec.base) {
			return fmt.Errorf("linear ask: gap must be below base price: %w", ErrInvalidGap)
		}
		top, overflow := new(uint256.Int).AddOverflow(rec.base, span)
		if overflow {
			return fmt.Errorf("linear ask top rung: %w", ErrPriceOverflow)
		}
		extreme = top
		reverse0 = new(uint256.Int).Sub(rec.base, rec.gap)
	} else {
		if !rec.neg {
			return fmt.Errorf("linear bid: gap must be negative: %w", ErrInvalidGap)
		}
		if !span.Lt(rec.base) {
			return fmt.Errorf("linear bid last rung: %w", ErrNonPositivePrice)
		}
		extreme = new(uint256.Int).Sub(rec.base, span)
		r0, overflow := new(uint256.Int).AddOverflow(rec.base, rec.gap)
		if overflow {
			return fmt.Errorf("linear bid reverse price: %w", ErrPriceOverflow)
		}
		reverse0 = r0
	}
	return checkEdges(isAsk, baseAmt, extreme, reverse0)
}

func (l *Linear) CreateStrategy(isAsk bool, gridID uint32, params Params) error {
	p, ok := params.(LinearParams)
	if !ok {
		return fmt.Errorf("linear: %w", ErrParamsMismatch)
	}
	k := key{gridID: gridID, isAsk: isAsk}
	if _, exists := l.records[k]; exists {
		return fmt.Errorf("linear grid %d %s: %w", gridID, sideName(isAsk), ErrAlreadyExists)
	}
	rec, err := normalizeLinear(p)
	if err != nil {
		return err
	}
	l.records[k] = rec
	return nil
}

func (l *Linear) RemoveStrategy(isAsk bool, gridID uint32) {
	delete(l.records, key{gridID: gridID, isAsk: isAsk})
}

func (l *Linear) Price(isAsk bool, gridID uint32, idx uint32) (*uint256.Int, error) {
	rec, ok := l.records[key{gridID: gridID, isAsk: isAsk}]
	if !ok {
		return nil, fmt.Errorf("linear grid %d %s: %w", gridID, sideName(isAsk), ErrNotFound)
	}
	return rec.at(int64(idx))
}

func (l *Linear) ReversePrice(isAsk bool, gridID uint32, idx uint32) (*uint256.Int, error) {
	rec, ok := l.records[key{gridID: gridID, isAsk: isAsk}]
	if !ok {
		return nil, fmt.Errorf("linear grid %d %s: %w", gridID, sideName(isAsk), ErrNotFound)
	}
	return rec.at(int64(idx) - 1)
}

func (l *Linear) Params(isAsk bool, gridID uint32) (Params, bool) {
	rec, ok := l.records[key{gridID: gridID, isAsk: isAsk}]
	if !ok {
		return nil, false
	}
	gap := rec.gap.ToBig()
	if rec.neg {
		gap.Neg(gap)
	}
	return LinearParams{BasePrice: rec.base.Clone(), Gap: gap}, true
}

// at returns base + gap*n for n >= -1.
func (r linearRecord) at(n int64) (*uint256.Int, error) {
	if n == 0 {
		return r.base.Clone(), nil
	}
	// n == -1 flips the direction of the step.
	down := r.neg
	if n < 0 {
		down = !down
		n = -n
	}
	step, overflow := new(uint256.Int).MulOverflow(r.gap, uint256.NewInt(uint64(n)))
	if overflow {
		return nil, ErrPriceOverflow
	}
	if down {
		if !step.Lt(r.base) {
			return nil, ErrNonPositivePrice
		}
		return new(uint256.Int).Sub(r.base, step), nil
	}
	p, overflow := new(uint256.Int).AddOverflow(r.base, step)
	if overflow {
		return nil, ErrPriceOverflow
	}
	return p, nil
}

func normalizeLinear(p LinearParams) (linearRecord, error) {
	if p.BasePrice == nil || p.BasePrice.IsZero() {
		return linearRecord{}, fmt.Errorf("linear: %w", ErrInvalidBasePrice)
	}
	if p.Gap == nil || p.Gap.Sign() == 0 {
		return linearRecord{}, fmt.Errorf("linear: zero gap: %w", ErrInvalidGap)
	}
	mag, overflow := uint256.FromBig(new(big.Int).Abs(p.Gap))
	if overflow {
		return linearRecord{}, fmt.Errorf("linear: gap out of range: %w", ErrInvalidGap)
	}
	return linearRecord{base: p.BasePrice.Clone(), gap: mag, neg: p.Gap.Sign() < 0}, nil
}
