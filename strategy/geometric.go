package strategy

import (
	"fmt"

	"github.com/holiman/uint256"

	"gridex-go/fixedpoint"
)

// GeometricParams price(idx) = BasePrice * Ratio^idx，Ratio 以 1e18 为 1。
// 卖单 Ratio > 1e18（逐档上涨），买单 Ratio < 1e18（逐档下跌）。
type GeometricParams struct {
	BasePrice *uint256.Int `json:"basePrice"`
	Ratio     *uint256.Int `json:"ratio"`
}

func (GeometricParams) Kind() Type { return TypeGeometric }
func (GeometricParams) isParams()  {}

type geometricRecord struct {
	base  *uint256.Int
	ratio *uint256.Int
}

// Geometric 等比网格。
type Geometric struct {
	records map[key]geometricRecord
}

func NewGeometric() *Geometric {
	return &Geometric{records: make(map[key]geometricRecord)}
}

func (g *Geometric) Type() Type { return TypeGeometric }

func (g *Geometric) ValidateParams(isAsk bool, baseAmt *uint256.Int, params Params, count uint32) error {
	p, ok := params.(GeometricParams)
	if !ok {
		return fmt.Errorf("geometric: %w", ErrParamsMismatch)
	}
	if count == 0 {
		return fmt.Errorf("geometric %s: %w", sideName(isAsk), ErrInvalidCount)
	}
	if p.BasePrice == nil || p.BasePrice.IsZero() {
		return fmt.Errorf("geometric: %w", ErrInvalidBasePrice)
	}
	if p.Ratio == nil || p.Ratio.IsZero() {
		return fmt.Errorf("geometric: zero ratio: %w", ErrInvalidRatio)
	}
	if isAsk && !p.Ratio.Gt(fixedpoint.RatioScale) {
		return fmt.Errorf("geometric ask: ratio must exceed 1: %w", ErrInvalidRatio)
	}
	if !isAsk && !p.Ratio.Lt(fixedpoint.RatioScale) {
		return fmt.Errorf("geometric bid: ratio must be below 1: %w", ErrInvalidRatio)
	}

	// 取整后相邻档位价格必须严格单调，否则两档同价
	rec := geometricRecord{base: p.BasePrice, ratio: p.Ratio}
	extreme := rec.base
	for idx := uint32(1); idx < count; idx++ {
		price, err := rec.at(idx)
		if err != nil {
			return fmt.Errorf("geometric %s rung %d: %w", sideName(isAsk), idx, err)
		}
		if price.IsZero() {
			return fmt.Errorf("geometric %s rung %d: %w", sideName(isAsk), idx, ErrNonPositivePrice)
		}
		if (isAsk && !price.Gt(extreme)) || (!isAsk && !price.Lt(extreme)) {
			return fmt.Errorf("geometric %s rung %d: price %s not strictly %s: %w",
				sideName(isAsk), idx, price.Dec(), direction(isAsk), ErrInvalidRatio)
		}
		extreme = price
	}
	reverse0, err := rec.reverse(0)
	if err != nil {
		return fmt.Errorf("geometric %s reverse price: %w", sideName(isAsk), err)
	}
	return checkEdges(isAsk, baseAmt, extreme, reverse0)
}

func direction(isAsk bool) string {
	if isAsk {
		return "increasing"
	}
	return "decreasing"
}

func (g *Geometric) CreateStrategy(isAsk bool, gridID uint32, params Params) error {
	p, ok := params.(GeometricParams)
	if !ok {
		return fmt.Errorf("geometric: %w", ErrParamsMismatch)
	}
	if p.BasePrice == nil || p.Ratio == nil || p.Ratio.IsZero() {
		return fmt.Errorf("geometric: %w", ErrInvalidRatio)
	}
	k := key{gridID: gridID, isAsk: isAsk}
	if _, exists := g.records[k]; exists {
		return fmt.Errorf("geometric grid %d %s: %w", gridID, sideName(isAsk), ErrAlreadyExists)
	}
	g.records[k] = geometricRecord{base: p.BasePrice.Clone(), ratio: p.Ratio.Clone()}
	return nil
}

func (g *Geometric) RemoveStrategy(isAsk bool, gridID uint32) {
	delete(g.records, key{gridID: gridID, isAsk: isAsk})
}

func (g *Geometric) Price(isAsk bool, gridID uint32, idx uint32) (*uint256.Int, error) {
	rec, ok := g.records[key{gridID: gridID, isAsk: isAsk}]
	if !ok {
		return nil, fmt.Errorf("geometric grid %d %s: %w", gridID, sideName(isAsk), ErrNotFound)
	}
	return rec.at(idx)
}

func (g *Geometric) ReversePrice(isAsk bool, gridID uint32, idx uint32) (*uint256.Int, error) {
	rec, ok := g.records[key{gridID: gridID, isAsk: isAsk}]
	if !ok {
		return nil, fmt.Errorf("geometric grid %d %s: %w", gridID, sideName(isAsk), ErrNotFound)
	}
	return rec.reverse(idx)
}

func (g *Geometric) Params(isAsk bool, gridID uint32) (Params, bool) {
	rec, ok := g.records[key{gridID: gridID, isAsk: isAsk}]
	if !ok {
		return nil, false
	}
	return GeometricParams{BasePrice: rec.base.Clone(), Ratio: rec.ratio.Clone()}, true
}

func (r geometricRecord) at(idx uint32) (*uint256.Int, error) {
	if idx == 0 {
		return r.base.Clone(), nil
	}
	factor, err := fixedpoint.Pow(r.ratio, uint64(idx), fixedpoint.RatioScale)
	if err != nil {
		return nil, ErrPriceOverflow
	}
	p, err := fixedpoint.MulDiv(r.base, factor, fixedpoint.RatioScale)
	if err != nil {
		return nil, ErrPriceOverflow
	}
	return p, nil
}

// reverse(0) = base / ratio, reverse(i) = price(i-1).
func (r geometricRecord) reverse(idx uint32) (*uint256.Int, error) {
	if idx > 0 {
		return r.at(idx - 1)
	}
	p, err := fixedpoint.MulDiv(r.base, fixedpoint.RatioScale, r.ratio)
	if err != nil {
		return nil, ErrPriceOverflow
	}
	if p.IsZero() {
		return nil, ErrNonPositivePrice
	}
	return p, nil
}
