// Package strategy 定义网格价格策略：给定 (side, grid, index) 计算挂单价与反向价。
// 每个 (grid, side) 只保存少量不可变参数，价格按需推导，不缓存。
package strategy

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"gridex-go/lens"
)

// Type identifies a strategy implementation.
type Type string

const (
	TypeLinear    Type = "linear"
	TypeGeometric Type = "geometric"
)

var (
	ErrAlreadyExists      = errors.New("strategy already exists")
	ErrNotFound           = errors.New("strategy not found")
	ErrParamsMismatch     = errors.New("params do not match strategy type")
	ErrInvalidCount       = errors.New("invalid order count")
	ErrInvalidBasePrice   = errors.New("invalid base price")
	ErrInvalidGap         = errors.New("invalid gap")
	ErrInvalidRatio       = errors.New("invalid ratio")
	ErrPriceOverflow      = errors.New("price overflow")
	ErrNonPositivePrice   = errors.New("non-positive price")
	ErrUnknownStrategy    = errors.New("unknown strategy")
	ErrStrategyNotAllowed = errors.New("strategy not allowed")
)

// Params is the closed set of per-(grid, side) parameter records.
type Params interface {
	Kind() Type
	isParams()
}

// Strategy 价格策略能力接口，新增策略即新增实现，不改动订单引擎。
type Strategy interface {
	Type() Type
	// ValidateParams checks params before any state is written.
	ValidateParams(isAsk bool, baseAmt *uint256.Int, params Params, count uint32) error
	// CreateStrategy stores the (grid, side) record exactly once.
	CreateStrategy(isAsk bool, gridID uint32, params Params) error
	Price(isAsk bool, gridID uint32, idx uint32) (*uint256.Int, error)
	// ReversePrice is the price at which a filled rung's accumulated
	// opposite inventory executes.
	ReversePrice(isAsk bool, gridID uint32, idx uint32) (*uint256.Int, error)
	Params(isAsk bool, gridID uint32) (Params, bool)
}

// Remover is implemented by strategies that can drop a record again. The
// order engine uses it to undo CreateStrategy when a placement is rolled back.
type Remover interface {
	RemoveStrategy(isAsk bool, gridID uint32)
}

type key struct {
	gridID uint32
	isAsk  bool
}

func sideName(isAsk bool) string {
	if isAsk {
		return "ask"
	}
	return "bid"
}

// checkEdges proves the ladder cannot produce unfillable rungs: the extreme
// rung and the first reverse price must both turn baseAmt into a non-zero
// quote below 2^128. The top ask rung is also checked under round-up since
// that is how takers are quoted.
func checkEdges(isAsk bool, baseAmt, extreme, reverse0 *uint256.Int) error {
	if _, err := lens.ToQuote(baseAmt, extreme, false); err != nil {
		return fmt.Errorf("%s extreme price: %w", sideName(isAsk), err)
	}
	if isAsk {
		if _, err := lens.ToQuote(baseAmt, extreme, true); err != nil {
			return fmt.Errorf("%s extreme price: %w", sideName(isAsk), err)
		}
	}
	if _, err := lens.ToQuote(baseAmt, reverse0, false); err != nil {
		return fmt.Errorf("%s first reverse price: %w", sideName(isAsk), err)
	}
	return nil
}
