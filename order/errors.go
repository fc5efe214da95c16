package order

import (
	"errors"
	"fmt"
)

var (
	ErrZeroGridOrderCount       = errors.New("grid has no orders on either side")
	ErrExceedMaxAmount          = errors.New("amount exceeds max amount")
	ErrInvalidGridFee           = errors.New("invalid grid fee")
	ErrInvalidGridID            = errors.New("invalid grid id")
	ErrNotGridOwner             = errors.New("not grid owner")
	ErrOrderCanceled            = errors.New("order canceled")
	ErrFillReversedOneShotOrder = errors.New("cannot fill oneshot order in reverse direction")
	ErrCannotModifyOneshotFee   = errors.New("cannot modify oneshot grid fee")
	ErrReentrantCall            = errors.New("operation not allowed inside fill callback")
	ErrCallDepthExceeded        = errors.New("call depth exceeded")
	ErrNoProfit                 = errors.New("no profit to withdraw")
	ErrOrderIDExhausted         = errors.New("order id space exhausted")
	ErrIllegalTransition        = errors.New("illegal state transition")
)

// ErrGridCanceled 是 ErrOrderCanceled 的细化，errors.Is 两者皆成立
var ErrGridCanceled = fmt.Errorf("%w: grid canceled", ErrOrderCanceled)
