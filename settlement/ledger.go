// Package settlement 资产划转。引擎只计算数量，真正的转账由这里完成。
package settlement

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrZeroAddress         = errors.New("zero address")
)

// Settlement moves token amounts between an account and the pooled vault.
type Settlement interface {
	Collect(token, from common.Address, amount *uint256.Int) error
	Pay(token, to common.Address, amount *uint256.Int) error
}

type balanceKey struct {
	token   common.Address
	account common.Address
}

// Ledger 内存账本：账户余额 + 按币种汇总的资金池。非并发安全，与引擎同一写者
type Ledger struct {
	balances map[balanceKey]*uint256.Int
	vault    map[common.Address]*uint256.Int
}

var _ Settlement = (*Ledger)(nil)

func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[balanceKey]*uint256.Int),
		vault:    make(map[common.Address]*uint256.Int),
	}
}

// Credit mints amount to account, used to fund accounts from outside.
func (l *Ledger) Credit(token, account common.Address, amount *uint256.Int) error {
	if token == (common.Address{}) || account == (common.Address{}) {
		return ErrZeroAddress
	}
	k := balanceKey{token, account}
	l.balances[k] = add(l.balances[k], amount)
	return nil
}

func (l *Ledger) BalanceOf(token, account common.Address) *uint256.Int {
	if b, ok := l.balances[balanceKey{token, account}]; ok {
		return new(uint256.Int).Set(b)
	}
	return new(uint256.Int)
}

// Vault returns the pooled amount held for token.
func (l *Ledger) Vault(token common.Address) *uint256.Int {
	if v, ok := l.vault[token]; ok {
		return new(uint256.Int).Set(v)
	}
	return new(uint256.Int)
}

func (l *Ledger) Collect(token, from common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	k := balanceKey{token, from}
	bal := l.balances[k]
	if bal == nil || bal.Lt(amount) {
		return fmt.Errorf("collect %s from %s: %w", amount.Dec(), from.Hex(), ErrInsufficientBalance)
	}
	l.balances[k] = new(uint256.Int).Sub(bal, amount)
	l.vault[token] = add(l.vault[token], amount)
	return nil
}

func (l *Ledger) Pay(token, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	v := l.vault[token]
	if v == nil || v.Lt(amount) {
		return fmt.Errorf("pay %s of %s: vault %w", amount.Dec(), token.Hex(), ErrInsufficientBalance)
	}
	l.vault[token] = new(uint256.Int).Sub(v, amount)
	k := balanceKey{token, to}
	l.balances[k] = add(l.balances[k], amount)
	return nil
}

// Accounts lists accounts holding token, sorted, for reporting.
func (l *Ledger) Accounts(token common.Address) []common.Address {
	var out []common.Address
	for k, b := range l.balances {
		if k.token == token && !b.IsZero() {
			out = append(out, k.account)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

func add(a, b *uint256.Int) *uint256.Int {
	if a == nil {
		return new(uint256.Int).Set(b)
	}
	return new(uint256.Int).Add(a, b)
}
