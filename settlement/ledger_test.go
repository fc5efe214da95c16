package settlement

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	usdc  = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func TestLedgerCollectAndPay(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Credit(usdc, alice, uint256.NewInt(100)))

	require.NoError(t, l.Collect(usdc, alice, uint256.NewInt(60)))
	assert.Equal(t, "40", l.BalanceOf(usdc, alice).Dec())
	assert.Equal(t, "60", l.Vault(usdc).Dec())

	require.NoError(t, l.Pay(usdc, bob, uint256.NewInt(25)))
	assert.Equal(t, "25", l.BalanceOf(usdc, bob).Dec())
	assert.Equal(t, "35", l.Vault(usdc).Dec())
	assert.Equal(t, []common.Address{alice, bob}, l.Accounts(usdc))
}

func TestLedgerInsufficient(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Credit(usdc, alice, uint256.NewInt(10)))

	assert.ErrorIs(t, l.Collect(usdc, alice, uint256.NewInt(11)), ErrInsufficientBalance)
	assert.ErrorIs(t, l.Collect(usdc, bob, uint256.NewInt(1)), ErrInsufficientBalance)
	assert.ErrorIs(t, l.Pay(usdc, bob, uint256.NewInt(1)), ErrInsufficientBalance)
	assert.NoError(t, l.Pay(usdc, bob, uint256.NewInt(0)))
	assert.ErrorIs(t, l.Credit(common.Address{}, alice, uint256.NewInt(1)), ErrZeroAddress)
}
