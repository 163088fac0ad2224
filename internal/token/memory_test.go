package token

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	usdc  = common.HexToAddress("0x00000000000000000000000000000000000000F1")
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	carol = common.HexToAddress("0x00000000000000000000000000000000000000c1")
)

func TestTransferMovesBalance(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.Mint(usdc, alice, uint256.NewInt(100))

	require.NoError(t, l.Transfer(ctx, usdc, alice, bob, uint256.NewInt(40)))

	aliceBal, err := l.BalanceOf(ctx, usdc, alice)
	require.NoError(t, err)
	bobBal, err := l.BalanceOf(ctx, usdc, bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(60), aliceBal.Uint64())
	assert.Equal(t, uint64(40), bobBal.Uint64())
}

func TestTransferInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.Mint(usdc, alice, uint256.NewInt(10))

	err := l.Transfer(ctx, usdc, alice, bob, uint256.NewInt(11))
	require.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.Mint(usdc, alice, uint256.NewInt(100))

	err := l.TransferFrom(ctx, usdc, bob, alice, carol, uint256.NewInt(30))
	require.ErrorIs(t, err, ErrInsufficientAllowance)

	require.NoError(t, l.Approve(ctx, usdc, alice, bob, uint256.NewInt(50)))
	require.NoError(t, l.TransferFrom(ctx, usdc, bob, alice, carol, uint256.NewInt(30)))

	allowance, err := l.Allowance(ctx, usdc, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), allowance.Uint64())

	err = l.TransferFrom(ctx, usdc, bob, alice, carol, uint256.NewInt(21))
	require.ErrorIs(t, err, ErrInsufficientAllowance)
}

func TestUnlimitedAllowanceIsNotDrawnDown(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.Mint(usdc, alice, uint256.NewInt(100))

	max := new(uint256.Int).SetAllOne()
	require.NoError(t, l.Approve(ctx, usdc, alice, bob, max))
	require.NoError(t, l.TransferFrom(ctx, usdc, bob, alice, carol, uint256.NewInt(70)))

	allowance, err := l.Allowance(ctx, usdc, alice, bob)
	require.NoError(t, err)
	assert.True(t, allowance.Eq(max))
}

func TestStrictApproveRejectsNonZeroToNonZero(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	l.SetStrictApprove(usdc, true)

	require.NoError(t, l.Approve(ctx, usdc, alice, bob, uint256.NewInt(5)))

	err := l.Approve(ctx, usdc, alice, bob, uint256.NewInt(10))
	require.ErrorIs(t, err, ErrNonZeroApproval)

	// Resetting to zero first is the supported path.
	require.NoError(t, l.Approve(ctx, usdc, alice, bob, new(uint256.Int)))
	require.NoError(t, l.Approve(ctx, usdc, alice, bob, uint256.NewInt(10)))

	history := l.ApprovalHistory(usdc, alice, bob)
	require.Len(t, history, 3)
	assert.Equal(t, uint64(5), history[0].Uint64())
	assert.True(t, history[1].IsZero())
	assert.Equal(t, uint64(10), history[2].Uint64())
}
