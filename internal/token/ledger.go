// Package token abstracts the ERC20-style balance and allowance ledger the
// engine moves fee tokens through.
package token

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrInsufficientBalance   = errors.New("token balance too low for transfer")
	ErrInsufficientAllowance = errors.New("token allowance too low for transfer")
	ErrNonZeroApproval       = errors.New("token rejects changing a non-zero allowance to another non-zero value")
)

// Ledger is the balance/allowance surface of an external token system.
// Accounts are explicit: the engine passes itself as owner, the hub passes
// itself as spender. All operations are fallible and authoritative.
type Ledger interface {
	// BalanceOf returns account's balance of token.
	BalanceOf(ctx context.Context, token, account common.Address) (*uint256.Int, error)

	// Transfer moves amount of token from one account to another.
	Transfer(ctx context.Context, token, from, to common.Address, amount *uint256.Int) error

	// TransferFrom moves amount of token from owner to dest, spending
	// spender's allowance granted by owner.
	TransferFrom(ctx context.Context, token, spender, owner, to common.Address, amount *uint256.Int) error

	// Approve sets spender's allowance over owner's balance of token.
	Approve(ctx context.Context, token, owner, spender common.Address, amount *uint256.Int) error

	// Allowance returns spender's remaining allowance over owner's token.
	Allowance(ctx context.Context, token, owner, spender common.Address) (*uint256.Int, error)
}
