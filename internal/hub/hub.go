package hub

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/meridianfi/feemanager/internal/types"
)

var (
	ErrPositionNotFound = errors.New("hub has no position with this id")
	ErrInvalidArgument  = errors.New("hub rejected the request arguments")
)

// Hub defines the interface for the external swap-execution hub the engine
// allocates fee balances into. Every call is fallible and authoritative; the
// engine treats the hub as the single source of truth for position balances
// and never caches them across calls.
type Hub interface {
	// Address returns the hub's spending account. The engine grants this
	// account token allowances before opening or increasing positions.
	Address() common.Address

	// OpenPosition opens a recurring-swap position converting amount of source
	// into dest over numberOfSwaps scheduled swaps, owned by owner. Returns
	// the new position id. The hub pulls the deposit from owner's balance.
	OpenPosition(ctx context.Context, source, dest common.Address, amount *uint256.Int, numberOfSwaps uint32, owner common.Address) (types.PositionID, error)

	// IncreasePosition adds amount to the position's unswapped balance, spread
	// over numberOfSwaps additional swaps.
	IncreasePosition(ctx context.Context, id types.PositionID, amount *uint256.Int, numberOfSwaps uint32) error

	// TerminatePosition closes the position, paying the unswapped leg to
	// unswappedRecipient and the swapped leg to swappedRecipient. Returns both
	// amounts.
	TerminatePosition(ctx context.Context, id types.PositionID, unswappedRecipient, swappedRecipient common.Address) (unswapped, swapped *uint256.Int, err error)

	// WithdrawSwapped pays out the already-swapped proceeds of still-open
	// positions, grouped by destination token. Positions stay open.
	WithdrawSwapped(ctx context.Context, sets []types.PositionSet, recipient common.Address) error

	// Position returns the hub's current view of a position.
	Position(ctx context.Context, id types.PositionID) (types.Position, error)

	// PlatformFeeBalance returns the hub's accrued platform fees for token.
	PlatformFeeBalance(ctx context.Context, token common.Address) (*uint256.Int, error)

	// WithdrawPlatformFee pays out accrued platform fees.
	WithdrawPlatformFee(ctx context.Context, amounts []types.TokenAmount, recipient common.Address) error

	// NextSwapInfo answers the batched next-swap query: pairs reference
	// entries of the unique token list by index.
	NextSwapInfo(ctx context.Context, tokens []common.Address, pairs []types.PairIndex) (types.NextSwapInfo, error)

	// NextSwapAvailable returns the earliest instant the pair's next swap may
	// execute. The zero time means a swap is executable immediately.
	NextSwapAvailable(ctx context.Context, tokenA, tokenB common.Address) (time.Time, error)
}
