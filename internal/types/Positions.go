/*

This file contains the types describing hub-side recurring-swap positions and
the instructions the engine issues against them.

*/

package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PositionID identifies a recurring-swap position on the execution hub.
// Zero is never a valid id; the hub assigns ids starting at one.
type PositionID uint64

// Position is the hub's authoritative view of one recurring-conversion order.
// The engine never caches these fields beyond the current call.
type Position struct {
	ID          PositionID     `json:"id"`
	SourceToken common.Address `json:"source_token"`
	DestToken   common.Address `json:"dest_token"`
	Owner       common.Address `json:"owner"`
	Remaining   *uint256.Int   `json:"remaining"`  // unswapped source-token balance
	Swapped     *uint256.Int   `json:"swapped"`    // accrued destination-token proceeds
	SwapsLeft   uint32         `json:"swaps_left"` // scheduled swaps not yet executed
}

// FeeJob instructs the engine to allocate Amount of SourceToken across a
// distribution over NumberOfSwaps scheduled swaps.
type FeeJob struct {
	SourceToken   common.Address `json:"source_token"`
	Amount        *uint256.Int   `json:"amount"`
	NumberOfSwaps uint32         `json:"number_of_swaps"`
}

// DistributionEntry assigns ShareWeight parts (out of distribution.TotalShares)
// of a fill to DestToken. List order matters: the last entry absorbs rounding.
type DistributionEntry struct {
	DestToken   common.Address `json:"dest_token"`
	ShareWeight uint16         `json:"share_weight"`
}

// TokenAmount pairs a token with an amount, used by the withdrawal paths.
type TokenAmount struct {
	Token  common.Address `json:"token"`
	Amount *uint256.Int   `json:"amount"`
}

// PositionSet groups position ids whose swapped proceeds are denominated in
// the same destination token, the shape the hub's bulk withdraw expects.
type PositionSet struct {
	Token       common.Address `json:"token"`
	PositionIDs []PositionID   `json:"position_ids"`
}

// AllowanceRevocation lists the tokens whose allowance toward Spender should
// be reset to zero.
type AllowanceRevocation struct {
	Spender common.Address   `json:"spender"`
	Tokens  []common.Address `json:"tokens"`
}

// Pair is an unordered token pair as the routing companion sees it.
type Pair struct {
	TokenA common.Address `json:"token_a"`
	TokenB common.Address `json:"token_b"`
}

// PairIndex references two entries of a flattened unique-token list, the
// encoding the hub's batched next-swap query expects.
type PairIndex struct {
	IndexTokenA uint8 `json:"index_token_a"`
	IndexTokenB uint8 `json:"index_token_b"`
}

// PairSwapInfo reports the aggregate amounts the hub would move on the next
// swap of a pair, one entry per requested pair.
type PairSwapInfo struct {
	TokenA           common.Address `json:"token_a"`
	TokenB           common.Address `json:"token_b"`
	AmountToSwapAToB *uint256.Int   `json:"amount_to_swap_a_to_b"`
	AmountToSwapBToA *uint256.Int   `json:"amount_to_swap_b_to_a"`
}

// NextSwapInfo is the hub's answer to the batched next-swap query.
type NextSwapInfo struct {
	Pairs []PairSwapInfo `json:"pairs"`
}

// PositionBalance is the per-position slice of an available-balances query.
type PositionBalance struct {
	PositionID  PositionID     `json:"position_id"`
	SourceToken common.Address `json:"source_token"`
	DestToken   common.Address `json:"dest_token"`
	Swapped     *uint256.Int   `json:"swapped"`
	Remaining   *uint256.Int   `json:"remaining"`
}

// AvailableBalance aggregates everything the engine could settle for a token:
// the hub's platform-fee ledger, the engine's own holdings, and the still-open
// positions paying into the token.
type AvailableBalance struct {
	Token           common.Address    `json:"token"`
	PlatformBalance *uint256.Int      `json:"platform_balance"`
	ContractBalance *uint256.Int      `json:"contract_balance"`
	Positions       []PositionBalance `json:"positions"`
}
