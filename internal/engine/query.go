package engine

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/meridianfi/feemanager/internal/index"
	"github.com/meridianfi/feemanager/internal/metrics"
	"github.com/meridianfi/feemanager/internal/types"
)

// PositionFor returns the open position id for a source -> destination pair.
func (e *Engine) PositionFor(source, dest common.Address) (types.PositionID, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index.Lookup(source, dest)
}

// PositionsInto returns the ids of every open position paying into dest, in
// registration order.
func (e *Engine) PositionsInto(dest common.Address) []types.PositionID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index.PositionsInto(dest)
}

// OpenPositions enumerates every tracked pair mapping.
func (e *Engine) OpenPositions() []index.Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index.Entries()
}

// AvailableBalances reports, per requested token, everything the engine could
// settle right now: the hub's platform-fee accrual, the engine account's own
// holdings, and the live state of every open position paying into the token.
func (e *Engine) AvailableBalances(ctx context.Context, tokens []common.Address) ([]types.AvailableBalance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]types.AvailableBalance, 0, len(tokens))
	for _, tkn := range tokens {
		platform, err := e.hub.PlatformFeeBalance(ctx, tkn)
		if err != nil {
			metrics.HubCallFailures.Inc()
			return nil, fmt.Errorf("reading platform balance for %s: %w", tkn.Hex(), err)
		}

		contract, err := e.ledger.BalanceOf(ctx, tkn, e.self)
		if err != nil {
			return nil, fmt.Errorf("reading contract balance for %s: %w", tkn.Hex(), err)
		}

		ids := e.index.PositionsInto(tkn)
		positions := make([]types.PositionBalance, 0, len(ids))
		for _, id := range ids {
			pos, err := e.hub.Position(ctx, id)
			if err != nil {
				metrics.HubCallFailures.Inc()
				return nil, fmt.Errorf("fetching position %d: %w", id, err)
			}
			positions = append(positions, types.PositionBalance{
				PositionID:  id,
				SourceToken: pos.SourceToken,
				DestToken:   pos.DestToken,
				Swapped:     pos.Swapped,
				Remaining:   pos.Remaining,
			})
		}

		out = append(out, types.AvailableBalance{
			Token:           tkn,
			PlatformBalance: platform,
			ContractBalance: contract,
			Positions:       positions,
		})
	}

	return out, nil
}
