// Package routing exposes the read-only swap-planning queries keeper bots use
// to decide when and what to execute on the hub. It owns no state; every
// answer is derived from the hub at call time.
package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/meridianfi/feemanager/internal/hub"
	"github.com/meridianfi/feemanager/internal/logger"
	"github.com/meridianfi/feemanager/internal/metrics"
	"github.com/meridianfi/feemanager/internal/types"
)

// ErrTooManyTokens is returned when a pair list flattens to more unique
// tokens than the hub's index encoding can address.
var ErrTooManyTokens = errors.New("pair list flattens to more than 256 unique tokens")

// Companion answers batched next-swap queries over token pairs.
type Companion struct {
	logger zerolog.Logger
	hub    hub.Hub
}

// NewCompanion creates a routing companion backed by the given hub.
func NewCompanion(h hub.Hub) (*Companion, error) {
	if h == nil {
		return nil, fmt.Errorf("hub cannot be nil")
	}
	return &Companion{
		logger: logger.GetForComponent("routing"),
		hub:    h,
	}, nil
}

// NextSwapInfo reports the aggregate amounts the hub would move on the next
// swap of each pair. The pair list is flattened into a unique token list in
// first-seen order plus per-pair index references, the shape the hub's
// batched query expects.
func (c *Companion) NextSwapInfo(ctx context.Context, pairs []types.Pair) (types.NextSwapInfo, error) {
	tokens, indexes, err := flattenPairs(pairs)
	if err != nil {
		return types.NextSwapInfo{}, err
	}

	info, err := c.hub.NextSwapInfo(ctx, tokens, indexes)
	if err != nil {
		metrics.HubCallFailures.Inc()
		return types.NextSwapInfo{}, fmt.Errorf("querying next swap info: %w", err)
	}

	c.logger.Debug().
		Int("pairs", len(pairs)).
		Int("uniqueTokens", len(tokens)).
		Msg("Resolved next swap info")

	return info, nil
}

// SecondsUntilNextSwap returns, for each pair in input order, how many whole
// seconds remain until its next swap can execute. Zero means executable now.
func (c *Companion) SecondsUntilNextSwap(ctx context.Context, pairs []types.Pair) ([]uint64, error) {
	now := time.Now()
	out := make([]uint64, len(pairs))

	for i, pair := range pairs {
		at, err := c.hub.NextSwapAvailable(ctx, pair.TokenA, pair.TokenB)
		if err != nil {
			metrics.HubCallFailures.Inc()
			return nil, fmt.Errorf("querying next swap time for %s / %s: %w", pair.TokenA.Hex(), pair.TokenB.Hex(), err)
		}
		if !at.After(now) {
			continue
		}
		out[i] = uint64((at.Sub(now) + time.Second - 1) / time.Second)
	}

	return out, nil
}

// flattenPairs deduplicates the tokens of a pair list, keeping first-seen
// order, and re-expresses each pair as indexes into that list.
func flattenPairs(pairs []types.Pair) ([]common.Address, []types.PairIndex, error) {
	tokens := make([]common.Address, 0, len(pairs)*2)
	seen := make(map[common.Address]int, len(pairs)*2)

	indexOf := func(token common.Address) (int, error) {
		if i, ok := seen[token]; ok {
			return i, nil
		}
		if len(tokens) >= 256 {
			return 0, ErrTooManyTokens
		}
		seen[token] = len(tokens)
		tokens = append(tokens, token)
		return seen[token], nil
	}

	indexes := make([]types.PairIndex, 0, len(pairs))
	for _, pair := range pairs {
		a, err := indexOf(pair.TokenA)
		if err != nil {
			return nil, nil, err
		}
		b, err := indexOf(pair.TokenB)
		if err != nil {
			return nil, nil, err
		}
		indexes = append(indexes, types.PairIndex{IndexTokenA: uint8(a), IndexTokenB: uint8(b)})
	}

	return tokens, indexes, nil
}
