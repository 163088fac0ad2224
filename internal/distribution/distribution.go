// Package distribution splits fee amounts across a weighted list of
// destination tokens without rounding leakage.
package distribution

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/meridianfi/feemanager/internal/types"
)

// TotalShares is the fixed denominator share weights are expressed against.
const TotalShares = 10_000

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidShares     = errors.New("distribution shares exceed the denominator")
	ErrEmptyDistribution = errors.New("distribution must contain at least one entry")
	ErrNilAmount         = errors.New("amount to split cannot be nil")
	ErrAmountOverflow    = errors.New("share computation overflows 256 bits")
)

// Validate checks a distribution list. Weights summing below TotalShares are
// legal (under-allocation is allowed); summing above it is a configuration
// error, never silently normalized.
func Validate(entries []types.DistributionEntry) error {
	if len(entries) == 0 {
		return ErrEmptyDistribution
	}

	var total uint64
	for _, entry := range entries {
		total += uint64(entry.ShareWeight)
	}
	if total > TotalShares {
		return fmt.Errorf("%w: weights sum to %d of %d", ErrInvalidShares, total, TotalShares)
	}
	return nil
}

// Split allocates total across entries proportionally to their share weights.
// Every entry except the last receives total*weight/TotalShares with integer
// truncation; the last entry receives whatever is left, so the returned
// amounts always sum to exactly total. Callers must preserve list order since
// only the final slot absorbs the rounding remainder.
func Split(total *uint256.Int, entries []types.DistributionEntry) ([]*uint256.Int, error) {
	if total == nil {
		return nil, ErrNilAmount
	}
	if err := Validate(entries); err != nil {
		return nil, err
	}

	amounts := make([]*uint256.Int, len(entries))

	// A single entry receives everything, no division involved.
	if len(entries) == 1 {
		amounts[0] = new(uint256.Int).Set(total)
		return amounts, nil
	}

	denominator := uint256.NewInt(TotalShares)
	allocated := new(uint256.Int)
	for i, entry := range entries[:len(entries)-1] {
		portion := new(uint256.Int)
		if _, overflow := portion.MulOverflow(total, uint256.NewInt(uint64(entry.ShareWeight))); overflow {
			return nil, fmt.Errorf("%w: total %s weight %d", ErrAmountOverflow, total.Dec(), entry.ShareWeight)
		}
		portion.Div(portion, denominator)
		amounts[i] = portion
		allocated.Add(allocated, portion)
	}

	// Truncation guarantees allocated <= total, so the subtraction is safe.
	amounts[len(entries)-1] = new(uint256.Int).Sub(total, allocated)
	return amounts, nil
}
