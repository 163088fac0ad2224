package engine

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/meridianfi/feemanager/internal/types"
)

// ensureHubAllowance makes sure the hub can pull at least needed of tkn from
// the engine's balance. A fresh token gets a single unlimited approval; an
// existing-but-insufficient allowance is reset to zero first, because some
// token implementations reject changing a non-zero allowance to another
// non-zero value. Approvals that succeed persist even if the enclosing
// operation later fails; they are idempotent and harmless.
func (e *Engine) ensureHubAllowance(ctx context.Context, tkn common.Address, needed *uint256.Int) error {
	spender := e.hub.Address()

	current, err := e.ledger.Allowance(ctx, tkn, e.self, spender)
	if err != nil {
		return fmt.Errorf("reading hub allowance for %s: %w", tkn.Hex(), err)
	}

	if current.IsZero() {
		if err := e.ledger.Approve(ctx, tkn, e.self, spender, types.MaxAmount()); err != nil {
			return fmt.Errorf("granting hub allowance for %s: %w", tkn.Hex(), err)
		}
		return nil
	}

	if current.Lt(needed) {
		if err := e.ledger.Approve(ctx, tkn, e.self, spender, types.ZeroAmount()); err != nil {
			return fmt.Errorf("resetting hub allowance for %s: %w", tkn.Hex(), err)
		}
		if err := e.ledger.Approve(ctx, tkn, e.self, spender, types.MaxAmount()); err != nil {
			return fmt.Errorf("granting hub allowance for %s: %w", tkn.Hex(), err)
		}
	}

	return nil
}
