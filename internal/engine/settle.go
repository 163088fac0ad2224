package engine

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/meridianfi/feemanager/internal/metrics"
	"github.com/meridianfi/feemanager/internal/types"
)

// WithdrawFromPlatformBalance forwards a platform-fee withdrawal to the hub.
// The hub validates the amounts against its accrued fee balances.
func (e *Engine) WithdrawFromPlatformBalance(ctx context.Context, caller common.Address, amounts []types.TokenAmount, recipient common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.roles.RequireAdmin(caller); err != nil {
		return err
	}
	if err := requireRecipient(recipient); err != nil {
		return err
	}

	if err := e.hub.WithdrawPlatformFee(ctx, amounts, recipient); err != nil {
		metrics.HubCallFailures.Inc()
		return fmt.Errorf("withdrawing platform fees: %w", err)
	}

	opID := uuid.New().String()
	receipts := make([]types.OperationReceipt, 0, len(amounts))
	for _, ta := range amounts {
		receipts = append(receipts, types.OperationReceipt{
			OperationID: opID,
			Kind:        types.OpWithdrawPlatform,
			Caller:      caller,
			Token:       ta.Token,
			Amount:      ta.Amount.Dec(),
			Recipient:   recipient,
		})
	}
	e.record(ctx, receipts...)
	metrics.Withdrawals.WithLabelValues("platform").Inc()

	e.logger.Info().
		Str("caller", caller.Hex()).
		Str("recipient", recipient.Hex()).
		Int("tokens", len(amounts)).
		Msg("Withdrew from platform balance")

	return nil
}

// plannedWithdrawal is one validated entry of a balance withdrawal, resolved
// against the balances the engine account will hold when it executes.
type plannedWithdrawal struct {
	token  common.Address
	amount *uint256.Int
	kind   types.OperationKind
}

// WithdrawFromBalance pays out tokens the engine account holds directly, one
// transfer per entry. The all-ones amount is a sentinel meaning "the entire
// remaining balance of that token"; any other amount must be covered by the
// balance at call time. Every entry is validated against a running balance
// view before the first transfer, so an uncoverable entry anywhere in the
// list rejects the whole call with nothing moved.
func (e *Engine) WithdrawFromBalance(ctx context.Context, caller common.Address, amounts []types.TokenAmount, recipient common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.roles.RequireAdmin(caller); err != nil {
		return err
	}
	if err := requireRecipient(recipient); err != nil {
		return err
	}

	// Validation pass. Balances are read once per token and drawn down as
	// entries are planned, so repeated tokens and sentinel sweeps see what
	// earlier entries left behind.
	remaining := make(map[common.Address]*uint256.Int)
	plan := make([]plannedWithdrawal, 0, len(amounts))
	for _, entry := range amounts {
		if entry.Amount == nil {
			return ErrNilAmount
		}

		balance, ok := remaining[entry.Token]
		if !ok {
			read, err := e.ledger.BalanceOf(ctx, entry.Token, e.self)
			if err != nil {
				return fmt.Errorf("reading contract balance for %s: %w", entry.Token.Hex(), err)
			}
			balance = read
			remaining[entry.Token] = balance
		}

		if types.IsMaxAmount(entry.Amount) {
			sweep := new(uint256.Int).Set(balance)
			balance.Clear()
			plan = append(plan, plannedWithdrawal{token: entry.Token, amount: sweep, kind: types.OpWithdrawFull})
			continue
		}

		if balance.Lt(entry.Amount) {
			return fmt.Errorf("%w: have %s, want %s of %s",
				ErrInsufficientBalance, balance.Dec(), entry.Amount.Dec(), entry.Token.Hex())
		}
		balance.Sub(balance, entry.Amount)
		plan = append(plan, plannedWithdrawal{token: entry.Token, amount: new(uint256.Int).Set(entry.Amount), kind: types.OpWithdrawExact})
	}

	opID := uuid.New().String()
	receipts := make([]types.OperationReceipt, 0, len(plan))
	for _, p := range plan {
		if !p.amount.IsZero() {
			if err := e.ledger.Transfer(ctx, p.token, e.self, recipient, p.amount); err != nil {
				return fmt.Errorf("transferring %s: %w", p.token.Hex(), err)
			}
		}

		receipts = append(receipts, types.OperationReceipt{
			OperationID: opID,
			Kind:        p.kind,
			Caller:      caller,
			Token:       p.token,
			Amount:      p.amount.Dec(),
			Recipient:   recipient,
		})

		if p.kind == types.OpWithdrawFull {
			metrics.Withdrawals.WithLabelValues("full_balance").Inc()
			e.logger.Info().
				Str("caller", caller.Hex()).
				Str("token", p.token.Hex()).
				Str("amount", p.amount.Dec()).
				Str("recipient", recipient.Hex()).
				Msg("Withdrew full token balance")
		} else {
			metrics.Withdrawals.WithLabelValues("exact").Inc()
			e.logger.Info().
				Str("caller", caller.Hex()).
				Str("token", p.token.Hex()).
				Str("amount", p.amount.Dec()).
				Str("recipient", recipient.Hex()).
				Msg("Withdrew exact token amount")
		}
	}

	e.record(ctx, receipts...)
	return nil
}

// WithdrawFromPositions collects accumulated swap proceeds from open positions
// and pays them to recipient. Positions stay open with their unswapped
// remainder intact.
func (e *Engine) WithdrawFromPositions(ctx context.Context, caller common.Address, sets []types.PositionSet, recipient common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.roles.RequireAdmin(caller); err != nil {
		return err
	}
	if err := requireRecipient(recipient); err != nil {
		return err
	}

	if err := e.hub.WithdrawSwapped(ctx, sets, recipient); err != nil {
		metrics.HubCallFailures.Inc()
		return fmt.Errorf("withdrawing swapped proceeds: %w", err)
	}

	opID := uuid.New().String()
	receipts := make([]types.OperationReceipt, 0, len(sets))
	for _, set := range sets {
		receipts = append(receipts, types.OperationReceipt{
			OperationID: opID,
			Kind:        types.OpWithdrawPositions,
			Caller:      caller,
			Token:       set.Token,
			Recipient:   recipient,
		})
	}
	e.record(ctx, receipts...)
	metrics.Withdrawals.WithLabelValues("positions").Inc()

	e.logger.Info().
		Str("caller", caller.Hex()).
		Str("recipient", recipient.Hex()).
		Int("tokenSets", len(sets)).
		Msg("Withdrew swap proceeds from positions")

	return nil
}

// TerminatePositions closes the given positions on the hub and removes them
// from the Position Index, paying both the unswapped remainder and the
// accumulated proceeds to recipient. Each position commits independently: a
// failure mid-list leaves earlier terminations (and their index removals) in
// place and reports the position that failed.
func (e *Engine) TerminatePositions(ctx context.Context, caller common.Address, ids []types.PositionID, recipient common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.roles.RequireAdmin(caller); err != nil {
		return err
	}
	if err := requireRecipient(recipient); err != nil {
		return err
	}

	opID := uuid.New().String()
	opLogger := e.logger.With().Str("operation_id", opID).Logger()

	for _, id := range ids {
		pos, err := e.hub.Position(ctx, id)
		if err != nil {
			metrics.HubCallFailures.Inc()
			return fmt.Errorf("fetching position %d: %w", id, err)
		}

		tracked, ok := e.index.Lookup(pos.SourceToken, pos.DestToken)
		if !ok || tracked != id {
			return fmt.Errorf("%w: %d", ErrUnknownPosition, id)
		}

		unswapped, swapped, err := e.hub.TerminatePosition(ctx, id, recipient, recipient)
		if err != nil {
			metrics.HubCallFailures.Inc()
			opLogger.Error().Err(err).Uint64("positionId", uint64(id)).Msg("Termination aborted: hub rejected terminate")
			return fmt.Errorf("terminating position %d: %w", id, err)
		}

		if _, err := e.index.Remove(pos.SourceToken, pos.DestToken); err != nil {
			return fmt.Errorf("removing position %d from index: %w", id, err)
		}

		metrics.PositionsTerminated.Inc()
		e.record(ctx,
			types.OperationReceipt{
				OperationID: opID,
				Kind:        types.OpTerminatePosition,
				Caller:      caller,
				Token:       pos.SourceToken,
				Amount:      unswapped.Dec(),
				PositionID:  id,
				Recipient:   recipient,
			},
			types.OperationReceipt{
				OperationID: opID,
				Kind:        types.OpTerminatePosition,
				Caller:      caller,
				Token:       pos.DestToken,
				Amount:      swapped.Dec(),
				PositionID:  id,
				Recipient:   recipient,
			},
		)

		opLogger.Info().
			Uint64("positionId", uint64(id)).
			Str("unswapped", unswapped.Dec()).
			Str("swapped", swapped.Dec()).
			Str("recipient", recipient.Hex()).
			Msg("Terminated position")
	}

	return nil
}

// RevokeAllowances resets the listed spender allowances to zero.
func (e *Engine) RevokeAllowances(ctx context.Context, caller common.Address, revocations []types.AllowanceRevocation) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.roles.RequireAdmin(caller); err != nil {
		return err
	}

	opID := uuid.New().String()
	receipts := make([]types.OperationReceipt, 0)

	for _, rev := range revocations {
		for _, tkn := range rev.Tokens {
			if err := e.ledger.Approve(ctx, tkn, e.self, rev.Spender, types.ZeroAmount()); err != nil {
				return fmt.Errorf("revoking allowance of %s for %s: %w", tkn.Hex(), rev.Spender.Hex(), err)
			}
			metrics.AllowancesRevoked.Inc()
			receipts = append(receipts, types.OperationReceipt{
				OperationID: opID,
				Kind:        types.OpRevokeAllowance,
				Caller:      caller,
				Token:       tkn,
				Amount:      "0",
				Recipient:   rev.Spender,
			})
		}
		e.logger.Info().
			Str("caller", caller.Hex()).
			Str("spender", rev.Spender.Hex()).
			Int("tokens", len(rev.Tokens)).
			Msg("Revoked spender allowances")
	}

	e.record(ctx, receipts...)
	return nil
}
