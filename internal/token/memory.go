package token

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type approvalKey struct {
	token   common.Address
	owner   common.Address
	spender common.Address
}

type balanceKey struct {
	token   common.Address
	account common.Address
}

// MemoryLedger is an in-memory Ledger used by the simulation mode and tests.
// Tokens can individually be marked strict-approve, modelling the token class
// that rejects non-zero -> non-zero allowance changes.
type MemoryLedger struct {
	mu            sync.Mutex
	balances      map[balanceKey]*uint256.Int
	allowances    map[approvalKey]*uint256.Int
	strictApprove map[common.Address]bool
	approvalLog   map[approvalKey][]*uint256.Int
}

// NewMemoryLedger returns an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances:      make(map[balanceKey]*uint256.Int),
		allowances:    make(map[approvalKey]*uint256.Int),
		strictApprove: make(map[common.Address]bool),
		approvalLog:   make(map[approvalKey][]*uint256.Int),
	}
}

// Mint credits account with amount of token out of thin air.
func (l *MemoryLedger) Mint(token, account common.Address, amount *uint256.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(token, account, amount)
}

// SetStrictApprove toggles USDT-like approval semantics for token.
func (l *MemoryLedger) SetStrictApprove(token common.Address, strict bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.strictApprove[token] = strict
}

// ApprovalHistory returns every amount Approve was called with for the given
// (token, owner, spender) triple, in call order. Tests assert the engine's
// allowance top-up policy through it.
func (l *MemoryLedger) ApprovalHistory(token, owner, spender common.Address) []*uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.approvalLog[approvalKey{token, owner, spender}]
	out := make([]*uint256.Int, len(history))
	for i, amount := range history {
		out[i] = new(uint256.Int).Set(amount)
	}
	return out
}

func (l *MemoryLedger) BalanceOf(_ context.Context, token, account common.Address) (*uint256.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(uint256.Int).Set(l.balance(token, account)), nil
}

func (l *MemoryLedger) Transfer(_ context.Context, token, from, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(token, from, to, amount)
}

func (l *MemoryLedger) TransferFrom(_ context.Context, token, spender, owner, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := approvalKey{token, owner, spender}
	allowance, ok := l.allowances[key]
	if !ok || allowance.Lt(amount) {
		return fmt.Errorf("%w: %s spending %s of %s for %s",
			ErrInsufficientAllowance, spender.Hex(), amount.Dec(), token.Hex(), owner.Hex())
	}

	if err := l.move(token, owner, to, amount); err != nil {
		return err
	}

	// An unlimited allowance is not drawn down, matching the common ERC20
	// optimization the engine's single-max-approval policy relies on.
	if !allowance.Eq(new(uint256.Int).SetAllOne()) {
		l.allowances[key] = allowance.Sub(allowance, amount)
	}
	return nil
}

func (l *MemoryLedger) Approve(_ context.Context, token, owner, spender common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := approvalKey{token, owner, spender}
	if l.strictApprove[token] {
		current, ok := l.allowances[key]
		if ok && !current.IsZero() && !amount.IsZero() {
			return fmt.Errorf("%w: token %s", ErrNonZeroApproval, token.Hex())
		}
	}

	l.allowances[key] = new(uint256.Int).Set(amount)
	l.approvalLog[key] = append(l.approvalLog[key], new(uint256.Int).Set(amount))
	return nil
}

func (l *MemoryLedger) Allowance(_ context.Context, token, owner, spender common.Address) (*uint256.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	allowance, ok := l.allowances[approvalKey{token, owner, spender}]
	if !ok {
		return new(uint256.Int), nil
	}
	return new(uint256.Int).Set(allowance), nil
}

// balance returns the stored balance, never nil. Callers hold the lock.
func (l *MemoryLedger) balance(token, account common.Address) *uint256.Int {
	if bal, ok := l.balances[balanceKey{token, account}]; ok {
		return bal
	}
	return new(uint256.Int)
}

func (l *MemoryLedger) credit(token, account common.Address, amount *uint256.Int) {
	key := balanceKey{token, account}
	if bal, ok := l.balances[key]; ok {
		bal.Add(bal, amount)
		return
	}
	l.balances[key] = new(uint256.Int).Set(amount)
}

func (l *MemoryLedger) move(token, from, to common.Address, amount *uint256.Int) error {
	fromBal := l.balance(token, from)
	if fromBal.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s of %s, needs %s",
			ErrInsufficientBalance, from.Hex(), fromBal.Dec(), token.Hex(), amount.Dec())
	}

	l.balances[balanceKey{token, from}] = new(uint256.Int).Sub(fromBal, amount)
	l.credit(token, to, amount)
	return nil
}
