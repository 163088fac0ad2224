// Package engine implements the fee-to-position allocation and settlement
// core: it splits incoming fee balances across weighted destination tokens,
// opens or tops up recurring-swap positions on the external hub, and later
// settles or terminates them. Every public operation is atomic-per-call and
// gated on the admin role.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/meridianfi/feemanager/internal/auth"
	"github.com/meridianfi/feemanager/internal/hub"
	"github.com/meridianfi/feemanager/internal/index"
	"github.com/meridianfi/feemanager/internal/logger"
	"github.com/meridianfi/feemanager/internal/token"
	"github.com/meridianfi/feemanager/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInsufficientBalance = errors.New("contract does not hold the requested amount")
	ErrUnknownPosition     = errors.New("position is not tracked by the engine")
	ErrNilAmount           = errors.New("amount cannot be nil")
)

// Recorder persists operation receipts. Recording is best-effort: failures
// are logged and never abort the operation that produced the receipt.
type Recorder interface {
	Record(ctx context.Context, receipt types.OperationReceipt) error
}

// Config holds the collaborators for creating a new Engine instance.
type Config struct {
	Hub    hub.Hub
	Ledger token.Ledger
	Roles  *auth.Registry

	// Self is the account the engine acts as: owner of every position it
	// opens and holder of the collected fee balances.
	Self common.Address

	// Recorder is optional; nil disables receipt persistence.
	Recorder Recorder
}

// Engine is the fee-collection accounting core. Public operations serialize
// on an internal mutex: each call sees and leaves a consistent Position Index.
type Engine struct {
	mu       sync.Mutex
	logger   zerolog.Logger
	hub      hub.Hub
	ledger   token.Ledger
	self     common.Address
	roles    *auth.Registry
	index    *index.Index
	recorder Recorder
}

// New creates an Engine with dependency injection.
func New(cfg Config) (*Engine, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("engine configuration validation failed: %w", err)
	}

	e := &Engine{
		logger:   logger.GetForComponent("fee_engine"),
		hub:      cfg.Hub,
		ledger:   cfg.Ledger,
		self:     cfg.Self,
		roles:    cfg.Roles,
		index:    index.New(),
		recorder: cfg.Recorder,
	}

	e.logger.Info().
		Str("self", e.self.Hex()).
		Str("hub", e.hub.Address().Hex()).
		Msg("Fee engine created")

	return e, nil
}

func validateConfig(cfg Config) error {
	if cfg.Hub == nil {
		return fmt.Errorf("hub cannot be nil")
	}
	if cfg.Ledger == nil {
		return fmt.Errorf("token ledger cannot be nil")
	}
	if cfg.Roles == nil {
		return fmt.Errorf("role registry cannot be nil")
	}
	if cfg.Self == (common.Address{}) {
		return fmt.Errorf("%w: engine account", auth.ErrZeroAddress)
	}
	return nil
}

// Self returns the account the engine acts as.
func (e *Engine) Self() common.Address {
	return e.self
}

// Roles returns the role registry backing the access gate.
func (e *Engine) Roles() *auth.Registry {
	return e.roles
}

// AddAdmin grants the admin role. Super-admin only.
func (e *Engine) AddAdmin(ctx context.Context, caller, admin common.Address) error {
	if err := e.roles.AddAdmin(caller, admin); err != nil {
		return err
	}
	e.logger.Info().Str("caller", caller.Hex()).Str("admin", admin.Hex()).Msg("Admin role granted")
	e.record(ctx, types.OperationReceipt{
		OperationID: uuid.New().String(),
		Kind:        types.OpAdminChange,
		Caller:      caller,
		Recipient:   admin,
		Amount:      "grant",
	})
	return nil
}

// RemoveAdmin revokes the admin role. Super-admin only.
func (e *Engine) RemoveAdmin(ctx context.Context, caller, admin common.Address) error {
	if err := e.roles.RemoveAdmin(caller, admin); err != nil {
		return err
	}
	e.logger.Info().Str("caller", caller.Hex()).Str("admin", admin.Hex()).Msg("Admin role revoked")
	e.record(ctx, types.OperationReceipt{
		OperationID: uuid.New().String(),
		Kind:        types.OpAdminChange,
		Caller:      caller,
		Recipient:   admin,
		Amount:      "revoke",
	})
	return nil
}

// record persists receipts best-effort, stamping missing timestamps.
func (e *Engine) record(ctx context.Context, receipts ...types.OperationReceipt) {
	if e.recorder == nil {
		return
	}
	for _, receipt := range receipts {
		if err := e.recorder.Record(ctx, receipt); err != nil {
			e.logger.Error().Err(err).
				Str("kind", string(receipt.Kind)).
				Msg("Failed to record operation receipt")
		}
	}
}

// requireRecipient rejects the zero address as a payout target.
func requireRecipient(recipient common.Address) error {
	if recipient == (common.Address{}) {
		return fmt.Errorf("%w: recipient", auth.ErrZeroAddress)
	}
	return nil
}
