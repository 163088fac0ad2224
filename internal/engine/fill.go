package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/meridianfi/feemanager/internal/distribution"
	"github.com/meridianfi/feemanager/internal/index"
	"github.com/meridianfi/feemanager/internal/metrics"
	"github.com/meridianfi/feemanager/internal/types"
)

// stagedRegistration is an index entry waiting for the whole fill invocation
// to succeed before it is committed.
type stagedRegistration struct {
	source common.Address
	dest   common.Address
	id     types.PositionID
}

// FillPositions allocates each job's amount across the distribution, opening
// a new hub position for pairs without one and increasing the existing
// position otherwise. Destinations are processed in distribution order; zero
// portions are skipped. Index registrations are staged and committed only
// after every hub sub-call succeeded, so a failing sub-call leaves the
// Position Index exactly as it was before the call began. Allowance grants
// that already succeeded persist.
func (e *Engine) FillPositions(ctx context.Context, caller common.Address, jobs []types.FeeJob, dist []types.DistributionEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.roles.RequireAdmin(caller); err != nil {
		return err
	}
	if err := distribution.Validate(dist); err != nil {
		return err
	}

	start := time.Now()
	opID := uuid.New().String()
	opLogger := e.logger.With().Str("operation_id", opID).Logger()

	staged := make(map[index.Key]stagedRegistration)
	order := make([]index.Key, 0)
	receipts := make([]types.OperationReceipt, 0, len(jobs))

	for _, job := range jobs {
		portions, err := distribution.Split(job.Amount, dist)
		if err != nil {
			return fmt.Errorf("splitting fee job for %s: %w", job.SourceToken.Hex(), err)
		}

		jobHadEffect := false
		for i, entry := range dist {
			portion := portions[i]
			if portion.IsZero() {
				continue
			}

			jobHadEffect = true
			key := index.KeyFor(job.SourceToken, entry.DestToken)
			pid, found := e.lookupStaged(staged, key, job.SourceToken, entry.DestToken)

			if err := e.ensureHubAllowance(ctx, job.SourceToken, portion); err != nil {
				return err
			}

			if !found {
				id, err := e.hub.OpenPosition(ctx, job.SourceToken, entry.DestToken, portion, job.NumberOfSwaps, e.self)
				if err != nil {
					metrics.HubCallFailures.Inc()
					opLogger.Error().Err(err).
						Str("source", job.SourceToken.Hex()).
						Str("dest", entry.DestToken.Hex()).
						Msg("Fill aborted: hub rejected position open")
					return fmt.Errorf("opening position %s -> %s: %w", job.SourceToken.Hex(), entry.DestToken.Hex(), err)
				}

				staged[key] = stagedRegistration{source: job.SourceToken, dest: entry.DestToken, id: id}
				order = append(order, key)
				metrics.PositionsOpened.Inc()
				receipts = append(receipts, types.OperationReceipt{
					OperationID: opID,
					Kind:        types.OpOpenPosition,
					Caller:      caller,
					Token:       job.SourceToken,
					Amount:      portion.Dec(),
					PositionID:  id,
				})
				opLogger.Info().
					Uint64("positionId", uint64(id)).
					Str("source", job.SourceToken.Hex()).
					Str("dest", entry.DestToken.Hex()).
					Str("amount", portion.Dec()).
					Uint32("swaps", job.NumberOfSwaps).
					Msg("Opened new position")
			} else {
				if err := e.hub.IncreasePosition(ctx, pid, portion, job.NumberOfSwaps); err != nil {
					metrics.HubCallFailures.Inc()
					opLogger.Error().Err(err).
						Uint64("positionId", uint64(pid)).
						Msg("Fill aborted: hub rejected position increase")
					return fmt.Errorf("increasing position %d: %w", pid, err)
				}

				metrics.PositionsIncreased.Inc()
				receipts = append(receipts, types.OperationReceipt{
					OperationID: opID,
					Kind:        types.OpIncreasePosition,
					Caller:      caller,
					Token:       job.SourceToken,
					Amount:      portion.Dec(),
					PositionID:  pid,
				})
				opLogger.Info().
					Uint64("positionId", uint64(pid)).
					Str("amount", portion.Dec()).
					Uint32("additionalSwaps", job.NumberOfSwaps).
					Msg("Increased existing position")
			}
		}

		// A job whose portions were all zero touched nothing; the audit
		// trail only records effects.
		if jobHadEffect {
			metrics.FillJobs.Inc()
			receipts = append(receipts, types.OperationReceipt{
				OperationID: opID,
				Kind:        types.OpFill,
				Caller:      caller,
				Token:       job.SourceToken,
				Amount:      job.Amount.Dec(),
			})
		}
	}

	// Every hub call succeeded; commit the staged registrations. Keys were
	// checked against both the index and the overlay, so Register cannot
	// fail here.
	for _, key := range order {
		reg := staged[key]
		if err := e.index.Register(reg.source, reg.dest, reg.id); err != nil {
			return fmt.Errorf("committing position registration: %w", err)
		}
	}

	e.record(ctx, receipts...)
	metrics.FillDuration.Observe(time.Since(start).Seconds())
	opLogger.Info().
		Int("jobs", len(jobs)).
		Int("newPositions", len(order)).
		Msg("Fill completed")

	return nil
}

// lookupStaged resolves a pair against the staged overlay first, then the
// committed index, so one invocation never opens the same pair twice.
func (e *Engine) lookupStaged(staged map[index.Key]stagedRegistration, key index.Key, source, dest common.Address) (types.PositionID, bool) {
	if reg, ok := staged[key]; ok {
		return reg.id, true
	}
	return e.index.Lookup(source, dest)
}
