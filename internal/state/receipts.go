package state

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/meridianfi/feemanager/internal/types"
)

// Recorder persists operation receipts through the global connection pool.
// It satisfies the engine's Recorder interface.
type Recorder struct{}

// NewRecorder returns a Recorder. InitDB must have been called first.
func NewRecorder() (*Recorder, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	return &Recorder{}, nil
}

// Record inserts one operation receipt.
func (r *Recorder) Record(ctx context.Context, receipt types.OperationReceipt) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	ts := receipt.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	query := `
		INSERT INTO operation_receipts (operation_id, kind, caller, token, amount, position_id, recipient, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, '')::NUMERIC, NULLIF($6, 0), NULLIF($7, ''), $8)
	`

	_, err := DB.ExecContext(ctx, query,
		receipt.OperationID,
		string(receipt.Kind),
		receipt.Caller.Hex(),
		hexOrEmpty(receipt.Token),
		numericAmount(receipt.Amount),
		int64(receipt.PositionID),
		hexOrEmpty(receipt.Recipient),
		ts,
	)
	if err != nil {
		return fmt.Errorf("failed to insert operation receipt: %w", err)
	}
	return nil
}

// GetRecentReceipts retrieves the newest receipts, newest first.
func GetRecentReceipts(limit int) ([]types.OperationReceipt, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	if limit <= 0 || limit > 500 {
		limit = 50 // Default limit
	}

	query := `
		SELECT receipt_id, operation_id, kind, COALESCE(caller, ''), COALESCE(token, ''),
		       COALESCE(amount::TEXT, ''), COALESCE(position_id, 0), COALESCE(recipient, ''), created_at
		FROM operation_receipts
		ORDER BY created_at DESC, receipt_id DESC
		LIMIT $1
	`

	rows, err := DB.Query(query, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query recent receipts")
		return nil, fmt.Errorf("failed to query recent receipts: %w", err)
	}
	defer rows.Close()

	var receipts []types.OperationReceipt
	for rows.Next() {
		var (
			receipt                 types.OperationReceipt
			kind                    string
			caller, token, receiver string
			positionID              int64
		)
		err := rows.Scan(
			&receipt.ReceiptID, &receipt.OperationID, &kind, &caller, &token,
			&receipt.Amount, &positionID, &receiver, &receipt.Timestamp,
		)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan receipt row")
			continue // Skip this row and continue with others
		}

		receipt.Kind = types.OperationKind(kind)
		receipt.Caller = common.HexToAddress(caller)
		receipt.Token = common.HexToAddress(token)
		receipt.PositionID = types.PositionID(positionID)
		receipt.Recipient = common.HexToAddress(receiver)
		receipts = append(receipts, receipt)
	}

	if err := rows.Err(); err != nil {
		log.Error().Err(err).Msg("Error occurred during row iteration")
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return receipts, nil
}

func hexOrEmpty(addr common.Address) string {
	if addr == (common.Address{}) {
		return ""
	}
	return addr.Hex()
}

// numericAmount keeps non-numeric receipt payloads (role grants) out of the
// NUMERIC column.
func numericAmount(amount string) string {
	for _, r := range amount {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return amount
}
