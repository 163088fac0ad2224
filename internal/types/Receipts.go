/*

Operation receipts form the audit trail of every mutating engine call. They are
persisted best-effort by the state package and exposed by the web server.

*/

package types

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// OperationKind labels what an operation receipt records.
type OperationKind string

const (
	OpFill              OperationKind = "FILL"
	OpOpenPosition      OperationKind = "OPEN_POSITION"
	OpIncreasePosition  OperationKind = "INCREASE_POSITION"
	OpWithdrawPlatform  OperationKind = "WITHDRAW_PLATFORM"
	OpWithdrawExact     OperationKind = "WITHDRAW_EXACT"
	OpWithdrawFull      OperationKind = "WITHDRAW_FULL_BALANCE"
	OpWithdrawPositions OperationKind = "WITHDRAW_POSITIONS"
	OpTerminatePosition OperationKind = "TERMINATE_POSITION"
	OpRevokeAllowance   OperationKind = "REVOKE_ALLOWANCE"
	OpAdminChange       OperationKind = "ADMIN_CHANGE"
)

// OperationReceipt records one side effect of a mutating engine call.
// OperationID groups the receipts emitted by a single invocation.
type OperationReceipt struct {
	ReceiptID   int64          `json:"receipt_id,omitempty"` // assigned by the database
	OperationID string         `json:"operation_id"`
	Kind        OperationKind  `json:"kind"`
	Caller      common.Address `json:"caller"`
	Token       common.Address `json:"token,omitempty"`
	Amount      string         `json:"amount,omitempty"` // decimal string, uint256 range
	PositionID  PositionID     `json:"position_id,omitempty"`
	Recipient   common.Address `json:"recipient,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}
