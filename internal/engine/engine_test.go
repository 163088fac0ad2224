package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/meridianfi/feemanager/internal/auth"
	"github.com/meridianfi/feemanager/internal/hub"
	"github.com/meridianfi/feemanager/internal/token"
	"github.com/meridianfi/feemanager/internal/types"
)

var (
	hubAddr    = common.HexToAddress("0x0000000000000000000000000000000000000Aaa")
	selfAddr   = common.HexToAddress("0x0000000000000000000000000000000000000Bbb")
	superAddr  = common.HexToAddress("0x0000000000000000000000000000000000000Ccc")
	adminAddr  = common.HexToAddress("0x0000000000000000000000000000000000000Ddd")
	randomAddr = common.HexToAddress("0x0000000000000000000000000000000000000Eee")
	payeeAddr  = common.HexToAddress("0x0000000000000000000000000000000000000Fff")

	feeToken  = common.HexToAddress("0x0000000000000000000000000000000000000001")
	destTokA  = common.HexToAddress("0x0000000000000000000000000000000000000002")
	destTokB  = common.HexToAddress("0x0000000000000000000000000000000000000003")
	errHubOut = errors.New("hub unavailable")
)

// captureRecorder collects receipts in memory so tests can assert on them.
type captureRecorder struct {
	receipts []types.OperationReceipt
}

func (r *captureRecorder) Record(_ context.Context, receipt types.OperationReceipt) error {
	r.receipts = append(r.receipts, receipt)
	return nil
}

func (r *captureRecorder) kinds() []types.OperationKind {
	out := make([]types.OperationKind, 0, len(r.receipts))
	for _, receipt := range r.receipts {
		out = append(out, receipt.Kind)
	}
	return out
}

type fixture struct {
	engine   *Engine
	hub      *hub.MemoryHub
	ledger   *token.MemoryLedger
	recorder *captureRecorder
}

func newFixture(t *testing.T, h hub.Hub, ledger *token.MemoryLedger) *fixture {
	t.Helper()

	roles, err := auth.NewRegistry(superAddr, []common.Address{adminAddr})
	require.NoError(t, err)

	recorder := &captureRecorder{}
	e, err := New(Config{
		Hub:      h,
		Ledger:   ledger,
		Roles:    roles,
		Self:     selfAddr,
		Recorder: recorder,
	})
	require.NoError(t, err)

	f := &fixture{engine: e, ledger: ledger, recorder: recorder}
	if mh, ok := h.(*hub.MemoryHub); ok {
		f.hub = mh
	}
	return f
}

// newFundedFixture wires a memory hub and a ledger where the engine account
// holds amount of the fee token.
func newFundedFixture(t *testing.T, amount uint64) *fixture {
	t.Helper()
	ledger := token.NewMemoryLedger()
	ledger.Mint(feeToken, selfAddr, uint256.NewInt(amount))
	return newFixture(t, hub.NewMemoryHub(hubAddr, ledger), ledger)
}

func evenSplit() []types.DistributionEntry {
	return []types.DistributionEntry{
		{DestToken: destTokA, ShareWeight: 5000},
		{DestToken: destTokB, ShareWeight: 5000},
	}
}

// flakyHub passes the first opensBeforeFailure opens through, then fails.
type flakyHub struct {
	hub.Hub
	opensBeforeFailure int
	opens              int
}

func (f *flakyHub) OpenPosition(ctx context.Context, source, dest common.Address, amount *uint256.Int, numberOfSwaps uint32, owner common.Address) (types.PositionID, error) {
	if f.opens >= f.opensBeforeFailure {
		return 0, errHubOut
	}
	f.opens++
	return f.Hub.OpenPosition(ctx, source, dest, amount, numberOfSwaps, owner)
}

func TestNewRejectsIncompleteConfig(t *testing.T) {
	ledger := token.NewMemoryLedger()
	h := hub.NewMemoryHub(hubAddr, ledger)
	roles, err := auth.NewRegistry(superAddr, nil)
	require.NoError(t, err)

	_, err = New(Config{Ledger: ledger, Roles: roles, Self: selfAddr})
	require.Error(t, err)

	_, err = New(Config{Hub: h, Roles: roles, Self: selfAddr})
	require.Error(t, err)

	_, err = New(Config{Hub: h, Ledger: ledger, Self: selfAddr})
	require.Error(t, err)

	_, err = New(Config{Hub: h, Ledger: ledger, Roles: roles})
	require.ErrorIs(t, err, auth.ErrZeroAddress)
}

func TestAdminManagementRecordsReceipts(t *testing.T) {
	ctx := context.Background()
	f := newFundedFixture(t, 0)

	require.ErrorIs(t, f.engine.AddAdmin(ctx, adminAddr, randomAddr), auth.ErrUnauthorized)

	require.NoError(t, f.engine.AddAdmin(ctx, superAddr, randomAddr))
	require.True(t, f.engine.Roles().IsAdmin(randomAddr))

	require.NoError(t, f.engine.RemoveAdmin(ctx, superAddr, randomAddr))
	require.False(t, f.engine.Roles().IsAdmin(randomAddr))

	require.Equal(t, []types.OperationKind{types.OpAdminChange, types.OpAdminChange}, f.recorder.kinds())
}
