package engine

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianfi/feemanager/internal/auth"
	"github.com/meridianfi/feemanager/internal/distribution"
	"github.com/meridianfi/feemanager/internal/hub"
	"github.com/meridianfi/feemanager/internal/token"
	"github.com/meridianfi/feemanager/internal/types"
)

func TestFillOpensPositionsPerDestination(t *testing.T) {
	ctx := context.Background()
	f := newFundedFixture(t, 1000)

	jobs := []types.FeeJob{{SourceToken: feeToken, Amount: uint256.NewInt(100), NumberOfSwaps: 4}}
	require.NoError(t, f.engine.FillPositions(ctx, adminAddr, jobs, evenSplit()))

	idA, ok := f.engine.PositionFor(feeToken, destTokA)
	require.True(t, ok)
	idB, ok := f.engine.PositionFor(feeToken, destTokB)
	require.True(t, ok)
	assert.NotEqual(t, idA, idB)

	posA, err := f.hub.Position(ctx, idA)
	require.NoError(t, err)
	posB, err := f.hub.Position(ctx, idB)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), posA.Remaining.Uint64())
	assert.Equal(t, uint64(50), posB.Remaining.Uint64())
	assert.Equal(t, selfAddr, posA.Owner)

	bal, err := f.ledger.BalanceOf(ctx, feeToken, selfAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(900), bal.Uint64())
}

func TestFillRemainderGoesToLastDestination(t *testing.T) {
	ctx := context.Background()
	f := newFundedFixture(t, 1000)

	jobs := []types.FeeJob{{SourceToken: feeToken, Amount: uint256.NewInt(101), NumberOfSwaps: 1}}
	require.NoError(t, f.engine.FillPositions(ctx, adminAddr, jobs, evenSplit()))

	idA, _ := f.engine.PositionFor(feeToken, destTokA)
	idB, _ := f.engine.PositionFor(feeToken, destTokB)

	posA, err := f.hub.Position(ctx, idA)
	require.NoError(t, err)
	posB, err := f.hub.Position(ctx, idB)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), posA.Remaining.Uint64())
	assert.Equal(t, uint64(51), posB.Remaining.Uint64())
}

func TestFillIncreasesExistingPositions(t *testing.T) {
	ctx := context.Background()
	f := newFundedFixture(t, 1000)

	jobs := []types.FeeJob{{SourceToken: feeToken, Amount: uint256.NewInt(100), NumberOfSwaps: 2}}
	require.NoError(t, f.engine.FillPositions(ctx, adminAddr, jobs, evenSplit()))
	require.NoError(t, f.engine.FillPositions(ctx, adminAddr, jobs, evenSplit()))

	assert.Len(t, f.engine.OpenPositions(), 2)

	idA, _ := f.engine.PositionFor(feeToken, destTokA)
	posA, err := f.hub.Position(ctx, idA)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), posA.Remaining.Uint64())
}

func TestFillNeverOpensPairTwiceInOneCall(t *testing.T) {
	ctx := context.Background()
	f := newFundedFixture(t, 1000)

	// Two jobs for the same source token in a single invocation: the second
	// job must increase the positions staged by the first, not open new ones.
	jobs := []types.FeeJob{
		{SourceToken: feeToken, Amount: uint256.NewInt(100), NumberOfSwaps: 2},
		{SourceToken: feeToken, Amount: uint256.NewInt(60), NumberOfSwaps: 1},
	}
	require.NoError(t, f.engine.FillPositions(ctx, adminAddr, jobs, evenSplit()))

	assert.Len(t, f.engine.OpenPositions(), 2)

	idA, _ := f.engine.PositionFor(feeToken, destTokA)
	posA, err := f.hub.Position(ctx, idA)
	require.NoError(t, err)
	assert.Equal(t, uint64(80), posA.Remaining.Uint64())
}

func TestFillSkipsZeroPortions(t *testing.T) {
	ctx := context.Background()
	f := newFundedFixture(t, 1000)

	dist := []types.DistributionEntry{
		{DestToken: destTokA, ShareWeight: distribution.TotalShares},
		{DestToken: destTokB, ShareWeight: 0},
	}
	jobs := []types.FeeJob{{SourceToken: feeToken, Amount: uint256.NewInt(100), NumberOfSwaps: 1}}
	require.NoError(t, f.engine.FillPositions(ctx, adminAddr, jobs, dist))

	_, ok := f.engine.PositionFor(feeToken, destTokA)
	assert.True(t, ok)
	_, ok = f.engine.PositionFor(feeToken, destTokB)
	assert.False(t, ok)
}

func TestFillLeavesIndexUntouchedOnHubFailure(t *testing.T) {
	ctx := context.Background()
	ledger := token.NewMemoryLedger()
	ledger.Mint(feeToken, selfAddr, uint256.NewInt(1000))
	flaky := &flakyHub{Hub: hub.NewMemoryHub(hubAddr, ledger), opensBeforeFailure: 1}
	f := newFixture(t, flaky, ledger)

	jobs := []types.FeeJob{{SourceToken: feeToken, Amount: uint256.NewInt(100), NumberOfSwaps: 1}}
	err := f.engine.FillPositions(ctx, adminAddr, jobs, evenSplit())
	require.ErrorIs(t, err, errHubOut)

	// The first open succeeded on the hub, but nothing was committed.
	assert.Empty(t, f.engine.OpenPositions())
	_, ok := f.engine.PositionFor(feeToken, destTokA)
	assert.False(t, ok)
	assert.Empty(t, f.recorder.receipts)
}

func TestFillGrantsUnlimitedAllowanceOnce(t *testing.T) {
	ctx := context.Background()
	f := newFundedFixture(t, 1000)

	jobs := []types.FeeJob{{SourceToken: feeToken, Amount: uint256.NewInt(100), NumberOfSwaps: 1}}
	require.NoError(t, f.engine.FillPositions(ctx, adminAddr, jobs, evenSplit()))

	history := f.ledger.ApprovalHistory(feeToken, selfAddr, hubAddr)
	require.Len(t, history, 1)
	assert.True(t, types.IsMaxAmount(history[0]))
}

func TestFillResetsInsufficientAllowanceFirst(t *testing.T) {
	ctx := context.Background()
	ledger := token.NewMemoryLedger()
	ledger.Mint(feeToken, selfAddr, uint256.NewInt(1000))
	ledger.SetStrictApprove(feeToken, true)
	require.NoError(t, ledger.Approve(ctx, feeToken, selfAddr, hubAddr, uint256.NewInt(5)))
	f := newFixture(t, hub.NewMemoryHub(hubAddr, ledger), ledger)

	jobs := []types.FeeJob{{SourceToken: feeToken, Amount: uint256.NewInt(100), NumberOfSwaps: 1}}
	require.NoError(t, f.engine.FillPositions(ctx, adminAddr, jobs, evenSplit()))

	history := ledger.ApprovalHistory(feeToken, selfAddr, hubAddr)
	require.Len(t, history, 3)
	assert.Equal(t, uint64(5), history[0].Uint64())
	assert.True(t, history[1].IsZero())
	assert.True(t, types.IsMaxAmount(history[2]))
}

func TestFillRequiresAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFundedFixture(t, 1000)

	jobs := []types.FeeJob{{SourceToken: feeToken, Amount: uint256.NewInt(100), NumberOfSwaps: 1}}
	err := f.engine.FillPositions(ctx, randomAddr, jobs, evenSplit())
	require.ErrorIs(t, err, auth.ErrUnauthorized)

	// The super-admin manages roles but does not hold the admin role itself.
	err = f.engine.FillPositions(ctx, superAddr, jobs, evenSplit())
	require.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestFillRejectsOverSubscribedDistribution(t *testing.T) {
	ctx := context.Background()
	f := newFundedFixture(t, 1000)

	dist := []types.DistributionEntry{
		{DestToken: destTokA, ShareWeight: 6000},
		{DestToken: destTokB, ShareWeight: 5000},
	}
	jobs := []types.FeeJob{{SourceToken: feeToken, Amount: uint256.NewInt(100), NumberOfSwaps: 1}}
	err := f.engine.FillPositions(ctx, adminAddr, jobs, dist)
	require.ErrorIs(t, err, distribution.ErrInvalidShares)
}

func TestFillZeroAmountJobLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	f := newFundedFixture(t, 1000)

	jobs := []types.FeeJob{{SourceToken: feeToken, Amount: new(uint256.Int), NumberOfSwaps: 1}}
	require.NoError(t, f.engine.FillPositions(ctx, adminAddr, jobs, evenSplit()))

	assert.Empty(t, f.engine.OpenPositions())
	assert.Empty(t, f.recorder.receipts)
}

func TestFillRecordsReceipts(t *testing.T) {
	ctx := context.Background()
	f := newFundedFixture(t, 1000)

	jobs := []types.FeeJob{{SourceToken: feeToken, Amount: uint256.NewInt(100), NumberOfSwaps: 1}}
	require.NoError(t, f.engine.FillPositions(ctx, adminAddr, jobs, evenSplit()))

	kinds := f.recorder.kinds()
	assert.Equal(t, []types.OperationKind{types.OpOpenPosition, types.OpOpenPosition, types.OpFill}, kinds)
}
