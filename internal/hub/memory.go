package hub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/meridianfi/feemanager/internal/logger"
	"github.com/meridianfi/feemanager/internal/token"
	"github.com/meridianfi/feemanager/internal/types"
)

// DefaultSwapInterval is the per-pair swap cadence unless overridden.
const DefaultSwapInterval = time.Hour

type pairKey struct {
	a common.Address
	b common.Address
}

// canonicalPair normalizes an unordered pair so both directions share one
// swap schedule.
func canonicalPair(a, b common.Address) pairKey {
	if a.Cmp(b) > 0 {
		a, b = b, a
	}
	return pairKey{a: a, b: b}
}

type memPosition struct {
	source    common.Address
	dest      common.Address
	owner     common.Address
	remaining *uint256.Int
	swapped   *uint256.Int
	swapsLeft uint32
}

// nextRate is the amount the position contributes to the pair's next swap.
func (p *memPosition) nextRate() *uint256.Int {
	if p.swapsLeft == 0 || p.remaining.IsZero() {
		return new(uint256.Int)
	}
	if p.swapsLeft == 1 {
		return new(uint256.Int).Set(p.remaining)
	}
	return new(uint256.Int).Div(p.remaining, uint256.NewInt(uint64(p.swapsLeft)))
}

// MemoryHub is an in-process reference hub used by the simulation mode and by
// tests. Deposits are pulled through the ledger so allowances behave like they
// would against a real hub, and swaps are simulated at a 1:1 price when
// ExecuteSwap is driven manually.
type MemoryHub struct {
	mu       sync.Mutex
	logger   zerolog.Logger
	address  common.Address
	ledger   token.Ledger
	nextID   types.PositionID
	position map[types.PositionID]*memPosition
	platform map[common.Address]*uint256.Int
	interval map[pairKey]time.Duration
	lastSwap map[pairKey]time.Time
}

// NewMemoryHub creates a hub holding custody of deposits under address.
func NewMemoryHub(address common.Address, ledger token.Ledger) *MemoryHub {
	return &MemoryHub{
		logger:   logger.GetForComponent("memory_hub"),
		address:  address,
		ledger:   ledger,
		nextID:   1,
		position: make(map[types.PositionID]*memPosition),
		platform: make(map[common.Address]*uint256.Int),
		interval: make(map[pairKey]time.Duration),
		lastSwap: make(map[pairKey]time.Time),
	}
}

func (m *MemoryHub) Address() common.Address {
	return m.address
}

func (m *MemoryHub) OpenPosition(ctx context.Context, source, dest common.Address, amount *uint256.Int, numberOfSwaps uint32, owner common.Address) (types.PositionID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if amount == nil || amount.IsZero() {
		return 0, fmt.Errorf("%w: deposit amount must be positive", ErrInvalidArgument)
	}
	if numberOfSwaps == 0 {
		return 0, fmt.Errorf("%w: number of swaps must be positive", ErrInvalidArgument)
	}
	if source == dest {
		return 0, fmt.Errorf("%w: source and destination token are identical", ErrInvalidArgument)
	}
	if owner == (common.Address{}) {
		return 0, fmt.Errorf("%w: owner cannot be zero", ErrInvalidArgument)
	}

	if err := m.ledger.TransferFrom(ctx, source, m.address, owner, m.address, amount); err != nil {
		return 0, fmt.Errorf("pulling deposit: %w", err)
	}

	id := m.nextID
	m.nextID++
	m.position[id] = &memPosition{
		source:    source,
		dest:      dest,
		owner:     owner,
		remaining: new(uint256.Int).Set(amount),
		swapped:   new(uint256.Int),
		swapsLeft: numberOfSwaps,
	}

	m.logger.Debug().
		Uint64("positionId", uint64(id)).
		Str("source", source.Hex()).
		Str("dest", dest.Hex()).
		Str("amount", amount.Dec()).
		Uint32("swaps", numberOfSwaps).
		Msg("Position opened")

	return id, nil
}

func (m *MemoryHub) IncreasePosition(ctx context.Context, id types.PositionID, amount *uint256.Int, numberOfSwaps uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.position[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrPositionNotFound, id)
	}
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("%w: increase amount must be positive", ErrInvalidArgument)
	}

	if err := m.ledger.TransferFrom(ctx, pos.source, m.address, pos.owner, m.address, amount); err != nil {
		return fmt.Errorf("pulling deposit: %w", err)
	}

	pos.remaining.Add(pos.remaining, amount)
	pos.swapsLeft += numberOfSwaps

	m.logger.Debug().
		Uint64("positionId", uint64(id)).
		Str("amount", amount.Dec()).
		Uint32("additionalSwaps", numberOfSwaps).
		Msg("Position increased")

	return nil
}

func (m *MemoryHub) TerminatePosition(ctx context.Context, id types.PositionID, unswappedRecipient, swappedRecipient common.Address) (*uint256.Int, *uint256.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.position[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %d", ErrPositionNotFound, id)
	}

	unswapped := new(uint256.Int).Set(pos.remaining)
	swapped := new(uint256.Int).Set(pos.swapped)

	if !unswapped.IsZero() {
		if err := m.ledger.Transfer(ctx, pos.source, m.address, unswappedRecipient, unswapped); err != nil {
			return nil, nil, fmt.Errorf("paying unswapped leg: %w", err)
		}
	}
	if !swapped.IsZero() {
		if err := m.ledger.Transfer(ctx, pos.dest, m.address, swappedRecipient, swapped); err != nil {
			return nil, nil, fmt.Errorf("paying swapped leg: %w", err)
		}
	}

	delete(m.position, id)

	m.logger.Debug().
		Uint64("positionId", uint64(id)).
		Str("unswapped", unswapped.Dec()).
		Str("swapped", swapped.Dec()).
		Msg("Position terminated")

	return unswapped, swapped, nil
}

func (m *MemoryHub) WithdrawSwapped(ctx context.Context, sets []types.PositionSet, recipient common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, set := range sets {
		total := new(uint256.Int)
		for _, id := range set.PositionIDs {
			pos, ok := m.position[id]
			if !ok {
				return fmt.Errorf("%w: %d", ErrPositionNotFound, id)
			}
			if pos.dest != set.Token {
				return fmt.Errorf("%w: position %d pays into %s, not %s",
					ErrInvalidArgument, id, pos.dest.Hex(), set.Token.Hex())
			}
			total.Add(total, pos.swapped)
			pos.swapped = new(uint256.Int)
		}

		if total.IsZero() {
			continue
		}
		if err := m.ledger.Transfer(ctx, set.Token, m.address, recipient, total); err != nil {
			return fmt.Errorf("paying swapped proceeds: %w", err)
		}
	}
	return nil
}

func (m *MemoryHub) Position(_ context.Context, id types.PositionID) (types.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.position[id]
	if !ok {
		return types.Position{}, fmt.Errorf("%w: %d", ErrPositionNotFound, id)
	}

	return types.Position{
		ID:          id,
		SourceToken: pos.source,
		DestToken:   pos.dest,
		Owner:       pos.owner,
		Remaining:   new(uint256.Int).Set(pos.remaining),
		Swapped:     new(uint256.Int).Set(pos.swapped),
		SwapsLeft:   pos.swapsLeft,
	}, nil
}

func (m *MemoryHub) PlatformFeeBalance(_ context.Context, tkn common.Address) (*uint256.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if bal, ok := m.platform[tkn]; ok {
		return new(uint256.Int).Set(bal), nil
	}
	return new(uint256.Int), nil
}

func (m *MemoryHub) WithdrawPlatformFee(ctx context.Context, amounts []types.TokenAmount, recipient common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, entry := range amounts {
		bal, ok := m.platform[entry.Token]
		if !ok || bal.Lt(entry.Amount) {
			return fmt.Errorf("%w: platform holds less than %s of %s",
				ErrInvalidArgument, entry.Amount.Dec(), entry.Token.Hex())
		}
		if err := m.ledger.Transfer(ctx, entry.Token, m.address, recipient, entry.Amount); err != nil {
			return fmt.Errorf("paying platform fee: %w", err)
		}
		m.platform[entry.Token] = new(uint256.Int).Sub(bal, entry.Amount)
	}
	return nil
}

func (m *MemoryHub) NextSwapInfo(_ context.Context, tokens []common.Address, pairs []types.PairIndex) (types.NextSwapInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info := types.NextSwapInfo{Pairs: make([]types.PairSwapInfo, 0, len(pairs))}
	for _, pair := range pairs {
		if int(pair.IndexTokenA) >= len(tokens) || int(pair.IndexTokenB) >= len(tokens) {
			return types.NextSwapInfo{}, fmt.Errorf("%w: pair index out of range", ErrInvalidArgument)
		}
		tokenA := tokens[pair.IndexTokenA]
		tokenB := tokens[pair.IndexTokenB]

		aToB := new(uint256.Int)
		bToA := new(uint256.Int)
		for _, pos := range m.position {
			switch {
			case pos.source == tokenA && pos.dest == tokenB:
				aToB.Add(aToB, pos.nextRate())
			case pos.source == tokenB && pos.dest == tokenA:
				bToA.Add(bToA, pos.nextRate())
			}
		}

		info.Pairs = append(info.Pairs, types.PairSwapInfo{
			TokenA:           tokenA,
			TokenB:           tokenB,
			AmountToSwapAToB: aToB,
			AmountToSwapBToA: bToA,
		})
	}
	return info, nil
}

func (m *MemoryHub) NextSwapAvailable(_ context.Context, tokenA, tokenB common.Address) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := canonicalPair(tokenA, tokenB)
	last, ok := m.lastSwap[key]
	if !ok {
		// Never swapped: executable immediately.
		return time.Time{}, nil
	}
	return last.Add(m.swapInterval(key)), nil
}

// SetSwapInterval overrides the swap cadence for a pair. Simulation helper.
func (m *MemoryHub) SetSwapInterval(tokenA, tokenB common.Address, interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interval[canonicalPair(tokenA, tokenB)] = interval
}

// AccruePlatformFee credits the hub's platform-fee ledger for token and backs
// it with freshly minted balance. Simulation helper; requires a MemoryLedger.
func (m *MemoryHub) AccruePlatformFee(tkn common.Address, amount *uint256.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mem, ok := m.ledger.(*token.MemoryLedger); ok {
		mem.Mint(tkn, m.address, amount)
	}
	if bal, ok := m.platform[tkn]; ok {
		bal.Add(bal, amount)
		return
	}
	m.platform[tkn] = new(uint256.Int).Set(amount)
}

// ExecuteSwap simulates the pair's next scheduled swap at a 1:1 price: every
// position on the pair converts its next rate from the source leg to the
// destination leg. Destination balance is minted to keep payouts backed.
func (m *MemoryHub) ExecuteSwap(tokenA, tokenB common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := canonicalPair(tokenA, tokenB)
	for _, pos := range m.position {
		onPair := (pos.source == tokenA && pos.dest == tokenB) ||
			(pos.source == tokenB && pos.dest == tokenA)
		if !onPair || pos.swapsLeft == 0 {
			continue
		}

		rate := pos.nextRate()
		pos.remaining.Sub(pos.remaining, rate)
		pos.swapped.Add(pos.swapped, rate)
		pos.swapsLeft--

		if mem, ok := m.ledger.(*token.MemoryLedger); ok && !rate.IsZero() {
			mem.Mint(pos.dest, m.address, rate)
		}
	}
	m.lastSwap[key] = time.Now()
}

// swapInterval returns the pair's configured cadence. Callers hold the lock.
func (m *MemoryHub) swapInterval(key pairKey) time.Duration {
	if d, ok := m.interval[key]; ok {
		return d
	}
	return DefaultSwapInterval
}
