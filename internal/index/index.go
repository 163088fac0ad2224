// Package index maintains the bidirectional mapping between token pairs and
// open recurring-swap positions. Both sides are mutated together behind this
// package; callers never touch one container directly.
package index

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/meridianfi/feemanager/internal/types"
)

var (
	ErrPositionExists   = errors.New("a position is already registered for this token pair")
	ErrPositionNotFound = errors.New("no position registered for this token pair")
)

// Key uniquely identifies an ordered (source, destination) token pair.
// Keccak over the concatenated raw addresses is collision-free and
// order-sensitive: (a,b) and (b,a) hash to different keys.
type Key = common.Hash

// KeyFor derives the index key for a source -> destination pair.
func KeyFor(source, dest common.Address) Key {
	return crypto.Keccak256Hash(source.Bytes(), dest.Bytes())
}

// Entry is one forward mapping, returned by enumeration queries.
type Entry struct {
	SourceToken common.Address   `json:"source_token"`
	DestToken   common.Address   `json:"dest_token"`
	PositionID  types.PositionID `json:"position_id"`
}

// Index holds the forward pair->position mapping and the reverse
// destination->positions mapping. It is not safe for concurrent use; the
// engine serializes access.
type Index struct {
	positions map[Key]Entry
	byDest    map[common.Address][]types.PositionID
}

// New returns an empty index.
func New() *Index {
	return &Index{
		positions: make(map[Key]Entry),
		byDest:    make(map[common.Address][]types.PositionID),
	}
}

// Lookup returns the open position for the pair, if any.
func (x *Index) Lookup(source, dest common.Address) (types.PositionID, bool) {
	entry, ok := x.positions[KeyFor(source, dest)]
	if !ok {
		return 0, false
	}
	return entry.PositionID, true
}

// Register records a newly opened position for the pair and adds it to the
// destination's reverse set. Callers must Lookup first; registering over an
// existing entry is an error, not an overwrite.
func (x *Index) Register(source, dest common.Address, id types.PositionID) error {
	key := KeyFor(source, dest)
	if existing, ok := x.positions[key]; ok {
		return fmt.Errorf("%w: %s -> %s already maps to position %d",
			ErrPositionExists, source.Hex(), dest.Hex(), existing.PositionID)
	}

	x.positions[key] = Entry{SourceToken: source, DestToken: dest, PositionID: id}
	x.byDest[dest] = append(x.byDest[dest], id)
	return nil
}

// Remove clears the forward entry for the pair and excises its id from the
// destination's reverse set, preserving the relative order of the remaining
// ids. Removing a pair with no entry is a logic error.
func (x *Index) Remove(source, dest common.Address) (types.PositionID, error) {
	key := KeyFor(source, dest)
	entry, ok := x.positions[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s -> %s", ErrPositionNotFound, source.Hex(), dest.Hex())
	}

	delete(x.positions, key)

	ids := x.byDest[dest]
	for i, id := range ids {
		if id == entry.PositionID {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(x.byDest, dest)
	} else {
		x.byDest[dest] = ids
	}

	return entry.PositionID, nil
}

// PositionsInto returns the ids of every open position paying into dest, in
// registration order. The returned slice is a copy.
func (x *Index) PositionsInto(dest common.Address) []types.PositionID {
	ids := x.byDest[dest]
	out := make([]types.PositionID, len(ids))
	copy(out, ids)
	return out
}

// Entries returns every forward mapping. Order is unspecified.
func (x *Index) Entries() []Entry {
	out := make([]Entry, 0, len(x.positions))
	for _, entry := range x.positions {
		out = append(out, entry)
	}
	return out
}

// Len returns the number of open positions tracked.
func (x *Index) Len() int {
	return len(x.positions)
}
