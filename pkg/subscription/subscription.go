// Package subscription defines the per-contract cursor the engine tracks
// (spec §3) — the shared data model pkg/fetcher, pkg/processor,
// pkg/contractreader and pkg/indexer all operate on without depending on
// each other.
package subscription

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/onchainwatch/logindexer/pkg/abi"
)

// ToBlock is a concrete height or the "latest" sentinel, represented as a
// sum type rather than a reserved numeric value.
type ToBlock struct {
	concrete *uint64
}

// Latest is the "latest" ToBlock.
func Latest() ToBlock { return ToBlock{} }

// AtBlock is a concrete ToBlock.
func AtBlock(n uint64) ToBlock { return ToBlock{concrete: &n} }

// IsLatest reports whether this ToBlock tracks the chain head rather than a
// fixed height.
func (t ToBlock) IsLatest() bool { return t.concrete == nil }

// Resolve returns the effective upper bound given the current targetBlock:
// the concrete height if set, else targetBlock itself.
func (t ToBlock) Resolve(targetBlock uint64) uint64 {
	if t.concrete == nil {
		return targetBlock
	}
	return *t.concrete
}

// Concrete returns the fixed height and true, or (0, false) for "latest".
func (t ToBlock) Concrete() (uint64, bool) {
	if t.concrete == nil {
		return 0, false
	}
	return *t.concrete, true
}

// Options describes a subscribeToContract call (spec §4.I). Address and
// ID are plain strings here (checksummed/defaulted by the caller) since
// this package must stay independent of the indexer that validates them
// against the ABI registry.
type Options struct {
	ID              string
	ContractName    string
	ContractAddress string
	FromBlock       uint64
	ToBlock         ToBlock
}

// Subscription is a per-contract cursor + filter tracked by the engine
// (spec §3). FetchedToBlock/IndexedToBlock are int64 so their -1 "unset"
// init values are representable without a separate flag.
type Subscription struct {
	ID                string
	ContractName      string
	ContractAddress   common.Address
	ABI               *abi.ContractSchema
	FromBlock         uint64
	ToBlock           ToBlock
	FetchedToBlock    int64
	IndexedToBlock    int64
	IndexedToLogIndex uint
}

// New constructs a Subscription with the spec-mandated defaults:
// fromBlock=0, toBlock=latest, indexedToBlock=fromBlock-1, fetchedToBlock=-1,
// indexedToLogIndex=0 (spec §4.I subscribeToContract).
func New(id, contractName string, address common.Address, schema *abi.ContractSchema, fromBlock uint64, toBlock ToBlock) *Subscription {
	return &Subscription{
		ID:                id,
		ContractName:      contractName,
		ContractAddress:   address,
		ABI:               schema,
		FromBlock:         fromBlock,
		ToBlock:           toBlock,
		FetchedToBlock:    -1,
		IndexedToBlock:    int64(fromBlock) - 1,
		IndexedToLogIndex: 0,
	}
}

// Done reports whether this subscription is complete: it has a concrete
// toBlock and has indexed through it (spec
// §3 invariant 4 — a completed subscription is never polled again).
func (s *Subscription) Done() bool {
	concrete, ok := s.ToBlock.Concrete()
	if !ok {
		return false
	}
	return s.IndexedToBlock >= int64(concrete)
}

// PlanRange resolves the effective [f, t] this subscription still needs
// fetched against targetBlock (spec §4.F step 1). ok is false when f > t
// (nothing to do this tick).
func (s *Subscription) PlanRange(targetBlock uint64) (f, t uint64, ok bool) {
	upper := s.ToBlock.Resolve(targetBlock)
	if upper > targetBlock {
		upper = targetBlock
	}

	f = s.FromBlock
	if s.FetchedToBlock+1 > int64(f) {
		f = uint64(s.FetchedToBlock + 1)
	}
	t = upper
	if f > t {
		return 0, 0, false
	}
	return f, t, true
}
