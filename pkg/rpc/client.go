// Package rpc defines the abstract chain-client contract the engine
// consumes. Concrete transport, retry, and concurrency-limiting behavior
// live in internal/rpc; the core engine only ever depends on EthClient.
package rpc

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrRangeTooWide is the sentinel GetLogs wraps (via errors.Is) when the
// provider refuses a range because the result set is too large. The fetch
// planner catches it by type and bisects; the transport must never retry it.
var ErrRangeTooWide = errors.New("rpc: range too wide")

// RangeTooWideError carries the provider's suggested replacement range, when
// it offered one, so the planner can skip a blind midpoint bisection.
type RangeTooWideError struct {
	Err           error
	SuggestedFrom uint64
	SuggestedTo   uint64
	HasSuggestion bool
}

func (e *RangeTooWideError) Error() string { return e.Err.Error() }
func (e *RangeTooWideError) Unwrap() error { return ErrRangeTooWide }

// CallRequest is a single eth_call at a specific (possibly historical) block
// height, as required by the cache-through Contract Reader.
type CallRequest struct {
	FunctionName string
	Address      common.Address
	Data         []byte
	BlockNumber  uint64
}

// EthClient is the complete set of chain operations the engine requires.
// Implementations retry transient failures internally (spec §6.1);
// ErrRangeTooWide is the one GetLogs error that must never be retried.
type EthClient interface {
	// GetLastBlockNumber returns the current chain head, resolved through
	// whatever finality tag the implementation is configured with.
	GetLastBlockNumber(ctx context.Context) (uint64, error)

	// GetLogs executes an eth_getLogs-equivalent query. toBlock is always a
	// concrete height by the time it reaches this boundary.
	GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)

	// ReadContract performs a point-in-time eth_call.
	ReadContract(ctx context.Context, req CallRequest) ([]byte, error)

	Close()
}
