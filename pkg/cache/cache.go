// Package cache defines the optional, best-effort log and call-result cache
// contract the fetch planner and contract reader consult. Concrete storage
// lives in internal/cache/sqlitecache; the core never depends on it directly.
package cache

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// LogRange identifies the contiguous block range a log-range query is over.
type LogRange struct {
	Address   common.Address
	FromBlock uint64
	ToBlock   uint64
}

// LogRangeResult is the answer to a log-range query: the sub-range of the
// requested range the cache can actually vouch for, plus the logs it holds
// within that sub-range. An empty Covered (Covered.Empty()) with no logs
// means a full miss. A partial hit reports Covered.FromBlock/ToBlock within
// [requested.FromBlock, requested.ToBlock], endpoints included (per spec
// §3/§4.F); the caller fetches the remaining gaps itself.
type LogRangeResult struct {
	Covered CoverageRange
	Logs    []types.Log
}

// CoverageRange is an inclusive [FromBlock, ToBlock] the cache has fully
// indexed for a given address. A CoverageRange with FromBlock > ToBlock
// (for example {1, 0}) represents "nothing covered"; the zero value {0, 0}
// covers block 0.
type CoverageRange struct {
	FromBlock uint64
	ToBlock   uint64
}

// Empty reports whether the range covers no blocks.
func (c CoverageRange) Empty() bool {
	return c.FromBlock > c.ToBlock
}

// Cache is the log-range and call-result store the engine treats as
// best-effort: failures propagate rather than being silently swallowed
// (spec §6.2), but a nil Cache is always a legal configuration (cache-miss
// behavior for every query).
type Cache interface {
	// GetLogs answers a log-range query for [r.FromBlock, r.ToBlock],
	// topic0=None as specified — filtering by topic-0 happens in the
	// planner once logs are returned. Always consulted with topic0=None.
	GetLogs(ctx context.Context, r LogRange) (LogRangeResult, error)

	// StoreLogs records the exact requested range (not just the sub-range
	// that had hits) as covered, together with the logs found within it.
	StoreLogs(ctx context.Context, r LogRange, logs []types.Log) error

	// GetCallResult looks up a cached eth_call result keyed by the exact
	// encoded call. ok is false on a miss.
	GetCallResult(ctx context.Context, address common.Address, functionName string, blockNumber uint64, data []byte) (result []byte, ok bool, err error)

	// StoreCallResult records a successful eth_call result. Never invoked
	// after a failed call (spec §4.C: "never write the cache on failure").
	StoreCallResult(ctx context.Context, address common.Address, functionName string, blockNumber uint64, data []byte, result []byte) error
}
