package rpc

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/semaphore"

	pkgrpc "github.com/onchainwatch/logindexer/pkg/rpc"
)

const defaultConcurrency = 5

var _ pkgrpc.EthClient = (*BoundedClient)(nil)

// BoundedClient wraps a pkgrpc.EthClient with a weighted semaphore capping
// in-flight calls, a property of the transport rather than the engine
// (spec §5: "RPC concurrency ... caps fan-out"). Adapted from the sliding
// window semaphore used for block-fetch worker limiting elsewhere in the
// retrieved pack, here applied to a single shared client instead.
type BoundedClient struct {
	inner pkgrpc.EthClient
	sem   *semaphore.Weighted
}

// NewBoundedClient wraps inner with a concurrency bound. A bound of 0 uses
// defaultConcurrency (5).
func NewBoundedClient(inner pkgrpc.EthClient, bound int64) *BoundedClient {
	if bound <= 0 {
		bound = defaultConcurrency
	}
	return &BoundedClient{inner: inner, sem: semaphore.NewWeighted(bound)}
}

func (b *BoundedClient) acquire(ctx context.Context) error {
	return b.sem.Acquire(ctx, 1)
}

func (b *BoundedClient) release() {
	b.sem.Release(1)
}

func (b *BoundedClient) GetLastBlockNumber(ctx context.Context) (uint64, error) {
	if err := b.acquire(ctx); err != nil {
		return 0, err
	}
	defer b.release()
	return b.inner.GetLastBlockNumber(ctx)
}

func (b *BoundedClient) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}
	defer b.release()
	return b.inner.GetLogs(ctx, query)
}

func (b *BoundedClient) ReadContract(ctx context.Context, req pkgrpc.CallRequest) ([]byte, error) {
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}
	defer b.release()
	return b.inner.ReadContract(ctx, req)
}

func (b *BoundedClient) Close() {
	b.inner.Close()
}
