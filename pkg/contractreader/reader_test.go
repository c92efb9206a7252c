package contractreader

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onchainwatch/logindexer/pkg/abi"
	pkgcache "github.com/onchainwatch/logindexer/pkg/cache"
	pkgrpc "github.com/onchainwatch/logindexer/pkg/rpc"
)

var testAddr = common.HexToAddress("0x0000000000000000000000000000000000005678")

func testSchema(t *testing.T) *abi.ContractSchema {
	t.Helper()
	schema, err := abi.NewContractSchema("erc20", nil, []string{"balanceOf(address account) returns (uint256)"})
	require.NoError(t, err)
	return schema
}

type fakeClient struct {
	pkgrpc.EthClient
	calls  int
	result []byte
	err    error
}

func (c *fakeClient) ReadContract(ctx context.Context, req pkgrpc.CallRequest) ([]byte, error) {
	c.calls++
	return c.result, c.err
}
func (c *fakeClient) GetLastBlockNumber(ctx context.Context) (uint64, error) { return 0, nil }
func (c *fakeClient) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}
func (c *fakeClient) Close() {}

type fakeCache struct {
	hit        []byte
	hitOK      bool
	getErr     error
	stored     bool
	storeCalls int
}

func (c *fakeCache) GetLogs(ctx context.Context, r pkgcache.LogRange) (pkgcache.LogRangeResult, error) {
	return pkgcache.LogRangeResult{}, nil
}
func (c *fakeCache) StoreLogs(ctx context.Context, r pkgcache.LogRange, logs []types.Log) error {
	return nil
}
func (c *fakeCache) GetCallResult(ctx context.Context, address common.Address, functionName string, blockNumber uint64, data []byte) ([]byte, bool, error) {
	return c.hit, c.hitOK, c.getErr
}
func (c *fakeCache) StoreCallResult(ctx context.Context, address common.Address, functionName string, blockNumber uint64, data []byte, result []byte) error {
	c.stored = true
	c.storeCalls++
	return nil
}

func encodedBalance(t *testing.T, n uint64) []byte {
	t.Helper()
	out := make([]byte, 32)
	out[31] = byte(n)
	return out
}

func TestReader_NoCache_AlwaysCallsRPC(t *testing.T) {
	schema := testSchema(t)
	client := &fakeClient{result: encodedBalance(t, 7)}
	r := New(client, nil, nil)

	decoded, err := r.Read(t.Context(), schema, testAddr, "balanceOf", 100, testAddr)
	require.NoError(t, err)
	assert.Equal(t, 1, client.calls)
	require.Contains(t, decoded, "param0")
}

func TestReader_CacheHit_NeverCallsRPC(t *testing.T) {
	schema := testSchema(t)
	client := &fakeClient{result: encodedBalance(t, 7)}
	cache := &fakeCache{hit: encodedBalance(t, 99), hitOK: true}
	r := New(client, cache, nil)

	_, err := r.Read(t.Context(), schema, testAddr, "balanceOf", 100, testAddr)
	require.NoError(t, err)
	assert.Equal(t, 0, client.calls)
}

func TestReader_CacheMiss_FallsThroughToRPCAndStores(t *testing.T) {
	schema := testSchema(t)
	client := &fakeClient{result: encodedBalance(t, 7)}
	cache := &fakeCache{hitOK: false}
	r := New(client, cache, nil)

	_, err := r.Read(t.Context(), schema, testAddr, "balanceOf", 100, testAddr)
	require.NoError(t, err)
	assert.Equal(t, 1, client.calls)
	assert.True(t, cache.stored)
}

func TestReader_RPCFailure_NeverWritesCache(t *testing.T) {
	schema := testSchema(t)
	client := &fakeClient{err: errors.New("eth_call reverted")}
	cache := &fakeCache{hitOK: false}
	r := New(client, cache, nil)

	_, err := r.Read(t.Context(), schema, testAddr, "balanceOf", 100, testAddr)
	require.Error(t, err)
	assert.Equal(t, 0, cache.storeCalls)
}

func TestReader_UnknownFunction_ErrorsBeforeAnyCallOrCacheLookup(t *testing.T) {
	schema := testSchema(t)
	client := &fakeClient{}
	r := New(client, nil, nil)

	_, err := r.Read(t.Context(), schema, testAddr, "totalSupply", 100)
	require.Error(t, err)
	assert.Equal(t, 0, client.calls)
}
