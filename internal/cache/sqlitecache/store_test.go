package sqlitecache

import (
	gosql "database/sql"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/onchainwatch/logindexer/pkg/cache"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gosql.Open("sqlite3", "file::memory:?cache=shared&_foreign_keys=on")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(db))
	return New(db, nil)
}

var testAddr = common.HexToAddress("0x0000000000000000000000000000000000000001")

func sampleLog(block uint64, idx uint) types.Log {
	return types.Log{
		Address:     testAddr,
		BlockNumber: block,
		BlockHash:   common.HexToHash("0xaaaa"),
		TxHash:      common.HexToHash("0xbbbb"),
		TxIndex:     0,
		Index:       idx,
		Topics:      []common.Hash{common.HexToHash("0xdeadbeef")},
		Data:        []byte{1, 2, 3},
	}
}

func TestStore_GetLogs_FullMiss(t *testing.T) {
	s := newTestStore(t)
	result, err := s.GetLogs(t.Context(), cache.LogRange{Address: testAddr, FromBlock: 0, ToBlock: 100})
	require.NoError(t, err)
	require.True(t, result.Covered.Empty())
	require.Empty(t, result.Logs)
}

func TestStore_StoreThenGetLogs_FullHit(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	logs := []types.Log{sampleLog(10, 0), sampleLog(20, 1)}
	r := cache.LogRange{Address: testAddr, FromBlock: 0, ToBlock: 100}

	require.NoError(t, s.StoreLogs(ctx, r, logs))

	result, err := s.GetLogs(ctx, r)
	require.NoError(t, err)
	require.False(t, result.Covered.Empty())
	require.Equal(t, uint64(0), result.Covered.FromBlock)
	require.Equal(t, uint64(100), result.Covered.ToBlock)
	require.Len(t, result.Logs, 2)
}

func TestStore_GetLogs_PartialHit(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.StoreLogs(ctx, cache.LogRange{Address: testAddr, FromBlock: 30, ToBlock: 60}, []types.Log{sampleLog(45, 0)}))

	result, err := s.GetLogs(ctx, cache.LogRange{Address: testAddr, FromBlock: 0, ToBlock: 100})
	require.NoError(t, err)
	require.Equal(t, uint64(30), result.Covered.FromBlock)
	require.Equal(t, uint64(60), result.Covered.ToBlock)
	require.Len(t, result.Logs, 1)
	require.Equal(t, uint64(45), result.Logs[0].BlockNumber)
}

func TestStore_StoreLogs_DuplicateRangeIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	r := cache.LogRange{Address: testAddr, FromBlock: 0, ToBlock: 10}
	logs := []types.Log{sampleLog(5, 0)}

	require.NoError(t, s.StoreLogs(ctx, r, logs))
	require.NoError(t, s.StoreLogs(ctx, r, logs))

	result, err := s.GetLogs(ctx, r)
	require.NoError(t, err)
	require.Len(t, result.Logs, 1)
}

func TestStore_CallResult_MissThenHit(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	_, ok, err := s.GetCallResult(ctx, testAddr, "balanceOf", 100, []byte{0xAB, 0xCD})
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.StoreCallResult(ctx, testAddr, "balanceOf", 100, []byte{0xAB, 0xCD}, []byte{0x01}))

	result, ok, err := s.GetCallResult(ctx, testAddr, "balanceOf", 100, []byte{0xAB, 0xCD})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{0x01}, result)
}

func TestStore_CallResult_DistinctBlockNumbersDoNotCollide(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.StoreCallResult(ctx, testAddr, "balanceOf", 100, nil, []byte{0x01}))
	require.NoError(t, s.StoreCallResult(ctx, testAddr, "balanceOf", 200, nil, []byte{0x02}))

	r1, ok, err := s.GetCallResult(ctx, testAddr, "balanceOf", 100, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{0x01}, r1)

	r2, ok, err := s.GetCallResult(ctx, testAddr, "balanceOf", 200, nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{0x02}, r2)
}
