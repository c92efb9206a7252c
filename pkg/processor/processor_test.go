package processor

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onchainwatch/logindexer/pkg/abi"
	"github.com/onchainwatch/logindexer/pkg/dispatch"
	"github.com/onchainwatch/logindexer/pkg/queue"
	"github.com/onchainwatch/logindexer/pkg/subscription"
)

var testAddr = common.HexToAddress("0x0000000000000000000000000000000000001234")

func testSchema(t *testing.T) *abi.ContractSchema {
	t.Helper()
	schema, err := abi.NewContractSchema("erc20", []string{"Transfer(address indexed from, address indexed to, uint256 value)"}, nil)
	require.NoError(t, err)
	return schema
}

func testSub(t *testing.T, id string, fromBlock uint64) *subscription.Subscription {
	return subscription.New(id, "erc20", testAddr, testSchema(t), fromBlock, subscription.Latest())
}

func transferLog(blockNumber uint64, logIndex uint) types.Log {
	hash := common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")
	return types.Log{
		Address:     testAddr,
		Topics:      []common.Hash{hash, common.Hash{}, common.Hash{}},
		Data:        make([]byte, 32),
		BlockNumber: blockNumber,
		Index:       logIndex,
	}
}

func noopRead(ctx context.Context, contractName, functionName string, address common.Address, blockNumber uint64, args ...interface{}) (abi.DecodedArgs, error) {
	return nil, nil
}

func TestProcessor_DispatchesEventsInQueueOrderAndAdvancesCursors(t *testing.T) {
	sub := testSub(t, "sub-1", 0)
	subs := Subscriptions{"sub-1": sub}

	q := queue.New()
	q.Push(queue.PendingEvent{SubscriptionID: "sub-1", BlockNumber: 10, LogIndex: 0, Log: transferLog(10, 0)})
	q.Push(queue.PendingEvent{SubscriptionID: "sub-1", BlockNumber: 10, LogIndex: 1, Log: transferLog(10, 1)})

	var dispatched []uint
	emitter := dispatch.NewEmitter()
	emitter.OnEvent(func(hc dispatch.HandlerContext) error {
		dispatched = append(dispatched, hc.Event.Log.Index)
		return nil
	})

	p := New(emitter, nil)
	noSubscribe := func(subscription.Options) (string, error) { return "", nil }

	result, err := p.ProcessEvents(t.Context(), q, 10, subs, noopRead, noSubscribe)
	require.NoError(t, err)
	assert.Equal(t, []uint{0, 1}, dispatched)
	assert.Equal(t, int64(10), result.IndexedToBlock)
	assert.Equal(t, uint(1), result.IndexedToLogIndex)
	assert.False(t, result.HasNewSubscriptions)
	assert.Equal(t, int64(10), sub.IndexedToBlock)
	assert.Equal(t, uint(1), sub.IndexedToLogIndex)
	assert.Equal(t, 0, q.Len())
}

func TestProcessor_SkipsEventsAboveTargetBlock(t *testing.T) {
	sub := testSub(t, "sub-1", 0)
	subs := Subscriptions{"sub-1": sub}

	q := queue.New()
	q.Push(queue.PendingEvent{SubscriptionID: "sub-1", BlockNumber: 5, LogIndex: 0, Log: transferLog(5, 0)})
	q.Push(queue.PendingEvent{SubscriptionID: "sub-1", BlockNumber: 20, LogIndex: 0, Log: transferLog(20, 0)})

	emitter := dispatch.NewEmitter()
	p := New(emitter, nil)
	noSubscribe := func(subscription.Options) (string, error) { return "", nil }

	result, err := p.ProcessEvents(t.Context(), q, 10, subs, noopRead, noSubscribe)
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.IndexedToBlock)
	assert.Equal(t, 1, q.Len())
}

func TestProcessor_DropsEventForUnknownSubscription(t *testing.T) {
	subs := Subscriptions{}
	q := queue.New()
	q.Push(queue.PendingEvent{SubscriptionID: "gone", BlockNumber: 1, LogIndex: 0, Log: transferLog(1, 0)})

	called := false
	emitter := dispatch.NewEmitter()
	emitter.OnEvent(func(hc dispatch.HandlerContext) error { called = true; return nil })
	p := New(emitter, nil)
	noSubscribe := func(subscription.Options) (string, error) { return "", nil }

	_, err := p.ProcessEvents(t.Context(), q, 10, subs, noopRead, noSubscribe)
	require.NoError(t, err)
	assert.False(t, called)
}

func TestProcessor_SkipsAlreadyDispatchedEvent(t *testing.T) {
	sub := testSub(t, "sub-1", 0)
	sub.IndexedToBlock = 10
	sub.IndexedToLogIndex = 2
	subs := Subscriptions{"sub-1": sub}

	q := queue.New()
	q.Push(queue.PendingEvent{SubscriptionID: "sub-1", BlockNumber: 10, LogIndex: 1, Log: transferLog(10, 1)})
	q.Push(queue.PendingEvent{SubscriptionID: "sub-1", BlockNumber: 10, LogIndex: 2, Log: transferLog(10, 2)})
	q.Push(queue.PendingEvent{SubscriptionID: "sub-1", BlockNumber: 11, LogIndex: 0, Log: transferLog(11, 0)})

	var dispatched int
	emitter := dispatch.NewEmitter()
	emitter.OnEvent(func(hc dispatch.HandlerContext) error { dispatched++; return nil })
	p := New(emitter, nil)
	noSubscribe := func(subscription.Options) (string, error) { return "", nil }

	result, err := p.ProcessEvents(t.Context(), q, 20, subs, noopRead, noSubscribe)
	require.NoError(t, err)
	assert.Equal(t, 1, dispatched)
	assert.Equal(t, int64(11), result.IndexedToBlock)
}

func TestProcessor_DecodeFailureLogsAndSkipsWithoutAborting(t *testing.T) {
	sub := testSub(t, "sub-1", 0)
	subs := Subscriptions{"sub-1": sub}

	badLog := transferLog(10, 0)
	badLog.Topics = []common.Hash{common.HexToHash("0xdeadbeef")}

	q := queue.New()
	q.Push(queue.PendingEvent{SubscriptionID: "sub-1", BlockNumber: 10, LogIndex: 0, Log: badLog})
	q.Push(queue.PendingEvent{SubscriptionID: "sub-1", BlockNumber: 11, LogIndex: 0, Log: transferLog(11, 0)})

	var dispatched int
	emitter := dispatch.NewEmitter()
	emitter.OnEvent(func(hc dispatch.HandlerContext) error { dispatched++; return nil })
	p := New(emitter, nil)
	noSubscribe := func(subscription.Options) (string, error) { return "", nil }

	result, err := p.ProcessEvents(t.Context(), q, 20, subs, noopRead, noSubscribe)
	require.NoError(t, err)
	assert.Equal(t, 1, dispatched)
	assert.Equal(t, int64(11), result.IndexedToBlock)
}

func TestProcessor_StopsDrainingWhenNewSubscriptionAdded(t *testing.T) {
	sub := testSub(t, "sub-1", 0)
	subs := Subscriptions{"sub-1": sub}

	q := queue.New()
	q.Push(queue.PendingEvent{SubscriptionID: "sub-1", BlockNumber: 10, LogIndex: 0, Log: transferLog(10, 0)})
	q.Push(queue.PendingEvent{SubscriptionID: "sub-1", BlockNumber: 11, LogIndex: 0, Log: transferLog(11, 0)})

	emitter := dispatch.NewEmitter()
	emitter.OnEvent(func(hc dispatch.HandlerContext) error {
		_, err := hc.SubscribeToContract(subscription.Options{ID: "sub-2"})
		return err
	})
	p := New(emitter, nil)
	subscribeOK := func(subscription.Options) (string, error) { return "sub-2", nil }

	result, err := p.ProcessEvents(t.Context(), q, 20, subs, noopRead, subscribeOK)
	require.NoError(t, err)
	assert.True(t, result.HasNewSubscriptions)
	assert.Equal(t, 1, q.Len())
}

func TestProcessor_HandlerErrorAbortsDrainAndPropagates(t *testing.T) {
	sub := testSub(t, "sub-1", 0)
	subs := Subscriptions{"sub-1": sub}

	q := queue.New()
	q.Push(queue.PendingEvent{SubscriptionID: "sub-1", BlockNumber: 10, LogIndex: 0, Log: transferLog(10, 0)})

	emitter := dispatch.NewEmitter()
	emitter.OnEvent(func(hc dispatch.HandlerContext) error { return errors.New("handler exploded") })
	p := New(emitter, nil)
	noSubscribe := func(subscription.Options) (string, error) { return "", nil }

	_, err := p.ProcessEvents(t.Context(), q, 10, subs, noopRead, noSubscribe)
	require.Error(t, err)
}

func TestProcessor_WatermarkIsMinimumAcrossSubscriptions(t *testing.T) {
	subA := testSub(t, "sub-a", 0)
	subA.IndexedToBlock = 20
	subA.IndexedToLogIndex = 3
	subB := testSub(t, "sub-b", 0)
	subB.IndexedToBlock = 5
	subB.IndexedToLogIndex = 1
	subs := Subscriptions{"sub-a": subA, "sub-b": subB}

	q := queue.New()
	emitter := dispatch.NewEmitter()
	p := New(emitter, nil)
	noSubscribe := func(subscription.Options) (string, error) { return "", nil }

	result, err := p.ProcessEvents(t.Context(), q, 100, subs, noopRead, noSubscribe)
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.IndexedToBlock)
	assert.Equal(t, uint(1), result.IndexedToLogIndex)
}
