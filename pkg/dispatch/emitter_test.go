package dispatch

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitter_GenericHandlerInvokedForEveryEvent(t *testing.T) {
	e := NewEmitter()
	var seen []string
	e.OnEvent(func(hc HandlerContext) error {
		seen = append(seen, hc.Event.EventName)
		return nil
	})

	require.NoError(t, e.Dispatch(HandlerContext{Event: Event{ContractName: "erc20", EventName: "Transfer"}}))
	require.NoError(t, e.Dispatch(HandlerContext{Event: Event{ContractName: "erc20", EventName: "Approval"}}))

	assert.Equal(t, []string{"Transfer", "Approval"}, seen)
}

func TestEmitter_KeyedHandlerOnlyForMatchingKey(t *testing.T) {
	e := NewEmitter()
	var transferCount, approvalCount int
	e.On("erc20", "Transfer", func(hc HandlerContext) error {
		transferCount++
		return nil
	})
	e.On("erc20", "Approval", func(hc HandlerContext) error {
		approvalCount++
		return nil
	})

	require.NoError(t, e.Dispatch(HandlerContext{Event: Event{ContractName: "erc20", EventName: "Transfer"}}))
	require.NoError(t, e.Dispatch(HandlerContext{Event: Event{ContractName: "erc20", EventName: "Transfer"}}))

	assert.Equal(t, 2, transferCount)
	assert.Equal(t, 0, approvalCount)
}

func TestEmitter_KeyMatchingIsCaseInsensitive(t *testing.T) {
	e := NewEmitter()
	called := false
	e.On("ERC20", "TRANSFER", func(hc HandlerContext) error {
		called = true
		return nil
	})

	require.NoError(t, e.Dispatch(HandlerContext{Event: Event{ContractName: "erc20", EventName: "Transfer"}}))
	assert.True(t, called)
}

func TestEmitter_GenericHandlerErrorStopsBeforeKeyedHandlers(t *testing.T) {
	e := NewEmitter()
	keyedCalled := false
	e.OnEvent(func(hc HandlerContext) error { return errors.New("boom") })
	e.On("erc20", "Transfer", func(hc HandlerContext) error {
		keyedCalled = true
		return nil
	})

	err := e.Dispatch(HandlerContext{Event: Event{ContractName: "erc20", EventName: "Transfer"}})
	require.Error(t, err)
	assert.False(t, keyedCalled)
}

func TestEmitter_KeyedHandlerErrorPropagates(t *testing.T) {
	e := NewEmitter()
	e.On("erc20", "Transfer", func(hc HandlerContext) error { return errors.New("handler failed") })

	err := e.Dispatch(HandlerContext{Event: Event{ContractName: "erc20", EventName: "Transfer"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler failed")
}

func TestEmitter_ObserveCalledOnceWithOutcome(t *testing.T) {
	e := NewEmitter()
	e.On("erc20", "Transfer", func(hc HandlerContext) error { return errors.New("boom") })

	var gotContract, gotEvent string
	var gotErr error
	var calls int
	e.Observe = func(contractName, eventName string, duration time.Duration, err error) {
		calls++
		gotContract, gotEvent, gotErr = contractName, eventName, err
		assert.GreaterOrEqual(t, duration, time.Duration(0))
	}

	err := e.Dispatch(HandlerContext{Event: Event{ContractName: "erc20", EventName: "Transfer"}})
	require.Error(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, "erc20", gotContract)
	assert.Equal(t, "Transfer", gotEvent)
	assert.Error(t, gotErr)
}

func TestEmitter_ObserveNotSetIsNoOp(t *testing.T) {
	e := NewEmitter()
	e.On("erc20", "Transfer", func(hc HandlerContext) error { return nil })
	require.NoError(t, e.Dispatch(HandlerContext{Event: Event{ContractName: "erc20", EventName: "Transfer"}}))
}
