// Package dispatch is the keyed event dispatch pipeline handlers register
// against: a generic "event" signal plus a "{contractName}:{eventName}"
// keyed signal, grounded on the case-insensitive string registry pattern
// used elsewhere in the retrieved pack for indexer-type factories.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/onchainwatch/logindexer/pkg/abi"
	"github.com/onchainwatch/logindexer/pkg/subscription"
)

// Event is the decoded event handed to user handlers (spec §3).
type Event struct {
	Log            types.Log
	ContractName   string
	EventName      string
	Args           abi.DecodedArgs
	SubscriptionID string
}

// ReadContractFunc lets a handler perform a cache-through contract read
// re-entrantly (spec §4.C / §9 "handler re-entrancy").
type ReadContractFunc func(ctx context.Context, contractName, functionName string, address common.Address, blockNumber uint64, args ...interface{}) (abi.DecodedArgs, error)

// SubscribeFunc lets a handler add a new subscription re-entrantly (spec §9
// "handler re-entrancy"), returning the resulting subscription id.
type SubscribeFunc func(opts subscription.Options) (string, error)

// HandlerContext is passed to every invoked handler (spec §4.P step 4).
type HandlerContext struct {
	Context             context.Context
	Event               Event
	ReadContract        ReadContractFunc
	SubscribeToContract SubscribeFunc
}

// Handler processes one dispatched event. An error bubbles out of the
// processor and aborts the tick (spec §7 "handler errors").
type Handler func(HandlerContext) error

// Emitter is the dynamic handler registry: a generic "event" list plus a
// "{contractName}:{eventName}" keyed map, matched case-insensitively on the
// key the way the retrieved pack's factory registries match type names.
type Emitter struct {
	mu      sync.RWMutex
	generic []Handler
	keyed   map[string][]Handler

	// Observe, when set, is called once per Dispatch with the total time
	// spent in handlers and the error (if any) that stopped dispatch early.
	// Left nil by default so callers that don't care about metrics pay
	// nothing for it.
	Observe func(contractName, eventName string, duration time.Duration, err error)
}

// NewEmitter constructs an empty Emitter.
func NewEmitter() *Emitter {
	return &Emitter{keyed: make(map[string][]Handler)}
}

// Key formats the keyed-signal name for a contract/event pair.
func Key(contractName, eventName string) string {
	return strings.ToLower(contractName) + ":" + strings.ToLower(eventName)
}

// OnEvent registers a handler for the generic "event" signal, invoked for
// every dispatched event regardless of contract/event name.
func (e *Emitter) OnEvent(h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.generic = append(e.generic, h)
}

// On registers a handler for the keyed "{contractName}:{eventName}" signal.
func (e *Emitter) On(contractName, eventName string, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := Key(contractName, eventName)
	e.keyed[key] = append(e.keyed[key], h)
}

// Dispatch invokes the generic handlers then the keyed handlers, serially,
// in registration order, stopping and returning on the first error (spec
// §4.P step 4, §5 "handlers are awaited serially").
func (e *Emitter) Dispatch(hc HandlerContext) error {
	start := time.Now()
	err := e.dispatch(hc)
	if e.Observe != nil {
		e.Observe(hc.Event.ContractName, hc.Event.EventName, time.Since(start), err)
	}
	return err
}

func (e *Emitter) dispatch(hc HandlerContext) error {
	e.mu.RLock()
	generic := append([]Handler(nil), e.generic...)
	keyed := append([]Handler(nil), e.keyed[Key(hc.Event.ContractName, hc.Event.EventName)]...)
	e.mu.RUnlock()

	for _, h := range generic {
		if err := h(hc); err != nil {
			return fmt.Errorf("dispatch: event handler: %w", err)
		}
	}
	for _, h := range keyed {
		if err := h(hc); err != nil {
			return fmt.Errorf("dispatch: %s handler: %w", Key(hc.Event.ContractName, hc.Event.EventName), err)
		}
	}
	return nil
}
