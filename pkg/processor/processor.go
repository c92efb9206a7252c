// Package processor is the event processor (component P): it drains the
// event queue in cross-subscription order, decodes and dispatches each
// event to user handlers, and reports the watermark every subscription has
// now been fully indexed through.
package processor

import (
	"context"

	"github.com/onchainwatch/logindexer/internal/logger"
	"github.com/onchainwatch/logindexer/pkg/dispatch"
	"github.com/onchainwatch/logindexer/pkg/queue"
	"github.com/onchainwatch/logindexer/pkg/subscription"
)

// Subscriptions is the live subscription map the processor dispatches
// against, keyed by subscription id. The processor only reads and mutates
// cursor fields on the Subscription values it is given; it never adds or
// removes entries itself (that is subscribeToContract's job, reached
// through HandlerContext.SubscribeToContract).
type Subscriptions map[string]*subscription.Subscription

// Result is processEvents' return value (spec §4.P "Return").
type Result struct {
	// IndexedToBlock/IndexedToLogIndex are the minimum cursor across every
	// subscription: the point up to which *every* subscription is known
	// fully indexed.
	IndexedToBlock      int64
	IndexedToLogIndex   uint
	HasNewSubscriptions bool
}

// Processor drains the queue and dispatches decoded events.
type Processor struct {
	emitter *dispatch.Emitter
	log     *logger.Logger
}

// New constructs a Processor dispatching through emitter.
func New(emitter *dispatch.Emitter, log *logger.Logger) *Processor {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Processor{emitter: emitter, log: log.WithComponent("processor")}
}

// ProcessEvents drains q in order, dispatching every event whose block
// number is at most targetBlock (spec §4.P "Contract"). readContract and
// subscribeToContract are threaded through to handlers for re-entrant use
// (spec §9 "handler re-entrancy").
func (p *Processor) ProcessEvents(
	ctx context.Context,
	q *queue.Queue,
	targetBlock uint64,
	subs Subscriptions,
	readContract dispatch.ReadContractFunc,
	subscribeToContract dispatch.SubscribeFunc,
) (Result, error) {
	hasNewSubscriptions := false

	for {
		ev, ok := q.Peek()
		if !ok || ev.BlockNumber > targetBlock {
			break
		}
		q.Take()

		sub, ok := subs[ev.SubscriptionID]
		if !ok {
			p.log.Debugw("dropping event for unknown subscription", "subscription", ev.SubscriptionID)
			continue
		}

		if alreadyDispatched(sub, ev.BlockNumber, ev.LogIndex) {
			continue
		}

		eventName, args, err := sub.ABI.DecodeEvent(ev.Log)
		if err != nil {
			p.log.Warnw("failed to decode event, skipping", "subscription", sub.ID, "block", ev.BlockNumber, "logIndex", ev.LogIndex, "error", err)
			continue
		}

		newSubCount := 0
		wrappedSubscribe := func(opts subscription.Options) (string, error) {
			id, err := subscribeToContract(opts)
			if err == nil {
				newSubCount++
			}
			return id, err
		}

		hc := dispatch.HandlerContext{
			Context: ctx,
			Event: dispatch.Event{
				Log:            ev.Log,
				ContractName:   sub.ContractName,
				EventName:      eventName,
				Args:           args,
				SubscriptionID: sub.ID,
			},
			ReadContract:        readContract,
			SubscribeToContract: wrappedSubscribe,
		}

		if err := p.emitter.Dispatch(hc); err != nil {
			return Result{}, err
		}

		sub.IndexedToBlock = int64(ev.BlockNumber)
		sub.IndexedToLogIndex = ev.LogIndex

		if newSubCount > 0 {
			hasNewSubscriptions = true
			break
		}
	}

	indexedToBlock, indexedToLogIndex := watermark(subs)
	return Result{
		IndexedToBlock:      indexedToBlock,
		IndexedToLogIndex:   indexedToLogIndex,
		HasNewSubscriptions: hasNewSubscriptions,
	}, nil
}

// alreadyDispatched reports whether (block, logIndex) is at or before the
// subscription's current cursor (spec §4.P step 2, the deduplication
// point).
func alreadyDispatched(sub *subscription.Subscription, block uint64, logIndex uint) bool {
	if int64(block) < sub.IndexedToBlock {
		return true
	}
	if int64(block) == sub.IndexedToBlock && logIndex <= sub.IndexedToLogIndex {
		return true
	}
	return false
}

// watermark returns the minimum (indexedToBlock, indexedToLogIndex) across
// every subscription (spec §4.P "Return").
func watermark(subs Subscriptions) (int64, uint) {
	first := true
	var block int64
	var logIndex uint

	for _, sub := range subs {
		if first || sub.IndexedToBlock < block || (sub.IndexedToBlock == block && sub.IndexedToLogIndex < logIndex) {
			block = sub.IndexedToBlock
			logIndex = sub.IndexedToLogIndex
			first = false
		}
	}
	return block, logIndex
}
