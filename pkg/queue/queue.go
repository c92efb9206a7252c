// Package queue implements the cross-subscription event ordering queue: a
// min-heap of pending events keyed by (blockNumber, logIndex, subscriptionID)
// so that draining the queue in order reproduces total on-chain order across
// subscriptions, independent of the order their logs were fetched in.
package queue

import (
	"container/heap"

	"github.com/ethereum/go-ethereum/core/types"
)

// PendingEvent is an envelope placed on the queue by the fetch planner.
// Decoding against the ABI is deferred until the processor drains it, so the
// planner never needs the ABI codec to be able to push events.
type PendingEvent struct {
	SubscriptionID string
	ContractName   string
	BlockNumber    uint64
	LogIndex       uint
	Log            types.Log
}

// Less orders two events by (blockNumber, logIndex, subscriptionId), the
// ordering the engine must preserve across the whole run.
func Less(a, b PendingEvent) bool {
	if a.BlockNumber != b.BlockNumber {
		return a.BlockNumber < b.BlockNumber
	}
	if a.LogIndex != b.LogIndex {
		return a.LogIndex < b.LogIndex
	}
	return a.SubscriptionID < b.SubscriptionID
}

// Queue is a priority queue of PendingEvent ordered per Less. It does not
// deduplicate; the processor is responsible for skipping already-indexed
// events when two overlapping fetches (cache + RPC) both push the same log.
type Queue struct {
	items minHeap
}

// New returns an empty queue.
func New() *Queue {
	q := &Queue{items: make(minHeap, 0)}
	heap.Init(&q.items)
	return q
}

// Push inserts an event, O(log n).
func (q *Queue) Push(e PendingEvent) {
	heap.Push(&q.items, e)
}

// Peek returns the smallest event without removing it. ok is false on an
// empty queue.
func (q *Queue) Peek() (e PendingEvent, ok bool) {
	if len(q.items) == 0 {
		return PendingEvent{}, false
	}
	return q.items[0], true
}

// Take removes and returns the smallest event. ok is false on an empty queue.
func (q *Queue) Take() (e PendingEvent, ok bool) {
	if len(q.items) == 0 {
		return PendingEvent{}, false
	}
	return heap.Pop(&q.items).(PendingEvent), true
}

// Len returns the current number of pending events.
func (q *Queue) Len() int {
	return len(q.items)
}

type minHeap []PendingEvent

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return Less(h[i], h[j]) }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(PendingEvent)) }


func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
