package indexer

import "time"

// state is the tagged union of the three lifecycle states (spec §4.I,
// Design Note "model the three states as a tagged variant with
// state-specific fields rather than nullable fields on a single record").
type state interface {
	isState()
}

// initialState is the state before Watch/IndexToBlock is first called.
type initialState struct{}

func (initialState) isState() {}

// runningState carries the fields only meaningful while polling: whether
// the target tracks the chain head or a fixed height, the scheduled tick
// timer, and — for IndexToBlock — the channel its completion resolves on.
type runningState struct {
	targetLatest bool
	target       uint64 // meaningful only when !targetLatest

	timer *time.Timer

	// completion is nil when entered via Watch(); non-nil when entered via
	// IndexToBlock(), resolved exactly once when the engine reaches stopped.
	completion chan error
}

func (*runningState) isState() {}

// stoppedState is the terminal state. A fresh Indexer must be built to run
// again (spec §4.I: "running is re-entered only from stopped is
// disallowed").
type stoppedState struct{}

func (stoppedState) isState() {}
