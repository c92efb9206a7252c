package indexer

import "errors"

// Sentinel configuration errors (spec §7 "Configuration errors"), returned
// synchronously at the call site rather than through the error signal.
var (
	// ErrUnknownContract is returned by SubscribeToContract/ReadContract when
	// the contract name has no registered ABI schema.
	ErrUnknownContract = errors.New("indexer: unknown contract name")

	// ErrNotRunning is returned by Stop when the engine is not running.
	ErrNotRunning = errors.New("indexer: not running")

	// ErrAlreadyRunning is returned by Watch/IndexToBlock when the engine is
	// not in the initial state (spec §4.I: "running is re-entered only from
	// stopped is disallowed").
	ErrAlreadyRunning = errors.New("indexer: already running")
)
