// Package store defines the optional subscription-store contract: durable
// persistence of subscription cursors across restarts. Concrete storage
// lives in internal/store/sqlitestore; the core never depends on it directly.
package store

import "context"

// StoredSubscription is the durable projection of a subscription (spec
// §6.3). fetchedToBlock is deliberately absent: it is always recomputed as
// -1 on load, since it only tracks what has been placed on the in-memory
// queue, not what has been durably dispatched.
type StoredSubscription struct {
	ID                string
	ContractName      string
	ContractAddress   string
	FromBlock         uint64
	ToBlock           *uint64 // nil means "latest"
	IndexedToBlock    int64
	IndexedToLogIndex uint
}

// SubscriptionStore persists the full subscription set. Implementations must
// be safe for sequential access from a single logical task; no locking is
// required by the engine (spec §5).
type SubscriptionStore interface {
	// All loads every persisted subscription, used once at Watch()/init.
	All(ctx context.Context) ([]StoredSubscription, error)

	// Save completely overwrites the stored set with subscriptions.
	Save(ctx context.Context, subscriptions []StoredSubscription) error
}
