// Package sqlitestore is a SQLite-backed implementation of
// pkg/store.SubscriptionStore, adapted from the retrieved sync-manager's
// single-checkpoint-row design generalized to one row per subscription.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/russross/meddler"

	"github.com/onchainwatch/logindexer/internal/logger"
	"github.com/onchainwatch/logindexer/pkg/store"
)

var _ store.SubscriptionStore = (*Store)(nil)

// noToBlock is the sentinel ToBlock value meaning "latest" (StoredSubscription.ToBlock == nil).
const noToBlock = -1

// dbSubscription mirrors a subscriptions row. ToBlock uses noToBlock rather
// than a nullable column, mirroring the -1 "unset" convention already used
// by IndexedToBlock.
type dbSubscription struct {
	ID                string `meddler:"id,pk"`
	ContractName      string `meddler:"contract_name"`
	ContractAddress   string `meddler:"contract_address"`
	FromBlock         uint64 `meddler:"from_block"`
	ToBlock           int64  `meddler:"to_block"`
	IndexedToBlock    int64  `meddler:"indexed_to_block"`
	IndexedToLogIndex uint   `meddler:"indexed_to_log_index"`
}

// Store is a SQLite-backed store.SubscriptionStore.
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

// New wraps an already-migrated *sql.DB as a store.SubscriptionStore.
func New(db *sql.DB, log *logger.Logger) *Store {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Store{db: db, log: log.WithComponent("subscription-store")}
}

// All loads every persisted subscription.
func (s *Store) All(ctx context.Context) ([]store.StoredSubscription, error) {
	const q = `SELECT * FROM subscriptions ORDER BY id ASC`
	var rows []*dbSubscription
	if err := meddler.QueryAll(s.db, &rows, q); err != nil {
		return nil, fmt.Errorf("sqlitestore: query subscriptions: %w", err)
	}

	subs := make([]store.StoredSubscription, len(rows))
	for i, r := range rows {
		subs[i] = r.toStored()
	}
	return subs, nil
}

// Save completely overwrites the stored set with subscriptions.
func (s *Store) Save(ctx context.Context, subscriptions []store.StoredSubscription) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitestore: begin tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			s.log.Errorf("rollback failed: %v", rbErr)
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM subscriptions`); err != nil {
		return fmt.Errorf("sqlitestore: clear subscriptions: %w", err)
	}

	for _, sub := range subscriptions {
		row := newDBSubscription(sub)
		if err := meddler.Insert(tx, "subscriptions", row); err != nil {
			return fmt.Errorf("sqlitestore: insert subscription %s: %w", sub.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlitestore: commit: %w", err)
	}

	s.log.Debugf("saved %d subscriptions", len(subscriptions))
	return nil
}

func newDBSubscription(sub store.StoredSubscription) *dbSubscription {
	toBlock := int64(noToBlock)
	if sub.ToBlock != nil {
		toBlock = int64(*sub.ToBlock)
	}
	return &dbSubscription{
		ID:                sub.ID,
		ContractName:      sub.ContractName,
		ContractAddress:   sub.ContractAddress,
		FromBlock:         sub.FromBlock,
		ToBlock:           toBlock,
		IndexedToBlock:    sub.IndexedToBlock,
		IndexedToLogIndex: sub.IndexedToLogIndex,
	}
}

func (r *dbSubscription) toStored() store.StoredSubscription {
	sub := store.StoredSubscription{
		ID:                r.ID,
		ContractName:      r.ContractName,
		ContractAddress:   r.ContractAddress,
		FromBlock:         r.FromBlock,
		IndexedToBlock:    r.IndexedToBlock,
		IndexedToLogIndex: r.IndexedToLogIndex,
	}
	if r.ToBlock != noToBlock {
		to := uint64(r.ToBlock)
		sub.ToBlock = &to
	}
	return sub
}
