// Package fetcher is the fetch planner (component F): per subscription, it
// decides which block ranges come from cache vs RPC and adaptively bisects
// on a range-too-wide refusal, pushing decoded-later event envelopes onto
// the shared queue.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/onchainwatch/logindexer/internal/logger"
	"github.com/onchainwatch/logindexer/pkg/cache"
	"github.com/onchainwatch/logindexer/pkg/queue"
	pkgrpc "github.com/onchainwatch/logindexer/pkg/rpc"
	"github.com/onchainwatch/logindexer/pkg/subscription"
)

// PushFunc enqueues one pending event (spec §4.F "pushEvent sink").
type PushFunc func(queue.PendingEvent)

// Planner fills the event queue for one subscription at a time. It never
// mutates the subscription; the caller advances fetchedToBlock only after
// every subscription's plan for this tick has returned successfully (spec
// §4.F "ordering guarantee").
type Planner struct {
	rpc   pkgrpc.EthClient
	cache cache.Cache // nil is a legal "always miss" configuration
	log   *logger.Logger
}

// New constructs a Planner. c may be nil.
func New(client pkgrpc.EthClient, c cache.Cache, log *logger.Logger) *Planner {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Planner{rpc: client, cache: c, log: log.WithComponent("fetcher")}
}

// PlanSubscription fetches every event in
// [sub.fetchedToBlock+1, min(targetBlock, sub.toBlock)] for one subscription
// and pushes it via push (spec §4.F steps 1-4).
func (p *Planner) PlanSubscription(ctx context.Context, sub *subscription.Subscription, targetBlock uint64, push PushFunc) error {
	f, t, ok := sub.PlanRange(targetBlock)
	if !ok {
		return nil
	}

	topics := sub.ABI.Topic0Hashes()
	return p.fetchRange(ctx, sub, topics, f, t, push)
}

// fetchRange is the cache-through read for [f, t] (spec §4.F "cache-through
// read"): a cache miss falls through to RPC and stores the exact requested
// range; a partial hit pushes the covered logs and recurses on the gaps
// either side of it.
func (p *Planner) fetchRange(ctx context.Context, sub *subscription.Subscription, topics []common.Hash, f, t uint64, push PushFunc) error {
	if p.cache == nil {
		return p.fetchBisected(ctx, sub, topics, f, t, push)
	}

	result, err := p.cache.GetLogs(ctx, cache.LogRange{Address: sub.ContractAddress, FromBlock: f, ToBlock: t})
	if err != nil {
		return fmt.Errorf("fetcher: %s: cache lookup [%d,%d]: %w", sub.ID, f, t, err)
	}

	if result.Covered.Empty() {
		return p.fetchAndCache(ctx, sub, topics, f, t, push)
	}

	covF, covT := result.Covered.FromBlock, result.Covered.ToBlock
	p.pushFilteredLogs(sub, topics, result.Logs, push)

	if f < covF {
		if err := p.fetchRange(ctx, sub, topics, f, covF-1, push); err != nil {
			return err
		}
	}
	if covT < t {
		if err := p.fetchRange(ctx, sub, topics, covT+1, t, push); err != nil {
			return err
		}
	}
	return nil
}

// fetchAndCache performs a single cache-through RPC attempt for [f, t]. On
// success the whole range is stored as one cache entry. On a range-too-wide
// refusal it bisects and re-enters fetchRange for each half independently,
// so each half that eventually succeeds is cached under its own leaf range
// rather than the original, too-wide one (spec §8 scenario 2: a miss that
// bisects produces one cache insert per surviving leaf, not one for the
// whole original range).
func (p *Planner) fetchAndCache(ctx context.Context, sub *subscription.Subscription, topics []common.Hash, f, t uint64, push PushFunc) error {
	logs, err := p.fetchOneRange(ctx, sub, topics, f, t, push)
	if err == nil {
		if err := p.cache.StoreLogs(ctx, cache.LogRange{Address: sub.ContractAddress, FromBlock: f, ToBlock: t}, logs); err != nil {
			return fmt.Errorf("fetcher: %s: cache store [%d,%d]: %w", sub.ID, f, t, err)
		}
		return nil
	}

	var rte *pkgrpc.RangeTooWideError
	if !errors.As(err, &rte) {
		return err
	}
	if f == t {
		return fmt.Errorf("fetcher: %s: getLogs [%d,%d]: range too wide at a single block: %w", sub.ID, f, t, err)
	}

	p.log.Debugw("range too wide, splitting", "subscription", sub.ID, "from", f, "to", t)

	leftTo, rightFrom := splitRange(f, t, rte)
	if err := p.fetchRange(ctx, sub, topics, f, leftTo, push); err != nil {
		return err
	}
	return p.fetchRange(ctx, sub, topics, rightFrom, t, push)
}

// fetchBisected fetches [f, t] directly from the chain client with no cache
// involved, bisecting on a range-too-wide refusal (spec §4.F "adaptive
// range splitting") until each leaf succeeds or a different error occurs.
func (p *Planner) fetchBisected(ctx context.Context, sub *subscription.Subscription, topics []common.Hash, f, t uint64, push PushFunc) error {
	_, err := p.fetchOneRange(ctx, sub, topics, f, t, push)
	if err == nil {
		return nil
	}

	var rte *pkgrpc.RangeTooWideError
	if !errors.As(err, &rte) {
		return err
	}
	if f == t {
		return fmt.Errorf("fetcher: %s: getLogs [%d,%d]: range too wide at a single block: %w", sub.ID, f, t, err)
	}

	p.log.Debugw("range too wide, splitting", "subscription", sub.ID, "from", f, "to", t)

	leftTo, rightFrom := splitRange(f, t, rte)
	if err := p.fetchBisected(ctx, sub, topics, f, leftTo, push); err != nil {
		return err
	}
	return p.fetchBisected(ctx, sub, topics, rightFrom, t, push)
}

// fetchOneRange makes exactly one GetLogs call for [f, t], pushing filtered
// logs on success. The caller is responsible for classifying and handling a
// *pkgrpc.RangeTooWideError.
func (p *Planner) fetchOneRange(ctx context.Context, sub *subscription.Subscription, topics []common.Hash, f, t uint64, push PushFunc) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{sub.ContractAddress},
		Topics:    [][]common.Hash{topics},
		FromBlock: new(big.Int).SetUint64(f),
		ToBlock:   new(big.Int).SetUint64(t),
	}

	logs, err := p.rpc.GetLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fetcher: %s: getLogs [%d,%d]: %w", sub.ID, f, t, err)
	}
	p.pushFilteredLogs(sub, topics, logs, push)
	return logs, nil
}

// splitRange picks the boundary between the left and right recursive
// fetches: the provider's suggested range when it offered one usable within
// [f, t], else the plain midpoint (spec §4.F "midpoint m = (f+t)/2").
func splitRange(f, t uint64, rte *pkgrpc.RangeTooWideError) (leftTo, rightFrom uint64) {
	if rte.HasSuggestion && rte.SuggestedFrom <= rte.SuggestedTo && rte.SuggestedFrom >= f && rte.SuggestedTo < t {
		return rte.SuggestedTo, rte.SuggestedTo + 1
	}
	m := f + (t-f)/2
	return m, m + 1
}

// pushFilteredLogs pushes each log whose topic0 is one of the subscription's
// declared event topics, deferring full decode to the processor (spec §4.F
// step 4, "otherwise the planner filters received logs against the known
// topic-0 set").
func (p *Planner) pushFilteredLogs(sub *subscription.Subscription, topics []common.Hash, logs []types.Log, push PushFunc) {
	allowed := make(map[common.Hash]struct{}, len(topics))
	for _, h := range topics {
		allowed[h] = struct{}{}
	}

	for _, l := range logs {
		if len(l.Topics) == 0 {
			continue
		}
		if _, ok := allowed[l.Topics[0]]; !ok {
			continue
		}
		push(queue.PendingEvent{
			SubscriptionID: sub.ID,
			ContractName:   sub.ContractName,
			BlockNumber:    l.BlockNumber,
			LogIndex:       l.Index,
			Log:            l,
		})
	}
}
