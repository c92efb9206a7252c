// Package indexer is the engine core (component I): the poll-loop state
// machine that orchestrates the fetch planner, event queue, and event
// processor, and exposes the public subscribe/read/watch surface.
package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/onchainwatch/logindexer/internal/logger"
	"github.com/onchainwatch/logindexer/pkg/abi"
	pkgcache "github.com/onchainwatch/logindexer/pkg/cache"
	"github.com/onchainwatch/logindexer/pkg/contractreader"
	"github.com/onchainwatch/logindexer/pkg/dispatch"
	"github.com/onchainwatch/logindexer/pkg/fetcher"
	"github.com/onchainwatch/logindexer/pkg/processor"
	"github.com/onchainwatch/logindexer/pkg/queue"
	pkgrpc "github.com/onchainwatch/logindexer/pkg/rpc"
	pkgstore "github.com/onchainwatch/logindexer/pkg/store"
	"github.com/onchainwatch/logindexer/pkg/subscription"
)

// Completion resolves when an IndexToBlock run reaches stopped: nil on a
// clean catch-up, an error when a tick failed and forced a stop.
type Completion <-chan error

// Deps are the collaborators the engine orchestrates. RPC and Registry are
// required; Cache, Store, and Emitter default to no-ops when nil.
type Deps struct {
	RPC      pkgrpc.EthClient
	Cache    pkgcache.Cache
	Store    pkgstore.SubscriptionStore
	Registry *abi.Registry
	Emitter  *dispatch.Emitter
	Logger   *logger.Logger
}

// command is one closure the inbox funnels into the loop goroutine, so the
// subscription map and state are only ever touched by that one goroutine
// (spec §5 "no locks required").
type command struct {
	fn   func()
	done chan struct{}
}

// Indexer is the engine. Construct with New; it starts its loop goroutine
// immediately in the initial state.
type Indexer struct {
	cfg      Config
	rpc      pkgrpc.EthClient
	store    pkgstore.SubscriptionStore
	registry *abi.Registry
	emitter  *dispatch.Emitter
	log      *logger.Logger

	planner   *fetcher.Planner
	processor *processor.Processor
	reader    *contractreader.Reader

	signals Signals

	inbox chan command

	// Everything below is owned solely by the loop goroutine (run), touched
	// only between suspension points, per spec §5.
	subs   map[string]*subscription.Subscription
	queue  *queue.Queue
	state  state
	runCtx context.Context
}

// New constructs an Indexer and starts its loop goroutine. The engine begins
// in the initial state; call Watch or IndexToBlock to start polling.
func New(cfg Config, deps Deps, signals Signals) *Indexer {
	cfg.applyDefaults()

	log := deps.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	log = log.WithComponent("indexer")

	emitter := deps.Emitter
	if emitter == nil {
		emitter = dispatch.NewEmitter()
	}

	idx := &Indexer{
		cfg:       cfg,
		rpc:       deps.RPC,
		store:     deps.Store,
		registry:  deps.Registry,
		emitter:   emitter,
		log:       log,
		planner:   fetcher.New(deps.RPC, deps.Cache, log),
		processor: processor.New(emitter, log),
		reader:    contractreader.New(deps.RPC, deps.Cache, log),
		signals:   signals,
		inbox:     make(chan command),
		subs:      make(map[string]*subscription.Subscription),
		queue:     queue.New(),
		state:     initialState{},
		runCtx:    context.Background(),
	}

	go idx.run()
	return idx
}

// exec runs fn on the loop goroutine and blocks until it completes. Only
// ever called from outside the loop goroutine (public methods); code
// running inside a tick or a dispatched handler must call the unexported
// doXxx helpers directly instead, or it would deadlock waiting on itself.
func (idx *Indexer) exec(fn func()) {
	done := make(chan struct{})
	idx.inbox <- command{fn: fn, done: done}
	<-done
}

// run is the single loop goroutine: it serializes commands from the inbox
// with scheduled ticks. Nothing else ever touches idx.subs/idx.queue/idx.state.
func (idx *Indexer) run() {
	for {
		var tickC <-chan time.Time
		if rs, ok := idx.state.(*runningState); ok && rs.timer != nil {
			tickC = rs.timer.C
		}

		select {
		case cmd := <-idx.inbox:
			cmd.fn()
			close(cmd.done)
		case <-tickC:
			idx.onTick()
		}
	}
}

// Watch starts polling toward the chain head indefinitely (spec §4.I
// "watch()").
func (idx *Indexer) Watch(ctx context.Context) error {
	var resultErr error
	idx.exec(func() {
		if _, ok := idx.state.(initialState); !ok {
			resultErr = ErrAlreadyRunning
			return
		}
		if err := idx.loadSubscriptionsFromStore(ctx); err != nil {
			resultErr = err
			return
		}
		idx.runCtx = ctx
		idx.state = &runningState{targetLatest: true, timer: time.NewTimer(0)}
		if idx.signals.OnStarted != nil {
			idx.signals.OnStarted()
		}
	})
	return resultErr
}

// IndexToBlock polls until targetBlock is fully indexed, then stops (spec
// §4.I "indexToBlock(target)"). A subscription.Latest() target resolves the
// chain head once, at call time, to a fixed height.
func (idx *Indexer) IndexToBlock(ctx context.Context, target subscription.ToBlock) (Completion, error) {
	completion := make(chan error, 1)
	var resultErr error

	idx.exec(func() {
		if _, ok := idx.state.(initialState); !ok {
			resultErr = ErrAlreadyRunning
			return
		}

		concrete, ok := target.Concrete()
		if !ok {
			head, err := idx.rpc.GetLastBlockNumber(ctx)
			if err != nil {
				resultErr = err
				return
			}
			concrete = head
		}

		if err := idx.loadSubscriptionsFromStore(ctx); err != nil {
			resultErr = err
			return
		}

		idx.runCtx = ctx
		idx.state = &runningState{target: concrete, timer: time.NewTimer(0), completion: completion}
	})
	if resultErr != nil {
		return nil, resultErr
	}
	return completion, nil
}

// Stop cancels the scheduled tick and transitions to stopped (spec §4.I
// "stop()"). An in-flight tick runs to completion; Stop only prevents the
// next one from being scheduled.
func (idx *Indexer) Stop() error {
	var resultErr error
	idx.exec(func() {
		rs, ok := idx.state.(*runningState)
		if !ok {
			resultErr = ErrNotRunning
			return
		}
		idx.transitionToStopped(rs, nil)
	})
	return resultErr
}

// SubscribeToContract adds or replaces a subscription by id (spec §4.I
// "subscribeToContract(opts)").
func (idx *Indexer) SubscribeToContract(opts subscription.Options) (string, error) {
	var id string
	var resultErr error
	idx.exec(func() {
		id, resultErr = idx.doSubscribe(opts)
	})
	return id, resultErr
}

// ReadContract performs a cache-through point read (spec §4.C).
func (idx *Indexer) ReadContract(ctx context.Context, contractName, functionName string, address common.Address, blockNumber uint64, args ...interface{}) (abi.DecodedArgs, error) {
	var result abi.DecodedArgs
	var resultErr error
	idx.exec(func() {
		result, resultErr = idx.doReadContract(ctx, contractName, functionName, address, blockNumber, args...)
	})
	return result, resultErr
}

// doSubscribe is the subscribe logic itself, safe to call either from a
// public method's exec closure or directly from inside a tick/handler (spec
// §9 "handler re-entrancy").
func (idx *Indexer) doSubscribe(opts subscription.Options) (string, error) {
	schema, ok := idx.registry.Get(opts.ContractName)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownContract, opts.ContractName)
	}

	address := common.HexToAddress(opts.ContractAddress)
	id := opts.ID
	if id == "" {
		id = address.Hex()
	}

	idx.subs[id] = subscription.New(id, opts.ContractName, address, schema, opts.FromBlock, opts.ToBlock)
	return id, nil
}

// doReadContract is the read logic itself; see doSubscribe for why it is
// split from the public, inbox-routed ReadContract.
func (idx *Indexer) doReadContract(ctx context.Context, contractName, functionName string, address common.Address, blockNumber uint64, args ...interface{}) (abi.DecodedArgs, error) {
	schema, ok := idx.registry.Get(contractName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownContract, contractName)
	}
	return idx.reader.Read(ctx, schema, address, functionName, blockNumber, args...)
}

// loadSubscriptionsFromStore is called once, at Watch/IndexToBlock entry.
func (idx *Indexer) loadSubscriptionsFromStore(ctx context.Context) error {
	if idx.store == nil {
		return nil
	}
	stored, err := idx.store.All(ctx)
	if err != nil {
		return fmt.Errorf("indexer: load subscriptions: %w", err)
	}
	for _, s := range stored {
		schema, ok := idx.registry.Get(s.ContractName)
		if !ok {
			idx.log.Warnw("stored subscription references unknown contract, skipping", "id", s.ID, "contract", s.ContractName)
			continue
		}
		toBlock := subscription.Latest()
		if s.ToBlock != nil {
			toBlock = subscription.AtBlock(*s.ToBlock)
		}
		sub := subscription.New(s.ID, s.ContractName, common.HexToAddress(s.ContractAddress), schema, s.FromBlock, toBlock)
		sub.IndexedToBlock = s.IndexedToBlock
		sub.IndexedToLogIndex = s.IndexedToLogIndex
		idx.subs[s.ID] = sub
	}
	return nil
}

// persistSubscriptions saves the full current subscription set (spec §6.3
// "complete overwrite").
func (idx *Indexer) persistSubscriptions(ctx context.Context) error {
	if idx.store == nil {
		return nil
	}
	stored := make([]pkgstore.StoredSubscription, 0, len(idx.subs))
	for _, sub := range idx.subs {
		var toBlock *uint64
		if concrete, ok := sub.ToBlock.Concrete(); ok {
			toBlock = &concrete
		}
		stored = append(stored, pkgstore.StoredSubscription{
			ID:                sub.ID,
			ContractName:      sub.ContractName,
			ContractAddress:   sub.ContractAddress.Hex(),
			FromBlock:         sub.FromBlock,
			ToBlock:           toBlock,
			IndexedToBlock:    sub.IndexedToBlock,
			IndexedToLogIndex: sub.IndexedToLogIndex,
		})
	}
	if err := idx.store.Save(ctx, stored); err != nil {
		return fmt.Errorf("indexer: persist subscriptions: %w", err)
	}
	return nil
}

// onTick runs one poll tick (spec §4.I "Poll tick"), called only from run's
// select loop.
func (idx *Indexer) onTick() {
	rs, ok := idx.state.(*runningState)
	if !ok {
		return
	}

	if err := idx.runTick(rs); err != nil {
		idx.failTick(rs, err)
	}
}

// runTick implements the 8-step poll tick. rs must be the current state;
// the function itself transitions idx.state when the tick completes a
// concrete target.
func (idx *Indexer) runTick(rs *runningState) error {
	ctx := idx.runCtx

	targetBlock := rs.target
	if rs.targetLatest {
		head, err := idx.rpc.GetLastBlockNumber(ctx)
		if err != nil {
			return err
		}
		targetBlock = subtractLag(head, idx.cfg.ConfirmationLag)
	}

	for _, sub := range idx.subs {
		if sub.Done() {
			continue
		}
		if err := idx.planner.PlanSubscription(ctx, sub, targetBlock, idx.queue.Push); err != nil {
			return err
		}
	}

	for _, sub := range idx.subs {
		if !sub.Done() {
			sub.FetchedToBlock = int64(targetBlock)
		}
	}

	result, err := idx.processor.ProcessEvents(ctx, idx.queue, targetBlock, processor.Subscriptions(idx.subs), idx.doReadContract, idx.doSubscribe)
	if err != nil {
		return err
	}

	for _, sub := range idx.subs {
		sub.IndexedToBlock = result.IndexedToBlock
		sub.IndexedToLogIndex = result.IndexedToLogIndex
	}

	if result.HasNewSubscriptions {
		if err := idx.persistSubscriptions(ctx); err != nil {
			return err
		}
		idx.scheduleNextTick(rs, 0)
		return nil
	}

	for _, sub := range idx.subs {
		if !sub.Done() {
			sub.IndexedToBlock = int64(targetBlock)
			sub.IndexedToLogIndex = 0
		}
	}

	if idx.signals.OnProgress != nil {
		idx.signals.OnProgress(Progress{
			CurrentBlock:       targetBlock,
			TargetBlock:        targetBlock,
			PendingEventsCount: idx.queue.Len(),
		})
	}

	if err := idx.persistSubscriptions(ctx); err != nil {
		return err
	}

	if !rs.targetLatest && targetBlock == rs.target {
		idx.transitionToStopped(rs, nil)
		return nil
	}

	idx.scheduleNextTick(rs, idx.cfg.PollInterval)
	return nil
}

// failTick reports a tick error through the running state's error callback
// (spec §7 "Propagation"): watch mode emits "error" and keeps ticking;
// indexToBlock mode rejects its completion and stops.
func (idx *Indexer) failTick(rs *runningState, err error) {
	if idx.signals.OnError != nil {
		idx.signals.OnError(err)
	}
	if rs.completion != nil {
		idx.transitionToStopped(rs, err)
		return
	}
	idx.scheduleNextTick(rs, idx.cfg.PollInterval)
}

// transitionToStopped moves the engine to stopped, emits "stopped", and
// resolves an IndexToBlock completion if one is pending.
func (idx *Indexer) transitionToStopped(rs *runningState, completionErr error) {
	if rs.timer != nil {
		rs.timer.Stop()
	}
	idx.state = stoppedState{}
	if idx.signals.OnStopped != nil {
		idx.signals.OnStopped()
	}
	if rs.completion != nil {
		rs.completion <- completionErr
		close(rs.completion)
	}
}

// scheduleNextTick arms rs's timer. rs must still be the live state.
func (idx *Indexer) scheduleNextTick(rs *runningState, delay time.Duration) {
	rs.timer = time.NewTimer(delay)
}
