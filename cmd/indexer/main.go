package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	internalcommon "github.com/onchainwatch/logindexer/internal/common"
	"github.com/onchainwatch/logindexer/internal/config"
	"github.com/onchainwatch/logindexer/internal/db"
	"github.com/onchainwatch/logindexer/internal/logger"
	"github.com/onchainwatch/logindexer/internal/metrics"
	internalrpc "github.com/onchainwatch/logindexer/internal/rpc"
	"github.com/onchainwatch/logindexer/internal/cache/sqlitecache"
	"github.com/onchainwatch/logindexer/internal/store/sqlitestore"
	"github.com/onchainwatch/logindexer/pkg/abi"
	"github.com/onchainwatch/logindexer/pkg/dispatch"
	"github.com/onchainwatch/logindexer/pkg/indexer"
	pkgconfig "github.com/onchainwatch/logindexer/pkg/config"
	"github.com/onchainwatch/logindexer/pkg/subscription"
)

const (
	version = "1.0.0"
	banner  = `
╔═══════════════════════════════════════════╗
║         logindexer v%s                  ║
║   Blockchain Event Indexing Engine         ║
╚═══════════════════════════════════════════╝
`
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "indexer",
	Short:   "logindexer - an embedded blockchain event indexing engine",
	Long:    `logindexer plans, fetches, decodes and dispatches contract events from an Ethereum JSON-RPC endpoint into registered handlers.`,
	Version: version,
	RunE:    runIndexer,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")
}

func runIndexer(cmd *cobra.Command, args []string) error {
	fmt.Printf(banner, version)

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\n\nShutting down gracefully...")
		cancel()
	}()

	log := logger.NewComponentLoggerFromConfig(internalcommon.ComponentIndexer, cfg.Logging)

	log.Info("Connecting to Ethereum node...")
	ethClient, err := internalrpc.NewClient(ctx, cfg.RPC.URL, toInternalRetry(cfg.RPC.Retry))
	if err != nil {
		return fmt.Errorf("failed to create RPC client: %w", err)
	}
	defer ethClient.Close()
	log.Infof("Connected to Ethereum node: %s", cfg.RPC.URL)

	var metricsServer *metrics.Server
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics)
		if err := metricsServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			if err := metricsServer.Stop(ctx); err != nil {
				log.Warnf("Failed to stop metrics server: %v", err)
			}
		}()
		log.Infof("Metrics server started on %s%s", cfg.Metrics.ListenAddress, cfg.Metrics.Path)
	}

	emitter := dispatch.NewEmitter()
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		emitter.Observe = metrics.DispatchObserve
	}

	deps := indexer.Deps{
		RPC:     internalrpc.NewBoundedClient(ethClient, int64(cfg.RPC.Concurrency)),
		Emitter: emitter,
		Logger:  log,
	}

	registry := abi.NewRegistry()
	for _, c := range cfg.Contracts {
		schema, err := abi.NewContractSchema(c.Name, c.Events, c.Functions)
		if err != nil {
			return fmt.Errorf("contract %s: %w", c.Name, err)
		}
		registry.Register(schema)
	}
	deps.Registry = registry

	if cfg.Cache != nil {
		log.Info("Setting up log/call-result cache...")
		cacheDB, err := db.NewSQLiteDBFromConfig(cfg.Cache.DB)
		if err != nil {
			return fmt.Errorf("failed to open cache database: %w", err)
		}
		defer cacheDB.Close()
		if err := sqlitecache.Migrate(cacheDB); err != nil {
			return fmt.Errorf("failed to migrate cache database: %w", err)
		}
		deps.Cache = sqlitecache.New(cacheDB, logger.NewComponentLoggerFromConfig(internalcommon.ComponentCache, cfg.Logging))

		maintenance := db.NewMaintenanceCoordinator(
			cfg.Cache.DB.Path,
			cacheDB,
			cfg.Cache.Maintenance,
			logger.NewComponentLoggerFromConfig(internalcommon.ComponentMaintenance, cfg.Logging),
		)
		if err := maintenance.Start(ctx); err != nil {
			return fmt.Errorf("failed to start cache maintenance: %w", err)
		}
		defer func() {
			if err := maintenance.Stop(); err != nil {
				log.Warnf("Failed to stop cache maintenance: %v", err)
			}
		}()
	}

	if cfg.Store != nil {
		log.Info("Setting up subscription store...")
		storeDB, err := db.NewSQLiteDBFromConfig(cfg.Store.DB)
		if err != nil {
			return fmt.Errorf("failed to open subscription store database: %w", err)
		}
		defer storeDB.Close()
		if err := sqlitestore.Migrate(storeDB); err != nil {
			return fmt.Errorf("failed to migrate subscription store: %w", err)
		}
		deps.Store = sqlitestore.New(storeDB, logger.NewComponentLoggerFromConfig(internalcommon.ComponentStore, cfg.Logging))
	}

	idx := indexer.New(
		indexer.Config{
			PollInterval:    cfg.PollInterval.Duration,
			ConfirmationLag: cfg.ConfirmationLag,
		},
		deps,
		indexer.Signals{
			OnStarted: func() { log.Info("indexing started") },
			OnStopped: func() { log.Info("indexing stopped") },
			OnError:   func(err error) { log.Errorf("tick failed: %v", err) },
			OnProgress: func(p indexer.Progress) {
				log.Debugf("progress: indexed=%d target=%d pending=%d", p.CurrentBlock, p.TargetBlock, p.PendingEventsCount)
				if cfg.Metrics != nil && cfg.Metrics.Enabled {
					metrics.ProgressSet("engine", p.CurrentBlock, p.TargetBlock, p.PendingEventsCount)
					metrics.QueueDepthSet(p.PendingEventsCount)
				}
			},
		},
	)

	log.Infof("Subscribing to %d configured contract instance(s)...", len(cfg.Subscriptions))
	for _, subCfg := range cfg.Subscriptions {
		toBlock := subscription.Latest()
		if subCfg.ToBlock != nil {
			toBlock = subscription.AtBlock(*subCfg.ToBlock)
		}
		id, err := idx.SubscribeToContract(subscription.Options{
			ID:              subCfg.ID,
			ContractName:    subCfg.ContractName,
			ContractAddress: common.HexToAddress(subCfg.Address).Hex(),
			FromBlock:       subCfg.FromBlock,
			ToBlock:         toBlock,
		})
		if err != nil {
			return fmt.Errorf("subscribe to %s at %s: %w", subCfg.ContractName, subCfg.Address, err)
		}
		log.Infof("subscribed: %s (%s @ %s)", id, subCfg.ContractName, subCfg.Address)
	}

	log.Info("Starting logindexer...")
	if err := idx.Watch(ctx); err != nil {
		return fmt.Errorf("watch failed: %w", err)
	}

	<-ctx.Done()
	if err := idx.Stop(); err != nil && err != indexer.ErrNotRunning {
		return fmt.Errorf("stop failed: %w", err)
	}

	log.Info("logindexer stopped successfully")
	return nil
}

func toInternalRetry(r *pkgconfig.RetryConfig) *internalrpc.RetryConfig {
	if r == nil {
		return nil
	}
	return &internalrpc.RetryConfig{
		MaxAttempts:       r.MaxAttempts,
		InitialBackoff:    r.InitialBackoff,
		MaxBackoff:        r.MaxBackoff,
		BackoffMultiplier: r.BackoffMultiplier,
	}
}

