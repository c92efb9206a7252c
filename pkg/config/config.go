// Package config is the engine's configuration surface: RPC endpoint and
// retry policy, cache/store database settings, the initial subscription
// list, contract ABI definitions, logging, and metrics — loaded from
// YAML/JSON/TOML by internal/config.
package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/onchainwatch/logindexer/internal/common"
	"github.com/onchainwatch/logindexer/internal/logger"
)

// Config is the complete engine configuration.
type Config struct {
	// RPC contains the Ethereum JSON-RPC endpoint and retry policy.
	RPC RPCConfig `yaml:"rpc" json:"rpc" toml:"rpc"`

	// ConfirmationLag narrows a "latest" poll target to head-lag (spec §4.I).
	ConfirmationLag uint64 `yaml:"confirmation_lag" json:"confirmation_lag" toml:"confirmation_lag"`

	// PollInterval is the delay between ticks once caught up.
	PollInterval common.Duration `yaml:"poll_interval" json:"poll_interval" toml:"poll_interval"`

	// Cache contains the log/call-result cache database configuration. Nil
	// disables caching (every read falls through to the RPC client).
	Cache *CacheConfig `yaml:"cache,omitempty" json:"cache,omitempty" toml:"cache,omitempty"`

	// Store contains the subscription persistence database configuration.
	// Nil disables persistence (subscriptions live only in memory).
	Store *StoreConfig `yaml:"store,omitempty" json:"store,omitempty" toml:"store,omitempty"`

	// Contracts are the ABI definitions registered at startup.
	Contracts []ContractConfig `yaml:"contracts" json:"contracts" toml:"contracts"`

	// Subscriptions are the contract instances indexed from startup.
	Subscriptions []SubscriptionConfig `yaml:"subscriptions" json:"subscriptions" toml:"subscriptions"`

	// Logging contains logging configuration.
	Logging *LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty" toml:"logging,omitempty"`

	// Metrics contains Prometheus metrics configuration.
	Metrics *MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty" toml:"metrics,omitempty"`
}

// RPCConfig is the Ethereum JSON-RPC connection configuration.
type RPCConfig struct {
	// URL is the JSON-RPC endpoint (http(s):// or ws(s)://).
	URL string `yaml:"url" json:"url" toml:"url"`

	// Concurrency bounds the number of in-flight RPC calls (spec §4.B
	// "a bounded worker pool" / internal/rpc.BoundedClient).
	Concurrency int `yaml:"concurrency" json:"concurrency" toml:"concurrency"`

	// Retry contains RPC retry configuration with exponential backoff.
	Retry *RetryConfig `yaml:"retry,omitempty" json:"retry,omitempty" toml:"retry,omitempty"`
}

// ApplyDefaults sets default values for optional RPC configuration fields.
func (r *RPCConfig) ApplyDefaults() {
	if r.Concurrency == 0 {
		r.Concurrency = 5
	}
	if r.Retry != nil {
		r.Retry.ApplyDefaults()
	}
}

// RetryConfig represents RPC retry configuration with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial request)
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" toml:"max_attempts"`

	// InitialBackoff is the initial backoff duration before first retry
	InitialBackoff common.Duration `yaml:"initial_backoff" json:"initial_backoff" toml:"initial_backoff"`

	// MaxBackoff is the maximum backoff duration
	MaxBackoff common.Duration `yaml:"max_backoff" json:"max_backoff" toml:"max_backoff"`

	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier" toml:"backoff_multiplier"`
}

// ApplyDefaults sets default values for retry configuration.
func (r *RetryConfig) ApplyDefaults() {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 5
	}
	if r.InitialBackoff.Duration == 0 {
		r.InitialBackoff = common.NewDuration(1 * time.Second)
	}
	if r.MaxBackoff.Duration == 0 {
		r.MaxBackoff = common.NewDuration(30 * time.Second) //nolint:mnd
	}
	if r.BackoffMultiplier == 0 {
		r.BackoffMultiplier = 2.0
	}
}

// DatabaseConfig represents SQLite database configuration, shared by the
// cache and subscription store.
type DatabaseConfig struct {
	// Path is the file path to the SQLite database
	Path string `yaml:"path" json:"path" toml:"path"`

	// JournalMode sets the SQLite journal mode (e.g., "WAL", "DELETE")
	// WAL mode is recommended for better concurrency
	JournalMode string `yaml:"journal_mode" json:"journal_mode" toml:"journal_mode"`

	// Synchronous sets the synchronization level ("FULL", "NORMAL", "OFF")
	// NORMAL provides a good balance between safety and performance
	Synchronous string `yaml:"synchronous" json:"synchronous" toml:"synchronous"`

	// BusyTimeout is the time in milliseconds to wait when the database is locked
	BusyTimeout int `yaml:"busy_timeout" json:"busy_timeout" toml:"busy_timeout"`

	// CacheSize is the size of the page cache (negative = KB, positive = pages)
	CacheSize int `yaml:"cache_size" json:"cache_size" toml:"cache_size"`

	// MaxOpenConnections is the maximum number of open database connections
	MaxOpenConnections int `yaml:"max_open_connections" json:"max_open_connections" toml:"max_open_connections"`

	// MaxIdleConnections is the maximum number of idle connections in the pool
	MaxIdleConnections int `yaml:"max_idle_connections" json:"max_idle_connections" toml:"max_idle_connections"`

	// EnableForeignKeys enables foreign key constraint enforcement
	EnableForeignKeys bool `yaml:"enable_foreign_keys" json:"enable_foreign_keys" toml:"enable_foreign_keys"`
}

// ApplyDefaults sets default values for optional database configuration fields.
func (d *DatabaseConfig) ApplyDefaults() {
	if d.JournalMode == "" {
		d.JournalMode = "WAL"
	}
	if d.Synchronous == "" {
		d.Synchronous = "NORMAL"
	}
	if d.BusyTimeout == 0 {
		d.BusyTimeout = 5000
	}
	if d.CacheSize == 0 {
		d.CacheSize = 10000
	}
	if d.MaxOpenConnections == 0 {
		d.MaxOpenConnections = 25
	}
	if d.MaxIdleConnections == 0 {
		d.MaxIdleConnections = 5
	}
	// EnableForeignKeys defaults to false (zero value)
}

// CacheConfig configures the log/call-result cache database.
type CacheConfig struct {
	DB          DatabaseConfig         `yaml:"db" json:"db" toml:"db"`
	Retention   *RetentionPolicyConfig `yaml:"retention_policy,omitempty"`
	Maintenance *MaintenanceConfig     `yaml:"maintenance,omitempty"`
}

// ApplyDefaults sets default values for optional cache configuration fields.
func (c *CacheConfig) ApplyDefaults() {
	c.DB.ApplyDefaults()
	if c.Maintenance != nil {
		c.Maintenance.ApplyDefaults()
	}
}

// StoreConfig configures the subscription persistence database.
type StoreConfig struct {
	DB DatabaseConfig `yaml:"db" json:"db" toml:"db"`
}

// ApplyDefaults sets default values for optional store configuration fields.
func (s *StoreConfig) ApplyDefaults() {
	s.DB.ApplyDefaults()
}

// RetentionPolicyConfig represents database retention policy settings.
type RetentionPolicyConfig struct {
	// MaxDBSizeMB is the maximum database size in megabytes (0 = unlimited)
	MaxDBSizeMB uint64 `yaml:"max_db_size_mb"`

	// MaxBlocks is the maximum number of blocks to retain (0 = unlimited)
	MaxBlocks uint64 `yaml:"max_blocks"`
}

// IsEnabled returns true if retention policy should be applied
func (r *RetentionPolicyConfig) IsEnabled() bool {
	return r != nil && (r.MaxDBSizeMB > 0 || r.MaxBlocks > 0)
}

// MaintenanceConfig configures database maintenance behavior.
type MaintenanceConfig struct {
	// Enabled controls whether background maintenance runs
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// CheckInterval is how often to run maintenance (e.g., "30m", "1h")
	CheckInterval common.Duration `yaml:"check_interval" json:"check_interval" toml:"check_interval"`

	// VacuumOnStartup runs maintenance immediately on startup
	VacuumOnStartup bool `yaml:"vacuum_on_startup" json:"vacuum_on_startup" toml:"vacuum_on_startup"`

	// WALCheckpointMode controls the WAL checkpoint aggressiveness
	// Options: PASSIVE, FULL, RESTART, TRUNCATE
	// TRUNCATE is recommended for production (most aggressive space reclamation)
	WALCheckpointMode string `yaml:"wal_checkpoint_mode" json:"wal_checkpoint_mode" toml:"wal_checkpoint_mode"`
}

// ApplyDefaults sets default values for optional maintenance configuration fields.
func (m *MaintenanceConfig) ApplyDefaults() {
	if m.CheckInterval.Duration == 0 {
		m.CheckInterval = common.NewDuration(30 * time.Minute) //nolint:mnd
	}
	if m.WALCheckpointMode == "" {
		m.WALCheckpointMode = "TRUNCATE"
	}
	// Enabled defaults to false (zero value)
	// VacuumOnStartup defaults to false (zero value)
}

// Validate checks if the maintenance configuration is valid.
func (m *MaintenanceConfig) Validate() error {
	if m.WALCheckpointMode != "" {
		validModes := []string{"PASSIVE", "FULL", "RESTART", "TRUNCATE"}
		if !slices.Contains(validModes, m.WALCheckpointMode) {
			return fmt.Errorf("maintenance.wal_checkpoint_mode: must be one of: PASSIVE, FULL, RESTART, TRUNCATE")
		}
	}

	return nil
}

// LoggingConfig configures logging behavior with per-component log levels.
type LoggingConfig struct {
	// DefaultLevel is the default log level for all components
	// Options: "trace", "debug", "info", "warn", "error"
	DefaultLevel string `yaml:"default_level" json:"default_level" toml:"default_level"`

	// Development enables development mode (stack traces, console encoder)
	Development bool `yaml:"development" json:"development" toml:"development"`

	// ComponentLevels sets log levels for specific components. See
	// internal/common.AllComponents for the available names.
	ComponentLevels map[string]string `yaml:"component_levels,omitempty" json:"component_levels,omitempty" toml:"component_levels,omitempty"` //nolint:lll
}

// ApplyDefaults sets default values for optional logging configuration fields.
func (l *LoggingConfig) ApplyDefaults() {
	if l.DefaultLevel == "" {
		l.DefaultLevel = "info"
	}
	// Development defaults to false (zero value)
	if l.ComponentLevels == nil {
		l.ComponentLevels = make(map[string]string)
	}
}

// Validate checks if the logging configuration is valid.
func (l *LoggingConfig) Validate() error {
	// Validate default level
	if l.DefaultLevel != "" {
		if _, valid := logger.ValidLogLevels[common.ToLowerWithTrim(l.DefaultLevel)]; !valid {
			return fmt.Errorf("logging.default_level: must be one of: trace, debug, info, warn, error")
		}
	}

	for component, level := range l.ComponentLevels {
		// Check if component is valid
		if _, validComponent := common.AllComponents[common.ToLowerWithTrim(component)]; !validComponent {
			return fmt.Errorf("logging.component_levels: unknown component '%s'", component)
		}

		// Check if level is valid
		if _, valid := logger.ValidLogLevels[common.ToLowerWithTrim(level)]; !valid {
			return fmt.Errorf("logging.component_levels[%s]: must be one of: trace, debug, info, warn, error", component)
		}
	}

	return nil
}

// GetComponentLevel returns the log level for a specific component.
// Falls back to DefaultLevel if no component-specific level is set.
func (l *LoggingConfig) GetComponentLevel(component string) string {
	if level, ok := l.ComponentLevels[component]; ok {
		return level
	}
	return common.ToLowerWithTrim(l.DefaultLevel)
}

// GetDefaultLevel returns the default log level.
func (l *LoggingConfig) GetDefaultLevel() string {
	return common.ToLowerWithTrim(l.DefaultLevel)
}

// IsDevelopment returns whether development mode is enabled.
func (l *LoggingConfig) IsDevelopment() bool {
	return l.Development
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP endpoint are active
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the metrics HTTP server to
	// Format: "host:port" or ":port"
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// Path is the HTTP path where metrics are exposed
	Path string `yaml:"path" json:"path" toml:"path"`
}

// ApplyDefaults sets default values for optional metrics configuration fields.
func (m *MetricsConfig) ApplyDefaults() {
	if m.ListenAddress == "" {
		m.ListenAddress = ":9090"
	}
	if m.Path == "" {
		m.Path = "/metrics"
	}
	// Enabled defaults to false (zero value)
}

// Validate checks if the metrics configuration is valid.
func (m *MetricsConfig) Validate() error {
	if m.Enabled {
		if m.ListenAddress == "" {
			return fmt.Errorf("listen_address is required when metrics are enabled")
		}
		if m.Path == "" {
			return fmt.Errorf("path is required when metrics are enabled")
		}
		if m.Path[0] != '/' {
			return fmt.Errorf("path must start with '/'")
		}
	}
	return nil
}

// ContractConfig is one ABI definition registered at startup (spec §3
// "ABI schema").
type ContractConfig struct {
	// Name identifies the contract for subscribeToContract/readContract.
	Name string `yaml:"name" json:"name" toml:"name"`

	// Events is the list of event signatures this contract exposes.
	// Format: "EventName(type1 indexed name1, type2 name2, ...)"
	Events []string `yaml:"events" json:"events" toml:"events"`

	// Functions is the list of read-only function signatures this contract
	// exposes. Format: "functionName(inType name) returns (outType name)"
	Functions []string `yaml:"functions,omitempty" json:"functions,omitempty" toml:"functions,omitempty"`
}

// SubscriptionConfig is one subscribeToContract call issued at startup.
type SubscriptionConfig struct {
	// ID uniquely identifies the subscription; defaults to the checksummed
	// address when empty.
	ID string `yaml:"id,omitempty" json:"id,omitempty" toml:"id,omitempty"`

	// ContractName must match a registered ContractConfig.Name.
	ContractName string `yaml:"contract" json:"contract" toml:"contract"`

	// Address is the contract instance address to monitor.
	Address string `yaml:"address" json:"address" toml:"address"`

	// FromBlock is the first block to index.
	FromBlock uint64 `yaml:"from_block" json:"from_block" toml:"from_block"`

	// ToBlock is the last block to index; nil tracks the chain head.
	ToBlock *uint64 `yaml:"to_block,omitempty" json:"to_block,omitempty" toml:"to_block,omitempty"`
}

// ApplyDefaults sets default values for optional top-level configuration fields.
func (c *Config) ApplyDefaults() {
	c.RPC.ApplyDefaults()

	if c.ConfirmationLag == 0 {
		c.ConfirmationLag = 0
	}
	if c.PollInterval.Duration == 0 {
		c.PollInterval = common.NewDuration(time.Second)
	}

	if c.Cache != nil {
		c.Cache.ApplyDefaults()
	}
	if c.Store != nil {
		c.Store.ApplyDefaults()
	}
	if c.Logging != nil {
		c.Logging.ApplyDefaults()
	}
	if c.Metrics != nil {
		c.Metrics.ApplyDefaults()
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.RPC.URL == "" {
		return fmt.Errorf("rpc.url is required")
	}

	if c.Store != nil && c.Store.DB.Path == "" {
		return fmt.Errorf("store.db.path is required when store is configured")
	}

	if c.Cache != nil {
		if c.Cache.DB.Path == "" {
			return fmt.Errorf("cache.db.path is required when cache is configured")
		}
		if c.Cache.Maintenance != nil {
			if err := c.Cache.Maintenance.Validate(); err != nil {
				return fmt.Errorf("cache.maintenance: %w", err)
			}
		}
	}

	if c.Logging != nil {
		if err := c.Logging.Validate(); err != nil {
			return err
		}
	}

	if c.Metrics != nil {
		if err := c.Metrics.Validate(); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	contractNames := make(map[string]bool, len(c.Contracts))
	for i, contract := range c.Contracts {
		if contract.Name == "" {
			return fmt.Errorf("contracts[%d]: name is required", i)
		}
		if contractNames[contract.Name] {
			return fmt.Errorf("contracts[%d]: duplicate contract name '%s'", i, contract.Name)
		}
		contractNames[contract.Name] = true

		if len(contract.Events) == 0 && len(contract.Functions) == 0 {
			return fmt.Errorf("contracts[%d] (%s): at least one event or function must be configured", i, contract.Name)
		}
	}

	subIDs := make(map[string]bool, len(c.Subscriptions))
	for i, sub := range c.Subscriptions {
		if sub.ContractName == "" {
			return fmt.Errorf("subscriptions[%d]: contract is required", i)
		}
		if !contractNames[sub.ContractName] {
			return fmt.Errorf("subscriptions[%d]: unknown contract '%s'", i, sub.ContractName)
		}
		if sub.Address == "" {
			return fmt.Errorf("subscriptions[%d] (%s): address is required", i, sub.ContractName)
		}
		if sub.ID != "" {
			if subIDs[sub.ID] {
				return fmt.Errorf("subscriptions[%d]: duplicate subscription id '%s'", i, sub.ID)
			}
			subIDs[sub.ID] = true
		}
	}

	return nil
}
