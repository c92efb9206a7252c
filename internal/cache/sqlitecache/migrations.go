package sqlitecache

import (
	gosql "database/sql"

	"github.com/onchainwatch/logindexer/internal/db"
	"github.com/onchainwatch/logindexer/internal/logger"
)

const migrationPrefix = "cache"

var migrations = []db.Migration{
	{
		ID:     "0001_init",
		Prefix: migrationPrefix,
		SQL: `
-- +migrate Up
CREATE TABLE event_logs (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	address      TEXT NOT NULL,
	block_number INTEGER NOT NULL,
	block_hash   TEXT NOT NULL,
	tx_hash      TEXT NOT NULL,
	tx_index     INTEGER NOT NULL,
	log_index    INTEGER NOT NULL,
	topic0       TEXT,
	topic1       TEXT,
	topic2       TEXT,
	topic3       TEXT,
	data         BLOB,
	created_at   TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
	UNIQUE(address, tx_hash, log_index)
);

CREATE INDEX idx_event_logs_address_block ON event_logs(address, block_number);

CREATE TABLE log_coverage (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	address    TEXT NOT NULL,
	from_block INTEGER NOT NULL,
	to_block   INTEGER NOT NULL,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
	UNIQUE(address, from_block, to_block)
);

CREATE INDEX idx_log_coverage_address ON log_coverage(address, from_block, to_block);

CREATE TABLE call_results (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	address       TEXT NOT NULL,
	function_name TEXT NOT NULL,
	block_number  INTEGER NOT NULL,
	call_data_hex TEXT NOT NULL,
	result        BLOB,
	created_at    TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
	UNIQUE(address, function_name, block_number, call_data_hex)
);
-- +migrate Down
DROP TABLE call_results;
DROP TABLE log_coverage;
DROP TABLE event_logs;
`,
	},
}

// Migrate applies the cache schema's pending migrations to db.
func Migrate(conn *gosql.DB) error {
	return db.RunMigrationsDB(logger.GetDefaultLogger(), conn, migrations)
}
