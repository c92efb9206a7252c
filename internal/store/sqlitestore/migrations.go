package sqlitestore

import (
	gosql "database/sql"

	"github.com/onchainwatch/logindexer/internal/db"
	"github.com/onchainwatch/logindexer/internal/logger"
)

const migrationPrefix = "subs"

var migrations = []db.Migration{
	{
		ID:     "0001_init",
		Prefix: migrationPrefix,
		SQL: `
-- +migrate Up
CREATE TABLE subscriptions (
	id                   TEXT PRIMARY KEY,
	contract_name        TEXT NOT NULL,
	contract_address     TEXT NOT NULL,
	from_block           INTEGER NOT NULL,
	to_block             INTEGER,
	indexed_to_block     INTEGER NOT NULL,
	indexed_to_log_index INTEGER NOT NULL
);
-- +migrate Down
DROP TABLE subscriptions;
`,
	},
}

// Migrate applies the subscription-store schema's pending migrations to db.
func Migrate(conn *gosql.DB) error {
	return db.RunMigrationsDB(logger.GetDefaultLogger(), conn, migrations)
}
