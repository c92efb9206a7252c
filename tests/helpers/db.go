package helpers

import (
	"database/sql"
	"path"
	"testing"

	"github.com/onchainwatch/logindexer/internal/db"
	"github.com/onchainwatch/logindexer/pkg/config"
	"github.com/stretchr/testify/require"
)

// NewTestDB opens a fresh temporary SQLite database for testing purposes.
// It applies no schema of its own; callers migrate it with whichever
// store's Migrate(*sql.DB) they're exercising (e.g. sqlitecache.Migrate,
// sqlitestore.Migrate).
func NewTestDB(t *testing.T, dbName string) *sql.DB {
	t.Helper()

	tmpDBPath := path.Join(t.TempDir(), dbName)

	dbConfig := config.DatabaseConfig{Path: tmpDBPath}
	dbConfig.ApplyDefaults()

	database, err := db.NewSQLiteDBFromConfig(dbConfig)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	return database
}
