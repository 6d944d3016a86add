package walletdb

import (
	"context"
	"fmt"
	"time"

	"github.com/lightningnetwork/lnd/kvdb"
	"github.com/lightningnetwork/lnd/kvdb/sqlite"
)

const (
	// BoltBackendName is the name given to the default bolt database
	// backend.
	BoltBackendName = "bolt"

	// SqliteBackendName is the name given to the sqlite database backend.
	SqliteBackendName = "sqlite"

	// DefaultSqliteTimeout is the default timeout applied to sqlite
	// queries.
	DefaultSqliteTimeout = time.Second * 30

	// DefaultSqliteBusyTimeout is the default maximum time to wait for a
	// sqlite connection to become available for a query.
	DefaultSqliteBusyTimeout = time.Second * 5

	// DefaultSqliteMaxConnections is the default connection limit for the
	// sqlite backend. Sqlite allows concurrent reads but only a single
	// writer, so a small pool keeps write contention low.
	DefaultSqliteMaxConnections = 2
)

// Config holds the database backend configuration. The backend is selected
// by name from a fixed set, with per-backend settings carried in the
// matching sub config.
type Config struct {
	Backend string `long:"backend" description:"The selected database backend."`

	Bolt *kvdb.BoltConfig `group:"bolt" namespace:"bolt" description:"Bolt settings."`

	Sqlite *sqlite.Config `group:"sqlite" namespace:"sqlite" description:"Sqlite settings."`
}

// DefaultConfig creates and returns a new default database config.
func DefaultConfig() *Config {
	return &Config{
		Backend: BoltBackendName,
		Bolt: &kvdb.BoltConfig{
			NoFreelistSync:    true,
			AutoCompactMinAge: kvdb.DefaultBoltAutoCompactMinAge,
			DBTimeout:         kvdb.DefaultDBTimeout,
		},
		Sqlite: &sqlite.Config{
			Timeout:        DefaultSqliteTimeout,
			BusyTimeout:    DefaultSqliteBusyTimeout,
			MaxConnections: DefaultSqliteMaxConnections,
		},
	}
}

// Validate validates the database config.
func (c *Config) Validate() error {
	switch c.Backend {
	case BoltBackendName, SqliteBackendName:

	default:
		return fmt.Errorf("unknown backend, must be either '%v' or "+
			"'%v'", BoltBackendName, SqliteBackendName)
	}

	return nil
}

// GetBackend returns a kvdb backend for the configured database, rooted at
// the given directory.
func (c *Config) GetBackend(ctx context.Context,
	dbPath string) (kvdb.Backend, error) {

	if err := c.Validate(); err != nil {
		return nil, err
	}

	switch c.Backend {
	case SqliteBackendName:
		return newSqliteBackend(ctx, c.Sqlite, dbPath)

	default:
		return kvdb.GetBoltBackend(&kvdb.BoltBackendConfig{
			DBPath:            dbPath,
			DBFileName:        dbName,
			NoFreelistSync:    c.Bolt.NoFreelistSync,
			AutoCompact:       c.Bolt.AutoCompact,
			AutoCompactMinAge: c.Bolt.AutoCompactMinAge,
			DBTimeout:         c.Bolt.DBTimeout,
		})
	}
}
