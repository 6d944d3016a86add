//go:build kvdb_sqlite && !(windows && (arm || 386)) && !(linux && (ppc64 || mips || mipsle || mips64))

package walletdb

import (
	"context"

	"github.com/lightningnetwork/lnd/kvdb"
	"github.com/lightningnetwork/lnd/kvdb/sqlbase"
	"github.com/lightningnetwork/lnd/kvdb/sqlite"
)

// SqliteBackend is conditionally set to true when the kvdb_sqlite build tag
// is defined. This allows testing against the sqlite backend.
const SqliteBackend = true

// newSqliteBackend opens a sqlite backed database under the given directory.
func newSqliteBackend(ctx context.Context, cfg *sqlite.Config,
	dbPath string) (kvdb.Backend, error) {

	sqlbase.Init(cfg.MaxConnections)

	return sqlite.NewSqliteBackend(
		ctx, cfg, dbPath, sqliteDBName, sqliteNamespace,
	)
}
