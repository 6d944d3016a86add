//go:build !kvdb_sqlite
// +build !kvdb_sqlite

package walletdb

import (
	"context"
	"errors"

	"github.com/lightningnetwork/lnd/kvdb"
	"github.com/lightningnetwork/lnd/kvdb/sqlite"
)

// SqliteBackend is conditionally set to false when the kvdb_sqlite build tag
// is not defined. This allows testing of other database backends.
const SqliteBackend = false

func newSqliteBackend(_ context.Context, _ *sqlite.Config,
	_ string) (kvdb.Backend, error) {

	return nil, errors.New("sqlite backend not available")
}
