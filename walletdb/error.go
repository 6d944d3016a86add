package walletdb

import (
	"errors"

	"github.com/lightningnetwork/lnd/kvdb"
)

var (
	// ErrDatabaseNotOpen is returned when the database is accessed before
	// it has been opened or after it has been closed.
	ErrDatabaseNotOpen = kvdb.ErrDatabaseNotOpen

	// ErrTxClosed is returned when a transaction handle is used after it
	// has already been committed or rolled back.
	ErrTxClosed = errors.New("transaction has already been committed or " +
		"rolled back")

	// ErrTxBusy is returned when a write transaction cannot be started
	// because another transaction currently holds the write slot.
	ErrTxBusy = errors.New("another transaction is already open")

	// ErrDBReversion is returned when opening a database that was written
	// by a newer version of the software than the running one.
	ErrDBReversion = errors.New("wallet db cannot be reverted to a " +
		"prior version")

	// ErrKeysetIDMismatch is returned when a stored keyset declares an ID
	// that does not match the ID derived from its public keys.
	ErrKeysetIDMismatch = errors.New("keyset id does not match derived " +
		"id")

	// ErrKVNameTooLong is returned when a key-value store namespace or
	// key name exceeds the maximum allowed length.
	ErrKVNameTooLong = errors.New("kv store name exceeds maximum length")

	// ErrKVNameInvalid is returned when a key-value store namespace or
	// key name contains bytes outside the allowed alphabet.
	ErrKVNameInvalid = errors.New("kv store name contains invalid " +
		"characters")

	// ErrKVNamespaceMissing is returned when a secondary namespace is
	// given without a primary namespace.
	ErrKVNamespaceMissing = errors.New("kv store secondary namespace " +
		"requires a primary namespace")

	// ErrKVKeyRequired is returned when an empty key is passed to the
	// key-value store.
	ErrKVKeyRequired = errors.New("kv store key must not be empty")

	// ErrKVKeyCollision is returned when a key equals one of its own
	// namespace components or their joined path.
	ErrKVKeyCollision = errors.New("kv store key collides with its " +
		"namespace path")
)
