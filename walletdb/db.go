// Package walletdb implements the persistent storage layer of a cashu
// wallet. All wallet state, from known mints and their keysets through
// proofs, quotes and payment history, is kept in a single embedded
// transactional key-value database accessed through the kvdb abstraction.
package walletdb

import (
	"errors"
	"fmt"
	"sync"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/kvdb"
)

const (
	// dbName is the file name of the bolt database.
	dbName = "wallet.db"

	// sqliteDBName is the file name of the sqlite database.
	sqliteDBName = "wallet.sqlite"

	// sqliteNamespace is the table name prefix used when the wallet
	// database is stored in a sqlite backend.
	sqliteNamespace = "walletdb"
)

var (
	// metadataBucket stores database-level bookkeeping.
	//
	// maps: versionKey -> db version
	metadataBucket = []byte("metadata")

	// mintBucket stores one record per known mint.
	//
	// maps: mintURL -> Mint
	mintBucket = []byte("mints")

	// mintKeysetsBucket indexes keyset records by the mint that issued
	// them, with one nested bucket per mint.
	//
	// maps: mintURL -> keysetID -> KeysetInfo
	mintKeysetsBucket = []byte("mint-keysets")

	// keysetBucket stores keyset records across all mints.
	//
	// maps: keysetID -> KeysetInfo
	keysetBucket = []byte("keysets")

	// keysBucket stores the full public key sets of keysets.
	//
	// maps: keysetID -> KeySet
	keysBucket = []byte("keys")

	// counterBucket stores the secret derivation counters. Counters
	// deliberately live outside the keyset buckets so that removing a
	// keyset or mint never resets derivation state.
	//
	// maps: keysetID -> uint64 counter
	counterBucket = []byte("keyset-counters")

	// mintQuoteBucket stores quotes for minting new ecash.
	//
	// maps: quoteID -> MintQuote
	mintQuoteBucket = []byte("mint-quotes")

	// meltQuoteBucket stores quotes for melting ecash into payments.
	//
	// maps: quoteID -> MeltQuote
	meltQuoteBucket = []byte("melt-quotes")

	// proofBucket stores the wallet's ecash proofs keyed by their Y
	// point.
	//
	// maps: Y (compressed point) -> ProofInfo
	proofBucket = []byte("proofs")

	// paymentBucket stores the wallet's payment history.
	//
	// maps: PaymentID -> PaymentRecord
	paymentBucket = []byte("payments")

	// kvStoreBucket holds the application key-value store, with two
	// levels of nested namespace buckets below it.
	//
	// maps: primary ns -> secondary ns -> key -> value
	kvStoreBucket = []byte("kv")

	// topLevelBuckets enumerates every top-level bucket so initialization
	// and Wipe can treat them uniformly.
	topLevelBuckets = [][]byte{
		metadataBucket,
		mintBucket,
		mintKeysetsBucket,
		keysetBucket,
		keysBucket,
		counterBucket,
		mintQuoteBucket,
		meltQuoteBucket,
		proofBucket,
		paymentBucket,
		kvStoreBucket,
	}
)

// DB is the primary datastore of a cashu wallet. The zero value is not
// usable; obtain an instance through Open or CreateWithBackend.
//
// Every repository operation is exposed twice: as a method on DB, which runs
// in its own transaction, and as a method on Tx for callers that need to
// group several operations atomically.
type DB struct {
	kvdb.Backend

	dbPath string
	clock  clock.Clock

	// mtx guards txOpen and closed. The write slot is owned by this DB
	// value, there is no process-global state.
	mtx    sync.Mutex
	txOpen bool
	closed bool
}

// Open opens or creates a bolt backed wallet database under the given
// directory.
func Open(dbPath string, modifiers ...OptionModifier) (*DB, error) {
	opts := DefaultOptions()
	for _, modifier := range modifiers {
		modifier(&opts)
	}

	backendCfg := opts.BoltBackendConfig
	backendCfg.DBPath = dbPath
	backendCfg.DBFileName = dbName

	backend, err := kvdb.GetBoltBackend(&backendCfg)
	if err != nil {
		return nil, err
	}

	db, err := createWithBackend(backend, opts)
	if err != nil {
		return nil, err
	}
	db.dbPath = dbPath

	return db, nil
}

// CreateWithBackend opens a wallet database on top of an already constructed
// kvdb backend. The backend is initialized with the wallet schema if it does
// not carry one yet.
func CreateWithBackend(backend kvdb.Backend,
	modifiers ...OptionModifier) (*DB, error) {

	opts := DefaultOptions()
	for _, modifier := range modifiers {
		modifier(&opts)
	}

	return createWithBackend(backend, opts)
}

func createWithBackend(backend kvdb.Backend, opts Options) (*DB, error) {
	if err := initDB(backend); err != nil {
		return nil, err
	}

	db := &DB{
		Backend: backend,
		clock:   opts.clock,
	}

	if err := db.syncVersions(dbVersions); err != nil {
		return nil, err
	}

	return db, nil
}

// initDB creates the top-level buckets and, on a fresh database, records the
// latest version so that no migrations run on first open.
func initDB(backend kvdb.Backend) error {
	return kvdb.Update(backend, func(tx kvdb.RwTx) error {
		for _, bucket := range topLevelBuckets {
			_, err := tx.CreateTopLevelBucket(bucket)
			if err != nil {
				return err
			}
		}

		metadata := tx.ReadWriteBucket(metadataBucket)
		if metadata.Get(dbVersionKey) != nil {
			return nil
		}

		return putDBVersion(metadata, getLatestDBVersion(dbVersions))
	}, func() {})
}

// Path returns the directory the database file lives in. The path is empty
// when the database was opened through CreateWithBackend.
func (d *DB) Path() string {
	return d.dbPath
}

// Close terminates the underlying database handle. Closing fails with
// ErrTxBusy while an explicit transaction is still open, and any later
// operation on the closed database fails with ErrDatabaseNotOpen.
func (d *DB) Close() error {
	d.mtx.Lock()
	if d.closed {
		d.mtx.Unlock()
		return nil
	}
	if d.txOpen {
		d.mtx.Unlock()
		return ErrTxBusy
	}
	d.closed = true
	d.mtx.Unlock()

	log.Debugf("Closing wallet database")

	return d.Backend.Close()
}

// Wipe deletes all wallet state and re-initializes an empty schema.
func (d *DB) Wipe() error {
	return d.update(func(tx kvdb.RwTx) error {
		for _, bucket := range topLevelBuckets {
			err := tx.DeleteTopLevelBucket(bucket)
			if err != nil && !errors.Is(
				err, kvdb.ErrBucketNotFound,
			) {

				return err
			}
		}

		for _, bucket := range topLevelBuckets {
			_, err := tx.CreateTopLevelBucket(bucket)
			if err != nil {
				return err
			}
		}

		metadata := tx.ReadWriteBucket(metadataBucket)
		return putDBVersion(metadata, getLatestDBVersion(dbVersions))
	}, func() {})
}

// beginWrite claims the write slot for an explicit transaction. It fails
// fast with ErrTxBusy rather than queueing behind the current holder.
func (d *DB) beginWrite() error {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	switch {
	case d.closed:
		return ErrDatabaseNotOpen

	case d.txOpen:
		return ErrTxBusy
	}

	d.txOpen = true
	return nil
}

// endWrite releases the write slot claimed by beginWrite.
func (d *DB) endWrite() {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	d.txOpen = false
}

// guardWrite rejects standalone writes while the database is closed or an
// explicit transaction holds the write slot.
func (d *DB) guardWrite() error {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	switch {
	case d.closed:
		return ErrDatabaseNotOpen

	case d.txOpen:
		return ErrTxBusy
	}

	return nil
}

// guardRead rejects operations on a closed database. Reads run on a
// snapshot and never contend with the write slot.
func (d *DB) guardRead() error {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	if d.closed {
		return ErrDatabaseNotOpen
	}

	return nil
}

// update runs f in an auto-committed write transaction.
func (d *DB) update(f func(tx kvdb.RwTx) error, reset func()) error {
	if err := d.guardWrite(); err != nil {
		return err
	}

	return kvdb.Update(d.Backend, f, reset)
}

// view runs f in a read transaction against the last committed state.
func (d *DB) view(f func(tx kvdb.RTx) error, reset func()) error {
	if err := d.guardRead(); err != nil {
		return err
	}

	return kvdb.View(d.Backend, f, reset)
}

// fetchTopBucket returns the given top-level bucket, failing if the schema
// was never initialized.
func fetchTopBucket(tx kvdb.RTx, name []byte) (kvdb.RBucket, error) {
	bucket := tx.ReadBucket(name)
	if bucket == nil {
		return nil, fmt.Errorf("bucket %s: %w", name,
			kvdb.ErrBucketNotFound)
	}

	return bucket, nil
}

// fetchTopRwBucket returns the given top-level bucket for writing, failing
// if the schema was never initialized.
func fetchTopRwBucket(tx kvdb.RwTx, name []byte) (kvdb.RwBucket, error) {
	bucket := tx.ReadWriteBucket(name)
	if bucket == nil {
		return nil, fmt.Errorf("bucket %s: %w", name,
			kvdb.ErrBucketNotFound)
	}

	return bucket, nil
}
