package walletdb

import (
	"runtime"

	"github.com/lightningnetwork/lnd/kvdb"
)

// Tx is an explicit wallet database transaction. All repository and
// key-value operations are available both on Tx and directly on DB; the Tx
// variants see the transaction's own uncommitted writes, while everything
// outside the transaction keeps observing the last committed state until
// Commit returns.
//
// A transaction holds the database's single write slot from BeginTx until
// Commit or Rollback, and a handle is not safe for concurrent use by
// multiple goroutines. A handle that becomes unreachable while still open
// is rolled back when it is garbage collected, so an abandoned transaction
// cannot wedge the database, though callers should not rely on the timing
// of that safety net.
type Tx struct {
	db *DB
	tx kvdb.RwTx

	// active is true until Commit or Rollback finishes the transaction.
	active bool
}

// BeginTx starts an explicit read/write transaction. If another explicit
// transaction is already open, BeginTx fails immediately with ErrTxBusy
// instead of queueing behind it.
func (d *DB) BeginTx() (*Tx, error) {
	if err := d.beginWrite(); err != nil {
		return nil, err
	}

	kvTx, err := d.Backend.BeginReadWriteTx()
	if err != nil {
		d.endWrite()
		return nil, err
	}

	t := &Tx{
		db:     d,
		tx:     kvTx,
		active: true,
	}

	// Roll abandoned transactions back once their handle becomes
	// unreachable.
	runtime.SetFinalizer(t, (*Tx).finalize)

	return t, nil
}

// Commit makes all of the transaction's writes durable. The underlying
// commit error, if any, is returned as is; a commit that fails has not
// persisted anything. Committing an already finished transaction fails with
// ErrTxClosed.
func (t *Tx) Commit() error {
	if !t.active {
		return ErrTxClosed
	}

	err := t.tx.Commit()
	t.close()

	return err
}

// Rollback discards all of the transaction's writes. Rolling back an
// already finished transaction fails with ErrTxClosed and has no further
// effect on the database.
func (t *Tx) Rollback() error {
	if !t.active {
		return ErrTxClosed
	}

	err := t.tx.Rollback()
	t.close()

	return err
}

// Active returns true as long as the transaction can be used, i.e. it has
// neither been committed nor rolled back.
func (t *Tx) Active() bool {
	return t.active
}

// close releases the write slot and detaches the abandonment guard.
func (t *Tx) close() {
	t.active = false
	runtime.SetFinalizer(t, nil)
	t.db.endWrite()
}

// finalize is invoked by the garbage collector for handles that were
// dropped while still open. The rollback error cannot surface to any
// caller at this point, so it is only logged.
func (t *Tx) finalize() {
	if !t.active {
		return
	}

	log.Warnf("Wallet db transaction abandoned without commit or " +
		"rollback, rolling back")

	if err := t.tx.Rollback(); err != nil {
		log.Errorf("Unable to roll back abandoned transaction: %v",
			err)
	}

	t.close()
}
