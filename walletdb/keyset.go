package walletdb

import (
	"bytes"
	"fmt"
	"io"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/kvdb"
)

// KeysetInfo describes a keyset as advertised by its mint, without the
// actual signing keys.
type KeysetInfo struct {
	// ID is the keyset identifier derived from the keyset's public keys.
	ID string

	// Unit is the currency unit the keyset signs for.
	Unit string

	// Active indicates whether the mint currently signs with this
	// keyset.
	Active bool

	// InputFeePPK is the fee in parts per thousand charged per proof
	// spent from this keyset.
	InputFeePPK uint64

	// FinalExpiry is the unix timestamp after which the keyset can no
	// longer be used, if the mint set one.
	FinalExpiry fn.Option[uint64]
}

func serializeKeysetInfo(w io.Writer, keyset KeysetInfo) error {
	if err := writeString(w, keyset.ID); err != nil {
		return err
	}
	if err := writeString(w, keyset.Unit); err != nil {
		return err
	}
	if err := writeBool(w, keyset.Active); err != nil {
		return err
	}
	if err := writeUint64(w, keyset.InputFeePPK); err != nil {
		return err
	}

	return writeOptUint64(w, keyset.FinalExpiry)
}

func deserializeKeysetInfo(r io.Reader) (KeysetInfo, error) {
	var (
		keyset KeysetInfo
		err    error
	)

	if keyset.ID, err = readString(r); err != nil {
		return keyset, err
	}
	if keyset.Unit, err = readString(r); err != nil {
		return keyset, err
	}
	if keyset.Active, err = readBool(r); err != nil {
		return keyset, err
	}
	if keyset.InputFeePPK, err = readUint64(r); err != nil {
		return keyset, err
	}
	if keyset.FinalExpiry, err = readOptUint64(r); err != nil {
		return keyset, err
	}

	return keyset, nil
}

// putMintKeysets stores every keyset both in the global keyset bucket and
// in the per-mint index, replacing existing records wholesale.
func putMintKeysets(tx kvdb.RwTx, mintURL string,
	keysets []KeysetInfo) error {

	if mintURL == "" {
		return fmt.Errorf("mint url must not be empty")
	}

	global, err := fetchTopRwBucket(tx, keysetBucket)
	if err != nil {
		return err
	}
	index, err := fetchTopRwBucket(tx, mintKeysetsBucket)
	if err != nil {
		return err
	}
	mintIndex, err := index.CreateBucketIfNotExists([]byte(mintURL))
	if err != nil {
		return err
	}

	for _, keyset := range keysets {
		if keyset.ID == "" {
			return fmt.Errorf("keyset id must not be empty")
		}

		var b bytes.Buffer
		if err := serializeKeysetInfo(&b, keyset); err != nil {
			return err
		}

		id := []byte(keyset.ID)
		if err := global.Put(id, b.Bytes()); err != nil {
			return err
		}
		if err := mintIndex.Put(id, b.Bytes()); err != nil {
			return err
		}
	}

	return nil
}

func fetchMintKeysets(tx kvdb.RTx, mintURL string) ([]KeysetInfo, error) {
	index, err := fetchTopBucket(tx, mintKeysetsBucket)
	if err != nil {
		return nil, err
	}

	mintIndex := index.NestedReadBucket([]byte(mintURL))
	if mintIndex == nil {
		return nil, nil
	}

	var keysets []KeysetInfo
	err = mintIndex.ForEach(func(_, v []byte) error {
		keyset, err := deserializeKeysetInfo(bytes.NewReader(v))
		if err != nil {
			return err
		}
		keysets = append(keysets, keyset)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return keysets, nil
}

func fetchKeysetByID(tx kvdb.RTx,
	keysetID string) (fn.Option[KeysetInfo], error) {

	none := fn.None[KeysetInfo]()

	global, err := fetchTopBucket(tx, keysetBucket)
	if err != nil {
		return none, err
	}

	keysetBytes := global.Get([]byte(keysetID))
	if keysetBytes == nil {
		return none, nil
	}

	keyset, err := deserializeKeysetInfo(bytes.NewReader(keysetBytes))
	if err != nil {
		return none, err
	}

	return fn.Some(keyset), nil
}

// incrementKeysetCounter adds delta to the keyset's derivation counter and
// returns the counter's new value. A counter that was never written before
// reads as zero. A zero delta leaves the stored value untouched.
func incrementKeysetCounter(tx kvdb.RwTx, keysetID string,
	delta uint64) (uint64, error) {

	if keysetID == "" {
		return 0, fmt.Errorf("keyset id must not be empty")
	}

	counters, err := fetchTopRwBucket(tx, counterBucket)
	if err != nil {
		return 0, err
	}

	var current uint64
	if counterBytes := counters.Get([]byte(keysetID)); len(counterBytes) == 8 {
		current = byteOrder.Uint64(counterBytes)
	}

	if delta == 0 {
		return current, nil
	}

	next := current + delta
	var counterBytes [8]byte
	byteOrder.PutUint64(counterBytes[:], next)

	if err := counters.Put([]byte(keysetID), counterBytes[:]); err != nil {
		return 0, err
	}

	return next, nil
}

// AddMintKeysets stores the given keysets for a mint. A keyset that is
// added again under the same ID is replaced in full.
func (d *DB) AddMintKeysets(mintURL string, keysets []KeysetInfo) error {
	return d.update(func(tx kvdb.RwTx) error {
		return putMintKeysets(tx, mintURL, keysets)
	}, func() {})
}

// AddMintKeysets stores the given keysets for a mint within the
// transaction.
func (t *Tx) AddMintKeysets(mintURL string, keysets []KeysetInfo) error {
	if !t.active {
		return ErrTxClosed
	}

	return putMintKeysets(t.tx, mintURL, keysets)
}

// GetMintKeysets returns all keysets known for the given mint, in keyset ID
// order.
func (d *DB) GetMintKeysets(mintURL string) ([]KeysetInfo, error) {
	var keysets []KeysetInfo
	err := d.view(func(tx kvdb.RTx) error {
		var err error
		keysets, err = fetchMintKeysets(tx, mintURL)
		return err
	}, func() {
		keysets = nil
	})
	if err != nil {
		return nil, err
	}

	return keysets, nil
}

// GetMintKeysets returns all keysets known for the given mint within the
// transaction.
func (t *Tx) GetMintKeysets(mintURL string) ([]KeysetInfo, error) {
	if !t.active {
		return nil, ErrTxClosed
	}

	return fetchMintKeysets(t.tx, mintURL)
}

// GetKeysetByID returns the keyset stored under the given ID, or fn.None
// when the keyset is unknown.
func (d *DB) GetKeysetByID(keysetID string) (fn.Option[KeysetInfo], error) {
	var keyset fn.Option[KeysetInfo]
	err := d.view(func(tx kvdb.RTx) error {
		var err error
		keyset, err = fetchKeysetByID(tx, keysetID)
		return err
	}, func() {
		keyset = fn.None[KeysetInfo]()
	})
	if err != nil {
		return fn.None[KeysetInfo](), err
	}

	return keyset, nil
}

// GetKeysetByID returns the keyset stored under the given ID within the
// transaction.
func (t *Tx) GetKeysetByID(keysetID string) (fn.Option[KeysetInfo], error) {
	if !t.active {
		return fn.None[KeysetInfo](), ErrTxClosed
	}

	return fetchKeysetByID(t.tx, keysetID)
}

// IncrementKeysetCounter adds delta to the keyset's secret derivation
// counter and returns the new value. The counter starts at zero for unknown
// keysets, and a zero delta reads the current value without modifying it.
// Read and write happen in one atomic step, so concurrent increments can
// never hand out the same derivation index twice. Counters survive keyset
// and mint removal.
func (d *DB) IncrementKeysetCounter(keysetID string,
	delta uint64) (uint64, error) {

	var counter uint64
	err := d.update(func(tx kvdb.RwTx) error {
		var err error
		counter, err = incrementKeysetCounter(tx, keysetID, delta)
		return err
	}, func() {
		counter = 0
	})
	if err != nil {
		return 0, err
	}

	return counter, nil
}

// IncrementKeysetCounter adds delta to the keyset's secret derivation
// counter within the transaction and returns the new value. The new value
// is only observable outside the transaction once it commits.
func (t *Tx) IncrementKeysetCounter(keysetID string,
	delta uint64) (uint64, error) {

	if !t.active {
		return 0, ErrTxClosed
	}

	return incrementKeysetCounter(t.tx, keysetID, delta)
}
