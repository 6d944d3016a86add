package walletdb

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/kvdb"
)

// keysetIDVersion is the version prefix of keyset IDs that are derived by
// hashing the keyset's public keys.
const keysetIDVersion = "00"

// KeySet holds the full set of public keys of a keyset, one key per amount
// the mint signs for.
type KeySet struct {
	// ID is the keyset identifier.
	ID string

	// Unit is the currency unit the keyset signs for.
	Unit string

	// Keys maps each amount to the mint public key signing that amount.
	Keys map[uint64]*btcec.PublicKey

	// FinalExpiry is the unix timestamp after which the keyset can no
	// longer be used, if the mint set one.
	FinalExpiry fn.Option[uint64]
}

// sortedAmounts returns the amounts of a key map in ascending order.
func sortedAmounts(keys map[uint64]*btcec.PublicKey) []uint64 {
	amounts := make([]uint64, 0, len(keys))
	for amount := range keys {
		amounts = append(amounts, amount)
	}
	sort.Slice(amounts, func(i, j int) bool {
		return amounts[i] < amounts[j]
	})

	return amounts
}

// KeysetIDFromKeys derives the version 00 identifier of a key set: the
// compressed public keys are concatenated in ascending amount order,
// hashed with SHA-256, and the first 14 hex characters of the digest are
// appended to the version prefix.
func KeysetIDFromKeys(keys map[uint64]*btcec.PublicKey) string {
	digest := sha256.New()
	for _, amount := range sortedAmounts(keys) {
		digest.Write(keys[amount].SerializeCompressed())
	}

	return keysetIDVersion + hex.EncodeToString(digest.Sum(nil))[:14]
}

func serializeKeySet(w io.Writer, keyset KeySet) error {
	if err := writeString(w, keyset.ID); err != nil {
		return err
	}
	if err := writeString(w, keyset.Unit); err != nil {
		return err
	}

	amounts := sortedAmounts(keyset.Keys)
	if err := wire.WriteVarInt(w, 0, uint64(len(amounts))); err != nil {
		return err
	}
	for _, amount := range amounts {
		if err := writeUint64(w, amount); err != nil {
			return err
		}
		if err := writePubKey(w, keyset.Keys[amount]); err != nil {
			return err
		}
	}

	return writeOptUint64(w, keyset.FinalExpiry)
}

func deserializeKeySet(r io.Reader) (KeySet, error) {
	var (
		keyset KeySet
		err    error
	)

	if keyset.ID, err = readString(r); err != nil {
		return keyset, err
	}
	if keyset.Unit, err = readString(r); err != nil {
		return keyset, err
	}

	count, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return keyset, err
	}
	keyset.Keys = make(map[uint64]*btcec.PublicKey, count)
	for i := uint64(0); i < count; i++ {
		amount, err := readUint64(r)
		if err != nil {
			return keyset, err
		}
		key, err := readPubKey(r)
		if err != nil {
			return keyset, err
		}
		keyset.Keys[amount] = key
	}

	if keyset.FinalExpiry, err = readOptUint64(r); err != nil {
		return keyset, err
	}

	return keyset, nil
}

// putKeys stores a full key set after checking that a version 00 ID indeed
// matches the keys it claims to identify. IDs of other versions are stored
// as given.
func putKeys(tx kvdb.RwTx, keyset KeySet) error {
	if keyset.ID == "" {
		return fmt.Errorf("keyset id must not be empty")
	}
	if len(keyset.Keys) == 0 {
		return fmt.Errorf("keyset %v has no keys", keyset.ID)
	}

	if strings.HasPrefix(keyset.ID, keysetIDVersion) &&
		keyset.ID != KeysetIDFromKeys(keyset.Keys) {

		return fmt.Errorf("%w: %v", ErrKeysetIDMismatch, keyset.ID)
	}

	keys, err := fetchTopRwBucket(tx, keysBucket)
	if err != nil {
		return err
	}

	var b bytes.Buffer
	if err := serializeKeySet(&b, keyset); err != nil {
		return err
	}

	return keys.Put([]byte(keyset.ID), b.Bytes())
}

func fetchKeys(tx kvdb.RTx, keysetID string) (fn.Option[KeySet], error) {
	none := fn.None[KeySet]()

	keys, err := fetchTopBucket(tx, keysBucket)
	if err != nil {
		return none, err
	}

	keySetBytes := keys.Get([]byte(keysetID))
	if keySetBytes == nil {
		return none, nil
	}

	keyset, err := deserializeKeySet(bytes.NewReader(keySetBytes))
	if err != nil {
		return none, err
	}

	return fn.Some(keyset), nil
}

func deleteKeys(tx kvdb.RwTx, keysetID string) error {
	keys, err := fetchTopRwBucket(tx, keysBucket)
	if err != nil {
		return err
	}

	return keys.Delete([]byte(keysetID))
}

// AddKeys stores the full public key set of a keyset. Version 00 keyset IDs
// are verified against the keys before storing; a mismatch fails with
// ErrKeysetIDMismatch.
func (d *DB) AddKeys(keyset KeySet) error {
	return d.update(func(tx kvdb.RwTx) error {
		return putKeys(tx, keyset)
	}, func() {})
}

// AddKeys stores the full public key set of a keyset within the
// transaction.
func (t *Tx) AddKeys(keyset KeySet) error {
	if !t.active {
		return ErrTxClosed
	}

	return putKeys(t.tx, keyset)
}

// GetKeys returns the full public key set stored under the given keyset ID,
// or fn.None when no keys are stored for it.
func (d *DB) GetKeys(keysetID string) (fn.Option[KeySet], error) {
	var keyset fn.Option[KeySet]
	err := d.view(func(tx kvdb.RTx) error {
		var err error
		keyset, err = fetchKeys(tx, keysetID)
		return err
	}, func() {
		keyset = fn.None[KeySet]()
	})
	if err != nil {
		return fn.None[KeySet](), err
	}

	return keyset, nil
}

// GetKeys returns the full public key set stored under the given keyset ID
// within the transaction.
func (t *Tx) GetKeys(keysetID string) (fn.Option[KeySet], error) {
	if !t.active {
		return fn.None[KeySet](), ErrTxClosed
	}

	return fetchKeys(t.tx, keysetID)
}

// RemoveKeys deletes the full public key set stored under the given keyset
// ID. Removing unknown keys is a no-op; the keyset's derivation counter is
// not touched.
func (d *DB) RemoveKeys(keysetID string) error {
	return d.update(func(tx kvdb.RwTx) error {
		return deleteKeys(tx, keysetID)
	}, func() {})
}

// RemoveKeys deletes the full public key set stored under the given keyset
// ID within the transaction.
func (t *Tx) RemoveKeys(keysetID string) error {
	if !t.active {
		return ErrTxClosed
	}

	return deleteKeys(t.tx, keysetID)
}
