package walletdb

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/kvdb"
)

const (
	// kvNameAlphabet is the set of bytes allowed in key-value store
	// namespace and key names.
	kvNameAlphabet = "abcdefghijklmnopqrstuvwxyz" +
		"ABCDEFGHIJKLMNOPQRSTUVWXYZ" +
		"0123456789" +
		"_-"

	// kvMaxNameLen is the maximum length in bytes of a single namespace
	// or key name.
	kvMaxNameLen = 120
)

// validateKVName checks a single namespace or key name against the length
// bound and the allowed alphabet. The empty name is valid.
func validateKVName(name string) error {
	if len(name) > kvMaxNameLen {
		return fmt.Errorf("%w: %s", ErrKVNameTooLong, name)
	}

	for i := 0; i < len(name); i++ {
		if strings.IndexByte(kvNameAlphabet, name[i]) < 0 {
			return fmt.Errorf("%w: %q", ErrKVNameInvalid, name)
		}
	}

	return nil
}

// validateKVNamespaces checks a (primary, secondary) namespace pair. A
// non-empty secondary namespace is only allowed below a non-empty primary
// namespace.
func validateKVNamespaces(primary, secondary string) error {
	if err := validateKVName(primary); err != nil {
		return err
	}
	if err := validateKVName(secondary); err != nil {
		return err
	}

	if primary == "" && secondary != "" {
		return ErrKVNamespaceMissing
	}

	return nil
}

// validateKVPath checks the full (primary, secondary, key) triple. Keys
// follow the same name rules as namespaces, must not be empty, and must not
// shadow their own namespace components.
func validateKVPath(primary, secondary, key string) error {
	if err := validateKVNamespaces(primary, secondary); err != nil {
		return err
	}

	if key == "" {
		return ErrKVKeyRequired
	}
	if err := validateKVName(key); err != nil {
		return err
	}

	if key == primary || key == secondary ||
		key == primary+"/"+secondary {

		return fmt.Errorf("%w: %q", ErrKVKeyCollision, key)
	}

	return nil
}

// nsKey maps a namespace name to its bucket key. The empty name maps to a
// one-byte NUL sentinel, which cannot collide with a real name since NUL is
// outside the name alphabet.
func nsKey(name string) []byte {
	if name == "" {
		return []byte{0x00}
	}

	return []byte(name)
}

func putKVValue(tx kvdb.RwTx, primary, secondary, key string,
	value []byte) error {

	root, err := fetchTopRwBucket(tx, kvStoreBucket)
	if err != nil {
		return err
	}

	primaryBucket, err := root.CreateBucketIfNotExists(nsKey(primary))
	if err != nil {
		return err
	}
	secondaryBucket, err := primaryBucket.CreateBucketIfNotExists(
		nsKey(secondary),
	)
	if err != nil {
		return err
	}

	return secondaryBucket.Put([]byte(key), value)
}

func fetchKVValue(tx kvdb.RTx, primary, secondary,
	key string) (fn.Option[[]byte], error) {

	none := fn.None[[]byte]()

	root, err := fetchTopBucket(tx, kvStoreBucket)
	if err != nil {
		return none, err
	}

	primaryBucket := root.NestedReadBucket(nsKey(primary))
	if primaryBucket == nil {
		return none, nil
	}
	secondaryBucket := primaryBucket.NestedReadBucket(nsKey(secondary))
	if secondaryBucket == nil {
		return none, nil
	}

	// A stored empty value and an absent key both come back as nil from
	// Get, so presence is probed with a cursor instead.
	cursor := secondaryBucket.ReadCursor()
	foundKey, value := cursor.Seek([]byte(key))
	if !bytes.Equal(foundKey, []byte(key)) {
		return none, nil
	}

	// The slice is only valid for the life of the transaction, so hand
	// out a copy.
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	return fn.Some(valueCopy), nil
}

func deleteKVValue(tx kvdb.RwTx, primary, secondary, key string) error {
	root, err := fetchTopRwBucket(tx, kvStoreBucket)
	if err != nil {
		return err
	}

	primaryBucket := root.NestedReadWriteBucket(nsKey(primary))
	if primaryBucket == nil {
		return nil
	}
	secondaryBucket := primaryBucket.NestedReadWriteBucket(
		nsKey(secondary),
	)
	if secondaryBucket == nil {
		return nil
	}

	return secondaryBucket.Delete([]byte(key))
}

func listKVKeys(tx kvdb.RTx, primary, secondary string) ([]string, error) {
	root, err := fetchTopBucket(tx, kvStoreBucket)
	if err != nil {
		return nil, err
	}

	primaryBucket := root.NestedReadBucket(nsKey(primary))
	if primaryBucket == nil {
		return nil, nil
	}
	secondaryBucket := primaryBucket.NestedReadBucket(nsKey(secondary))
	if secondaryBucket == nil {
		return nil, nil
	}

	var keys []string
	err = secondaryBucket.ForEach(func(k, _ []byte) error {
		keys = append(keys, string(k))
		return nil
	})
	if err != nil {
		return nil, err
	}

	return keys, nil
}

// KVWrite stores a value under the given namespaced key. Namespace and key
// names are limited to 120 bytes drawn from [a-zA-Z0-9_-], an empty primary
// namespace requires an empty secondary namespace, and keys must not be
// empty. Storing an empty value is allowed and is distinct from the key
// being absent.
func (d *DB) KVWrite(primary, secondary, key string, value []byte) error {
	if err := validateKVPath(primary, secondary, key); err != nil {
		return err
	}

	return d.update(func(tx kvdb.RwTx) error {
		return putKVValue(tx, primary, secondary, key, value)
	}, func() {})
}

// KVWrite stores a value under the given namespaced key within the
// transaction.
func (t *Tx) KVWrite(primary, secondary, key string, value []byte) error {
	if !t.active {
		return ErrTxClosed
	}
	if err := validateKVPath(primary, secondary, key); err != nil {
		return err
	}

	return putKVValue(t.tx, primary, secondary, key, value)
}

// KVRead returns the value stored under the given namespaced key, or
// fn.None when the key is absent.
func (d *DB) KVRead(primary, secondary,
	key string) (fn.Option[[]byte], error) {

	if err := validateKVPath(primary, secondary, key); err != nil {
		return fn.None[[]byte](), err
	}

	var value fn.Option[[]byte]
	err := d.view(func(tx kvdb.RTx) error {
		var err error
		value, err = fetchKVValue(tx, primary, secondary, key)
		return err
	}, func() {
		value = fn.None[[]byte]()
	})
	if err != nil {
		return fn.None[[]byte](), err
	}

	return value, nil
}

// KVRead returns the value stored under the given namespaced key within the
// transaction, observing the transaction's own writes.
func (t *Tx) KVRead(primary, secondary,
	key string) (fn.Option[[]byte], error) {

	if !t.active {
		return fn.None[[]byte](), ErrTxClosed
	}
	if err := validateKVPath(primary, secondary, key); err != nil {
		return fn.None[[]byte](), err
	}

	return fetchKVValue(t.tx, primary, secondary, key)
}

// KVRemove deletes the given namespaced key. Removing an absent key is a
// no-op.
func (d *DB) KVRemove(primary, secondary, key string) error {
	if err := validateKVPath(primary, secondary, key); err != nil {
		return err
	}

	return d.update(func(tx kvdb.RwTx) error {
		return deleteKVValue(tx, primary, secondary, key)
	}, func() {})
}

// KVRemove deletes the given namespaced key within the transaction.
func (t *Tx) KVRemove(primary, secondary, key string) error {
	if !t.active {
		return ErrTxClosed
	}
	if err := validateKVPath(primary, secondary, key); err != nil {
		return err
	}

	return deleteKVValue(t.tx, primary, secondary, key)
}

// KVList returns all keys below the given namespace pair in lexicographic
// order. Listing a namespace that was never written yields no keys and no
// error.
func (d *DB) KVList(primary, secondary string) ([]string, error) {
	if err := validateKVNamespaces(primary, secondary); err != nil {
		return nil, err
	}

	var keys []string
	err := d.view(func(tx kvdb.RTx) error {
		var err error
		keys, err = listKVKeys(tx, primary, secondary)
		return err
	}, func() {
		keys = nil
	})
	if err != nil {
		return nil, err
	}

	return keys, nil
}

// KVList returns all keys below the given namespace pair within the
// transaction, in lexicographic order.
func (t *Tx) KVList(primary, secondary string) ([]string, error) {
	if !t.active {
		return nil, ErrTxClosed
	}
	if err := validateKVNamespaces(primary, secondary); err != nil {
		return nil, err
	}

	return listKVKeys(t.tx, primary, secondary)
}
