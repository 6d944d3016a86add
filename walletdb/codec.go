package walletdb

import (
	"encoding/binary"
	"io"
	"sort"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// byteOrder is the preferred byte order used for serializing numeric fields.
// Big endian is chosen so that cursor scans over integer keys iterate in
// order.
var byteOrder = binary.BigEndian

func writeUint8(w io.Writer, n uint8) error {
	_, err := w.Write([]byte{n})
	return err
}

func readUint8(r io.Reader) (uint8, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}

	return buf[0], nil
}

func writeBool(w io.Writer, b bool) error {
	if b {
		return writeUint8(w, 1)
	}

	return writeUint8(w, 0)
}

func readBool(r io.Reader) (bool, error) {
	n, err := readUint8(r)
	if err != nil {
		return false, err
	}

	return n != 0, nil
}

func writeUint64(w io.Writer, n uint64) error {
	var buf [8]byte
	byteOrder.PutUint64(buf[:], n)

	_, err := w.Write(buf[:])
	return err
}

func readUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}

	return byteOrder.Uint64(buf[:]), nil
}

func writeString(w io.Writer, s string) error {
	return wire.WriteVarString(w, 0, s)
}

func readString(r io.Reader) (string, error) {
	return wire.ReadVarString(r, 0)
}

// writeTime serializes a timestamp with second precision, which is the
// resolution the wallet protocol uses on the wire.
func writeTime(w io.Writer, t time.Time) error {
	return writeUint64(w, uint64(t.Unix()))
}

func readTime(r io.Reader) (time.Time, error) {
	unix, err := readUint64(r)
	if err != nil {
		return time.Time{}, err
	}

	return time.Unix(int64(unix), 0), nil
}

func writePubKey(w io.Writer, key *btcec.PublicKey) error {
	_, err := w.Write(key.SerializeCompressed())
	return err
}

func readPubKey(r io.Reader) (*btcec.PublicKey, error) {
	var buf [btcec.PubKeyBytesLenCompressed]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, err
	}

	return btcec.ParsePubKey(buf[:])
}

func writePrivKey(w io.Writer, key *btcec.PrivateKey) error {
	_, err := w.Write(key.Serialize())
	return err
}

func readPrivKey(r io.Reader) (*btcec.PrivateKey, error) {
	var buf [btcec.PrivKeyBytesLen]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, err
	}

	priv, _ := btcec.PrivKeyFromBytes(buf[:])
	return priv, nil
}

func writeOptString(w io.Writer, opt fn.Option[string]) error {
	if opt.IsNone() {
		return writeBool(w, false)
	}

	if err := writeBool(w, true); err != nil {
		return err
	}

	return writeString(w, opt.UnwrapOr(""))
}

func readOptString(r io.Reader) (fn.Option[string], error) {
	set, err := readBool(r)
	if err != nil || !set {
		return fn.None[string](), err
	}

	s, err := readString(r)
	if err != nil {
		return fn.None[string](), err
	}

	return fn.Some(s), nil
}

func writeOptUint64(w io.Writer, opt fn.Option[uint64]) error {
	if opt.IsNone() {
		return writeBool(w, false)
	}

	if err := writeBool(w, true); err != nil {
		return err
	}

	return writeUint64(w, opt.UnwrapOr(0))
}

func readOptUint64(r io.Reader) (fn.Option[uint64], error) {
	set, err := readBool(r)
	if err != nil || !set {
		return fn.None[uint64](), err
	}

	n, err := readUint64(r)
	if err != nil {
		return fn.None[uint64](), err
	}

	return fn.Some(n), nil
}

func writeOptPubKey(w io.Writer, opt fn.Option[*btcec.PublicKey]) error {
	if opt.IsNone() {
		return writeBool(w, false)
	}

	if err := writeBool(w, true); err != nil {
		return err
	}

	return writePubKey(w, opt.UnwrapOr(nil))
}

func readOptPubKey(r io.Reader) (fn.Option[*btcec.PublicKey], error) {
	set, err := readBool(r)
	if err != nil || !set {
		return fn.None[*btcec.PublicKey](), err
	}

	key, err := readPubKey(r)
	if err != nil {
		return fn.None[*btcec.PublicKey](), err
	}

	return fn.Some(key), nil
}

func writeOptPrivKey(w io.Writer, opt fn.Option[*btcec.PrivateKey]) error {
	if opt.IsNone() {
		return writeBool(w, false)
	}

	if err := writeBool(w, true); err != nil {
		return err
	}

	return writePrivKey(w, opt.UnwrapOr(nil))
}

func readOptPrivKey(r io.Reader) (fn.Option[*btcec.PrivateKey], error) {
	set, err := readBool(r)
	if err != nil || !set {
		return fn.None[*btcec.PrivateKey](), err
	}

	key, err := readPrivKey(r)
	if err != nil {
		return fn.None[*btcec.PrivateKey](), err
	}

	return fn.Some(key), nil
}

func writeStrings(w io.Writer, strs []string) error {
	if err := wire.WriteVarInt(w, 0, uint64(len(strs))); err != nil {
		return err
	}

	for _, s := range strs {
		if err := writeString(w, s); err != nil {
			return err
		}
	}

	return nil
}

func readStrings(r io.Reader) ([]string, error) {
	count, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	strs := make([]string, 0, count)
	for i := uint64(0); i < count; i++ {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		strs = append(strs, s)
	}

	return strs, nil
}

func writePubKeys(w io.Writer, keys []*btcec.PublicKey) error {
	if err := wire.WriteVarInt(w, 0, uint64(len(keys))); err != nil {
		return err
	}

	for _, key := range keys {
		if err := writePubKey(w, key); err != nil {
			return err
		}
	}

	return nil
}

func readPubKeys(r io.Reader) ([]*btcec.PublicKey, error) {
	count, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	keys := make([]*btcec.PublicKey, 0, count)
	for i := uint64(0); i < count; i++ {
		key, err := readPubKey(r)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	return keys, nil
}

// writeStringMap serializes a string map with its keys in sorted order so
// that the encoding of a given map is deterministic.
func writeStringMap(w io.Writer, m map[string]string) error {
	if err := wire.WriteVarInt(w, 0, uint64(len(m))); err != nil {
		return err
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := writeString(w, k); err != nil {
			return err
		}
		if err := writeString(w, m[k]); err != nil {
			return err
		}
	}

	return nil
}

func readStringMap(r io.Reader) (map[string]string, error) {
	count, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	m := make(map[string]string, count)
	for i := uint64(0); i < count; i++ {
		k, err := readString(r)
		if err != nil {
			return nil, err
		}
		v, err := readString(r)
		if err != nil {
			return nil, err
		}
		m[k] = v
	}

	return m, nil
}
