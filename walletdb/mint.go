package walletdb

import (
	"bytes"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/kvdb"
)

// MintInfo carries the self-description a mint publishes about itself.
type MintInfo struct {
	// Name is the mint's display name.
	Name string

	// Pubkey is the mint's identity key, if it advertises one.
	Pubkey fn.Option[*btcec.PublicKey]

	// Version is the implementation name and version string.
	Version string

	// Description is a one-line description of the mint.
	Description string

	// DescriptionLong is an extended description of the mint.
	DescriptionLong string

	// Contact lists the mint's contact addresses.
	Contact []string

	// MOTD is the mint's current message of the day.
	MOTD string

	// IconURL points to an icon for the mint.
	IconURL string

	// URLs lists alternative endpoints the mint is reachable on.
	URLs []string

	// Time is the unix timestamp the info was generated at.
	Time uint64

	// TosURL points to the mint's terms of service.
	TosURL string
}

// Mint associates a mint URL with the most recently fetched info document.
// A mint can be known before its info was ever fetched, in which case Info
// is None.
type Mint struct {
	// MintURL uniquely identifies the mint.
	MintURL string

	// Info is the mint's last known self-description.
	Info fn.Option[MintInfo]
}

func serializeMintInfo(w io.Writer, info MintInfo) error {
	if err := writeString(w, info.Name); err != nil {
		return err
	}
	if err := writeOptPubKey(w, info.Pubkey); err != nil {
		return err
	}
	if err := writeString(w, info.Version); err != nil {
		return err
	}
	if err := writeString(w, info.Description); err != nil {
		return err
	}
	if err := writeString(w, info.DescriptionLong); err != nil {
		return err
	}
	if err := writeStrings(w, info.Contact); err != nil {
		return err
	}
	if err := writeString(w, info.MOTD); err != nil {
		return err
	}
	if err := writeString(w, info.IconURL); err != nil {
		return err
	}
	if err := writeStrings(w, info.URLs); err != nil {
		return err
	}
	if err := writeUint64(w, info.Time); err != nil {
		return err
	}

	return writeString(w, info.TosURL)
}

func deserializeMintInfo(r io.Reader) (MintInfo, error) {
	var (
		info MintInfo
		err  error
	)

	if info.Name, err = readString(r); err != nil {
		return info, err
	}
	if info.Pubkey, err = readOptPubKey(r); err != nil {
		return info, err
	}
	if info.Version, err = readString(r); err != nil {
		return info, err
	}
	if info.Description, err = readString(r); err != nil {
		return info, err
	}
	if info.DescriptionLong, err = readString(r); err != nil {
		return info, err
	}
	if info.Contact, err = readStrings(r); err != nil {
		return info, err
	}
	if info.MOTD, err = readString(r); err != nil {
		return info, err
	}
	if info.IconURL, err = readString(r); err != nil {
		return info, err
	}
	if info.URLs, err = readStrings(r); err != nil {
		return info, err
	}
	if info.Time, err = readUint64(r); err != nil {
		return info, err
	}
	if info.TosURL, err = readString(r); err != nil {
		return info, err
	}

	return info, nil
}

func serializeMint(w io.Writer, mint Mint) error {
	if err := writeString(w, mint.MintURL); err != nil {
		return err
	}

	if mint.Info.IsNone() {
		return writeBool(w, false)
	}
	if err := writeBool(w, true); err != nil {
		return err
	}

	return serializeMintInfo(w, mint.Info.UnwrapOr(MintInfo{}))
}

func deserializeMint(r io.Reader) (Mint, error) {
	var (
		mint Mint
		err  error
	)

	if mint.MintURL, err = readString(r); err != nil {
		return mint, err
	}

	hasInfo, err := readBool(r)
	if err != nil {
		return mint, err
	}
	mint.Info = fn.None[MintInfo]()
	if hasInfo {
		info, err := deserializeMintInfo(r)
		if err != nil {
			return mint, err
		}
		mint.Info = fn.Some(info)
	}

	return mint, nil
}

func putMint(tx kvdb.RwTx, mint Mint) error {
	if mint.MintURL == "" {
		return fmt.Errorf("mint url must not be empty")
	}

	mints, err := fetchTopRwBucket(tx, mintBucket)
	if err != nil {
		return err
	}

	var b bytes.Buffer
	if err := serializeMint(&b, mint); err != nil {
		return err
	}

	return mints.Put([]byte(mint.MintURL), b.Bytes())
}

func fetchMint(tx kvdb.RTx, mintURL string) (fn.Option[Mint], error) {
	none := fn.None[Mint]()

	mints, err := fetchTopBucket(tx, mintBucket)
	if err != nil {
		return none, err
	}

	mintBytes := mints.Get([]byte(mintURL))
	if mintBytes == nil {
		return none, nil
	}

	mint, err := deserializeMint(bytes.NewReader(mintBytes))
	if err != nil {
		return none, err
	}

	return fn.Some(mint), nil
}

func fetchMints(tx kvdb.RTx) ([]Mint, error) {
	mints, err := fetchTopBucket(tx, mintBucket)
	if err != nil {
		return nil, err
	}

	var result []Mint
	err = mints.ForEach(func(_, v []byte) error {
		mint, err := deserializeMint(bytes.NewReader(v))
		if err != nil {
			return err
		}
		result = append(result, mint)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// deleteMint removes the mint record and the keyset metadata issued by the
// mint. The full key sets and the derivation counters survive removal so
// that a wallet restored against the same mint later keeps deriving unique
// secrets.
func deleteMint(tx kvdb.RwTx, mintURL string) error {
	mints, err := fetchTopRwBucket(tx, mintBucket)
	if err != nil {
		return err
	}
	if err := mints.Delete([]byte(mintURL)); err != nil {
		return err
	}

	index, err := fetchTopRwBucket(tx, mintKeysetsBucket)
	if err != nil {
		return err
	}
	mintIndex := index.NestedReadWriteBucket([]byte(mintURL))
	if mintIndex == nil {
		return nil
	}

	keysets, err := fetchTopRwBucket(tx, keysetBucket)
	if err != nil {
		return err
	}
	err = mintIndex.ForEach(func(id, _ []byte) error {
		return keysets.Delete(id)
	})
	if err != nil {
		return err
	}

	return index.DeleteNestedBucket([]byte(mintURL))
}

// updateMintURL rewrites the mint URL carried by all mint quotes and proofs
// that reference the old URL. The mint record itself is left alone, since a
// fresh record for the new URL is created when the wallet first contacts
// the relocated mint.
func updateMintURL(tx kvdb.RwTx, oldURL, newURL string) error {
	if newURL == "" {
		return fmt.Errorf("mint url must not be empty")
	}

	quotes, err := fetchTopRwBucket(tx, mintQuoteBucket)
	if err != nil {
		return err
	}

	// Mutating a bucket while iterating it is not sound, so rewrites are
	// collected first and applied after the scan.
	quoteUpdates := make(map[string][]byte)
	err = quotes.ForEach(func(k, v []byte) error {
		quote, err := deserializeMintQuote(bytes.NewReader(v))
		if err != nil {
			return err
		}
		if quote.MintURL != oldURL {
			return nil
		}

		quote.MintURL = newURL
		var b bytes.Buffer
		if err := serializeMintQuote(&b, quote); err != nil {
			return err
		}
		quoteUpdates[string(k)] = b.Bytes()

		return nil
	})
	if err != nil {
		return err
	}
	for k, v := range quoteUpdates {
		if err := quotes.Put([]byte(k), v); err != nil {
			return err
		}
	}

	proofs, err := fetchTopRwBucket(tx, proofBucket)
	if err != nil {
		return err
	}

	proofUpdates := make(map[string][]byte)
	err = proofs.ForEach(func(k, v []byte) error {
		proof, err := deserializeProofInfo(bytes.NewReader(v))
		if err != nil {
			return err
		}
		if proof.MintURL != oldURL {
			return nil
		}

		proof.MintURL = newURL
		var b bytes.Buffer
		if err := serializeProofInfo(&b, proof); err != nil {
			return err
		}
		proofUpdates[string(k)] = b.Bytes()

		return nil
	})
	if err != nil {
		return err
	}
	for k, v := range proofUpdates {
		if err := proofs.Put([]byte(k), v); err != nil {
			return err
		}
	}

	return nil
}

// AddMint stores the given mint, replacing any previous record under the
// same URL.
func (d *DB) AddMint(mint Mint) error {
	return d.update(func(tx kvdb.RwTx) error {
		return putMint(tx, mint)
	}, func() {})
}

// AddMint stores the given mint within the transaction.
func (t *Tx) AddMint(mint Mint) error {
	if !t.active {
		return ErrTxClosed
	}

	return putMint(t.tx, mint)
}

// GetMint returns the mint stored under the given URL, or fn.None when the
// mint is unknown.
func (d *DB) GetMint(mintURL string) (fn.Option[Mint], error) {
	var mint fn.Option[Mint]
	err := d.view(func(tx kvdb.RTx) error {
		var err error
		mint, err = fetchMint(tx, mintURL)
		return err
	}, func() {
		mint = fn.None[Mint]()
	})
	if err != nil {
		return fn.None[Mint](), err
	}

	return mint, nil
}

// GetMint returns the mint stored under the given URL within the
// transaction.
func (t *Tx) GetMint(mintURL string) (fn.Option[Mint], error) {
	if !t.active {
		return fn.None[Mint](), ErrTxClosed
	}

	return fetchMint(t.tx, mintURL)
}

// GetMints returns all known mints in URL order.
func (d *DB) GetMints() ([]Mint, error) {
	var mints []Mint
	err := d.view(func(tx kvdb.RTx) error {
		var err error
		mints, err = fetchMints(tx)
		return err
	}, func() {
		mints = nil
	})
	if err != nil {
		return nil, err
	}

	return mints, nil
}

// GetMints returns all known mints within the transaction.
func (t *Tx) GetMints() ([]Mint, error) {
	if !t.active {
		return nil, ErrTxClosed
	}

	return fetchMints(t.tx)
}

// RemoveMint deletes the mint stored under the given URL along with its
// keyset metadata. Derivation counters and raw keys are kept. Removing an
// unknown mint is a no-op.
func (d *DB) RemoveMint(mintURL string) error {
	return d.update(func(tx kvdb.RwTx) error {
		return deleteMint(tx, mintURL)
	}, func() {})
}

// RemoveMint deletes the mint stored under the given URL within the
// transaction.
func (t *Tx) RemoveMint(mintURL string) error {
	if !t.active {
		return ErrTxClosed
	}

	return deleteMint(t.tx, mintURL)
}

// UpdateMintURL points all mint quotes and proofs that reference the old
// URL at the new one, for wallets following a mint that moved.
func (d *DB) UpdateMintURL(oldURL, newURL string) error {
	return d.update(func(tx kvdb.RwTx) error {
		return updateMintURL(tx, oldURL, newURL)
	}, func() {})
}

// UpdateMintURL points all mint quotes and proofs that reference the old
// URL at the new one within the transaction.
func (t *Tx) UpdateMintURL(oldURL, newURL string) error {
	if !t.active {
		return ErrTxClosed
	}

	return updateMintURL(t.tx, oldURL, newURL)
}
