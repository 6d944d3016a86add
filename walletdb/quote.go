package walletdb

import (
	"bytes"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/kvdb"
)

// PaymentMethod identifies the payment rail a quote settles over. Methods
// outside the well-known constants pass through verbatim.
type PaymentMethod string

const (
	// PaymentMethodBolt11 settles over a bolt11 invoice.
	PaymentMethodBolt11 PaymentMethod = "bolt11"

	// PaymentMethodBolt12 settles over a bolt12 offer. Offers are
	// reusable, so a bolt12 quote can be minted against repeatedly.
	PaymentMethodBolt12 PaymentMethod = "bolt12"
)

// MintQuoteState is the lifecycle state of a mint quote.
type MintQuoteState uint8

const (
	// MintQuoteStateUnpaid indicates the quote's payment request has not
	// been paid yet.
	MintQuoteStateUnpaid MintQuoteState = iota

	// MintQuoteStatePaid indicates the payment request was paid but no
	// ecash has been issued against it.
	MintQuoteStatePaid

	// MintQuoteStateIssued indicates ecash has been issued for the
	// quote.
	MintQuoteStateIssued
)

// String returns a human readable representation of the state.
func (s MintQuoteState) String() string {
	switch s {
	case MintQuoteStateUnpaid:
		return "Unpaid"
	case MintQuoteStatePaid:
		return "Paid"
	case MintQuoteStateIssued:
		return "Issued"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// MeltQuoteState is the lifecycle state of a melt quote.
type MeltQuoteState uint8

const (
	// MeltQuoteStateUnpaid indicates the melt has not been attempted.
	MeltQuoteStateUnpaid MeltQuoteState = iota

	// MeltQuoteStatePending indicates the outgoing payment is in flight.
	MeltQuoteStatePending

	// MeltQuoteStatePaid indicates the outgoing payment settled.
	MeltQuoteStatePaid

	// MeltQuoteStateUnknown indicates the mint could not determine the
	// payment's outcome.
	MeltQuoteStateUnknown

	// MeltQuoteStateFailed indicates the outgoing payment failed.
	MeltQuoteStateFailed
)

// String returns a human readable representation of the state.
func (s MeltQuoteState) String() string {
	switch s {
	case MeltQuoteStateUnpaid:
		return "Unpaid"
	case MeltQuoteStatePending:
		return "Pending"
	case MeltQuoteStatePaid:
		return "Paid"
	case MeltQuoteStateUnknown:
		return "Unknown"
	case MeltQuoteStateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// MintQuote is a quote for minting new ecash against a payment to the mint.
type MintQuote struct {
	// ID is the mint assigned quote identifier.
	ID string

	// MintURL is the mint that issued the quote.
	MintURL string

	// PaymentMethod is the rail the quote settles over.
	PaymentMethod PaymentMethod

	// Amount is the amount quoted, if fixed up front. Amountless bolt12
	// offers leave it unset.
	Amount fn.Option[uint64]

	// Unit is the currency unit of the quote.
	Unit string

	// Request is the payment request to pay.
	Request string

	// State is the quote's lifecycle state.
	State MintQuoteState

	// Expiry is the unix timestamp the quote expires at.
	Expiry uint64

	// SecretKey signs mint requests for quotes that are locked to a key.
	SecretKey fn.Option[*btcec.PrivateKey]

	// AmountMinted is the total amount of ecash issued against the
	// quote so far.
	AmountMinted uint64

	// AmountPaid is the total amount paid into the quote so far.
	AmountPaid uint64
}

// MeltQuote is a quote for melting ecash into an outgoing payment.
type MeltQuote struct {
	// ID is the mint assigned quote identifier.
	ID string

	// Unit is the currency unit of the quote.
	Unit string

	// Amount is the amount to melt.
	Amount uint64

	// Request is the payment request being paid.
	Request string

	// FeeReserve is the fee budget reserved for the payment.
	FeeReserve uint64

	// State is the quote's lifecycle state.
	State MeltQuoteState

	// Expiry is the unix timestamp the quote expires at.
	Expiry uint64

	// PaymentPreimage is the settlement proof, once the payment
	// succeeded.
	PaymentPreimage fn.Option[string]

	// PaymentMethod is the rail the quote settles over.
	PaymentMethod PaymentMethod
}

func serializeMintQuote(w io.Writer, quote MintQuote) error {
	if err := writeString(w, quote.ID); err != nil {
		return err
	}
	if err := writeString(w, quote.MintURL); err != nil {
		return err
	}
	if err := writeString(w, string(quote.PaymentMethod)); err != nil {
		return err
	}
	if err := writeOptUint64(w, quote.Amount); err != nil {
		return err
	}
	if err := writeString(w, quote.Unit); err != nil {
		return err
	}
	if err := writeString(w, quote.Request); err != nil {
		return err
	}
	if err := writeUint8(w, uint8(quote.State)); err != nil {
		return err
	}
	if err := writeUint64(w, quote.Expiry); err != nil {
		return err
	}
	if err := writeOptPrivKey(w, quote.SecretKey); err != nil {
		return err
	}
	if err := writeUint64(w, quote.AmountMinted); err != nil {
		return err
	}

	return writeUint64(w, quote.AmountPaid)
}

func deserializeMintQuote(r io.Reader) (MintQuote, error) {
	var (
		quote MintQuote
		err   error
	)

	if quote.ID, err = readString(r); err != nil {
		return quote, err
	}
	if quote.MintURL, err = readString(r); err != nil {
		return quote, err
	}

	method, err := readString(r)
	if err != nil {
		return quote, err
	}
	quote.PaymentMethod = PaymentMethod(method)

	if quote.Amount, err = readOptUint64(r); err != nil {
		return quote, err
	}
	if quote.Unit, err = readString(r); err != nil {
		return quote, err
	}
	if quote.Request, err = readString(r); err != nil {
		return quote, err
	}

	state, err := readUint8(r)
	if err != nil {
		return quote, err
	}
	quote.State = MintQuoteState(state)

	if quote.Expiry, err = readUint64(r); err != nil {
		return quote, err
	}
	if quote.SecretKey, err = readOptPrivKey(r); err != nil {
		return quote, err
	}
	if quote.AmountMinted, err = readUint64(r); err != nil {
		return quote, err
	}
	if quote.AmountPaid, err = readUint64(r); err != nil {
		return quote, err
	}

	return quote, nil
}

func serializeMeltQuote(w io.Writer, quote MeltQuote) error {
	if err := writeString(w, quote.ID); err != nil {
		return err
	}
	if err := writeString(w, quote.Unit); err != nil {
		return err
	}
	if err := writeUint64(w, quote.Amount); err != nil {
		return err
	}
	if err := writeString(w, quote.Request); err != nil {
		return err
	}
	if err := writeUint64(w, quote.FeeReserve); err != nil {
		return err
	}
	if err := writeUint8(w, uint8(quote.State)); err != nil {
		return err
	}
	if err := writeUint64(w, quote.Expiry); err != nil {
		return err
	}
	if err := writeOptString(w, quote.PaymentPreimage); err != nil {
		return err
	}

	return writeString(w, string(quote.PaymentMethod))
}

func deserializeMeltQuote(r io.Reader) (MeltQuote, error) {
	var (
		quote MeltQuote
		err   error
	)

	if quote.ID, err = readString(r); err != nil {
		return quote, err
	}
	if quote.Unit, err = readString(r); err != nil {
		return quote, err
	}
	if quote.Amount, err = readUint64(r); err != nil {
		return quote, err
	}
	if quote.Request, err = readString(r); err != nil {
		return quote, err
	}
	if quote.FeeReserve, err = readUint64(r); err != nil {
		return quote, err
	}

	state, err := readUint8(r)
	if err != nil {
		return quote, err
	}
	quote.State = MeltQuoteState(state)

	if quote.Expiry, err = readUint64(r); err != nil {
		return quote, err
	}
	if quote.PaymentPreimage, err = readOptString(r); err != nil {
		return quote, err
	}

	method, err := readString(r)
	if err != nil {
		return quote, err
	}
	quote.PaymentMethod = PaymentMethod(method)

	return quote, nil
}

func putMintQuote(tx kvdb.RwTx, quote MintQuote) error {
	if quote.ID == "" {
		return fmt.Errorf("quote id must not be empty")
	}

	quotes, err := fetchTopRwBucket(tx, mintQuoteBucket)
	if err != nil {
		return err
	}

	var b bytes.Buffer
	if err := serializeMintQuote(&b, quote); err != nil {
		return err
	}

	return quotes.Put([]byte(quote.ID), b.Bytes())
}

func fetchMintQuote(tx kvdb.RTx,
	quoteID string) (fn.Option[MintQuote], error) {

	none := fn.None[MintQuote]()

	quotes, err := fetchTopBucket(tx, mintQuoteBucket)
	if err != nil {
		return none, err
	}

	quoteBytes := quotes.Get([]byte(quoteID))
	if quoteBytes == nil {
		return none, nil
	}

	quote, err := deserializeMintQuote(bytes.NewReader(quoteBytes))
	if err != nil {
		return none, err
	}

	return fn.Some(quote), nil
}

// fetchMintQuotes returns all mint quotes passing the given filter. A nil
// filter matches everything.
func fetchMintQuotes(tx kvdb.RTx,
	filter func(*MintQuote) bool) ([]MintQuote, error) {

	quotes, err := fetchTopBucket(tx, mintQuoteBucket)
	if err != nil {
		return nil, err
	}

	var result []MintQuote
	err = quotes.ForEach(func(_, v []byte) error {
		quote, err := deserializeMintQuote(bytes.NewReader(v))
		if err != nil {
			return err
		}
		if filter == nil || filter(&quote) {
			result = append(result, quote)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// unissuedMintQuote decides whether a wallet can still mint against the
// quote: bolt11 quotes only until the first issuance, bolt12 quotes always,
// since their offer can be paid again.
func unissuedMintQuote(quote *MintQuote) bool {
	switch quote.PaymentMethod {
	case PaymentMethodBolt11:
		return quote.AmountMinted == 0

	case PaymentMethodBolt12:
		return true

	default:
		return false
	}
}

func deleteMintQuote(tx kvdb.RwTx, quoteID string) error {
	quotes, err := fetchTopRwBucket(tx, mintQuoteBucket)
	if err != nil {
		return err
	}

	return quotes.Delete([]byte(quoteID))
}

func putMeltQuote(tx kvdb.RwTx, quote MeltQuote) error {
	if quote.ID == "" {
		return fmt.Errorf("quote id must not be empty")
	}

	quotes, err := fetchTopRwBucket(tx, meltQuoteBucket)
	if err != nil {
		return err
	}

	var b bytes.Buffer
	if err := serializeMeltQuote(&b, quote); err != nil {
		return err
	}

	return quotes.Put([]byte(quote.ID), b.Bytes())
}

func fetchMeltQuote(tx kvdb.RTx,
	quoteID string) (fn.Option[MeltQuote], error) {

	none := fn.None[MeltQuote]()

	quotes, err := fetchTopBucket(tx, meltQuoteBucket)
	if err != nil {
		return none, err
	}

	quoteBytes := quotes.Get([]byte(quoteID))
	if quoteBytes == nil {
		return none, nil
	}

	quote, err := deserializeMeltQuote(bytes.NewReader(quoteBytes))
	if err != nil {
		return none, err
	}

	return fn.Some(quote), nil
}

func fetchMeltQuotes(tx kvdb.RTx) ([]MeltQuote, error) {
	quotes, err := fetchTopBucket(tx, meltQuoteBucket)
	if err != nil {
		return nil, err
	}

	var result []MeltQuote
	err = quotes.ForEach(func(_, v []byte) error {
		quote, err := deserializeMeltQuote(bytes.NewReader(v))
		if err != nil {
			return err
		}
		result = append(result, quote)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func deleteMeltQuote(tx kvdb.RwTx, quoteID string) error {
	quotes, err := fetchTopRwBucket(tx, meltQuoteBucket)
	if err != nil {
		return err
	}

	return quotes.Delete([]byte(quoteID))
}

// AddMintQuote stores the given mint quote, replacing any previous record
// under the same ID.
func (d *DB) AddMintQuote(quote MintQuote) error {
	return d.update(func(tx kvdb.RwTx) error {
		return putMintQuote(tx, quote)
	}, func() {})
}

// AddMintQuote stores the given mint quote within the transaction.
func (t *Tx) AddMintQuote(quote MintQuote) error {
	if !t.active {
		return ErrTxClosed
	}

	return putMintQuote(t.tx, quote)
}

// GetMintQuote returns the mint quote stored under the given ID, or fn.None
// when the quote is unknown.
func (d *DB) GetMintQuote(quoteID string) (fn.Option[MintQuote], error) {
	var quote fn.Option[MintQuote]
	err := d.view(func(tx kvdb.RTx) error {
		var err error
		quote, err = fetchMintQuote(tx, quoteID)
		return err
	}, func() {
		quote = fn.None[MintQuote]()
	})
	if err != nil {
		return fn.None[MintQuote](), err
	}

	return quote, nil
}

// GetMintQuote returns the mint quote stored under the given ID within the
// transaction.
func (t *Tx) GetMintQuote(quoteID string) (fn.Option[MintQuote], error) {
	if !t.active {
		return fn.None[MintQuote](), ErrTxClosed
	}

	return fetchMintQuote(t.tx, quoteID)
}

// GetMintQuotes returns all stored mint quotes in quote ID order.
func (d *DB) GetMintQuotes() ([]MintQuote, error) {
	var quotes []MintQuote
	err := d.view(func(tx kvdb.RTx) error {
		var err error
		quotes, err = fetchMintQuotes(tx, nil)
		return err
	}, func() {
		quotes = nil
	})
	if err != nil {
		return nil, err
	}

	return quotes, nil
}

// GetMintQuotes returns all stored mint quotes within the transaction.
func (t *Tx) GetMintQuotes() ([]MintQuote, error) {
	if !t.active {
		return nil, ErrTxClosed
	}

	return fetchMintQuotes(t.tx, nil)
}

// GetUnissuedMintQuotes returns the mint quotes a wallet may still mint
// against: bolt11 quotes with nothing minted yet, plus every bolt12 quote.
func (d *DB) GetUnissuedMintQuotes() ([]MintQuote, error) {
	var quotes []MintQuote
	err := d.view(func(tx kvdb.RTx) error {
		var err error
		quotes, err = fetchMintQuotes(tx, unissuedMintQuote)
		return err
	}, func() {
		quotes = nil
	})
	if err != nil {
		return nil, err
	}

	return quotes, nil
}

// GetUnissuedMintQuotes returns the mint quotes a wallet may still mint
// against within the transaction.
func (t *Tx) GetUnissuedMintQuotes() ([]MintQuote, error) {
	if !t.active {
		return nil, ErrTxClosed
	}

	return fetchMintQuotes(t.tx, unissuedMintQuote)
}

// RemoveMintQuote deletes the mint quote stored under the given ID.
// Removing an unknown quote is a no-op.
func (d *DB) RemoveMintQuote(quoteID string) error {
	return d.update(func(tx kvdb.RwTx) error {
		return deleteMintQuote(tx, quoteID)
	}, func() {})
}

// RemoveMintQuote deletes the mint quote stored under the given ID within
// the transaction.
func (t *Tx) RemoveMintQuote(quoteID string) error {
	if !t.active {
		return ErrTxClosed
	}

	return deleteMintQuote(t.tx, quoteID)
}

// AddMeltQuote stores the given melt quote, replacing any previous record
// under the same ID.
func (d *DB) AddMeltQuote(quote MeltQuote) error {
	return d.update(func(tx kvdb.RwTx) error {
		return putMeltQuote(tx, quote)
	}, func() {})
}

// AddMeltQuote stores the given melt quote within the transaction.
func (t *Tx) AddMeltQuote(quote MeltQuote) error {
	if !t.active {
		return ErrTxClosed
	}

	return putMeltQuote(t.tx, quote)
}

// GetMeltQuote returns the melt quote stored under the given ID, or fn.None
// when the quote is unknown.
func (d *DB) GetMeltQuote(quoteID string) (fn.Option[MeltQuote], error) {
	var quote fn.Option[MeltQuote]
	err := d.view(func(tx kvdb.RTx) error {
		var err error
		quote, err = fetchMeltQuote(tx, quoteID)
		return err
	}, func() {
		quote = fn.None[MeltQuote]()
	})
	if err != nil {
		return fn.None[MeltQuote](), err
	}

	return quote, nil
}

// GetMeltQuote returns the melt quote stored under the given ID within the
// transaction.
func (t *Tx) GetMeltQuote(quoteID string) (fn.Option[MeltQuote], error) {
	if !t.active {
		return fn.None[MeltQuote](), ErrTxClosed
	}

	return fetchMeltQuote(t.tx, quoteID)
}

// GetMeltQuotes returns all stored melt quotes in quote ID order.
func (d *DB) GetMeltQuotes() ([]MeltQuote, error) {
	var quotes []MeltQuote
	err := d.view(func(tx kvdb.RTx) error {
		var err error
		quotes, err = fetchMeltQuotes(tx)
		return err
	}, func() {
		quotes = nil
	})
	if err != nil {
		return nil, err
	}

	return quotes, nil
}

// GetMeltQuotes returns all stored melt quotes within the transaction.
func (t *Tx) GetMeltQuotes() ([]MeltQuote, error) {
	if !t.active {
		return nil, ErrTxClosed
	}

	return fetchMeltQuotes(t.tx)
}

// RemoveMeltQuote deletes the melt quote stored under the given ID.
// Removing an unknown quote is a no-op.
func (d *DB) RemoveMeltQuote(quoteID string) error {
	return d.update(func(tx kvdb.RwTx) error {
		return deleteMeltQuote(tx, quoteID)
	}, func() {})
}

// RemoveMeltQuote deletes the melt quote stored under the given ID within
// the transaction.
func (t *Tx) RemoveMeltQuote(quoteID string) error {
	if !t.active {
		return ErrTxClosed
	}

	return deleteMeltQuote(t.tx, quoteID)
}
