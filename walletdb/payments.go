package walletdb

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/kvdb"
)

// PaymentDirection tells whether a payment moved funds into or out of the
// wallet.
type PaymentDirection uint8

const (
	// PaymentIncoming is a payment that credited the wallet, such as a
	// mint or a received token.
	PaymentIncoming PaymentDirection = iota

	// PaymentOutgoing is a payment that debited the wallet, such as a
	// melt or a sent token.
	PaymentOutgoing
)

// String returns a human readable representation of the direction.
func (d PaymentDirection) String() string {
	switch d {
	case PaymentIncoming:
		return "Incoming"
	case PaymentOutgoing:
		return "Outgoing"
	default:
		return fmt.Sprintf("Unknown(%d)", d)
	}
}

// PaymentIDSize is the size of a payment identifier in bytes.
const PaymentIDSize = sha256.Size

// PaymentID is the content derived identifier of a payment record. It is
// the sha256 of the payment's y points in sorted serialization order, so
// the same proof set always maps to the same record.
type PaymentID [PaymentIDSize]byte

// String returns the hex encoding of the payment ID.
func (p PaymentID) String() string {
	return hex.EncodeToString(p[:])
}

// PaymentRecord describes one entry of the wallet's payment history.
type PaymentRecord struct {
	// MintURL is the mint the payment was made through.
	MintURL string

	// Direction tells whether the payment credited or debited the
	// wallet.
	Direction PaymentDirection

	// Amount is the payment amount, excluding fees.
	Amount uint64

	// Fee is the fee paid on top of the amount.
	Fee uint64

	// Unit is the currency unit of the payment.
	Unit string

	// Ys are the y points of the proofs involved in the payment. They
	// determine the record's ID.
	Ys []*btcec.PublicKey

	// Timestamp is when the payment happened. A zero timestamp is
	// stamped with the current time on insert.
	Timestamp time.Time

	// Memo is the payment memo, if one was attached.
	Memo fn.Option[string]

	// Metadata carries free-form key value annotations.
	Metadata map[string]string

	// QuoteID links the payment to the mint or melt quote that caused
	// it, if any.
	QuoteID fn.Option[string]

	// PaymentRequest is the bolt11 invoice or bolt12 offer paid, if the
	// payment settled over lightning.
	PaymentRequest fn.Option[string]

	// PaymentProof is the settlement proof, such as a preimage.
	PaymentProof fn.Option[string]

	// PaymentMethod is the rail the payment settled over, if known.
	PaymentMethod fn.Option[PaymentMethod]
}

// ID derives the payment's identifier from its y points. The serialized
// points are sorted before hashing, so the ID does not depend on the order
// the proofs were passed in.
func (p *PaymentRecord) ID() PaymentID {
	ys := make([][]byte, len(p.Ys))
	for i, y := range p.Ys {
		ys[i] = y.SerializeCompressed()
	}
	sort.Slice(ys, func(i, j int) bool {
		return bytes.Compare(ys[i], ys[j]) < 0
	})

	h := sha256.New()
	for _, y := range ys {
		h.Write(y)
	}

	var id PaymentID
	copy(id[:], h.Sum(nil))

	return id
}

// PaymentQuery filters payment history. Unset fields match everything.
type PaymentQuery struct {
	// MintURL restricts results to a single mint.
	MintURL fn.Option[string]

	// Direction restricts results to incoming or outgoing payments.
	Direction fn.Option[PaymentDirection]

	// Unit restricts results to a single currency unit.
	Unit fn.Option[string]
}

// match reports whether the given record passes every filter set on the
// query.
func (q *PaymentQuery) match(record *PaymentRecord) bool {
	if q.MintURL.IsSome() && q.MintURL.UnwrapOr("") != record.MintURL {
		return false
	}

	if q.Direction.IsSome() {
		dir := q.Direction.UnwrapOr(PaymentIncoming)
		if dir != record.Direction {
			return false
		}
	}

	if q.Unit.IsSome() && q.Unit.UnwrapOr("") != record.Unit {
		return false
	}

	return true
}

func serializePaymentRecord(w io.Writer, record PaymentRecord) error {
	if err := writeString(w, record.MintURL); err != nil {
		return err
	}
	if err := writeUint8(w, uint8(record.Direction)); err != nil {
		return err
	}
	if err := writeUint64(w, record.Amount); err != nil {
		return err
	}
	if err := writeUint64(w, record.Fee); err != nil {
		return err
	}
	if err := writeString(w, record.Unit); err != nil {
		return err
	}
	if err := writePubKeys(w, record.Ys); err != nil {
		return err
	}
	if err := writeTime(w, record.Timestamp); err != nil {
		return err
	}
	if err := writeOptString(w, record.Memo); err != nil {
		return err
	}
	if err := writeStringMap(w, record.Metadata); err != nil {
		return err
	}
	if err := writeOptString(w, record.QuoteID); err != nil {
		return err
	}
	if err := writeOptString(w, record.PaymentRequest); err != nil {
		return err
	}
	if err := writeOptString(w, record.PaymentProof); err != nil {
		return err
	}

	methodStr := fn.MapOption(func(m PaymentMethod) string {
		return string(m)
	})(record.PaymentMethod)

	return writeOptString(w, methodStr)
}

func deserializePaymentRecord(r io.Reader) (PaymentRecord, error) {
	var (
		record PaymentRecord
		err    error
	)

	if record.MintURL, err = readString(r); err != nil {
		return record, err
	}

	direction, err := readUint8(r)
	if err != nil {
		return record, err
	}
	record.Direction = PaymentDirection(direction)

	if record.Amount, err = readUint64(r); err != nil {
		return record, err
	}
	if record.Fee, err = readUint64(r); err != nil {
		return record, err
	}
	if record.Unit, err = readString(r); err != nil {
		return record, err
	}
	if record.Ys, err = readPubKeys(r); err != nil {
		return record, err
	}
	if record.Timestamp, err = readTime(r); err != nil {
		return record, err
	}
	if record.Memo, err = readOptString(r); err != nil {
		return record, err
	}
	if record.Metadata, err = readStringMap(r); err != nil {
		return record, err
	}
	if record.QuoteID, err = readOptString(r); err != nil {
		return record, err
	}
	if record.PaymentRequest, err = readOptString(r); err != nil {
		return record, err
	}
	if record.PaymentProof, err = readOptString(r); err != nil {
		return record, err
	}

	methodStr, err := readOptString(r)
	if err != nil {
		return record, err
	}
	record.PaymentMethod = fn.MapOption(func(m string) PaymentMethod {
		return PaymentMethod(m)
	})(methodStr)

	return record, nil
}

// putPaymentRecord stores the record under its derived ID. A zero timestamp
// is stamped with the given time first.
func putPaymentRecord(tx kvdb.RwTx, record PaymentRecord,
	now time.Time) error {

	if len(record.Ys) == 0 {
		return fmt.Errorf("payment record must carry at least one y")
	}

	if record.Timestamp.IsZero() {
		record.Timestamp = now
	}

	payments, err := fetchTopRwBucket(tx, paymentBucket)
	if err != nil {
		return err
	}

	var b bytes.Buffer
	if err := serializePaymentRecord(&b, record); err != nil {
		return err
	}

	id := record.ID()

	return payments.Put(id[:], b.Bytes())
}

func fetchPaymentRecord(tx kvdb.RTx,
	id PaymentID) (fn.Option[PaymentRecord], error) {

	none := fn.None[PaymentRecord]()

	payments, err := fetchTopBucket(tx, paymentBucket)
	if err != nil {
		return none, err
	}

	recordBytes := payments.Get(id[:])
	if recordBytes == nil {
		return none, nil
	}

	record, err := deserializePaymentRecord(bytes.NewReader(recordBytes))
	if err != nil {
		return none, err
	}

	return fn.Some(record), nil
}

// fetchPaymentRecords returns all records passing the given filter, in
// payment ID order. A nil filter matches everything.
func fetchPaymentRecords(tx kvdb.RTx,
	filter func(*PaymentRecord) bool) ([]PaymentRecord, error) {

	payments, err := fetchTopBucket(tx, paymentBucket)
	if err != nil {
		return nil, err
	}

	var result []PaymentRecord
	err = payments.ForEach(func(_, v []byte) error {
		record, err := deserializePaymentRecord(bytes.NewReader(v))
		if err != nil {
			return err
		}
		if filter == nil || filter(&record) {
			result = append(result, record)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func deletePaymentRecord(tx kvdb.RwTx, id PaymentID) error {
	payments, err := fetchTopRwBucket(tx, paymentBucket)
	if err != nil {
		return err
	}

	return payments.Delete(id[:])
}

// AddPayment stores the given payment record under its derived ID,
// replacing any previous record for the same proof set. A zero timestamp is
// stamped with the current time.
func (d *DB) AddPayment(record PaymentRecord) error {
	return d.update(func(tx kvdb.RwTx) error {
		return putPaymentRecord(tx, record, d.clock.Now())
	}, func() {})
}

// AddPayment stores the given payment record within the transaction.
func (t *Tx) AddPayment(record PaymentRecord) error {
	if !t.active {
		return ErrTxClosed
	}

	return putPaymentRecord(t.tx, record, t.db.clock.Now())
}

// GetPayment returns the payment record stored under the given ID, or
// fn.None when no such payment is known.
func (d *DB) GetPayment(id PaymentID) (fn.Option[PaymentRecord], error) {
	var record fn.Option[PaymentRecord]
	err := d.view(func(tx kvdb.RTx) error {
		var err error
		record, err = fetchPaymentRecord(tx, id)
		return err
	}, func() {
		record = fn.None[PaymentRecord]()
	})
	if err != nil {
		return fn.None[PaymentRecord](), err
	}

	return record, nil
}

// GetPayment returns the payment record stored under the given ID within
// the transaction.
func (t *Tx) GetPayment(id PaymentID) (fn.Option[PaymentRecord], error) {
	if !t.active {
		return fn.None[PaymentRecord](), ErrTxClosed
	}

	return fetchPaymentRecord(t.tx, id)
}

// ListPayments returns all payment records passing the query's filters, in
// payment ID order.
func (d *DB) ListPayments(query PaymentQuery) ([]PaymentRecord, error) {
	var records []PaymentRecord
	err := d.view(func(tx kvdb.RTx) error {
		var err error
		records, err = fetchPaymentRecords(tx, query.match)
		return err
	}, func() {
		records = nil
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// ListPayments returns all payment records passing the query's filters
// within the transaction.
func (t *Tx) ListPayments(query PaymentQuery) ([]PaymentRecord, error) {
	if !t.active {
		return nil, ErrTxClosed
	}

	return fetchPaymentRecords(t.tx, query.match)
}

// RemovePayment deletes the payment record stored under the given ID.
// Removing an unknown payment is a no-op.
func (d *DB) RemovePayment(id PaymentID) error {
	return d.update(func(tx kvdb.RwTx) error {
		return deletePaymentRecord(tx, id)
	}, func() {})
}

// RemovePayment deletes the payment record stored under the given ID within
// the transaction.
func (t *Tx) RemovePayment(id PaymentID) error {
	if !t.active {
		return ErrTxClosed
	}

	return deletePaymentRecord(t.tx, id)
}
