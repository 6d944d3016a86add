package walletdb

import (
	"bytes"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/kvdb"
)

// ProofState is the wallet's view of a proof's spendability.
type ProofState uint8

const (
	// ProofStateUnspent indicates the proof is available to spend.
	ProofStateUnspent ProofState = iota

	// ProofStatePending indicates the proof is part of an in-flight
	// swap or melt.
	ProofStatePending

	// ProofStateReserved indicates the proof is set aside for a pending
	// send and must not be selected again.
	ProofStateReserved

	// ProofStatePendingSpent indicates the proof backs an in-flight
	// melt that the mint may already have spent.
	ProofStatePendingSpent

	// ProofStateSpent indicates the mint has marked the proof spent.
	ProofStateSpent
)

// String returns a human readable representation of the state.
func (s ProofState) String() string {
	switch s {
	case ProofStateUnspent:
		return "Unspent"
	case ProofStatePending:
		return "Pending"
	case ProofStateReserved:
		return "Reserved"
	case ProofStatePendingSpent:
		return "PendingSpent"
	case ProofStateSpent:
		return "Spent"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// ProofDLEQ is the discrete log equality proof attached to a proof. It lets
// the wallet verify the mint signed with the advertised keyset key.
type ProofDLEQ struct {
	E *btcec.PrivateKey
	S *btcec.PrivateKey
	R *btcec.PrivateKey
}

// Proof is a single ecash token signed by a mint.
type Proof struct {
	// Amount is the denomination of the proof.
	Amount uint64

	// KeysetID identifies the keyset that signed the proof.
	KeysetID string

	// Secret is the secret message the mint signed blindly.
	Secret string

	// C is the mint's unblinded signature point.
	C *btcec.PublicKey

	// Witness carries the spending condition witness, if the secret is
	// locked.
	Witness fn.Option[string]

	// DLEQ is the mint's discrete log equality proof, if provided.
	DLEQ fn.Option[ProofDLEQ]
}

// ProofInfo couples a proof with the wallet side bookkeeping needed to spend
// it.
type ProofInfo struct {
	// Proof is the ecash token itself.
	Proof Proof

	// Y is the hash-to-curve point of the proof's secret. It is the
	// record key, so every stored proof must carry one.
	Y *btcec.PublicKey

	// MintURL is the mint the proof is redeemable at.
	MintURL string

	// State is the proof's spendability state.
	State ProofState

	// SpendingCondition is the parsed spending condition of the secret,
	// if it has one.
	SpendingCondition fn.Option[string]

	// Unit is the currency unit of the proof.
	Unit string
}

// ProofQuery filters stored proofs. Unset fields and empty slices match
// everything.
type ProofQuery struct {
	// MintURL restricts results to a single mint.
	MintURL fn.Option[string]

	// Unit restricts results to a single currency unit.
	Unit fn.Option[string]

	// States restricts results to the given spendability states.
	States []ProofState

	// SpendingConditions restricts results to proofs locked with one of
	// the given conditions.
	SpendingConditions []string
}

// match reports whether the given proof passes every filter set on the
// query.
func (q *ProofQuery) match(info *ProofInfo) bool {
	if q.MintURL.IsSome() && q.MintURL.UnwrapOr("") != info.MintURL {
		return false
	}

	if q.Unit.IsSome() && q.Unit.UnwrapOr("") != info.Unit {
		return false
	}

	if len(q.States) > 0 {
		found := false
		for _, state := range q.States {
			if state == info.State {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(q.SpendingConditions) > 0 {
		cond := info.SpendingCondition
		if cond.IsNone() {
			return false
		}

		found := false
		for _, c := range q.SpendingConditions {
			if c == cond.UnwrapOr("") {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

func serializeProofInfo(w io.Writer, info ProofInfo) error {
	if info.Y == nil {
		return fmt.Errorf("proof info must carry a y point")
	}

	if err := writePubKey(w, info.Y); err != nil {
		return err
	}
	if err := writeString(w, info.MintURL); err != nil {
		return err
	}
	if err := writeUint8(w, uint8(info.State)); err != nil {
		return err
	}
	if err := writeOptString(w, info.SpendingCondition); err != nil {
		return err
	}
	if err := writeString(w, info.Unit); err != nil {
		return err
	}

	proof := info.Proof
	if err := writeUint64(w, proof.Amount); err != nil {
		return err
	}
	if err := writeString(w, proof.KeysetID); err != nil {
		return err
	}
	if err := writeString(w, proof.Secret); err != nil {
		return err
	}
	if err := writePubKey(w, proof.C); err != nil {
		return err
	}
	if err := writeOptString(w, proof.Witness); err != nil {
		return err
	}

	// The three DLEQ scalars are always present together, so a single
	// presence byte covers all of them.
	if proof.DLEQ.IsNone() {
		return writeBool(w, false)
	}
	if err := writeBool(w, true); err != nil {
		return err
	}

	dleq := proof.DLEQ.UnwrapOr(ProofDLEQ{})
	if err := writePrivKey(w, dleq.E); err != nil {
		return err
	}
	if err := writePrivKey(w, dleq.S); err != nil {
		return err
	}

	return writePrivKey(w, dleq.R)
}

func deserializeProofInfo(r io.Reader) (ProofInfo, error) {
	var (
		info ProofInfo
		err  error
	)

	if info.Y, err = readPubKey(r); err != nil {
		return info, err
	}
	if info.MintURL, err = readString(r); err != nil {
		return info, err
	}

	state, err := readUint8(r)
	if err != nil {
		return info, err
	}
	info.State = ProofState(state)

	if info.SpendingCondition, err = readOptString(r); err != nil {
		return info, err
	}
	if info.Unit, err = readString(r); err != nil {
		return info, err
	}

	if info.Proof.Amount, err = readUint64(r); err != nil {
		return info, err
	}
	if info.Proof.KeysetID, err = readString(r); err != nil {
		return info, err
	}
	if info.Proof.Secret, err = readString(r); err != nil {
		return info, err
	}
	if info.Proof.C, err = readPubKey(r); err != nil {
		return info, err
	}
	if info.Proof.Witness, err = readOptString(r); err != nil {
		return info, err
	}

	hasDLEQ, err := readBool(r)
	if err != nil {
		return info, err
	}
	if !hasDLEQ {
		return info, nil
	}

	var dleq ProofDLEQ
	if dleq.E, err = readPrivKey(r); err != nil {
		return info, err
	}
	if dleq.S, err = readPrivKey(r); err != nil {
		return info, err
	}
	if dleq.R, err = readPrivKey(r); err != nil {
		return info, err
	}
	info.Proof.DLEQ = fn.Some(dleq)

	return info, nil
}

func putProofInfo(tx kvdb.RwTx, info ProofInfo) error {
	if info.Y == nil {
		return fmt.Errorf("proof info must carry a y point")
	}

	proofs, err := fetchTopRwBucket(tx, proofBucket)
	if err != nil {
		return err
	}

	var b bytes.Buffer
	if err := serializeProofInfo(&b, info); err != nil {
		return err
	}

	return proofs.Put(info.Y.SerializeCompressed(), b.Bytes())
}

func fetchProofInfo(tx kvdb.RTx,
	y *btcec.PublicKey) (fn.Option[ProofInfo], error) {

	none := fn.None[ProofInfo]()

	proofs, err := fetchTopBucket(tx, proofBucket)
	if err != nil {
		return none, err
	}

	infoBytes := proofs.Get(y.SerializeCompressed())
	if infoBytes == nil {
		return none, nil
	}

	info, err := deserializeProofInfo(bytes.NewReader(infoBytes))
	if err != nil {
		return none, err
	}

	return fn.Some(info), nil
}

// fetchProofInfos returns all stored proofs passing the given filter. A nil
// filter matches everything.
func fetchProofInfos(tx kvdb.RTx,
	filter func(*ProofInfo) bool) ([]ProofInfo, error) {

	proofs, err := fetchTopBucket(tx, proofBucket)
	if err != nil {
		return nil, err
	}

	var result []ProofInfo
	err = proofs.ForEach(func(_, v []byte) error {
		info, err := deserializeProofInfo(bytes.NewReader(v))
		if err != nil {
			return err
		}
		if filter == nil || filter(&info) {
			result = append(result, info)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// updateProofs applies a proof set change in one step: all added proofs are
// upserted first, then all removed ys are deleted, so removal wins when a y
// appears on both sides.
func updateProofs(tx kvdb.RwTx, added []ProofInfo,
	removedYs []*btcec.PublicKey) error {

	for _, info := range added {
		if err := putProofInfo(tx, info); err != nil {
			return err
		}
	}

	proofs, err := fetchTopRwBucket(tx, proofBucket)
	if err != nil {
		return err
	}

	for _, y := range removedYs {
		if err := proofs.Delete(y.SerializeCompressed()); err != nil {
			return err
		}
	}

	return nil
}

// fetchProofsByYs looks up proofs by their y points. Unknown ys are skipped
// and duplicates in the input are collapsed, so the result holds at most one
// entry per distinct y.
func fetchProofsByYs(tx kvdb.RTx,
	ys []*btcec.PublicKey) ([]ProofInfo, error) {

	if len(ys) == 0 {
		return nil, nil
	}

	proofs, err := fetchTopBucket(tx, proofBucket)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(ys))
	result := make([]ProofInfo, 0, len(ys))
	for _, y := range ys {
		key := y.SerializeCompressed()
		if _, ok := seen[string(key)]; ok {
			continue
		}
		seen[string(key)] = struct{}{}

		infoBytes := proofs.Get(key)
		if infoBytes == nil {
			continue
		}

		info, err := deserializeProofInfo(bytes.NewReader(infoBytes))
		if err != nil {
			return nil, err
		}
		result = append(result, info)
	}

	return result, nil
}

// setProofStates rewrites the state of every known proof among the given
// ys. Unknown ys are skipped.
func setProofStates(tx kvdb.RwTx, ys []*btcec.PublicKey,
	state ProofState) error {

	proofs, err := fetchTopRwBucket(tx, proofBucket)
	if err != nil {
		return err
	}

	for _, y := range ys {
		key := y.SerializeCompressed()

		infoBytes := proofs.Get(key)
		if infoBytes == nil {
			continue
		}

		info, err := deserializeProofInfo(bytes.NewReader(infoBytes))
		if err != nil {
			return err
		}
		info.State = state

		var b bytes.Buffer
		if err := serializeProofInfo(&b, info); err != nil {
			return err
		}
		if err := proofs.Put(key, b.Bytes()); err != nil {
			return err
		}
	}

	return nil
}

// UpdateProofs upserts all added proofs and deletes all removed ys in one
// atomic step. When a y appears on both sides, removal wins.
func (d *DB) UpdateProofs(added []ProofInfo,
	removedYs []*btcec.PublicKey) error {

	return d.update(func(tx kvdb.RwTx) error {
		return updateProofs(tx, added, removedYs)
	}, func() {})
}

// UpdateProofs upserts all added proofs and deletes all removed ys within
// the transaction.
func (t *Tx) UpdateProofs(added []ProofInfo,
	removedYs []*btcec.PublicKey) error {

	if !t.active {
		return ErrTxClosed
	}

	return updateProofs(t.tx, added, removedYs)
}

// GetProofs returns all stored proofs passing the query's filters.
func (d *DB) GetProofs(query ProofQuery) ([]ProofInfo, error) {
	var infos []ProofInfo
	err := d.view(func(tx kvdb.RTx) error {
		var err error
		infos, err = fetchProofInfos(tx, query.match)
		return err
	}, func() {
		infos = nil
	})
	if err != nil {
		return nil, err
	}

	return infos, nil
}

// GetProofs returns all stored proofs passing the query's filters within
// the transaction.
func (t *Tx) GetProofs(query ProofQuery) ([]ProofInfo, error) {
	if !t.active {
		return nil, ErrTxClosed
	}

	return fetchProofInfos(t.tx, query.match)
}

// GetProofsByYs returns the stored proofs among the given y points. Unknown
// ys are skipped and an empty input yields an empty result.
func (d *DB) GetProofsByYs(ys []*btcec.PublicKey) ([]ProofInfo, error) {
	var infos []ProofInfo
	err := d.view(func(tx kvdb.RTx) error {
		var err error
		infos, err = fetchProofsByYs(tx, ys)
		return err
	}, func() {
		infos = nil
	})
	if err != nil {
		return nil, err
	}

	return infos, nil
}

// GetProofsByYs returns the stored proofs among the given y points within
// the transaction.
func (t *Tx) GetProofsByYs(ys []*btcec.PublicKey) ([]ProofInfo, error) {
	if !t.active {
		return nil, ErrTxClosed
	}

	return fetchProofsByYs(t.tx, ys)
}

// UpdateProofsState rewrites the state of every known proof among the given
// ys. Unknown ys are skipped.
func (d *DB) UpdateProofsState(ys []*btcec.PublicKey,
	state ProofState) error {

	return d.update(func(tx kvdb.RwTx) error {
		return setProofStates(tx, ys, state)
	}, func() {})
}

// UpdateProofsState rewrites the state of every known proof among the given
// ys within the transaction.
func (t *Tx) UpdateProofsState(ys []*btcec.PublicKey,
	state ProofState) error {

	if !t.active {
		return ErrTxClosed
	}

	return setProofStates(t.tx, ys, state)
}

// GetBalance sums the amounts of all proofs passing the query's filters.
func (d *DB) GetBalance(query ProofQuery) (uint64, error) {
	var balance uint64
	err := d.view(func(tx kvdb.RTx) error {
		infos, err := fetchProofInfos(tx, query.match)
		if err != nil {
			return err
		}
		for _, info := range infos {
			balance += info.Proof.Amount
		}

		return nil
	}, func() {
		balance = 0
	})
	if err != nil {
		return 0, err
	}

	return balance, nil
}

// GetBalance sums the amounts of all proofs passing the query's filters
// within the transaction.
func (t *Tx) GetBalance(query ProofQuery) (uint64, error) {
	if !t.active {
		return 0, ErrTxClosed
	}

	infos, err := fetchProofInfos(t.tx, query.match)
	if err != nil {
		return 0, err
	}

	var balance uint64
	for _, info := range infos {
		balance += info.Proof.Amount
	}

	return balance, nil
}
