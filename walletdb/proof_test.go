package walletdb_test

import (
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/cashubtc/cdk/walletdb"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

// testProofInfo builds an unspent stored proof with key material derived
// from seed.
func testProofInfo(seed byte, amount uint64,
	mintURL string) walletdb.ProofInfo {

	return walletdb.ProofInfo{
		Proof: walletdb.Proof{
			Amount:   amount,
			KeysetID: testKeysetID,
			Secret:   fmt.Sprintf("secret-%d", seed),
			C:        testPubKey(seed + 0x40),
		},
		Y:       testPubKey(seed),
		MintURL: mintURL,
		State:   walletdb.ProofStateUnspent,
		Unit:    "sat",
	}
}

// TestProofsRoundTrip asserts that stored proofs survive a write and read
// back unchanged, including witness, DLEQ and spending condition.
func TestProofsRoundTrip(t *testing.T) {
	t.Parallel()

	db := makeTestDB(t)

	proof1 := testProofInfo(1, 100, testMintURL)
	proof1.Proof.Witness = fn.Some(`{"signatures":["deadbeef"]}`)
	proof1.Proof.DLEQ = fn.Some(walletdb.ProofDLEQ{
		E: testPrivKey(11),
		S: testPrivKey(12),
		R: testPrivKey(13),
	})
	proof1.SpendingCondition = fn.Some("P2PK")
	proof2 := testProofInfo(2, 200, testMintURL)

	require.NoError(t, db.UpdateProofs(
		[]walletdb.ProofInfo{proof1, proof2}, nil,
	))

	proofs, err := db.GetProofs(walletdb.ProofQuery{})
	require.NoError(t, err)
	require.ElementsMatch(
		t, []walletdb.ProofInfo{proof1, proof2}, proofs,
	)
}

// TestProofsMissingY asserts that a proof without its record key is
// rejected.
func TestProofsMissingY(t *testing.T) {
	t.Parallel()

	db := makeTestDB(t)

	proof := testProofInfo(1, 100, testMintURL)
	proof.Y = nil

	err := db.UpdateProofs([]walletdb.ProofInfo{proof}, nil)
	require.ErrorContains(t, err, "must carry a y point")
}

// TestGetProofsFilters asserts that every query dimension narrows the result
// and that unset dimensions match everything.
func TestGetProofsFilters(t *testing.T) {
	t.Parallel()

	db := makeTestDB(t)

	proof1 := testProofInfo(1, 100, testMintURL)
	proof2 := testProofInfo(2, 200, testMintURL2)
	proof3 := testProofInfo(3, 400, testMintURL)
	proof3.Unit = "usd"
	proof3.State = walletdb.ProofStateReserved
	proof3.SpendingCondition = fn.Some("P2PK")

	require.NoError(t, db.UpdateProofs(
		[]walletdb.ProofInfo{proof1, proof2, proof3}, nil,
	))

	tests := []struct {
		name  string
		query walletdb.ProofQuery
		want  []walletdb.ProofInfo
	}{
		{
			name: "no filters match all",
			want: []walletdb.ProofInfo{proof1, proof2, proof3},
		},
		{
			name: "by mint",
			query: walletdb.ProofQuery{
				MintURL: fn.Some(testMintURL),
			},
			want: []walletdb.ProofInfo{proof1, proof3},
		},
		{
			name: "by unit",
			query: walletdb.ProofQuery{
				Unit: fn.Some("usd"),
			},
			want: []walletdb.ProofInfo{proof3},
		},
		{
			name: "by unknown unit",
			query: walletdb.ProofQuery{
				Unit: fn.Some("msat"),
			},
			want: nil,
		},
		{
			name: "by state",
			query: walletdb.ProofQuery{
				States: []walletdb.ProofState{
					walletdb.ProofStateUnspent,
				},
			},
			want: []walletdb.ProofInfo{proof1, proof2},
		},
		{
			name: "by state list",
			query: walletdb.ProofQuery{
				States: []walletdb.ProofState{
					walletdb.ProofStateReserved,
					walletdb.ProofStatePending,
				},
			},
			want: []walletdb.ProofInfo{proof3},
		},
		{
			name: "by spending condition",
			query: walletdb.ProofQuery{
				SpendingConditions: []string{"P2PK"},
			},
			want: []walletdb.ProofInfo{proof3},
		},
		{
			name: "by unknown spending condition",
			query: walletdb.ProofQuery{
				SpendingConditions: []string{"HTLC"},
			},
			want: nil,
		},
		{
			name: "by mint and unit",
			query: walletdb.ProofQuery{
				MintURL: fn.Some(testMintURL),
				Unit:    fn.Some("sat"),
			},
			want: []walletdb.ProofInfo{proof1},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			proofs, err := db.GetProofs(test.query)
			require.NoError(t, err)
			require.ElementsMatch(t, test.want, proofs)
		})
	}
}

// TestGetProofsByYs asserts that lookups by y point skip unknown points,
// collapse duplicates and accept an empty input.
func TestGetProofsByYs(t *testing.T) {
	t.Parallel()

	db := makeTestDB(t)

	proofs, err := db.GetProofsByYs(nil)
	require.NoError(t, err)
	require.Empty(t, proofs)

	proof1 := testProofInfo(1, 100, testMintURL)
	proof2 := testProofInfo(2, 200, testMintURL)
	require.NoError(t, db.UpdateProofs(
		[]walletdb.ProofInfo{proof1, proof2}, nil,
	))

	proofs, err = db.GetProofsByYs([]*btcec.PublicKey{
		proof1.Y,
		proof1.Y,
		testPubKey(9),
		proof2.Y,
	})
	require.NoError(t, err)
	require.Equal(t, []walletdb.ProofInfo{proof1, proof2}, proofs)
}

// TestUpdateProofsSwap asserts that one update can spend proofs and store
// their replacements atomically, with removal winning when a y appears on
// both sides.
func TestUpdateProofsSwap(t *testing.T) {
	t.Parallel()

	db := makeTestDB(t)

	proof1 := testProofInfo(1, 100, testMintURL)
	require.NoError(t, db.UpdateProofs(
		[]walletdb.ProofInfo{proof1}, nil,
	))

	proof2 := testProofInfo(2, 200, testMintURL)
	require.NoError(t, db.UpdateProofs(
		[]walletdb.ProofInfo{proof2},
		[]*btcec.PublicKey{proof1.Y},
	))

	proofs, err := db.GetProofs(walletdb.ProofQuery{})
	require.NoError(t, err)
	require.Equal(t, []walletdb.ProofInfo{proof2}, proofs)

	// A proof both added and removed in the same step ends up removed.
	proof3 := testProofInfo(3, 400, testMintURL)
	require.NoError(t, db.UpdateProofs(
		[]walletdb.ProofInfo{proof3},
		[]*btcec.PublicKey{proof3.Y},
	))

	proofs, err = db.GetProofs(walletdb.ProofQuery{})
	require.NoError(t, err)
	require.Equal(t, []walletdb.ProofInfo{proof2}, proofs)
}

// TestUpdateProofsState asserts that state rewrites touch exactly the given
// ys and skip unknown ones.
func TestUpdateProofsState(t *testing.T) {
	t.Parallel()

	db := makeTestDB(t)

	proof1 := testProofInfo(1, 100, testMintURL)
	proof2 := testProofInfo(2, 200, testMintURL)
	require.NoError(t, db.UpdateProofs(
		[]walletdb.ProofInfo{proof1, proof2}, nil,
	))

	require.NoError(t, db.UpdateProofsState(
		[]*btcec.PublicKey{proof1.Y, testPubKey(9)},
		walletdb.ProofStatePending,
	))

	proofs, err := db.GetProofsByYs([]*btcec.PublicKey{proof1.Y, proof2.Y})
	require.NoError(t, err)
	require.Len(t, proofs, 2)
	require.Equal(t, walletdb.ProofStatePending, proofs[0].State)
	require.Equal(t, walletdb.ProofStateUnspent, proofs[1].State)

	proofs, err = db.GetProofs(walletdb.ProofQuery{
		States: []walletdb.ProofState{walletdb.ProofStatePending},
	})
	require.NoError(t, err)
	require.Len(t, proofs, 1)
	require.Equal(t, proof1.Y, proofs[0].Y)
}

// TestGetBalance asserts that balances sum the amounts of exactly the
// proofs passing the query.
func TestGetBalance(t *testing.T) {
	t.Parallel()

	db := makeTestDB(t)

	balance, err := db.GetBalance(walletdb.ProofQuery{})
	require.NoError(t, err)
	require.EqualValues(t, 0, balance)

	proof1 := testProofInfo(1, 100, testMintURL)
	proof2 := testProofInfo(2, 200, testMintURL)
	proof3 := testProofInfo(3, 400, testMintURL2)
	require.NoError(t, db.UpdateProofs(
		[]walletdb.ProofInfo{proof1, proof2, proof3}, nil,
	))

	balance, err = db.GetBalance(walletdb.ProofQuery{
		MintURL: fn.Some(testMintURL),
	})
	require.NoError(t, err)
	require.EqualValues(t, 300, balance)

	balance, err = db.GetBalance(walletdb.ProofQuery{})
	require.NoError(t, err)
	require.EqualValues(t, 700, balance)

	require.NoError(t, db.UpdateProofsState(
		[]*btcec.PublicKey{proof1.Y}, walletdb.ProofStatePending,
	))

	balance, err = db.GetBalance(walletdb.ProofQuery{
		MintURL: fn.Some(testMintURL),
		States:  []walletdb.ProofState{walletdb.ProofStateUnspent},
	})
	require.NoError(t, err)
	require.EqualValues(t, 200, balance)
}
