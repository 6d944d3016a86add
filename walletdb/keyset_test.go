package walletdb_test

import (
	"testing"

	"github.com/cashubtc/cdk/walletdb"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

// TestMintKeysetsRoundTrip asserts that keysets stored for a mint can be
// listed per mint and looked up individually by ID.
func TestMintKeysetsRoundTrip(t *testing.T) {
	t.Parallel()

	db := makeTestDB(t)

	keyset1 := testKeysetInfo(testKeysetID)
	keyset2 := testKeysetInfo(testKeysetID2)
	require.NoError(t, db.AddMintKeysets(
		testMintURL, []walletdb.KeysetInfo{keyset2, keyset1},
	))

	// Listing comes back in keyset ID order regardless of insert order.
	keysets, err := db.GetMintKeysets(testMintURL)
	require.NoError(t, err)
	require.Equal(t, []walletdb.KeysetInfo{keyset1, keyset2}, keysets)

	keysets, err = db.GetMintKeysets(testMintURL2)
	require.NoError(t, err)
	require.Empty(t, keysets)

	got, err := db.GetKeysetByID(testKeysetID)
	require.NoError(t, err)
	require.Equal(t, fn.Some(keyset1), got)

	got, err = db.GetKeysetByID("00ffffffffffffff")
	require.NoError(t, err)
	require.True(t, got.IsNone())
}

// TestMintKeysetsReplace asserts that re-adding a keyset under the same ID
// replaces the stored record in full.
func TestMintKeysetsReplace(t *testing.T) {
	t.Parallel()

	db := makeTestDB(t)

	keyset := testKeysetInfo(testKeysetID)
	require.NoError(t, db.AddMintKeysets(
		testMintURL, []walletdb.KeysetInfo{keyset},
	))

	keyset.Active = false
	keyset.InputFeePPK = 500
	keyset.FinalExpiry = fn.Some(uint64(9999999999))
	require.NoError(t, db.AddMintKeysets(
		testMintURL, []walletdb.KeysetInfo{keyset},
	))

	got, err := db.GetKeysetByID(testKeysetID)
	require.NoError(t, err)
	require.Equal(t, fn.Some(keyset), got)

	keysets, err := db.GetMintKeysets(testMintURL)
	require.NoError(t, err)
	require.Equal(t, []walletdb.KeysetInfo{keyset}, keysets)
}

// TestAddMintKeysetsValidation asserts that keysets without a mint URL or an
// ID are rejected.
func TestAddMintKeysetsValidation(t *testing.T) {
	t.Parallel()

	db := makeTestDB(t)

	err := db.AddMintKeysets("", []walletdb.KeysetInfo{
		testKeysetInfo(testKeysetID),
	})
	require.ErrorContains(t, err, "must not be empty")

	err = db.AddMintKeysets(testMintURL, []walletdb.KeysetInfo{{
		Unit: "sat",
	}})
	require.ErrorContains(t, err, "must not be empty")
}

// TestKeysetCounter asserts that the derivation counter starts at zero,
// returns the post-increment value and keeps independent state per keyset.
func TestKeysetCounter(t *testing.T) {
	t.Parallel()

	db := makeTestDB(t)

	// A zero delta reads the counter without creating it.
	counter, err := db.IncrementKeysetCounter(testKeysetID, 0)
	require.NoError(t, err)
	require.EqualValues(t, 0, counter)

	counter, err = db.IncrementKeysetCounter(testKeysetID, 5)
	require.NoError(t, err)
	require.EqualValues(t, 5, counter)

	counter, err = db.IncrementKeysetCounter(testKeysetID, 10)
	require.NoError(t, err)
	require.EqualValues(t, 15, counter)

	// A second keyset counts from zero on its own.
	counter, err = db.IncrementKeysetCounter(testKeysetID2, 10)
	require.NoError(t, err)
	require.EqualValues(t, 10, counter)

	counter, err = db.IncrementKeysetCounter(testKeysetID, 0)
	require.NoError(t, err)
	require.EqualValues(t, 15, counter)

	_, err = db.IncrementKeysetCounter("", 1)
	require.ErrorContains(t, err, "must not be empty")
}

// TestKeysetCounterTx asserts that counter movements inside a rolled back
// transaction never reach the stored counter.
func TestKeysetCounterTx(t *testing.T) {
	t.Parallel()

	db := makeTestDB(t)

	counter, err := db.IncrementKeysetCounter(testKeysetID, 5)
	require.NoError(t, err)
	require.EqualValues(t, 5, counter)

	tx, err := db.BeginTx()
	require.NoError(t, err)

	counter, err = tx.IncrementKeysetCounter(testKeysetID, 0)
	require.NoError(t, err)
	require.EqualValues(t, 5, counter)

	counter, err = tx.IncrementKeysetCounter(testKeysetID, 3)
	require.NoError(t, err)
	require.EqualValues(t, 8, counter)

	require.NoError(t, tx.Rollback())

	counter, err = db.IncrementKeysetCounter(testKeysetID, 0)
	require.NoError(t, err)
	require.EqualValues(t, 5, counter)
}

// TestKeysetCounterSurvivesRemoval asserts that dropping a keyset, its keys
// or its whole mint never resets the derivation counter. A reset would make
// a restored wallet re-derive secrets it already handed out.
func TestKeysetCounterSurvivesRemoval(t *testing.T) {
	t.Parallel()

	db := makeTestDB(t)

	require.NoError(t, db.AddMint(testMint(testMintURL)))
	require.NoError(t, db.AddMintKeysets(
		testMintURL, []walletdb.KeysetInfo{testKeysetInfo(testKeysetID)},
	))

	counter, err := db.IncrementKeysetCounter(testKeysetID, 5)
	require.NoError(t, err)
	require.EqualValues(t, 5, counter)

	require.NoError(t, db.RemoveKeys(testKeysetID))
	require.NoError(t, db.RemoveMint(testMintURL))

	counter, err = db.IncrementKeysetCounter(testKeysetID, 0)
	require.NoError(t, err)
	require.EqualValues(t, 5, counter)

	counter, err = db.IncrementKeysetCounter(testKeysetID, 1)
	require.NoError(t, err)
	require.EqualValues(t, 6, counter)
}
