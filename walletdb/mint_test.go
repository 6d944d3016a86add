package walletdb_test

import (
	"testing"

	"github.com/cashubtc/cdk/walletdb"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

// TestMintRoundTrip asserts that a mint with a full info document survives a
// write and read back unchanged.
func TestMintRoundTrip(t *testing.T) {
	t.Parallel()

	db := makeTestDB(t)
	mint := testMint(testMintURL)

	require.NoError(t, db.AddMint(mint))

	got, err := db.GetMint(testMintURL)
	require.NoError(t, err)
	require.Equal(t, fn.Some(mint), got)

	// An unknown URL reads back as absent rather than failing.
	got, err = db.GetMint("https://unknown-mint.example.com")
	require.NoError(t, err)
	require.True(t, got.IsNone())
}

// TestMintWithoutInfo asserts that a mint can be stored before its info
// document was ever fetched, and that a later store fills the info in.
func TestMintWithoutInfo(t *testing.T) {
	t.Parallel()

	db := makeTestDB(t)
	mint := walletdb.Mint{MintURL: testMintURL}

	require.NoError(t, db.AddMint(mint))

	got, err := db.GetMint(testMintURL)
	require.NoError(t, err)
	require.Equal(t, fn.Some(mint), got)
	require.True(t, got.UnwrapOr(walletdb.Mint{}).Info.IsNone())

	// Storing again under the same URL replaces the record.
	withInfo := testMint(testMintURL)
	require.NoError(t, db.AddMint(withInfo))

	got, err = db.GetMint(testMintURL)
	require.NoError(t, err)
	require.Equal(t, fn.Some(withInfo), got)
}

// TestAddMintEmptyURL asserts that a mint without a URL is rejected.
func TestAddMintEmptyURL(t *testing.T) {
	t.Parallel()

	db := makeTestDB(t)

	err := db.AddMint(walletdb.Mint{})
	require.ErrorContains(t, err, "must not be empty")
}

// TestGetMints asserts that all known mints are listed in URL order.
func TestGetMints(t *testing.T) {
	t.Parallel()

	db := makeTestDB(t)

	mints, err := db.GetMints()
	require.NoError(t, err)
	require.Empty(t, mints)

	mint1 := testMint(testMintURL)
	mint2 := testMint(testMintURL2)
	require.NoError(t, db.AddMint(mint1))
	require.NoError(t, db.AddMint(mint2))

	mints, err = db.GetMints()
	require.NoError(t, err)
	require.Equal(t, []walletdb.Mint{mint2, mint1}, mints)
}

// TestRemoveMint asserts that removing a mint drops its record and keyset
// metadata while leaving the raw keys in place.
func TestRemoveMint(t *testing.T) {
	t.Parallel()

	db := makeTestDB(t)

	require.NoError(t, db.AddMint(testMint(testMintURL)))
	require.NoError(t, db.AddMintKeysets(
		testMintURL, []walletdb.KeysetInfo{testKeysetInfo(testKeysetID)},
	))

	keys := testKeys()
	require.NoError(t, db.AddKeys(keys))

	require.NoError(t, db.RemoveMint(testMintURL))

	mint, err := db.GetMint(testMintURL)
	require.NoError(t, err)
	require.True(t, mint.IsNone())

	keysets, err := db.GetMintKeysets(testMintURL)
	require.NoError(t, err)
	require.Empty(t, keysets)

	keyset, err := db.GetKeysetByID(testKeysetID)
	require.NoError(t, err)
	require.True(t, keyset.IsNone())

	// The raw key sets are not tied to the mint record.
	gotKeys, err := db.GetKeys(keys.ID)
	require.NoError(t, err)
	require.True(t, gotKeys.IsSome())

	// Removing an unknown mint is a no-op.
	require.NoError(t, db.RemoveMint(testMintURL))
}

// TestUpdateMintURL asserts that repointing a mint rewrites the URL carried
// by its quotes and proofs while leaving other mints untouched.
func TestUpdateMintURL(t *testing.T) {
	t.Parallel()

	db := makeTestDB(t)
	newURL := "https://relocated-mint.example.com"

	moved := testMintQuote("quote-moved")
	control := testMintQuote("quote-control")
	control.MintURL = testMintURL2
	require.NoError(t, db.AddMintQuote(moved))
	require.NoError(t, db.AddMintQuote(control))

	require.NoError(t, db.UpdateProofs([]walletdb.ProofInfo{
		testProofInfo(1, 100, testMintURL),
		testProofInfo(2, 200, testMintURL2),
	}, nil))

	require.NoError(t, db.UpdateMintURL(testMintURL, newURL))

	moved.MintURL = newURL
	got, err := db.GetMintQuote("quote-moved")
	require.NoError(t, err)
	require.Equal(t, fn.Some(moved), got)

	got, err = db.GetMintQuote("quote-control")
	require.NoError(t, err)
	require.Equal(t, fn.Some(control), got)

	proofs, err := db.GetProofs(walletdb.ProofQuery{
		MintURL: fn.Some(testMintURL),
	})
	require.NoError(t, err)
	require.Empty(t, proofs)

	proofs, err = db.GetProofs(walletdb.ProofQuery{
		MintURL: fn.Some(newURL),
	})
	require.NoError(t, err)
	require.Len(t, proofs, 1)
	require.EqualValues(t, 100, proofs[0].Proof.Amount)

	proofs, err = db.GetProofs(walletdb.ProofQuery{
		MintURL: fn.Some(testMintURL2),
	})
	require.NoError(t, err)
	require.Len(t, proofs, 1)
	require.EqualValues(t, 200, proofs[0].Proof.Amount)

	// The new URL has to be usable as a mint key.
	require.ErrorContains(
		t, db.UpdateMintURL(newURL, ""), "must not be empty",
	)
}
