package walletdb_test

import (
	"testing"

	"github.com/cashubtc/cdk/walletdb"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

// testMintQuote builds an unpaid bolt11 mint quote bound to the test mint.
func testMintQuote(id string) walletdb.MintQuote {
	return walletdb.MintQuote{
		ID:            id,
		MintURL:       testMintURL,
		PaymentMethod: walletdb.PaymentMethodBolt11,
		Amount:        fn.Some(uint64(1000)),
		Unit:          "sat",
		Request:       "lnbc1000...",
		State:         walletdb.MintQuoteStateUnpaid,
		Expiry:        9999999999,
	}
}

// testMeltQuote builds an unpaid bolt11 melt quote.
func testMeltQuote(id string) walletdb.MeltQuote {
	return walletdb.MeltQuote{
		ID:            id,
		Unit:          "sat",
		Amount:        1000,
		Request:       "lnbc1000...",
		FeeReserve:    10,
		State:         walletdb.MeltQuoteStateUnpaid,
		Expiry:        9999999999,
		PaymentMethod: walletdb.PaymentMethodBolt11,
	}
}

// TestMintQuoteRoundTrip asserts that a mint quote survives a write and read
// back unchanged, including an attached signing key.
func TestMintQuoteRoundTrip(t *testing.T) {
	t.Parallel()

	db := makeTestDB(t)

	quote := testMintQuote("quote-1")
	quote.SecretKey = fn.Some(testPrivKey(3))
	require.NoError(t, db.AddMintQuote(quote))

	got, err := db.GetMintQuote("quote-1")
	require.NoError(t, err)
	require.Equal(t, fn.Some(quote), got)

	got, err = db.GetMintQuote("quote-unknown")
	require.NoError(t, err)
	require.True(t, got.IsNone())

	// Re-adding under the same ID replaces the stored quote.
	quote.State = walletdb.MintQuoteStateIssued
	quote.AmountMinted = 1000
	quote.AmountPaid = 1000
	require.NoError(t, db.AddMintQuote(quote))

	got, err = db.GetMintQuote("quote-1")
	require.NoError(t, err)
	require.Equal(t, fn.Some(quote), got)
}

// TestMintQuoteEmptyID asserts that a quote without an ID is rejected.
func TestMintQuoteEmptyID(t *testing.T) {
	t.Parallel()

	db := makeTestDB(t)

	err := db.AddMintQuote(testMintQuote(""))
	require.ErrorContains(t, err, "must not be empty")

	err = db.AddMeltQuote(testMeltQuote(""))
	require.ErrorContains(t, err, "must not be empty")
}

// TestGetMintQuotes asserts that all mint quotes are listed in ID order.
func TestGetMintQuotes(t *testing.T) {
	t.Parallel()

	db := makeTestDB(t)

	quotes, err := db.GetMintQuotes()
	require.NoError(t, err)
	require.Empty(t, quotes)

	quoteC := testMintQuote("quote-c")
	quoteA := testMintQuote("quote-a")
	quoteB := testMintQuote("quote-b")
	require.NoError(t, db.AddMintQuote(quoteC))
	require.NoError(t, db.AddMintQuote(quoteA))
	require.NoError(t, db.AddMintQuote(quoteB))

	quotes, err = db.GetMintQuotes()
	require.NoError(t, err)
	require.Equal(
		t, []walletdb.MintQuote{quoteA, quoteB, quoteC}, quotes,
	)
}

// TestGetUnissuedMintQuotes asserts that quotes that can still be minted
// against are selected: bolt11 quotes with nothing issued yet and every
// bolt12 quote, since offers are reusable.
func TestGetUnissuedMintQuotes(t *testing.T) {
	t.Parallel()

	db := makeTestDB(t)

	// Paid but not minted against, still open.
	open := testMintQuote("quote-open")
	open.State = walletdb.MintQuoteStatePaid
	require.NoError(t, db.AddMintQuote(open))

	// Fully issued bolt11 quotes are spent.
	issued := testMintQuote("quote-issued")
	issued.State = walletdb.MintQuoteStateIssued
	issued.AmountMinted = 1000
	require.NoError(t, db.AddMintQuote(issued))

	// A bolt12 offer stays mintable even after issuance.
	offer := testMintQuote("quote-offer")
	offer.PaymentMethod = walletdb.PaymentMethodBolt12
	offer.AmountMinted = 500
	offer.AmountPaid = 1500
	require.NoError(t, db.AddMintQuote(offer))

	// Unknown rails are never reported as mintable.
	custom := testMintQuote("quote-custom")
	custom.PaymentMethod = "customrail"
	require.NoError(t, db.AddMintQuote(custom))

	quotes, err := db.GetUnissuedMintQuotes()
	require.NoError(t, err)
	require.Equal(t, []walletdb.MintQuote{offer, open}, quotes)
}

// TestRemoveMintQuote asserts that removal drops the quote and is a no-op
// for unknown IDs.
func TestRemoveMintQuote(t *testing.T) {
	t.Parallel()

	db := makeTestDB(t)

	require.NoError(t, db.AddMintQuote(testMintQuote("quote-1")))
	require.NoError(t, db.RemoveMintQuote("quote-1"))

	got, err := db.GetMintQuote("quote-1")
	require.NoError(t, err)
	require.True(t, got.IsNone())

	require.NoError(t, db.RemoveMintQuote("quote-1"))
}

// TestMeltQuoteRoundTrip asserts that a melt quote survives a write and read
// back unchanged, including the settlement preimage.
func TestMeltQuoteRoundTrip(t *testing.T) {
	t.Parallel()

	db := makeTestDB(t)

	quote := testMeltQuote("melt-1")
	require.NoError(t, db.AddMeltQuote(quote))

	got, err := db.GetMeltQuote("melt-1")
	require.NoError(t, err)
	require.Equal(t, fn.Some(quote), got)

	got, err = db.GetMeltQuote("melt-unknown")
	require.NoError(t, err)
	require.True(t, got.IsNone())

	quote.State = walletdb.MeltQuoteStatePaid
	quote.PaymentPreimage = fn.Some("00aa11bb22cc33dd")
	require.NoError(t, db.AddMeltQuote(quote))

	got, err = db.GetMeltQuote("melt-1")
	require.NoError(t, err)
	require.Equal(t, fn.Some(quote), got)
}

// TestGetMeltQuotes asserts that all melt quotes are listed in ID order.
func TestGetMeltQuotes(t *testing.T) {
	t.Parallel()

	db := makeTestDB(t)

	quotes, err := db.GetMeltQuotes()
	require.NoError(t, err)
	require.Empty(t, quotes)

	quoteB := testMeltQuote("melt-b")
	quoteA := testMeltQuote("melt-a")
	require.NoError(t, db.AddMeltQuote(quoteB))
	require.NoError(t, db.AddMeltQuote(quoteA))

	quotes, err = db.GetMeltQuotes()
	require.NoError(t, err)
	require.Equal(t, []walletdb.MeltQuote{quoteA, quoteB}, quotes)
}

// TestRemoveMeltQuote asserts that removal drops the quote and is a no-op
// for unknown IDs.
func TestRemoveMeltQuote(t *testing.T) {
	t.Parallel()

	db := makeTestDB(t)

	require.NoError(t, db.AddMeltQuote(testMeltQuote("melt-1")))
	require.NoError(t, db.RemoveMeltQuote("melt-1"))

	got, err := db.GetMeltQuote("melt-1")
	require.NoError(t, err)
	require.True(t, got.IsNone())

	require.NoError(t, db.RemoveMeltQuote("melt-1"))
}
