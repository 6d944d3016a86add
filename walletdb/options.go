package walletdb

import (
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/kvdb"
)

// Options holds parameters for tuning and customizing a DB.
type Options struct {
	kvdb.BoltBackendConfig

	// clock is the time source used by the database.
	clock clock.Clock
}

// DefaultOptions returns an Options populated with default values.
func DefaultOptions() Options {
	return Options{
		BoltBackendConfig: kvdb.BoltBackendConfig{
			NoFreelistSync:    true,
			AutoCompact:       false,
			AutoCompactMinAge: kvdb.DefaultBoltAutoCompactMinAge,
			DBTimeout:         kvdb.DefaultDBTimeout,
		},
		clock: clock.NewDefaultClock(),
	}
}

// OptionModifier is a function signature for modifying the default Options.
type OptionModifier func(*Options)

// OptionNoFreelistSync allows the database to skip syncing its freelist to
// disk, which improves performance at the expense of a longer startup when
// the database is not closed cleanly.
func OptionNoFreelistSync(noFreelistSync bool) OptionModifier {
	return func(o *Options) {
		o.NoFreelistSync = noFreelistSync
	}
}

// OptionAutoCompact turns on automatic database compaction on startup.
func OptionAutoCompact() OptionModifier {
	return func(o *Options) {
		o.AutoCompact = true
	}
}

// OptionAutoCompactMinAge sets the minimum age for automatic database
// compaction.
func OptionAutoCompactMinAge(minAge time.Duration) OptionModifier {
	return func(o *Options) {
		o.AutoCompactMinAge = minAge
	}
}

// OptionDBTimeout sets the timeout value used when opening the database.
func OptionDBTimeout(timeout time.Duration) OptionModifier {
	return func(o *Options) {
		o.DBTimeout = timeout
	}
}

// OptionClock sets a non-default clock.
func OptionClock(clock clock.Clock) OptionModifier {
	return func(o *Options) {
		o.clock = clock
	}
}
