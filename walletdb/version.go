package walletdb

import (
	"fmt"

	"github.com/lightningnetwork/lnd/kvdb"
)

// dbVersionKey is the key under which the database version is stored in the
// metadata bucket.
var dbVersionKey = []byte("version")

// migration is a function which takes a prior outdated version of the
// database instance and mutates the key/bucket structure to arrive at a
// more up-to-date version of the database.
type migration func(tx kvdb.RwTx) error

// version pairs a version number with the migration that would need to be
// applied from the prior version to upgrade.
type version struct {
	number    uint32
	migration migration
}

// dbVersions stores all versions and migrations of the database. This list
// is consulted when opening the database to determine if any migrations
// must be applied.
var dbVersions []version

// getLatestDBVersion returns the last known database version.
func getLatestDBVersion(versions []version) uint32 {
	return uint32(len(versions))
}

// getMigrations returns a slice of all updates with a greater number than
// curVersion that need to be applied to sync up with the latest version.
func getMigrations(versions []version, curVersion uint32) []version {
	var updates []version
	for _, v := range versions {
		if v.number > curVersion {
			updates = append(updates, v)
		}
	}

	return updates
}

// getDBVersion retrieves the current database version.
func getDBVersion(tx kvdb.RTx) (uint32, error) {
	metadata, err := fetchTopBucket(tx, metadataBucket)
	if err != nil {
		return 0, err
	}

	versionBytes := metadata.Get(dbVersionKey)
	if len(versionBytes) != 4 {
		return 0, fmt.Errorf("malformed db version: %x", versionBytes)
	}

	return byteOrder.Uint32(versionBytes), nil
}

// putDBVersion writes the given database version under the version key.
func putDBVersion(metadata kvdb.RwBucket, version uint32) error {
	var versionBytes [4]byte
	byteOrder.PutUint32(versionBytes[:], version)

	return metadata.Put(dbVersionKey, versionBytes[:])
}

// Version returns the current version of the database.
func (d *DB) Version() (uint32, error) {
	var dbVersion uint32
	err := d.view(func(tx kvdb.RTx) error {
		var err error
		dbVersion, err = getDBVersion(tx)
		return err
	}, func() {
		dbVersion = 0
	})
	if err != nil {
		return 0, err
	}

	return dbVersion, nil
}

// syncVersions ensures the database version matches the highest known
// version, applying any outstanding migrations in order. A database written
// by a newer version of the software is refused rather than reverted.
func (d *DB) syncVersions(versions []version) error {
	var curVersion uint32
	err := kvdb.View(d.Backend, func(tx kvdb.RTx) error {
		var err error
		curVersion, err = getDBVersion(tx)
		return err
	}, func() {
		curVersion = 0
	})
	if err != nil {
		return err
	}

	latestVersion := getLatestDBVersion(versions)
	log.Infof("Checking for schema update: latest_version=%v, "+
		"db_version=%v", latestVersion, curVersion)

	switch {
	case curVersion == latestVersion:
		return nil

	case curVersion > latestVersion:
		log.Errorf("Refusing to revert from db_version=%d to "+
			"lower version=%d", curVersion, latestVersion)

		return ErrDBReversion
	}

	migrations := getMigrations(versions, curVersion)

	return kvdb.Update(d.Backend, func(tx kvdb.RwTx) error {
		for _, v := range migrations {
			log.Infof("Applying wallet db migration #%d", v.number)

			if err := v.migration(tx); err != nil {
				log.Errorf("Unable to apply migration #%d: "+
					"%v", v.number, err)

				return err
			}
		}

		metadata, err := fetchTopRwBucket(tx, metadataBucket)
		if err != nil {
			return err
		}

		return putDBVersion(metadata, latestVersion)
	}, func() {})
}
