// Package migrations holds the individual, idempotent schema-upgrade
// functions sqlstore's runMigrations applies in order, one per on-disk
// schema revision the cache has ever shipped.
package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateCreatedAtColumn adds CacheElement.CreatedAt to databases created
// by the one-column-shorter ancestor schema (spec.md §6:
// "VersionOneCacheElement"), backfilling existing rows from their own
// Expiration value since the original rows carry no creation timestamp
// of their own.
func MigrateCreatedAtColumn(db *sql.DB) error {
	var hasCreatedAt bool
	err := db.QueryRow(`
		SELECT COUNT(*) > 0 FROM pragma_table_info('CacheElement')
		WHERE name = 'CreatedAt'
	`).Scan(&hasCreatedAt)
	if err != nil {
		return fmt.Errorf("failed to check for CreatedAt column: %w", err)
	}
	if hasCreatedAt {
		return nil
	}

	if _, err := db.Exec(`ALTER TABLE CacheElement ADD COLUMN CreatedAt INTEGER NOT NULL DEFAULT 0`); err != nil {
		return fmt.Errorf("failed to add CreatedAt column: %w", err)
	}
	if _, err := db.Exec(`UPDATE CacheElement SET CreatedAt = Expiration WHERE CreatedAt = 0`); err != nil {
		return fmt.Errorf("failed to backfill CreatedAt column: %w", err)
	}
	return nil
}
